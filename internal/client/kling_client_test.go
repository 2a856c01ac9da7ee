package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/yonalabs/videogen/internal/config"
)

func TestKlingGenerateClip_FullFlow(t *testing.T) {
	var createReq klingTaskRequest

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/api/v1/task", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Error("expected x-api-key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&createReq); err != nil {
			t.Fatalf("bad create body: %v", err)
		}
		json.NewEncoder(w).Encode(klingTaskResponse{Code: 200, Data: klingTaskData{TaskID: "task-1", Status: "pending"}})
	})
	mux.HandleFunc("/api/v1/task/task-1", func(w http.ResponseWriter, r *http.Request) {
		resp := klingTaskResponse{Code: 200}
		resp.Data.TaskID = "task-1"
		resp.Data.Status = "completed"
		resp.Data.Output.VideoURL = srv.URL + "/clip.mp4"
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/clip.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake mp4 bytes"))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	workDir := t.TempDir()
	c := NewKlingClient(&config.KlingConfig{APIKey: "test-key", BaseURL: srv.URL}, workDir)

	path, err := c.GenerateClip(context.Background(), &ClipRequest{
		Prompt:   "rain on neon streets",
		Duration: 8.2,
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if !strings.HasPrefix(path, workDir) {
		t.Errorf("clip must land in the work dir, got %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("clip not on disk: %v", err)
	}
	if string(data) != "fake mp4 bytes" {
		t.Error("clip content mismatch")
	}

	// 8.2s clamps up to the 10s tier.
	if createReq.Input.Duration != 10 {
		t.Errorf("expected duration clamped to 10, got %d", createReq.Input.Duration)
	}
	if createReq.Input.CfgScale != 0.5 {
		t.Errorf("expected cfg scale 0.5, got %v", createReq.Input.CfgScale)
	}
	if createReq.Model != "kling" || createReq.TaskType != "video_generation" {
		t.Errorf("unexpected task envelope: %s/%s", createReq.Model, createReq.TaskType)
	}
}

func TestKlingGenerateClip_TaskFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/task", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(klingTaskResponse{Code: 200, Data: klingTaskData{TaskID: "task-1", Status: "pending"}})
	})
	mux.HandleFunc("/api/v1/task/task-1", func(w http.ResponseWriter, r *http.Request) {
		resp := klingTaskResponse{Code: 200}
		resp.Data.TaskID = "task-1"
		resp.Data.Status = "failed"
		resp.Data.Error.Message = "content policy"
		json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewKlingClient(&config.KlingConfig{APIKey: "k", BaseURL: srv.URL}, t.TempDir())

	_, err := c.GenerateClip(context.Background(), &ClipRequest{Prompt: "x", Duration: 5})
	if err == nil {
		t.Fatal("expected failure")
	}
	if !IsPermanent(err) {
		t.Errorf("a failed task is permanent, got: %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Errorf("short string must pass through, got %q", got)
	}
	if got := truncate("hello world", 5); got != "hello" {
		t.Errorf("expected hard cut at 5, got %q", got)
	}
}
