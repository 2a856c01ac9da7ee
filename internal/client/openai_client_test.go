package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yonalabs/videogen/internal/config"
	"github.com/yonalabs/videogen/internal/model"
)

func scriptServer(t *testing.T, status int, arguments string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error": "nope"}`))
			return
		}

		resp := map[string]interface{}{
			"choices": []map[string]interface{}{{
				"message": map[string]interface{}{
					"tool_calls": []map[string]interface{}{{
						"function": map[string]interface{}{
							"name":      "create_music_video_script",
							"arguments": arguments,
						},
					}},
				},
				"finish_reason": "tool_calls",
			}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func scriptClient(baseURL string) *OpenAIClient {
	return NewOpenAIClient(&config.OpenAIConfig{APIKey: "test", BaseURL: baseURL, Model: "gpt-4"})
}

func TestGenerateScript_Success(t *testing.T) {
	args := `{
		"metadata": {"title": "Neon Rain", "artist": "Yona", "mood": "melancholic"},
		"scenes": [
			{"startTime": 0, "endTime": 5, "description": "opening", "prompt": "rain on neon streets"},
			{"startTime": 5, "endTime": 10, "description": "chorus", "prompt": "singer under an umbrella"}
		]
	}`
	srv := scriptServer(t, http.StatusOK, args)
	defer srv.Close()

	script, err := scriptClient(srv.URL).GenerateScript(context.Background(), "https://audio/x.mp3", model.GenerationParams{Title: "Neon Rain", Artist: "Yona"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(script.Scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(script.Scenes))
	}
	if script.Scenes[0].Prompt != "rain on neon streets" {
		t.Errorf("unexpected first scene prompt: %q", script.Scenes[0].Prompt)
	}
	if script.Metadata.Title != "Neon Rain" {
		t.Errorf("unexpected title: %q", script.Metadata.Title)
	}
	if d := script.Scenes[1].SceneDuration(); d != 5 {
		t.Errorf("expected scene duration 5, got %v", d)
	}
}

func TestGenerateScript_EmptyScenesIsPermanent(t *testing.T) {
	srv := scriptServer(t, http.StatusOK, `{"metadata": {"title": "x", "artist": "y", "mood": "z"}, "scenes": []}`)
	defer srv.Close()

	_, err := scriptClient(srv.URL).GenerateScript(context.Background(), "https://audio/x.mp3", model.GenerationParams{Title: "x"})
	if err == nil {
		t.Fatal("expected error for empty scenes")
	}
	if !IsPermanent(err) {
		t.Errorf("empty script must be permanent, got: %v", err)
	}
}

func TestGenerateScript_MissingTitleIsPermanent(t *testing.T) {
	_, err := scriptClient("http://unused").GenerateScript(context.Background(), "https://audio/x.mp3", model.GenerationParams{})
	if err == nil || !IsPermanent(err) {
		t.Fatalf("expected permanent error for missing title, got: %v", err)
	}
}

func TestGenerateScript_StatusClassification(t *testing.T) {
	tests := []struct {
		status        int
		wantTransient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		srv := scriptServer(t, tt.status, "")
		_, err := scriptClient(srv.URL).GenerateScript(context.Background(), "https://audio/x.mp3", model.GenerationParams{Title: "x"})
		srv.Close()

		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		if IsTransient(err) != tt.wantTransient {
			t.Errorf("status %d: transient = %v, want %v", tt.status, IsTransient(err), tt.wantTransient)
		}
	}
}

func TestBuildScriptPrompt(t *testing.T) {
	prompt := buildScriptPrompt("https://audio/x.mp3", model.GenerationParams{
		Title:          "Neon Rain",
		Artist:         "Yona",
		Genre:          "k-pop",
		NegativePrompt: "violence",
	})

	for _, want := range []string{"Neon Rain", "Yona", "k-pop", "violence", "https://audio/x.mp3"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
