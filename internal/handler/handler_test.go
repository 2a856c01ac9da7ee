package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"github.com/yonalabs/videogen/internal/middleware"
	"github.com/yonalabs/videogen/internal/model"
	"github.com/yonalabs/videogen/internal/service"
	"github.com/yonalabs/videogen/internal/store"
)

type fakeEnqueuer struct{}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{ID: "task-1"}, nil
}

type fakeSigner struct {
	calls int
}

func (f *fakeSigner) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	f.calls++
	return "https://signed.example.com/" + key, nil
}

type testApp struct {
	app        *fiber.App
	auth       *middleware.AuthMiddleware
	songs      *store.MemorySongStore
	processing *store.MemoryProcessingStore
	signer     *fakeSigner
}

func setupApp(t *testing.T) *testApp {
	t.Helper()

	songs := store.NewMemorySongStore()
	processing := store.NewMemoryProcessingStore()
	songService := service.NewSongService(songs)
	processingService := service.NewProcessingService(songs, processing, &fakeEnqueuer{})

	signer := &fakeSigner{}
	songHandler := NewSongHandler(songService, validator.New())
	processingHandler := NewProcessingHandler(songService, processingService, signer)

	auth := middleware.NewAuthMiddleware("test-secret")

	app := fiber.New()
	api := app.Group("/api", auth.Authenticate())
	api.Post("/songs", songHandler.Create)
	api.Get("/songs/:id", songHandler.Get)
	api.Post("/processing/:songId/start", processingHandler.Start)
	api.Get("/processing", processingHandler.List)
	api.Get("/processing/:id", processingHandler.Status)

	return &testApp{app: app, auth: auth, songs: songs, processing: processing, signer: signer}
}

func (ta *testApp) request(t *testing.T, method, path, body string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := ta.auth.GenerateToken("user-1", "user@example.com")
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return result
}

func TestCreateSong_Success(t *testing.T) {
	ta := setupApp(t)

	body := `{"title": "Neon Rain", "audioUrl": "https://audio.example.com/neon.mp3"}`
	resp := ta.request(t, http.MethodPost, "/api/songs", body)

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	result := parseJSON(t, resp)
	if result["id"] == nil || result["id"] == "" {
		t.Error("expected song id in response")
	}
	if result["artist"] != model.DefaultArtist {
		t.Errorf("expected default artist, got %v", result["artist"])
	}
}

func TestCreateSong_ValidationFailure(t *testing.T) {
	ta := setupApp(t)

	// Missing audioUrl
	resp := ta.request(t, http.MethodPost, "/api/songs", `{"title": "No Audio"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCreateSong_NoAuth(t *testing.T) {
	ta := setupApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/songs", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestGetSong_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp := ta.request(t, http.MethodGet, "/api/songs/missing", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestStartProcessing_Flow(t *testing.T) {
	ta := setupApp(t)

	song := &model.Song{Title: "Neon Rain", AudioURL: "https://audio.example.com/neon.mp3"}
	if err := ta.songs.CreateSong(context.Background(), song); err != nil {
		t.Fatalf("failed to seed song: %v", err)
	}

	resp := ta.request(t, http.MethodPost, "/api/processing/"+song.ID+"/start", "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	result := parseJSON(t, resp)
	recordID, _ := result["id"].(string)
	if recordID == "" {
		t.Fatal("expected record id in response")
	}

	// A second start while the first is active conflicts.
	resp = ta.request(t, http.MethodPost, "/api/processing/"+song.ID+"/start", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate start, got %d", resp.StatusCode)
	}

	// The record is visible through the status endpoint.
	resp = ta.request(t, http.MethodGet, "/api/processing/"+recordID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	status := parseJSON(t, resp)
	if status["status"] != string(model.StatusPending) {
		t.Errorf("expected pending, got %v", status["status"])
	}
}

func TestStartProcessing_SongWithVideoIsRejected(t *testing.T) {
	ta := setupApp(t)
	ctx := context.Background()

	song := &model.Song{Title: "Finished", AudioURL: "https://audio.example.com/done.mp3"}
	if err := ta.songs.CreateSong(ctx, song); err != nil {
		t.Fatalf("failed to seed song: %v", err)
	}
	if err := ta.songs.UpdateVideoURL(ctx, song.ID, "https://cdn.example.com/done.mp4"); err != nil {
		t.Fatalf("failed to set video URL: %v", err)
	}

	resp := ta.request(t, http.MethodPost, "/api/processing/"+song.ID+"/start", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for a song that already has a video, got %d", resp.StatusCode)
	}
}

func TestStatus_SignedVideoURL(t *testing.T) {
	ta := setupApp(t)
	ctx := context.Background()

	song := &model.Song{Title: "Neon Rain", AudioURL: "https://audio.example.com/neon.mp3"}
	_ = ta.songs.CreateSong(ctx, song)
	rec, err := ta.processing.CreateRecord(ctx, song.ID)
	if err != nil {
		t.Fatalf("failed to create record: %v", err)
	}

	url := "https://cdn.example.com/videos/final.mp4"
	key := "videos/" + song.ID + "/final.mp4"
	if _, err := ta.processing.UpdateStatus(ctx, rec.ID, store.StatusUpdate{
		Status:   model.StatusCompleted,
		VideoURL: &url,
		VideoKey: &key,
	}); err != nil {
		t.Fatalf("failed to complete record: %v", err)
	}

	resp := ta.request(t, http.MethodGet, "/api/processing/"+rec.ID+"?signed=1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	result := parseJSON(t, resp)
	if result["signedVideoUrl"] != "https://signed.example.com/"+key {
		t.Errorf("expected presigned URL, got %v", result["signedVideoUrl"])
	}
	if result["videoKey"] != nil {
		t.Error("object key must not leak into the response")
	}

	// Without the flag the response carries only the public URL.
	resp = ta.request(t, http.MethodGet, "/api/processing/"+rec.ID, "")
	result = parseJSON(t, resp)
	if result["signedVideoUrl"] != nil {
		t.Errorf("unexpected presigned URL: %v", result["signedVideoUrl"])
	}
	if ta.signer.calls != 1 {
		t.Errorf("expected 1 signing call, got %d", ta.signer.calls)
	}
}

func TestStartProcessing_UnknownSong(t *testing.T) {
	ta := setupApp(t)

	resp := ta.request(t, http.MethodPost, "/api/processing/missing/start", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestListProcessing_StatusFilter(t *testing.T) {
	ta := setupApp(t)
	ctx := context.Background()

	song := &model.Song{Title: "Neon Rain", AudioURL: "https://audio.example.com/neon.mp3"}
	_ = ta.songs.CreateSong(ctx, song)
	rec, _ := ta.processing.CreateRecord(ctx, song.ID)
	msg := "exploded"
	_, _ = ta.processing.UpdateStatus(ctx, rec.ID, store.StatusUpdate{Status: model.StatusFailed, ErrorMessage: &msg})

	resp := ta.request(t, http.MethodGet, "/api/processing?status=failed", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	result := parseJSON(t, resp)
	if result["total"] != float64(1) {
		t.Errorf("expected 1 failed record, got %v", result["total"])
	}

	resp = ta.request(t, http.MethodGet, "/api/processing?status=nonsense", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", resp.StatusCode)
	}
}
