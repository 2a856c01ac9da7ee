package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/yonalabs/videogen/internal/model"
	"github.com/yonalabs/videogen/internal/store"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueVideo}, nil
}

func seedSong(t *testing.T, songs *store.MemorySongStore) *model.Song {
	t.Helper()
	song := &model.Song{Title: "Neon Rain", AudioURL: "https://audio.example.com/neon.mp3"}
	if err := songs.CreateSong(context.Background(), song); err != nil {
		t.Fatalf("failed to seed song: %v", err)
	}
	return song
}

func TestStartProcessing_CreatesRecordAndEnqueues(t *testing.T) {
	ctx := context.Background()
	songs := store.NewMemorySongStore()
	processing := store.NewMemoryProcessingStore()
	enqueuer := &fakeEnqueuer{}
	svc := NewProcessingService(songs, processing, enqueuer)

	song := seedSong(t, songs)

	record, err := svc.StartProcessing(ctx, song)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if record.Status != model.StatusPending {
		t.Errorf("expected pending record, got %s", record.Status)
	}

	if len(enqueuer.tasks) != 1 {
		t.Fatalf("expected 1 task enqueued, got %d", len(enqueuer.tasks))
	}
	task := enqueuer.tasks[0]
	if task.Type() != TaskTypeProcessVideo {
		t.Errorf("expected task type %s, got %s", TaskTypeProcessVideo, task.Type())
	}

	var payload model.ProcessVideoPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if payload.ProcessingID != record.ID || payload.SongID != song.ID {
		t.Error("payload must reference the record and the song")
	}
}

func TestStartProcessing_DuplicateActiveRecord(t *testing.T) {
	ctx := context.Background()
	songs := store.NewMemorySongStore()
	processing := store.NewMemoryProcessingStore()
	enqueuer := &fakeEnqueuer{}
	svc := NewProcessingService(songs, processing, enqueuer)

	song := seedSong(t, songs)

	if _, err := svc.StartProcessing(ctx, song); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if _, err := svc.StartProcessing(ctx, song); !errors.Is(err, store.ErrDuplicateActiveRecord) {
		t.Fatalf("expected ErrDuplicateActiveRecord, got: %v", err)
	}
	if len(enqueuer.tasks) != 1 {
		t.Errorf("expected a single task, got %d", len(enqueuer.tasks))
	}
}

func TestStartProcessing_EnqueueFailureReleasesRecord(t *testing.T) {
	ctx := context.Background()
	songs := store.NewMemorySongStore()
	processing := store.NewMemoryProcessingStore()
	enqueuer := &fakeEnqueuer{err: errors.New("redis down")}
	svc := NewProcessingService(songs, processing, enqueuer)

	song := seedSong(t, songs)

	if _, err := svc.StartProcessing(ctx, song); err == nil {
		t.Fatal("expected enqueue failure to surface")
	}

	// The record must be failed so the song is not blocked forever.
	active, _ := processing.HasActiveRecord(ctx, song.ID)
	if active {
		t.Error("expected active guard released after enqueue failure")
	}

	records, _ := processing.ListRecords(ctx, model.StatusFailed, 10)
	if len(records) != 1 {
		t.Fatalf("expected 1 failed record, got %d", len(records))
	}
	if records[0].ErrorMessage == nil {
		t.Error("expected error message on the failed record")
	}
}

func TestGetStatus_IncludesSceneCount(t *testing.T) {
	ctx := context.Background()
	songs := store.NewMemorySongStore()
	processing := store.NewMemoryProcessingStore()
	svc := NewProcessingService(songs, processing, &fakeEnqueuer{})

	song := seedSong(t, songs)
	record, _ := svc.StartProcessing(ctx, song)

	script := &model.Script{Scenes: []model.Scene{{Prompt: "a"}, {Prompt: "b"}}}
	if _, err := processing.UpdateStatus(ctx, record.ID, store.StatusUpdate{Status: model.StatusProcessing, Script: script}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	status, err := svc.GetStatus(ctx, record.ID)
	if err != nil {
		t.Fatalf("get status failed: %v", err)
	}
	if status.SceneCount != 2 {
		t.Errorf("expected scene count 2, got %d", status.SceneCount)
	}
}
