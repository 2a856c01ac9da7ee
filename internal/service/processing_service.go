package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/yonalabs/videogen/internal/model"
	"github.com/yonalabs/videogen/internal/store"
)

const (
	TaskTypeProcessVideo = "video:process"
	QueueVideo           = "video"
)

// TaskEnqueuer is the slice of *asynq.Client the service needs; tests swap in
// a fake.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ProcessingService owns the processing record lifecycle on the API side:
// opening a record, queueing the pipeline task, and serving status reads.
type ProcessingService struct {
	songs       store.SongStore
	processing  store.ProcessingStore
	asynqClient TaskEnqueuer
}

func NewProcessingService(songs store.SongStore, processing store.ProcessingStore, asynqClient TaskEnqueuer) *ProcessingService {
	return &ProcessingService{
		songs:       songs,
		processing:  processing,
		asynqClient: asynqClient,
	}
}

// StartProcessing opens a pending record for the song and enqueues the
// pipeline task. asynq's own retry is disabled: retry policy belongs to the
// orchestrator, and a re-delivered task would run it twice.
func (s *ProcessingService) StartProcessing(ctx context.Context, song *model.Song) (*model.ProcessingRecord, error) {
	record, err := s.processing.CreateRecord(ctx, song.ID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(model.ProcessVideoPayload{
		ProcessingID: record.ID,
		SongID:       song.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	task := asynq.NewTask(TaskTypeProcessVideo, payload)
	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue(QueueVideo),
		asynq.MaxRetry(0),
		asynq.Timeout(2*time.Hour),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		// Release the record so the song is not blocked by a job that will
		// never run.
		msg := fmt.Sprintf("failed to enqueue pipeline task: %v", err)
		_, _ = s.processing.UpdateStatus(ctx, record.ID, store.StatusUpdate{
			Status:       model.StatusFailed,
			ErrorMessage: &msg,
		})
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return record, nil
}

// GetStatus returns the operator view of one processing record.
func (s *ProcessingService) GetStatus(ctx context.Context, id string) (*model.ProcessingStatusResponse, error) {
	record, err := s.processing.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toStatusResponse(record)
	return &resp, nil
}

// ListRecords returns records filtered by status ("" for all).
func (s *ProcessingService) ListRecords(ctx context.Context, status model.ProcessingStatus, limit int) (*model.ProcessingListResponse, error) {
	records, err := s.processing.ListRecords(ctx, status, limit)
	if err != nil {
		return nil, err
	}

	resp := &model.ProcessingListResponse{
		Records: make([]model.ProcessingStatusResponse, 0, len(records)),
	}
	for _, record := range records {
		resp.Records = append(resp.Records, toStatusResponse(record))
	}
	resp.Total = len(resp.Records)
	return resp, nil
}

func toStatusResponse(record *model.ProcessingRecord) model.ProcessingStatusResponse {
	resp := model.ProcessingStatusResponse{
		ID:                    record.ID,
		SongID:                record.SongID,
		Status:                record.Status,
		CurrentStage:          record.CurrentStage,
		ErrorMessage:          record.ErrorMessage,
		RetryCount:            record.RetryCount,
		ProcessingStartedAt:   record.ProcessingStartedAt,
		ProcessingCompletedAt: record.ProcessingCompletedAt,
		VideoURL:              record.VideoURL,
		VideoKey:              record.VideoKey,
		CreatedAt:             record.CreatedAt,
	}
	if record.Script != nil {
		resp.SceneCount = len(record.Script.Scenes)
	}
	return resp
}
