package store

import (
	"context"
	"errors"
	"time"

	"github.com/yonalabs/videogen/internal/model"
)

// Store-level errors. ErrStoreUnavailable is retryable at the call site;
// ErrDuplicateActiveRecord is an invariant signal and must not be retried.
var (
	ErrStoreUnavailable      = errors.New("store unavailable")
	ErrDuplicateActiveRecord = errors.New("song already has an active processing record")
	ErrSongNotFound          = errors.New("song not found")
	ErrRecordNotFound        = errors.New("processing record not found")
)

// SongStore is the catalog-side song table.
type SongStore interface {
	CreateSong(ctx context.Context, song *model.Song) error
	GetSong(ctx context.Context, id string) (*model.Song, error)
	// ListWithoutVideo returns up to limit songs whose video reference is
	// absent, in no particular order.
	ListWithoutVideo(ctx context.Context, limit int) ([]*model.Song, error)
	// UpdateVideoURL writes the final video reference onto the song. It is
	// idempotent: writing the same URL twice is a no-op.
	UpdateVideoURL(ctx context.Context, songID, videoURL string) error
}

// StatusUpdate is a partial update of a processing record; only non-nil
// fields change.
type StatusUpdate struct {
	Status       model.ProcessingStatus
	CurrentStage *string
	ErrorMessage *string
	Script       *model.Script
	VideoURL     *string
	VideoKey     *string
	// IncrementRetry bumps the retry counter as part of the same write.
	IncrementRetry bool
}

// ProcessingStore is the Processing Record Store.
type ProcessingStore interface {
	// CreateRecord inserts a new pending record for the song. The insert is
	// atomic with the active-record existence check: if the song already has
	// a record in an active status, ErrDuplicateActiveRecord is returned and
	// nothing is written.
	CreateRecord(ctx context.Context, songID string) (*model.ProcessingRecord, error)
	GetRecord(ctx context.Context, id string) (*model.ProcessingRecord, error)
	ListRecords(ctx context.Context, status model.ProcessingStatus, limit int) ([]*model.ProcessingRecord, error)
	// HasActiveRecord reports whether the song has a record in an active
	// status (pending, processing, retry).
	HasActiveRecord(ctx context.Context, songID string) (bool, error)
	// UpdateStatus applies a partial update. processingStartedAt is set on the
	// first transition out of pending and never reset; processingCompletedAt
	// is set on the transition into completed and never reset. Transitions
	// into completed or failed release the song's active-record guard.
	UpdateStatus(ctx context.Context, id string, update StatusUpdate) (*model.ProcessingRecord, error)
}

// applyStatusUpdate mutates rec in place per the partial-update contract.
// Shared by the Redis and in-memory implementations so the timestamp
// idempotence rules live in one place.
func applyStatusUpdate(rec *model.ProcessingRecord, update StatusUpdate, now time.Time) {
	rec.Status = update.Status

	if update.CurrentStage != nil {
		rec.CurrentStage = *update.CurrentStage
	}
	if update.ErrorMessage != nil {
		rec.ErrorMessage = update.ErrorMessage
	}
	if update.Script != nil {
		rec.Script = update.Script
	}
	if update.VideoURL != nil {
		rec.VideoURL = update.VideoURL
	}
	if update.VideoKey != nil {
		rec.VideoKey = update.VideoKey
	}
	if update.IncrementRetry {
		rec.RetryCount++
	}

	if update.Status == model.StatusProcessing && rec.ProcessingStartedAt == nil {
		t := now
		rec.ProcessingStartedAt = &t
	}
	if update.Status == model.StatusCompleted && rec.ProcessingCompletedAt == nil {
		t := now
		rec.ProcessingCompletedAt = &t
	}
}
