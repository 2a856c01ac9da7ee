package model

import "time"

// CreateSongRequest seeds a song into the catalog from the operator API.
type CreateSongRequest struct {
	Title        string   `json:"title" validate:"required,min=1,max=200"`
	AudioURL     string   `json:"audioUrl" validate:"required,url"`
	Style        *string  `json:"style,omitempty"`
	Genre        *string  `json:"genre,omitempty"`
	Mood         *string  `json:"mood,omitempty"`
	Description  *string  `json:"description,omitempty"`
	NegativeTags *string  `json:"negativeTags,omitempty"`
	Duration     *float64 `json:"duration,omitempty" validate:"omitempty,gt=0"`
	ImageURL     *string  `json:"imageUrl,omitempty" validate:"omitempty,url"`
}

// ProcessingStatusResponse is the operator view of one processing record.
type ProcessingStatusResponse struct {
	ID                    string           `json:"id"`
	SongID                string           `json:"songId"`
	Status                ProcessingStatus `json:"status"`
	CurrentStage          string           `json:"currentStage,omitempty"`
	SceneCount            int              `json:"sceneCount,omitempty"`
	ErrorMessage          *string          `json:"errorMessage,omitempty"`
	RetryCount            int              `json:"retryCount"`
	ProcessingStartedAt   *time.Time       `json:"processingStartedAt,omitempty"`
	ProcessingCompletedAt *time.Time       `json:"processingCompletedAt,omitempty"`
	VideoURL              *string          `json:"videoUrl,omitempty"`
	SignedVideoURL        *string          `json:"signedVideoUrl,omitempty"`
	CreatedAt             time.Time        `json:"createdAt"`

	// VideoKey stays internal; the handler exchanges it for a presigned URL
	// on request.
	VideoKey *string `json:"-"`
}

// ProcessingListResponse wraps a filtered record listing.
type ProcessingListResponse struct {
	Records []ProcessingStatusResponse `json:"records"`
	Total   int                        `json:"total"`
}

// ProgressEvent is broadcast over the WebSocket feed on every transition.
type ProgressEvent struct {
	Type         string           `json:"type"` // "progress", "complete", "error"
	ProcessingID string           `json:"processingId"`
	Status       ProcessingStatus `json:"status"`
	Stage        string           `json:"stage,omitempty"`
	VideoURL     string           `json:"videoUrl,omitempty"`
	Error        string           `json:"error,omitempty"`
}
