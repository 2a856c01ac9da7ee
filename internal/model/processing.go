package model

import "time"

// ProcessingRecord tracks one song-to-video job through the pipeline. Records
// are never deleted; failed ones double as an audit log.
type ProcessingRecord struct {
	ID                    string           `json:"id"`
	SongID                string           `json:"songId"`
	Status                ProcessingStatus `json:"status"`
	CurrentStage          string           `json:"currentStage,omitempty"`
	Script                *Script          `json:"script,omitempty"`
	ErrorMessage          *string          `json:"errorMessage,omitempty"`
	RetryCount            int              `json:"retryCount"`
	ProcessingStartedAt   *time.Time       `json:"processingStartedAt,omitempty"`
	ProcessingCompletedAt *time.Time       `json:"processingCompletedAt,omitempty"`
	VideoURL              *string          `json:"videoUrl,omitempty"`
	VideoKey              *string          `json:"videoKey,omitempty"`
	CreatedAt             time.Time        `json:"createdAt"`
}

// Script is the scene-by-scene plan produced by the script generator. It is
// persisted on the processing record so a retry can resume at clip generation
// instead of regenerating it.
type Script struct {
	Metadata ScriptMetadata `json:"metadata"`
	Scenes   []Scene        `json:"scenes"`
}

type ScriptMetadata struct {
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Mood     string  `json:"mood"`
	BPM      float64 `json:"bpm,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Scene is one timed segment of the planned video.
type Scene struct {
	StartTime   float64 `json:"startTime"`
	EndTime     float64 `json:"endTime"`
	Description string  `json:"description"`
	Prompt      string  `json:"prompt"`
	Transition  string  `json:"transition,omitempty"`
}

// SceneDuration returns the scene length in seconds.
func (s Scene) SceneDuration() float64 {
	if s.EndTime > s.StartTime {
		return s.EndTime - s.StartTime
	}
	return 0
}

// SceneClip pairs a scene with its generated clip on local disk. Clip URLs
// returned by the generation providers are ephemeral, so clips are downloaded
// immediately and referenced by path from then on.
type SceneClip struct {
	SceneIndex int     `json:"sceneIndex"`
	StartTime  float64 `json:"startTime"`
	EndTime    float64 `json:"endTime"`
	Prompt     string  `json:"prompt"`
	ClipPath   string  `json:"clipPath"`
}

// ProcessVideoPayload is the asynq task payload for one processing record.
type ProcessVideoPayload struct {
	ProcessingID string `json:"processingId"`
	SongID       string `json:"songId"`
}
