package model

// DefaultArtist is the label persona credited on every generated video.
const DefaultArtist = "Yona"

// Processing status
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
	StatusRetry      ProcessingStatus = "retry"
)

// ActiveStatuses are the statuses that block a new record for the same song.
// "retry" is transient but still in flight, so it counts as active.
var ActiveStatuses = []ProcessingStatus{StatusPending, StatusProcessing, StatusRetry}

// IsActive reports whether the status marks an in-flight record.
func (s ProcessingStatus) IsActive() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the record has reached a resting state.
func (s ProcessingStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var ValidStatuses = []ProcessingStatus{
	StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusRetry,
}

// Pipeline stages
const (
	StageScriptGeneration = "script_generation"
	StageClipGeneration   = "clip_generation"
	StageStitching        = "stitching"
	StageUploading        = "uploading"
)

// Clip generation providers
type ClipProvider string

const (
	ProviderRunway ClipProvider = "runway"
	ProviderKling  ClipProvider = "kling"
)
