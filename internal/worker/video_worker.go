// Package worker contains the orchestrator: the asynq handler that drives a
// song through script generation, clip generation, stitching and upload,
// recording every transition on its processing record.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/yonalabs/videogen/internal/client"
	"github.com/yonalabs/videogen/internal/config"
	"github.com/yonalabs/videogen/internal/model"
	"github.com/yonalabs/videogen/internal/resilience"
	"github.com/yonalabs/videogen/internal/store"
	ws "github.com/yonalabs/videogen/internal/websocket"
)

// VideoWorker processes one song-to-video job per task.
type VideoWorker struct {
	songs      store.SongStore
	processing store.ProcessingStore
	scripts    client.ScriptGenerator
	clips      client.ClipGenerator
	stitcher   client.Stitcher
	uploader   client.Uploader
	hub        *ws.Hub

	retry            resilience.RetryPolicy
	maxRecordRetries int

	// One breaker per external dependency. Each wraps the whole retried call,
	// so a breaker sees one observation per logical stage attempt.
	scriptBreaker *resilience.Breaker
	clipBreaker   *resilience.Breaker
	stitchBreaker *resilience.Breaker
	uploadBreaker *resilience.Breaker
}

// NewVideoWorker creates a new video pipeline worker.
func NewVideoWorker(
	cfg *config.PipelineConfig,
	songs store.SongStore,
	processing store.ProcessingStore,
	scripts client.ScriptGenerator,
	clips client.ClipGenerator,
	stitcher client.Stitcher,
	uploader client.Uploader,
	hub *ws.Hub,
) *VideoWorker {
	return &VideoWorker{
		songs:      songs,
		processing: processing,
		scripts:    scripts,
		clips:      clips,
		stitcher:   stitcher,
		uploader:   uploader,
		hub:        hub,
		retry: resilience.RetryPolicy{
			MaxAttempts:   cfg.MaxRetries,
			InitialDelay:  cfg.InitialDelay,
			BackoffFactor: cfg.BackoffFactor,
		},
		maxRecordRetries: cfg.MaxRecordRetries,
		scriptBreaker:    resilience.NewBreaker("script_generation", cfg.BreakerThreshold, cfg.BreakerCooldown),
		clipBreaker:      resilience.NewBreaker("clip_generation", cfg.BreakerThreshold, cfg.BreakerCooldown),
		stitchBreaker:    resilience.NewBreaker("stitching", cfg.BreakerThreshold, cfg.BreakerCooldown),
		uploadBreaker:    resilience.NewBreaker("uploading", cfg.BreakerThreshold, cfg.BreakerCooldown),
	}
}

// ProcessTask handles one video:process task.
func (w *VideoWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.ProcessVideoPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	log.Printf("Starting video job %s (song %s)", payload.ProcessingID, payload.SongID)
	return w.ProcessRecord(ctx, payload.ProcessingID, payload.SongID)
}

// ProcessRecord drives one processing record to a terminal status. A stage
// failure that exhausts its call-level retries marks the record "retry" and
// re-runs the pipeline while the record-level budget lasts; the persisted
// script makes the re-run resume at clip generation.
func (w *VideoWorker) ProcessRecord(ctx context.Context, recordID, songID string) error {
	song, err := w.songs.GetSong(ctx, songID)
	if err != nil {
		w.failRecord(ctx, recordID, fmt.Sprintf("failed to load song: %v", err))
		return err
	}

	record, err := w.processing.GetRecord(ctx, recordID)
	if err != nil {
		return err
	}

	for {
		err := w.runPipeline(ctx, song, record)
		if err == nil {
			log.Printf("Video job %s completed", recordID)
			return nil
		}

		if client.IsTransient(err) && record.RetryCount < w.maxRecordRetries {
			msg := err.Error()
			record, err = w.processing.UpdateStatus(ctx, recordID, store.StatusUpdate{
				Status:         model.StatusRetry,
				ErrorMessage:   &msg,
				IncrementRetry: true,
			})
			if err != nil {
				return err
			}
			log.Printf("Video job %s retrying (attempt %d): %s", recordID, record.RetryCount, msg)
			continue
		}

		w.failRecord(ctx, recordID, err.Error())
		return err
	}
}

func (w *VideoWorker) runPipeline(ctx context.Context, song *model.Song, record *model.ProcessingRecord) error {
	// Stage 1: script generation. The script is persisted on the record, so a
	// retry of a later stage never regenerates it.
	record, err := w.advance(ctx, record.ID, model.StageScriptGeneration, nil)
	if err != nil {
		return err
	}

	if record.Script == nil {
		params := model.ExtractGenerationParams(song)

		var script *model.Script
		genErr := w.guarded(ctx, w.scriptBreaker, model.StageScriptGeneration, func(ctx context.Context) error {
			s, err := w.scripts.GenerateScript(ctx, song.AudioURL, params)
			if err != nil {
				return err
			}
			script = s
			return nil
		})
		if genErr != nil {
			return genErr
		}

		record, err = w.advance(ctx, record.ID, model.StageClipGeneration, script)
		if err != nil {
			return err
		}
	} else {
		record, err = w.advance(ctx, record.ID, model.StageClipGeneration, nil)
		if err != nil {
			return err
		}
	}

	// Stage 2: one clip per scene, in scene order. A scene whose generation
	// fails permanently fails the whole job; no partial video is produced.
	clips := make([]model.SceneClip, 0, len(record.Script.Scenes))
	for i, scene := range record.Script.Scenes {
		req := &client.ClipRequest{
			Prompt:         scene.Prompt,
			Duration:       scene.SceneDuration(),
			ReferenceImage: referenceImage(song),
		}
		if song.NegativeTags != nil {
			req.NegativePrompt = *song.NegativeTags
		}

		var clipPath string
		genErr := w.guarded(ctx, w.clipBreaker, model.StageClipGeneration, func(ctx context.Context) error {
			path, err := w.clips.GenerateClip(ctx, req)
			if err != nil {
				return err
			}
			clipPath = path
			return nil
		})
		if genErr != nil {
			return fmt.Errorf("scene %d of %d: %w", i+1, len(record.Script.Scenes), genErr)
		}

		clips = append(clips, model.SceneClip{
			SceneIndex: i,
			StartTime:  scene.StartTime,
			EndTime:    scene.EndTime,
			Prompt:     scene.Prompt,
			ClipPath:   clipPath,
		})
		log.Printf("Generated clip %d/%d for record %s", i+1, len(record.Script.Scenes), record.ID)
	}
	defer removeClips(clips)

	// Stage 3: stitching.
	record, err = w.advance(ctx, record.ID, model.StageStitching, nil)
	if err != nil {
		return err
	}

	var videoPath string
	stitchErr := w.guarded(ctx, w.stitchBreaker, model.StageStitching, func(ctx context.Context) error {
		path, err := w.stitcher.Stitch(ctx, clips, song.AudioURL)
		if err != nil {
			return err
		}
		videoPath = path
		return nil
	})
	if stitchErr != nil {
		return stitchErr
	}
	defer os.Remove(videoPath)

	// Stage 4: upload.
	record, err = w.advance(ctx, record.ID, model.StageUploading, nil)
	if err != nil {
		return err
	}

	if w.uploader == nil {
		return client.Permanent(model.StageUploading, errors.New("object storage is not configured"))
	}

	key := fmt.Sprintf("videos/%s/%s.mp4", song.ID, uuid.New().String())

	var videoURL string
	uploadErr := w.guarded(ctx, w.uploadBreaker, model.StageUploading, func(ctx context.Context) error {
		url, err := w.uploader.UploadVideo(ctx, videoPath, key)
		if err != nil {
			return err
		}
		videoURL = url
		return nil
	})
	if uploadErr != nil {
		return uploadErr
	}

	// Final writes. Song first, record second: the two stores are not
	// transactional, and a crash between them leaves a processing record that
	// a reconciliation pass can detect, rather than a "completed" record whose
	// song still lacks the video. An object whose song write never landed is
	// referenced by nothing, so it is removed rather than orphaned.
	if err := w.songs.UpdateVideoURL(ctx, song.ID, videoURL); err != nil {
		w.removeRemote(ctx, key)
		return err
	}

	if _, err := w.processing.UpdateStatus(ctx, record.ID, store.StatusUpdate{
		Status:   model.StatusCompleted,
		VideoURL: &videoURL,
		VideoKey: &key,
	}); err != nil {
		return err
	}

	if w.hub != nil {
		w.hub.Broadcast(model.ProgressEvent{
			Type:         "complete",
			ProcessingID: record.ID,
			Status:       model.StatusCompleted,
			VideoURL:     videoURL,
		})
	}
	return nil
}

// advance moves the record into processing at the given stage, persisting the
// script when one was just generated.
func (w *VideoWorker) advance(ctx context.Context, recordID, stage string, script *model.Script) (*model.ProcessingRecord, error) {
	record, err := w.processing.UpdateStatus(ctx, recordID, store.StatusUpdate{
		Status:       model.StatusProcessing,
		CurrentStage: &stage,
		Script:       script,
	})
	if err != nil {
		return nil, err
	}

	if w.hub != nil {
		w.hub.Broadcast(model.ProgressEvent{
			Type:         "progress",
			ProcessingID: recordID,
			Status:       model.StatusProcessing,
			Stage:        stage,
		})
	}
	return record, nil
}

// guarded wraps op with the stage's circuit breaker around the retry policy.
// Retries inside one logical call count as a single breaker observation.
func (w *VideoWorker) guarded(ctx context.Context, b *resilience.Breaker, name string, op func(ctx context.Context) error) error {
	return b.Execute(func() error {
		return resilience.Retry(ctx, name, w.retry, client.IsTransient, op)
	})
}

func (w *VideoWorker) failRecord(ctx context.Context, recordID, msg string) {
	record, err := w.processing.UpdateStatus(ctx, recordID, store.StatusUpdate{
		Status:       model.StatusFailed,
		ErrorMessage: &msg,
	})
	if err != nil {
		log.Printf("Failed to mark record %s failed: %v", recordID, err)
		return
	}

	log.Printf("Video job %s failed at %s: %s", recordID, record.CurrentStage, msg)

	if w.hub != nil {
		w.hub.Broadcast(model.ProgressEvent{
			Type:         "error",
			ProcessingID: recordID,
			Status:       model.StatusFailed,
			Stage:        record.CurrentStage,
			Error:        msg,
		})
	}
}

// removeRemote best-effort deletes an uploaded object when the uploader
// supports it.
func (w *VideoWorker) removeRemote(ctx context.Context, key string) {
	rm, ok := w.uploader.(client.ObjectRemover)
	if !ok {
		return
	}
	if err := rm.Delete(ctx, key); err != nil {
		log.Printf("Failed to remove unreferenced video object %s: %v", key, err)
	}
}

func referenceImage(song *model.Song) string {
	if song.ImageURL != nil {
		return *song.ImageURL
	}
	return ""
}

func removeClips(clips []model.SceneClip) {
	for _, clip := range clips {
		if clip.ClipPath != "" {
			os.Remove(clip.ClipPath)
		}
	}
}
