package client

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yonalabs/videogen/internal/model"
)

// Stitcher joins ordered scene clips into one video with the original audio
// muxed in.
type Stitcher interface {
	Stitch(ctx context.Context, clips []model.SceneClip, audioURL string) (string, error)
}

// FFmpegStitcher implements Stitcher by shelling out to ffmpeg: each clip is
// trimmed to its scene's declared duration, the trimmed clips are joined with
// the concat demuxer, and the song audio replaces the clips' audio tracks.
type FFmpegStitcher struct {
	ffmpegPath string
	workDir    string
	httpClient *http.Client
}

func NewFFmpegStitcher(ffmpegPath, workDir string) *FFmpegStitcher {
	return &FFmpegStitcher{
		ffmpegPath: ffmpegPath,
		workDir:    workDir,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (s *FFmpegStitcher) Stitch(ctx context.Context, clips []model.SceneClip, audioURL string) (string, error) {
	if len(clips) == 0 {
		return "", Permanent("stitcher", fmt.Errorf("no clips to stitch"))
	}

	log.Printf("[Stitcher] stitching %d clips with audio: %s", len(clips), audioURL)

	ordered := make([]model.SceneClip, len(clips))
	copy(ordered, clips)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StartTime < ordered[j].StartTime
	})

	for _, clip := range ordered {
		if _, err := os.Stat(clip.ClipPath); err != nil {
			return "", Permanent("stitcher", fmt.Errorf("clip for scene %d missing: %w", clip.SceneIndex, err))
		}
	}

	audioPath, err := downloadFile(ctx, s.httpClient, audioURL, s.workDir, timestampName("audio", ".mp3"))
	if err != nil {
		return "", err
	}
	defer os.Remove(audioPath)

	tmpDir, err := os.MkdirTemp(s.workDir, "stitch")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	// Trim each clip to its scene's declared duration so clip boundaries line
	// up with the script timing.
	trimmed := make([]string, 0, len(ordered))
	for i, clip := range ordered {
		out := filepath.Join(tmpDir, fmt.Sprintf("scene_%03d.mp4", i))
		args := []string{"-y", "-i", clip.ClipPath}
		if d := clip.EndTime - clip.StartTime; d > 0 {
			args = append(args, "-t", fmt.Sprintf("%.3f", d))
		}
		args = append(args, "-c:v", "libx264", "-an", out)
		if err := s.run(ctx, args...); err != nil {
			return "", err
		}
		trimmed = append(trimmed, out)
	}

	// Concat demuxer needs a file list.
	listPath := filepath.Join(tmpDir, "clips.txt")
	var list strings.Builder
	for _, path := range trimmed {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to resolve clip path: %w", err)
		}
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write clip list: %w", err)
	}

	concatPath := filepath.Join(tmpDir, "concat.mp4")
	if err := s.run(ctx, "-y", "-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", concatPath); err != nil {
		return "", err
	}

	outputPath := filepath.Join(s.workDir, timestampName("final", ".mp4"))
	if err := s.run(ctx,
		"-y",
		"-i", concatPath,
		"-i", audioPath,
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		outputPath,
	); err != nil {
		return "", err
	}

	log.Printf("[Stitcher] stitched video: %s", outputPath)
	return outputPath, nil
}

func (s *FFmpegStitcher) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, s.ffmpegPath, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return Permanent("stitcher", fmt.Errorf("ffmpeg failed: %v: %s", err, lastLines(stderr.String(), 5)))
	}
	return nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
