package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ClipRequest describes one scene's clip generation.
type ClipRequest struct {
	Prompt         string
	NegativePrompt string
	Duration       float64 // seconds; providers clamp to their own limits
	ReferenceImage string  // optional image URL for image-to-video
}

// ClipGenerator turns one scene prompt into a video clip on local disk. The
// provider URLs for generated clips are ephemeral, so implementations download
// the clip before returning.
type ClipGenerator interface {
	GenerateClip(ctx context.Context, req *ClipRequest) (string, error)
	Name() string
}

// downloadFile streams url into dir and returns the local path. Used by the
// clip generators and the stitcher's audio fetch.
func downloadFile(ctx context.Context, httpClient *http.Client, url, dir, filename string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", Transient("download", fmt.Errorf("failed to fetch %s: %w", url, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus("download", resp.StatusCode, nil)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create dir %s: %w", dir, err)
	}

	path := filepath.Join(dir, filename)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file %s: %w", path, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(path)
		return "", Transient("download", fmt.Errorf("failed to write %s: %w", path, err))
	}
	return path, nil
}

func timestampName(prefix, ext string) string {
	return fmt.Sprintf("%s_%d%s", prefix, time.Now().UnixNano(), ext)
}
