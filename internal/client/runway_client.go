package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/yonalabs/videogen/internal/config"
)

// RunwayClient implements ClipGenerator for the Runway image-to-video API.
type RunwayClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	version    string
	workDir    string
}

// NewRunwayClient creates a new Runway API client. Downloaded clips land
// under workDir.
func NewRunwayClient(cfg *config.RunwayConfig, workDir string) *RunwayClient {
	return &RunwayClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		version: cfg.Version,
		workDir: workDir,
	}
}

func (c *RunwayClient) Name() string { return "runway" }

type runwayTaskRequest struct {
	PromptText  string `json:"promptText"`
	PromptImage string `json:"promptImage"`
	Model       string `json:"model"`
	Duration    int    `json:"duration,omitempty"`
	Ratio       string `json:"ratio,omitempty"`
}

type runwayTaskResponse struct {
	ID string `json:"id"`
}

type runwayTaskStatus struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"` // PENDING, RUNNING, SUCCEEDED, FAILED
	Output  []string `json:"output,omitempty"`
	Failure string   `json:"failure,omitempty"`
}

// GenerateClip creates an image-to-video task, polls it to completion, and
// downloads the output clip.
func (c *RunwayClient) GenerateClip(ctx context.Context, req *ClipRequest) (string, error) {
	if req.ReferenceImage == "" {
		return "", Permanent("runway", fmt.Errorf("image-to-video requires a reference image"))
	}

	// Runway accepts 5s or 10s clips.
	duration := 5
	if req.Duration > 7.5 {
		duration = 10
	}

	taskReq := runwayTaskRequest{
		PromptText:  req.Prompt,
		PromptImage: req.ReferenceImage,
		Model:       "gen3a_turbo",
		Duration:    duration,
		Ratio:       "1280:768",
	}

	var task runwayTaskResponse
	if err := c.post(ctx, "/v1/image_to_video", taskReq, &task); err != nil {
		return "", err
	}

	result, err := c.pollTask(ctx, task.ID, 5*time.Second, 10*time.Minute)
	if err != nil {
		return "", err
	}
	if len(result.Output) == 0 {
		return "", Permanent("runway", fmt.Errorf("task %s succeeded without output", task.ID))
	}

	// Output URLs are ephemeral; fetch the clip before they expire.
	path, err := downloadFile(ctx, c.httpClient, result.Output[0], c.workDir, timestampName("runway", ".mp4"))
	if err != nil {
		return "", err
	}

	log.Printf("[Runway API] clip downloaded to %s", path)
	return path, nil
}

// pollTask polls a Runway task until it settles or maxWait elapses.
func (c *RunwayClient) pollTask(ctx context.Context, taskID string, interval, maxWait time.Duration) (*runwayTaskStatus, error) {
	deadline := time.Now().Add(maxWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++

		var status runwayTaskStatus
		if err := c.get(ctx, "/v1/tasks/"+taskID, &status); err != nil {
			return nil, err
		}

		log.Printf("[Runway API] Poll task #%d (task=%s) — status: %s", attempt, taskID, status.Status)

		switch status.Status {
		case "SUCCEEDED":
			return &status, nil
		case "FAILED":
			return nil, Permanent("runway", fmt.Errorf("generation failed: %s", status.Failure))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}

	return nil, Transient("runway", fmt.Errorf("generation timed out after %v", maxWait))
}

func (c *RunwayClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.doRequest(req, result)
}

func (c *RunwayClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.doRequest(req, result)
}

func (c *RunwayClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Runway-Version", c.version)

	log.Printf("[Runway API] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Transient("runway", fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transient("runway", fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus("runway", resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return Permanent("runway", fmt.Errorf("failed to unmarshal response: %w", err))
	}
	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *RunwayClient) IsConfigured() bool {
	return c.apiKey != ""
}
