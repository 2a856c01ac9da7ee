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

// KlingClient implements ClipGenerator for the Kling model behind PiAPI's
// unified task API.
type KlingClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	workDir    string
}

// NewKlingClient creates a new Kling (PiAPI) client. Downloaded clips land
// under workDir.
func NewKlingClient(cfg *config.KlingConfig, workDir string) *KlingClient {
	return &KlingClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		workDir: workDir,
	}
}

func (c *KlingClient) Name() string { return "kling" }

type klingTaskInput struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	CfgScale       float64 `json:"cfg_scale"`
	Duration       int     `json:"duration"`
	AspectRatio    string  `json:"aspect_ratio"`
	Mode           string  `json:"mode"`
	ImageURL       string  `json:"image_url,omitempty"`
}

type klingTaskRequest struct {
	Model    string         `json:"model"`
	TaskType string         `json:"task_type"`
	Input    klingTaskInput `json:"input"`
}

type klingTaskData struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"` // pending, processing, completed, failed
	Output struct {
		VideoURL string `json:"video_url,omitempty"`
	} `json:"output"`
	Error struct {
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

type klingTaskResponse struct {
	Code    int           `json:"code"`
	Data    klingTaskData `json:"data"`
	Message string        `json:"message,omitempty"`
}

// GenerateClip creates a Kling video-generation task, polls it to completion,
// and downloads the output clip. Inputs outside the API's accepted ranges are
// clamped rather than rejected.
func (c *KlingClient) GenerateClip(ctx context.Context, req *ClipRequest) (string, error) {
	// Kling only renders 5s or 10s clips.
	duration := 5
	if req.Duration > 7.5 {
		duration = 10
	}

	taskReq := klingTaskRequest{
		Model:    "kling",
		TaskType: "video_generation",
		Input: klingTaskInput{
			Prompt:         truncate(req.Prompt, 2500),
			NegativePrompt: truncate(req.NegativePrompt, 2500),
			CfgScale:       0.5,
			Duration:       duration,
			AspectRatio:    "16:9",
			Mode:           "std",
			ImageURL:       req.ReferenceImage,
		},
	}

	var created klingTaskResponse
	if err := c.post(ctx, "/api/v1/task", taskReq, &created); err != nil {
		return "", err
	}
	if created.Data.TaskID == "" {
		return "", Permanent("kling", fmt.Errorf("task created without id: %s", created.Message))
	}

	result, err := c.pollTask(ctx, created.Data.TaskID, 10*time.Second, 15*time.Minute)
	if err != nil {
		return "", err
	}
	if result.Output.VideoURL == "" {
		return "", Permanent("kling", fmt.Errorf("task %s completed without video output", result.TaskID))
	}

	// Output URLs expire; fetch the clip right away.
	path, err := downloadFile(ctx, c.httpClient, result.Output.VideoURL, c.workDir, timestampName("kling", ".mp4"))
	if err != nil {
		return "", err
	}

	log.Printf("[Kling API] clip downloaded to %s", path)
	return path, nil
}

func (c *KlingClient) pollTask(ctx context.Context, taskID string, interval, maxWait time.Duration) (*klingTaskData, error) {
	deadline := time.Now().Add(maxWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++

		var resp klingTaskResponse
		if err := c.get(ctx, "/api/v1/task/"+taskID, &resp); err != nil {
			return nil, err
		}

		log.Printf("[Kling API] Poll task #%d (task=%s) — status: %s", attempt, taskID, resp.Data.Status)

		switch resp.Data.Status {
		case "completed", "success":
			return &resp.Data, nil
		case "failed", "error":
			return nil, Permanent("kling", fmt.Errorf("generation failed: %s", resp.Data.Error.Message))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}

	return nil, Transient("kling", fmt.Errorf("generation timed out after %v", maxWait))
}

func (c *KlingClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
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

func (c *KlingClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.doRequest(req, result)
}

func (c *KlingClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	log.Printf("[Kling API] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Transient("kling", fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transient("kling", fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus("kling", resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return Permanent("kling", fmt.Errorf("failed to unmarshal response: %w", err))
	}
	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *KlingClient) IsConfigured() bool {
	return c.apiKey != ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
