package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/yonalabs/videogen/internal/config"
	"github.com/yonalabs/videogen/internal/model"
)

// ScriptGenerator produces a scene-by-scene video script for a song.
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, audioURL string, params model.GenerationParams) (*model.Script, error)
}

// OpenAIClient implements ScriptGenerator using chat completions with a
// forced tool call, so the script comes back as schema-shaped JSON instead of
// free text.
type OpenAIClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewOpenAIClient creates a new OpenAI API client
func NewOpenAIClient(cfg *config.OpenAIConfig) *OpenAIClient {
	return &OpenAIClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type toolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type chatCompletionRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Tools      []chatTool    `json:"tools,omitempty"`
	ToolChoice interface{}   `json:"tool_choice,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// scriptSchema is the JSON schema the model must fill in. Scene order in the
// returned array is the video's scene order.
const scriptSchema = `{
	"type": "object",
	"properties": {
		"metadata": {
			"type": "object",
			"properties": {
				"title": {"type": "string"},
				"artist": {"type": "string"},
				"mood": {"type": "string"},
				"bpm": {"type": "number"},
				"duration": {"type": "number"}
			},
			"required": ["title", "artist", "mood"]
		},
		"scenes": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"startTime": {"type": "number"},
					"endTime": {"type": "number"},
					"description": {"type": "string"},
					"prompt": {"type": "string"},
					"transition": {"type": "string"}
				},
				"required": ["startTime", "endTime", "description", "prompt"]
			}
		}
	},
	"required": ["metadata", "scenes"]
}`

const scriptSystemMessage = "You are a creative anime music video director. " +
	"Create a detailed scene-by-scene script for an anime-style music video " +
	"featuring Yona, a cartoon K-pop star."

// GenerateScript asks the model for a music video script built from the
// song's generation parameters.
func (c *OpenAIClient) GenerateScript(ctx context.Context, audioURL string, params model.GenerationParams) (*model.Script, error) {
	if params.Title == "" {
		return nil, Permanent("openai", fmt.Errorf("missing required parameter: title"))
	}
	if params.Artist == "" {
		params.Artist = model.DefaultArtist
	}

	reqBody := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: scriptSystemMessage},
			{Role: "user", Content: buildScriptPrompt(audioURL, params)},
		},
		Tools: []chatTool{{
			Type: "function",
			Function: toolFunction{
				Name:        "create_music_video_script",
				Description: "Create a scene-by-scene script for a music video",
				Parameters:  json.RawMessage(scriptSchema),
			},
		}},
		ToolChoice: map[string]interface{}{
			"type":     "function",
			"function": map[string]string{"name": "create_music_video_script"},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("[OpenAI API] → generating script for %q by %s", params.Title, params.Artist)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, Transient("openai", fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient("openai", fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("openai", resp.StatusCode, respBody)
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, Permanent("openai", fmt.Errorf("failed to unmarshal response: %w", err))
	}
	if len(chatResp.Choices) == 0 || len(chatResp.Choices[0].Message.ToolCalls) == 0 {
		return nil, Permanent("openai", fmt.Errorf("no tool call in response"))
	}

	var script model.Script
	args := chatResp.Choices[0].Message.ToolCalls[0].Function.Arguments
	if err := json.Unmarshal([]byte(args), &script); err != nil {
		return nil, Permanent("openai", fmt.Errorf("malformed script payload: %w", err))
	}
	if len(script.Scenes) == 0 {
		return nil, Permanent("openai", fmt.Errorf("script has no scenes"))
	}

	log.Printf("[OpenAI API] ← script generated with %d scenes", len(script.Scenes))
	return &script, nil
}

func buildScriptPrompt(audioURL string, params model.GenerationParams) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Create a music video script for the song '%s' by %s.\n\n", params.Title, params.Artist)

	if params.Genre != "" {
		fmt.Fprintf(&b, "Genre: %s\n", params.Genre)
	}
	if params.Mood != "" {
		fmt.Fprintf(&b, "Mood: %s\n", params.Mood)
	}
	if params.Style != "" {
		fmt.Fprintf(&b, "Visual style: %s\n", params.Style)
	}
	if params.Description != "" {
		fmt.Fprintf(&b, "Song description: %s\n", params.Description)
	}
	if params.Duration > 0 {
		fmt.Fprintf(&b, "Song duration: %.0f seconds\n", params.Duration)
	}
	if params.NegativePrompt != "" {
		fmt.Fprintf(&b, "\nAvoid the following elements: %s\n", params.NegativePrompt)
	}

	fmt.Fprintf(&b, "\nAudio URL: %s\n", audioURL)
	if params.ReferenceImage != "" {
		fmt.Fprintf(&b, "Reference image: %s\n", params.ReferenceImage)
	}

	return b.String()
}

// IsConfigured returns true if the client has valid configuration
func (c *OpenAIClient) IsConfigured() bool {
	return c.apiKey != ""
}
