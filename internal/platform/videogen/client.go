// Package videogen is the image-to-video synthesis client. Jobs are created
// against the service's task endpoint and polled until they resolve to a
// hosted video URL.
package videogen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fablereel/fablereel/internal/generation"
)

// Config holds the video client settings.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Client talks to the video synthesis service.
type Client struct {
	config Config
	http   *http.Client
	logger *slog.Logger
}

var _ generation.Service = (*Client)(nil)

// New creates a Client.
func New(config Config, logger *slog.Logger) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is required", generation.ErrInvalidConfig)
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required", generation.ErrInvalidConfig)
	}
	if config.Model == "" {
		return nil, fmt.Errorf("%w: model is required", generation.ErrInvalidConfig)
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		logger: logger,
	}, nil
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type createRequest struct {
	Model   string        `json:"model"`
	Content []contentPart `json:"content"`
}

type createResponse struct {
	ID string `json:"id"`
}

type taskResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Content struct {
		VideoURL string `json:"video_url"`
	} `json:"content"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SubmitTask creates a generation job from the prompt and source image and
// returns the service task ID.
func (c *Client) SubmitTask(ctx context.Context, req generation.SubmitRequest) (string, error) {
	text := req.Prompt
	if req.DurationSeconds > 0 {
		text = fmt.Sprintf("%s --dur %d", text, req.DurationSeconds)
	}

	content := []contentPart{{Type: "text", Text: text}}
	if req.ImageRef != "" {
		ref, err := resolveImageRef(req.ImageRef)
		if err != nil {
			return "", err
		}
		content = append(content, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: ref},
		})
	}

	body, err := json.Marshal(createRequest{Model: c.config.Model, Content: content})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	url := c.config.Endpoint + "/contents/generations/tasks"
	data, err := c.do(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	var created createResponse
	if err := json.Unmarshal(data, &created); err != nil {
		return "", fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("%w: submission accepted but no task ID returned",
			generation.ErrInvalidResponse)
	}

	c.logger.Debug("video task submitted", "task_id", created.ID)
	return created.ID, nil
}

// QueryTask fetches the task's current status.
func (c *Client) QueryTask(ctx context.Context, taskID string) (*generation.Result, error) {
	url := c.config.Endpoint + "/contents/generations/tasks/" + taskID
	data, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var tr taskResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}

	switch tr.Status {
	case "succeeded":
		if tr.Content.VideoURL == "" {
			return nil, fmt.Errorf("%w: task %s succeeded without a video URL",
				generation.ErrInvalidResponse, taskID)
		}
		return &generation.Result{
			State:    generation.StateDone,
			MediaURL: tr.Content.VideoURL,
		}, nil
	case "failed", "cancelled":
		reason := tr.Error.Message
		if reason == "" {
			reason = tr.Status
		}
		return &generation.Result{State: generation.StateFailed, Reason: reason}, nil
	case "queued":
		return &generation.Result{State: generation.StateQueued}, nil
	case "running":
		return &generation.Result{State: generation.StateRunning}, nil
	default:
		c.logger.Warn("video service returned unrecognized status",
			"task_id", taskID,
			"status", tr.Status)
		return &generation.Result{State: generation.StateUnknown}, nil
	}
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return data, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: service returned status %d",
			generation.ErrTransientFailure, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: service returned status %d: %s",
			generation.ErrSubmitFailed, resp.StatusCode, string(data))
	}
}

// resolveImageRef turns a source image reference into a form the service
// accepts. URLs pass through; a local file is inlined as a data URL.
func resolveImageRef(ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") ||
		strings.HasPrefix(ref, "https://") ||
		strings.HasPrefix(ref, "data:") {
		return ref, nil
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("failed to read source image %s: %w", ref, err)
	}

	mime := "image/jpeg"
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".png":
		mime = "image/png"
	case ".webp":
		mime = "image/webp"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)), nil
}
