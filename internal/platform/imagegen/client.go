// Package imagegen is the image synthesis client. The service follows a
// submit/query protocol: a submission returns a task ID and the artifact is
// later fetched as inline base64 once the task reports done.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fablereel/fablereel/internal/generation"
)

// Service response codes.
const (
	codeOK        = 10000
	codeRateLimit = 50429
)

// Config holds the image client settings.
type Config struct {
	Endpoint       string
	APIKey         string
	ReqKey         string
	Width          int
	Height         int
	NegativePrompt string
	Timeout        time.Duration
}

// Client talks to the image synthesis service.
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
	if config.ReqKey == "" {
		return nil, fmt.Errorf("%w: req_key is required", generation.ErrInvalidConfig)
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		logger: logger,
	}, nil
}

type submitRequest struct {
	ReqKey         string `json:"req_key"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	Seed           int    `json:"seed"`
	ReturnURL      bool   `json:"return_url"`
}

type queryRequest struct {
	ReqKey string `json:"req_key"`
	TaskID string `json:"task_id"`
}

// envelope is the service's uniform response wrapper.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		TaskID           string   `json:"task_id"`
		Status           string   `json:"status"`
		BinaryDataBase64 []string `json:"binary_data_base64"`
		Reason           string   `json:"reason"`
	} `json:"data"`
}

// SubmitTask submits a synthesis job and returns the service task ID.
func (c *Client) SubmitTask(ctx context.Context, req generation.SubmitRequest) (string, error) {
	width, height := req.Width, req.Height
	if width == 0 {
		width = c.config.Width
	}
	if height == 0 {
		height = c.config.Height
	}
	negative := req.NegativePrompt
	if negative == "" {
		negative = c.config.NegativePrompt
	}

	body := submitRequest{
		ReqKey:         c.config.ReqKey,
		Prompt:         req.Prompt,
		NegativePrompt: negative,
		Width:          width,
		Height:         height,
		Seed:           -1,
		ReturnURL:      false,
	}

	env, err := c.call(ctx, "CVSync2AsyncSubmitTask", body)
	if err != nil {
		return "", err
	}
	if env.Data.TaskID == "" {
		return "", fmt.Errorf("%w: submission accepted but no task ID returned",
			generation.ErrInvalidResponse)
	}

	c.logger.Debug("image task submitted", "task_id", env.Data.TaskID)
	return env.Data.TaskID, nil
}

// QueryTask fetches the task's current status, translating the service
// vocabulary into canonical states.
func (c *Client) QueryTask(ctx context.Context, taskID string) (*generation.Result, error) {
	env, err := c.call(ctx, "CVSync2AsyncGetResult", queryRequest{
		ReqKey: c.config.ReqKey,
		TaskID: taskID,
	})
	if err != nil {
		return nil, err
	}

	switch env.Data.Status {
	case "done":
		if len(env.Data.BinaryDataBase64) == 0 || env.Data.BinaryDataBase64[0] == "" {
			return nil, fmt.Errorf("%w: task %s reported done without image data",
				generation.ErrInvalidResponse, taskID)
		}
		return &generation.Result{
			State:         generation.StateDone,
			PayloadBase64: env.Data.BinaryDataBase64[0],
		}, nil
	case "failed":
		reason := env.Data.Reason
		if reason == "" {
			reason = env.Message
		}
		return &generation.Result{State: generation.StateFailed, Reason: reason}, nil
	case "pending":
		return &generation.Result{State: generation.StateQueued}, nil
	case "running", "in_queue":
		return &generation.Result{State: generation.StateRunning}, nil
	default:
		c.logger.Warn("image service returned unrecognized status",
			"task_id", taskID,
			"status", env.Data.Status)
		return &generation.Result{State: generation.StateUnknown}, nil
	}
}

// call posts an action to the service and unwraps the response envelope.
func (c *Client) call(ctx context.Context, action string, body any) (*envelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s?Action=%s&Version=2022-08-31", c.config.Endpoint, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
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

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: service returned status %d",
			generation.ErrTransientFailure, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: service returned status %d: %s",
			generation.ErrSubmitFailed, resp.StatusCode, string(data))
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}

	switch env.Code {
	case codeOK:
		return &env, nil
	case codeRateLimit:
		return nil, fmt.Errorf("%w: rate limited: %s", generation.ErrTransientFailure, env.Message)
	default:
		return nil, fmt.Errorf("%w: code %d: %s", generation.ErrSubmitFailed, env.Code, env.Message)
	}
}
