package task

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fablereel/fablereel/internal/generation"
)

// Materializer turns a finished task's result into a file on disk. Artifacts
// arrive either inline (base64 payload) or hosted (URL to download); either
// way the bytes land at the descriptor's output path via an atomic rename,
// so a crash mid-write never leaves a truncated artifact at the final path.
type Materializer struct {
	client *http.Client
	logger *slog.Logger
}

// NewMaterializer creates a Materializer. A nil client falls back to a
// default with a 60s timeout.
func NewMaterializer(client *http.Client, logger *slog.Logger) *Materializer {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Materializer{client: client, logger: logger}
}

// Materialize writes the artifact described by res to d.OutputPath and marks
// the descriptor completed. On any error the descriptor is left unchanged so
// the next polling round can retry.
func (m *Materializer) Materialize(ctx context.Context, d *Descriptor, res *generation.Result) error {
	var (
		data []byte
		err  error
	)
	switch {
	case res.PayloadBase64 != "":
		data, err = base64.StdEncoding.DecodeString(res.PayloadBase64)
		if err != nil {
			return fmt.Errorf("%w: payload is not valid base64: %v", generation.ErrInvalidResponse, err)
		}
	case res.MediaURL != "":
		data, err = m.download(ctx, res.MediaURL)
		if err != nil {
			return fmt.Errorf("failed to download artifact for task %s: %w", d.TaskID, err)
		}
	default:
		return fmt.Errorf("%w: completed task %s carries no payload and no URL",
			generation.ErrInvalidResponse, d.TaskID)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: completed task %s produced zero bytes",
			generation.ErrInvalidResponse, d.TaskID)
	}

	if err := m.writeAtomic(d.OutputPath, data); err != nil {
		return fmt.Errorf("failed to write artifact for task %s: %w", d.TaskID, err)
	}

	if err := d.MarkCompleted(time.Now().UTC()); err != nil {
		return err
	}

	m.logger.Info("artifact materialized",
		"task_id", d.TaskID,
		"unit", d.Unit,
		"path", d.OutputPath,
		"bytes", len(data))
	return nil
}

func (m *Materializer) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read download body: %w", err)
	}
	return data, nil
}

// writeAtomic writes data next to the destination and renames it into place.
func (m *Materializer) writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	tmp := path + ".partial"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return nil
}
