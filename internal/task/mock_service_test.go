package task

import (
	"context"
	"io"
	"log/slog"

	"github.com/fablereel/fablereel/internal/generation"
)

// mockService is a configurable generation.Service for tests.
type mockService struct {
	SubmitTaskFn func(ctx context.Context, req generation.SubmitRequest) (string, error)
	QueryTaskFn  func(ctx context.Context, taskID string) (*generation.Result, error)

	submitCalls int
	queryCalls  int
}

func (m *mockService) SubmitTask(ctx context.Context, req generation.SubmitRequest) (string, error) {
	m.submitCalls++
	return m.SubmitTaskFn(ctx, req)
}

func (m *mockService) QueryTask(ctx context.Context, taskID string) (*generation.Result, error) {
	m.queryCalls++
	return m.QueryTaskFn(ctx, taskID)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
