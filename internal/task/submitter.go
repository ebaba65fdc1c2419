package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fablereel/fablereel/internal/generation"
)

// SubmitterConfig holds retry tuning for job submission.
type SubmitterConfig struct {
	// MaxRetries is how many times a transient submission failure is
	// retried before giving up. Zero means a single attempt.
	MaxRetries int

	// RetryBaseDelay is the first backoff delay; it doubles on every
	// subsequent attempt.
	RetryBaseDelay time.Duration
}

// DefaultSubmitterConfig returns a SubmitterConfig with reasonable defaults.
func DefaultSubmitterConfig() SubmitterConfig {
	return SubmitterConfig{
		MaxRetries:     3,
		RetryBaseDelay: 2 * time.Second,
	}
}

// JobInput describes one generation job to submit.
type JobInput struct {
	Unit       string
	Kind       Kind
	OutputPath string
	Filename   string
	Inputs     Inputs
}

// Submitter submits generation jobs to their external service and persists
// the resulting descriptor. The descriptor is saved to the pending role
// before Submit returns, so a crash right after submission cannot drop a
// job the service already accepted.
type Submitter struct {
	store    Store
	services Services
	config   SubmitterConfig
	logger   *slog.Logger

	// sleep is swapped out by tests to observe backoff without waiting.
	sleep func(context.Context, time.Duration) error
}

// NewSubmitter creates a Submitter.
func NewSubmitter(store Store, services Services, config SubmitterConfig, logger *slog.Logger) *Submitter {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = 2 * time.Second
	}
	return &Submitter{
		store:    store,
		services: services,
		config:   config,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// Submit sends the job to its service, retrying transient failures with
// exponential backoff, and persists the descriptor on success. On exhausted
// retries it returns an error and persists nothing.
func (s *Submitter) Submit(ctx context.Context, in JobInput) (*Descriptor, error) {
	svc, err := s.services.For(in.Kind)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With("unit", in.Unit, "kind", in.Kind, "filename", in.Filename)

	req := generation.SubmitRequest{
		Prompt:          in.Inputs.Prompt,
		NegativePrompt:  in.Inputs.NegativePrompt,
		ImageRef:        in.Inputs.ImageRef,
		DurationSeconds: in.Inputs.DurationSeconds,
	}

	var taskID string
	attempts := 0
	for attempt := 0; ; attempt++ {
		attempts = attempt + 1
		taskID, err = svc.SubmitTask(ctx, req)
		if err == nil {
			break
		}

		if !errors.Is(err, generation.ErrTransientFailure) {
			logger.Error("submission rejected", "error", err)
			return nil, fmt.Errorf("failed to submit %s job: %w", in.Kind, err)
		}
		if attempt >= s.config.MaxRetries {
			logger.Error("submission abandoned after retries",
				"attempts", attempts,
				"error", err)
			return nil, fmt.Errorf("failed to submit %s job after %d attempts: %w",
				in.Kind, attempts, err)
		}

		// Exponential backoff: base doubles on every attempt.
		delay := s.config.RetryBaseDelay << uint(attempt)
		logger.Warn("transient submission failure, retrying",
			"attempt", attempts,
			"delay", delay,
			"error", err)

		// The backoff sleep is cut short by cancellation so a long delay
		// never outlives the caller.
		if err := s.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("submission cancelled: %w", err)
		}
	}

	d := &Descriptor{
		TaskID:       taskID,
		Unit:         in.Unit,
		Kind:         in.Kind,
		OutputPath:   in.OutputPath,
		Filename:     in.Filename,
		Inputs:       in.Inputs,
		Status:       StatusSubmitted,
		SubmitTime:   time.Now().UTC(),
		AttemptCount: attempts,
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("submission produced an invalid descriptor: %w", err)
	}

	// Persist before returning: the remote service already owns this job.
	if err := s.store.Save(ctx, d); err != nil {
		logger.Error("accepted job could not be persisted",
			"task_id", taskID,
			"error", err)
		return nil, fmt.Errorf("failed to persist descriptor for task %s: %w", taskID, err)
	}

	logger.Info("job submitted", "task_id", taskID, "attempts", attempts)
	return d, nil
}
