package task

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies which generation service a task belongs to.
type Kind string

// Possible task kinds
const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Status represents the current state of a task descriptor
type Status string

// Possible descriptor status values. Transitions only advance forward:
// submitted -> processing -> {completed | failed}, and a terminal
// descriptor is immutable thereafter.
const (
	StatusSubmitted  Status = "submitted"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// rank orders statuses so transitions can be checked for forward motion.
func (s Status) rank() int {
	switch s {
	case StatusSubmitted:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// Common validation and transition errors for Descriptor
var (
	ErrEmptyTaskID        = errors.New("descriptor task ID cannot be empty")
	ErrEmptyUnit          = errors.New("descriptor unit cannot be empty")
	ErrEmptyOutputPath    = errors.New("descriptor output path cannot be empty")
	ErrInvalidKind        = errors.New("invalid descriptor kind")
	ErrInvalidStatus      = errors.New("invalid descriptor status")
	ErrTerminalDescriptor = errors.New("descriptor is terminal and immutable")
	ErrBackwardTransition = errors.New("descriptor status cannot move backward")
)

// Inputs carries the kind-specific parameters a job was submitted with.
// They are persisted so a record is self-describing after a restart.
type Inputs struct {
	Prompt          string `json:"prompt,omitempty"`
	NegativePrompt  string `json:"negative_prompt,omitempty"`
	ImageRef        string `json:"image_ref,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

// Descriptor is the persisted record of one external generation request.
// It is created by the Submitter immediately after a successful remote
// submission, advanced by the Poller, and archived by the Reconciler once
// terminal.
type Descriptor struct {
	TaskID        string     `json:"task_id"`
	Unit          string     `json:"unit"`
	Kind          Kind       `json:"kind"`
	OutputPath    string     `json:"output_path"`
	Filename      string     `json:"filename"`
	Inputs        Inputs     `json:"inputs"`
	Status        Status     `json:"status"`
	SubmitTime    time.Time  `json:"submit_time"`
	CompletedTime *time.Time `json:"completed_time,omitempty"`
	FailedTime    *time.Time `json:"failed_time,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	AttemptCount  int        `json:"attempt_count"`
}

// Validate checks that the descriptor carries the fields every record needs.
func (d *Descriptor) Validate() error {
	if d.TaskID == "" {
		return ErrEmptyTaskID
	}
	if d.Unit == "" {
		return ErrEmptyUnit
	}
	if d.OutputPath == "" {
		return ErrEmptyOutputPath
	}
	switch d.Kind {
	case KindImage, KindVideo:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, d.Kind)
	}
	if d.Status.rank() < 0 {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, d.Status)
	}
	return nil
}

// Terminal reports whether the descriptor has reached an end state.
func (d *Descriptor) Terminal() bool {
	return d.Status.Terminal()
}

// advance moves the descriptor to next, enforcing forward-only motion and
// terminal immutability.
func (d *Descriptor) advance(next Status) error {
	if d.Status.Terminal() {
		return fmt.Errorf("%w: %s is already %s", ErrTerminalDescriptor, d.TaskID, d.Status)
	}
	if next.rank() < 0 {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, next)
	}
	if next.rank() < d.Status.rank() {
		return fmt.Errorf("%w: %s -> %s", ErrBackwardTransition, d.Status, next)
	}
	d.Status = next
	return nil
}

// MarkProcessing records that the service reported the task in progress.
// Calling it on a descriptor that is already processing is a no-op.
func (d *Descriptor) MarkProcessing() error {
	return d.advance(StatusProcessing)
}

// MarkCompleted finalizes the descriptor after its artifact has been
// materialized.
func (d *Descriptor) MarkCompleted(at time.Time) error {
	if err := d.advance(StatusCompleted); err != nil {
		return err
	}
	at = at.UTC()
	d.CompletedTime = &at
	return nil
}

// MarkFailed finalizes the descriptor with the upstream failure reason.
func (d *Descriptor) MarkFailed(reason string, at time.Time) error {
	if err := d.advance(StatusFailed); err != nil {
		return err
	}
	at = at.UTC()
	d.FailedTime = &at
	d.ErrorMessage = reason
	return nil
}
