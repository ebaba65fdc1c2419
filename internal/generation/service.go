// Package generation defines the contract between the task orchestrator and
// the external generative services it drives. Each service variant (image
// synthesis, video synthesis) implements Service and translates its own
// status vocabulary into the canonical State set, so nothing above this
// layer branches on service-specific strings.
package generation

import "context"

// State is the canonical lifecycle state of a remote generation task.
type State string

// Canonical states. Clients map their upstream vocabulary onto these.
const (
	// StateQueued means the service accepted the task but has not started it.
	StateQueued State = "queued"

	// StateRunning means the service is actively working on the task.
	StateRunning State = "running"

	// StateDone means the task finished and the Result carries its artifact,
	// either inline or by URL.
	StateDone State = "done"

	// StateFailed means the service terminally failed the task; the Result
	// carries the upstream reason.
	StateFailed State = "failed"

	// StateUnknown means the service answered with a status outside its
	// documented vocabulary. Callers should leave the task untouched.
	StateUnknown State = "unknown"
)

// SubmitRequest carries the inputs for one generation job.
type SubmitRequest struct {
	// Prompt is the full text prompt for the job.
	Prompt string

	// NegativePrompt lists traits the image service should avoid. Ignored by
	// services that do not support it.
	NegativePrompt string

	// ImageRef is the source image for image-to-video jobs: a local file
	// path, an http(s) URL, or a data URL.
	ImageRef string

	// DurationSeconds is the requested clip length for video jobs.
	DurationSeconds int

	// Width and Height are the requested output dimensions, when the
	// service supports them. Zero means service default.
	Width  int
	Height int
}

// Result is the outcome of one status query.
type Result struct {
	// State is the canonical task state.
	State State

	// PayloadBase64 is the inline artifact for services that return bytes
	// directly (image synthesis). Empty when the artifact is referenced by
	// URL instead.
	PayloadBase64 string

	// MediaURL points at the artifact for services that host results
	// (video synthesis). Empty when the artifact is inline.
	MediaURL string

	// Reason is the upstream failure reason when State is StateFailed.
	Reason string
}

// Service is one external generation backend.
type Service interface {
	// SubmitTask submits a job and returns the service-assigned task ID.
	// Transient rejections are reported as ErrTransientFailure so callers
	// can retry with backoff.
	SubmitTask(ctx context.Context, req SubmitRequest) (string, error)

	// QueryTask fetches the current state of a previously submitted task.
	QueryTask(ctx context.Context, taskID string) (*Result, error)
}
