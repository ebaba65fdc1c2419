package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Image    ImageConfig    `mapstructure:"image" validate:"required"`
	Video    VideoConfig    `mapstructure:"video" validate:"required"`
	Script   ScriptConfig   `mapstructure:"script" validate:"required"`
	Poll     PollConfig     `mapstructure:"poll" validate:"required"`
}

// ServerConfig contains the status API and logging settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig selects the descriptor store backend. An empty URL keeps
// task records in per-unit directories on disk; a Postgres URL moves them
// into the gen_tasks table.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// ImageConfig configures the image synthesis client.
type ImageConfig struct {
	Endpoint       string `mapstructure:"endpoint" validate:"required,url"`
	APIKey         string `mapstructure:"api_key" validate:"required"`
	ReqKey         string `mapstructure:"req_key" validate:"required"`
	Width          int    `mapstructure:"width" validate:"gt=0"`
	Height         int    `mapstructure:"height" validate:"gt=0"`
	NegativePrompt string `mapstructure:"negative_prompt"`
}

// VideoConfig configures the video synthesis client.
type VideoConfig struct {
	Endpoint string `mapstructure:"endpoint" validate:"required,url"`
	APIKey   string `mapstructure:"api_key" validate:"required"`
	Model    string `mapstructure:"model" validate:"required"`
	Duration int    `mapstructure:"duration" validate:"gt=0"`
}

// ScriptConfig configures narration script generation.
type ScriptConfig struct {
	APIKey    string `mapstructure:"api_key" validate:"required"`
	Model     string `mapstructure:"model" validate:"required"`
	ChunkSize int    `mapstructure:"chunk_size" validate:"gt=0"`
	Workers   int    `mapstructure:"workers" validate:"gt=0"`
}

// PollConfig tunes the polling and reconciliation loops.
type PollConfig struct {
	// Pace is the delay between consecutive upstream status queries.
	Pace time.Duration `mapstructure:"pace" validate:"gte=0"`

	// Interval is the pause between monitor rounds.
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`

	// AbandonAfter fails pending tasks older than this window.
	// Zero disables abandonment.
	AbandonAfter time.Duration `mapstructure:"abandon_after" validate:"gte=0"`

	// SubmitRetries is how many times a transient submission failure is
	// retried.
	SubmitRetries int `mapstructure:"submit_retries" validate:"gte=0"`

	// SubmitRetryDelay is the first submission backoff delay.
	SubmitRetryDelay time.Duration `mapstructure:"submit_retry_delay" validate:"gt=0"`
}
