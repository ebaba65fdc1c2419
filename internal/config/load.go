package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from an optional YAML file and from environment
// variables with the FABLEREEL_ prefix. Environment variables take
// precedence over file values, which take precedence over defaults.
// Returns a populated Config struct or an error if loading/validation fails.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fablereel")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FABLEREEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// A missing default config file is fine; an explicit path must exist.
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.url", "")

	// Secrets default to empty so their keys are known to the env binding.
	v.SetDefault("image.api_key", "")
	v.SetDefault("video.api_key", "")
	v.SetDefault("script.api_key", "")

	v.SetDefault("image.endpoint", "https://visual.volcengineapi.com")
	v.SetDefault("image.req_key", "high_aes_general_v21_L")
	v.SetDefault("image.width", 1024)
	v.SetDefault("image.height", 576)
	v.SetDefault("image.negative_prompt", "text, watermark, low quality")

	v.SetDefault("video.endpoint", "https://ark.cn-beijing.volces.com/api/v3")
	v.SetDefault("video.model", "doubao-seedance-1-0-lite-i2v")
	v.SetDefault("video.duration", 5)

	v.SetDefault("script.model", "gemini-2.0-flash")
	v.SetDefault("script.chunk_size", 4000)
	v.SetDefault("script.workers", 4)

	v.SetDefault("poll.pace", "500ms")
	v.SetDefault("poll.interval", "30s")
	v.SetDefault("poll.abandon_after", "0s")
	v.SetDefault("poll.submit_retries", 3)
	v.SetDefault("poll.submit_retry_delay", "2s")
}
