// Package script turns source chapter text into narration scripts using a
// language model, fanning chunks out to a bounded worker pool.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"
)

// Config holds the script generation settings.
type Config struct {
	APIKey         string
	Model          string
	ChunkSize      int
	Workers        int
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// modelCaller is the slice of the model client the generator needs.
// Tests substitute a stub.
type modelCaller interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// geminiCaller backs modelCaller with the Gemini API.
type geminiCaller struct {
	client *genai.Client
	model  string
}

func (g *geminiCaller) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("model call failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("model returned an empty response")
	}
	return text, nil
}

// Generator produces narration text from chapter source text.
type Generator struct {
	caller modelCaller
	config Config
	logger *slog.Logger

	sleep func(context.Context, time.Duration) error
}

// NewGenerator creates a Generator backed by the Gemini API.
func NewGenerator(ctx context.Context, config Config, logger *slog.Logger) (*Generator, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("script generation requires an API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}
	return newGenerator(&geminiCaller{client: client, model: config.Model}, config, logger), nil
}

func newGenerator(caller modelCaller, config Config, logger *slog.Logger) *Generator {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 4000
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = 2 * time.Second
	}
	return &Generator{
		caller: caller,
		config: config,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// sleepCtx pauses for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

const narrationPrompt = `Rewrite the following novel excerpt as a narration script
for a short video. Keep the plot and tone, use spoken-language phrasing, and
do not add headings or stage directions.

Excerpt:
%s`

// GenerateScript converts the chapter text into narration. The text is split
// into chunks that are processed concurrently; output order matches input
// order regardless of which chunk finishes first.
func (g *Generator) GenerateScript(ctx context.Context, text string) (string, error) {
	chunks := SplitText(text, g.config.ChunkSize)
	if len(chunks) == 0 {
		return "", fmt.Errorf("no text to generate a script from")
	}
	g.logger.Info("generating script",
		"chunks", len(chunks),
		"workers", g.config.Workers)

	results := make([]string, len(chunks))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(g.config.Workers)

	for i, chunk := range chunks {
		group.Go(func() error {
			out, err := g.generateChunk(ctx, chunk)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return "", err
	}

	return strings.Join(results, "\n\n"), nil
}

// generateChunk calls the model with retries and jittered exponential
// backoff.
func (g *Generator) generateChunk(ctx context.Context, chunk string) (string, error) {
	prompt := fmt.Sprintf(narrationPrompt, chunk)

	var lastErr error
	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := g.config.RetryBaseDelay << uint(attempt-1)
			jitter := time.Duration(rand.Int63n(int64(delay) / 2))
			g.logger.Warn("model call failed, retrying",
				"attempt", attempt,
				"delay", delay+jitter,
				"error", lastErr)
			if err := g.sleep(ctx, delay+jitter); err != nil {
				return "", err
			}
		}

		out, err := g.caller.GenerateText(ctx, prompt)
		if err == nil {
			return strings.TrimSpace(out), nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("model call failed after %d attempts: %w",
		g.config.MaxRetries+1, lastErr)
}

// SplitText chops text into chunks of at most size runes, preferring to cut
// at paragraph then sentence boundaries so chunks stay coherent.
func SplitText(text string, size int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= size {
			chunks = append(chunks, strings.TrimSpace(string(runes)))
			break
		}
		cut := findCut(runes, size)
		chunk := strings.TrimSpace(string(runes[:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[cut:]
	}
	return chunks
}

// findCut picks a split point at or before limit, scanning backwards for a
// paragraph break, then a sentence end, then any whitespace.
func findCut(runes []rune, limit int) int {
	window := runes[:limit]

	if i := lastIndexRunes(window, '\n'); i > 0 {
		return i + 1
	}
	for i := limit - 1; i > limit/2; i-- {
		switch window[i] {
		case '.', '!', '?', '。', '！', '？':
			return i + 1
		}
	}
	for i := limit - 1; i > limit/2; i-- {
		if window[i] == ' ' {
			return i + 1
		}
	}
	return limit
}

func lastIndexRunes(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
