package imagegen

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fablereel/fablereel/internal/generation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(Config{
		Endpoint: server.URL,
		APIKey:   "test-key",
		ReqKey:   "general_v21",
		Width:    1024,
		Height:   576,
	}, testLogger())
	require.NoError(t, err)
	return c
}

func TestClientConfigValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{APIKey: "k", ReqKey: "r"}, testLogger())
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = New(Config{Endpoint: "http://example.com", ReqKey: "r"}, testLogger())
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = New(Config{Endpoint: "http://example.com", APIKey: "k"}, testLogger())
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}

func TestClientSubmitTask(t *testing.T) {
	t.Parallel()

	t.Run("successful submission returns the task ID", func(t *testing.T) {
		t.Parallel()
		var gotBody map[string]any
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			assert.Contains(t, r.URL.RawQuery, "Action=CVSync2AsyncSubmitTask")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			_, _ = w.Write([]byte(`{"code":10000,"message":"ok","data":{"task_id":"img-42"}}`))
		})

		id, err := c.SubmitTask(context.Background(), generation.SubmitRequest{Prompt: "a fox"})
		require.NoError(t, err)
		assert.Equal(t, "img-42", id)
		assert.Equal(t, "a fox", gotBody["prompt"])
		assert.Equal(t, "general_v21", gotBody["req_key"])
		assert.Equal(t, float64(1024), gotBody["width"])
	})

	t.Run("rate limit code maps to a transient error", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"code":50429,"message":"API Limit"}`))
		})

		_, err := c.SubmitTask(context.Background(), generation.SubmitRequest{Prompt: "a fox"})
		assert.ErrorIs(t, err, generation.ErrTransientFailure)
	})

	t.Run("server errors are transient", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := c.SubmitTask(context.Background(), generation.SubmitRequest{Prompt: "a fox"})
		assert.ErrorIs(t, err, generation.ErrTransientFailure)
	})

	t.Run("other service codes are permanent rejections", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"code":50001,"message":"invalid prompt"}`))
		})

		_, err := c.SubmitTask(context.Background(), generation.SubmitRequest{Prompt: "a fox"})
		assert.ErrorIs(t, err, generation.ErrSubmitFailed)
		assert.NotErrorIs(t, err, generation.ErrTransientFailure)
	})

	t.Run("missing task ID is an invalid response", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"code":10000,"message":"ok","data":{}}`))
		})

		_, err := c.SubmitTask(context.Background(), generation.SubmitRequest{Prompt: "a fox"})
		assert.ErrorIs(t, err, generation.ErrInvalidResponse)
	})
}

func TestClientQueryTask(t *testing.T) {
	t.Parallel()

	respond := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			assert.Contains(t, r.URL.RawQuery, "Action=CVSync2AsyncGetResult")
			_, _ = w.Write([]byte(body))
		}
	}

	t.Run("done carries the inline payload", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, respond(
			`{"code":10000,"data":{"status":"done","binary_data_base64":["aGVsbG8="]}}`))

		res, err := c.QueryTask(context.Background(), "img-42")
		require.NoError(t, err)
		assert.Equal(t, generation.StateDone, res.State)
		assert.Equal(t, "aGVsbG8=", res.PayloadBase64)
	})

	t.Run("done without data is an invalid response", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, respond(`{"code":10000,"data":{"status":"done"}}`))

		_, err := c.QueryTask(context.Background(), "img-42")
		assert.ErrorIs(t, err, generation.ErrInvalidResponse)
	})

	t.Run("failed carries the reason", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, respond(
			`{"code":10000,"data":{"status":"failed","reason":"content policy"}}`))

		res, err := c.QueryTask(context.Background(), "img-42")
		require.NoError(t, err)
		assert.Equal(t, generation.StateFailed, res.State)
		assert.Equal(t, "content policy", res.Reason)
	})

	t.Run("pending maps to queued", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, respond(`{"code":10000,"data":{"status":"pending"}}`))

		res, err := c.QueryTask(context.Background(), "img-42")
		require.NoError(t, err)
		assert.Equal(t, generation.StateQueued, res.State)
	})

	t.Run("in_queue maps to running", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, respond(`{"code":10000,"data":{"status":"in_queue"}}`))

		res, err := c.QueryTask(context.Background(), "img-42")
		require.NoError(t, err)
		assert.Equal(t, generation.StateRunning, res.State)
	})

	t.Run("unexpected status maps to unknown", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, respond(`{"code":10000,"data":{"status":"meditating"}}`))

		res, err := c.QueryTask(context.Background(), "img-42")
		require.NoError(t, err)
		assert.Equal(t, generation.StateUnknown, res.State)
	})
}
