package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func TestBackoff(t *testing.T) {
	t.Run("zero attempt has no delay", func(t *testing.T) {
		assert.Equal(t, time.Duration(0), Backoff(time.Second, 0))
	})

	t.Run("grows exponentially within jitter bounds", func(t *testing.T) {
		base := 100 * time.Millisecond
		for attempt := 1; attempt <= 5; attempt++ {
			expected := base * time.Duration(1<<uint(attempt))
			got := Backoff(base, attempt)
			assert.GreaterOrEqual(t, got, expected*3/4, "attempt %d", attempt)
			assert.LessOrEqual(t, got, expected*5/4, "attempt %d", attempt)
		}
	})

	t.Run("caps at thirty seconds plus jitter", func(t *testing.T) {
		got := Backoff(time.Second, 100)
		assert.LessOrEqual(t, got, 37500*time.Millisecond)
		assert.Greater(t, got, time.Duration(0))
	})
}

func TestDo(t *testing.T) {
	fast := Policy{MaxRetries: 3, BaseDelay: time.Millisecond}

	t.Run("retries retryable errors until success", func(t *testing.T) {
		calls := 0
		out, err := Do(context.Background(), fast, "embed", func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable}
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on non-retryable errors", func(t *testing.T) {
		calls := 0
		_, err := Do(context.Background(), fast, "embed", func(ctx context.Context) (int, error) {
			calls++
			return 0, &openai.APIError{HTTPStatusCode: http.StatusBadRequest}
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.ErrorIs(t, err, domain.ErrMalformedInput)
	})

	t.Run("exhausted retries surface service unavailable", func(t *testing.T) {
		calls := 0
		_, err := Do(context.Background(), fast, "generate", func(ctx context.Context) (int, error) {
			calls++
			return 0, &StatusError{Code: http.StatusBadGateway, Status: "502 Bad Gateway"}
		})
		assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
		assert.Equal(t, fast.MaxRetries+1, calls)
	})

	t.Run("per attempt timeout becomes timeout kind", func(t *testing.T) {
		p := Policy{MaxRetries: 1, BaseDelay: time.Millisecond, Timeout: 10 * time.Millisecond}
		_, err := Do(context.Background(), p, "generate", func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})
		assert.ErrorIs(t, err, domain.ErrTimeout)
	})

	t.Run("cancelled parent is not retried", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		_, err := Do(ctx, fast, "embed", func(ctx context.Context) (int, error) {
			calls++
			return 0, ctx.Err()
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify("x", nil))
	assert.ErrorIs(t, Classify("x", context.DeadlineExceeded), domain.ErrTimeout)
	assert.ErrorIs(t, Classify("x", errors.New("connection refused")), domain.ErrServiceUnavailable)
	assert.ErrorIs(t, Classify("x", &StatusError{Code: 429, Status: "429"}), domain.ErrServiceUnavailable)

	already := domain.NewError(domain.KindNoDocuments, "ingest", nil)
	assert.Same(t, already, Classify("x", already))
}
