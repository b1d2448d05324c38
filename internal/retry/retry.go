// Package retry runs calls to remote model services with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"ragchat/internal/domain"
)

// Policy configures how many times and how slowly a call is retried.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Timeout    time.Duration // per attempt; zero means no per-attempt deadline
}

// Backoff returns exponential backoff with jitter.
// Base delay is doubled each attempt, with random jitter up to 25%, capped at 30s.
func Backoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 || baseDelay <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	backoff := baseDelay * time.Duration(1<<uint(attempt))
	if backoff > 30*time.Second || backoff <= 0 {
		backoff = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(backoff)/2+1)) - backoff/4
	return backoff + jitter
}

// Do calls fn until it succeeds, returns a non-retryable error, or the policy
// is exhausted. The returned error is classified into a domain.Error.
func Do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, Classify(op, ctx.Err())
			case <-time.After(Backoff(p.BaseDelay, attempt)):
			}
		}

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		out, err := fn(callCtx)
		cancel()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil || !Retryable(err) {
			break
		}
	}
	return zero, Classify(op, lastErr)
}

// Retryable reports whether err is worth another attempt:
// timeouts, network failures, HTTP 429 and 5xx.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if code, ok := statusCode(err); ok {
		return code == http.StatusTooManyRequests || code >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Kind == domain.KindServiceUnavailable || de.Kind == domain.KindTimeout
	}
	return false
}

// Classify maps a raw client error onto the domain error taxonomy.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewError(domain.KindTimeout, op, err)
	}
	if code, ok := statusCode(err); ok {
		if code == http.StatusTooManyRequests || code >= 500 {
			return domain.NewError(domain.KindServiceUnavailable, op, err)
		}
		return domain.NewError(domain.KindMalformedInput, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.NewError(domain.KindTimeout, op, err)
		}
		return domain.NewError(domain.KindServiceUnavailable, op, err)
	}
	return domain.NewError(domain.KindServiceUnavailable, op, err)
}

// StatusError carries an HTTP status from clients that talk REST directly.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string { return "unexpected status: " + e.Status }

func statusCode(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode, true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}
