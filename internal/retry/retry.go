// Package retry classifies collaborator failures and re-runs transient ones
// with exponential backoff. Every HTTP-facing client in docqa (parser,
// embedder) funnels its calls through [Do].
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/logging"
)

var (
	// ErrUnauthorized marks a 401/403 from a collaborator. Never retried.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited marks a 429 from a collaborator.
	ErrRateLimited = errors.New("rate limited")
)

// maxBodyExcerpt bounds the response body kept on a StatusError.
const maxBodyExcerpt = 2048

// StatusError is a non-2xx response from a collaborator.
type StatusError struct {
	// Service names the collaborator (e.g. "parser", "embedder").
	Service string
	// StatusCode is the HTTP status returned.
	StatusCode int
	// Body is a bounded excerpt of the response body.
	Body string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s: HTTP %d", e.Service, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Unwrap lets callers match auth and rate-limit failures with errors.Is.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return nil
	}
}

// CheckResponse returns a *StatusError for any non-2xx response, consuming
// a bounded excerpt of the body. It returns nil for 2xx and leaves the body
// unread.
func CheckResponse(service string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyExcerpt))
	return &StatusError{
		Service:    service,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(b)),
	}
}

// Retryable reports whether err is worth another attempt: 408, 429 and 5xx
// responses, network errors and per-attempt timeouts.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusRequestTimeout ||
			se.StatusCode == http.StatusTooManyRequests ||
			se.StatusCode >= 500
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// Policy bounds the retry loop.
type Policy struct {
	// MaxAttempts is the total number of attempts, first call included.
	MaxAttempts int
	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
	// MaxInterval caps the backoff delay.
	MaxInterval time.Duration
}

// DefaultPolicy is used when a client is constructed without a Policy.
var DefaultPolicy = Policy{
	MaxAttempts:     4,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     10 * time.Second,
}

// FromSettings converts resolved retry settings into a Policy.
func FromSettings(s config.RetrySettings) Policy {
	p := Policy{
		MaxAttempts:     s.MaxAttempts,
		InitialInterval: s.InitialInterval,
		MaxInterval:     s.MaxInterval,
	}
	return p.withDefaults()
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultPolicy.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultPolicy.MaxInterval
	}
	return p
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// are exhausted, or ctx is done. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	p = p.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		logging.FromContext(ctx).Warn("retry: transient failure, backing off",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", p.MaxAttempts),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
	return backoff.RetryNotify(operation, policy, notify)
}

// DoValue is [Do] for functions that return a value.
func DoValue[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
