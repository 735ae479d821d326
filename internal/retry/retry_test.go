package retry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fastPolicy keeps retry tests quick.
var fastPolicy = Policy{MaxAttempts: 4, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

func TestStatusError_Unwrap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code          int
		wantUnauth    bool
		wantRateLimit bool
		wantRetryable bool
	}{
		{http.StatusUnauthorized, true, false, false},
		{http.StatusForbidden, true, false, false},
		{http.StatusTooManyRequests, false, true, true},
		{http.StatusRequestTimeout, false, false, true},
		{http.StatusInternalServerError, false, false, true},
		{http.StatusBadGateway, false, false, true},
		{http.StatusBadRequest, false, false, false},
		{http.StatusNotFound, false, false, false},
	}

	for _, tc := range tests {
		t.Run(http.StatusText(tc.code), func(t *testing.T) {
			t.Parallel()
			err := error(&StatusError{Service: "parser", StatusCode: tc.code})
			if got := errors.Is(err, ErrUnauthorized); got != tc.wantUnauth {
				t.Errorf("Is(ErrUnauthorized) = %v, want %v", got, tc.wantUnauth)
			}
			if got := errors.Is(err, ErrRateLimited); got != tc.wantRateLimit {
				t.Errorf("Is(ErrRateLimited) = %v, want %v", got, tc.wantRateLimit)
			}
			if got := Retryable(err); got != tc.wantRetryable {
				t.Errorf("Retryable = %v, want %v", got, tc.wantRetryable)
			}
		})
	}
}

func TestRetryable_ContextErrors(t *testing.T) {
	t.Parallel()
	if Retryable(context.Canceled) {
		t.Error("context.Canceled must not be retryable")
	}
	if !Retryable(context.DeadlineExceeded) {
		t.Error("per-attempt deadline should be retryable")
	}
	if Retryable(errors.New("decode failed")) {
		t.Error("plain errors must not be retryable")
	}
}

func TestCheckResponse(t *testing.T) {
	t.Parallel()

	ok := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("fine"))}
	if err := CheckResponse("embedder", ok); err != nil {
		t.Fatalf("unexpected error for 200: %v", err)
	}

	bad := &http.Response{StatusCode: http.StatusTooManyRequests, Body: io.NopCloser(strings.NewReader(" slow down \n"))}
	err := CheckResponse("embedder", bad)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %T", err)
	}
	if se.Body != "slow down" || se.Service != "embedder" {
		t.Errorf("unexpected StatusError: %+v", se)
	}
	if !strings.Contains(err.Error(), "HTTP 429") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := Do(context.Background(), fastPolicy, "test", func(ctx context.Context) error {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return CheckResponse("test", resp)
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastPolicy, "test", func(context.Context) error {
		calls++
		return &StatusError{Service: "test", StatusCode: http.StatusUnauthorized}
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastPolicy, "test", func(context.Context) error {
		calls++
		return &StatusError{Service: "test", StatusCode: http.StatusTooManyRequests}
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if calls != fastPolicy.MaxAttempts {
		t.Errorf("calls = %d, want %d", calls, fastPolicy.MaxAttempts)
	}
}

func TestDo_HonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 10, InitialInterval: time.Hour, MaxInterval: time.Hour}, "test", func(context.Context) error {
		calls++
		cancel()
		return &StatusError{Service: "test", StatusCode: http.StatusBadGateway}
	})
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoValue(t *testing.T) {
	t.Parallel()

	n := 0
	got, err := DoValue(context.Background(), fastPolicy, "test", func(context.Context) (string, error) {
		n++
		if n == 1 {
			return "", context.DeadlineExceeded
		}
		return "done", nil
	})
	if err != nil || got != "done" {
		t.Fatalf("DoValue = %q, %v", got, err)
	}
}
