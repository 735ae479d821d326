package parser

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/retry"
)

var testPolicy = retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

// fakeParseAPI simulates the hosted parsing API.
type fakeParseAPI struct {
	hits        atomic.Int32
	uploadFails atomic.Int32 // number of 429s to return before accepting an upload
	pendingPoll atomic.Int32 // number of PENDING statuses before settling
	finalStatus string
	uploaded    atomic.Value // string: uploaded file content
	language    atomic.Value // string: language form field
}

func (f *fakeParseAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/parsing/upload", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		if r.Header.Get("Authorization") != "Bearer llx-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.uploadFails.Add(-1) >= 0 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		file, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("upload without file field: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		f.uploaded.Store(hdr.Filename + ":" + string(data))
		f.language.Store(r.FormValue("language"))
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-1", "status": "PENDING"})
	})
	mux.HandleFunc("GET /api/parsing/job/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		status := f.finalStatus
		if f.pendingPoll.Add(-1) >= 0 {
			status = "PENDING"
		}
		resp := map[string]string{"id": r.PathValue("id"), "status": status}
		if status == "ERROR" {
			resp["error_message"] = "corrupt pdf"
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("GET /api/parsing/job/{id}/result/{kind}", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		body := map[string]any{"job_metadata": map[string]int{"job_pages": 7}}
		switch r.PathValue("kind") {
		case "markdown":
			body["markdown"] = "# Barre Savings Bank\n\nParsed."
		case "text":
			body["text"] = "Barre Savings Bank. Parsed."
		}
		_ = json.NewEncoder(w).Encode(body)
	})
	return mux
}

func newTestClient(t *testing.T, baseURL, key, resultType string) *HostedClient {
	t.Helper()
	c, err := NewHostedClient(HostedConfig{
		BaseURL:      baseURL,
		APIKey:       key,
		ResultType:   resultType,
		PollInterval: time.Millisecond,
		Timeout:      5 * time.Second,
		RateLimit:    1000,
		Retry:        testPolicy,
	})
	if err != nil {
		t.Fatalf("NewHostedClient: %v", err)
	}
	return c
}

func TestHostedClient_Parse(t *testing.T) {
	t.Parallel()

	api := &fakeParseAPI{finalStatus: "SUCCESS"}
	api.pendingPoll.Store(2)
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "llx-test", FormatMarkdown)
	got, err := c.Parse(context.Background(), File{Path: "/docs/barre.pdf", Data: []byte("%PDF-1.4 fake")})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Format != FormatMarkdown || !strings.HasPrefix(got.Text, "# Barre Savings Bank") {
		t.Errorf("unexpected result: %+v", got)
	}
	if got.Pages != 7 || got.JobID != "job-1" {
		t.Errorf("Pages/JobID = %d/%q", got.Pages, got.JobID)
	}
	if up, _ := api.uploaded.Load().(string); up != "barre.pdf:%PDF-1.4 fake" {
		t.Errorf("uploaded = %q", up)
	}
	// upload + 3 polls + result
	if n := api.hits.Load(); n != 5 {
		t.Errorf("hits = %d, want 5", n)
	}
}

func TestHostedClient_SendsLanguage(t *testing.T) {
	t.Parallel()

	api := &fakeParseAPI{finalStatus: "SUCCESS"}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	c, err := NewHostedClient(HostedConfig{
		BaseURL:      srv.URL,
		APIKey:       "llx-test",
		Language:     "fr",
		PollInterval: time.Millisecond,
		Timeout:      5 * time.Second,
		RateLimit:    1000,
		Retry:        testPolicy,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Parse(context.Background(), File{Path: "avis.pdf", Data: []byte("%PDF")}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if lang, _ := api.language.Load().(string); lang != "fr" {
		t.Errorf("language field = %q, want fr", lang)
	}
}

func TestHostedClient_TextResult(t *testing.T) {
	t.Parallel()

	api := &fakeParseAPI{finalStatus: "SUCCESS"}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	got, err := newTestClient(t, srv.URL, "llx-test", FormatText).Parse(context.Background(), File{Path: "a.pdf"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Text != "Barre Savings Bank. Parsed." || got.Format != FormatText {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestHostedClient_RetriesRateLimitedUpload(t *testing.T) {
	t.Parallel()

	api := &fakeParseAPI{finalStatus: "SUCCESS"}
	api.uploadFails.Store(2)
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	if _, err := newTestClient(t, srv.URL, "llx-test", "").Parse(context.Background(), File{Path: "a.pdf"}); err != nil {
		t.Fatalf("Parse after transient 429s: %v", err)
	}
}

func TestHostedClient_RateLimitExhausted(t *testing.T) {
	t.Parallel()

	api := &fakeParseAPI{finalStatus: "SUCCESS"}
	api.uploadFails.Store(100)
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, "llx-test", "").Parse(context.Background(), File{Path: "a.pdf"})
	if !errors.Is(err, retry.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if n := api.hits.Load(); n != int32(testPolicy.MaxAttempts) {
		t.Errorf("hits = %d, want %d", n, testPolicy.MaxAttempts)
	}
}

func TestHostedClient_JobFailed(t *testing.T) {
	t.Parallel()

	api := &fakeParseAPI{finalStatus: "ERROR"}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, "llx-test", "").Parse(context.Background(), File{Path: "a.pdf"})
	if !errors.Is(err, ErrJobFailed) {
		t.Fatalf("expected ErrJobFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "corrupt pdf") {
		t.Errorf("error should carry the job message: %v", err)
	}
}

func TestHostedClient_Unauthorized(t *testing.T) {
	t.Parallel()

	api := &fakeParseAPI{finalStatus: "SUCCESS"}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, "wrong-key", "").Parse(context.Background(), File{Path: "a.pdf"})
	if !errors.Is(err, retry.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if n := api.hits.Load(); n != 1 {
		t.Errorf("unauthorized upload must not be retried, hits = %d", n)
	}
}

func TestHostedClient_Timeout(t *testing.T) {
	t.Parallel()

	api := &fakeParseAPI{finalStatus: "SUCCESS"}
	api.pendingPoll.Store(1 << 20)
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	c, err := NewHostedClient(HostedConfig{
		BaseURL:      srv.URL,
		APIKey:       "llx-test",
		PollInterval: 5 * time.Millisecond,
		Timeout:      50 * time.Millisecond,
		RateLimit:    1000,
		Retry:        testPolicy,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Parse(context.Background(), File{Path: "a.pdf"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestNewHostedClient_MissingKey(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer srv.Close()

	_, err := NewHostedClient(HostedConfig{BaseURL: srv.URL})
	if !errors.Is(err, config.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("no request may reach the server, got %d", hits.Load())
	}
}

func TestNewHostedClient_InvalidResultType(t *testing.T) {
	t.Parallel()
	_, err := NewHostedClient(HostedConfig{BaseURL: "http://x", APIKey: "k", ResultType: "json"})
	if !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
