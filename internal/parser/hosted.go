package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/retry"
	"github.com/54b3r/docqa-go/internal/version"
)

// Job statuses reported by the hosted parser.
const (
	statusSuccess = "SUCCESS"
	statusError   = "ERROR"
	statusCancel  = "CANCELED"
)

// HostedConfig holds the settings for constructing a HostedClient.
type HostedConfig struct {
	// BaseURL is the parsing API root, without trailing slash.
	BaseURL string
	// APIKey is sent as a Bearer token.
	APIKey string
	// ResultType is FormatMarkdown or FormatText.
	ResultType string
	// Language is the document language hint (e.g. "en").
	Language string
	// PollInterval is the delay between job status checks.
	PollInterval time.Duration
	// Timeout bounds one Parse call end to end.
	Timeout time.Duration
	// RateLimit is the maximum request rate, per second.
	RateLimit float64
	// Retry bounds retries of each HTTP call.
	Retry retry.Policy
	// Verbose logs every status poll at info level.
	Verbose bool
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// HostedClient implements ParseService against the hosted parsing API:
// upload, poll the job until it settles, then fetch the result.
type HostedClient struct {
	// cfg holds the normalised client configuration.
	cfg HostedConfig
	// client performs the HTTP calls.
	client *http.Client
	// limiter paces every request, polls included.
	limiter *rate.Limiter
}

// NewHostedClient validates cfg and returns a client. A missing API key is
// reported as config.ErrMissingCredential before any request is made.
func NewHostedClient(cfg HostedConfig) (*HostedClient, error) {
	if cfg.APIKey == "" {
		return nil, config.MissingCredential("parser", "PARSE_API_KEY", "LLAMA_CLOUD_API_KEY")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("parser: base URL must not be empty")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parser: invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if cfg.ResultType == "" {
		cfg.ResultType = FormatMarkdown
	}
	if cfg.ResultType != FormatMarkdown && cfg.ResultType != FormatText {
		return nil, fmt.Errorf("parser: %w: result type %q", config.ErrInvalid, cfg.ResultType)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	return &HostedClient{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
	}, nil
}

// jobResponse is returned by the upload and status endpoints.
type jobResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// resultResponse is returned by the result endpoints.
type resultResponse struct {
	Markdown    string `json:"markdown"`
	Text        string `json:"text"`
	JobMetadata struct {
		JobPages int `json:"job_pages"`
	} `json:"job_metadata"`
}

// Parse uploads f, waits for the job to finish and returns its result.
func (c *HostedClient) Parse(ctx context.Context, f File) (*Parsed, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	log := logging.FromContext(ctx).With(slog.String("file", f.Name()))

	jobID, err := c.upload(ctx, f)
	if err != nil {
		return nil, err
	}
	log.Debug("parser: job submitted", slog.String("job_id", jobID))

	if err := c.wait(ctx, jobID, log); err != nil {
		return nil, err
	}

	var res resultResponse
	path := "/api/parsing/job/" + url.PathEscape(jobID) + "/result/" + c.cfg.ResultType
	if err := c.getJSON(ctx, path, &res); err != nil {
		return nil, fmt.Errorf("parser: fetch result for %s: %w", f.Name(), err)
	}

	text := res.Markdown
	if c.cfg.ResultType == FormatText {
		text = res.Text
	}

	return &Parsed{
		Text:   text,
		Format: c.cfg.ResultType,
		Pages:  res.JobMetadata.JobPages,
		JobID:  jobID,
	}, nil
}

// upload submits the file and returns the job ID.
func (c *HostedClient) upload(ctx context.Context, f File) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", f.Name())
	if err != nil {
		return "", fmt.Errorf("parser: build upload: %w", err)
	}
	if _, err := part.Write(f.Data); err != nil {
		return "", fmt.Errorf("parser: build upload: %w", err)
	}
	if c.cfg.Language != "" {
		if err := w.WriteField("language", c.cfg.Language); err != nil {
			return "", fmt.Errorf("parser: build upload: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("parser: build upload: %w", err)
	}
	payload := body.Bytes()
	contentType := w.FormDataContentType()

	job, err := retry.DoValue(ctx, c.cfg.Retry, "parser.upload", func(ctx context.Context) (jobResponse, error) {
		var job jobResponse
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/parsing/upload", bytes.NewReader(payload))
		if err != nil {
			return job, err
		}
		req.Header.Set("Content-Type", contentType)
		return job, c.do(req, &job)
	})
	if err != nil {
		return "", fmt.Errorf("parser: upload %s: %w", f.Name(), err)
	}
	if job.ID == "" {
		return "", fmt.Errorf("parser: upload %s: response carried no job id", f.Name())
	}
	return job.ID, nil
}

// wait polls the job until it reaches a terminal status or ctx is done.
func (c *HostedClient) wait(ctx context.Context, jobID string, log *slog.Logger) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	path := "/api/parsing/job/" + url.PathEscape(jobID)
	for {
		var job jobResponse
		if err := c.getJSON(ctx, path, &job); err != nil {
			return fmt.Errorf("parser: poll job %s: %w", jobID, err)
		}

		switch job.Status {
		case statusSuccess:
			return nil
		case statusError, statusCancel:
			msg := job.ErrorMessage
			if msg == "" {
				msg = job.Status
			}
			return fmt.Errorf("parser: job %s: %w: %s", jobID, ErrJobFailed, msg)
		}

		if c.cfg.Verbose {
			log.Info("parser: job pending", slog.String("job_id", jobID), slog.String("status", job.Status))
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("parser: job %s: %w", jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// getJSON issues a rate-limited, retried GET and decodes the JSON body into out.
func (c *HostedClient) getJSON(ctx context.Context, path string, out any) error {
	return retry.Do(ctx, c.cfg.Retry, "parser.get", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
		if err != nil {
			return err
		}
		return c.do(req, out)
	})
}

// do waits for the limiter, sends req with auth headers and decodes the response.
func (c *HostedClient) do(req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		// The limiter refuses waits that would overrun the deadline.
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := retry.CheckResponse("parser", resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
