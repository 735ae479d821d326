package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/docqa-go/internal/logging"
)

// pingTimeout bounds each dependency ping during a readiness check.
const pingTimeout = 5 * time.Second

// Pinger is implemented by any dependency that can report its own
// reachability. Implementations must be safe for concurrent use.
type Pinger interface {
	// Ping returns nil when the dependency is usable.
	Ping(ctx context.Context) error
	// Name is the label used in readiness responses (e.g. "qdrant").
	Name() string
}

// readyCheck is the outcome of one Pinger.
type readyCheck struct {
	// Name is the Pinger's label.
	Name string `json:"name"`
	// OK is true when Ping returned nil.
	OK bool `json:"ok"`
	// Error is the Ping error text, empty on success.
	Error string `json:"error,omitempty"`
}

// readyResponse is the body of GET /api/ready.
type readyResponse struct {
	// Ready is true when every check passed.
	Ready bool `json:"ready"`
	// Checks lists one entry per configured Pinger, in registration order.
	Checks []readyCheck `json:"checks"`
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady handles GET /api/ready. It returns 200 when every ping
// passes and 503 otherwise, with one check per pinger.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := readyResponse{Ready: true, Checks: []readyCheck{}}
	for _, p := range s.pingers {
		pingCtx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		err := p.Ping(pingCtx)
		cancel()

		check := readyCheck{Name: p.Name(), OK: err == nil}
		if err != nil {
			check.Error = err.Error()
			resp.Ready = false
			log.Warn("readiness check failed",
				slog.String("dependency", p.Name()),
				slog.Any("error", err),
			)
		}
		resp.Checks = append(resp.Checks, check)
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
