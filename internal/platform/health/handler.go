// Package health serves the liveness, readiness and status probes.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"certify/pkg/platform/httputil"

	"github.com/go-chi/chi/v5"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Readiness states.
const (
	StatusReady    = "ready"
	StatusDegraded = "degraded"
	StatusNotReady = "not_ready"
)

// CheckFunc reports whether a dependency is usable. nil means healthy.
type CheckFunc func(ctx context.Context) error

type check struct {
	fn       CheckFunc
	optional bool
}

// Handler provides health check endpoints.
type Handler struct {
	startTime    time.Time
	environment  string
	networkID    string
	checkTimeout time.Duration

	mu     sync.RWMutex
	checks map[string]check
}

// New creates a health handler for one deployment.
func New(environment, networkID string) *Handler {
	return &Handler{
		startTime:    time.Now(),
		environment:  environment,
		networkID:    networkID,
		checkTimeout: 2 * time.Second,
		checks:       make(map[string]check),
	}
}

// RegisterCheck adds a dependency the ledger cannot serve without. A failing
// check takes the instance out of rotation.
func (h *Handler) RegisterCheck(name string, fn CheckFunc) {
	h.register(name, check{fn: fn})
}

// RegisterOptional adds a dependency whose outage only degrades the
// instance, such as the broker behind the outbox.
func (h *Handler) RegisterOptional(name string, fn CheckFunc) {
	h.register(name, check{fn: fn, optional: true})
}

func (h *Handler) register(name string, c check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = c
}

// Register mounts health check routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleStatus)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}

// LivenessResponse is the response for the liveness probe.
type LivenessResponse struct {
	Status string `json:"status"`
}

// HandleLiveness always answers 200 while the process runs.
func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LivenessResponse{Status: "alive"})
}

// ReadinessResponse is the response for the readiness probe.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleReadiness runs every registered check concurrently. Only a failing
// required check answers 503.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := make(map[string]check, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]error, len(checks))
	)
	for name, c := range checks {
		wg.Go(func() {
			ctx, cancel := context.WithTimeout(r.Context(), h.checkTimeout)
			defer cancel()
			err := c.fn(ctx)
			mu.Lock()
			results[name] = err
			mu.Unlock()
		})
	}
	wg.Wait()

	response := ReadinessResponse{
		Status: StatusReady,
		Checks: make(map[string]string, len(results)),
	}
	for name, err := range results {
		if err == nil {
			response.Checks[name] = "up"
			continue
		}
		response.Checks[name] = "down: " + err.Error()
		switch {
		case !checks[name].optional:
			response.Status = StatusNotReady
		case response.Status == StatusReady:
			response.Status = StatusDegraded
		}
	}

	status := http.StatusOK
	if response.Status == StatusNotReady {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, response)
}

// StatusResponse is the response for the general health status endpoint.
type StatusResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Environment   string `json:"environment"`
	NetworkID     string `json:"network_id"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

// HandleStatus returns version, network and uptime information.
func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:        "healthy",
		Version:       Version,
		Environment:   h.environment,
		NetworkID:     h.networkID,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}
