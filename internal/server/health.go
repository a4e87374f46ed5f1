package server

import (
	"context"
	"net/http"
	"time"

	"github.com/sourcegraph/conc/iter"
)

// Check is one dependency probe. It returns nil when the dependency is usable.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HealthReport is the body of GET /health.
type HealthReport struct {
	Status  string            `json:"status"` // "ok" or "degraded"
	Checks  map[string]string `json:"checks"`
	Breaker string            `json:"provider_circuit,omitempty"`
}

// HealthHandler probes every check concurrently.
type HealthHandler struct {
	checks  []Check
	breaker func() string
	timeout time.Duration
}

// NewHealthHandler creates a [HealthHandler]. breaker may be nil.
func NewHealthHandler(breaker func() string, checks ...Check) *HealthHandler {
	return &HealthHandler{checks: checks, breaker: breaker, timeout: 2 * time.Second}
}

func (h *HealthHandler) Routes() []string { return []string{"/health"} }

// Report runs the checks. A check that fails, or an open circuit, degrades the status.
func (h *HealthHandler) Report(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := iter.Map(h.checks, func(c *Check) string {
		if err := c.Probe(ctx); err != nil {
			return err.Error()
		}
		return "ok"
	})

	report := HealthReport{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	for i, c := range h.checks {
		report.Checks[c.Name] = results[i]
		if results[i] != "ok" {
			report.Status = "degraded"
		}
	}
	if h.breaker != nil {
		report.Breaker = h.breaker()
		if report.Breaker == "open" {
			report.Status = "degraded"
		}
	}
	return report
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Report(r.Context())
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
