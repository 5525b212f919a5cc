// Package obs composes the engine's Prometheus registry and wires it
// into every component that exposes a SetMetrics hook, exactly once,
// behind a single lifecycle object a server command constructs at
// startup.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voicebrain/engine/internal/budget"
	"github.com/voicebrain/engine/internal/router"
)

// Manager owns the process-wide metrics registry. A nil *Manager is a
// valid, inert metrics sink: every method degrades to returning a
// 503-reporting handler or skipping registration, so a command that
// never constructs one still runs.
type Manager struct {
	registry *prometheus.Registry
}

// NewManager creates a Manager with a fresh registry. enabled false
// returns a Manager whose Registerer is nil, so every wired
// component's SetMetrics call becomes a no-op.
func NewManager(enabled bool) *Manager {
	if !enabled {
		return &Manager{}
	}
	return &Manager{registry: prometheus.NewRegistry()}
}

// Registerer exposes the underlying registry as a prometheus.Registerer,
// or nil when metrics are disabled.
func (m *Manager) Registerer() prometheus.Registerer {
	if m == nil || m.registry == nil {
		return nil
	}
	return m.registry
}

// WireLedger registers a budget.Ledger's spend gauge.
func (m *Manager) WireLedger(l *budget.Ledger) {
	if m == nil || l == nil {
		return
	}
	l.SetMetrics(m.Registerer())
}

// WireRouter registers a router.Router's tier-selection counter.
func (m *Manager) WireRouter(r *router.Router) {
	if m == nil || r == nil {
		return
	}
	r.SetMetrics(m.Registerer())
}

// Handler returns the /metrics HTTP handler. Disabled metrics report
// 503 rather than panicking a caller that wires the handler
// unconditionally.
func (m *Manager) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics not enabled"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Enabled reports whether this Manager backs a live registry.
func (m *Manager) Enabled() bool {
	return m != nil && m.registry != nil
}
