package llm

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voicebrain/engine/internal/logger"
)

// Config selects which provider backs each role and how long a live
// call path is allowed to block a turn.
type Config struct {
	DialogueModel   string
	FallbackModel   string
	DialogueTimeout time.Duration
	FallbackTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DialogueTimeout == 0 {
		c.DialogueTimeout = 4 * time.Second
	}
	if c.FallbackTimeout == 0 {
		c.FallbackTimeout = 5 * time.Second
	}
	return c
}

// Gateway is the sole entry point the rest of the engine uses to reach
// an LLM. It owns exactly two live roles plus one offline-only role;
// nothing else in the engine is permitted to hold a Provider directly.
type Gateway struct {
	cfg      Config
	dialogue Provider
	fallback Provider
	admin    Provider

	calls   *prometheus.CounterVec
	errors  *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewGateway wires already-built role providers; a nil provider leaves
// that role unavailable. Turning a "provider:model" string into a
// Provider is done by the caller (cmd/voicebrain's buildProvider).
func NewGateway(cfg Config, dialogue, fallback, admin Provider, reg prometheus.Registerer) *Gateway {
	g := &Gateway{
		cfg:      cfg.withDefaults(),
		dialogue: dialogue,
		fallback: fallback,
		admin:    admin,
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebrain_llm_calls_total",
			Help: "LLM gateway calls by brain.",
		}, []string{"brain"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebrain_llm_errors_total",
			Help: "LLM gateway call failures by brain.",
		}, []string{"brain"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicebrain_llm_call_duration_seconds",
			Help:    "LLM gateway call latency by brain.",
			Buckets: prometheus.DefBuckets,
		}, []string{"brain"}),
	}
	if reg != nil {
		reg.MustRegister(g.calls, g.errors, g.latency)
	}
	return g
}

func (g *Gateway) call(ctx context.Context, brain Brain, p Provider, timeout time.Duration, req Request) (Response, error) {
	if p == nil {
		return Response{}, unavailable(brain, errNoProvider)
	}

	g.calls.WithLabelValues(string(brain)).Inc()
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := p.Generate(callCtx, req)
	g.latency.WithLabelValues(string(brain)).Observe(time.Since(start).Seconds())
	if err != nil {
		g.errors.WithLabelValues(string(brain)).Inc()
		logger.Default().Warn("llm call failed", "brain", brain, "err", err)
		return Response{}, unavailable(brain, err)
	}
	return resp, nil
}

// CallDialogueLLM drives a single discovery/decision/booking turn.
// Bounded by DialogueTimeout; returns *UnavailableError on any failure.
func (g *Gateway) CallDialogueLLM(ctx context.Context, req Request) (Response, error) {
	return g.call(ctx, BrainDialogue, g.dialogue, g.cfg.DialogueTimeout, req)
}

// CallFallbackLLM is the TieredRouter's Tier-3 last resort when Tier-1
// and Tier-2 scoring both miss. Bounded by
// FallbackTimeout; returns *UnavailableError on any failure.
func (g *Gateway) CallFallbackLLM(ctx context.Context, req Request) (Response, error) {
	return g.call(ctx, BrainFallback, g.fallback, g.cfg.FallbackTimeout, req)
}

// CallAdminLLM is reachable only from config/tenant-authoring tooling
// (cmd/voicebrain's validate path), never from the query hot path. It
// is bounded by a fixed 30-second deadline (or the caller's context,
// whichever ends first).
func (g *Gateway) CallAdminLLM(ctx context.Context, req Request) (Response, error) {
	return g.call(ctx, BrainAdmin, g.admin, 30*time.Second, req)
}

var errNoProvider = providerNotConfigured{}

type providerNotConfigured struct{}

func (providerNotConfigured) Error() string { return "no provider configured for this role" }
