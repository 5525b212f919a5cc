// Package router implements the TieredRouter. It sequences
// Tier-1 rule matching, Tier-2 semantic matching, and a budget-gated
// Tier-3 LLM fallback for a single query, sharing one cache across all
// three tiers.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voicebrain/engine/internal/budget"
	"github.com/voicebrain/engine/internal/cachelayer"
	"github.com/voicebrain/engine/internal/llm"
	"github.com/voicebrain/engine/internal/logger"
	"github.com/voicebrain/engine/internal/scenario"
	"github.com/voicebrain/engine/internal/semantic"
	"github.com/voicebrain/engine/internal/tenant"
)

const cacheTTL = 5 * time.Minute

// EstimatedTier3Cost is the pre-call budget check amount; the real
// cost, computed from actual token usage, replaces
// it once the call returns.
const EstimatedTier3Cost = 0.50

// Tier identifies which stage produced a Result.
type Tier int

const (
	TierNone Tier = iota
	Tier1
	Tier2
	Tier3
)

// Result is the TieredRouter outcome for one query.
type Result struct {
	Matched    bool
	Scenario   *tenant.Scenario
	Confidence float64
	Tier       Tier
	Cost       float64
	FromCache  bool
	Warning    string // "budgetExceeded" | "budgetWarning" | "routingError" | ""
}

// Router wires Tier-1/Tier-2/Tier-3 and the shared cache/budget state.
type Router struct {
	tier1   *scenario.HybridScenarioSelector
	tier2   *semantic.Matcher
	gateway *llm.Gateway
	cache   *cachelayer.Cache
	ledger  *budget.Ledger

	globalTier3Enabled bool

	selections *prometheus.CounterVec
}

// New constructs a TieredRouter. globalTier3Enabled mirrors the
// TIER_3_ENABLED env var gate.
func New(gateway *llm.Gateway, cache *cachelayer.Cache, ledger *budget.Ledger, globalTier3Enabled bool) *Router {
	return &Router{
		tier1:              scenario.NewHybridScenarioSelector(),
		tier2:              semantic.NewMatcher(),
		gateway:            gateway,
		cache:              cache,
		ledger:             ledger,
		globalTier3Enabled: globalTier3Enabled,
	}
}

// SetMetrics registers the tier-selection counter against reg. Optional:
// a Router with no metrics registered behaves identically, just unobserved.
func (r *Router) SetMetrics(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	r.selections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "voicebrain_router_tier_selections_total",
		Help: "Count of queries resolved by each routing tier.",
	}, []string{"tenant_id", "tier"})
	reg.MustRegister(r.selections)
}

func (r *Router) observeTier(tenantID string, tier Tier) {
	if r.selections == nil {
		return
	}
	r.selections.WithLabelValues(tenantID, tierLabel(tier)).Inc()
}

func tierLabel(t Tier) string {
	switch t {
	case Tier1:
		return "tier1"
	case Tier2:
		return "tier2"
	case Tier3:
		return "tier3"
	default:
		return "none"
	}
}

func cacheKey(tenantID, normalizedQuery string) string {
	return cachelayer.TenantKey("ai-brain", tenantID, cachelayer.HashKey(normalizedQuery))
}

// Route runs the full tiered sequence for one query. An empty query or
// tenant ID returns an unmatched Result rather than erroring; a
// disabled gatekeeper limits routing to Tier 1.
func (r *Router) Route(ctx context.Context, t tenant.Tenant, query string, candidates []tenant.Scenario, matchCtx scenario.MatchContext) Result {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" || t.ID == "" {
		return Result{Matched: false}
	}

	key := cacheKey(t.ID, normalized)
	if cached, ok := r.cache.Get(ctx, key); ok {
		var res Result
		if err := json.Unmarshal(cached, &res); err == nil {
			res.FromCache = true
			return res
		}
	}

	result := r.route(ctx, t, query, normalized, candidates, matchCtx)
	r.observeTier(t.ID, result.Tier)
	if result.Matched {
		if payload, err := json.Marshal(result); err == nil {
			r.cache.Set(ctx, key, payload, cacheTTL)
		}
	}
	return result
}

func (r *Router) route(ctx context.Context, t tenant.Tenant, query, normalized string, candidates []tenant.Scenario, matchCtx scenario.MatchContext) Result {
	gate := t.TemplateGatekeeper
	candidates = onlyEnabled(candidates)

	// Tier 1.
	tier1Res := r.tier1.Select(query, candidates, matchCtx, t.FillerWords)
	if tier1Res.Scenario != nil && tier1Res.Confidence >= t.Thresholds.Tier1 {
		return Result{Matched: true, Scenario: tier1Res.Scenario, Confidence: tier1Res.Confidence, Tier: Tier1}
	}

	// An absent gatekeeper config degrades to Tier-1-only basic match.
	if !gate.Enabled {
		return Result{Matched: false, Tier: TierNone}
	}

	// Tier 2.
	tier2Res, err := r.tier2.Select(ctx, t.ID, query, candidates)
	if err == nil && tier2Res.Scenario != nil && tier2Res.Confidence >= t.Thresholds.Tier2 {
		return Result{Matched: true, Scenario: tier2Res.Scenario, Confidence: tier2Res.Confidence, Tier: Tier2}
	}

	// Tier 3 gating.
	if !gate.EnableLLMFallback || !r.globalTier3Enabled {
		return Result{Matched: false, Tier: TierNone}
	}
	if !r.ledger.TryReserve(t.ID, EstimatedTier3Cost) {
		return Result{Matched: false, Tier: TierNone, Warning: "budgetExceeded"}
	}

	return r.tier3(ctx, t, query, candidates)
}

func (r *Router) tier3(ctx context.Context, t tenant.Tenant, query string, candidates []tenant.Scenario) Result {
	prompt := buildRoutingPrompt(query, candidates)

	resp, err := r.gateway.CallFallbackLLM(ctx, llm.Request{
		SystemPrompt: "You are a routing classifier. Pick the single best-matching scenario ID for the caller's utterance.",
		Messages:     []llm.Message{{Role: "user", Content: prompt}},
		JSONMode:     true,
		Temperature:  0.2,
		MaxTokens:    200,
	})
	if err != nil {
		logger.Default().Warn("tier3 routing error", "tenant", t.ID, "err", err)
		return Result{Matched: false, Tier: TierNone, Warning: "routingError"}
	}

	var parsed struct {
		ScenarioID   string  `json:"scenarioId"`
		ScenarioName string  `json:"scenarioName"`
		Confidence   float64 `json:"confidence"`
		Reasoning    string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(resp.Text), &parsed); err != nil {
		logger.Default().Warn("tier3 response parse error", "tenant", t.ID, "err", err)
		return Result{Matched: false, Tier: TierNone, Warning: "routingError"}
	}

	var matched *tenant.Scenario
	for i := range candidates {
		if candidates[i].ScenarioID == parsed.ScenarioID {
			matched = &candidates[i]
			break
		}
	}
	if matched == nil {
		return Result{Matched: false, Tier: TierNone, Warning: "routingError"}
	}

	cost := actualCost(resp, t.TemplateGatekeeper.Pricing)
	snap := r.ledger.IncrementSpend(t.ID, cost)

	result := Result{Matched: true, Scenario: matched, Confidence: parsed.Confidence, Tier: Tier3, Cost: cost}
	if snap.UsageRatio() >= budget.BudgetWarningThreshold {
		result.Warning = "budgetWarning"
	}
	return result
}

func actualCost(resp llm.Response, pricing tenant.LLMPricing) float64 {
	if pricing.PricePerThousandIn == 0 && pricing.PricePerThousandOut == 0 {
		return pricing.EstimatedCostPerCall
	}
	in := float64(resp.TokensIn) / 1000 * pricing.PricePerThousandIn
	out := float64(resp.TokensOut) / 1000 * pricing.PricePerThousandOut
	return in + out
}

// onlyEnabled strips isEnabledForCompany=false scenarios before any
// tier scores them, mirroring knowledge.Router's own guard so a
// disabled scenario can never be returned by either routing path.
func onlyEnabled(candidates []tenant.Scenario) []tenant.Scenario {
	out := make([]tenant.Scenario, 0, len(candidates))
	for _, sc := range candidates {
		if sc.Enabled() {
			out = append(out, sc)
		}
	}
	return out
}

func buildRoutingPrompt(query string, candidates []tenant.Scenario) string {
	var b strings.Builder
	b.WriteString("Caller said: \"")
	b.WriteString(query)
	b.WriteString("\"\n\nActive scenarios:\n")
	for _, sc := range candidates {
		fmt.Fprintf(&b, "- id=%s name=%s\n", sc.ScenarioID, sc.Name)
	}
	b.WriteString("\nRespond with JSON: {\"scenarioId\": \"...\", \"scenarioName\": \"...\", \"confidence\": 0.0-1.0, \"reasoning\": \"...\"}")
	return b.String()
}
