package router

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicebrain/engine/internal/budget"
	"github.com/voicebrain/engine/internal/cachelayer"
	"github.com/voicebrain/engine/internal/llm"
	"github.com/voicebrain/engine/internal/scenario"
	"github.com/voicebrain/engine/internal/tenant"
)

func testTenant(id string) tenant.Tenant {
	return tenant.Tenant{
		ID:         id,
		Thresholds: tenant.Thresholds{Tier1: 0.5, Tier2: 0.6},
		TemplateGatekeeper: tenant.TemplateGatekeeper{
			Enabled:           true,
			EnableLLMFallback: true,
			MonthlyBudget:     10,
		},
	}
}

func acLeak() tenant.Scenario {
	return tenant.Scenario{
		ScenarioID:          "AC_LEAK",
		Rules:               tenant.MatchRules{KeywordsMustHave: []string{"ac", "leak"}},
		IsEnabledForCompany: true,
	}
}

func newTestRouter(gw *llm.Gateway, globalTier3 bool) *Router {
	ledger := budget.NewLedger()
	ledger.SetMonthlyBudget("t1", 10)
	return New(gw, cachelayer.NewCache(cachelayer.NewMemoryStore()), ledger, globalTier3)
}

func TestRoute_Tier1Match(t *testing.T) {
	r := newTestRouter(llm.NewGateway(llm.Config{}, nil, nil, nil, nil), true)
	res := r.Route(context.Background(), testTenant("t1"), "my ac is leaking", []tenant.Scenario{acLeak()}, scenario.MatchContext{})
	require.True(t, res.Matched)
	assert.Equal(t, Tier1, res.Tier)
}

func TestRoute_DisabledScenarioNeverMatched(t *testing.T) {
	r := newTestRouter(llm.NewGateway(llm.Config{}, nil, nil, nil, nil), true)
	disabled := acLeak()
	disabled.IsEnabledForCompany = false
	res := r.Route(context.Background(), testTenant("t1"), "my ac is leaking", []tenant.Scenario{disabled}, scenario.MatchContext{})
	assert.False(t, res.Matched)
}

func TestRoute_EmptyQueryDegrades(t *testing.T) {
	r := newTestRouter(llm.NewGateway(llm.Config{}, nil, nil, nil, nil), true)
	res := r.Route(context.Background(), testTenant("t1"), "", []tenant.Scenario{acLeak()}, scenario.MatchContext{})
	assert.False(t, res.Matched)
}

func TestRoute_GatekeeperDisabled_Tier1Only(t *testing.T) {
	r := newTestRouter(llm.NewGateway(llm.Config{}, nil, nil, nil, nil), true)
	tnt := testTenant("t1")
	tnt.TemplateGatekeeper.Enabled = false
	res := r.Route(context.Background(), tnt, "totally unrelated phrase", []tenant.Scenario{acLeak()}, scenario.MatchContext{})
	assert.False(t, res.Matched)
	assert.Equal(t, TierNone, res.Tier)
}

func TestRoute_Tier3BudgetExceeded(t *testing.T) {
	ledger := budget.NewLedger()
	ledger.SetMonthlyBudget("t1", 0.1) // less than EstimatedTier3Cost
	r := New(llm.NewGateway(llm.Config{}, nil, nil, nil, nil), cachelayer.NewCache(cachelayer.NewMemoryStore()), ledger, true)
	tnt := testTenant("t1")
	tnt.TemplateGatekeeper.MonthlyBudget = 0.1
	res := r.Route(context.Background(), tnt, "something nothing matches", []tenant.Scenario{acLeak()}, scenario.MatchContext{})
	assert.False(t, res.Matched)
	assert.Equal(t, "budgetExceeded", res.Warning)
}

func TestRoute_GlobalTier3Disabled(t *testing.T) {
	r := newTestRouter(llm.NewGateway(llm.Config{}, nil, nil, nil, nil), false)
	res := r.Route(context.Background(), testTenant("t1"), "something nothing matches", []tenant.Scenario{acLeak()}, scenario.MatchContext{})
	assert.False(t, res.Matched)
}

type fixedProvider struct{ text string }

func (f fixedProvider) Generate(_ context.Context, _ llm.Request) (llm.Response, error) {
	return llm.Response{Text: f.text, TokensIn: 100, TokensOut: 50}, nil
}
func (f fixedProvider) ModelName() string { return "fixed" }

func TestRoute_Tier3Success_IncrementsSpend(t *testing.T) {
	gw := llm.NewGateway(llm.Config{}, nil, fixedProvider{text: `{"scenarioId":"AC_LEAK","scenarioName":"AC_LEAK","confidence":0.9,"reasoning":"match"}`}, nil, nil)
	ledger := budget.NewLedger()
	ledger.SetMonthlyBudget("t1", 10)
	r := New(gw, cachelayer.NewCache(cachelayer.NewMemoryStore()), ledger, true)

	tnt := testTenant("t1")
	tnt.TemplateGatekeeper.Pricing = tenant.LLMPricing{EstimatedCostPerCall: 0.1}

	res := r.Route(context.Background(), tnt, "totally unrelated phrase that misses tier1 and tier2", []tenant.Scenario{acLeak()}, scenario.MatchContext{})
	require.True(t, res.Matched)
	assert.Equal(t, Tier3, res.Tier)
	assert.Equal(t, 0.1, ledger.Snapshot("t1").CurrentSpend)
}

func TestRoute_CacheHitShortCircuits(t *testing.T) {
	gw := llm.NewGateway(llm.Config{}, nil, fixedProvider{text: `{"scenarioId":"AC_LEAK","scenarioName":"AC_LEAK","confidence":0.9,"reasoning":"match"}`}, nil, nil)
	ledger := budget.NewLedger()
	ledger.SetMonthlyBudget("t1", 10)
	r := New(gw, cachelayer.NewCache(cachelayer.NewMemoryStore()), ledger, true)

	tnt := testTenant("t1")
	tnt.TemplateGatekeeper.Pricing = tenant.LLMPricing{EstimatedCostPerCall: 0.1}
	query := "totally unrelated phrase that misses tier1 and tier2"
	candidates := []tenant.Scenario{acLeak()}

	first := r.Route(context.Background(), tnt, query, candidates, scenario.MatchContext{})
	require.True(t, first.Matched)
	spendAfterFirst := ledger.Snapshot("t1").CurrentSpend

	second := r.Route(context.Background(), tnt, query, candidates, scenario.MatchContext{})
	require.True(t, second.Matched)
	assert.True(t, second.FromCache)
	assert.Equal(t, spendAfterFirst, ledger.Snapshot("t1").CurrentSpend)
}

func TestSetMetrics_TierSelectionCounterIncrements(t *testing.T) {
	r := newTestRouter(llm.NewGateway(llm.Config{}, nil, nil, nil, nil), true)
	reg := prometheus.NewRegistry()
	r.SetMetrics(reg)

	r.Route(context.Background(), testTenant("t1"), "my ac is leaking", []tenant.Scenario{acLeak()}, scenario.MatchContext{})

	got := testutil.ToFloat64(r.selections.WithLabelValues("t1", "tier1"))
	assert.Equal(t, 1.0, got)
}

func TestSetMetrics_NilRegistererIsNoOp(t *testing.T) {
	r := newTestRouter(llm.NewGateway(llm.Config{}, nil, nil, nil, nil), true)
	r.SetMetrics(nil)
	require.NotPanics(t, func() {
		r.Route(context.Background(), testTenant("t1"), "my ac is leaking", []tenant.Scenario{acLeak()}, scenario.MatchContext{})
	})
}
