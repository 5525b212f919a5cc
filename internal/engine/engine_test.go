package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicebrain/engine/internal/budget"
	"github.com/voicebrain/engine/internal/cachelayer"
	"github.com/voicebrain/engine/internal/dialogue"
	"github.com/voicebrain/engine/internal/knowledge"
	"github.com/voicebrain/engine/internal/llm"
	"github.com/voicebrain/engine/internal/response"
	"github.com/voicebrain/engine/internal/router"
	"github.com/voicebrain/engine/internal/scenario"
	"github.com/voicebrain/engine/internal/servicetype"
	"github.com/voicebrain/engine/internal/tenant"
)

func newTestEngine(gw *llm.Gateway, globalTier3 bool) *Engine {
	ledger := budget.NewLedger()
	ledger.SetMonthlyBudget("t1", 10)
	r := router.New(gw, cachelayer.NewCache(cachelayer.NewMemoryStore()), ledger, globalTier3)
	k := knowledge.NewRouter()
	d := dialogue.NewProcessor(gw, nil)
	respEngine := response.NewEngine(1)
	return New(r, k, d, respEngine, nil, nil)
}

func acLeakScenario() tenant.Scenario {
	return tenant.Scenario{
		ScenarioID:          "AC_LEAK",
		Name:                "AC Leak",
		ScenarioType:        tenant.ScenarioFAQ,
		ReplyStrategy:       tenant.ReplyAuto,
		FullReplies:         []tenant.ReplyItem{{Text: "That sounds like a refrigerant or drain line issue.", Weight: 1}},
		Rules:               tenant.MatchRules{KeywordsMustHave: []string{"ac", "leak"}},
		IsEnabledForCompany: true,
	}
}

func TestQuery_TieredRouter_Tier1Match(t *testing.T) {
	e := newTestEngine(llm.NewGateway(llm.Config{}, nil, nil, nil, nil), true)
	tnt := tenant.Tenant{
		ID:                   "t1",
		Use3TierIntelligence: true,
		Thresholds:           tenant.Thresholds{Tier1: 0.5, Tier2: 0.6},
		TemplateGatekeeper:   tenant.TemplateGatekeeper{Enabled: true},
	}
	res := e.Query(context.Background(), QueryInput{
		Tenant:     tnt,
		CallState:  &tenant.CallState{CallID: "c1", TenantID: "t1"},
		Utterance:  "my ac is leaking",
		Candidates: []tenant.Scenario{acLeakScenario()},
	})
	require.NotNil(t, res.Response)
	assert.Equal(t, "That sounds like a refrigerant or drain line issue.", *res.Response)
	assert.Equal(t, "1", res.Metadata.Tier)
}

func TestQuery_TieredRouter_BudgetExceeded_ReturnsNull(t *testing.T) {
	e := newTestEngine(llm.NewGateway(llm.Config{}, nil, nil, nil, nil), true)
	tnt := tenant.Tenant{
		ID:                   "t2", // no ledger budget configured, so Tier 3 is refused
		Use3TierIntelligence: true,
		Thresholds:           tenant.Thresholds{Tier1: 0.9, Tier2: 0.9},
		TemplateGatekeeper:   tenant.TemplateGatekeeper{Enabled: true, EnableLLMFallback: true, MonthlyBudget: 0.1},
	}
	res := e.Query(context.Background(), QueryInput{
		Tenant:     tnt,
		CallState:  &tenant.CallState{CallID: "c1", TenantID: "t2"},
		Utterance:  "explain SEER ratings",
		Candidates: []tenant.Scenario{acLeakScenario()},
	})
	assert.Nil(t, res.Response)
	assert.Equal(t, "tiered_no_match", res.Metadata.Source)
}

func TestQuery_NoRoutersEnabled_FallsToDialogue(t *testing.T) {
	gw := llm.NewGateway(llm.Config{}, fixedProvider{text: `{"reply":"Sure, happy to help.","needsInfo":"none"}`}, nil, nil, nil)
	e := newTestEngine(gw, true)
	tnt := tenant.Tenant{ID: "t1"}
	res := e.Query(context.Background(), QueryInput{
		Tenant:            tnt,
		CallState:         &tenant.CallState{CallID: "c1", TenantID: "t1"},
		Utterance:         "hi there",
		ServiceTypes:      servicetype.DefaultConfig(),
	})
	require.NotNil(t, res.Response)
	assert.Equal(t, "Sure, happy to help.", *res.Response)
}

func TestQuery_PriorityRouter_InHouseFallbackNeverMisses(t *testing.T) {
	e := newTestEngine(llm.NewGateway(llm.Config{}, nil, nil, nil, nil), true)
	tnt := tenant.Tenant{ID: "t1", UsePriorityRouter: true, PriorityFlow: []tenant.KnowledgeSourceConfig{
		{Name: "inHouseFallback", Priority: 1, Enabled: true, Threshold: 0.3},
	}}
	data := knowledge.SourceData{InHouse: knowledge.InHouseFallback{UltimateFallback: "Let me connect you with our team."}}
	res := e.Query(context.Background(), QueryInput{
		Tenant:        tnt,
		CallState:     &tenant.CallState{CallID: "c1", TenantID: "t1"},
		Utterance:     "totally unrelated gibberish",
		KnowledgeData: data,
		MatchContext:  scenario.MatchContext{},
	})
	require.NotNil(t, res.Response)
	assert.Equal(t, "Let me connect you with our team.", *res.Response)
}

type fixedProvider struct{ text string }

func (f fixedProvider) Generate(_ context.Context, _ llm.Request) (llm.Response, error) {
	return llm.Response{Text: f.text, TokensIn: 10, TokensOut: 10}, nil
}
func (f fixedProvider) ModelName() string { return "fixed" }
