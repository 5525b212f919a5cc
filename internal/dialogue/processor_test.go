package dialogue

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicebrain/engine/internal/llm"
	"github.com/voicebrain/engine/internal/servicetype"
	"github.com/voicebrain/engine/internal/tenant"
)

type fixedProvider struct {
	text string
	err  error
}

func (f fixedProvider) Generate(_ context.Context, _ llm.Request) (llm.Response, error) {
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Text: f.text, TokensIn: 10, TokensOut: 10}, nil
}
func (f fixedProvider) ModelName() string { return "fixed" }

func testTenant() tenant.Tenant {
	return tenant.Tenant{
		ID:    "t1",
		Trade: "HVAC",
		FrontDeskBehavior: tenant.FrontDeskBehavior{
			Personality:          "Friendly and concise.",
			MaxWordLimit:         40,
			FallbackResponses:    map[string]string{"default": "Let me get someone to help you."},
			MaxLoopsBeforeOffer:  3,
			AntiRepeatSimilarity: 0.9,
		},
	}
}

func newState() *tenant.CallState {
	return &tenant.CallState{CallID: "c1", TenantID: "t1", Phase: tenant.PhaseDiscovery, CreatedAt: time.Now()}
}

func newProcessor(text string, err error) *Processor {
	gw := llm.NewGateway(llm.Config{}, fixedProvider{text: text, err: err}, nil, nil, nil)
	return NewProcessor(gw, nil)
}

func TestProcessTurn_LLMReplyJSON(t *testing.T) {
	p := newProcessor(`{"reply":"Got it, what's your address?","needsInfo":"address"}`, nil)
	out := p.ProcessTurn(context.Background(), Input{
		Tenant:            testTenant(),
		CallState:         newState(),
		Utterance:         "my ac broke, my name is Sam, call me at 555-123-4567",
		ServiceTypeConfig: servicetype.DefaultConfig(),
	})
	require.NotEmpty(t, out.Reply)
	assert.Equal(t, ModeBooking, out.Mode)
	assert.Equal(t, "LLM_DIALOGUE", out.StrategyUsed)
	assert.Contains(t, out.UpdatedState.KnownSlots, "name")
	assert.Contains(t, out.UpdatedState.KnownSlots, "phone")
}

func TestProcessTurn_RawTextFallbackOnInvalidJSON(t *testing.T) {
	p := newProcessor("Sure, I can help with that.", nil)
	out := p.ProcessTurn(context.Background(), Input{
		Tenant:            testTenant(),
		CallState:         newState(),
		Utterance:         "hi there",
		ServiceTypeConfig: servicetype.DefaultConfig(),
	})
	assert.Equal(t, "Sure, I can help with that.", out.Reply)
	assert.Equal(t, ModeDiscovery, out.Mode)
}

func TestProcessTurn_LLMUnavailable_EmergencyFallback(t *testing.T) {
	p := newProcessor("", assert.AnError)
	out := p.ProcessTurn(context.Background(), Input{
		Tenant:            testTenant(),
		CallState:         newState(),
		Utterance:         "hello",
		ServiceTypeConfig: servicetype.DefaultConfig(),
	})
	assert.Equal(t, "Let me get someone to help you.", out.Reply)
}

func TestProcessTurn_ServiceAreaMatch_AnswersFromTenantServiceAreas(t *testing.T) {
	p := newProcessor("", assert.AnError)
	tnt := testTenant()
	tnt.ServiceAreas = []string{"Fort Myers", "Cape Coral"}
	out := p.ProcessTurn(context.Background(), Input{
		Tenant:            tnt,
		CallState:         newState(),
		Utterance:         "do you service Fort Myers?",
		ServiceTypeConfig: servicetype.DefaultConfig(),
	})
	assert.Equal(t, "SERVICE_AREA", out.StrategyUsed)
	assert.True(t, strings.HasPrefix(out.Reply, "Yes, we absolutely service Fort Myers"))
}

func TestProcessTurn_ServiceAreaQuestion_UnknownAreaAcknowledgesWithoutAffirming(t *testing.T) {
	p := newProcessor("", assert.AnError)
	tnt := testTenant()
	tnt.ServiceAreas = []string{"Fort Myers"}
	out := p.ProcessTurn(context.Background(), Input{
		Tenant:            tnt,
		CallState:         newState(),
		Utterance:         "do you service Naples?",
		ServiceTypeConfig: servicetype.DefaultConfig(),
	})
	assert.Equal(t, "SERVICE_AREA", out.StrategyUsed)
	assert.NotContains(t, out.Reply, "Yes, we absolutely service")
}

func TestProcessTurn_AllSlotsPresent_MovesToConfirmation(t *testing.T) {
	p := newProcessor(`{"reply":"All set, see you then!","needsInfo":"none"}`, nil)
	state := newState()
	state.KnownSlots = map[string]tenant.KnownSlot{
		"name":    {Value: "Sam", Confidence: 0.9},
		"phone":   {Value: "555-123-4567", Confidence: 0.9},
		"address": {Value: "123 Main St", Confidence: 0.9},
		"time":    {Value: "tomorrow", Confidence: 0.9},
	}
	out := p.ProcessTurn(context.Background(), Input{
		Tenant:            testTenant(),
		CallState:         state,
		Utterance:         "that works for me",
		ServiceTypeConfig: servicetype.DefaultConfig(),
	})
	assert.Equal(t, ModeConfirmation, out.Mode)
}

func TestProcessTurn_QuickAnswerShortCircuitsLLM(t *testing.T) {
	called := false
	gw := llm.NewGateway(llm.Config{}, fixedProviderFunc(func() (llm.Response, error) {
		called = true
		return llm.Response{Text: `{"reply":"should not be used","needsInfo":"none"}`}, nil
	}), nil, nil, nil)
	p := NewProcessor(gw, nil)

	tnt := testTenant()
	tnt.QuickAnswers = []tenant.QuickAnswer{
		{ID: "hours", Answer: "We're open 8am to 6pm daily.", Triggers: []string{"what are your hours", "when are you open"}, Enabled: true, Priority: 5},
	}

	out := p.ProcessTurn(context.Background(), Input{
		Tenant:            tnt,
		CallState:         newState(),
		Utterance:         "what are your hours today?",
		ServiceTypeConfig: servicetype.DefaultConfig(),
	})
	assert.False(t, called)
	assert.Equal(t, "QUICK_ANSWER", out.StrategyUsed)
	assert.Contains(t, out.Reply, "8am to 6pm")
}

func TestProcessTurn_TriageMatchForcesTriageMode(t *testing.T) {
	p := newProcessor(`{"reply":"Let's figure out what's going on.","needsInfo":"none"}`, nil)
	tnt := testTenant()
	tnt.ProblemTriggers = []string{"no heat"}
	cards := []tenant.TriageCard{
		{ID: "no-heat", Active: true, KeywordsMustHave: []string{"no heat"}, Explanation: "Furnace not producing heat.", Urgency: tenant.UrgencyUrgent},
	}
	out := p.ProcessTurn(context.Background(), Input{
		Tenant:            tnt,
		CallState:         newState(),
		Utterance:         "I have no heat in my house",
		TriageCards:       cards,
		ServiceTypeConfig: servicetype.DefaultConfig(),
	})
	assert.Equal(t, ModeTriage, out.Mode)
}

func TestProcessTurn_EscalationTriggerSetsRescueMode(t *testing.T) {
	p := newProcessor(`{"reply":"I understand, let me help.","needsInfo":"none"}`, nil)
	tnt := testTenant()
	tnt.FrontDeskBehavior.EscalationTriggers = []string{"speak to a manager"}
	out := p.ProcessTurn(context.Background(), Input{
		Tenant:            tnt,
		CallState:         newState(),
		Utterance:         "I want to speak to a manager right now",
		ServiceTypeConfig: servicetype.DefaultConfig(),
	})
	assert.Equal(t, ModeRescue, out.Mode)
	assert.True(t, out.UpdatedState.EscalationRequested)
}

func TestProcessTurn_AntiRepetitionDiverges(t *testing.T) {
	p := newProcessor(`{"reply":"Can I get your name?","needsInfo":"name"}`, nil)
	state := newState()
	state.LastAgentUtterance = "Can I get your name?"
	out := p.ProcessTurn(context.Background(), Input{
		Tenant:            testTenant(),
		CallState:         state,
		Utterance:         "sorry what?",
		ServiceTypeConfig: servicetype.DefaultConfig(),
	})
	assert.Contains(t, out.Reply, "another way")
}

func TestProcessTurn_TraceEmitterFailureDoesNotAffectResult(t *testing.T) {
	gw := llm.NewGateway(llm.Config{}, fixedProvider{text: `{"reply":"hi","needsInfo":"none"}`}, nil, nil, nil)
	p := NewProcessor(gw, panicEmitter{})
	out := p.ProcessTurn(context.Background(), Input{
		Tenant:            testTenant(),
		CallState:         newState(),
		Utterance:         "hello",
		ServiceTypeConfig: servicetype.DefaultConfig(),
	})
	assert.Equal(t, "hi", out.Reply)
}

type panicEmitter struct{}

func (panicEmitter) EmitTurn(map[string]interface{}) { panic("trace sink down") }

type fixedProviderFunc func() (llm.Response, error)

func (f fixedProviderFunc) Generate(_ context.Context, _ llm.Request) (llm.Response, error) { return f() }
func (f fixedProviderFunc) ModelName() string                                               { return "fixed-func" }
