package response

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicebrain/engine/internal/tenant"
)

func faqScenario() tenant.Scenario {
	return tenant.Scenario{
		ScenarioID:    "AC_LEAK",
		ScenarioType:  tenant.ScenarioFAQ,
		ReplyStrategy: tenant.ReplyAuto,
		FullReplies:   []tenant.ReplyItem{{Text: "Hi {name}, that sounds like a refrigerant leak.", Weight: 1}},
		QuickReplies:  []tenant.ReplyItem{{Text: "Got it, {name}.", Weight: 1}},
	}
}

func TestRespond_AutoFAQ_PrefersFull(t *testing.T) {
	e := NewEngine(1)
	res := e.Respond(faqScenario(), ChannelVoice, Context{CallerName: "Sam"})
	assert.Equal(t, "AUTO_FULL", res.StrategyUsed)
	assert.Contains(t, res.Text, "Sam")
	assert.True(t, res.HasCallerName)
}

func TestRespond_NoCallerName_SanitizesNameToken(t *testing.T) {
	e := NewEngine(1)
	sc := faqScenario()
	sc.ReplyStrategy = tenant.ReplyFullOnly
	res := e.Respond(sc, ChannelVoice, Context{})
	assert.False(t, strings.Contains(res.Text, "{name}"))
	assert.Contains(t, res.Warnings, "lazyNoNameFallbackUsed")
}

func TestRespond_NoNameVariant_UsedWhenPresent(t *testing.T) {
	e := NewEngine(1)
	sc := faqScenario()
	sc.FullRepliesNoName = []tenant.ReplyItem{{Text: "That sounds like a refrigerant leak.", Weight: 1}}
	sc.ReplyStrategy = tenant.ReplyFullOnly
	res := e.Respond(sc, ChannelVoice, Context{})
	assert.Equal(t, "That sounds like a refrigerant leak.", res.Text)
	assert.NotContains(t, res.Warnings, "lazyNoNameFallbackUsed")
}

func TestRespond_QuickOnlyOnNarrativeType_Warns(t *testing.T) {
	e := NewEngine(1)
	sc := faqScenario()
	sc.ReplyStrategy = tenant.ReplyQuickOnly
	res := e.Respond(sc, ChannelVoice, Context{CallerName: "Sam"})
	assert.Equal(t, "QUICK_ONLY", res.StrategyUsed)
	assert.Contains(t, res.Warnings, "quickUsedForFullPreferredType")
}

func TestRespond_QuickThenFull_Combines(t *testing.T) {
	e := NewEngine(1)
	sc := faqScenario()
	sc.ScenarioType = tenant.ScenarioBooking
	sc.ReplyStrategy = tenant.ReplyAuto
	for i := 0; i < 20; i++ {
		res := e.Respond(sc, ChannelVoice, Context{CallerName: "Sam"})
		assert.Equal(t, "AUTO_QUICK_THEN_FULL", res.StrategyUsed)
		require.NotEmpty(t, res.Text)
	}
}

func TestRespond_NoReplies_ReturnsErrorSentinel(t *testing.T) {
	e := NewEngine(1)
	sc := tenant.Scenario{ScenarioID: "EMPTY", ScenarioType: tenant.ScenarioFAQ, ReplyStrategy: tenant.ReplyAuto}
	res := e.Respond(sc, ChannelVoice, Context{CallerName: "Sam"})
	assert.Equal(t, ErrorNoReplies, res.StrategyUsed)
	assert.Empty(t, res.Text)
}

func TestRespond_ReservedStrategy_BehavesAsAuto(t *testing.T) {
	e := NewEngine(1)
	sc := faqScenario()
	sc.ReplyStrategy = tenant.ReplyLLMWrap
	res := e.Respond(sc, ChannelVoice, Context{CallerName: "Sam"})
	assert.Equal(t, tenant.ReplyAuto, res.ReplyStrategyResolved)
	assert.Contains(t, res.Warnings, "reservedStrategyUsedAsAuto")
}

func TestSample_UniformWhenWeightsAbsent(t *testing.T) {
	e := NewEngine(42)
	items := []tenant.ReplyItem{{Text: "a"}, {Text: "b"}, {Text: "c"}}
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		seen[e.sample(items)] = true
	}
	assert.True(t, len(seen) > 1)
}
