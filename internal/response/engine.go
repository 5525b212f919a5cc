// Package response implements the ResponseEngine. It turns a
// matched scenario plus delivery channel into caller-facing text,
// honoring the reply-strategy decision matrix and the name-safety
// fallback.
package response

import (
	"math/rand"
	"strings"
	"sync"

	"github.com/voicebrain/engine/internal/placeholder"
	"github.com/voicebrain/engine/internal/tenant"
)

// Channel is the delivery surface. Respond accepts it but does not use
// it: voice, sms and chat get the same strategy order and the same
// reply length.
type Channel string

const (
	ChannelVoice Channel = "voice"
	ChannelSMS   Channel = "sms"
	ChannelChat  Channel = "chat"
)

// Context carries caller-facing placeholder values and the signal that
// drives the Name-Safety Invariant.
type Context struct {
	CallerName    string
	Company       string
	Technician    string
	AppointmentAt string
	CallerInfo    map[string]string
}

func (c Context) hasCallerName() bool {
	return strings.TrimSpace(c.CallerName) != ""
}

func (c Context) placeholderValues() map[string]string {
	values := map[string]string{
		"name":        c.CallerName,
		"company":     c.Company,
		"technician":  c.Technician,
		"appointment": c.AppointmentAt,
	}
	for k, v := range c.CallerInfo {
		values[k] = v
	}
	return values
}

// Result is the caller-facing outcome of one ResponseEngine.Respond call.
type Result struct {
	Text                  string
	StrategyUsed          string
	ScenarioTypeResolved  tenant.ScenarioType
	ReplyStrategyResolved tenant.ReplyStrategy
	FollowUp              tenant.FollowUpMode
	HasCallerName         bool
	Warnings              []string
}

// ErrorNoReplies is the StrategyUsed sentinel when a scenario has no
// usable reply array at all.
const ErrorNoReplies = "ERROR_NO_REPLIES"

// Engine's only state is its RNG, guarded by a mutex; it is safe for
// concurrent use across tenants.
type Engine struct {
	mu   sync.Mutex
	rand *rand.Rand
}

// NewEngine constructs a ResponseEngine backed by a private RNG so two
// engines in the same process never share sampling state.
func NewEngine(seed int64) *Engine {
	return &Engine{rand: rand.New(rand.NewSource(seed))}
}

// Respond selects caller-facing text for sc on the given channel,
// resolving the reply-strategy decision matrix and applying the
// name-safety fallback before weighted sampling.
func (e *Engine) Respond(sc tenant.Scenario, channel Channel, ctx Context) Result {
	strategy := sc.ReplyStrategy
	var warnings []string
	if strategy == tenant.ReplyLLMWrap || strategy == tenant.ReplyLLMContext {
		warnings = append(warnings, "reservedStrategyUsedAsAuto")
		strategy = tenant.ReplyAuto
	}

	hasName := ctx.hasCallerName()
	quick, full, noNameWarn := e.selectArrays(sc, hasName)
	warnings = append(warnings, noNameWarn...)

	items, strategyUsed, degradeWarn := e.chooseItems(sc.ScenarioType, strategy, quick, full)
	warnings = append(warnings, degradeWarn...)
	if len(items) == 0 {
		return Result{
			StrategyUsed:          ErrorNoReplies,
			ScenarioTypeResolved:  sc.ScenarioType,
			ReplyStrategyResolved: strategy,
			FollowUp:              sc.FollowUpMode,
			HasCallerName:         hasName,
			Warnings:              warnings,
		}
	}

	text := e.sample(items)
	resolved := placeholder.Resolve(text, ctx.placeholderValues(), placeholder.Catalog{}, placeholder.Options{LeaveUnknown: false})

	return Result{
		Text:                  resolved.Text,
		StrategyUsed:          strategyUsed,
		ScenarioTypeResolved:  sc.ScenarioType,
		ReplyStrategyResolved: strategy,
		FollowUp:              sc.FollowUpMode,
		HasCallerName:         hasName,
		Warnings:              warnings,
	}
}

// selectArrays implements the name-safety fallback: prefer normal
// arrays when the caller's name is known, else a
// _noName variant, else sanitize the normal array in place.
func (e *Engine) selectArrays(sc tenant.Scenario, hasName bool) (quick, full []tenant.ReplyItem, warnings []string) {
	if hasName {
		return sc.QuickReplies, sc.FullReplies, nil
	}
	if len(sc.QuickRepliesNoName) > 0 || len(sc.FullRepliesNoName) > 0 {
		q := sc.QuickRepliesNoName
		f := sc.FullRepliesNoName
		if len(q) == 0 {
			q = sc.QuickReplies
		}
		if len(f) == 0 {
			f = sc.FullReplies
		}
		return q, f, nil
	}

	q := sanitizeAll(sc.QuickReplies)
	f := sanitizeAll(sc.FullReplies)
	if containsNameToken(sc.QuickReplies) || containsNameToken(sc.FullReplies) {
		warnings = append(warnings, "lazyNoNameFallbackUsed")
	}
	return q, f, warnings
}

func containsNameToken(items []tenant.ReplyItem) bool {
	for _, it := range items {
		if strings.Contains(it.Text, "{name}") {
			return true
		}
	}
	return false
}

func sanitizeAll(items []tenant.ReplyItem) []tenant.ReplyItem {
	out := make([]tenant.ReplyItem, len(items))
	for i, it := range items {
		out[i] = tenant.ReplyItem{Text: sanitizeName(it.Text), Weight: it.Weight}
	}
	return out
}

func sanitizeName(text string) string {
	stripped := strings.ReplaceAll(text, "{name}", "")
	return placeholder.CompactWhitespaceAndPunctuation(stripped)
}

// chooseItems implements the scenario-type by reply-strategy decision
// matrix cell by cell. Each "prefer X, else Y" cell warns only when it
// falls back to Y (repliesDegradedToQuick/repliesDegradedToFull); each
// "warn + X, else Y" cell degrades with a warning even on the primary
// path, because using X there is itself a compromise for that
// scenario type.
func (e *Engine) chooseItems(st tenant.ScenarioType, strategy tenant.ReplyStrategy, quick, full []tenant.ReplyItem) ([]tenant.ReplyItem, string, []string) {
	quickThenFull := func() ([]tenant.ReplyItem, []string) {
		if len(quick) > 0 && len(full) > 0 {
			combined := make([]tenant.ReplyItem, 0, len(quick)+len(full))
			combined = append(combined, quick...)
			combined = append(combined, full...)
			return combined, nil
		}
		if len(full) > 0 {
			return full, nil
		}
		if len(quick) > 0 {
			return quick, nil
		}
		return nil, nil
	}
	preferFull := func() ([]tenant.ReplyItem, []string) {
		if len(full) > 0 {
			return full, nil
		}
		if len(quick) > 0 {
			return quick, []string{"repliesDegradedToQuick"}
		}
		return nil, nil
	}
	preferQuick := func() ([]tenant.ReplyItem, []string) {
		if len(quick) > 0 {
			return quick, nil
		}
		if len(full) > 0 {
			return full, []string{"repliesDegradedToFull"}
		}
		return nil, nil
	}
	warnThenQuick := func() ([]tenant.ReplyItem, []string) {
		if len(quick) > 0 {
			return quick, []string{"quickUsedForFullPreferredType"}
		}
		if len(full) > 0 {
			return full, nil
		}
		return nil, nil
	}

	isNarrativeType := st == tenant.ScenarioFAQ || st == tenant.ScenarioBilling || st == tenant.ScenarioTroubleshoot

	switch strategy {
	case tenant.ReplyFullOnly:
		items, warn := preferFull()
		return items, "FULL_ONLY", warn
	case tenant.ReplyQuickOnly:
		if isNarrativeType {
			items, warn := warnThenQuick()
			return items, "QUICK_ONLY", warn
		}
		items, warn := preferQuick()
		return items, "QUICK_ONLY", warn
	case tenant.ReplyQuickThenFull:
		items, warn := quickThenFull()
		return items, "QUICK_THEN_FULL", warn
	}

	// AUTO, keyed by scenario type per the decision matrix.
	switch st {
	case tenant.ScenarioFAQ, tenant.ScenarioBilling, tenant.ScenarioTroubleshoot:
		items, warn := preferFull()
		return items, "AUTO_FULL", warn
	case tenant.ScenarioSystem:
		items, warn := preferQuick()
		return items, "AUTO_QUICK", warn
	case tenant.ScenarioBooking, tenant.ScenarioEmergency, tenant.ScenarioTransfer:
		items, warn := quickThenFull()
		return items, "AUTO_QUICK_THEN_FULL", warn
	case tenant.ScenarioSmallTalk:
		items, warn := preferQuick()
		return items, "AUTO_QUICK", warn
	default:
		items, warn := preferFull()
		return items, "AUTO_FULL", warn
	}
}

// sample performs cumulative-weight sampling over items with
// X ∈ [0, Σw); an absent weight defaults to 1.
func (e *Engine) sample(items []tenant.ReplyItem) string {
	var total float64
	for _, it := range items {
		w := it.Weight
		if w <= 0 {
			w = 1
		}
		total += w
	}
	if total <= 0 {
		return items[0].Text
	}

	e.mu.Lock()
	x := e.rand.Float64() * total
	e.mu.Unlock()
	var cumulative float64
	for _, it := range items {
		w := it.Weight
		if w <= 0 {
			w = 1
		}
		cumulative += w
		if x < cumulative {
			return it.Text
		}
	}
	return items[len(items)-1].Text
}
