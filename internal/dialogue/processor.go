// Package dialogue drives the LLM-backed conversational turn for
// tenants that run neither the tiered router nor the priority knowledge
// router (a miss on either router does not fall through to it),
// assembling a bounded prompt from call history and
// tenant behavior config, calling the dialogue model, and merging the
// parsed result back into call state.
package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/voicebrain/engine/internal/llm"
	"github.com/voicebrain/engine/internal/logger"
	"github.com/voicebrain/engine/internal/placeholder"
	"github.com/voicebrain/engine/internal/servicetype"
	"github.com/voicebrain/engine/internal/slot"
	"github.com/voicebrain/engine/internal/tenant"
)

// Mode is the turn's resulting conversational mode.
type Mode string

const (
	ModeDiscovery     Mode = "discovery"
	ModeBooking       Mode = "booking"
	ModeConfirmation  Mode = "confirmation"
	ModeTriage        Mode = "triage"
	ModeRescue        Mode = "rescue"
)

// Signals are turn-level behavioral flags derived from both LLM output
// and tenant trigger lists.
type Signals struct {
	Frustrated  bool
	WantsHuman  bool
}

// Input is everything one processTurn call needs beyond the utterance.
type Input struct {
	Tenant       tenant.Tenant
	CallState    *tenant.CallState
	Utterance    string
	TriageCards  []tenant.TriageCard
	ServiceTypeConfig servicetype.Config
}

// Output is the DialogueTurnProcessor's per-turn result.
type Output struct {
	Reply         string
	UpdatedState  *tenant.CallState
	Signals       Signals
	Mode          Mode
	NextGoal      string
	StrategyUsed  string
}

// TraceEmitter receives a fire-and-forget structured turn record; a
// failure here must never affect the turn result.
type TraceEmitter interface {
	EmitTurn(record map[string]interface{})
}

type noopEmitter struct{}

func (noopEmitter) EmitTurn(map[string]interface{}) {}

// Processor is stateless; CallState carries all per-call state.
type Processor struct {
	gateway *llm.Gateway
	tracer  TraceEmitter
}

// NewProcessor wires a DialogueTurnProcessor. A nil tracer defaults to
// a no-op emitter so tracing is always optional.
func NewProcessor(gateway *llm.Gateway, tracer TraceEmitter) *Processor {
	if tracer == nil {
		tracer = noopEmitter{}
	}
	return &Processor{gateway: gateway, tracer: tracer}
}

// ProcessTurn runs the full per-turn pipeline: shortcut responders,
// slot extraction, service-type resolution, prompt assembly, the
// dialogue LLM call, and state merge.
func (p *Processor) ProcessTurn(ctx context.Context, in Input) Output {
	state := in.CallState
	state.TurnCount++
	state.LastActivityAt = time.Now()
	state.AppendHistory(tenant.Turn{Speaker: "caller", Text: in.Utterance, At: time.Now()})

	behavior := in.Tenant.FrontDeskBehavior

	if reply, goal, ok := matchQuickAnswer(in.Tenant.QuickAnswers, state, in.Utterance); ok {
		return p.finalize(in, state, reply, ModeDiscovery, goal, Signals{}, "QUICK_ANSWER")
	}

	if reply, ok := matchServiceArea(in.Utterance, in.Tenant.ServiceAreas); ok {
		return p.finalize(in, state, reply, ModeDiscovery, "continue discovery", Signals{}, "SERVICE_AREA")
	}

	forceTriage := false
	var triageCard *tenant.TriageCard
	if card, ok := matchTriage(in.Utterance, in.Tenant.ProblemTriggers, in.Tenant.Trade, in.TriageCards); ok {
		triageCard = card
		if state.Phase != tenant.PhaseBooking {
			forceTriage = true
		}
	}

	extracted := slot.ExtractAll(in.Utterance, slot.Context{})
	state.KnownSlots, _ = mergeIntoCallState(state.KnownSlots, extracted)

	state.ServiceTypeResolution = servicetype.Resolve(state.ServiceTypeResolution, in.Utterance, servicetype.Options{
		SessionType: state.ServiceTypeResolution.CanonicalType,
		Config:      in.ServiceTypeConfig,
	})
	servicetype.MirrorLegacyFields(state, state.ServiceTypeResolution)

	systemPrompt := buildSystemPrompt(in.Tenant, state, triageCard)
	messages := buildBoundedHistory(state.History)

	resp, err := p.gateway.CallDialogueLLM(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		Messages:     messages,
		JSONMode:     true,
		Temperature:  0.6,
		MaxTokens:    150,
	})

	var parsed dialogueLLMOutput
	if err != nil {
		logger.Default().Warn("dialogue LLM unavailable, using emergency fallback", "call", state.CallID, "err", err)
		parsed.Reply = emergencyFallback(behavior)
		parsed.NeedsInfo = "none"
	} else {
		parsed = parseDialogueResponse(resp.Text)
	}

	if isRepetitive(parsed.Reply, state.LastAgentUtterance, behavior.AntiRepeatSimilarity) {
		parsed.Reply = diverge(parsed.Reply)
	}

	mode := inferMode(state, parsed)
	if forceTriage && mode != ModeBooking {
		mode = ModeTriage
	}

	state.KnownSlots, _ = mergeIntoCallState(state.KnownSlots, filledSlotsToExtracted(parsed.FilledSlots))

	signals := detectSignals(in.Utterance, behavior, parsed)
	if signals.Frustrated {
		state.Frustrated = true
	}
	if signals.WantsHuman || (state.SameQuestionCycles >= behavior.MaxLoopsBeforeOffer && behavior.MaxLoopsBeforeOffer > 0) {
		state.EscalationRequested = true
		mode = ModeRescue
	}

	return p.finalize(in, state, parsed.Reply, mode, nextGoal(mode, state), signals, "LLM_DIALOGUE")
}

func (p *Processor) finalize(in Input, state *tenant.CallState, reply string, mode Mode, goal string, signals Signals, strategy string) Output {
	resolved := placeholder.Resolve(reply, in.Tenant.PlaceholderValues, placeholder.Catalog{}, placeholder.Options{})
	state.LastAgentUtterance = resolved.Text
	state.AppendHistory(tenant.Turn{Speaker: "agent", Text: resolved.Text, At: time.Now()})

	out := Output{
		Reply:        resolved.Text,
		UpdatedState: state,
		Signals:      signals,
		Mode:         mode,
		NextGoal:     goal,
		StrategyUsed: strategy,
	}

	func() {
		defer func() { _ = recover() }()
		p.tracer.EmitTurn(map[string]interface{}{
			"callId":    state.CallID,
			"tenantId":  state.TenantID,
			"turn":      state.TurnCount,
			"utterance": in.Utterance,
			"mode":      string(mode),
			"strategy":  strategy,
			"reply":     resolved.Text,
		})
	}()

	return out
}

type dialogueLLMOutput struct {
	Reply          string             `json:"reply"`
	NeedsInfo      string             `json:"needsInfo"`
	Phase          string             `json:"phase,omitempty"`
	ProblemSummary string             `json:"problemSummary,omitempty"`
	WantsBooking   bool               `json:"wantsBooking,omitempty"`
	Confidence     float64            `json:"confidence,omitempty"`
	FilledSlots    map[string]string  `json:"filledSlots,omitempty"`
	Signals        struct {
		Frustrated bool `json:"frustrated,omitempty"`
		WantsHuman bool `json:"wantsHuman,omitempty"`
	} `json:"signals,omitempty"`
}

// parseDialogueResponse falls back to raw text when the model didn't
// return valid JSON.
func parseDialogueResponse(raw string) dialogueLLMOutput {
	var out dialogueLLMOutput
	trimmed := strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return dialogueLLMOutput{Reply: raw, NeedsInfo: "none"}
	}
	if out.Reply == "" {
		out.Reply = raw
	}
	if out.NeedsInfo == "" {
		out.NeedsInfo = "none"
	}
	return out
}

func requiredSlotsPresent(known map[string]tenant.KnownSlot) bool {
	required := []string{string(slot.SlotName), string(slot.SlotPhone), string(slot.SlotAddress), string(slot.SlotTime)}
	for _, r := range required {
		if _, ok := known[r]; !ok {
			return false
		}
	}
	return true
}

// inferMode resolves the turn's mode: all four required slots present
// -> confirmation; needsInfo != none -> booking; else discovery. An
// LLM-provided phase can override, but never moves BOOKING backward
// to DISCOVERY.
func inferMode(state *tenant.CallState, parsed dialogueLLMOutput) Mode {
	mode := ModeDiscovery
	if parsed.NeedsInfo != "none" && parsed.NeedsInfo != "" {
		mode = ModeBooking
	}
	if requiredSlotsPresent(state.KnownSlots) {
		mode = ModeConfirmation
	}

	if parsed.Phase != "" {
		newPhase := tenant.Phase(strings.ToUpper(parsed.Phase))
		if state.Phase == tenant.PhaseBooking && newPhase == tenant.PhaseDiscovery {
			newPhase = tenant.PhaseBooking // never move backward
		}
		state.Phase = newPhase
		mode = phaseToMode(newPhase, mode)
	} else {
		state.Phase = modeToPhase(mode)
	}

	return mode
}

func phaseToMode(phase tenant.Phase, fallback Mode) Mode {
	switch phase {
	case tenant.PhaseBooking:
		return ModeBooking
	case tenant.PhaseConfirmation:
		return ModeConfirmation
	case tenant.PhaseDiscovery, tenant.PhaseDecision:
		return fallback
	}
	return fallback
}

func modeToPhase(mode Mode) tenant.Phase {
	switch mode {
	case ModeBooking:
		return tenant.PhaseBooking
	case ModeConfirmation:
		return tenant.PhaseConfirmation
	default:
		return tenant.PhaseDiscovery
	}
}

func nextGoal(mode Mode, state *tenant.CallState) string {
	switch mode {
	case ModeBooking:
		if name, ok := slot.NextMissingSlot(toExtracted(state.KnownSlots), slot.AllSlots); ok {
			return "collect:" + string(name)
		}
		return "confirm booking"
	case ModeConfirmation:
		return "confirm and close"
	case ModeTriage:
		return "diagnose and offer booking"
	case ModeRescue:
		return "offer human transfer"
	default:
		return "continue discovery"
	}
}

func toExtracted(known map[string]tenant.KnownSlot) map[slot.Name]slot.Extracted {
	out := make(map[slot.Name]slot.Extracted, len(known))
	for k, v := range known {
		out[slot.Name(k)] = slot.Extracted{Value: v.Value, Confidence: v.Confidence, PatternSource: v.PatternSource}
	}
	return out
}

func mergeIntoCallState(known map[string]tenant.KnownSlot, extracted map[slot.Name]slot.Extracted) (map[string]tenant.KnownSlot, int) {
	if known == nil {
		known = map[string]tenant.KnownSlot{}
	}
	merged, n := slot.MergeSlots(toExtracted(known), extracted)
	out := make(map[string]tenant.KnownSlot, len(merged))
	for k, v := range merged {
		out[string(k)] = tenant.KnownSlot{Value: v.Value, Confidence: v.Confidence, PatternSource: v.PatternSource, TurnProvided: true}
	}
	return out, n
}

func filledSlotsToExtracted(filled map[string]string) map[slot.Name]slot.Extracted {
	out := make(map[slot.Name]slot.Extracted, len(filled))
	for k, v := range filled {
		out[slot.Name(k)] = slot.Extracted{Value: v, Confidence: 0.9, PatternSource: "llm"}
	}
	return out
}

// buildBoundedHistory keeps the last 6 turns, each truncated to ~200
// chars.
func buildBoundedHistory(history []tenant.Turn) []llm.Message {
	start := 0
	if len(history) > 6 {
		start = len(history) - 6
	}
	out := make([]llm.Message, 0, len(history)-start)
	for _, t := range history[start:] {
		role := "user"
		if t.Speaker == "agent" {
			role = "assistant"
		}
		text := t.Text
		if len(text) > 200 {
			text = text[:200]
		}
		out = append(out, llm.Message{Role: role, Content: text})
	}
	return out
}

func buildSystemPrompt(t tenant.Tenant, state *tenant.CallState, triage *tenant.TriageCard) string {
	b := t.FrontDeskBehavior
	var sb strings.Builder

	if b.Personality != "" {
		sb.WriteString(b.Personality)
		sb.WriteString("\n")
	}
	if b.MaxWordLimit > 0 {
		fmt.Fprintf(&sb, "Keep replies under %d words.\n", b.MaxWordLimit)
	}
	if len(b.ForbiddenPhrases) > 0 {
		fmt.Fprintf(&sb, "Never say any of: %s.\n", strings.Join(b.ForbiddenPhrases, ", "))
	}

	if len(state.KnownSlots) > 0 {
		sb.WriteString("Known info: ")
		first := true
		for k, v := range state.KnownSlots {
			if !first {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%s", k, v.Value)
			first = false
		}
		sb.WriteString("\n")
	}
	if missing, ok := slot.NextMissingSlot(toExtracted(state.KnownSlots), slot.AllSlots); ok {
		fmt.Fprintf(&sb, "Still need: %s.\n", missing)
		if q, ok := b.BookingSlotQuestions[string(missing)]; ok {
			fmt.Fprintf(&sb, "Ask: %q\n", q)
		}
	}

	if triage != nil {
		fmt.Fprintf(&sb, "Triage: %s (urgency=%s). Ask: %s\n", triage.Explanation, triage.Urgency, strings.Join(triage.DiagnosticQuestions, "; "))
	}

	if state.LastAgentUtterance != "" {
		fmt.Fprintf(&sb, "YOU JUST SAID: %q — say something DIFFERENT this turn.\n", state.LastAgentUtterance)
	}
	fmt.Fprintf(&sb, "Turn number: %d.\n", state.TurnCount)
	sb.WriteString(`Respond with compact JSON: {"reply": "...", "needsInfo": "<slotId or none>"}. You may optionally include "phase", "problemSummary", "wantsBooking", "confidence", "filledSlots", "signals".`)

	return sb.String()
}

func emergencyFallback(b tenant.FrontDeskBehavior) string {
	if r, ok := b.FallbackResponses["emergency"]; ok {
		return r
	}
	if r, ok := b.FallbackResponses["default"]; ok {
		return r
	}
	return "I'm having trouble understanding — let me connect you with someone who can help."
}

// isRepetitive compares reply against the agent's last utterance using
// a bounded word-overlap ratio; a zero threshold disables the check.
func isRepetitive(reply, last string, threshold float64) bool {
	if threshold <= 0 || last == "" || reply == "" {
		return false
	}
	return similarity(reply, last) >= threshold
}

func similarity(a, b string) float64 {
	aw := wordsOf(a)
	bw := wordsOf(b)
	if len(aw) == 0 || len(bw) == 0 {
		return 0
	}
	overlap := 0
	for w := range aw {
		if bw[w] {
			overlap++
		}
	}
	union := len(aw) + len(bw) - overlap
	if union == 0 {
		return 0
	}
	return float64(overlap) / float64(union)
}

func wordsOf(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = true
	}
	return out
}

func diverge(reply string) string {
	return "Let me put that another way. " + reply
}

func detectSignals(utterance string, b tenant.FrontDeskBehavior, parsed dialogueLLMOutput) Signals {
	s := Signals{Frustrated: parsed.Signals.Frustrated, WantsHuman: parsed.Signals.WantsHuman}
	lower := strings.ToLower(utterance)
	if len(b.FrustrationTriggers) > 0 {
		for _, trig := range b.FrustrationTriggers {
			if trig != "" && strings.Contains(lower, strings.ToLower(trig)) {
				s.Frustrated = true
			}
		}
	}
	if len(b.EscalationTriggers) > 0 {
		for _, trig := range b.EscalationTriggers {
			if trig != "" && strings.Contains(lower, strings.ToLower(trig)) {
				s.WantsHuman = true
			}
		}
	}
	return s
}

func matchQuickAnswer(answers []tenant.QuickAnswer, state *tenant.CallState, utterance string) (string, string, bool) {
	if !looksLikeQuestion(utterance) {
		return "", "", false
	}

	lower := strings.ToLower(utterance)
	var best *tenant.QuickAnswer
	var bestScore float64
	for i := range answers {
		qa := &answers[i]
		if !qa.Enabled {
			continue
		}
		matched := 0
		triggerLenSum := 0
		for _, trig := range qa.Triggers {
			if trig == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(trig)) {
				matched++
				triggerLenSum += len(trig)
			}
		}
		if matched == 0 {
			continue
		}
		score := 10*float64(matched) + 5*float64(qa.Priority) + float64(triggerLenSum)
		if best == nil || score > bestScore {
			best = qa
			bestScore = score
		}
	}
	if best == nil {
		return "", "", false
	}

	reply := best.Answer
	goal := "continue discovery"
	if state.Phase == tenant.PhaseBooking {
		if missing, ok := slot.NextMissingSlot(toExtracted(state.KnownSlots), slot.AllSlots); ok {
			reply += " " + bookingQuestion(state, missing)
			goal = "collect:" + string(missing)
		}
	} else {
		reply += " Would you like me to get you scheduled?"
	}
	return reply, goal, true
}

func bookingQuestion(state *tenant.CallState, name slot.Name) string {
	switch name {
	case slot.SlotName:
		return "Can I get your name?"
	case slot.SlotPhone:
		return "What's the best phone number to reach you?"
	case slot.SlotAddress:
		return "What's the service address?"
	case slot.SlotTime:
		return "What day and time works best for you?"
	default:
		return "Can you tell me a bit more?"
	}
}

var serviceAreaPhrases = []string{"service area", "do you service", "do you serve", "do you cover", "come out to"}

func looksLikeQuestion(utterance string) bool {
	lower := strings.ToLower(strings.TrimSpace(utterance))
	starts := []string{"what", "how", "can you", "do you", "is there", "are you", "where", "when", "why"}
	for _, s := range starts {
		if strings.HasPrefix(lower, s) {
			return true
		}
	}
	return strings.HasSuffix(lower, "?")
}

// matchServiceArea answers a service-area question by checking whether
// the utterance names one of the tenant's configured serviceAreas,
// rather than guessing from an unrelated placeholder. A recognized area
// gets an affirmative reply; an unrecognized one still gets a polite
// non-committal acknowledgement instead of silence.
func matchServiceArea(utterance string, serviceAreas []string) (string, bool) {
	lower := strings.ToLower(utterance)
	matched := false
	for _, p := range serviceAreaPhrases {
		if strings.Contains(lower, p) {
			matched = true
			break
		}
	}
	if !matched {
		return "", false
	}
	for _, area := range serviceAreas {
		if area == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(area)) {
			return fmt.Sprintf("Yes, we absolutely service %s and the surrounding area.", area), true
		}
	}
	return "Let me check on that for you — go ahead and tell me more about what you need.", true
}

func matchTriage(utterance string, problemTriggers []string, trade string, cards []tenant.TriageCard) (*tenant.TriageCard, bool) {
	lower := strings.ToLower(utterance)
	triggered := strings.EqualFold(trade, "HVAC")
	for _, trig := range problemTriggers {
		if trig != "" && strings.Contains(lower, strings.ToLower(trig)) {
			triggered = true
			break
		}
	}
	if !triggered {
		return nil, false
	}

	var best *tenant.TriageCard
	var bestScore int
	for i := range cards {
		c := &cards[i]
		if !c.Active {
			continue
		}
		if hasAny(lower, c.KeywordsExclude) {
			continue
		}
		score := countMatches(lower, c.KeywordsMustHave)
		if score == 0 {
			continue
		}
		if best == nil || score > bestScore {
			best = c
			bestScore = score
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

func hasAny(lower string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

func countMatches(lower string, words []string) int {
	n := 0
	for _, w := range words {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			n++
		}
	}
	return n
}
