// Package tenant holds the shared data model: Tenant configuration,
// Scenario, TriageCard, CallState, QuickAnswer and the reply-item
// polymorphism used across the routing and response components.
package tenant

import "time"

// IntelligenceMode selects between admin-wide defaults and a tenant's
// own threshold overrides.
type IntelligenceMode string

const (
	IntelligenceModeGlobal IntelligenceMode = "global"
	IntelligenceModeCustom IntelligenceMode = "custom"
)

// ScenarioType is the canonical, normalized scenario classification.
// Legacy synonyms (INFO_FAQ, ACTION_FLOW, SYSTEM_ACK) must never reach
// code outside NormalizeScenarioType.
type ScenarioType string

const (
	ScenarioFAQ          ScenarioType = "FAQ"
	ScenarioBooking      ScenarioType = "BOOKING"
	ScenarioEmergency    ScenarioType = "EMERGENCY"
	ScenarioTransfer     ScenarioType = "TRANSFER"
	ScenarioSystem       ScenarioType = "SYSTEM"
	ScenarioSmallTalk    ScenarioType = "SMALL_TALK"
	ScenarioBilling      ScenarioType = "BILLING"
	ScenarioTroubleshoot ScenarioType = "TROUBLESHOOT"
)

// NormalizeScenarioType maps legacy synonyms to their canonical type,
// isTransferOrEmergency lets ACTION_FLOW resolve to
// TRANSFER/EMERGENCY instead of BOOKING when the scenario is marked as
// such by its own explicit type hint.
func NormalizeScenarioType(raw string, markedTransfer, markedEmergency bool) ScenarioType {
	switch raw {
	case "INFO_FAQ":
		return ScenarioFAQ
	case "ACTION_FLOW":
		if markedEmergency {
			return ScenarioEmergency
		}
		if markedTransfer {
			return ScenarioTransfer
		}
		return ScenarioBooking
	case "SYSTEM_ACK":
		return ScenarioSystem
	default:
		return ScenarioType(raw)
	}
}

// ReplyStrategy controls how ResponseEngine chooses among quick/full replies.
type ReplyStrategy string

const (
	ReplyAuto          ReplyStrategy = "AUTO"
	ReplyFullOnly      ReplyStrategy = "FULL_ONLY"
	ReplyQuickOnly     ReplyStrategy = "QUICK_ONLY"
	ReplyQuickThenFull ReplyStrategy = "QUICK_THEN_FULL"
	ReplyLLMWrap       ReplyStrategy = "LLM_WRAP"
	ReplyLLMContext    ReplyStrategy = "LLM_CONTEXT"
)

// FollowUpMode describes what happens after a scenario's reply is sent.
type FollowUpMode string

const (
	FollowUpNone         FollowUpMode = "NONE"
	FollowUpAskQuestion  FollowUpMode = "ASK_QUESTION"
	FollowUpTransfer     FollowUpMode = "TRANSFER"
)

// ReplyItem is the tagged-variant form of a reply: either a bare string
// (weight 1) or an explicit {text, weight} pair. Invalid shapes (weight
// <= 0) are refused at load time rather than silently dropped — callers
// get an error from ParseReplyItem instead of a missing reply later.
type ReplyItem struct {
	Text   string
	Weight float64
}

// MatchRules holds Tier-1 scoring inputs for a scenario.
type MatchRules struct {
	KeywordsMustHave []string
	KeywordsExclude  []string
	RegexPatterns    []string
	ContextHints     []string
	NegativeTriggers []string
	Weight           float64
	Priority         int
}

// Scenario is a tenant-assignable unit of caller intent.
type Scenario struct {
	ScenarioID           string
	Name                 string
	ScenarioType         ScenarioType
	ReplyStrategy        ReplyStrategy
	QuickReplies         []ReplyItem
	FullReplies          []ReplyItem
	QuickRepliesNoName   []ReplyItem
	FullRepliesNoName    []ReplyItem
	Rules                MatchRules
	FollowUpMode         FollowUpMode
	FollowUpQuestionText string
	TransferTarget       string

	// IsEnabledForCompany is already resolved by the config layer: an
	// omitted isEnabledForCompany in the source document defaults to
	// true there, so by the time a Scenario exists this field is never
	// ambiguous.
	IsEnabledForCompany bool

	// SearchableText is keyword+question text used by the semantic matcher.
	SearchableText string
}

// Enabled reports whether the scenario may be matched, i.e. the value
// of IsEnabledForCompany. The default-to-enabled rule for an omitted
// source field is applied by the config layer; a zero-value Scenario
// built in code is disabled.
func (s Scenario) Enabled() bool {
	return s.IsEnabledForCompany
}

// Urgency levels for TriageCard.
type Urgency string

const (
	UrgencyRoutine   Urgency = "routine"
	UrgencyNormal    Urgency = "normal"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyEmergency Urgency = "emergency"
)

// TriageCard is a tenant-scoped diagnostic frame.
type TriageCard struct {
	ID                   string
	Active               bool
	Priority             int
	KeywordsMustHave     []string
	KeywordsExclude      []string
	Explanation          string
	DiagnosticQuestions  []string
	SuggestedServiceType string
	Urgency              Urgency
	CachedAt             time.Time
}

// QuickAnswer is a tenant-scoped curated trigger/answer pair.
type QuickAnswer struct {
	ID       string
	Question string
	Answer   string
	Category string
	Triggers []string
	Enabled  bool
	Priority int
}

// KnowledgeSourceConfig configures one source in the PriorityKnowledgeRouter flow.
type KnowledgeSourceConfig struct {
	Name      string
	Priority  int
	Threshold float64
	Enabled   bool
}

// Thresholds maps tenant threshold config per router/source.
type Thresholds struct {
	Tier1 float64
	Tier2 float64
	PerSource map[string]float64
}

// LLMPricing holds model-specific cost estimates, config-driven rather
// than hardcoded constants.
type LLMPricing struct {
	EstimatedCostPerCall float64
	PricePerThousandIn   float64
	PricePerThousandOut  float64
}

// TemplateGatekeeper is the Tier-3 gating and metrics config block.
type TemplateGatekeeper struct {
	Enabled          bool
	Tier1Threshold   float64
	Tier2Threshold   float64
	EnableLLMFallback bool
	MonthlyBudget    float64
	CurrentSpend     float64
	Pricing          LLMPricing
}

// FrontDeskBehavior is the dialogue-phase behavioral config.
type FrontDeskBehavior struct {
	Personality         string
	MaxWordLimit         int
	ForbiddenPhrases     []string
	FrustrationTriggers  []string
	EscalationTriggers   []string
	BookingSlotOrder     []string
	BookingSlotQuestions map[string]string
	FallbackResponses    map[string]string
	MaxLoopsBeforeOffer  int
	AntiRepeatSimilarity float64
}

// Tenant is the tenant-scoped, read-only-in-the-hot-path configuration.
type Tenant struct {
	ID                  string
	IntelligenceMode     IntelligenceMode
	Trade                string
	ServiceAreas         []string
	PlaceholderValues    map[string]string
	QuickAnswers         []QuickAnswer
	PriorityFlow         []KnowledgeSourceConfig
	Thresholds           Thresholds
	TemplateGatekeeper   TemplateGatekeeper
	FrontDeskBehavior    FrontDeskBehavior
	Use3TierIntelligence bool
	UsePriorityRouter    bool
	FillerWords          []string
	ProblemTriggers      []string

	// UpdatedAt changes on every admin mutation; CacheLayer keys derived
	// from (tenantID, UpdatedAt) are implicitly invalidated by a bump.
	UpdatedAt time.Time
}

// CacheKeyPrefix returns the tenant-scoped cache-key prefix for a given
// named cache bucket (priorities, knowledge, personality, qa).
func (t Tenant) CacheKeyPrefix(bucket string) string {
	return "company:" + t.ID + ":" + bucket
}

// Phase is the dialogue-turn phase machine position.
type Phase string

const (
	PhaseDiscovery    Phase = "DISCOVERY"
	PhaseDecision     Phase = "DECISION"
	PhaseBooking      Phase = "BOOKING"
	PhaseConfirmation Phase = "CONFIRMATION"
)

// phaseRank gives PhaseDiscovery < PhaseDecision < PhaseBooking <
// PhaseConfirmation so callers can enforce forward-only transitions.
var phaseRank = map[Phase]int{
	PhaseDiscovery:    0,
	PhaseDecision:     1,
	PhaseBooking:      2,
	PhaseConfirmation: 3,
}

// AtLeast reports whether p has progressed at least as far as other.
func (p Phase) AtLeast(other Phase) bool {
	return phaseRank[p] >= phaseRank[other]
}

// Lane is the top-level dispatcher state.
type Lane string

const (
	LaneDiscovery Lane = "DISCOVERY"
	LaneBooking   Lane = "BOOKING"
)

// KnownSlot is one extracted, confidence-scored slot value.
type KnownSlot struct {
	Value          string
	Confidence     float64
	PatternSource  string
	TurnProvided   bool
}

// CallState is the ephemeral, per-call state owned exclusively by the
// DialogueTurnProcessor for the duration of one processTurn call.
type CallState struct {
	CallID               string
	TenantID             string
	TurnCount            int
	History              []Turn
	KnownSlots           map[string]KnownSlot
	Phase                Phase
	Lane                 Lane
	Frustrated           bool
	EscalationRequested  bool
	ConsentPending       bool
	ServiceTypeResolution ResolutionState
	LastAgentUtterance   string
	SameQuestionCycles   int
	CreatedAt            time.Time
	LastActivityAt       time.Time

	// Legacy mirrored fields, written only by the ServiceTypeResolver.
	BookingServiceType   string
	DiscoveryServiceType string
}

// Turn is one entry in the bounded conversation history.
type Turn struct {
	Speaker string // "caller" | "agent"
	Text    string
	At      time.Time
}

// MaxHistoryTurns caps CallState.History; the oldest entries are evicted.
const MaxHistoryTurns = 50

// AppendHistory appends a turn, evicting the oldest when over capacity.
func (c *CallState) AppendHistory(t Turn) {
	c.History = append(c.History, t)
	if len(c.History) > MaxHistoryTurns {
		c.History = c.History[len(c.History)-MaxHistoryTurns:]
	}
}

// ResolutionStateName is the ServiceTypeResolver's state machine position.
type ResolutionStateName string

const (
	ResolutionPending    ResolutionStateName = "PENDING"
	ResolutionResolved   ResolutionStateName = "RESOLVED"
	ResolutionClarifying ResolutionStateName = "CLARIFYING"
	ResolutionConfirmed  ResolutionStateName = "CONFIRMED"
	ResolutionLocked     ResolutionStateName = "LOCKED"
)

// ConfidenceLevel is RESOLVED's confidence band.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
)

// ResolutionState is the ServiceTypeResolver's Resolution entity. Only
// CanonicalType is authoritative; CallState.BookingServiceType and
// DiscoveryServiceType are derived mirrors written from it.
type ResolutionState struct {
	State         ResolutionStateName
	CanonicalType string
	Confidence    ConfidenceLevel
	ClarifierType string
	Tentative     string
}

// BudgetLedgerSnapshot is a read-only view of a tenant's budget state.
type BudgetLedgerSnapshot struct {
	MonthlyBudget float64
	CurrentSpend  float64
}

// Remaining returns the budget still available; never negative.
func (b BudgetLedgerSnapshot) Remaining() float64 {
	r := b.MonthlyBudget - b.CurrentSpend
	if r < 0 {
		return 0
	}
	return r
}
