// Package config loads and hot-reloads the tenant document: the YAML
// file an admin edits to configure one tenant's routing thresholds,
// knowledge content, and front-desk behavior, plus the process-wide
// engine settings controlled by environment variables.
package config

import (
	"fmt"

	"github.com/voicebrain/engine/internal/knowledge"
	"github.com/voicebrain/engine/internal/placeholder"
	"github.com/voicebrain/engine/internal/servicetype"
	"github.com/voicebrain/engine/internal/tenant"
)

// ScenarioDoc is the on-disk shape of one scenario. Reply arrays decode
// as raw interface{} so tenant.ParseReplyItem can accept both the bare
// string and {text,weight} shapes; Validate walks them strictly and
// refuses the document on any malformed item before it ever reaches
// toScenario.
type ScenarioDoc struct {
	ScenarioID           string        `yaml:"scenarioId"`
	Name                 string        `yaml:"name"`
	ScenarioType         string        `yaml:"scenarioType"`
	ReplyStrategy        string        `yaml:"replyStrategy"`
	QuickReplies         []interface{} `yaml:"quickReplies"`
	FullReplies          []interface{} `yaml:"fullReplies"`
	QuickRepliesNoName   []interface{} `yaml:"quickRepliesNoName"`
	FullRepliesNoName    []interface{} `yaml:"fullRepliesNoName"`
	Rules                tenant.MatchRules `yaml:"rules"`
	FollowUpMode         string        `yaml:"followUpMode"`
	FollowUpQuestionText string        `yaml:"followUpQuestionText"`
	TransferTarget       string        `yaml:"transferTarget"`
	IsEnabledForCompany  *bool         `yaml:"isEnabledForCompany"`
	MarkedTransfer       bool          `yaml:"markedTransfer"`
	MarkedEmergency      bool          `yaml:"markedEmergency"`
	SearchableText       string        `yaml:"searchableText"`
}

// toScenario projects an already-validated ScenarioDoc into a
// tenant.Scenario. Reply items are reparsed with the lenient
// ParseReplyItems here only because Validate has already walked the
// same arrays with ParseReplyItemsStrict and refused the document on
// any malformed item — by this point a parse failure cannot occur.
func (d ScenarioDoc) toScenario() tenant.Scenario {
	enabled := true
	if d.IsEnabledForCompany != nil {
		enabled = *d.IsEnabledForCompany
	}

	return tenant.Scenario{
		ScenarioID:           d.ScenarioID,
		Name:                 d.Name,
		ScenarioType:         tenant.NormalizeScenarioType(d.ScenarioType, d.MarkedTransfer, d.MarkedEmergency),
		ReplyStrategy:        tenant.ReplyStrategy(d.ReplyStrategy),
		QuickReplies:         tenant.ParseReplyItems(d.QuickReplies),
		FullReplies:          tenant.ParseReplyItems(d.FullReplies),
		QuickRepliesNoName:   tenant.ParseReplyItems(d.QuickRepliesNoName),
		FullRepliesNoName:    tenant.ParseReplyItems(d.FullRepliesNoName),
		Rules:                d.Rules,
		FollowUpMode:         tenant.FollowUpMode(d.FollowUpMode),
		FollowUpQuestionText: d.FollowUpQuestionText,
		TransferTarget:       d.TransferTarget,
		IsEnabledForCompany:  enabled,
		SearchableText:       d.SearchableText,
	}
}

// KnowledgeManagement bundles the content every knowledge-bearing
// source and the dialogue shortcut responders draw on.
type KnowledgeManagement struct {
	Scenarios       []ScenarioDoc             `yaml:"scenarios"`
	CompanyQnA      []knowledge.Entry         `yaml:"companyQnA"`
	TradeQnA        []knowledge.Entry         `yaml:"tradeQnA"`
	Templates       []knowledge.Template      `yaml:"templates"`
	InHouseFallback knowledge.InHouseFallback `yaml:"inHouseFallback"`
	QuickAnswers    []tenant.QuickAnswer      `yaml:"quickAnswers"`
	TriageCards     []tenant.TriageCard       `yaml:"triageCards"`
	FillerWords     []string                  `yaml:"fillerWords"`
}

// Placeholders bundles tenant placeholder values and the shared
// trade-specific fallback catalog.
type Placeholders struct {
	Values  map[string]string  `yaml:"values"`
	Catalog placeholder.Catalog `yaml:"catalog"`
}

// AIAgentLogic is the tenant's routing and gating configuration block.
type AIAgentLogic struct {
	Thresholds          tenant.Thresholds            `yaml:"thresholds"`
	PriorityFlow        []tenant.KnowledgeSourceConfig `yaml:"priorityFlow"`
	TemplateGatekeeper  tenant.TemplateGatekeeper     `yaml:"templateGatekeeper"`
	KnowledgeManagement KnowledgeManagement           `yaml:"knowledgeManagement"`
	Placeholders        Placeholders                  `yaml:"placeholders"`
	ServiceTypes        servicetype.Config            `yaml:"serviceTypes"`
}

// AIAgentSettings is the tenant's behavioral and personality
// configuration block.
type AIAgentSettings struct {
	FrontDeskBehavior tenant.FrontDeskBehavior `yaml:"frontDeskBehavior"`
}

// TenantDocument is the full on-disk tenant configuration document.
type TenantDocument struct {
	ID                   string           `yaml:"id"`
	IntelligenceMode     string           `yaml:"intelligenceMode"`
	Trade                string           `yaml:"trade"`
	ServiceAreas         []string         `yaml:"serviceAreas"`
	Use3TierIntelligence bool             `yaml:"use3TierIntelligence"`
	UsePriorityRouter    bool             `yaml:"usePriorityRouter"`
	ProblemTriggers      []string         `yaml:"problemTriggers"`
	AIAgentLogic         AIAgentLogic     `yaml:"aiAgentLogic"`
	AIAgentSettings      AIAgentSettings  `yaml:"aiAgentSettings"`
}

// knownSources lists the five fixed priorityFlow source names a
// TenantDocument may reference.
var knownSources = map[string]bool{
	"instantResponses": true,
	"companyQnA":       true,
	"tradeQnA":         true,
	"templates":        true,
	"inHouseFallback":  true,
}

// SetDefaults fills in zero-value fields an admin-authored document is
// allowed to omit, so IntelligenceModeCustom never silently falls back
// to unusable zero thresholds.
func (d *TenantDocument) SetDefaults() {
	if d.IntelligenceMode == "" {
		d.IntelligenceMode = string(tenant.IntelligenceModeGlobal)
	}
	if d.AIAgentLogic.Thresholds.Tier1 == 0 && d.AIAgentLogic.Thresholds.Tier2 == 0 {
		d.AIAgentLogic.Thresholds.Tier1 = 0.55
		d.AIAgentLogic.Thresholds.Tier2 = 0.65
	}
	if len(d.AIAgentLogic.ServiceTypes.Buckets) == 0 {
		d.AIAgentLogic.ServiceTypes = servicetype.DefaultConfig()
	}
	if d.AIAgentSettings.FrontDeskBehavior.MaxWordLimit == 0 {
		d.AIAgentSettings.FrontDeskBehavior.MaxWordLimit = 60
	}
	if d.AIAgentSettings.FrontDeskBehavior.MaxLoopsBeforeOffer == 0 {
		d.AIAgentSettings.FrontDeskBehavior.MaxLoopsBeforeOffer = 3
	}
	if d.AIAgentSettings.FrontDeskBehavior.AntiRepeatSimilarity == 0 {
		d.AIAgentSettings.FrontDeskBehavior.AntiRepeatSimilarity = 0.85
	}
}

// Validate rejects a document whose shape would make the routing
// pipeline behave unpredictably rather than letting it load silently.
func (d *TenantDocument) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("tenant document: id is required")
	}
	if d.IntelligenceMode != string(tenant.IntelligenceModeGlobal) && d.IntelligenceMode != string(tenant.IntelligenceModeCustom) {
		return fmt.Errorf("tenant %s: intelligenceMode must be %q or %q, got %q", d.ID, tenant.IntelligenceModeGlobal, tenant.IntelligenceModeCustom, d.IntelligenceMode)
	}
	for _, t := range []float64{d.AIAgentLogic.Thresholds.Tier1, d.AIAgentLogic.Thresholds.Tier2} {
		if t < 0 || t > 1 {
			return fmt.Errorf("tenant %s: thresholds must be in [0,1], got %v", d.ID, t)
		}
	}
	if d.AIAgentLogic.TemplateGatekeeper.MonthlyBudget < 0 {
		return fmt.Errorf("tenant %s: templateGatekeeper.monthlyBudget must be >= 0", d.ID)
	}
	for _, src := range d.AIAgentLogic.PriorityFlow {
		if !knownSources[src.Name] {
			return fmt.Errorf("tenant %s: priorityFlow references unknown source %q", d.ID, src.Name)
		}
	}
	for _, sc := range d.AIAgentLogic.KnowledgeManagement.Scenarios {
		for _, field := range []struct {
			name string
			raw  []interface{}
		}{
			{"quickReplies", sc.QuickReplies},
			{"fullReplies", sc.FullReplies},
			{"quickRepliesNoName", sc.QuickRepliesNoName},
			{"fullRepliesNoName", sc.FullRepliesNoName},
		} {
			if _, err := tenant.ParseReplyItemsStrict(field.raw); err != nil {
				return fmt.Errorf("tenant %s: scenario %s: %s: %w", d.ID, sc.ScenarioID, field.name, err)
			}
		}
	}
	return nil
}

// ToTenant projects the document into the routing pipeline's tenant.Tenant.
func (d TenantDocument) ToTenant() tenant.Tenant {
	return tenant.Tenant{
		ID:                   d.ID,
		IntelligenceMode:     tenant.IntelligenceMode(d.IntelligenceMode),
		Trade:                d.Trade,
		ServiceAreas:         d.ServiceAreas,
		PlaceholderValues:    d.AIAgentLogic.Placeholders.Values,
		QuickAnswers:         d.AIAgentLogic.KnowledgeManagement.QuickAnswers,
		PriorityFlow:         d.AIAgentLogic.PriorityFlow,
		Thresholds:           d.AIAgentLogic.Thresholds,
		TemplateGatekeeper:   d.AIAgentLogic.TemplateGatekeeper,
		FrontDeskBehavior:    d.AIAgentSettings.FrontDeskBehavior,
		Use3TierIntelligence: d.Use3TierIntelligence,
		UsePriorityRouter:    d.UsePriorityRouter,
		FillerWords:          d.AIAgentLogic.KnowledgeManagement.FillerWords,
		ProblemTriggers:      d.ProblemTriggers,
	}
}

// Scenarios returns the tenant's scenario pool in tenant.Scenario form.
func (d TenantDocument) Scenarios() []tenant.Scenario {
	out := make([]tenant.Scenario, 0, len(d.AIAgentLogic.KnowledgeManagement.Scenarios))
	for _, s := range d.AIAgentLogic.KnowledgeManagement.Scenarios {
		out = append(out, s.toScenario())
	}
	return out
}

// ToKnowledgeData projects the document into the PriorityKnowledgeRouter's
// SourceData, pairing the scenario pool with the rest of the knowledge content.
func (d TenantDocument) ToKnowledgeData() knowledge.SourceData {
	return knowledge.SourceData{
		Scenarios:   d.Scenarios(),
		CompanyQnA:  d.AIAgentLogic.KnowledgeManagement.CompanyQnA,
		TradeQnA:    d.AIAgentLogic.KnowledgeManagement.TradeQnA,
		Templates:   d.AIAgentLogic.KnowledgeManagement.Templates,
		InHouse:     d.AIAgentLogic.KnowledgeManagement.InHouseFallback,
		FillerWords: d.AIAgentLogic.KnowledgeManagement.FillerWords,
	}
}

// TriageCards returns the tenant's diagnostic triage cards.
func (d TenantDocument) TriageCards() []tenant.TriageCard {
	return d.AIAgentLogic.KnowledgeManagement.TriageCards
}

// ServiceTypeConfig returns the tenant's canonical service-type keyword
// buckets, already defaulted by SetDefaults when the document omits them.
func (d TenantDocument) ServiceTypeConfig() servicetype.Config {
	return d.AIAgentLogic.ServiceTypes
}

// PlaceholderCatalog returns the shared alias/fallback catalog used by
// placeholder.Resolve.
func (d TenantDocument) PlaceholderCatalog() placeholder.Catalog {
	return d.AIAgentLogic.Placeholders.Catalog
}
