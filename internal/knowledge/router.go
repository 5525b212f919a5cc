// Package knowledge implements the PriorityKnowledgeRouter. It
// walks a tenant's ordered priorityFlow of knowledge sources, pre-filters
// each by O(1) keyword-index overlap, queries whichever sources survive,
// and returns the first whose confidence clears its own threshold.
package knowledge

import (
	"sort"
	"strings"
	"time"

	"github.com/voicebrain/engine/internal/scenario"
	"github.com/voicebrain/engine/internal/tenant"
)

// SourceName identifies one of the five fixed source kinds a tenant's
// priorityFlow can reference.
type SourceName string

const (
	SourceInstantResponses SourceName = "instantResponses"
	SourceCompanyQnA       SourceName = "companyQnA"
	SourceTradeQnA         SourceName = "tradeQnA"
	SourceTemplates        SourceName = "templates"
	SourceInHouseFallback  SourceName = "inHouseFallback"
)

// Entry is one tenant- or trade-curated Q&A pair.
type Entry struct {
	ID       string
	Question string
	Answer   string
	Category string
	Keywords []string
	// AIAgentRole, when set on the category, flows to downstream
	// metadata only — never to the caller.
	AIAgentRole string
}

// Template is a named, keyword-triggered canned response.
type Template struct {
	Name     string
	Keywords []string
	Text     string
}

// FallbackCategory is one bucket of the inHouseFallback source.
type FallbackCategory struct {
	Name     string
	Keywords []string
	Response string
}

// InHouseFallback holds the trade-aware canned categories plus the
// ultimate fallback text used when no category clears 0.3.
type InHouseFallback struct {
	EmergencySituations []FallbackCategory
	ServiceRequests     []FallbackCategory
	BookingRequests     []FallbackCategory
	GeneralInquiries    []FallbackCategory
	UltimateFallback    string
}

func (f InHouseFallback) allCategories() []FallbackCategory {
	out := make([]FallbackCategory, 0)
	out = append(out, f.EmergencySituations...)
	out = append(out, f.ServiceRequests...)
	out = append(out, f.BookingRequests...)
	out = append(out, f.GeneralInquiries...)
	return out
}

// SourceData bundles every source's content for one routing call.
type SourceData struct {
	Scenarios   []tenant.Scenario
	CompanyQnA  []Entry
	TradeQnA    []Entry
	Templates   []Template
	InHouse     InHouseFallback
	FillerWords []string
}

// FlowRecord traces one source's evaluation, returned in Result so
// callers and TraceLogger can reconstruct the routing decision.
type FlowRecord struct {
	Source     SourceName
	Skipped    bool
	Confidence float64
	Matched    bool
	Latency    time.Duration
}

// Result is the PriorityKnowledgeRouter outcome for one query.
type Result struct {
	Success           bool
	Response          string
	Confidence        float64
	Source            SourceName
	RoutingFlow       []FlowRecord
	TotalResponseTime time.Duration
	AIAgentRole       string
}

// Router holds no per-call state; it is safe for concurrent use.
type Router struct {
	selector *scenario.HybridScenarioSelector
}

// NewRouter constructs a PriorityKnowledgeRouter backed by a Tier-1
// selector for the instantResponses source.
func NewRouter() *Router {
	return &Router{selector: scenario.NewHybridScenarioSelector()}
}

// Route walks flow in ascending priority order and returns the first
// source whose confidence clears its threshold.
func (r *Router) Route(flow []tenant.KnowledgeSourceConfig, data SourceData, query string, ctx scenario.MatchContext) Result {
	start := time.Now()
	ordered := append([]tenant.KnowledgeSourceConfig(nil), flow...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	var records []FlowRecord
	normalized := strings.ToLower(query)

	for _, src := range ordered {
		if !src.Enabled {
			continue
		}
		name := SourceName(src.Name)

		if r.preFilterMiss(name, normalized, data) {
			records = append(records, FlowRecord{Source: name, Skipped: true})
			continue
		}

		queryStart := time.Now()
		response, confidence, role, matched := r.querySource(name, query, normalized, data, ctx)
		latency := time.Since(queryStart)
		records = append(records, FlowRecord{Source: name, Confidence: confidence, Matched: matched, Latency: latency})

		if matched && confidence >= src.Threshold {
			return Result{
				Success:           true,
				Response:          response,
				Confidence:        confidence,
				Source:            name,
				RoutingFlow:       records,
				TotalResponseTime: time.Since(start),
				AIAgentRole:       role,
			}
		}
	}

	return Result{Success: false, RoutingFlow: records, TotalResponseTime: time.Since(start)}
}

// preFilterMiss rejects a source in O(1) when none of its indexed
// vocabulary words overlap the query.
func (r *Router) preFilterMiss(name SourceName, normalized string, data SourceData) bool {
	vocab := r.vocabulary(name, data)
	if len(vocab) == 0 {
		return false // nothing indexed yet; let the query step decide
	}
	words := strings.Fields(normalized)
	for _, w := range words {
		if vocab[w] {
			return false
		}
	}
	return true
}

func (r *Router) vocabulary(name SourceName, data SourceData) map[string]bool {
	vocab := map[string]bool{}
	add := func(words []string) {
		for _, w := range words {
			vocab[strings.ToLower(w)] = true
		}
	}
	switch name {
	case SourceInstantResponses:
		for _, sc := range data.Scenarios {
			add(sc.Rules.KeywordsMustHave)
		}
	case SourceCompanyQnA:
		for _, e := range data.CompanyQnA {
			add(e.Keywords)
		}
	case SourceTradeQnA:
		for _, e := range data.TradeQnA {
			add(e.Keywords)
		}
	case SourceTemplates:
		for _, t := range data.Templates {
			add(t.Keywords)
		}
	case SourceInHouseFallback:
		return nil // never pre-filtered out; it must always answer
	}
	return vocab
}

func (r *Router) querySource(name SourceName, query, normalized string, data SourceData, ctx scenario.MatchContext) (response string, confidence float64, role string, matched bool) {
	switch name {
	case SourceInstantResponses:
		res := r.selector.Select(query, onlyEnabled(data.Scenarios), ctx, data.FillerWords)
		if res.Scenario == nil || len(res.Scenario.FullReplies) == 0 {
			return "", 0, "", false
		}
		return res.Scenario.FullReplies[0].Text, res.Confidence, "", true

	case SourceCompanyQnA:
		return scoreEntries(data.CompanyQnA, normalized)

	case SourceTradeQnA:
		return scoreEntries(data.TradeQnA, normalized)

	case SourceTemplates:
		return scoreTemplates(data.Templates, normalized)

	case SourceInHouseFallback:
		return queryInHouseFallback(data.InHouse, normalized)
	}
	return "", 0, "", false
}

func onlyEnabled(scenarios []tenant.Scenario) []tenant.Scenario {
	out := make([]tenant.Scenario, 0, len(scenarios))
	for _, sc := range scenarios {
		if sc.Enabled() {
			out = append(out, sc)
		}
	}
	return out
}

// textSimilarity is a bounded word-overlap ratio (Jaccard-like), used
// by companyQnA/tradeQnA/templates scoring.
func textSimilarity(a, b string) float64 {
	aw := uniqueWords(a)
	bw := uniqueWords(b)
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

func uniqueWords(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = true
	}
	return out
}

func keywordCoverage(keywords []string, normalized string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	hits := 0
	for _, kw := range keywords {
		if kw != "" && strings.Contains(normalized, strings.ToLower(kw)) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

// scoreEntries implements the companyQnA/tradeQnA confidence formula:
// 0.4*textSimilarity + 0.6*keywordCoverage.
func scoreEntries(entries []Entry, normalized string) (string, float64, string, bool) {
	var best *Entry
	var bestScore float64
	for i := range entries {
		e := &entries[i]
		score := 0.4*textSimilarity(e.Question, normalized) + 0.6*keywordCoverage(e.Keywords, normalized)
		if best == nil || score > bestScore {
			best = e
			bestScore = score
		}
	}
	if best == nil || bestScore <= 0 {
		return "", 0, "", false
	}
	return best.Answer, bestScore, best.AIAgentRole, true
}

func scoreTemplates(templates []Template, normalized string) (string, float64, string, bool) {
	var best *Template
	var bestScore float64
	for i := range templates {
		t := &templates[i]
		score := 0.4*textSimilarity(t.Name, normalized) + 0.6*keywordCoverage(t.Keywords, normalized)
		if best == nil || score > bestScore {
			best = t
			bestScore = score
		}
	}
	if best == nil || bestScore <= 0 {
		return "", 0, "", false
	}
	return best.Text, bestScore, "", true
}

// queryInHouseFallback never produces a no-match: the first category
// clearing 0.3 keyword match wins with confidence
// max(match, 0.5); otherwise the ultimate fallback answers at 0.5.
func queryInHouseFallback(f InHouseFallback, normalized string) (string, float64, string, bool) {
	for _, cat := range f.allCategories() {
		match := keywordCoverage(cat.Keywords, normalized)
		if match > 0.3 {
			confidence := match
			if confidence < 0.5 {
				confidence = 0.5
			}
			return cat.Response, confidence, "", true
		}
	}
	return f.UltimateFallback, 0.5, "", true
}
