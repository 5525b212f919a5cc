package scenario

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/voicebrain/engine/internal/tenant"
)

// MatchContext is the Tier-1/Tier-2 shared match context.
type MatchContext struct {
	Channel        string
	Language       string
	RecentScenarios []string
	LastIntent     string
	CallerKnown    bool
}

// Evidence records which dimensions contributed to a match, used to
// calibrate confidence.
type Evidence struct {
	Keyword bool
	Regex   bool
	Context bool
}

func (e Evidence) count() int {
	n := 0
	if e.Keyword {
		n++
	}
	if e.Regex {
		n++
	}
	if e.Context {
		n++
	}
	return n
}

// Breakdown explains how a candidate's score was built, useful for trace.
type Breakdown struct {
	KeywordScore float64
	RegexScore   float64
	ContextScore float64
	NegativeHit  bool
}

// Result is the HybridScenarioSelector (and SemanticMatcher, same shape)
// output.
type Result struct {
	Scenario   *tenant.Scenario
	Confidence float64
	Score      float64
	Breakdown  Breakdown
	Trace      []string
}

var wordSplitter = regexp.MustCompile(`[^a-z0-9']+`)

// NormalizeUtterance lowercases, trims, strips filler words, and
// collapses whitespace.
func NormalizeUtterance(utterance string, fillerWords []string) string {
	lower := strings.ToLower(strings.TrimSpace(utterance))
	filler := map[string]bool{}
	for _, f := range fillerWords {
		filler[strings.ToLower(f)] = true
	}
	words := wordSplitter.Split(lower, -1)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if w == "" || filler[w] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// HybridScenarioSelector implements Tier-1 rule-based matching.
type HybridScenarioSelector struct{}

// NewHybridScenarioSelector constructs a Tier-1 selector.
func NewHybridScenarioSelector() *HybridScenarioSelector {
	return &HybridScenarioSelector{}
}

// Select scores every candidate scenario and returns the best match, or
// a nil Scenario with confidence 0 when nothing clears the bar implied
// by a positive score.
func (h *HybridScenarioSelector) Select(utterance string, candidates []tenant.Scenario, ctx MatchContext, fillerWords []string) Result {
	normalized := NormalizeUtterance(utterance, fillerWords)
	trace := []string{"normalized: " + normalized}

	var best *tenant.Scenario
	var bestScore float64
	var bestBreakdown Breakdown
	var bestEvidence Evidence

	for i := range candidates {
		sc := &candidates[i]
		if hasNegativeHit(normalized, sc.Rules.KeywordsExclude) {
			trace = append(trace, sc.ScenarioID+": disqualified by exclude keyword")
			continue
		}

		breakdown, evidence := scoreScenario(normalized, sc, ctx)
		score := breakdown.KeywordScore + breakdown.RegexScore + breakdown.ContextScore

		if score <= 0 {
			continue
		}

		if best == nil || isBetter(score, sc, best, bestScore, normalized) {
			best = sc
			bestScore = score
			bestBreakdown = breakdown
			bestEvidence = evidence
		}
	}

	if best == nil {
		return Result{Confidence: 0, Trace: trace}
	}

	confidence := calibrateConfidence(bestScore, bestEvidence)
	trace = append(trace, best.ScenarioID+": score="+floatStr(bestScore)+" confidence="+floatStr(confidence))

	return Result{
		Scenario:   best,
		Confidence: confidence,
		Score:      bestScore,
		Breakdown:  bestBreakdown,
		Trace:      trace,
	}
}

func hasNegativeHit(normalized string, excludes []string) bool {
	for _, ex := range excludes {
		if ex == "" {
			continue
		}
		if strings.Contains(normalized, strings.ToLower(ex)) {
			return true
		}
	}
	return false
}

func scoreScenario(normalized string, sc *tenant.Scenario, ctx MatchContext) (Breakdown, Evidence) {
	var b Breakdown
	var e Evidence

	// (a) keyword coverage, BM25-like: all keywordsMustHave present is a
	// strong multiplier.
	must := sc.Rules.KeywordsMustHave
	if len(must) > 0 {
		hits := 0
		for _, kw := range must {
			if kw != "" && strings.Contains(normalized, strings.ToLower(kw)) {
				hits++
			}
		}
		if hits > 0 {
			coverage := float64(hits) / float64(len(must))
			b.KeywordScore = coverage * 10
			if hits == len(must) {
				b.KeywordScore *= 1.5 // full-coverage multiplier
			}
			e.Keyword = true
		}
	}

	// (b) regex patterns.
	for _, pat := range sc.Rules.RegexPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			continue
		}
		if re.MatchString(normalized) {
			b.RegexScore += 5
			e.Regex = true
		}
	}

	// (c) context bonuses: channel/language match, recent-intent proximity.
	for _, hint := range sc.Rules.ContextHints {
		h := strings.ToLower(hint)
		if h == strings.ToLower(ctx.Channel) || h == strings.ToLower(ctx.Language) {
			b.ContextScore += 2
			e.Context = true
		}
	}
	if ctx.LastIntent != "" && ctx.LastIntent == sc.ScenarioID {
		b.ContextScore += 1
		e.Context = true
	}
	for _, recent := range ctx.RecentScenarios {
		if recent == sc.ScenarioID {
			b.ContextScore += 0.5
			e.Context = true
		}
	}

	return b, e
}

// isBetter breaks ties by explicit scenario priority, then shorter
// utterance distance (approximated by keyword-count closeness).
func isBetter(score float64, candidate *tenant.Scenario, currentBest *tenant.Scenario, bestScore float64, normalized string) bool {
	if score > bestScore {
		return true
	}
	if score < bestScore {
		return false
	}
	if candidate.Rules.Priority != currentBest.Rules.Priority {
		return candidate.Rules.Priority > currentBest.Rules.Priority
	}
	return utteranceDistance(normalized, candidate) < utteranceDistance(normalized, currentBest)
}

func utteranceDistance(normalized string, sc *tenant.Scenario) int {
	words := strings.Fields(normalized)
	keywordCount := len(sc.Rules.KeywordsMustHave)
	diff := len(words) - keywordCount
	if diff < 0 {
		diff = -diff
	}
	return diff
}

// calibrateConfidence turns a raw score plus evidence diversity into a
// [0,1] confidence.
func calibrateConfidence(score float64, e Evidence) float64 {
	base := score / (score + 10) // asymptotic toward 1
	diversityBonus := float64(e.count()) * 0.05
	conf := base + diversityBonus
	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}

func floatStr(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}
