// Package servicetype implements the canonical service classification
// state machine across a call.
package servicetype

import (
	"strings"

	"github.com/voicebrain/engine/internal/tenant"
)

const (
	highThreshold   = 4
	tieMargin       = 1
	mediumThreshold = 2
)

const fallbackServiceKey = "service"

// keywordWeight classifies keyword strength for a canonical service type.
type keywordWeight int

const (
	weightHigh   keywordWeight = 3
	weightMedium keywordWeight = 2
	weightLow    keywordWeight = 1
)

// KeywordBucket maps a canonical type's keywords to their weight class.
type KeywordBucket struct {
	High   []string
	Medium []string
	Low    []string
}

// Config supplies the tenant's canonical types and their keyword buckets.
// A default HVAC-flavored config is provided by DefaultConfig for
// tenants that don't override it.
type Config struct {
	Buckets map[string]KeywordBucket
}

// DefaultConfig returns a generic repair/maintenance/emergency keyword
// configuration, used when a tenant has no explicit override.
func DefaultConfig() Config {
	return Config{Buckets: map[string]KeywordBucket{
		"emergency": {
			High:   []string{"emergency", "no heat", "no ac", "flooding", "gas smell", "smoke"},
			Medium: []string{"urgent", "right away", "today", "asap"},
			Low:    []string{"soon", "quickly"},
		},
		"repair": {
			High:   []string{"broken", "not working", "repair", "leak", "leaking"},
			Medium: []string{"fix", "issue", "problem"},
			Low:    []string{"noise", "sound"},
		},
		"maintenance": {
			High:   []string{"maintenance", "tune-up", "tune up", "inspection"},
			Medium: []string{"checkup", "check up", "annual"},
			Low:    []string{"schedule", "routine"},
		},
	}}
}

// Clarifier names the clarifying question to ask and the two candidate
// types it distinguishes between.
type Clarifier struct {
	Key      string
	Question string
	TypeA    string
	TypeB    string
}

var (
	clarifierEmergencyVsRegular = Clarifier{
		Key:      "emergencyVsRegular",
		Question: "Is this something that needs attention right away today, or can we schedule the next available appointment?",
		TypeA:    "emergency",
		TypeB:    "repair",
	}
	clarifierRepairVsMaintenance = Clarifier{
		Key:      "repairVsMaintenance",
		Question: "Is something broken that needs fixing, or are you looking to schedule routine maintenance?",
		TypeA:    "repair",
		TypeB:    "maintenance",
	}
	clarifierGeneric = Clarifier{
		Key:      "generic",
		Question: "Can you tell me a bit more about what's going on so I can get you to the right place?",
		TypeA:    "",
		TypeB:    "",
	}
)

// Options carries explicit-type overrides and session mirrors used when
// resolving.
type Options struct {
	ExplicitType string
	SessionType  string
	Config       Config
}

// Resolve implements the resolver's state machine transitions. It
// never panics: invalid input yields the unchanged state.
func Resolve(state tenant.ResolutionState, issueText string, opts Options) tenant.ResolutionState {
	defer func() { recover() }() //nolint:errcheck // never let a resolver bug abort a turn

	switch state.State {
	case tenant.ResolutionLocked:
		return state
	case tenant.ResolutionResolved:
		if state.Confidence == tenant.ConfidenceHigh {
			return state
		}
	case tenant.ResolutionClarifying:
		return state
	}

	if explicit := explicitType(opts); explicit != "" {
		state.State = tenant.ResolutionConfirmed
		state.CanonicalType = explicit
		state.Confidence = tenant.ConfidenceHigh
		return state
	}

	if strings.TrimSpace(issueText) == "" {
		return clarifyGeneric(state)
	}

	cfg := opts.Config
	if cfg.Buckets == nil {
		cfg = DefaultConfig()
	}

	scores := scoreTypes(issueText, cfg)
	ranked := rankScores(scores)
	if len(ranked) == 0 {
		return clarifyGeneric(state)
	}

	top := ranked[0]
	var second scoredType
	if len(ranked) > 1 {
		second = ranked[1]
	}

	if top.score >= highThreshold {
		state.State = tenant.ResolutionResolved
		state.CanonicalType = top.name
		state.Confidence = tenant.ConfidenceHigh
		return state
	}

	if second.score > 0 && top.score-second.score <= tieMargin {
		state.State = tenant.ResolutionClarifying
		state.Tentative = top.name
		state.ClarifierType = pickClarifierKey(top.name, second.name)
		return state
	}

	if top.score >= mediumThreshold {
		state.State = tenant.ResolutionResolved
		state.CanonicalType = top.name
		state.Confidence = tenant.ConfidenceMedium
		return state
	}

	state.State = tenant.ResolutionClarifying
	state.Tentative = top.name
	state.ClarifierType = clarifierGeneric.Key
	return state
}

func explicitType(opts Options) string {
	if opts.ExplicitType != "" && opts.ExplicitType != fallbackServiceKey {
		return opts.ExplicitType
	}
	if opts.SessionType != "" && opts.SessionType != fallbackServiceKey {
		return opts.SessionType
	}
	return ""
}

func clarifyGeneric(state tenant.ResolutionState) tenant.ResolutionState {
	state.State = tenant.ResolutionClarifying
	state.ClarifierType = clarifierGeneric.Key
	return state
}

type scoredType struct {
	name  string
	score int
}

func scoreTypes(text string, cfg Config) map[string]int {
	lower := strings.ToLower(text)
	scores := map[string]int{}
	for name, bucket := range cfg.Buckets {
		score := 0
		for _, kw := range bucket.High {
			if strings.Contains(lower, kw) {
				score += int(weightHigh)
			}
		}
		for _, kw := range bucket.Medium {
			if strings.Contains(lower, kw) {
				score += int(weightMedium)
			}
		}
		for _, kw := range bucket.Low {
			if strings.Contains(lower, kw) {
				score += int(weightLow)
			}
		}
		scores[name] = score
	}
	return scores
}

func rankScores(scores map[string]int) []scoredType {
	ranked := make([]scoredType, 0, len(scores))
	for name, score := range scores {
		if score > 0 {
			ranked = append(ranked, scoredType{name: name, score: score})
		}
	}
	for i := 1; i < len(ranked); i++ {
		j := i
		for j > 0 && ranked[j-1].score < ranked[j].score {
			ranked[j-1], ranked[j] = ranked[j], ranked[j-1]
			j--
		}
	}
	return ranked
}

func pickClarifierKey(top, second string) string {
	pair := map[string]bool{top: true, second: true}
	if pair["emergency"] && (pair["repair"] || pair["maintenance"]) {
		return clarifierEmergencyVsRegular.Key
	}
	if pair["repair"] && pair["maintenance"] {
		return clarifierRepairVsMaintenance.Key
	}
	return clarifierGeneric.Key
}

// ClarifierByKey resolves a clarifier key back to its question text.
func ClarifierByKey(key string) Clarifier {
	switch key {
	case clarifierEmergencyVsRegular.Key:
		return clarifierEmergencyVsRegular
	case clarifierRepairVsMaintenance.Key:
		return clarifierRepairVsMaintenance
	default:
		return clarifierGeneric
	}
}

// ApplyClarification parses the caller's reply using the clarifier's
// keyword buckets; a score >= 2 transitions to CONFIRMED with the
// matched type, else CONFIRMED with the tentative type.
func ApplyClarification(state tenant.ResolutionState, response string, cfg Config) tenant.ResolutionState {
	defer func() { recover() }() //nolint:errcheck

	if state.State != tenant.ResolutionClarifying {
		return state
	}
	if cfg.Buckets == nil {
		cfg = DefaultConfig()
	}

	clarifier := ClarifierByKey(state.ClarifierType)
	lower := strings.ToLower(response)

	bestType, bestScore := "", 0
	for _, candidate := range []string{clarifier.TypeA, clarifier.TypeB} {
		if candidate == "" {
			continue
		}
		bucket := cfg.Buckets[candidate]
		score := 0
		for _, kw := range bucket.High {
			if strings.Contains(lower, kw) {
				score += int(weightHigh)
			}
		}
		for _, kw := range bucket.Medium {
			if strings.Contains(lower, kw) {
				score += int(weightMedium)
			}
		}
		if score > bestScore {
			bestScore = score
			bestType = candidate
		}
	}

	state.State = tenant.ResolutionConfirmed
	if bestScore >= 2 && bestType != "" {
		state.CanonicalType = bestType
	} else {
		state.CanonicalType = state.Tentative
	}
	state.Confidence = tenant.ConfidenceMedium
	return state
}

// Lock transitions to LOCKED. Idempotent: locking an already-locked
// state is a no-op, and once locked the canonical type never changes
// again.
func Lock(state tenant.ResolutionState) tenant.ResolutionState {
	state.State = tenant.ResolutionLocked
	return state
}

// GetCanonicalType is the sole accessor callers should use to read the
// resolved service type; it never exposes the legacy mirrored fields.
func GetCanonicalType(state tenant.ResolutionState) string {
	return state.CanonicalType
}

// MirrorLegacyFields writes the resolver's canonical type into the
// call state's legacy fields. Only the resolver's writer may call this —
// the legacy fields must never be written from any other path.
func MirrorLegacyFields(call *tenant.CallState, state tenant.ResolutionState) {
	call.ServiceTypeResolution = state
	call.BookingServiceType = state.CanonicalType
	call.DiscoveryServiceType = state.CanonicalType
}
