// Package slot implements extraction and confidence-scored merge of
// typed slots (name, phone, address, time, serviceType) from free
// text.
package slot

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/voicebrain/engine/internal/logger"
)

// Name is a supported slot identifier.
type Name string

const (
	SlotName        Name = "name"
	SlotPhone       Name = "phone"
	SlotAddress     Name = "address"
	SlotTime        Name = "time"
	SlotServiceType Name = "serviceType"
)

// AllSlots enumerates every supported slot, in the canonical booking
// order used to find the next missing slot.
var AllSlots = []Name{SlotName, SlotPhone, SlotAddress, SlotTime, SlotServiceType}

// Extracted is one extracted value with confidence metadata.
type Extracted struct {
	Value         string
	Confidence    float64
	PatternSource string
}

// Context carries any extraction hints (currently unused beyond being a
// documented extension point — the v1 extractors are context-free).
type Context struct{}

var (
	phoneDigitsPattern = regexp.MustCompile(`\d`)
	phoneCandidate     = regexp.MustCompile(`(\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	namePattern        = regexp.MustCompile(`(?i)\b(?:my name is|this is|i'?m|i am)\s+([A-Z][a-zA-Z]+(?:\s[A-Z][a-zA-Z]+)?)`)
	addressPattern     = regexp.MustCompile(`(?i)\b(\d{1,6}\s+[A-Za-z0-9.\s]{3,40}\b(?:St|Street|Ave|Avenue|Rd|Road|Blvd|Drive|Dr|Lane|Ln|Ct|Court)\b\.?)`)
	timePattern        = regexp.MustCompile(`(?i)\b(\d{1,2}(:\d{2})?\s?(am|pm)|tomorrow|today|tonight|this (morning|afternoon|evening)|next week|monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
)

var serviceTypeKeywords = map[string][]string{
	"repair":      {"broken", "repair", "fix", "not working", "leak", "leaking", "stopped working"},
	"maintenance": {"maintenance", "tune-up", "tune up", "inspection", "check up", "checkup", "annual service"},
}

// ExtractAll runs every slot extractor over text and returns only the
// slots that matched, each with confidence in [0,1]. Extraction never
// aborts the turn: a panic-free failure path returns an empty map and
// the caller is expected to emit an S3_EXTRACTION_ERROR event (see
// internal/tracelog) rather than fail the turn.
func ExtractAll(text string, _ Context) (out map[Name]Extracted) {
	out = map[Name]Extracted{}
	defer func() {
		if r := recover(); r != nil {
			logger.Default().Warn("slot extraction panic recovered", slog.Any("panic", r))
			out = map[Name]Extracted{}
		}
	}()

	if strings.TrimSpace(text) == "" {
		return out
	}

	if m := namePattern.FindStringSubmatch(text); len(m) > 1 {
		out[SlotName] = Extracted{Value: strings.TrimSpace(m[1]), Confidence: 0.8, PatternSource: "name_intro_phrase"}
	}

	if phone, ok := normalizePhone(text); ok {
		out[SlotPhone] = Extracted{Value: phone, Confidence: 0.9, PatternSource: "phone_digits"}
	}

	if m := addressPattern.FindStringSubmatch(text); len(m) > 1 {
		out[SlotAddress] = Extracted{Value: strings.TrimSpace(m[1]), Confidence: 0.7, PatternSource: "address_street_suffix"}
	}

	if m := timePattern.FindString(text); m != "" {
		out[SlotTime] = Extracted{Value: strings.ToLower(strings.TrimSpace(m)), Confidence: 0.6, PatternSource: "time_keyword"}
	}

	if st, conf, ok := normalizeServiceType(text); ok {
		out[SlotServiceType] = Extracted{Value: st, Confidence: conf, PatternSource: "service_type_keyword"}
	}

	return out
}

// normalizePhone finds the first phone-like substring and canonicalizes
// it to NNN-NNN-NNNN. Values with fewer than 10 digits are rejected.
func normalizePhone(text string) (string, bool) {
	candidate := phoneCandidate.FindString(text)
	if candidate == "" {
		return "", false
	}
	digits := strings.Join(phoneDigitsPattern.FindAllString(candidate, -1), "")
	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return "", false
	}
	return digits[0:3] + "-" + digits[3:6] + "-" + digits[6:10], true
}

// normalizeServiceType classifies free text into repair|maintenance|<other>
// using explicit keyword rules.
func normalizeServiceType(text string) (string, float64, bool) {
	lower := strings.ToLower(text)
	for canon, keywords := range serviceTypeKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return canon, 0.75, true
			}
		}
	}
	return "", 0, false
}

// MergeSlots keeps existing confirmed slots unless the new value has
// strictly higher confidence, incrementing turnProvidedSlots for every
// successful merge. It returns the merged map and the count of slots
// that changed this turn.
func MergeSlots(existing map[Name]Extracted, extracted map[Name]Extracted) (map[Name]Extracted, int) {
	merged := make(map[Name]Extracted, len(existing))
	for k, v := range existing {
		merged[k] = v
	}
	provided := 0
	for k, newVal := range extracted {
		old, has := merged[k]
		if !has || newVal.Confidence > old.Confidence {
			merged[k] = newVal
			provided++
		}
	}
	return merged, provided
}

// NextMissingSlot returns the first slot (in booking order) absent from
// known, used by the DialogueTurnProcessor's QuickAnswers booking nudge.
func NextMissingSlot(known map[Name]Extracted, order []Name) (Name, bool) {
	if len(order) == 0 {
		order = AllSlots
	}
	for _, s := range order {
		if _, ok := known[s]; !ok {
			return s, true
		}
	}
	return "", false
}

// ParseFloatOrZero is a tiny helper for callers decoding config-provided
// numeric thresholds that may arrive as strings from a document store.
func ParseFloatOrZero(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
