package scenario

import "strings"

// UrgencyKeywords is a separate dimension from scoring, read only by
// DetectUrgency: Tier-1 itself never reroutes on urgency.
var UrgencyKeywords = map[string][]string{
	"emergency": {"emergency", "flooding", "gas smell", "smoke", "no heat", "no ac"},
	"urgent":    {"urgent", "asap", "right away", "today"},
	"routine":   {"whenever", "no rush", "next week"},
}

// DetectUrgency returns the highest-priority urgency keyword bucket
// found in text, defaulting to "normal" when nothing matches.
func DetectUrgency(text string) string {
	lower := strings.ToLower(text)
	for _, level := range []string{"emergency", "urgent"} {
		for _, kw := range UrgencyKeywords[level] {
			if strings.Contains(lower, kw) {
				return level
			}
		}
	}
	for _, kw := range UrgencyKeywords["routine"] {
		if strings.Contains(lower, kw) {
			return "routine"
		}
	}
	return "normal"
}
