// Package placeholder substitutes {key}, {{key}}, and [key] tokens in
// reply text using tenant values and a catalog of trade-specific
// fallbacks.
package placeholder

import (
	"regexp"
	"strings"
)

// tokenPattern matches {{key}}, {key}, and [key] in a single pass;
// alternation order matters so {{key}} is not mistaken for two {key}
// matches.
var tokenPattern = regexp.MustCompile(`\{\{([a-zA-Z0-9_.]+)\}\}|\{([a-zA-Z0-9_.]+)\}|\[([a-zA-Z0-9_.]+)\]`)

// Catalog supplies alias normalization and trade-specific fallback
// values when a key is absent from the tenant's own values.
type Catalog struct {
	// Aliases maps a raw key to its canonical catalog key, e.g.
	// "technician_name" -> "technician".
	Aliases map[string]string
	// Fallbacks maps a canonical key to a default value.
	Fallbacks map[string]string
}

func (c Catalog) normalize(key string) string {
	lower := strings.ToLower(key)
	if c.Aliases != nil {
		if canon, ok := c.Aliases[lower]; ok {
			return canon
		}
	}
	return lower
}

func (c Catalog) fallback(canonKey string) (string, bool) {
	if c.Fallbacks == nil {
		return "", false
	}
	v, ok := c.Fallbacks[canonKey]
	return v, ok
}

// Options controls resolution behavior for unresolved tokens.
type Options struct {
	// LeaveUnknown keeps an unresolved token verbatim in the output
	// instead of dropping it.
	LeaveUnknown bool
}

// Result is the outcome of a Resolve call.
type Result struct {
	Text           string
	Replacements   map[string]string
	UnknownTokens  []string
	FallbacksUsed  []string
}

// caseInsensitiveValues wraps a tenant values map for case-insensitive lookup.
type caseInsensitiveValues map[string]string

func (v caseInsensitiveValues) lookup(key string) (string, bool) {
	if val, ok := v[key]; ok {
		return val, true
	}
	lower := strings.ToLower(key)
	for k, val := range v {
		if strings.ToLower(k) == lower {
			return val, true
		}
	}
	return "", false
}

// Resolve substitutes every recognized token in text. Unknown tokens
// are reported but never fail the call.
func Resolve(text string, values map[string]string, catalog Catalog, opts Options) Result {
	res := Result{
		Replacements:  map[string]string{},
		UnknownTokens: []string{},
		FallbacksUsed: []string{},
	}
	civ := caseInsensitiveValues(values)

	out := tokenPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := extractKey(match)
		canon := catalog.normalize(key)

		if v, ok := civ.lookup(canon); ok {
			res.Replacements[key] = v
			return v
		}
		if v, ok := civ.lookup(key); ok {
			res.Replacements[key] = v
			return v
		}
		if v, ok := catalog.fallback(canon); ok {
			res.Replacements[key] = v
			res.FallbacksUsed = append(res.FallbacksUsed, key)
			return v
		}

		res.UnknownTokens = append(res.UnknownTokens, key)
		if opts.LeaveUnknown {
			return match
		}
		return ""
	})

	res.Text = compactWhitespaceAndPunctuation(out)
	return res
}

func extractKey(match string) string {
	m := tokenPattern.FindStringSubmatch(match)
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

// compactWhitespaceAndPunctuation collapses runs of whitespace left by a
// dropped token, folds a comma left before "." or "!" into a period and
// strips a stray leading comma/space, e.g. turning "Thanks, . Let me
// help." or "Thanks, ! Let me help." into "Thanks. Let me help." This
// mirrors the name-safety fallback's compact punctuation/whitespace
// requirement.
func compactWhitespaceAndPunctuation(s string) string {
	s = regexp.MustCompile(`\s+`).ReplaceAllString(s, " ")
	s = regexp.MustCompile(`\s+([,.!?])`).ReplaceAllString(s, "$1")
	s = regexp.MustCompile(`,\s*[.!]`).ReplaceAllString(s, ".")
	s = regexp.MustCompile(`^[,\s]+`).ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// CompactWhitespaceAndPunctuation is the exported form used by callers
// that sanitize text outside of a full Resolve pass, e.g. the
// ResponseEngine's name-safety fallback.
func CompactWhitespaceAndPunctuation(s string) string {
	return compactWhitespaceAndPunctuation(s)
}

// ResolveScenarioArray resolves every text of a reply array given as
// plain strings, returning the resolved texts in the same order. It
// takes no weights; {text,weight} items are not handled here.
func ResolveScenarioArray(texts []string, values map[string]string, catalog Catalog, opts Options) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = Resolve(t, values, catalog, opts).Text
	}
	return out
}
