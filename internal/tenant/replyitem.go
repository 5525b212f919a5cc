package tenant

import "fmt"

// ParseReplyItem normalizes the two accepted reply shapes — a bare
// string (weight defaults to 1) or an explicit {text, weight} pair —
// into a ReplyItem. Malformed shapes (empty text, weight <= 0 when
// explicitly given) are refused rather than silently dropped.
func ParseReplyItem(raw interface{}) (ReplyItem, error) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return ReplyItem{}, fmt.Errorf("reply item: empty text")
		}
		return ReplyItem{Text: v, Weight: 1}, nil
	case map[string]interface{}:
		text, _ := v["text"].(string)
		if text == "" {
			return ReplyItem{}, fmt.Errorf("reply item: missing text")
		}
		weight := 1.0
		if w, ok := v["weight"]; ok && w != nil {
			wf, ok := toFloat(w)
			if !ok {
				return ReplyItem{}, fmt.Errorf("reply item %q: weight is not numeric", text)
			}
			if wf <= 0 {
				return ReplyItem{}, fmt.Errorf("reply item %q: weight must be > 0, got %v", text, wf)
			}
			weight = wf
		}
		return ReplyItem{Text: text, Weight: weight}, nil
	default:
		return ReplyItem{}, fmt.Errorf("reply item: unsupported shape %T", raw)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// ParseReplyItems parses a slice of raw reply shapes, skipping (not
// erroring on) malformed individual items. Used where a partial result
// is acceptable; the load-time config path uses the fail-closed
// ParseReplyItemsStrict instead.
func ParseReplyItems(raw []interface{}) []ReplyItem {
	items := make([]ReplyItem, 0, len(raw))
	for _, r := range raw {
		item, err := ParseReplyItem(r)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items
}

// ParseReplyItemsStrict parses a slice of raw reply shapes, refusing
// the whole slice if any single item is malformed.
func ParseReplyItemsStrict(raw []interface{}) ([]ReplyItem, error) {
	items := make([]ReplyItem, 0, len(raw))
	for i, r := range raw {
		item, err := ParseReplyItem(r)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}
