package qdrant

// Filter is a conjunctive predicate over payload fields, in Qdrant's
// native JSON shape.
type Filter map[string]interface{}

// Condition is a single payload predicate.
type Condition map[string]interface{}

// Must builds a filter requiring every condition to hold.
func Must(conditions ...Condition) Filter {
	if len(conditions) == 0 {
		return nil
	}
	return Filter{"must": conditions}
}

// MatchValue matches a payload field exactly.
func MatchValue(key string, value interface{}) Condition {
	return Condition{
		"key":   key,
		"match": map[string]interface{}{"value": value},
	}
}

// MatchText matches a payload field by full-text/substring match.
func MatchText(key, text string) Condition {
	return Condition{
		"key":   key,
		"match": map[string]interface{}{"text": text},
	}
}

// MatchAnyInt matches a payload field against a set of integer values.
func MatchAnyInt(key string, values []int) Condition {
	return Condition{
		"key":   key,
		"match": map[string]interface{}{"any": values},
	}
}
