package rag

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Definition lines follow the corpus convention of a bold term, an
// optional parenthesized abbreviation and an equals sign:
//
//	**Gross Revenue (GR)** = total billed amount ...
var definitionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\*\*[\p{L}][\p{L}\d ]*\*\*\s*=`),
	regexp.MustCompile(`\*\*[\p{L}][\p{L}\d ]*\([\p{L}]+\)\*\*\s*=`),
	regexp.MustCompile(`[\p{L}][\p{L} ]*\(\p{Lu}+\)\s*=`),
}

// Formula lines are an uppercase variable assigned an arithmetic
// expression, or an all-caps abbreviation introducing a value.
var formulaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\p{Lu}[\p{L}\d]*\s*=\s*[\p{L}\d\s+\-*/().,%]+`),
	regexp.MustCompile(`\b\p{Lu}{2,}\s*[=:]`),
}

// isDefinitionQuery reports whether the query asks for the meaning of a
// term rather than a general explanation.
func isDefinitionQuery(query string, config *RankingConfig) bool {
	lower := strings.ToLower(query)
	for _, keyword := range config.DefinitionKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// definitionTerm extracts the term being asked about. It takes the text
// after the definition keyword, trims question punctuation and returns
// the empty string when what remains is too short to be a real term.
func definitionTerm(query string, config *RankingConfig) string {
	lower := strings.ToLower(query)
	for _, keyword := range config.DefinitionKeywords {
		idx := strings.Index(lower, keyword)
		if idx < 0 {
			continue
		}
		term := query[idx+len(keyword):]
		term = strings.TrimFunc(term, func(r rune) bool {
			return unicode.IsSpace(r) || unicode.IsPunct(r)
		})
		if len([]rune(term)) > 2 {
			return term
		}
	}
	return ""
}

// isFormulaQuery reports whether the query is about a calculation.
func isFormulaQuery(query string, config *RankingConfig) bool {
	lower := strings.ToLower(query)
	for _, keyword := range config.FormulaKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// hasDefinition reports whether the chunk text contains a definition line.
func hasDefinition(text string) bool {
	for _, pattern := range definitionPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// hasFormula reports whether the chunk text contains a formula line.
func hasFormula(text string) bool {
	for _, pattern := range formulaPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// queryVariables returns the surface forms of every formula variable
// mentioned in the query.
func queryVariables(query string, config *RankingConfig) []string {
	lower := strings.ToLower(query)
	var forms []string
	for abbr, surface := range config.FormulaVariables {
		if containsWord(lower, abbr) {
			forms = append(forms, surface...)
		}
	}
	return forms
}

// containsWord reports whether word occurs in text on word boundaries,
// so "gr" does not match inside "degree".
func containsWord(text, word string) bool {
	idx := 0
	for {
		pos := strings.Index(text[idx:], word)
		if pos < 0 {
			return false
		}
		start := idx + pos
		end := start + len(word)
		beforeOK := true
		if start > 0 {
			r, _ := utf8.DecodeLastRuneInString(text[:start])
			beforeOK = !isWordRune(r)
		}
		afterOK := true
		if end < len(text) {
			r, _ := utf8.DecodeRuneInString(text[end:])
			afterOK = !isWordRune(r)
		}
		if beforeOK && afterOK {
			return true
		}
		idx = end
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// termMatcher compiles a matcher for a definition of the given term:
// a bold span containing the term followed by an equals sign.
func termMatcher(term string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(term)
	return regexp.MustCompile(`(?i)\*\*[^*]*` + quoted + `[^*]*\*\*\s*=`)
}

// definesTerm reports whether the chunk text defines the term. The
// cheap substring check runs first; the matcher confirms the term sits
// inside a bold definition line rather than anywhere in the text.
func definesTerm(text, term string, matcher *regexp.Regexp) bool {
	if !strings.Contains(strings.ToLower(text), strings.ToLower(term)) {
		return false
	}
	return matcher.MatchString(text)
}
