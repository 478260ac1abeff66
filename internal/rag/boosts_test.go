package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDefinitionQuery(t *testing.T) {
	config := DefaultRankingConfig()

	assert.True(t, isDefinitionQuery("What is gross revenue?", config))
	assert.True(t, isDefinitionQuery("what's the GSA", config))
	assert.True(t, isDefinitionQuery("give me the definition of utilization rate", config))
	assert.False(t, isDefinitionQuery("how do I schedule a patient", config))
}

func TestDefinitionTerm(t *testing.T) {
	config := DefaultRankingConfig()

	tests := []struct {
		query string
		want  string
	}{
		{"What is gross revenue?", "gross revenue"},
		{"what is GSA", "GSA"},
		{"definition of utilization rate, please", "utilization rate, please"},
		{"what is it?", ""},
		{"how to schedule", ""},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, definitionTerm(tt.query, config))
		})
	}
}

func TestIsFormulaQuery(t *testing.T) {
	config := DefaultRankingConfig()

	assert.True(t, isFormulaQuery("formula for gross revenue", config))
	assert.True(t, isFormulaQuery("how is utilization calculated", config))
	assert.True(t, isFormulaQuery("how to count normhours", config))
	assert.False(t, isFormulaQuery("where is the clinic", config))
}

func TestHasDefinition(t *testing.T) {
	assert.True(t, hasDefinition("**Gross Revenue** = total billed amount for the period"))
	assert.True(t, hasDefinition("**Gross Revenue (GR)** = total billed amount"))
	assert.True(t, hasDefinition("Utilization Rate (UR) = worked hours / available hours"))
	assert.False(t, hasDefinition("the gross revenue grew last quarter"))
	assert.False(t, hasDefinition("**bold text** without an equals sign"))
}

func TestHasFormula(t *testing.T) {
	assert.True(t, hasFormula("GR = visits * average check"))
	assert.True(t, hasFormula("NH: 4.5 per shift"))
	assert.False(t, hasFormula("patients are seen by appointment"))
}

func TestQueryVariables(t *testing.T) {
	config := DefaultRankingConfig()

	forms := queryVariables("how to calculate GR for a doctor", config)
	assert.ElementsMatch(t, []string{"gross", "revenue"}, forms)

	assert.Empty(t, queryVariables("degrees of freedom", config))
}

func TestContainsWord(t *testing.T) {
	assert.True(t, containsWord("calculate gr per doctor", "gr"))
	assert.True(t, containsWord("gr at line start", "gr"))
	assert.False(t, containsWord("degree of freedom", "gr"))
	assert.False(t, containsWord("regroup the team", "gr"))

	// Multibyte letters adjacent to the word are still word runes, not
	// boundaries.
	assert.False(t, containsWord("цифраgr formula", "gr"))
	assert.False(t, containsWord("формула grоss", "gr"))
	assert.True(t, containsWord("пример gr formula", "gr"))
}

func TestDefinesTerm(t *testing.T) {
	matcher := termMatcher("Gold Standard")

	assert.True(t, definesTerm(
		"**Gold Standard of Admission (GSA)** = the reference service protocol",
		"Gold Standard", matcher))
	assert.True(t, definesTerm(
		"**gold standard** = baseline care quality", "Gold Standard", matcher))
	assert.False(t, definesTerm(
		"the gold standard is described elsewhere", "Gold Standard", matcher))
	assert.False(t, definesTerm(
		"**Utilization Rate** = worked / available", "Gold Standard", matcher))
}
