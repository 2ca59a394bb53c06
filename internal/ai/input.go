package ai

import "strings"

// GrammarInput is a tagged grammar-check input: either raw text to proofread
// or an already fully-formed instructional prompt that must not be re-wrapped
// in another instruction template. The tag is decided by the caller; boundary
// callers that only have a bare string can use DetectGrammarInput.
type GrammarInput struct {
	Text     string `json:"text"`
	Prepared bool   `json:"prepared"`
}

// RawText tags s as raw text to be proofread.
func RawText(s string) GrammarInput {
	return GrammarInput{Text: s}
}

// PreparedPrompt tags s as a fully-formed instructional prompt.
func PreparedPrompt(s string) GrammarInput {
	return GrammarInput{Text: s, Prepared: true}
}

// preparedMarkers are the substrings the legacy heuristic looked for to decide
// an input is already an instructional prompt. Callers depend on these exact
// containment checks, so the set is part of the contract.
var preparedMarkers = []string{
	"JSON array",
	"You are a",
	"Respond only with",
}

// DetectGrammarInput classifies a bare string using the legacy
// substring-sniffing heuristic.
func DetectGrammarInput(s string) GrammarInput {
	for _, marker := range preparedMarkers {
		if strings.Contains(s, marker) {
			return PreparedPrompt(s)
		}
	}
	return RawText(s)
}
