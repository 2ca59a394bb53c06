package ai

import (
	"encoding/json"

	"github.com/kaptinlin/jsonrepair"
)

// ExtractJSONArray returns the first top-level JSON array substring of s,
// found by bracket matching that skips brackets inside string literals.
func ExtractJSONArray(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if start >= 0 {
				inString = true
			}
		case '[':
			if start < 0 {
				start = i
			}
			depth++
		case ']':
			if start >= 0 {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// ParseCorrections scans model output for a corrections array and parses it.
// Model-emitted JSON is often slightly broken, so a failed parse is retried
// through jsonrepair. No array, or an unparseable one, yields an empty list
// rather than an error.
func ParseCorrections(output string) []GrammarCorrection {
	raw, ok := ExtractJSONArray(output)
	if !ok {
		return []GrammarCorrection{}
	}

	var corrections []GrammarCorrection
	if err := json.Unmarshal([]byte(raw), &corrections); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			return []GrammarCorrection{}
		}
		if err := json.Unmarshal([]byte(repaired), &corrections); err != nil {
			return []GrammarCorrection{}
		}
	}
	if corrections == nil {
		corrections = []GrammarCorrection{}
	}
	return corrections
}
