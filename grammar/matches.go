package grammar

import (
	"sort"
	"unicode/utf16"
)

const genericSuggestion = "Consider rephrasing"

// Match is one finding reported by a remote correction service. Offset and
// Length count UTF-16 code units, as LanguageTool reports them.
type Match struct {
	Message      string
	Offset       int
	Length       int
	Replacements []string
}

// fromMatches builds a remote analysis: one issue per match, corrected text
// from each match's best replacement.
func fromMatches(analyzer, text string, matches []Match) Analysis {
	issues := make([]Issue, 0, len(matches))
	for _, m := range matches {
		suggestion := genericSuggestion
		if len(m.Replacements) > 0 && m.Replacements[0] != "" {
			suggestion = m.Replacements[0]
		}
		issues = append(issues, Issue{
			Message:    m.Message,
			Suggestion: suggestion,
			Offset:     intPtr(m.Offset),
			Length:     intPtr(m.Length),
		})
	}
	return Analysis{
		Corrected: applyReplacements(text, matches),
		Issues:    issues,
		Score:     Score(len(issues), remotePenalty),
		Analyzer:  analyzer,
	}
}

// applyReplacements splices first replacements into text, back to front.
// Matches that overlap an already applied one, fall outside the text or
// carry no replacement are skipped.
func applyReplacements(text string, matches []Match) string {
	units := utf16.Encode([]rune(text))

	ordered := make([]Match, 0, len(matches))
	for _, m := range matches {
		if len(m.Replacements) == 0 || m.Offset < 0 || m.Length < 0 || m.Offset+m.Length > len(units) {
			continue
		}
		ordered = append(ordered, m)
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Offset > ordered[j].Offset })

	limit := len(units)
	for _, m := range ordered {
		end := m.Offset + m.Length
		if end > limit {
			continue
		}
		repl := utf16.Encode([]rune(m.Replacements[0]))
		spliced := make([]uint16, 0, len(units)-m.Length+len(repl))
		spliced = append(spliced, units[:m.Offset]...)
		spliced = append(spliced, repl...)
		spliced = append(spliced, units[end:]...)
		units = spliced
		limit = m.Offset
	}
	return string(utf16.Decode(units))
}
