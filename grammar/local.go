package grammar

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf16"
)

type substitution struct {
	pattern     *regexp.Regexp
	replacement string
	message     string
	suggestion  string
}

// Order matters: later rules see the output of earlier ones in the corrected text.
var substitutions = []substitution{
	{regexp.MustCompile(`\bi\b`), "I", `Capitalize "I" when referring to yourself`, `Use "I" instead of "i"`},
	{regexp.MustCompile(`(?i)\bim\b`), "I'm", "Use proper contraction", `Use "I'm" instead of "im"`},
	{regexp.MustCompile(`(?i)\bur\b`), "you're", "Use proper contraction", `Use "you're" instead of "ur"`},
	{regexp.MustCompile(`(?i)\bu\b`), "you", "Use proper word", `Use "you" instead of "u"`},
	{regexp.MustCompile(`\b2\b`), "to", "Use proper word", `Use "to" instead of "2"`},
	{regexp.MustCompile(`\b4\b`), "for", "Use proper word", `Use "for" instead of "4"`},
}

const minSentenceWords = 3

// Local is the deterministic rule-based analyzer. It never fails.
type Local struct{}

func NewLocal() *Local { return &Local{} }

func (l *Local) Name() string { return "local" }

func (l *Local) Analyze(_ context.Context, text string) (Analysis, error) {
	return l.Check(text), nil
}

// Check applies every rule to text. One issue is recorded per matching rule,
// located at its first match.
func (l *Local) Check(text string) Analysis {
	var issues []Issue
	corrected := text

	for _, sub := range substitutions {
		loc := sub.pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		issues = append(issues, Issue{
			Message:    sub.message,
			Suggestion: sub.suggestion,
			Offset:     intPtr(utf16Len(text[:loc[0]])),
			Length:     intPtr(utf16Len(text[loc[0]:loc[1]])),
		})
		corrected = sub.pattern.ReplaceAllLiteralString(corrected, sub.replacement)
	}

	if !hasTerminalPunctuation(text) {
		issues = append(issues, Issue{
			Message:    "Missing punctuation",
			Suggestion: "Add appropriate punctuation at the end of your sentence",
		})
		corrected = strings.TrimRight(corrected, " \t\r\n") + "."
	}

	if len(strings.Fields(text)) < minSentenceWords {
		issues = append(issues, Issue{
			Message:    "Very short sentence",
			Suggestion: "Try to form more complete sentences",
		})
	}

	return Analysis{
		Corrected: corrected,
		Issues:    issues,
		Score:     Score(len(issues), localPenalty),
		Analyzer:  l.Name(),
	}
}

func hasTerminalPunctuation(text string) bool {
	t := strings.TrimRight(text, " \t\r\n")
	return strings.HasSuffix(t, ".") || strings.HasSuffix(t, "!") || strings.HasSuffix(t, "?")
}

func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}
