// Package feedback turns a transcript into a Report: corrections from the
// grammar analyzers plus a fixed set of practice suggestions.
package feedback

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"speakup/grammar"
)

// NoSpeechText is analyzed in place of a blank transcript.
const NoSpeechText = "No speech detected. Please try speaking more clearly."

const (
	SuggestLonger     = "Try to speak for longer periods to practice more complex sentences"
	SuggestFillers    = "Try to reduce filler words like 'um' and 'uh' for more confident speech"
	SuggestGrammar    = "Focus on grammar rules, especially articles and verb tenses"
	SuggestVocabulary = "Expand your vocabulary by using more descriptive words"
	TipPronunciation  = "Practice pronunciation of difficult words regularly"
	TipRecordOften    = "Record yourself more often to track improvement"
)

const (
	shortTextRunes = 50
	fewWords       = 10
)

var fillerWords = map[string]bool{"um": true, "uh": true}

// Report is built once per completed analysis and not modified afterwards.
type Report struct {
	ID               uuid.UUID       `yaml:"id"`
	CreatedAt        time.Time       `yaml:"created_at"`
	OriginalText     string          `yaml:"original_text"`
	CorrectedText    string          `yaml:"corrected_text"`
	Issues           []grammar.Issue `yaml:"issues"`
	Suggestions      []string        `yaml:"suggestions"`
	Score            int             `yaml:"score"`
	RecordingSeconds int             `yaml:"recording_seconds"`
	Analyzer         string          `yaml:"analyzer"`
	Degraded         bool            `yaml:"degraded"`
}

func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return enc.Close()
}

// Pipeline runs one analyzer per call. Analyzers other than a
// *grammar.Fallback are wrapped in one, so Analyze always yields a report.
type Pipeline struct {
	analyzer grammar.Analyzer
}

func NewPipeline(analyzer grammar.Analyzer) *Pipeline {
	if _, ok := analyzer.(*grammar.Fallback); !ok {
		analyzer = grammar.NewFallback(analyzer, grammar.NewLocal(), 0)
	}
	return &Pipeline{analyzer: analyzer}
}

// Analyzer returns the fallback-wrapped analyzer the pipeline runs.
func (p *Pipeline) Analyzer() grammar.Analyzer {
	return p.analyzer
}

func (p *Pipeline) AnalyzerName() string {
	return p.analyzer.Name()
}

func (p *Pipeline) Analyze(ctx context.Context, text string, recordingSeconds int) *Report {
	if strings.TrimSpace(text) == "" {
		text = NoSpeechText
	}

	a, err := p.analyzer.Analyze(ctx, text)
	if err != nil {
		// only reachable through a misbehaving Fallback wrapper
		a = grammar.NewLocal().Check(text)
		a.Degraded = true
	}

	return &Report{
		ID:               uuid.New(),
		CreatedAt:        time.Now(),
		OriginalText:     text,
		CorrectedText:    a.Corrected,
		Issues:           a.Issues,
		Suggestions:      Suggestions(text, len(a.Issues)),
		Score:            a.Score,
		RecordingSeconds: recordingSeconds,
		Analyzer:         a.Analyzer,
		Degraded:         a.Degraded,
	}
}

// Suggestions derives practice advice from the text alone and the number of
// grammar issues found, whichever analyzer found them.
func Suggestions(text string, issues int) []string {
	var out []string
	if utf8.RuneCountInString(text) < shortTextRunes {
		out = append(out, SuggestLonger)
	}
	if hasFiller(text) {
		out = append(out, SuggestFillers)
	}
	if issues > 0 {
		out = append(out, SuggestGrammar)
	}
	if len(strings.Fields(text)) < fewWords {
		out = append(out, SuggestVocabulary)
	}
	out = append(out, TipPronunciation, TipRecordOften)
	return dedupe(out)
}

func hasFiller(text string) bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	for _, w := range words {
		if fillerWords[w] {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// FormatElapsed renders whole seconds as m:ss.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
