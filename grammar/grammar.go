// Package grammar turns spoken-practice text into itemized issues, a
// corrected rendition and a score. Remote services are tried first; the
// local rule set is the floor every analysis degrades to.
package grammar

import (
	"context"
	"fmt"
)

// Issue offsets, when set, index into the original text. Offset and Length
// count UTF-16 code units for every analyzer, matching what LanguageTool
// reports.
type Issue struct {
	Message    string `yaml:"message"`
	Suggestion string `yaml:"suggestion"`
	Offset     *int   `yaml:"offset,omitempty"`
	Length     *int   `yaml:"length,omitempty"`
}

type Analysis struct {
	Corrected string
	Issues    []Issue
	Score     int
	Analyzer  string
	Degraded  bool
}

type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, text string) (Analysis, error)
}

const (
	minScore      = 50
	remotePenalty = 10
	localPenalty  = 15
)

// Score deducts penalty per issue from 100, floored at 50.
func Score(issues, penalty int) int {
	return max(minScore, 100-penalty*issues)
}

// HTTPError is a non-success response from a remote correction service.
type HTTPError struct {
	Service string
	Status  int
	Body    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Service, e.Status, e.Body)
}

// NetworkError wraps transport failures, including timeouts.
type NetworkError struct {
	Service string
	Err     error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func intPtr(v int) *int { return &v }
