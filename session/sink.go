package session

import (
	"speakup/feedback"
	"speakup/stats"
)

// Sink receives engine events so a display layer can follow along. Methods
// are called without engine locks held and may query the engine.
type Sink interface {
	PhaseChange(from, to Phase)
	RecordingTick(elapsed int)
	AudioLevel(level float64)
	LiveTranscript(text string)
	Feedback(report *feedback.Report, totals stats.Stats)
}

type NopSink struct{}

func (NopSink) PhaseChange(Phase, Phase)               {}
func (NopSink) RecordingTick(int)                      {}
func (NopSink) AudioLevel(float64)                     {}
func (NopSink) LiveTranscript(string)                  {}
func (NopSink) Feedback(*feedback.Report, stats.Stats) {}
