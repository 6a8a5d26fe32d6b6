package main

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"speakup/cue"
	"speakup/feedback"
	"speakup/session"
	"speakup/stats"
)

type phaseMsg struct{ from, to session.Phase }
type recordingTickMsg struct{ elapsed int }
type audioLevelMsg struct{ level float64 }
type liveTranscriptMsg struct{ text string }
type feedbackMsg struct {
	report *feedback.Report
	totals stats.Stats
}

// tuiSink forwards engine events to the Bubble Tea program once attached.
type tuiSink struct {
	mu sync.Mutex
	p  *tea.Program
}

func (s *tuiSink) attach(p *tea.Program) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

func (s *tuiSink) send(msg tea.Msg) {
	s.mu.Lock()
	p := s.p
	s.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (s *tuiSink) PhaseChange(from, to session.Phase) {
	switch {
	case to == session.Recording:
		cue.Start()
	case from == session.Recording && to == session.Analyzing:
		cue.Stop()
	}
	s.send(phaseMsg{from, to})
}

func (s *tuiSink) RecordingTick(elapsed int)  { s.send(recordingTickMsg{elapsed}) }
func (s *tuiSink) AudioLevel(level float64)   { s.send(audioLevelMsg{level}) }
func (s *tuiSink) LiveTranscript(text string) { s.send(liveTranscriptMsg{text}) }

func (s *tuiSink) Feedback(r *feedback.Report, totals stats.Stats) {
	s.send(feedbackMsg{report: r, totals: totals})
}
