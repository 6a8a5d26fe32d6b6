package main

import "time"

const (
	levelTick        = 100 * time.Millisecond
	silenceWarnAfter = 8 * time.Second
	silenceEndAfter  = 30 * time.Second
	voicedLevel      = 0.02 // RMS at or above which a tick counts as speech
	voicedMinRatio   = 0.10
	voicedClearRatio = 0.25 // higher than voicedMinRatio so the warning does not flicker
)

type silenceEvent int

const (
	silenceNone    silenceEvent = iota
	silenceWarn                 // no voice for the warn window
	silenceClear                // speech resumed after a warning
	silenceRemind               // still silent one warn window later
	silenceAutoEnd              // silent for the whole end window
)

// silenceMonitor watches per-tick audio levels of one recording.
type silenceMonitor struct {
	warnAt   int
	windowSz int
	autoEnd  bool

	ticks       int
	window      []bool
	voicedCount int
	warned      bool
	lastRemind  int
}

func newSilenceMonitor(autoEnd bool) *silenceMonitor {
	windowSz := int(silenceEndAfter / levelTick)
	return &silenceMonitor{
		warnAt:   int(silenceWarnAfter / levelTick),
		windowSz: windowSz,
		autoEnd:  autoEnd,
		window:   make([]bool, windowSz),
	}
}

// ratio is the voiced share of the last n ticks.
func (m *silenceMonitor) ratio(n int) float64 {
	n = min(n, m.ticks)
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := 0; i < n; i++ {
		if m.window[(m.ticks-1-i+m.windowSz)%m.windowSz] {
			count++
		}
	}
	return float64(count) / float64(n)
}

func (m *silenceMonitor) Observe(level float64) silenceEvent {
	voiced := level >= voicedLevel
	idx := m.ticks % m.windowSz
	if m.ticks >= m.windowSz && m.window[idx] {
		m.voicedCount--
	}
	m.window[idx] = voiced
	if voiced {
		m.voicedCount++
	}
	m.ticks++

	r := m.ratio(m.warnAt)
	if m.ticks >= m.warnAt && r < voicedMinRatio && !m.warned {
		m.warned = true
		m.lastRemind = m.ticks
		return silenceWarn
	}
	if m.warned && r >= voicedClearRatio {
		m.warned = false
		return silenceClear
	}

	if m.autoEnd && m.ticks >= m.windowSz && float64(m.voicedCount)/float64(m.windowSz) < voicedMinRatio {
		return silenceAutoEnd
	}
	if m.warned && m.ticks-m.lastRemind >= m.warnAt {
		m.lastRemind = m.ticks
		return silenceRemind
	}
	return silenceNone
}

func (m *silenceMonitor) Warned() bool { return m.warned }
