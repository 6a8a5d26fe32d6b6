// Package cue plays the short tones that mark recording start, recording
// stop and a silent microphone.
package cue

import (
	"math"
	"sync/atomic"
)

const sampleRate = 44100

// Tone is a decaying sine burst.
type Tone struct {
	Freq    float64
	Seconds float64
	Volume  float64
	Decay   float64
}

var (
	StartTone   = Tone{Freq: 1200, Seconds: 0.2, Volume: 0.5, Decay: 60}
	StopTone    = Tone{Freq: 900, Seconds: 0.2, Volume: 0.5, Decay: 40}
	NoVoiceTone = Tone{Freq: 350, Seconds: 0.08, Volume: 0.6, Decay: 30}
)

const noVoiceGap = 0.05

var disabled atomic.Bool

// Disable silences every cue for the rest of the process.
func Disable() { disabled.Store(true) }

func Enabled() bool { return !disabled.Load() }

// Synthesize renders t as mono 16-bit samples.
func Synthesize(t Tone) []int16 {
	n := int(float64(sampleRate) * t.Seconds)
	samples := make([]int16, n)
	for i := range samples {
		at := float64(i) / sampleRate
		envelope := math.Exp(-at * t.Decay)
		samples[i] = int16(math.Sin(2*math.Pi*t.Freq*at) * 32767 * t.Volume * envelope)
	}
	return samples
}

// doubled plays t twice with a gap of silence between.
func doubled(t Tone, gapSeconds float64) []int16 {
	burst := Synthesize(t)
	gap := int(sampleRate * gapSeconds)
	out := make([]int16, 0, 2*len(burst)+gap)
	out = append(out, burst...)
	out = append(out, make([]int16, gap)...)
	return append(out, burst...)
}

func Start() { play(Synthesize(StartTone)) }

func Stop() { play(Synthesize(StopTone)) }

// NoVoice is the low double beep for a microphone that hears nothing.
func NoVoice() { play(doubled(NoVoiceTone, noVoiceGap)) }

func play(samples []int16) {
	if disabled.Load() || len(samples) == 0 {
		return
	}
	go playSamples(samples)
}
