// Package session drives a practice session through Ready, Recording,
// Analyzing and Results, wiring capture, analysis and the stats ledger.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"speakup/audio"
	"speakup/capture"
	"speakup/feedback"
	"speakup/log"
	"speakup/stats"
	"speakup/transcriber"
)

var (
	ErrCaptureUnavailable    = errors.New("audio capture unavailable")
	ErrSessionAlreadyActive  = errors.New("session already active")
	ErrNotRecording          = errors.New("not recording")
	ErrManualEntryNotAllowed = errors.New("manual entry only allowed on results with an empty transcript")
)

type Options struct {
	Audio       audio.Context
	Transcriber transcriber.Transcriber // nil records audio only
	Capture     capture.Config          // callbacks are set by the engine
	Pipeline    *feedback.Pipeline
	Ledger      *stats.Ledger
	Sink        Sink
}

// Snapshot is a read-only view of the engine.
type Snapshot struct {
	Phase          Phase
	CaptureID      uuid.UUID
	Elapsed        int
	LiveTranscript string
	Frozen         *capture.Session
	Report         *feedback.Report
	Stats          stats.Stats
}

// Engine runs one session at a time. A report is held only in Results.
type Engine struct {
	coord    *capture.Coordinator
	pipeline *feedback.Pipeline
	ledger   *stats.Ledger
	sink     Sink

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	phase     Phase
	starting  bool
	resets    int
	captureID uuid.UUID
	ticket    uuid.UUID // identity of the analysis allowed to publish
	frozen    *capture.Session
	report    *feedback.Report
	reports   int
}

func New(opts Options) (*Engine, error) {
	if opts.Audio == nil {
		return nil, errors.New("session: audio context required")
	}
	if opts.Pipeline == nil {
		return nil, errors.New("session: feedback pipeline required")
	}
	if opts.Ledger == nil {
		l, err := stats.NewLedger(nil)
		if err != nil {
			return nil, err
		}
		opts.Ledger = l
	}
	if opts.Sink == nil {
		opts.Sink = NopSink{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		pipeline: opts.Pipeline,
		ledger:   opts.Ledger,
		sink:     opts.Sink,
		ctx:      ctx,
		cancel:   cancel,
	}

	cfg := opts.Capture
	cfg.OnTick = e.onTick
	cfg.OnTranscript = e.onTranscript
	cfg.OnLevel = e.onLevel
	e.coord = capture.New(opts.Audio, opts.Transcriber, cfg)

	transcriberName := "none"
	if opts.Transcriber != nil {
		transcriberName = opts.Transcriber.Name()
	}
	log.SessionStart(transcriberName, opts.Pipeline.AnalyzerName(), cfg.Stream.Language)
	return e, nil
}

// Begin starts recording. It fails with ErrSessionAlreadyActive outside
// Ready and with ErrCaptureUnavailable when the audio device cannot be
// acquired; in both cases the phase is unchanged.
func (e *Engine) Begin() error {
	e.mu.Lock()
	if e.phase != Ready || e.starting {
		e.mu.Unlock()
		return ErrSessionAlreadyActive
	}
	e.starting = true
	e.frozen = nil
	resets := e.resets
	e.mu.Unlock()

	id, err := e.coord.Start(e.ctx)

	e.mu.Lock()
	e.starting = false
	if err != nil {
		e.mu.Unlock()
		log.Errorf("begin: %v", err)
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	if e.resets != resets {
		e.mu.Unlock()
		e.coord.Stop(id)
		return fmt.Errorf("%w: reset while starting", ErrCaptureUnavailable)
	}
	e.captureID = id
	e.phase = Recording
	e.mu.Unlock()

	e.emitPhase(id, Ready, Recording)
	return nil
}

// End freezes the capture and analyzes its transcript in the background.
// No transcript segment is accepted once End returns; the devices are
// released on the background goroutine.
func (e *Engine) End() error {
	e.mu.Lock()
	if e.phase != Recording {
		e.mu.Unlock()
		return ErrNotRecording
	}
	e.phase = Analyzing
	ticket := uuid.New()
	e.ticket = ticket
	id := e.captureID
	e.coord.Freeze(id)
	e.mu.Unlock()

	e.emitPhase(id, Recording, Analyzing)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		sess, ok := e.coord.Stop(id)

		e.mu.Lock()
		if !ok || e.ticket != ticket {
			e.mu.Unlock()
			return
		}
		e.frozen = &sess
		e.mu.Unlock()

		e.analyze(ticket, id, sess.Transcript(), sess.ElapsedSeconds)
	}()
	return nil
}

// SubmitManualText re-runs analysis on typed text. It is allowed only in
// Results when the recorded transcript was blank.
func (e *Engine) SubmitManualText(text string) error {
	e.mu.Lock()
	if e.phase != Results || e.frozen == nil || strings.TrimSpace(e.frozen.Transcript()) != "" {
		e.mu.Unlock()
		return ErrManualEntryNotAllowed
	}
	e.phase = Analyzing
	e.report = nil
	ticket := uuid.New()
	e.ticket = ticket
	id := e.captureID
	secs := e.frozen.ElapsedSeconds
	e.mu.Unlock()

	e.emitPhase(id, Results, Analyzing)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.analyze(ticket, id, text, secs)
	}()
	return nil
}

func (e *Engine) analyze(ticket, id uuid.UUID, text string, secs int) {
	report := e.pipeline.Analyze(e.ctx, text, secs)

	e.mu.Lock()
	if e.ticket != ticket || e.phase != Analyzing {
		e.mu.Unlock()
		log.Info("analysis discarded after reset: " + id.String())
		return
	}
	entry := e.ledger.Apply(report.Score)
	e.phase = Results
	e.report = report
	e.reports++
	e.mu.Unlock()

	log.Feedback(id.String(), report.Score, len(report.Issues), report.Analyzer, report.Degraded, report.RecordingSeconds)
	log.PracticeText(report.Score, report.OriginalText)

	e.emitPhase(id, Analyzing, Results)
	e.sink.Feedback(report, entry.After)
}

// Reset abandons whatever is in progress and returns to Ready. A running
// capture is stopped and its devices released before Reset returns; one
// still being started is released by Begin. An analysis still in flight is
// discarded when it completes.
func (e *Engine) Reset() {
	e.mu.Lock()
	from := e.phase
	id := e.captureID
	e.resets++
	e.phase = Ready
	e.ticket = uuid.Nil
	e.captureID = uuid.Nil
	e.frozen = nil
	e.report = nil
	e.mu.Unlock()

	e.coord.Stop(id)

	if from != Ready {
		e.emitPhase(id, from, Ready)
	}
}

func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Report returns the current report, non-nil only in Results.
func (e *Engine) Report() *feedback.Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.report
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	s := Snapshot{
		Phase:     e.phase,
		CaptureID: e.captureID,
		Frozen:    e.frozen,
		Report:    e.report,
	}
	e.mu.Unlock()

	switch {
	case s.Phase == Recording:
		s.Elapsed = e.coord.Elapsed()
		s.LiveTranscript = e.coord.Transcript()
	case s.Frozen != nil:
		s.Elapsed = s.Frozen.ElapsedSeconds
		s.LiveTranscript = s.Frozen.Transcript()
	}
	s.Stats = e.ledger.Stats()
	return s
}

// History lists up to limit past reports applied to the ledger, newest first.
func (e *Engine) History(limit int) ([]stats.Entry, error) {
	return e.ledger.History(limit)
}

// Wait blocks until no analysis is in flight.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close resets the engine and waits for background work to drain.
func (e *Engine) Close() {
	e.Reset()
	e.cancel()
	e.wg.Wait()

	e.mu.Lock()
	n := e.reports
	e.mu.Unlock()
	log.SessionEnd(n)
}

func (e *Engine) emitPhase(id uuid.UUID, from, to Phase) {
	log.PhaseChange(id.String(), from.String(), to.String())
	e.sink.PhaseChange(from, to)
}

// current reports whether capture events for id should reach the sink. While
// Begin is in flight the ID is not known yet; the coordinator only runs one
// capture, so its events belong to the one being started.
func (e *Engine) current(id uuid.UUID) bool {
	return e.starting || (e.phase == Recording && e.captureID == id)
}

func (e *Engine) onTick(id uuid.UUID, elapsed int) {
	e.mu.Lock()
	ok := e.current(id)
	e.mu.Unlock()
	if ok {
		e.sink.RecordingTick(elapsed)
	}
}

func (e *Engine) onTranscript(id uuid.UUID, text string) {
	e.mu.Lock()
	ok := e.current(id)
	e.mu.Unlock()
	if ok {
		e.sink.LiveTranscript(text)
	}
}

func (e *Engine) onLevel(id uuid.UUID, level float64) {
	e.mu.Lock()
	ok := e.current(id)
	e.mu.Unlock()
	if ok {
		e.sink.AudioLevel(level)
	}
}
