package session

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"speakup/audio"
	"speakup/capture"
	"speakup/feedback"
	"speakup/grammar"
	"speakup/stats"
	"speakup/transcriber"
)

type recordingSink struct {
	mu          sync.Mutex
	phases      [][2]Phase
	ticks       int
	transcripts []string
	reports     []*feedback.Report
}

func (s *recordingSink) PhaseChange(from, to Phase) {
	s.mu.Lock()
	s.phases = append(s.phases, [2]Phase{from, to})
	s.mu.Unlock()
}

func (s *recordingSink) RecordingTick(int) {
	s.mu.Lock()
	s.ticks++
	s.mu.Unlock()
}

func (s *recordingSink) AudioLevel(float64) {}

func (s *recordingSink) LiveTranscript(text string) {
	s.mu.Lock()
	s.transcripts = append(s.transcripts, text)
	s.mu.Unlock()
}

func (s *recordingSink) Feedback(r *feedback.Report, _ stats.Stats) {
	s.mu.Lock()
	s.reports = append(s.reports, r)
	s.mu.Unlock()
}

func (s *recordingSink) phaseLog() [][2]Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][2]Phase(nil), s.phases...)
}

func (s *recordingSink) transcriptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transcripts)
}

func (s *recordingSink) reportCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

// gateAnalyzer blocks until released, standing in for a slow remote service.
type gateAnalyzer struct {
	release chan struct{}
	calls   atomic.Int32
}

func newGate() *gateAnalyzer { return &gateAnalyzer{release: make(chan struct{})} }

func (g *gateAnalyzer) Name() string { return "gate" }

func (g *gateAnalyzer) Analyze(ctx context.Context, text string) (grammar.Analysis, error) {
	g.calls.Add(1)
	select {
	case <-g.release:
		return grammar.Analysis{Corrected: text, Score: 90, Analyzer: "gate"}, nil
	case <-ctx.Done():
		return grammar.Analysis{}, ctx.Err()
	}
}

type failingAnalyzer struct{}

func (failingAnalyzer) Name() string { return "remote" }

func (failingAnalyzer) Analyze(context.Context, string) (grammar.Analysis, error) {
	return grammar.Analysis{}, &grammar.NetworkError{Service: "remote", Err: errors.New("connection refused")}
}

type harness struct {
	engine *Engine
	actx   *audio.FakeContext
	stt    *transcriber.FakeTranscriber
	sink   *recordingSink
	ledger *stats.Ledger
}

type harnessOpts struct {
	script   []transcriber.Segment
	noSTT    bool
	deny     bool
	analyzer grammar.Analyzer
}

func newHarness(t *testing.T, o harnessOpts) *harness {
	t.Helper()
	h := &harness{
		actx: audio.NewFakePCMContext(make([]byte, 16000), false),
		sink: &recordingSink{},
	}
	h.actx.Deny = o.deny
	var stt transcriber.Transcriber
	if !o.noSTT {
		h.stt = transcriber.NewFake(o.script, 5*time.Millisecond, nil)
		stt = h.stt
	}
	analyzer := o.analyzer
	if analyzer == nil {
		analyzer = grammar.NewLocal()
	}
	ledger, err := stats.NewLedger(stats.NewMemoryStore())
	if err != nil {
		t.Fatal(err)
	}
	h.ledger = ledger

	e, err := New(Options{
		Audio:       h.actx,
		Transcriber: stt,
		Capture:     capture.Config{Tick: 10 * time.Millisecond},
		Pipeline:    feedback.NewPipeline(grammar.NewFallback(analyzer, nil, 2*time.Second)),
		Ledger:      ledger,
		Sink:        h.sink,
	})
	if err != nil {
		t.Fatal(err)
	}
	h.engine = e
	t.Cleanup(e.Close)
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestPhaseString(t *testing.T) {
	for p, want := range map[Phase]string{Ready: "ready", Recording: "recording", Analyzing: "analyzing", Results: "results", Phase(9): "unknown"} {
		if p.String() != want {
			t.Errorf("%d.String() = %q", p, p.String())
		}
	}
}

func TestFullSession(t *testing.T) {
	h := newHarness(t, harnessOpts{script: []transcriber.Segment{
		{Text: "i am", Sequence: 0},
		{Text: "i am go to school", Sequence: 0, IsFinal: true},
	}})
	e := h.engine

	if e.Report() != nil {
		t.Fatal("report exposed in Ready")
	}
	if err := e.Begin(); err != nil {
		t.Fatal(err)
	}
	if e.Phase() != Recording {
		t.Fatalf("phase = %v", e.Phase())
	}
	waitFor(t, "live transcript", func() bool { return e.Snapshot().LiveTranscript == "i am go to school" })
	waitFor(t, "elapsed tick", func() bool { return e.Snapshot().Elapsed >= 1 })
	if e.Report() != nil {
		t.Fatal("report exposed while recording")
	}

	if err := e.End(); err != nil {
		t.Fatal(err)
	}
	e.Wait()

	snap := e.Snapshot()
	if snap.Phase != Results || snap.Report == nil {
		t.Fatalf("snapshot = %+v", snap)
	}
	r := snap.Report
	if r.OriginalText != "i am go to school" || r.CorrectedText != "I am go to school." || r.Score != 70 {
		t.Errorf("report = %+v", r)
	}
	if r.RecordingSeconds < 1 || r.RecordingSeconds != snap.Frozen.ElapsedSeconds {
		t.Errorf("recording seconds = %d, frozen = %d", r.RecordingSeconds, snap.Frozen.ElapsedSeconds)
	}
	if snap.Stats != (stats.Stats{Coins: 7}) {
		t.Errorf("stats = %+v", snap.Stats)
	}

	want := [][2]Phase{{Ready, Recording}, {Recording, Analyzing}, {Analyzing, Results}}
	if got := h.sink.phaseLog(); !reflect.DeepEqual(got, want) {
		t.Errorf("phases = %v, want %v", got, want)
	}
	if h.sink.reportCount() != 1 {
		t.Errorf("feedback events = %d", h.sink.reportCount())
	}

	capt := h.actx.Captures()[0]
	if capt.Running() || !capt.Closed() {
		t.Error("audio device held after End")
	}
	if !h.stt.Streams()[0].Closed() {
		t.Error("transcriber subscription held after End")
	}
}

func TestBeginDenied(t *testing.T) {
	h := newHarness(t, harnessOpts{deny: true})
	err := h.engine.Begin()
	if !errors.Is(err, ErrCaptureUnavailable) {
		t.Fatalf("err = %v, want ErrCaptureUnavailable", err)
	}
	snap := h.engine.Snapshot()
	if snap.Phase != Ready || snap.Frozen != nil || snap.CaptureID.String() != "00000000-0000-0000-0000-000000000000" {
		t.Errorf("snapshot after denial = %+v", snap)
	}
	if len(h.sink.phaseLog()) != 0 {
		t.Errorf("phase events after denial: %v", h.sink.phaseLog())
	}
	if err := h.engine.End(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("End after denial: %v", err)
	}
}

func TestBeginWhileActive(t *testing.T) {
	h := newHarness(t, harnessOpts{noSTT: true})
	e := h.engine
	if err := e.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := e.Begin(); !errors.Is(err, ErrSessionAlreadyActive) {
		t.Errorf("second Begin: %v", err)
	}
	if e.Phase() != Recording || len(h.actx.Captures()) != 1 {
		t.Error("rejected Begin changed state")
	}

	e.End()
	e.Wait()
	if err := e.Begin(); !errors.Is(err, ErrSessionAlreadyActive) {
		t.Errorf("Begin in Results: %v", err)
	}
	e.Reset()
	if err := e.Begin(); err != nil {
		t.Errorf("Begin after Reset: %v", err)
	}
}

func TestEndRequiresRecording(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	if err := h.engine.End(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("err = %v", err)
	}
}

func TestBlankTranscriptAndManualEntry(t *testing.T) {
	h := newHarness(t, harnessOpts{noSTT: true})
	e := h.engine

	if err := e.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := e.End(); err != nil {
		t.Fatal(err)
	}
	e.Wait()

	r := e.Report()
	if r == nil || r.OriginalText != feedback.NoSpeechText {
		t.Fatalf("report = %+v", r)
	}
	first := h.ledger.Stats()

	if err := e.SubmitManualText("You're welcome here."); err != nil {
		t.Fatal(err)
	}
	e.Wait()

	r2 := e.Report()
	if r2 == nil || r2.OriginalText != "You're welcome here." || r2.ID == r.ID {
		t.Fatalf("manual report = %+v", r2)
	}
	if e.Phase() != Results {
		t.Errorf("phase = %v", e.Phase())
	}
	after := h.ledger.Stats()
	if after.Coins != first.Coins+r2.Score/10 {
		t.Errorf("coins %d -> %d for score %d", first.Coins, after.Coins, r2.Score)
	}

	phases := h.sink.phaseLog()
	tail := phases[len(phases)-2:]
	if !reflect.DeepEqual(tail, [][2]Phase{{Results, Analyzing}, {Analyzing, Results}}) {
		t.Errorf("manual phases = %v", tail)
	}
}

func TestManualEntryRejected(t *testing.T) {
	h := newHarness(t, harnessOpts{script: []transcriber.Segment{{Text: "hello world again", IsFinal: true}}})
	e := h.engine

	if err := e.SubmitManualText("x"); !errors.Is(err, ErrManualEntryNotAllowed) {
		t.Errorf("in Ready: %v", err)
	}
	if err := e.Begin(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "transcript", func() bool { return e.Snapshot().LiveTranscript != "" })
	e.End()
	e.Wait()

	if err := e.SubmitManualText("typed instead"); !errors.Is(err, ErrManualEntryNotAllowed) {
		t.Errorf("with spoken transcript: %v", err)
	}
	if e.Report().OriginalText != "hello world again" {
		t.Errorf("report replaced: %+v", e.Report())
	}
}

func TestResetMidCaptureReleasesDevices(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	e := h.engine
	if err := e.Begin(); err != nil {
		t.Fatal(err)
	}
	e.Reset()

	if e.Phase() != Ready {
		t.Errorf("phase = %v", e.Phase())
	}
	capt := h.actx.Captures()[0]
	if capt.Running() || !capt.Closed() {
		t.Error("audio device not released by Reset")
	}
	if !h.stt.Streams()[0].Closed() {
		t.Error("transcriber not unsubscribed by Reset")
	}
	if h.ledger.Stats() != (stats.Stats{}) {
		t.Error("ledger touched by abandoned session")
	}
}

func TestResetDiscardsInFlightAnalysis(t *testing.T) {
	gate := newGate()
	h := newHarness(t, harnessOpts{noSTT: true, analyzer: gate})
	e := h.engine

	if err := e.Begin(); err != nil {
		t.Fatal(err)
	}
	e.End()
	waitFor(t, "analysis to start", func() bool { return gate.calls.Load() == 1 })
	if e.Report() != nil {
		t.Fatal("partial report exposed while analyzing")
	}

	e.Reset()
	if err := e.Begin(); err != nil {
		t.Fatal(err)
	}
	close(gate.release)
	e.End()
	e.Wait()

	// only the second session's analysis lands
	if h.sink.reportCount() != 1 {
		t.Errorf("reports delivered = %d, want 1", h.sink.reportCount())
	}
	if h.ledger.Stats().Coins != 9 {
		t.Errorf("coins = %d, want 9", h.ledger.Stats().Coins)
	}
}

func TestStaleAnalysisAfterReset(t *testing.T) {
	gate := newGate()
	h := newHarness(t, harnessOpts{noSTT: true, analyzer: gate})
	e := h.engine

	e.Begin()
	e.End()
	waitFor(t, "analysis to start", func() bool { return gate.calls.Load() == 1 })
	e.Reset()
	close(gate.release)
	e.Wait()

	if e.Phase() != Ready || e.Report() != nil {
		t.Errorf("stale result published: phase=%v report=%+v", e.Phase(), e.Report())
	}
	if h.ledger.Stats() != (stats.Stats{}) {
		t.Errorf("stale result applied to ledger: %+v", h.ledger.Stats())
	}
}

func TestLateTranscriptAfterEnd(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	e := h.engine
	e.Begin()
	h.stt.Deliver(transcriber.Segment{Text: "hello", IsFinal: true})
	waitFor(t, "live transcript", func() bool { return h.sink.transcriptCount() == 1 })

	e.End()
	e.Wait()
	h.stt.Deliver(transcriber.Segment{Text: "late words", Sequence: 1, IsFinal: true})

	if h.sink.transcriptCount() != 1 {
		t.Error("late segment forwarded after End")
	}
	if e.Report().OriginalText != "hello" {
		t.Errorf("late segment reached the report: %q", e.Report().OriginalText)
	}
}

func TestRemoteFailureDegrades(t *testing.T) {
	h := newHarness(t, harnessOpts{
		script:   []transcriber.Segment{{Text: "im going 2 the park", IsFinal: true}},
		analyzer: failingAnalyzer{},
	})
	e := h.engine
	e.Begin()
	waitFor(t, "transcript", func() bool { return e.Snapshot().LiveTranscript != "" })
	e.End()
	e.Wait()

	r := e.Report()
	local := grammar.NewLocal().Check("im going 2 the park")
	if !r.Degraded || r.Score != local.Score || !reflect.DeepEqual(r.Issues, local.Issues) {
		t.Errorf("report = %+v, local = %+v", r, local)
	}
	if e.Phase() != Results {
		t.Errorf("phase = %v", e.Phase())
	}
}

func TestScoreAlwaysInRange(t *testing.T) {
	texts := []string{"", "u", "i im ur u 2 4", "A perfectly fine sentence with enough words to pass."}
	for _, text := range texts {
		h := newHarness(t, harnessOpts{noSTT: true})
		e := h.engine
		e.Begin()
		e.End()
		e.Wait()
		if text != "" {
			if err := e.SubmitManualText(text); err != nil {
				t.Fatal(err)
			}
			e.Wait()
		}
		if s := e.Report().Score; s < 50 || s > 100 {
			t.Errorf("score %d for %q", s, text)
		}
	}
}

func TestEndResetBeginCycles(t *testing.T) {
	h := newHarness(t, harnessOpts{noSTT: true})
	e := h.engine

	for i := 0; i < 200; i++ {
		if err := e.Begin(); err != nil {
			t.Fatalf("cycle %d: first Begin: %v", i, err)
		}
		if err := e.End(); err != nil {
			t.Fatalf("cycle %d: first End: %v", i, err)
		}
		e.Reset()
		if err := e.Begin(); err != nil {
			t.Fatalf("cycle %d: second Begin: %v", i, err)
		}
		if err := e.End(); err != nil {
			t.Fatalf("cycle %d: second End: %v", i, err)
		}
		e.Wait()

		if p, r := e.Phase(), e.Report(); p != Results || r == nil {
			t.Fatalf("cycle %d: phase = %v, report = %+v", i, p, r)
		}
		e.Reset()
	}
	for _, c := range h.actx.Captures() {
		if c.Running() || !c.Closed() {
			t.Fatal("audio device left open")
		}
	}
}

func TestSegmentsAfterEndExcluded(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	e := h.engine
	if err := e.Begin(); err != nil {
		t.Fatal(err)
	}
	h.stt.Deliver(transcriber.Segment{Text: "hello", IsFinal: true})
	waitFor(t, "live transcript", func() bool { return h.sink.transcriptCount() == 1 })

	if err := e.End(); err != nil {
		t.Fatal(err)
	}
	h.stt.Deliver(transcriber.Segment{Text: "late words", Sequence: 1, IsFinal: true})
	e.Wait()

	if got := e.Report().OriginalText; got != "hello" {
		t.Errorf("OriginalText = %q, want %q", got, "hello")
	}
	if got := e.Snapshot().Frozen.Transcript(); got != "hello" {
		t.Errorf("frozen transcript = %q", got)
	}
	if h.sink.transcriptCount() != 1 {
		t.Error("segment after End forwarded to the sink")
	}
}

func TestResultsCarryAppliedStats(t *testing.T) {
	h := newHarness(t, harnessOpts{noSTT: true})
	e := h.engine

	for i := 0; i < 50; i++ {
		before := h.ledger.Stats()
		done := make(chan struct{})
		bad := make(chan Snapshot, 1)
		go func() {
			defer close(done)
			for {
				s := e.Snapshot()
				if s.Phase != Results {
					continue
				}
				if s.Stats.Coins != before.Coins+s.Report.Score/10 {
					bad <- s
				}
				return
			}
		}()

		if err := e.Begin(); err != nil {
			t.Fatal(err)
		}
		e.End()
		e.Wait()
		<-done
		select {
		case s := <-bad:
			t.Fatalf("cycle %d: results published with stats %+v, coins before %d, score %d", i, s.Stats, before.Coins, s.Report.Score)
		default:
		}
		e.Reset()
	}
}
