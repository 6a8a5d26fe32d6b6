package doctor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/google/uuid"

	"speakup/audio"
	"speakup/capture"
	"speakup/grammar"
	"speakup/shutdown"
	"speakup/transcriber"
)

const (
	defaultRecordFor = 3 * time.Second
	sampleText       = "i am go to school"
	quietLevel       = 0.02
	clipboardSample  = "speakup-doctor-test"
)

// Setup is what the doctor exercises. Audio and Analyzer are required;
// a nil Transcriber skips the live transcript part of the microphone check.
type Setup struct {
	Audio       audio.Context
	Device      *audio.DeviceInfo
	Transcriber transcriber.Transcriber
	Stream      transcriber.StreamConfig
	Analyzer    grammar.Analyzer

	RecordFor     time.Duration
	SkipClipboard bool

	In  io.Reader
	Out io.Writer
}

// Run executes the diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(s Setup) int {
	if s.In == nil {
		s.In = os.Stdin
	}
	if s.Out == nil {
		s.Out = os.Stdout
	}
	if s.RecordFor <= 0 {
		s.RecordFor = defaultRecordFor
	}
	stop := shutdown.Watch(func() {
		fmt.Fprintln(s.Out, "\nInterrupted")
		os.Exit(1)
	})
	defer stop()

	d := &doctor{Setup: s, in: bufio.NewReader(s.In)}
	fmt.Fprintln(d.Out, "speakup doctor - system diagnostics")
	fmt.Fprintln(d.Out, "===================================")

	allPass := d.checkMicrophone()
	if !d.checkAnalyzer() {
		allPass = false
	}
	if !d.SkipClipboard && !d.checkClipboard() {
		allPass = false
	}

	fmt.Fprintln(d.Out)
	if allPass {
		fmt.Fprintln(d.Out, "All checks passed!")
		return 0
	}
	fmt.Fprintln(d.Out, "Some checks failed. See details above.")
	return 1
}

type doctor struct {
	Setup
	in *bufio.Reader
}

func (d *doctor) step(n int, title string) {
	total := 3
	if d.SkipClipboard {
		total = 2
	}
	fmt.Fprintf(d.Out, "\n[%d/%d] %s\n", n, total, title)
}

func (d *doctor) ask(prompt string) string {
	fmt.Fprint(d.Out, prompt)
	line, _ := d.in.ReadString('\n')
	return strings.TrimSpace(strings.ToLower(line))
}

func (d *doctor) pass(format string, args ...any) bool {
	fmt.Fprintf(d.Out, "  PASS: "+format+"\n", args...)
	return true
}

func (d *doctor) fail(format string, args ...any) bool {
	fmt.Fprintf(d.Out, "  FAIL: "+format+"\n", args...)
	return false
}

func (d *doctor) checkMicrophone() bool {
	d.step(1, "Microphone and live transcript")
	if d.Device != nil {
		fmt.Fprintf(d.Out, "Using device: %s\n", d.Device.Name)
		if audio.IsBluetooth(d.Device.Name) {
			fmt.Fprintln(d.Out, "  Warning: headset microphones record at reduced quality")
		}
	}
	d.ask(fmt.Sprintf("Press Enter and speak for %s...", d.RecordFor))

	var (
		mu   sync.Mutex
		peak float64
	)
	coord := capture.New(d.Audio, d.Transcriber, capture.Config{
		Device: d.Device,
		Tick:   500 * time.Millisecond,
		Stream: d.Stream,
		OnTick: func(uuid.UUID, int) { fmt.Fprint(d.Out, ".") },
		OnLevel: func(_ uuid.UUID, rms float64) {
			mu.Lock()
			peak = max(peak, rms)
			mu.Unlock()
		},
	})
	id, err := coord.Start(context.Background())
	if err != nil {
		if errors.Is(err, audio.ErrPermissionDenied) {
			return d.fail("microphone access refused; allow it in the system privacy settings")
		}
		return d.fail("cannot open microphone: %v", err)
	}
	fmt.Fprint(d.Out, "  Recording")
	time.Sleep(d.RecordFor)
	sess, _ := coord.Stop(id)
	fmt.Fprintln(d.Out, " done")

	if sess.Audio == nil {
		return d.fail("no audio captured")
	}
	fmt.Fprintf(d.Out, "  Recorded %.1fs, %.1f KB FLAC\n", sess.Audio.Duration().Seconds(), float64(sess.Audio.Len())/1024)
	mu.Lock()
	quiet := peak < quietLevel
	mu.Unlock()
	if quiet {
		fmt.Fprintln(d.Out, "  Warning: input level is very low, check the selected microphone")
	}

	if d.Transcriber == nil {
		fmt.Fprintln(d.Out, "  SKIP: no live transcription configured (set DEEPGRAM_API_KEY)")
		return d.pass("microphone records")
	}
	if sess.STTErr != nil {
		return d.fail("%s transcription: %v", d.Transcriber.Name(), sess.STTErr)
	}

	text := sess.Transcript()
	if text == "" {
		text = "(no speech detected)"
	}
	fmt.Fprintf(d.Out, "\n  Transcribed text: %s\n\n", text)
	if confirm := d.ask("Is this correct? [y/n]: "); confirm == "y" || confirm == "yes" {
		return d.pass("transcription verified by user")
	}
	return d.fail("transcription not confirmed")
}

func (d *doctor) checkAnalyzer() bool {
	d.step(2, "Grammar analysis")
	start := time.Now()
	a, err := d.Analyzer.Analyze(context.Background(), sampleText)
	took := time.Since(start)
	if err != nil {
		return d.fail("%s: %v", d.Analyzer.Name(), err)
	}
	fmt.Fprintf(d.Out, "  %q -> %q (score %d, %d issues, %dms)\n",
		sampleText, a.Corrected, a.Score, len(a.Issues), took.Milliseconds())
	if a.Degraded {
		return d.fail("%s unreachable, only local checks are available", d.Analyzer.Name())
	}
	return d.pass("%s answered", a.Analyzer)
}

func (d *doctor) checkClipboard() bool {
	d.step(3, "Clipboard")
	prev, _ := clipboard.ReadAll()
	if err := clipboard.WriteAll(clipboardSample); err != nil {
		return d.fail("clipboard copy failed: %v", err)
	}
	got, err := clipboard.ReadAll()
	if prev != "" {
		clipboard.WriteAll(prev)
	}
	if err != nil {
		return d.fail("clipboard read failed: %v", err)
	}
	if got != clipboardSample {
		return d.fail("clipboard returned %q, want %q", got, clipboardSample)
	}
	return d.pass("corrected text can be copied")
}
