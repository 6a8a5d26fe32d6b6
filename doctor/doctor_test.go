package doctor

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"speakup/audio"
	"speakup/grammar"
	"speakup/transcriber"
)

func tonePCM(seconds float64) []byte {
	n := int(16000 * seconds)
	pcm := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		s := int16(math.Sin(2*math.Pi*440*float64(i)/16000) * 8000)
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(s))
	}
	return pcm
}

type downAnalyzer struct{}

func (downAnalyzer) Name() string { return "languagetool" }
func (downAnalyzer) Analyze(context.Context, string) (grammar.Analysis, error) {
	return grammar.Analysis{}, &grammar.NetworkError{Service: "languagetool", Err: errors.New("connection refused")}
}

func runDoctor(t *testing.T, s Setup, input string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	s.In = strings.NewReader(input)
	s.Out = &out
	s.RecordFor = 50 * time.Millisecond
	s.SkipClipboard = true
	code := Run(s)
	return code, out.String()
}

func TestAllPass(t *testing.T) {
	code, out := runDoctor(t, Setup{
		Audio:       audio.NewFakePCMContext(tonePCM(0.5), false),
		Transcriber: transcriber.NewFake([]transcriber.Segment{{Text: "hello there", IsFinal: true}}, time.Millisecond, nil),
		Analyzer:    grammar.NewLocal(),
	}, "\ny\n")

	if code != 0 {
		t.Fatalf("exit code %d:\n%s", code, out)
	}
	for _, want := range []string{"[1/2]", "Transcribed text: hello there", "PASS: transcription verified", `-> "I am go to school."`, "All checks passed!"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "input level is very low") {
		t.Error("tone reported as silent")
	}
}

func TestNoTranscriberSkips(t *testing.T) {
	code, out := runDoctor(t, Setup{
		Audio:    audio.NewFakePCMContext(make([]byte, 8000), false),
		Analyzer: grammar.NewLocal(),
	}, "\n")

	if code != 0 {
		t.Fatalf("exit code %d:\n%s", code, out)
	}
	if !strings.Contains(out, "SKIP: no live transcription") {
		t.Errorf("missing skip line:\n%s", out)
	}
	if !strings.Contains(out, "input level is very low") {
		t.Errorf("silence not flagged:\n%s", out)
	}
}

func TestDeniedMicrophoneFails(t *testing.T) {
	actx := audio.NewFakePCMContext(tonePCM(0.5), false)
	actx.Deny = true
	code, out := runDoctor(t, Setup{Audio: actx, Analyzer: grammar.NewLocal()}, "\n")

	if code != 1 {
		t.Fatalf("exit code %d, want 1", code)
	}
	if !strings.Contains(out, "FAIL: microphone access refused") {
		t.Errorf("missing denial hint:\n%s", out)
	}
}

func TestTranscriptRejected(t *testing.T) {
	code, out := runDoctor(t, Setup{
		Audio:       audio.NewFakePCMContext(tonePCM(0.5), false),
		Transcriber: transcriber.NewFake(nil, time.Millisecond, nil),
		Analyzer:    grammar.NewLocal(),
	}, "\nn\n")

	if code != 1 {
		t.Fatalf("exit code %d, want 1", code)
	}
	if !strings.Contains(out, "(no speech detected)") || !strings.Contains(out, "FAIL: transcription not confirmed") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestDegradedAnalyzerFails(t *testing.T) {
	code, out := runDoctor(t, Setup{
		Audio:    audio.NewFakePCMContext(make([]byte, 8000), false),
		Analyzer: grammar.NewFallback(downAnalyzer{}, nil, time.Second),
	}, "\n")

	if code != 1 {
		t.Fatalf("exit code %d, want 1", code)
	}
	if !strings.Contains(out, "FAIL: languagetool unreachable") {
		t.Errorf("missing degraded failure:\n%s", out)
	}
}
