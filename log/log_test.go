package log

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/mylog")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/mylog" {
		t.Errorf("got %q, want /tmp/mylog", got)
	}
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(wd, "logs")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv("SPEAKUP_LOG_PATH", "/tmp/speakup-env-log")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/speakup-env-log" {
		t.Errorf("got %q, want /tmp/speakup-env-log", got)
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("SPEAKUP_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got == "" {
		t.Error("expected non-empty default directory")
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{diagFileName, practiceFileName} {
		path := filepath.Join(tmp, name)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestPracticeText(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	PracticeText(70, "i am go\nto school")

	data, err := os.ReadFile(filepath.Join(tmp, practiceFileName))
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	if !strings.Contains(line, "\t70\ti am go to school\n") {
		t.Errorf("practice_log.txt line malformed, got: %q", line)
	}
}

func TestStructuredEventsWriteDiagnostics(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	PhaseChange("abc", "ready", "recording")
	Degraded("languagetool", errors.New("connection refused"))
	Feedback("abc", 70, 2, "local", true, 4)

	data, err := os.ReadFile(filepath.Join(tmp, diagFileName))
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{"phase", "analysis_degraded", "connection refused", "feedback", "score=70"} {
		if !strings.Contains(out, want) {
			t.Errorf("diagnostics missing %q in %q", want, out)
		}
	}
}

func TestNoopBeforeInit(t *testing.T) {
	setupLogDir(t)
	// must not panic with nil files
	Info("x")
	PracticeText(50, "x")
	StatsApplied(1, 1, 1, true)
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close() // should not panic
}
