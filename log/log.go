package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog      zerolog.Logger
	diagFile     *os.File
	practiceFile *os.File
	logMu        sync.Mutex
	logReady     bool
	pid          int
	dir          string
)

const (
	diagFileName     = "diagnostics_log.txt"
	practiceFileName = "practice_log.txt"
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absPath(flagPath)
	}

	// Priority 2: SPEAKUP_LOG_PATH environment variable
	if envPath := os.Getenv("SPEAKUP_LOG_PATH"); envPath != "" {
		return absPath(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagFile, err = os.OpenFile(filepath.Join(dir, diagFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	practiceFile, err = os.OpenFile(filepath.Join(dir, practiceFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if practiceFile != nil {
		practiceFile.Close()
		practiceFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(transcriber, analyzer, lang string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("transcriber", transcriber).
		Str("analyzer", analyzer).
		Str("lang", lang).
		Msg("session_start")
}

func PhaseChange(id, from, to string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("capture", id).
		Str("from", from).
		Str("to", to).
		Msg("phase")
}

func CaptureStats(id string, elapsedS int, audioKB float64, segments int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("capture", id).
		Int("elapsed_s", elapsedS).
		Float64("audio_kb", audioKB).
		Int("segments", segments).
		Msg("capture_stopped")
}

// Degraded records a remote analyzer failure that was absorbed by the local fallback.
func Degraded(analyzer string, err error) {
	if !logReady {
		return
	}
	diagLog.Warn().
		Str("analyzer", analyzer).
		Err(err).
		Msg("analysis_degraded")
}

type RemoteMetricsData struct {
	Service    string
	Status     int
	DNSMs      float64
	TLSMs      float64
	TTFBMs     float64
	TotalMs    float64
	ConnReused bool
	Matches    int
}

func RemoteMetrics(m RemoteMetricsData) {
	if !logReady {
		return
	}
	connStatus := "new"
	if m.ConnReused {
		connStatus = "reused"
	}
	diagLog.Info().
		Str("service", m.Service).
		Int("status", m.Status).
		Str("conn", connStatus).
		Float64("dns_ms", m.DNSMs).
		Float64("tls_ms", m.TLSMs).
		Float64("ttfb_ms", m.TTFBMs).
		Float64("total_ms", m.TotalMs).
		Int("matches", m.Matches).
		Msg("remote_check")
}

func Feedback(id string, score, issues int, analyzer string, degraded bool, recordingS int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("capture", id).
		Int("score", score).
		Int("issues", issues).
		Str("analyzer", analyzer).
		Bool("degraded", degraded).
		Int("recording_s", recordingS).
		Msg("feedback")
}

func StatsApplied(coins, streak, coinsDelta int, streakUp bool) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("coins", coins).
		Int("streak", streak).
		Int("coins_delta", coinsDelta).
		Bool("streak_up", streakUp).
		Msg("stats_applied")
}

// PracticeText appends one tab-separated line per analyzed utterance.
func PracticeText(score int, text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	text = strings.ReplaceAll(text, "\n", " ")
	line := fmt.Sprintf("%s\t[%d]\t%d\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, score, text)
	practiceFile.WriteString(line)
}

func SessionEnd(count int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("count", count).
		Msg("session_end")
}
