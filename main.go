package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"speakup/audio"
	"speakup/capture"
	"speakup/config"
	"speakup/cue"
	"speakup/doctor"
	"speakup/feedback"
	"speakup/grammar"
	"speakup/hotkey"
	"speakup/log"
	"speakup/session"
	"speakup/shutdown"
	"speakup/stats"
	"speakup/transcriber"
)

var version = "dev"

type options struct {
	configPath string
	device     string
	setup      bool
	lang       string
	logPath    string
	analyzer   string
	test       bool
	text       string
	deny       bool
	tui        bool
	doctor     bool
	quiet      bool
	autoStop   bool
	hotkey     bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", defaultConfigPath(), "YAML config file")
	flag.StringVar(&o.device, "device", "", "Use named microphone device")
	flag.BoolVar(&o.setup, "setup", false, "Select microphone device interactively")
	flag.StringVar(&o.lang, "lang", "", "Language tag for transcription and grammar checks (e.g. en-US)")
	flag.StringVar(&o.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	flag.StringVar(&o.analyzer, "analyzer", "", "Grammar analyzer: languagetool, openai or local")
	flag.BoolVar(&o.test, "test", false, "Test mode (headless, stdin-driven, audio from a WAV file)")
	flag.StringVar(&o.text, "text", "", "Analyze this text, print the report and exit")
	flag.BoolVar(&o.deny, "deny", false, "With -test: simulate a refused microphone")
	flag.BoolVar(&o.tui, "tui", true, "Run with terminal UI")
	flag.BoolVar(&o.doctor, "doctor", false, "Run microphone, transcription and grammar diagnostics")
	flag.BoolVar(&o.quiet, "quiet", false, "Disable start/stop tones")
	flag.BoolVar(&o.autoStop, "autostop", true, "End a recording after 30s of silence")
	flag.BoolVar(&o.hotkey, "hotkey", false, "Global Ctrl+Shift+Space: tap to start/stop, hold to talk")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("speakup %s\n", version)
		return
	}
	code := 0
	startMain(func() { code = run(o) })
	os.Exit(code)
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "speakup", "config.yaml")
}

func run(o options) int {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if o.lang != "" {
		cfg.Language = o.lang
	}
	if o.analyzer != "" {
		cfg.Grammar.Provider = o.analyzer
	}
	if o.device != "" {
		cfg.Capture.Device = o.device
	}
	if o.logPath == "" {
		o.logPath = cfg.Log.Path
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logPath, err := log.ResolveDir(o.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	initCrashLog()

	if o.test || o.quiet {
		cue.Disable()
	}

	pipeline := feedback.NewPipeline(newAnalyzer(cfg))

	if o.text != "" {
		r := pipeline.Analyze(context.Background(), o.text, 0)
		if err := r.WriteYAML(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	ledger, closeStore, err := newLedger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeStore()

	var actx audio.Context
	if o.test {
		args := flag.Args()
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: speakup -test <wav-file>")
			return 1
		}
		fake, err := audio.NewFakeContext(args[0], true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
			return 1
		}
		fake.Deny = o.deny
		actx = fake
	} else {
		actx, err = audio.NewContext()
		if err != nil {
			log.Errorf("audio context init error: %v", err)
			fmt.Fprintf(os.Stderr, "Error initializing audio context: %v\n", err)
			return 1
		}
	}
	defer actx.Close()

	device, err := pickDevice(actx, cfg.Capture.Device, o.setup)
	if err != nil {
		log.Warnf("device selection failed: %v", err)
		fmt.Fprintf(os.Stderr, "Warning: %v, falling back to default device\n", err)
	}

	stt := newTranscriber(cfg)
	stream := transcriber.StreamConfig{
		SampleRate: cfg.Capture.SampleRate,
		Channels:   1,
		Language:   cfg.Language,
		Model:      cfg.Transcriber.Model,
	}

	if o.doctor {
		return doctor.Run(doctor.Setup{
			Audio:       actx,
			Device:      device,
			Transcriber: stt,
			Stream:      stream,
			Analyzer:    pipeline.Analyzer(),
		})
	}

	sink := &tuiSink{}
	engine, err := session.New(session.Options{
		Audio:       actx,
		Transcriber: stt,
		Capture: capture.Config{
			Device: device,
			Tick:   cfg.Capture.Tick,
			Stream: stream,
		},
		Pipeline: pipeline,
		Ledger:   ledger,
		Sink:     sink,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer engine.Close()

	if o.hotkey {
		hk := hotkey.New()
		if err := hk.Register(); err != nil {
			log.Warnf("global hotkey unavailable: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: global hotkey unavailable: %v\n", err)
		} else {
			defer hk.Unregister()
			hctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go hotkey.Drive(hctx, hk, engine, hotkey.DefaultLongPress, func(op string, err error) {
				log.Warnf("hotkey %s: %v", op, err)
				sink.send(engineErrMsg{op: "hotkey " + op, err: err})
			})
		}
	}

	if o.test || !o.tui {
		stop := shutdown.Watch(func() {
			engine.Close()
			log.Close()
			os.Exit(0)
		})
		defer stop()
		if err := drive(engine, os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	info := screenInfo{
		mode:    modeLineText(stt, pipeline),
		device:  deviceLineText(device),
		autoEnd: o.autoStop,
	}
	p := newTUIProgram(engine, info)
	sink.attach(p)
	defer shutdown.Watch(p.Quit)()
	if _, err := p.Run(); err != nil {
		log.Errorf("TUI error: %v", err)
		return 1
	}
	return 0
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

// newAnalyzer wraps the configured remote service in the local fallback.
func newAnalyzer(cfg *config.Config) grammar.Analyzer {
	var primary grammar.Analyzer
	switch cfg.Grammar.Provider {
	case "languagetool":
		primary = grammar.NewLanguageTool(cfg.Grammar.URL, cfg.Language)
	case "openai":
		o, err := grammar.NewOpenAI(cfg.Grammar.APIKey, cfg.Grammar.Model, "")
		if err != nil {
			log.Warnf("openai analyzer disabled: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: %v, using local checks only\n", err)
		} else {
			primary = o
		}
	}
	return grammar.NewFallback(primary, grammar.NewLocal(), cfg.Grammar.Timeout)
}

func newTranscriber(cfg *config.Config) transcriber.Transcriber {
	stt, err := transcriber.New(cfg.Transcriber.Provider, cfg.Transcriber.APIKey)
	if err != nil {
		if errors.Is(err, transcriber.ErrUnavailable) {
			log.Warnf("live transcript disabled: %v", err)
		} else {
			log.Errorf("transcriber init error: %v", err)
		}
		return nil
	}
	return stt
}

func newLedger(cfg *config.Config) (*stats.Ledger, func(), error) {
	if cfg.Stats.Database == "" {
		l, err := stats.NewLedger(stats.NewMemoryStore())
		return l, func() {}, err
	}
	store, err := stats.OpenSQLite(cfg.Stats.Database)
	if err != nil {
		return nil, nil, err
	}
	l, err := stats.NewLedger(store)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return l, func() { store.Close() }, nil
}

func pickDevice(actx audio.Context, name string, setup bool) (*audio.DeviceInfo, error) {
	switch {
	case name != "":
		dev, err := audio.FindDevice(actx, name)
		if err != nil {
			return nil, err
		}
		if dev == nil {
			return nil, fmt.Errorf("device %q not found", name)
		}
		return dev, nil
	case setup:
		return audio.SelectDevice(actx)
	}
	return nil, nil
}

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}

func modeLineText(stt transcriber.Transcriber, p *feedback.Pipeline) string {
	sttName := "no live transcript"
	if stt != nil {
		sttName = stt.Name()
	}
	return fmt.Sprintf("[%s | %s]", sttName, p.AnalyzerName())
}
