package grammar

import (
	"context"
	"time"

	"speakup/log"
)

const DefaultRemoteTimeout = 5 * time.Second

// Fallback tries a remote analyzer once within a timeout and degrades to the
// local rules on any failure. Its Analyze never returns an error.
type Fallback struct {
	primary   Analyzer
	secondary *Local
	timeout   time.Duration
}

func NewFallback(primary Analyzer, secondary *Local, timeout time.Duration) *Fallback {
	if secondary == nil {
		secondary = NewLocal()
	}
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &Fallback{primary: primary, secondary: secondary, timeout: timeout}
}

func (f *Fallback) Name() string {
	if f.primary == nil {
		return f.secondary.Name()
	}
	return f.primary.Name()
}

func (f *Fallback) Analyze(ctx context.Context, text string) (Analysis, error) {
	if f.primary == nil {
		return f.secondary.Check(text), nil
	}

	rctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	a, err := f.primary.Analyze(rctx, text)
	if err == nil {
		if a.Analyzer == "" {
			a.Analyzer = f.primary.Name()
		}
		return a, nil
	}

	log.Degraded(f.primary.Name(), err)
	a = f.secondary.Check(text)
	a.Degraded = true
	return a, nil
}
