package transcriber

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable means no streaming speech-to-text backend can be used.
// Capture continues without a live transcript.
var ErrUnavailable = errors.New("streaming speech-to-text unavailable")

// Segment is one incremental unit of recognized speech. Interim segments
// for a Sequence may be superseded until a final one closes it.
type Segment struct {
	Text     string
	IsFinal  bool
	Sequence int
}

type SegmentFunc func(Segment)

type StreamConfig struct {
	SampleRate int
	Channels   int
	Language   string
	Model      string
}

// Stream accepts PCM for one subscription. Close unsubscribes; no segments
// are delivered after it returns.
type Stream interface {
	Feed(pcm []byte)
	Close() error
}

type Transcriber interface {
	Name() string
	Subscribe(ctx context.Context, cfg StreamConfig, onSegment SegmentFunc) (Stream, error)
}

// New picks a streaming backend by provider name.
func New(provider, apiKey string) (Transcriber, error) {
	switch provider {
	case "", "none":
		return nil, ErrUnavailable
	case "deepgram":
		if apiKey == "" {
			return nil, fmt.Errorf("deepgram: set DEEPGRAM_API_KEY: %w", ErrUnavailable)
		}
		return NewDeepgram(apiKey), nil
	default:
		return nil, fmt.Errorf("unknown transcriber %q", provider)
	}
}
