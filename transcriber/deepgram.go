package transcriber

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"nhooyr.io/websocket"
)

const deepgramListenURL = "wss://api.deepgram.com/v1/listen"

type Deepgram struct {
	apiKey   string
	endpoint string
}

func NewDeepgram(apiKey string) *Deepgram {
	return &Deepgram{apiKey: apiKey, endpoint: deepgramListenURL}
}

func (d *Deepgram) Name() string { return "deepgram" }

func (d *Deepgram) Subscribe(ctx context.Context, cfg StreamConfig, onSegment SegmentFunc) (Stream, error) {
	if onSegment == nil {
		return nil, fmt.Errorf("deepgram: nil segment callback")
	}
	dial := func() (rawStreamSession, error) { return d.startStream(ctx, cfg) }
	return newStreamSession(dial, onSegment), nil
}

func (d *Deepgram) listenURL(cfg StreamConfig) (string, error) {
	endpoint, err := url.Parse(d.endpoint)
	if err != nil {
		return "", err
	}

	q := endpoint.Query()
	model := cfg.Model
	if model == "" {
		model = "nova-3"
	}
	q.Set("model", model)
	q.Set("encoding", "linear16")
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	if cfg.SampleRate > 0 {
		q.Set("sample_rate", fmt.Sprintf("%d", cfg.SampleRate))
	}
	if cfg.Channels > 0 {
		q.Set("channels", fmt.Sprintf("%d", cfg.Channels))
	}
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	endpoint.RawQuery = q.Encode()
	return endpoint.String(), nil
}

func (d *Deepgram) startStream(ctx context.Context, cfg StreamConfig) (rawStreamSession, error) {
	endpoint, err := d.listenURL(cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.apiKey)

	streamCtx, cancel := context.WithCancel(ctx)
	conn, _, err := websocket.Dial(streamCtx, endpoint, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		cancel()
		return nil, err
	}

	return &deepgramStreamSession{conn: conn, ctx: streamCtx, cancel: cancel}, nil
}
