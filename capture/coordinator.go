// Package capture runs one recording at a time: audio from an audio.Context,
// an optional live transcript from a transcriber, and an elapsed-seconds
// counter. Stop freezes everything into a Session.
package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"speakup/audio"
	"speakup/encoder"
	"speakup/log"
	"speakup/transcriber"
)

var ErrAlreadyStarted = errors.New("capture already started")

const DefaultTick = time.Second

// Session is the frozen result of one capture.
type Session struct {
	ID             uuid.UUID
	StartedAt      time.Time
	ElapsedSeconds int
	Audio          *AudioHandle // nil when no frames were captured
	Segments       []transcriber.Segment
	STTErr         error // why no live transcript was available, if so
}

func (s Session) Transcript() string {
	return Join(s.Segments)
}

type Config struct {
	Device *audio.DeviceInfo
	Tick   time.Duration
	Stream transcriber.StreamConfig

	// Callbacks run on coordinator goroutines and carry the capture ID
	// they belong to.
	OnTick       func(id uuid.UUID, elapsed int)
	OnTranscript func(id uuid.UUID, text string)
	OnLevel      func(id uuid.UUID, rms float64)
}

// Coordinator owns the capture devices between Start and Stop.
type Coordinator struct {
	actx       audio.Context
	stt        transcriber.Transcriber
	cfg        Config
	newEncoder func() (encoder.Encoder, error)

	opMu sync.Mutex // serializes Start and Stop

	mu         sync.Mutex
	cur        *run
	transcript *Transcript
}

type run struct {
	id        uuid.UUID
	startedAt time.Time
	dev       audio.CaptureDevice
	stream    transcriber.Stream
	sttErr    error

	feedMu sync.Mutex
	fed    bool
	pcmCh  chan []byte

	encDone chan struct{}
	handle  *AudioHandle

	stopTick chan struct{}
	tickDone chan struct{}
	elapsed  int

	accepting bool
}

// New creates a coordinator. stt may be nil, in which case captures carry
// no live transcript.
func New(actx audio.Context, stt transcriber.Transcriber, cfg Config) *Coordinator {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Stream.SampleRate == 0 {
		cfg.Stream.SampleRate = encoder.SampleRate
	}
	if cfg.Stream.Channels == 0 {
		cfg.Stream.Channels = encoder.Channels
	}
	return &Coordinator{
		actx: actx,
		stt:  stt,
		cfg:  cfg,
		newEncoder: func() (encoder.Encoder, error) {
			return encoder.NewFlac()
		},
	}
}

// Start acquires the audio device, then subscribes to speech-to-text. Only
// an audio failure is returned; a transcriber failure is recorded on the
// session and capture continues without a live transcript.
func (c *Coordinator) Start(ctx context.Context) (uuid.UUID, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.cur != nil {
		c.mu.Unlock()
		return uuid.Nil, ErrAlreadyStarted
	}
	r := &run{
		id:        uuid.New(),
		startedAt: time.Now(),
		pcmCh:     make(chan []byte, 64),
		encDone:   make(chan struct{}),
		stopTick:  make(chan struct{}),
		tickDone:  make(chan struct{}),
		accepting: true,
	}
	c.cur = r
	c.transcript = NewTranscript()
	c.mu.Unlock()

	dev, err := c.actx.NewCapture(c.cfg.Device, audio.CaptureConfig{
		SampleRate: uint32(c.cfg.Stream.SampleRate),
		Channels:   uint32(c.cfg.Stream.Channels),
	})
	if err != nil {
		c.abandon(r)
		return uuid.Nil, fmt.Errorf("acquire audio: %w", err)
	}
	r.dev = dev

	if c.stt == nil {
		r.sttErr = transcriber.ErrUnavailable
	} else {
		stream, err := c.stt.Subscribe(ctx, c.cfg.Stream, c.segmentHandler(r.id))
		if err != nil {
			log.Warnf("speech-to-text unavailable, recording audio only: %v", err)
			r.sttErr = err
		} else {
			r.stream = stream
		}
	}

	go func() {
		defer close(r.encDone)
		h, err := encodeStream(r.pcmCh, c.newEncoder)
		if err != nil {
			log.Errorf("audio encode error: %v", err)
		}
		r.handle = h
	}()

	dev.SetCallback(c.audioHandler(r))
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		r.closeFeed()
		<-r.encDone
		if r.stream != nil {
			r.stream.Close()
		}
		c.abandon(r)
		return uuid.Nil, fmt.Errorf("start audio: %w", err)
	}

	go c.runTicker(r)
	return r.id, nil
}

func (c *Coordinator) abandon(r *run) {
	c.mu.Lock()
	if c.cur == r {
		c.cur = nil
	}
	c.mu.Unlock()
}

func (c *Coordinator) audioHandler(r *run) audio.DataCallback {
	return func(data []byte, _ uint32) {
		if len(data) == 0 {
			return
		}
		pcm := make([]byte, len(data))
		copy(pcm, data)

		r.feedMu.Lock()
		if r.fed {
			r.feedMu.Unlock()
			return
		}
		r.pcmCh <- pcm
		r.feedMu.Unlock()

		if r.stream != nil {
			r.stream.Feed(pcm)
		}
		if c.cfg.OnLevel != nil {
			c.cfg.OnLevel(r.id, rms(pcm))
		}
	}
}

func (r *run) closeFeed() {
	r.feedMu.Lock()
	defer r.feedMu.Unlock()
	if !r.fed {
		r.fed = true
		close(r.pcmCh)
	}
}

func (c *Coordinator) segmentHandler(id uuid.UUID) transcriber.SegmentFunc {
	return func(seg transcriber.Segment) {
		c.mu.Lock()
		r := c.cur
		if r == nil || r.id != id || !r.accepting {
			c.mu.Unlock()
			return
		}
		changed := c.transcript.Add(seg)
		text := c.transcript.Text()
		c.mu.Unlock()

		if changed && c.cfg.OnTranscript != nil {
			c.cfg.OnTranscript(id, text)
		}
	}
}

func (c *Coordinator) runTicker(r *run) {
	defer close(r.tickDone)
	ticker := time.NewTicker(c.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopTick:
			return
		case <-ticker.C:
			c.mu.Lock()
			r.elapsed++
			elapsed := r.elapsed
			c.mu.Unlock()
			if c.cfg.OnTick != nil {
				c.cfg.OnTick(r.id, elapsed)
			}
		}
	}
}

// Elapsed returns the whole seconds counted for the running capture.
func (c *Coordinator) Elapsed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return 0
	}
	return c.cur.elapsed
}

// Transcript returns the live transcript projection.
func (c *Coordinator) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil || c.transcript == nil {
		return ""
	}
	return c.transcript.Text()
}

// Active reports the running capture's ID.
func (c *Coordinator) Active() (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return uuid.Nil, false
	}
	return c.cur.id, true
}

// Freeze stops capture id from accepting transcript segments. Segments that
// arrive afterwards, including stream finalize results, are dropped. It
// reports false when id is not the running capture.
func (c *Coordinator) Freeze(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil || c.cur.id != id {
		return false
	}
	c.cur.accepting = false
	return true
}

// Stop halts the timer, stops and releases the audio device, closes the
// transcriber subscription and returns the frozen session of capture id.
// ok is false when id is not the running capture, so a stale caller cannot
// stop a newer one.
func (c *Coordinator) Stop(id uuid.UUID) (sess Session, ok bool) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	r := c.cur
	if r == nil || r.id != id {
		c.mu.Unlock()
		return Session{}, false
	}
	r.accepting = false
	c.mu.Unlock()

	close(r.stopTick)
	<-r.tickDone

	r.dev.ClearCallback()
	r.dev.Stop()
	r.dev.Close()

	r.closeFeed()
	<-r.encDone

	if r.stream != nil {
		if err := r.stream.Close(); err != nil {
			log.Warnf("speech-to-text close: %v", err)
		}
	}

	c.mu.Lock()
	sess = Session{
		ID:             r.id,
		StartedAt:      r.startedAt,
		ElapsedSeconds: r.elapsed,
		Audio:          r.handle,
		Segments:       c.transcript.Segments(),
		STTErr:         r.sttErr,
	}
	c.cur = nil
	c.mu.Unlock()

	var audioKB float64
	if r.handle != nil {
		audioKB = float64(r.handle.Len()) / 1024
	}
	log.CaptureStats(r.id.String(), r.elapsed, audioKB, len(sess.Segments))
	return sess, true
}

func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sumSquares float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i:]))
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
	}
	return math.Sqrt(sumSquares / float64(n))
}
