package transcriber

import (
	"context"
	"sync"
	"time"
)

// FakeTranscriber replays a scripted segment list after each Subscribe and
// lets tests push segments by hand, including after the stream was closed.
type FakeTranscriber struct {
	script []Segment
	delay  time.Duration
	err    error

	mu      sync.Mutex
	streams []*FakeStream
}

func NewFake(script []Segment, delay time.Duration, err error) *FakeTranscriber {
	return &FakeTranscriber{script: script, delay: delay, err: err}
}

func (f *FakeTranscriber) Name() string { return "fake" }

func (f *FakeTranscriber) Subscribe(ctx context.Context, _ StreamConfig, onSegment SegmentFunc) (Stream, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := &FakeStream{onSegment: onSegment, done: make(chan struct{})}
	f.mu.Lock()
	f.streams = append(f.streams, s)
	f.mu.Unlock()

	if len(f.script) > 0 {
		go func() {
			for _, seg := range f.script {
				select {
				case <-s.done:
					return
				case <-ctx.Done():
					return
				case <-time.After(f.delay):
				}
				s.deliver(seg)
			}
		}()
	}
	return s, nil
}

// Deliver pushes a segment to the most recent subscription's callback,
// bypassing the closed check the way a late platform callback would.
func (f *FakeTranscriber) Deliver(seg Segment) {
	f.mu.Lock()
	var s *FakeStream
	if len(f.streams) > 0 {
		s = f.streams[len(f.streams)-1]
	}
	f.mu.Unlock()
	if s != nil {
		s.onSegment(seg)
	}
}

func (f *FakeTranscriber) Streams() []*FakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeStream(nil), f.streams...)
}

type FakeStream struct {
	onSegment SegmentFunc
	done      chan struct{}

	mu     sync.Mutex
	fed    int
	closed bool
}

func (s *FakeStream) deliver(seg Segment) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if !closed {
		s.onSegment(seg)
	}
}

func (s *FakeStream) Feed(pcm []byte) {
	s.mu.Lock()
	if !s.closed {
		s.fed += len(pcm)
	}
	s.mu.Unlock()
}

func (s *FakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

func (s *FakeStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *FakeStream) BytesFed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fed
}
