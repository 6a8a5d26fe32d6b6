package transcriber

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"speakup/encoder"
	"speakup/log"
)

const (
	streamChunkMs      = 200
	streamChunkBytes   = encoder.SampleRate * encoder.Channels * (encoder.BitsPerSample / 8) * streamChunkMs / 1000
	streamFinalizeIdle = 200 * time.Millisecond
	streamFinalizeMax  = 1000 * time.Millisecond
	streamDrainMax     = 2 * time.Second
)

type rawStreamSession interface {
	Send(pcm []byte) error
	CloseSend() error
	Recv() (streamUpdate, error)
	Close() error
}

type streamUpdate struct {
	Transcript   string
	IsFinal      bool
	SpeechFinal  bool
	FromFinalize bool
}

type streamSession struct {
	ws        rawStreamSession
	onSegment SegmentFunc
	audioCh   chan []byte
	startedAt time.Time
	connected chan struct{} // closed when the socket is ready (or failed)

	sendDone      chan struct{}
	recvDone      chan struct{}
	finalized     chan struct{}
	finalizedOnce sync.Once

	feedMu  sync.Mutex
	feedBuf []byte
	fed     bool // audioCh closed once set

	mu       sync.Mutex
	err      error
	errOnce  sync.Once
	closing  bool
	position int
	stats    streamStats
}

type streamStats struct {
	ConnectDur   time.Duration
	SentChunks   int
	SentBytes    uint64
	RecvMessages int
	RecvFinal    int
	RecvInterim  int
}

func newStreamSession(dial func() (rawStreamSession, error), onSegment SegmentFunc) *streamSession {
	ss := &streamSession{
		onSegment: onSegment,
		audioCh:   make(chan []byte, 128),
		startedAt: time.Now(),
		sendDone:  make(chan struct{}),
		recvDone:  make(chan struct{}),
		finalized: make(chan struct{}),
		connected: make(chan struct{}),
	}

	go func() {
		connectStart := time.Now()
		ws, err := dial()
		ss.mu.Lock()
		ss.stats.ConnectDur = time.Since(connectStart)
		ss.mu.Unlock()

		if err != nil {
			log.Warnf("stream connect failed: %v", err)
			ss.setErr(err)
			close(ss.sendDone)
			close(ss.recvDone)
			close(ss.connected)
			go func() { // keep Feed from blocking on a dead stream
				for range ss.audioCh {
				}
			}()
			return
		}

		ss.ws = ws
		close(ss.connected)
		go ss.runSender()
		go ss.runReceiver()
	}()

	return ss
}

func (s *streamSession) Feed(pcm []byte) {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	if s.fed {
		return
	}
	s.feedBuf = append(s.feedBuf, pcm...)
	for len(s.feedBuf) >= streamChunkBytes {
		chunk := make([]byte, streamChunkBytes)
		copy(chunk, s.feedBuf[:streamChunkBytes])
		s.feedBuf = s.feedBuf[streamChunkBytes:]
		s.audioCh <- chunk
	}
}

func (s *streamSession) Close() error {
	s.feedMu.Lock()
	if !s.fed {
		if len(s.feedBuf) > 0 {
			s.audioCh <- s.feedBuf
			s.feedBuf = nil
		}
		s.fed = true
		close(s.audioCh)
	}
	s.feedMu.Unlock()

	<-s.connected
	<-s.sendDone

	if s.ws != nil {
		// Wait for server finalize acknowledgment, then brief quiet period
		select {
		case <-s.finalized:
			time.Sleep(streamFinalizeIdle)
		case <-time.After(streamFinalizeMax):
		case <-s.recvDone:
		}

		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		s.ws.Close()
		select {
		case <-s.recvDone:
		case <-time.After(streamDrainMax):
			log.Warn("stream receiver drain timeout")
		}
	}

	s.mu.Lock()
	s.closing = true
	stats := s.stats
	err := s.err
	s.mu.Unlock()

	log.Info(s.formatMetrics(stats))
	return err
}

func (s *streamSession) runSender() {
	defer close(s.sendDone)
	for chunk := range s.audioCh {
		if err := s.ws.Send(chunk); err != nil {
			s.setErr(err)
			for range s.audioCh {
			}
			return
		}
		s.mu.Lock()
		s.stats.SentChunks++
		s.stats.SentBytes += uint64(len(chunk))
		s.mu.Unlock()
	}
	if err := s.ws.CloseSend(); err != nil {
		s.setErr(err)
	}
}

func (s *streamSession) runReceiver() {
	defer close(s.recvDone)
	for {
		update, err := s.ws.Recv()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if !closing {
				s.setErr(err)
			}
			return
		}

		if update.FromFinalize {
			s.finalizedOnce.Do(func() { close(s.finalized) })
		}

		seg, ok := s.segmentFor(update)
		if ok {
			s.onSegment(seg)
		}
	}
}

// segmentFor maps a server update onto the position-keyed segment stream:
// interim results share the open position, a final result closes it.
func (s *streamSession) segmentFor(update streamUpdate) (Segment, bool) {
	isFinal := update.IsFinal || update.SpeechFinal || update.FromFinalize
	text := strings.TrimSpace(update.Transcript)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.RecvMessages++
	if isFinal {
		s.stats.RecvFinal++
	} else {
		s.stats.RecvInterim++
	}
	if s.closing {
		return Segment{}, false
	}

	seg := Segment{Text: text, IsFinal: isFinal, Sequence: s.position}
	if isFinal {
		s.position++
		// an empty final still closes the position so a stale interim is cleared
		return seg, true
	}
	return seg, text != ""
}

func (s *streamSession) setErr(err error) {
	if err == nil {
		return
	}
	s.errOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		if s.ws != nil {
			s.ws.Close()
		}
	})
}

func (s *streamSession) formatMetrics(stats streamStats) string {
	audioS := float64(stats.SentBytes) / float64(encoder.SampleRate*encoder.Channels*(encoder.BitsPerSample/8))
	return fmt.Sprintf("stream: connect=%dms audio=%.1fs sent=%d chunks recv=%d (%d final, %d interim) total=%dms",
		stats.ConnectDur.Milliseconds(), audioS, stats.SentChunks,
		stats.RecvMessages, stats.RecvFinal, stats.RecvInterim,
		time.Since(s.startedAt).Milliseconds())
}
