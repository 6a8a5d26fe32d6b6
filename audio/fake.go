package audio

import (
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
	fakeSampleRate    = 16000
)

// FakeContext replays PCM from memory instead of a microphone. With Deny set,
// every NewCapture fails the way a refused permission prompt does.
type FakeContext struct {
	pcm      []byte
	realtime bool
	Deny     bool

	mu       sync.Mutex
	captures []*FakeCapture
}

func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return &FakeContext{pcm: data, realtime: realtime}, nil
}

// NewFakePCMContext serves the given raw PCM bytes.
func NewFakePCMContext(pcm []byte, realtime bool) *FakeContext {
	return &FakeContext{pcm: pcm, realtime: realtime}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	if f.Deny {
		return nil, fmt.Errorf("fake capture: %w", ErrPermissionDenied)
	}
	c := &FakeCapture{pcm: f.pcm, realtime: f.realtime}
	f.mu.Lock()
	f.captures = append(f.captures, c)
	f.mu.Unlock()
	return c, nil
}

// Captures returns every capture handed out so far.
func (f *FakeContext) Captures() []*FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeCapture(nil), f.captures...)
}

type FakeCapture struct {
	pcm      []byte
	realtime bool

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
	started  bool
	closed   bool
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

// Running reports whether the capture is between Start and Stop.
func (f *FakeCapture) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

// Closed reports whether the device was released.
func (f *FakeCapture) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) feedChunk(cb DataCallback, pos, chunkBytes int) int {
	end := min(pos+chunkBytes, len(f.pcm))
	chunk := make([]byte, end-pos)
	copy(chunk, f.pcm[pos:end])
	cb(chunk, uint32(len(chunk)/fakeBytesPerFrame))
	return end
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return fmt.Errorf("fake capture: already started")
	}
	f.started = true
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	stopCh, feedDone := f.stopCh, f.feedDone
	f.mu.Unlock()

	chunkBytes := fakeFrameSize * fakeBytesPerFrame
	interval := time.Millisecond
	if f.realtime {
		interval = time.Duration(fakeFrameSize) * time.Second / fakeSampleRate
	}

	go func() {
		defer close(feedDone)
		pos := 0
		for pos < len(f.pcm) {
			if cb := f.callback(); cb != nil {
				pos = f.feedChunk(cb, pos, chunkBytes)
			}
			select {
			case <-stopCh:
				return
			case <-time.After(interval):
			}
		}
		<-stopCh
	}()

	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	f.started = false
	stopCh, feedDone := f.stopCh, f.feedDone
	f.mu.Unlock()

	close(stopCh)
	<-feedDone
}

func (f *FakeCapture) Close() {
	f.Stop()
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}
