package capture

import (
	"bytes"
	"io"
	"time"

	"speakup/encoder"
)

// AudioHandle is the FLAC byte stream of a finished capture.
type AudioHandle struct {
	data   []byte
	frames uint64
}

func (h *AudioHandle) Reader() io.Reader {
	return bytes.NewReader(h.data)
}

func (h *AudioHandle) Len() int {
	return len(h.data)
}

func (h *AudioHandle) Frames() uint64 {
	return h.frames
}

func (h *AudioHandle) Duration() time.Duration {
	return encoder.Duration(h.frames)
}

// encodeStream FLAC-encodes PCM chunks from in until it is closed. Samples
// are regrouped into fixed-size blocks; the tail goes out as a short block.
// The result is nil when nothing was captured or encoding failed.
func encodeStream(in <-chan []byte, newEncoder func() (encoder.Encoder, error)) (*AudioHandle, error) {
	enc, err := newEncoder()
	if err != nil {
		for range in {
		}
		return nil, err
	}

	var pending []int16
	var encErr error
	for pcm := range in {
		if encErr != nil {
			continue
		}
		pending = append(pending, encoder.Samples(pcm)...)
		for len(pending) >= encoder.BlockSize {
			if encErr = enc.EncodeBlock(pending[:encoder.BlockSize]); encErr != nil {
				break
			}
			pending = pending[encoder.BlockSize:]
		}
	}
	if encErr == nil && len(pending) > 0 {
		encErr = enc.EncodeBlock(pending)
	}
	if cerr := enc.Close(); encErr == nil {
		encErr = cerr
	}
	if encErr != nil {
		return nil, encErr
	}
	if enc.TotalFrames() == 0 {
		return nil, nil
	}
	data := append([]byte(nil), enc.Bytes()...)
	return &AudioHandle{data: data, frames: enc.TotalFrames()}, nil
}
