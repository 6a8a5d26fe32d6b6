package encoder

import (
	"encoding/binary"
	"time"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
}

// Samples decodes S16LE PCM; a trailing odd byte is dropped.
func Samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// Duration converts a mono frame count at SampleRate to wall time.
func Duration(frames uint64) time.Duration {
	return time.Duration(frames) * time.Second / SampleRate
}
