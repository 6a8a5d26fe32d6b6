//go:build linux

package cue

import (
	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"

	"speakup/log"
)

func playSamples(samples []int16) {
	c, err := pulse.NewClient()
	if err != nil {
		log.Warnf("cue: pulse client: %v", err)
		return
	}
	defer c.Close()

	pos := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if pos >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[pos:])
		pos += n
		return n, nil
	})
	stream, err := c.NewPlayback(reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackRawOption(func(p *proto.CreatePlaybackStream) {
			p.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm)}
		}),
	)
	if err != nil {
		log.Warnf("cue: pulse playback: %v", err)
		return
	}
	defer stream.Close()
	stream.Start()
	stream.Drain()
	stream.Stop()
}
