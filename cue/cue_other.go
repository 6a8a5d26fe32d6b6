//go:build !linux

package cue

import (
	"sync"

	"github.com/gen2brain/malgo"

	"speakup/log"
)

var playMu sync.Mutex

func playSamples(samples []int16) {
	playMu.Lock()
	defer playMu.Unlock()

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Warnf("cue: audio context: %v", err)
		return
	}
	defer func() {
		ctx.Uninit()
		ctx.Free()
	}()

	pcm := make([]byte, 2*len(samples))
	for i, s := range samples {
		pcm[2*i] = byte(s)
		pcm[2*i+1] = byte(s >> 8)
	}

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	var (
		pos  int
		once sync.Once
		done = make(chan struct{})
	)
	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			n := copy(out[:frameCount*2], pcm[pos:])
			pos += n
			clear(out[n:])
			if pos >= len(pcm) {
				once.Do(func() { close(done) })
			}
		},
	}

	device, err := malgo.InitDevice(ctx.Context, config, callbacks)
	if err != nil {
		log.Warnf("cue: playback device: %v", err)
		return
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		log.Warnf("cue: playback start: %v", err)
		return
	}
	<-done
	device.Stop()
}
