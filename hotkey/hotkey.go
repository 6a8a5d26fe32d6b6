// Package hotkey listens for the global Ctrl+Shift+Space combination and
// turns it into recording commands while the terminal is not focused.
package hotkey

import (
	"context"
	"time"
)

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Recorder is what the hotkey drives.
type Recorder interface {
	Begin() error
	End() error
}

const DefaultLongPress = 400 * time.Millisecond

// Drive turns presses into Begin and End calls until ctx is done.
//
// A press begins a recording. Releasing after longPress ends it (hold to
// talk); a shorter tap leaves it running until the next press is released.
// Recorder errors go to onErr, which may be nil.
func Drive(ctx context.Context, hk Hotkey, rec Recorder, longPress time.Duration, onErr func(op string, err error)) {
	report := func(op string, err error) {
		if err != nil && onErr != nil {
			onErr(op, err)
		}
	}
	wait := func(ch <-chan struct{}) bool {
		select {
		case <-ch:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		if !wait(hk.Keydown()) {
			return
		}
		if err := rec.Begin(); err != nil {
			report("begin", err)
			if !wait(hk.Keyup()) {
				return
			}
			continue
		}

		timer := time.NewTimer(longPress)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if !wait(hk.Keyup()) {
				return
			}
		case <-hk.Keyup():
			timer.Stop()
			if !wait(hk.Keydown()) || !wait(hk.Keyup()) {
				return
			}
		}
		report("end", rec.End())
	}
}
