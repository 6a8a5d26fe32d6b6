// Package shutdown reacts to the process being asked to stop.
package shutdown

import (
	"os"
	"os/signal"
	"sync"
)

// Watch calls fn once on the first interrupt or termination signal.
// The returned stop function ends the watch.
func Watch(fn func()) (stop func()) {
	ch := make(chan os.Signal, 1)
	notify(ch)
	done := make(chan struct{})
	go func() {
		select {
		case <-ch:
			fn()
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}
