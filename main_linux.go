//go:build linux

package main

// startMain runs fn on the calling goroutine; the evdev hotkey reader
// has no main thread requirements.
func startMain(fn func()) {
	fn()
}
