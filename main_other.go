//go:build !linux

package main

import (
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

// startMain runs fn while the main thread services the system hotkey API.
func startMain(fn func()) {
	mainthread.Init(fn)
}
