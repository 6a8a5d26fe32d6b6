package audio

import (
	"errors"
	"strings"
)

const WAVHeaderSize = 44

// ErrPermissionDenied is returned when the platform refuses microphone access.
var ErrPermissionDenied = errors.New("microphone permission denied")

var btKeywords = []string{
	"airpods", "bose", "jabra", "galaxy buds", "pixel buds",
	"sony wh-", "sony wf-", "bluetooth", " bt ", " bt)",
}

// IsBluetooth guesses from the device name whether it is a headset mic.
// Bluetooth headsets drop to narrowband audio while recording.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

// Context enumerates devices and acquires capture handles.
type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

// CaptureDevice delivers signed 16-bit little-endian PCM to its callback
// between Start and Stop. Close releases the device.
type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}
