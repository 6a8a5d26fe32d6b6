//go:build linux

package hotkey

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	evKey          = 1
	inputEventSize = 24
)

// evdevHotkey reads keyboards under /dev/input directly, so it works
// without a display server as long as the user is in the input group.
type evdevHotkey struct {
	keydown chan struct{}
	keyup   chan struct{}
	files   []*os.File
	stop    chan struct{}
	once    sync.Once
}

func New() Hotkey {
	return &evdevHotkey{
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

func (h *evdevHotkey) Register() error {
	keyboards, err := findKeyboards()
	if err != nil {
		return fmt.Errorf("finding keyboards: %w", err)
	}
	if len(keyboards) == 0 {
		return fmt.Errorf("no keyboard devices found (is user in 'input' group?)")
	}
	for _, path := range keyboards {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		h.files = append(h.files, f)
		go h.readEvents(f)
	}
	if len(h.files) == 0 {
		return fmt.Errorf("could not open any keyboard device (run: sudo usermod -aG input $USER, then re-login)")
	}
	return nil
}

func (h *evdevHotkey) readEvents(f *os.File) {
	buf := make([]byte, inputEventSize*16)
	var c combo
	for {
		n, err := f.Read(buf)
		if err != nil {
			return
		}
		for i := 0; i+inputEventSize <= n; i += inputEventSize {
			if binary.LittleEndian.Uint16(buf[i+16:]) != evKey {
				continue
			}
			down, up := c.feed(binary.LittleEndian.Uint16(buf[i+18:]), int32(binary.LittleEndian.Uint32(buf[i+20:])))
			switch {
			case down:
				h.signal(h.keydown)
			case up:
				h.signal(h.keyup)
			}
		}
	}
}

func (h *evdevHotkey) signal(ch chan struct{}) {
	select {
	case <-h.stop:
	case ch <- struct{}{}:
	default:
	}
}

// Unregister closes the devices, which ends the readers.
func (h *evdevHotkey) Unregister() {
	h.once.Do(func() {
		close(h.stop)
		for _, f := range h.files {
			f.Close()
		}
	})
}

func (h *evdevHotkey) Keydown() <-chan struct{} { return h.keydown }
func (h *evdevHotkey) Keyup() <-chan struct{}   { return h.keyup }

func findKeyboards() ([]string, error) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, err
	}
	var keyboards []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "event") && isKeyboard(e.Name()) {
			keyboards = append(keyboards, filepath.Join("/dev/input", e.Name()))
		}
	}
	return keyboards, nil
}

// isKeyboard treats devices with a wide key capability bitmap as keyboards;
// mice and power buttons report only a few bits.
func isKeyboard(eventName string) bool {
	data, err := os.ReadFile(filepath.Join("/sys/class/input", eventName, "device", "capabilities", "key"))
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(data))) > 10
}
