package audio

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// FindDevice returns the device with the given name, or nil when it is absent.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i], nil
		}
	}
	return nil, nil
}

type pickerAction int

const (
	pickerMove pickerAction = iota
	pickerSelect
	pickerCancel
)

// pickerKey applies one raw terminal read to the cursor.
func pickerKey(key []byte, cursor, n int) (int, pickerAction) {
	switch {
	case len(key) == 1 && key[0] == '\r':
		return cursor, pickerSelect
	case len(key) == 1 && (key[0] == 3 || key[0] == 'q'): // Ctrl+C
		return cursor, pickerCancel
	case len(key) == 1 && key[0] == 'j', len(key) == 3 && key[0] == 0x1b && key[1] == '[' && key[2] == 'B':
		if cursor < n-1 {
			cursor++
		}
	case len(key) == 1 && key[0] == 'k', len(key) == 3 && key[0] == 0x1b && key[1] == '[' && key[2] == 'A':
		if cursor > 0 {
			cursor--
		}
	}
	return cursor, pickerMove
}

func renderPicker(w io.Writer, devices []DeviceInfo, cursor int) {
	fmt.Fprint(w, "\r\x1b[J")
	fmt.Fprint(w, "Select microphone (↑/↓, Enter to confirm):\r\n\r\n")
	for i, d := range devices {
		tag := ""
		if IsBluetooth(d.Name) {
			tag = " \x1b[33m[headset mic: lower quality]\x1b[0m"
		}
		if i == cursor {
			fmt.Fprintf(w, "  \x1b[1;36m▶ %s%s\x1b[0m\r\n", d.Name, tag)
		} else {
			fmt.Fprintf(w, "    %s%s\r\n", d.Name, tag)
		}
	}
}

// SelectDevice presents an interactive device picker on the terminal.
// A single device is returned without prompting; a cancelled picker returns nil.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("no capture devices found")
	}
	if len(devices) == 1 {
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	cursor := 0
	renderPicker(os.Stdout, devices, cursor)

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		var action pickerAction
		cursor, action = pickerKey(buf[:n], cursor, len(devices))
		switch action {
		case pickerSelect:
			fmt.Print("\r\n")
			return &devices[cursor], nil
		case pickerCancel:
			fmt.Print("\r\n")
			return nil, nil
		}
		fmt.Printf("\x1b[%dA", len(devices)+2)
		renderPicker(os.Stdout, devices, cursor)
	}
}
