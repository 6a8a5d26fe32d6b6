package hotkey

// Linux input event codes for the combination keys.
const (
	keyLCtrl  = 29
	keyRCtrl  = 97
	keyLShift = 42
	keyRShift = 54
	keySpace  = 57

	keyRelease = 0
	keyPress   = 1
)

// combo tracks modifier state across key events. Auto-repeat events
// (value 2) keep the current state.
type combo struct {
	ctrl, shift, space bool
}

// feed applies one key event and reports whether the combination was
// just pressed or just released.
func (c *combo) feed(code uint16, value int32) (down, up bool) {
	pressed := value == keyPress
	released := value == keyRelease

	switch code {
	case keyLCtrl, keyRCtrl:
		c.ctrl = pressed || (!released && c.ctrl)
	case keyLShift, keyRShift:
		c.shift = pressed || (!released && c.shift)
	case keySpace:
		if pressed && !c.space && c.ctrl && c.shift {
			c.space = true
			return true, false
		}
		if released && c.space {
			c.space = false
			return false, true
		}
	}
	return false, false
}
