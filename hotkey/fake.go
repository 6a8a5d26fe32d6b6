package hotkey

// FakeHotkey is driven by the test through Press and Release.
type FakeHotkey struct {
	keydown chan struct{}
	keyup   chan struct{}
}

func NewFake() *FakeHotkey {
	return &FakeHotkey{
		keydown: make(chan struct{}),
		keyup:   make(chan struct{}),
	}
}

func (f *FakeHotkey) Register() error          { return nil }
func (f *FakeHotkey) Unregister()              {}
func (f *FakeHotkey) Keydown() <-chan struct{} { return f.keydown }
func (f *FakeHotkey) Keyup() <-chan struct{}   { return f.keyup }

// Press blocks until the driver consumes the key down.
func (f *FakeHotkey) Press()   { f.keydown <- struct{}{} }
func (f *FakeHotkey) Release() { f.keyup <- struct{}{} }
