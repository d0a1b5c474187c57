package hotkey

import (
	"testing"
	"time"
)

func waitFired(t *testing.T, fired <-chan struct{}, want bool) {
	t.Helper()
	select {
	case <-fired:
		if !want {
			t.Fatal("Hotkey fired unexpectedly")
		}
	case <-time.After(100 * time.Millisecond):
		if want {
			t.Fatal("Hotkey did not fire")
		}
	}
}

func TestSingleKeyHotkey(t *testing.T) {
	m := NewManager(nil)
	fired := make(chan struct{}, 4)
	if err := m.Register("Esc", func() { fired <- struct{}{} }); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	m.UpdateState("A", true)
	waitFired(t, fired, false)

	m.UpdateState("esc", true)
	waitFired(t, fired, true)
}

func TestComboRequiresAllKeys(t *testing.T) {
	m := NewManager(nil)
	fired := make(chan struct{}, 4)
	m.Register("Ctrl+Alt+K", func() { fired <- struct{}{} })

	m.UpdateState("CTRL", true)
	m.UpdateState("K", true)
	waitFired(t, fired, false)

	m.UpdateState("K", false)
	m.UpdateState("ALT", true)
	waitFired(t, fired, false)

	m.UpdateState("K", true)
	waitFired(t, fired, true)
}

func TestRegisterRejectsMalformed(t *testing.T) {
	m := NewManager(nil)
	for _, combo := range []string{"", "  ", "Ctrl+", "+Esc"} {
		if err := m.Register(combo, func() {}); err == nil {
			t.Errorf("Expected error for %q", combo)
		}
	}
}

func TestClear(t *testing.T) {
	m := NewManager(nil)
	fired := make(chan struct{}, 1)
	m.Register("Esc", func() { fired <- struct{}{} })
	m.Clear()

	m.UpdateState("ESC", true)
	waitFired(t, fired, false)
}

func TestStopDropsHotkeysAndHeldKeys(t *testing.T) {
	m := NewManager(nil)
	fired := make(chan struct{}, 1)
	m.Register("Ctrl+K", func() { fired <- struct{}{} })

	m.UpdateState("CTRL", true)
	m.Stop()
	m.Stop()

	m.UpdateState("K", true)
	waitFired(t, fired, false)

	m.Register("K", func() { fired <- struct{}{} })
	m.UpdateState("K", true)
	waitFired(t, fired, true)
}
