// Package hotkey watches global key presses so an abort key works even
// while another window has focus.
package hotkey

import (
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ErrUnsupported is returned by Start when the platform has no global
// keyboard hook.
var ErrUnsupported = errors.New("global hotkeys not supported on this platform")

// Manager matches key combinations against global key state
type Manager struct {
	mu           sync.RWMutex
	hotkeys      []*registeredHotkey
	currentState map[string]bool // keys currently held
	log          *zap.Logger
}

type registeredHotkey struct {
	parts    []string // e.g. ["CTRL", "ALT", "ESC"]
	original string
	callback func()
}

// NewManager creates a new hotkey manager
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		currentState: make(map[string]bool),
		log:          logger.With(zap.String("component", "hotkey")),
	}
}

// Register adds a combination such as "Esc" or "Ctrl+Alt+K".
func (m *Manager) Register(combo string, callback func()) error {
	if strings.TrimSpace(combo) == "" {
		return errors.New("empty hotkey")
	}

	parts := strings.Split(strings.ToUpper(combo), "+")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
		if parts[i] == "" {
			return errors.New("malformed hotkey " + combo)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotkeys = append(m.hotkeys, &registeredHotkey{
		parts:    parts,
		original: combo,
		callback: callback,
	})
	return nil
}

// Clear removes all registered hotkeys
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotkeys = nil
}

// UpdateState records a key transition and fires any hotkey completed by
// a key press.
func (m *Manager) UpdateState(key string, isDown bool) {
	m.mu.Lock()
	key = strings.ToUpper(key)
	if isDown {
		m.currentState[key] = true
	} else {
		delete(m.currentState, key)
	}
	m.mu.Unlock()

	if isDown {
		m.checkMatches()
	}
}

func (m *Manager) checkMatches() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, hk := range m.hotkeys {
		match := true
		for _, part := range hk.parts {
			if !m.currentState[part] {
				match = false
				break
			}
		}

		if match {
			m.log.Info("Hotkey triggered", zap.String("hotkey", hk.original))
			// Hook callbacks must return quickly.
			go hk.callback()
		}
	}
}

// Start installs the platform hook. It returns ErrUnsupported where no
// hook exists and an error when the hook cannot be installed.
func (m *Manager) Start() error {
	return m.startPlatform()
}

// Stop removes the platform hook and every registered hotkey. Keys
// pressed afterwards fire nothing. It is safe to call without Start.
func (m *Manager) Stop() {
	m.Clear()
	m.mu.Lock()
	m.currentState = make(map[string]bool)
	m.mu.Unlock()
	m.stopPlatform()
}
