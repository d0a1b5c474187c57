//go:build !windows && !darwin

package hotkey

func (m *Manager) startPlatform() error {
	return ErrUnsupported
}

func (m *Manager) stopPlatform() {}
