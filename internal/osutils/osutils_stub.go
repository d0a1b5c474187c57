//go:build !windows

package osutils

import "go.uber.org/zap"

// IsAdmin is a stub for non-Windows platforms
func IsAdmin() bool {
	return false
}

// EnsureFirewallRule is a no-op outside Windows.
func EnsureFirewallRule(port int, logger *zap.Logger) error {
	if logger != nil {
		logger.Debug("Firewall rule management is only supported on Windows")
	}
	return nil
}
