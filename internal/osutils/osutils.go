// Package osutils holds host integration the relay needs outside Go's
// portable surface.
package osutils

import (
	"net"
	"strings"
)

// FirewallRuleName is the inbound rule created for the relay port.
const FirewallRuleName = "WebFitts Relay"

// NeedsFirewallRule reports whether a relay bound to host is reachable
// from other machines and so needs an inbound rule.
func NeedsFirewallRule(host string) bool {
	host = strings.Trim(host, "[]")
	if host == "" {
		return true
	}
	if strings.EqualFold(host, "localhost") {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return true
	}
	return !ip.IsLoopback()
}
