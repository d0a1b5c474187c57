// Package control holds the relay's keyboard-control session and the
// listener that turns key presses into study commands.
package control

import (
	"sync"
	"sync/atomic"

	"webfitts/internal/protocol"
)

const (
	MinSpeed     = 5.0
	MaxSpeed     = 100.0
	SpeedStep    = 5.0
	DefaultSpeed = 10.0
)

// ClampSpeed limits v to [MinSpeed, MaxSpeed].
func ClampSpeed(v float64) float64 {
	if v < MinSpeed {
		return MinSpeed
	}
	if v > MaxSpeed {
		return MaxSpeed
	}
	return v
}

// Broadcaster delivers a command to every connected study client. It must
// be safe to call from any goroutine and must not wait for delivery.
type Broadcaster interface {
	BroadcastCommand(name protocol.CommandName, data any) error
}

// Session is the relay's mutable control state. It is shared by
// reference between the keyboard listener, the tray and the HTTP status
// endpoint.
type Session struct {
	mu       sync.Mutex
	speed    float64
	keyboard bool
	running  atomic.Bool
}

// NewSession returns a running session with the speed clamped to range.
func NewSession(speed float64, keyboard bool) *Session {
	s := &Session{speed: ClampSpeed(speed), keyboard: keyboard}
	s.running.Store(true)
	return s
}

func (s *Session) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// AdjustSpeed adds delta to the current speed, clamps it and returns the
// new value.
func (s *Session) AdjustSpeed(delta float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = ClampSpeed(s.speed + delta)
	return s.speed
}

func (s *Session) KeyboardEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyboard
}

func (s *Session) Running() bool { return s.running.Load() }

// Stop clears the running flag. It is idempotent.
func (s *Session) Stop() { s.running.Store(false) }
