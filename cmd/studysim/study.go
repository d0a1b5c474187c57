package main

import (
	"math"
	"sync"

	"webfitts/internal/protocol"
)

// study is a minimal model of the browser study: a ring of targets, a
// cursor, and the relay's control toggle.
type study struct {
	mu sync.Mutex

	canvas    protocol.Canvas
	amplitude float64
	width     float64
	targets   []protocol.Vec2

	cursor      protocol.Vec2
	prev        protocol.Vec2
	index       int
	clickNumber int
	controlled  bool
}

func newStudy(numTargets int, amplitude, width float64) *study {
	s := &study{
		canvas:    protocol.Canvas{Width: 800, Height: 600},
		amplitude: amplitude,
		width:     width,
	}
	cx, cy := s.canvas.Width/2, s.canvas.Height/2
	for i := 0; i < numTargets; i++ {
		a := 2 * math.Pi * float64(i) / float64(numTargets)
		s.targets = append(s.targets, protocol.Vec2{
			X: cx + amplitude/2*math.Cos(a),
			Y: cy + amplitude/2*math.Sin(a),
		})
	}
	s.cursor = protocol.Vec2{X: cx, Y: cy}
	s.prev = s.cursor
	return s
}

// target returns the active target. Successive targets sit across the
// ring from each other.
func (s *study) target() protocol.Vec2 {
	n := len(s.targets)
	return s.targets[(s.clickNumber*((n+1)/2))%n]
}

func (s *study) clampCursor() {
	s.cursor.X = math.Max(0, math.Min(s.canvas.Width, s.cursor.X))
	s.cursor.Y = math.Max(0, math.Min(s.canvas.Height, s.cursor.Y))
}

// apply executes a relay command. It returns a study event to report,
// or "" when the command produces none.
func (s *study) apply(cmd *protocol.Command) (string, map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd.Command {
	case protocol.CommandEnableControl:
		s.controlled = true
		return "control_enabled", nil, nil

	case protocol.CommandDisableControl:
		s.controlled = false
		return "control_disabled", nil, nil

	case protocol.CommandSetCursorRelative:
		var m protocol.RelativeMove
		if err := cmd.Decode(&m); err != nil {
			return "", nil, err
		}
		if m.NDX != nil && m.NDY != nil {
			s.cursor.X += *m.NDX * s.canvas.Width
			s.cursor.Y += *m.NDY * s.canvas.Height
		} else {
			s.cursor.X += m.DX
			s.cursor.Y += m.DY
		}
		s.clampCursor()

	case protocol.CommandSetCursorAbsolute:
		var m protocol.AbsoluteMove
		if err := cmd.Decode(&m); err != nil {
			return "", nil, err
		}
		if m.NX != nil && m.NY != nil {
			s.cursor = protocol.Vec2{X: *m.NX * s.canvas.Width, Y: *m.NY * s.canvas.Height}
		} else {
			s.cursor = protocol.Vec2{X: m.X, Y: m.Y}
		}
		s.clampCursor()

	case protocol.CommandTriggerClick:
		return "click", s.click(), nil
	}
	return "", nil, nil
}

// click registers a click at the cursor and advances to the next target.
func (s *study) click() map[string]any {
	t := s.target()
	dist := math.Hypot(t.X-s.cursor.X, t.Y-s.cursor.Y)
	hit := dist <= s.width/2
	data := map[string]any{
		"x":           s.cursor.X,
		"y":           s.cursor.Y,
		"hit":         hit,
		"clickNumber": s.clickNumber,
	}
	s.clickNumber++
	return data
}

// step advances the participant model by dt seconds: without relay
// control the cursor heads for the target at speed px/s.
func (s *study) step(dt, speed float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controlled || speed <= 0 {
		return
	}
	t := s.target()
	dx, dy := t.X-s.cursor.X, t.Y-s.cursor.Y
	dist := math.Hypot(dx, dy)
	reach := speed * dt
	if dist <= reach {
		s.cursor = t
		return
	}
	s.cursor.X += dx / dist * reach
	s.cursor.Y += dy / dist * reach
}

// frame snapshots the study as a telemetry message.
func (s *study) frame(now int64, dt float64) protocol.StudyData {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.target()
	move := protocol.Vec2{X: s.cursor.X - s.prev.X, Y: s.cursor.Y - s.prev.Y}
	moved := math.Hypot(move.X, move.Y)
	req := protocol.Vec2{X: t.X - s.cursor.X, Y: t.Y - s.cursor.Y}
	dist := math.Hypot(req.X, req.Y)
	s.prev = s.cursor

	d := protocol.StudyData{
		Type:      protocol.TypeStudyData,
		Timestamp: now,
		Cursor:    s.cursor,
		Target:    t,
		Movement:  protocol.Movement{Vector: move, Normalized: unit(move, moved)},
		Required:  protocol.Required{Vector: req, Normalized: unit(req, dist), Distance: dist},
		Task: protocol.Task{
			Index:       s.index,
			ClickNumber: s.clickNumber,
			Amplitude:   s.amplitude,
			Width:       s.width,
			NumTargets:  len(s.targets),
		},
		Canvas: s.canvas,
	}
	if dt > 0 {
		d.Movement.Speed = moved / dt
	}
	return d
}

func unit(v protocol.Vec2, length float64) protocol.Vec2 {
	if length == 0 {
		return protocol.Vec2{}
	}
	return protocol.Vec2{X: v.X / length, Y: v.Y / length}
}
