// Package input drives the operating system pointer.
package input

import (
	"errors"
	"math"
)

// ErrUnsupported is returned on platforms without a pointer backend.
var ErrUnsupported = errors.New("pointer control not supported on this platform")

// Point is a screen position in pointer coordinates.
type Point struct {
	X, Y float64
}

// Distance returns the straight-line distance between p and q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Lerp returns the point a fraction t of the way from p to q.
func (p Point) Lerp(q Point, t float64) Point {
	return Point{X: p.X + (q.X-p.X)*t, Y: p.Y + (q.Y-p.Y)*t}
}

// Pointer moves and clicks the system pointer. Each call is one atomic
// step; implementations do not animate.
type Pointer interface {
	Position() (Point, error)
	MoveTo(p Point) error
	Click() error

	// ScreenSize is the size of the main display in pointer
	// coordinates.
	ScreenSize() (width, height float64, err error)
}
