//go:build !darwin && !windows

package input

// System is the stub pointer for platforms without a backend.
type System struct{}

// NewSystem returns the platform pointer.
func NewSystem() *System {
	return &System{}
}

func (s *System) Position() (Point, error)              { return Point{}, ErrUnsupported }
func (s *System) MoveTo(Point) error                    { return ErrUnsupported }
func (s *System) Click() error                          { return ErrUnsupported }
func (s *System) ScreenSize() (float64, float64, error) { return 0, 0, ErrUnsupported }
