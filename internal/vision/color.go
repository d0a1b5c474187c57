// Package vision finds the study target in a captured frame.
package vision

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultTolerance is the per-channel absolute difference accepted as a
// match. It absorbs anti-aliasing and color management.
const DefaultTolerance = 15

// RGB is an 8-bit color.
type RGB struct {
	R, G, B uint8
}

// TargetColor is the study's target fill, #3D9970.
var TargetColor = RGB{R: 61, G: 153, B: 112}

// ParseHexColor parses "#RRGGBB" or "RRGGBB".
func ParseHexColor(s string) (RGB, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return RGB{}, fmt.Errorf("invalid color %q: want #RRGGBB", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

func (c RGB) String() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// Matches reports whether every channel of c is within tolerance of ref.
// Channels are tested independently: one channel out of range rejects
// the sample no matter how close the others are.
func (c RGB) Matches(ref RGB, tolerance int) bool {
	return within(c.R, ref.R, tolerance) &&
		within(c.G, ref.G, tolerance) &&
		within(c.B, ref.B, tolerance)
}

func within(a, b uint8, tolerance int) bool {
	d := int(a) - int(b)
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

// Distance is the Euclidean distance between two colors. Detection does
// not use it; see Matches.
func Distance(a, b RGB) float64 {
	dr := float64(a.R) - float64(b.R)
	dg := float64(a.G) - float64(b.G)
	db := float64(a.B) - float64(b.B)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}
