package vision

import "image"

// Detection is the result of scanning one frame.
type Detection struct {
	Found bool

	// X and Y are the centroid in frame pixels, relative to the frame's
	// top-left corner.
	X, Y float64

	// Pixels is the number of matching pixels.
	Pixels int
}

// Detector classifies pixels against a reference color.
type Detector struct {
	Color     RGB
	Tolerance int
}

// NewDetector returns a detector for the study target.
func NewDetector() *Detector {
	return &Detector{Color: TargetColor, Tolerance: DefaultTolerance}
}

// Detect returns the centroid of every matching pixel in img.
func (d *Detector) Detect(img image.Image) Detection {
	b := img.Bounds()
	var sumX, sumY float64
	n := 0

	if rgba, ok := img.(*image.RGBA); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := rgba.Pix[rgba.PixOffset(b.Min.X, y):]
			for x := 0; x < b.Dx(); x++ {
				p := row[x*4 : x*4+3]
				if (RGB{R: p[0], G: p[1], B: p[2]}).Matches(d.Color, d.Tolerance) {
					sumX += float64(x)
					sumY += float64(y - b.Min.Y)
					n++
				}
			}
		}
	} else {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, _ := img.At(x, y).RGBA()
				c := RGB{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(bl >> 8)}
				if c.Matches(d.Color, d.Tolerance) {
					sumX += float64(x - b.Min.X)
					sumY += float64(y - b.Min.Y)
					n++
				}
			}
		}
	}

	if n == 0 {
		return Detection{}
	}
	return Detection{
		Found:  true,
		X:      sumX / float64(n),
		Y:      sumY / float64(n),
		Pixels: n,
	}
}
