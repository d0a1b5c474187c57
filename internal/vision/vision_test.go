package vision

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#3D9970")
	if err != nil {
		t.Fatalf("ParseHexColor returned error: %v", err)
	}
	if c != TargetColor {
		t.Errorf("Expected %v, got %v", TargetColor, c)
	}
	if c.String() != "#3D9970" {
		t.Errorf("Expected #3D9970, got %s", c.String())
	}

	for _, bad := range []string{"", "#3D99", "#GGGGGG", "3D9970FF"} {
		if _, err := ParseHexColor(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestMatchesIsPerChannel(t *testing.T) {
	tests := []struct {
		name string
		c    RGB
		want bool
	}{
		{"exact", RGB{61, 153, 112}, true},
		{"all at tolerance", RGB{76, 138, 127}, true},
		{"red beyond", RGB{77, 153, 112}, false},
		{"green beyond", RGB{61, 137, 112}, false},
		{"blue beyond", RGB{61, 153, 128}, false},
		{"white", RGB{255, 255, 255}, false},
	}
	for _, tt := range tests {
		if got := tt.c.Matches(TargetColor, DefaultTolerance); got != tt.want {
			t.Errorf("%s: Matches(%v) = %v, want %v", tt.name, tt.c, got, tt.want)
		}
	}
}

func TestSingleChannelOutlierRejectedDespiteSmallDistance(t *testing.T) {
	// Off by 16 on one channel only: Euclidean distance 16 is close to the
	// tolerance, but the per-channel test must still reject it.
	c := RGB{R: 61 + 16, G: 153, B: 112}
	if c.Matches(TargetColor, DefaultTolerance) {
		t.Error("Expected single-channel outlier to be rejected")
	}

	// Off by 15 on every channel: Euclidean distance ~26 but accepted.
	c = RGB{R: 61 + 15, G: 153 - 15, B: 112 + 15}
	if !c.Matches(TargetColor, DefaultTolerance) {
		t.Error("Expected sample within tolerance on every channel to match")
	}
	if d := Distance(c, TargetColor); d < 25 {
		t.Errorf("Expected Euclidean distance above 25, got %v", d)
	}
}

func fill(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

var target = color.RGBA{R: 61, G: 153, B: 112, A: 255}

func TestCentroidOfRectangle(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	fill(img, img.Bounds(), color.RGBA{R: 255, G: 255, B: 255, A: 255})
	fill(img, image.Rect(40, 20, 61, 51), target)

	det := NewDetector().Detect(img)
	if !det.Found {
		t.Fatal("Expected target to be found")
	}
	// Pixel indices 40..60 and 20..50
	if det.X != 50 || det.Y != 35 {
		t.Errorf("Expected centroid (50,35), got (%v,%v)", det.X, det.Y)
	}
	if det.Pixels != 21*31 {
		t.Errorf("Expected %d pixels, got %d", 21*31, det.Pixels)
	}
}

func TestCentroidEvenSizedRectangle(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 50, 50))
	fill(img, image.Rect(10, 10, 20, 14), target)

	det := NewDetector().Detect(img)
	if math.Abs(det.X-14.5) > 1e-9 || math.Abs(det.Y-11.5) > 1e-9 {
		t.Errorf("Expected centroid (14.5,11.5), got (%v,%v)", det.X, det.Y)
	}
}

func TestNoMatch(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	fill(img, img.Bounds(), color.RGBA{R: 61, G: 153, B: 140, A: 255})

	if det := NewDetector().Detect(img); det.Found || det.Pixels != 0 {
		t.Errorf("Expected no detection, got %+v", det)
	}
}

func TestDetectGenericImageAndOffsetBounds(t *testing.T) {
	img := image.NewNRGBA(image.Rect(100, 100, 140, 140))
	for y := 110; y < 120; y++ {
		for x := 120; x < 130; x++ {
			img.Set(x, y, target)
		}
	}

	det := NewDetector().Detect(img)
	if det.X != 24.5 || det.Y != 14.5 {
		t.Errorf("Expected frame-relative centroid (24.5,14.5), got (%v,%v)", det.X, det.Y)
	}

	sub := image.NewRGBA(image.Rect(0, 0, 40, 40))
	fill(sub, image.Rect(30, 30, 32, 32), target)
	det = NewDetector().Detect(sub.SubImage(image.Rect(20, 20, 40, 40)))
	if det.X != 10.5 || det.Y != 10.5 {
		t.Errorf("Expected sub-image centroid (10.5,10.5), got (%v,%v)", det.X, det.Y)
	}
}
