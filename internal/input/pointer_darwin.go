//go:build darwin

package input

/*
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation -framework ApplicationServices

#include <CoreGraphics/CoreGraphics.h>
#include <CoreFoundation/CoreFoundation.h>
#include <ApplicationServices/ApplicationServices.h>

static bool hasAccessibilityPermissions() {
    return AXIsProcessTrusted();
}

static CGPoint currentPosition() {
    CGEventRef event = CGEventCreate(NULL);
    CGPoint cursor = CGEventGetLocation(event);
    CFRelease(event);
    return cursor;
}

static int moveTo(double x, double y) {
    CGEventRef event = CGEventCreateMouseEvent(NULL, kCGEventMouseMoved, CGPointMake(x, y), kCGMouseButtonLeft);
    if (event == NULL) {
        return -1;
    }
    CGEventPost(kCGHIDEventTap, event);
    CFRelease(event);
    return 0;
}

static int leftClick() {
    CGPoint pos = currentPosition();
    CGEventRef down = CGEventCreateMouseEvent(NULL, kCGEventLeftMouseDown, pos, kCGMouseButtonLeft);
    CGEventRef up = CGEventCreateMouseEvent(NULL, kCGEventLeftMouseUp, pos, kCGMouseButtonLeft);
    if (down == NULL || up == NULL) {
        if (down != NULL) CFRelease(down);
        if (up != NULL) CFRelease(up);
        return -1;
    }
    CGEventPost(kCGHIDEventTap, down);
    CGEventPost(kCGHIDEventTap, up);
    CFRelease(down);
    CFRelease(up);
    return 0;
}

static CGSize mainDisplaySize() {
    return CGDisplayBounds(CGMainDisplayID()).size;
}
*/
import "C"
import (
	"errors"
	"fmt"
)

// System drives the macOS pointer through CoreGraphics events. Posting
// events requires the Accessibility permission.
type System struct{}

// NewSystem returns the platform pointer.
func NewSystem() *System {
	return &System{}
}

func (s *System) Position() (Point, error) {
	p := C.currentPosition()
	return Point{X: float64(p.x), Y: float64(p.y)}, nil
}

func (s *System) MoveTo(p Point) error {
	if C.moveTo(C.double(p.X), C.double(p.Y)) != 0 {
		return s.eventError("move")
	}
	return nil
}

func (s *System) Click() error {
	if C.leftClick() != 0 {
		return s.eventError("click")
	}
	return nil
}

func (s *System) ScreenSize() (float64, float64, error) {
	size := C.mainDisplaySize()
	if size.width <= 0 || size.height <= 0 {
		return 0, 0, errors.New("main display has no size")
	}
	return float64(size.width), float64(size.height), nil
}

func (s *System) eventError(op string) error {
	if !bool(C.hasAccessibilityPermissions()) {
		return fmt.Errorf("%s: accessibility permission not granted", op)
	}
	return fmt.Errorf("%s: failed to create CoreGraphics event", op)
}
