//go:build windows

package input

import (
	"fmt"
	"math"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	procSetCursorPos     = user32.NewProc("SetCursorPos")
	procGetCursorPos     = user32.NewProc("GetCursorPos")
	procGetSystemMetrics = user32.NewProc("GetSystemMetrics")
	procSendInput        = user32.NewProc("SendInput")
)

const (
	SM_CXSCREEN = 0
	SM_CYSCREEN = 1

	INPUT_MOUSE          = 0
	MOUSEEVENTF_LEFTDOWN = 0x0002
	MOUSEEVENTF_LEFTUP   = 0x0004
)

type point struct {
	X, Y int32
}

type MOUSEINPUT struct {
	Dx          int32
	Dy          int32
	MouseData   uint32
	DwFlags     uint32
	Time        uint32
	DwExtraInfo uintptr
}

// INPUT mirrors the Win32 INPUT struct. MOUSEINPUT is the largest
// member of the union, so no padding is needed.
type INPUT struct {
	Type uint32
	Mi   MOUSEINPUT
}

// System drives the Windows pointer through user32.
type System struct{}

// NewSystem returns the platform pointer.
func NewSystem() *System {
	return &System{}
}

func (s *System) Position() (Point, error) {
	var p point
	ret, _, err := procGetCursorPos.Call(uintptr(unsafe.Pointer(&p)))
	if ret == 0 {
		return Point{}, fmt.Errorf("GetCursorPos: %w", err)
	}
	return Point{X: float64(p.X), Y: float64(p.Y)}, nil
}

func (s *System) MoveTo(p Point) error {
	ret, _, err := procSetCursorPos.Call(uintptr(int32(math.Round(p.X))), uintptr(int32(math.Round(p.Y))))
	if ret == 0 {
		return fmt.Errorf("SetCursorPos: %w", err)
	}
	return nil
}

func (s *System) Click() error {
	inputs := []INPUT{
		{Type: INPUT_MOUSE, Mi: MOUSEINPUT{DwFlags: MOUSEEVENTF_LEFTDOWN}},
		{Type: INPUT_MOUSE, Mi: MOUSEINPUT{DwFlags: MOUSEEVENTF_LEFTUP}},
	}
	ret, _, err := procSendInput.Call(
		uintptr(len(inputs)),
		uintptr(unsafe.Pointer(&inputs[0])),
		unsafe.Sizeof(inputs[0]),
	)
	if int(ret) != len(inputs) {
		return fmt.Errorf("SendInput: %w", err)
	}
	return nil
}

func (s *System) ScreenSize() (float64, float64, error) {
	w, _, _ := procGetSystemMetrics.Call(SM_CXSCREEN)
	h, _, _ := procGetSystemMetrics.Call(SM_CYSCREEN)
	if w == 0 || h == 0 {
		return 0, 0, fmt.Errorf("GetSystemMetrics returned %dx%d", w, h)
	}
	return float64(w), float64(h), nil
}
