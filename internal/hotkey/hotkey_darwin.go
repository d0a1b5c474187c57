//go:build darwin

package hotkey

/*
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation -framework ApplicationServices
#include <CoreGraphics/CoreGraphics.h>
#include <CoreFoundation/CoreFoundation.h>
#include <stdint.h>

CGEventRef eventCallback(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *refcon);

static CFMachPortRef keyTap = NULL;
static CFRunLoopRef keyLoop = NULL;

static int createKeyTap(uintptr_t refcon) {
    CGEventMask mask = CGEventMaskBit(kCGEventKeyDown) |
                       CGEventMaskBit(kCGEventKeyUp) |
                       CGEventMaskBit(kCGEventFlagsChanged);
    keyTap = CGEventTapCreate(
        kCGSessionEventTap,
        kCGHeadInsertEventTap,
        kCGEventTapOptionListenOnly,
        mask,
        eventCallback,
        (void*)refcon
    );
    if (keyTap == NULL) {
        return -1;
    }
    keyLoop = CFRunLoopGetCurrent();
    return 0;
}

static void reenableKeyTap() {
    if (keyTap != NULL) {
        CGEventTapEnable(keyTap, true);
    }
}

static void runKeyTap() {
    CFRunLoopSourceRef source = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, keyTap, 0);
    CFRunLoopAddSource(CFRunLoopGetCurrent(), source, kCFRunLoopCommonModes);
    CGEventTapEnable(keyTap, true);
    CFRunLoopRun();
}

static void stopKeyTap() {
    if (keyTap != NULL) {
        CGEventTapEnable(keyTap, false);
    }
    if (keyLoop != NULL) {
        CFRunLoopStop(keyLoop);
    }
}
*/
import "C"
import (
	"errors"
	"runtime"
	"runtime/cgo"
	"unsafe"
)

//export eventCallback
func eventCallback(proxy C.CGEventTapProxy, eventType C.CGEventType, event C.CGEventRef, refcon unsafe.Pointer) C.CGEventRef {
	h := cgo.Handle(uintptr(refcon))
	m := h.Value().(*Manager)

	switch eventType {
	case C.kCGEventTapDisabledByTimeout, C.kCGEventTapDisabledByUserInput:
		C.reenableKeyTap()

	case C.kCGEventKeyDown, C.kCGEventKeyUp:
		keyCode := uint16(C.CGEventGetIntegerValueField(event, C.kCGKeyboardEventKeycode))
		if name := macKeyCodeToName(keyCode); name != "" {
			m.UpdateState(name, eventType == C.kCGEventKeyDown)
		}

	case C.kCGEventFlagsChanged:
		flags := C.CGEventGetFlags(event)
		keyCode := uint16(C.CGEventGetIntegerValueField(event, C.kCGKeyboardEventKeycode))
		switch keyCode {
		case 55, 54:
			m.UpdateState("CMD", (flags&C.kCGEventFlagMaskCommand) != 0)
		case 56, 60:
			m.UpdateState("SHIFT", (flags&C.kCGEventFlagMaskShift) != 0)
		case 58, 61:
			m.UpdateState("ALT", (flags&C.kCGEventFlagMaskAlternate) != 0)
		case 59, 62:
			m.UpdateState("CTRL", (flags&C.kCGEventFlagMaskControl) != 0)
		}
	}

	return event
}

func (m *Manager) startPlatform() error {
	handle := cgo.NewHandle(m)
	started := make(chan error, 1)

	go func() {
		// The run loop belongs to the thread that created the tap.
		runtime.LockOSThread()
		if C.createKeyTap(C.uintptr_t(handle)) != 0 {
			handle.Delete()
			started <- errors.New("failed to create CGEventTap, is the Accessibility permission granted?")
			return
		}
		started <- nil
		m.log.Info("macOS CGEventTap started")
		C.runKeyTap()
		handle.Delete()
		m.log.Info("macOS CGEventTap stopped")
	}()

	return <-started
}

func (m *Manager) stopPlatform() {
	C.stopKeyTap()
}

var macKeyNames = map[uint16]string{
	53: "ESC", 49: "SPACE", 36: "ENTER",
	0: "A", 11: "B", 8: "C", 2: "D", 14: "E", 3: "F", 5: "G", 4: "H", 34: "I",
	38: "J", 40: "K", 37: "L", 46: "M", 45: "N", 31: "O", 35: "P", 12: "Q",
	15: "R", 1: "S", 17: "T", 32: "U", 9: "V", 13: "W", 7: "X", 16: "Y", 6: "Z",
	29: "0", 18: "1", 19: "2", 20: "3", 21: "4", 23: "5", 22: "6", 26: "7", 28: "8", 25: "9",
}

func macKeyCodeToName(code uint16) string {
	return macKeyNames[code]
}
