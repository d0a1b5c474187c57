//go:build darwin

package screen

/*
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation
#include <CoreGraphics/CoreGraphics.h>
#include <stdlib.h>

struct frame {
    unsigned char *pix;
    size_t width;
    size_t height;
    int err;
};

// captureMain renders the main display into a tightly packed RGBA buffer
// owned by the caller.
static struct frame captureMain(void) {
    struct frame f = {0};
    CGRect bounds = CGDisplayBounds(CGMainDisplayID());
    CGImageRef image = CGWindowListCreateImage(bounds, kCGWindowListOptionOnScreenOnly, kCGNullWindowID, kCGWindowImageDefault);
    if (image == NULL) {
        f.err = 1;
        return f;
    }

    size_t w = CGImageGetWidth(image);
    size_t h = CGImageGetHeight(image);
    unsigned char *pix = calloc(w * h, 4);
    if (pix == NULL) {
        CGImageRelease(image);
        f.err = 2;
        return f;
    }

    CGColorSpaceRef space = CGColorSpaceCreateDeviceRGB();
    CGContextRef ctx = CGBitmapContextCreate(pix, w, h, 8, w * 4, space,
        kCGImageAlphaPremultipliedLast | kCGBitmapByteOrder32Big);
    CGColorSpaceRelease(space);
    if (ctx == NULL) {
        free(pix);
        CGImageRelease(image);
        f.err = 2;
        return f;
    }

    CGContextDrawImage(ctx, CGRectMake(0, 0, w, h), image);
    CGContextRelease(ctx);
    CGImageRelease(image);

    f.pix = pix;
    f.width = w;
    f.height = h;
    return f;
}
*/
import "C"
import (
	"context"
	"errors"
	"image"
	"unsafe"
)

type systemCapturer struct{}

// NewSystem returns the platform capturer.
func NewSystem() Capturer {
	return systemCapturer{}
}

func (systemCapturer) Capture(ctx context.Context) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := C.captureMain()
	switch f.err {
	case 0:
	case 1:
		return nil, ErrPermissionRequired
	default:
		return nil, errors.New("failed to allocate capture buffer")
	}
	defer C.free(unsafe.Pointer(f.pix))

	w, h := int(f.width), int(f.height)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, unsafe.Slice((*byte)(unsafe.Pointer(f.pix)), w*h*4))
	return img, nil
}
