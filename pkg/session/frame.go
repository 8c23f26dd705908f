package session

/*
#cgo pkg-config: libavutil
#include <libavutil/frame.h>
#include <libavutil/mem.h>
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/asticode/go-astiav"
)

// PixelFormat is the fixed input format of the bridge: three
// full-resolution planes (4:4:4) in the full (JPEG) sample range.
const PixelFormat = astiav.PixelFormatYuv444P

// PixelBuffer is one caller-owned set of plane pointers. The memory
// behind it is never copied and never freed by this package; the caller
// must keep it valid and must not rewrite a slot until the submission
// using that slot has returned.
type PixelBuffer struct {
	Y  unsafe.Pointer
	Cb unsafe.Pointer
	Cr unsafe.Pointer
}

// AllocPixelBuffer av_malloc's three tightly packed width×height planes.
// It exists for hosts (and tests) that do not bring their own foreign
// memory; callers embedding the bridge usually pass pointers they
// already own.
func AllocPixelBuffer(width, height int) PixelBuffer {
	n := C.size_t(width * height)
	return PixelBuffer{
		Y:  C.av_malloc(n),
		Cb: C.av_malloc(n),
		Cr: C.av_malloc(n),
	}
}

// Free releases planes previously obtained from AllocPixelBuffer. Do not
// call it on buffers owned by somebody else.
func (b PixelBuffer) Free() {
	C.av_free(b.Y)
	C.av_free(b.Cb)
	C.av_free(b.Cr)
}

// Planes returns byte views over the three planes of a width×height
// buffer set.
func (b PixelBuffer) Planes(width, height int) (y, cb, cr []byte) {
	n := width * height
	return unsafe.Slice((*byte)(b.Y), n),
		unsafe.Slice((*byte)(b.Cb), n),
		unsafe.Slice((*byte)(b.Cr), n)
}

// AliasedFrame is an astiav.Frame whose plane pointers were swapped to a
// caller-owned PixelBuffer. The frame still owns its original
// allocation, so the original pointers are kept around and must be
// swapped back before av_frame_free runs: freeing with the swap in place
// would hand the caller's memory to the deallocator and leak the frame's
// own planes.
//
// The wrapper performs no synchronization; buffer lifetime and access
// ordering are entirely the caller's contract.
type AliasedFrame struct {
	*astiav.Frame
	original [3]*C.uint8_t
	restored bool
}

// NewAliasedFrame allocates a width×height frame of the fixed pixel
// format and points its planes at buf without copying any pixel data.
func NewAliasedFrame(width, height int, buf PixelBuffer) (*AliasedFrame, error) {
	f := astiav.AllocFrame()
	if f == nil {
		return nil, fmt.Errorf("unable to allocate a frame")
	}
	f.SetWidth(width)
	f.SetHeight(height)
	f.SetPixelFormat(PixelFormat)
	f.SetColorRange(astiav.ColorRangeJpeg)
	// align == 1: the caller's planes are tightly packed, so the frame's
	// linesize must be exactly the plane width.
	if err := f.AllocBuffer(1); err != nil {
		f.Free()
		return nil, fmt.Errorf("unable to allocate the frame buffer: %w", err)
	}

	frame := &AliasedFrame{Frame: f}
	c := frame.cFrame()
	frame.original[0] = c.data[0]
	frame.original[1] = c.data[1]
	frame.original[2] = c.data[2]
	c.data[0] = (*C.uint8_t)(buf.Y)
	c.data[1] = (*C.uint8_t)(buf.Cb)
	c.data[2] = (*C.uint8_t)(buf.Cr)
	return frame, nil
}

func (f *AliasedFrame) cFrame() *C.AVFrame {
	return (*C.AVFrame)(f.Frame.UnsafePointer())
}

// restore puts the frame's own plane pointers back. Idempotent. It must
// have happened by the time the frame is freed, on every exit path.
func (f *AliasedFrame) restore() {
	if f.restored {
		return
	}
	c := f.cFrame()
	c.data[0] = f.original[0]
	c.data[1] = f.original[1]
	c.data[2] = f.original[2]
	f.restored = true
}

// Close restores the original plane pointers and only then frees the
// frame. Safe to call multiple times.
func (f *AliasedFrame) Close() {
	if f.Frame == nil {
		return
	}
	f.restore()
	f.Frame.Free()
	f.Frame = nil
}

func (f *AliasedFrame) planePointers() [3]unsafe.Pointer {
	c := f.cFrame()
	return [3]unsafe.Pointer{
		unsafe.Pointer(c.data[0]),
		unsafe.Pointer(c.data[1]),
		unsafe.Pointer(c.data[2]),
	}
}

func (f *AliasedFrame) originalPointers() [3]unsafe.Pointer {
	return [3]unsafe.Pointer{
		unsafe.Pointer(f.original[0]),
		unsafe.Pointer(f.original[1]),
		unsafe.Pointer(f.original[2]),
	}
}
