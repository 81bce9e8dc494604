package mode

import (
	"os"
	"unsafe"

	drm "github.com/NeowayLabs/drmplanes"
	"github.com/NeowayLabs/drmplanes/ioctl"
)

// Cursor flags, see DRM_MODE_CURSOR_* in drm_mode.h
const (
	CursorBO   = 0x01
	CursorMove = 0x02
)

type (
	sysCursor struct {
		flags  uint32
		crtcID uint32
		x, y   int32
		width  uint32
		height uint32

		// driver specific handle
		handle uint32
	}

	sysCursor2 struct {
		flags  uint32
		crtcID uint32
		x, y   int32
		width  uint32
		height uint32
		handle uint32

		hotX, hotY int32
	}
)

var (
	// DRM_IOWR(0xA3, struct drm_mode_cursor)
	IOCTLModeCursor = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysCursor{})), drm.IOCTLBase, 0xA3)

	// DRM_IOWR(0xBB, struct drm_mode_cursor2)
	IOCTLModeCursor2 = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysCursor2{})), drm.IOCTLBase, 0xBB)
)

// SetCursor sets the cursor image of crtcid to the buffer handle. A zero
// handle hides the cursor.
func SetCursor(file *os.File, crtcid, handle, width, height uint32) error {
	c := &sysCursor{
		flags:  CursorBO,
		crtcID: crtcid,
		width:  width,
		height: height,
		handle: handle,
	}
	return ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeCursor),
		uintptr(unsafe.Pointer(c)))
}

// SetCursor2 is SetCursor with a hotspot, needed by virtual drivers.
func SetCursor2(file *os.File, crtcid, handle, width, height uint32, hotX, hotY int32) error {
	c := &sysCursor2{
		flags:  CursorBO,
		crtcID: crtcid,
		width:  width,
		height: height,
		handle: handle,
		hotX:   hotX,
		hotY:   hotY,
	}
	return ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeCursor2),
		uintptr(unsafe.Pointer(c)))
}

func MoveCursor(file *os.File, crtcid uint32, x, y int32) error {
	c := &sysCursor{
		flags:  CursorMove,
		crtcID: crtcid,
		x:      x,
		y:      y,
	}
	return ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeCursor),
		uintptr(unsafe.Pointer(c)))
}
