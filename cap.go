package drm

import (
	"os"
	"unsafe"

	"github.com/NeowayLabs/drmplanes/ioctl"
)

type (
	capability struct {
		cap uint64
		val uint64
	}
)

const (
	CapDumbBuffer = iota + 1
	CapVBlankHighCRTC
	CapDumbPreferredDepth
	CapDumbPreferShadow
	CapPrime
	CapTimestampMonotonic
	CapAsyncPageFlip
	CapCursorWidth
	CapCursorHeight

	CapAddFB2Modifiers = 0x10
	CapPageFlipTarget  = 0x11
	CapCrtcInVBlankEvt = 0x12
)

// Client capabilities, see DRM_CLIENT_CAP_* in drm.h
const (
	ClientCapStereo3D = iota + 1
	ClientCapUniversalPlanes
	ClientCapAtomic
	ClientCapAspectRatio
	ClientCapWritebackConnectors
)

func HasDumbBuffer(file *os.File) bool {
	val, err := GetCap(file, CapDumbBuffer)
	if err != nil {
		return false
	}
	return val != 0
}

func GetCap(file *os.File, c uint64) (uint64, error) {
	cap := &capability{}
	cap.cap = c
	err := ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLGetCap), uintptr(unsafe.Pointer(cap)))
	if err != nil {
		return 0, err
	}
	return cap.val, nil
}

// SetClientCap enables a client capability. Atomic mode setting needs
// ClientCapAtomic, which implies ClientCapUniversalPlanes.
func SetClientCap(file *os.File, c, val uint64) error {
	cap := &capability{cap: c, val: val}
	return ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLSetClientCap), uintptr(unsafe.Pointer(cap)))
}
