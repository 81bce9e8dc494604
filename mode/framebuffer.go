package mode

import (
	"os"
	"unsafe"

	drm "github.com/NeowayLabs/drmplanes"
	"github.com/NeowayLabs/drmplanes/ioctl"
)

// Format modifiers, see DRM_FORMAT_MOD_* in drm_fourcc.h
const (
	ModifierLinear  = 0
	ModifierInvalid = 0x00ffffffffffffff
)

// FBModifiers tells ADDFB2 that the Modifier field is valid.
const FBModifiers = 1 << 1

type (
	sysFBCmd2 struct {
		fbID          uint32
		width, height uint32
		pixelFormat   uint32
		flags         uint32

		handles [4]uint32
		pitches [4]uint32
		offsets [4]uint32
		pad     uint32

		modifier [4]uint64
	}

	// FB2 describes a multi planar framebuffer for AddFB2. Unused planes
	// have a zero handle.
	FB2 struct {
		Width, Height uint32
		Format        uint32
		Flags         uint32

		Handles  [4]uint32
		Pitches  [4]uint32
		Offsets  [4]uint32
		Modifier [4]uint64
	}
)

var (
	// DRM_IOWR(0xB8, struct drm_mode_fb_cmd2)
	IOCTLModeAddFB2 = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysFBCmd2{})), drm.IOCTLBase, 0xB8)
)

func AddFB2(file *os.File, fb *FB2) (uint32, error) {
	f := &sysFBCmd2{
		width:       fb.Width,
		height:      fb.Height,
		pixelFormat: fb.Format,
		flags:       fb.Flags,
		handles:     fb.Handles,
		pitches:     fb.Pitches,
		offsets:     fb.Offsets,
		modifier:    fb.Modifier,
	}
	err := ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeAddFB2),
		uintptr(unsafe.Pointer(f)))
	if err != nil {
		return 0, err
	}
	return f.fbID, nil
}
