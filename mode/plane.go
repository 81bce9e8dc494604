package mode

import (
	"os"
	"runtime"
	"unsafe"

	drm "github.com/NeowayLabs/drmplanes"
	"github.com/NeowayLabs/drmplanes/ioctl"
)

type (
	sysGetPlaneRes struct {
		planeIdPtr  uint64
		countPlanes uint32
		pad         uint32
	}

	sysGetPlane struct {
		planeID uint32

		crtcID uint32
		fbID   uint32

		possibleCrtcs uint32
		gammaSize     uint32

		countFormatTypes uint32
		formatTypePtr    uint64
	}

	sysSetPlane struct {
		planeID uint32
		crtcID  uint32
		fbID    uint32 // fb object contains surface format type
		flags   uint32

		// Signed dest location allows it to be partially off screen
		crtcX, crtcY int32
		crtcW, crtcH uint32

		// Source values are 16.16 fixed point
		srcX, srcY uint32
		srcH, srcW uint32
	}

	sysPageFlip struct {
		crtcID   uint32
		fbID     uint32
		flags    uint32
		reserved uint32
		userData uint64
	}

	Plane struct {
		ID uint32

		CrtcID   uint32
		BufferID uint32

		PossibleCrtcs uint32
		GammaSize     uint32

		Formats []uint32
	}

	// PlaneGeometry is the SetPlane argument set. Source values are
	// plain pixels, the 16.16 conversion happens on the way to the kernel.
	PlaneGeometry struct {
		CrtcX, CrtcY int32
		CrtcW, CrtcH uint32
		SrcX, SrcY   uint32
		SrcW, SrcH   uint32
	}
)

// Page flip flags, see DRM_MODE_PAGE_FLIP_* in drm_mode.h
const (
	PageFlipEvent = 0x01
	PageFlipAsync = 0x02
)

var (
	// DRM_IOWR(0xB0, struct drm_mode_crtc_page_flip)
	IOCTLModePageFlip = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysPageFlip{})), drm.IOCTLBase, 0xB0)

	// DRM_IOWR(0xB5, struct drm_mode_get_plane_res)
	IOCTLModeGetPlaneResources = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysGetPlaneRes{})), drm.IOCTLBase, 0xB5)

	// DRM_IOWR(0xB6, struct drm_mode_get_plane)
	IOCTLModeGetPlane = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysGetPlane{})), drm.IOCTLBase, 0xB6)

	// DRM_IOWR(0xB7, struct drm_mode_set_plane)
	IOCTLModeSetPlane = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysSetPlane{})), drm.IOCTLBase, 0xB7)
)

// GetPlaneResources lists the plane ids. Primary and cursor planes are only
// reported after ClientCapUniversalPlanes is set.
func GetPlaneResources(file *os.File) ([]uint32, error) {
	res := &sysGetPlaneRes{}
	err := ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeGetPlaneResources),
		uintptr(unsafe.Pointer(res)))
	if err != nil {
		return nil, err
	}
	if res.countPlanes == 0 {
		return nil, nil
	}

	ids := make([]uint32, res.countPlanes)
	res.planeIdPtr = ptr(&ids[0])
	err = ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeGetPlaneResources),
		uintptr(unsafe.Pointer(res)))
	runtime.KeepAlive(ids)
	if err != nil {
		return nil, err
	}
	return ids[:min(len(ids), int(res.countPlanes))], nil
}

func GetPlane(file *os.File, id uint32) (*Plane, error) {
	plane := &sysGetPlane{}
	plane.planeID = id
	err := ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeGetPlane),
		uintptr(unsafe.Pointer(plane)))
	if err != nil {
		return nil, err
	}

	var formats []uint32
	if plane.countFormatTypes > 0 {
		formats = make([]uint32, plane.countFormatTypes)
		plane.formatTypePtr = ptr(&formats[0])
		err = ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeGetPlane),
			uintptr(unsafe.Pointer(plane)))
		runtime.KeepAlive(formats)
		if err != nil {
			return nil, err
		}
		formats = formats[:min(len(formats), int(plane.countFormatTypes))]
	}

	return &Plane{
		ID:            plane.planeID,
		CrtcID:        plane.crtcID,
		BufferID:      plane.fbID,
		PossibleCrtcs: plane.possibleCrtcs,
		GammaSize:     plane.gammaSize,
		Formats:       formats,
	}, nil
}

// SetPlane attaches bufferid to planeid on crtcid. A zero crtcid and
// bufferid turns the plane off.
func SetPlane(file *os.File, planeid, crtcid, bufferid, flags uint32, g PlaneGeometry) error {
	sp := &sysSetPlane{
		planeID: planeid,
		crtcID:  crtcid,
		fbID:    bufferid,
		flags:   flags,
		crtcX:   g.CrtcX,
		crtcY:   g.CrtcY,
		crtcW:   g.CrtcW,
		crtcH:   g.CrtcH,
		srcX:    g.SrcX << 16,
		srcY:    g.SrcY << 16,
		srcW:    g.SrcW << 16,
		srcH:    g.SrcH << 16,
	}
	return ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeSetPlane),
		uintptr(unsafe.Pointer(sp)))
}

// PageFlip queues bufferid on crtcid for the next vblank. With
// PageFlipEvent the kernel sends a flip complete event carrying userData.
func PageFlip(file *os.File, crtcid, bufferid, flags uint32, userData uint64) error {
	flip := &sysPageFlip{
		crtcID:   crtcid,
		fbID:     bufferid,
		flags:    flags,
		userData: userData,
	}
	return ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModePageFlip),
		uintptr(unsafe.Pointer(flip)))
}
