package mode

import (
	"os"

	drm "github.com/NeowayLabs/drmplanes"
)

// Card is an open DRM device. Its methods are the package functions bound
// to the device file, so that consumers can depend on small interfaces
// and be tested against fakes.
type Card struct {
	File *os.File
}

// OpenCard opens path (eg.: /dev/dri/card0).
func OpenCard(path string) (*Card, error) {
	f, err := drm.Open(path)
	if err != nil {
		return nil, err
	}
	return &Card{File: f}, nil
}

func (c *Card) Fd() uintptr { return c.File.Fd() }

func (c *Card) Close() error { return c.File.Close() }

func (c *Card) SetClientCap(cap, val uint64) error {
	return drm.SetClientCap(c.File, cap, val)
}

func (c *Card) GetCap(cap uint64) (uint64, error) {
	return drm.GetCap(c.File, cap)
}

func (c *Card) SetMaster() error { return drm.SetMaster(c.File) }

func (c *Card) DropMaster() error { return drm.DropMaster(c.File) }

func (c *Card) Resources() (*Resources, error) { return GetResources(c.File) }

func (c *Card) Connector(id uint32) (*Connector, error) { return GetConnector(c.File, id) }

func (c *Card) Encoder(id uint32) (*Encoder, error) { return GetEncoder(c.File, id) }

func (c *Card) Crtc(id uint32) (*Crtc, error) { return GetCrtc(c.File, id) }

func (c *Card) SetCrtc(crtcid, bufferid, x, y uint32, connectors []uint32, mode *Info) error {
	return SetCrtc(c.File, crtcid, bufferid, x, y, connectors, mode)
}

func (c *Card) PlaneResources() ([]uint32, error) { return GetPlaneResources(c.File) }

func (c *Card) Plane(id uint32) (*Plane, error) { return GetPlane(c.File, id) }

func (c *Card) SetPlane(planeid, crtcid, bufferid, flags uint32, g PlaneGeometry) error {
	return SetPlane(c.File, planeid, crtcid, bufferid, flags, g)
}

func (c *Card) PageFlip(crtcid, bufferid, flags uint32, userData uint64) error {
	return PageFlip(c.File, crtcid, bufferid, flags, userData)
}

func (c *Card) ObjectProperties(id, typ uint32) (*ObjectProperties, error) {
	return GetObjectProperties(c.File, id, typ)
}

func (c *Card) Property(id uint32) (*Property, error) { return GetProperty(c.File, id) }

func (c *Card) CreatePropertyBlob(data []byte) (uint32, error) {
	return CreatePropertyBlob(c.File, data)
}

func (c *Card) DestroyPropertyBlob(id uint32) error { return DestroyPropertyBlob(c.File, id) }

func (c *Card) Atomic(flags uint32, set *AtomicSet, userData uint64) error {
	return Atomic(c.File, flags, set, userData)
}

func (c *Card) AddFB2(fb *FB2) (uint32, error) { return AddFB2(c.File, fb) }

func (c *Card) RmFB(id uint32) error { return RmFB(c.File, id) }

func (c *Card) CreateDumb(width, height uint16, bpp uint32) (*FB, error) {
	return CreateFB(c.File, width, height, bpp)
}

func (c *Card) MapDumb(handle uint32) (uint64, error) { return MapDumb(c.File, handle) }

func (c *Card) DestroyDumb(handle uint32) error { return DestroyDumb(c.File, handle) }

func (c *Card) SetCursor(crtcid, handle, width, height uint32) error {
	return SetCursor(c.File, crtcid, handle, width, height)
}

func (c *Card) SetCursor2(crtcid, handle, width, height uint32, hotX, hotY int32) error {
	return SetCursor2(c.File, crtcid, handle, width, height, hotX, hotY)
}

func (c *Card) MoveCursor(crtcid uint32, x, y int32) error {
	return MoveCursor(c.File, crtcid, x, y)
}

func (c *Card) ReadEvents() ([]Event, error) { return ReadEvents(c.File) }
