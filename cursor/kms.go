package cursor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	drm "github.com/NeowayLabs/drmplanes"
	"github.com/NeowayLabs/drmplanes/buffer"
	"github.com/NeowayLabs/drmplanes/mode"
	"github.com/NeowayLabs/drmplanes/render"
)

// DefaultMaxSize is used when the driver does not report its cursor size.
const DefaultMaxSize = 64

var ErrNoCrtc = errors.New("no usable crtc")

// Controller is the cursor as seen by the demo tool and input handlers.
type Controller interface {
	SetVisibility(visible bool) error
	SetShape(t Type, s Size, st State) error
	SetPosition(x, y int) error
}

// Device is the part of mode.Card driving the cursor.
type Device interface {
	GetCap(cap uint64) (uint64, error)
	SetCursor(crtcid, handle, width, height uint32) error
	SetCursor2(crtcid, handle, width, height uint32, hotX, hotY int32) error
	MoveCursor(crtcid uint32, x, y int32) error
}

// CrtcLister is the part of mode.Card listing CRTCs.
type CrtcLister interface {
	Resources() (*mode.Resources, error)
	Crtc(id uint32) (*mode.Crtc, error)
}

// FirstCrtc returns the first CRTC of dev that can be queried.
func FirstCrtc(dev CrtcLister) (uint32, error) {
	res, err := dev.Resources()
	if err != nil {
		return 0, fmt.Errorf("get resources: %w", err)
	}
	for _, id := range res.Crtcs {
		if crtc, err := dev.Crtc(id); err == nil {
			return crtc.ID, nil
		}
	}
	return 0, fmt.Errorf("%w among %d crtcs", ErrNoCrtc, len(res.Crtcs))
}

// KMS is a Controller on the cursor plane of one CRTC. Images live in a
// surface of ARGB8888 buffers from alloc, replaced when the size changes.
type KMS struct {
	mu sync.Mutex

	dev   Device
	alloc buffer.Allocator
	crtc  uint32
	log   zerolog.Logger

	maxWidth, maxHeight uint32
	noCursor2           bool

	surface    *buffer.Surface
	hotX, hotY int32
	visible    bool
	x, y       int
}

var _ Controller = (*KMS)(nil)

func NewKMS(dev Device, alloc buffer.Allocator, crtc uint32, logger zerolog.Logger) *KMS {
	k := &KMS{
		dev:       dev,
		alloc:     alloc,
		crtc:      crtc,
		log:       logger.With().Uint32("crtc", crtc).Logger(),
		maxWidth:  capOr(dev, drm.CapCursorWidth, DefaultMaxSize),
		maxHeight: capOr(dev, drm.CapCursorHeight, DefaultMaxSize),
	}
	k.log.Debug().
		Uint32("max_width", k.maxWidth).
		Uint32("max_height", k.maxHeight).
		Msg("cursor limits")
	return k
}

func capOr(dev Device, c uint64, def uint32) uint32 {
	v, err := dev.GetCap(c)
	if err != nil || v == 0 {
		return def
	}
	return uint32(v)
}

// SetVisibility shows or hides the cursor. Showing it before a shape was
// set only takes effect with the first shape.
func (k *KMS) SetVisibility(visible bool) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.visible = visible
	if !visible {
		if err := k.dev.SetCursor(k.crtc, 0, 0, 0); err != nil {
			return fmt.Errorf("hide cursor: %w", err)
		}
		return nil
	}
	if bo := k.front(); bo != nil {
		return k.show(bo)
	}
	return nil
}

// SetShape draws a new cursor image. The size is clamped to the driver
// limits.
func (k *KMS) SetShape(t Type, s Size, st State) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	px := min(s.Pixels(), k.maxWidth, k.maxHeight)
	surf := k.surface
	if surf == nil || surf.Width != px {
		var err error
		surf, err = buffer.NewSurface(k.alloc, "cursor", px, px, mode.FormatARGB8888, k.log)
		if err != nil {
			return err
		}
	}
	discard := func() {
		if surf != k.surface {
			surf.Close()
		}
	}

	shape := Shape{Type: t, State: st}
	bo, err := render.CPU{Source: surf, Painter: shape}.Produce()
	if err != nil {
		discard()
		return fmt.Errorf("draw %s cursor: %w", t, err)
	}

	hotX, hotY := k.hotX, k.hotY
	k.hotX, k.hotY = shape.Hotspot(px)
	if k.visible {
		if err := k.show(bo); err != nil {
			k.hotX, k.hotY = hotX, hotY
			surf.Release(bo)
			discard()
			return err
		}
	}

	prev, err := surf.Scanout(bo)
	if err != nil {
		return err
	}
	if surf != k.surface {
		if k.surface != nil {
			k.surface.Close()
		}
		k.surface = surf
	} else if err := surf.Release(prev); err != nil {
		k.log.Warn().Err(err).Msg("release cursor image")
	}

	k.log.Debug().
		Stringer("type", t).
		Stringer("size", s).
		Stringer("state", st).
		Uint32("pixels", px).
		Msg("cursor shape")
	return nil
}

// SetPosition moves the cursor hotspot to x, y.
func (k *KMS) SetPosition(x, y int) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.dev.MoveCursor(k.crtc, int32(x)-k.hotX, int32(y)-k.hotY); err != nil {
		return fmt.Errorf("move cursor to %d,%d: %w", x, y, err)
	}
	k.x, k.y = x, y
	return nil
}

// Position is the last position set.
func (k *KMS) Position() (int, int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.x, k.y
}

// Close hides the cursor and frees its images.
func (k *KMS) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	err := k.dev.SetCursor(k.crtc, 0, 0, 0)
	if k.surface != nil {
		err = errors.Join(err, k.surface.Close())
		k.surface = nil
	}
	return err
}

func (k *KMS) front() *buffer.Object {
	if k.surface == nil {
		return nil
	}
	return k.surface.Front()
}

// show sets bo as the cursor image. CURSOR2 carries the hotspot, drivers
// without it get the plain ioctl from then on.
func (k *KMS) show(bo *buffer.Object) error {
	if !k.noCursor2 {
		err := k.dev.SetCursor2(k.crtc, bo.Handles[0], bo.Width, bo.Height, k.hotX, k.hotY)
		if err == nil {
			return nil
		}
		k.log.Debug().Err(err).Msg("CURSOR2 refused, using CURSOR")
		k.noCursor2 = true
	}
	if err := k.dev.SetCursor(k.crtc, bo.Handles[0], bo.Width, bo.Height); err != nil {
		return fmt.Errorf("set cursor image: %w", err)
	}
	return nil
}
