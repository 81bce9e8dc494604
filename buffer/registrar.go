package buffer

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/NeowayLabs/drmplanes/mode"
)

var ErrFramebufferRegistration = errors.New("framebuffer registration failed")

// FramebufferDevice registers and removes kernel framebuffers.
type FramebufferDevice interface {
	AddFB2(fb *mode.FB2) (uint32, error)
	RmFB(id uint32) error
}

// Framebuffer is the kernel framebuffer of a buffer object.
type Framebuffer struct {
	ID     uint32
	Object *Object
}

// Registrar creates one framebuffer per buffer object and caches it on the
// object. The framebuffer is removed when the object is destroyed.
type Registrar struct {
	dev FramebufferDevice
	log zerolog.Logger
}

func NewRegistrar(dev FramebufferDevice, logger zerolog.Logger) *Registrar {
	return &Registrar{dev: dev, log: logger}
}

func (r *Registrar) GetOrCreate(bo *Object) (*Framebuffer, error) {
	if fb, ok := bo.UserData().(*Framebuffer); ok {
		return fb, nil
	}

	req := &mode.FB2{
		Width:   bo.Width,
		Height:  bo.Height,
		Format:  bo.Format,
		Handles: bo.Handles,
		Pitches: bo.Strides,
		Offsets: bo.Offsets,
	}
	if bo.Modifier != mode.ModifierLinear && bo.Modifier != mode.ModifierInvalid {
		req.Flags = mode.FBModifiers
		for i, h := range bo.Handles {
			if h != 0 {
				req.Modifier[i] = bo.Modifier
			}
		}
	}

	id, err := r.dev.AddFB2(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %dx%d %s: %w", ErrFramebufferRegistration,
			bo.Width, bo.Height, mode.FourccString(bo.Format), err)
	}
	r.log.Debug().Uint32("fb", id).Uint32("width", bo.Width).Uint32("height", bo.Height).Msg("framebuffer added")

	fb := &Framebuffer{ID: id, Object: bo}
	bo.SetUserData(fb, r.destroy)
	return fb, nil
}

func (r *Registrar) destroy(data any) {
	fb, ok := data.(*Framebuffer)
	if !ok || fb.ID == 0 {
		return
	}
	if err := r.dev.RmFB(fb.ID); err != nil {
		r.log.Warn().Err(err).Uint32("fb", fb.ID).Msg("failed to remove framebuffer")
		return
	}
	r.log.Debug().Uint32("fb", fb.ID).Msg("framebuffer removed")
}
