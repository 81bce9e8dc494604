package buffer

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/NeowayLabs/drmplanes/mode"
)

var (
	ErrAllocationFailed = errors.New("buffer allocation failed")
	ErrNoFreeBuffer     = errors.New("no free buffer")
	ErrBufferBusy       = errors.New("buffer is busy")
	ErrUnknownBuffer    = errors.New("buffer does not belong to surface")
	ErrSurfaceClosed    = errors.New("surface closed")
)

// Allocator creates native surfaces. A non empty modifiers list asks for
// one of those layouts, nil lets the backend pick.
type Allocator interface {
	NewSurface(width, height, format uint32, modifiers []uint64) (NativeSurface, error)
}

// NativeSurface is a backend swap chain.
type NativeSurface interface {
	// LockFront returns the buffer that was last rendered.
	LockFront() (*Object, error)
	// Release gives a buffer back for rendering.
	Release(bo *Object) error
	Close() error
}

// Surface enforces the buffer life cycle on top of a native surface: a
// buffer goes Free -> Locked -> ScannedOut -> Free, and the buffer being
// scanned out cannot be released.
type Surface struct {
	Name          string
	Width, Height uint32
	Format        uint32

	native  NativeSurface
	objects map[*Object]struct{}
	front   *Object
	closed  bool
	log     zerolog.Logger
}

// NewSurface asks alloc for a linear surface and falls back to whatever
// layout the backend prefers.
func NewSurface(alloc Allocator, name string, width, height, format uint32, logger zerolog.Logger) (*Surface, error) {
	logger = logger.With().Str("surface", name).Logger()

	native, errLinear := alloc.NewSurface(width, height, format, []uint64{mode.ModifierLinear})
	if errLinear != nil {
		logger.Debug().Err(errLinear).Msg("linear allocation refused, retrying without modifiers")

		var err error
		native, err = alloc.NewSurface(width, height, format, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %dx%d %s: %w", ErrAllocationFailed,
				name, width, height, mode.FourccString(format), errors.Join(errLinear, err))
		}
	}

	logger.Debug().
		Uint32("width", width).
		Uint32("height", height).
		Str("format", mode.FourccString(format)).
		Msg("surface created")

	return &Surface{
		Name:    name,
		Width:   width,
		Height:  height,
		Format:  format,
		native:  native,
		objects: map[*Object]struct{}{},
		log:     logger,
	}, nil
}

// Native is the backend surface, eg.: to bind a rendering context.
func (s *Surface) Native() NativeSurface { return s.native }

// Front is the buffer the display currently reads, nil when none.
func (s *Surface) Front() *Object { return s.front }

// LockFront takes the next rendered buffer for display.
func (s *Surface) LockFront() (*Object, error) {
	if s.closed {
		return nil, ErrSurfaceClosed
	}
	bo, err := s.native.LockFront()
	if err != nil {
		return nil, fmt.Errorf("%s: lock front buffer: %w", s.Name, err)
	}
	if st := bo.State(); st != Free {
		return nil, fmt.Errorf("%w: %s locked a %s buffer", ErrBufferBusy, s.Name, st)
	}
	s.objects[bo] = struct{}{}
	bo.setState(Locked)
	s.log.Debug().Str("bo", fmt.Sprintf("%p", bo)).Msg("locked front buffer")
	return bo, nil
}

// Scanout records that bo was committed to the display. It returns the
// buffer it superseded, which stays unavailable until the caller knows
// the display stopped reading it and calls Release.
func (s *Surface) Scanout(bo *Object) (*Object, error) {
	if _, ok := s.objects[bo]; !ok {
		return nil, ErrUnknownBuffer
	}
	if bo == s.front {
		return nil, nil
	}
	if st := bo.State(); st != Locked {
		return nil, fmt.Errorf("%w: cannot scan out a %s buffer", ErrBufferBusy, st)
	}
	prev := s.front
	bo.setState(ScannedOut)
	s.front = bo
	return prev, nil
}

// Retire records that the plane fed by the surface was disabled. The
// former front buffer is returned for release once the commit completed.
func (s *Surface) Retire() *Object {
	prev := s.front
	s.front = nil
	return prev
}

// Release hands bo back to the allocator. Releasing the buffer the
// display currently reads fails with ErrBufferBusy.
func (s *Surface) Release(bo *Object) error {
	if bo == nil {
		return nil
	}
	if _, ok := s.objects[bo]; !ok {
		return ErrUnknownBuffer
	}
	if bo == s.front {
		return fmt.Errorf("%w: %s front buffer is scanned out", ErrBufferBusy, s.Name)
	}
	if bo.State() == Free {
		return nil
	}
	if err := s.native.Release(bo); err != nil {
		return fmt.Errorf("%s: release buffer: %w", s.Name, err)
	}
	bo.setState(Free)
	s.log.Debug().Str("bo", fmt.Sprintf("%p", bo)).Msg("released buffer")
	return nil
}

// Close destroys every buffer seen by the surface, running their user
// data destructors, then the native surface.
func (s *Surface) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	for bo := range s.objects {
		bo.Destroy()
	}
	s.objects = nil
	s.front = nil
	return s.native.Close()
}
