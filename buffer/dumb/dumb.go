// Package dumb allocates scanout buffers as kernel dumb buffers. They are
// linear, CPU mapped and need no GPU driver support.
package dumb

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"launchpad.net/gommap"

	"github.com/NeowayLabs/drmplanes/buffer"
	"github.com/NeowayLabs/drmplanes/mode"
)

const DefaultCount = 3

var (
	ErrUnsupportedModifier = errors.New("dumb buffers are linear only")
	ErrUnsupportedFormat   = errors.New("unsupported dumb buffer format")
)

// Device is the part of mode.Card needed for dumb buffers.
type Device interface {
	Fd() uintptr
	CreateDumb(width, height uint16, bpp uint32) (*mode.FB, error)
	MapDumb(handle uint32) (uint64, error)
	DestroyDumb(handle uint32) error
}

type mapFunc func(fd uintptr, offset, length int64) ([]byte, error)

// Allocator creates surfaces of Count dumb buffers each.
type Allocator struct {
	Count int

	dev   Device
	log   zerolog.Logger
	mmap  mapFunc
	unmap func([]byte) error
}

func New(dev Device, logger zerolog.Logger) *Allocator {
	return &Allocator{
		Count: DefaultCount,
		dev:   dev,
		log:   logger,
		mmap: func(fd uintptr, offset, length int64) ([]byte, error) {
			return gommap.MapAt(0, fd, offset, length,
				gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED)
		},
		unmap: func(data []byte) error {
			return gommap.MMap(data).UnsafeUnmap()
		},
	}
}

type dumbBuffer struct {
	fb   *mode.FB
	data []byte
	busy bool
}

type surface struct {
	alloc *Allocator
	bufs  []*buffer.Object
	next  int
}

var _ buffer.Allocator = (*Allocator)(nil)

func (a *Allocator) NewSurface(width, height, format uint32, modifiers []uint64) (buffer.NativeSurface, error) {
	if len(modifiers) > 0 && !hasLinear(modifiers) {
		return nil, ErrUnsupportedModifier
	}
	bpp := mode.BitsPerPixel(format)
	if bpp == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mode.FourccString(format))
	}

	s := &surface{alloc: a}
	for i := 0; i < a.Count; i++ {
		bo, err := a.create(width, height, format, bpp)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.bufs = append(s.bufs, bo)
	}
	return s, nil
}

func (a *Allocator) create(width, height, format, bpp uint32) (*buffer.Object, error) {
	fb, err := a.dev.CreateDumb(uint16(width), uint16(height), bpp)
	if err != nil {
		return nil, fmt.Errorf("create dumb buffer %dx%d: %w", width, height, err)
	}
	offset, err := a.dev.MapDumb(fb.Handle)
	if err != nil {
		a.dev.DestroyDumb(fb.Handle)
		return nil, fmt.Errorf("prepare dumb buffer mapping: %w", err)
	}
	data, err := a.mmap(a.dev.Fd(), int64(offset), int64(fb.Size))
	if err != nil {
		a.dev.DestroyDumb(fb.Handle)
		return nil, fmt.Errorf("mmap dumb buffer: %w", err)
	}

	a.log.Debug().
		Uint32("handle", fb.Handle).
		Uint32("pitch", fb.Pitch).
		Str("size", humanize.Bytes(fb.Size)).
		Msg("dumb buffer created")

	desc := buffer.Desc{
		Width:    width,
		Height:   height,
		Format:   format,
		Modifier: mode.ModifierLinear,
		Handles:  [4]uint32{fb.Handle},
		Strides:  [4]uint32{fb.Pitch},
	}
	return buffer.NewObject(desc, &dumbBuffer{fb: fb, data: data}, a), nil
}

// Map returns the persistent mapping of a dumb buffer.
func (a *Allocator) Map(bo *buffer.Object) (*buffer.Mapping, error) {
	db, ok := bo.Native().(*dumbBuffer)
	if !ok || db.data == nil {
		return nil, buffer.ErrNotMappable
	}
	return buffer.NewMapping(db.data, db.fb.Pitch, nil), nil
}

func (s *surface) LockFront() (*buffer.Object, error) {
	for i := range s.bufs {
		bo := s.bufs[(s.next+i)%len(s.bufs)]
		db := bo.Native().(*dumbBuffer)
		if !db.busy {
			db.busy = true
			s.next = (s.next + i + 1) % len(s.bufs)
			return bo, nil
		}
	}
	return nil, buffer.ErrNoFreeBuffer
}

func (s *surface) Release(bo *buffer.Object) error {
	db, ok := bo.Native().(*dumbBuffer)
	if !ok {
		return buffer.ErrUnknownBuffer
	}
	db.busy = false
	return nil
}

func (s *surface) Close() error {
	var errs []error
	for _, bo := range s.bufs {
		db := bo.Native().(*dumbBuffer)
		if db.data != nil {
			errs = append(errs, s.alloc.unmap(db.data))
			db.data = nil
		}
		errs = append(errs, s.alloc.dev.DestroyDumb(db.fb.Handle))
	}
	s.bufs = nil
	return errors.Join(errs...)
}

func hasLinear(modifiers []uint64) bool {
	for _, m := range modifiers {
		if m == mode.ModifierLinear {
			return true
		}
	}
	return false
}
