package dumb

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeowayLabs/drmplanes/buffer"
	"github.com/NeowayLabs/drmplanes/mode"
)

type fakeDevice struct {
	next      uint32
	destroyed []uint32
	failAfter int
}

func (f *fakeDevice) Fd() uintptr { return 3 }

func (f *fakeDevice) CreateDumb(width, height uint16, bpp uint32) (*mode.FB, error) {
	if f.failAfter > 0 && int(f.next) >= f.failAfter {
		return nil, errors.New("out of memory")
	}
	f.next++
	pitch := uint32(width) * bpp / 8
	return &mode.FB{
		Width: uint32(width), Height: uint32(height), BPP: bpp,
		Handle: f.next, Pitch: pitch, Size: uint64(pitch) * uint64(height),
	}, nil
}

func (f *fakeDevice) MapDumb(handle uint32) (uint64, error) { return uint64(handle) << 12, nil }

func (f *fakeDevice) DestroyDumb(handle uint32) error {
	f.destroyed = append(f.destroyed, handle)
	return nil
}

func newTestAllocator(dev *fakeDevice) (*Allocator, *int) {
	a := New(dev, zerolog.Nop())
	unmapped := 0
	a.mmap = func(fd uintptr, offset, length int64) ([]byte, error) {
		return make([]byte, length), nil
	}
	a.unmap = func([]byte) error {
		unmapped++
		return nil
	}
	return a, &unmapped
}

func TestDumbSurfaceRing(t *testing.T) {
	dev := &fakeDevice{}
	a, unmapped := newTestAllocator(dev)
	a.Count = 2

	s, err := buffer.NewSurface(a, "primary", 16, 8, mode.FormatXRGB8888, zerolog.Nop())
	require.NoError(t, err)

	first, err := s.LockFront()
	require.NoError(t, err)
	assert.Equal(t, uint32(64), first.Strides[0])
	assert.Equal(t, uint64(mode.ModifierLinear), first.Modifier)

	m, err := first.Map()
	require.NoError(t, err)
	assert.Len(t, m.Data, 64*8)
	assert.Equal(t, uint32(64), m.Stride)
	require.NoError(t, m.Close())

	_, err = s.Scanout(first)
	require.NoError(t, err)

	second, err := s.LockFront()
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	_, err = s.LockFront()
	assert.ErrorIs(t, err, buffer.ErrNoFreeBuffer)

	prev, err := s.Scanout(second)
	require.NoError(t, err)
	require.NoError(t, s.Release(prev))

	third, err := s.LockFront()
	require.NoError(t, err)
	assert.Same(t, first, third)

	require.NoError(t, s.Close())
	assert.ElementsMatch(t, []uint32{1, 2}, dev.destroyed)
	assert.Equal(t, 2, *unmapped)
}

func TestDumbRefusesTiledModifiers(t *testing.T) {
	a, _ := newTestAllocator(&fakeDevice{})

	_, err := a.NewSurface(16, 16, mode.FormatXRGB8888, []uint64{0x0100000000000001})
	assert.ErrorIs(t, err, ErrUnsupportedModifier)

	_, err = a.NewSurface(16, 16, mode.Fourcc('N', 'V', '1', '2'), nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDumbPartialAllocationCleanup(t *testing.T) {
	dev := &fakeDevice{failAfter: 2}
	a, _ := newTestAllocator(dev)

	_, err := buffer.NewSurface(a, "overlay", 16, 16, mode.FormatXRGB8888, zerolog.Nop())
	assert.ErrorIs(t, err, buffer.ErrAllocationFailed)
	assert.ElementsMatch(t, []uint32{1, 2}, dev.destroyed)
}
