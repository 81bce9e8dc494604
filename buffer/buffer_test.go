package buffer

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeowayLabs/drmplanes/mode"
)

type fakeNative struct {
	ring     []*Object
	busy     map[*Object]bool
	released []*Object
	closed   bool
}

func (f *fakeNative) LockFront() (*Object, error) {
	for _, bo := range f.ring {
		if !f.busy[bo] {
			f.busy[bo] = true
			return bo, nil
		}
	}
	return nil, ErrNoFreeBuffer
}

func (f *fakeNative) Release(bo *Object) error {
	f.busy[bo] = false
	f.released = append(f.released, bo)
	return nil
}

func (f *fakeNative) Close() error {
	f.closed = true
	return nil
}

type fakeAllocator struct {
	refuseLinear bool
	refuseAll    bool
	requests     [][]uint64
	native       *fakeNative
}

func (a *fakeAllocator) NewSurface(width, height, format uint32, modifiers []uint64) (NativeSurface, error) {
	a.requests = append(a.requests, modifiers)
	if a.refuseAll || (a.refuseLinear && len(modifiers) > 0) {
		return nil, errors.New("refused")
	}
	a.native = &fakeNative{busy: map[*Object]bool{}}
	for i := 0; i < 3; i++ {
		a.native.ring = append(a.native.ring, NewObject(Desc{
			Width: width, Height: height, Format: format,
			Handles: [4]uint32{uint32(i + 1)}, Strides: [4]uint32{width * 4},
		}, i, nil))
	}
	return a.native, nil
}

func newTestSurface(t *testing.T) (*Surface, *fakeAllocator) {
	t.Helper()
	alloc := &fakeAllocator{}
	s, err := NewSurface(alloc, "primary", 64, 32, mode.FormatXRGB8888, zerolog.Nop())
	require.NoError(t, err)
	return s, alloc
}

func TestNewSurfaceLinearFirst(t *testing.T) {
	_, alloc := newTestSurface(t)
	require.Len(t, alloc.requests, 1)
	assert.Equal(t, []uint64{mode.ModifierLinear}, alloc.requests[0])
}

func TestNewSurfaceFallback(t *testing.T) {
	alloc := &fakeAllocator{refuseLinear: true}
	s, err := NewSurface(alloc, "overlay", 64, 32, mode.FormatXRGB8888, zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, s)
	require.Len(t, alloc.requests, 2)
	assert.Nil(t, alloc.requests[1])

	_, err = NewSurface(&fakeAllocator{refuseAll: true}, "overlay", 64, 32,
		mode.FormatXRGB8888, zerolog.Nop())
	assert.ErrorIs(t, err, ErrAllocationFailed)
}

func TestSurfaceLifecycle(t *testing.T) {
	s, alloc := newTestSurface(t)

	a, err := s.LockFront()
	require.NoError(t, err)
	assert.Equal(t, Locked, a.State())

	prev, err := s.Scanout(a)
	require.NoError(t, err)
	assert.Nil(t, prev)
	assert.Equal(t, ScannedOut, a.State())
	assert.Same(t, a, s.Front())

	// the scanned out buffer cannot go back to the allocator
	assert.ErrorIs(t, s.Release(a), ErrBufferBusy)
	assert.Empty(t, alloc.native.released)

	b, err := s.LockFront()
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	prev, err = s.Scanout(b)
	require.NoError(t, err)
	assert.Same(t, a, prev)
	assert.Equal(t, ScannedOut, a.State(), "superseded buffer waits for release")

	require.NoError(t, s.Release(prev))
	assert.Equal(t, Free, a.State())
	assert.Equal(t, []*Object{a}, alloc.native.released)

	// releasing twice is harmless
	require.NoError(t, s.Release(prev))
	assert.Len(t, alloc.native.released, 1)
}

func TestSurfaceDropLockedBuffer(t *testing.T) {
	s, _ := newTestSurface(t)

	bo, err := s.LockFront()
	require.NoError(t, err)
	require.NoError(t, s.Release(bo))
	assert.Equal(t, Free, bo.State())

	_, err = s.Scanout(bo)
	assert.ErrorIs(t, err, ErrBufferBusy)
}

func TestSurfaceRetire(t *testing.T) {
	s, _ := newTestSurface(t)

	bo, err := s.LockFront()
	require.NoError(t, err)
	_, err = s.Scanout(bo)
	require.NoError(t, err)

	assert.Same(t, bo, s.Retire())
	assert.Nil(t, s.Front())
	require.NoError(t, s.Release(bo))
	assert.Nil(t, s.Retire())
}

func TestSurfaceExhausted(t *testing.T) {
	s, _ := newTestSurface(t)
	for i := 0; i < 3; i++ {
		_, err := s.LockFront()
		require.NoError(t, err)
	}
	_, err := s.LockFront()
	assert.ErrorIs(t, err, ErrNoFreeBuffer)

	assert.ErrorIs(t, s.Release(NewObject(Desc{}, nil, nil)), ErrUnknownBuffer)
}

type fakeFBDevice struct {
	added   []*mode.FB2
	removed []uint32
	fail    error
}

func (f *fakeFBDevice) AddFB2(fb *mode.FB2) (uint32, error) {
	if f.fail != nil {
		return 0, f.fail
	}
	f.added = append(f.added, fb)
	return uint32(100 + len(f.added)), nil
}

func (f *fakeFBDevice) RmFB(id uint32) error {
	f.removed = append(f.removed, id)
	return nil
}

func TestRegistrarIdempotent(t *testing.T) {
	dev := &fakeFBDevice{}
	r := NewRegistrar(dev, zerolog.Nop())
	bo := NewObject(Desc{
		Width: 512, Height: 2160, Format: mode.FormatARGB8888,
		Handles: [4]uint32{7}, Strides: [4]uint32{2048},
	}, nil, nil)

	fb1, err := r.GetOrCreate(bo)
	require.NoError(t, err)
	fb2, err := r.GetOrCreate(bo)
	require.NoError(t, err)

	assert.Same(t, fb1, fb2)
	assert.Equal(t, fb1.ID, fb2.ID)
	require.Len(t, dev.added, 1)
	assert.Equal(t, uint32(2048), dev.added[0].Pitches[0])
	assert.Zero(t, dev.added[0].Flags, "linear buffers use implicit modifiers")

	bo.Destroy()
	bo.Destroy()
	assert.Equal(t, []uint32{fb1.ID}, dev.removed)
}

func TestRegistrarExplicitModifier(t *testing.T) {
	dev := &fakeFBDevice{}
	r := NewRegistrar(dev, zerolog.Nop())
	const tiled = 0x0100000000000001
	bo := NewObject(Desc{
		Width: 64, Height: 64, Format: mode.FormatXRGB8888, Modifier: tiled,
		Handles: [4]uint32{3, 3}, Strides: [4]uint32{256, 64},
	}, nil, nil)

	_, err := r.GetOrCreate(bo)
	require.NoError(t, err)
	require.Len(t, dev.added, 1)
	assert.Equal(t, uint32(mode.FBModifiers), dev.added[0].Flags)
	assert.Equal(t, [4]uint64{tiled, tiled, 0, 0}, dev.added[0].Modifier)
}

func TestRegistrarFailure(t *testing.T) {
	dev := &fakeFBDevice{fail: errors.New("invalid argument")}
	r := NewRegistrar(dev, zerolog.Nop())
	bo := NewObject(Desc{Width: 1, Height: 1}, nil, nil)

	_, err := r.GetOrCreate(bo)
	assert.ErrorIs(t, err, ErrFramebufferRegistration)
	assert.ErrorIs(t, err, dev.fail)
	assert.Nil(t, bo.UserData())
}

func TestSurfaceCloseDestroysFramebuffers(t *testing.T) {
	s, alloc := newTestSurface(t)
	dev := &fakeFBDevice{}
	r := NewRegistrar(dev, zerolog.Nop())

	a, err := s.LockFront()
	require.NoError(t, err)
	_, err = r.GetOrCreate(a)
	require.NoError(t, err)
	b, err := s.LockFront()
	require.NoError(t, err)
	_, err = r.GetOrCreate(b)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.ElementsMatch(t, []uint32{101, 102}, dev.removed)
	assert.True(t, alloc.native.closed)
	assert.True(t, a.Destroyed())

	_, err = s.LockFront()
	assert.ErrorIs(t, err, ErrSurfaceClosed)
}
