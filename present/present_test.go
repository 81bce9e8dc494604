package present

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeowayLabs/drmplanes/atomic"
	"github.com/NeowayLabs/drmplanes/buffer"
	"github.com/NeowayLabs/drmplanes/display"
	"github.com/NeowayLabs/drmplanes/mode"
)

func TestScheduleTransitions(t *testing.T) {
	s := Schedule{Duration: 50}

	for i := 1; i <= 25; i++ {
		assert.False(t, s.At(i).OverlayVisible, "frame %d", i)
	}
	assert.Equal(t, Step{Frame: 26, OverlayVisible: true, OverlayOn: true}, s.At(26))
	assert.Equal(t, Step{Frame: 27, OverlayVisible: true}, s.At(27))
	assert.Equal(t, Step{Frame: 49, OverlayVisible: true}, s.At(49))
	assert.Equal(t, Step{Frame: 50, PrimaryOn: true}, s.At(50))
	assert.Equal(t, Step{Frame: 76, OverlayVisible: true, OverlayOn: true}, s.At(76))

	assert.Equal(t, Step{Frame: 1}, s.At(1))
	s.PrimaryFirst = true
	assert.Equal(t, Step{Frame: 1, PrimaryOn: true}, s.At(1))
	assert.Equal(t, Step{Frame: 2}, s.At(2))
}

func TestScheduleNeverBothOn(t *testing.T) {
	for _, d := range []int{0, 1, 2, 3, 4, 7, 50} {
		s := Schedule{Duration: d, PrimaryFirst: true}
		for i := 1; i < 200; i++ {
			step := s.At(i)
			assert.False(t, step.OverlayOn && step.PrimaryOn, "duration %d frame %d", d, i)
			if step.OverlayOn {
				assert.True(t, step.OverlayVisible)
			}
		}
	}
}

type planeCall struct {
	plane, fb uint32
	x         int32
}

type fakeLegacyDevice struct {
	crtcFB   uint32
	planes   []planeCall
	flips    []uint32
	failFor  uint32
	failOnce bool
	shown    map[uint32]uint32
	flipErrs int
}

func (f *fakeLegacyDevice) SetCrtc(crtcid, bufferid, x, y uint32, connectors []uint32, info *mode.Info) error {
	f.crtcFB = bufferid
	return nil
}

func (f *fakeLegacyDevice) SetPlane(planeid, crtcid, bufferid, flags uint32, g mode.PlaneGeometry) error {
	if planeid == f.failFor && bufferid != 0 {
		if f.failOnce {
			f.failFor = 0
		}
		return errors.New("invalid argument")
	}
	f.planes = append(f.planes, planeCall{planeid, bufferid, g.CrtcX})
	f.shown[planeid] = bufferid
	return nil
}

func (f *fakeLegacyDevice) PageFlip(crtcid, bufferid, flags uint32, userData uint64) error {
	if f.flipErrs > 0 {
		f.flipErrs--
		return errors.New("busy")
	}
	f.flips = append(f.flips, bufferid)
	return nil
}

type legacyFixture struct {
	loop    *LegacyLoop
	dev     *fakeLegacyDevice
	fbs     *fakeFBDevice
	waiter  *fakeWaiter
	primary *fakeNative
	overlay *fakeNative
}

func newLegacyFixture(t *testing.T, frames int) *legacyFixture {
	primary, pn := newTestLayer(t, "primary", testPrimary, 1920, 1080, display.Rect{Width: 3840, Height: 2160})
	overlay, on := newTestLayer(t, "overlay", testOverlay, 512, 2160, display.Rect{Width: 512, Height: 2160})
	f := &legacyFixture{
		dev:     &fakeLegacyDevice{shown: map[uint32]uint32{}},
		fbs:     &fakeFBDevice{},
		waiter:  &fakeWaiter{},
		primary: pn,
		overlay: on,
	}
	f.loop = &LegacyLoop{
		Device:    f.dev,
		Registrar: buffer.NewRegistrar(f.fbs, zerolog.Nop()),
		Waiter:    f.waiter,
		Display:   testSelection(),
		Primary:   primary,
		Overlay:   overlay,
		Schedule:  Schedule{Duration: 4},
		Frames:    frames,
		Log:       zerolog.Nop(),
	}

	// a buffer must never go back while its plane shows it
	check := func(plane uint32) func(*buffer.Object) {
		return func(bo *buffer.Object) {
			assert.NotEqual(t, f.dev.shown[plane], fbOf(bo), "plane %d buffer released while shown", plane)
			if plane == testPrimary {
				assert.NotEqual(t, f.dev.flips[len(f.dev.flips)-1], fbOf(bo), "flip target released")
			}
		}
	}
	pn.onRelease = check(testPrimary)
	on.onRelease = check(testOverlay)
	return f
}

func TestLegacyLoopDisablePrimary(t *testing.T) {
	f := newLegacyFixture(t, 8)
	require.NoError(t, f.loop.Run(context.Background()))

	assert.Equal(t, uint32(101), f.dev.crtcFB)
	assert.Equal(t, []planeCall{
		{testPrimary, 101, 0},
		// frame 3: overlay on
		{testPrimary, 0, 0},
		{testOverlay, 102, 0},
		// frame 4: primary on
		{testPrimary, 103, 0},
		{testOverlay, 0, 0},
		// frame 7
		{testPrimary, 0, 0},
		{testOverlay, 102, 10},
		// frame 8
		{testPrimary, 101, 0},
		{testOverlay, 0, 0},
	}, f.dev.planes)
	assert.Equal(t, []uint32{101, 101, 101, 103, 103, 103, 103, 101}, f.dev.flips)
	assert.Equal(t, 8, f.waiter.waits)
	assert.Equal(t, 3, f.fbs.added, "framebuffers are reused")

	p := f.primary.ring
	o := f.overlay.ring
	assert.Equal(t, []*buffer.Object{p[0], p[1]}, f.primary.released)
	assert.Equal(t, []*buffer.Object{o[0], o[0]}, f.overlay.released)
}

func TestLegacyLoopFillBlack(t *testing.T) {
	f := newLegacyFixture(t, 4)
	f.loop.Off = FillBlack
	f.loop.Primary.Blank = f.loop.Primary.Content

	require.NoError(t, f.loop.Run(context.Background()))
	for _, c := range f.dev.planes {
		if c.plane == testPrimary {
			assert.NotZero(t, c.fb, "primary is never disabled")
		}
	}
	assert.Equal(t, []planeCall{
		{testPrimary, 101, 0},
		// frame 3: black frame on the primary, then the overlay
		{testPrimary, 102, 0},
		{testOverlay, 103, 0},
		// frame 4: the first primary buffer came back after frame 3
		{testPrimary, 101, 0},
		{testOverlay, 0, 0},
	}, f.dev.planes)
}

func TestLegacyLoopFillBlackNeedsBlank(t *testing.T) {
	f := newLegacyFixture(t, 4)
	f.loop.Off = FillBlack
	assert.Error(t, f.loop.Run(context.Background()))
}

func TestLegacyLoopSetPlaneFailure(t *testing.T) {
	f := newLegacyFixture(t, 4)
	f.dev.failFor = testOverlay

	require.NoError(t, f.loop.Run(context.Background()))
	o := f.overlay.ring
	assert.Equal(t, buffer.Free, o[0].State(), "dropped overlay buffer goes back")
	assert.Equal(t, []*buffer.Object{o[0]}, f.overlay.released)
	assert.Nil(t, f.loop.Overlay.Surface.Front())
}

func TestLegacyLoopStops(t *testing.T) {
	f := newLegacyFixture(t, 0)
	f.waiter.stopAt = 5
	require.NoError(t, f.loop.Run(context.Background()))
	assert.Len(t, f.dev.flips, 5)

	f = newLegacyFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, f.loop.Run(ctx))
	assert.Empty(t, f.dev.flips)

	f = newLegacyFixture(t, 0)
	f.waiter.err = errors.New("epoll broken")
	assert.ErrorIs(t, f.loop.Run(context.Background()), f.waiter.err)
}

func TestLegacyLoopFlipFailure(t *testing.T) {
	f := newLegacyFixture(t, 3)
	f.dev.flipErrs = 1
	require.NoError(t, f.loop.Run(context.Background()))
	assert.Len(t, f.dev.flips, 2)
	assert.Equal(t, 2, f.waiter.waits)
}

func TestLegacyLoopRetriesRejectedOverlay(t *testing.T) {
	f := newLegacyFixture(t, 10)
	f.loop.Schedule.Duration = 10
	f.dev.failFor = testOverlay
	f.dev.failOnce = true

	require.NoError(t, f.loop.Run(context.Background()))
	assert.Equal(t, []planeCall{
		{testPrimary, 101, 0},
		// frame 6: primary off, the overlay is rejected
		{testPrimary, 0, 0},
		// frames 7 to 9 show the overlay
		{testOverlay, 102, 10},
		{testOverlay, 102, 20},
		{testOverlay, 102, 30},
		// frame 10
		{testPrimary, 103, 0},
		{testOverlay, 0, 0},
	}, f.dev.planes)
	assert.Equal(t, 10, f.waiter.waits)
}

func TestLegacyLoopRejectedFlipRepeatsStep(t *testing.T) {
	f := newLegacyFixture(t, 5)
	f.dev.flipErrs = 1

	require.NoError(t, f.loop.Run(context.Background()))
	assert.Equal(t, []planeCall{
		{testPrimary, 101, 0},
		{testPrimary, 0, 0},
		{testOverlay, 102, 0},
		{testPrimary, 103, 0},
		{testOverlay, 0, 0},
	}, f.dev.planes)
	assert.Equal(t, []uint32{101, 101, 101, 103}, f.dev.flips)
	assert.Equal(t, 4, f.waiter.waits)
}

func newAtomicFixture(t *testing.T, frames int) (*AtomicLoop, *fakeKMS, *fakeWaiter, *fakeNative, *fakeNative) {
	t.Helper()
	kms := newFakeKMS()
	pipe, err := atomic.NewPipeline(kms, testSelection(), zerolog.Nop())
	require.NoError(t, err)
	primary, pn := newTestLayer(t, "primary", testPrimary, 1920, 1080, display.Rect{Width: 3840, Height: 2160})
	overlay, on := newTestLayer(t, "overlay", testOverlay, 512, 2160, display.Rect{Width: 512, Height: 2160})
	waiter := &fakeWaiter{}
	loop := &AtomicLoop{
		Pipeline:  pipe,
		Registrar: buffer.NewRegistrar(&fakeFBDevice{}, zerolog.Nop()),
		Waiter:    waiter,
		Primary:   primary,
		Overlay:   overlay,
		Schedule:  Schedule{Duration: 4, PrimaryFirst: true},
		Frames:    frames,
		Log:       zerolog.Nop(),
	}
	return loop, kms, waiter, pn, on
}

func TestAtomicLoop(t *testing.T) {
	loop, kms, waiter, pn, on := newAtomicFixture(t, 4)
	require.NoError(t, loop.Run(context.Background()))

	steady := uint32(atomic.SteadyState)
	assert.Equal(t, []uint32{uint32(atomic.FirstFrame), steady, steady, steady}, kms.flags)
	assert.Equal(t, 3, waiter.waits, "the blocking first commit has no event")
	assert.Equal(t, 1, kms.blobs)
	assert.Equal(t, 1, kms.destroyed)

	var primaryFB, overlayFB []int64
	for n := range kms.commits {
		primaryFB = append(primaryFB, kms.value(n, testPrimary, "FB_ID"))
		overlayFB = append(overlayFB, kms.value(n, testOverlay, "FB_ID"))
	}
	assert.Equal(t, []int64{101, 101, 0, 101}, primaryFB)
	assert.Equal(t, []int64{0, -1, 102, 0}, overlayFB)
	assert.Equal(t, int64(testCrtc), kms.value(0, testConnector, "CRTC_ID"))
	assert.Equal(t, int64(1), kms.value(0, testCrtc, "ACTIVE"))
	assert.Equal(t, int64(-1), kms.value(1, testCrtc, "MODE_ID"))
	assert.Equal(t, int64(1920<<16), kms.value(0, testPrimary, "SRC_W"))
	assert.Equal(t, int64(3840), kms.value(0, testPrimary, "CRTC_W"))

	// primary buffer came back once the overlay commit completed, then
	// was reused for frame 4
	assert.Equal(t, []*buffer.Object{pn.ring[0]}, pn.released)
	assert.Equal(t, []*buffer.Object{on.ring[0]}, on.released)
	assert.Same(t, pn.ring[0], loop.Primary.Surface.Front())
}

func TestAtomicLoopCommitFailure(t *testing.T) {
	loop, kms, waiter, pn, on := newAtomicFixture(t, 4)
	kms.failAt = 3
	kms.commitErr = errors.New("invalid argument")

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, 2, waiter.waits)

	assert.Equal(t, buffer.Free, on.ring[0].State(), "overlay frame dropped")
	assert.Equal(t, []*buffer.Object{on.ring[0]}, on.released)
	assert.Equal(t, int64(103), kms.value(3, testPrimary, "FB_ID"))
	assert.Equal(t, []*buffer.Object{pn.ring[0]}, pn.released)
}

func TestAtomicLoopRetriesRejectedTransition(t *testing.T) {
	loop, kms, waiter, _, on := newAtomicFixture(t, 10)
	loop.Schedule.Duration = 10
	// frame 6 turns the overlay on
	kms.failAt = 6
	kms.commitErr = errors.New("invalid argument")

	require.NoError(t, loop.Run(context.Background()))
	require.Len(t, kms.commits, 10, "every frame after the rejected one commits")
	assert.Equal(t, 8, waiter.waits)

	var primaryFB, overlayFB []int64
	for n := range kms.commits {
		primaryFB = append(primaryFB, kms.value(n, testPrimary, "FB_ID"))
		overlayFB = append(overlayFB, kms.value(n, testOverlay, "FB_ID"))
	}
	assert.Equal(t, []int64{101, 101, 101, 101, 101, -1, 0, -1, -1, 101}, primaryFB)
	assert.Equal(t, []int64{0, -1, -1, -1, -1, -1, 102, 102, 102, 0}, overlayFB)
	require.NotEmpty(t, on.released)
	assert.Same(t, on.ring[0], on.released[0], "rejected overlay buffer went back")
}

func TestAtomicLoopFirstFrameFatal(t *testing.T) {
	loop, kms, _, pn, _ := newAtomicFixture(t, 4)
	kms.failAt = 1
	kms.commitErr = errors.New("invalid argument")

	assert.ErrorIs(t, loop.Run(context.Background()), kms.commitErr)
	assert.Equal(t, buffer.Free, pn.ring[0].State())
	assert.Equal(t, 1, kms.destroyed, "mode blob freed")
}

func TestAtomicLoopUnknownPlane(t *testing.T) {
	loop, _, _, _, _ := newAtomicFixture(t, 4)
	loop.Overlay.PlaneID = 99
	assert.Error(t, loop.Run(context.Background()))
}

func TestTriangleLoop(t *testing.T) {
	kms := newFakeKMS()
	pipe, err := atomic.NewPipeline(kms, testSelection(), zerolog.Nop())
	require.NoError(t, err)
	layer, native := newTestLayer(t, "primary", testPrimary, 1920, 1080, display.Rect{Width: 3840, Height: 2160})
	prod := &preparingProducer{surfaceProducer{surface: layer.Surface}}
	layer.Content = prod
	waiter := &fakeWaiter{}

	loop := &TriangleLoop{
		Pipeline:  pipe,
		Registrar: buffer.NewRegistrar(&fakeFBDevice{}, zerolog.Nop()),
		Waiter:    waiter,
		Plane:     layer,
		Frames:    3,
		Log:       zerolog.Nop(),
	}
	require.NoError(t, loop.Run(context.Background()))

	steady := uint32(atomic.SteadyState)
	assert.Equal(t, []uint32{uint32(atomic.FirstFrame | atomic.FlagPageFlipEvent), steady, steady}, kms.flags)
	assert.Equal(t, 3, prod.prepared)
	assert.Equal(t, 2, waiter.waits)
	assert.Equal(t, 1, kms.blobs)
	assert.Equal(t, 1, kms.destroyed)

	// frame 3 reuses the first buffer, released after frame 2 flipped
	assert.Equal(t, []*buffer.Object{native.ring[0]}, native.released)
	assert.Equal(t, int64(101), kms.value(2, testPrimary, "FB_ID"))
	assert.Same(t, native.ring[0], layer.Surface.Front())
	assert.Equal(t, buffer.ScannedOut, native.ring[1].State(), "previous frame waits for the next flip")
}
