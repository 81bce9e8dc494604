package present

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/NeowayLabs/drmplanes/buffer"
	"github.com/NeowayLabs/drmplanes/display"
	"github.com/NeowayLabs/drmplanes/mode"
)

const (
	testCrtc      = 3
	testConnector = 40
	testPrimary   = 31
	testOverlay   = 38
)

// fakeNative is a ring of buffers handed out in order.
type fakeNative struct {
	ring      []*buffer.Object
	busy      map[*buffer.Object]bool
	released  []*buffer.Object
	onRelease func(*buffer.Object)
}

func (f *fakeNative) LockFront() (*buffer.Object, error) {
	for _, bo := range f.ring {
		if !f.busy[bo] {
			f.busy[bo] = true
			return bo, nil
		}
	}
	return nil, buffer.ErrNoFreeBuffer
}

func (f *fakeNative) Release(bo *buffer.Object) error {
	if f.onRelease != nil {
		f.onRelease(bo)
	}
	f.busy[bo] = false
	f.released = append(f.released, bo)
	return nil
}

func (f *fakeNative) Close() error { return nil }

type fakeAllocator struct {
	native *fakeNative
}

func (a *fakeAllocator) NewSurface(width, height, format uint32, modifiers []uint64) (buffer.NativeSurface, error) {
	a.native = &fakeNative{busy: map[*buffer.Object]bool{}}
	for i := 0; i < 3; i++ {
		a.native.ring = append(a.native.ring, buffer.NewObject(buffer.Desc{
			Width: width, Height: height, Format: format,
			Handles: [4]uint32{uint32(i + 1)}, Strides: [4]uint32{width * 4},
		}, i, nil))
	}
	return a.native, nil
}

// surfaceProducer locks buffers without drawing.
type surfaceProducer struct {
	surface  *buffer.Surface
	prepared int
}

func (p *surfaceProducer) Produce() (*buffer.Object, error) { return p.surface.LockFront() }

type preparingProducer struct {
	surfaceProducer
}

func (p *preparingProducer) Prepare() error {
	p.prepared++
	return nil
}

func newTestLayer(t *testing.T, name string, plane uint32, w, h uint32, dst display.Rect) (*Layer, *fakeNative) {
	t.Helper()
	alloc := &fakeAllocator{}
	s, err := buffer.NewSurface(alloc, name, w, h, mode.FormatXRGB8888, zerolog.Nop())
	require.NoError(t, err)
	return &Layer{
		Name:    name,
		PlaneID: plane,
		Surface: s,
		Content: &surfaceProducer{surface: s},
		Src:     display.Rect{Width: w, Height: h},
		Dst:     dst,
	}, alloc.native
}

type fakeFBDevice struct {
	added int
}

func (f *fakeFBDevice) AddFB2(fb *mode.FB2) (uint32, error) {
	f.added++
	return uint32(100 + f.added), nil
}

func (f *fakeFBDevice) RmFB(id uint32) error { return nil }

func fbOf(bo *buffer.Object) uint32 {
	if fb, ok := bo.UserData().(*buffer.Framebuffer); ok {
		return fb.ID
	}
	return 0
}

type fakeWaiter struct {
	waits  int
	stopAt int
	err    error
}

func (w *fakeWaiter) WaitFlip(ctx context.Context) error {
	w.waits++
	if w.err != nil {
		return w.err
	}
	if w.stopAt > 0 && w.waits >= w.stopAt {
		return ErrInterrupted
	}
	return nil
}

func (w *fakeWaiter) Close() error { return nil }

func testSelection() *display.Selection {
	return &display.Selection{
		Connector: &mode.Connector{ID: testConnector},
		Mode:      mode.Info{Hdisplay: 3840, Vdisplay: 2160, Vrefresh: 60},
		CrtcID:    testCrtc,
	}
}

// fakeKMS implements the atomic commit device. Property ids are
// object*100 + index in the name list.
type fakeKMS struct {
	objects map[uint32][]string

	blobs     int
	destroyed int

	commits   []*mode.AtomicSet
	flags     []uint32
	failAt    int
	commitErr error
}

var testPlaneProps = []string{
	"type", "FB_ID", "CRTC_ID", "SRC_X", "SRC_Y", "SRC_W", "SRC_H",
	"CRTC_X", "CRTC_Y", "CRTC_W", "CRTC_H",
}

func newFakeKMS() *fakeKMS {
	return &fakeKMS{objects: map[uint32][]string{
		testConnector: {"CRTC_ID"},
		testCrtc:      {"ACTIVE", "MODE_ID"},
		testPrimary:   testPlaneProps,
		testOverlay:   testPlaneProps,
	}}
}

func (f *fakeKMS) ObjectProperties(id, typ uint32) (*mode.ObjectProperties, error) {
	names, ok := f.objects[id]
	if !ok {
		return nil, fmt.Errorf("object %d: %w", id, errors.New("not found"))
	}
	op := &mode.ObjectProperties{ObjectID: id, ObjectType: typ}
	for i := range names {
		op.Props = append(op.Props, id*100+uint32(i))
		op.Values = append(op.Values, 0)
	}
	return op, nil
}

func (f *fakeKMS) Property(id uint32) (*mode.Property, error) {
	return &mode.Property{ID: id, Name: f.objects[id/100][id%100]}, nil
}

func (f *fakeKMS) CreatePropertyBlob(data []byte) (uint32, error) {
	f.blobs++
	return uint32(900 + f.blobs), nil
}

func (f *fakeKMS) DestroyPropertyBlob(id uint32) error {
	f.destroyed++
	return nil
}

func (f *fakeKMS) Atomic(flags uint32, set *mode.AtomicSet, userData uint64) error {
	if f.failAt > 0 && len(f.flags)+1 == f.failAt {
		f.flags = append(f.flags, flags)
		f.commits = append(f.commits, nil)
		return f.commitErr
	}
	f.flags = append(f.flags, flags)
	f.commits = append(f.commits, set)
	return nil
}

// value returns the value given to the property name of obj in commit
// n, or -1 when the commit did not touch it.
func (f *fakeKMS) value(n int, obj uint32, name string) int64 {
	set := f.commits[n]
	if set == nil {
		return -1
	}
	idx := -1
	for i, p := range f.objects[obj] {
		if p == name {
			idx = i
		}
	}
	prop := obj*100 + uint32(idx)
	for i, id := range set.Props {
		if id == prop {
			return int64(set.Values[i])
		}
	}
	return -1
}
