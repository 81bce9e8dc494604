package atomic

import (
	"errors"
	"fmt"

	"github.com/NeowayLabs/drmplanes/display"
	"github.com/NeowayLabs/drmplanes/mode"
)

var (
	ErrUnknownProperty   = errors.New("unknown property")
	ErrImmutableProperty = errors.New("immutable property")
	ErrRequestCommitted  = errors.New("request already committed")
	ErrModeSetFailed     = errors.New("mode set failed")
)

// Property names used by the requests.
const (
	PropFBID   = "FB_ID"
	PropCrtcID = "CRTC_ID"
	PropSrcX   = "SRC_X"
	PropSrcY   = "SRC_Y"
	PropSrcW   = "SRC_W"
	PropSrcH   = "SRC_H"
	PropCrtcX  = "CRTC_X"
	PropCrtcY  = "CRTC_Y"
	PropCrtcW  = "CRTC_W"
	PropCrtcH  = "CRTC_H"
	PropModeID = "MODE_ID"
	PropActive = "ACTIVE"
)

type entry struct {
	object uint32
	prop   uint32
	value  uint64
}

// BlobDestroyer frees property blobs.
type BlobDestroyer interface {
	DestroyPropertyBlob(id uint32) error
}

// Request accumulates property assignments for one commit. A request is
// committed at most once. It owns the blobs created for it until
// Release.
type Request struct {
	entries   []entry
	blobs     []uint32
	dev       BlobDestroyer
	committed bool
}

// NewRequest returns an empty request. dev frees the request blobs on
// Release and may be nil for requests without blobs.
func NewRequest(dev BlobDestroyer) *Request {
	return &Request{dev: dev}
}

// Len is the number of assignments added so far.
func (r *Request) Len() int { return len(r.entries) }

func (r *Request) Committed() bool { return r.committed }

// AddProperty assigns value to the property name of obj. An unknown or
// immutable property leaves the request untouched.
func (r *Request) AddProperty(obj *Object, name string, value uint64) error {
	return r.addAll(obj, []assignment{{name, value}})
}

func resolve(obj *Object, name string) (uint32, error) {
	p, ok := obj.lookup(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s has no %s", ErrUnknownProperty, obj, name)
	}
	if p.flags&mode.PropImmutable != 0 {
		return 0, fmt.Errorf("%w: %s %s", ErrImmutableProperty, obj, name)
	}
	return p.id, nil
}

type assignment struct {
	name  string
	value uint64
}

// addAll adds every assignment or none of them.
func (r *Request) addAll(obj *Object, list []assignment) error {
	if r.committed {
		return ErrRequestCommitted
	}
	resolved := make([]entry, 0, len(list))
	for _, a := range list {
		id, err := resolve(obj, a.name)
		if err != nil {
			return err
		}
		resolved = append(resolved, entry{object: obj.ID, prop: id, value: a.value})
	}
	r.entries = append(r.entries, resolved...)
	return nil
}

// SetPlaneGeometry points plane at framebuffer fbID on crtcID, showing
// the src rectangle of the framebuffer at dst. Source coordinates are
// sent in 16.16 fixed point.
func (r *Request) SetPlaneGeometry(plane *Object, crtcID, fbID uint32, src, dst display.Rect) error {
	return r.addAll(plane, []assignment{
		{PropFBID, uint64(fbID)},
		{PropCrtcID, uint64(crtcID)},
		{PropSrcX, fixed(src.X)},
		{PropSrcY, fixed(src.Y)},
		{PropSrcW, uint64(src.Width) << 16},
		{PropSrcH, uint64(src.Height) << 16},
		{PropCrtcX, signed(dst.X)},
		{PropCrtcY, signed(dst.Y)},
		{PropCrtcW, uint64(dst.Width)},
		{PropCrtcH, uint64(dst.Height)},
	})
}

// DisablePlane detaches plane from its CRTC and framebuffer.
func (r *Request) DisablePlane(plane *Object) error {
	return r.SetPlaneGeometry(plane, 0, 0, display.Rect{}, display.Rect{})
}

// Release frees the blobs owned by the request. The display keeps its
// own reference to a blob in use, so releasing after the commit
// completed is safe.
func (r *Request) Release() error {
	var errs []error
	for _, id := range r.blobs {
		if r.dev == nil {
			break
		}
		if err := r.dev.DestroyPropertyBlob(id); err != nil {
			errs = append(errs, fmt.Errorf("destroy blob %d: %w", id, err))
		}
	}
	r.blobs = nil
	return errors.Join(errs...)
}

func fixed(v int32) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v) << 16
}

func signed(v int32) uint64 {
	return uint64(int64(v))
}
