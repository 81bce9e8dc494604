// Package buffer tracks scanout buffers from allocation to display and
// back, and registers them as kernel framebuffers.
package buffer

import (
	"errors"
	"fmt"
	"sync"
)

// State of a buffer object. A buffer is owned by exactly one party: the
// allocator (Free), the application filling it (Locked) or the display
// (ScannedOut).
type State int

const (
	Free State = iota
	Locked
	ScannedOut
)

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Locked:
		return "locked"
	case ScannedOut:
		return "scanned-out"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var ErrNotMappable = errors.New("buffer cannot be mapped")

// Desc is the memory layout of a buffer as needed by ADDFB2. Unused
// planes have a zero handle.
type Desc struct {
	Width, Height uint32
	Format        uint32
	Modifier      uint64

	Handles [4]uint32
	Strides [4]uint32
	Offsets [4]uint32
}

// Mapping is a CPU view of a buffer, valid until Close.
type Mapping struct {
	Data   []byte
	Stride uint32

	unmap func() error
}

func NewMapping(data []byte, stride uint32, unmap func() error) *Mapping {
	return &Mapping{Data: data, Stride: stride, unmap: unmap}
}

func (m *Mapping) Close() error {
	if m.unmap == nil {
		return nil
	}
	unmap := m.unmap
	m.unmap = nil
	m.Data = nil
	return unmap()
}

// Mapper gives CPU access to the buffers of a backend.
type Mapper interface {
	Map(bo *Object) (*Mapping, error)
}

// Object is a buffer allocated by a backend. Backends create one Object
// per native buffer and hand the same Object back on every lock.
type Object struct {
	Desc

	native any
	mapper Mapper

	mu       sync.Mutex
	state    State
	userData any
	destroy  func(any)
	gone     bool
}

// NewObject wraps a native buffer. mapper may be nil for buffers without
// CPU access.
func NewObject(desc Desc, native any, mapper Mapper) *Object {
	return &Object{Desc: desc, native: native, mapper: mapper}
}

// Native is the backend handle given to NewObject.
func (o *Object) Native() any { return o.native }

func (o *Object) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Object) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Map gives CPU access to the buffer content.
func (o *Object) Map() (*Mapping, error) {
	if o.mapper == nil {
		return nil, ErrNotMappable
	}
	return o.mapper.Map(o)
}

func (o *Object) UserData() any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.userData
}

// SetUserData attaches data to the buffer. destroy, when not nil, runs
// once with data when the buffer is destroyed or the data replaced.
func (o *Object) SetUserData(data any, destroy func(any)) {
	o.mu.Lock()
	old, oldDestroy := o.userData, o.destroy
	o.userData, o.destroy = data, destroy
	o.mu.Unlock()

	if oldDestroy != nil {
		oldDestroy(old)
	}
}

// Destroy runs the user data destructor. Further calls are no-ops.
func (o *Object) Destroy() {
	o.mu.Lock()
	if o.gone {
		o.mu.Unlock()
		return
	}
	o.gone = true
	data, destroy := o.userData, o.destroy
	o.userData, o.destroy = nil, nil
	o.mu.Unlock()

	if destroy != nil {
		destroy(data)
	}
}

// Destroyed reports whether Destroy already ran.
func (o *Object) Destroyed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gone
}
