// Package cursor drives the hardware cursor of a CRTC: shape images in
// dumb buffers, visibility and position through the legacy cursor ioctls.
package cursor

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/NeowayLabs/drmplanes/buffer"
	"github.com/NeowayLabs/drmplanes/mode"
	"github.com/NeowayLabs/drmplanes/render"
)

type Type int

const (
	Arrow Type = iota
	Cross
	Ring
)

func (t Type) String() string {
	switch t {
	case Arrow:
		return "arrow"
	case Cross:
		return "cross"
	case Ring:
		return "ring"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

type Size int

const (
	Small Size = iota
	Medium
	Large
)

// Pixels is the edge of the square image before clamping to the driver
// limits.
func (s Size) Pixels() uint32 {
	switch s {
	case Small:
		return 32
	case Large:
		return 128
	}
	return 64
}

func (s Size) String() string {
	switch s {
	case Small:
		return "small"
	case Medium:
		return "medium"
	case Large:
		return "large"
	}
	return fmt.Sprintf("size(%d)", int(s))
}

type State int

const (
	Normal State = iota
	Pressed
	Disabled
)

func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case Pressed:
		return "pressed"
	case Disabled:
		return "disabled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseType accepts the names printed by Type.String.
func ParseType(s string) (Type, error) {
	for _, t := range []Type{Arrow, Cross, Ring} {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown cursor type %q", s)
}

// ParseSize accepts the names printed by Size.String or their initial.
func ParseSize(s string) (Size, error) {
	for _, sz := range []Size{Small, Medium, Large} {
		name := sz.String()
		if strings.EqualFold(s, name) || strings.EqualFold(s, name[:1]) {
			return sz, nil
		}
	}
	return 0, fmt.Errorf("unknown cursor size %q", s)
}

// ARGB colors of the cursor images.
const (
	transparent = 0x00000000
	outline     = 0xff000000
)

func (s State) fill() uint32 {
	switch s {
	case Pressed:
		return 0xff3080ff
	case Disabled:
		return 0x80808080
	}
	return 0xffffffff
}

// Shape paints a cursor image into an ARGB8888 buffer.
type Shape struct {
	Type  Type
	State State
}

var _ render.Painter = Shape{}

// Hotspot is the pixel of a size x size image that points at the
// cursor position.
func (s Shape) Hotspot(size uint32) (int32, int32) {
	if s.Type == Arrow {
		return 0, 0
	}
	return int32(size / 2), int32(size / 2)
}

func (s Shape) Paint(m *buffer.Mapping, desc buffer.Desc) error {
	if desc.Format != mode.FormatARGB8888 || desc.Width != desc.Height {
		return fmt.Errorf("%w: cursor needs a square AR24 buffer, got %dx%d %s",
			render.ErrBufferFormatMismatch, desc.Width, desc.Height, mode.FourccString(desc.Format))
	}
	size := int(desc.Width)
	stride := int(m.Stride)
	if stride < size*4 || len(m.Data) < stride*(size-1)+size*4 {
		return fmt.Errorf("%w: stride %d for %d pixels", render.ErrBufferFormatMismatch, stride, size)
	}

	in := func(x, y int) bool {
		return x >= 0 && y >= 0 && x < size && y < size && s.inside(x, y, size)
	}
	fill := s.State.fill()
	for y := 0; y < size; y++ {
		row := m.Data[y*stride:]
		for x := 0; x < size; x++ {
			c := uint32(transparent)
			if in(x, y) {
				c = fill
				if !in(x-1, y) || !in(x+1, y) || !in(x, y-1) || !in(x, y+1) {
					c = outline
				}
			}
			binary.LittleEndian.PutUint32(row[x*4:], c)
		}
	}
	return nil
}

func (s Shape) inside(x, y, size int) bool {
	switch s.Type {
	case Cross:
		t := max(size/16, 1)
		return abs(x-size/2) < t || abs(y-size/2) < t
	case Ring:
		// doubled coordinates keep the center on a pixel corner
		dx, dy := 2*x+1-size, 2*y+1-size
		r2 := dx*dx + dy*dy
		outer, inner := size*9/10, size*7/10
		return r2 <= outer*outer && r2 >= inner*inner
	}
	return x <= y && x+y < size
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
