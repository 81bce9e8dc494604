package display

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidFormat = errors.New("invalid format")

// Rect is a plane rectangle in pixels.
type Rect struct {
	X, Y          int32
	Width, Height uint32
}

// PlaneSpec is a parsed "<id>@<width>x<height>" string.
type PlaneSpec struct {
	ID            uint32
	Width, Height uint32
}

func (p PlaneSpec) String() string {
	return fmt.Sprintf("%d@%dx%d", p.ID, p.Width, p.Height)
}

// ParseResolution parses "<width>x<height>". Only digits and a single
// 'x' are accepted.
func ParseResolution(s string) (width, height uint32, err error) {
	w, h, ok := strings.Cut(s, "x")
	if !ok {
		return 0, 0, fmt.Errorf("%w: resolution %q lacks 'x'", ErrInvalidFormat, s)
	}
	if width, err = parseNumber(w); err != nil {
		return 0, 0, fmt.Errorf("%w: resolution %q", err, s)
	}
	if height, err = parseNumber(h); err != nil {
		return 0, 0, fmt.Errorf("%w: resolution %q", err, s)
	}
	return width, height, nil
}

// ParsePlane parses "<id>@<width>x<height>", eg.: 31@1920x1080.
func ParsePlane(s string) (PlaneSpec, error) {
	id, res, ok := strings.Cut(s, "@")
	if !ok {
		return PlaneSpec{}, fmt.Errorf("%w: plane %q lacks '@'", ErrInvalidFormat, s)
	}
	n, err := parseNumber(id)
	if err != nil {
		return PlaneSpec{}, fmt.Errorf("%w: plane %q", err, s)
	}
	w, h, err := ParseResolution(res)
	if err != nil {
		return PlaneSpec{}, fmt.Errorf("plane %q: %w", s, err)
	}
	return PlaneSpec{ID: n, Width: w, Height: h}, nil
}

func parseNumber(s string) (uint32, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty number", ErrInvalidFormat)
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: unexpected %q", ErrInvalidFormat, c)
		}
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidFormat, err)
	}
	return uint32(v), nil
}
