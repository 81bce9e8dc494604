package gles

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"

	"github.com/NeowayLabs/drmplanes/mode"
)

func TestLayoutFixed(t *testing.T) {
	assert.Empty(t, Layout(0))
	assert.Equal(t, []Placement{{0, 0, 0}}, Layout(1))
	assert.Equal(t, []Placement{{-0.5, 0, 0}, {0.5, 0, 1}}, Layout(2))
	assert.Equal(t, []Placement{{-0.5, -0.5, 0}, {0.5, -0.5, 1}, {-0.5, 0.5, 2}}, Layout(3))
}

func TestLayoutGrid(t *testing.T) {
	approx := cmpopts.EquateApprox(0, 1e-6)

	want := []Placement{
		{-0.5, -0.5, 0}, {0.5, -0.5, 1},
		{-0.5, 0.5, 2}, {0.5, 0.5, 3},
	}
	if diff := cmp.Diff(want, Layout(4), approx); diff != "" {
		t.Errorf("Layout(4) mismatch (-want +got):\n%s", diff)
	}

	// 5 triangles: 3 columns, 2 rows
	want = []Placement{
		{-0.5, -0.5, 0}, {0, -0.5, 1}, {0.5, -0.5, 2},
		{-0.5, 0.5, 3}, {0, 0.5, 4},
	}
	if diff := cmp.Diff(want, Layout(5), approx); diff != "" {
		t.Errorf("Layout(5) mismatch (-want +got):\n%s", diff)
	}

	got := Layout(10)
	assert.Len(t, got, 10)
	assert.InDelta(t, -0.5+1.0/3, got[9].X, 1e-6)
	assert.InDelta(t, 0.5, got[9].Y, 1e-6)
	assert.Equal(t, 9, got[9].Phase)
}

func TestRotation(t *testing.T) {
	m := Rotation(0, 0, 0)
	assert.Equal(t, [16]float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}, m)

	m = Rotation(90+360, 0.25, -0.5)
	assert.InDelta(t, 0, m[0], 1e-6)
	assert.InDelta(t, 1, m[2], 1e-6)
	assert.InDelta(t, -1, m[8], 1e-6)
	assert.InDelta(t, 0, m[10], 1e-6)
	assert.Equal(t, float32(0.25), m[12])
	assert.Equal(t, float32(-0.5), m[13])
	assert.Equal(t, float32(1), m[15])

	m = Rotation(30, 0, 0)
	assert.InDelta(t, math.Cos(math.Pi/6), m[0], 1e-6)
}

func TestMatchVisual(t *testing.T) {
	visuals := []uint32{mode.FormatRGB565, mode.FormatXRGB8888, mode.FormatARGB8888}

	i, ok := matchVisual(visuals, 0)
	assert.True(t, ok)
	assert.Equal(t, 0, i)

	i, ok = matchVisual(visuals, mode.FormatARGB8888)
	assert.True(t, ok)
	assert.Equal(t, 2, i)

	_, ok = matchVisual(visuals, mode.FormatABGR8888)
	assert.False(t, ok)

	_, ok = matchVisual(nil, 0)
	assert.False(t, ok)
}

func TestStageError(t *testing.T) {
	cause := errors.New("eglCreateContext failed")
	err := error(&StageError{Stage: StageCreateContext, Code: 0x3009, Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "gl create-context: eglCreateContext failed (egl error 0x3009)", err.Error())

	var se *StageError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, StageCreateContext, se.Stage)

	err = &StageError{Stage: StageCreateSurface, Err: ErrNotNativeWindow}
	assert.Equal(t, "gl create-surface: surface has no native window", err.Error())
}
