package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeowayLabs/drmplanes/config"
	"github.com/NeowayLabs/drmplanes/cursor"
	"github.com/NeowayLabs/drmplanes/input"
)

func TestRootArgs(t *testing.T) {
	cmd := newRootCmd(&config.CursorOptions{})
	assert.NoError(t, cmd.Args(cmd, []string{"/dev/dri/card1", "42"}))
	assert.Error(t, cmd.Args(cmd, []string{"/dev/dri/card1", "42", "extra"}))
}

func TestRootBadCrtc(t *testing.T) {
	opts := &config.CursorOptions{Type: "arrow", Size: "medium"}
	cmd := newRootCmd(opts)
	cmd.SetArgs([]string{"/dev/dri/card1", "first"})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `crtc id "first"`)
	assert.Equal(t, "/dev/dri/card1", opts.Device)
}

func TestRootFlags(t *testing.T) {
	opts := &config.CursorOptions{Type: "arrow", Size: "medium"}
	cmd := newRootCmd(opts)
	require.NoError(t, cmd.ParseFlags([]string{"-a", "--type", "ring", "--size", "large", "-i", "/dev/input/event3"}))
	assert.Equal(t, config.CursorOptions{Input: "/dev/input/event3", Type: "ring", Size: "large", Auto: true}, *opts)
}

type failingCursor struct {
	shapes []cursor.State
	moves  [][2]int
}

func (c *failingCursor) SetVisibility(bool) error { return errors.New("no crtc") }

func (c *failingCursor) SetShape(_ cursor.Type, _ cursor.Size, st cursor.State) error {
	c.shapes = append(c.shapes, st)
	return errors.New("no crtc")
}

func (c *failingCursor) SetPosition(x, y int) error {
	c.moves = append(c.moves, [2]int{x, y})
	return errors.New("no crtc")
}

func TestHandlersLogCursorErrors(t *testing.T) {
	var out bytes.Buffer
	c := &failingCursor{}
	h := handlers(c, cursor.Arrow, cursor.Medium, zerolog.New(&out).Level(zerolog.WarnLevel))

	h.Pointer(input.Pointer{X: 10, Y: 20, Button: input.BtnLeft, State: input.Pressed})
	h.Pointer(input.Pointer{X: 11, Y: 20, Button: input.BtnLeft, State: input.Released})
	h.Pointer(input.Pointer{X: 12, Y: 21, State: input.Moved})
	h.Touch([]input.TouchPoint{{X: 5, Y: 6}, {Slot: 1, X: 7, Y: 8}})
	h.Touch(nil)

	assert.Equal(t, []cursor.State{cursor.Pressed, cursor.Normal}, c.shapes)
	assert.Equal(t, [][2]int{{10, 20}, {11, 20}, {12, 21}, {5, 6}}, c.moves)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, 2, strings.Count(out.String(), `"message":"set cursor shape"`))
	assert.Equal(t, 4, strings.Count(out.String(), `"message":"move cursor"`))
}
