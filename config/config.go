// Package config holds the command line and environment options of the
// drmplanes tools.
package config

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/NeowayLabs/drmplanes/display"
	"github.com/NeowayLabs/drmplanes/mode"
	"github.com/NeowayLabs/drmplanes/present"
)

const EnvPrefix = "DRMPLANES"

// Images looked up in the resource location.
const (
	PrimaryImage = "primary_1920x1080.png"
	OverlayImage = "secondary_512x2160.png"
)

type Backend string

const (
	BackendGBM  Backend = "gbm"
	BackendDumb Backend = "dumb"
)

// Options are the raw settings, read from DRMPLANES_* variables and
// then overridden by flags.
type Options struct {
	Device    string `envconfig:"DEVICE" default:"/dev/dri/card0"`
	Mode      string `envconfig:"MODE"`
	Primary   string `envconfig:"PRIMARY" default:"31@1920x1080"`
	Overlay   string `envconfig:"OVERLAY" default:"38@512x2160"`
	Crtc      string `envconfig:"CRTC" default:"3840x2160"`
	Format    string `envconfig:"FORMAT" default:"AR24"`
	Location  string `envconfig:"LOCATION" default:"/usr/share/drmplanes"`
	Verbose   bool   `envconfig:"VERBOSE"`
	Duration  int    `envconfig:"DURATION" default:"50"`
	FillBlack bool   `envconfig:"FILL_BLACK"`
	Finish    int    `envconfig:"FINISH"`
	Triangles int    `envconfig:"TRIANGLES" default:"1"`
	Backend   string `envconfig:"BACKEND" default:"gbm"`
	Frames    int    `envconfig:"FRAMES"`
}

func Load() (*Options, error) {
	var o Options
	if err := envconfig.Process(EnvPrefix, &o); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	return &o, nil
}

// BindCommon adds the flags shared by every presentation tool.
func (o *Options) BindCommon(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&o.Device, "device", "D", o.Device, "drm device path")
	f.StringVarP(&o.Mode, "mode", "m", o.Mode, "preferred mode <w>x<h> (default: preferred or highest resolution)")
	f.StringVarP(&o.Primary, "primary", "p", o.Primary, "primary plane <id>@<w>x<h>")
	f.StringVarP(&o.Crtc, "crtc", "c", o.Crtc, "CRTC area covered by the primary plane <w>x<h>")
	f.StringVarP(&o.Format, "format", "f", o.Format, "FOURCC pixel format")
	f.StringVarP(&o.Location, "location", "l", o.Location, "resource location")
	f.BoolVarP(&o.Verbose, "verbose", "v", o.Verbose, "verbose")
	f.IntVar(&o.Frames, "frames", o.Frames, "stop after this many frames, 0 runs until interrupted")
}

// BindOverlay adds the flags of the two plane demos.
func (o *Options) BindOverlay(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&o.Overlay, "overlay", "o", o.Overlay, "overlay plane <id>@<w>x<h>")
	f.IntVarP(&o.Duration, "duration", "d", o.Duration, "frames per primary/overlay cycle")
	f.StringVarP(&o.Backend, "backend", "b", o.Backend, "buffer backend: gbm or dumb")
}

// BindFillBlack adds the -w switch of the legacy demo.
func (o *Options) BindFillBlack(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&o.FillBlack, "fill-black", "w", o.FillBlack,
		"fill black workaround (instead of turning off primary plane)")
}

// BindTriangles adds the flags of the GL demo.
func (o *Options) BindTriangles(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVarP(&o.Triangles, "triangles", "t", o.Triangles, "number of triangles for rendering")
	f.IntVarP(&o.Finish, "wait", "w", o.Finish, "glFinish flag, 0: no glFinish, 1: add glFinish before eglSwapBuffers")
}

// Settings are validated Options.
type Settings struct {
	Device     string
	Mode       string
	Primary    display.PlaneSpec
	Overlay    display.PlaneSpec
	CrtcWidth  uint32
	CrtcHeight uint32
	Format     uint32
	Location   string
	Duration   int
	Off        present.PrimaryOff
	Finish     bool
	Triangles  int
	Backend    Backend
	Frames     int
	Verbose    bool
}

func (o *Options) Parse() (*Settings, error) {
	s := &Settings{
		Device:    o.Device,
		Mode:      o.Mode,
		Location:  o.Location,
		Duration:  o.Duration,
		Finish:    o.Finish != 0,
		Triangles: o.Triangles,
		Backend:   Backend(o.Backend),
		Frames:    o.Frames,
		Verbose:   o.Verbose,
	}
	if o.FillBlack {
		s.Off = present.FillBlack
	}

	var err error
	if o.Mode != "" {
		if _, _, err := display.ParseResolution(o.Mode); err != nil {
			return nil, fmt.Errorf("mode: %w", err)
		}
	}
	if s.Primary, err = display.ParsePlane(o.Primary); err != nil {
		return nil, fmt.Errorf("failed to parse primary plane: %w", err)
	}
	if o.Overlay != "" {
		if s.Overlay, err = display.ParsePlane(o.Overlay); err != nil {
			return nil, fmt.Errorf("failed to parse overlay plane: %w", err)
		}
	}
	if s.CrtcWidth, s.CrtcHeight, err = display.ParseResolution(o.Crtc); err != nil {
		return nil, fmt.Errorf("failed to parse crtc: %w", err)
	}
	if s.Format, err = mode.ParseFourcc(o.Format); err != nil {
		return nil, err
	}
	if s.Duration < 1 {
		return nil, fmt.Errorf("duration must be positive, got %d", s.Duration)
	}
	if s.Triangles < 1 {
		return nil, fmt.Errorf("triangles must be positive, got %d", s.Triangles)
	}
	if s.Frames < 0 {
		return nil, fmt.Errorf("frames must not be negative, got %d", s.Frames)
	}
	switch s.Backend {
	case BackendGBM, BackendDumb:
	default:
		return nil, fmt.Errorf("unknown backend %q", o.Backend)
	}
	return s, nil
}

// Resource is the path of a file in the resource location.
func (s *Settings) Resource(name string) string {
	return filepath.Join(s.Location, name)
}

// CursorOptions configure testcursor. CURSOR_AUTO keeps its historical
// name without prefix.
type CursorOptions struct {
	Device  string `envconfig:"DRMPLANES_DEVICE" default:"/dev/dri/card0"`
	Input   string `envconfig:"DRMPLANES_INPUT"`
	Type    string `envconfig:"DRMPLANES_CURSOR_TYPE" default:"arrow"`
	Size    string `envconfig:"DRMPLANES_CURSOR_SIZE" default:"medium"`
	Verbose bool   `envconfig:"DRMPLANES_VERBOSE"`
	Auto    bool   `envconfig:"CURSOR_AUTO"`
}

func LoadCursor() (*CursorOptions, error) {
	var o CursorOptions
	if err := envconfig.Process("", &o); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	return &o, nil
}

func (o *CursorOptions) Bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&o.Input, "input", "i", o.Input, "evdev device moving the cursor, eg.: /dev/input/event0")
	f.StringVar(&o.Type, "type", o.Type, "cursor type: arrow, cross or ring")
	f.StringVar(&o.Size, "size", o.Size, "cursor size: small, medium or large")
	f.BoolVarP(&o.Verbose, "verbose", "v", o.Verbose, "verbose")
	f.BoolVarP(&o.Auto, "auto", "a", o.Auto, "sweep the cursor over the screen once")
}

// SetupLogger installs a console logger on w as the global logger and
// returns it.
func SetupLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()
	return log.Logger
}
