// Package setup opens the display pipeline shared by the drmplanes
// tools: device, connector/mode/CRTC selection, buffer backend and
// renderers.
package setup

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	drm "github.com/NeowayLabs/drmplanes"
	"github.com/NeowayLabs/drmplanes/buffer"
	"github.com/NeowayLabs/drmplanes/buffer/dumb"
	"github.com/NeowayLabs/drmplanes/buffer/gbm"
	"github.com/NeowayLabs/drmplanes/config"
	"github.com/NeowayLabs/drmplanes/display"
	"github.com/NeowayLabs/drmplanes/mode"
	"github.com/NeowayLabs/drmplanes/present"
	"github.com/NeowayLabs/drmplanes/render"
	"github.com/NeowayLabs/drmplanes/render/gles"
)

var ErrNeedsGBM = errors.New("GPU rendering needs the gbm backend")

// Display is an open device ready to feed planes.
type Display struct {
	Card      *mode.Card
	Selection *display.Selection
	Registrar *buffer.Registrar

	settings *config.Settings
	alloc    buffer.Allocator
	gbm      *gbm.Device
	gl       *gles.Context
	closers  []func() error
	log      zerolog.Logger
}

// Open opens the device of s and selects the display. Universal planes
// are always enabled, atomic mode setting on request.
func Open(s *config.Settings, atomic bool, logger zerolog.Logger) (*Display, error) {
	card, err := mode.OpenCard(s.Device)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Device, err)
	}
	d := &Display{Card: card, settings: s, log: logger}
	d.closers = append(d.closers, card.Close)
	ready := false
	defer func() {
		if !ready {
			d.Close()
		}
	}()

	// fails while another client is master, the mode set reports it then
	if err := card.SetMaster(); err != nil {
		logger.Warn().Err(err).Str("device", s.Device).Msg("could not become drm master")
	} else {
		d.closers = append(d.closers, card.DropMaster)
	}

	if err := card.SetClientCap(drm.ClientCapUniversalPlanes, 1); err != nil {
		return nil, fmt.Errorf("enable universal planes: %w", err)
	}
	if atomic {
		if err := card.SetClientCap(drm.ClientCapAtomic, 1); err != nil {
			return nil, fmt.Errorf("enable atomic mode setting: %w", err)
		}
	}

	if d.Selection, err = display.Discover(card, s.Mode, logger); err != nil {
		return nil, err
	}
	logger.Info().
		Uint32("connector", d.Selection.ConnectorID()).
		Uint32("crtc", d.Selection.CrtcID).
		Uint32("width", d.Selection.Width()).
		Uint32("height", d.Selection.Height()).
		Uint32("refresh", d.Selection.Mode.Vrefresh).
		Msg("display selected")

	d.Registrar = buffer.NewRegistrar(card, logger)

	switch s.Backend {
	case config.BackendDumb:
		d.alloc = dumb.New(card, logger)
	case config.BackendGBM:
		if d.gbm, err = gbm.Open(card.Fd(), logger); err != nil {
			return nil, err
		}
		d.closers = append(d.closers, d.gbm.Close)
		d.alloc = d.gbm

		if d.gl, err = gles.NewContext(d.gbm.Ptr(), s.Format, logger); err != nil {
			return nil, err
		}
		d.closers = append(d.closers, d.gl.Close)
	default:
		return nil, fmt.Errorf("unknown backend %q", s.Backend)
	}
	ready = true
	return d, nil
}

// CrtcRect is the CRTC area covered by the primary plane.
func (d *Display) CrtcRect() display.Rect {
	return display.Rect{Width: d.settings.CrtcWidth, Height: d.settings.CrtcHeight}
}

func (d *Display) surface(name string, spec display.PlaneSpec) (*buffer.Surface, error) {
	surf, err := buffer.NewSurface(d.alloc, name, spec.Width, spec.Height, d.settings.Format, d.log)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, surf.Close)
	return surf, nil
}

// ImageLayer is a plane showing a PNG from the resource location. With
// gbm the buffers are first cleared to bg by the GPU.
func (d *Display) ImageLayer(name string, spec display.PlaneSpec, dst display.Rect, file string, bg gles.ClearColor) (*present.Layer, error) {
	img, err := render.LoadPNG(d.settings.Resource(file))
	if err != nil {
		return nil, fmt.Errorf("%s image: %w", name, err)
	}
	surf, err := d.surface(name, spec)
	if err != nil {
		return nil, err
	}

	var src render.Source = surf
	if d.gl != nil {
		w, err := d.gl.NewWindow(surf, bg)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, w.Close)
		src = w
	}
	return &present.Layer{
		Name:    name,
		PlaneID: spec.ID,
		Surface: surf,
		Content: render.CPU{Source: src, Painter: img},
		Blank:   render.CPU{Source: src, Painter: render.Black},
		Src:     display.Rect{Width: spec.Width, Height: spec.Height},
		Dst:     dst,
	}, nil
}

// TriangleLayer is a plane animated by the GPU.
func (d *Display) TriangleLayer(spec display.PlaneSpec, dst display.Rect, count int, finish bool) (*present.Layer, error) {
	if d.gl == nil {
		return nil, ErrNeedsGBM
	}
	surf, err := d.surface("primary", spec)
	if err != nil {
		return nil, err
	}
	w, err := d.gl.NewWindow(surf, &gles.Triangles{Count: count})
	if err != nil {
		return nil, err
	}
	w.Finish = finish
	d.closers = append(d.closers, w.Close)
	return &present.Layer{
		Name:    "primary",
		PlaneID: spec.ID,
		Surface: surf,
		Content: w,
		Src:     display.Rect{Width: spec.Width, Height: spec.Height},
		Dst:     dst,
	}, nil
}

// Close releases everything in reverse order of creation.
func (d *Display) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	return errors.Join(errs...)
}
