// Package display finds a connected display, its mode and a CRTC to drive
// it.
package display

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/NeowayLabs/drmplanes/mode"
)

var (
	ErrNoDisplayConnected = errors.New("no connected display")
	ErrModeNotFound       = errors.New("mode not found")
	ErrNoCrtcAvailable    = errors.New("no crtc available")
)

// Device is the part of mode.Card used by discovery.
type Device interface {
	Resources() (*mode.Resources, error)
	Connector(id uint32) (*mode.Connector, error)
	Encoder(id uint32) (*mode.Encoder, error)
}

// Selection is the outcome of Discover. It stays valid while the device
// is open.
type Selection struct {
	Connector *mode.Connector
	Mode      mode.Info

	CrtcID    uint32
	CrtcIndex int
}

func (s *Selection) ConnectorID() uint32 { return s.Connector.ID }

// Width and Height of the selected mode.
func (s *Selection) Width() uint32  { return uint32(s.Mode.Hdisplay) }
func (s *Selection) Height() uint32 { return uint32(s.Mode.Vdisplay) }

// Discover picks the first connected connector, its mode and a CRTC.
// modeStr is an optional "<width>x<height>" override of the mode.
func Discover(dev Device, modeStr string, logger zerolog.Logger) (*Selection, error) {
	res, err := dev.Resources()
	if err != nil {
		return nil, fmt.Errorf("cannot retrieve resources: %w", err)
	}

	var conn *mode.Connector
	for _, id := range res.Connectors {
		c, err := dev.Connector(id)
		if err != nil {
			return nil, fmt.Errorf("cannot retrieve connector %d: %w", id, err)
		}
		if c.Connection == mode.Connected {
			conn = c
			break
		}
	}
	if conn == nil {
		return nil, ErrNoDisplayConnected
	}

	sel := &Selection{Connector: conn}
	m, ok := SelectMode(conn.Modes)
	if !ok {
		return nil, fmt.Errorf("%w: connector %d has no modes", ErrModeNotFound, conn.ID)
	}
	if modeStr != "" {
		w, h, err := ParseResolution(modeStr)
		if err != nil {
			return nil, err
		}
		m, ok = MatchMode(conn.Modes, w, h)
		if !ok {
			return nil, fmt.Errorf("%w: %dx%d on connector %d", ErrModeNotFound, w, h, conn.ID)
		}
		logger.Debug().Str("mode", modeStr).Msg("override matched mode")
	}
	sel.Mode = m

	sel.CrtcID, err = findCrtc(dev, res, conn)
	if err != nil {
		return nil, err
	}
	sel.CrtcIndex = -1
	for i, id := range res.Crtcs {
		if id == sel.CrtcID {
			sel.CrtcIndex = i
			break
		}
	}

	logger.Info().
		Uint32("connector", conn.ID).
		Str("mode", m.String()).
		Uint32("refresh", m.Vrefresh).
		Uint32("crtc", sel.CrtcID).
		Msg("display selected")
	return sel, nil
}

// SelectMode walks every mode. A preferred mode is taken when reached and
// so is any mode larger than every mode seen before it, whichever comes
// later wins.
func SelectMode(modes []mode.Info) (mode.Info, bool) {
	var (
		selected mode.Info
		found    bool
		maxArea  uint32
	)
	for _, m := range modes {
		if m.Preferred() {
			selected, found = m, true
		}
		area := uint32(m.Hdisplay) * uint32(m.Vdisplay)
		if area > maxArea {
			selected, found = m, true
			maxArea = area
		}
	}
	return selected, found
}

// MatchMode returns the first mode of exactly width x height.
func MatchMode(modes []mode.Info, width, height uint32) (mode.Info, bool) {
	for _, m := range modes {
		if uint32(m.Hdisplay) == width && uint32(m.Vdisplay) == height {
			return m, true
		}
	}
	return mode.Info{}, false
}

func findCrtc(dev Device, res *mode.Resources, conn *mode.Connector) (uint32, error) {
	// the encoder currently driving the connector keeps its CRTC
	for _, id := range res.Encoders {
		if id != conn.EncoderID {
			continue
		}
		enc, err := dev.Encoder(id)
		if err != nil {
			return 0, fmt.Errorf("cannot retrieve encoder %d: %w", id, err)
		}
		if enc.CrtcID != 0 {
			return enc.CrtcID, nil
		}
		break
	}

	for _, id := range conn.Encoders {
		enc, err := dev.Encoder(id)
		if err != nil {
			return 0, fmt.Errorf("cannot retrieve encoder %d: %w", id, err)
		}
		for i, crtc := range res.Crtcs {
			if enc.PossibleCrtcs&(1<<uint(i)) != 0 {
				return crtc, nil
			}
		}
	}

	return 0, fmt.Errorf("%w: connector %d", ErrNoCrtcAvailable, conn.ID)
}
