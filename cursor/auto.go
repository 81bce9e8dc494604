package cursor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// AutoMove sweeps the cursor over a screen row by row.
type AutoMove struct {
	Step          int
	Interval      time.Duration
	Width, Height int
	Log           zerolog.Logger
}

func DefaultAutoMove(logger zerolog.Logger) AutoMove {
	return AutoMove{
		Step:     50,
		Interval: 100 * time.Millisecond,
		Width:    1920,
		Height:   1080,
		Log:      logger,
	}
}

// Run moves c by Step every Interval, wrapping to the next row at Width,
// and returns once a row reaches Height. Visibility is asserted again
// before every move.
func (a AutoMove) Run(ctx context.Context, c Controller) error {
	step := max(a.Step, 1)
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	x, y := 0, 0
	for y < a.Height {
		a.Log.Debug().Int("x", x).Int("y", y).Msg("cursor")
		if err := c.SetVisibility(true); err != nil {
			return err
		}
		if err := c.SetPosition(x, y); err != nil {
			return err
		}

		timer.Reset(a.Interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		x += step
		if x >= a.Width {
			x = 0
			y += step
		}
	}
	return nil
}
