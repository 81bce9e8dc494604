// Command testcursor shows the hardware cursor of a CRTC, optionally
// sweeps it over the screen (CURSOR_AUTO) and follows an input device.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/NeowayLabs/drmplanes/buffer/dumb"
	"github.com/NeowayLabs/drmplanes/config"
	"github.com/NeowayLabs/drmplanes/cursor"
	"github.com/NeowayLabs/drmplanes/input"
	"github.com/NeowayLabs/drmplanes/mode"
)

func main() {
	opts, err := config.LoadCursor()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newRootCmd(opts).ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("testcursor failed")
	}
}

func newRootCmd(opts *config.CursorOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "testcursor [drm device path] [crtc id]",
		Short:         "Show and move the hardware cursor",
		Example:       "CURSOR_AUTO=1 testcursor /dev/dri/card0",
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.Device = args[0]
			}
			var crtc uint64
			if len(args) > 1 {
				var err error
				if crtc, err = strconv.ParseUint(args[1], 10, 32); err != nil {
					return fmt.Errorf("crtc id %q: %w", args[1], err)
				}
			}
			return run(cmd.Context(), opts, uint32(crtc))
		},
	}
	opts.Bind(cmd)
	return cmd
}

func run(ctx context.Context, opts *config.CursorOptions, crtc uint32) error {
	logger := config.SetupLogger(os.Stderr, opts.Verbose)

	typ, err := cursor.ParseType(opts.Type)
	if err != nil {
		return err
	}
	size, err := cursor.ParseSize(opts.Size)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	card, err := mode.OpenCard(opts.Device)
	if err != nil {
		return fmt.Errorf("open %s: %w", opts.Device, err)
	}
	defer card.Close()

	if crtc == 0 {
		if crtc, err = cursor.FirstCrtc(card); err != nil {
			return err
		}
		logger.Info().Uint32("crtc", crtc).Str("device", opts.Device).Msg("using first crtc")
	} else {
		logger.Info().Uint32("crtc", crtc).Msg("using crtc from command line")
	}

	alloc := dumb.New(card, logger)
	alloc.Count = 2
	k := cursor.NewKMS(card, alloc, crtc, logger)
	defer k.Close()

	if err := k.SetVisibility(true); err != nil {
		return err
	}
	if err := k.SetShape(typ, size, cursor.Normal); err != nil {
		// some drivers refuse the first shape, moving still works
		logger.Warn().Err(err).Msg("set cursor shape")
	}

	if opts.Input != "" {
		if err := follow(ctx, opts.Input, k, typ, size, logger); err != nil {
			return err
		}
	}

	if opts.Auto {
		err := cursor.DefaultAutoMove(logger).Run(ctx, k)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}
	}

	logger.Info().Msg("Ctrl+C to quit")
	<-ctx.Done()
	return nil
}

// follow moves the cursor with the pointer events of an input device
// until ctx ends.
func follow(ctx context.Context, path string, k *cursor.KMS, typ cursor.Type, size cursor.Size, logger zerolog.Logger) error {
	dev, err := input.Open(path, false)
	if err != nil {
		return err
	}
	if name, err := input.Name(dev); err == nil {
		logger.Info().Str("input", path).Str("name", name).Msg("following input device")
	}

	auto := cursor.DefaultAutoMove(logger)
	d := input.NewDispatcher(handlers(k, typ, size, logger), auto.Width, auto.Height)

	go func() {
		defer dev.Close()
		if err := input.NewReader(dev, d, logger).Run(ctx); err != nil {
			logger.Error().Err(err).Msg("input reader stopped")
		}
	}()
	return nil
}

// handlers log the input events and let the pointer and the first touch
// point drive c. A button press shows the pressed shape until release.
func handlers(c cursor.Controller, typ cursor.Type, size cursor.Size, logger zerolog.Logger) input.Handlers {
	move := func(x, y int) {
		if err := c.SetPosition(x, y); err != nil {
			logger.Warn().Err(err).Int("x", x).Int("y", y).Msg("move cursor")
		}
	}
	return input.Handlers{
		Key: func(code uint16, state input.KeyState) {
			logger.Info().Uint16("key", code).Stringer("state", state).Msg("key event")
		},
		Pointer: func(p input.Pointer) {
			logger.Debug().Int("x", p.X).Int("y", p.Y).Uint16("button", p.Button).Stringer("state", p.State).Msg("pointer event")
			st := cursor.Normal
			switch p.State {
			case input.Pressed:
				st = cursor.Pressed
				fallthrough
			case input.Released:
				if err := c.SetShape(typ, size, st); err != nil {
					logger.Warn().Err(err).Stringer("state", st).Msg("set cursor shape")
				}
			}
			move(p.X, p.Y)
		},
		Touch: func(points []input.TouchPoint) {
			logger.Info().Int("contacts", len(points)).Msg("touch event")
			if len(points) > 0 {
				move(points[0].X, points[0].Y)
			}
		},
	}
}
