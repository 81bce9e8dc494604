// Command drmplanes-atomic swaps two pictures between the primary and an
// overlay plane with one atomic commit per frame.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/NeowayLabs/drmplanes/atomic"
	"github.com/NeowayLabs/drmplanes/config"
	"github.com/NeowayLabs/drmplanes/display"
	"github.com/NeowayLabs/drmplanes/internal/setup"
	"github.com/NeowayLabs/drmplanes/present"
	"github.com/NeowayLabs/drmplanes/render/gles"
)

func main() {
	opts, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newRootCmd(opts).ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("drmplanes-atomic failed")
	}
}

func newRootCmd(opts *config.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "drmplanes-atomic",
		Short:         "Alternate the primary and overlay planes with atomic commits",
		Example:       "drmplanes-atomic -p 31@1920x1080 -o 38@512x2160 -v -d 100 -m 1920x1080 -f AR24 -c 3840x2160",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	opts.BindCommon(cmd)
	opts.BindOverlay(cmd)
	return cmd
}

func run(ctx context.Context, opts *config.Options) error {
	s, err := opts.Parse()
	if err != nil {
		return err
	}
	logger := config.SetupLogger(os.Stderr, s.Verbose)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d, err := setup.Open(s, true, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	pipe, err := atomic.NewPipeline(d.Card, d.Selection, logger)
	if err != nil {
		return err
	}

	primary, err := d.ImageLayer("primary", s.Primary, d.CrtcRect(), config.PrimaryImage, gles.Red)
	if err != nil {
		return err
	}
	overlay, err := d.ImageLayer("overlay", s.Overlay,
		display.Rect{Width: s.Overlay.Width, Height: s.Overlay.Height}, config.OverlayImage, gles.Blue)
	if err != nil {
		return err
	}

	waiter, err := present.NewEpollWaiter(d.Card, logger)
	if err != nil {
		return err
	}
	defer waiter.Close()

	loop := &present.AtomicLoop{
		Pipeline:  pipe,
		Registrar: d.Registrar,
		Waiter:    waiter,
		Primary:   primary,
		Overlay:   overlay,
		Schedule:  present.Schedule{Duration: s.Duration, PrimaryFirst: true},
		Frames:    s.Frames,
		Log:       logger,
	}
	logger.Info().Msg("Ctrl+C to quit")
	return loop.Run(ctx)
}
