// Command drmplanes swaps two pictures between the primary and an
// overlay plane with the legacy SetPlane and PageFlip calls.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

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
		log.Fatal().Err(err).Msg("drmplanes failed")
	}
}

func newRootCmd(opts *config.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "drmplanes",
		Short:         "Alternate the primary and overlay planes with SetPlane and PageFlip",
		Example:       "drmplanes -p 31@1920x1080 -o 38@512x2160 -v -d 100 -m 1920x1080 -f AR24 -c 3840x2160",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	opts.BindCommon(cmd)
	opts.BindOverlay(cmd)
	opts.BindFillBlack(cmd)
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

	d, err := setup.Open(s, false, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	primary, err := d.ImageLayer("primary", s.Primary, d.CrtcRect(), config.PrimaryImage, gles.Red)
	if err != nil {
		return err
	}
	overlay, err := d.ImageLayer("overlay", s.Overlay,
		display.Rect{Width: s.Overlay.Width, Height: s.Overlay.Height}, config.OverlayImage, gles.Blue)
	if err != nil {
		return err
	}

	waiter, err := present.NewSelectWaiter(d.Card, int(os.Stdin.Fd()), logger)
	if err != nil {
		return err
	}
	defer waiter.Close()

	loop := &present.LegacyLoop{
		Device:    d.Card,
		Registrar: d.Registrar,
		Waiter:    waiter,
		Display:   d.Selection,
		Primary:   primary,
		Overlay:   overlay,
		Schedule:  present.Schedule{Duration: s.Duration},
		Off:       s.Off,
		Frames:    s.Frames,
		Log:       logger,
	}
	logger.Info().Stringer("primary_off", s.Off).Msg("press enter to quit")
	return loop.Run(ctx)
}
