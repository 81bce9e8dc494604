// Command drm-gldraw-atomic animates rotating triangles drawn with GLES
// on the primary plane, presented with atomic commits.
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
	"github.com/NeowayLabs/drmplanes/internal/setup"
	"github.com/NeowayLabs/drmplanes/present"
)

func main() {
	opts, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newRootCmd(opts).ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("drm-gldraw-atomic failed")
	}
}

func newRootCmd(opts *config.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "drm-gldraw-atomic",
		Short:         "Draw rotating triangles with GLES and present them with atomic commits",
		Example:       "drm-gldraw-atomic -p 31@1920x1080 -v -m 1920x1080 -f AR24 -c 3840x2160 -t 4 -w 1",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	opts.BindCommon(cmd)
	opts.BindTriangles(cmd)
	return cmd
}

func run(ctx context.Context, opts *config.Options) error {
	// the triangles are drawn by the GPU
	opts.Backend = string(config.BackendGBM)
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
	plane, err := d.TriangleLayer(s.Primary, d.CrtcRect(), s.Triangles, s.Finish)
	if err != nil {
		return err
	}

	waiter, err := present.NewEpollWaiter(d.Card, logger)
	if err != nil {
		return err
	}
	defer waiter.Close()

	loop := &present.TriangleLoop{
		Pipeline:  pipe,
		Registrar: d.Registrar,
		Waiter:    waiter,
		Plane:     plane,
		Frames:    s.Frames,
		Log:       logger,
	}
	logger.Info().Int("triangles", s.Triangles).Bool("finish", s.Finish).Msg("Ctrl+C to quit")
	return loop.Run(ctx)
}
