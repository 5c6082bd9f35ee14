package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/applicant-courier/internal/control"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr      string
		noBrowser bool
	)
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the control surface (HTTP commands and a live state socket)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.SetServerAddr(addr)
			}
			return a.serve(cmd.Context(), !noBrowser)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	serveCmd.Flags().BoolVar(&noBrowser, "no-browser", false, "serve state commands only; RUN_AUTOMATION and CLOSE_MESSAGE_MODAL fail")
	return serveCmd
}

func (a *app) serve(ctx context.Context, withBrowser bool) error {
	logger := a.logger

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	g, gctx := errgroup.WithContext(ctx)

	var (
		runner control.Runner
		closer control.ModalCloser
	)
	if withBrowser {
		b, release, err := a.launch(gctx, a.cfg.Browser(), logger)
		if err != nil {
			return fmt.Errorf("failed to start browser: %w", err)
		}
		defer release()

		auto := assemble(gctx, a.cfg, b, st, logger)
		runner, closer = auto.engine, auto.composer

		// A run in flight is cancelled with the server and drained before the browser closes.
		g.Go(func() error {
			<-gctx.Done()
			auto.engine.Stop()
			auto.engine.Wait()
			return nil
		})
	}

	d := control.NewDispatcher(st, runner, closer, logger)
	srv := control.NewServer(a.cfg.Server(), d, st, logger)
	g.Go(func() error { return srv.Run(gctx) })

	logger.Info("Serving control surface.", zap.String("address", a.cfg.Server().Addr), zap.Bool("browser", withBrowser))
	return g.Wait()
}
