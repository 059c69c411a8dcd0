package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/wii-build-monitor/internal/app"
	"github.com/JakeFAU/wii-build-monitor/internal/metrics"
)

func newBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Runs the build monitor and the Telegram admin panel",
		RunE:  runBotCommand,
	}
}

func runBotCommand(cmd *cobra.Command, _ []string) (err error) {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(ctx, rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer func() {
		err = multierr.Append(err, a.Close())
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if runErr := a.Bot.Run(gctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("run bot: %w", runErr)
		}
		return nil
	})
	if addr := rt.cfg.Metrics.Addr; addr != "" {
		srv := newMetricsServer(addr)
		g.Go(func() error {
			rt.logger.Info("metrics server listening", zap.String("addr", addr))
			if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", serveErr)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	rt.logger.Info("bot stopped")
	return nil
}

func newMetricsServer(addr string) *http.Server {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
