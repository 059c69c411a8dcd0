package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/wii-build-monitor/internal/api"
	"github.com/JakeFAU/wii-build-monitor/internal/headless"
	"github.com/JakeFAU/wii-build-monitor/internal/id/uuid"
)

func newRenderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render",
		Short: "Runs the headless browser render service",
		RunE:  runRenderCommand,
	}
}

func runRenderCommand(cmd *cobra.Command, _ []string) (err error) {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	cfg := rt.cfg
	if err := cfg.ValidateRender(); err != nil {
		return err
	}
	logger := rt.logger.Named("render")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	browsers, err := headless.NewManager(headless.Config{
		MaxConcurrency: cfg.Render.MaxConcurrency,
		MaxPages:       cfg.Render.MaxPages,
		BrowserTTL:     cfg.Render.BrowserTTL,
		NavTimeout:     cfg.Render.NavTimeout,
		SettleDelay:    cfg.Render.SettleDelay,
		RPS:            cfg.Render.RPS,
		Burst:          cfg.Render.Burst,
		BlockResources: cfg.Render.BlockResources,
		UserAgent:      cfg.Render.UserAgent,
		ExecPath:       cfg.Render.ExecPath,
	}, logger.Named("browser"))
	if err != nil {
		return fmt.Errorf("init browser manager: %w", err)
	}
	defer func() {
		err = multierr.Append(err, browsers.Close())
	}()

	server := api.NewServer(browsers, uuid.New(), logger)
	httpServer := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("render service listening",
			zap.String("addr", httpServer.Addr),
			zap.Int("max_concurrency", cfg.Render.MaxConcurrency),
		)
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case serveErr := <-errCh:
		if serveErr != nil {
			return fmt.Errorf("http server: %w", serveErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("render service stopped")
	return nil
}
