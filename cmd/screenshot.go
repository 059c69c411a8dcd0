package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/wii-build-monitor/internal/render"
	"github.com/JakeFAU/wii-build-monitor/internal/settings"
)

// shooter is the render call the screenshot command needs.
type shooter interface {
	Screenshot(ctx context.Context, server, target string, vp render.Viewport) ([]byte, error)
}

func newScreenshotCmd() *cobra.Command {
	var (
		target string
		output string
	)
	cmd := &cobra.Command{
		Use:   "screenshot",
		Short: "Captures the status page through the render service and writes it to a file",
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			store, err := settings.Open(cmd.Context(), rt.cfg.Store)
			if err != nil {
				return fmt.Errorf("open settings store: %w", err)
			}
			defer func() {
				err = multierr.Append(err, store.Close())
			}()

			rc := render.NewClient(rt.logger.Named("render"))
			n, err := captureScreenshot(cmd.Context(), store, rc, target, output)
			if err != nil {
				return err
			}
			rt.logger.Info("screenshot written", zap.String("path", output), zap.Int("bytes", n))
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "url", "", "page to capture (defaults to the check_url setting)")
	cmd.Flags().StringVarP(&output, "output", "o", "screenshot.jpg", "file the JPEG is written to")
	return cmd
}

// captureScreenshot renders target, or the configured check URL when empty,
// with the stored viewport and writes the JPEG to path.
func captureScreenshot(ctx context.Context, store settings.Reader, sh shooter, target, path string) (int, error) {
	snap, err := settings.LoadSnapshot(ctx, store)
	if err != nil {
		return 0, err
	}
	if target == "" {
		target = snap.CheckURL
	}
	shot, err := sh.Screenshot(ctx, snap.RenderServer, target, snap.Viewport)
	if err != nil {
		return 0, fmt.Errorf("capture %s: %w", target, err)
	}
	if err := os.WriteFile(path, shot, 0o600); err != nil {
		return 0, fmt.Errorf("write screenshot: %w", err)
	}
	return len(shot), nil
}
