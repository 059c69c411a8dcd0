package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/wii-build-monitor/internal/app"
)

func newCheckCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Runs a single build check and exits",
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			a, err := app.NewApp(cmd.Context(), rt.cfg, rt.logger)
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}
			defer func() {
				err = multierr.Append(err, a.Close())
			}()

			outcome, err := a.Monitor.Check(cmd.Context(), force)
			if err != nil {
				return fmt.Errorf("check failed: %w", err)
			}
			if !outcome.OK() {
				return fmt.Errorf("check finished with outcome %s", outcome)
			}
			rt.logger.Info("check finished", zap.String("outcome", string(outcome)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "notify even when the timestamp did not change")
	return cmd
}
