package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/wii-build-monitor/internal/config"
	"github.com/JakeFAU/wii-build-monitor/internal/logging"
)

var (
	cfgFile string
	envFile string
)

type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// runtime carries the loaded configuration and logger to subcommands.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wiimonitor",
		Short: "Watches the NetBSD Wii build server and announces new builds on Telegram.",
		Long: `wiimonitor polls the NetBSD Wii build status page through a headless
render service, converts its "Generated on" timestamp, and posts a screenshot
to a Telegram chat whenever a new build shows up. Allow-listed admins manage
the bot from a Telegram keyboard.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
				return err
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey, &runtime{cfg: cfg, logger: logger}))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")

	cmd.AddCommand(newBotCmd())
	cmd.AddCommand(newRenderCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newScreenshotCmd())
	return cmd
}

// loadEnvFile reads path into the environment without overriding variables
// that are already set. A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
