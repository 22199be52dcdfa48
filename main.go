// Command impose blends fluorescence channels and applies structure
// composites to them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"impose/internal/config"
	"impose/internal/logging"
	"impose/internal/version"
)

// cli carries the state shared by all subcommands.
type cli struct {
	configPath string
	logMode    string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "impose",
		Short:         "Blend fluorescence channels and extract structure data",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-mode") {
				cfg.Log.Mode = c.logMode
			}
			if err := logging.Init(cfg.Log.Mode); err != nil {
				return fmt.Errorf("failed to init logger: %w", err)
			}
			c.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&c.logMode, "log-mode", "debug", "log mode: debug or release")

	root.AddCommand(
		c.blendCmd(),
		c.extractCmd(),
		c.overlayCmd(),
		c.traceCmd(),
		c.roiCmd(),
		c.sessionCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	logging.Sync()
	if err != nil {
		logging.L().Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "impose:", err)
		os.Exit(1)
	}
}
