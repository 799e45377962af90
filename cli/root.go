// Package cli implements the agentforge command line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentforge-io/agentforge/pkg/config"
	"github.com/agentforge-io/agentforge/pkg/logger"
	"github.com/agentforge-io/agentforge/pkg/version"
)

// NewRootCmd builds the agentforge command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "agentforge",
		Short:         "Assemble agents from versioned component packages",
		Version:       version.Get(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newBuildCmd(),
		newAddCmd(),
		newInstallCmd(),
	)
	return cmd
}

// setup loads the application configuration and a logger honoring it.
func setup() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.LogLevel(cfg.Log.Level)
	logCfg.JSON = cfg.Log.JSON
	return cfg, logger.NewLogger(logCfg), nil
}
