package cli

import (
	"github.com/spf13/cobra"

	"github.com/agentforge-io/agentforge/engine/builder"
)

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install [path]",
		Short: "Install the merged runtime dependencies of the agent project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			b, err := builder.NewFromProject(dir,
				builder.WithAppConfig(cfg),
				builder.WithLogger(log),
			)
			if err != nil {
				return err
			}
			return b.Install(cmd.Context())
		},
	}
}
