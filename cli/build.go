package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentforge-io/agentforge/engine/builder"
)

func newBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build [path]",
		Short: "Run the build entrypoints of the agent project",
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
			if err := b.BuildArtifacts(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Build completed!")
			return nil
		},
	}
}
