package cli

import (
	"fmt"
	"os"
	"path/filepath"

	cp "github.com/otiai10/copy"
	"github.com/spf13/cobra"

	"github.com/agentforge-io/agentforge/engine/component"
	"github.com/agentforge-io/agentforge/engine/core"
)

func newAddCmd() *cobra.Command {
	var registryRoot string
	var projectDir string
	cmd := &cobra.Command{
		Use:   "add <type> <author/name:version>",
		Short: "Vendor a component package into the agent project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := core.ParseComponentType(args[0])
			if err != nil {
				return err
			}
			id, err := core.ParsePublicId(args[1])
			if err != nil {
				return err
			}
			_, log, err := setup()
			if err != nil {
				return err
			}

			src := filepath.Join(registryRoot, id.Author, t.Plural(), id.Name)
			cfg, err := component.Load(t, src)
			if err != nil {
				return err
			}
			if cfg.PublicId().WithoutHash() != id.WithoutHash() {
				return fmt.Errorf("registry directory %s holds %s, requested %s", src, cfg.PublicId(), id)
			}
			if err := cfg.VerifyFingerprint(); err != nil {
				return err
			}

			dst := filepath.Join(projectDir, "vendor", id.Author, t.Plural(), id.Name)
			if _, err := os.Stat(dst); err == nil {
				return fmt.Errorf("%s %s is already vendored at %s", t, id, dst)
			}
			if err := cp.Copy(src, dst); err != nil {
				return fmt.Errorf("failed to vendor %s into %s: %w", id, dst, err)
			}
			log.Info("vendored component", "component", id.String(), "dir", dst)
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s %s.\n", t, id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&registryRoot, "registry", "r", "packages", "registry root holding component packages")
	cmd.Flags().StringVarP(&projectDir, "project", "p", ".", "agent project directory")
	return cmd
}
