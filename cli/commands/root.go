// Package commands implements the dashing CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dashing-go/dashing/cli/internal/config"
	"github.com/dashing-go/dashing/cli/internal/version"
	"github.com/dashing-go/dashing/internal/debug"
)

// app is the state shared by the commands of one invocation.
type app struct {
	cfg   *config.Config
	debug bool
}

// NewRootCommand builds the dashing command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "dashing",
		Short:         "Inspect and run fetch-tree materializations",
		Long:          "dashing compiles fetch trees against an entity mapping, explains their merge plans and materializes query results into object graphs.",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			a.cfg = cfg
			debug.Init(a.debug || cfg.Debug)
			if cfg.File != "" {
				debug.Debug("config loaded", "file", cfg.File)
			}
			return version.CheckMinimum(version.Version, cfg.MinVersion)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newSignatureCmd())
	rootCmd.AddCommand(a.newExplainCmd())
	rootCmd.AddCommand(a.newQueryCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute runs the CLI with os.Args.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func treeArg(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%s needs a fetch tree, e.g. 'Blog{Author,Posts[]{Tags[]}}'", cmd.Name())
	}
	return nil
}
