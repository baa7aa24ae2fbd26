package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dashing-go/dashing/cli/internal/ui"
	"github.com/dashing-go/dashing/cli/internal/version"
)

func newVersionCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the application version",
		Run: func(_ *cobra.Command, _ []string) {
			info := version.Get()
			if full {
				fmt.Fprintln(ui.Out, info.FullString())
				return
			}
			fmt.Fprintln(ui.Out, info.String())
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Include build date and commit")
	return cmd
}
