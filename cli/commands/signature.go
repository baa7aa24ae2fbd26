package commands

import (
	"github.com/spf13/cobra"

	"github.com/dashing-go/dashing/cli/internal/ui"
	"github.com/dashing-go/dashing/query/fetch"
)

func newSignatureCmd() *cobra.Command {
	var normalize bool

	cmd := &cobra.Command{
		Use:   "signature <tree>",
		Short: "Print the canonical signature and hash of a fetch tree",
		Example: `  dashing signature 'Blog{Posts[]{Tags[]},Author}'
  dashing signature --normalize 'Blog{Posts[],Author}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			tree, err := fetch.ParseString(args[0])
			if err != nil {
				return err
			}
			if normalize {
				tree = tree.Normalize()
			}
			sig := tree.Signature()
			ui.PrintKeyValue("signature", sig.String())
			ui.PrintKeyValue("hash", sig.HashHex())
			ui.PrintKeyValue("branches", tree.Collections())
			return nil
		},
	}

	cmd.Flags().BoolVar(&normalize, "normalize", false, "Sort sibling fetches by navigation name first")
	return cmd
}
