package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dashing-go/dashing/cli/internal/ui"
	"github.com/dashing-go/dashing/query/fetch"
	"github.com/dashing-go/dashing/query/sqlgen"
)

func (a *app) newExplainCmd() *cobra.Command {
	var (
		tracked bool
		raw     bool
		withSQL bool
	)

	cmd := &cobra.Command{
		Use:     "explain <tree>",
		Short:   "Describe the merge plan compiled for a fetch tree",
		Long:    "explain compiles a fetch tree against the configured mapping and prints its shape, column layout, collection branches and cartesian row cost.",
		Example: "  dashing explain 'Blog{Author,Posts[]{Tags[]},Comments[]}'",
		Args:    treeArg,
		RunE: func(_ *cobra.Command, args []string) error {
			tree, err := fetch.ParseString(args[0])
			if err != nil {
				return err
			}
			engine, err := a.engine()
			if err != nil {
				return err
			}
			md, err := engine.Explain(tree, tracked)
			if err != nil {
				return err
			}
			if withSQL {
				stmt, err := a.generate(engine, tree, tracked, sqlgen.Options{})
				if err != nil {
					return err
				}
				md += fmt.Sprintf("\n## SQL (%s)\n\n```sql\n%s\n```\n", a.cfg.Provider, stmt.SQL)
			}
			if raw {
				_, err = ui.Out.Write([]byte(md))
				return err
			}
			return ui.PrintMarkdown(md)
		},
	}

	cmd.Flags().BoolVar(&tracked, "tracked", false, "Compile the tracked variant")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print markdown without rendering it")
	cmd.Flags().BoolVar(&withSQL, "sql", false, "Append the generated SELECT statement")
	return cmd
}
