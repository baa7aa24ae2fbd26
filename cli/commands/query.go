package commands

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/dashing-go/dashing/cli/internal/config"
	"github.com/dashing-go/dashing/cli/internal/ui"
	"github.com/dashing-go/dashing/cli/internal/watch"
	"github.com/dashing-go/dashing/internal/debug"
	"github.com/dashing-go/dashing/query"
	"github.com/dashing-go/dashing/query/fetch"
	"github.com/dashing-go/dashing/query/sqlgen"
	"github.com/dashing-go/dashing/runtime/client"
)

type queryOptions struct {
	sqlFile string
	limit   int
	offset  int
	tracked bool
	async   bool
	watch   bool
}

func (a *app) newQueryCmd() *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query <tree> [sql] [args...]",
		Short: "Run a query and print the materialized object graph",
		Long: `query runs SQL against the configured database and materializes the rows
into the fetch tree. Columns must follow the tree's layout: the root's mapped
columns first, then each fetched relation's, depth first. Without SQL the
statement is generated from the mapping's tables and foreign keys.`,
		Example: `  dashing query --limit 10 'Blog{Author,Posts[]}'
  dashing query 'Blog{Posts[]}' 'SELECT b.id, b.title, p.id, p.title FROM blogs b LEFT JOIN posts p ON p.blog_id = b.id WHERE b.id = ?' 7
  dashing query --sql-file blogs.sql --watch 'Blog{Posts[]}'`,
		Args: treeArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := fetch.ParseString(args[0])
			if err != nil {
				return err
			}
			var statement string
			params := args[1:]
			if opts.sqlFile == "" && len(params) > 0 {
				statement, params = params[0], params[1:]
			}
			run := func() error {
				sql := statement
				if opts.sqlFile != "" {
					data, err := afero.ReadFile(config.AppFs, opts.sqlFile)
					if err != nil {
						return err
					}
					sql = string(data)
				}
				return a.runQuery(cmd.Context(), tree, sql, params, opts)
			}

			if !opts.watch {
				return run()
			}
			files := []string{a.cfg.MappingPath}
			if opts.sqlFile != "" {
				files = append(files, opts.sqlFile)
			}
			w, err := watch.NewWatcher(func() error {
				err := run()
				if err != nil {
					ui.PrintError("%v", err)
				}
				ui.PrintTitle("watching", strings.Join(files, ", "))
				return nil
			}, files...)
			if err != nil {
				return err
			}
			return w.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&opts.sqlFile, "sql-file", "", "Read the SQL statement from a file")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Maximum number of root entities for generated SQL")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Root entities to skip for generated SQL")
	cmd.Flags().BoolVar(&opts.tracked, "tracked", false, "Enable change tracking on the root entities")
	cmd.Flags().BoolVar(&opts.async, "async", false, "Retrieve rows asynchronously")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Re-run when the mapping or SQL file changes")
	return cmd
}

func (a *app) runQuery(ctx context.Context, tree *fetch.Tree, sql string, params []string, opts *queryOptions) error {
	if a.cfg.DatabaseURL == "" {
		return errors.New("no database configured: set database_url in .dashing.yaml or DATABASE_URL")
	}
	engine, err := a.engine()
	if err != nil {
		return err
	}
	c, err := client.Open(a.cfg.Provider, a.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer c.Close()
	c.Use(client.LoggingMiddleware())

	args := make([]any, len(params))
	for i, p := range params {
		args[i] = p
	}
	if sql == "" {
		stmt, err := a.generate(engine, tree, opts.tracked, sqlgen.Options{Limit: opts.limit, Offset: opts.offset})
		if err != nil {
			return err
		}
		debug.Debug("generated statement", "sql", stmt.SQL)
		sql, args = stmt.SQL, stmt.Args
	}
	q := query.New(tree, sql, args...)
	if opts.tracked {
		q = q.WithTracking()
	}

	start := time.Now()
	var roots []any
	if opts.async {
		f, err := engine.ExecuteAsync(ctx, c, q)
		if err != nil {
			return err
		}
		roots, err = f.Await(ctx)
		if err != nil {
			return err
		}
	} else {
		roots, err = engine.Execute(ctx, c, q)
		if err != nil {
			return err
		}
	}

	if err := ui.PrintGraph(roots); err != nil {
		return err
	}
	ui.PrintSuccess("%d %s entities in %s", len(roots), tree.Root, time.Since(start).Round(time.Millisecond))
	return nil
}
