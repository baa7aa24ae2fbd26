package commands

import (
	"github.com/dashing-go/dashing/cli/internal/config"
	"github.com/dashing-go/dashing/metadata"
	"github.com/dashing-go/dashing/query/executor"
	"github.com/dashing-go/dashing/query/fetch"
	"github.com/dashing-go/dashing/query/sqlgen"
)

// engine loads the mapping named by the configuration into a new engine. A
// fresh engine per call lets watch mode pick up mapping edits.
func (a *app) engine() (*executor.Engine, error) {
	mapping, err := metadata.LoadMappingFile(config.AppFs, a.cfg.MappingPath)
	if err != nil {
		return nil, err
	}
	e := executor.NewEngine(executor.WithAsyncMultiCollection(a.cfg.AsyncMultiCollection))
	if err := e.UseConfiguration(mapping); err != nil {
		return nil, err
	}
	return e, nil
}

// generate writes the SELECT for tree in the configured provider's dialect.
func (a *app) generate(engine *executor.Engine, tree *fetch.Tree, tracked bool, opts sqlgen.Options) (*sqlgen.Statement, error) {
	dialect, err := sqlgen.NewDialect(a.cfg.Provider)
	if err != nil {
		return nil, err
	}
	m, err := engine.Materializer(tree, tracked)
	if err != nil {
		return nil, err
	}
	return sqlgen.Select(m.Plan(), dialect, opts)
}
