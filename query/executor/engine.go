// Package executor dispatches query executions: it resolves the compiled
// materializer for a fetch shape, retrieves rows synchronously or
// asynchronously, merges them and switches change tracking on for the roots.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dashing-go/dashing/internal/debug"
	"github.com/dashing-go/dashing/metadata"
	"github.com/dashing-go/dashing/query"
	"github.com/dashing-go/dashing/query/cache"
	"github.com/dashing-go/dashing/query/fetch"
	"github.com/dashing-go/dashing/query/mapper"
	"github.com/dashing-go/dashing/query/materializer"
	"github.com/dashing-go/dashing/tracking"
)

// Option configures an Engine.
type Option func(*Engine)

// WithAsyncMultiCollection controls whether ExecuteAsync accepts trees with
// more than one collection branch. It is on by default; when off such calls
// fail with an UnsupportedShapeError.
func WithAsyncMultiCollection(enabled bool) Option {
	return func(e *Engine) {
		e.asyncMulti = enabled
	}
}

// WithCache makes the engine use c for compiled materializers.
func WithCache(c *cache.Cache[*materializer.Materializer]) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// configured is the state injected by UseConfiguration.
type configured struct {
	cfg     *metadata.Configuration
	factory *mapper.Factory
}

// Engine materializes query results. An Engine must receive its entity
// configuration through UseConfiguration before first use; it is safe for
// concurrent use afterwards.
type Engine struct {
	state      atomic.Pointer[configured]
	cache      *cache.Cache[*materializer.Materializer]
	asyncMulti bool
}

// NewEngine creates an unconfigured engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{asyncMulti: true}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = cache.New[*materializer.Materializer]()
	}
	return e
}

// UseConfiguration injects the entity configuration. It may be called once.
func (e *Engine) UseConfiguration(cfg *metadata.Configuration) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}
	st := &configured{cfg: cfg, factory: mapper.NewFactory(cfg)}
	if !e.state.CompareAndSwap(nil, st) {
		return query.ErrAlreadyConfigured
	}
	debug.Debug("engine configured", "types", len(cfg.Types()))
	return nil
}

// Configuration returns the injected configuration.
func (e *Engine) Configuration() (*metadata.Configuration, error) {
	st, err := e.configured()
	if err != nil {
		return nil, err
	}
	return st.cfg, nil
}

func (e *Engine) configured() (*configured, error) {
	st := e.state.Load()
	if st == nil {
		return nil, query.ErrNotConfigured
	}
	return st, nil
}

// Materializer returns the compiled materializer for a fetch tree, building
// and caching it on first use.
func (e *Engine) Materializer(tree *fetch.Tree, tracked bool) (*materializer.Materializer, error) {
	st, err := e.configured()
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, fmt.Errorf("%w: no fetch tree", query.ErrBuild)
	}
	if !st.cfg.HasType(tree.Root) {
		return nil, fmt.Errorf("%w: %s", query.ErrUnknownType, tree.Root)
	}
	if err := tree.Err(); err != nil {
		return nil, &query.BuildError{Root: tree.Root, Signature: tree.Signature().String(), Cause: err}
	}
	// Keyed on the resolved tree so declared and inferred target types share
	// one entry.
	resolved, err := tree.Resolve(st.cfg)
	if err != nil {
		return nil, &query.BuildError{Root: tree.Root, Signature: tree.Signature().String(), Cause: err}
	}

	key := cache.Key{Root: tree.Root, Signature: resolved.Signature().String(), Tracked: tracked}
	return e.cache.GetOrBuild(key, func() (*materializer.Materializer, error) {
		start := time.Now()
		plan, err := st.factory.Build(tree, tracked)
		if err != nil {
			return nil, err
		}
		m := materializer.Compile(plan)
		debug.Debug("materializer built",
			"root", plan.Root,
			"signature", plan.Signature.HashHex(),
			"shape", plan.Shape.String(),
			"branches", len(plan.Branches),
			"tracked", tracked,
			"elapsed", time.Since(start))
		return m, nil
	})
}

// Materialize merges rows already retrieved for a fetch tree into ordered
// root entities, switching tracking on for the roots when tracked is set.
func (e *Engine) Materialize(tree *fetch.Tree, tracked bool, rows []query.RawRow) ([]any, error) {
	m, err := e.Materializer(tree, tracked)
	if err != nil {
		return nil, err
	}
	return assemble(m, rows)
}

// assemble runs the merge and, for tracked plans, activates tracking once the
// graph is complete.
func assemble(m *materializer.Materializer, rows []query.RawRow) ([]any, error) {
	out, err := m.Materialize(rows)
	if err != nil {
		return nil, err
	}
	if m.Plan().Tracked {
		n := tracking.EnableAll(out)
		debug.Debug("tracking enabled", "root", m.Plan().Root, "entities", n)
	}
	return out, nil
}

// prepare resolves the materializer for q and checks its column layout.
func (e *Engine) prepare(q *query.Query) (*materializer.Materializer, error) {
	if q == nil {
		return nil, errors.New("query is nil")
	}
	m, err := e.Materializer(q.Tree, q.Tracked)
	if err != nil {
		return nil, err
	}
	if q.Layout != nil && !q.Layout.Equal(m.Plan().Layout) {
		return nil, fmt.Errorf("%w: query has %s, %s expects %s",
			query.ErrLayoutMismatch, q.Layout, m.Plan().Signature, m.Plan().Layout)
	}
	return m, nil
}

// run retrieves the rows of q and assembles them. Errors from src are
// returned unchanged.
func run(ctx context.Context, src query.Source, q *query.Query, m *materializer.Materializer) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := src.Rows(ctx, q.SQL, q.Args)
	if err != nil {
		return nil, err
	}
	return assemble(m, rows)
}

// Execute runs q against src and returns its root entities in first-seen
// order. The call blocks while rows are retrieved; the merge then runs to
// completion.
func (e *Engine) Execute(ctx context.Context, src query.Source, q *query.Query) ([]any, error) {
	m, err := e.prepare(q)
	if err != nil {
		return nil, err
	}
	return run(ctx, src, q, m)
}

// ExecuteAsync starts q and returns at once. Configuration, build and shape
// errors are returned immediately; retrieval and merge errors are delivered
// through the Future.
func (e *Engine) ExecuteAsync(ctx context.Context, src query.Source, q *query.Query) (*Future, error) {
	m, err := e.prepare(q)
	if err != nil {
		return nil, err
	}
	plan := m.Plan()
	if len(plan.Branches) > 1 && !e.asyncMulti {
		return nil, &query.UnsupportedShapeError{Root: plan.Root, Collections: len(plan.Branches), Mode: query.Async}
	}

	f := newFuture()
	debug.Debug("async execution started", "root", plan.Root, "signature", plan.Signature.HashHex())
	go func() {
		f.complete(run(ctx, src, q, m))
	}()
	return f, nil
}

// ExecuteAll runs independent queries concurrently and returns their results
// in argument order. Every query is prepared before any is started; the
// first failure cancels the others and no results are returned.
func (e *Engine) ExecuteAll(ctx context.Context, src query.Source, queries ...*query.Query) ([][]any, error) {
	if _, err := e.configured(); err != nil {
		return nil, err
	}
	ms := make([]*materializer.Materializer, len(queries))
	for i, q := range queries {
		m, err := e.prepare(q)
		if err != nil {
			return nil, err
		}
		ms[i] = m
	}

	results := make([][]any, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			out, err := run(gctx, src, q, ms[i])
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Explain returns the markdown description of the plan compiled for tree.
func (e *Engine) Explain(tree *fetch.Tree, tracked bool) (string, error) {
	m, err := e.Materializer(tree, tracked)
	if err != nil {
		return "", err
	}
	return m.Plan().Explain(), nil
}
