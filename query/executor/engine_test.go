package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dashing-go/dashing/internal/blogtest"
	"github.com/dashing-go/dashing/metadata"
	"github.com/dashing-go/dashing/query"
	"github.com/dashing-go/dashing/query/cache"
	"github.com/dashing-go/dashing/query/fetch"
	"github.com/dashing-go/dashing/query/materializer"
)

// fakeSource serves canned rows by SQL text.
type fakeSource struct {
	mu    sync.Mutex
	rows  map[string][]query.RawRow
	errs  map[string]error
	calls int
	gate  chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{rows: make(map[string][]query.RawRow), errs: make(map[string]error)}
}

func (s *fakeSource) Rows(ctx context.Context, sql string, _ []any) ([]query.RawRow, error) {
	s.mu.Lock()
	s.calls++
	gate := s.gate
	rows, err := s.rows[sql], s.errs[sql]
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *fakeSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

const (
	blogsWithPosts    = "SELECT blogs+posts"
	blogsWithComments = "SELECT blogs+posts+comments"
	countBlogs        = "SELECT COUNT(*) FROM blogs"
)

func blogSource() *fakeSource {
	src := newFakeSource()
	src.rows[blogsWithPosts] = []query.RawRow{
		{int64(1), "Go", int64(11), "P1"},
		{int64(1), "Go", int64(12), "P2"},
		{int64(2), "SQL", int64(21), "P3"},
		{int64(1), "Go", int64(11), "P1"},
	}
	src.rows[blogsWithComments] = []query.RawRow{
		{int64(1), "Go", int64(11), "P1", int64(31), "first"},
		{int64(1), "Go", int64(12), "P2", int64(31), "first"},
		{int64(1), "Go", int64(11), "P1", int64(32), "second"},
		{int64(1), "Go", int64(12), "P2", int64(32), "second"},
	}
	src.rows[countBlogs] = []query.RawRow{{int64(2)}}
	return src
}

func postsQuery() *query.Query {
	tree := fetch.New("Blog")
	tree.FetchMany("Posts")
	return query.New(tree, blogsWithPosts)
}

func cartesianQuery() *query.Query {
	return query.New(fetch.MustParse("Blog{Posts[],Comments[]}"), blogsWithComments)
}

func configuredEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e := NewEngine(opts...)
	require.NoError(t, e.UseConfiguration(blogtest.Configuration()))
	return e
}

func TestNotConfigured(t *testing.T) {
	e := NewEngine()
	src := blogSource()
	ctx := context.Background()

	calls := map[string]func() error{
		"Configuration": func() error { _, err := e.Configuration(); return err },
		"Materializer":  func() error { _, err := e.Materializer(fetch.New("Blog"), false); return err },
		"Materialize":   func() error { _, err := e.Materialize(fetch.New("Blog"), false, nil); return err },
		"Execute":       func() error { _, err := e.Execute(ctx, src, postsQuery()); return err },
		"ExecuteAsync":  func() error { _, err := e.ExecuteAsync(ctx, src, postsQuery()); return err },
		"ExecuteAll":    func() error { _, err := e.ExecuteAll(ctx, src); return err },
		"Get":           func() error { _, err := e.Get(ctx, src, postsQuery()); return err },
		"GetMany":       func() error { _, err := e.GetMany(ctx, src, postsQuery(), 1); return err },
		"Count":         func() error { _, err := e.Count(ctx, src, countBlogs); return err },
		"ExecutePaged":  func() error { _, err := e.ExecutePaged(ctx, src, postsQuery(), 0, 10, countBlogs); return err },
		"Explain":       func() error { _, err := e.Explain(fetch.New("Blog"), false); return err },
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				err := call()
				assert.ErrorIs(t, err, query.ErrNotConfigured)
				assert.True(t, query.IsNotConfigured(err))
			}
		})
	}
	assert.Zero(t, src.Calls(), "no rows are retrieved by an unconfigured engine")
}

func TestUseConfigurationOnce(t *testing.T) {
	e := NewEngine()
	assert.Error(t, e.UseConfiguration(nil))
	require.NoError(t, e.UseConfiguration(blogtest.Configuration()))
	assert.ErrorIs(t, e.UseConfiguration(blogtest.Configuration()), query.ErrAlreadyConfigured)

	cfg, err := e.Configuration()
	require.NoError(t, err)
	assert.True(t, cfg.HasType("Blog"))
}

func TestExecute(t *testing.T) {
	e := configuredEngine(t)

	got, err := Collect[*blogtest.Blog](e.Execute(context.Background(), blogSource(), postsQuery()))
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "Go", got[0].Title)
	assert.Len(t, got[0].Posts, 2)
	assert.Equal(t, "SQL", got[1].Title)
	assert.Len(t, got[1].Posts, 1)
}

func TestShapeEqualityHitsCache(t *testing.T) {
	c := cache.New[*materializer.Materializer]()
	e := configuredEngine(t, WithCache(c))

	a := fetch.New("Blog")
	a.FetchMany("Posts").ThenFetchMany("Tags")
	b := fetch.MustParse("Blog { Posts[] { Tags[] } }")

	ma, err := e.Materializer(a, false)
	require.NoError(t, err)
	mb, err := e.Materializer(b, false)
	require.NoError(t, err)
	assert.Same(t, ma, mb)

	tracked, err := e.Materializer(b, true)
	require.NoError(t, err)
	assert.NotSame(t, ma, tracked)

	stats := c.GetStats()
	assert.Equal(t, int64(2), stats.Builds)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestConcurrentFirstUseBuildsOnce(t *testing.T) {
	c := cache.New[*materializer.Materializer]()
	e := configuredEngine(t, WithCache(c))

	const callers = 32
	results := make([]*materializer.Materializer, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		i := i
		g.Go(func() error {
			m, err := e.Materializer(fetch.MustParse("Blog{Author,Posts[]{Tags[]},Comments[]}"), true)
			results[i] = m
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(1), c.GetStats().Builds)
	for _, m := range results {
		assert.Same(t, results[0], m)
	}
}

func TestTrackingStartsAfterAssembly(t *testing.T) {
	e := configuredEngine(t)

	got, err := Collect[*blogtest.Blog](e.Execute(context.Background(), blogSource(), postsQuery().WithTracking()))
	require.NoError(t, err)
	require.Len(t, got, 2)

	for _, b := range got {
		assert.True(t, b.IsTracking())
		assert.False(t, b.HasChanges(), "the initial load is not a pending change")
		for _, p := range b.Posts {
			assert.False(t, p.IsTracking(), "nested entities are not tracked")
		}
	}

	got[0].SetTitle("Go 2")
	assert.True(t, got[0].HasChanges())
	assert.False(t, got[1].HasChanges())

	untracked, err := Collect[*blogtest.Blog](e.Execute(context.Background(), blogSource(), postsQuery()))
	require.NoError(t, err)
	assert.False(t, untracked[0].IsTracking())
}

const recordMapping = `
entities:
  - type: Blog
    table: blogs
    primary_key: id
    columns: [id, title]
    relations:
      - navigation: Posts
        target: Post
        cardinality: many
        foreign_key: blog_id
  - type: Post
    table: posts
    primary_key: id
    columns: [id, title]
`

// Record entities record every Set once tracking is on, so tracking that
// started before assembly would leave the roots dirty.
func TestTrackingStartsAfterAssemblyForRecords(t *testing.T) {
	cfg, err := metadata.LoadMapping(strings.NewReader(recordMapping))
	require.NoError(t, err)
	e := NewEngine()
	require.NoError(t, e.UseConfiguration(cfg))

	got, err := Collect[*metadata.Record](e.Execute(context.Background(), blogSource(), postsQuery().WithTracking()))
	require.NoError(t, err)
	require.Len(t, got, 2)

	for _, b := range got {
		assert.True(t, b.IsTracking())
		assert.False(t, b.HasChanges(), "the initial load is not a pending change")
		assert.Empty(t, b.DirtyFields())
		for _, p := range b.Many("Posts") {
			assert.False(t, p.IsTracking(), "nested entities are not tracked")
		}
	}
	require.Len(t, got[0].Many("Posts"), 2)

	require.NoError(t, got[0].Set("title", "Go 2"))
	assert.Equal(t, []string{"title"}, got[0].DirtyFields())
	assert.False(t, got[1].HasChanges())
}

func TestTrackingUnsupportedRoot(t *testing.T) {
	e := configuredEngine(t)
	_, err := e.Materialize(fetch.New("Comment"), true, nil)
	assert.True(t, query.IsBuildError(err))
}

func TestMaterialize(t *testing.T) {
	e := configuredEngine(t)
	rows := []query.RawRow{
		{int64(1), "Go", int64(7), "Ann"},
		{int64(2), "SQL", nil, nil},
	}

	got, err := Collect[*blogtest.Blog](e.Materialize(fetch.New("Blog").Fetch("Author"), true, rows))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Ann", got[0].Author.Name)
	assert.False(t, got[0].Author.IsTracking())
	assert.True(t, got[1].IsTracking())
}

func TestUnknownTypeAndBuildErrors(t *testing.T) {
	e := configuredEngine(t)
	ctx := context.Background()
	src := blogSource()

	_, err := e.Execute(ctx, src, query.New(fetch.New("Ghost"), blogsWithPosts))
	assert.True(t, query.IsUnknownType(err))
	assert.False(t, query.IsBuildError(err))

	_, err = e.Execute(ctx, src, query.New(fetch.MustParse("Blog{Followers[]}"), blogsWithPosts))
	assert.True(t, query.IsBuildError(err))
	assert.ErrorIs(t, err, fetch.ErrUnknownNavigation)

	_, err = e.Execute(ctx, src, nil)
	assert.Error(t, err)

	assert.Zero(t, src.Calls())
}

func TestInvalidTreeFailsWithWarmCache(t *testing.T) {
	e := configuredEngine(t)
	src := blogSource()

	_, err := e.Execute(context.Background(), src, query.New(fetch.MustParse("Blog{Posts[]}"), blogsWithPosts))
	require.NoError(t, err)

	// The rejected navigation is left out of the tree, so its signature
	// matches the cached shape.
	broken := fetch.New("Blog").FetchMany("Posts").ThenFetch("bad name").Tree()
	require.Error(t, broken.Err())
	assert.Equal(t, "Blog{Posts[]}", broken.Signature().String())

	_, err = e.Execute(context.Background(), src, query.New(broken, blogsWithPosts))
	assert.True(t, query.IsBuildError(err))
	assert.ErrorIs(t, err, broken.Err())

	_, err = e.Materializer(broken, false)
	assert.True(t, query.IsBuildError(err))
	assert.Equal(t, 1, src.Calls())
}

func TestDeclaredTargetTypesShareCacheEntry(t *testing.T) {
	c := cache.New[*materializer.Materializer]()
	e := configuredEngine(t, WithCache(c))

	inferred, err := e.Materializer(fetch.New("Blog").FetchMany("Posts").Tree(), false)
	require.NoError(t, err)
	declared, err := e.Materializer(fetch.MustParse("Blog{Posts[]:Post}"), false)
	require.NoError(t, err)

	assert.Same(t, inferred, declared)
	assert.Equal(t, int64(1), c.GetStats().Builds)
	assert.Equal(t, 1, c.Len())

	_, err = e.Materializer(fetch.MustParse("Blog{Posts[]:User}"), false)
	assert.True(t, query.IsBuildError(err))
	assert.ErrorIs(t, err, fetch.ErrTypeMismatch)
	assert.Equal(t, 1, c.Len())
}

func TestLayoutMismatch(t *testing.T) {
	e := configuredEngine(t)
	q := postsQuery().WithLayout(&query.Layout{Spans: []query.Span{
		{Offset: 0, Width: 2},
		{Path: "Posts", Offset: 3, Width: 2},
	}})

	_, err := e.Execute(context.Background(), blogSource(), q)
	assert.ErrorIs(t, err, query.ErrLayoutMismatch)

	q.Layout = &query.Layout{Spans: []query.Span{
		{Offset: 0, Width: 2},
		{Path: "Posts", Offset: 2, Width: 2},
	}}
	_, err = e.Execute(context.Background(), blogSource(), q)
	assert.NoError(t, err)
}

func TestRowErrorsPassThroughUnchanged(t *testing.T) {
	e := configuredEngine(t)
	src := blogSource()
	driverErr := errors.New("connection reset by peer")
	src.errs[blogsWithPosts] = driverErr

	out, err := e.Execute(context.Background(), src, postsQuery())
	assert.Nil(t, out)
	assert.Same(t, driverErr, err)

	f, err := e.ExecuteAsync(context.Background(), src, postsQuery())
	require.NoError(t, err)
	out, err = f.Await(context.Background())
	assert.Nil(t, out)
	assert.Same(t, driverErr, err)
}

func TestMergeErrorsReturnNoPartialGraph(t *testing.T) {
	e := configuredEngine(t)
	src := blogSource()
	src.rows[blogsWithPosts] = append(src.rows[blogsWithPosts], query.RawRow{nil, "broken", nil, nil})

	out, err := e.Execute(context.Background(), src, postsQuery())
	assert.Nil(t, out)
	assert.ErrorIs(t, err, query.ErrMaterialize)
}

func TestCanceledBeforeRetrieval(t *testing.T) {
	e := configuredEngine(t)
	src := blogSource()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, src, postsQuery())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, src.Calls())
}

func TestExecuteAsync(t *testing.T) {
	e := configuredEngine(t)
	src := blogSource()
	src.gate = make(chan struct{})

	f, err := e.ExecuteAsync(context.Background(), src, cartesianQuery())
	require.NoError(t, err)

	_, _, done := f.Result()
	assert.False(t, done, "the call returns before rows arrive")

	close(src.gate)
	got, err := Collect[*blogtest.Blog](f.Await(context.Background()))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Posts, 2)
	assert.Len(t, got[0].Comments, 2)

	<-f.Done()
	_, _, done = f.Result()
	assert.True(t, done)
}

func TestExecuteAsyncAwaitGivesUp(t *testing.T) {
	e := configuredEngine(t)
	src := blogSource()
	src.gate = make(chan struct{})
	defer close(src.gate)

	f, err := e.ExecuteAsync(context.Background(), src, postsQuery())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteAsyncMultiCollectionDisabled(t *testing.T) {
	e := configuredEngine(t, WithAsyncMultiCollection(false))
	src := blogSource()

	f, err := e.ExecuteAsync(context.Background(), src, cartesianQuery())
	assert.Nil(t, f)
	require.True(t, query.IsUnsupportedShape(err))

	var use *query.UnsupportedShapeError
	require.True(t, errors.As(err, &use))
	assert.Equal(t, 2, use.Collections)
	assert.Equal(t, query.Async, use.Mode)
	assert.Zero(t, src.Calls(), "fails before retrieving rows")

	f, err = e.ExecuteAsync(context.Background(), src, postsQuery())
	require.NoError(t, err, "single collections stay supported")
	_, err = f.Await(context.Background())
	require.NoError(t, err)

	out, err := e.Execute(context.Background(), src, cartesianQuery())
	require.NoError(t, err, "synchronous execution is unaffected")
	assert.Len(t, out, 1)
}

func TestExecuteAll(t *testing.T) {
	e := configuredEngine(t)
	src := blogSource()

	results, err := e.ExecuteAll(context.Background(), src, postsQuery(), cartesianQuery())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Len(t, results[0], 2)
	assert.Len(t, results[1], 1)

	src.errs[blogsWithComments] = errors.New("timeout")
	results, err = e.ExecuteAll(context.Background(), src, postsQuery(), cartesianQuery())
	assert.EqualError(t, err, "timeout")
	assert.Nil(t, results)
}

func TestGet(t *testing.T) {
	e := configuredEngine(t)
	src := blogSource()
	src.rows["SELECT blog 2"] = []query.RawRow{{int64(2), "SQL", int64(21), "P3"}}
	src.rows["SELECT blog 9"] = nil

	tree := fetch.MustParse("Blog{Posts[]}")
	got, err := e.Get(context.Background(), src, query.New(tree, "SELECT blog 2", 2))
	require.NoError(t, err)
	assert.Equal(t, "SQL", got.(*blogtest.Blog).Title)

	_, err = e.Get(context.Background(), src, query.New(tree, "SELECT blog 9", 9))
	assert.True(t, query.IsNotFound(err))

	_, err = e.Get(context.Background(), src, query.New(tree, blogsWithPosts))
	assert.Error(t, err, "more than one root")
}

func TestGetMany(t *testing.T) {
	e := configuredEngine(t)

	got, err := Collect[*blogtest.Blog](e.GetMany(context.Background(), blogSource(), postsQuery(), 2, int32(1), 7, nil))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(1), got[1].ID)
}

func TestExecutePaged(t *testing.T) {
	e := configuredEngine(t)
	src := blogSource()

	page, err := e.ExecutePaged(context.Background(), src, postsQuery(), 0, 10, countBlogs)
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalResults)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 0, page.Skipped)
	assert.Equal(t, 10, page.Taken)

	_, err = e.ExecutePaged(context.Background(), src, postsQuery(), -1, 10, countBlogs)
	assert.Error(t, err)

	_, err = e.Count(context.Background(), src, "SELECT nothing")
	assert.Error(t, err)
}

func TestCollect(t *testing.T) {
	_, err := Collect[*blogtest.Post]([]any{&blogtest.Blog{}}, nil)
	assert.Error(t, err)

	boom := errors.New("boom")
	_, err = Collect[*blogtest.Blog](nil, boom)
	assert.Same(t, boom, err)
}

func TestExplain(t *testing.T) {
	e := configuredEngine(t)
	md, err := e.Explain(fetch.MustParse("Blog{Posts[],Comments[]}"), false)
	require.NoError(t, err)
	assert.Contains(t, md, "MultiCollection")
}
