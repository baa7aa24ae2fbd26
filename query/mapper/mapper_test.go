package mapper

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashing-go/dashing/internal/blogtest"
	"github.com/dashing-go/dashing/metadata"
	"github.com/dashing-go/dashing/query"
	"github.com/dashing-go/dashing/query/fetch"
)

func build(t *testing.T, tree string, tracked bool) *Plan {
	t.Helper()
	p, err := NewFactory(blogtest.Configuration()).Build(fetch.MustParse(tree), tracked)
	require.NoError(t, err)
	return p
}

func TestShapes(t *testing.T) {
	tests := []struct {
		tree  string
		shape Shape
	}{
		{"Blog", NoCollection},
		{"Blog{Author}", NoCollection},
		{"Post{Author}", NoCollection},
		{"Blog{Posts[]}", SingleCollection},
		{"Blog{Author,Posts[]{Author}}", SingleCollection},
		{"Blog{Posts[],Comments[]}", MultiCollection},
		{"Blog{Posts[]{Tags[]}}", MultiCollection},
	}

	for _, tt := range tests {
		t.Run(tt.tree, func(t *testing.T) {
			assert.Equal(t, tt.shape, build(t, tt.tree, false).Shape)
		})
	}
}

func TestLayout(t *testing.T) {
	tree := fetch.MustParse("Blog{Author,Posts[]{Tags[]}}")
	p := build(t, tree.Signature().String(), false)

	want := &query.Layout{Spans: []query.Span{
		{Path: "", Offset: 0, Width: 2},
		{Path: "Author", Offset: 2, Width: 2},
		{Path: "Posts", Offset: 4, Width: 2},
		{Path: "Posts.Tags", Offset: 6, Width: 2},
	}}
	assert.Equal(t, want, p.Layout)
	assert.Equal(t, 8, p.Width())
	assert.Equal(t, []int{2, 4, 6}, p.Layout.SplitOn())
	assert.Equal(t, []string{"Posts", "Posts.Tags"}, p.Collections())

	def, err := DefaultLayout(tree, blogtest.Configuration())
	require.NoError(t, err)
	assert.True(t, def.Equal(p.Layout))

	_, err = DefaultLayout(fetch.New("Ghost"), blogtest.Configuration())
	assert.True(t, query.IsUnknownType(err))
}

func TestSegments(t *testing.T) {
	p := build(t, "Blog{Author,Posts[]{Author,Tags[]}}", false)

	require.Len(t, p.Segments, 5)
	root := p.Segments[0]
	assert.True(t, root.IsRoot())
	assert.True(t, root.HasCollections)
	assert.Equal(t, []int{1, 2}, root.Children)

	author := p.Segments[1]
	assert.Equal(t, "User", author.Type)
	assert.False(t, author.HasCollections)

	posts := p.Segments[2]
	assert.Equal(t, "Posts", posts.Path)
	assert.True(t, posts.HasCollections)
	assert.Equal(t, "Posts.Author", p.Segments[3].Path)
	assert.Equal(t, []int{2, 4}, p.Branches)
	assert.True(t, p.ToMany(4))
	assert.False(t, p.ToMany(3))
}

func TestBuildErrors(t *testing.T) {
	cfg := metadata.MustConfiguration(
		metadata.NewRecordMap("Log", "logs", "", []string{"message"},
			metadata.Relation{Navigation: "Entries", Target: "Entry", Cardinality: fetch.ToMany},
			metadata.Relation{Navigation: "Owner", Target: "Ghost", Cardinality: fetch.ToOne},
			metadata.Relation{Navigation: "Settings", Target: "Settings", Cardinality: fetch.ToOne},
		),
		metadata.NewRecordMap("Entry", "entries", "id", []string{"id"}),
		metadata.NewRecordMap("Settings", "settings", "", []string{"theme"}),
	)
	f := NewFactory(cfg)

	_, err := f.Build(fetch.New("Nope"), false)
	assert.True(t, query.IsUnknownType(err))
	assert.False(t, query.IsBuildError(err))

	tests := []struct {
		name string
		tree string
		path string
		want error
	}{
		{"collection under keyless root", "Log{Entries[]}", "", errNoPrimaryKey},
		{"unmapped target", "Log{Owner}", "Owner", query.ErrUnknownType},
		{"keyless relation target", "Log{Settings}", "Settings", errNoPrimaryKey},
		{"unknown navigation", "Log{Lines[]}", "", fetch.ErrUnknownNavigation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Build(fetch.MustParse(tt.tree), false)
			require.Error(t, err)

			var be *query.BuildError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, "Log", be.Root)
			assert.Equal(t, tt.path, be.Path)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, query.IsBuildError(err))
		})
	}

	p, err := f.Build(fetch.New("Log"), false)
	require.NoError(t, err, "a keyless root without collections is a plain flatten")
	assert.Equal(t, NoCollection, p.Shape)

	invalid := fetch.New("Log").Fetch("bad name")
	_, err = f.Build(invalid, false)
	assert.ErrorIs(t, err, fetch.ErrInvalidTree)
}

func TestTrackedRequiresTrackableRoot(t *testing.T) {
	f := NewFactory(blogtest.Configuration())

	_, err := f.Build(fetch.New("Comment"), true)
	assert.ErrorIs(t, err, errNotTrackable)

	p, err := f.Build(fetch.New("Blog"), true)
	require.NoError(t, err)
	assert.True(t, p.Tracked)
}

func TestMapRow(t *testing.T) {
	p := build(t, "Blog{Author,Posts[]{Tags[]}}", false)

	row := query.RawRow{int64(1), "Go", int64(10), []byte("Ann"), int64(100), "Hello", int64(1000), "go"}
	tuple, err := p.MapRow(row)
	require.NoError(t, err)

	blog := tuple.Root.(*blogtest.Blog)
	assert.Equal(t, int64(1), blog.ID)
	assert.Equal(t, "Go", blog.Title)
	require.NotNil(t, blog.Author)
	assert.Equal(t, "Ann", blog.Author.Name)
	assert.NotNil(t, blog.Posts)
	assert.Empty(t, blog.Posts, "collections are assembled by the merge")

	require.Len(t, tuple.Children, 2)
	post := tuple.Children[0].(*blogtest.Post)
	assert.Equal(t, "Hello", post.Title)
	assert.NotNil(t, post.Tags)
	assert.Equal(t, "go", tuple.Children[1].(*blogtest.Tag).Label)
}

func TestMapRowOuterJoin(t *testing.T) {
	p := build(t, "Blog{Author,Posts[]}", false)

	tuple, err := p.MapRow(query.RawRow{int64(1), "Go", nil, nil, nil, nil})
	require.NoError(t, err)

	blog := tuple.Root.(*blogtest.Blog)
	assert.Nil(t, blog.Author)
	assert.Equal(t, []any{nil}, tuple.Children)

	_, err = p.MapRow(query.RawRow{int64(1), "Go"})
	assert.Error(t, err)

	_, err = p.MapRow(query.RawRow{int64(1), "Go", int64(2), struct{}{}, nil, nil})
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "Author", fe.Path)
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    any
		present bool
	}{
		{"null", nil, nil, false},
		{"bytes", []byte("k1"), "k1", true},
		{"int32", int32(5), int64(5), true},
		{"int", 5, int64(5), true},
		{"string", "k", "k", true},
		{"null valuer", sql.NullInt64{}, nil, false},
		{"valid valuer", sql.NullInt64{Int64: 9, Valid: true}, int64(9), true},
		{"float", 1.5, 1.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, present, err := NormalizeKey(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.present, present)
			assert.Equal(t, tt.want, got)
		})
	}

	_, _, err := NormalizeKey(map[string]int{})
	assert.Error(t, err)
}

func TestExplain(t *testing.T) {
	md := build(t, "Blog{Author,Posts[]{Tags[]}}", false).Explain()

	assert.Contains(t, md, "# Blog{Author,Posts[]{Tags[]}}")
	assert.Contains(t, md, "MultiCollection (2 collection branches)")
	assert.Contains(t, md, "| Posts.Tags | Tag | ToMany | 6..7 | id |")
	assert.Contains(t, md, "O(c(Posts) × c(Posts.Tags))")
	assert.Contains(t, md, "O(c(Posts) + c(Posts.Tags))")

	flat := build(t, "Blog", false).Explain()
	assert.Contains(t, flat, "no deduplication is needed")
}
