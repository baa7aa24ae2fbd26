package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashing-go/dashing/metadata"
	"github.com/dashing-go/dashing/query"
	"github.com/dashing-go/dashing/query/executor"
	"github.com/dashing-go/dashing/query/fetch"
)

const mapping = `
entities:
  - type: Blog
    table: blogs
    primary_key: id
    columns: [id, title]
    relations:
      - {navigation: Author, target: User, cardinality: one}
      - {navigation: Posts, target: Post, cardinality: many}
  - type: User
    table: users
    primary_key: id
    columns: [id, name]
  - type: Post
    table: posts
    primary_key: id
    columns: [id, title]
`

func blogs(t *testing.T) []any {
	t.Helper()
	cfg, err := metadata.LoadMapping(strings.NewReader(mapping))
	require.NoError(t, err)
	e := executor.NewEngine()
	require.NoError(t, e.UseConfiguration(cfg))

	out, err := e.Materialize(fetch.MustParse("Blog{Author,Posts[]}"), true, []query.RawRow{
		{int64(1), "Go", int64(5), "Ann", int64(10), "Generics"},
		{int64(1), "Go", int64(5), "Ann", int64(11), "Iterators"},
		{int64(2), "SQL", nil, nil, nil, nil},
	})
	require.NoError(t, err)
	return out
}

func TestGraphTree(t *testing.T) {
	roots := blogs(t)
	require.NoError(t, roots[1].(*metadata.Record).Set("title", "SQL!"))

	tree := GraphTree(roots)
	assert.Equal(t, "2 root entities", tree.Text)
	require.Len(t, tree.Children, 2)

	goBlog := tree.Children[0]
	assert.Equal(t, "Blog{id=1, title=Go}", goBlog.Text)
	require.Len(t, goBlog.Children, 2)
	assert.Equal(t, "Author: User{id=5, name=Ann}", goBlog.Children[0].Text)
	assert.Equal(t, "Posts[2]", goBlog.Children[1].Text)
	assert.Equal(t, "Post{id=11, title=Iterators}", goBlog.Children[1].Children[1].Text)

	sqlBlog := tree.Children[1]
	assert.Equal(t, "Blog{id=2, title=SQL!} changed: title", sqlBlog.Text)
	require.Len(t, sqlBlog.Children, 1, "absent to-one relations are not listed")
	assert.Equal(t, "Posts[0]", sqlBlog.Children[0].Text)
}

func TestPrinters(t *testing.T) {
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	defer SetOutput(prev)

	require.NoError(t, PrintGraph(blogs(t)))
	PrintSuccess("done %d", 2)
	PrintKeyValue("hash", "abc")
	require.NoError(t, PrintTable([]string{"path", "type"}, [][]string{{"Posts", "Post"}}))

	out := buf.String()
	assert.Contains(t, out, "Post{id=10, title=Generics}")
	assert.Contains(t, out, "done 2")
	assert.Contains(t, out, "abc")
	assert.Contains(t, out, "Posts")
}
