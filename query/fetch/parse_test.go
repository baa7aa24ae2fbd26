package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	input := `
# blogs with everything hanging off them
Blog {
  Author,
  Posts[] { Tags[], Author },
  Comments[]:Comment,
}
`
	tree, err := ParseString(input)
	require.NoError(t, err)

	assert.Equal(t, "Blog", tree.Root)
	require.Len(t, tree.Children, 3)

	assert.Equal(t, "Author", tree.Children[0].Navigation)
	assert.Equal(t, ToOne, tree.Children[0].Cardinality)

	posts := tree.Children[1]
	assert.Equal(t, ToMany, posts.Cardinality)
	require.Len(t, posts.Children, 2)
	assert.Equal(t, ToMany, posts.Children[0].Cardinality)
	assert.Equal(t, ToOne, posts.Children[1].Cardinality)

	comments := tree.Children[2]
	assert.Equal(t, "Comment", comments.Type)
	assert.Equal(t, 3, tree.Collections())
}

func TestParseRootOnly(t *testing.T) {
	tree, err := ParseString("Blog")
	require.NoError(t, err)
	assert.Equal(t, "Blog", tree.Root)
	assert.False(t, tree.HasFetches())

	tree, err = ParseString("Blog {}")
	require.NoError(t, err)
	assert.False(t, tree.HasFetches())
}

func TestParseErrors(t *testing.T) {
	inputs := []string{
		"",
		"Blog {",
		"Blog { Posts[ }",
		"Blog { Posts[], Posts }",
		"Blog { Posts { Tags[], Tags[] } }",
		"{ Posts }",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := ParseString(input)
			assert.ErrorIs(t, err, ErrInvalidTree)
		})
	}
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("Blog {") })
}
