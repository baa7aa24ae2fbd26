package fetch

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// FetchLexer tokenizes the fetch DSL:
//
//	Blog {
//	  Author,
//	  Posts[] { Tags[] },   # collections carry []
//	  Comments[]:Comment,   # an optional target type follows ':'
//	}
var FetchLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Ident", Pattern: `[\p{L}_][\p{L}\p{N}_]*`},
	{Name: "Punct", Pattern: `[{}\[\],:]`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
})

// rawTree is the parse tree matching the grammar.
type rawTree struct {
	Pos      lexer.Position
	Root     string     `parser:"@Ident"`
	Children []*rawNode `parser:"( \"{\" ( @@ ( \",\" @@ )* \",\"? )? \"}\" )?"`
}

type rawNode struct {
	Pos      lexer.Position
	Name     string     `parser:"@Ident"`
	Many     bool       `parser:"@( \"[\" \"]\" )?"`
	Type     string     `parser:"( \":\" @Ident )?"`
	Children []*rawNode `parser:"( \"{\" ( @@ ( \",\" @@ )* \",\"? )? \"}\" )?"`
}

var parser = participle.MustBuild[rawTree](
	participle.Lexer(FetchLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(2),
)

// Parse reads a fetch tree written in the fetch DSL.
func Parse(filename string, r io.Reader) (*Tree, error) {
	raw, err := parser.Parse(filename, r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTree, err)
	}
	t := New(raw.Root)
	for _, rn := range raw.Children {
		n, err := convertRawNode(rn)
		if err != nil {
			return nil, err
		}
		t.Add(n)
	}
	if err := t.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// ParseString parses a fetch tree from a string.
func ParseString(input string) (*Tree, error) {
	return Parse("", strings.NewReader(input))
}

// MustParse parses a fetch tree, panicking on error.
// Use only in tests or with constant input.
func MustParse(input string) *Tree {
	t, err := ParseString(input)
	if err != nil {
		panic(err)
	}
	return t
}

func convertRawNode(rn *rawNode) (*Node, error) {
	n := &Node{Navigation: rn.Name, Type: rn.Type, Cardinality: ToOne}
	if rn.Many {
		n.Cardinality = ToMany
	}
	for _, rc := range rn.Children {
		if findChild(n.Children, rc.Name) != nil {
			return nil, fmt.Errorf("%w: %s: duplicate navigation %q", ErrInvalidTree, rc.Pos, rc.Name)
		}
		c, err := convertRawNode(rc)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, c)
	}
	return n, nil
}
