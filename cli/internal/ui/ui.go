// Package ui renders dashing CLI output: status messages, tables, markdown
// and materialized object graphs.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/pterm/pterm"

	"github.com/dashing-go/dashing/metadata"
)

var (
	// Colors
	PrimaryColor   = lipgloss.Color("#00D9FF")
	SuccessColor   = lipgloss.Color("#00FF88")
	WarningColor   = lipgloss.Color("#FFB800")
	ErrorColor     = lipgloss.Color("#FF4444")
	SecondaryColor = lipgloss.Color("#6C757D")

	// Styles
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	SecondaryStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor)
)

var (
	// Out is where every printer but PrintError writes.
	Out io.Writer = os.Stdout
	// ErrOut receives PrintError messages.
	ErrOut io.Writer = os.Stderr
)

// SetOutput redirects output and returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	prev := Out
	Out = w
	return prev
}

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...interface{}) {
	fmt.Fprintln(Out, SuccessStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// PrintError prints an error message
func PrintError(format string, args ...interface{}) {
	fmt.Fprintln(ErrOut, ErrorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...interface{}) {
	fmt.Fprintln(Out, WarningStyle.Render("⚠ "+fmt.Sprintf(format, args...)))
}

// PrintTitle prints a section title with an optional dimmed subtitle.
func PrintTitle(title, subtitle string) {
	line := TitleStyle.Render(title)
	if subtitle != "" {
		line += " " + SecondaryStyle.Render(subtitle)
	}
	fmt.Fprintln(Out, line)
}

// PrintKeyValue prints an aligned, colored label and its value.
func PrintKeyValue(label string, value interface{}) {
	c := color.New(color.FgCyan, color.Bold)
	c.Fprintf(Out, "%-10s", label+":")
	fmt.Fprintf(Out, " %v\n", value)
}

// PrintTable prints a table using pterm
func PrintTable(headers []string, rows [][]string) error {
	tableData := pterm.TableData{headers}
	tableData = append(tableData, rows...)
	s, err := pterm.DefaultTable.WithHasHeader().WithData(tableData).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(Out, s)
	return nil
}

// PrintMarkdown renders markdown content
func PrintMarkdown(content string) error {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return err
	}

	out, err := r.Render(content)
	if err != nil {
		return err
	}

	fmt.Fprint(Out, out)
	return nil
}

// GraphTree converts materialized root entities into a pterm tree: one node
// per entity labelled with its type and columns, relations nested beneath.
func GraphTree(roots []any) pterm.TreeNode {
	root := pterm.TreeNode{Text: fmt.Sprintf("%d root entities", len(roots))}
	for _, r := range roots {
		root.Children = append(root.Children, entityNode("", r))
	}
	return root
}

func entityNode(navigation string, entity any) pterm.TreeNode {
	prefix := ""
	if navigation != "" {
		prefix = navigation + ": "
	}
	rec, ok := entity.(*metadata.Record)
	if !ok {
		return pterm.TreeNode{Text: fmt.Sprintf("%s%+v", prefix, entity)}
	}

	fields := make([]string, 0, len(rec.Columns()))
	for _, c := range rec.Columns() {
		fields = append(fields, fmt.Sprintf("%s=%v", c, rec.Get(c)))
	}
	node := pterm.TreeNode{Text: fmt.Sprintf("%s%s{%s}", prefix, rec.Type(), strings.Join(fields, ", "))}
	if rec.HasChanges() {
		node.Text += " changed: " + strings.Join(rec.DirtyFields(), ",")
	}

	for _, nav := range rec.Relations() {
		if one := rec.One(nav); one != nil {
			node.Children = append(node.Children, entityNode(nav, one))
			continue
		}
		many := rec.Many(nav)
		coll := pterm.TreeNode{Text: fmt.Sprintf("%s[%d]", nav, len(many))}
		for _, child := range many {
			coll.Children = append(coll.Children, entityNode("", child))
		}
		node.Children = append(node.Children, coll)
	}
	return node
}

// PrintGraph prints materialized entities as a tree.
func PrintGraph(roots []any) error {
	s, err := pterm.DefaultTree.WithRoot(GraphTree(roots)).Srender()
	if err != nil {
		return err
	}
	fmt.Fprint(Out, s)
	return nil
}
