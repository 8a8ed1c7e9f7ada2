package parser

import (
	"strings"

	"github.com/dgallion1/docmap/internal/doctree"
)

// treeBuilder nests headings by level and attaches text to the innermost
// open heading. Offsets count characters emitted so far, so every format
// gets comparable reading-order positions.
type treeBuilder struct {
	tree   *doctree.DocTree
	root   *doctree.DocNode
	stack  []stackEntry
	text   strings.Builder
	start  int
	offset int
}

type stackEntry struct {
	node  *doctree.DocNode
	level int
}

func newTreeBuilder(title string) *treeBuilder {
	root := &doctree.DocNode{Title: title}
	return &treeBuilder{
		tree:  &doctree.DocTree{Title: title},
		root:  root,
		stack: []stackEntry{{node: root, level: 0}},
	}
}

// heading closes open headings at or below level and opens a new one.
func (b *treeBuilder) heading(level int, title string) *doctree.DocNode {
	b.flush()
	n := &doctree.DocNode{Title: title, Level: level, Offset: b.offset}
	b.offset += len(title) + 1

	for len(b.stack) > 1 && b.stack[len(b.stack)-1].level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}
	parent := b.stack[len(b.stack)-1].node
	parent.Children = append(parent.Children, n)
	b.stack = append(b.stack, stackEntry{node: n, level: level})
	return n
}

// paragraph buffers a block of body text for the current heading.
func (b *treeBuilder) paragraph(t string) {
	t = strings.TrimSpace(t)
	if t == "" {
		return
	}
	if b.text.Len() == 0 {
		b.start = b.offset
	} else {
		b.text.WriteString("\n\n")
		b.offset += 2
	}
	b.text.WriteString(t)
	b.offset += len(t)
}

// leaf appends a standalone text node, used by formats without headings.
func (b *treeBuilder) leaf(t string, page int) *doctree.DocNode {
	t = strings.TrimSpace(t)
	if t == "" {
		return nil
	}
	b.flush()
	n := &doctree.DocNode{Text: t, Page: page, Offset: b.offset, TextOffset: b.offset}
	top := b.stack[len(b.stack)-1].node
	top.Children = append(top.Children, n)
	b.offset += len(t) + 2
	return n
}

func (b *treeBuilder) flush() {
	if b.text.Len() == 0 {
		return
	}
	top := b.stack[len(b.stack)-1].node
	if top.Text == "" {
		top.Text = b.text.String()
		top.TextOffset = b.start
	} else {
		top.Text += "\n\n" + b.text.String()
	}
	b.text.Reset()
	b.offset++
}

// done returns the tree. Text that came before any heading becomes a
// leading leaf.
func (b *treeBuilder) done() *doctree.DocTree {
	b.flush()
	b.tree.Children = b.root.Children
	if b.root.Text != "" {
		lead := &doctree.DocNode{Text: b.root.Text, TextOffset: b.root.TextOffset}
		b.tree.Children = append([]*doctree.DocNode{lead}, b.tree.Children...)
	}
	return b.tree
}
