package doctree

// DocTree is the root of a parsed document.
type DocTree struct {
	Title    string     // Document title (from metadata or filename)
	Children []*DocNode // Top-level sections
}

// DocNode is a recursive section in the document tree.
type DocNode struct {
	Title      string            // Section heading (empty for leaf text)
	Level      int               // Heading level, 0 for leaf text
	Text       string            // Text content of this node (may be empty for container nodes)
	Page       int               // Source page/line (0 if N/A)
	Offset     int               // Reading-order offset of the heading, or of Text for leaves
	TextOffset int               // Reading-order offset of Text
	Attrs      map[string]string // Format-specific extras, e.g. CSV columns
	Children   []*DocNode        // Subsections
}

// Walk visits every node depth-first in reading order. Returning false from
// fn skips the node's children.
func (t *DocTree) Walk(fn func(n *DocNode) bool) {
	var visit func(nodes []*DocNode)
	visit = func(nodes []*DocNode) {
		for _, n := range nodes {
			if fn(n) {
				visit(n.Children)
			}
		}
	}
	visit(t.Children)
}

// Len counts every node in the tree.
func (t *DocTree) Len() int {
	n := 0
	t.Walk(func(*DocNode) bool { n++; return true })
	return n
}
