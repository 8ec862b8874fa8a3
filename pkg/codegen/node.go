package codegen

import (
	"fmt"
	"io"
	"strings"

	"github.com/chazu/tapec/pkg/bil"
)

// Node is one piece of generated tape code together with the macro-op it
// came from. Raw fragments written directly by an expansion (such as the
// "[-" that opens a move loop) have a nil Op and inherit the provenance of
// their parent.
type Node struct {
	Op   bil.Op
	Body Body
}

// Body is either a Leaf or a Branch.
type Body interface {
	body() // marker method
}

// Leaf is literal instruction text.
type Leaf string

// Branch is an ordered list of child nodes.
type Branch []*Node

func (Leaf) body()   {}
func (Branch) body() {}

// Flatten concatenates every leaf under the given nodes, depth first, left
// to right.
func Flatten(nodes ...*Node) string {
	var sb strings.Builder
	for _, n := range nodes {
		n.flatten(&sb)
	}
	return sb.String()
}

func (n *Node) flatten(sb *strings.Builder) {
	switch b := n.Body.(type) {
	case Leaf:
		sb.WriteString(string(b))
	case Branch:
		for _, child := range b {
			child.flatten(sb)
		}
	}
}

// String returns the flattened text of the node.
func (n *Node) String() string {
	return Flatten(n)
}

// Dump writes an indented tree showing which macro-op produced which text.
func Dump(w io.Writer, nodes ...*Node) {
	for _, n := range nodes {
		n.dump(w, 0)
	}
}

func (n *Node) dump(w io.Writer, depth int) {
	indent := strings.Repeat("    ", depth)
	switch b := n.Body.(type) {
	case Leaf:
		if n.Op == nil {
			fmt.Fprintf(w, "%s%s\n", indent, string(b))
			return
		}
		fmt.Fprintf(w, "%s%s : %s\n", indent, string(b), n.Op)
	case Branch:
		fmt.Fprintf(w, "%s%s =>\n", indent, n.Op)
		for _, child := range b {
			child.dump(w, depth+1)
		}
	}
}
