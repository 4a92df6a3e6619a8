package graph

import (
	"io"
	"strings"
	"unicode"

	"github.com/emicklei/dot"
)

// WriteDOT renders the graph in Graphviz DOT syntax.
func (g *Graph) WriteDOT(w io.Writer) error {
	d := dot.NewGraph(dot.Directed)
	d.ID(string(quoteDOT("project_" + g.ProjectID)))

	nodes := make(map[*Vertex]dot.Node, len(g.Vertices))
	for _, v := range g.Vertices {
		nodes[v] = addNode(d, v.GraphvizID(), v)
	}
	for _, e := range g.Edges {
		d.Edge(nodes[e.Source], nodes[e.Destination])
	}
	_, err := io.WriteString(w, d.String())
	return err
}

// WriteDOT renders the graph instance in Graphviz DOT syntax. Repeated visits
// of a vertex become distinct nodes.
func (g *GraphInstance) WriteDOT(w io.Writer) error {
	d := dot.NewGraph(dot.Directed)
	d.ID(string(quoteDOT("instance_" + g.ProjectID)))

	nodes := make(map[*VertexInstance]dot.Node, len(g.Vertices))
	for _, v := range g.Vertices {
		nodes[v] = addNode(d, v.GraphvizID(), &v.Vertex)
	}
	for _, e := range g.Edges {
		d.Edge(nodes[e.Source], nodes[e.Destination])
	}
	_, err := io.WriteString(w, d.String())
	return err
}

func addNode(d *dot.Graph, id string, v *Vertex) dot.Node {
	label, shape := v.Name, "ellipse"
	switch {
	case v.IsGateway():
		shape = "diamond"
		label = "+"
		if v.Category == CategoryXorSplit || v.Category == CategoryXorJoin {
			label = "×"
		}
	case v.Category == CategoryStart || v.Category == CategoryEnd:
		shape = "doublecircle"
	}
	return d.Node(id).
		Attr("id", quoteDOT(id)).
		Attr("label", quoteDOT(label)).
		Attr("shape", shape).
		Attr("style", "filled").
		Attr("fillcolor", "white")
}

// quoteDOT returns s as a DOT quoted string. Only the quote and backslash are
// escaped; newlines become the \n line break and other control characters are
// dropped, since DOT has no escape for them.
func quoteDOT(s string) dot.Literal {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '"' || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\t':
			b.WriteByte(' ')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return dot.Literal(b.String())
}
