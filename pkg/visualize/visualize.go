// Package visualize renders the live dataflow graph of a coordinator as a diagram.
package visualize

import (
	"fmt"

	"github.com/emicklei/dot"

	"github.com/l7mp/materialite/pkg/graph"
)

// Graph is a snapshot of a dataflow graph.
type Graph struct {
	Name  string
	Nodes []Node
	Edges []Edge
}

// Node is a source, an operator or a view.
type Node struct {
	ID    string
	Label string
	Kind  graph.NodeKind
}

// Edge connects a node to a node reading its output.
type Edge struct {
	From string
	To   string
}

// BuildGraph walks the graph downstream from the given sources. Nodes reachable from several
// sources appear once.
func BuildGraph(name string, sources []graph.Node) *Graph {
	g := &Graph{Name: name}
	ids := map[graph.Node]string{}

	var visit func(n graph.Node) string
	visit = func(n graph.Node) string {
		if id, ok := ids[n]; ok {
			return id
		}
		id := fmt.Sprintf("n%d", len(ids))
		ids[n] = id
		g.Nodes = append(g.Nodes, Node{ID: id, Label: n.Name(), Kind: n.Kind()})
		for _, d := range n.Downstream() {
			g.Edges = append(g.Edges, Edge{From: id, To: visit(d)})
		}
		return id
	}

	for _, s := range sources {
		visit(s)
	}
	return g
}

// Count returns the number of nodes of a kind.
func (g *Graph) Count(kind graph.NodeKind) int {
	n := 0
	for _, node := range g.Nodes {
		if node.Kind == kind {
			n++
		}
	}
	return n
}

// BuildDotGraph creates a dot.Graph from the visualization graph, styled for Graphviz.
func BuildDotGraph(g *Graph) *dot.Graph {
	return buildDotGraph(g, styleGraphviz)
}

// BuildMermaidGraph creates a dot.Graph from the visualization graph, styled for the Mermaid
// renderer of the dot library: node shapes are dot.MermaidShape values and styles are CSS.
func BuildMermaidGraph(g *Graph) *dot.Graph {
	return buildDotGraph(g, styleMermaid)
}

func buildDotGraph(g *Graph, style func(dot.Node, graph.NodeKind)) *dot.Graph {
	dg := dot.NewGraph(dot.Directed)
	dg.Attr("rankdir", "LR")
	dg.Attr("newrank", "true")
	dg.Attr("label", g.Name)
	dg.Attr("labelloc", "t")
	dg.Attr("fontsize", "16")

	nodes := make(map[string]dot.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		dn := dg.Node(n.ID).Attr("label", n.Label)
		style(dn, n.Kind)
		nodes[n.ID] = dn
	}

	for _, e := range g.Edges {
		from, fromOk := nodes[e.From]
		to, toOk := nodes[e.To]
		if fromOk && toOk {
			dg.Edge(from, to)
		}
	}

	return dg
}

func styleGraphviz(dn dot.Node, kind graph.NodeKind) {
	dn.Attr("fontname", "helvetica")
	switch kind {
	case graph.KindSource:
		dn.Attr("shape", "ellipse").
			Attr("style", "filled").
			Attr("fillcolor", "lightgreen")
	case graph.KindView:
		dn.Attr("shape", "box").
			Attr("style", "filled,rounded").
			Attr("fillcolor", "lightcyan")
	default:
		dn.Attr("shape", "box").
			Attr("style", "filled,rounded").
			Attr("fillcolor", "lightblue").
			Attr("color", "darkblue").
			Attr("penwidth", "2")
	}
}

// same palette as styleGraphviz
func styleMermaid(dn dot.Node, kind graph.NodeKind) {
	switch kind {
	case graph.KindSource:
		dn.Attr("shape", dot.MermaidShapeStadium).
			Attr("style", "fill:#90EE90")
	case graph.KindView:
		dn.Attr("shape", dot.MermaidShapeSubroutine).
			Attr("style", "fill:#E0FFFF")
	default:
		dn.Attr("shape", dot.MermaidShapeRound).
			Attr("style", "fill:#ADD8E6,stroke:#00008B,stroke-width:2px")
	}
}
