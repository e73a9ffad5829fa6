package visualize

import (
	"fmt"

	"github.com/emicklei/dot"
)

// Generator renders a graph in some textual format.
type Generator interface {
	Generate(g *Graph) string
}

var (
	_ Generator = &DotGenerator{}
	_ Generator = &MermaidGenerator{}
)

// DotGenerator generates Graphviz DOT diagrams.
type DotGenerator struct{}

// Generate creates a Graphviz DOT diagram from the graph.
func (d *DotGenerator) Generate(g *Graph) string {
	return BuildDotGraph(g).String()
}

// MermaidGenerator generates Mermaid flowchart diagrams.
type MermaidGenerator struct{}

// Generate creates a Mermaid flowchart from the graph, wrapped in a markdown code block.
func (m *MermaidGenerator) Generate(g *Graph) string {
	mermaid := dot.MermaidFlowchart(BuildMermaidGraph(g), dot.MermaidLeftToRight)
	return fmt.Sprintf("```mermaid\n%s```\n", mermaid)
}

// NewGenerator returns the generator for a format name: "dot" or "mermaid".
func NewGenerator(format string) (Generator, error) {
	switch format {
	case "dot", "":
		return &DotGenerator{}, nil
	case "mermaid":
		return &MermaidGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}
