package focus

import (
	"slices"

	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
)

// GraphNode is one cell in an exported graph
type GraphNode struct {
	ID      string `json:"id"`
	Formula string `json:"formula,omitempty"`
	Value   string `json:"value"`
	Input   bool   `json:"input"`
	Stale   bool   `json:"stale,omitempty"`
}

// GraphEdge points from a precedent to the cell that reads it
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the exported dependency graph, nodes and edges in address order
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// ExportGraph returns the materialized model as plain nodes and edges
func (e *Engine) ExportGraph() Graph {
	out := Graph{Nodes: []GraphNode{}, Edges: []GraphEdge{}}
	for id, cell := range e.graph.All() {
		node := GraphNode{
			ID:    cell.Address.String(),
			Value: FormatValue(cell.Value),
			Input: cell.IsInput(),
			Stale: cell.Stale,
		}
		if cell.Formula != nil {
			node.Formula = cell.Formula.Text
		}
		out.Nodes = append(out.Nodes, node)

		for _, p := range e.graph.addresses(e.graph.DirectPrecedents(id)) {
			out.Edges = append(out.Edges, GraphEdge{From: p.String(), To: node.ID})
		}
	}
	slices.SortStableFunc(out.Edges, func(a, b GraphEdge) int {
		return compareAddressStrings(a.From, b.From)
	})
	return out
}

// dotNode adapts a cell to the gonum DOT encoder
type dotNode struct {
	id   int64
	cell *Cell
}

func (n dotNode) ID() int64 {
	return n.id
}

func (n dotNode) DOTID() string {
	return n.cell.Address.String()
}

func (n dotNode) Attributes() []encoding.Attribute {
	label := n.cell.Address.String() + "\n" + FormatValue(n.cell.Value)
	if n.cell.Formula != nil {
		label = n.cell.Address.String() + "\n" + n.cell.Formula.Text + "\n" + FormatValue(n.cell.Value)
		return []encoding.Attribute{{Key: "label", Value: label}, {Key: "shape", Value: "box"}}
	}
	return []encoding.Attribute{{Key: "label", Value: label}, {Key: "shape", Value: "ellipse"}}
}

// ExportDOT renders the materialized model in Graphviz DOT format
func (e *Engine) ExportDOT() ([]byte, error) {
	g := simple.NewDirectedGraph()
	for id, cell := range e.graph.All() {
		g.AddNode(dotNode{id: int64(id), cell: cell})
	}
	for id := range e.graph.All() {
		for _, p := range e.graph.DirectPrecedents(id) {
			if p == id {
				// simple graphs cannot hold self loops
				continue
			}
			g.SetEdge(g.NewEdge(g.Node(int64(p)), g.Node(int64(id))))
		}
	}
	return dot.Marshal(g, "model", "", "  ")
}
