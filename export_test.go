package focus

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportGraph(t *testing.T) {
	engine := newTrimRangeEngine(t)
	_, err := engine.Evaluate("trim-range!B1")
	require.NoError(t, err)

	graph := engine.ExportGraph()
	require.Len(t, graph.Nodes, 7)
	assert.Equal(t, GraphNode{ID: "trim-range!B1", Formula: "=SUM(D1:E3)", Value: "21"}, graph.Nodes[0])
	assert.Equal(t, GraphNode{ID: "trim-range!D1", Value: "1", Input: true}, graph.Nodes[1])

	var edges []GraphEdge
	for _, from := range []string{"D1", "E1", "D2", "E2", "D3", "E3"} {
		edges = append(edges, GraphEdge{From: "trim-range!" + from, To: "trim-range!B1"})
	}
	if diff := cmp.Diff(edges, graph.Edges); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
}

func TestExportGraphStale(t *testing.T) {
	engine := newTrimRangeEngine(t)
	_, err := engine.Evaluate("trim-range!B2")
	require.NoError(t, err)
	require.NoError(t, engine.SetValue("trim-range!D1", 10))

	stale := []string{}
	for _, node := range engine.ExportGraph().Nodes {
		if node.Stale {
			stale = append(stale, node.ID)
		}
	}
	assert.Equal(t, []string{"trim-range!B1", "trim-range!B2"}, stale)
}

func TestExportDOT(t *testing.T) {
	engine := NewEngine(circularSource(), cyclesEnabled(), WithLogger(quietLogger()))
	_, err := engine.Evaluate("Sheet1!B8")
	require.NoError(t, err)

	data, err := engine.ExportDOT()
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "digraph")
	assert.Contains(t, out, "box")
	assert.Contains(t, out, "ellipse")
	assert.Contains(t, out, "->")
	assert.Contains(t, out, "Sheet1!B8")

	// self references are dropped from the drawing
	self := NewEngineTestCase(t, "self").
		Set("Sheet1!A1", "=A1+1").
		WithCycles(10, 0.001).
		Evaluate("Sheet1!A1").
		Engine()
	data, err = self.ExportDOT()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "->")
}
