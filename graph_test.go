package focus

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addCells(dg *DependencyGraph, names ...string) []int {
	ids := make([]int, 0, len(names))
	for _, name := range names {
		ids = append(ids, dg.Add(&Cell{Address: MustParseAddress("Sheet1!" + name)}))
	}
	return ids
}

func TestDependencyGraph(t *testing.T) {
	dg := NewDependencyGraph()
	ids := addCells(dg, "A1", "A2", "A3", "A4")
	a1, a2, a3, a4 := ids[0], ids[1], ids[2], ids[3]

	// adding twice keeps one cell
	assert.Equal(t, a1, dg.Add(&Cell{Address: MustParseAddress("Sheet1!A1")}))
	assert.Equal(t, 4, dg.Len())

	dg.SetPrecedents(a2, []int{a1, a1})
	dg.SetPrecedents(a3, []int{a2, a1})
	dg.SetPrecedents(a4, []int{a3})
	assert.Equal(t, 4, dg.EdgeCount())
	assert.Equal(t, []int{a1}, dg.DirectPrecedents(a2))
	assert.ElementsMatch(t, []int{a2, a3}, dg.DirectDependents(a1))

	dependents := dg.GetAllDependents(a1)
	slices.Sort(dependents)
	assert.Equal(t, []int{a2, a3, a4}, dependents)

	precedents := dg.GetAllPrecedents(a4)
	slices.Sort(precedents)
	assert.Equal(t, []int{a1, a2, a3}, precedents)

	dg.SetPrecedents(a3, []int{a1})
	assert.Empty(t, dg.DirectDependents(a2))
	assert.Equal(t, 3, dg.EdgeCount())
}

func TestDependencyGraphRemove(t *testing.T) {
	dg := NewDependencyGraph()
	ids := addCells(dg, "B2", "A1", "B1")
	b2, a1, b1 := ids[0], ids[1], ids[2]
	dg.SetPrecedents(b2, []int{a1, b1})

	dg.Remove(b1)
	dg.Remove(b1)
	assert.Equal(t, 2, dg.Len())
	assert.Equal(t, []int{a1}, dg.DirectPrecedents(b2))
	_, _, ok := dg.Lookup(MustParseAddress("Sheet1!B1"))
	assert.False(t, ok)

	var order []string
	for _, cell := range dg.All() {
		order = append(order, cell.Address.String())
	}
	assert.Equal(t, []string{"Sheet1!A1", "Sheet1!B2"}, order)
}

func TestDependencyGraphCycles(t *testing.T) {
	dg := NewDependencyGraph()
	ids := addCells(dg, "A1", "A2")
	dg.SetPrecedents(ids[0], []int{ids[1]})
	dg.SetPrecedents(ids[1], []int{ids[0], ids[1]})

	assert.True(t, dg.HasSelfLoop(ids[1]))
	assert.False(t, dg.HasSelfLoop(ids[0]))

	// the walk terminates and includes the start once it is reachable
	dependents := dg.GetAllDependents(ids[0])
	slices.Sort(dependents)
	require.Equal(t, []int{ids[0], ids[1]}, dependents)
}
