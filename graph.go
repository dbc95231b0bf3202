package focus

import (
	"iter"
	"slices"
)

// DependencyGraph manages cell dependencies. cells live in an arena and are
// referred to by index; edges point from a precedent to the cells that
// read it.
type DependencyGraph struct {
	cells      []*Cell         // arena, nil once a cell is removed
	index      map[Address]int // address -> arena index
	precedents [][]int         // cells each cell reads, deduplicated
	dependents [][]int         // cells reading each cell
}

// NewDependencyGraph creates a new dependency graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		index: make(map[Address]int),
	}
}

// Add inserts a cell and returns its index. adding an address twice
// returns the existing index.
func (dg *DependencyGraph) Add(cell *Cell) int {
	if id, ok := dg.index[cell.Address]; ok {
		return id
	}
	id := len(dg.cells)
	dg.cells = append(dg.cells, cell)
	dg.precedents = append(dg.precedents, nil)
	dg.dependents = append(dg.dependents, nil)
	dg.index[cell.Address] = id
	return id
}

// Lookup finds a cell by address
func (dg *DependencyGraph) Lookup(addr Address) (*Cell, int, bool) {
	id, ok := dg.index[addr]
	if !ok {
		return nil, -1, false
	}
	return dg.cells[id], id, true
}

// Cell returns the cell at an index
func (dg *DependencyGraph) Cell(id int) *Cell {
	return dg.cells[id]
}

// Len returns the number of cells in the graph
func (dg *DependencyGraph) Len() int {
	return len(dg.index)
}

// EdgeCount returns the number of precedent -> dependent edges
func (dg *DependencyGraph) EdgeCount() int {
	count := 0
	for _, id := range dg.index {
		count += len(dg.precedents[id])
	}
	return count
}

// SetPrecedents replaces the cells a cell reads
func (dg *DependencyGraph) SetPrecedents(id int, precedents []int) {
	dg.ClearPrecedents(id)
	for _, p := range precedents {
		if slices.Contains(dg.precedents[id], p) {
			continue
		}
		dg.precedents[id] = append(dg.precedents[id], p)
		dg.dependents[p] = append(dg.dependents[p], id)
	}
}

// ClearPrecedents drops every edge into a cell
func (dg *DependencyGraph) ClearPrecedents(id int) {
	for _, p := range dg.precedents[id] {
		dg.dependents[p] = slices.DeleteFunc(dg.dependents[p], func(d int) bool { return d == id })
	}
	dg.precedents[id] = nil
}

// Remove removes a cell and all its edges
func (dg *DependencyGraph) Remove(id int) {
	cell := dg.cells[id]
	if cell == nil {
		return
	}
	dg.ClearPrecedents(id)
	for _, d := range dg.dependents[id] {
		dg.precedents[d] = slices.DeleteFunc(dg.precedents[d], func(p int) bool { return p == id })
	}
	dg.dependents[id] = nil
	dg.cells[id] = nil
	delete(dg.index, cell.Address)
}

// DirectPrecedents returns the indexes of cells this cell reads
func (dg *DependencyGraph) DirectPrecedents(id int) []int {
	return dg.precedents[id]
}

// DirectDependents returns the indexes of cells reading this cell
func (dg *DependencyGraph) DirectDependents(id int) []int {
	return dg.dependents[id]
}

// HasSelfLoop reports whether a cell reads itself
func (dg *DependencyGraph) HasSelfLoop(id int) bool {
	return slices.Contains(dg.precedents[id], id)
}

// GetAllDependents returns all cells affected by the given cells
// (transitive closure, the starting cells excluded unless they are
// reachable from one another)
func (dg *DependencyGraph) GetAllDependents(ids ...int) []int {
	visited := make(map[int]struct{})
	result := []int{}
	for _, id := range ids {
		dg.collect(id, dg.dependents, visited, &result)
	}
	return result
}

// GetAllPrecedents returns every cell the given cells transitively read
func (dg *DependencyGraph) GetAllPrecedents(ids ...int) []int {
	visited := make(map[int]struct{})
	result := []int{}
	for _, id := range ids {
		dg.collect(id, dg.precedents, visited, &result)
	}
	return result
}

// collect walks the adjacency iteratively so deep chains do not grow the
// stack
func (dg *DependencyGraph) collect(start int, adjacency [][]int, visited map[int]struct{}, result *[]int) {
	stack := slices.Clone(adjacency[start])
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[id]; seen {
			continue
		}
		visited[id] = struct{}{}
		*result = append(*result, id)
		stack = append(stack, adjacency[id]...)
	}
}

// All iterates over the live cells in address order
func (dg *DependencyGraph) All() iter.Seq2[int, *Cell] {
	ids := make([]int, 0, len(dg.index))
	for _, id := range dg.index {
		ids = append(ids, id)
	}
	dg.sortByAddress(ids)
	return func(yield func(int, *Cell) bool) {
		for _, id := range ids {
			if dg.cells[id] == nil {
				continue
			}
			if !yield(id, dg.cells[id]) {
				return
			}
		}
	}
}

// sortByAddress sorts indexes by the address of their cells
func (dg *DependencyGraph) sortByAddress(ids []int) {
	slices.SortFunc(ids, func(a, b int) int {
		return dg.cells[a].Address.Compare(dg.cells[b].Address)
	})
}

// addresses maps indexes to addresses, sorted
func (dg *DependencyGraph) addresses(ids []int) []Address {
	out := make([]Address, 0, len(ids))
	for _, id := range ids {
		out = append(out, dg.cells[id].Address)
	}
	slices.SortFunc(out, Address.Compare)
	return out
}
