package focus

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// pending collects the formula cells that must be computed before the
// targets can be read: every cell without a current value reachable
// backwards from a target. cells with a current value stop the walk.
func (e *Engine) pending(targets []int) map[int]struct{} {
	out := make(map[int]struct{})
	stack := slices.Clone(targets)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := out[id]; seen {
			continue
		}
		cell := e.graph.Cell(id)
		if cell.IsInput() || cell.Current() {
			continue
		}
		out[id] = struct{}{}
		stack = append(stack, e.graph.DirectPrecedents(id)...)
	}
	return out
}

// evaluationOrder groups the pending cells into strongly connected
// components ordered precedents first. edges run from a cell to the cells
// it reads, so Tarjan's reverse topological order is exactly that.
func (e *Engine) evaluationOrder(pending map[int]struct{}) [][]int {
	g := simple.NewDirectedGraph()
	for id := range pending {
		g.AddNode(simple.Node(id))
	}
	for id := range pending {
		for _, p := range e.graph.DirectPrecedents(id) {
			if _, ok := pending[p]; !ok || p == id {
				// self loops are detected separately, simple graphs reject them
				continue
			}
			g.SetEdge(g.NewEdge(simple.Node(id), simple.Node(p)))
		}
	}

	sccs := topo.TarjanSCC(g)
	order := make([][]int, 0, len(sccs))
	for _, scc := range sccs {
		order = append(order, e.sortedMembers(scc))
	}
	return order
}

func (e *Engine) sortedMembers(nodes []graph.Node) []int {
	ids := make([]int, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, int(n.ID()))
	}
	e.graph.sortByAddress(ids)
	return ids
}

// evaluateCells computes everything the targets need, then the targets
func (e *Engine) evaluateCells(targets []int, cfg CycleConfig) error {
	pending := e.pending(targets)
	if len(pending) == 0 {
		return nil
	}

	for _, component := range e.evaluationOrder(pending) {
		if len(component) == 1 && !e.graph.HasSelfLoop(component[0]) {
			cell := e.graph.Cell(component[0])
			value, err := e.compute(cell)
			if err != nil {
				return err
			}
			cell.setValue(value)
			continue
		}

		if !cfg.Enabled {
			return &CircularReferenceError{Cycle: e.graph.addresses(component)}
		}
		if err := e.iterate(component, cfg); err != nil {
			return err
		}
	}
	return nil
}

// iterate runs Gauss-Seidel iteration over one circular component until
// the largest change drops to the tolerance or the iteration cap is hit.
// not converging is not an error; the last values are kept.
func (e *Engine) iterate(component []int, cfg CycleConfig) error {
	cells := make([]*Cell, len(component))
	for i, id := range component {
		cells[i] = e.graph.Cell(id)
		if !cells[i].HasValue {
			cells[i].setValue(0.0)
		}
	}

	iterations := max(cfg.Iterations, 1)
	delta := math.Inf(1)
	n := 0
	for n < iterations && delta > cfg.Tolerance {
		n++
		delta = 0
		for _, cell := range cells {
			value, err := e.compute(cell)
			if err != nil {
				return err
			}
			delta = max(delta, change(cell.Value, value))
			cell.setValue(value)
		}
	}

	if delta > cfg.Tolerance {
		e.logger.Debug("circular reference did not converge",
			"cells", len(cells), "first", cells[0].Address.String(), "iterations", n, "delta", delta)
		return nil
	}
	e.logger.Debug("circular reference converged",
		"cells", len(cells), "first", cells[0].Address.String(), "iterations", n)
	return nil
}

// change measures how far a value moved between iterations. anything that
// is not a pair of numbers counts as converged only when unchanged.
func change(before, after Primitive) float64 {
	b, bok := before.(float64)
	a, aok := after.(float64)
	if bok && aok {
		return math.Abs(a - b)
	}
	if equalValues(before, after) {
		return 0
	}
	return math.Inf(1)
}
