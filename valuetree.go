package focus

import (
	"errors"
	"iter"
	"slices"
	"strings"
)

// ValueTree lists a cell and everything it depends on, one line per cell
// in pre-order. the first line is "<address> = <value>"; each level of
// depth adds one leading space and children are sorted by address. a cell
// already on the current path is shown as "<address> <- cycle" and not
// expanded again. the sequence is lazy and can be iterated more than once.
func (e *Engine) ValueTree(address string) (iter.Seq[string], error) {
	addr, err := e.parseAddress(address)
	if err != nil {
		return nil, err
	}
	// a circular model without iteration still has a tree, its cells just
	// have no values
	if err := e.evaluateAddress(addr, e.cycles); err != nil && !errors.Is(err, ErrCircularReference) {
		return nil, err
	}
	roots := make([]int, 0, addr.Size())
	for _, cell := range addr.Cells() {
		_, id, _ := e.graph.Lookup(cell)
		roots = append(roots, id)
	}
	return func(yield func(string) bool) {
		for _, root := range roots {
			if !e.walkTree(root, 0, map[int]struct{}{}, yield) {
				return
			}
		}
	}, nil
}

// walkTree yields the lines of one subtree. it returns false once the
// consumer stops.
func (e *Engine) walkTree(id, depth int, path map[int]struct{}, yield func(string) bool) bool {
	cell := e.graph.Cell(id)
	if cell == nil {
		// removed by a later trim
		return true
	}
	indent := strings.Repeat(" ", depth)
	if _, onPath := path[id]; onPath {
		return yield(indent + cell.Address.String() + " <- cycle")
	}
	if !yield(indent + cell.Address.String() + " = " + FormatValue(cell.Value)) {
		return false
	}

	path[id] = struct{}{}
	defer delete(path, id)
	children := slices.Clone(e.graph.DirectPrecedents(id))
	e.graph.sortByAddress(children)
	for _, child := range children {
		if !e.walkTree(child, depth+1, path, yield) {
			return false
		}
	}
	return true
}
