package focus

import "iter"

// Range represents a lazy range type for formula evaluation
type Range interface {
	GetBounds() Address
	IterateValues() iter.Seq[Primitive]
}

// GetBounds returns the range boundaries
func (r *RangeValue) GetBounds() Address {
	return r.Address
}

// IterateValues returns an iterator over the values in row-major order.
// empty cells yield nil.
func (r *RangeValue) IterateValues() iter.Seq[Primitive] {
	return func(yield func(Primitive) bool) {
		for _, row := range r.Rows {
			for _, v := range row {
				if !yield(v) {
					return
				}
			}
		}
	}
}

// Values maps single-cell addresses to their current values. it is what a
// formula reads while being evaluated.
type Values map[Address]Primitive

// Grid assembles the row-major grid of values covered by a range
func (v Values) Grid(addr Address) *RangeValue {
	rows := make([][]Primitive, 0, addr.EndRow-addr.StartRow+1)
	for row := addr.StartRow; row <= addr.EndRow; row++ {
		line := make([]Primitive, 0, addr.EndCol-addr.StartCol+1)
		for col := addr.StartCol; col <= addr.EndCol; col++ {
			line = append(line, v[CellAddress(addr.Sheet, row, col)])
		}
		rows = append(rows, line)
	}
	return &RangeValue{Address: addr, Rows: rows}
}
