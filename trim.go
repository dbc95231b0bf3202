package focus

import (
	"fmt"
)

// TrimGraph reduces the model to what is needed to recompute the outputs
// from the inputs. inputs become literal cells holding their current
// values, formula cells the inputs cannot influence are frozen to their
// values, and every cell the outputs no longer reach is removed. the
// outputs keep their formulas.
//
// every input must feed at least one output without passing through another
// input; otherwise nothing is changed and the error wraps
// ErrNoDependentOutputs.
func (e *Engine) TrimGraph(inputs, outputs []string) error {
	outputAddrs, err := e.expandAll(outputs)
	if err != nil {
		return err
	}
	inputAddrs, err := e.expandAll(inputs)
	if err != nil {
		return err
	}

	outputIDs, err := e.materialize(outputAddrs)
	if err != nil {
		return err
	}
	if err := e.evaluateCells(outputIDs, e.cycles); err != nil {
		return err
	}

	inputSet := make(map[int]struct{}, len(inputAddrs))
	inputIDs := make([]int, 0, len(inputAddrs))
	for _, addr := range inputAddrs {
		_, id, ok := e.graph.Lookup(addr)
		if !ok {
			return WrapApplicationError(InvalidArgument, fmt.Sprintf("input %s", addr), ErrNoDependentOutputs)
		}
		inputSet[id] = struct{}{}
		inputIDs = append(inputIDs, id)
	}
	outputSet := toSet(outputIDs)

	influenced := toSet(e.graph.GetAllDependents(inputIDs...))
	for _, id := range inputIDs {
		influenced[id] = struct{}{}
	}

	// walk back from the outputs, stopping at inputs and at formulas the
	// inputs cannot change
	kept := make(map[int]struct{})
	demote := []int{}
	queue := append([]int(nil), outputIDs...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := kept[id]; seen {
			continue
		}
		kept[id] = struct{}{}
		cell := e.graph.Cell(id)

		_, isInput := inputSet[id]
		_, isOutput := outputSet[id]
		_, isInfluenced := influenced[id]
		switch {
		case isInput:
			demote = append(demote, id)
		case cell.IsInput():
		case !isOutput && !isInfluenced:
			demote = append(demote, id)
		default:
			queue = append(queue, e.graph.DirectPrecedents(id)...)
		}
	}

	// an input the walk never reached feeds no output, or only feeds one
	// through another input. both are rejected before anything changes.
	for _, id := range inputIDs {
		if _, ok := kept[id]; !ok {
			return WrapApplicationError(InvalidArgument,
				fmt.Sprintf("input %s", e.graph.Cell(id).Address), ErrNoDependentOutputs)
		}
	}

	for _, id := range demote {
		cell := e.graph.Cell(id)
		if cell.Formula == nil {
			continue
		}
		if _, isInput := inputSet[id]; isInput {
			for _, p := range e.graph.DirectPrecedents(id) {
				if _, ok := kept[p]; ok {
					e.logger.Warn("input formula precedent is still needed by the outputs",
						"input", cell.Address.String(), "precedent", e.graph.Cell(p).Address.String())
					break
				}
			}
		}
		e.graph.ClearPrecedents(id)
		cell.demote()
	}

	removed := 0
	for id := range e.graph.All() {
		if _, ok := kept[id]; !ok {
			e.graph.Remove(id)
			removed++
		}
	}
	e.logger.Info("trimmed graph",
		"inputs", len(inputIDs), "outputs", len(outputIDs), "kept", len(kept), "removed", removed)
	return nil
}

// expandAll parses addresses and expands ranges into cells, keeping the
// first occurrence of each cell
func (e *Engine) expandAll(addresses []string) ([]Address, error) {
	seen := make(map[Address]struct{})
	out := []Address{}
	for _, address := range addresses {
		addr, err := e.parseAddress(address)
		if err != nil {
			return nil, err
		}
		for _, cell := range addr.Cells() {
			if _, ok := seen[cell]; ok {
				continue
			}
			seen[cell] = struct{}{}
			out = append(out, cell)
		}
	}
	return out, nil
}

func toSet(ids []int) map[int]struct{} {
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
