package focus

import (
	"fmt"
	"log/slog"
	"strings"
)

// CycleConfig controls how circular references are evaluated
type CycleConfig struct {
	Enabled    bool
	Iterations int
	Tolerance  float64
}

// DefaultCycleConfig has cycles disabled and the iteration limits Excel
// uses for iterative calculation
var DefaultCycleConfig = CycleConfig{
	Enabled:    false,
	Iterations: 100,
	Tolerance:  0.001,
}

// Engine turns a workbook into a lazily built dependency graph of cells and
// evaluates, focuses and validates it. an Engine is not safe for
// concurrent use.
type Engine struct {
	source    Source
	graph     *DependencyGraph
	formulas  *FormulaTable
	names     map[string]Address
	cycles    CycleConfig
	functions *BuiltInFunctions
	logger    *slog.Logger
	cacheSize int
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithLogger sets the logger used for warnings and debug output
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithCycles sets the circular reference configuration
func WithCycles(cfg CycleConfig) EngineOption {
	return func(e *Engine) {
		e.cycles = cfg
	}
}

// WithFunctions replaces the builtin function set, e.g. to fix the clock
func WithFunctions(functions *BuiltInFunctions) EngineOption {
	return func(e *Engine) {
		e.functions = functions
	}
}

// WithFormulaCacheSize sets how many parsed formulas are kept
func WithFormulaCacheSize(size int) EngineOption {
	return func(e *Engine) {
		e.cacheSize = size
	}
}

// NewEngine creates an engine over a workbook. nothing is read until a cell
// is evaluated. source may be nil for an engine that is later restored
// from a snapshot.
func NewEngine(source Source, opts ...EngineOption) *Engine {
	e := &Engine{
		source:    source,
		graph:     NewDependencyGraph(),
		names:     make(map[string]Address),
		cycles:    DefaultCycleConfig,
		functions: NewDefaultBuiltInFunctions(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if source != nil {
		for name, addr := range source.DefinedNames() {
			e.names[strings.ToUpper(name)] = addr
		}
	}
	e.formulas = NewFormulaTable(e.cacheSize, e.resolveName)
	return e
}

func (e *Engine) resolveName(name string) (Address, bool) {
	addr, ok := e.names[strings.ToUpper(name)]
	return addr, ok
}

// Cycles returns the circular reference configuration
func (e *Engine) Cycles() CycleConfig {
	return e.cycles
}

// EvalOption overrides the cycle configuration for one evaluation
type EvalOption func(*CycleConfig)

// WithIterations caps the number of fixed-point iterations
func WithIterations(n int) EvalOption {
	return func(cfg *CycleConfig) {
		cfg.Iterations = n
	}
}

// WithTolerance sets the largest change at which iteration stops
func WithTolerance(t float64) EvalOption {
	return func(cfg *CycleConfig) {
		cfg.Tolerance = t
	}
}

func (e *Engine) parseAddress(address string) (Address, error) {
	if addr, ok := e.resolveName(address); ok {
		return addr, nil
	}
	return ParseAddress(address, "")
}

// Evaluate returns the value of a cell, or a *RangeValue for a range.
// cached values are reused; anything not yet computed, or stale since a
// SetValue, is computed precedents first.
func (e *Engine) Evaluate(address string, opts ...EvalOption) (Primitive, error) {
	addr, err := e.parseAddress(address)
	if err != nil {
		return nil, err
	}
	cfg := e.cycles
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := e.evaluateAddress(addr, cfg); err != nil {
		return nil, err
	}
	return e.valueOf(addr), nil
}

func (e *Engine) evaluateAddress(addr Address, cfg CycleConfig) error {
	ids, err := e.materialize(addr.Cells())
	if err != nil {
		return err
	}
	return e.evaluateCells(ids, cfg)
}

// valueOf reads the current value of a materialized address
func (e *Engine) valueOf(addr Address) Primitive {
	if !addr.IsRange() {
		cell, _, _ := e.graph.Lookup(addr)
		return cell.Value
	}
	values := make(Values, addr.Size())
	for _, a := range addr.Cells() {
		if cell, _, ok := e.graph.Lookup(a); ok {
			values[a] = cell.Value
		}
	}
	return values.Grid(addr)
}

// materialize makes sure every given cell, and everything its formula
// needs, is in the graph. it either succeeds completely or leaves the graph
// as it was.
func (e *Engine) materialize(addrs []Address) ([]int, error) {
	var created []int
	ids := make([]int, 0, len(addrs))

	queue := append([]Address(nil), addrs...)
	for len(queue) > 0 {
		addr := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		if _, _, ok := e.graph.Lookup(addr); ok {
			continue
		}
		cell, found := e.loadCell(addr)
		if !found {
			for _, id := range created {
				e.graph.Remove(id)
			}
			return nil, &AddressNotFoundError{Address: addr}
		}
		created = append(created, e.graph.Add(cell))
		if cell.Formula != nil {
			queue = append(queue, cell.Formula.NeededCells()...)
		}
	}

	// every needed cell exists now, so edges can be wired
	for _, id := range created {
		cell := e.graph.Cell(id)
		if cell.Formula == nil {
			continue
		}
		needed := cell.Formula.NeededCells()
		precedents := make([]int, 0, len(needed))
		for _, n := range needed {
			_, pid, _ := e.graph.Lookup(n)
			precedents = append(precedents, pid)
		}
		e.graph.SetPrecedents(id, precedents)
	}
	if len(created) > 0 {
		e.logger.Debug("materialized cells", "count", len(created), "total", e.graph.Len())
	}

	for _, addr := range addrs {
		_, id, _ := e.graph.Lookup(addr)
		ids = append(ids, id)
	}
	return ids, nil
}

// loadCell builds a cell from the source
func (e *Engine) loadCell(addr Address) (*Cell, bool) {
	if e.source == nil {
		return nil, false
	}
	src, ok := e.source.Lookup(addr)
	if !ok {
		return nil, false
	}
	if src.IsFormula() {
		return &Cell{Address: addr, Formula: e.formulas.Parse(addr, src.Formula)}, true
	}
	return &Cell{Address: addr, Value: normalizeValue(src.Value), HasValue: true}, true
}

// neededValues gathers the current values of the cells a formula reads
func (e *Engine) neededValues(cell *Cell) Values {
	values := make(Values)
	for _, n := range cell.Formula.NeededCells() {
		if c, _, ok := e.graph.Lookup(n); ok {
			values[n] = c.Value
		}
	}
	return values
}

// compute applies a cell's formula to the current values of its precedents
// without storing the result
func (e *Engine) compute(cell *Cell) (Primitive, error) {
	return cell.Formula.EvalWith(e.neededValues(cell), e.functions)
}

// SetValue overrides the value of a cell, or of every cell of a range. a
// formula cell becomes an input. cells that depend on it are marked stale
// and recomputed on their next evaluation.
//
// for a range, value may be a *RangeValue, a [][]Primitive grid, a flat
// []Primitive in row-major order, or a single value stored in every cell.
func (e *Engine) SetValue(address string, value Primitive) error {
	addr, err := e.parseAddress(address)
	if err != nil {
		return err
	}
	cells := addr.Cells()
	values, err := spreadValues(addr, value)
	if err != nil {
		return err
	}
	ids, err := e.materialize(cells)
	if err != nil {
		return err
	}

	changed := []int{}
	for i, id := range ids {
		cell := e.graph.Cell(id)
		v := normalizeValue(values[i])
		if cell.IsInput() && cell.Current() && equalValues(cell.Value, v) {
			continue
		}
		if cell.Formula != nil {
			e.graph.ClearPrecedents(id)
			cell.Formula = nil
		}
		cell.setValue(v)
		changed = append(changed, id)
	}
	for _, id := range e.graph.GetAllDependents(changed...) {
		if cell := e.graph.Cell(id); cell.Formula != nil {
			cell.Stale = true
		}
	}
	return nil
}

func spreadValues(addr Address, value Primitive) ([]Primitive, error) {
	size := addr.Size()
	switch v := value.(type) {
	case *RangeValue:
		return spreadValues(addr, v.Rows)
	case [][]Primitive:
		flat := make([]Primitive, 0, size)
		for _, row := range v {
			flat = append(flat, row...)
		}
		if len(v) != int(addr.EndRow-addr.StartRow+1) || len(flat) != size {
			return nil, NewApplicationError(InvalidArgument, fmt.Sprintf("value shape does not match %s", addr))
		}
		return flat, nil
	case []Primitive:
		if len(v) != size {
			return nil, NewApplicationError(InvalidArgument, fmt.Sprintf("%d values given for %d cells of %s", len(v), size, addr))
		}
		return v, nil
	}
	flat := make([]Primitive, size)
	for i := range flat {
		flat[i] = value
	}
	return flat, nil
}

func equalValues(a, b Primitive) bool {
	ae, aIsErr := a.(*SpreadsheetError)
	be, bIsErr := b.(*SpreadsheetError)
	if aIsErr || bIsErr {
		return aIsErr && bIsErr && ae.ErrorCode == be.ErrorCode
	}
	if _, isRange := a.(*RangeValue); isRange {
		return false
	}
	return a == b
}

// Cell returns the materialized cell at an address, if present
func (e *Engine) Cell(address string) (*Cell, bool) {
	addr, err := e.parseAddress(address)
	if err != nil {
		return nil, false
	}
	cell, _, ok := e.graph.Lookup(addr)
	return cell, ok
}

// CellMap returns the materialized cells keyed by their full address
func (e *Engine) CellMap() map[string]*Cell {
	out := make(map[string]*Cell, e.graph.Len())
	for _, cell := range e.graph.All() {
		out[cell.Address.String()] = cell
	}
	return out
}

// Len returns the number of materialized cells
func (e *Engine) Len() int {
	return e.graph.Len()
}

// Predecessors returns the cells a cell reads directly
func (e *Engine) Predecessors(address string) ([]Address, error) {
	id, err := e.lookupOrMaterialize(address)
	if err != nil {
		return nil, err
	}
	return e.graph.addresses(e.graph.DirectPrecedents(id)), nil
}

// Successors returns the materialized cells that read a cell directly
func (e *Engine) Successors(address string) ([]Address, error) {
	id, err := e.lookupOrMaterialize(address)
	if err != nil {
		return nil, err
	}
	return e.graph.addresses(e.graph.DirectDependents(id)), nil
}

func (e *Engine) lookupOrMaterialize(address string) (int, error) {
	addr, err := e.parseAddress(address)
	if err != nil {
		return -1, err
	}
	if addr.IsRange() {
		return -1, NewApplicationError(InvalidArgument, fmt.Sprintf("%s is a range, expected a cell", address))
	}
	ids, err := e.materialize([]Address{addr})
	if err != nil {
		return -1, err
	}
	return ids[0], nil
}

// Stats summarizes the materialized model
type Stats struct {
	Cells    int `json:"cells"`
	Formulas int `json:"formulas"`
	Inputs   int `json:"inputs"`
	Edges    int `json:"edges"`
	Stale    int `json:"stale"`
	Volatile int `json:"volatile"`
}

// Stats counts the cells and edges of the materialized model
func (e *Engine) Stats() Stats {
	stats := Stats{Cells: e.graph.Len(), Edges: e.graph.EdgeCount()}
	for _, cell := range e.graph.All() {
		if cell.IsInput() {
			stats.Inputs++
			continue
		}
		stats.Formulas++
		if cell.Stale {
			stats.Stale++
		}
		if cell.Formula.Volatile() {
			stats.Volatile++
		}
	}
	return stats
}
