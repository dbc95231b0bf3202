package focus

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/montanaflynn/stats"
)

// ValidationCategory groups validation problems
type ValidationCategory string

const (
	CategoryMismatch       ValidationCategory = "mismatch"
	CategoryException      ValidationCategory = "exception"
	CategoryNotImplemented ValidationCategory = "not-implemented"
)

// Mismatch describes one cell that failed validation
type Mismatch struct {
	Address  string    `json:"address"`
	Formula  string    `json:"formula,omitempty"`
	Expected Primitive `json:"expected"`
	Computed Primitive `json:"computed"`
	Error    string    `json:"error,omitempty"`
}

// ValidationReport maps each category to the failing cells keyed by
// address. an empty report means every target matched.
type ValidationReport map[ValidationCategory]map[string]Mismatch

func (r ValidationReport) add(category ValidationCategory, m Mismatch) {
	if r[category] == nil {
		r[category] = make(map[string]Mismatch)
	}
	r[category][m.Address] = m
}

// OK reports whether validation found no problems
func (r ValidationReport) OK() bool {
	return len(r) == 0
}

// Count returns the number of failing cells across all categories
func (r ValidationReport) Count() int {
	n := 0
	for _, entries := range r {
		n += len(entries)
	}
	return n
}

// Entries lists the problems of a category in address order
func (r ValidationReport) Entries(category ValidationCategory) []Mismatch {
	out := make([]Mismatch, 0, len(r[category]))
	for _, m := range r[category] {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b Mismatch) int {
		return compareAddressStrings(a.Address, b.Address)
	})
	return out
}

// DeviationSummary describes the numeric size of the mismatches
type DeviationSummary struct {
	Count  int     `json:"count"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// Summary computes statistics over the absolute deviations of numeric
// mismatches
func (r ValidationReport) Summary() DeviationSummary {
	var deviations stats.Float64Data
	for _, m := range r[CategoryMismatch] {
		expected, eok := m.Expected.(float64)
		computed, cok := m.Computed.(float64)
		if eok && cok {
			deviations = append(deviations, math.Abs(expected-computed))
		}
	}
	if len(deviations) == 0 {
		return DeviationSummary{}
	}
	summary := DeviationSummary{Count: len(deviations)}
	summary.Max, _ = deviations.Max()
	summary.Mean, _ = deviations.Mean()
	summary.Median, _ = deviations.Median()
	return summary
}

type validateConfig struct {
	outputs    []string
	tolerance  float64
	raise      bool
	verifyTree bool
}

// ValidateOption configures ValidateCalcs
type ValidateOption func(*validateConfig)

// WithOutputs limits validation to the given cells or ranges
func WithOutputs(outputs ...string) ValidateOption {
	return func(cfg *validateConfig) {
		cfg.outputs = append(cfg.outputs, outputs...)
	}
}

// WithValidationTolerance sets the largest absolute numeric difference
// still accepted as a match
func WithValidationTolerance(t float64) ValidateOption {
	return func(cfg *validateConfig) {
		cfg.tolerance = t
	}
}

// WithRaiseExceptions makes validation stop at the first problem and return
// it as an error
func WithRaiseExceptions() ValidateOption {
	return func(cfg *validateConfig) {
		cfg.raise = true
	}
}

// WithVerifyTree also validates every formula cell the targets depend on
func WithVerifyTree() ValidateOption {
	return func(cfg *validateConfig) {
		cfg.verifyTree = true
	}
}

// DefaultValidationTolerance is used when no tolerance is given
const DefaultValidationTolerance = 0.001

// ValidateCalcs recomputes formula cells and compares them with the values
// the workbook reported, or with the cached values when the workbook has
// none. cell values, staleness and formulas are left as they were; cells
// first referenced here are materialized like any lazy read.
func (e *Engine) ValidateCalcs(opts ...ValidateOption) (ValidationReport, error) {
	cfg := validateConfig{tolerance: DefaultValidationTolerance}
	for _, opt := range opts {
		opt(&cfg)
	}

	targets, err := e.validationTargets(cfg.outputs)
	if err != nil {
		return nil, err
	}

	report := ValidationReport{}
	seen := make(map[Address]struct{})
	for len(targets) > 0 {
		addr := targets[0]
		targets = targets[1:]
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}

		category, mismatch, precedents := e.validateCell(addr, cfg.tolerance)
		if category != "" {
			if cfg.raise {
				return report, validationError(category, mismatch)
			}
			report.add(category, mismatch)
		}
		if cfg.verifyTree {
			targets = append(targets, precedents...)
		}
	}

	if !report.OK() {
		e.logger.Info("validation found problems",
			"mismatch", len(report[CategoryMismatch]),
			"exception", len(report[CategoryException]),
			"not-implemented", len(report[CategoryNotImplemented]))
	}
	return report, nil
}

func (e *Engine) validationTargets(outputs []string) ([]Address, error) {
	if len(outputs) > 0 {
		return e.expandAll(outputs)
	}
	if e.source != nil {
		return formulaCells(e.source), nil
	}
	targets := []Address{}
	for _, cell := range e.graph.All() {
		if cell.Formula != nil {
			targets = append(targets, cell.Address)
		}
	}
	return targets, nil
}

// validateCell checks one cell. it returns the problem category (empty when
// the cell is fine) and the formula precedents for tree verification.
func (e *Engine) validateCell(addr Address, tolerance float64) (ValidationCategory, Mismatch, []Address) {
	mismatch := Mismatch{Address: addr.String()}

	ids, err := e.materialize([]Address{addr})
	if err != nil {
		mismatch.Error = err.Error()
		return CategoryException, mismatch, nil
	}
	cell := e.graph.Cell(ids[0])
	if cell.Formula == nil {
		return "", mismatch, nil
	}
	mismatch.Formula = cell.Formula.Text

	var precedents []Address
	for _, p := range e.graph.DirectPrecedents(ids[0]) {
		if e.graph.Cell(p).Formula != nil {
			precedents = append(precedents, e.graph.Cell(p).Address)
		}
	}

	// everything the formula reads must have a value before it is re-applied.
	// cells brought up to date here get their cached state back afterwards.
	saved := e.saveStates(e.pending(ids))
	defer e.restoreStates(saved)
	if err := e.evaluateCells(ids, e.cycles); err != nil {
		mismatch.Error = err.Error()
		return categoryOf(err), mismatch, precedents
	}

	expected := cell.Value
	if e.source != nil {
		if src, ok := e.source.Lookup(addr); ok && src.IsFormula() && src.HasValue {
			expected = normalizeValue(src.Value)
		}
	}
	computed, err := e.compute(cell)
	if err != nil {
		mismatch.Error = err.Error()
		return categoryOf(err), mismatch, precedents
	}

	mismatch.Expected = expected
	mismatch.Computed = computed
	if !valuesMatch(expected, computed, tolerance) {
		return CategoryMismatch, mismatch, precedents
	}
	return "", mismatch, precedents
}

// cellState is the cached part of a cell
type cellState struct {
	value    Primitive
	hasValue bool
	stale    bool
}

func (e *Engine) saveStates(ids map[int]struct{}) map[int]cellState {
	states := make(map[int]cellState, len(ids))
	for id := range ids {
		cell := e.graph.Cell(id)
		states[id] = cellState{value: cell.Value, hasValue: cell.HasValue, stale: cell.Stale}
	}
	return states
}

func (e *Engine) restoreStates(states map[int]cellState) {
	for id, state := range states {
		cell := e.graph.Cell(id)
		cell.Value, cell.HasValue, cell.Stale = state.value, state.hasValue, state.stale
	}
}

func categoryOf(err error) ValidationCategory {
	if errors.Is(err, ErrUnsupportedFormula) {
		return CategoryNotImplemented
	}
	return CategoryException
}

func validationError(category ValidationCategory, m Mismatch) error {
	if m.Error != "" {
		return WrapApplicationError(FailedPrecondition, fmt.Sprintf("%s at %s", category, m.Address), errors.New(m.Error))
	}
	return NewApplicationError(FailedPrecondition, fmt.Sprintf("%s at %s: expected %s, computed %s",
		category, m.Address, FormatValue(m.Expected), FormatValue(m.Computed)))
}

// valuesMatch compares two values, numbers within an absolute tolerance.
// an empty value matches zero, which is what a formula reading an empty
// cell produces.
func valuesMatch(expected, computed Primitive, tolerance float64) bool {
	if expected == nil {
		expected = 0.0
	}
	if computed == nil {
		computed = 0.0
	}
	e, eok := expected.(float64)
	c, cok := computed.(float64)
	if eok && cok {
		return math.Abs(e-c) <= tolerance
	}
	return equalValues(expected, computed)
}

// ValidateSerialized checks that the model survives a snapshot round trip:
// the outputs recomputed by a fresh engine restored from a snapshot must
// equal the values computed here. with no outputs, every formula cell in
// the model is checked. cells that fail to evaluate are reported with
// their error instead of aborting the check.
func (e *Engine) ValidateSerialized(outputs ...string) (map[string]Mismatch, error) {
	targets, err := e.expandAll(outputs)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		for _, cell := range e.graph.All() {
			if cell.Formula != nil {
				targets = append(targets, cell.Address)
			}
		}
	}

	mismatches := make(map[string]Mismatch)
	checked := make([]Address, 0, len(targets))
	for _, addr := range targets {
		if err := e.evaluateAddress(addr, e.cycles); err != nil {
			key := addr.String()
			mismatches[key] = Mismatch{Address: key, Error: err.Error()}
			continue
		}
		checked = append(checked, addr)
	}

	data, err := e.MarshalSnapshot(FormatMsgpack)
	if err != nil {
		return nil, err
	}
	restored := NewEngine(nil, WithLogger(e.logger), WithCycles(e.cycles), WithFunctions(e.functions))
	if err := restored.RestoreSnapshot(data, FormatMsgpack); err != nil {
		return nil, err
	}
	// every restored formula runs again instead of returning its decoded value
	for _, cell := range restored.graph.All() {
		if cell.Formula != nil {
			cell.Stale = true
		}
	}

	// circular cells restart from their converged values, so they may move
	// by up to the iteration tolerance
	tolerance := 0.0
	if e.cycles.Enabled {
		tolerance = e.cycles.Tolerance
	}
	for _, addr := range checked {
		key := addr.String()
		expected := e.valueOf(addr)
		computed, err := restored.Evaluate(key)
		if err != nil {
			mismatches[key] = Mismatch{Address: key, Expected: expected, Error: err.Error()}
			continue
		}
		if !valuesMatch(expected, computed, tolerance) {
			mismatches[key] = Mismatch{Address: key, Expected: expected, Computed: computed}
		}
	}
	return mismatches, nil
}

// compareAddressStrings orders full address strings by their parsed
// position, falling back to text order
func compareAddressStrings(a, b string) int {
	aa, aerr := ParseAddress(a, "")
	ba, berr := ParseAddress(b, "")
	if aerr != nil || berr != nil {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	return aa.Compare(ba)
}
