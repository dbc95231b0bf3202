package focus

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// CellSource is what a workbook reports for one cell: either formula text
// or a literal value. for formula cells Value holds the result the
// workbook last computed, when it has one.
type CellSource struct {
	Formula  string
	Value    Primitive
	HasValue bool
}

// IsFormula reports whether the cell holds a formula
func (c CellSource) IsFormula() bool {
	return c.Formula != ""
}

// Source is the workbook an engine materializes cells from. Lookup returns
// false when the address is not part of the workbook (unknown sheet); an
// empty cell on a known sheet is found with a nil value.
type Source interface {
	Lookup(addr Address) (CellSource, bool)
	Sheets() []string
	UsedRange(sheet string) (Address, bool)
	DefinedNames() map[string]Address
}

// SourceWriter is a Source that accepts values back
type SourceWriter interface {
	Source
	SetCellValue(addr Address, value Primitive) error
}

// MemorySource is an in-memory workbook, used by tests and by callers that
// build models programmatically
type MemorySource struct {
	sheets []string
	cells  map[string]map[Address]CellSource
	names  map[string]Address
}

// NewMemorySource creates an empty workbook with the given sheets
func NewMemorySource(sheets ...string) *MemorySource {
	ms := &MemorySource{
		cells: make(map[string]map[Address]CellSource),
		names: make(map[string]Address),
	}
	for _, sheet := range sheets {
		ms.AddSheet(sheet)
	}
	return ms
}

// AddSheet adds a sheet if it does not exist yet
func (ms *MemorySource) AddSheet(name string) *MemorySource {
	if _, ok := ms.cells[name]; !ok {
		ms.sheets = append(ms.sheets, name)
		ms.cells[name] = make(map[Address]CellSource)
	}
	return ms
}

// Set stores a literal or, for text starting with "=", a formula. the sheet
// is created when missing.
func (ms *MemorySource) Set(address string, value Primitive) error {
	addr, err := ParseAddress(address, "")
	if err != nil {
		return err
	}
	if addr.IsRange() {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("cannot set range %s", address))
	}
	ms.AddSheet(addr.Sheet)

	if text, ok := value.(string); ok && IsFormulaText(text) {
		ms.cells[addr.Sheet][addr] = CellSource{Formula: text}
		return nil
	}
	ms.cells[addr.Sheet][addr] = CellSource{Value: normalizeValue(value), HasValue: true}
	return nil
}

// MustSet is Set for literals known to be valid
func (ms *MemorySource) MustSet(address string, value Primitive) *MemorySource {
	if err := ms.Set(address, value); err != nil {
		panic(err)
	}
	return ms
}

// SetCached records the value the workbook last computed for a formula cell
func (ms *MemorySource) SetCached(address string, value Primitive) error {
	addr, err := ParseAddress(address, "")
	if err != nil {
		return err
	}
	src, ok := ms.cells[addr.Sheet][addr]
	if !ok || !src.IsFormula() {
		return NewApplicationError(FailedPrecondition, fmt.Sprintf("%s is not a formula cell", address))
	}
	src.Value = normalizeValue(value)
	src.HasValue = true
	ms.cells[addr.Sheet][addr] = src
	return nil
}

// DefineName adds a workbook-level defined name
func (ms *MemorySource) DefineName(name, address string) error {
	addr, err := ParseAddress(address, "")
	if err != nil {
		return err
	}
	ms.names[strings.ToUpper(name)] = addr
	return nil
}

func (ms *MemorySource) Lookup(addr Address) (CellSource, bool) {
	sheet, ok := ms.cells[addr.Sheet]
	if !ok {
		return CellSource{}, false
	}
	return sheet[addr], true
}

func (ms *MemorySource) Sheets() []string {
	return slices.Clone(ms.sheets)
}

func (ms *MemorySource) UsedRange(sheet string) (Address, bool) {
	cells, ok := ms.cells[sheet]
	if !ok || len(cells) == 0 {
		return Address{}, false
	}
	first := true
	var used Address
	for addr := range cells {
		if first {
			used = addr
			first = false
			continue
		}
		used = RangeAddress(sheet,
			min(used.StartRow, addr.StartRow), min(used.StartCol, addr.StartCol),
			max(used.EndRow, addr.EndRow), max(used.EndCol, addr.EndCol))
	}
	return used, true
}

func (ms *MemorySource) DefinedNames() map[string]Address {
	return maps.Clone(ms.names)
}

func (ms *MemorySource) SetCellValue(addr Address, value Primitive) error {
	if _, ok := ms.cells[addr.Sheet]; !ok {
		return &AddressNotFoundError{Address: addr}
	}
	ms.cells[addr.Sheet][addr] = CellSource{Value: normalizeValue(value), HasValue: true}
	return nil
}

// formulaCells lists the formula cells a source knows about, in address
// order
func formulaCells(src Source) []Address {
	var out []Address
	for _, sheet := range src.Sheets() {
		used, ok := src.UsedRange(sheet)
		if !ok {
			continue
		}
		for _, addr := range used.Cells() {
			if cs, ok := src.Lookup(addr); ok && cs.IsFormula() {
				out = append(out, addr)
			}
		}
	}
	return out
}
