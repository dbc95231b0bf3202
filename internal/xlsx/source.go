// Package xlsx reads workbooks from .xlsx files as a focus.Source
package xlsx

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	focus "github.com/vogtb/go-spreadsheet/focus"
)

// Source serves cells from an excelize workbook. formula cells report the
// value the workbook last computed, when the file carries one.
type Source struct {
	file   *excelize.File
	sheets []string
	known  map[string]struct{}
}

// Open opens a workbook file
func Open(path string) (*Source, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	return New(f), nil
}

// New wraps an already opened workbook
func New(f *excelize.File) *Source {
	s := &Source{file: f, known: make(map[string]struct{})}
	for _, sheet := range f.GetSheetList() {
		s.sheets = append(s.sheets, sheet)
		s.known[sheet] = struct{}{}
	}
	return s
}

// File returns the underlying workbook
func (s *Source) File() *excelize.File {
	return s.file
}

// Close releases the workbook
func (s *Source) Close() error {
	return s.file.Close()
}

// SaveAs writes the workbook, including values set through SetCellValue
func (s *Source) SaveAs(path string) error {
	return s.file.SaveAs(path)
}

func (s *Source) Lookup(addr focus.Address) (focus.CellSource, bool) {
	if _, ok := s.known[addr.Sheet]; !ok {
		return focus.CellSource{}, false
	}
	name := addr.CellName()

	formula, err := s.file.GetCellFormula(addr.Sheet, name)
	if err != nil {
		return focus.CellSource{}, false
	}
	value, hasValue := s.cellValue(addr.Sheet, name)
	if formula != "" {
		if !strings.HasPrefix(formula, "=") {
			formula = "=" + formula
		}
		return focus.CellSource{Formula: formula, Value: value, HasValue: hasValue}, true
	}
	return focus.CellSource{Value: value, HasValue: hasValue}, true
}

// cellValue converts the stored (raw) cell value to a primitive
func (s *Source) cellValue(sheet, cell string) (focus.Primitive, bool) {
	raw, err := s.file.GetCellValue(sheet, cell, excelize.Options{RawCellValue: true})
	if err != nil || raw == "" {
		return nil, false
	}
	cellType, err := s.file.GetCellType(sheet, cell)
	if err != nil {
		cellType = excelize.CellTypeUnset
	}

	switch cellType {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "TRUE"), true
	case excelize.CellTypeError:
		if errValue, ok := focus.ParseErrorValue(raw); ok {
			return errValue, true
		}
		return raw, true
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula:
		// shared strings are resolved even for raw values
		return raw, true
	}
	if num, err := strconv.ParseFloat(raw, 64); err == nil {
		return num, true
	}
	if errValue, ok := focus.ParseErrorValue(raw); ok {
		return errValue, true
	}
	return raw, true
}

func (s *Source) Sheets() []string {
	return append([]string(nil), s.sheets...)
}

func (s *Source) UsedRange(sheet string) (focus.Address, bool) {
	if _, ok := s.known[sheet]; !ok {
		return focus.Address{}, false
	}
	used, found := s.scanUsedRange(sheet)

	// the dimension record also covers formula cells without a cached
	// value, which the row scan cannot see
	dim, err := s.file.GetSheetDimension(sheet)
	if err != nil || dim == "" {
		return used, found
	}
	if !strings.Contains(dim, ":") {
		dim = dim + ":" + dim
	}
	declared, err := focus.ParseAddress(dim, sheet)
	if err != nil {
		return used, found
	}
	if !found {
		return declared, true
	}
	return focus.RangeAddress(sheet,
		min(used.StartRow, declared.StartRow), min(used.StartCol, declared.StartCol),
		max(used.EndRow, declared.EndRow), max(used.EndCol, declared.EndCol)), true
}

// scanUsedRange computes the used range from the rows
func (s *Source) scanUsedRange(sheet string) (focus.Address, bool) {
	rows, err := s.file.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil || len(rows) == 0 {
		return focus.Address{}, false
	}
	maxCol := 0
	for _, row := range rows {
		maxCol = max(maxCol, len(row))
	}
	if maxCol == 0 {
		return focus.Address{}, false
	}
	return focus.RangeAddress(sheet, 0, 0, uint32(len(rows)-1), uint32(maxCol-1)), true
}

func (s *Source) DefinedNames() map[string]focus.Address {
	names := make(map[string]focus.Address)
	for _, dn := range s.file.GetDefinedName() {
		ref := strings.TrimPrefix(dn.RefersTo, "=")
		addr, err := focus.ParseAddress(ref, "")
		if err != nil {
			// constants and formulas are not cell references
			continue
		}
		names[dn.Name] = addr
	}
	return names
}

func (s *Source) SetCellValue(addr focus.Address, value focus.Primitive) error {
	if _, ok := s.known[addr.Sheet]; !ok {
		return &focus.AddressNotFoundError{Address: addr}
	}
	switch v := value.(type) {
	case *focus.SpreadsheetError:
		return s.file.SetCellValue(addr.Sheet, addr.CellName(), v.Code())
	case nil:
		return s.file.SetCellValue(addr.Sheet, addr.CellName(), "")
	}
	return s.file.SetCellValue(addr.Sheet, addr.CellName(), value)
}

var _ focus.SourceWriter = (*Source)(nil)
