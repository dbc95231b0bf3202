package focus

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Address identifies a single cell or a rectangular range within a named
// sheet. rows and columns are zero-based; a single cell has start == end.
// the struct is comparable and used directly as a map key.
type Address struct {
	Sheet    string
	StartRow uint32
	StartCol uint32
	EndRow   uint32
	EndCol   uint32
}

// CellAddress builds a single-cell address
func CellAddress(sheet string, row, col uint32) Address {
	return Address{Sheet: sheet, StartRow: row, StartCol: col, EndRow: row, EndCol: col}
}

// RangeAddress builds a normalized range address, so start is always less
// than or equal to end
func RangeAddress(sheet string, startRow, startCol, endRow, endCol uint32) Address {
	return Address{
		Sheet:    sheet,
		StartRow: min(startRow, endRow),
		StartCol: min(startCol, endCol),
		EndRow:   max(startRow, endRow),
		EndCol:   max(startCol, endCol),
	}
}

// IsRange reports whether the address spans more than one cell
func (a Address) IsRange() bool {
	return a.StartRow != a.EndRow || a.StartCol != a.EndCol
}

// Size returns the number of cells covered
func (a Address) Size() int {
	return int(a.EndRow-a.StartRow+1) * int(a.EndCol-a.StartCol+1)
}

// Start returns the top-left cell
func (a Address) Start() Address {
	return CellAddress(a.Sheet, a.StartRow, a.StartCol)
}

// Contains checks if a single cell lies within the address
func (a Address) Contains(cell Address) bool {
	return a.Sheet == cell.Sheet &&
		cell.StartRow >= a.StartRow && cell.StartRow <= a.EndRow &&
		cell.StartCol >= a.StartCol && cell.StartCol <= a.EndCol
}

// Cells decomposes the address into single-cell addresses in row-major order
func (a Address) Cells() []Address {
	cells := make([]Address, 0, a.Size())
	for row := a.StartRow; row <= a.EndRow; row++ {
		for col := a.StartCol; col <= a.EndCol; col++ {
			cells = append(cells, CellAddress(a.Sheet, row, col))
		}
	}
	return cells
}

// CellName renders the sheet-less A1 form of the address
func (a Address) CellName() string {
	start := cellName(a.StartRow, a.StartCol)
	if !a.IsRange() {
		return start
	}
	return start + ":" + cellName(a.EndRow, a.EndCol)
}

// String renders the full address, e.g. Sheet1!A1 or Sheet1!A1:B2. this is
// the key form used by the engine's cell map.
func (a Address) String() string {
	return a.Sheet + "!" + a.CellName()
}

// Compare orders addresses by sheet, then row, then column
func (a Address) Compare(b Address) int {
	return cmp.Or(
		strings.Compare(a.Sheet, b.Sheet),
		cmp.Compare(a.StartRow, b.StartRow),
		cmp.Compare(a.StartCol, b.StartCol),
		cmp.Compare(a.EndRow, b.EndRow),
		cmp.Compare(a.EndCol, b.EndCol),
	)
}

func cellName(row, col uint32) string {
	name, err := excelize.CoordinatesToCellName(int(col)+1, int(row)+1)
	if err != nil {
		// coordinates always come from parsed names, so they are in range
		return fmt.Sprintf("R%dC%d", row+1, col+1)
	}
	return name
}

// ParseAddress parses "Sheet!A1", "'My Sheet'!A1:B2" or, when defaultSheet
// is not empty, a bare "A1". absolute markers ($) are ignored.
func ParseAddress(address, defaultSheet string) (Address, error) {
	address = strings.TrimSpace(address)
	sheet := defaultSheet
	ref := address
	if idx := strings.LastIndex(address, "!"); idx != -1 {
		sheet = unquoteSheet(address[:idx])
		ref = address[idx+1:]
	}
	if sheet == "" {
		return Address{}, NewApplicationError(InvalidArgument, fmt.Sprintf("address %q has no sheet", address))
	}

	parts := strings.Split(ref, ":")
	if len(parts) > 2 {
		return Address{}, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid range format: %s", address))
	}
	startRow, startCol, err := parseCellName(parts[0])
	if err != nil {
		return Address{}, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid address %q: %v", address, err))
	}
	if len(parts) == 1 {
		return CellAddress(sheet, startRow, startCol), nil
	}
	endRow, endCol, err := parseCellName(parts[1])
	if err != nil {
		return Address{}, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid address %q: %v", address, err))
	}
	return RangeAddress(sheet, startRow, startCol, endRow, endCol), nil
}

// MustParseAddress is ParseAddress for literals known to be valid
func MustParseAddress(address string) Address {
	a, err := ParseAddress(address, "")
	if err != nil {
		panic(err)
	}
	return a
}

func parseCellName(name string) (row, col uint32, err error) {
	c, r, err := excelize.CellNameToCoordinates(strings.ReplaceAll(name, "$", ""))
	if err != nil {
		return 0, 0, err
	}
	return uint32(r - 1), uint32(c - 1), nil
}

func unquoteSheet(name string) string {
	if len(name) >= 2 && strings.HasPrefix(name, "'") && strings.HasSuffix(name, "'") {
		return strings.ReplaceAll(name[1:len(name)-1], "''", "'")
	}
	return name
}

// quoteSheet quotes a sheet name for use inside formula text when needed
func quoteSheet(name string) string {
	for _, ch := range name {
		if !(ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9' || ch == '_' || ch == '.') {
			return "'" + strings.ReplaceAll(name, "'", "''") + "'"
		}
	}
	return name
}
