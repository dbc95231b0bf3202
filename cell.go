package focus

import (
	"fmt"
	"strconv"
)

// Primitive represents basic spreadsheet value types.
// types:
//   - float64: numeric values (integers are converted to float64)
//   - string: text values
//   - bool: boolean values (TRUE/FALSE)
//   - nil: empty/null cells
//   - *SpreadsheetError: error values (#DIV/0!, #VALUE!, etc.)
//   - *RangeValue: the grid produced by evaluating a range address
type Primitive any

// ErrorCode represents standard spreadsheet error codes following
// Excel conventions
type ErrorCode uint8

const (
	ErrorCodeNull  ErrorCode = 1 // #NULL! - no cells in common between ranges
	ErrorCodeDiv0  ErrorCode = 2 // #DIV/0! - division by zero
	ErrorCodeValue ErrorCode = 3 // #VALUE! - wrong type of argument or operand
	ErrorCodeRef   ErrorCode = 4 // #REF! - invalid cell reference
	ErrorCodeName  ErrorCode = 5 // #NAME? - unrecognized name
	ErrorCodeNum   ErrorCode = 6 // #NUM! - number too large or small to be represented
	ErrorCodeNA    ErrorCode = 7 // #N/A - not enough arguments for function
	ErrorCodeOther ErrorCode = 8 // #ERROR! - all other errors
)

// ErrorMapper maps error code numbers to their string representations
var ErrorMapper = map[ErrorCode]string{
	ErrorCodeNull:  "#NULL!",
	ErrorCodeDiv0:  "#DIV/0!",
	ErrorCodeValue: "#VALUE!",
	ErrorCodeRef:   "#REF!",
	ErrorCodeName:  "#NAME?",
	ErrorCodeNum:   "#NUM!",
	ErrorCodeNA:    "#N/A",
	ErrorCodeOther: "#ERROR!",
}

// errorCodeByText is the reverse of ErrorMapper, used when reading cached
// workbook values and snapshots back in
var errorCodeByText = func() map[string]ErrorCode {
	m := make(map[string]ErrorCode, len(ErrorMapper))
	for code, text := range ErrorMapper {
		m[text] = code
	}
	return m
}()

// SpreadsheetError is an error value stored in a cell. it is a value, not a
// Go error returned from operations.
type SpreadsheetError struct {
	ErrorCode ErrorCode
	Message   string
}

func (e *SpreadsheetError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return ErrorMapper[e.ErrorCode]
}

// Code returns the display text of the error, e.g. #DIV/0!
func (e *SpreadsheetError) Code() string {
	return ErrorMapper[e.ErrorCode]
}

func NewSpreadsheetError(code ErrorCode, message string) *SpreadsheetError {
	if message == "" {
		message = ErrorMapper[code]
	}
	return &SpreadsheetError{
		ErrorCode: code,
		Message:   message,
	}
}

// ParseErrorValue turns display text like "#N/A" into an error value
func ParseErrorValue(text string) (*SpreadsheetError, bool) {
	code, ok := errorCodeByText[text]
	if !ok {
		return nil, false
	}
	return NewSpreadsheetError(code, ""), true
}

// RangeValue is the row-major grid of values a range address evaluates to.
type RangeValue struct {
	Address Address
	Rows    [][]Primitive
}

// Values flattens the grid in row-major order
func (r *RangeValue) Values() []Primitive {
	out := make([]Primitive, 0, r.Address.Size())
	for _, row := range r.Rows {
		out = append(out, row...)
	}
	return out
}

// Cell is a node of the dependency graph. a cell without a formula is an
// input (leaf) whose value is set directly.
type Cell struct {
	Address  Address
	Value    Primitive
	HasValue bool     // false until the cell has been evaluated or seeded
	Stale    bool     // set when a precedent changed since Value was computed
	Formula  *Formula // nil for input cells
}

// IsInput reports whether the cell is a leaf of the model
func (c *Cell) IsInput() bool {
	return c.Formula == nil
}

// Current reports whether the cached value can be returned as is
func (c *Cell) Current() bool {
	return c.HasValue && !c.Stale
}

func (c *Cell) setValue(v Primitive) {
	c.Value = v
	c.HasValue = true
	c.Stale = false
}

// demote drops the formula, keeping the last value as a literal
func (c *Cell) demote() {
	c.Formula = nil
	c.Stale = false
	if !c.HasValue {
		c.Value = nil
		c.HasValue = true
	}
}

// FormatValue renders a primitive the way value trees and the CLI show it
func FormatValue(v Primitive) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case string:
		return val
	case *SpreadsheetError:
		return val.Code()
	case *RangeValue:
		return fmt.Sprintf("%v", val.Rows)
	default:
		return fmt.Sprint(val)
	}
}

// normalizeValue converts the loosely typed values callers pass to SetValue
// into the primitive set the evaluator understands
func normalizeValue(v Primitive) Primitive {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint32:
		return float64(val)
	case float32:
		return float64(val)
	case uint64:
		return float64(val)
	default:
		return v
	}
}
