package focus

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
)

// Clock interface provides time functionality for testing
type Clock interface {
	Now() time.Time
}

// WallClock is the default implementation using system time
type WallClock struct{}

func (w *WallClock) Now() time.Time {
	return time.Now()
}

// RandomGenerator interface provides random number generation for testing
type RandomGenerator interface {
	Float64() float64
}

// DefaultRandomGenerator uses the standard library's rand package
type DefaultRandomGenerator struct{}

func (d *DefaultRandomGenerator) Float64() float64 {
	return rand.Float64()
}

// BuiltInFunctions contains all spreadsheet built-in functions
type BuiltInFunctions struct {
	clock Clock
	rng   RandomGenerator
}

// NewDefaultBuiltInFunctions creates a BuiltInFunctions with default
// implementations
func NewDefaultBuiltInFunctions() *BuiltInFunctions {
	return &BuiltInFunctions{
		clock: &WallClock{},
		rng:   &DefaultRandomGenerator{},
	}
}

// NewBuiltInFunctions creates a BuiltInFunctions with the given clock and
// random source
func NewBuiltInFunctions(clock Clock, rng RandomGenerator) *BuiltInFunctions {
	return &BuiltInFunctions{clock: clock, rng: rng}
}

// checkForError returns the error if value is a *SpreadsheetError, nil otherwise
func checkForError(value Primitive) *SpreadsheetError {
	if err, ok := value.(*SpreadsheetError); ok {
		return err
	}
	return nil
}

// Call invokes a built-in function by name with the given arguments. a
// function the evaluator does not know returns an *UnsupportedFormulaError,
// which is a Go error rather than a cell value.
func (bf *BuiltInFunctions) Call(name string, args ...any) (Primitive, error) {
	switch strings.ToUpper(name) {
	case "SUM":
		return bf.SUM(args...)
	case "PRODUCT":
		return bf.PRODUCT(args...)
	case "AVERAGE":
		return bf.AVERAGE(args...)
	case "AVERAGEA":
		return bf.AVERAGEA(args...)
	case "COUNT":
		return bf.COUNT(args...)
	case "COUNTA":
		return bf.COUNTA(args...)
	case "MAX":
		return bf.MAX(args...)
	case "MIN":
		return bf.MIN(args...)
	case "MEDIAN":
		return bf.MEDIAN(args...)
	case "MODE":
		return bf.MODE(args...)
	case "STDEV":
		return bf.STDEV(args...)
	case "VAR":
		return bf.VAR(args...)
	case "IF":
		return bf.IF(args...)
	case "IFERROR":
		return bf.IFERROR(args...)
	case "ISERROR":
		return bf.ISERROR(args...)
	case "ISBLANK":
		return bf.ISBLANK(args...)
	case "AND":
		return bf.AND(args...)
	case "OR":
		return bf.OR(args...)
	case "NOT":
		return bf.NOT(args...)
	case "CONCATENATE":
		return bf.CONCATENATE(args...)
	case "LEN":
		return bf.LEN(args...)
	case "UPPER":
		return bf.UPPER(args...)
	case "LOWER":
		return bf.LOWER(args...)
	case "TRIM":
		return bf.TRIM(args...)
	case "ABS":
		return bf.ABS(args...)
	case "ROUND":
		return bf.ROUND(args...)
	case "FLOOR":
		return bf.FLOOR(args...)
	case "CEILING":
		return bf.CEILING(args...)
	case "SQRT":
		return bf.SQRT(args...)
	case "POWER":
		return bf.POWER(args...)
	case "MOD":
		return bf.MOD(args...)
	case "PI":
		return bf.PI(args...)
	case "NOW":
		return bf.NOW(args...)
	case "TODAY":
		return bf.TODAY(args...)
	case "RAND":
		return bf.RAND(args...)
	default:
		return nil, &UnsupportedFormulaError{Formula: name, Reason: fmt.Sprintf("unknown function %s", name)}
	}
}

// IsSupportedFunction reports whether Call knows the function
func (bf *BuiltInFunctions) IsSupportedFunction(name string) bool {
	_, err := bf.Call(name)
	return !errors.Is(err, ErrUnsupportedFormula)
}

// collectNumbers gathers the numeric values of the arguments. errors in
// direct arguments and range members propagate; text inside ranges is
// skipped.
func collectNumbers(args []any) ([]float64, *SpreadsheetError) {
	values := []float64{}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}

		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if err := checkForError(value); err != nil {
					return nil, err
				}
				if _, isNum := value.(float64); !isNum {
					continue
				}
				if num, ok := toNumber(value); ok && !math.IsNaN(num) {
					values = append(values, num)
				}
			}
		} else if num, ok := toNumber(arg); ok && !math.IsNaN(num) {
			values = append(values, num)
		}
	}
	return values, nil
}

func (bf *BuiltInFunctions) SUM(args ...any) (Primitive, error) {
	values, err := collectNumbers(args)
	if err != nil {
		return nil, err
	}
	sum := 0.0
	for _, num := range values {
		sum += num
	}
	rounded, _ := strconv.ParseFloat(fmt.Sprintf("%.15f", sum), 64)
	return rounded, nil
}

func (bf *BuiltInFunctions) PRODUCT(args ...any) (Primitive, error) {
	values, err := collectNumbers(args)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return 0.0, nil
	}
	product := 1.0
	for _, num := range values {
		product *= num
	}
	return product, nil
}

func (bf *BuiltInFunctions) AVERAGE(args ...any) (Primitive, error) {
	values, err := collectNumbers(args)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}
	mean, _ := stats.Mean(values)
	return mean, nil
}

func (bf *BuiltInFunctions) AVERAGEA(args ...any) (Primitive, error) {
	sum := 0.0
	count := 0

	// helper function to process a single value
	processValue := func(value Primitive) *SpreadsheetError {
		// nil values (empty cells) are ignored - only from Range iteration
		if value == nil {
			return nil
		}
		if err := checkForError(value); err != nil {
			return err
		}
		// all non-empty values count, only numbers and booleans add to the sum
		switch v := value.(type) {
		case float64:
			sum += v
			count++
		case bool:
			if v {
				sum += 1
			}
			count++
		case string:
			count++
		}
		return nil
	}
	for _, arg := range args {
		if r, ok := arg.(Range); ok {
			for value := range r.IterateValues() {
				if err := processValue(value); err != nil {
					return nil, err
				}
			}
		} else if err := processValue(arg); err != nil {
			return nil, err
		}
	}

	if count == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "AVERAGEA has no values")
	}
	return sum / float64(count), nil
}

func (bf *BuiltInFunctions) COUNT(args ...any) (Primitive, error) {
	count := 0
	for _, arg := range args {
		// direct args that are errors should propagate
		if err := checkForError(arg); err != nil {
			return nil, err
		}

		if r, ok := arg.(Range); ok {
			// only numbers are counted; errors inside ranges are skipped
			for value := range r.IterateValues() {
				if _, ok := value.(float64); ok {
					count++
				}
			}
		} else if _, ok := arg.(float64); ok {
			count++
		}
	}
	return float64(count), nil
}

func (bf *BuiltInFunctions) COUNTA(args ...any) (Primitive, error) {
	count := 0
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}

		if r, ok := arg.(Range); ok {
			// errors count as non-empty cells
			for value := range r.IterateValues() {
				if value != nil {
					count++
				}
			}
		} else {
			count++
		}
	}
	return float64(count), nil
}

func (bf *BuiltInFunctions) MAX(args ...any) (Primitive, error) {
	values, err := collectNumbers(args)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return 0.0, nil
	}
	return slices.Max(values), nil
}

func (bf *BuiltInFunctions) MIN(args ...any) (Primitive, error) {
	values, err := collectNumbers(args)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return 0.0, nil
	}
	return slices.Min(values), nil
}

func (bf *BuiltInFunctions) MEDIAN(args ...any) (Primitive, error) {
	values, err := collectNumbers(args)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "MEDIAN has no numeric values")
	}
	median, statsErr := stats.Median(values)
	if statsErr != nil {
		return nil, NewSpreadsheetError(ErrorCodeNum, statsErr.Error())
	}
	return median, nil
}

func (bf *BuiltInFunctions) MODE(args ...any) (Primitive, error) {
	values, err := collectNumbers(args)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "MODE has no numeric values")
	}
	modes, statsErr := stats.Mode(values)
	if statsErr != nil {
		return nil, NewSpreadsheetError(ErrorCodeNum, statsErr.Error())
	}
	// no repeated value, or a single value that cannot repeat
	if len(modes) == 0 || len(values) == 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "MODE: no value appears more than once")
	}
	// smallest mode wins ties
	return slices.Min(modes), nil
}

func (bf *BuiltInFunctions) STDEV(args ...any) (Primitive, error) {
	values, err := collectNumbers(args)
	if err != nil {
		return nil, err
	}
	if len(values) < 2 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "STDEV requires at least two values")
	}
	sd, statsErr := stats.StandardDeviationSample(values)
	if statsErr != nil {
		return nil, NewSpreadsheetError(ErrorCodeNum, statsErr.Error())
	}
	return sd, nil
}

func (bf *BuiltInFunctions) VAR(args ...any) (Primitive, error) {
	values, err := collectNumbers(args)
	if err != nil {
		return nil, err
	}
	if len(values) < 2 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "VAR requires at least two values")
	}
	variance, statsErr := stats.SampleVariance(values)
	if statsErr != nil {
		return nil, NewSpreadsheetError(ErrorCodeNum, statsErr.Error())
	}
	return variance, nil
}

func (bf *BuiltInFunctions) IF(args ...any) (Primitive, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "IF requires 2 or 3 arguments")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}

	if isTruthy(args[0]) {
		return args[1], nil
	}
	if len(args) == 3 {
		return args[2], nil
	}
	return false, nil
}

func (bf *BuiltInFunctions) IFERROR(args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "IFERROR requires exactly 2 arguments")
	}
	if checkForError(args[0]) != nil {
		return args[1], nil
	}
	return args[0], nil
}

func (bf *BuiltInFunctions) ISERROR(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ISERROR requires exactly 1 argument")
	}
	return checkForError(args[0]) != nil, nil
}

func (bf *BuiltInFunctions) ISBLANK(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ISBLANK requires exactly 1 argument")
	}
	return args[0] == nil, nil
}

func (bf *BuiltInFunctions) AND(args ...any) (Primitive, error) {
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if !isTruthy(arg) {
			return false, nil
		}
	}
	return true, nil
}

func (bf *BuiltInFunctions) OR(args ...any) (Primitive, error) {
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if isTruthy(arg) {
			return true, nil
		}
	}
	return false, nil
}

func (bf *BuiltInFunctions) NOT(args ...any) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "NOT requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return !isTruthy(args[0]), nil
}

func (bf *BuiltInFunctions) CONCATENATE(args ...any) (Primitive, error) {
	var result strings.Builder
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		result.WriteString(toString(arg))
	}
	return result.String(), nil
}

// singleArg validates the argument count of one-argument functions and
// propagates an error argument
func singleArg(name string, args []any) (Primitive, *SpreadsheetError) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, fmt.Sprintf("%s requires exactly 1 argument", name))
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return args[0], nil
}

// singleNumber is singleArg for functions taking a number
func singleNumber(name string, args []any) (float64, *SpreadsheetError) {
	arg, err := singleArg(name, args)
	if err != nil {
		return 0, err
	}
	num, ok := toNumber(arg)
	if !ok {
		return 0, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("%s requires a numeric argument", name))
	}
	return num, nil
}

func (bf *BuiltInFunctions) LEN(args ...any) (Primitive, error) {
	arg, err := singleArg("LEN", args)
	if err != nil {
		return nil, err
	}
	return float64(len([]rune(toString(arg)))), nil
}

func (bf *BuiltInFunctions) UPPER(args ...any) (Primitive, error) {
	arg, err := singleArg("UPPER", args)
	if err != nil {
		return nil, err
	}
	return strings.ToUpper(toString(arg)), nil
}

func (bf *BuiltInFunctions) LOWER(args ...any) (Primitive, error) {
	arg, err := singleArg("LOWER", args)
	if err != nil {
		return nil, err
	}
	return strings.ToLower(toString(arg)), nil
}

func (bf *BuiltInFunctions) TRIM(args ...any) (Primitive, error) {
	arg, err := singleArg("TRIM", args)
	if err != nil {
		return nil, err
	}
	return strings.Join(strings.Fields(toString(arg)), " "), nil
}

func (bf *BuiltInFunctions) ABS(args ...any) (Primitive, error) {
	num, err := singleNumber("ABS", args)
	if err != nil {
		return nil, err
	}
	return math.Abs(num), nil
}

func (bf *BuiltInFunctions) ROUND(args ...any) (Primitive, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ROUND requires 1 or 2 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}

	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "ROUND requires a numeric first argument")
	}
	places := 0.0
	if len(args) == 2 {
		places, ok = toNumber(args[1])
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, "ROUND requires a numeric second argument")
		}
	}

	multiplier := math.Pow(10, math.Trunc(places))
	return math.Round(num*multiplier) / multiplier, nil
}

func (bf *BuiltInFunctions) FLOOR(args ...any) (Primitive, error) {
	num, err := singleNumber("FLOOR", args)
	if err != nil {
		return nil, err
	}
	return math.Floor(num), nil
}

func (bf *BuiltInFunctions) CEILING(args ...any) (Primitive, error) {
	num, err := singleNumber("CEILING", args)
	if err != nil {
		return nil, err
	}
	return math.Ceil(num), nil
}

func (bf *BuiltInFunctions) SQRT(args ...any) (Primitive, error) {
	num, err := singleNumber("SQRT", args)
	if err != nil {
		return nil, err
	}
	if num < 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "SQRT requires a non-negative argument")
	}
	return math.Sqrt(num), nil
}

func (bf *BuiltInFunctions) POWER(args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "POWER requires exactly 2 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	base, ok1 := toNumber(args[0])
	exp, ok2 := toNumber(args[1])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "POWER requires numeric arguments")
	}
	return arithmetic(BinOpPower, base, exp)
}

func (bf *BuiltInFunctions) MOD(args ...any) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "MOD requires exactly 2 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	dividend, ok1 := toNumber(args[0])
	divisor, ok2 := toNumber(args[1])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "MOD requires numeric arguments")
	}
	if divisor == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
	}
	// result takes the sign of the divisor
	return dividend - divisor*math.Floor(dividend/divisor), nil
}

func (bf *BuiltInFunctions) PI(args ...any) (Primitive, error) {
	if len(args) != 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "PI takes no arguments")
	}
	return math.Pi, nil
}

// Excel date/time constants
const (
	// December 30, 1899 00:00:00 UTC in Unix milliseconds
	EXCEL_EPOCH_MS = -2209161600000
	MS_PER_DAY     = 86400000
)

func (bf *BuiltInFunctions) NOW(args ...any) (Primitive, error) {
	if len(args) != 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "NOW takes no arguments")
	}
	// days since the Excel epoch
	diffMs := float64(bf.clock.Now().UnixMilli() - EXCEL_EPOCH_MS)
	return diffMs / MS_PER_DAY, nil
}

func (bf *BuiltInFunctions) TODAY(args ...any) (Primitive, error) {
	if len(args) != 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "TODAY takes no arguments")
	}
	now := bf.clock.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	diffMs := float64(midnight.UnixMilli() - EXCEL_EPOCH_MS)
	return math.Floor(diffMs / MS_PER_DAY), nil
}

func (bf *BuiltInFunctions) RAND(args ...any) (Primitive, error) {
	if len(args) != 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "RAND takes no arguments")
	}
	return bf.rng.Float64(), nil
}

// isVolatileFunction returns true if the function changes value without any
// of its inputs changing
func isVolatileFunction(name string) bool {
	switch strings.ToUpper(name) {
	case "NOW", "TODAY", "RAND":
		return true
	default:
		return false
	}
}

// toNumber converts value to number, returning ok=false if conversion fails
func toNumber(value Primitive) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		num, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return num, true
	case nil:
		return 0, true
	default:
		return 0, false
	}
}

// toString converts value to string
func toString(value Primitive) string {
	switch v := value.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case *SpreadsheetError:
		return v.Code()
	default:
		return fmt.Sprint(value)
	}
}

// isTruthy checks if value is truthy
func isTruthy(value Primitive) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case string:
		return strings.EqualFold(v, "TRUE")
	case nil:
		return false
	default:
		return true
	}
}
