package focus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.now
}

type fixedRandom struct {
	value float64
}

func (r *fixedRandom) Float64() float64 {
	return r.value
}

func TestBuiltinFunctions(t *testing.T) {
	tests := []struct {
		formula  string
		expected Primitive
	}{
		{"=SUM(A1:A4)", 8.0},
		{"=SUM(A1:A4, 10)", 18.0},
		{"=PRODUCT(A1:A4)", 12.0},
		{"=AVERAGE(A1:A4)", 2.0},
		{"=COUNT(A1:A5)", 4.0},
		{"=COUNTA(A1:B5)", 5.0},
		{"=MAX(A1:A4)", 3.0},
		{"=MIN(A1:A4)", 1.0},
		{"=MEDIAN(A1:A4)", 2.0},
		{"=MODE(A1:A4)", 2.0},
		{"=MODE(1, 2, 3)", ErrorCodeNA},
		{"=MODE(4)", ErrorCodeNA},
		{"=AVERAGE(B1:B2)", ErrorCodeDiv0},
		{"=STDEV(5)", ErrorCodeDiv0},
		{"=MOD(-7, 3)", 2.0},
		{"=MOD(7, -3)", -2.0},
		{"=MOD(7, 0)", ErrorCodeDiv0},
		{"=ABS(-4)", 4.0},
		{"=POWER(2, 10)", 1024.0},
		{"=1/0", ErrorCodeDiv0},
		{"=IFERROR(1/0, 9)", 9.0},
		{"=ISERROR(#N/A)", true},
		{"=IF(A1>1, \"big\", \"small\")", "small"},
		{"=CONCATENATE(\"a\", A2)", "a2"},
		{"=LEN(B1)", 5.0},
		{"=UPPER(B1)", "HELLO"},
		{"=AND(TRUE, A1=1)", true},
		{"=NOT(OR(FALSE, A1>5))", true},
		{"=SUM(A1, #REF!)", ErrorCodeRef},
		{"=SUM(1E308, 1E308)", ErrorCodeNum},
		{"=PRODUCT(1E200, 1E200)", ErrorCodeNum},
		{"=POWER(10, 400)", ErrorCodeNum},
	}

	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			NewEngineTestCase(t, tt.formula).
				Set("Sheet1!A1", 1.0).
				Set("Sheet1!A2", 2.0).
				Set("Sheet1!A3", 2.0).
				Set("Sheet1!A4", 3.0).
				Set("Sheet1!B1", "hello").
				Set("Sheet1!C1", tt.formula).
				AssertCellEq("Sheet1!C1", tt.expected).
				End()
		})
	}
}

func TestBuiltinStatistics(t *testing.T) {
	bf := NewDefaultBuiltInFunctions()

	stdev, err := bf.STDEV(1.0, 2.0, 2.0, 3.0)
	require.NoError(t, err)
	assert.InDelta(t, 0.8164965809, stdev, 1e-9)

	variance, err := bf.VAR(1.0, 2.0, 2.0, 3.0)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, variance, 1e-12)

	// ties go to the smallest value
	mode, err := bf.MODE(3.0, 3.0, 1.0, 1.0, 2.0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, mode)
}

func TestBuiltinUnknownFunction(t *testing.T) {
	bf := NewDefaultBuiltInFunctions()
	_, err := bf.Call("VLOOKUP", 1.0)
	require.ErrorIs(t, err, ErrUnsupportedFormula)
	assert.True(t, bf.IsSupportedFunction("sum"))
	assert.False(t, bf.IsSupportedFunction("VLOOKUP"))
}

func TestBuiltinVolatile(t *testing.T) {
	clock := &fixedClock{now: time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)}
	functions := NewBuiltInFunctions(clock, &fixedRandom{value: 0.25})

	source := NewMemorySource("Sheet1").
		MustSet("Sheet1!A1", "=NOW()").
		MustSet("Sheet1!A2", "=TODAY()").
		MustSet("Sheet1!A3", "=RAND()*4").
		MustSet("Sheet1!A4", "=A1-A2")
	engine := NewEngine(source, WithLogger(quietLogger()), WithFunctions(functions))

	now, err := engine.Evaluate("Sheet1!A1")
	require.NoError(t, err)
	assert.Equal(t, 45292.5, now)

	today, err := engine.Evaluate("Sheet1!A2")
	require.NoError(t, err)
	assert.Equal(t, 45292.0, today)

	random, err := engine.Evaluate("Sheet1!A3")
	require.NoError(t, err)
	assert.Equal(t, 1.0, random)

	fraction, err := engine.Evaluate("Sheet1!A4")
	require.NoError(t, err)
	assert.Equal(t, 0.5, fraction)

	assert.Equal(t, 3, engine.Stats().Volatile)
}
