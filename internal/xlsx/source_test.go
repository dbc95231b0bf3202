package xlsx

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	focus "github.com/vogtb/go-spreadsheet/focus"
)

// writeWorkbook saves the trim fixture used across the engine tests
func writeWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	_, err := f.NewSheet("trim-range")
	require.NoError(t, err)
	values := map[string]any{
		"D1": 1, "D2": 2, "D3": 3,
		"E1": 4, "E2": 5, "E3": 6,
		"D4": 4, "E4": 8, "D5": 100,
		"A1": "label", "A2": true,
	}
	for cell, v := range values {
		require.NoError(t, f.SetCellValue("trim-range", cell, v))
	}
	require.NoError(t, f.SetCellFormula("trim-range", "B1", "SUM(D1:E3)"))
	require.NoError(t, f.SetCellFormula("trim-range", "B2", "B1+SUM(D4:E4)+D5"))
	require.NoError(t, f.SetCellFormula("trim-range", "B3", "D5*Rate"))
	require.NoError(t, f.SetDefinedName(&excelize.DefinedName{Name: "Rate", RefersTo: "'trim-range'!$D$4"}))

	path := filepath.Join(t.TempDir(), "trim.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestSourceLookup(t *testing.T) {
	src, err := Open(writeWorkbook(t))
	require.NoError(t, err)
	defer src.Close()

	assert.Contains(t, src.Sheets(), "trim-range")

	cs, ok := src.Lookup(focus.MustParseAddress("trim-range!D5"))
	require.True(t, ok)
	assert.False(t, cs.IsFormula())
	assert.Equal(t, 100.0, cs.Value)

	cs, ok = src.Lookup(focus.MustParseAddress("trim-range!B2"))
	require.True(t, ok)
	assert.Equal(t, "=B1+SUM(D4:E4)+D5", cs.Formula)

	cs, ok = src.Lookup(focus.MustParseAddress("trim-range!A1"))
	require.True(t, ok)
	assert.Equal(t, "label", cs.Value)

	cs, ok = src.Lookup(focus.MustParseAddress("trim-range!A2"))
	require.True(t, ok)
	assert.Equal(t, true, cs.Value)

	cs, ok = src.Lookup(focus.MustParseAddress("trim-range!Z99"))
	require.True(t, ok)
	assert.Nil(t, cs.Value)

	_, ok = src.Lookup(focus.MustParseAddress("missing!A1"))
	assert.False(t, ok)
}

func TestSourceDefinedNames(t *testing.T) {
	src, err := Open(writeWorkbook(t))
	require.NoError(t, err)
	defer src.Close()

	names := src.DefinedNames()
	assert.Equal(t, focus.MustParseAddress("trim-range!D4"), names["Rate"])
}

func TestSourceUsedRange(t *testing.T) {
	src, err := Open(writeWorkbook(t))
	require.NoError(t, err)
	defer src.Close()

	used, ok := src.UsedRange("trim-range")
	require.True(t, ok)
	assert.True(t, used.Contains(focus.MustParseAddress("trim-range!E4")))
	assert.True(t, used.Contains(focus.MustParseAddress("trim-range!D5")))

	_, ok = src.UsedRange("missing")
	assert.False(t, ok)
}

func TestEngineOverWorkbook(t *testing.T) {
	src, err := Open(writeWorkbook(t))
	require.NoError(t, err)
	defer src.Close()

	engine := focus.NewEngine(src)
	value, err := engine.Evaluate("trim-range!B2")
	require.NoError(t, err)
	assert.Equal(t, 133.0, value)

	value, err = engine.Evaluate("trim-range!B3")
	require.NoError(t, err)
	assert.Equal(t, 400.0, value)

	require.NoError(t, engine.TrimGraph([]string{"trim-range!D5"}, []string{"trim-range!B2"}))
	require.NoError(t, engine.SetValue("trim-range!D5", 300))
	value, err = engine.Evaluate("trim-range!B2")
	require.NoError(t, err)
	assert.Equal(t, 333.0, value)
}

func TestSetCellValue(t *testing.T) {
	path := writeWorkbook(t)
	src, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, src.SetCellValue(focus.MustParseAddress("trim-range!D5"), 7.0))
	out := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, src.SaveAs(out))
	require.NoError(t, src.Close())

	reopened, err := Open(out)
	require.NoError(t, err)
	defer reopened.Close()
	cs, ok := reopened.Lookup(focus.MustParseAddress("trim-range!D5"))
	require.True(t, ok)
	assert.Equal(t, 7.0, cs.Value)

	err = src.SetCellValue(focus.MustParseAddress("missing!A1"), 1.0)
	assert.ErrorIs(t, err, focus.ErrAddressNotFound)
}
