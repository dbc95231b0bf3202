package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	focus "github.com/vogtb/go-spreadsheet/focus"
)

// writeModel saves a small revenue model: revenue grows from a base, costs
// and taxes are ratios of revenue, and net income is taxed profit.
func writeModel(t *testing.T, dir string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", "Assumptions"))
	_, err := f.NewSheet("Summary")
	require.NoError(t, err)

	assumptions := map[string]float64{"B1": 0.1, "B2": 0.6, "B3": 0.25, "B4": 1000}
	for cell, v := range assumptions {
		require.NoError(t, f.SetCellValue("Assumptions", cell, v))
	}
	formulas := map[string]string{
		"B1": "Assumptions!B4*(1+Assumptions!B1)",
		"B2": "B1*Assumptions!B2",
		"B3": "B1-B2",
		"B4": "B1*Assumptions!B3",
		"B5": "B3-B4",
		"B6": "B5*0.8",
	}
	for cell, formula := range formulas {
		require.NoError(t, f.SetCellFormula("Summary", cell, formula))
	}

	path := filepath.Join(dir, "model.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func runFocus(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "missing.toml")))
	err := cmd.Execute()
	return out.String(), err
}

func TestEvalCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeModel(t, dir)

	out, err := runFocus(t, "eval", path, "Summary!B6", "Summary!B1")
	require.NoError(t, err)
	assert.Contains(t, out, "Summary!B6 = 132")
	assert.Contains(t, out, "Summary!B1 = 1100")

	out, err = runFocus(t, "eval", path, "Summary!B6", "--set", "Assumptions!B1=0.2")
	require.NoError(t, err)
	assert.Contains(t, out, "Summary!B6 = 144")

	_, err = runFocus(t, "eval", path, "Summary!B6", "--set", "nonsense")
	require.Error(t, err)
}

func TestTrimCommandWritesSnapshot(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeModel(t, dir)
	snapshot := filepath.Join(dir, "model.msgpack")

	out, err := runFocus(t, "trim", path,
		"--input", "Assumptions!B1", "--output", "Summary!B6", "--out", snapshot)
	require.NoError(t, err)
	assert.Contains(t, out, "trimmed model")
	assert.Contains(t, out, "saved "+snapshot)

	out, err = runFocus(t, "eval", snapshot, "Summary!B6", "--set", "Assumptions!B1=0.2")
	require.NoError(t, err)
	assert.Contains(t, out, "Summary!B6 = 144")
}

func TestTrimCommandRejectsDisconnectedInput(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeModel(t, dir)

	_, err := runFocus(t, "trim", path, "--input", "Assumptions!C9", "--output", "Summary!B6")
	require.Error(t, err)
	assert.ErrorIs(t, err, focus.ErrNoDependentOutputs)
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	first := writeModel(t, dir)
	second := filepath.Join(dir, "copy.xlsx")
	f, err := excelize.OpenFile(first)
	require.NoError(t, err)
	require.NoError(t, f.SaveAs(second))
	require.NoError(t, f.Close())

	out, err := runFocus(t, "validate", first, second, "--serialized")
	require.NoError(t, err)
	assert.Contains(t, out, first+": all values match")
	assert.Contains(t, out, second+": all values match")
}

func TestTreeCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeModel(t, dir)

	out, err := runFocus(t, "tree", path, "Summary!B3")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "Summary!B3 = 440", lines[0])
	assert.Contains(t, out, " Summary!B1 = 1100")
	assert.Contains(t, out, "  Assumptions!B4 = 1000")
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeModel(t, dir)

	out, err := runFocus(t, "export", path, "Summary!B2", "--format", "json")
	require.NoError(t, err)
	var graph focus.Graph
	require.NoError(t, json.Unmarshal([]byte(out), &graph))
	ids := make([]string, 0, len(graph.Nodes))
	for _, node := range graph.Nodes {
		ids = append(ids, node.ID)
	}
	assert.ElementsMatch(t, []string{"Assumptions!B1", "Assumptions!B2", "Assumptions!B4", "Summary!B1", "Summary!B2"}, ids)
	assert.Contains(t, graph.Edges, focus.GraphEdge{From: "Summary!B1", To: "Summary!B2"})

	out, err = runFocus(t, "export", path, "Summary!B2")
	require.NoError(t, err)
	assert.Contains(t, out, "digraph")

	_, err = runFocus(t, "export", path, "--format", "svg")
	require.Error(t, err)
}

func TestSweepCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeModel(t, dir)

	out, err := runFocus(t, "sweep", path,
		"--input", "Assumptions!B1", "--values", "0.1,0.2", "--output", "Summary!B6")
	require.NoError(t, err)
	assert.Contains(t, out, "0.1\t132")
	assert.Contains(t, out, "0.2\t144")
	assert.Contains(t, out, "Summary!B6 min=132 max=144 mean=138")
}

func TestParseLiteral(t *testing.T) {
	tests := []struct {
		text string
		want focus.Primitive
	}{
		{"1.5", 1.5},
		{"true", true},
		{"FALSE", false},
		{"hello", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLiteral(tt.text))
		})
	}

	errValue, ok := parseLiteral("#DIV/0!").(*focus.SpreadsheetError)
	require.True(t, ok)
	assert.Equal(t, "#DIV/0!", errValue.Code())
}
