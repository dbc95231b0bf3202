package focus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatMsgpack, FormatYAML, FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			engine := newTrimRangeEngine(t)
			require.NoError(t, engine.SetValue("trim-range!D5", 300))
			_, err := engine.Evaluate("trim-range!B2")
			require.NoError(t, err)

			data, err := engine.MarshalSnapshot(format)
			require.NoError(t, err)

			restored := NewEngine(nil, WithLogger(quietLogger()))
			require.NoError(t, restored.RestoreSnapshot(data, format))
			if diff := cmp.Diff(engine.Snapshot().Cells, restored.Snapshot().Cells); diff != "" {
				t.Errorf("restored cells mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, engine.Stats(), restored.Stats())

			value, err := restored.Evaluate("trim-range!B2")
			require.NoError(t, err)
			assert.Equal(t, 333.0, value)

			// the restored model is still live
			require.NoError(t, restored.SetValue("trim-range!D5", 100))
			value, err = restored.Evaluate("trim-range!B2")
			require.NoError(t, err)
			assert.Equal(t, 133.0, value)
		})
	}
}

func TestSnapshotKeepsState(t *testing.T) {
	engine := NewEngineTestCase(t, "state").
		Set("Sheet1!A1", 2.0).
		Set("Sheet1!A2", "=Rate*A1").
		Set("Sheet1!A3", "=1/0").
		Set("Sheet1!A4", "=IFERROR(A3, \"fallback\")").
		Set("Sheet1!B1", 3.0).
		DefineName("Rate", "Sheet1!B1").
		WithCycles(50, 0.001).
		AssertCellEq("Sheet1!A2", 6.0).
		AssertCellEq("Sheet1!A4", "fallback").
		Engine()
	require.NoError(t, engine.SetValue("Sheet1!A1", 4.0))

	data, err := engine.MarshalSnapshot(FormatYAML)
	require.NoError(t, err)
	restored := NewEngine(nil, WithLogger(quietLogger()))
	require.NoError(t, restored.RestoreSnapshot(data, FormatYAML))

	assert.Equal(t, CycleConfig{Enabled: true, Iterations: 50, Tolerance: 0.001}, restored.Cycles())
	a2, ok := restored.Cell("Sheet1!A2")
	require.True(t, ok)
	assert.True(t, a2.Stale)

	// names resolve in the restored model
	value, err := restored.Evaluate("Sheet1!A2")
	require.NoError(t, err)
	assert.Equal(t, 12.0, value)
	require.NoError(t, restored.SetValue("Sheet1!B1", 10.0))
	value, err = restored.Evaluate("Sheet1!A2")
	require.NoError(t, err)
	assert.Equal(t, 40.0, value)

	a3, ok := restored.Cell("Sheet1!A3")
	require.True(t, ok)
	assert.Equal(t, "#DIV/0!", FormatValue(a3.Value))
}

func TestRestoreSnapshotErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		target error
	}{
		{"corrupt", `{"cells": [`, nil},
		{"missing precedent", `{"cells": [{"address": "Sheet1!B1", "formula": "=A1*2", "value": {"kind": "empty"}}]}`, ErrAddressNotFound},
		{"bad address", `{"cells": [{"address": "nowhere", "value": {"kind": "empty"}}]}`, nil},
		{"unknown kind", `{"cells": [{"address": "Sheet1!A1", "value": {"kind": "date"}}]}`, nil},
		{"unknown error value", `{"cells": [{"address": "Sheet1!A1", "value": {"kind": "error", "text": "#OOPS"}}]}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTrimRangeEngine(t)
			_, err := engine.Evaluate("trim-range!B2")
			require.NoError(t, err)
			before := cellKeys(engine)

			err = engine.RestoreSnapshot([]byte(tt.data), FormatJSON)
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}

			// a failed restore leaves the model alone
			assert.Equal(t, before, cellKeys(engine))
			value, err := engine.Evaluate("trim-range!B2")
			require.NoError(t, err)
			assert.Equal(t, 133.0, value)
		})
	}
}

func TestSnapshotFiles(t *testing.T) {
	dir := t.TempDir()
	engine := newTrimRangeEngine(t)
	require.NoError(t, engine.TrimGraph([]string{"trim-range!D5"}, []string{"trim-range!B2"}))

	for _, name := range []string{"model.msgpack", "model.yaml", "model.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, engine.ToFile(path))
			assert.FileExists(t, path)
			assert.NoFileExists(t, path+".tmp")

			loaded, err := LoadFile(path, WithLogger(quietLogger()))
			require.NoError(t, err)
			assert.Equal(t, cellKeys(engine), cellKeys(loaded))

			require.NoError(t, loaded.SetValue("trim-range!D5", 300))
			value, err := loaded.Evaluate("trim-range!B2")
			require.NoError(t, err)
			assert.Equal(t, 333.0, value)

			// cells the trim removed are gone without a source
			_, err = loaded.Evaluate("trim-range!D1")
			assert.ErrorIs(t, err, ErrAddressNotFound)
		})
	}
}

func TestFromFileReplacesModel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")

	trimmed := newTrimRangeEngine(t)
	require.NoError(t, trimmed.TrimGraph([]string{"trim-range!D5"}, []string{"trim-range!B2"}))
	require.NoError(t, trimmed.ToFile(path))

	engine := NewEngine(financialSource(), WithLogger(quietLogger()))
	_, err := engine.Evaluate("Summary!B6")
	require.NoError(t, err)
	require.NoError(t, engine.FromFile(path))
	assert.Equal(t, cellKeys(trimmed), cellKeys(engine))
}

func TestFromFileSharesLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	engine := newTrimRangeEngine(t)
	require.NoError(t, engine.ToFile(path))

	// another reader holds the lock
	reader := flock.New(path + ".lock")
	require.NoError(t, reader.RLock())
	defer func() { _ = reader.Unlock() }()

	loaded, err := LoadFile(path, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, cellKeys(engine), cellKeys(loaded))
}

func TestFromFileReadOnlyDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.msgpack")
	engine := newTrimRangeEngine(t)
	require.NoError(t, engine.ToFile(path))
	require.NoError(t, os.Remove(path+".lock"))

	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	loaded, err := LoadFile(path, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, cellKeys(engine), cellKeys(loaded))
}

func TestSnapshotFileErrors(t *testing.T) {
	dir := t.TempDir()
	engine := newTrimRangeEngine(t)

	err := engine.ToFile(filepath.Join(dir, "model.txt"))
	require.Error(t, err)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, InvalidArgument, appErr.Code)

	_, err = LoadFile(filepath.Join(dir, "missing.json"), WithLogger(quietLogger()))
	require.Error(t, err)

	corrupt := filepath.Join(dir, "corrupt.msgpack")
	require.NoError(t, os.WriteFile(corrupt, []byte{0xc1, 0x00}, 0o644))
	_, err = LoadFile(corrupt, WithLogger(quietLogger()))
	require.Error(t, err)
}

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"model.msgpack", FormatMsgpack, false},
		{"model.pkl", FormatMsgpack, false},
		{"model.pickle", FormatMsgpack, false},
		{"model.bin", FormatMsgpack, false},
		{"model.yml", FormatYAML, false},
		{"dir/model.YAML", FormatYAML, false},
		{"model.json", FormatJSON, false},
		{"model.xlsx", "", true},
		{"model", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatForPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSnapshotValuePrimitive(t *testing.T) {
	for _, value := range []Primitive{nil, 1.5, "text", true, NewSpreadsheetError(ErrorCodeDiv0, "")} {
		got, err := snapshotValueOf(value).Primitive()
		require.NoError(t, err)
		assert.Equal(t, FormatValue(value), FormatValue(got))
	}

	_, err := SnapshotValue{Kind: "date"}.Primitive()
	assert.Error(t, err)
}

func TestSnapshotOverflowedValues(t *testing.T) {
	engine := NewEngineTestCase(t, "overflow").
		Set("Sheet1!A1", 1e308).
		Set("Sheet1!B1", "=A1*10").
		Set("Sheet1!B2", "=A1+A1").
		Set("Sheet1!B3", "=-A1-A1").
		Set("Sheet1!B4", "=A1/1E-10").
		Set("Sheet1!C1", "=IFERROR(B1, 0)").
		AssertCellEq("Sheet1!B1", ErrorCodeNum).
		AssertCellEq("Sheet1!B2", ErrorCodeNum).
		AssertCellEq("Sheet1!B3", ErrorCodeNum).
		AssertCellEq("Sheet1!B4", ErrorCodeNum).
		AssertCellEq("Sheet1!C1", 0.0).
		Engine()

	path := filepath.Join(t.TempDir(), "overflow.json")
	require.NoError(t, engine.ToFile(path))
	loaded, err := LoadFile(path, WithLogger(quietLogger()))
	require.NoError(t, err)

	b1, ok := loaded.Cell("Sheet1!B1")
	require.True(t, ok)
	assert.Equal(t, "#NUM!", FormatValue(b1.Value))

	// the restored formulas still recover once the input is back in range
	require.NoError(t, loaded.SetValue("Sheet1!A1", 2.0))
	value, err := loaded.Evaluate("Sheet1!B1")
	require.NoError(t, err)
	assert.Equal(t, 20.0, value)
}
