package focus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Format selects a snapshot encoding
type Format string

const (
	FormatMsgpack Format = "msgpack"
	FormatYAML    Format = "yaml"
	FormatJSON    Format = "json"
)

// FormatForPath picks the encoding from a file extension
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".bin", ".pkl", ".pickle":
		return FormatMsgpack, nil
	case ".yml", ".yaml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", NewApplicationError(InvalidArgument, fmt.Sprintf("unknown snapshot extension for %s", path))
}

// SnapshotValue is the encoding-neutral form of a cell value
type SnapshotValue struct {
	Kind   string  `json:"kind" yaml:"kind" msgpack:"kind"`
	Number float64 `json:"number,omitempty" yaml:"number,omitempty" msgpack:"number,omitempty"`
	Text   string  `json:"text,omitempty" yaml:"text,omitempty" msgpack:"text,omitempty"`
	Bool   bool    `json:"bool,omitempty" yaml:"bool,omitempty" msgpack:"bool,omitempty"`
}

const (
	kindEmpty  = "empty"
	kindNumber = "number"
	kindText   = "text"
	kindBool   = "bool"
	kindError  = "error"
)

func snapshotValueOf(v Primitive) SnapshotValue {
	switch val := v.(type) {
	case float64:
		return SnapshotValue{Kind: kindNumber, Number: val}
	case string:
		return SnapshotValue{Kind: kindText, Text: val}
	case bool:
		return SnapshotValue{Kind: kindBool, Bool: val}
	case *SpreadsheetError:
		return SnapshotValue{Kind: kindError, Text: val.Code()}
	}
	return SnapshotValue{Kind: kindEmpty}
}

// Primitive converts the stored value back
func (sv SnapshotValue) Primitive() (Primitive, error) {
	switch sv.Kind {
	case kindEmpty, "":
		return nil, nil
	case kindNumber:
		return sv.Number, nil
	case kindText:
		return sv.Text, nil
	case kindBool:
		return sv.Bool, nil
	case kindError:
		if errValue, ok := ParseErrorValue(sv.Text); ok {
			return errValue, nil
		}
		return nil, NewApplicationError(InvalidArgument, fmt.Sprintf("unknown error value %q", sv.Text))
	}
	return nil, NewApplicationError(InvalidArgument, fmt.Sprintf("unknown value kind %q", sv.Kind))
}

// SnapshotCell is one cell of a snapshot. formula cells keep their text and
// are parsed again on restore.
type SnapshotCell struct {
	Address  string        `json:"address" yaml:"address" msgpack:"address"`
	Formula  string        `json:"formula,omitempty" yaml:"formula,omitempty" msgpack:"formula,omitempty"`
	Value    SnapshotValue `json:"value" yaml:"value" msgpack:"value"`
	HasValue bool          `json:"has_value" yaml:"has_value" msgpack:"has_value"`
	Stale    bool          `json:"stale,omitempty" yaml:"stale,omitempty" msgpack:"stale,omitempty"`
}

// Snapshot is the serialized form of a materialized model
type Snapshot struct {
	ID         string            `json:"id" yaml:"id" msgpack:"id"`
	CreatedAt  time.Time         `json:"created_at" yaml:"created_at" msgpack:"created_at"`
	Cycles     bool              `json:"cycles" yaml:"cycles" msgpack:"cycles"`
	Iterations int               `json:"iterations" yaml:"iterations" msgpack:"iterations"`
	Tolerance  float64           `json:"tolerance" yaml:"tolerance" msgpack:"tolerance"`
	Names      map[string]string `json:"names,omitempty" yaml:"names,omitempty" msgpack:"names,omitempty"`
	Cells      []SnapshotCell    `json:"cells" yaml:"cells" msgpack:"cells"`
}

// Snapshot captures the materialized model: every cell with its formula
// text, cached value and staleness, the cycle settings and defined names
func (e *Engine) Snapshot() *Snapshot {
	snap := &Snapshot{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		Cycles:     e.cycles.Enabled,
		Iterations: e.cycles.Iterations,
		Tolerance:  e.cycles.Tolerance,
		Cells:      make([]SnapshotCell, 0, e.graph.Len()),
	}
	if len(e.names) > 0 {
		snap.Names = make(map[string]string, len(e.names))
		for name, addr := range e.names {
			snap.Names[name] = addr.String()
		}
	}
	for _, cell := range e.graph.All() {
		sc := SnapshotCell{
			Address:  cell.Address.String(),
			Value:    snapshotValueOf(cell.Value),
			HasValue: cell.HasValue,
			Stale:    cell.Stale,
		}
		if cell.Formula != nil {
			sc.Formula = cell.Formula.Text
		}
		snap.Cells = append(snap.Cells, sc)
	}
	return snap
}

// MarshalSnapshot encodes the model in the given format
func (e *Engine) MarshalSnapshot(format Format) ([]byte, error) {
	snap := e.Snapshot()
	switch format {
	case FormatMsgpack:
		return msgpack.Marshal(snap)
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatJSON:
		return json.MarshalIndent(snap, "", "  ")
	}
	return nil, NewApplicationError(InvalidArgument, fmt.Sprintf("unknown snapshot format %q", format))
}

// RestoreSnapshot replaces the engine's model with a decoded snapshot. the
// engine keeps its source, so cells missing from the snapshot can still be
// materialized when one is set. on error the model is left unchanged.
func (e *Engine) RestoreSnapshot(data []byte, format Format) error {
	var snap Snapshot
	var err error
	switch format {
	case FormatMsgpack:
		err = msgpack.Unmarshal(data, &snap)
	case FormatYAML:
		err = yaml.Unmarshal(data, &snap)
	case FormatJSON:
		err = json.Unmarshal(data, &snap)
	default:
		return NewApplicationError(InvalidArgument, fmt.Sprintf("unknown snapshot format %q", format))
	}
	if err != nil {
		return WrapApplicationError(InvalidArgument, "decoding snapshot", err)
	}
	return e.restore(&snap)
}

func (e *Engine) restore(snap *Snapshot) error {
	names := make(map[string]Address, len(snap.Names))
	for name, address := range snap.Names {
		addr, err := ParseAddress(address, "")
		if err != nil {
			return err
		}
		names[strings.ToUpper(name)] = addr
	}

	// build into a scratch engine so a bad snapshot leaves e untouched
	scratch := &Engine{names: names, graph: NewDependencyGraph()}
	formulas := NewFormulaTable(e.cacheSize, scratch.resolveName)
	for _, sc := range snap.Cells {
		addr, err := ParseAddress(sc.Address, "")
		if err != nil {
			return err
		}
		value, err := sc.Value.Primitive()
		if err != nil {
			return err
		}
		cell := &Cell{Address: addr, Value: value, HasValue: sc.HasValue, Stale: sc.Stale}
		if sc.Formula != "" {
			cell.Formula = formulas.Parse(addr, sc.Formula)
		}
		scratch.graph.Add(cell)
	}
	for id, cell := range scratch.graph.All() {
		if cell.Formula == nil {
			continue
		}
		needed := cell.Formula.NeededCells()
		precedents := make([]int, 0, len(needed))
		for _, n := range needed {
			_, pid, ok := scratch.graph.Lookup(n)
			if !ok {
				return WrapApplicationError(InvalidArgument,
					fmt.Sprintf("snapshot cell %s reads %s", cell.Address, n), &AddressNotFoundError{Address: n})
			}
			precedents = append(precedents, pid)
		}
		scratch.graph.SetPrecedents(id, precedents)
	}

	e.graph = scratch.graph
	e.names = names
	e.formulas = formulas
	formulas.resolveName = e.resolveName
	e.cycles = CycleConfig{Enabled: snap.Cycles, Iterations: snap.Iterations, Tolerance: snap.Tolerance}
	e.logger.Debug("restored snapshot", "id", snap.ID, "cells", e.graph.Len())
	return nil
}

// lockTimeout is how long file operations wait for the snapshot lock
const lockTimeout = 5 * time.Second

// lockFile takes a lock next to path: shared for readers, exclusive for
// writers. the caller must unlock.
func lockFile(path string, shared bool) (*flock.Flock, error) {
	lock := flock.New(path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	try := lock.TryLockContext
	if shared {
		try = lock.TryRLockContext
	}
	locked, err := try(ctx, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("timeout waiting for lock on %s", path)
	}
	return lock, nil
}

// unwritableLock reports whether the lock file could not be created, as in
// a read-only directory
func unwritableLock(err error) bool {
	return errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.EROFS)
}

// ToFile writes the model to path, choosing the encoding from the
// extension. the file is replaced atomically.
func (e *Engine) ToFile(path string) error {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}
	data, err := e.MarshalSnapshot(format)
	if err != nil {
		return err
	}

	lock, err := lockFile(path, false)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	e.logger.Debug("wrote snapshot", "path", path, "format", format, "bytes", len(data))
	return nil
}

// FromFile restores the model from a file written by ToFile
func (e *Engine) FromFile(path string) error {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}

	lock, err := lockFile(path, true)
	switch {
	case err == nil:
		defer func() { _ = lock.Unlock() }()
	case unwritableLock(err):
		e.logger.Debug("reading snapshot without lock", "path", path, "error", err)
	default:
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	return e.RestoreSnapshot(data, format)
}

// LoadFile creates an engine from a snapshot file. the engine has no
// source: only the cells in the snapshot exist.
func LoadFile(path string, opts ...EngineOption) (*Engine, error) {
	e := NewEngine(nil, opts...)
	if err := e.FromFile(path); err != nil {
		return nil, err
	}
	return e, nil
}
