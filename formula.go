package focus

import (
	"errors"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Formula is the parsed form of a cell's formula text. Needed lists every
// address the formula reads, in source order, and never changes after
// parsing.
type Formula struct {
	Address Address
	Text    string
	Needed  []Address

	ast      ASTNode
	parseErr error
}

// Eval applies the formula to the given values with the default builtins.
// spreadsheet errors come back as values; the returned error is only set
// for formulas the evaluator cannot run.
func (f *Formula) Eval(values Values) (Primitive, error) {
	return f.EvalWith(values, defaultFunctions)
}

// EvalWith is Eval with an explicit function set
func (f *Formula) EvalWith(values Values, functions *BuiltInFunctions) (Primitive, error) {
	if f.parseErr != nil {
		return nil, &UnsupportedFormulaError{Address: f.Address, Formula: f.Text, Reason: f.parseErr.Error()}
	}

	result, err := evalOperand(f.ast, &evalContext{values: values, functions: functions})
	if err != nil {
		var unsupported *UnsupportedFormulaError
		if errors.As(err, &unsupported) {
			return nil, &UnsupportedFormulaError{Address: f.Address, Formula: f.Text, Reason: unsupported.Reason}
		}
		return nil, err
	}

	switch result.(type) {
	case nil:
		// formulas pointing at empty cells read as zero
		return 0.0, nil
	case *RangeValue:
		return NewSpreadsheetError(ErrorCodeValue, "formula result is a range"), nil
	}
	return finite(result), nil
}

// NeededCells expands Needed into single-cell addresses, deduplicated, in
// first-seen order
func (f *Formula) NeededCells() []Address {
	seen := make(map[Address]struct{})
	out := make([]Address, 0, len(f.Needed))
	for _, ref := range f.Needed {
		for _, cell := range ref.Cells() {
			if _, ok := seen[cell]; ok {
				continue
			}
			seen[cell] = struct{}{}
			out = append(out, cell)
		}
	}
	return out
}

// Volatile reports whether the formula calls a function like RAND or NOW
func (f *Formula) Volatile() bool {
	volatile := false
	var walk func(ASTNode)
	walk = func(node ASTNode) {
		switch n := node.(type) {
		case *FunctionCallNode:
			if isVolatileFunction(n.Name) {
				volatile = true
			}
			for _, arg := range n.Args {
				walk(arg)
			}
		case *BinaryOpNode:
			walk(n.Left)
			walk(n.Right)
		case *UnaryOpNode:
			walk(n.Operand)
		}
	}
	if f.ast != nil {
		walk(f.ast)
	}
	return volatile
}

// Normalized returns the canonical text of the parsed formula, or the raw
// text when it could not be parsed
func (f *Formula) Normalized() string {
	if f.ast == nil {
		return f.Text
	}
	return "=" + f.ast.ToString()
}

var defaultFunctions = NewDefaultBuiltInFunctions()

// IsFormulaText reports whether source text is a formula rather than a literal
func IsFormulaText(text string) bool {
	return len(text) > 1 && strings.HasPrefix(text, "=")
}

// parsedFormula is the sheet-independent result the table caches
type parsedFormula struct {
	ast    ASTNode
	needed []Address
	err    error
}

// FormulaTable parses formulas and keeps recently parsed ASTs so that
// formulas repeated down a column are only parsed once. ASTs are immutable
// after parsing and are shared between cells.
type FormulaTable struct {
	cache       *lru.Cache[string, parsedFormula]
	resolveName func(name string) (Address, bool)
}

// DefaultFormulaCacheSize is the number of parsed formulas kept when no
// size is configured
const DefaultFormulaCacheSize = 4096

// NewFormulaTable creates a formula table. resolveName may be nil when the
// workbook has no defined names.
func NewFormulaTable(size int, resolveName func(name string) (Address, bool)) *FormulaTable {
	if size <= 0 {
		size = DefaultFormulaCacheSize
	}
	cache, err := lru.New[string, parsedFormula](size)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &FormulaTable{cache: cache, resolveName: resolveName}
}

// Parse builds the Formula for a cell. parse failures do not fail here; they
// are kept on the formula and surface when it is evaluated.
func (ft *FormulaTable) Parse(addr Address, text string) *Formula {
	key := addr.Sheet + "\x00" + text
	parsed, ok := ft.cache.Get(key)
	if !ok {
		parsed = ft.parse(addr.Sheet, text)
		ft.cache.Add(key, parsed)
	}
	return &Formula{
		Address:  addr,
		Text:     text,
		Needed:   parsed.needed,
		ast:      parsed.ast,
		parseErr: parsed.err,
	}
}

func (ft *FormulaTable) parse(sheet, text string) parsedFormula {
	ast, err := ParseFormula(text, &ParserContext{Sheet: sheet, ResolveName: ft.resolveName})
	if err != nil {
		return parsedFormula{err: err}
	}
	return parsedFormula{ast: ast, needed: collectNeeded(ast)}
}

// Len returns the number of cached parsed formulas
func (ft *FormulaTable) Len() int {
	return ft.cache.Len()
}
