package focus

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type NodePosition struct {
	Start int
	End   int
}

// ASTNode is one node of a parsed formula. references are resolved to
// absolute addresses at parse time, so evaluation only needs the values of
// the formula's needed addresses.
type ASTNode interface {
	Eval(ctx *evalContext) (Primitive, error)
	GetPosition() NodePosition
	ToString() string
}

// evalContext carries what a formula needs while being evaluated
type evalContext struct {
	values    Values
	functions *BuiltInFunctions
}

// ParserContext provides the sheet unqualified references belong to and the
// workbook's defined names
type ParserContext struct {
	Sheet       string
	ResolveName func(name string) (Address, bool)
}

// Parser parses tokens into an AST
type Parser struct {
	tokens  []Token
	pos     int
	context *ParserContext
}

// StringNode represents a string literal
type StringNode struct {
	Value    string
	Position NodePosition
}

func (n *StringNode) Eval(ctx *evalContext) (Primitive, error) {
	return n.Value, nil
}

func (n *StringNode) GetPosition() NodePosition {
	return n.Position
}

func (n *StringNode) ToString() string {
	escaped := strings.ReplaceAll(n.Value, "\"", "\"\"")
	return fmt.Sprintf("\"%s\"", escaped)
}

// NumberNode represents a numeric literal
type NumberNode struct {
	Value    float64
	Position NodePosition
}

func (n *NumberNode) Eval(ctx *evalContext) (Primitive, error) {
	return n.Value, nil
}

func (n *NumberNode) GetPosition() NodePosition {
	return n.Position
}

func (n *NumberNode) ToString() string {
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}

// BooleanNode represents a boolean literal
type BooleanNode struct {
	Value    bool
	Position NodePosition
}

func (n *BooleanNode) Eval(ctx *evalContext) (Primitive, error) {
	return n.Value, nil
}

func (n *BooleanNode) GetPosition() NodePosition {
	return n.Position
}

func (n *BooleanNode) ToString() string {
	if n.Value {
		return "TRUE"
	}
	return "FALSE"
}

// ErrorNode represents a literal error value such as #N/A
type ErrorNode struct {
	Code     ErrorCode
	Position NodePosition
}

func (n *ErrorNode) Eval(ctx *evalContext) (Primitive, error) {
	return NewSpreadsheetError(n.Code, ""), nil
}

func (n *ErrorNode) GetPosition() NodePosition {
	return n.Position
}

func (n *ErrorNode) ToString() string {
	return ErrorMapper[n.Code]
}

// CellRefNode represents a reference to a single cell
type CellRefNode struct {
	Ref      Address
	Position NodePosition
}

func (n *CellRefNode) Eval(ctx *evalContext) (Primitive, error) {
	// empty cells read as nil
	return ctx.values[n.Ref], nil
}

func (n *CellRefNode) GetPosition() NodePosition {
	return n.Position
}

func (n *CellRefNode) ToString() string {
	return quoteSheet(n.Ref.Sheet) + "!" + n.Ref.CellName()
}

// RangeNode represents a rectangular range of cells
type RangeNode struct {
	Ref      Address
	Position NodePosition
}

func (n *RangeNode) Eval(ctx *evalContext) (Primitive, error) {
	return ctx.values.Grid(n.Ref), nil
}

func (n *RangeNode) GetPosition() NodePosition {
	return n.Position
}

func (n *RangeNode) ToString() string {
	return quoteSheet(n.Ref.Sheet) + "!" + n.Ref.CellName()
}

// NamedRangeNode represents a defined name. Ref is nil when the name was
// not defined when the formula was parsed.
type NamedRangeNode struct {
	Name     string
	Ref      *Address
	Position NodePosition
}

func (n *NamedRangeNode) Eval(ctx *evalContext) (Primitive, error) {
	if n.Ref == nil {
		return nil, NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("Named range '%s' not found", n.Name))
	}
	if !n.Ref.IsRange() {
		return ctx.values[*n.Ref], nil
	}
	return ctx.values.Grid(*n.Ref), nil
}

func (n *NamedRangeNode) GetPosition() NodePosition {
	return n.Position
}

func (n *NamedRangeNode) ToString() string {
	return n.Name
}

// BinaryOpNode represents a binary operation
type BinaryOpNode struct {
	Op       BinaryOp
	Left     ASTNode
	Right    ASTNode
	Position NodePosition
}

func (n *BinaryOpNode) Eval(ctx *evalContext) (Primitive, error) {
	leftVal, err := evalOperand(n.Left, ctx)
	if err != nil {
		return nil, err
	}
	rightVal, err := evalOperand(n.Right, ctx)
	if err != nil {
		return nil, err
	}

	// propagate errors
	if err, ok := leftVal.(*SpreadsheetError); ok {
		return err, nil
	}
	if err, ok := rightVal.(*SpreadsheetError); ok {
		return err, nil
	}

	switch n.Op {
	case BinOpAdd, BinOpSubtract, BinOpMultiply, BinOpDivide, BinOpPower:
		leftNum, leftOk := toNumber(leftVal)
		rightNum, rightOk := toNumber(rightVal)
		if !leftOk || !rightOk {
			return nil, NewSpreadsheetError(ErrorCodeValue, "Arithmetic requires numeric values")
		}
		return arithmetic(n.Op, leftNum, rightNum)

	case BinOpConcat:
		return toString(leftVal) + toString(rightVal), nil

	case BinOpEqual:
		return comparePrimitives(leftVal, rightVal) == 0, nil

	case BinOpNotEqual:
		return comparePrimitives(leftVal, rightVal) != 0, nil

	default:
		cmp := comparePrimitives(leftVal, rightVal)
		if cmp == -2 {
			return nil, NewSpreadsheetError(ErrorCodeValue, "Cannot compare these values")
		}
		switch n.Op {
		case BinOpLess:
			return cmp < 0, nil
		case BinOpLessEqual:
			return cmp <= 0, nil
		case BinOpGreater:
			return cmp > 0, nil
		case BinOpGreaterEqual:
			return cmp >= 0, nil
		}
		return nil, NewSpreadsheetError(ErrorCodeValue, "Unknown operator")
	}
}

func arithmetic(op BinaryOp, left, right float64) (Primitive, error) {
	switch op {
	case BinOpAdd:
		return finite(left + right), nil
	case BinOpSubtract:
		return finite(left - right), nil
	case BinOpMultiply:
		return finite(left * right), nil
	case BinOpDivide:
		if right == 0 {
			return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
		}
		return finite(left / right), nil
	case BinOpPower:
		return finite(math.Pow(left, right)), nil
	}
	return nil, NewSpreadsheetError(ErrorCodeValue, "Unknown operator")
}

// finite turns overflowed or undefined numbers into #NUM!
func finite(v Primitive) Primitive {
	if num, ok := v.(float64); ok && (math.IsNaN(num) || math.IsInf(num, 0)) {
		return NewSpreadsheetError(ErrorCodeNum, "result is not a finite number")
	}
	return v
}

func (n *BinaryOpNode) GetPosition() NodePosition {
	return n.Position
}

var binaryOpText = map[BinaryOp]string{
	BinOpAdd:          "+",
	BinOpSubtract:     "-",
	BinOpMultiply:     "*",
	BinOpDivide:       "/",
	BinOpPower:        "^",
	BinOpConcat:       "&",
	BinOpEqual:        "=",
	BinOpNotEqual:     "<>",
	BinOpLess:         "<",
	BinOpLessEqual:    "<=",
	BinOpGreater:      ">",
	BinOpGreaterEqual: ">=",
}

func (n *BinaryOpNode) ToString() string {
	return fmt.Sprintf("(%s%s%s)", n.Left.ToString(), binaryOpText[n.Op], n.Right.ToString())
}

// UnaryOpNode represents a unary operation
type UnaryOpNode struct {
	Op       UnaryOp
	Operand  ASTNode
	Position NodePosition
}

func (n *UnaryOpNode) Eval(ctx *evalContext) (Primitive, error) {
	val, err := evalOperand(n.Operand, ctx)
	if err != nil {
		return nil, err
	}
	if err, ok := val.(*SpreadsheetError); ok {
		return err, nil
	}

	num, ok := toNumber(val)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "Unary operator requires a numeric value")
	}
	switch n.Op {
	case UnaryOpPlus:
		return num, nil
	case UnaryOpMinus:
		return -num, nil
	case UnaryOpPercent:
		return num / 100.0, nil
	default:
		return nil, NewSpreadsheetError(ErrorCodeValue, "Unknown unary operator")
	}
}

func (n *UnaryOpNode) GetPosition() NodePosition {
	return n.Position
}

func (n *UnaryOpNode) ToString() string {
	switch n.Op {
	case UnaryOpMinus:
		return "-" + n.Operand.ToString()
	case UnaryOpPercent:
		return fmt.Sprintf("(%s%%)", n.Operand.ToString())
	default:
		return "+" + n.Operand.ToString()
	}
}

// FunctionCallNode represents a function call
type FunctionCallNode struct {
	Name     string
	Args     []ASTNode
	Position NodePosition
}

func (n *FunctionCallNode) Eval(ctx *evalContext) (Primitive, error) {
	// error values are passed to the function, which decides how to
	// handle them
	args := make([]any, len(n.Args))
	for i, argNode := range n.Args {
		argVal, err := evalOperand(argNode, ctx)
		if err != nil {
			return nil, err
		}
		args[i] = argVal
	}
	result, err := ctx.functions.Call(n.Name, args...)
	if err != nil {
		return nil, err
	}
	return finite(result), nil
}

func (n *FunctionCallNode) GetPosition() NodePosition {
	return n.Position
}

func (n *FunctionCallNode) ToString() string {
	args := make([]string, len(n.Args))
	for i, arg := range n.Args {
		args[i] = arg.ToString()
	}
	return fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ","))
}

// evalOperand evaluates a node, turning spreadsheet errors into error values.
// any other error (e.g. an unsupported function) is returned as is.
func evalOperand(node ASTNode, ctx *evalContext) (Primitive, error) {
	val, err := node.Eval(ctx)
	if err != nil {
		var spreadsheetErr *SpreadsheetError
		if errors.As(err, &spreadsheetErr) {
			return spreadsheetErr, nil
		}
		return nil, err
	}
	return val, nil
}

// NewParser creates a new parser with the given tokens and context
func NewParser(tokens []Token, context *ParserContext) *Parser {
	if context == nil {
		context = &ParserContext{}
	}
	return &Parser{
		tokens:  tokens,
		context: context,
	}
}

// ParseFormula tokenizes and parses formula text (with its leading =)
func ParseFormula(text string, context *ParserContext) (ASTNode, error) {
	tokens, err := NewLexer(text).Tokenize()
	if err != nil {
		return nil, err
	}
	return NewParser(tokens, context).Parse()
}

// Parse parses the tokens into an AST
func (p *Parser) Parse() (ASTNode, error) {
	if len(p.tokens) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "no tokens to parse")
	}
	if p.tokens[p.pos].Type != TokenEquals {
		return nil, NewSpreadsheetError(ErrorCodeValue, "formula must start with '='")
	}
	p.pos++ // consume the equals token

	node, err := p.parseComparison()
	if err != nil {
		return nil, err
	}

	if p.pos < len(p.tokens) && p.tokens[p.pos].Type != TokenEOF {
		return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("unexpected token after expression: %s", p.tokens[p.pos].Value))
	}
	return node, nil
}

// parseBinaryLevel parses one left-associative precedence level
func (p *Parser) parseBinaryLevel(next func() (ASTNode, error), ops map[string]BinaryOp) (ASTNode, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}

	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		if tok.Type != TokenBinaryOp {
			break
		}
		op, ok := ops[tok.Value]
		if !ok {
			break
		}

		p.pos++
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{
			Op:       op,
			Left:     left,
			Right:    right,
			Position: NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End},
		}
	}
	return left, nil
}

var (
	comparisonOps = map[string]BinaryOp{
		"=": BinOpEqual, "<>": BinOpNotEqual, "<": BinOpLess,
		"<=": BinOpLessEqual, ">": BinOpGreater, ">=": BinOpGreaterEqual,
	}
	concatOps         = map[string]BinaryOp{"&": BinOpConcat}
	additiveOps       = map[string]BinaryOp{"+": BinOpAdd, "-": BinOpSubtract}
	multiplicativeOps = map[string]BinaryOp{"*": BinOpMultiply, "/": BinOpDivide}
)

// parseComparison handles comparison operators (lowest precedence)
func (p *Parser) parseComparison() (ASTNode, error) {
	return p.parseBinaryLevel(p.parseConcatenation, comparisonOps)
}

// parseConcatenation handles string concatenation operator
func (p *Parser) parseConcatenation() (ASTNode, error) {
	return p.parseBinaryLevel(p.parseAddition, concatOps)
}

// parseAddition handles addition and subtraction
func (p *Parser) parseAddition() (ASTNode, error) {
	return p.parseBinaryLevel(p.parseMultiplication, additiveOps)
}

// parseMultiplication handles multiplication and division
func (p *Parser) parseMultiplication() (ASTNode, error) {
	return p.parseBinaryLevel(p.parsePower, multiplicativeOps)
}

// parsePower handles exponentiation
func (p *Parser) parsePower() (ASTNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	// right-associative
	if p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenBinaryOp && p.tokens[p.pos].Value == "^" {
		p.pos++
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		return &BinaryOpNode{
			Op:       BinOpPower,
			Left:     left,
			Right:    right,
			Position: NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End},
		}, nil
	}
	return left, nil
}

// parseUnary handles unary operators
func (p *Parser) parseUnary() (ASTNode, error) {
	if p.pos >= len(p.tokens) {
		return nil, NewSpreadsheetError(ErrorCodeValue, "unexpected end of expression")
	}

	tok := p.tokens[p.pos]
	if tok.Type != TokenUnaryPrefixOp {
		return p.parsePostfix()
	}

	op := UnaryOpPlus
	if tok.Value == "-" {
		op = UnaryOpMinus
	}
	p.pos++
	operand, err := p.parseUnary() // recurse for chained unary operators
	if err != nil {
		return nil, err
	}
	return &UnaryOpNode{
		Op:       op,
		Operand:  operand,
		Position: NodePosition{Start: tok.Pos, End: operand.GetPosition().End},
	}, nil
}

// parsePostfix handles postfix operators (percent)
func (p *Parser) parsePostfix() (ASTNode, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenUnaryPostfixOp {
		endPos := p.tokens[p.pos].Pos + 1
		p.pos++
		node = &UnaryOpNode{
			Op:       UnaryOpPercent,
			Operand:  node,
			Position: NodePosition{Start: node.GetPosition().Start, End: endPos},
		}
	}
	return node, nil
}

// parsePrimary handles primary expressions (literals, references,
// functions, parentheses)
func (p *Parser) parsePrimary() (ASTNode, error) {
	if p.pos >= len(p.tokens) {
		return nil, NewSpreadsheetError(ErrorCodeValue, "unexpected end of expression")
	}

	tok := p.tokens[p.pos]
	position := NodePosition{Start: tok.Pos, End: tok.Pos + len([]rune(tok.Value))}

	switch tok.Type {
	case TokenNumber:
		p.pos++
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("invalid number: %s", tok.Value))
		}
		return &NumberNode{Value: val, Position: position}, nil

	case TokenString:
		p.pos++
		position.End += 2 // quotes
		return &StringNode{Value: tok.Value, Position: position}, nil

	case TokenBoolean:
		p.pos++
		return &BooleanNode{Value: tok.Value == "TRUE", Position: position}, nil

	case TokenError:
		p.pos++
		return &ErrorNode{Code: errorCodeByText[tok.Value], Position: position}, nil

	case TokenCell, TokenRange:
		p.pos++
		ref, err := ParseAddress(tok.Value, p.context.Sheet)
		if err != nil {
			return nil, NewSpreadsheetError(ErrorCodeRef, fmt.Sprintf("invalid reference: %s", tok.Value))
		}
		if tok.Type == TokenCell {
			return &CellRefNode{Ref: ref, Position: position}, nil
		}
		return &RangeNode{Ref: ref, Position: position}, nil

	case TokenIdentifier:
		p.pos++
		node := &NamedRangeNode{Name: tok.Value, Position: position}
		if p.context.ResolveName != nil {
			if ref, ok := p.context.ResolveName(tok.Value); ok {
				node.Ref = &ref
			}
		}
		return node, nil

	case TokenFunction:
		return p.parseFunctionCall()

	case TokenLeftParen:
		p.pos++
		node, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != TokenRightParen {
			return nil, NewSpreadsheetError(ErrorCodeValue, "expected closing parenthesis")
		}
		p.pos++
		return node, nil

	default:
		return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("unexpected token: %s", tok.Value))
	}
}

// parseFunctionCall parses a function call
func (p *Parser) parseFunctionCall() (ASTNode, error) {
	funcTok := p.tokens[p.pos]
	p.pos++

	if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != TokenLeftParen {
		return nil, NewSpreadsheetError(ErrorCodeValue, "expected '(' after function name")
	}
	p.pos++

	args := []ASTNode{}
	if p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenRightParen {
		p.pos++
		return &FunctionCallNode{
			Name:     funcTok.Value,
			Args:     args,
			Position: NodePosition{Start: funcTok.Pos, End: p.tokens[p.pos-1].Pos + 1},
		}, nil
	}

	for {
		arg, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		if p.pos >= len(p.tokens) {
			return nil, NewSpreadsheetError(ErrorCodeValue, "unexpected end in function arguments")
		}
		if p.tokens[p.pos].Type == TokenRightParen {
			p.pos++
			break
		}
		if p.tokens[p.pos].Type != TokenComma {
			return nil, NewSpreadsheetError(ErrorCodeValue, "expected ',' or ')' in function arguments")
		}
		p.pos++
	}

	return &FunctionCallNode{
		Name:     funcTok.Value,
		Args:     args,
		Position: NodePosition{Start: funcTok.Pos, End: p.tokens[p.pos-1].Pos + 1},
	}, nil
}

// collectNeeded walks the AST and returns every referenced address in
// source order. duplicates are kept.
func collectNeeded(node ASTNode) []Address {
	var out []Address
	var walk func(ASTNode)
	walk = func(node ASTNode) {
		switch n := node.(type) {
		case *CellRefNode:
			out = append(out, n.Ref)
		case *RangeNode:
			out = append(out, n.Ref)
		case *NamedRangeNode:
			if n.Ref != nil {
				out = append(out, *n.Ref)
			}
		case *BinaryOpNode:
			walk(n.Left)
			walk(n.Right)
		case *UnaryOpNode:
			walk(n.Operand)
		case *FunctionCallNode:
			for _, arg := range n.Args {
				walk(arg)
			}
		}
	}
	walk(node)
	return out
}

// comparePrimitives compares two primitive values. returns -1 if left < right,
// 0 if equal, 1 if left > right, -2 if not comparable
func comparePrimitives(left, right Primitive) int {
	if left == nil && right == nil {
		return 0
	}
	if left == nil {
		left = zeroLike(right)
	}
	if right == nil {
		right = zeroLike(left)
	}

	if _, isRange := left.(*RangeValue); isRange {
		return -2
	}
	if _, isRange := right.(*RangeValue); isRange {
		return -2
	}

	leftBool, leftIsBool := left.(bool)
	rightBool, rightIsBool := right.(bool)
	if leftIsBool && rightIsBool {
		switch {
		case leftBool == rightBool:
			return 0
		case !leftBool:
			return -1
		default:
			return 1
		}
	}

	leftNum, leftIsNum := left.(float64)
	rightNum, rightIsNum := right.(float64)
	if leftIsNum && rightIsNum {
		switch {
		case leftNum < rightNum:
			return -1
		case leftNum > rightNum:
			return 1
		}
		return 0
	}

	// excel orders numbers < text < booleans
	leftRank, rightRank := typeRank(left), typeRank(right)
	if leftRank != rightRank {
		if leftRank < rightRank {
			return -1
		}
		return 1
	}

	return strings.Compare(strings.ToLower(toString(left)), strings.ToLower(toString(right)))
}

func zeroLike(v Primitive) Primitive {
	switch v.(type) {
	case string:
		return ""
	case bool:
		return false
	default:
		return 0.0
	}
}

func typeRank(v Primitive) int {
	switch v.(type) {
	case float64:
		return 0
	case string:
		return 1
	case bool:
		return 2
	default:
		return 3
	}
}
