package focus

import "strings"

// TokenType represents different types of tokens in formulas
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenEquals
	TokenNumber
	TokenString
	TokenBoolean
	TokenError
	TokenCell
	TokenRange
	TokenFunction
	TokenUnaryPrefixOp
	TokenUnaryPostfixOp
	TokenBinaryOp
	TokenComma
	TokenLeftParen
	TokenRightParen
	TokenIdentifier
	TokenInvalid
)

// BinaryOp represents binary operators in AST nodes
type BinaryOp int

const (
	BinOpAdd BinaryOp = iota
	BinOpSubtract
	BinOpMultiply
	BinOpDivide
	BinOpPower
	BinOpConcat
	BinOpEqual
	BinOpNotEqual
	BinOpLess
	BinOpLessEqual
	BinOpGreater
	BinOpGreaterEqual
)

// UnaryOp represents unary operators in AST nodes
type UnaryOp int

const (
	UnaryOpPlus UnaryOp = iota
	UnaryOpMinus
	UnaryOpPercent
)

// character classification constants. slightly easier to read.
const (
	charNull       = 0
	charTab        = '\t'
	charNewline    = '\n'
	charReturn     = '\r'
	charSpace      = ' '
	charQuote      = '"'
	charApostrophe = '\''
	charPercent    = '%'
	charAmpersand  = '&'
	charLParen     = '('
	charRParen     = ')'
	charAsterisk   = '*'
	charPlus       = '+'
	charComma      = ','
	charMinus      = '-'
	charPeriod     = '.'
	charSlash      = '/'
	charColon      = ':'
	charLess       = '<'
	charEqual      = '='
	charGreater    = '>'
	charCaret      = '^'
	charUnderscore = '_'
	charExclaim    = '!'
	charDollar     = '$'
	charHash       = '#'
)

// TokenState represents the lexer state for validation
type TokenState int

const (
	StateStart TokenState = iota
	StateAfterEquals
	StateAfterValue
	StateAfterOperator
	StateAfterLeftParen
	StateAfterRightParen
	StateAfterComma
	StateAfterIdentifier
)

// valueTokens can start an operand
var valueTokens = map[TokenType]bool{
	TokenNumber:        true,
	TokenString:        true,
	TokenBoolean:       true,
	TokenError:         true,
	TokenCell:          true,
	TokenRange:         true,
	TokenFunction:      true,
	TokenIdentifier:    true,
	TokenLeftParen:     true,
	TokenUnaryPrefixOp: true,
}

// afterOperandTokens may follow a complete operand
var afterOperandTokens = map[TokenType]bool{
	TokenBinaryOp:       true,
	TokenUnaryPostfixOp: true,
	TokenRightParen:     true,
	TokenComma:          true,
	TokenEOF:            true,
}

// tokenTransitions maps the current state to valid next token types
var tokenTransitions = map[TokenState]map[TokenType]bool{
	StateStart:           {TokenEquals: true},
	StateAfterEquals:     valueTokens,
	StateAfterOperator:   valueTokens,
	StateAfterComma:      valueTokens,
	StateAfterValue:      afterOperandTokens,
	StateAfterRightParen: afterOperandTokens,
	StateAfterLeftParen: func() map[TokenType]bool {
		m := map[TokenType]bool{TokenRightParen: true} // arg-less functions like PI()
		for k := range valueTokens {
			m[k] = true
		}
		return m
	}(),
	StateAfterIdentifier: func() map[TokenType]bool {
		m := map[TokenType]bool{TokenLeftParen: true} // function call
		for k := range afterOperandTokens {
			m[k] = true
		}
		return m
	}(),
}

// Token represents a lexical token with position information
type Token struct {
	Type  TokenType
	Value string
	Pos   int // rune position in input
}

// Lexer tokenizes spreadsheet formula expressions
type Lexer struct {
	input      string
	runes      []rune // UTF-8 aware representation
	pos        int
	state      TokenState
	parenDepth int
	tokens     []Token
}

// NewLexer creates a new lexer for the given formula input
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		runes:  []rune(input), // runes for UTF-8 support. could do without but a real pain
		state:  StateStart,
		tokens: []Token{},
	}
}

// Tokenize tokenizes the entire input and returns tokens or the first error
func (l *Lexer) Tokenize() ([]Token, error) {
	// full formula lexer - must start with =
	if len(l.runes) == 0 || l.runes[0] != '=' {
		return nil, lexError("formula must start with '='")
	}

	for {
		tok := l.nextToken()
		if tok.Type == TokenInvalid {
			return nil, lexError(tok.Value)
		}
		if !tokenTransitions[l.state][tok.Type] {
			if tok.Type == TokenEOF {
				return nil, lexError("unexpected end of formula")
			}
			return nil, lexError("unexpected token: " + tok.Value)
		}
		l.tokens = append(l.tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
		l.updateState(tok.Type)
	}

	if l.parenDepth > 0 {
		return nil, lexError("unbalanced parentheses: missing closing parenthesis")
	}
	return l.tokens, nil
}

type lexError string

func (e lexError) Error() string { return string(e) }

// updateState updates the lexer state based on the token type
func (l *Lexer) updateState(tokenType TokenType) {
	switch tokenType {
	case TokenEquals:
		l.state = StateAfterEquals
	case TokenNumber, TokenString, TokenBoolean, TokenError, TokenCell, TokenRange:
		l.state = StateAfterValue
	case TokenUnaryPrefixOp, TokenBinaryOp:
		l.state = StateAfterOperator
	case TokenUnaryPostfixOp:
		// postfix operators don't change state
	case TokenLeftParen:
		l.state = StateAfterLeftParen
	case TokenRightParen:
		l.state = StateAfterRightParen
	case TokenComma:
		l.state = StateAfterComma
	case TokenIdentifier, TokenFunction:
		l.state = StateAfterIdentifier
	}
}

// nextToken returns the next token from the input
func (l *Lexer) nextToken() Token {
	l.skipWhitespace()

	if l.pos >= len(l.runes) {
		return Token{Type: TokenEOF, Pos: l.pos}
	}

	startPos := l.pos
	ch := l.current()

	if ch == charQuote {
		return l.scanString()
	}

	// single-quoted sheet references
	if ch == charApostrophe {
		return l.scanQuotedSheetRef()
	}

	if ch == charHash {
		return l.scanErrorLiteral()
	}

	if l.isDigit(ch) || (ch == charPeriod && l.isDigit(l.peek(1))) {
		return l.scanNumber()
	}

	switch ch {
	case charLParen:
		l.pos++
		l.parenDepth++
		return Token{Type: TokenLeftParen, Value: "(", Pos: startPos}
	case charRParen:
		l.pos++
		l.parenDepth--
		if l.parenDepth < 0 {
			return Token{Type: TokenInvalid, Value: "unbalanced parentheses: too many closing parentheses", Pos: startPos}
		}
		return Token{Type: TokenRightParen, Value: ")", Pos: startPos}
	case charComma:
		l.pos++
		return Token{Type: TokenComma, Value: ",", Pos: startPos}
	case charPlus, charMinus:
		return l.scanUnaryPrefixOrBinaryOp()
	case charAsterisk, charSlash, charCaret, charAmpersand, charLess, charGreater, charExclaim:
		return l.scanBinaryOp()
	case charPercent:
		l.pos++
		return Token{Type: TokenUnaryPostfixOp, Value: "%", Pos: startPos}
	case charEqual:
		l.pos++
		// the first character is the formula prefix, any other = compares
		if startPos == 0 {
			return Token{Type: TokenEquals, Value: "=", Pos: startPos}
		}
		return Token{Type: TokenBinaryOp, Value: "=", Pos: startPos}
	}

	if l.isAlpha(ch) || ch == charUnderscore || ch == charDollar {
		return l.scanIdentifierOrCell()
	}

	l.pos++
	return Token{Type: TokenInvalid, Value: "unexpected character: " + string(ch), Pos: startPos}
}

// helper methods for character navigation and classification

// substring returns a substring of the original input based on rune positions
func (l *Lexer) substring(start, end int) string {
	if start < 0 || end > len(l.runes) || start > end {
		return ""
	}
	return string(l.runes[start:end])
}

func (l *Lexer) current() rune {
	if l.pos >= len(l.runes) {
		return charNull
	}
	return l.runes[l.pos]
}

func (l *Lexer) peek(offset int) rune {
	pos := l.pos + offset
	if pos >= len(l.runes) || pos < 0 {
		return charNull
	}
	return l.runes[pos]
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.runes) {
		ch := l.current()
		if ch == charSpace || ch == charTab || ch == charNewline || ch == charReturn {
			l.pos++
		} else {
			break
		}
	}
}

func (l *Lexer) isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func (l *Lexer) isAlpha(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func (l *Lexer) isNameChar(ch rune) bool {
	return l.isAlpha(ch) || l.isDigit(ch) || ch == charUnderscore || ch == charPeriod
}

// scanNumber scans a number token including decimals and scientific notation
func (l *Lexer) scanNumber() Token {
	startPos := l.pos

	for l.pos < len(l.runes) && l.isDigit(l.current()) {
		l.pos++
	}

	if l.current() == charPeriod {
		l.pos++ // consume '.'
		for l.pos < len(l.runes) && l.isDigit(l.current()) {
			l.pos++
		}
	}

	if l.current() == 'e' || l.current() == 'E' {
		savedPos := l.pos
		l.pos++ // consume 'e' or 'E'
		if l.current() == charPlus || l.current() == charMinus {
			l.pos++
		}
		if !l.isDigit(l.current()) {
			// not scientific notation, restore position
			l.pos = savedPos
		} else {
			for l.pos < len(l.runes) && l.isDigit(l.current()) {
				l.pos++
			}
		}
	}

	return Token{Type: TokenNumber, Value: l.substring(startPos, l.pos), Pos: startPos}
}

// scanString scans a string literal with support for double-quote escapes
func (l *Lexer) scanString() Token {
	startPos := l.pos
	l.pos++ // consume opening quote

	var result []rune
	for l.pos < len(l.runes) {
		ch := l.current()
		if ch == charQuote {
			if l.peek(1) == charQuote {
				result = append(result, charQuote)
				l.pos += 2
				continue
			}
			l.pos++ // consume closing quote
			return Token{Type: TokenString, Value: string(result), Pos: startPos}
		}
		result = append(result, ch)
		l.pos++
	}

	return Token{Type: TokenInvalid, Value: "unclosed string literal", Pos: startPos}
}

// scanErrorLiteral scans literal error values like #N/A or #DIV/0!
func (l *Lexer) scanErrorLiteral() Token {
	startPos := l.pos
	for text := range errorCodeByText {
		if strings.HasPrefix(string(l.runes[l.pos:]), text) {
			l.pos += len([]rune(text))
			return Token{Type: TokenError, Value: text, Pos: startPos}
		}
	}
	l.pos++
	return Token{Type: TokenInvalid, Value: "unknown error literal", Pos: startPos}
}

// scanIdentifierOrCell scans identifiers, functions, cells, ranges, sheet
// prefixes and booleans
func (l *Lexer) scanIdentifierOrCell() Token {
	startPos := l.pos

	for l.pos < len(l.runes) && (l.isNameChar(l.current()) || l.current() == charDollar) {
		l.pos++
	}

	value := l.substring(startPos, l.pos)
	upperValue := strings.ToUpper(value)

	// sheet prefix (identifier followed by !)
	if l.current() == charExclaim && l.peek(1) != charEqual {
		l.pos++ // consume !
		return l.scanReference(startPos)
	}

	// checked before cells so names like LOG10( stay functions
	if l.current() == charLParen {
		return Token{Type: TokenFunction, Value: upperValue, Pos: startPos}
	}

	if l.isCell(value) {
		l.pos = startPos
		return l.scanReference(startPos)
	}

	if upperValue == "TRUE" || upperValue == "FALSE" {
		return Token{Type: TokenBoolean, Value: upperValue, Pos: startPos}
	}

	// it's an identifier (possibly a named range)
	return Token{Type: TokenIdentifier, Value: value, Pos: startPos}
}

// scanQuotedSheetRef scans a reference starting with a quoted sheet name
func (l *Lexer) scanQuotedSheetRef() Token {
	startPos := l.pos
	l.pos++ // consume opening single quote

	for l.pos < len(l.runes) {
		if l.current() == charApostrophe {
			if l.peek(1) == charApostrophe {
				l.pos += 2 // escaped quote
				continue
			}
			break
		}
		l.pos++
	}
	if l.pos >= len(l.runes) {
		return Token{Type: TokenInvalid, Value: "unclosed sheet name", Pos: startPos}
	}
	l.pos++ // consume closing single quote

	if l.current() != charExclaim {
		return Token{Type: TokenInvalid, Value: "expected ! after sheet name", Pos: startPos}
	}
	l.pos++ // consume !
	return l.scanReference(startPos)
}

// scanReference scans the cell or range part of a reference. startPos is
// where the whole reference (including any sheet prefix) began.
func (l *Lexer) scanReference(startPos int) Token {
	first := l.scanCellText()
	if !l.isCell(first) {
		return Token{Type: TokenInvalid, Value: "invalid cell reference: " + l.substring(startPos, l.pos), Pos: startPos}
	}

	if l.current() == charColon {
		savedPos := l.pos
		l.pos++ // consume ':'
		second := l.scanCellText()
		if l.isCell(second) {
			return Token{Type: TokenRange, Value: l.substring(startPos, l.pos), Pos: startPos}
		}
		l.pos = savedPos
		return Token{Type: TokenInvalid, Value: "invalid range reference: " + l.substring(startPos, l.pos+1), Pos: startPos}
	}

	return Token{Type: TokenCell, Value: l.substring(startPos, l.pos), Pos: startPos}
}

func (l *Lexer) scanCellText() string {
	start := l.pos
	for l.pos < len(l.runes) && (l.isAlpha(l.current()) || l.isDigit(l.current()) || l.current() == charDollar) {
		l.pos++
	}
	return l.substring(start, l.pos)
}

// isCell checks if a string is a valid cell reference (e.g., A1, $B$12)
func (l *Lexer) isCell(s string) bool {
	s = strings.TrimPrefix(s, "$")
	letterEnd := 0
	for i, ch := range s {
		if l.isAlpha(ch) {
			letterEnd = i + 1
		} else {
			break
		}
	}

	// one to three column letters, then the row
	if letterEnd == 0 || letterEnd > 3 || letterEnd == len(s) {
		return false
	}
	rest := strings.TrimPrefix(s[letterEnd:], "$")
	if rest == "" {
		return false
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] < '0' || rest[i] > '9' {
			return false
		}
	}
	return true
}

// scanUnaryPrefixOrBinaryOp scans + and - which can be either unary
// prefix or binary
func (l *Lexer) scanUnaryPrefixOrBinaryOp() Token {
	startPos := l.pos
	ch := l.current()
	l.pos++

	if l.isUnaryContext() {
		return Token{Type: TokenUnaryPrefixOp, Value: string(ch), Pos: startPos}
	}
	return Token{Type: TokenBinaryOp, Value: string(ch), Pos: startPos}
}

// scanBinaryOp scans binary operators
func (l *Lexer) scanBinaryOp() Token {
	startPos := l.pos
	ch := l.current()
	l.pos++

	switch ch {
	case charLess:
		switch l.current() {
		case charEqual:
			l.pos++
			return Token{Type: TokenBinaryOp, Value: "<=", Pos: startPos}
		case charGreater:
			l.pos++
			return Token{Type: TokenBinaryOp, Value: "<>", Pos: startPos}
		}
		return Token{Type: TokenBinaryOp, Value: "<", Pos: startPos}
	case charGreater:
		if l.current() == charEqual {
			l.pos++
			return Token{Type: TokenBinaryOp, Value: ">=", Pos: startPos}
		}
		return Token{Type: TokenBinaryOp, Value: ">", Pos: startPos}
	case charExclaim:
		if l.current() == charEqual {
			l.pos++
			return Token{Type: TokenBinaryOp, Value: "<>", Pos: startPos}
		}
		return Token{Type: TokenInvalid, Value: "unexpected '!'", Pos: startPos}
	}

	return Token{Type: TokenBinaryOp, Value: string(ch), Pos: startPos}
}

// isUnaryContext checks if the current context allows for unary operators
func (l *Lexer) isUnaryContext() bool {
	switch l.state {
	case StateStart, StateAfterEquals, StateAfterOperator, StateAfterLeftParen, StateAfterComma:
		return true
	default:
		return false
	}
}
