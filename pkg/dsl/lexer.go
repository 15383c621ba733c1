package dsl

import (
	"fmt"
	"strings"
)

// Lexer tokenizes DSL source text.
type Lexer struct {
	input  string
	pos    int
	line   int
	column int

	pending     []Token
	lastNewline bool
	inEnv       bool
}

// NewLexer creates a new Lexer for the given input string.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:       input,
		line:        1,
		column:      1,
		lastNewline: true,
	}
}

// Tokenize lexes the whole input. The returned slice always ends with an EOF
// token unless an error token was produced, in which case the error token is
// the last element.
func (l *Lexer) Tokenize() []Token {
	var toks []Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return toks
		}
	}
}

// Next returns the next token, advancing the position. Runs of statement
// terminators collapse into a single newline token.
func (l *Lexer) Next() Token {
	for {
		tok := l.next()
		if tok.Type == TokenNewline {
			if l.lastNewline {
				continue
			}
			l.lastNewline = true
			return tok
		}
		l.lastNewline = false
		return tok
	}
}

// Peek returns the next token without advancing.
func (l *Lexer) Peek() Token {
	saved := *l
	saved.pending = append([]Token(nil), l.pending...)
	tok := l.Next()
	*l = saved
	return tok
}

func (l *Lexer) next() Token {
	if len(l.pending) > 0 {
		tok := l.pending[0]
		l.pending = l.pending[1:]
		return tok
	}

	l.skipSpaceAndComments()

	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Line: l.line, Column: l.column}
	}

	ch := l.input[l.pos]
	line, col := l.line, l.column

	switch ch {
	case '\n', ';':
		l.advance()
		return Token{Type: TokenNewline, Raw: string(ch), Line: line, Column: col}
	case '{':
		l.advance()
		return Token{Type: TokenLBrace, Value: "{", Raw: "{", Line: line, Column: col}
	case '}':
		l.advance()
		return Token{Type: TokenRBrace, Value: "}", Raw: "}", Line: line, Column: col}
	case '[':
		l.advance()
		return Token{Type: TokenLBrack, Value: "[", Raw: "[", Line: line, Column: col}
	case ']':
		l.advance()
		return Token{Type: TokenRBrack, Value: "]", Raw: "]", Line: line, Column: col}
	case ',':
		l.advance()
		return Token{Type: TokenComma, Value: ",", Raw: ",", Line: line, Column: col}
	case '"':
		if strings.HasPrefix(l.input[l.pos:], `"""`) {
			return l.readRawString(line, col)
		}
		return l.readString(line, col)
	}

	if l.inEnv && ch == ')' {
		l.advance()
		l.inEnv = false
		return Token{Type: TokenWord, Value: ")", Raw: ")", Line: line, Column: col}
	}
	return l.readWord(line, col)
}

func (l *Lexer) advance() {
	if l.pos < len(l.input) {
		if l.input[l.pos] == '\n' {
			l.line++
			l.column = 1
		} else {
			l.column++
		}
		l.pos++
	}
}

func (l *Lexer) skipSpaceAndComments() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == ' ' || ch == '\t' || ch == '\r' {
			l.advance()
			continue
		}
		if ch == '#' {
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.advance()
			}
			continue
		}
		break
	}
}

func (l *Lexer) errorf(line, col int, format string, args ...interface{}) Token {
	return Token{
		Type:   TokenError,
		Value:  fmt.Sprintf(format, args...),
		Line:   line,
		Column: col,
	}
}

// partBuilder accumulates literal text and ${...} expressions.
type partBuilder struct {
	parts   []Part
	text    strings.Builder
	hasExpr bool
}

func (b *partBuilder) writeByte(ch byte) { b.text.WriteByte(ch) }

func (b *partBuilder) writeString(s string) { b.text.WriteString(s) }

func (b *partBuilder) expr(src string) {
	b.flush()
	b.parts = append(b.parts, Part{Text: src, Expr: true})
	b.hasExpr = true
}

func (b *partBuilder) flush() {
	if b.text.Len() > 0 {
		b.parts = append(b.parts, Part{Text: b.text.String()})
		b.text.Reset()
	}
}

// value returns the decoded text and, when interpolations are present, the
// part list.
func (b *partBuilder) value() (string, []Part) {
	b.flush()
	var v strings.Builder
	for _, p := range b.parts {
		if p.Expr {
			v.WriteString("${")
			v.WriteString(p.Text)
			v.WriteString("}")
			continue
		}
		v.WriteString(p.Text)
	}
	if !b.hasExpr {
		return v.String(), nil
	}
	return v.String(), b.parts
}

// readInterpolation consumes "${ ... }" starting at the '$' and returns the
// inner expression source.
func (l *Lexer) readInterpolation() (string, bool) {
	l.advance() // $
	l.advance() // {
	start := l.pos
	depth := 1
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				src := l.input[start:l.pos]
				l.advance()
				return strings.TrimSpace(src), true
			}
		case '\n':
			return "", false
		}
		l.advance()
	}
	return "", false
}

func (l *Lexer) readString(line, col int) Token {
	start := l.pos
	l.advance() // opening quote
	var b partBuilder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == '\\' && l.pos+1 < len(l.input):
			l.advance()
			esc := l.input[l.pos]
			switch esc {
			case 'n':
				b.writeByte('\n')
			case 't':
				b.writeByte('\t')
			case 'r':
				b.writeByte('\r')
			case '"', '\\', '$':
				b.writeByte(esc)
			default:
				b.writeByte('\\')
				b.writeByte(esc)
			}
			l.advance()
		case ch == '$' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '{':
			eLine, eCol := l.line, l.column
			src, ok := l.readInterpolation()
			if !ok {
				return l.errorf(eLine, eCol, "unterminated interpolation")
			}
			if src == "" {
				return l.errorf(eLine, eCol, "empty interpolation")
			}
			b.expr(src)
		case ch == '"':
			l.advance()
			value, parts := b.value()
			return Token{
				Type:   TokenString,
				Value:  value,
				Raw:    l.input[start:l.pos],
				Parts:  parts,
				Line:   line,
				Column: col,
			}
		case ch == '\n':
			return l.errorf(line, col, "unterminated string")
		default:
			b.writeByte(ch)
			l.advance()
		}
	}
	return l.errorf(line, col, "unterminated string")
}

func (l *Lexer) readRawString(line, col int) Token {
	start := l.pos
	for i := 0; i < 3; i++ {
		l.advance()
	}
	end := strings.Index(l.input[l.pos:], `"""`)
	if end < 0 {
		return l.errorf(line, col, "unterminated raw string")
	}
	body := l.input[l.pos : l.pos+end]
	for l.pos < start+3+end+3 {
		l.advance()
	}
	return Token{
		Type:   TokenString,
		Value:  body,
		Raw:    l.input[start:l.pos],
		Line:   line,
		Column: col,
	}
}

// readSample consumes a HAProxy sample expression "%[...]" into b, keeping
// brackets, commas and spaces that would otherwise end the word. Nested
// brackets are balanced and ${...} inside is still interpolated.
func (l *Lexer) readSample(b *partBuilder) bool {
	b.writeString("%[")
	l.advance()
	l.advance()
	depth := 1
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == '\n':
			return false
		case ch == '$' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '{':
			src, ok := l.readInterpolation()
			if !ok || src == "" {
				return false
			}
			b.expr(src)
			continue
		case ch == '[':
			depth++
		case ch == ']':
			depth--
		}
		b.writeByte(ch)
		l.advance()
		if depth == 0 {
			return true
		}
	}
	return false
}

// isWordBreak reports whether ch terminates an unquoted word.
func isWordBreak(ch byte) bool {
	switch ch {
	case ' ', '\t', '\r', '\n', ';', '{', '}', '[', ']', ',', '"':
		return true
	}
	return false
}

func (l *Lexer) readWord(line, col int) Token {
	start := l.pos
	var b partBuilder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if isWordBreak(ch) {
			break
		}
		if l.inEnv && ch == ')' {
			break
		}
		if ch == '%' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '[' {
			sLine, sCol := l.line, l.column
			if !l.readSample(&b) {
				return l.errorf(sLine, sCol, "unterminated sample expression")
			}
			continue
		}
		if ch == '\\' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '$' {
			l.advance()
			l.advance()
			b.writeByte('$')
			continue
		}
		if ch == '$' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '{' {
			eLine, eCol := l.line, l.column
			src, ok := l.readInterpolation()
			if !ok {
				return l.errorf(eLine, eCol, "unterminated interpolation")
			}
			if src == "" {
				return l.errorf(eLine, eCol, "empty interpolation")
			}
			b.expr(src)
			continue
		}
		b.writeByte(ch)
		l.advance()
		if ch == '(' && l.pos-start == 4 && l.input[start:l.pos] == "env(" && l.pos < len(l.input) && l.input[l.pos] == '"' {
			l.inEnv = true
			break
		}
	}

	raw := l.input[start:l.pos]
	value, parts := b.value()

	// "key:" followed by a break splits into the key and a colon.
	if parts == nil && len(value) > 1 && strings.HasSuffix(value, ":") && !strings.HasSuffix(value, "::") {
		key := value[:len(value)-1]
		l.pending = append(l.pending, Token{
			Type:   TokenColon,
			Value:  ":",
			Raw:    ":",
			Line:   line,
			Column: col + len(key),
		})
		return Token{Type: TokenWord, Value: key, Raw: key, Line: line, Column: col}
	}

	if parts != nil {
		return Token{Type: TokenWord, Value: value, Raw: raw, Parts: parts, Line: line, Column: col}
	}

	typ := classifyWord(value)
	tok := Token{Type: typ, Value: value, Raw: raw, Line: line, Column: col}
	if typ == TokenSpread {
		tok.Value = value[1:]
	}
	return tok
}
