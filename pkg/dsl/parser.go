package dsl

import (
	"github.com/openfroyo/haproxy-translate/pkg/diag"
)

// rule is one entry of the statement priority table.
type rule struct {
	name  string
	match func() bool
	parse func() (*Node, error)
}

// Parser is a recursive-descent parser over a pre-lexed token stream.
type Parser struct {
	toks  []Token
	pos   int
	rules []rule
}

// NewParser creates a parser for src.
func NewParser(src string) *Parser {
	p := &Parser{toks: NewLexer(src).Tokenize()}
	p.rules = []rule{
		{name: RuleFor, match: p.atFor, parse: p.parseFor},
		{name: RuleLet, match: p.atLet, parse: p.parseLet},
		{name: RuleSpread, match: p.atSpread, parse: p.parseSpread},
		{name: RuleProperty, match: p.atProperty, parse: p.parseProperty},
		{name: RuleBlock, match: p.atBlock, parse: p.parseBlock},
		{name: RuleDirective, match: p.atDirective, parse: p.parseDirective},
	}
	return p
}

// Parse parses DSL source into a syntax tree. The first syntax error aborts
// parsing and is returned as a *diag.Error of kind parse.
func Parse(src string) (*Node, error) {
	return NewParser(src).Parse()
}

// RuleOrder returns the statement rule names in priority order.
func RuleOrder() []string {
	p := NewParser("")
	names := make([]string, len(p.rules))
	for i, r := range p.rules {
		names[i] = r.name
	}
	return names
}

// Parse parses the whole token stream.
func (p *Parser) Parse() (*Node, error) {
	file := &Node{Rule: RuleFile, Pos: diag.Position{Line: 1, Column: 1}}
	p.skipNewlines()

	if p.atConfig() {
		cfg, err := p.parseConfig()
		if err != nil {
			return nil, err
		}
		file.Children = append(file.Children, cfg)
		p.skipNewlines()
		if tok := p.peek(); tok.Type != TokenEOF {
			return nil, p.unexpected(tok, "expected end of input after config block")
		}
		return file, nil
	}

	items, err := p.parseItems(TokenEOF)
	if err != nil {
		return nil, err
	}
	file.Children = items
	return file, nil
}

// --- token helpers ---

func (p *Parser) peek() Token {
	return p.peekAt(0)
}

func (p *Parser) peekAt(n int) Token {
	i := p.pos + n
	if i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[i]
}

func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return tok
}

func (p *Parser) skipNewlines() {
	for p.peek().Type == TokenNewline {
		p.advance()
	}
}

func (p *Parser) expect(typ TokenType, what string) (Token, error) {
	tok := p.peek()
	if tok.Type != typ {
		return tok, p.unexpected(tok, "expected %s", what)
	}
	return p.advance(), nil
}

func (p *Parser) unexpected(tok Token, format string, args ...interface{}) error {
	if tok.Type == TokenError {
		return diag.ParseError(tok.Pos(), "", "%s", tok.Value)
	}
	return diag.ParseError(tok.Pos(), tok.Display(), format, args...)
}

func isKeyword(tok Token, word string) bool {
	return tok.Type == TokenWord && tok.Parts == nil && tok.Value == word
}

func isScalar(t TokenType) bool {
	switch t {
	case TokenString, TokenWord, TokenInt, TokenFloat, TokenDuration, TokenBool, TokenRange:
		return true
	}
	return false
}

func isEndOfStatement(t TokenType) bool {
	return t == TokenNewline || t == TokenRBrace || t == TokenEOF
}

// --- statements ---

func (p *Parser) atConfig() bool {
	if !isKeyword(p.peek(), "config") {
		return false
	}
	name := p.peekAt(1)
	return (name.Type == TokenWord || name.Type == TokenString) && p.peekAt(2).Type == TokenLBrace
}

func (p *Parser) parseConfig() (*Node, error) {
	kw := p.advance()
	name := p.advance()
	node := &Node{Rule: RuleConfig, Token: name, Pos: kw.Pos()}
	body, err := p.parseBraced()
	if err != nil {
		return nil, err
	}
	node.Children = body
	return node, nil
}

// parseBraced parses "{" item* "}".
func (p *Parser) parseBraced() ([]*Node, error) {
	if _, err := p.expect(TokenLBrace, "'{'"); err != nil {
		return nil, err
	}
	items, err := p.parseItems(TokenRBrace)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRBrace, "'}'"); err != nil {
		return nil, err
	}
	return items, nil
}

// parseItems parses statements until the closing token, which is left
// unconsumed.
func (p *Parser) parseItems(until TokenType) ([]*Node, error) {
	var items []*Node
	for {
		p.skipNewlines()
		tok := p.peek()
		if tok.Type == until {
			return items, nil
		}
		if tok.Type == TokenEOF {
			return nil, p.unexpected(tok, "unexpected end of input, expected '}'")
		}

		item, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		items = append(items, item)

		next := p.peek()
		if !isEndOfStatement(next.Type) {
			return nil, p.unexpected(next, "expected end of statement")
		}
	}
}

func (p *Parser) parseStatement() (*Node, error) {
	for _, r := range p.rules {
		if r.match() {
			return r.parse()
		}
	}
	tok := p.peek()
	return nil, p.unexpected(tok, "unexpected %s at start of statement", tok.Type)
}

func (p *Parser) atFor() bool {
	return isKeyword(p.peek(), "for")
}

func (p *Parser) parseFor() (*Node, error) {
	kw := p.advance()
	name, err := p.expect(TokenWord, "loop variable name")
	if err != nil {
		return nil, err
	}
	if !isIdentifier(name.Value) || name.Parts != nil {
		return nil, p.unexpected(name, "invalid loop variable name")
	}
	if in := p.peek(); !isKeyword(in, "in") {
		return nil, p.unexpected(in, "expected 'in'")
	}
	p.advance()

	iter, err := p.parseIterable()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBraced()
	if err != nil {
		return nil, err
	}

	node := &Node{Rule: RuleFor, Token: name, Pos: kw.Pos()}
	node.Children = append([]*Node{iter}, body...)
	return node, nil
}

func (p *Parser) parseIterable() (*Node, error) {
	tok := p.peek()
	node := &Node{Rule: RuleIterable, Pos: tok.Pos()}

	if isRangeToken(tok) {
		p.advance()
		node.Children = []*Node{{Rule: RuleRange, Token: tok, Pos: tok.Pos()}}
		return node, nil
	}
	if tok.Type != TokenLBrack {
		return nil, p.unexpected(tok, "expected '[' or range after 'in'")
	}

	if isRangeToken(p.peekAt(1)) && p.peekAt(2).Type == TokenRBrack {
		p.advance()
		rng := p.advance()
		p.advance()
		node.Children = []*Node{{Rule: RuleRange, Token: rng, Pos: rng.Pos()}}
		return node, nil
	}

	list, err := p.parseList()
	if err != nil {
		return nil, err
	}
	for _, c := range list.Children {
		if isRangeToken(c.Token) {
			return nil, p.unexpected(c.Token, "a range must be the only element of a loop iterable")
		}
	}
	node.Children = list.Children
	return node, nil
}

// isRangeToken reports whether tok is a range. A word such as 1..${n} counts
// too so that its bounds are rejected as a range instead of iterating once
// over the text.
func isRangeToken(tok Token) bool {
	if tok.Type == TokenRange {
		return true
	}
	return tok.Type == TokenWord && tok.HasInterpolation() && isRangeWord(tok.Value)
}

func (p *Parser) atLet() bool {
	return isKeyword(p.peek(), "let")
}

func (p *Parser) parseLet() (*Node, error) {
	kw := p.advance()
	name, err := p.expect(TokenWord, "variable name")
	if err != nil {
		return nil, err
	}
	if !isIdentifier(name.Value) || name.Parts != nil {
		return nil, p.unexpected(name, "invalid variable name")
	}
	if _, err := p.expect(TokenAssign, "'='"); err != nil {
		return nil, err
	}
	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return &Node{Rule: RuleLet, Token: name, Pos: kw.Pos(), Children: []*Node{value}}, nil
}

func (p *Parser) atSpread() bool {
	return p.peek().Type == TokenSpread
}

func (p *Parser) parseSpread() (*Node, error) {
	tok := p.advance()
	return &Node{Rule: RuleSpread, Token: tok, Pos: tok.Pos()}, nil
}

func (p *Parser) atProperty() bool {
	return p.peek().Type == TokenWord && p.peekAt(1).Type == TokenColon
}

func (p *Parser) parseProperty() (*Node, error) {
	key := p.advance()
	p.advance() // colon
	if next := p.peek(); isEndOfStatement(next.Type) {
		return nil, p.unexpected(next, "expected value for property %q", key.Value)
	}
	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return &Node{Rule: RuleProperty, Token: key, Pos: key.Pos(), Children: []*Node{value}}, nil
}

func (p *Parser) atBlock() bool {
	if p.peek().Type != TokenWord {
		return false
	}
	for i := 1; ; i++ {
		tok := p.peekAt(i)
		switch {
		case tok.Type == TokenLBrace:
			return true
		case isScalar(tok.Type):
			continue
		default:
			return false
		}
	}
}

func (p *Parser) parseBlock() (*Node, error) {
	kw := p.advance()
	node := &Node{Rule: RuleBlock, Token: kw, Pos: kw.Pos()}
	for p.peek().Type != TokenLBrace {
		label := p.advance()
		node.Children = append(node.Children, &Node{Rule: RuleLabel, Token: label, Pos: label.Pos()})
	}
	body, err := p.parseBraced()
	if err != nil {
		return nil, err
	}
	node.Children = append(node.Children, body...)
	return node, nil
}

func (p *Parser) atDirective() bool {
	return p.peek().Type == TokenWord
}

func (p *Parser) parseDirective() (*Node, error) {
	kw := p.advance()
	node := &Node{Rule: RuleDirective, Token: kw, Pos: kw.Pos()}
	for {
		tok := p.peek()
		switch {
		case isEndOfStatement(tok.Type):
			return node, nil
		case isScalar(tok.Type) || tok.Type == TokenAssign:
			p.advance()
			if tok.Type == TokenAssign {
				tok.Type = TokenWord
			}
			node.Children = append(node.Children, &Node{Rule: RuleValue, Token: tok, Pos: tok.Pos()})
		case tok.Type == TokenSpread:
			p.advance()
			tok.Type = TokenWord
			tok.Value = tok.Raw
			node.Children = append(node.Children, &Node{Rule: RuleValue, Token: tok, Pos: tok.Pos()})
		case tok.Type == TokenLBrack:
			list, err := p.parseList()
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, list)
		default:
			return nil, p.unexpected(tok, "unexpected %s in %q directive", tok.Type, kw.Value)
		}
	}
}

// --- values ---

func (p *Parser) parseValue() (*Node, error) {
	tok := p.peek()
	switch {
	case isKeyword(tok, "env("):
		return p.parseEnv()
	case isScalar(tok.Type):
		p.advance()
		return &Node{Rule: RuleValue, Token: tok, Pos: tok.Pos()}, nil
	case tok.Type == TokenLBrack:
		return p.parseList()
	case tok.Type == TokenLBrace:
		return p.parseObject()
	default:
		return nil, p.unexpected(tok, "expected value")
	}
}

func (p *Parser) parseList() (*Node, error) {
	open := p.advance()
	node := &Node{Rule: RuleList, Pos: open.Pos()}
	p.skipNewlines()
	for {
		if p.peek().Type == TokenRBrack {
			p.advance()
			return node, nil
		}
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, value)
		p.skipNewlines()

		switch tok := p.peek(); tok.Type {
		case TokenComma:
			p.advance()
			p.skipNewlines()
		case TokenRBrack:
		default:
			return nil, p.unexpected(tok, "expected ',' or ']'")
		}
	}
}

func (p *Parser) parseObject() (*Node, error) {
	open := p.advance()
	node := &Node{Rule: RuleObject, Pos: open.Pos()}
	for {
		for t := p.peek().Type; t == TokenNewline || t == TokenComma; t = p.peek().Type {
			p.advance()
		}
		tok := p.peek()
		if tok.Type == TokenRBrace {
			p.advance()
			return node, nil
		}
		if !p.atProperty() {
			return nil, p.unexpected(tok, "expected 'key: value' in object")
		}
		prop, err := p.parseProperty()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, prop)

		switch next := p.peek(); next.Type {
		case TokenComma, TokenNewline, TokenRBrace:
		default:
			return nil, p.unexpected(next, "expected ',' or '}'")
		}
	}
}

func (p *Parser) parseEnv() (*Node, error) {
	open := p.advance()
	key, err := p.expect(TokenString, "environment variable name string")
	if err != nil {
		return nil, err
	}
	if key.Parts != nil {
		return nil, p.unexpected(key, "environment variable name cannot be interpolated")
	}
	node := &Node{Rule: RuleEnv, Token: key, Pos: open.Pos()}

	if p.peek().Type == TokenComma {
		p.advance()
		def, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		node.Children = []*Node{def}
	}

	if tok := p.peek(); !isKeyword(tok, ")") {
		return nil, p.unexpected(tok, "expected ')'")
	}
	p.advance()
	return node, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '_', ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
