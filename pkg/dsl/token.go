package dsl

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/openfroyo/haproxy-translate/pkg/diag"
)

// TokenType represents the type of a lexer token.
type TokenType int

const (
	TokenEOF      TokenType = iota
	TokenNewline            // newline or ';'
	TokenLBrace             // {
	TokenRBrace             // }
	TokenLBrack             // [
	TokenRBrack             // ]
	TokenComma              // ,
	TokenColon              // trailing ':' of a property key
	TokenString             // "quoted" or """raw"""
	TokenWord               // unquoted word
	TokenInt                // 42
	TokenFloat              // 1.5
	TokenDuration           // 5s, 100ms
	TokenBool               // true / false
	TokenRange              // 1..3
	TokenAssign             // =
	TokenSpread             // @name
	TokenError
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenNewline:
		return "end of statement"
	case TokenLBrace:
		return "'{'"
	case TokenRBrace:
		return "'}'"
	case TokenLBrack:
		return "'['"
	case TokenRBrack:
		return "']'"
	case TokenComma:
		return "','"
	case TokenColon:
		return "':'"
	case TokenString:
		return "string"
	case TokenWord:
		return "word"
	case TokenInt:
		return "integer"
	case TokenFloat:
		return "number"
	case TokenDuration:
		return "duration"
	case TokenBool:
		return "boolean"
	case TokenRange:
		return "range"
	case TokenAssign:
		return "'='"
	case TokenSpread:
		return "spread"
	case TokenError:
		return "error"
	default:
		return "unknown"
	}
}

// Part is one piece of a string or word: literal text, or the source of a
// ${...} interpolation when Expr is set.
type Part struct {
	Text string
	Expr bool
}

// Token is a single lexer token.
type Token struct {
	Type TokenType

	// Value is the decoded text: string contents without quotes, the word
	// itself, the spread target without '@'.
	Value string

	// Raw is the source text of the token.
	Raw string

	// Parts is set for strings and words that contain interpolations.
	Parts []Part

	Line   int
	Column int
}

// Pos returns the token position.
func (t Token) Pos() diag.Position {
	return diag.Position{Line: t.Line, Column: t.Column}
}

// HasInterpolation reports whether the token carries ${...} parts.
func (t Token) HasInterpolation() bool {
	for _, p := range t.Parts {
		if p.Expr {
			return true
		}
	}
	return false
}

// Display returns the token the way an error message should quote it.
func (t Token) Display() string {
	switch t.Type {
	case TokenEOF, TokenNewline:
		return t.Type.String()
	}
	if t.Raw != "" {
		return t.Raw
	}
	return t.Value
}

func (t Token) String() string {
	switch t.Type {
	case TokenString, TokenWord, TokenInt, TokenFloat, TokenDuration, TokenBool, TokenRange, TokenSpread:
		return fmt.Sprintf("%s(%q)", t.Type, t.Value)
	}
	return t.Type.String()
}

var (
	intPattern      = regexp.MustCompile(`^-?[0-9]+$`)
	floatPattern    = regexp.MustCompile(`^-?[0-9]+\.[0-9]+$`)
	durationPattern = regexp.MustCompile(`^[0-9]+(us|ms|s|m|h|d)$`)
)

// DurationUnits are the unit suffixes accepted on numeric literals.
var DurationUnits = []string{"us", "ms", "s", "m", "h", "d"}

// classifyWord assigns a token type to an unquoted word.
func classifyWord(word string) TokenType {
	switch {
	case word == "=":
		return TokenAssign
	case word == "true" || word == "false":
		return TokenBool
	case len(word) > 1 && word[0] == '@':
		return TokenSpread
	case intPattern.MatchString(word):
		return TokenInt
	case floatPattern.MatchString(word):
		return TokenFloat
	case durationPattern.MatchString(word):
		return TokenDuration
	case isRangeWord(word):
		return TokenRange
	default:
		return TokenWord
	}
}

func isRangeWord(word string) bool {
	idx := strings.Index(word, "..")
	if idx <= 0 || idx+2 >= len(word) {
		return false
	}
	return !strings.Contains(word[idx+2:], "..")
}

// SplitRange splits a range token value into its raw bounds.
func SplitRange(value string) (lo, hi string, ok bool) {
	idx := strings.Index(value, "..")
	if idx <= 0 || idx+2 >= len(value) {
		return "", "", false
	}
	return value[:idx], value[idx+2:], true
}
