// Package dsl implements the lexer and parser for the haproxy-translate
// configuration language.
//
// # Overview
//
// Source text is tokenized by Lexer and parsed by Parser into a generic
// syntax tree of Node values. The tree is only an intermediate form: the ir
// package turns it into typed nodes and discards it.
//
// # Statements
//
// Inside a block a leading word may start a property, a nested block or a
// directive line. The parser resolves this with an ordered rule table; the
// first rule whose match function accepts the leading tokens wins:
//
//	for > let > spread > property > block > directive
//
// # Interpolation
//
// ${...} markers inside strings and bare words are split into Part values
// but never evaluated here.
//
// # Usage Example
//
//	tree, err := dsl.Parse(src)
//	if err != nil {
//	    // err is a *diag.Error with line, column and offending token
//	}
package dsl
