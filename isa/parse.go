package isa

import "github.com/jmercer/isaforge/diag"

// ParseSource lexes and parses a single source buffer, threading
// knownSpaces in and returning the (possibly updated) table alongside the
// document and a diagnostic bag merging lexer and parser errors.
func ParseSource(source, filename string, kind FileKind, knownSpaces map[string]SpaceKind) (*Document, map[string]SpaceKind, *diag.Bag) {
	lexer := NewLexer(source, filename)
	tokens := lexer.TokenizeAll()

	parser := NewParser(tokens, source, filename, kind, knownSpaces)
	doc := parser.Parse()

	bag := &diag.Bag{}
	bag.Merge(&lexer.Errors)
	bag.Merge(parser.Errors())
	return doc, parser.KnownSpaces(), bag
}
