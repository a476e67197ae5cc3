// Package isa implements the front end for the `.isa` / `.isaext` /
// `.coredef` instruction-set description language: lexer, recursive
// descent parser, include/extends loader, and cross-file validator.
package isa

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jmercer/isaforge/diag"
)

// Parser is a hand-written recursive-descent parser over a token stream
// for a single source file. It is directive-driven: every top-level
// construct begins with a `:` introducer.
type Parser struct {
	tokens      []Token
	source      string
	pos         int
	filename    string
	kind        FileKind
	knownSpaces map[string]SpaceKind
	errors      diag.Bag
}

// NewParser builds a parser for filename's tokens. source is the original
// buffer the tokens were lexed from, used to recover exact raw text for
// embedded semantics blocks. knownSpaces should contain every space
// declared so far in the composition (seeded by the loader across files)
// so that space-context directives are recognized.
func NewParser(tokens []Token, source, filename string, kind FileKind, knownSpaces map[string]SpaceKind) *Parser {
	if knownSpaces == nil {
		knownSpaces = map[string]SpaceKind{}
	}
	return &Parser{tokens: tokens, source: source, filename: filename, kind: kind, knownSpaces: knownSpaces}
}

// KnownSpaces exposes the space table so callers (the loader) can thread
// newly declared spaces into subsequently parsed files.
func (p *Parser) KnownSpaces() map[string]SpaceKind { return p.knownSpaces }

// Errors returns the diagnostics accumulated during parsing.
func (p *Parser) Errors() *diag.Bag { return &p.errors }

func (p *Parser) current() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peek() Token {
	if p.pos+1 >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos+1]
}

func (p *Parser) pos_() diag.Position {
	t := p.current()
	return diag.Position{Filename: p.filename, Line: t.Line, Column: t.Column}
}

func (p *Parser) advance() Token {
	t := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

func (p *Parser) check(tt TokenType) bool { return p.current().Type == tt }

func (p *Parser) expect(tt TokenType, context string) (Token, error) {
	if !p.check(tt) {
		return Token{}, fmt.Errorf("expected %s (%s), got %s %q", tt, context, p.current().Type, p.current().Literal)
	}
	return p.advance(), nil
}

func (p *Parser) expectIdentifier(context string) (string, error) {
	tok, err := p.expect(TokenIdentifier, context)
	if err != nil {
		return "", err
	}
	return tok.Literal, nil
}

// Parse consumes the full token stream, producing a Document. Parser
// errors are collected in Errors(); Parse returns a non-nil Document even
// when errors were recorded, containing whatever items were successfully
// parsed before/around the failures.
func (p *Parser) Parse() *Document {
	doc := &Document{Path: p.filename, Kind: p.kind}
	for !p.check(TokenEOF) {
		item, extends, err := p.parseDirective()
		if err != nil {
			p.errors.AddErrorAt(diag.PhaseParser, "parser.syntax", err.Error(), p.pos_())
			p.resync()
			continue
		}
		if item != nil {
			doc.Items = append(doc.Items, item)
		}
		doc.Extends = append(doc.Extends, extends...)
		if err := p.ensureDirectiveBoundary(); err != nil {
			p.errors.AddErrorAt(diag.PhaseParser, "parser.trailing-tokens", err.Error(), p.pos_())
			p.resync()
		}
	}
	return doc
}

// resync skips tokens until the next ':' or EOF so a single bad directive
// does not abort the whole file.
func (p *Parser) resync() {
	for !p.check(TokenColon) && !p.check(TokenEOF) {
		p.advance()
	}
}

// ensureDirectiveBoundary requires that, once a directive's grammar is
// done, nothing remains until the next ':' or EOF.
func (p *Parser) ensureDirectiveBoundary() error {
	if p.check(TokenColon) || p.check(TokenEOF) {
		return nil
	}
	return fmt.Errorf("unexpected trailing token %q after directive", p.current().Literal)
}

// parseDirective parses one `: name ...` construct and returns the item
// it produced (nil for directives like :include/:extends-only-loader
// bookkeeping that the loader consumes separately) plus any extends
// targets it recorded.
func (p *Parser) parseDirective() (Item, []string, error) {
	if _, err := p.expect(TokenColon, "directive introducer"); err != nil {
		return nil, nil, err
	}
	name, err := p.expectIdentifier("directive name")
	if err != nil {
		return nil, nil, err
	}

	switch name {
	case "param":
		return p.parseParameterDecl()
	case "fileset":
		return p.parseFilesetDecl()
	case "space":
		return p.parseSpaceDirective()
	case "hint":
		return p.parseHintDirective()
	case "macro":
		return p.parseMacroDecl()
	case "form":
		return p.parseFormDirective()
	case "include":
		if p.kind != KindCoredef {
			return nil, nil, fmt.Errorf(":include is only legal in .coredef files")
		}
		return p.parseIncludeDirective()
	case "extends":
		if p.kind != KindISAExt {
			return nil, nil, fmt.Errorf(":extends is only legal in .isaext files")
		}
		return p.parseExtendsDirective()
	default:
		if kind, ok := p.knownSpaces[name]; ok {
			item, err := p.parseSpaceContextDirective(name, kind)
			return item, nil, err
		}
		return nil, nil, fmt.Errorf("unsupported directive ':%s'", name)
	}
}

func (p *Parser) parseParameterDecl() (Item, []string, error) {
	name, err := p.expectIdentifier("parameter name")
	if err != nil {
		return nil, nil, err
	}
	if _, err := p.expect(TokenEquals, "'=' after parameter name"); err != nil {
		return nil, nil, err
	}
	value, err := p.parseAttributeValue()
	if err != nil {
		return nil, nil, err
	}
	return ParameterDecl{Name: name, Value: value}, nil, nil
}

func (p *Parser) parseFilesetDecl() (Item, []string, error) {
	name, err := p.expectIdentifier("fileset name")
	if err != nil {
		return nil, nil, err
	}
	if _, err := p.expect(TokenEquals, "'=' after fileset name"); err != nil {
		return nil, nil, err
	}
	value, err := p.parseAttributeValue()
	if err != nil {
		return nil, nil, err
	}
	return FilesetDecl{Name: name, Value: value}, nil, nil
}

func (p *Parser) parseIncludeDirective() (Item, []string, error) {
	tok, err := p.expect(TokenString, "quoted path for :include")
	if err != nil {
		return nil, nil, err
	}
	return IncludeDecl{Path: tok.Literal}, nil, nil
}

func (p *Parser) parseExtendsDirective() (Item, []string, error) {
	var paths []string
	for {
		tok, err := p.expect(TokenString, "quoted path for :extends")
		if err != nil {
			return nil, nil, err
		}
		paths = append(paths, tok.Literal)
		if p.check(TokenComma) {
			p.advance()
			continue
		}
		break
	}
	return nil, paths, nil
}

// parseAttributeValue reads a single scalar value token (identifier,
// number, or string) and returns its literal text, the common shape for
// `name=value` attribute assignments.
func (p *Parser) parseAttributeValue() (string, error) {
	switch p.current().Type {
	case TokenNumber, TokenIdentifier, TokenString:
		return p.advance().Literal, nil
	default:
		return "", fmt.Errorf("expected attribute value, got %s %q", p.current().Type, p.current().Literal)
	}
}

// parseBraceBlockRaw consumes a balanced `{ ... }` block and returns the
// exact raw source text between (not including) the braces, for deferred
// compilation by the semantics package.
func (p *Parser) parseBraceBlockRaw() (string, error) {
	open, err := p.expect(TokenLBrace, "'{' to start block")
	if err != nil {
		return "", err
	}
	depth := 1
	startOffset := open.End
	var endOffset int
	for depth > 0 {
		if p.check(TokenEOF) {
			return "", fmt.Errorf("unterminated block; missing closing '}'")
		}
		tok := p.advance()
		switch tok.Type {
		case TokenLBrace:
			depth++
		case TokenRBrace:
			depth--
			if depth == 0 {
				endOffset = tok.Offset
			}
		}
	}
	if endOffset < startOffset || endOffset > len(p.source) {
		return "", nil
	}
	return strings.TrimSpace(p.source[startOffset:endOffset]), nil
}

func parseUintLiteral(lit string) (uint64, error) {
	lit = strings.ReplaceAll(lit, "_", "")
	neg := strings.HasPrefix(lit, "-")
	if neg {
		lit = lit[1:]
	}
	var v uint64
	var err error
	switch {
	case strings.HasPrefix(lit, "0x") || strings.HasPrefix(lit, "0X"):
		v, err = strconv.ParseUint(lit[2:], 16, 64)
	case strings.HasPrefix(lit, "0o") || strings.HasPrefix(lit, "0O"):
		v, err = strconv.ParseUint(lit[2:], 8, 64)
	case strings.HasPrefix(lit, "0b") || strings.HasPrefix(lit, "0B"):
		v, err = strconv.ParseUint(lit[2:], 2, 64)
	default:
		v, err = strconv.ParseUint(lit, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid numeric literal %q: %w", lit, err)
	}
	if neg {
		v = uint64(-int64(v))
	}
	return v, nil
}
