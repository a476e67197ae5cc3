package isa

import "fmt"

// parseFormDirective parses `:form <space> <name> [inherits=<parent>] subfields={ ... }`.
func (p *Parser) parseFormDirective() (Item, []string, error) {
	space, err := p.expectIdentifier("form's owning space")
	if err != nil {
		return nil, nil, err
	}
	name, err := p.expectIdentifier("form name")
	if err != nil {
		return nil, nil, err
	}

	var inherits string
	var subfields []SubFieldDecl
	seenSubfields := false

	for p.check(TokenIdentifier) {
		attr, err := p.expectIdentifier("form attribute name")
		if err != nil {
			return nil, nil, err
		}
		if _, err := p.expect(TokenEquals, "'=' after form attribute name"); err != nil {
			return nil, nil, err
		}
		switch attr {
		case "inherits":
			tok, err := p.expectIdentifier("inherits target")
			if err != nil {
				return nil, nil, err
			}
			inherits = tok
		case "subfields":
			if seenSubfields {
				return nil, nil, fmt.Errorf("duplicate subfields block for form %s", name)
			}
			block, err := p.parseSubfieldsBlock()
			if err != nil {
				return nil, nil, err
			}
			subfields = block
			seenSubfields = true
		default:
			return nil, nil, fmt.Errorf("unknown form attribute '%s'", attr)
		}
	}

	return SpaceMemberDecl{
		Space: space,
		Member: FormDecl{
			Space:     space,
			Name:      name,
			Inherits:  inherits,
			Subfields: subfields,
		},
	}, nil, nil
}

// parseInstructionDecl parses `:<logicspace> NAME [form=FORM] [operands=(a,b)]
// [mask={ SEL=value | ... }] [semantics={ ... }] [descr="..."]`.
func (p *Parser) parseInstructionDecl(space string) (Item, error) {
	name, err := p.expectIdentifier("instruction name")
	if err != nil {
		return nil, err
	}

	var (
		form        string
		operands    []string
		masks       []MaskField
		semantics   string
		description string
	)

	for p.check(TokenIdentifier) {
		attr, err := p.expectIdentifier("instruction attribute name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenEquals, "'=' after instruction attribute name"); err != nil {
			return nil, err
		}
		switch attr {
		case "form":
			tok, err := p.expectIdentifier("form name")
			if err != nil {
				return nil, err
			}
			form = tok
		case "operands":
			ops, err := p.parseParenIdentList()
			if err != nil {
				return nil, err
			}
			operands = ops
		case "mask":
			m, err := p.parseMaskBlock()
			if err != nil {
				return nil, err
			}
			masks = m
		case "semantics":
			raw, err := p.parseBraceBlockRaw()
			if err != nil {
				return nil, err
			}
			semantics = raw
		case "descr":
			tok, err := p.expect(TokenString, "string literal for descr")
			if err != nil {
				return nil, err
			}
			description = tok.Literal
		default:
			return nil, fmt.Errorf("unknown instruction attribute '%s'", attr)
		}
	}

	return SpaceMemberDecl{
		Space: space,
		Member: InstructionDecl{
			Space:     space,
			Form:      form,
			Name:      name,
			Operands:  operands,
			Masks:     masks,
			Semantics: semantics,
			Display:   description,
		},
	}, nil
}

func (p *Parser) parseParenIdentList() ([]string, error) {
	if _, err := p.expect(TokenLParen, "'(' to start list"); err != nil {
		return nil, err
	}
	var items []string
	for !p.check(TokenRParen) {
		if p.check(TokenEOF) {
			return nil, fmt.Errorf("unterminated list; missing ')'")
		}
		name, err := p.expectIdentifier("list item")
		if err != nil {
			return nil, err
		}
		items = append(items, name)
		if p.check(TokenComma) {
			p.advance()
		}
	}
	p.advance()
	return items, nil
}

// parseMaskBlock parses `{ SELECTOR=value | SELECTOR=value ... }` where a
// selector is either a form subfield name or a raw `@(...)` bit-spec.
func (p *Parser) parseMaskBlock() ([]MaskField, error) {
	if _, err := p.expect(TokenLBrace, "'{' to start mask block"); err != nil {
		return nil, err
	}
	var fields []MaskField
	for {
		if p.check(TokenRBrace) {
			p.advance()
			break
		}
		if p.check(TokenEOF) {
			return nil, fmt.Errorf("unterminated mask block; missing closing '}'")
		}
		var mf MaskField
		if p.check(TokenBitExpr) {
			mf.RawSpec = p.advance().Literal
		} else {
			name, err := p.expectIdentifier("mask selector")
			if err != nil {
				return nil, err
			}
			mf.SubfieldName = name
		}
		if _, err := p.expect(TokenEquals, "'=' after mask selector"); err != nil {
			return nil, err
		}
		tok, err := p.expect(TokenNumber, "mask constant value")
		if err != nil {
			return nil, err
		}
		v, err := parseUintLiteral(tok.Literal)
		if err != nil {
			return nil, err
		}
		mf.Value = v
		fields = append(fields, mf)
		if p.check(TokenPipe) || p.check(TokenComma) {
			p.advance()
		}
	}
	return fields, nil
}

// parseMacroDecl parses `:macro NAME params=(a,b) semantics={ ... }`.
func (p *Parser) parseMacroDecl() (Item, []string, error) {
	name, err := p.expectIdentifier("macro name")
	if err != nil {
		return nil, nil, err
	}
	var params []string
	var semantics string
	for p.check(TokenIdentifier) {
		attr, err := p.expectIdentifier("macro attribute name")
		if err != nil {
			return nil, nil, err
		}
		if _, err := p.expect(TokenEquals, "'=' after macro attribute name"); err != nil {
			return nil, nil, err
		}
		switch attr {
		case "params":
			ps, err := p.parseParenIdentList()
			if err != nil {
				return nil, nil, err
			}
			params = ps
		case "semantics":
			raw, err := p.parseBraceBlockRaw()
			if err != nil {
				return nil, nil, err
			}
			semantics = raw
		default:
			return nil, nil, fmt.Errorf("unknown macro attribute '%s'", attr)
		}
	}
	return MacroDecl{Name: name, Params: params, Semantics: semantics}, nil, nil
}

// parseHintDirective parses `:hint { SPACE <- bitexpr comparator number [;|,] ... }`.
func (p *Parser) parseHintDirective() (Item, []string, error) {
	if _, err := p.expect(TokenLBrace, "'{' to start hint block"); err != nil {
		return nil, nil, err
	}
	var entries []HintEntry
	for {
		if p.check(TokenRBrace) {
			p.advance()
			break
		}
		if p.check(TokenEOF) {
			return nil, nil, fmt.Errorf("unterminated hint block; missing closing '}'")
		}
		space, err := p.expectIdentifier("hint space name")
		if err != nil {
			return nil, nil, err
		}
		if _, err := p.expect(TokenLessThan, "'<-' after hint space name"); err != nil {
			return nil, nil, err
		}
		if _, err := p.expect(TokenDash, "'<-' after hint space name"); err != nil {
			return nil, nil, err
		}
		bitExpr, err := p.expect(TokenBitExpr, "bit expression in hint entry")
		if err != nil {
			return nil, nil, err
		}
		cmp, err := p.parseHintComparator()
		if err != nil {
			return nil, nil, err
		}
		numTok, err := p.expect(TokenNumber, "numeric literal in hint entry")
		if err != nil {
			return nil, nil, err
		}
		v, err := parseUintLiteral(numTok.Literal)
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, HintEntry{Space: space, BitExprRaw: bitExpr.Literal, Comparator: cmp, Value: v})
		if p.check(TokenSemicolon) || p.check(TokenComma) {
			p.advance()
		}
	}
	return HintBlock{Entries: entries}, nil, nil
}

// parseHintComparator requires exactly '==' or '!=', rejecting a bare '='.
func (p *Parser) parseHintComparator() (string, error) {
	switch p.current().Type {
	case TokenEqualsEquals:
		p.advance()
		return "==", nil
	case TokenBangEquals:
		p.advance()
		return "!=", nil
	default:
		return "", fmt.Errorf("expected '==' or '!=' in hint entry, got %q", p.current().Literal)
	}
}
