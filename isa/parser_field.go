package isa

import (
	"fmt"
	"strconv"
	"strings"
)

// parseSpaceContextDirective dispatches a directive whose name matches an
// already-declared space to the grammar appropriate for that space's
// kind: register spaces declare fields, logic spaces declare
// instructions. Other space kinds have no per-member context grammar.
func (p *Parser) parseSpaceContextDirective(space string, kind SpaceKind) (Item, error) {
	switch kind {
	case SpaceRegister:
		return p.parseRegisterField(space)
	case SpaceLogic:
		return p.parseInstructionDecl(space)
	default:
		return nil, fmt.Errorf("space ':%s' accepts no context directives (kind %s)", space, kind)
	}
}

func (p *Parser) parseRegisterField(space string) (Item, error) {
	name, err := p.expectIdentifier("field name")
	if err != nil {
		return nil, err
	}
	var rng *FieldIndexRange
	if p.check(TokenRange) {
		tok := p.advance()
		r, err := parseIndexRange(tok.Literal)
		if err != nil {
			return nil, err
		}
		rng = r
	}

	var (
		offset, size, reset *uint64
		description          string
		redirect              *ContextReference
		subfields             []SubFieldDecl
		seenSubfields         bool
	)

	for p.check(TokenIdentifier) {
		attr, err := p.expectIdentifier("field attribute name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenEquals, "'=' after field attribute name"); err != nil {
			return nil, err
		}
		switch attr {
		case "offset":
			if err := ensureRedirectCompatible("offset", redirect); err != nil {
				return nil, err
			}
			if offset != nil {
				return nil, fmt.Errorf("field attribute 'offset' specified multiple times")
			}
			v, err := p.expectNumberValue("offset")
			if err != nil {
				return nil, err
			}
			offset = &v
		case "size":
			if err := ensureRedirectCompatible("size", redirect); err != nil {
				return nil, err
			}
			if size != nil {
				return nil, fmt.Errorf("field attribute 'size' specified multiple times")
			}
			v, err := p.expectNumberValue("size")
			if err != nil {
				return nil, err
			}
			if v == 0 || v > 512 {
				return nil, fmt.Errorf("field size must be between 1 and 512 bits, got %d", v)
			}
			size = &v
		case "reset":
			if err := ensureRedirectCompatible("reset", redirect); err != nil {
				return nil, err
			}
			if reset != nil {
				return nil, fmt.Errorf("field attribute 'reset' specified multiple times")
			}
			v, err := p.expectNumberValue("reset")
			if err != nil {
				return nil, err
			}
			reset = &v
		case "descr":
			if description != "" {
				return nil, fmt.Errorf("field attribute 'descr' specified multiple times")
			}
			tok, err := p.expect(TokenString, "string literal for descr")
			if err != nil {
				return nil, err
			}
			description = tok.Literal
		case "redirect":
			if redirect != nil {
				return nil, fmt.Errorf("field attribute 'redirect' specified multiple times")
			}
			if offset != nil {
				return nil, fmt.Errorf("redirect fields cannot specify an offset")
			}
			if size != nil {
				return nil, fmt.Errorf("redirect fields cannot specify a size")
			}
			if reset != nil {
				return nil, fmt.Errorf("redirect fields cannot specify a reset value")
			}
			ref, err := p.parseContextReference()
			if err != nil {
				return nil, err
			}
			redirect = ref
		case "subfields":
			if seenSubfields {
				return nil, fmt.Errorf("duplicate subfields block for field %s", name)
			}
			block, err := p.parseSubfieldsBlock()
			if err != nil {
				return nil, err
			}
			subfields = block
			seenSubfields = true
		default:
			return nil, fmt.Errorf("unknown field attribute '%s'", attr)
		}
	}

	return SpaceMemberDecl{
		Space: space,
		Member: FieldDecl{
			Space:       space,
			Name:        name,
			Range:       rng,
			Offset:      offset,
			Size:        size,
			Reset:       reset,
			Description: description,
			Redirect:    redirect,
			Subfields:   subfields,
		},
	}, nil
}

func ensureRedirectCompatible(attr string, redirect *ContextReference) error {
	if redirect != nil {
		return fmt.Errorf("redirect fields cannot specify a %s attribute", attr)
	}
	return nil
}

// parseIndexRange parses the lexer's captured `[start..end]` literal.
func parseIndexRange(text string) (*FieldIndexRange, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "[") || !strings.HasSuffix(text, "]") {
		return nil, fmt.Errorf("invalid index range %q: expected [start..end]", text)
	}
	inner := text[1 : len(text)-1]
	normalized := strings.ReplaceAll(inner, " ", "")
	parts := strings.SplitN(normalized, "..", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid index range %q: missing '..'", text)
	}
	start, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid start index %q: %w", parts[0], err)
	}
	end, err := strconv.ParseUint(strings.TrimPrefix(parts[1], "="), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid end index %q: %w", parts[1], err)
	}
	if end < start {
		return nil, fmt.Errorf("index range end must be >= start (%d..%d)", start, end)
	}
	if end-start+1 > 65535 {
		return nil, fmt.Errorf("index range must contain at most 65535 entries")
	}
	return &FieldIndexRange{Start: uint32(start), End: uint32(end)}, nil
}

func (p *Parser) parseContextReference() (*ContextReference, error) {
	var segments []string
	seg, err := p.expectIdentifier("context reference segment")
	if err != nil {
		return nil, err
	}
	segments = append(segments, seg)
	for p.check(TokenDoubleColon) {
		p.advance()
		seg, err := p.expectIdentifier("context reference segment")
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return &ContextReference{Segments: segments}, nil
}

// parseSubfieldsBlock parses `{ NAME @(bitspec) [op=kind[.subtype][|kind]] [descr="..."] ... }`.
// Entries may be separated by `,`, `;`, or `|`.
func (p *Parser) parseSubfieldsBlock() ([]SubFieldDecl, error) {
	if _, err := p.expect(TokenLBrace, "'{' to start subfields block"); err != nil {
		return nil, err
	}
	var entries []SubFieldDecl
	for {
		if p.check(TokenEOF) {
			return nil, fmt.Errorf("unterminated subfields block; missing closing '}'")
		}
		if p.check(TokenRBrace) {
			p.advance()
			break
		}
		name, err := p.expectIdentifier("subfield name")
		if err != nil {
			return nil, err
		}
		bitSpec, err := p.expect(TokenBitExpr, "bit specification '@(...)'")
		if err != nil {
			return nil, err
		}
		var operations []SubFieldOp
		var description string
		for p.check(TokenIdentifier) {
			peekLit := p.current().Literal
			switch peekLit {
			case "op":
				p.advance()
				if _, err := p.expect(TokenEquals, "'=' after op attribute"); err != nil {
					return nil, err
				}
				if operations != nil {
					return nil, fmt.Errorf("subfield %s op attribute specified multiple times", name)
				}
				ops, err := p.parseSubfieldOps()
				if err != nil {
					return nil, err
				}
				operations = ops
			case "descr":
				p.advance()
				if _, err := p.expect(TokenEquals, "'=' after descr attribute"); err != nil {
					return nil, err
				}
				if description != "" {
					return nil, fmt.Errorf("subfield %s descr attribute specified multiple times", name)
				}
				tok, err := p.expect(TokenString, "string literal for descr attribute")
				if err != nil {
					return nil, err
				}
				description = tok.Literal
			default:
				goto doneAttrs
			}
		}
	doneAttrs:
		entries = append(entries, SubFieldDecl{
			Name:        name,
			BitSpecRaw:  bitSpec.Literal,
			Operations:  operations,
			Description: description,
		})
		if p.check(TokenComma) || p.check(TokenSemicolon) || p.check(TokenPipe) {
			p.advance()
		}
	}
	return entries, nil
}

func (p *Parser) parseSubfieldOps() ([]SubFieldOp, error) {
	var ops []SubFieldOp
	for {
		tok, err := p.expect(TokenIdentifier, "subfield op type")
		if err != nil {
			return nil, err
		}
		kind, subtype, _ := strings.Cut(tok.Literal, ".")
		ops = append(ops, SubFieldOp{Kind: kind, Subtype: subtype})
		if p.check(TokenPipe) {
			if p.pos+2 < len(p.tokens) && p.tokens[p.pos+2].Type == TokenBitExpr {
				break // this '|' separates the next subfield entry
			}
			p.advance()
			continue
		}
		break
	}
	return ops, nil
}
