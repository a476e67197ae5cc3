package isa

import "fmt"

// parseSpaceDirective parses `:space NAME attr=value...`. Recognized
// attributes: addr, word, align, type, endian, enbl. type/addr/word are
// mandatory; enbl may appear at most once; any other attribute name is
// rejected by name.
func (p *Parser) parseSpaceDirective() (Item, []string, error) {
	name, err := p.expectIdentifier("space name")
	if err != nil {
		return nil, nil, err
	}

	var (
		haveAddr, haveWord, haveType, haveEnbl bool
		addrBits, wordBits, alignBits          uint64
		kind                                   SpaceKind
		endian                                 = LittleEndian
		enable                                 string
	)

	for p.check(TokenIdentifier) {
		attr, err := p.expectIdentifier("space attribute name")
		if err != nil {
			return nil, nil, err
		}
		if _, err := p.expect(TokenEquals, "'=' after space attribute name"); err != nil {
			return nil, nil, err
		}
		switch attr {
		case "addr":
			v, err := p.expectNumberValue("addr")
			if err != nil {
				return nil, nil, err
			}
			addrBits, haveAddr = v, true
		case "word":
			v, err := p.expectNumberValue("word")
			if err != nil {
				return nil, nil, err
			}
			wordBits, haveWord = v, true
		case "align":
			v, err := p.expectNumberValue("align")
			if err != nil {
				return nil, nil, err
			}
			alignBits = v
		case "type":
			tok, err := p.expectIdentifier("type value")
			if err != nil {
				return nil, nil, err
			}
			k, err := parseSpaceKind(tok)
			if err != nil {
				return nil, nil, err
			}
			kind, haveType = k, true
		case "endian":
			tok, err := p.expectIdentifier("endian value")
			if err != nil {
				return nil, nil, err
			}
			switch tok {
			case "little":
				endian = LittleEndian
			case "big":
				endian = BigEndian
			default:
				return nil, nil, fmt.Errorf("unknown endian value '%s'", tok)
			}
		case "enbl":
			if haveEnbl {
				return nil, nil, fmt.Errorf("enbl attribute can only be specified once")
			}
			value, err := p.parseAttributeValue()
			if err != nil {
				return nil, nil, err
			}
			enable, haveEnbl = value, true
		default:
			return nil, nil, fmt.Errorf("unknown :space attribute '%s'", attr)
		}
	}

	if !haveType {
		return nil, nil, fmt.Errorf(":space requires a type attribute")
	}
	if !haveAddr {
		return nil, nil, fmt.Errorf(":space requires an addr attribute")
	}
	if !haveWord {
		return nil, nil, fmt.Errorf(":space requires a word attribute")
	}

	p.knownSpaces[name] = kind

	return SpaceDecl{
		Name:        name,
		Kind:        kind,
		AddressBits: uint(addrBits),
		WordBits:    uint(wordBits),
		Alignment:   uint(alignBits),
		Endian:      endian,
		Enable:      enable,
	}, nil, nil
}

func parseSpaceKind(tok string) (SpaceKind, error) {
	switch tok {
	case "rw":
		return SpaceReadWrite, nil
	case "ro":
		return SpaceReadOnly, nil
	case "memio":
		return SpaceMemoryMappedIO, nil
	case "register":
		return SpaceRegister, nil
	case "logic":
		return SpaceLogic, nil
	default:
		return 0, fmt.Errorf("unknown :space type '%s'", tok)
	}
}

func (p *Parser) expectNumberValue(context string) (uint64, error) {
	tok, err := p.expect(TokenNumber, context)
	if err != nil {
		return 0, err
	}
	return parseUintLiteral(tok.Literal)
}
