package isa

import "testing"

func TestLexerTokenizesDirectiveSkeleton(t *testing.T) {
	src := `:space cpu addr=32 word=32 type=rw`
	toks := NewLexer(src, "t.isa").TokenizeAll()
	want := []TokenType{TokenColon, TokenIdentifier, TokenIdentifier,
		TokenIdentifier, TokenEquals, TokenNumber,
		TokenIdentifier, TokenEquals, TokenNumber,
		TokenIdentifier, TokenEquals, TokenIdentifier, TokenEOF}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(want), toks)
	}
	for i, tt := range want {
		if toks[i].Type != tt {
			t.Errorf("token %d: got %s, want %s", i, toks[i].Type, tt)
		}
	}
}

func TestLexerSkipsLineComments(t *testing.T) {
	src := "# a comment\n:space"
	toks := NewLexer(src, "t.isa").TokenizeAll()
	if toks[0].Type != TokenColon || toks[1].Literal != "space" {
		t.Fatalf("comment not skipped: %v", toks)
	}
}

func TestLexerCapturesBalancedBitExpr(t *testing.T) {
	src := `@(16-29|0b00)`
	toks := NewLexer(src, "t.isa").TokenizeAll()
	if toks[0].Type != TokenBitExpr || toks[0].Literal != src {
		t.Fatalf("got %+v", toks[0])
	}
}

func TestLexerCapturesRangeLiteral(t *testing.T) {
	src := `[0..31]`
	toks := NewLexer(src, "t.isa").TokenizeAll()
	if toks[0].Type != TokenRange || toks[0].Literal != src {
		t.Fatalf("got %+v", toks[0])
	}
}

func TestLexerHandlesStringEscapes(t *testing.T) {
	src := `"line\n\ttab\\quote\""`
	toks := NewLexer(src, "t.isa").TokenizeAll()
	want := "line\n\ttab\\quote\""
	if toks[0].Type != TokenString || toks[0].Literal != want {
		t.Fatalf("got %q, want %q", toks[0].Literal, want)
	}
}

func TestLexerReportsUnterminatedString(t *testing.T) {
	l := NewLexer(`"abc`, "t.isa")
	l.TokenizeAll()
	if !l.Errors.HasErrors() {
		t.Fatal("expected an unterminated-string diagnostic")
	}
}

func TestLexerReportsUnexpectedCharacter(t *testing.T) {
	l := NewLexer(`\`, "t.isa")
	l.TokenizeAll()
	if !l.Errors.HasErrors() {
		t.Fatal("expected an unexpected-character diagnostic")
	}
}

func TestLexerDistinguishesColonAndDoubleColon(t *testing.T) {
	toks := NewLexer(`: ::`, "t.isa").TokenizeAll()
	if toks[0].Type != TokenColon || toks[1].Type != TokenDoubleColon {
		t.Fatalf("got %v", toks[:2])
	}
}

func TestLexerTracksOffsetsForBraceBlocks(t *testing.T) {
	src := `semantics={ a + b }`
	toks := NewLexer(src, "t.isa").TokenizeAll()
	// identifier, =, {, a, +, b, }, EOF
	var open, close Token
	for _, tok := range toks {
		if tok.Type == TokenLBrace {
			open = tok
		}
		if tok.Type == TokenRBrace {
			close = tok
		}
	}
	if src[open.Offset:open.End] != "{" || src[close.Offset:close.End] != "}" {
		t.Fatalf("brace offsets wrong: open=%+v close=%+v", open, close)
	}
}

func TestLexerNegativeNumberLiteral(t *testing.T) {
	toks := NewLexer(`-42`, "t.isa").TokenizeAll()
	if toks[0].Type != TokenNumber || toks[0].Literal != "-42" {
		t.Fatalf("got %+v", toks[0])
	}
}
