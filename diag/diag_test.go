package diag

import "testing"

func TestBagAccumulatesMultipleErrors(t *testing.T) {
	var b Bag
	b.AddError(PhaseParser, "parser.syntax", "unexpected token 'x'")
	b.AddError(PhaseParser, "parser.syntax", "unexpected token 'y'")
	b.AddWarning(PhaseParser, "parser.unused", "macro never called")

	if !b.HasErrors() {
		t.Fatal("expected HasErrors to be true")
	}
	if len(b.Errors()) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(b.Errors()))
	}
	if len(b.Warnings()) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(b.Warnings()))
	}
	if b.Error() == "" {
		t.Fatal("expected Error() to render accumulated diagnostics")
	}
}

func TestBagMerge(t *testing.T) {
	var a, b Bag
	a.AddError(PhaseLexer, "lexer.bad-char", "unexpected '@'")
	b.AddError(PhaseValidation, "validation.dup-space", "duplicate space 'reg'")

	a.Merge(&b)
	if len(a.Diagnostics) != 2 {
		t.Fatalf("expected 2 diagnostics after merge, got %d", len(a.Diagnostics))
	}
}

func TestEmptyBagHasNoErrors(t *testing.T) {
	var b Bag
	if b.HasErrors() {
		t.Fatal("expected fresh bag to have no errors")
	}
	if b.Error() != "" {
		t.Fatalf("expected empty Error() string, got %q", b.Error())
	}
}

func TestPositionString(t *testing.T) {
	pos := Position{Filename: "core.isa", Line: 12, Column: 4}
	if got := pos.String(); got != "core.isa:12:4" {
		t.Fatalf("unexpected position string: %q", got)
	}
	if got := (Position{}).String(); got != "<unknown>" {
		t.Fatalf("unexpected zero position string: %q", got)
	}
}
