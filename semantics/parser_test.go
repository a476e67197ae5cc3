package semantics

import "testing"

func TestParseAssignmentAndCall(t *testing.T) {
	stmts, err := Parse(`RD = host::add(RA, RB, 32);`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(stmts))
	}
	assign, ok := stmts[0].(Assign)
	if !ok {
		t.Fatalf("expected an Assign statement, got %T", stmts[0])
	}
	if _, ok := assign.Target.(Variable); !ok {
		t.Fatalf("expected a Variable target, got %T", assign.Target)
	}
	call, ok := assign.Value.(Call)
	if !ok {
		t.Fatalf("expected a Call value, got %T", assign.Value)
	}
	if call.Name != "host::add" || len(call.Args) != 3 {
		t.Fatalf("unexpected call shape: %+v", call)
	}
}

func TestParseRegisterReferenceWithSubfield(t *testing.T) {
	stmts, err := Parse(`reg::FLAGS::CARRY = 1;`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	assign := stmts[0].(Assign)
	reg, ok := assign.Target.(Register)
	if !ok {
		t.Fatalf("expected a Register target, got %T", assign.Target)
	}
	if reg.Space != "reg" || reg.Name != "FLAGS" || reg.Subfield != "CARRY" {
		t.Fatalf("unexpected register reference: %+v", reg)
	}
}

func TestParseNestedIfElse(t *testing.T) {
	stmts, err := Parse(`if (RA > RB) { RD = RA; } else { RD = RB; }`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ifStmt, ok := stmts[0].(If)
	if !ok {
		t.Fatalf("expected an If statement, got %T", stmts[0])
	}
	if len(ifStmt.Then) != 1 || len(ifStmt.Else) != 1 {
		t.Fatalf("expected one statement per branch, got then=%d else=%d", len(ifStmt.Then), len(ifStmt.Else))
	}
}

func TestParseRejectsMissingSemicolon(t *testing.T) {
	_, err := Parse(`RD = RA`)
	if err == nil {
		t.Fatal("expected a parse error for a missing terminator")
	}
}

func TestParseBitwiseAndRelationalOperators(t *testing.T) {
	stmts, err := Parse(`RD = (RA & 0xFF) | (RB ^ 1);`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	assign := stmts[0].(Assign)
	top, ok := assign.Value.(BinaryOp)
	if !ok || top.Op != OpBitOr {
		t.Fatalf("expected a top-level bit-or, got %+v", assign.Value)
	}
}
