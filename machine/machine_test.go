package machine

import (
	"fmt"
	"testing"

	"github.com/jmercer/isaforge/isa"
)

type memFS map[string]string

func (m memFS) ReadFile(path string) (string, error) {
	src, ok := m[path]
	if !ok {
		return "", fmt.Errorf("no such file: %s", path)
	}
	return src, nil
}

func compileFromSources(t *testing.T, sources map[string]string, root string) *Description {
	t.Helper()
	comp, bag := isa.NewLoader(memFS(sources)).LoadCoredef(root)
	if bag.HasErrors() {
		t.Fatalf("unexpected load errors: %v", bag.Errors())
	}
	if bag2 := isa.Validate(comp); bag2.HasErrors() {
		t.Fatalf("unexpected validation errors: %v", bag2.Errors())
	}
	desc, mbag := Compile(comp)
	if mbag.HasErrors() {
		t.Fatalf("unexpected compile errors: %v", mbag.Errors())
	}
	return desc
}

const demoISA = `:space reg addr=32 word=32 type=register
:reg PC offset=0 size=32
:reg FLAGS offset=8 size=8 subfields={ CARRY @(7-7) | ZERO @(6-6) }
:reg ALIAS redirect=PC
:space code addr=32 word=32 type=logic endian=big
:form code add_form subfields={ OPCODE @(0-7) | RD @(8-11) | RA @(12-15) | RB @(16-19) }
:code add form=add_form mask={ OPCODE=0x10 } operands=(RD,RA,RB) semantics={ }
`

func TestCompileRegistersAndSubfields(t *testing.T) {
	desc := compileFromSources(t, memFS{
		"/c.coredef": `:include "base.isa"`,
		"/base.isa":  demoISA,
	}, "/c.coredef")

	space, ok := desc.Spaces["reg"]
	if !ok {
		t.Fatal("expected reg space to be compiled")
	}
	pc, ok := space.Fields["PC"]
	if !ok {
		t.Fatal("expected PC field")
	}
	if pc.Layout.BitWidth != 32 {
		t.Fatalf("expected PC width 32, got %d", pc.Layout.BitWidth)
	}

	flags, ok := space.Fields["FLAGS"]
	if !ok {
		t.Fatal("expected FLAGS field")
	}
	if _, ok := flags.Subfields["CARRY"]; !ok {
		t.Fatal("expected FLAGS to have a CARRY subfield")
	}
}

func TestCompileResolvesRedirectToTargetLayout(t *testing.T) {
	desc := compileFromSources(t, memFS{
		"/c.coredef": `:include "base.isa"`,
		"/base.isa":  demoISA,
	}, "/c.coredef")

	space := desc.Spaces["reg"]
	alias := space.Fields["ALIAS"]
	pc := space.Fields["PC"]
	if alias.Layout != pc.Layout {
		t.Fatalf("expected ALIAS layout to match PC layout, got %+v vs %+v", alias.Layout, pc.Layout)
	}
}

func TestCompileFoldsFormAndInstruction(t *testing.T) {
	desc := compileFromSources(t, memFS{
		"/c.coredef": `:include "base.isa"`,
		"/base.isa":  demoISA,
	}, "/c.coredef")

	if len(desc.Instructions) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(desc.Instructions))
	}
	insn := desc.Instructions[0]
	if insn.Name != "add" {
		t.Fatalf("expected instruction named add, got %s", insn.Name)
	}
	if len(insn.Masks) != 1 || insn.Masks[0].Value != 0x10 {
		t.Fatalf("expected a single mask selector OPCODE=0x10, got %+v", insn.Masks)
	}
}

func TestCompileMaskFieldLastWriterWins(t *testing.T) {
	desc := compileFromSources(t, memFS{
		"/c.coredef": `:include "base.isa"
:include "ext.isaext"`,
		"/base.isa": demoISA,
		"/ext.isaext": `:extends "base.isa"
:code add form=add_form mask={ OPCODE=0x20 }`,
	}, "/c.coredef")

	insn := desc.Instructions[0]
	if insn.Masks[0].Value != 0x20 {
		t.Fatalf("expected later .isaext mask value 0x20 to override base, got %#x", insn.Masks[0].Value)
	}
}

func TestCompileAcceptsSpaceOnlyComposition(t *testing.T) {
	comp, bag := isa.NewLoader(memFS{
		"/c.coredef": `:include "base.isa"`,
		"/base.isa":  `:space reg addr=32 word=32 type=register`,
	}).LoadCoredef("/c.coredef")
	if bag.HasErrors() {
		t.Fatalf("unexpected load errors: %v", bag.Errors())
	}
	_, mbag := Compile(comp)
	if mbag.HasErrors() {
		t.Fatal("expected no compile errors for a space-only composition")
	}
}
