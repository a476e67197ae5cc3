package isa

import "testing"

func compFromSources(t *testing.T, sources map[string]string, root string) *Composition {
	t.Helper()
	comp, bag := NewLoader(memFS(sources)).LoadCoredef(root)
	if bag.HasErrors() {
		t.Fatalf("unexpected load errors: %v", bag.Errors())
	}
	return comp
}

func TestValidatorAcceptsWellFormedComposition(t *testing.T) {
	comp := compFromSources(t, memFS{
		"/c.coredef": `:include "base.isa"`,
		"/base.isa":  `:space reg addr=32 word=32 type=register
:reg PC offset=0 size=32`,
	}, "/c.coredef")
	bag := Validate(comp)
	if bag.HasErrors() {
		t.Fatalf("unexpected validation errors: %v", bag.Errors())
	}
}

func TestValidatorRejectsDuplicateSpace(t *testing.T) {
	comp := compFromSources(t, memFS{
		"/c.coredef": `:include "base.isa"
:include "ext.isaext"`,
		"/base.isa": `:space reg addr=32 word=32 type=register`,
		"/ext.isaext": `:extends "base.isa"
:space reg addr=16 word=16 type=register`,
	}, "/c.coredef")
	bag := Validate(comp)
	if !bag.HasErrors() {
		t.Fatal("expected a duplicate-space error")
	}
}

func TestValidatorRejectsDuplicateField(t *testing.T) {
	comp := compFromSources(t, memFS{
		"/c.coredef": `:include "base.isa"`,
		"/base.isa": `:space reg addr=32 word=32 type=register
:reg PC offset=0 size=32
:reg PC offset=4 size=32`,
	}, "/c.coredef")
	bag := Validate(comp)
	if !bag.HasErrors() {
		t.Fatal("expected a duplicate-field error")
	}
}

func TestValidatorAllowsSubfieldOnlyAppendAcrossExtension(t *testing.T) {
	comp := compFromSources(t, memFS{
		"/c.coredef": `:include "base.isa"
:include "ext.isaext"`,
		"/base.isa": `:space reg addr=32 word=32 type=register
:reg PC offset=0 size=32`,
		"/ext.isaext": `:extends "base.isa"
:reg PC subfields={ LOW @(0-15) }`,
	}, "/c.coredef")
	bag := Validate(comp)
	if bag.HasErrors() {
		t.Fatalf("unexpected validation errors: %v", bag.Errors())
	}
}

func TestValidatorRejectsEmptyAppend(t *testing.T) {
	comp := compFromSources(t, memFS{
		"/c.coredef": `:include "base.isa"
:include "ext.isaext"`,
		"/base.isa":   `:space reg addr=32 word=32 type=register
:reg PC offset=0 size=32`,
		"/ext.isaext": `:extends "base.isa"
:reg PC`,
	}, "/c.coredef")
	bag := Validate(comp)
	if !bag.HasErrors() {
		t.Fatal("expected a redeclaration with no subfields to be rejected")
	}
}

func TestValidatorRejectsRedirectToUnknownField(t *testing.T) {
	comp := compFromSources(t, memFS{
		"/c.coredef": `:include "base.isa"`,
		"/base.isa": `:space reg addr=32 word=32 type=register
:reg ALIAS redirect=MISSING`,
	}, "/c.coredef")
	bag := Validate(comp)
	if !bag.HasErrors() {
		t.Fatal("expected a redirect-unknown-target error")
	}
}

func TestValidatorResolvesRedirectToSubfield(t *testing.T) {
	comp := compFromSources(t, memFS{
		"/c.coredef": `:include "base.isa"`,
		"/base.isa": `:space reg addr=32 word=32 type=register
:reg PC offset=0 size=32 subfields={ LOW @(0-15) }
:reg ALIAS redirect=PC::LOW`,
	}, "/c.coredef")
	bag := Validate(comp)
	if bag.HasErrors() {
		t.Fatalf("unexpected validation errors: %v", bag.Errors())
	}
}

func TestValidatorRejectsRedirectToUnknownSubfield(t *testing.T) {
	comp := compFromSources(t, memFS{
		"/c.coredef": `:include "base.isa"`,
		"/base.isa": `:space reg addr=32 word=32 type=register
:reg PC offset=0 size=32 subfields={ LOW @(0-15) }
:reg ALIAS redirect=PC::HIGH`,
	}, "/c.coredef")
	bag := Validate(comp)
	if !bag.HasErrors() {
		t.Fatal("expected a redirect-unknown-subfield error")
	}
}

func TestValidatorRejectsHintReferencingUnknownSpace(t *testing.T) {
	comp := compFromSources(t, memFS{
		"/c.coredef": `:include "base.isa"`,
		"/base.isa": `:space reg addr=32 word=32 type=register
:hint { ghost <- @(0-3) == 1 }`,
	}, "/c.coredef")
	bag := Validate(comp)
	if !bag.HasErrors() {
		t.Fatal("expected an unknown-space hint reference error")
	}
}
