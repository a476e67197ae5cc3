package isa

import (
	"fmt"

	"github.com/jmercer/isaforge/diag"
)

// fieldEntry tracks a field across the composition so later .isaext files
// can append subfields to an earlier declaration.
type fieldEntry struct {
	decl     FieldDecl
	fromFile string
}

// Validate runs the second semantic pass over a composition's merged
// documents: duplicate space/field detection, redirect target
// resolution, coredef append-only rules, and space-reference checks on
// instructions and hints. All diagnostics are collected; the returned bag
// has HasErrors() == false only when the composition is well formed.
func Validate(comp *Composition) *diag.Bag {
	var bag diag.Bag
	spaces := map[string]SpaceDecl{}
	fields := map[string]map[string]*fieldEntry{}

	for _, doc := range comp.Documents {
		for _, item := range doc.Items {
			switch v := item.(type) {
			case SpaceDecl:
				if _, dup := spaces[v.Name]; dup {
					bag.AddError(diag.PhaseValidation, "validation.dup-space", fmt.Sprintf("duplicate space %q declared in %s", v.Name, doc.Path))
					continue
				}
				spaces[v.Name] = v
				fields[v.Name] = map[string]*fieldEntry{}
			}
		}
	}

	for _, doc := range comp.Documents {
		for _, item := range doc.Items {
			smd, ok := item.(SpaceMemberDecl)
			if !ok {
				continue
			}
			fd, ok := smd.Member.(FieldDecl)
			if !ok {
				continue
			}
			validateField(&bag, spaces, fields, smd.Space, fd, doc)
		}
	}

	for _, doc := range comp.Documents {
		for _, item := range doc.Items {
			switch v := item.(type) {
			case SpaceMemberDecl:
				if insn, ok := v.Member.(InstructionDecl); ok {
					validateSpaceReference(&bag, spaces, v.Space, doc.Path, "instruction")
					_ = insn
				}
			case HintBlock:
				for _, entry := range v.Entries {
					validateSpaceReference(&bag, spaces, entry.Space, doc.Path, "hint")
				}
			}
		}
	}

	resolveRedirects(&bag, spaces, fields)

	return &bag
}

func validateField(bag *diag.Bag, spaces map[string]SpaceDecl, fields map[string]map[string]*fieldEntry, space string, fd FieldDecl, doc *Document) {
	if _, ok := spaces[space]; !ok {
		bag.AddError(diag.PhaseValidation, "validation.unknown-space", fmt.Sprintf("field %q declared in unknown space %q", fd.Name, space))
		return
	}
	spaceFields, ok := fields[space]
	if !ok {
		spaceFields = map[string]*fieldEntry{}
		fields[space] = spaceFields
	}

	existing, seen := spaceFields[fd.Name]
	isAppend := fd.Offset == nil && fd.Size == nil && fd.Reset == nil && fd.Description == "" && fd.Redirect == nil

	switch {
	case !seen:
		spaceFields[fd.Name] = &fieldEntry{decl: fd, fromFile: doc.Path}
	case seen && isAppend && len(fd.Subfields) > 0:
		existing.decl.Subfields = append(existing.decl.Subfields, fd.Subfields...)
	case seen && isAppend && len(fd.Subfields) == 0:
		bag.AddError(diag.PhaseValidation, "validation.empty-append", fmt.Sprintf("subfield-only redeclaration of field %q must list at least one subfield", fd.Name))
	default:
		bag.AddError(diag.PhaseValidation, "validation.dup-field", fmt.Sprintf("duplicate field %q in space %q", fd.Name, space))
	}
}

func validateSpaceReference(bag *diag.Bag, spaces map[string]SpaceDecl, space, file, what string) {
	if _, ok := spaces[space]; !ok {
		bag.AddError(diag.PhaseValidation, "validation.unknown-space-ref", fmt.Sprintf("%s in %s references unknown space %q", what, file, space))
	}
}

func resolveRedirects(bag *diag.Bag, spaces map[string]SpaceDecl, fields map[string]map[string]*fieldEntry) {
	for space, spaceFields := range fields {
		for name, entry := range spaceFields {
			redirect := entry.decl.Redirect
			if redirect == nil {
				continue
			}
			if len(redirect.Segments) > 2 {
				bag.AddError(diag.PhaseValidation, "validation.redirect-chain-too-long", fmt.Sprintf("redirect from %s::%s names more than 2 segments", space, name))
				continue
			}
			targetSpace := space
			targetName := redirect.Segments[0]
			var targetSubfield string
			if len(redirect.Segments) == 2 {
				// A two-segment redirect without an explicit space component
				// names name::subfield in the same space.
				targetSubfield = redirect.Segments[1]
			}
			if _, ok := spaces[targetSpace]; !ok {
				bag.AddError(diag.PhaseValidation, "validation.redirect-unknown-space", fmt.Sprintf("redirect target space %q does not exist", targetSpace))
				continue
			}
			targetField, ok := fields[targetSpace][targetName]
			if !ok {
				bag.AddError(diag.PhaseValidation, "validation.redirect-unknown-target", fmt.Sprintf("redirect from %s::%s targets unknown field %q", space, name, targetName))
				continue
			}
			if targetSubfield != "" {
				found := false
				for _, sf := range targetField.decl.Subfields {
					if equalFoldASCII(sf.Name, targetSubfield) {
						found = true
						break
					}
				}
				if !found {
					bag.AddError(diag.PhaseValidation, "validation.redirect-unknown-subfield", fmt.Sprintf("redirect from %s::%s targets unknown subfield %q on %q", space, name, targetSubfield, targetName))
				}
			}
		}
	}
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
