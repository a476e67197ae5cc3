// Package machine compiles a loaded ISA composition into a decode table,
// a register schema with concrete storage layouts, and compiled semantic
// programs ready for the execution core to run.
package machine

import (
	"fmt"

	"github.com/jmercer/isaforge/bitfield"
	"github.com/jmercer/isaforge/core"
	"github.com/jmercer/isaforge/diag"
	"github.com/jmercer/isaforge/isa"
)

// Space is a compiled address space: its declared attributes plus, for
// register spaces, the concrete field layouts assigned within it.
type Space struct {
	Name        string
	Kind        isa.SpaceKind
	AddressBits uint
	WordBits    uint
	Endian      isa.Endianness
	Fields      map[string]*RegisterField
	Forms       map[string]*Form
	FieldOrder  []string
}

// RegisterField is a compiled register (or redirect alias) within a
// register space. A plain field stores its own Layout directly; a ranged
// declaration (`GPR[0..31]`) instead populates Elements, one per index,
// all sharing the field's Subfields.
type RegisterField struct {
	Name        string
	Layout      core.RegisterLayout
	Description string
	Subfields   map[string]*bitfield.Spec
	RedirectsTo *RegisterRef // non-nil when this field is a pure alias
	Elements    []RegisterElement
}

// RegisterElement is one addressable element of a ranged register field:
// its index within the declared range, its display label (`GPR5`), and
// its own storage layout.
type RegisterElement struct {
	Index  uint32
	Label  string
	Layout core.RegisterLayout
}

// Element returns the element at the given index, if this field is
// ranged and the index falls within it.
func (f *RegisterField) Element(index uint32) (RegisterElement, bool) {
	for _, e := range f.Elements {
		if e.Index == index {
			return e, true
		}
	}
	return RegisterElement{}, false
}

// RegisterRef names a register (optionally a subfield of it) inside a
// space.
type RegisterRef struct {
	Space    string
	Name     string
	Subfield string
}

func (r RegisterRef) String() string {
	if r.Subfield == "" {
		return fmt.Sprintf("%s::%s", r.Space, r.Name)
	}
	return fmt.Sprintf("%s::%s::%s", r.Space, r.Name, r.Subfield)
}

// Form is a compiled bit-field layout instructions in a logic space may
// reference by name.
type Form struct {
	Name      string
	Subfields map[string]*bitfield.Spec
	Order     []string
}

// Instruction is a compiled, mask-folded decodable instruction.
type Instruction struct {
	Space     string
	Form      string
	Name      string
	Operands  []string
	Masks     []CompiledMask
	Semantics string
	Display   string
}

// CompiledMask is one resolved selector/value pair an instruction's
// encoding must match, expressed as an LSB-offset bit slice over the
// owning space's word.
type CompiledMask struct {
	Selector string
	Spec     *bitfield.Spec
	Value    uint64
}

// Description is the fully compiled machine: every space, every
// register, and the decode-ready instruction set.
type Description struct {
	Spaces       map[string]*Space
	SpaceOrder   []string
	Instructions []*Instruction
}

// Compile builds a Description from a validated composition. Callers
// should run isa.Validate first; Compile re-validates structural
// invariants it depends on (space existence, form existence) but does
// not repeat the validator's cross-reference checks.
func Compile(comp *isa.Composition) (*Description, *diag.Bag) {
	var bag diag.Bag
	desc := &Description{Spaces: map[string]*Space{}}

	for _, doc := range comp.Documents {
		for _, item := range doc.Items {
			if sd, ok := item.(isa.SpaceDecl); ok {
				if _, exists := desc.Spaces[sd.Name]; !exists {
					desc.SpaceOrder = append(desc.SpaceOrder, sd.Name)
				}
				desc.Spaces[sd.Name] = &Space{
					Name:        sd.Name,
					Kind:        sd.Kind,
					AddressBits: sd.AddressBits,
					WordBits:    sd.WordBits,
					Endian:      sd.Endian,
					Fields:      map[string]*RegisterField{},
					Forms:       map[string]*Form{},
				}
			}
		}
	}

	compileForms(comp, desc, &bag)
	compileFields(comp, desc, &bag)
	resolveRedirects(desc, &bag)
	compileInstructions(comp, desc, &bag)

	return desc, &bag
}

func compileForms(comp *isa.Composition, desc *Description, bag *diag.Bag) {
	for _, doc := range comp.Documents {
		for _, item := range doc.Items {
			smd, ok := item.(isa.SpaceMemberDecl)
			if !ok {
				continue
			}
			fd, ok := smd.Member.(isa.FormDecl)
			if !ok {
				continue
			}
			space, ok := desc.Spaces[smd.Space]
			if !ok {
				bag.AddError(diag.PhaseMachine, "machine.unknown-space", fmt.Sprintf("form %q references unknown space %q", fd.Name, smd.Space))
				continue
			}
			form := &Form{Name: fd.Name, Subfields: map[string]*bitfield.Spec{}}
			if fd.Inherits != "" {
				if parent, ok := space.Forms[fd.Inherits]; ok {
					for _, name := range parent.Order {
						form.Subfields[name] = parent.Subfields[name]
						form.Order = append(form.Order, name)
					}
				} else {
					bag.AddError(diag.PhaseMachine, "machine.unknown-form", fmt.Sprintf("form %q inherits unknown form %q", fd.Name, fd.Inherits))
				}
			}
			for _, sf := range fd.Subfields {
				spec, err := bitfield.FromSpecStr(space.WordBits, sf.BitSpecRaw)
				if err != nil {
					bag.AddError(diag.PhaseMachine, "machine.bad-subfield", fmt.Sprintf("form %q subfield %q: %v", fd.Name, sf.Name, err))
					continue
				}
				if _, exists := form.Subfields[sf.Name]; !exists {
					form.Order = append(form.Order, sf.Name)
				}
				form.Subfields[sf.Name] = spec
			}
			space.Forms[fd.Name] = form
		}
	}
}

func compileFields(comp *isa.Composition, desc *Description, bag *diag.Bag) {
	nextOffset := map[string]uint64{}

	for _, doc := range comp.Documents {
		for _, item := range doc.Items {
			smd, ok := item.(isa.SpaceMemberDecl)
			if !ok {
				continue
			}
			fd, ok := smd.Member.(isa.FieldDecl)
			if !ok {
				continue
			}
			space, ok := desc.Spaces[smd.Space]
			if !ok {
				bag.AddError(diag.PhaseMachine, "machine.unknown-space", fmt.Sprintf("register %q references unknown space %q", fd.Name, smd.Space))
				continue
			}

			existing, redeclared := space.Fields[fd.Name]
			if redeclared {
				mergeSubfields(existing, fd, space.WordBits, bag)
				continue
			}

			field := &RegisterField{Name: fd.Name, Description: fd.Description, Subfields: map[string]*bitfield.Spec{}}

			if fd.Redirect != nil {
				field.RedirectsTo = redirectRefFromSegments(fd.Redirect.Segments, smd.Space)
				space.Fields[fd.Name] = field
				space.FieldOrder = append(space.FieldOrder, fd.Name)
				continue
			}

			width := uint64(space.WordBits)
			if fd.Size != nil {
				width = *fd.Size
			}
			elementBytes := wordAlignedBytes(width)

			var baseOffset uint64
			if fd.Offset != nil {
				baseOffset = *fd.Offset
			} else {
				baseOffset = nextOffset[smd.Space]
			}

			for _, sf := range fd.Subfields {
				spec, err := bitfield.FromSpecStr(uint(width), sf.BitSpecRaw)
				if err != nil {
					bag.AddError(diag.PhaseMachine, "machine.bad-subfield", fmt.Sprintf("register %q subfield %q: %v", fd.Name, sf.Name, err))
					continue
				}
				field.Subfields[sf.Name] = spec
			}

			if fd.Range != nil {
				count := uint64(fd.Range.End) - uint64(fd.Range.Start) + 1
				for i := fd.Range.Start; i <= fd.Range.End; i++ {
					elemOffset := baseOffset + uint64(i-fd.Range.Start)*elementBytes
					field.Elements = append(field.Elements, RegisterElement{
						Index:  i,
						Label:  fmt.Sprintf("%s%d", fd.Name, i),
						Layout: core.RegisterLayout{ByteOffset: elemOffset, BitOffset: 0, BitWidth: uint(width)},
					})
				}
				nextOffset[smd.Space] = baseOffset + count*elementBytes
			} else {
				field.Layout = core.RegisterLayout{ByteOffset: baseOffset, BitOffset: 0, BitWidth: uint(width)}
				nextOffset[smd.Space] = baseOffset + elementBytes
			}

			space.Fields[fd.Name] = field
			space.FieldOrder = append(space.FieldOrder, fd.Name)
		}
	}
}

// mergeSubfields folds a .isaext redeclaration (subfield-only append)
// into an already-compiled field.
func mergeSubfields(field *RegisterField, fd isa.FieldDecl, wordBits uint, bag *diag.Bag) {
	width := field.Layout.BitWidth
	if len(field.Elements) > 0 {
		width = field.Elements[0].Layout.BitWidth
	}
	if width == 0 {
		width = wordBits
	}
	for _, sf := range fd.Subfields {
		spec, err := bitfield.FromSpecStr(width, sf.BitSpecRaw)
		if err != nil {
			bag.AddError(diag.PhaseMachine, "machine.bad-subfield", fmt.Sprintf("register %q subfield %q: %v", fd.Name, sf.Name, err))
			continue
		}
		field.Subfields[sf.Name] = spec
	}
}

func redirectRefFromSegments(segments []string, defaultSpace string) *RegisterRef {
	switch len(segments) {
	case 1:
		return &RegisterRef{Space: defaultSpace, Name: segments[0]}
	case 2:
		return &RegisterRef{Space: defaultSpace, Name: segments[0], Subfield: segments[1]}
	case 3:
		return &RegisterRef{Space: segments[0], Name: segments[1], Subfield: segments[2]}
	default:
		return &RegisterRef{}
	}
}

// resolveRedirects replaces each alias field's layout/subfields with the
// target it points to, so register access never has to chase a pointer
// at run time.
func resolveRedirects(desc *Description, bag *diag.Bag) {
	for _, spaceName := range desc.SpaceOrder {
		space := desc.Spaces[spaceName]
		for name, field := range space.Fields {
			if field.RedirectsTo == nil {
				continue
			}
			target, spec, ok := resolveTarget(desc, *field.RedirectsTo)
			if !ok {
				bag.AddError(diag.PhaseMachine, "machine.bad-redirect", fmt.Sprintf("register %q redirects to unresolved target %s", name, field.RedirectsTo))
				continue
			}
			if spec != nil {
				field.Layout = target.Layout
				field.Subfields = map[string]*bitfield.Spec{"": spec}
			} else {
				field.Layout = target.Layout
				field.Subfields = target.Subfields
			}
		}
	}
}

func resolveTarget(desc *Description, ref RegisterRef) (*RegisterField, *bitfield.Spec, bool) {
	space, ok := desc.Spaces[ref.Space]
	if !ok {
		return nil, nil, false
	}
	field, ok := space.Fields[ref.Name]
	if !ok {
		return nil, nil, false
	}
	if ref.Subfield == "" {
		return field, nil, true
	}
	spec, ok := field.Subfields[ref.Subfield]
	if !ok {
		return nil, nil, false
	}
	return field, spec, true
}

// instructionKey identifies an instruction regardless of which document
// in the composition declared or redeclared it.
type instructionKey struct {
	space string
	name  string
}

func compileInstructions(comp *isa.Composition, desc *Description, bag *diag.Bag) {
	order := []instructionKey{}
	masksBySelector := map[instructionKey]map[string]isa.MaskField{}
	selectorOrder := map[instructionKey][]string{}
	latest := map[instructionKey]isa.InstructionDecl{}

	for _, doc := range comp.Documents {
		for _, item := range doc.Items {
			smd, ok := item.(isa.SpaceMemberDecl)
			if !ok {
				continue
			}
			insn, ok := smd.Member.(isa.InstructionDecl)
			if !ok {
				continue
			}
			key := instructionKey{space: smd.Space, name: insn.Name}
			if _, seen := masksBySelector[key]; !seen {
				order = append(order, key)
				masksBySelector[key] = map[string]isa.MaskField{}
			}
			latest[key] = insn
			for _, m := range insn.Masks {
				selector := maskSelector(m)
				if _, exists := masksBySelector[key][selector]; !exists {
					selectorOrder[key] = append(selectorOrder[key], selector)
				}
				masksBySelector[key][selector] = m // later declaration wins
			}
		}
	}

	for _, key := range order {
		space, ok := desc.Spaces[key.space]
		if !ok {
			bag.AddError(diag.PhaseMachine, "machine.unknown-space", fmt.Sprintf("instruction %q references unknown space %q", key.name, key.space))
			continue
		}
		decl := latest[key]
		var form *Form
		if decl.Form != "" {
			form, ok = space.Forms[decl.Form]
			if !ok {
				bag.AddError(diag.PhaseMachine, "machine.unknown-form", fmt.Sprintf("instruction %q references unknown form %q", key.name, decl.Form))
				continue
			}
		}

		var compiledMasks []CompiledMask
		for _, selector := range selectorOrder[key] {
			m := masksBySelector[key][selector]
			var spec *bitfield.Spec
			var err error
			if m.RawSpec != "" {
				spec, err = bitfield.FromSpecStr(space.WordBits, m.RawSpec)
			} else if form != nil {
				var ok2 bool
				spec, ok2 = form.Subfields[m.SubfieldName]
				if !ok2 {
					err = fmt.Errorf("form %q has no subfield %q", decl.Form, m.SubfieldName)
				}
			} else {
				err = fmt.Errorf("mask selector %q requires a form", m.SubfieldName)
			}
			if err != nil {
				bag.AddError(diag.PhaseMachine, "machine.bad-mask", fmt.Sprintf("instruction %q: %v", key.name, err))
				continue
			}
			compiledMasks = append(compiledMasks, CompiledMask{Selector: selector, Spec: spec, Value: m.Value})
		}

		desc.Instructions = append(desc.Instructions, &Instruction{
			Space:     key.space,
			Form:      decl.Form,
			Name:      key.name,
			Operands:  decl.Operands,
			Masks:     compiledMasks,
			Semantics: decl.Semantics,
			Display:   decl.Display,
		})
	}
}

func maskSelector(m isa.MaskField) string {
	if m.RawSpec != "" {
		return "@" + m.RawSpec
	}
	return m.SubfieldName
}

func wordAlignedBytes(bitWidth uint64) uint64 {
	bytes := (bitWidth + 7) / 8
	if bytes == 0 {
		bytes = 1
	}
	// Round up to the next power-of-two byte count so no register
	// straddles the 8-byte container window core.State reads through.
	for _, size := range []uint64{1, 2, 4, 8} {
		if bytes <= size {
			return size
		}
	}
	return 8
}
