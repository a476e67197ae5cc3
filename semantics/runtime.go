package semantics

import (
	"fmt"
	"strconv"

	"github.com/jmercer/isaforge/core"
	"github.com/jmercer/isaforge/machine"
)

// maxRedirectDepth bounds how many redirect hops lookup will follow
// before giving up, guarding against a cyclic redirect graph.
const maxRedirectDepth = 8

// resolvedRegister is the outcome of resolving a Register reference: the
// compiled field it lands on, the concrete storage layout to read/write
// (a ranged field's per-element layout, or the field's own), the
// effective subfield to apply, and the display label ("GPR5") trace
// events and error messages should use instead of the bare field name.
type resolvedRegister struct {
	Field    *machine.RegisterField
	Layout   core.RegisterLayout
	Label    string
	Subfield string
}

// RegisterAccess resolves Register expressions against a compiled
// machine description and reads/writes them through a core register
// file. Resolution tries, in order: a direct (space, name) lookup; a
// label lookup that splits a numeric suffix off an unresolved name
// (`GPR5` -> base `GPR`, index 5) and selects that element of a ranged
// field; and, for a field declared as a pure alias, a depth-bounded walk
// of its redirect chain into the target space.
type RegisterAccess struct {
	Description *machine.Description
	State       *core.State
	Tracer      Tracer
}

// ReadRegister implements CallResolver.
func (r *RegisterAccess) ReadRegister(ref Register) (Value, error) {
	resolved, err := r.lookup(ref)
	if err != nil {
		return Value{}, err
	}
	raw, width, err := r.readContainer(resolved)
	if err != nil {
		return Value{}, err
	}
	if r.Tracer != nil {
		r.Tracer.TraceRegisterRead(resolved.traceName(ref.Space), raw, width)
	}
	return IntValue(int64(raw)), nil
}

// WriteRegister implements CallResolver.
func (r *RegisterAccess) WriteRegister(ref Register, value Value) error {
	resolved, err := r.lookup(ref)
	if err != nil {
		return err
	}
	i, err := value.AsInt()
	if err != nil {
		return err
	}

	var width uint
	if spec, ok := resolved.Field.Subfields[resolved.Subfield]; ok && resolved.Subfield != "" {
		container, err := r.State.ReadBitsAt(resolved.Layout.ByteOffset, resolved.Layout.BitOffset, resolved.Layout.BitWidth)
		if err != nil {
			return err
		}
		updated, err := spec.WriteBits(container, uint64(i))
		if err != nil {
			return err
		}
		if err := r.State.WriteBitsAt(resolved.Layout.ByteOffset, resolved.Layout.BitOffset, resolved.Layout.BitWidth, updated); err != nil {
			return err
		}
		width = spec.TotalWidth()
	} else {
		if err := r.State.WriteBitsAt(resolved.Layout.ByteOffset, resolved.Layout.BitOffset, resolved.Layout.BitWidth, uint64(i)); err != nil {
			return err
		}
		width = resolved.Layout.BitWidth
	}

	if r.Tracer != nil {
		r.Tracer.TraceRegisterWrite(resolved.traceName(ref.Space), uint64(i), width)
	}
	return nil
}

func (r *RegisterAccess) readContainer(resolved resolvedRegister) (uint64, uint, error) {
	raw, err := r.State.ReadBitsAt(resolved.Layout.ByteOffset, resolved.Layout.BitOffset, resolved.Layout.BitWidth)
	if err != nil {
		return 0, 0, err
	}
	if spec, ok := resolved.Field.Subfields[resolved.Subfield]; ok && resolved.Subfield != "" {
		value, width := spec.ReadBits(raw)
		return value, width, nil
	}
	return raw, resolved.Layout.BitWidth, nil
}

func (resolved resolvedRegister) traceName(space string) string {
	if resolved.Subfield == "" {
		return space + "::" + resolved.Label
	}
	return space + "::" + resolved.Label + "::" + resolved.Subfield
}

// lookup resolves ref against the compiled machine description. See the
// RegisterAccess doc comment for the three-step algorithm.
func (r *RegisterAccess) lookup(ref Register) (resolvedRegister, error) {
	space := ref.Space
	name := ref.Name
	subfield := ref.Subfield
	index, err := registerIndex(ref)
	if err != nil {
		return resolvedRegister{}, err
	}

	for depth := 0; ; depth++ {
		if depth > maxRedirectDepth {
			return resolvedRegister{}, fmt.Errorf("semantics: redirect chain for %s::%s exceeds depth %d", ref.Space, ref.Name, maxRedirectDepth)
		}

		sp, ok := r.Description.Spaces[space]
		if !ok {
			return resolvedRegister{}, fmt.Errorf("semantics: unknown space %q", space)
		}

		if field, ok := sp.Fields[name]; ok {
			if len(field.Elements) > 0 {
				if index == nil {
					return resolvedRegister{}, fmt.Errorf("semantics: register %q in space %q is ranged and requires an index", name, space)
				}
				elem, ok := field.Element(*index)
				if !ok {
					return resolvedRegister{}, fmt.Errorf("semantics: index %d out of range for register %q in space %q", *index, name, space)
				}
				return resolvedRegister{Field: field, Layout: elem.Layout, Label: elem.Label, Subfield: subfield}, nil
			}
			if index != nil && *index != 0 {
				return resolvedRegister{}, fmt.Errorf("semantics: register %q in space %q is not ranged, index %d is invalid", name, space, *index)
			}
			if field.RedirectsTo != nil {
				target := field.RedirectsTo
				if target.Subfield != "" && subfield == "" {
					subfield = target.Subfield
				}
				space, name = target.Space, target.Name
				continue
			}
			return resolvedRegister{Field: field, Layout: field.Layout, Label: name, Subfield: subfield}, nil
		}

		if base, suffix, ok := splitLabelSuffix(name); ok {
			if baseField, ok := sp.Fields[base]; ok && len(baseField.Elements) > 0 {
				if index != nil && *index != suffix {
					return resolvedRegister{}, fmt.Errorf("semantics: register %q carries a conflicting explicit index %d", name, *index)
				}
				elem, ok := baseField.Element(suffix)
				if !ok {
					return resolvedRegister{}, fmt.Errorf("semantics: index %d out of range for register %q in space %q", suffix, base, space)
				}
				return resolvedRegister{Field: baseField, Layout: elem.Layout, Label: elem.Label, Subfield: subfield}, nil
			}
		}

		return resolvedRegister{}, fmt.Errorf("semantics: unknown register %q in space %q", name, space)
	}
}

// splitLabelSuffix splits a trailing run of decimal digits off name,
// reporting the base and the parsed index. It fails if name has no
// digit suffix or is entirely digits (no base to look up).
func splitLabelSuffix(name string) (base string, index uint32, ok bool) {
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	if i == 0 || i == len(name) {
		return "", 0, false
	}
	n, err := strconv.ParseUint(name[i:], 10, 32)
	if err != nil {
		return "", 0, false
	}
	return name[:i], uint32(n), true
}

// registerIndex extracts ref's evaluated index, if any. The evaluator
// resolves Index down to a Number before any CallResolver sees it; a
// non-Number here means a caller built a Register by hand with an
// unresolved index expression, which is a programming error.
func registerIndex(ref Register) (*uint32, error) {
	if ref.Index == nil {
		return nil, nil
	}
	n, ok := ref.Index.(Number)
	if !ok {
		return nil, fmt.Errorf("semantics: register %q index must be resolved before lookup", ref.Name)
	}
	if n.Value < 0 {
		return nil, fmt.Errorf("semantics: register %q index %d must not be negative", ref.Name, n.Value)
	}
	idx := uint32(n.Value)
	return &idx, nil
}

// HostResolver dispatches host::add/host::sub/host::mul_* calls (and plain
// register access) to a core.HostServices implementation, composing with
// a RegisterAccess for the register half of CallResolver.
type HostResolver struct {
	Registers *RegisterAccess
	Host      core.HostServices
	Tracer    Tracer
}

func (h *HostResolver) ReadRegister(ref Register) (Value, error) {
	return h.Registers.ReadRegister(ref)
}

func (h *HostResolver) WriteRegister(ref Register, value Value) error {
	return h.Registers.WriteRegister(ref, value)
}

// Call dispatches host::add(lhs, rhs, width[, carryIn]), host::sub(lhs,
// rhs, width), and host::mul_low / host::mul_high(lhs, rhs, width), which
// return the low and high halves of the product. add/sub return the result
// value; the carry/overflow flags are exposed to semantics through the
// paired host::add_carry / host::add_overflow / host::sub_borrow /
// host::sub_overflow calls evaluated against the same inputs, mirroring
// how the original's ArithResult fields are read individually within a
// semantic program.
func (h *HostResolver) Call(name string, args []Value) (Value, error) {
	switch name {
	case "host::add", "host::add_carry", "host::add_overflow":
		lhs, rhs, width, carryIn, err := arithArgs(args, true)
		if err != nil {
			return Value{}, err
		}
		result := h.Host.Add(lhs, rhs, width, carryIn)
		out := hostArithResult(name, result)
		h.traceHostOp(name, lhs, rhs, uint64(width), out)
		return out, nil
	case "host::sub", "host::sub_borrow", "host::sub_overflow":
		lhs, rhs, width, _, err := arithArgs(args, false)
		if err != nil {
			return Value{}, err
		}
		result := h.Host.Sub(lhs, rhs, width)
		out := hostArithResult(name, result)
		h.traceHostOp(name, lhs, rhs, uint64(width), out)
		return out, nil
	case "host::mul_low", "host::mul_high":
		lhs, rhs, width, _, err := arithArgs(args, false)
		if err != nil {
			return Value{}, err
		}
		result := h.Host.Mul(lhs, rhs, width)
		out := IntValue(int64(result.Low))
		if name == "host::mul_high" {
			out = IntValue(int64(result.High))
		}
		h.traceHostOp(name, lhs, rhs, uint64(width), out)
		return out, nil
	default:
		return Value{}, fmt.Errorf("semantics: unknown call %q", name)
	}
}

func (h *HostResolver) traceHostOp(name string, lhs, rhs, width uint64, result Value) {
	if h.Tracer == nil {
		return
	}
	r, err := result.AsInt()
	if err != nil {
		return
	}
	h.Tracer.TraceHostOp(name, []uint64{lhs, rhs, width}, uint64(r))
}

func arithArgs(args []Value, allowCarry bool) (lhs, rhs uint64, width uint, carryIn bool, err error) {
	if len(args) < 3 {
		return 0, 0, 0, false, fmt.Errorf("semantics: arithmetic call requires (lhs, rhs, width[, carry])")
	}
	l, err := args[0].AsInt()
	if err != nil {
		return 0, 0, 0, false, err
	}
	r, err := args[1].AsInt()
	if err != nil {
		return 0, 0, 0, false, err
	}
	w, err := args[2].AsInt()
	if err != nil {
		return 0, 0, 0, false, err
	}
	if allowCarry && len(args) >= 4 {
		c, err := args[3].AsBool()
		if err != nil {
			return 0, 0, 0, false, err
		}
		carryIn = c
	}
	return uint64(l), uint64(r), uint(w), carryIn, nil
}

func hostArithResult(name string, result core.ArithResult) Value {
	switch name {
	case "host::add_carry":
		return BoolValue(result.Carry)
	case "host::add_overflow", "host::sub_overflow":
		return BoolValue(result.Overflow)
	case "host::sub_borrow":
		return BoolValue(!result.Carry)
	default:
		return IntValue(int64(result.Value))
	}
}
