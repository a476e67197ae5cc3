// Package bitfield implements the concatenated bit-slice spec that is the
// single most reused primitive in the ISA front end: instruction mask
// fields, form subfields, and register subfields are all bit-field specs
// read from and written to a container word.
package bitfield

import (
	"fmt"
	"strconv"
	"strings"
)

// MaskForWidth returns a mask covering the low width bits. Width 0 yields
// 0; width >= 64 yields all ones.
func MaskForWidth(width uint) uint64 {
	if width == 0 {
		return 0
	}
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}

// Slice extracts width contiguous bits starting at the least-significant
// offset inside a container word.
type Slice struct {
	Offset uint
	Width  uint
	Mask   uint64 // mask << offset, precomputed
}

// NewSlice validates and builds a Slice.
func NewSlice(offset, width uint) (Slice, error) {
	if width == 0 {
		return Slice{}, fmt.Errorf("bitfield: slice width must be non-zero")
	}
	if width > 64 {
		return Slice{}, fmt.Errorf("bitfield: slice width %d exceeds 64 bits", width)
	}
	if offset+width > 64 {
		return Slice{}, fmt.Errorf("bitfield: slice offset %d width %d exceeds 64-bit container", offset, width)
	}
	return Slice{Offset: offset, Width: width, Mask: MaskForWidth(width) << offset}, nil
}

// PadKind distinguishes zero extension from sign extension above the
// concatenated data width.
type PadKind int

const (
	PadZero PadKind = iota
	PadSign
)

// Pad describes extension bits above the data segments.
type Pad struct {
	Kind  PadKind
	Width uint
}

// SegmentKind discriminates Segment's two variants.
type SegmentKind int

const (
	SegSlice SegmentKind = iota
	SegLiteral
)

// Segment is either a Slice over the container or a fixed Literal that
// must match on write and contributes fixed bits on read.
type Segment struct {
	Kind    SegmentKind
	Slice   Slice  // valid when Kind == SegSlice
	Literal uint64 // valid when Kind == SegLiteral
	Width   uint   // literal width, or Slice.Width mirrored for convenience
}

// Spec is a full bit-field spec: an ordered list of segments (the first
// segment's bits become the most-significant bits of the read value) plus
// an optional pad and an explicit signedness flag.
type Spec struct {
	Segments []Segment
	Pad      *Pad
	Signed   bool
}

// Builder accumulates segments before producing an immutable Spec.
type Builder struct {
	segments []Segment
	pad      *Pad
	signed   bool
}

// NewBuilder starts an empty builder.
func NewBuilder() *Builder { return &Builder{} }

// Range appends a Slice segment computed from explicit LSB offset/width.
func (b *Builder) Range(offset, width uint) *Builder {
	s, err := NewSlice(offset, width)
	if err != nil {
		panic(err)
	}
	b.segments = append(b.segments, Segment{Kind: SegSlice, Slice: s, Width: width})
	return b
}

// Literal appends a fixed-bit segment.
func (b *Builder) Literal(value uint64, width uint) *Builder {
	value &= MaskForWidth(width)
	b.segments = append(b.segments, Segment{Kind: SegLiteral, Literal: value, Width: width})
	return b
}

// ZeroPad sets a zero-extension pad of the given width.
func (b *Builder) ZeroPad(width uint) *Builder {
	b.pad = &Pad{Kind: PadZero, Width: width}
	return b
}

// SignPad sets a sign-extension pad of the given width and marks the spec
// signed.
func (b *Builder) SignPad(width uint) *Builder {
	b.pad = &Pad{Kind: PadSign, Width: width}
	b.signed = true
	return b
}

// Build finalizes the spec.
func (b *Builder) Build() (*Spec, error) {
	spec := &Spec{Segments: b.segments, Pad: b.pad, Signed: b.signed}
	if spec.TotalWidth() > 64 {
		return nil, fmt.Errorf("bitfield: total width %d exceeds 64 bits", spec.TotalWidth())
	}
	return spec, nil
}

// FromRange builds a single-segment spec directly from an LSB offset and
// width, the common case for a plain subfield.
func FromRange(offset, width uint) (*Spec, error) {
	return NewBuilder().Range(offset, width).Build()
}

// DataWidth is the sum of the segment widths, excluding any pad.
func (s *Spec) DataWidth() uint {
	var total uint
	for _, seg := range s.Segments {
		total += seg.Width
	}
	return total
}

// TotalWidth is DataWidth plus any pad width.
func (s *Spec) TotalWidth() uint {
	total := s.DataWidth()
	if s.Pad != nil {
		total += s.Pad.Width
	}
	return total
}

// IsSigned reports whether the spec declares itself signed or carries a
// sign pad.
func (s *Spec) IsSigned() bool {
	if s.Signed {
		return true
	}
	return s.Pad != nil && s.Pad.Kind == PadSign
}

// BitSpan returns the lowest and highest (inclusive) LSB offsets touched
// by any Slice segment in the container; used by callers validating a
// spec fits inside a declared word size.
func (s *Spec) BitSpan() (lo, hi uint, ok bool) {
	first := true
	for _, seg := range s.Segments {
		if seg.Kind != SegSlice {
			continue
		}
		segLo := seg.Slice.Offset
		segHi := seg.Slice.Offset + seg.Slice.Width - 1
		if first {
			lo, hi = segLo, segHi
			first = false
			continue
		}
		if segLo < lo {
			lo = segLo
		}
		if segHi > hi {
			hi = segHi
		}
	}
	return lo, hi, !first
}

// ReadBits concatenates segments from bits (declaration order becomes
// MSB-to-LSB of the result) and applies any pad, returning the logical
// value and its total width.
func (s *Spec) ReadBits(bits uint64) (uint64, uint) {
	var acc uint64
	var accWidth uint
	for _, seg := range s.Segments {
		var part uint64
		switch seg.Kind {
		case SegSlice:
			part = (bits & seg.Slice.Mask) >> seg.Slice.Offset
		case SegLiteral:
			part = seg.Literal
		}
		acc = (acc << seg.Width) | (part & MaskForWidth(seg.Width))
		accWidth += seg.Width
	}
	value := s.applyPad(acc, accWidth)
	return value, s.TotalWidth()
}

func (s *Spec) applyPad(value uint64, dataWidth uint) uint64 {
	if s.Pad == nil {
		return value
	}
	total := dataWidth + s.Pad.Width
	if s.Pad.Kind == PadZero || dataWidth == 0 {
		return value & MaskForWidth(total)
	}
	// Sign pad: copy the data segment's MSB through the pad bits.
	signBit := uint64(1) << (dataWidth - 1)
	if value&signBit != 0 {
		extend := MaskForWidth(s.Pad.Width) << dataWidth
		return (value | extend) & MaskForWidth(total)
	}
	return value & MaskForWidth(total)
}

// WriteBits splices value into container, validating literal segments and
// pad bits, and returns the updated container.
func (s *Spec) WriteBits(container, value uint64) (uint64, error) {
	total := s.TotalWidth()
	if total < 64 {
		extra := value >> total
		if extra != 0 {
			signExtended := s.IsSigned() && total > 0 && (value>>(total-1))&1 == 1 &&
				extra == (^uint64(0)>>total)
			if !signExtended {
				return 0, fmt.Errorf("bitfield: value 0x%x exceeds declared width %d", value, total)
			}
		}
	}

	dataWidth := s.DataWidth()
	if s.Pad != nil {
		if err := s.validatePadBits(value, dataWidth); err != nil {
			return 0, err
		}
	}
	data := value & MaskForWidth(dataWidth)

	// Distribute data bits across segments from the last-declared (least
	// significant in the concatenation) to the first (most significant).
	var shift uint
	for i := len(s.Segments) - 1; i >= 0; i-- {
		seg := s.Segments[i]
		part := (data >> shift) & MaskForWidth(seg.Width)
		shift += seg.Width
		switch seg.Kind {
		case SegSlice:
			container &^= seg.Slice.Mask
			container |= (part << seg.Slice.Offset) & seg.Slice.Mask
		case SegLiteral:
			if part != seg.Literal&MaskForWidth(seg.Width) {
				return 0, fmt.Errorf("bitfield: literal mismatch: expected 0x%x got 0x%x", seg.Literal, part)
			}
		}
	}
	return container, nil
}

func (s *Spec) validatePadBits(value uint64, dataWidth uint) error {
	padWidth := s.Pad.Width
	if padWidth == 0 {
		return nil
	}
	padBits := (value >> dataWidth) & MaskForWidth(padWidth)
	switch s.Pad.Kind {
	case PadZero:
		if padBits != 0 {
			return fmt.Errorf("bitfield: zero-pad bits must be zero, got 0x%x", padBits)
		}
	case PadSign:
		if dataWidth == 0 {
			return nil
		}
		signBit := (value >> (dataWidth - 1)) & 1
		expected := uint64(0)
		if signBit == 1 {
			expected = MaskForWidth(padWidth)
		}
		if padBits != expected {
			return fmt.Errorf("bitfield: sign-pad bits do not match sign bit")
		}
	}
	return nil
}

// msbRangeToLSBOffset converts an MSB-numbered inclusive bit range
// (start-end, start <= end, bit 0 is the MSB of a containerBits-wide
// word) into an LSB offset/width pair.
func msbRangeToLSBOffset(start, end, containerBits uint) (offset, width uint) {
	width = end - start + 1
	offset = containerBits - 1 - end
	return offset, width
}

// FromSpecStr parses the textual bit-expression syntax `@(segment|segment|...)`
// (the leading `@(` and trailing `)` may already be stripped by the
// caller; both forms are accepted) into a Spec, given the width in bits
// of the container word the spec is defined over.
func FromSpecStr(containerBits uint, spec string) (*Spec, error) {
	text := strings.TrimSpace(spec)
	text = strings.TrimPrefix(text, "@(")
	text = strings.TrimSuffix(text, ")")
	parts := strings.Split(text, "|")
	b := NewBuilder()
	var padKind PadKind
	var padRequested bool
	for _, raw := range parts {
		tok := strings.TrimSpace(raw)
		if tok == "" {
			return nil, fmt.Errorf("bitfield: empty segment in spec %q", spec)
		}
		switch {
		case tok == "?0":
			padKind, padRequested = PadZero, true
		case tok == "?1":
			padKind, padRequested = PadSign, true
		case strings.HasPrefix(tok, "0b"):
			bits := tok[2:]
			if bits == "" {
				return nil, fmt.Errorf("bitfield: malformed literal token %q", tok)
			}
			v, err := strconv.ParseUint(bits, 2, 64)
			if err != nil {
				return nil, fmt.Errorf("bitfield: malformed literal token %q: %w", tok, err)
			}
			b.Literal(v, uint(len(bits)))
		case strings.Contains(tok, "-"):
			bounds := strings.SplitN(tok, "-", 2)
			if len(bounds) != 2 {
				return nil, fmt.Errorf("bitfield: malformed range token %q", tok)
			}
			start, err := strconv.ParseUint(strings.TrimSpace(bounds[0]), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("bitfield: malformed range start %q: %w", bounds[0], err)
			}
			end, err := strconv.ParseUint(strings.TrimSpace(bounds[1]), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("bitfield: malformed range end %q: %w", bounds[1], err)
			}
			if end < start {
				return nil, fmt.Errorf("bitfield: range end %d precedes start %d", end, start)
			}
			offset, width := msbRangeToLSBOffset(uint(start), uint(end), containerBits)
			b.Range(offset, width)
		default:
			bit, err := strconv.ParseUint(tok, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("bitfield: malformed bit token %q: %w", tok, err)
			}
			offset, width := msbRangeToLSBOffset(uint(bit), uint(bit), containerBits)
			b.Range(offset, width)
		}
	}
	if padRequested {
		var dataWidth uint
		for _, seg := range b.segments {
			dataWidth += seg.Width
		}
		if dataWidth > containerBits {
			return nil, fmt.Errorf("bitfield: data width %d exceeds container width %d in spec %q", dataWidth, containerBits, spec)
		}
		padWidth := containerBits - dataWidth
		if padKind == PadZero {
			b.ZeroPad(padWidth)
		} else {
			b.SignPad(padWidth)
		}
	}
	return b.Build()
}
