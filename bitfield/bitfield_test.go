package bitfield

import "testing"

func TestFromRangeCreatesSingleSegment(t *testing.T) {
	spec, err := FromRange(4, 8)
	if err != nil {
		t.Fatalf("FromRange: %v", err)
	}
	if spec.DataWidth() != 8 {
		t.Fatalf("expected data width 8, got %d", spec.DataWidth())
	}
	value, width := spec.ReadBits(0x0000_0ABC)
	if width != 8 {
		t.Fatalf("expected width 8, got %d", width)
	}
	if value != 0xAB {
		t.Fatalf("expected 0xAB, got 0x%x", value)
	}
}

func TestBuilderAccumulatesLiteralsAndPadding(t *testing.T) {
	spec, err := NewBuilder().Range(0, 3).Literal(0b01, 2).ZeroPad(2).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if spec.TotalWidth() != 7 {
		t.Fatalf("expected total width 7, got %d", spec.TotalWidth())
	}
	if spec.IsSigned() {
		t.Fatal("expected zero pad to leave spec unsigned")
	}
}

func TestSignPaddingMarksSpecSigned(t *testing.T) {
	spec, err := NewBuilder().Range(0, 4).SignPad(4).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !spec.IsSigned() {
		t.Fatal("expected sign pad to mark spec signed")
	}
}

func TestParsesSpecWithLiteralsAndPad(t *testing.T) {
	spec, err := FromSpecStr(32, "@(16-29|0b00)")
	if err != nil {
		t.Fatalf("FromSpecStr: %v", err)
	}
	if spec.DataWidth() != 16 {
		t.Fatalf("expected data width 16, got %d", spec.DataWidth())
	}
	// MSB range 16-29 over a 32-bit container is LSB offset 2, width 14;
	// setting those 14 bits to all ones plus the 0b00 literal.
	const container0 uint64 = 0x3FFF << 2
	value, _ := spec.ReadBits(container0)
	if value != (0x3FFF<<2)|0b00 {
		t.Fatalf("unexpected decoded value: 0x%x", value)
	}
	container, err := spec.WriteBits(0, value)
	if err != nil {
		t.Fatalf("WriteBits: %v", err)
	}
	if container != container0 {
		t.Fatalf("expected round-trip container 0x%x, got 0x%x", container0, container)
	}
}

func TestParsesSignPadSpec(t *testing.T) {
	spec, err := FromSpecStr(16, "@(8-15|?1)")
	if err != nil {
		t.Fatalf("FromSpecStr: %v", err)
	}
	if !spec.IsSigned() {
		t.Fatal("expected ?1 token to produce a signed spec")
	}
	if spec.TotalWidth() != 16 {
		t.Fatalf("expected pad to fill the 16-bit container, got total width %d", spec.TotalWidth())
	}
	// bit 8 (MSB of the low byte, i.e. the 8-15 MSB-numbered range) set ->
	// sign-extend through the pad.
	value, _ := spec.ReadBits(0x0080)
	if value != 0xFF80 {
		t.Fatalf("expected sign-extended 0xff80, got 0x%x", value)
	}
}

func TestParsesZeroPadSpecFillsContainer(t *testing.T) {
	spec, err := FromSpecStr(16, "@(12-15|?0)")
	if err != nil {
		t.Fatalf("FromSpecStr: %v", err)
	}
	if spec.TotalWidth() != 16 {
		t.Fatalf("expected pad to fill the 16-bit container, got total width %d", spec.TotalWidth())
	}
	// Only the low nibble is in range; bits outside it must not leak in.
	value, _ := spec.ReadBits(0xFFFF)
	if value != 0x000F {
		t.Fatalf("expected zero-extended 0x000f, got 0x%x", value)
	}
}

func TestReadAndWriteRoundTrip(t *testing.T) {
	spec, err := NewBuilder().Range(0, 3).Literal(0b01, 2).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	const bits uint64 = 0b111101
	value, width := spec.ReadBits(bits)
	if width != 5 {
		t.Fatalf("expected width 5, got %d", width)
	}
	if value != 0b10101 {
		t.Fatalf("expected 0b10101, got %05b", value)
	}
	container, err := spec.WriteBits(0, value)
	if err != nil {
		t.Fatalf("WriteBits: %v", err)
	}
	if container != bits&MaskForWidth(3) {
		t.Fatalf("expected %03b, got %03b", bits&MaskForWidth(3), container)
	}
}

func TestWriteRejectsLiteralMismatch(t *testing.T) {
	spec, err := NewBuilder().Range(0, 4).Literal(0b11, 2).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// Force the literal portion of the value to disagree with the fixed bits.
	badValue := uint64(0b01_0000)
	if _, err := spec.WriteBits(0, badValue); err == nil {
		t.Fatal("expected literal mismatch error")
	}
}

func TestWriteToZeroPadRejectsNonZeroPadBits(t *testing.T) {
	spec, err := NewBuilder().Range(0, 4).ZeroPad(4).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := spec.WriteBits(0, 0xF0); err == nil {
		t.Fatal("expected zero-pad mismatch error")
	}
}

func TestRoundTripRestoresMaskedBitsForAnyWidthUpTo64(t *testing.T) {
	widths := []uint{1, 5, 16, 32, 63, 64}
	for _, w := range widths {
		spec, err := FromRange(0, w)
		if err != nil {
			t.Fatalf("FromRange(%d): %v", w, err)
		}
		container := ^uint64(0)
		value, _ := spec.ReadBits(container)
		restored, err := spec.WriteBits(container, value)
		if err != nil {
			t.Fatalf("WriteBits width %d: %v", w, err)
		}
		if restored&spec.Segments[0].Slice.Mask != container&spec.Segments[0].Slice.Mask {
			t.Fatalf("round trip failed for width %d", w)
		}
	}
}
