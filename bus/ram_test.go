package bus

import "testing"

func TestRAMReadWriteRoundTrips(t *testing.T) {
	ram := NewRAM("ram", 16, LittleEndian)
	if err := ram.Write(4, []byte{1, 2, 3, 4}, ContextNormal); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := make([]byte, 4)
	if err := ram.Read(4, out, ContextNormal); err != nil {
		t.Fatalf("read: %v", err)
	}
	for i, b := range []byte{1, 2, 3, 4} {
		if out[i] != b {
			t.Fatalf("byte %d: expected %d, got %d", i, b, out[i])
		}
	}
}

func TestRAMRejectsOutOfBoundsAccess(t *testing.T) {
	ram := NewRAM("ram", 8, LittleEndian)
	if err := ram.Read(4, make([]byte, 8), ContextNormal); err == nil {
		t.Fatal("expected an out-of-bounds read to fail")
	}
	if err := ram.Write(4, make([]byte, 8), ContextNormal); err == nil {
		t.Fatal("expected an out-of-bounds write to fail")
	}
}

func TestRAMBytesExposesBackingSlice(t *testing.T) {
	ram := NewRAM("ram", 4, BigEndian)
	if len(ram.Bytes()) != 4 {
		t.Fatalf("expected 4-byte backing slice, got %d", len(ram.Bytes()))
	}
	if ram.Endianness() != BigEndian {
		t.Fatal("expected declared endianness to be preserved")
	}
}
