package core

import (
	"fmt"

	"github.com/jmercer/isaforge/bitfield"
	"github.com/jmercer/isaforge/bus"
	"github.com/jmercer/isaforge/cursor"
	"github.com/jmercer/isaforge/mmu"
	"github.com/jmercer/isaforge/tlb"
)

// RegisterLayout locates a register's bits within the flat register-file
// buffer: byte offset of the containing word, LSB bit offset within that
// word, and bit width.
type RegisterLayout struct {
	ByteOffset uint64
	BitOffset  uint
	BitWidth   uint
}

// State holds a machine instance's register file: a RAM device of the
// required byte length, mapped identically onto a private local bus, MMU,
// and TLB, with a cursor pinned at offset 0. Register accesses position
// the cursor at a register's byte offset and delegate to bit-slice
// read/write through the TLB, the same path any other typed memory
// access in this system takes.
type State struct {
	length  int
	ram     *bus.RAM
	cursor  *cursor.Cursor
	layouts map[string]RegisterLayout
}

const pageSize = 0x1000

func roundUpPage(n int) uint64 {
	size := uint64(n)
	if size == 0 {
		size = 1
	}
	if rem := size % pageSize; rem != 0 {
		size += pageSize - rem
	}
	return size
}

// NewState allocates a register file of byteLen bytes with the given
// register layouts.
func NewState(byteLen int, bigEndian bool, layouts map[string]RegisterLayout) *State {
	endian := bus.LittleEndian
	if bigEndian {
		endian = bus.BigEndian
	}

	mapped := roundUpPage(byteLen)
	ram := bus.NewRAM("registers", mapped, endian)

	b := bus.New(12)
	if err := b.RegisterDevice(ram, 0); err != nil {
		panic(fmt.Sprintf("core: registering register-file device: %v", err))
	}
	m := mmu.New(b)
	if err := m.MapRegion(0, 0, mapped, mmu.FlagRead|mmu.FlagWrite); err != nil {
		panic(fmt.Sprintf("core: mapping register file: %v", err))
	}
	t := tlb.New(m, bus.ContextNormal)

	return &State{
		length:  byteLen,
		ram:     ram,
		cursor:  cursor.New(t, 0),
		layouts: layouts,
	}
}

// Layout returns the named register's layout.
func (s *State) Layout(name string) (RegisterLayout, bool) {
	l, ok := s.layouts[name]
	return l, ok
}

// ReadRegister returns the current value of the named register.
func (s *State) ReadRegister(name string) (uint64, error) {
	layout, ok := s.layouts[name]
	if !ok {
		return 0, fmt.Errorf("core: unknown register %q", name)
	}
	return s.ReadBitsAt(layout.ByteOffset, layout.BitOffset, layout.BitWidth)
}

// WriteRegister stores value into the named register.
func (s *State) WriteRegister(name string, value uint64) error {
	layout, ok := s.layouts[name]
	if !ok {
		return fmt.Errorf("core: unknown register %q", name)
	}
	return s.WriteBitsAt(layout.ByteOffset, layout.BitOffset, layout.BitWidth, value)
}

// ReadBitsAt reads bitWidth bits starting at bitOffset within the 8-byte
// window beginning at byteOffset.
func (s *State) ReadBitsAt(byteOffset uint64, bitOffset, bitWidth uint) (uint64, error) {
	container, err := s.containerWindow(byteOffset)
	if err != nil {
		return 0, err
	}
	spec, err := bitfield.FromRange(bitOffset, bitWidth)
	if err != nil {
		return 0, err
	}
	value, _ := spec.ReadBits(container)
	return value, nil
}

// WriteBitsAt splices value into bitWidth bits starting at bitOffset
// within the 8-byte window beginning at byteOffset.
func (s *State) WriteBitsAt(byteOffset uint64, bitOffset, bitWidth uint, value uint64) error {
	container, err := s.containerWindow(byteOffset)
	if err != nil {
		return err
	}
	spec, err := bitfield.FromRange(bitOffset, bitWidth)
	if err != nil {
		return err
	}
	updated, err := spec.WriteBits(container, value)
	if err != nil {
		return err
	}
	return s.putContainerWindow(byteOffset, updated)
}

// Zeroize clears the entire register file.
func (s *State) Zeroize() {
	for i := range s.ram.Bytes() {
		s.ram.Bytes()[i] = 0
	}
}

// Bytes exposes the raw register-file storage.
func (s *State) Bytes() []byte { return s.ram.Bytes()[:s.length] }

func (s *State) containerWindow(byteOffset uint64) (uint64, error) {
	if byteOffset+8 > uint64(s.length) {
		return 0, fmt.Errorf("core: register window at byte offset %d exceeds register file of %d bytes", byteOffset, s.length)
	}
	if err := s.cursor.Goto(byteOffset); err != nil {
		return 0, fmt.Errorf("core: positioning at byte offset %d: %w", byteOffset, err)
	}
	return s.cursor.ReadU64()
}

func (s *State) putContainerWindow(byteOffset uint64, value uint64) error {
	if byteOffset+8 > uint64(s.length) {
		return fmt.Errorf("core: register window at byte offset %d exceeds register file of %d bytes", byteOffset, s.length)
	}
	if err := s.cursor.Goto(byteOffset); err != nil {
		return fmt.Errorf("core: positioning at byte offset %d: %w", byteOffset, err)
	}
	return s.cursor.WriteU64(value)
}

// LayoutFromBitOffset derives a RegisterLayout from a global bit offset
// and width, splitting it into an 8-byte-aligned byte offset plus a
// local bit offset (0-63). The register fits inside that one 8-byte
// container window only when the local bit offset plus bitWidth is at
// most 64; this function does not check that.
func LayoutFromBitOffset(globalBitOffset uint64, bitWidth uint) RegisterLayout {
	wordBits := uint64(64)
	byteOffset := (globalBitOffset / wordBits) * 8
	localBit := uint(globalBitOffset % wordBits)
	return RegisterLayout{ByteOffset: byteOffset, BitOffset: localBit, BitWidth: bitWidth}
}
