// Package tlb implements a direct-mapped soft TLB in front of the soft
// MMU: a miss fills the slot from the MMU, a RAM access then takes a
// zero-copy slice fast path, and an MMIO access goes through the backing
// device's Read/Write.
package tlb

import (
	"encoding/binary"
	"fmt"

	"github.com/jmercer/isaforge/bus"
	"github.com/jmercer/isaforge/mmu"
)

const (
	sets        = 256
	pageMask    = ^uint64(0xFFF)
	maxWordSize = 16
)

func setIndex(vaddr uint64) uint64 { return (vaddr >> 12) & 0xFF }

type entry struct {
	vpn    uint64
	addend int64
	flags  mmu.Flags
	device bus.Device
	valid  bool
}

// TLB caches MMU translations in a direct-mapped table and serves typed
// reads/writes against them.
type TLB struct {
	slots   [sets]entry
	mmu     *mmu.MMU
	context bus.AccessContext
}

// New constructs a TLB backed by m, performing ordinary (non-debug)
// accesses unless overridden per call via Peek.
func New(m *mmu.MMU, context bus.AccessContext) *TLB {
	return &TLB{mmu: m, context: context}
}

// Validate performs a TLB lookup for vaddr without reading or writing
// anything, letting a cursor confirm a target address maps to something
// before committing a move.
func (t *TLB) Validate(vaddr uint64) error {
	_, err := t.lookup(vaddr)
	return err
}

func (t *TLB) lookup(vaddr uint64) (entry, error) {
	idx := setIndex(vaddr)
	slot := t.slots[idx]
	tag := vaddr & pageMask
	if slot.valid && slot.vpn == tag {
		return slot, nil
	}

	tr, err := t.mmu.Translate(vaddr)
	if err != nil {
		return entry{}, err
	}
	if !tr.Entry.Flags.Has(mmu.FlagValid) {
		return entry{}, fmt.Errorf("tlb: translation for 0x%x is not valid", vaddr)
	}

	filled := entry{
		vpn:    tag,
		addend: tr.Addend,
		flags:  tr.Entry.Flags,
		device: tr.Entry.Device,
		valid:  true,
	}
	t.slots[idx] = filled
	return filled, nil
}

// ReadRAM returns a read-only view of size bytes at vaddr. It fails if
// the resolved mapping is not RAM-backed.
func (t *TLB) ReadRAM(vaddr uint64, size int) ([]byte, error) {
	e, err := t.lookup(vaddr)
	if err != nil {
		return nil, err
	}
	if !e.flags.Has(mmu.FlagRAM) {
		return nil, fmt.Errorf("tlb: address 0x%x is not RAM-backed", vaddr)
	}
	ramDevice, ok := e.device.(bus.RAMBacked)
	if !ok {
		return nil, fmt.Errorf("tlb: device %q does not expose a byte slice", e.device.Name())
	}
	offset := uint64(int64(vaddr) + e.addend)
	data := ramDevice.Bytes()
	if offset+uint64(size) > uint64(len(data)) {
		return nil, fmt.Errorf("tlb: read of %d bytes at 0x%x exceeds device bounds", size, vaddr)
	}
	return data[offset : offset+uint64(size)], nil
}

// WriteRAM writes data into the RAM-backed mapping at vaddr.
func (t *TLB) WriteRAM(vaddr uint64, data []byte) error {
	e, err := t.lookup(vaddr)
	if err != nil {
		return err
	}
	if !e.flags.Has(mmu.FlagRAM) {
		return fmt.Errorf("tlb: address 0x%x is not RAM-backed", vaddr)
	}
	ramDevice, ok := e.device.(bus.RAMBacked)
	if !ok {
		return fmt.Errorf("tlb: device %q does not expose a byte slice", e.device.Name())
	}
	offset := uint64(int64(vaddr) + e.addend)
	backing := ramDevice.Bytes()
	if offset+uint64(len(data)) > uint64(len(backing)) {
		return fmt.Errorf("tlb: write of %d bytes at 0x%x exceeds device bounds", len(data), vaddr)
	}
	copy(backing[offset:], data)
	return nil
}

// Word is any unsigned integer width the TLB can marshal across an
// endian boundary.
type Word interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Peek reads a value at vaddr using a debug access context, regardless of
// the TLB's configured context, so side-effecting devices can be
// inspected without disturbing state.
func Peek[T Word](t *TLB, vaddr uint64) (T, error) {
	return readTyped[T](t, vaddr, bus.ContextDebug)
}

// Read reads a value at vaddr using the TLB's configured access context.
func Read[T Word](t *TLB, vaddr uint64) (T, error) {
	return readTyped[T](t, vaddr, t.context)
}

// Write writes value at vaddr using the TLB's configured access context.
func Write[T Word](t *TLB, vaddr uint64, value T) error {
	e, err := t.lookup(vaddr)
	if err != nil {
		return err
	}
	size := wordSize(value)

	if e.flags.Has(mmu.FlagRAM) {
		ramDevice, ok := e.device.(bus.RAMBacked)
		if !ok {
			return fmt.Errorf("tlb: device %q does not expose a byte slice", e.device.Name())
		}
		offset := uint64(int64(vaddr) + e.addend)
		backing := ramDevice.Bytes()
		if offset+uint64(size) > uint64(len(backing)) {
			return fmt.Errorf("tlb: write at 0x%x exceeds device bounds", vaddr)
		}
		putBytes(backing[offset:offset+uint64(size)], value, e.flags.Has(mmu.FlagBigEndian))
		return nil
	}

	offset := uint64(int64(vaddr) + e.addend)
	var buf [maxWordSize]byte
	putBytes(buf[:size], value, e.flags.Has(mmu.FlagBigEndian))
	return e.device.Write(offset, buf[:size], t.context)
}

func readTyped[T Word](t *TLB, vaddr uint64, ctx bus.AccessContext) (T, error) {
	e, err := t.lookup(vaddr)
	if err != nil {
		return 0, err
	}
	var zero T
	size := wordSize(zero)

	if e.flags.Has(mmu.FlagRAM) {
		ramDevice, ok := e.device.(bus.RAMBacked)
		if !ok {
			return 0, fmt.Errorf("tlb: device %q does not expose a byte slice", e.device.Name())
		}
		offset := uint64(int64(vaddr) + e.addend)
		backing := ramDevice.Bytes()
		if offset+uint64(size) > uint64(len(backing)) {
			return 0, fmt.Errorf("tlb: read at 0x%x exceeds device bounds", vaddr)
		}
		return getBytes[T](backing[offset:offset+uint64(size)], e.flags.Has(mmu.FlagBigEndian)), nil
	}

	offset := uint64(int64(vaddr) + e.addend)
	var buf [maxWordSize]byte
	if err := e.device.Read(offset, buf[:size], ctx); err != nil {
		return 0, err
	}
	return getBytes[T](buf[:size], e.flags.Has(mmu.FlagBigEndian)), nil
}

func wordSize(v interface{}) int {
	switch v.(type) {
	case uint8:
		return 1
	case uint16:
		return 2
	case uint32:
		return 4
	case uint64:
		return 8
	default:
		return 0
	}
}

func putBytes[T Word](dst []byte, value T, bigEndian bool) {
	switch v := any(value).(type) {
	case uint8:
		dst[0] = v
	case uint16:
		if bigEndian {
			binary.BigEndian.PutUint16(dst, v)
		} else {
			binary.LittleEndian.PutUint16(dst, v)
		}
	case uint32:
		if bigEndian {
			binary.BigEndian.PutUint32(dst, v)
		} else {
			binary.LittleEndian.PutUint32(dst, v)
		}
	case uint64:
		if bigEndian {
			binary.BigEndian.PutUint64(dst, v)
		} else {
			binary.LittleEndian.PutUint64(dst, v)
		}
	}
}

func getBytes[T Word](src []byte, bigEndian bool) T {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return any(src[0]).(T)
	case uint16:
		if bigEndian {
			return any(binary.BigEndian.Uint16(src)).(T)
		}
		return any(binary.LittleEndian.Uint16(src)).(T)
	case uint32:
		if bigEndian {
			return any(binary.BigEndian.Uint32(src)).(T)
		}
		return any(binary.LittleEndian.Uint32(src)).(T)
	case uint64:
		if bigEndian {
			return any(binary.BigEndian.Uint64(src)).(T)
		}
		return any(binary.LittleEndian.Uint64(src)).(T)
	}
	return zero
}
