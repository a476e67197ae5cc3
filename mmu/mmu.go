// Package mmu implements the soft MMU: a table of virtual-to-physical
// region mappings layered on top of a bus. It resolves a virtual address
// down to the device backing it, plus the addend a caller applies to get
// a usable offset for that device.
package mmu

import (
	"fmt"
	"sort"

	"github.com/jmercer/isaforge/bus"
)

// Flags describes the access rights and storage kind of a mapped region.
type Flags uint32

const (
	FlagValid Flags = 1 << iota
	FlagRead
	FlagWrite
	FlagExec
	FlagRAM
	FlagBigEndian
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Entry is a single virtual region mapping.
type Entry struct {
	VAddr        uint64
	PAddr        uint64
	Size         uint64
	Flags        Flags
	DeviceOffset uint64
	Device       bus.Device
}

// Translation is the result of resolving a virtual address: the device
// backing it, the entry's flags, and the addend to add to the virtual
// address to obtain a usable device-local offset.
//
// The reference implementation this module is ported from computes the
// addend as a raw host pointer (host_ptr.wrapping_sub(vaddr)) so a RAM
// access becomes a single pointer dereference. Go has no legal
// equivalent of that arithmetic on a slice pointer, so here the addend is
// a signed byte offset: the device-local byte index is
// int64(vaddr) + addend, valid for both RAM (offset into its backing
// slice) and MMIO (offset passed to Device.Read/Write).
type Translation struct {
	Entry  Entry
	Addend int64
}

// MMU maps virtual address ranges onto physical ranges resolved through a
// bus, keeping the map ordered by virtual start address so translation
// can binary-search it.
type MMU struct {
	bus     *bus.Bus
	starts  []uint64
	entries map[uint64]Entry
}

// New constructs an MMU resolving physical addresses through b.
func New(b *bus.Bus) *MMU {
	return &MMU{bus: b, entries: map[uint64]Entry{}}
}

// MapRegion maps [vaddr, vaddr+size) to the physical range starting at
// paddr, which must resolve entirely within a single device range already
// registered on the bus. RAM/BIGENDIAN flags are derived from the backing
// device; callers supply only the access-right flags (READ/WRITE/EXEC).
func (m *MMU) MapRegion(vaddr, paddr, size uint64, flags Flags) error {
	if size == 0 {
		return fmt.Errorf("mmu: region size must be non-zero")
	}
	vend, overflow := addOverflow(vaddr, size)
	if overflow {
		return fmt.Errorf("mmu: virtual region overflows address space")
	}
	pend, overflow := addOverflow(paddr, size)
	if overflow {
		return fmt.Errorf("mmu: physical region overflows address space")
	}

	if m.overlaps(vaddr, vend) {
		return fmt.Errorf("mmu: virtual region [0x%x,0x%x) overlaps an existing mapping", vaddr, vend)
	}
	if err := validatePageAlignment(vaddr, vend); err != nil {
		return err
	}

	resolved, err := m.bus.Resolve(paddr)
	if err != nil {
		return fmt.Errorf("mmu: resolve physical base: %w", err)
	}
	if err := validatePhysicalSpan(paddr, pend, resolved); err != nil {
		return err
	}

	derived := flags | FlagValid
	if resolved.Device.Endianness() == bus.BigEndian {
		derived |= FlagBigEndian
	}
	if _, ok := resolved.Device.(bus.RAMBacked); ok {
		derived |= FlagRAM
	}

	deviceOffset := resolved.DeviceOffset + (paddr - resolved.BusStart)
	entry := Entry{
		VAddr:        vaddr,
		PAddr:        paddr,
		Size:         size,
		Flags:        derived,
		DeviceOffset: deviceOffset,
		Device:       resolved.Device,
	}
	m.entries[vaddr] = entry
	m.insertStart(vaddr)
	return nil
}

// UnmapRegion removes the mapping starting exactly at vaddr.
func (m *MMU) UnmapRegion(vaddr uint64) error {
	if _, ok := m.entries[vaddr]; !ok {
		return fmt.Errorf("mmu: no region mapped starting at 0x%x", vaddr)
	}
	delete(m.entries, vaddr)
	for i, s := range m.starts {
		if s == vaddr {
			m.starts = append(m.starts[:i], m.starts[i+1:]...)
			break
		}
	}
	return nil
}

// Translate resolves vaddr to the entry containing it and the addend to
// apply for a device-local access.
func (m *MMU) Translate(vaddr uint64) (Translation, error) {
	entry, ok := m.containingEntry(vaddr)
	if !ok {
		return Translation{}, fmt.Errorf("mmu: no mapping contains address 0x%x", vaddr)
	}

	deviceOffset := entry.DeviceOffset + (vaddr - entry.VAddr)
	addend := int64(deviceOffset) - int64(vaddr)
	return Translation{Entry: entry, Addend: addend}, nil
}

func (m *MMU) containingEntry(vaddr uint64) (Entry, bool) {
	idx := sort.Search(len(m.starts), func(i int) bool { return m.starts[i] > vaddr }) - 1
	if idx < 0 {
		return Entry{}, false
	}
	entry := m.entries[m.starts[idx]]
	if vaddr >= entry.VAddr+entry.Size {
		return Entry{}, false
	}
	return entry, true
}

func (m *MMU) overlaps(start, end uint64) bool {
	for _, existing := range m.entries {
		if existing.VAddr < end && start < existing.VAddr+existing.Size {
			return true
		}
	}
	return false
}

func (m *MMU) insertStart(vaddr uint64) {
	pos := sort.Search(len(m.starts), func(i int) bool { return m.starts[i] >= vaddr })
	m.starts = append(m.starts, 0)
	copy(m.starts[pos+1:], m.starts[pos:])
	m.starts[pos] = vaddr
}

const pageSize = 0x1000

// validatePageAlignment enforces that a region either spans whole pages
// (page-aligned start, page-multiple size) or fits strictly inside a
// single 4 KiB-aligned page, so a TLB fill for any address within it maps
// to exactly one set of flags.
func validatePageAlignment(start, end uint64) error {
	if start%pageSize == 0 && (end-start)%pageSize == 0 {
		return nil
	}
	if start/pageSize == (end-1)/pageSize {
		return nil
	}
	return fmt.Errorf("mmu: region [0x%x,0x%x) must be page-aligned or fit within a single 4KiB page", start, end)
}

func validatePhysicalSpan(start, end uint64, resolved bus.ResolvedRange) error {
	if start < resolved.BusStart || end > resolved.BusEnd {
		return fmt.Errorf("mmu: physical span [0x%x,0x%x) does not fit within resolved device range [0x%x,0x%x)",
			start, end, resolved.BusStart, resolved.BusEnd)
	}
	return nil
}

func addOverflow(a, b uint64) (uint64, bool) {
	sum := a + b
	return sum, sum < a
}
