// Package cursor implements a navigable position over a soft TLB: a
// stable address that can be moved forward, backward, or pinned against
// a reference point, with every move validated by a TLB lookup before
// it commits.
package cursor

import (
	"github.com/jmercer/isaforge/tlb"
)

// Cursor tracks an absolute address plus a pinned reference point,
// reading and writing through a TLB. Movement operations validate the
// target with a TLB lookup before committing; a failed lookup leaves
// the cursor at its prior position.
type Cursor struct {
	tlb     *tlb.TLB
	refZero uint64
	address uint64
}

// New creates a cursor over t, starting (and pinning) at start.
func New(t *tlb.TLB, start uint64) *Cursor {
	return &Cursor{tlb: t, refZero: start, address: start}
}

// Goto moves the cursor to an absolute address, validating it first.
func (c *Cursor) Goto(address uint64) error {
	if address == c.address {
		return nil
	}
	if err := c.tlb.Validate(address); err != nil {
		return err
	}
	c.address = address
	return nil
}

// SetRef moves to address and pins it as the new reference point.
func (c *Cursor) SetRef(address uint64) error {
	if err := c.Goto(address); err != nil {
		return err
	}
	c.refZero = c.address
	return nil
}

// GotoRef resets the cursor to the pinned reference point. The
// reference was already validated when pinned, so no lookup repeats.
func (c *Cursor) GotoRef() {
	c.address = c.refZero
}

// ForwardFromRef moves to refZero+delta.
func (c *Cursor) ForwardFromRef(delta uint64) error {
	return c.Goto(c.refZero + delta)
}

// BackwardFromRef moves to refZero-delta, saturating at zero.
func (c *Cursor) BackwardFromRef(delta uint64) error {
	return c.Goto(saturatingSub(c.refZero, delta))
}

// Forward moves the cursor delta bytes ahead of its current position.
func (c *Cursor) Forward(delta uint64) error {
	return c.Goto(c.address + delta)
}

// Backward moves the cursor delta bytes behind its current position,
// saturating at zero.
func (c *Cursor) Backward(delta uint64) error {
	return c.Goto(saturatingSub(c.address, delta))
}

// Ref returns the pinned reference point.
func (c *Cursor) Ref() uint64 { return c.refZero }

// Position returns the current absolute address.
func (c *Cursor) Position() uint64 { return c.address }

// DistFromRef returns the signed distance of the current position from
// the pinned reference point.
func (c *Cursor) DistFromRef() int64 {
	return int64(c.address) - int64(c.refZero)
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// ReadU8 reads one byte at the current position and advances by 1.
func (c *Cursor) ReadU8() (uint8, error) { return readAdvance[uint8](c, 1) }

// ReadU16 reads a 16-bit word at the current position and advances by 2.
func (c *Cursor) ReadU16() (uint16, error) { return readAdvance[uint16](c, 2) }

// ReadU32 reads a 32-bit word at the current position and advances by 4.
func (c *Cursor) ReadU32() (uint32, error) { return readAdvance[uint32](c, 4) }

// ReadU64 reads a 64-bit word at the current position and advances by 8.
func (c *Cursor) ReadU64() (uint64, error) { return readAdvance[uint64](c, 8) }

// WriteU8 writes one byte at the current position and advances by 1.
func (c *Cursor) WriteU8(v uint8) error { return writeAdvance(c, v, 1) }

// WriteU16 writes a 16-bit word at the current position and advances by 2.
func (c *Cursor) WriteU16(v uint16) error { return writeAdvance(c, v, 2) }

// WriteU32 writes a 32-bit word at the current position and advances by 4.
func (c *Cursor) WriteU32(v uint32) error { return writeAdvance(c, v, 4) }

// WriteU64 writes a 64-bit word at the current position and advances by 8.
func (c *Cursor) WriteU64(v uint64) error { return writeAdvance(c, v, 8) }

func readAdvance[T tlb.Word](c *Cursor, width uint64) (T, error) {
	value, err := tlb.Read[T](c.tlb, c.address)
	if err != nil {
		var zero T
		return zero, err
	}
	c.address += width
	return value, nil
}

func writeAdvance[T tlb.Word](c *Cursor, value T, width uint64) error {
	if err := tlb.Write(c.tlb, c.address, value); err != nil {
		return err
	}
	c.address += width
	return nil
}

// ReadRAM returns a read-only view of size bytes at the current
// position and advances by size. It fails if the mapping is not
// RAM-backed.
func (c *Cursor) ReadRAM(size int) ([]byte, error) {
	data, err := c.tlb.ReadRAM(c.address, size)
	if err != nil {
		return nil, err
	}
	c.address += uint64(size)
	return data, nil
}

// WriteRAM writes data at the current position and advances by its
// length. It fails if the mapping is not RAM-backed.
func (c *Cursor) WriteRAM(data []byte) error {
	if err := c.tlb.WriteRAM(c.address, data); err != nil {
		return err
	}
	c.address += uint64(len(data))
	return nil
}
