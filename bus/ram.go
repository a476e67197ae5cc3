package bus

import "fmt"

// RAM is a flat byte-slice-backed device: the backing store for a
// register file, scratch memory, or any other software-managed span
// that needs no side effects on access.
type RAM struct {
	name   string
	data   []byte
	endian Endianness
}

// NewRAM allocates a zeroed RAM device of size bytes, read and written
// in the given byte order.
func NewRAM(name string, size uint64, endian Endianness) *RAM {
	return &RAM{name: name, data: make([]byte, size), endian: endian}
}

func (r *RAM) Name() string          { return r.name }
func (r *RAM) Size() uint64          { return uint64(len(r.data)) }
func (r *RAM) Endianness() Endianness { return r.endian }

// Bytes exposes the backing slice directly, letting the soft MMU/TLB
// take the zero-copy fast path instead of going through Read/Write.
func (r *RAM) Bytes() []byte { return r.data }

func (r *RAM) Read(offset uint64, p []byte, _ AccessContext) error {
	if offset+uint64(len(p)) > uint64(len(r.data)) {
		return fmt.Errorf("bus: read of %d bytes at offset %d exceeds device %q of size %d", len(p), offset, r.name, len(r.data))
	}
	copy(p, r.data[offset:])
	return nil
}

func (r *RAM) Write(offset uint64, p []byte, _ AccessContext) error {
	if offset+uint64(len(p)) > uint64(len(r.data)) {
		return fmt.Errorf("bus: write of %d bytes at offset %d exceeds device %q of size %d", len(p), offset, r.name, len(r.data))
	}
	copy(r.data[offset:], p)
	return nil
}
