// Package bus implements the priority-ordered device range map that the
// soft MMU resolves virtual mappings against. A bus is a bucketed list of
// address ranges, each bound to a device at a given priority; overlapping
// ranges at the same priority are rejected, but a higher-priority range
// (for example a redirect) may overlay a lower-priority one without
// disturbing it.
package bus

import (
	"fmt"
	"sort"
	"sync"
)

// AccessContext distinguishes a debugger peek from a live instruction
// fetch or data access, letting a device refuse side effects (FIFO pops,
// interrupt-clear-on-read) during inspection.
type AccessContext int

const (
	ContextNormal AccessContext = iota
	ContextDebug
)

// Endianness is a device's native byte order for multi-byte accesses.
type Endianness int

const (
	LittleEndian Endianness = iota
	BigEndian
)

// Device is anything that can be mapped onto a bus: RAM, MMIO
// peripherals, or ROM. Read/Write operate in device-local byte offsets,
// not bus addresses.
type Device interface {
	Name() string
	Size() uint64
	Endianness() Endianness
	Read(offset uint64, p []byte, ctx AccessContext) error
	Write(offset uint64, p []byte, ctx AccessContext) error
}

// RAMBacked is implemented by devices that expose their storage as a
// contiguous byte slice, letting the soft MMU/TLB take the zero-copy fast
// path instead of going through Read/Write.
type RAMBacked interface {
	Bytes() []byte
}

const (
	devicePriority   = 0
	redirectPriority = 10
)

// ResolvedRange is the result of resolving a bus address: the device it
// falls within, the containing range's bus-address bounds, and the
// device-local offset of that range's start.
type ResolvedRange struct {
	Device       Device
	BusStart     uint64
	BusEnd       uint64
	DeviceOffset uint64
	Priority     int
	RangeID      uint64
}

type busRange struct {
	id           uint64
	busStart     uint64
	busEnd       uint64
	device       Device
	deviceOffset uint64
	priority     int
	redirect     bool
}

// Bus is a priority-bucketed range map from bus address to device.
// Resolve takes the read lock so concurrent address lookups (instruction
// fetch, data access, debugger peeks) never block each other; mapping a
// device or (un)registering a redirect takes the write lock.
type Bus struct {
	mu         sync.RWMutex
	bucketBits uint

	nextRangeID uint64
	devices     map[string]bool
	buckets     map[uint64][]*busRange
	rangeIndex  map[uint64][]uint64 // range id -> bucket indices it touches
	redirects   map[[2]uint64]uint64
}

// New constructs a bus that groups ranges into buckets of 2^bucketBits
// addresses, bounding the number of ranges a resolve scan must walk.
func New(bucketBits uint) *Bus {
	return &Bus{
		bucketBits: bucketBits,
		devices:    map[string]bool{},
		buckets:    map[uint64][]*busRange{},
		rangeIndex: map[uint64][]uint64{},
		redirects:  map[[2]uint64]uint64{},
	}
}

func (b *Bus) bucketIndex(address uint64) uint64 {
	return address >> b.bucketBits
}

// RegisterDevice maps device onto the bus starting at baseAddress, at the
// base device priority. The device's own Size determines its span; a
// device must start at offset 0 within its own span and be non-empty.
func (b *Bus) RegisterDevice(device Device, baseAddress uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if device.Size() == 0 {
		return fmt.Errorf("bus: device %q has zero size", device.Name())
	}
	if b.devices[device.Name()] {
		return fmt.Errorf("bus: device %q already registered", device.Name())
	}

	busEnd, overflow := addOverflow(baseAddress, device.Size())
	if overflow {
		return fmt.Errorf("bus: device %q range overflows address space", device.Name())
	}

	id, err := b.addRange(baseAddress, busEnd, device, 0, devicePriority, false)
	if err != nil {
		return err
	}
	_ = id
	b.devices[device.Name()] = true
	return nil
}

// Redirect aliases [sourceStart, sourceStart+size) to the device range
// already backing [targetStart, targetStart+size), without copying data.
// The aliased span must lie entirely within the device range resolved at
// targetStart.
func (b *Bus) Redirect(sourceStart, size, targetStart uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if size == 0 {
		return fmt.Errorf("bus: redirect size must be non-zero")
	}
	resolved, err := b.resolveLocked(targetStart)
	if err != nil {
		return fmt.Errorf("bus: redirect target: %w", err)
	}
	targetEnd, overflow := addOverflow(targetStart, size)
	if overflow || targetEnd > resolved.BusEnd {
		return fmt.Errorf("bus: redirect target [0x%x,0x%x) exceeds resolved device range", targetStart, targetEnd)
	}

	sourceEnd, overflow := addOverflow(sourceStart, size)
	if overflow {
		return fmt.Errorf("bus: redirect source range overflows address space")
	}

	deviceOffset := resolved.DeviceOffset + (targetStart - resolved.BusStart)
	id, err := b.addRange(sourceStart, sourceEnd, resolved.Device, deviceOffset, redirectPriority, true)
	if err != nil {
		return err
	}
	b.redirects[[2]uint64{sourceStart, size}] = id
	return nil
}

// RemoveRedirect undoes a previous Redirect registered at the same
// sourceStart/size.
func (b *Bus) RemoveRedirect(sourceStart, size uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.redirects[[2]uint64{sourceStart, size}]
	if !ok {
		return fmt.Errorf("bus: no redirect registered at 0x%x size 0x%x", sourceStart, size)
	}
	b.removeRange(id)
	delete(b.redirects, [2]uint64{sourceStart, size})
	return nil
}

func (b *Bus) addRange(busStart, busEnd uint64, device Device, deviceOffset uint64, priority int, redirect bool) (uint64, error) {
	id := b.nextRangeID
	b.nextRangeID++

	r := &busRange{
		id:           id,
		busStart:     busStart,
		busEnd:       busEnd,
		device:       device,
		deviceOffset: deviceOffset,
		priority:     priority,
		redirect:     redirect,
	}

	firstBucket := b.bucketIndex(busStart)
	lastBucket := b.bucketIndex(busEnd - 1)
	var touched []uint64
	for bucket := firstBucket; bucket <= lastBucket; bucket++ {
		if err := b.insertSegment(bucket, r); err != nil {
			for _, t := range touched {
				b.removeFromBucket(t, id)
			}
			return 0, err
		}
		touched = append(touched, bucket)
	}
	b.rangeIndex[id] = touched
	return id, nil
}

func (b *Bus) removeRange(id uint64) {
	for _, bucket := range b.rangeIndex[id] {
		b.removeFromBucket(bucket, id)
	}
	delete(b.rangeIndex, id)
}

func (b *Bus) removeFromBucket(bucket, id uint64) {
	ranges := b.buckets[bucket]
	for i, r := range ranges {
		if r.id == id {
			b.buckets[bucket] = append(ranges[:i:i], ranges[i+1:]...)
			return
		}
	}
}

// insertSegment rejects a same-priority overlap within bucket, otherwise
// inserts r keeping the bucket's ranges ordered by priority descending
// then start ascending.
func (b *Bus) insertSegment(bucket uint64, r *busRange) error {
	ranges := b.buckets[bucket]
	for _, existing := range ranges {
		if existing.priority == r.priority && rangesOverlap(existing, r) {
			return fmt.Errorf("bus: range [0x%x,0x%x) overlaps existing range [0x%x,0x%x) at priority %d",
				r.busStart, r.busEnd, existing.busStart, existing.busEnd, r.priority)
		}
	}

	pos := sort.Search(len(ranges), func(i int) bool {
		if ranges[i].priority != r.priority {
			return ranges[i].priority < r.priority
		}
		return ranges[i].busStart >= r.busStart
	})
	ranges = append(ranges, nil)
	copy(ranges[pos+1:], ranges[pos:])
	ranges[pos] = r
	b.buckets[bucket] = ranges
	return nil
}

func rangesOverlap(a, r *busRange) bool {
	return a.busStart < r.busEnd && r.busStart < a.busEnd
}

// Resolve finds the highest-priority range containing address.
func (b *Bus) Resolve(address uint64) (ResolvedRange, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.resolveLocked(address)
}

func (b *Bus) resolveLocked(address uint64) (ResolvedRange, error) {
	bucket := b.bucketIndex(address)
	for _, r := range b.buckets[bucket] {
		if address >= r.busStart && address < r.busEnd {
			return ResolvedRange{
				Device:       r.device,
				BusStart:     r.busStart,
				BusEnd:       r.busEnd,
				DeviceOffset: r.deviceOffset,
				Priority:     r.priority,
				RangeID:      r.id,
			}, nil
		}
	}
	return ResolvedRange{}, fmt.Errorf("bus: no mapping at address 0x%x", address)
}

// BytesToEnd returns the number of bytes remaining from address to the
// end of whichever range currently resolves there.
func (b *Bus) BytesToEnd(address uint64) (uint64, error) {
	r, err := b.Resolve(address)
	if err != nil {
		return 0, err
	}
	return r.BusEnd - address, nil
}

func addOverflow(a, b uint64) (uint64, bool) {
	sum := a + b
	return sum, sum < a
}
