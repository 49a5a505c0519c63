package isoalloc

import (
	"math"
	"unsafe"
)

// findZoneFit scans the zone table for the first usable zone whose
// chunk size fits size. Zones smaller than size, externally managed,
// or already marked full are skipped outright.
func (r *root) findZoneFit(size int) *zone {
	for i := 0; i < r.zonesUsed(); i++ {
		z := r.zoneAt(i)
		if z.chunkSize < size || !z.internal || z.isFull {
			continue
		}
		if isZoneUsable(z, size) {
			return z
		}
	}
	return nil
}

// isZoneUsable decides whether z can serve a request of size without
// wasting an unreasonable amount of memory, and if so primes its
// nextFreeBitSlot.
func isZoneUsable(z *zone, size int) bool {
	if z.nextFreeBitSlot != badSlot {
		return true
	}

	if z.chunkSize >= size*wastedMultiplier && size > oversizeFloor {
		return false
	}

	if z.cacheUsable == z.cacheIndex {
		fillFreeBitSlotCache(z, getRoot().rand)
	}

	if slot := getNextFreeBitSlot(z); slot != badSlot {
		return true
	}

	if slot := scanZoneFreeSlotFast(z); slot != badSlot {
		z.nextFreeBitSlot = slot
		return true
	}

	if slot := scanZoneFreeSlotSlow(z); slot != badSlot {
		z.nextFreeBitSlot = slot
		return true
	}

	z.isFull = true
	return false
}

// smallestFittingClass returns the smallest default size class that
// fits size, or 0 if size exceeds every default class.
func smallestFittingClass(size int) int {
	for _, class := range defaultZoneSizes {
		if size <= class {
			return class
		}
	}
	return 0
}

func (r *root) alloc(size int) unsafe.Pointer {
	if size == 0 {
		size = alignment
	}

	z := r.findZoneFit(size)
	if z == nil {
		class := smallestFittingClass(size)
		if class == 0 {
			class = roundToAlignment(size)
		}
		z = r.createZone(class, true)
		if z.nextFreeBitSlot == badSlot {
			abort("newly created zone %d yielded no free slot for size %d", z.index, size)
		}
	}

	bitSlot := z.nextFreeBitSlot
	addr := z.chunkAddr(bitSlot)

	if addr < z.userStart() || addr >= z.userEnd() {
		abort("zone %d: slot %d resolves to %#x outside user region [%#x, %#x)", z.index, bitSlot, addr, z.userStart(), z.userEnd())
	}

	bm := z.bitmap()
	if getBitAt(bm, bitSlot) != 0 {
		abort("zone %d: cannot return already allocated chunk at %#x, bit slot %d", z.index, addr, bitSlot)
	}

	if getBitAt(bm, bitSlot+1) == 1 {
		user := z.user()
		off := int(addr - z.userStart())
		checkCanary(z.index, user, off, z.chunkSize, z.canarySecret, addr)
		for i := 0; i < canarySize; i++ {
			user[off+i] = 0
		}
	}

	setBitAt(bm, bitSlot)
	clearBitAt(bm, bitSlot+1)
	z.nextFreeBitSlot = badSlot

	return unsafe.Pointer(addr)
}

// Alloc returns a pointer to a chunk of at least size bytes. Aborts
// if the process is out of address space or the zone table is full.
func Alloc(size int) unsafe.Pointer {
	r := getRoot()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alloc(size)
}

// Calloc returns a zeroed chunk sized to hold nmemb elements of size
// bytes each. Aborts if nmemb*size would overflow.
func Calloc(nmemb, size int) unsafe.Pointer {
	if size != 0 && nmemb > math.MaxInt/size {
		abort("calloc(%d, %d) overflows", nmemb, size)
	}
	total := nmemb * size

	r := getRoot()
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.alloc(total)
	b := unsafe.Slice((*byte)(p), total)
	for i := range b {
		b[i] = 0
	}
	return p
}

// findZoneOwning locates the zone whose user region contains addr, or
// nil if none does. Bounded at zonesUsed (the reference iterates one
// index past the end; this port fixes that per spec.md's open
// questions).
func (r *root) findZoneOwning(addr uintptr) *zone {
	for i := 0; i < r.zonesUsed(); i++ {
		z := r.zoneAt(i)
		if addr >= z.userStart() && addr < z.userEnd() {
			return z
		}
	}
	return nil
}

func (r *root) free(p unsafe.Pointer, permanent bool) {
	if p == nil {
		return
	}
	addr := uintptr(p)

	if addr%alignment != 0 {
		abort("chunk at %#x is not %d-byte aligned", addr, alignment)
	}

	z := r.findZoneOwning(addr)
	if z == nil {
		abort("cannot free %#x: not owned by any zone", addr)
	}

	chunkOffset := addr - z.userStart()
	if int(chunkOffset)%z.chunkSize != 0 {
		abort("chunk at %#x is not a multiple of zone %d's chunk size %d", addr, z.index, z.chunkSize)
	}

	chunkNumber := int64(chunkOffset) / int64(z.chunkSize)
	bitSlot := chunkNumber * bitsPerChunk

	bm := z.bitmap()
	if getBitAt(bm, bitSlot) == 0 {
		abort("double free of chunk %#x detected in zone %d, bit slot %d", addr, z.index, bitSlot)
	}

	setBitAt(bm, bitSlot+1)
	if !permanent {
		clearBitAt(bm, bitSlot)
	}

	user := z.user()
	off := int(chunkOffset)
	for i := 0; i < z.chunkSize; i++ {
		user[off+i] = poisonByte
	}
	writeCanary(user, off, z.chunkSize, z.canarySecret, addr)

	if addr+uintptr(z.chunkSize) < z.userEnd() {
		overBitSlot := (chunkNumber + 1) * bitsPerChunk
		if getBitAt(bm, overBitSlot+1) == 1 {
			overAddr := z.chunkAddr(overBitSlot)
			overOff := int(overAddr - z.userStart())
			checkCanary(z.index, user, overOff, z.chunkSize, z.canarySecret, overAddr)
		}
	}

	if addr-uintptr(z.chunkSize) >= z.userStart() && chunkNumber > 0 {
		underBitSlot := (chunkNumber - 1) * bitsPerChunk
		if getBitAt(bm, underBitSlot+1) == 1 {
			underAddr := z.chunkAddr(underBitSlot)
			underOff := int(underAddr - z.userStart())
			checkCanary(z.index, user, underOff, z.chunkSize, z.canarySecret, underAddr)
		}
	}

	insertFreeBitSlot(z, bitSlot)
	z.isFull = false
}

// Free returns a chunk to its zone for reuse.
func Free(p unsafe.Pointer) {
	r := getRoot()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.free(p, false)
}

// FreePermanent marks a chunk as a canary: it is never handed out
// again, but continues to be checked by VerifyAll.
func FreePermanent(p unsafe.Pointer) {
	r := getRoot()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.free(p, true)
}

// ChunkSize returns the size class of the chunk p belongs to.
func ChunkSize(p unsafe.Pointer) int {
	if p == nil {
		return 0
	}
	r := getRoot()
	r.mu.Lock()
	defer r.mu.Unlock()
	z := r.findZoneOwning(uintptr(p))
	if z == nil {
		abort("cannot compute chunk size of %#x: not owned by any zone", uintptr(p))
	}
	return z.chunkSize
}

// VerifyAll walks every zone's canaries. It aborts on the first
// corruption found and otherwise returns nothing.
func VerifyAll() {
	r := getRoot()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < r.zonesUsed(); i++ {
		verifyZone(r.zoneAt(i))
	}
}

// ProtectRoot seals the root's guarded registry page, so any stray
// write into root metadata faults instead of corrupting it.
func ProtectRoot() {
	getRoot().protectRoot()
}

// UnprotectRoot reopens the root's guarded registry page.
func UnprotectRoot() {
	getRoot().unprotectRoot()
}
