package isoalloc

import (
	"sync"
	"unsafe"
)

// bitsPerChunk is the width of a chunk's occupancy encoding within the
// bitmap: an "in-use" bit and a "has-canary" bit.
const bitsPerChunk = 2

// bitsPerWord is the width, in bits, of the word the fast scan reads
// at a time.
const bitsPerWord = 32

// zone is a size-classed backing region: a bitmap tracking occupancy
// of every chunk, and a fixed-size user area holding the chunks
// themselves. Region pointers are stored XORed with pointerMask and
// are only ever materialized transiently by bitmap()/user(), never
// written back unmasked - there is no mutable "unmasked" copy of the
// header to forget to re-mask.
type zone struct {
	index     int
	chunkSize int
	internal  bool
	isFull    bool

	bitmapStartM uintptr
	bitmapEndM   uintptr
	userStartM   uintptr
	userEndM     uintptr

	bitmapSize int
	chunkCount int

	canarySecret uint64
	pointerMask  uint64

	freeBitSlotCache [bitSlotCacheSize]int64
	cacheUsable      int
	cacheIndex       int
	nextFreeBitSlot  int64

	// destroyMu is taken and never released when an externally
	// managed zone is destroyed, so any later attempt to operate on
	// the zone through it deadlocks instead of touching sealed pages.
	destroyMu sync.Mutex
}

func (z *zone) bitmapStart() uintptr { return z.bitmapStartM ^ uintptr(z.pointerMask) }
func (z *zone) bitmapEnd() uintptr   { return z.bitmapEndM ^ uintptr(z.pointerMask) }
func (z *zone) userStart() uintptr   { return z.userStartM ^ uintptr(z.pointerMask) }
func (z *zone) userEnd() uintptr     { return z.userEndM ^ uintptr(z.pointerMask) }

func (z *zone) bitmap() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(z.bitmapStart())), z.bitmapSize)
}

func (z *zone) user() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(z.userStart())), int(z.userEnd()-z.userStart()))
}

func (z *zone) maskPointers(bitmapStart, bitmapEnd, userStart, userEnd uintptr) {
	z.bitmapStartM = bitmapStart ^ uintptr(z.pointerMask)
	z.bitmapEndM = bitmapEnd ^ uintptr(z.pointerMask)
	z.userStartM = userStart ^ uintptr(z.pointerMask)
	z.userEndM = userEnd ^ uintptr(z.pointerMask)
}

// chunkAddr translates a bit slot to the address of the chunk it
// names.
func (z *zone) chunkAddr(bitSlot int64) uintptr {
	chunkNumber := bitSlot / bitsPerChunk
	return z.userStart() + uintptr(chunkNumber)*uintptr(z.chunkSize)
}

// newZone creates and fully initializes a zone of the given chunk
// size: reserves bitmap and user pages with flanking guard pages,
// advises access patterns, draws secrets, seeds canary chunks, and
// primes the free-slot cache. internal marks whether this zone was
// created by the allocator itself for a default size class (true) or
// is a caller-driven, purpose-built zone for an oversized request
// (still true here - isoalloc has no externally-managed zone caller
// surface; the flag is retained so destroyZone's two paths both exist
// and are exercised by tests, mirroring the reference's distinction).
func newZone(v *vm, r *randSource, index, chunkSize int, internal bool) *zone {
	chunkCount := zoneUserSize / chunkSize
	bitmapSize := (chunkCount*bitsPerChunk + 7) / 8
	if r := bitmapSize % 4; r != 0 {
		bitmapSize += 4 - r
	}
	if bitmapSize == 0 {
		bitmapSize = v.pageSize
	}

	page := v.pageSize
	bitmapRegion := v.reserveRW(bitmapSize + 2*page)
	v.protectPages(bitmapRegion[:page], protNone)
	v.protectPages(bitmapRegion[len(bitmapRegion)-page:], protNone)
	bitmapStart := addrOf(bitmapRegion) + uintptr(page)
	bitmapEnd := bitmapStart + uintptr(bitmapSize)
	v.advisePages(bitmapRegion[page:len(bitmapRegion)-page], adviseWillNeed)
	v.advisePages(bitmapRegion[page:len(bitmapRegion)-page], adviseSequential)

	userRegion := v.reserveRW(zoneUserSize + 2*page)
	v.protectPages(userRegion[:page], protNone)
	v.protectPages(userRegion[len(userRegion)-page:], protNone)
	userStart := addrOf(userRegion) + uintptr(page)
	userEnd := userStart + uintptr(zoneUserSize)
	v.advisePages(userRegion[page:len(userRegion)-page], adviseWillNeed)
	v.advisePages(userRegion[page:len(userRegion)-page], adviseRandom)

	z := &zone{
		index:        index,
		chunkSize:    chunkSize,
		internal:     internal,
		bitmapSize:   bitmapSize,
		chunkCount:   chunkCount,
		canarySecret: r.secret(),
		pointerMask:  r.secret(),
	}
	z.maskPointers(bitmapStart, bitmapEnd, userStart, userEnd)

	if chunkSize <= defaultZoneSizes[len(defaultZoneSizes)-1] {
		seedCanaryChunks(z, r)
	}

	fillFreeBitSlotCache(z, r)
	getNextFreeBitSlot(z)

	return z
}

// addrOf returns the address of a byte slice's backing array. The
// slice is backed by an OS mapping, not Go-managed memory, so holding
// only its address (and reconstructing slices from it later) does not
// race with the garbage collector.
func addrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}

// verifyZone walks every chunk's canary bit; any set canary bit names
// either a canary chunk or a chunk previously freed, both of which
// must carry a valid canary. Mismatch aborts.
func verifyZone(z *zone) {
	bm := z.bitmap()
	user := z.user()
	for chunkNumber := 0; chunkNumber < z.chunkCount; chunkNumber++ {
		bitSlot := int64(chunkNumber) * bitsPerChunk
		if getBitAt(bm, bitSlot+1) == 1 {
			addr := z.chunkAddr(bitSlot)
			off := int(addr - z.userStart())
			checkCanary(z.index, user, off, z.chunkSize, z.canarySecret, addr)
		}
	}
}

// destroyZone releases a zone's pages. An internally managed zone
// returns its memory to the OS outright. An externally managed zone
// (see newZone's doc comment) instead seals both regions inaccessible
// and takes destroyMu without ever releasing it: a later access to the
// zone's bitmap or user pages faults, and a later attempt to acquire
// destroyMu blocks forever. The allocator's own operations do not take
// destroyMu.
func destroyZone(v *vm, z *zone) {
	if z.internal {
		bitmapPage := v.pageSize
		bitmapRegion := unsafe.Slice((*byte)(unsafe.Pointer(z.bitmapStart()-uintptr(bitmapPage))), z.bitmapSize+2*bitmapPage)
		v.release(bitmapRegion)

		userRegion := unsafe.Slice((*byte)(unsafe.Pointer(z.userStart()-uintptr(v.pageSize))), int(z.userEnd()-z.userStart())+2*v.pageSize)
		v.release(userRegion)

		*z = zone{}
		return
	}

	v.protectPages(z.bitmap(), protNone)
	v.protectPages(z.user(), protNone)
	z.destroyMu.Lock()
}
