package isoalloc

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	mathrand "math/rand"
	"os"
	"sync"
	"time"
	"unsafe"
)

// randSource is the allocator's random source. Following this
// design's own guidance (spec.md's design notes on randomness): the
// canary secret and pointer mask - both attacker-relevant secrets -
// are drawn from a cryptographic source, while the free-slot cache's
// starting offset and canary-chunk placement - where predictability
// only costs a little bias, not a bypass - use a weak PRNG seeded
// from wall-clock time and pid, matching the reference's own seeding
// strategy.
type randSource struct {
	mu   sync.Mutex
	weak *mathrand.Rand
}

func newRandSource() *randSource {
	seed := time.Now().UnixNano() ^ int64(os.Getpid())
	return &randSource{weak: mathrand.New(mathrand.NewSource(seed))}
}

func (r *randSource) secret() uint64 {
	var b [8]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		abort("crypto/rand failed to seed a zone secret: %v", err)
	}
	return binary.LittleEndian.Uint64(b[:])
}

func (r *randSource) weakUint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.weak.Uint64()
}

// registryHeaderSize is the width, in bytes, of the used-count word at
// the front of the registry page.
const registryHeaderSize = 8

// root is the process-wide zone registry. Exactly one exists,
// constructed lazily on first use. It is guarded by a single mutex
// that every public operation holds for its entire duration.
//
// The used-count and the table of zone addresses - the registry's own
// mutable state - live inside registryStart, an mmap'd page flanked by
// two permanently inaccessible guard pages, the same technique
// zone.go uses for a zone's bitmap and user regions. A stray write
// that overruns adjacent allocator state and lands in either guard
// page faults immediately instead of silently corrupting the zone
// table. keepAlive exists solely so the garbage collector never
// reclaims a zone header while its address sits, as a bare uintptr,
// inside registryStart - memory the GC does not scan for pointers.
type root struct {
	mu sync.Mutex

	vm   *vm
	rand *randSource

	registryStart uintptr
	registrySize  int
	keepAlive     [maxZones]*zone

	pageSize    int
	handleMask  uint64
	region      []byte // full mapping: guard page, registry page, guard page
	initialized bool
}

// registry returns the accessible middle page of region holding the
// used-count and zone address table - the page ProtectRoot/
// UnprotectRoot toggle.
func (r *root) registry() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(r.registryStart)), r.registrySize)
}

// zonesUsedPtr addresses the used-count word at the front of the
// registry page.
func (r *root) zonesUsedPtr() *int64 {
	return (*int64)(unsafe.Pointer(r.registryStart))
}

// zoneSlotPtr addresses the i'th zone-table slot, which follows the
// used-count word.
func (r *root) zoneSlotPtr(i int) *uintptr {
	return (*uintptr)(unsafe.Pointer(r.registryStart + registryHeaderSize + uintptr(i)*unsafe.Sizeof(uintptr(0))))
}

func (r *root) zonesUsed() int {
	return int(*r.zonesUsedPtr())
}

func (r *root) setZonesUsed(n int) {
	*r.zonesUsedPtr() = int64(n)
}

// zoneAt returns the i'th registered zone, or nil if that slot has
// never been populated.
func (r *root) zoneAt(i int) *zone {
	addr := *r.zoneSlotPtr(i)
	if addr == 0 {
		return nil
	}
	return (*zone)(unsafe.Pointer(addr))
}

// setZoneAt records z's address in slot i of the guarded table and
// keeps a normal Go reference to it so the collector never reclaims
// it out from under that address.
func (r *root) setZoneAt(i int, z *zone) {
	if z == nil {
		*r.zoneSlotPtr(i) = 0
		r.keepAlive[i] = nil
		return
	}
	*r.zoneSlotPtr(i) = uintptr(unsafe.Pointer(z))
	r.keepAlive[i] = z
}

var (
	rootOnce sync.Once
	theRoot  *root
)

// getRoot returns the process-wide root, constructing it (and the
// default size-class zones) on first call.
func getRoot() *root {
	rootOnce.Do(func() {
		theRoot = newRoot()
	})
	return theRoot
}

func newRoot() *root {
	v := newVM()
	r := &root{
		vm:       v,
		rand:     newRandSource(),
		pageSize: v.pageSize,
	}

	tableBytes := registryHeaderSize + maxZones*int(unsafe.Sizeof(uintptr(0)))
	registrySize := v.pageRound(tableBytes)

	page := v.pageSize
	r.region = v.reserveRW(registrySize + 2*page)
	v.protectPages(r.region[:page], protNone)
	v.protectPages(r.region[len(r.region)-page:], protNone)
	r.registryStart = addrOf(r.region) + uintptr(page)
	r.registrySize = registrySize

	r.handleMask = r.rand.secret()

	for _, size := range defaultZoneSizes {
		r.createZone(size, true)
	}

	r.initialized = true
	return r
}

// createZone allocates a new zone, appends it to the guarded table,
// and returns it. Caller must hold r.mu.
func (r *root) createZone(chunkSize int, internal bool) *zone {
	used := r.zonesUsed()
	if used >= maxZones {
		abort("zone table is full (%d zones)", maxZones)
	}
	chunkSize = roundToAlignment(chunkSize)
	z := newZone(r.vm, r.rand, used, chunkSize, internal)
	r.setZoneAt(used, z)
	r.setZonesUsed(used + 1)
	return z
}

// protectRoot / unprotectRoot toggle the root's own guarded registry
// page. Sealing the root while no allocation is in flight turns any
// stray pointer arithmetic that lands in root metadata into an
// immediate fault instead of silent corruption.
func (r *root) protectRoot() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vm.protectPages(r.registry(), protNone)
}

func (r *root) unprotectRoot() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vm.protectPages(r.registry(), protReadWrite)
}

// roundToAlignment rounds n up to a multiple of alignment, with a
// floor of alignment itself (a zero-byte request still gets one
// aligned word of chunk).
func roundToAlignment(n int) int {
	if n <= 0 {
		return alignment
	}
	if r := n % alignment; r != 0 {
		n += alignment - r
	}
	return n
}
