package isoalloc

import "testing"
import "unsafe"

func TestAllocReturnsPointerInZone(t *testing.T) {
	p := Alloc(64)
	if p == nil {
		t.Fatalf("expected non-nil pointer")
	}
	if x := ChunkSize(p); x < 64 {
		t.Errorf("expected chunk size >= 64, got %v", x)
	}
	Free(p)
}

func TestAllocBoundaryClasses(t *testing.T) {
	for _, class := range defaultZoneSizes {
		p := Alloc(class)
		if x := ChunkSize(p); x < class {
			t.Errorf("class %v: expected chunk size >= %v, got %v", class, class, x)
		}
		Free(p)
	}
}

func TestAllocZeroSize(t *testing.T) {
	p := Alloc(0)
	if p == nil {
		t.Fatalf("expected non-nil pointer for zero-size allocation")
	}
	Free(p)
}

func TestAllocOversizeCreatesMatchingZone(t *testing.T) {
	p := Alloc(100000)
	if x := ChunkSize(p); x < 100000 {
		t.Errorf("expected chunk size >= 100000, got %v", x)
	}
	Free(p)
	VerifyAll()
}

func TestCalloc(t *testing.T) {
	p := Calloc(16, 32)
	b := unsafe.Slice((*byte)(p), 16*32)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not zeroed: %v", i, v)
		}
	}
	Free(p)
}

func TestCallocOverflowAborts(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected panic on calloc overflow")
		}
	}()
	Calloc(1<<62, 1<<62)
}

func TestFreedChunkIsPoisoned(t *testing.T) {
	p := Alloc(64)
	Free(p)
	b := unsafe.Slice((*byte)(p), 64)
	for i := canarySize; i < 64-canarySize; i++ {
		if b[i] != poisonByte {
			t.Fatalf("byte %d not poisoned: %#x", i, b[i])
		}
	}
}

func TestDoubleFreeAborts(t *testing.T) {
	p := Alloc(64)
	Free(p)
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected panic on double free")
		}
	}()
	Free(p)
}

func TestFreeForeignPointerAborts(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected panic on freeing a foreign pointer")
		}
	}()
	var x int64
	Free(unsafe.Pointer(&x))
}

func TestFreeMisalignedOffsetAborts(t *testing.T) {
	p := Alloc(64)
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected panic on misaligned free")
		}
		Free(p)
	}()
	misaligned := unsafe.Pointer(uintptr(p) + 8)
	Free(misaligned)
}

func TestFreePermanentNeverReused(t *testing.T) {
	p := Alloc(16)
	FreePermanent(p)

	for i := 0; i < 10000; i++ {
		q := Alloc(16)
		if q == p {
			t.Fatalf("permanently freed chunk %v was reused", p)
		}
		Free(q)
	}
	VerifyAll()
}

func TestReverseFreeThenReallocateRoundTrip(t *testing.T) {
	const n = 1000
	ptrs := make([]unsafe.Pointer, n)
	for i := 0; i < n; i++ {
		ptrs[i] = Alloc(32)
	}
	for i := n - 1; i >= 0; i-- {
		Free(ptrs[i])
	}
	for i := 0; i < n; i++ {
		p := Alloc(32)
		if p == nil {
			t.Fatalf("re-allocation %d failed", i)
		}
		if x := ChunkSize(p); x < 32 {
			t.Errorf("re-allocation %d: expected chunk size >= 32, got %v", i, x)
		}
		ptrs[i] = p
	}
	for _, p := range ptrs {
		Free(p)
	}
}

func TestVerifyAllIdempotent(t *testing.T) {
	p := Alloc(64)
	Free(p)
	VerifyAll()
	VerifyAll()
}

func TestCanaryCorruptionDetectedOnVerify(t *testing.T) {
	a := Alloc(64)
	b := unsafe.Slice((*byte)(a), 64)
	b[0] = 0xab
	Free(a)
	VerifyAll()

	orig := b[0]
	b[0] = 0x00
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected panic on canary mismatch")
		}
		// Restore the canary so later tests sharing the process-wide
		// allocator start from an uncorrupted heap.
		b[0] = orig
	}()
	VerifyAll()
}

func TestAdjacentCanaryCorruptionDetectedOnFree(t *testing.T) {
	a := Alloc(128)
	b := Alloc(128)
	_ = Alloc(128)

	Free(b)

	bb := unsafe.Slice((*byte)(b), 128)
	for i := 0; i < canarySize; i++ {
		bb[128-canarySize+i] ^= 0xff
	}

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected panic verifying adjacent chunk's canary during free")
		}
		// Undo the corruption so later tests sharing the process-wide
		// allocator start from an uncorrupted heap.
		for i := 0; i < canarySize; i++ {
			bb[128-canarySize+i] ^= 0xff
		}
	}()
	Free(a)
}
