package isoalloc

import "encoding/binary"

// canaryValue computes the sentinel written at both ends of a free or
// permanently-canary chunk: the zone's secret XORed with the chunk's
// own address. Deriving the value from the address it protects means
// copying a canary from one chunk to another - the classic bypass for
// a fixed canary value - produces a mismatch at the new location.
func canaryValue(secret uint64, addr uintptr) uint64 {
	return secret ^ uint64(addr)
}

// writeCanary places secret^addr at the first and last 8 bytes of the
// chunk starting at addr within user, where user is the zone's
// (already unmasked) user region and off is addr's offset into it.
func writeCanary(user []byte, off, chunkSize int, secret uint64, addr uintptr) {
	v := canaryValue(secret, addr)
	binary.LittleEndian.PutUint64(user[off:], v)
	binary.LittleEndian.PutUint64(user[off+chunkSize-canarySize:], v)
}

// checkCanarySilent verifies both canary positions of the chunk and
// reports success without aborting, for scanning paths that must walk
// many chunks and decide for themselves how to react to a mismatch.
func checkCanarySilent(user []byte, off, chunkSize int, secret uint64, addr uintptr) bool {
	want := canaryValue(secret, addr)
	head := binary.LittleEndian.Uint64(user[off:])
	tail := binary.LittleEndian.Uint64(user[off+chunkSize-canarySize:])
	return head == want && tail == want
}

// checkCanary verifies both canary positions and aborts with a
// diagnostic naming the zone, chunk address, and observed/expected
// values on any mismatch.
func checkCanary(zoneIndex int, user []byte, off, chunkSize int, secret uint64, addr uintptr) {
	want := canaryValue(secret, addr)
	head := binary.LittleEndian.Uint64(user[off:])
	tail := binary.LittleEndian.Uint64(user[off+chunkSize-canarySize:])
	if head != want {
		abort("zone %d: canary mismatch at head of chunk %#x: got %#x want %#x", zoneIndex, addr, head, want)
	}
	if tail != want {
		abort("zone %d: canary mismatch at tail of chunk %#x: got %#x want %#x", zoneIndex, addr, tail, want)
	}
}
