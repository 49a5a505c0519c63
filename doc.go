// Package isoalloc implements a hardened, zone-based memory allocator
// modeled on isolation-style allocators: fixed-size-class zones backed
// by anonymous mmap regions, a two-bit-per-chunk occupancy bitmap,
// address-derived canaries at the ends of free chunks, and guard pages
// bracketing every sensitive region.
//
// The allocator trades raw throughput and density for the ability to
// turn common heap-corruption bugs (linear overflow, use-after-free,
// double-free, metadata tampering) into an immediate, diagnosable
// crash instead of a silently corrupted heap. It is not meant to
// replace the Go runtime's own allocator for ordinary Go values; it
// is meant to be reached for explicitly, the way a C program would
// link against a hardened malloc, for buffers that cross an
// untrusted boundary (parsers, codecs, anything fed attacker data).
//
// Every public operation takes a single process-wide lock. This is a
// deliberate concession: the allocator favors auditability over
// concurrent scalability.
package isoalloc
