//go:build unix

package isoalloc

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func systemPageSize() int {
	return os.Getpagesize()
}

// mmapReadWrite obtains an anonymous, private, read-write mapping of
// size bytes. size must already be a multiple of the page size.
func mmapReadWrite(size int) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrap(err, "mmap: failed to reserve pages")
	}
	return b, nil
}

func mprotect(b []byte, mode prot) error {
	var p int
	switch mode {
	case protNone:
		p = unix.PROT_NONE
	case protReadWrite:
		p = unix.PROT_READ | unix.PROT_WRITE
	}
	if err := unix.Mprotect(b, p); err != nil {
		return errors.Wrap(err, "mprotect: failed to change page protection")
	}
	return nil
}

func madvise(b []byte, hint adviseHint) error {
	var advice int
	switch hint {
	case adviseWillNeed:
		advice = unix.MADV_WILLNEED
	case adviseSequential:
		advice = unix.MADV_SEQUENTIAL
	case adviseRandom:
		advice = unix.MADV_RANDOM
	case adviseDontNeed:
		advice = unix.MADV_DONTNEED
	}
	if err := unix.Madvise(b, advice); err != nil {
		return errors.Wrap(err, "madvise: failed to set access hint")
	}
	return nil
}

func munmap(b []byte) error {
	if err := unix.Munmap(b); err != nil {
		return errors.Wrap(err, "munmap: failed to release pages")
	}
	return nil
}
