package isoalloc

// Init forces construction of the process-wide allocator root and its
// default size-class zones. Calling it is optional: every public
// operation lazily initializes on first use via the same singleton.
// Programs that want zone creation off the hot path of their first
// allocation can call it explicitly at startup.
func Init() {
	getRoot()
}

// Teardown verifies every zone's canaries, then destroys each zone
// and releases the root's own guarded pages. After Teardown returns,
// no further allocator operation is safe: the root is built only once
// per process and is not re-created, and its registry page is no
// longer mapped, so a subsequent call faults. Teardown is meant for
// process exit, not for resetting allocator state mid-run.
func Teardown() {
	r := getRoot()
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < r.zonesUsed(); i++ {
		verifyZone(r.zoneAt(i))
	}

	for i := 0; i < r.zonesUsed(); i++ {
		destroyZone(r.vm, r.zoneAt(i))
		r.setZoneAt(i, nil)
	}
	r.setZonesUsed(0)

	r.vm.release(r.region)
}
