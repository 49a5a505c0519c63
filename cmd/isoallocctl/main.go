// Command isoallocctl drives the isoalloc allocator for manual and
// soak testing: sustained alloc/free churn, a one-shot verification
// pass, and a summary of what a run actually did. It talks to the
// allocator only through its public surface (Alloc, Free, VerifyAll,
// ...), the same way any other collaborator would.
package main

func main() {
	execute()
}
