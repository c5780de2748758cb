package interfaces

// FSLock is the mutual-exclusion primitive serializing every public
// flogfs operation (mount, format, open, close, read, write, delete).
// It is out of scope for this module's core (spec.md §1);
// internal/fslock provides a FIFO-fair implementation.
//
// Reference: spec.md §5 (Concurrency & Resource Model), §6 "FS lock
// (consumed)".
type FSLock interface {
	Lock()
	Unlock()
}
