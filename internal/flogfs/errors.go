package flogfs

import "errors"

// Sentinel errors every public operation collapses onto, per spec.md
// §7's binary success/failure contract. Internal errors are still
// wrapped with context via fmt.Errorf("%w: ...") for diagnostics; only
// these sentinels are meant to be compared against with errors.Is.
var (
	// ErrFailure is the generic failure of spec.md §7: flash I/O
	// failure, a bad block encountered in a required slot, an operation
	// on an unmounted filesystem, or missing inode0 at mount. Running
	// out of space is reported as ErrNoSpace instead, and an over-long
	// filename as ErrNameTooLong.
	ErrFailure = errors.New("flogfs: operation failed")

	// ErrNotFound is returned when a named file does not exist or has
	// been deleted.
	ErrNotFound = errors.New("flogfs: file not found")

	// ErrNameTooLong is returned when a filename does not fit in
	// FLOGMaxFnameLen bytes including its terminator.
	ErrNameTooLong = errors.New("flogfs: filename too long")

	// ErrNoSpace is returned when the allocator cannot find a free
	// block.
	ErrNoSpace = errors.New("flogfs: no free blocks")

	// ErrCorrupt names a structural inconsistency on the medium. No
	// operation in this package returns it: mount recovery reports its
	// failures as ErrFailure.
	ErrCorrupt = errors.New("flogfs: corrupt filesystem state")

	// ErrNotOpen is returned when an operation is attempted on a
	// handle that was never opened or was already closed.
	ErrNotOpen = errors.New("flogfs: handle not open")

	// ErrEOF is returned by Read once every byte of the file has been
	// consumed.
	ErrEOF = errors.New("flogfs: end of file")
)
