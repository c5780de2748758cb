// Package interfaces defines the small collaborator interfaces the
// flogfs core is built against: the flash driver and FS lock spec.md
// §1 calls out as external collaborators, plus the internal manager
// interfaces the core packages implement.
//
// Reference: spec.md §6 (External Interfaces).
package interfaces

import "github.com/dark0711/flogfs/internal/types"

// FlashDriver is the low-level NAND driver the core consumes. It is
// out of scope for this module's core (spec.md §1); internal/flash
// provides a simulated implementation for tests and the CLI.
//
// Reference: spec.md §6 "Flash driver (consumed)".
type FlashDriver interface {
	// Init prepares the driver for use.
	Init() error

	// Lock excludes other users of the flash for the duration of a
	// critical section.
	Lock()

	// Unlock releases the flash-driver lock.
	Unlock()

	// OpenPage opens the given page of the given block for
	// subsequent sector reads and spare reads/writes. Returns an
	// error if the page cannot be opened (e.g. a bad block).
	OpenPage(block types.BlockIdx, page uint32) error

	// ClosePage invalidates the currently open page.
	ClosePage()

	// ReadSector reads len bytes at offset from the given sector of
	// the currently open page into dst.
	ReadSector(dst []byte, sector uint32, offset, length uint32) error

	// ReadSpare reads the spare region of the given sector of the
	// currently open page into dst.
	ReadSpare(dst []byte, sector uint32) error

	// WriteSector programs len bytes at offset into the given sector
	// of the currently open page. One-shot: a sector region may not
	// be programmed twice without an intervening block erase.
	WriteSector(src []byte, sector uint32, offset, length uint32) error

	// WriteSpare programs the spare region of the given sector of the
	// currently open page.
	WriteSpare(src []byte, sector uint32) error

	// Commit flushes any buffered page program to the medium.
	Commit() error

	// EraseBlock erases the given block, returning it to the
	// UNALLOCATED role.
	EraseBlock(block types.BlockIdx) error

	// BlockIsBad reports whether the currently open block is marked
	// bad by the manufacturer/driver and must never be allocated.
	BlockIsBad() bool
}

// Diagnostics is the debug_warn/debug_error channel of spec.md §6,
// modeled as a small sink so the core never depends on a concrete
// logging library directly.
type Diagnostics interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
