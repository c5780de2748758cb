package interfaces

import "github.com/dark0711/flogfs/internal/types"

// BlockAllocator picks the next block to allocate based on age and
// free-list state, and tracks per-block erase ages for wear leveling.
//
// Reference: spec.md §4.4 (Block allocator).
type BlockAllocator interface {
	// AllocateBlock returns a currently-UNALLOCATED block index,
	// preferring the least-worn candidate, or reports ok=false when
	// no free block remains.
	AllocateBlock() (block types.BlockIdx, ok bool)

	// NoteAllocated records that block has just been claimed for use
	// at the given age, removing it from the free set.
	NoteAllocated(block types.BlockIdx, age types.BlockAge)

	// NoteFreed records that block has just been erased and returned
	// to the free set, keeping the age it held while in use.
	NoteFreed(block types.BlockIdx, age types.BlockAge)

	// BlockAge returns the last known age of the given block.
	BlockAge(block types.BlockIdx) types.BlockAge

	// NumFreeBlocks returns the current count of UNALLOCATED blocks.
	NumFreeBlocks() types.BlockIdx
}

// InodeIteratorState is the cursor spec.md §4.1 defines for walking
// the inode chain in order.
//
// Reference: spec.md §4.1 (Inode iterator).
type InodeIteratorState struct {
	Block     types.BlockIdx
	NextBlock types.BlockIdx
	InodeIdx  uint32
	Sector    uint32
}
