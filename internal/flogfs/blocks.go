package flogfs

import (
	"fmt"

	"github.com/dark0711/flogfs/internal/types"
)

// claimBlock picks a free block from the allocator and erases it,
// returning the new age it should be stamped with once its header is
// committed (previous age + 1, per spec.md §4.4). Erasing unconditionally
// — even for blocks that were already virgin-erased — guarantees the
// one-shot write constraint holds regardless of whatever was physically
// programmed into a reclaimed slot, including an orphaned successor
// block leaked by a crash between spec.md §4.5 steps 2 and 3 (its role
// spare was never tagged, so pass 1 sees it as free; erasing it here
// before reuse is what makes that safe).
func (fs *FS) claimBlock() (types.BlockIdx, types.BlockAge, error) {
	block, ok := fs.alloc.AllocateBlock()
	if !ok {
		return 0, 0, ErrNoSpace
	}
	age := fs.alloc.BlockAge(block) + 1
	if err := fs.flash.EraseBlock(block); err != nil {
		return 0, 0, fmt.Errorf("%w: claiming block %d: %v", ErrFailure, block, err)
	}
	fs.cache.invalidate()
	fs.alloc.NoteAllocated(block, age)
	return block, age, nil
}

// sectorCapacity returns the number of payload bytes sector can hold.
// Sector 0 of every file data block reserves its first bytes for the
// FileSector0Header; every other sector is plain payload.
//
// Reference: spec.md §3 "File data block".
func sectorCapacity(sector uint32) uint32 {
	if sector == 0 {
		return types.SectorSize - types.SizeFileSector0Header
	}
	return types.SectorSize
}

// sectorPayloadOffset returns the byte offset within sector at which
// its payload begins.
func sectorPayloadOffset(sector uint32) uint32 {
	if sector == 0 {
		return types.SizeFileSector0Header
	}
	return 0
}

// lastDataSector is the last sector of a file data block available for
// payload; the final sector (types.FLOGFileTailSector) is reserved for
// the tail link.
const lastDataSector = types.FLOGFileTailSector - 1

// encodeFilename validates and pads name into the fixed-width on-disk
// filename field.
func encodeFilename(name string) ([types.FLOGMaxFnameLen]byte, error) {
	var out [types.FLOGMaxFnameLen]byte
	if len(name) >= types.FLOGMaxFnameLen {
		return out, ErrNameTooLong
	}
	copy(out[:], name)
	return out, nil
}
