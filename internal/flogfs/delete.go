package flogfs

import (
	"fmt"

	"github.com/dark0711/flogfs/internal/types"
)

// Remove finds the live inode entry named name, stamps its invalidation
// record with the current FS clock, and erases every block of its
// chain, from the first block forward, so a crash mid-erase leaves the already-erased
// prefix safely reclaimable and the inode entry still pointing at a
// not-yet-erased tail (spec.md §4.3 Pass 3 picks the recovery up from
// there).
//
// Reference: spec.md §4.7 (Delete).
func (fs *FS) Remove(name string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.flash.Lock()
	defer fs.flash.Unlock()

	if !fs.mounted {
		return fmt.Errorf("%w: remove: filesystem not mounted", ErrFailure)
	}

	nameBytes, err := encodeFilename(name)
	if err != nil {
		return err
	}

	it, err := fs.initInodeIterator(fs.inode0)
	if err != nil {
		return fmt.Errorf("%w: remove: init inode iterator: %v", ErrFailure, err)
	}
	for {
		alloc, err := fs.readInodeAllocation(it)
		if err != nil {
			return fmt.Errorf("%w: remove: reading inode allocation: %v", ErrFailure, err)
		}
		if alloc.FileID == types.FLOGFileIDInvalid {
			return ErrNotFound
		}
		if alloc.Filename == nameBytes {
			inval, err := fs.readInodeInvalidation(it)
			if err != nil {
				return fmt.Errorf("%w: remove: reading inode invalidation: %v", ErrFailure, err)
			}
			if inval.Live() {
				return fs.deleteEntry(it, alloc)
			}
		}
		it, err = fs.nextInodeIterator(it)
		if err != nil {
			return fmt.Errorf("%w: remove: advancing inode iterator: %v", ErrFailure, err)
		}
	}
}

// deleteEntry finds the tail block of alloc's chain, stamps the inode's
// invalidation record (making the deletion durable and the file
// unreachable on any subsequent mount, even if the erase below is
// interrupted), then erases the chain.
func (fs *FS) deleteEntry(it inodeIterator, alloc types.InodeAllocationRecord) error {
	lastBlock, err := fs.findFileTailBlock(alloc.FirstBlock, alloc.FileID)
	if err != nil {
		return err
	}

	ts := fs.t
	fs.t++

	if err := fs.cache.openSector(it.block, it.sector+1); err != nil {
		return fmt.Errorf("%w: remove: opening invalidation sector: %v", ErrFailure, err)
	}
	inval := types.EncodeInodeInvalidationRecord(types.InodeInvalidationRecord{
		LastBlock: lastBlock,
		Timestamp: ts,
	})
	if err := fs.flash.WriteSector(inval, it.sector+1, 0, types.SizeInodeInvalidationRecord); err != nil {
		return fmt.Errorf("%w: remove: writing invalidation record: %v", ErrFailure, err)
	}
	if err := fs.flash.Commit(); err != nil {
		return fmt.Errorf("%w: remove: committing invalidation record: %v", ErrFailure, err)
	}
	fs.cache.invalidate()

	return fs.eraseChainFrom(alloc.FirstBlock, alloc.FileID)
}

// findFileTailBlock walks a file's chain from firstBlock to find its
// last block, used to populate the invalidation record's LastBlock
// field before any erasing begins.
func (fs *FS) findFileTailBlock(firstBlock types.BlockIdx, fileID types.FileID) (types.BlockIdx, error) {
	block := firstBlock
	for {
		if err := fs.cache.openSector(block, types.FLOGFileTailSector); err != nil {
			return 0, fmt.Errorf("%w: remove: opening chain tail %d: %v", ErrFailure, block, err)
		}
		tailBuf := make([]byte, types.SizeFileTailRecord)
		if err := fs.flash.ReadSector(tailBuf, types.FLOGFileTailSector, 0, types.SizeFileTailRecord); err != nil {
			return 0, fmt.Errorf("%w: remove: reading chain tail at block %d: %v", ErrFailure, block, err)
		}
		tail := types.DecodeFileTailRecord(tailBuf)
		if tail.Pending() {
			return block, nil
		}
		block = tail.NextBlock
	}
}
