package flogfs

import (
	"fmt"

	"github.com/dark0711/flogfs/internal/types"
)

// lastAllocation is the candidate "most recent allocation" carried from
// pass 1 through to pass 3, per spec.md §4.3.
type lastAllocation struct {
	valid     bool
	block     types.BlockIdx
	age       types.BlockAge
	fileID    types.FileID
	timestamp types.Timestamp
}

// lastDeletion is the candidate "most recent deletion" carried from pass
// 2 through to pass 3, per spec.md §4.3.
type lastDeletion struct {
	valid      bool
	firstBlock types.BlockIdx
	lastBlock  types.BlockIdx
	fileID     types.FileID
	timestamp  types.Timestamp
}

// Mount reconstructs in-memory filesystem state by scanning every
// block once (pass 1), walking the inode chain (pass 2), and repairing
// at most one pending allocation and one pending deletion (pass 3). No
// writes are performed in passes 1 or 2.
//
// Reference: spec.md §4.3 (Mount scanner).
func (fs *FS) Mount() error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.flash.Lock()
	defer fs.flash.Unlock()

	// Mount rebuilds allocator state from scratch; a remount over a
	// live FS value must not double-count what a prior scan seeded.
	fs.mounted = false
	fs.alloc = newAllocator(fs.numBlocks)

	lastAlloc := lastAllocation{}
	lastDel := lastDeletion{}
	var inode0 types.BlockIdx
	haveInode0 := false
	var maxBlockAge types.BlockAge

	// Pass 1 — block census.
	for b := types.BlockIdx(0); b < types.BlockIdx(fs.numBlocks); b++ {
		if err := fs.cache.openPage(b, 0); err != nil {
			continue
		}
		if fs.flash.BlockIsBad() {
			fs.alloc.markBad(b)
			continue
		}

		spareBuf := make([]byte, types.SizeInodeSector0Spare)
		if err := fs.flash.ReadSpare(spareBuf, 0); err != nil {
			continue
		}
		role := types.BlockRole(spareBuf[0])

		switch role {
		case types.RoleInode:
			spare := types.DecodeInodeSector0Spare(spareBuf)

			invBuf := make([]byte, types.SizeInodeInvalidationRecord)
			if err := fs.flash.ReadSector(invBuf, types.FLOGInodeInvalidationSector, 0, types.SizeInodeInvalidationRecord); err != nil {
				return fmt.Errorf("%w: mount pass1: reading inode invalidation at block %d: %v", ErrFailure, b, err)
			}
			inval := types.DecodeInodeInvalidationRecord(invBuf)
			hdrBuf := make([]byte, types.SizeInodeSector0)
			if err := fs.flash.ReadSector(hdrBuf, 0, 0, types.SizeInodeSector0); err != nil {
				return fmt.Errorf("%w: mount pass1: reading inode header at block %d: %v", ErrFailure, b, err)
			}
			hdr := types.DecodeInodeSector0(hdrBuf)

			if inval.Live() && spare.InodeIndex == 0 {
				inode0 = b
				haveInode0 = true
			}
			if hdr.Age > maxBlockAge {
				maxBlockAge = hdr.Age
			}
			fs.alloc.seed(b, false, hdr.Age)

		case types.RoleFile:
			hdrBuf := make([]byte, types.SizeFileSector0Header)
			if err := fs.flash.ReadSector(hdrBuf, 0, 0, types.SizeFileSector0Header); err != nil {
				return fmt.Errorf("%w: mount pass1: reading file header at block %d: %v", ErrFailure, b, err)
			}
			hdr := types.DecodeFileSector0Header(hdrBuf)

			// The tail sector lives in the block's last page, not the
			// page-0 census view.
			if err := fs.cache.openSector(b, types.FLOGFileTailSector); err != nil {
				return fmt.Errorf("%w: mount pass1: opening file tail at block %d: %v", ErrFailure, b, err)
			}
			tailBuf := make([]byte, types.SizeFileTailRecord)
			if err := fs.flash.ReadSector(tailBuf, types.FLOGFileTailSector, 0, types.SizeFileTailRecord); err != nil {
				return fmt.Errorf("%w: mount pass1: reading file tail at block %d: %v", ErrFailure, b, err)
			}
			tail := types.DecodeFileTailRecord(tailBuf)

			if !tail.Pending() && (!lastAlloc.valid || tail.Timestamp > lastAlloc.timestamp) {
				lastAlloc = lastAllocation{
					valid:     true,
					block:     tail.NextBlock,
					age:       tail.NextAge,
					fileID:    hdr.FileID,
					timestamp: tail.Timestamp,
				}
			}
			if hdr.Age > maxBlockAge {
				maxBlockAge = hdr.Age
			}
			fs.alloc.seed(b, false, hdr.Age)

		default: // RoleUnallocated
			// The allocator's seed call is what maintains the free
			// count published after mount.
			fs.alloc.seed(b, true, 0)
		}
	}

	if !haveInode0 {
		return fmt.Errorf("%w: mount: inode0 not found", ErrFailure)
	}
	fs.alloc.setAgeFloor(0)

	// Pass 2 — inode walk.
	var maxFileID types.FileID
	it, err := fs.initInodeIterator(inode0)
	if err != nil {
		return fmt.Errorf("%w: mount pass2: init inode iterator: %v", ErrFailure, err)
	}
	for {
		alloc, err := fs.readInodeAllocation(it)
		if err != nil {
			return fmt.Errorf("%w: mount pass2: reading inode allocation: %v", ErrFailure, err)
		}
		if alloc.FileID == types.FLOGFileIDInvalid {
			break
		}
		inval, err := fs.readInodeInvalidation(it)
		if err != nil {
			return fmt.Errorf("%w: mount pass2: reading inode invalidation: %v", ErrFailure, err)
		}

		maxFileID = alloc.FileID

		if inval.Live() {
			if !lastAlloc.valid || alloc.Timestamp > lastAlloc.timestamp {
				lastAlloc = lastAllocation{
					valid:     true,
					block:     alloc.FirstBlock,
					age:       alloc.FirstBlockAge,
					fileID:    alloc.FileID,
					timestamp: alloc.Timestamp,
				}
			}
		} else if !lastDel.valid || inval.Timestamp > lastDel.timestamp {
			lastDel = lastDeletion{
				valid:      true,
				firstBlock: alloc.FirstBlock,
				lastBlock:  inval.LastBlock,
				fileID:     alloc.FileID,
				timestamp:  inval.Timestamp,
			}
		}

		it, err = fs.nextInodeIterator(it)
		if err != nil {
			return fmt.Errorf("%w: mount pass2: advancing inode iterator: %v", ErrFailure, err)
		}
	}

	// Pass 3 — recovery.
	var t types.Timestamp
	if lastAlloc.valid {
		newT, err := fs.recoverAllocation(lastAlloc)
		if err != nil {
			return err
		}
		t = newT
	}
	if lastDel.valid {
		if err := fs.recoverDeletion(lastDel); err != nil {
			return err
		}
		if lastDel.timestamp+1 > t {
			t = lastDel.timestamp + 1
		}
	}

	fs.inode0 = inode0
	fs.numFiles = maxFileID
	fs.maxFileID = maxFileID
	fs.maxBlockAge = maxBlockAge
	fs.t = t
	fs.mounted = true
	fs.cache.invalidate()
	return nil
}

// recoverAllocation implements spec.md §4.3 pass 3 allocation recovery:
// if the successor block named by the most recent tail write was never
// initialized (crash between the predecessor's tail-sector write and
// the successor's header write), re-initialize it from the announced
// age/file_id and advance the FS clock past the announced timestamp.
func (fs *FS) recoverAllocation(la lastAllocation) (types.Timestamp, error) {
	if err := fs.cache.openPage(la.block, 0); err != nil {
		return 0, fmt.Errorf("%w: mount recovery: opening allocation target %d: %v", ErrFailure, la.block, err)
	}
	hdrBuf := make([]byte, types.SizeFileSector0Header)
	if err := fs.flash.ReadSector(hdrBuf, 0, 0, types.SizeFileSector0Header); err != nil {
		return 0, fmt.Errorf("%w: mount recovery: reading allocation target header: %v", ErrFailure, err)
	}
	hdr := types.DecodeFileSector0Header(hdrBuf)

	if hdr.FileID == la.fileID {
		// Successor was fully initialized; nothing to repair.
		return la.timestamp + 1, nil
	}

	fs.diag.Warn("mount: repairing pending allocation", "block", la.block, "file_id", la.fileID)
	if err := fs.flash.EraseBlock(la.block); err != nil {
		return 0, fmt.Errorf("%w: mount recovery: erasing pending block %d: %v", ErrFailure, la.block, err)
	}
	fs.cache.invalidate()
	if err := fs.cache.openPage(la.block, 0); err != nil {
		return 0, fmt.Errorf("%w: mount recovery: reopening repaired block: %v", ErrFailure, err)
	}
	newHdr := types.EncodeFileSector0Header(types.FileSector0Header{FileID: la.fileID, Age: la.age})
	if err := fs.flash.WriteSector(newHdr, 0, 0, types.SizeFileSector0Header); err != nil {
		return 0, fmt.Errorf("%w: mount recovery: writing repaired header: %v", ErrFailure, err)
	}
	spare := types.EncodeFileSectorSpare(types.FileSectorSpare{TypeID: types.RoleFile, NBytes: 0})
	if err := fs.flash.WriteSpare(spare, 0); err != nil {
		return 0, fmt.Errorf("%w: mount recovery: writing repaired spare: %v", ErrFailure, err)
	}
	if err := fs.flash.Commit(); err != nil {
		return 0, fmt.Errorf("%w: mount recovery: committing repaired block: %v", ErrFailure, err)
	}
	fs.cache.invalidate()
	fs.alloc.NoteAllocated(la.block, la.age)
	return la.timestamp + 1, nil
}

// recoverDeletion implements spec.md §4.3 pass 3 deletion recovery and
// the auto-repair Open Question decision recorded in DESIGN.md: rather
// than merely detecting a stalled mid-chain deletion, finish erasing
// every remaining chain block from firstBlock onward so mount always
// completes and the deleted file is never again reachable.
func (fs *FS) recoverDeletion(ld lastDeletion) error {
	if err := fs.cache.openPage(ld.lastBlock, 0); err != nil {
		return fmt.Errorf("%w: mount recovery: opening deletion tail block %d: %v", ErrFailure, ld.lastBlock, err)
	}
	hdrBuf := make([]byte, types.SizeFileSector0Header)
	if err := fs.flash.ReadSector(hdrBuf, 0, 0, types.SizeFileSector0Header); err != nil {
		return fmt.Errorf("%w: mount recovery: reading deletion tail header: %v", ErrFailure, err)
	}
	hdr := types.DecodeFileSector0Header(hdrBuf)
	if hdr.FileID != ld.fileID {
		// The tail block has already been erased/reused; deletion
		// already finished in a prior run.
		return nil
	}

	if err := fs.cache.openSector(ld.lastBlock, types.FLOGFileInvalidationSector); err != nil {
		return fmt.Errorf("%w: mount recovery: opening deletion tail record: %v", ErrFailure, err)
	}
	tailBuf := make([]byte, types.SizeFileTailRecord)
	if err := fs.flash.ReadSector(tailBuf, types.FLOGFileInvalidationSector, 0, types.SizeFileTailRecord); err != nil {
		return fmt.Errorf("%w: mount recovery: reading deletion tail record: %v", ErrFailure, err)
	}
	tail := types.DecodeFileTailRecord(tailBuf)
	if tail.Pending() {
		// Not yet invalidated: this chain block (and possibly its
		// predecessors) never finished being erased. Finish the job.
		fs.diag.Warn("mount: finishing stalled deletion", "file_id", ld.fileID, "first_block", ld.firstBlock)
		return fs.eraseChainFrom(ld.firstBlock, ld.fileID)
	}
	return nil
}

// eraseChainFrom walks a file's block chain from the given block
// forward, erasing every block still tagged with fileID. It tolerates
// blocks already erased (role no longer FILE/fileID), which happens
// when a prior deletion run made partial progress before crashing.
//
// Reference: spec.md §4.7 (Delete), §4.3 Pass 3.
func (fs *FS) eraseChainFrom(block types.BlockIdx, fileID types.FileID) error {
	for block != types.FLOGBlockIdxInvalid {
		if err := fs.cache.openPage(block, 0); err != nil {
			return fmt.Errorf("%w: erase chain: opening block %d: %v", ErrFailure, block, err)
		}
		spareBuf := make([]byte, types.SizeInodeSector0Spare)
		if err := fs.flash.ReadSpare(spareBuf, 0); err != nil {
			return fmt.Errorf("%w: erase chain: reading spare at block %d: %v", ErrFailure, block, err)
		}
		if types.BlockRole(spareBuf[0]) != types.RoleFile {
			// Already erased (UNALLOCATED) by a prior partial run.
			break
		}
		hdrBuf := make([]byte, types.SizeFileSector0Header)
		if err := fs.flash.ReadSector(hdrBuf, 0, 0, types.SizeFileSector0Header); err != nil {
			return fmt.Errorf("%w: erase chain: reading header at block %d: %v", ErrFailure, block, err)
		}
		hdr := types.DecodeFileSector0Header(hdrBuf)
		if hdr.FileID != fileID {
			break
		}
		if err := fs.cache.openSector(block, types.FLOGFileTailSector); err != nil {
			return fmt.Errorf("%w: erase chain: opening tail at block %d: %v", ErrFailure, block, err)
		}
		tailBuf := make([]byte, types.SizeFileTailRecord)
		if err := fs.flash.ReadSector(tailBuf, types.FLOGFileTailSector, 0, types.SizeFileTailRecord); err != nil {
			return fmt.Errorf("%w: erase chain: reading tail at block %d: %v", ErrFailure, block, err)
		}
		tail := types.DecodeFileTailRecord(tailBuf)

		if err := fs.flash.EraseBlock(block); err != nil {
			return fmt.Errorf("%w: erase chain: erasing block %d: %v", ErrFailure, block, err)
		}
		fs.cache.invalidate()
		// The next allocation of this slot bumps the age by one (see
		// claimBlock); NoteFreed only carries forward the age this
		// block held while it was still live.
		fs.alloc.NoteFreed(block, hdr.Age)

		if tail.Pending() {
			break
		}
		block = tail.NextBlock
	}
	return nil
}
