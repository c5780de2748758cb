package flogfs

import (
	"fmt"

	"github.com/dark0711/flogfs/internal/types"
)

// writeCursor is the per-open-file state of spec.md §4.5: the current
// data block and sector being filled, plus an in-memory staging buffer
// for that sector's payload. Bytes are only committed to flash once the
// sector is full or the file is closed, so each sector's payload is
// programmed exactly once. Sector 0's spare is written twice: with
// nbytes 0 when the block is tagged as a file block, then with its final
// nbytes when that sector commits.
type writeCursor struct {
	fileID types.FileID
	block  types.BlockIdx
	sector uint32
	buf    []byte
}

// OpenWrite creates a new file entry at the current end of the inode
// chain, allocates its first data block, and returns a handle for
// appending to it.
//
// Reference: spec.md §4.5 (File write state machine).
func (fs *FS) OpenWrite(name string) (Handle, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.flash.Lock()
	defer fs.flash.Unlock()

	if !fs.mounted {
		return 0, fmt.Errorf("%w: open_write: filesystem not mounted", ErrFailure)
	}

	nameBytes, err := encodeFilename(name)
	if err != nil {
		return 0, err
	}

	slotBlock, slotSector, err := fs.findOpenInodeSlot()
	if err != nil {
		return 0, err
	}

	firstBlock, firstAge, err := fs.claimBlock()
	if err != nil {
		return 0, err
	}
	fileID := fs.maxFileID + 1
	ts := fs.t
	fs.t++

	// The inode record commits before the first block's own header,
	// mirroring advanceWriteSector's tail-first ordering: a crash in
	// between leaves a live entry naming a still-erased block, which is
	// the window recoverAllocation repairs at the next mount. Header
	// first would instead leave a tagged FILE block no entry ever
	// references — a leak nothing can see.
	if err := fs.cache.openSector(slotBlock, slotSector); err != nil {
		return 0, fmt.Errorf("%w: open_write: opening inode slot: %v", ErrFailure, err)
	}
	allocRec := types.EncodeInodeAllocationRecord(types.InodeAllocationRecord{
		FileID:        fileID,
		FirstBlock:    firstBlock,
		FirstBlockAge: firstAge,
		Timestamp:     ts,
		Filename:      nameBytes,
	})
	if err := fs.flash.WriteSector(allocRec, slotSector, 0, types.SizeInodeAllocationRecord); err != nil {
		return 0, fmt.Errorf("%w: open_write: writing inode allocation record: %v", ErrFailure, err)
	}
	if err := fs.flash.Commit(); err != nil {
		return 0, fmt.Errorf("%w: open_write: committing inode allocation: %v", ErrFailure, err)
	}
	fs.cache.invalidate()

	if err := fs.cache.openPage(firstBlock, 0); err != nil {
		return 0, fmt.Errorf("%w: open_write: opening first block: %v", ErrFailure, err)
	}
	hdr := types.EncodeFileSector0Header(types.FileSector0Header{FileID: fileID, Age: firstAge})
	if err := fs.flash.WriteSector(hdr, 0, 0, types.SizeFileSector0Header); err != nil {
		return 0, fmt.Errorf("%w: open_write: writing first block header: %v", ErrFailure, err)
	}
	spare := types.EncodeFileSectorSpare(types.FileSectorSpare{TypeID: types.RoleFile, NBytes: 0})
	if err := fs.flash.WriteSpare(spare, 0); err != nil {
		return 0, fmt.Errorf("%w: open_write: writing first block spare: %v", ErrFailure, err)
	}
	if err := fs.flash.Commit(); err != nil {
		return 0, fmt.Errorf("%w: open_write: committing first block: %v", ErrFailure, err)
	}
	fs.cache.invalidate()

	fs.maxFileID = fileID
	fs.numFiles = fileID

	fs.nextHandle++
	h := fs.nextHandle
	fs.openWriters[h] = &writeCursor{
		fileID: fileID,
		block:  firstBlock,
		sector: 0,
		buf:    make([]byte, 0, sectorCapacity(0)),
	}
	return h, nil
}

// findOpenInodeSlot walks the inode chain to the first allocation
// record whose file_id is FLOG_FILE_ID_INVALID (the live end of the
// chain), extending the chain with a freshly allocated inode block
// when the current one is exhausted.
//
// Reference: spec.md §4.1, §4.5 "locates a free entry slot at the
// current end of the inode chain".
func (fs *FS) findOpenInodeSlot() (types.BlockIdx, uint32, error) {
	it, err := fs.initInodeIterator(fs.inode0)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: open_write: init inode iterator: %v", ErrFailure, err)
	}
	for {
		alloc, err := fs.readInodeAllocation(it)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: open_write: reading inode allocation: %v", ErrFailure, err)
		}
		if alloc.FileID == types.FLOGFileIDInvalid {
			return it.block, it.sector, nil
		}
		if it.sector+2 >= types.SectorsPerBlock && it.nextBlock == types.FLOGBlockIdxInvalid {
			if err := fs.extendInodeChain(it.block); err != nil {
				return 0, 0, err
			}
			it.nextBlock, err = fs.readInodeTail(it.block)
			if err != nil {
				return 0, 0, fmt.Errorf("%w: open_write: rereading inode tail: %v", ErrFailure, err)
			}
		}
		pred := it.block
		it, err = fs.nextInodeIterator(it)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: open_write: advancing inode iterator: %v", ErrFailure, err)
		}
		if it.block != pred && it.block != types.FLOGBlockIdxInvalid {
			if err := fs.ensureInodeBlock(pred, it.block); err != nil {
				return 0, 0, err
			}
		}
	}
}

// ensureInodeBlock verifies that a chain successor the iterator just
// crossed into carries an inode header, finishing the initialization
// extendInodeChain never got to if a crash hit between the
// predecessor's link commit and the successor's header commit. Until a
// write lands here, the untagged block reads as end-of-chain to every
// walker, so deferring the repair to the next open_write is safe.
func (fs *FS) ensureInodeBlock(pred, block types.BlockIdx) error {
	if err := fs.cache.openPage(block, 0); err != nil {
		return fmt.Errorf("%w: open_write: opening chain successor %d: %v", ErrFailure, block, err)
	}
	spareBuf := make([]byte, types.SizeInodeSector0Spare)
	if err := fs.flash.ReadSpare(spareBuf, 0); err != nil {
		return fmt.Errorf("%w: open_write: reading chain successor spare: %v", ErrFailure, err)
	}
	if types.BlockRole(spareBuf[0]) == types.RoleInode {
		return nil
	}

	fs.diag.Warn("finishing interrupted inode chain extension", "block", block)
	if err := fs.cache.openPage(pred, 0); err != nil {
		return fmt.Errorf("%w: open_write: reopening chain predecessor: %v", ErrFailure, err)
	}
	predSpareBuf := make([]byte, types.SizeInodeSector0Spare)
	if err := fs.flash.ReadSpare(predSpareBuf, 0); err != nil {
		return fmt.Errorf("%w: open_write: reading chain predecessor spare: %v", ErrFailure, err)
	}
	predSpare := types.DecodeInodeSector0Spare(predSpareBuf)

	age := fs.alloc.BlockAge(block) + 1
	if err := fs.flash.EraseBlock(block); err != nil {
		return fmt.Errorf("%w: open_write: erasing chain successor %d: %v", ErrFailure, block, err)
	}
	fs.cache.invalidate()
	fs.alloc.NoteAllocated(block, age)

	if err := fs.cache.openPage(block, 0); err != nil {
		return fmt.Errorf("%w: open_write: reopening chain successor: %v", ErrFailure, err)
	}
	hdr := types.EncodeInodeSector0(types.InodeSector0{Age: age, Timestamp: fs.t})
	if err := fs.flash.WriteSector(hdr, 0, 0, types.SizeInodeSector0); err != nil {
		return fmt.Errorf("%w: open_write: writing chain successor header: %v", ErrFailure, err)
	}
	spare := types.EncodeInodeSector0Spare(types.InodeSector0Spare{TypeID: types.RoleInode, InodeIndex: predSpare.InodeIndex + 1})
	if err := fs.flash.WriteSpare(spare, 0); err != nil {
		return fmt.Errorf("%w: open_write: writing chain successor spare: %v", ErrFailure, err)
	}
	if err := fs.flash.Commit(); err != nil {
		return fmt.Errorf("%w: open_write: committing chain successor: %v", ErrFailure, err)
	}
	fs.cache.invalidate()
	return nil
}

// extendInodeChain allocates a new inode block and links predecessor's
// tail sector to it. The predecessor's tail is written and committed
// first, naming the new block before the new block's own header is
// ever written: a crash between the two steps leaves the predecessor
// pointing at a block that still reads fully erased, which mount's
// inode walk already treats as "no entries here yet" — the same state
// a legitimately-unextended slot is in — so nothing is corrupted, and
// the block is recovered into real use the next time a write lands in
// it. Writing the new block first (successor-first) would instead
// leave a crash window where the predecessor's tail is the only
// pointer to the new block, but nothing durable ever recorded that the
// block belongs to the chain at all — an unrecoverable leak, since
// there is no separate repair pass for orphaned inode blocks the way
// recoverAllocation repairs file chains.
func (fs *FS) extendInodeChain(predecessor types.BlockIdx) error {
	if err := fs.cache.openPage(predecessor, 0); err != nil {
		return fmt.Errorf("%w: open_write: opening predecessor inode block: %v", ErrFailure, err)
	}
	spareBuf := make([]byte, types.SizeInodeSector0Spare)
	if err := fs.flash.ReadSpare(spareBuf, 0); err != nil {
		return fmt.Errorf("%w: open_write: reading predecessor inode index: %v", ErrFailure, err)
	}
	predSpare := types.DecodeInodeSector0Spare(spareBuf)

	newBlock, newAge, err := fs.claimBlock()
	if err != nil {
		return err
	}

	// claimBlock's erase invalidated the page cache; reopen the
	// predecessor before linking it.
	if err := fs.cache.openPage(predecessor, 0); err != nil {
		return fmt.Errorf("%w: open_write: reopening predecessor inode block: %v", ErrFailure, err)
	}
	predTail := types.EncodeInodeTailRecord(types.InodeTailRecord{NextBlock: newBlock})
	if err := fs.flash.WriteSector(predTail, types.FLOGInodeTailSector, 0, types.SizeInodeTailRecord); err != nil {
		return fmt.Errorf("%w: open_write: linking predecessor inode block: %v", ErrFailure, err)
	}
	if err := fs.flash.Commit(); err != nil {
		return fmt.Errorf("%w: open_write: committing predecessor link: %v", ErrFailure, err)
	}
	fs.cache.invalidate()

	if err := fs.cache.openPage(newBlock, 0); err != nil {
		return fmt.Errorf("%w: open_write: opening new inode block: %v", ErrFailure, err)
	}
	hdr := types.EncodeInodeSector0(types.InodeSector0{Age: newAge, Timestamp: fs.t})
	if err := fs.flash.WriteSector(hdr, 0, 0, types.SizeInodeSector0); err != nil {
		return fmt.Errorf("%w: open_write: writing new inode block header: %v", ErrFailure, err)
	}
	spare := types.EncodeInodeSector0Spare(types.InodeSector0Spare{TypeID: types.RoleInode, InodeIndex: predSpare.InodeIndex + 1})
	if err := fs.flash.WriteSpare(spare, 0); err != nil {
		return fmt.Errorf("%w: open_write: writing new inode block spare: %v", ErrFailure, err)
	}
	if err := fs.flash.Commit(); err != nil {
		return fmt.Errorf("%w: open_write: committing new inode block: %v", ErrFailure, err)
	}
	fs.cache.invalidate()
	return nil
}

// Write appends p to the file identified by h, returning the number of
// bytes accepted. Bytes are staged in memory and only committed to
// flash sector-by-sector as each sector fills.
//
// Reference: spec.md §4.5.
func (fs *FS) Write(h Handle, p []byte) (int, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.flash.Lock()
	defer fs.flash.Unlock()

	cur, ok := fs.openWriters[h]
	if !ok {
		return 0, ErrNotOpen
	}

	total := 0
	for len(p) > 0 {
		capacity := sectorCapacity(cur.sector)
		room := capacity - uint32(len(cur.buf))
		n := room
		if uint32(len(p)) < n {
			n = uint32(len(p))
		}
		cur.buf = append(cur.buf, p[:n]...)
		p = p[n:]
		total += int(n)

		if uint32(len(cur.buf)) == capacity {
			if err := fs.commitWriteSector(cur); err != nil {
				return total, err
			}
			if err := fs.advanceWriteSector(cur); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// commitWriteSector flushes cur's staged buffer to flash as the final
// value for the current sector: one WriteSector for the payload and
// one WriteSpare recording its nbytes, matching spec.md §4.5's "when a
// sector is committed, its spare nbytes is written."
func (fs *FS) commitWriteSector(cur *writeCursor) error {
	if len(cur.buf) == 0 {
		return nil
	}
	if err := fs.cache.openSector(cur.block, cur.sector); err != nil {
		return fmt.Errorf("%w: write: opening sector: %v", ErrFailure, err)
	}
	off := sectorPayloadOffset(cur.sector)
	if err := fs.flash.WriteSector(cur.buf, cur.sector, off, uint32(len(cur.buf))); err != nil {
		return fmt.Errorf("%w: write: writing sector payload: %v", ErrFailure, err)
	}
	spare := types.EncodeFileSectorSpare(types.FileSectorSpare{TypeID: types.RoleFile, NBytes: uint16(len(cur.buf))})
	if err := fs.flash.WriteSpare(spare, cur.sector); err != nil {
		return fmt.Errorf("%w: write: writing sector spare: %v", ErrFailure, err)
	}
	if err := fs.flash.Commit(); err != nil {
		return fmt.Errorf("%w: write: committing sector: %v", ErrFailure, err)
	}
	fs.cache.invalidate()
	return nil
}

// advanceWriteSector moves the cursor to the next sector, allocating
// and chaining a successor block when the current block's last data
// sector has just filled.
//
// The predecessor's tail is written and committed before the successor
// block's own header: a crash in between leaves the predecessor's tail
// naming a successor whose header doesn't match it yet, which is
// exactly the window recoverAllocation repairs at mount (spec.md §4.3
// Pass 3, §8 Scenario 3). Writing the successor's header first would
// instead make that window unreachable — a crash there would leave the
// predecessor's tail still pending, so mount would never know the
// successor block was ever claimed, permanently losing it.
//
// Reference: spec.md §4.5.
func (fs *FS) advanceWriteSector(cur *writeCursor) error {
	if cur.sector == lastDataSector {
		nextBlock, nextAge, err := fs.claimBlock()
		if err != nil {
			return err
		}

		ts := fs.t
		fs.t++
		if err := fs.cache.openSector(cur.block, types.FLOGFileTailSector); err != nil {
			return fmt.Errorf("%w: write: opening predecessor tail: %v", ErrFailure, err)
		}
		tail := types.EncodeFileTailRecord(types.FileTailRecord{NextBlock: nextBlock, NextAge: nextAge, Timestamp: ts})
		if err := fs.flash.WriteSector(tail, types.FLOGFileTailSector, 0, types.SizeFileTailRecord); err != nil {
			return fmt.Errorf("%w: write: writing predecessor tail: %v", ErrFailure, err)
		}
		if err := fs.flash.Commit(); err != nil {
			return fmt.Errorf("%w: write: committing predecessor tail: %v", ErrFailure, err)
		}
		fs.cache.invalidate()

		if err := fs.cache.openPage(nextBlock, 0); err != nil {
			return fmt.Errorf("%w: write: opening successor block: %v", ErrFailure, err)
		}
		hdr := types.EncodeFileSector0Header(types.FileSector0Header{FileID: cur.fileID, Age: nextAge})
		if err := fs.flash.WriteSector(hdr, 0, 0, types.SizeFileSector0Header); err != nil {
			return fmt.Errorf("%w: write: writing successor header: %v", ErrFailure, err)
		}
		spare := types.EncodeFileSectorSpare(types.FileSectorSpare{TypeID: types.RoleFile, NBytes: 0})
		if err := fs.flash.WriteSpare(spare, 0); err != nil {
			return fmt.Errorf("%w: write: writing successor spare: %v", ErrFailure, err)
		}
		if err := fs.flash.Commit(); err != nil {
			return fmt.Errorf("%w: write: committing successor: %v", ErrFailure, err)
		}
		fs.cache.invalidate()

		cur.block = nextBlock
		cur.sector = 0
	} else {
		cur.sector++
	}
	cur.buf = make([]byte, 0, sectorCapacity(cur.sector))
	return nil
}

// CloseWrite flushes any partial sector and releases the handle. No
// inode record is updated: a file's length is implicit from the
// per-sector nbytes values in its chain.
//
// Reference: spec.md §4.5 "Close flushes any partial sector".
func (fs *FS) CloseWrite(h Handle) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.flash.Lock()
	defer fs.flash.Unlock()

	cur, ok := fs.openWriters[h]
	if !ok {
		return ErrNotOpen
	}
	if err := fs.commitWriteSector(cur); err != nil {
		return err
	}
	delete(fs.openWriters, h)
	return nil
}
