package flogfs

import "github.com/dark0711/flogfs/internal/types"

// inodeIterator walks every inode slot in chain order. It does not
// stop on end-of-chain; callers detect termination by reading an
// allocation record whose FileID == FLOGFileIDInvalid.
//
// Reference: spec.md §4.1 (Inode iterator).
type inodeIterator struct {
	block     types.BlockIdx
	nextBlock types.BlockIdx
	inodeIdx  uint32
	sector    uint32
}

// initInodeIterator positions the cursor at the first entry sector of
// inode0, reading its tail-sector link.
func (fs *FS) initInodeIterator(inode0 types.BlockIdx) (inodeIterator, error) {
	it := inodeIterator{block: inode0, inodeIdx: 0, sector: types.FirstInodeEntrySector()}
	next, err := fs.readInodeTail(inode0)
	if err != nil {
		return it, err
	}
	it.nextBlock = next
	return it, nil
}

// next advances the cursor by one inode entry (two sectors), following
// the chain to the next block when the current block is exhausted. A
// chain whose last block is completely full parks the cursor on a
// synthetic end position (block == FLOG_BLOCK_IDX_INVALID), from which
// readInodeAllocation reports an unprogrammed entry without touching
// flash.
func (fs *FS) nextInodeIterator(it inodeIterator) (inodeIterator, error) {
	it.sector += 2
	it.inodeIdx++
	if it.sector >= types.SectorsPerBlock {
		if it.nextBlock == types.FLOGBlockIdxInvalid {
			it.block = types.FLOGBlockIdxInvalid
			it.sector = types.FirstInodeEntrySector()
			return it, nil
		}
		it.block = it.nextBlock
		next, err := fs.readInodeTail(it.block)
		if err != nil {
			return it, err
		}
		it.nextBlock = next
		it.sector = types.FirstInodeEntrySector()
	}
	return it, nil
}

// readInodeTail reads the next_block link out of the tail sector of
// the given inode block.
func (fs *FS) readInodeTail(block types.BlockIdx) (types.BlockIdx, error) {
	if err := fs.cache.openPage(block, 0); err != nil {
		return types.FLOGBlockIdxInvalid, err
	}
	buf := make([]byte, types.SizeInodeTailRecord)
	if err := fs.flash.ReadSector(buf, types.FLOGInodeTailSector, 0, types.SizeInodeTailRecord); err != nil {
		return types.FLOGBlockIdxInvalid, err
	}
	return types.DecodeInodeTailRecord(buf).NextBlock, nil
}

// readInodeAllocation reads the allocation-record half of the inode
// entry the iterator currently points at.
func (fs *FS) readInodeAllocation(it inodeIterator) (types.InodeAllocationRecord, error) {
	if it.block == types.FLOGBlockIdxInvalid {
		return types.InodeAllocationRecord{
			FileID:     types.FLOGFileIDInvalid,
			FirstBlock: types.FLOGBlockIdxInvalid,
			Timestamp:  types.FLOGTimestampInvalid,
		}, nil
	}
	if err := fs.cache.openSector(it.block, it.sector); err != nil {
		return types.InodeAllocationRecord{}, err
	}
	buf := make([]byte, types.SizeInodeAllocationRecord)
	if err := fs.flash.ReadSector(buf, it.sector, 0, types.SizeInodeAllocationRecord); err != nil {
		return types.InodeAllocationRecord{}, err
	}
	return types.DecodeInodeAllocationRecord(buf), nil
}

// readInodeInvalidation reads the invalidation-record half of the
// inode entry the iterator currently points at.
func (fs *FS) readInodeInvalidation(it inodeIterator) (types.InodeInvalidationRecord, error) {
	sector := it.sector + 1
	if err := fs.cache.openSector(it.block, sector); err != nil {
		return types.InodeInvalidationRecord{}, err
	}
	buf := make([]byte, types.SizeInodeInvalidationRecord)
	if err := fs.flash.ReadSector(buf, sector, 0, types.SizeInodeInvalidationRecord); err != nil {
		return types.InodeInvalidationRecord{}, err
	}
	return types.DecodeInodeInvalidationRecord(buf), nil
}
