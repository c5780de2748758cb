package flogfs

import (
	"fmt"

	"github.com/dark0711/flogfs/internal/types"
)

// readCursor is the per-open-file state of spec.md §4.6: the current
// data block/sector, how many payload bytes of that sector have been
// consumed, and the sector's total valid byte count from its spare.
type readCursor struct {
	fileID         types.FileID
	block          types.BlockIdx
	sector         uint32
	consumed       uint32
	nbytesInSector uint16
	eof            bool
}

// OpenRead walks the inode chain for a live entry named name and
// returns a handle positioned at the start of its data.
//
// Reference: spec.md §4.6 (File read state machine).
func (fs *FS) OpenRead(name string) (Handle, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.flash.Lock()
	defer fs.flash.Unlock()

	if !fs.mounted {
		return 0, fmt.Errorf("%w: open_read: filesystem not mounted", ErrFailure)
	}

	nameBytes, err := encodeFilename(name)
	if err != nil {
		return 0, err
	}

	it, err := fs.initInodeIterator(fs.inode0)
	if err != nil {
		return 0, fmt.Errorf("%w: open_read: init inode iterator: %v", ErrFailure, err)
	}
	for {
		alloc, err := fs.readInodeAllocation(it)
		if err != nil {
			return 0, fmt.Errorf("%w: open_read: reading inode allocation: %v", ErrFailure, err)
		}
		if alloc.FileID == types.FLOGFileIDInvalid {
			return 0, ErrNotFound
		}
		if alloc.Filename == nameBytes {
			inval, err := fs.readInodeInvalidation(it)
			if err != nil {
				return 0, fmt.Errorf("%w: open_read: reading inode invalidation: %v", ErrFailure, err)
			}
			if inval.Live() {
				return fs.startRead(alloc)
			}
		}
		it, err = fs.nextInodeIterator(it)
		if err != nil {
			return 0, fmt.Errorf("%w: open_read: advancing inode iterator: %v", ErrFailure, err)
		}
	}
}

// startRead opens the first block of alloc's chain and positions a new
// cursor at the start of its data, per spec.md §4.6: sector 0's spare
// nbytes tells us whether any payload exists there yet. A freshly
// created, still-empty file (nbytes == 0) reads back as zero bytes then
// EOF.
func (fs *FS) startRead(alloc types.InodeAllocationRecord) (Handle, error) {
	if err := fs.cache.openPage(alloc.FirstBlock, 0); err != nil {
		return 0, fmt.Errorf("%w: open_read: opening first block: %v", ErrFailure, err)
	}
	spareBuf := make([]byte, types.SizeFileSectorSpare)
	if err := fs.flash.ReadSpare(spareBuf, 0); err != nil {
		return 0, fmt.Errorf("%w: open_read: reading first block spare: %v", ErrFailure, err)
	}
	nbytes := types.DecodeFileSectorSpare(spareBuf).NBytes

	cur := &readCursor{
		fileID:         alloc.FileID,
		block:          alloc.FirstBlock,
		sector:         0,
		consumed:       0,
		nbytesInSector: nbytes,
		eof:            nbytes == 0,
	}

	fs.nextHandle++
	h := fs.nextHandle
	fs.openReaders[h] = cur
	return h, nil
}

// Read copies up to len(dst) bytes from the file identified by h,
// returning the number of bytes read. It returns ErrEOF once every
// byte has been consumed.
//
// Reference: spec.md §4.6.
func (fs *FS) Read(h Handle, dst []byte) (int, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.flash.Lock()
	defer fs.flash.Unlock()

	cur, ok := fs.openReaders[h]
	if !ok {
		return 0, ErrNotOpen
	}

	total := 0
	for total < len(dst) {
		if cur.consumed >= uint32(cur.nbytesInSector) {
			if cur.eof {
				break
			}
			if err := fs.advanceReadSector(cur); err != nil {
				return total, err
			}
			continue
		}
		if err := fs.cache.openSector(cur.block, cur.sector); err != nil {
			return total, fmt.Errorf("%w: read: opening sector: %v", ErrFailure, err)
		}
		avail := uint32(cur.nbytesInSector) - cur.consumed
		want := uint32(len(dst) - total)
		n := avail
		if want < n {
			n = want
		}
		payloadOff := sectorPayloadOffset(cur.sector) + cur.consumed
		if err := fs.flash.ReadSector(dst[total:total+int(n)], cur.sector, payloadOff, n); err != nil {
			return total, fmt.Errorf("%w: read: reading sector payload: %v", ErrFailure, err)
		}
		total += int(n)
		cur.consumed += n
	}

	if total == 0 && cur.eof {
		return 0, ErrEOF
	}
	return total, nil
}

// advanceReadSector moves cur to the next sector, following the tail
// link across a block boundary when the current block's last data
// sector is exhausted. A sector whose nbytes is less than its capacity
// is the file's last sector: EOF follows immediately once it is
// consumed (spec.md §4.6, I3).
func (fs *FS) advanceReadSector(cur *readCursor) error {
	if uint32(cur.nbytesInSector) < sectorCapacity(cur.sector) {
		cur.eof = true
		return nil
	}

	if cur.sector == lastDataSector {
		if err := fs.cache.openSector(cur.block, types.FLOGFileTailSector); err != nil {
			return fmt.Errorf("%w: read: opening tail sector: %v", ErrFailure, err)
		}
		tailBuf := make([]byte, types.SizeFileTailRecord)
		if err := fs.flash.ReadSector(tailBuf, types.FLOGFileTailSector, 0, types.SizeFileTailRecord); err != nil {
			return fmt.Errorf("%w: read: reading tail sector: %v", ErrFailure, err)
		}
		tail := types.DecodeFileTailRecord(tailBuf)
		if tail.NextBlock == types.FLOGBlockIdxInvalid {
			cur.eof = true
			return nil
		}
		cur.block = tail.NextBlock
		cur.sector = 0
	} else {
		cur.sector++
	}

	if err := fs.cache.openSector(cur.block, cur.sector); err != nil {
		return fmt.Errorf("%w: read: opening next sector: %v", ErrFailure, err)
	}
	spareBuf := make([]byte, types.SizeFileSectorSpare)
	if err := fs.flash.ReadSpare(spareBuf, cur.sector); err != nil {
		return fmt.Errorf("%w: read: reading next sector spare: %v", ErrFailure, err)
	}
	cur.nbytesInSector = types.DecodeFileSectorSpare(spareBuf).NBytes
	cur.consumed = 0
	return nil
}

// CloseRead releases a read handle.
//
// Reference: spec.md §6 "close_read(handle)".
func (fs *FS) CloseRead(h Handle) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if _, ok := fs.openReaders[h]; !ok {
		return ErrNotOpen
	}
	delete(fs.openReaders, h)
	return nil
}
