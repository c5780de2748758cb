// Package flogfs implements the core of a log-structured filesystem
// for raw NAND flash: block tagging and chaining, inode table
// traversal, mount-time reconstruction from a full flash scan,
// recovery of partial allocations and deletions, wear-leveled block
// allocation, and append-only file read/write state machines.
//
// Reference: spec.md §1 (Purpose & Scope).
package flogfs

import (
	"fmt"

	"github.com/dark0711/flogfs/internal/interfaces"
	"github.com/dark0711/flogfs/internal/types"
)

// Handle identifies one open read or write cursor. The caller owns the
// handle's lifetime; FS tracks open cursors only in maps keyed by it,
// never an intrusive link on a caller-owned object. The maps have no
// fixed capacity: the number of open handles is not bounded.
//
// Reference: spec.md §9 "Intrusive open-file lists".
type Handle uint32

// FS is the explicit, caller-owned filesystem-instance value spec.md
// §9 calls for in place of the reference design's hidden module-level
// globals: every field the original `flogfs_t` held is here, and
// thread-safety is a property of the embedded lock rather than of
// hidden state.
//
// Reference: spec.md §9 "Global FS state".
type FS struct {
	flash interfaces.FlashDriver
	lock  interfaces.FSLock
	diag  interfaces.Diagnostics

	numBlocks      uint32
	pagesPerBlock  uint32
	sectorsPerPage uint32

	cache *sectorCache
	alloc *allocator

	inode0      types.BlockIdx
	numFiles    types.FileID
	maxFileID   types.FileID
	maxBlockAge types.BlockAge
	t           types.Timestamp // FS clock
	mounted     bool

	nextHandle  Handle
	openReaders map[Handle]*readCursor
	openWriters map[Handle]*writeCursor
}

// nopDiag discards all diagnostics; used when no Diagnostics sink is
// supplied.
type nopDiag struct{}

func (nopDiag) Warn(string, ...any)  {}
func (nopDiag) Error(string, ...any) {}

// Geometry describes the medium FS is built on. Changing these values
// on an existing image requires a format migration, per spec.md §6.
type Geometry struct {
	NumBlocks      uint32
	PagesPerBlock  uint32
	SectorsPerPage uint32
}

// DefaultGeometry returns the geometry named in spec.md §6.
func DefaultGeometry() Geometry {
	return Geometry{
		NumBlocks:      types.FSNumBlocks,
		PagesPerBlock:  types.FSPagesPerBlock,
		SectorsPerPage: types.FSSectorsPerPage,
	}
}

// New constructs an FS value over the given flash driver and lock. The
// value is unusable until Init and either Format or Mount succeed.
func New(geo Geometry, flash interfaces.FlashDriver, lock interfaces.FSLock, diag interfaces.Diagnostics) *FS {
	if diag == nil {
		diag = nopDiag{}
	}
	return &FS{
		flash:          flash,
		lock:           lock,
		diag:           diag,
		numBlocks:      geo.NumBlocks,
		pagesPerBlock:  geo.PagesPerBlock,
		sectorsPerPage: geo.SectorsPerPage,
		cache:          newSectorCache(flash),
		alloc:          newAllocator(geo.NumBlocks),
		openReaders:    make(map[Handle]*readCursor),
		openWriters:    make(map[Handle]*writeCursor),
	}
}

// FSInfo is a snapshot of the state mount publishes.
//
// Reference: spec.md §4.3 "Mount completes by publishing...".
type FSInfo struct {
	Inode0        types.BlockIdx
	NumFiles      types.FileID
	NumFreeBlocks types.BlockIdx
	MaxBlockAge   types.BlockAge
	Clock         types.Timestamp
}

// Info returns the mounted filesystem's published state.
func (fs *FS) Info() (FSInfo, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if !fs.mounted {
		return FSInfo{}, fmt.Errorf("%w: info: filesystem not mounted", ErrFailure)
	}
	return FSInfo{
		Inode0:        fs.inode0,
		NumFiles:      fs.numFiles,
		NumFreeBlocks: fs.alloc.NumFreeBlocks(),
		MaxBlockAge:   fs.maxBlockAge,
		Clock:         fs.t,
	}, nil
}

// Init prepares the flash driver for use.
//
// Reference: spec.md §6 "init()".
func (fs *FS) Init() error {
	if err := fs.flash.Init(); err != nil {
		return fmt.Errorf("%w: flash init: %v", ErrFailure, err)
	}
	return nil
}

// Format erases every non-bad block and writes a fresh inode0 at the
// lowest-indexed good block (block 0 on a healthy medium), leaving
// every other block UNALLOCATED. Mount locates inode0 by scan, not by
// index, so a bad block 0 only shifts the chain head.
//
// Reference: spec.md §4.8 (Format).
func (fs *FS) Format() error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.flash.Lock()
	defer fs.flash.Unlock()

	fs.mounted = false

	inode0 := types.FLOGBlockIdxInvalid
	for b := types.BlockIdx(0); b < types.BlockIdx(fs.numBlocks); b++ {
		if err := fs.flash.OpenPage(b, 0); err != nil {
			// A block we can't even open page 0 of is treated as bad.
			continue
		}
		if fs.flash.BlockIsBad() {
			continue
		}
		if err := fs.flash.EraseBlock(b); err != nil {
			return fmt.Errorf("%w: erasing block %d: %v", ErrFailure, b, err)
		}
		if inode0 == types.FLOGBlockIdxInvalid {
			inode0 = b
		}
	}
	fs.cache.invalidate()
	if inode0 == types.FLOGBlockIdxInvalid {
		return fmt.Errorf("%w: format: no good block for inode0", ErrFailure)
	}

	if err := fs.cache.openPage(inode0, 0); err != nil {
		return fmt.Errorf("%w: opening inode0: %v", ErrFailure, err)
	}
	sector0 := types.EncodeInodeSector0(types.InodeSector0{Age: 0, Timestamp: 0})
	if err := fs.flash.WriteSector(sector0, 0, 0, types.SizeInodeSector0); err != nil {
		return fmt.Errorf("%w: writing inode0 header: %v", ErrFailure, err)
	}
	spare := types.EncodeInodeSector0Spare(types.InodeSector0Spare{InodeIndex: 0, TypeID: types.RoleInode})
	if err := fs.flash.WriteSpare(spare, 0); err != nil {
		return fmt.Errorf("%w: writing inode0 spare: %v", ErrFailure, err)
	}
	// The tail link stays erased (reading as FLOGBlockIdxInvalid) until
	// extendInodeChain programs it.
	if err := fs.flash.Commit(); err != nil {
		return fmt.Errorf("%w: committing inode0: %v", ErrFailure, err)
	}
	fs.cache.invalidate()
	return nil
}
