package flogfs

import (
	"fmt"
	"strings"

	"github.com/dark0711/flogfs/internal/types"
)

// FileInfo summarizes one live entry in the inode chain, for callers
// that need to enumerate the namespace (the CLI's `ls`/`fsck`); the
// core read/write/remove operations never need this themselves.
type FileInfo struct {
	Name       string
	FileID     types.FileID
	FirstBlock types.BlockIdx
	Timestamp  types.Timestamp
}

// List walks the entire inode chain and returns every currently live
// file, in chain order.
//
// Reference: SPEC_FULL.md §1 "cmd/flogfs" (supplemented; spec.md itself
// names no enumeration operation, only named-file open/remove).
func (fs *FS) List() ([]FileInfo, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.flash.Lock()
	defer fs.flash.Unlock()

	if !fs.mounted {
		return nil, fmt.Errorf("%w: list: filesystem not mounted", ErrFailure)
	}

	var out []FileInfo
	it, err := fs.initInodeIterator(fs.inode0)
	if err != nil {
		return nil, fmt.Errorf("%w: list: init inode iterator: %v", ErrFailure, err)
	}
	for {
		alloc, err := fs.readInodeAllocation(it)
		if err != nil {
			return nil, fmt.Errorf("%w: list: reading inode allocation: %v", ErrFailure, err)
		}
		if alloc.FileID == types.FLOGFileIDInvalid {
			break
		}
		inval, err := fs.readInodeInvalidation(it)
		if err != nil {
			return nil, fmt.Errorf("%w: list: reading inode invalidation: %v", ErrFailure, err)
		}
		if inval.Live() {
			name := strings.TrimRight(string(alloc.Filename[:]), "\x00")
			out = append(out, FileInfo{
				Name:       name,
				FileID:     alloc.FileID,
				FirstBlock: alloc.FirstBlock,
				Timestamp:  alloc.Timestamp,
			})
		}
		it, err = fs.nextInodeIterator(it)
		if err != nil {
			return nil, fmt.Errorf("%w: list: advancing inode iterator: %v", ErrFailure, err)
		}
	}
	return out, nil
}
