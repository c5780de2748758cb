package flogfs

import (
	"github.com/dark0711/flogfs/internal/interfaces"
	"github.com/dark0711/flogfs/internal/types"
)

// sectorCache is the single-entry page cache of spec.md §4.2. Opening
// a NAND page is expensive relative to reading a sector inside it, and
// many operations target one page (spare + data of the same sector,
// adjacent sector pairs); openSector is a no-op when the requested
// sector already lives in the currently open page.
type sectorCache struct {
	flash interfaces.FlashDriver

	valid bool
	block types.BlockIdx
	page  uint32
	err   error
}

func newSectorCache(flash interfaces.FlashDriver) *sectorCache {
	return &sectorCache{flash: flash}
}

func (c *sectorCache) pageOf(sector uint32) uint32 {
	return sector / types.FSSectorsPerPage
}

// openSector translates (block, sector) to the containing page and
// opens it, reusing the last result if the same page is already open.
//
// Reference: spec.md §4.2.
func (c *sectorCache) openSector(block types.BlockIdx, sector uint32) error {
	return c.openPage(block, c.pageOf(sector))
}

// openPage opens the given page directly, used by callers that only
// need sector 0 of a block (mount scan, inode-chain walks).
func (c *sectorCache) openPage(block types.BlockIdx, page uint32) error {
	if c.valid && c.block == block && c.page == page {
		return c.err
	}
	c.err = c.flash.OpenPage(block, page)
	c.valid = true
	c.block = block
	c.page = page
	return c.err
}

// invalidate forces the next openSector/openPage to reopen, even if it
// targets the same page. Called after any write-commit or erase, per
// spec.md §4.2 "Invalidation is explicit on any write-commit or erase."
func (c *sectorCache) invalidate() {
	c.valid = false
	c.flash.ClosePage()
}
