package flogfs

import (
	"testing"

	"github.com/dark0711/flogfs/internal/flash"
	"github.com/dark0711/flogfs/internal/fslock"
	"github.com/dark0711/flogfs/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// findInodeEntry walks the live chain for name and returns its iterator
// position (so a test can poke at the exact sectors mount pass 2 would
// read) and decoded allocation record.
func findInodeEntry(t *testing.T, fs *FS, name string) (inodeIterator, types.InodeAllocationRecord) {
	t.Helper()
	nameBytes, err := encodeFilename(name)
	require.NoError(t, err)

	it, err := fs.initInodeIterator(fs.inode0)
	require.NoError(t, err)
	for {
		alloc, err := fs.readInodeAllocation(it)
		require.NoError(t, err)
		require.NotEqual(t, types.FLOGFileIDInvalid, alloc.FileID, "entry %q not found in inode chain", name)
		if alloc.Filename == nameBytes {
			return it, alloc
		}
		it, err = fs.nextInodeIterator(it)
		require.NoError(t, err)
	}
}

func blockRole(t *testing.T, fs *FS, block types.BlockIdx) types.BlockRole {
	t.Helper()
	require.NoError(t, fs.cache.openPage(block, 0))
	spareBuf := make([]byte, types.SizeInodeSector0Spare)
	require.NoError(t, fs.flash.ReadSpare(spareBuf, 0))
	return types.BlockRole(spareBuf[0])
}

// isFree reports whether role is what mount pass 1's block census would
// count as free: an erased block's spare reads back all-ones, which
// matches neither RoleInode nor RoleFile, so that (and not a literally
// stored RoleUnallocated byte) is what "free" looks like on disk.
func isFree(role types.BlockRole) bool {
	return role != types.RoleInode && role != types.RoleFile
}

// TestMountRepairsDanglingAllocation reproduces the crash window
// between a file tail's commit and its successor block's header write
// (spec.md §4.5 steps 2/3): the predecessor's tail record announces a
// successor that was claimed but never initialized. Mount must detect
// this on the next run and finish initializing it rather than leaving
// the chain pointing at a block mount pass 1 would otherwise treat as
// free.
func TestMountRepairsDanglingAllocation(t *testing.T) {
	geo := smallGeometry(4)
	sim := newTestSim(geo, flash.Config{})

	fs := New(geo, sim, fslock.New(), nil)
	require.NoError(t, fs.Init())
	require.NoError(t, fs.Format())
	require.NoError(t, fs.Mount())

	writeFile(t, fs, "victim.txt", []byte("hello"))
	_, alloc := findInodeEntry(t, fs, "victim.txt")

	succBlock, succAge, err := fs.claimBlock()
	require.NoError(t, err)

	announcedTS := fs.t
	fs.t++
	require.NoError(t, fs.cache.openSector(alloc.FirstBlock, types.FLOGFileTailSector))
	tail := types.EncodeFileTailRecord(types.FileTailRecord{
		NextBlock: succBlock,
		NextAge:   succAge,
		Timestamp: announcedTS,
	})
	require.NoError(t, fs.flash.WriteSector(tail, types.FLOGFileTailSector, 0, types.SizeFileTailRecord))
	require.NoError(t, fs.flash.Commit())
	fs.cache.invalidate()

	// succBlock now looks, to a fresh scan, exactly like a block claimed
	// and erased but never stamped with its file header: the crash
	// window recoverAllocation exists to close.
	require.True(t, isFree(blockRole(t, fs, succBlock)))

	fs2 := remount(t, geo, sim)

	require.False(t, isFree(blockRole(t, fs2, succBlock)))
	assert.Equal(t, types.RoleFile, blockRole(t, fs2, succBlock))
	require.NoError(t, fs2.cache.openPage(succBlock, 0))
	hdrBuf := make([]byte, types.SizeFileSector0Header)
	require.NoError(t, fs2.flash.ReadSector(hdrBuf, 0, 0, types.SizeFileSector0Header))
	hdr := types.DecodeFileSector0Header(hdrBuf)
	assert.Equal(t, alloc.FileID, hdr.FileID)
	assert.Equal(t, succAge, hdr.Age)

	// The original data is untouched; the file still reads back intact.
	assert.Equal(t, []byte("hello"), readFile(t, fs2, "victim.txt"))
}

// TestRecoverAllocationAcrossGenuinePowerLoss drives the same crash
// window as TestMountRepairsDanglingAllocation through the real write
// path instead of hand-authoring the on-disk state: a write that fills
// a data block exactly is truncated, via flash.Config.MaxCommits, right
// after advanceWriteSector's predecessor-tail commit and right before
// its successor-header commit. This is spec.md §8 Scenario 3 end to
// end: OpenWrite/Write reach the real crash window on their own, and
// Mount repairs it on the next attach.
func TestRecoverAllocationAcrossGenuinePowerLoss(t *testing.T) {
	geo := smallGeometry(4)

	var blockPayload int
	for s := uint32(0); s <= lastDataSector; s++ {
		blockPayload += int(sectorCapacity(s))
	}
	content := make([]byte, blockPayload)
	for i := range content {
		content[i] = byte(i)
	}

	// Dry run over an uncapped medium: the operation sequence from a
	// fresh format is deterministic, so the commit count it ends on is
	// the same count the capped run below will reach.
	dryRunSim := newTestSim(geo, flash.Config{})
	dryRun := New(geo, dryRunSim, fslock.New(), nil)
	require.NoError(t, dryRun.Init())
	require.NoError(t, dryRun.Format())
	require.NoError(t, dryRun.Mount())
	h, err := dryRun.OpenWrite("boundary.txt")
	require.NoError(t, err)
	n, err := dryRun.Write(h, content)
	require.NoError(t, err)
	require.Equal(t, len(content), n)
	totalCommits := dryRunSim.CommitCount()

	// Cap the live run one commit short: the predecessor's tail record
	// lands, the successor's header never does.
	sim := newTestSim(geo, flash.Config{MaxCommits: totalCommits - 1})
	fs := New(geo, sim, fslock.New(), nil)
	require.NoError(t, fs.Init())
	require.NoError(t, fs.Format())
	require.NoError(t, fs.Mount())

	h2, err := fs.OpenWrite("boundary.txt")
	require.NoError(t, err)
	_, alloc := findInodeEntry(t, fs, "boundary.txt")

	_, err = fs.Write(h2, content)
	require.Error(t, err, "the capped medium must lose the successor's header commit")

	// The predecessor's tail commit did land, so it already names the
	// successor block and age mount recovery must reconstruct.
	require.NoError(t, fs.cache.openSector(alloc.FirstBlock, types.FLOGFileTailSector))
	predTailBuf := make([]byte, types.SizeFileTailRecord)
	require.NoError(t, fs.flash.ReadSector(predTailBuf, types.FLOGFileTailSector, 0, types.SizeFileTailRecord))
	predTail := types.DecodeFileTailRecord(predTailBuf)
	require.False(t, predTail.Pending(), "the predecessor's tail commit must have landed")
	succBlock, succAge := predTail.NextBlock, predTail.NextAge
	require.True(t, isFree(blockRole(t, fs, succBlock)), "successor must still look unclaimed before recovery")

	// Power comes back; recovery's own commits must not hit the cap.
	sim.SetMaxCommits(0)
	fs2 := remount(t, geo, sim)

	require.Equal(t, types.RoleFile, blockRole(t, fs2, succBlock))
	require.NoError(t, fs2.cache.openPage(succBlock, 0))
	hdrBuf := make([]byte, types.SizeFileSector0Header)
	require.NoError(t, fs2.flash.ReadSector(hdrBuf, 0, 0, types.SizeFileSector0Header))
	hdr := types.DecodeFileSector0Header(hdrBuf)
	assert.Equal(t, alloc.FileID, hdr.FileID)
	assert.Equal(t, succAge, hdr.Age)

	assert.Equal(t, content, readFile(t, fs2, "boundary.txt"))
}

// TestOpenWriteCrashBeforeFirstBlockInitIsRepairedAtMount drives the
// symmetric window in file creation: the inode allocation record
// commits, the first data block's header never does. The next mount
// must treat the live entry as the most recent allocation and
// re-initialize the block it names, leaving a readable empty file.
func TestOpenWriteCrashBeforeFirstBlockInitIsRepairedAtMount(t *testing.T) {
	geo := smallGeometry(4)

	dryRunSim := newTestSim(geo, flash.Config{})
	dryRun := New(geo, dryRunSim, fslock.New(), nil)
	require.NoError(t, dryRun.Init())
	require.NoError(t, dryRun.Format())
	require.NoError(t, dryRun.Mount())
	_, err := dryRun.OpenWrite("fresh.txt")
	require.NoError(t, err)
	totalCommits := dryRunSim.CommitCount()

	sim := newTestSim(geo, flash.Config{MaxCommits: totalCommits - 1})
	fs := New(geo, sim, fslock.New(), nil)
	require.NoError(t, fs.Init())
	require.NoError(t, fs.Format())
	require.NoError(t, fs.Mount())
	_, err = fs.OpenWrite("fresh.txt")
	require.Error(t, err, "the capped medium must lose the first block's header commit")

	sim.SetMaxCommits(0)
	fs2 := remount(t, geo, sim)

	_, alloc := findInodeEntry(t, fs2, "fresh.txt")
	assert.Equal(t, types.RoleFile, blockRole(t, fs2, alloc.FirstBlock))
	assert.Empty(t, readFile(t, fs2, "fresh.txt"))
}

// TestEnsureInodeBlockFinishesInterruptedExtension authors the crash
// window inside extendInodeChain: the predecessor's link committed, the
// successor's inode header never did. The walker treats the untagged
// successor as end-of-chain, and the next open_write's crossing is what
// finishes initializing it.
func TestEnsureInodeBlockFinishesInterruptedExtension(t *testing.T) {
	geo := smallGeometry(4)
	sim := newTestSim(geo, flash.Config{})
	fs := New(geo, sim, fslock.New(), nil)
	require.NoError(t, fs.Init())
	require.NoError(t, fs.Format())
	require.NoError(t, fs.Mount())

	succ, _, err := fs.claimBlock()
	require.NoError(t, err)
	require.NoError(t, fs.cache.openPage(fs.inode0, 0))
	link := types.EncodeInodeTailRecord(types.InodeTailRecord{NextBlock: succ})
	require.NoError(t, fs.flash.WriteSector(link, types.FLOGInodeTailSector, 0, types.SizeInodeTailRecord))
	require.NoError(t, fs.flash.Commit())
	fs.cache.invalidate()

	require.True(t, isFree(blockRole(t, fs, succ)))

	require.NoError(t, fs.ensureInodeBlock(fs.inode0, succ))

	assert.Equal(t, types.RoleInode, blockRole(t, fs, succ))
	next, err := fs.readInodeTail(succ)
	require.NoError(t, err)
	assert.Equal(t, types.FLOGBlockIdxInvalid, next, "a freshly repaired chain block links nowhere yet")

	// The repaired block is a fully usable chain node.
	writeFile(t, fs, "after-repair.txt", []byte("ok"))
	assert.Equal(t, []byte("ok"), readFile(t, fs, "after-repair.txt"))
}

// TestMountFinishesStalledDeletion reproduces a crash between Remove's
// invalidation-record commit and the chain-erase that follows it: the
// inode entry is already marked deleted, but the data block it pointed
// to was never actually erased. Mount must finish the erase so the
// block returns to the free pool and the file stays gone.
func TestMountFinishesStalledDeletion(t *testing.T) {
	geo := smallGeometry(4)
	sim := newTestSim(geo, flash.Config{})

	fs := New(geo, sim, fslock.New(), nil)
	require.NoError(t, fs.Init())
	require.NoError(t, fs.Format())
	require.NoError(t, fs.Mount())

	writeFile(t, fs, "doomed.txt", []byte("secret"))
	it, alloc := findInodeEntry(t, fs, "doomed.txt")

	lastBlock, err := fs.findFileTailBlock(alloc.FirstBlock, alloc.FileID)
	require.NoError(t, err)

	ts := fs.t
	fs.t++
	require.NoError(t, fs.cache.openSector(it.block, it.sector+1))
	inval := types.EncodeInodeInvalidationRecord(types.InodeInvalidationRecord{
		LastBlock: lastBlock,
		Timestamp: ts,
	})
	require.NoError(t, fs.flash.WriteSector(inval, it.sector+1, 0, types.SizeInodeInvalidationRecord))
	require.NoError(t, fs.flash.Commit())
	fs.cache.invalidate()

	// The deletion is recorded, but the data block was never touched:
	// exactly the state a crash between deleteEntry's two writes leaves.
	assert.Equal(t, types.RoleFile, blockRole(t, fs, alloc.FirstBlock))

	fs2 := remount(t, geo, sim)

	assert.True(t, isFree(blockRole(t, fs2, alloc.FirstBlock)))

	_, err = fs2.OpenRead("doomed.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	files, err := fs2.List()
	require.NoError(t, err)
	assert.Empty(t, files)
}
