package flogfs

import (
	"testing"

	"github.com/dark0711/flogfs/internal/flash"
	"github.com/dark0711/flogfs/internal/fslock"
	"github.com/dark0711/flogfs/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatThenMountFreshMediumHasNoFiles(t *testing.T) {
	fs := newTestFS(t, smallGeometry(8), flash.Config{})

	files, err := fs.List()
	require.NoError(t, err)
	assert.Empty(t, files, "a freshly formatted medium should carry no live files")
}

func TestMountRequiresInode0(t *testing.T) {
	geo := smallGeometry(8)
	sim := newTestSim(geo, flash.Config{})

	fs := New(geo, sim, fslock.New(), nil)
	require.NoError(t, fs.Init())

	// Never formatted: every block reads back erased, so mount cannot
	// find a RoleInode block at all, let alone inode0.
	err := fs.Mount()
	assert.ErrorIs(t, err, ErrFailure)
}

func TestMountToleratesBadBlocks(t *testing.T) {
	geo := smallGeometry(8)
	fs := newTestFS(t, geo, flash.Config{
		BadBlocks: []types.BlockIdx{2, 5},
	})

	for i := 0; i < 4; i++ {
		h, err := fs.OpenWrite(fileName(i))
		require.NoError(t, err)
		_, err = fs.Write(h, []byte("payload"))
		require.NoError(t, err)
		require.NoError(t, fs.CloseWrite(h))
	}

	files, err := fs.List()
	require.NoError(t, err)
	assert.Len(t, files, 4)
}

func TestMountPublishesFilesystemInfo(t *testing.T) {
	fs := newTestFS(t, smallGeometry(8), flash.Config{})

	info, err := fs.Info()
	require.NoError(t, err)
	assert.Equal(t, fs.inode0, info.Inode0)
	assert.Equal(t, types.FileID(0), info.NumFiles)
	assert.Equal(t, types.BlockIdx(7), info.NumFreeBlocks, "every block but inode0 starts free")

	writeFile(t, fs, "one.txt", []byte("x"))

	info, err = fs.Info()
	require.NoError(t, err)
	assert.Equal(t, types.FileID(1), info.NumFiles)
	assert.Equal(t, types.BlockIdx(6), info.NumFreeBlocks)
	assert.Greater(t, info.Clock, types.Timestamp(0))
}

// TestFormatPlacesInode0OnFirstGoodBlock covers the degenerate medium
// where block 0 itself is bad: format falls back to the lowest-indexed
// good block, and mount still finds the chain head by scan.
func TestFormatPlacesInode0OnFirstGoodBlock(t *testing.T) {
	geo := smallGeometry(8)
	fs := newTestFS(t, geo, flash.Config{
		BadBlocks: []types.BlockIdx{0},
	})

	assert.Equal(t, types.BlockIdx(1), fs.inode0)

	writeFile(t, fs, "survivor.txt", []byte("still here"))
	assert.Equal(t, []byte("still here"), readFile(t, fs, "survivor.txt"))
}

func fileName(i int) string {
	return string(rune('a'+i)) + ".txt"
}
