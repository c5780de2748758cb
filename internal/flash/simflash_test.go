package flash

import (
	"testing"

	"github.com/dark0711/flogfs/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(numBlocks uint32) Config {
	return Config{
		NumBlocks:      numBlocks,
		PagesPerBlock:  types.FSPagesPerBlock,
		SectorsPerPage: types.FSSectorsPerPage,
		SectorSize:     types.SectorSize,
	}
}

func TestNewMediumReadsBackErased(t *testing.T) {
	f := New(testConfig(2), nil)
	require.NoError(t, f.OpenPage(0, 0))
	defer f.ClosePage()

	dst := make([]byte, 8)
	require.NoError(t, f.ReadSector(dst, 0, 0, 8))
	for _, b := range dst {
		assert.Equal(t, byte(0xFF), b)
	}

	spare := make([]byte, 8)
	require.NoError(t, f.ReadSpare(spare, 0))
	for _, b := range spare {
		assert.Equal(t, byte(0xFF), b)
	}
}

func TestWriteSectorEnforcesOneShotProgram(t *testing.T) {
	f := New(testConfig(1), nil)
	require.NoError(t, f.OpenPage(0, 0))
	defer f.ClosePage()

	require.NoError(t, f.WriteSector([]byte("abcd"), 0, 0, 4))

	err := f.WriteSector([]byte("efgh"), 0, 0, 4)
	assert.Error(t, err, "a byte already programmed since the last erase must not be writable again")
}

func TestWriteSectorNonOverlappingRangesBothSucceed(t *testing.T) {
	f := New(testConfig(1), nil)
	require.NoError(t, f.OpenPage(0, 0))
	defer f.ClosePage()

	require.NoError(t, f.WriteSector([]byte("abcd"), 0, 0, 4))
	require.NoError(t, f.WriteSector([]byte("efgh"), 0, 4, 4))

	dst := make([]byte, 8)
	require.NoError(t, f.ReadSector(dst, 0, 0, 8))
	assert.Equal(t, []byte("abcdefgh"), dst)
}

func TestWriteSpareIsNotOneShot(t *testing.T) {
	f := New(testConfig(1), nil)
	require.NoError(t, f.OpenPage(0, 0))
	defer f.ClosePage()

	require.NoError(t, f.WriteSpare([]byte{1, 2, 3}, 0))
	// Unlike WriteSector, WriteSpare never consults the programmed
	// bitmap: spare metadata is rewritten in place by design (a file
	// block's sector-0 spare is written with nbytes 0 when the block is
	// tagged, then again with the sector's final nbytes).
	require.NoError(t, f.WriteSpare([]byte{4, 5, 6}, 0))

	dst := make([]byte, 3)
	require.NoError(t, f.ReadSpare(dst, 0))
	assert.Equal(t, []byte{4, 5, 6}, dst)
}

func TestEraseBlockResetsDataSpareAndProgramBitmap(t *testing.T) {
	f := New(testConfig(1), nil)
	require.NoError(t, f.OpenPage(0, 0))
	require.NoError(t, f.WriteSector([]byte("abcd"), 0, 0, 4))
	require.NoError(t, f.WriteSpare([]byte{9}, 0))
	f.ClosePage()

	require.NoError(t, f.EraseBlock(0))

	require.NoError(t, f.OpenPage(0, 0))
	defer f.ClosePage()

	dst := make([]byte, 4)
	require.NoError(t, f.ReadSector(dst, 0, 0, 4))
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, dst)

	// The one-shot bitmap was cleared too: this range is writable again.
	assert.NoError(t, f.WriteSector([]byte("abcd"), 0, 0, 4))
}

func TestEraseBlockRejectsBadBlock(t *testing.T) {
	cfg := testConfig(2)
	cfg.BadBlocks = []types.BlockIdx{1}
	f := New(cfg, nil)

	assert.Error(t, f.EraseBlock(1))
}

func TestOpenPageRejectsBadBlock(t *testing.T) {
	cfg := testConfig(2)
	cfg.BadBlocks = []types.BlockIdx{1}
	f := New(cfg, nil)

	assert.Error(t, f.OpenPage(1, 0))
}

func TestBlockIsBadReflectsOpenBlock(t *testing.T) {
	cfg := testConfig(2)
	cfg.BadBlocks = []types.BlockIdx{1}
	f := New(cfg, nil)

	require.NoError(t, f.OpenPage(0, 0))
	assert.False(t, f.BlockIsBad())
	f.ClosePage()

	assert.False(t, f.BlockIsBad(), "reports false once no page is open")
}

func TestCommitFailsAfterMaxCommitsSimulatingPowerLoss(t *testing.T) {
	cfg := testConfig(1)
	cfg.MaxCommits = 2
	f := New(cfg, nil)

	require.NoError(t, f.Commit())
	require.NoError(t, f.Commit())
	assert.Error(t, f.Commit(), "the third commit simulates the power loss cutoff")
}

func TestFailedCommitRevertsInFlightWrites(t *testing.T) {
	cfg := testConfig(1)
	cfg.MaxCommits = 1
	f := New(cfg, nil)

	require.NoError(t, f.OpenPage(0, 0))
	require.NoError(t, f.WriteSector([]byte("kept"), 0, 0, 4))
	require.NoError(t, f.WriteSpare([]byte{7}, 0))
	require.NoError(t, f.Commit())

	// The second program never reaches the array: its commit is the
	// power-loss cutoff, so both the data and spare writes revert.
	require.NoError(t, f.WriteSector([]byte("lost"), 1, 0, 4))
	require.NoError(t, f.WriteSpare([]byte{9}, 1))
	require.Error(t, f.Commit())

	dst := make([]byte, 4)
	require.NoError(t, f.ReadSector(dst, 0, 0, 4))
	assert.Equal(t, []byte("kept"), dst)
	require.NoError(t, f.ReadSector(dst, 1, 0, 4))
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, dst)

	spare := make([]byte, 1)
	require.NoError(t, f.ReadSpare(spare, 1))
	assert.Equal(t, []byte{0xFF}, spare)

	// The reverted range's one-shot bitmap was restored too: after the
	// cap is lifted, the same range programs cleanly.
	f.SetMaxCommits(0)
	require.NoError(t, f.WriteSector([]byte("back"), 1, 0, 4))
	require.NoError(t, f.Commit())
	require.NoError(t, f.ReadSector(dst, 1, 0, 4))
	assert.Equal(t, []byte("back"), dst)
}

func TestCommitUnlimitedByDefault(t *testing.T) {
	f := New(testConfig(1), nil)
	for i := 0; i < 50; i++ {
		require.NoError(t, f.Commit())
	}
}
