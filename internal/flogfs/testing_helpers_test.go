package flogfs

import (
	"testing"

	"github.com/dark0711/flogfs/internal/flash"
	"github.com/dark0711/flogfs/internal/fslock"
	"github.com/dark0711/flogfs/internal/types"
	"github.com/stretchr/testify/require"
)

// smallGeometry keeps the block count low so tests exhaust free space
// quickly, without touching FSPagesPerBlock/FSSectorsPerPage: those two
// fix SectorsPerBlock and every reserved-sector-index constant in
// internal/types, so only the block count is safe to vary per test.
func smallGeometry(numBlocks uint32) Geometry {
	return Geometry{
		NumBlocks:      numBlocks,
		PagesPerBlock:  types.FSPagesPerBlock,
		SectorsPerPage: types.FSSectorsPerPage,
	}
}

// newTestSim builds a simulated medium matching geo's layout.
func newTestSim(geo Geometry, flashCfg flash.Config) *flash.SimFlash {
	flashCfg.NumBlocks = geo.NumBlocks
	flashCfg.PagesPerBlock = geo.PagesPerBlock
	flashCfg.SectorsPerPage = geo.SectorsPerPage
	if flashCfg.SectorSize == 0 {
		flashCfg.SectorSize = types.SectorSize
	}
	return flash.New(flashCfg, nil)
}

// newTestFS builds a freshly formatted and mounted FS over a new
// simulated medium of the given geometry and fault-injection config.
func newTestFS(t *testing.T, geo Geometry, flashCfg flash.Config) *FS {
	t.Helper()
	sim := newTestSim(geo, flashCfg)
	fs := New(geo, sim, fslock.New(), nil)
	require.NoError(t, fs.Init())
	require.NoError(t, fs.Format())
	require.NoError(t, fs.Mount())
	return fs
}

// remount simulates a fresh process re-attaching to the same medium
// after a crash: a new FS value, new lock, same underlying flash.
func remount(t *testing.T, geo Geometry, sim *flash.SimFlash) *FS {
	t.Helper()
	fs := New(geo, sim, fslock.New(), nil)
	require.NoError(t, fs.Init())
	require.NoError(t, fs.Mount())
	return fs
}
