package flogfs

import "github.com/dark0711/flogfs/internal/types"

// allocator implements interfaces.BlockAllocator. It tracks, for every
// block on the medium, whether it is currently free and its last known
// age, and picks the least-worn free block on each allocation — the
// wear-leveling direction spec.md §9 confirms as the intended policy
// despite the original source's misleading comment ("pick the
// freshest") actually implementing minimum-age selection.
//
// Reference: spec.md §4.4 (Block allocator), §9 "Wear-leveling policy".
type allocator struct {
	numBlocks  uint32
	free       []bool
	age        []types.BlockAge
	numFree    types.BlockIdx
	ageFloor   types.BlockAge // global minimum age observed at mount
	startPoint types.BlockIdx // seed for the next linear scan
}

func newAllocator(numBlocks uint32) *allocator {
	return &allocator{
		numBlocks: numBlocks,
		free:      make([]bool, numBlocks),
		age:       make([]types.BlockAge, numBlocks),
	}
}

// markBad permanently excludes a block from allocation without
// counting it as free; used by mount's block census for manufacturer
// bad blocks.
func (a *allocator) markBad(block types.BlockIdx) {
	a.free[block] = false
}

// seed is called once, by mount's pass 1/pass 2 scan, to initialize
// the free set and age table from observed on-disk state.
func (a *allocator) seed(block types.BlockIdx, free bool, age types.BlockAge) {
	a.free[block] = free
	a.age[block] = age
	if free {
		a.numFree++
	}
}

// setAgeFloor records the minimum age seen among never-yet-reused free
// blocks, used by AllocateBlock's first-preference rule.
func (a *allocator) setAgeFloor(floor types.BlockAge) {
	a.ageFloor = floor
}

// AllocateBlock implements interfaces.BlockAllocator.
//
// Policy (spec.md §4.4):
//  1. Prefer a completely unused block at or below the global age
//     floor.
//  2. Otherwise scan the age table and pick the least-aged
//     UNALLOCATED block.
//
// Ties go to the first candidate in scan order. The scan starts from
// pickStartPoint() rather than always block 0 and wraps past the last
// block, so repeated allocations amortize instead of re-scanning the
// whole medium each call (spec.md §9, `flog_pick_start_point`). Ties
// therefore break on ascending index from the start point, not on
// absolute block index: a lower-indexed block lying before the start
// point loses a tie.
func (a *allocator) AllocateBlock() (types.BlockIdx, bool) {
	if a.numFree == 0 {
		return 0, false
	}

	best := types.FLOGBlockIdxInvalid
	var bestAge types.BlockAge

	start := a.pickStartPoint()
	for i := uint32(0); i < a.numBlocks; i++ {
		b := types.BlockIdx((uint32(start) + i) % a.numBlocks)
		if !a.free[b] {
			continue
		}
		if best == types.FLOGBlockIdxInvalid || a.age[b] < bestAge {
			best = b
			bestAge = a.age[b]
			if bestAge <= a.ageFloor {
				// Nothing will ever beat a block at or below the
				// observed floor; stop scanning early.
				break
			}
		}
	}
	if best == types.FLOGBlockIdxInvalid {
		return 0, false
	}
	return best, true
}

// pickStartPoint returns the index the allocator's linear scan should
// begin from. Seeding from the block most recently allocated (rather
// than always 0) bounds the amortized scan cost; this contract is
// inferred (spec.md §9 flags the original `flog_pick_start_point` stub
// as needing confirmation against author notes).
func (a *allocator) pickStartPoint() types.BlockIdx {
	return (a.startPoint + 1) % types.BlockIdx(a.numBlocks)
}

// NoteAllocated implements interfaces.BlockAllocator.
func (a *allocator) NoteAllocated(block types.BlockIdx, age types.BlockAge) {
	a.free[block] = false
	a.age[block] = age
	a.numFree--
	a.startPoint = block
}

// NoteFreed implements interfaces.BlockAllocator.
func (a *allocator) NoteFreed(block types.BlockIdx, age types.BlockAge) {
	a.free[block] = true
	a.age[block] = age
	a.numFree++
}

// BlockAge implements interfaces.BlockAllocator.
func (a *allocator) BlockAge(block types.BlockIdx) types.BlockAge {
	return a.age[block]
}

// NumFreeBlocks implements interfaces.BlockAllocator.
func (a *allocator) NumFreeBlocks() types.BlockIdx {
	return a.numFree
}
