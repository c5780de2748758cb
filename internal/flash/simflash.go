// Package flash provides a simulated NAND flash driver used by tests
// and by the cmd/flogfs CLI demo. It is the out-of-scope "external
// collaborator" of spec.md §1 — a real device would expose the same
// interfaces.FlashDriver surface, backed by actual page/spare I/O and
// bad-block detection.
//
// Reference: spec.md §6 "Flash driver (consumed)".
package flash

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dark0711/flogfs/internal/interfaces"
	"github.com/dark0711/flogfs/internal/types"
)

// spareSize is the size, in bytes, of the simulated out-of-band spare
// region attached to every page. It only needs to be large enough to
// hold the widest spare record this format defines.
const spareSize = 16

// Config describes the geometry of a simulated medium.
type Config struct {
	NumBlocks      uint32
	PagesPerBlock  uint32
	SectorsPerPage uint32
	SectorSize     uint32

	// BadBlocks lists block indices the simulated device reports as
	// bad; the allocator must never allocate them.
	BadBlocks []types.BlockIdx

	// MaxCommits caps the number of successful Commit calls. Every
	// subsequent Commit fails and reverts the writes it would have
	// flushed, simulating power loss mid-operation for crash recovery
	// tests (spec.md §8 scenarios 3 & 4). Zero means unlimited; see
	// SetMaxCommits for lifting the cap mid-test ("power restored").
	MaxCommits uint64
}

// DefaultConfig returns the geometry named in spec.md §6 as the media
// constants, matching internal/types.
func DefaultConfig() Config {
	return Config{
		NumBlocks:      types.FSNumBlocks,
		PagesPerBlock:  types.FSPagesPerBlock,
		SectorsPerPage: types.FSSectorsPerPage,
		SectorSize:     types.SectorSize,
	}
}

type page struct {
	data      []byte
	spare     []byte
	programed []bool // per-byte program bitmap, enforces one-shot writes
}

// undoRecord captures the pre-write state of one WriteSector/WriteSpare
// range. Records accumulate between Commit calls; a failed Commit
// replays them in reverse, modeling the in-flight page program that a
// power loss drops before it reaches the array.
type undoRecord struct {
	block  types.BlockIdx
	page   uint32
	spare  bool
	start  uint32
	data   []byte
	marks  []bool // prior programed bits; data writes only
	erased bool   // prior per-block erased flag
}

// SimFlash is an in-memory NAND simulation implementing
// interfaces.FlashDriver.
type SimFlash struct {
	cfg Config
	log *slog.Logger

	mu sync.Mutex // guards everything below, stands in for flash_lock()

	blocks    [][]page // [block][page]
	bad       map[types.BlockIdx]bool
	erased    []bool // per-block: true once erased and not yet programmed
	undo      []undoRecord
	commits   uint64
	openBlock types.BlockIdx
	openPage  uint32
	isOpen    bool
}

// New creates a simulated flash device of the given geometry, erased
// throughout (as if freshly manufactured), except for any blocks named
// in cfg.BadBlocks.
func New(cfg Config, log *slog.Logger) *SimFlash {
	if log == nil {
		log = slog.Default()
	}
	f := &SimFlash{
		cfg:    cfg,
		log:    log,
		blocks: make([][]page, cfg.NumBlocks),
		bad:    make(map[types.BlockIdx]bool, len(cfg.BadBlocks)),
		erased: make([]bool, cfg.NumBlocks),
	}
	for _, b := range cfg.BadBlocks {
		f.bad[b] = true
	}
	for b := range f.blocks {
		f.resetBlockLocked(types.BlockIdx(b))
	}
	return f
}

func (f *SimFlash) resetBlockLocked(block types.BlockIdx) {
	pages := make([]page, f.cfg.PagesPerBlock)
	for i := range pages {
		pages[i] = page{
			data:      make([]byte, f.cfg.SectorsPerPage*f.cfg.SectorSize),
			spare:     make([]byte, f.cfg.SectorsPerPage*spareSize),
			programed: make([]bool, f.cfg.SectorsPerPage*f.cfg.SectorSize),
		}
		for i2 := range pages[i].data {
			pages[i].data[i2] = 0xFF
		}
		for i2 := range pages[i].spare {
			pages[i].spare[i2] = 0xFF
		}
	}
	f.blocks[block] = pages
	f.erased[block] = true
}

// Init satisfies interfaces.FlashDriver; the simulated medium is
// always ready once constructed.
func (f *SimFlash) Init() error { return nil }

// Lock satisfies interfaces.FlashDriver.
func (f *SimFlash) Lock() { f.mu.Lock() }

// Unlock satisfies interfaces.FlashDriver.
func (f *SimFlash) Unlock() { f.mu.Unlock() }

func (f *SimFlash) checkBlock(block types.BlockIdx) error {
	if block >= types.BlockIdx(f.cfg.NumBlocks) {
		return fmt.Errorf("flash: block %d out of range", block)
	}
	return nil
}

// OpenPage satisfies interfaces.FlashDriver.
func (f *SimFlash) OpenPage(block types.BlockIdx, pageIdx uint32) error {
	if err := f.checkBlock(block); err != nil {
		return err
	}
	if f.bad[block] {
		return fmt.Errorf("flash: block %d is bad", block)
	}
	if pageIdx >= f.cfg.PagesPerBlock {
		return fmt.Errorf("flash: page %d out of range", pageIdx)
	}
	f.openBlock = block
	f.openPage = pageIdx
	f.isOpen = true
	return nil
}

// ClosePage satisfies interfaces.FlashDriver.
func (f *SimFlash) ClosePage() { f.isOpen = false }

func (f *SimFlash) currentPage() (*page, error) {
	if !f.isOpen {
		return nil, fmt.Errorf("flash: no page open")
	}
	return &f.blocks[f.openBlock][f.openPage], nil
}

func (f *SimFlash) sectorOffset(sector uint32) uint32 {
	return (sector % f.cfg.SectorsPerPage) * f.cfg.SectorSize
}

// ReadSector satisfies interfaces.FlashDriver.
func (f *SimFlash) ReadSector(dst []byte, sector uint32, offset, length uint32) error {
	p, err := f.currentPage()
	if err != nil {
		return err
	}
	start := f.sectorOffset(sector) + offset
	copy(dst[:length], p.data[start:start+length])
	return nil
}

// ReadSpare satisfies interfaces.FlashDriver.
func (f *SimFlash) ReadSpare(dst []byte, sector uint32) error {
	p, err := f.currentPage()
	if err != nil {
		return err
	}
	start := (sector % f.cfg.SectorsPerPage) * spareSize
	copy(dst, p.spare[start:start+spareSize])
	return nil
}

// WriteSector satisfies interfaces.FlashDriver. Returns an error if any
// byte in the target range has already been programmed since the last
// erase, simulating NAND's one-shot program constraint.
//
// Reference: spec.md §1(a).
func (f *SimFlash) WriteSector(src []byte, sector uint32, offset, length uint32) error {
	p, err := f.currentPage()
	if err != nil {
		return err
	}
	start := f.sectorOffset(sector) + offset
	for i := uint32(0); i < length; i++ {
		if p.programed[start+i] {
			return fmt.Errorf("flash: sector %d offset %d already programmed", sector, offset)
		}
	}
	f.undo = append(f.undo, undoRecord{
		block:  f.openBlock,
		page:   f.openPage,
		start:  start,
		data:   append([]byte(nil), p.data[start:start+length]...),
		marks:  append([]bool(nil), p.programed[start:start+length]...),
		erased: f.erased[f.openBlock],
	})
	copy(p.data[start:start+length], src[:length])
	for i := uint32(0); i < length; i++ {
		p.programed[start+i] = true
	}
	f.erased[f.openBlock] = false
	return nil
}

// WriteSpare satisfies interfaces.FlashDriver.
func (f *SimFlash) WriteSpare(src []byte, sector uint32) error {
	p, err := f.currentPage()
	if err != nil {
		return err
	}
	start := (sector % f.cfg.SectorsPerPage) * spareSize
	f.undo = append(f.undo, undoRecord{
		block:  f.openBlock,
		page:   f.openPage,
		spare:  true,
		start:  start,
		data:   append([]byte(nil), p.spare[start:start+uint32(len(src))]...),
		erased: f.erased[f.openBlock],
	})
	copy(p.spare[start:start+spareSize], src)
	f.erased[f.openBlock] = false
	return nil
}

// Commit satisfies interfaces.FlashDriver. Once cfg.MaxCommits
// successful commits have happened, every subsequent commit fails and
// reverts the writes staged since the last commit, modeling a power
// loss that drops the in-flight page program before it reaches the
// array.
func (f *SimFlash) Commit() error {
	if f.cfg.MaxCommits != 0 && f.commits >= f.cfg.MaxCommits {
		f.revertUncommitted()
		return fmt.Errorf("flash: simulated power loss after %d commits", f.cfg.MaxCommits)
	}
	f.undo = f.undo[:0]
	f.commits++
	return nil
}

func (f *SimFlash) revertUncommitted() {
	for i := len(f.undo) - 1; i >= 0; i-- {
		u := f.undo[i]
		p := &f.blocks[u.block][u.page]
		if u.spare {
			copy(p.spare[u.start:u.start+uint32(len(u.data))], u.data)
		} else {
			copy(p.data[u.start:u.start+uint32(len(u.data))], u.data)
			copy(p.programed[u.start:u.start+uint32(len(u.marks))], u.marks)
		}
		f.erased[u.block] = u.erased
	}
	f.undo = f.undo[:0]
}

// SetMaxCommits replaces the power-loss cutoff, clearing any writes
// still staged against the old cap. Tests call this with 0 between a
// simulated crash and the remount that recovers from it: the power is
// back, the medium holds exactly what was committed before the loss.
func (f *SimFlash) SetMaxCommits(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revertUncommitted()
	f.cfg.MaxCommits = n
}

// EraseBlock satisfies interfaces.FlashDriver.
func (f *SimFlash) EraseBlock(block types.BlockIdx) error {
	if err := f.checkBlock(block); err != nil {
		return err
	}
	if f.bad[block] {
		return fmt.Errorf("flash: cannot erase bad block %d", block)
	}
	// Erase is its own durable operation: any write still staged
	// against this block must not resurrect pre-erase bytes if a later
	// commit fails and reverts.
	kept := f.undo[:0]
	for _, u := range f.undo {
		if u.block != block {
			kept = append(kept, u)
		}
	}
	f.undo = kept
	f.resetBlockLocked(block)
	f.log.Debug("erased block", "block", block)
	return nil
}

// CommitCount reports how many Commit calls have succeeded so far. It
// exists for fault-injection tests that need to compute an exact
// Config.MaxCommits cutoff from a prior dry run rather than guess one.
func (f *SimFlash) CommitCount() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits
}

// BlockIsBad satisfies interfaces.FlashDriver.
func (f *SimFlash) BlockIsBad() bool {
	if !f.isOpen {
		return false
	}
	return f.bad[f.openBlock]
}

var _ interfaces.FlashDriver = (*SimFlash)(nil)
