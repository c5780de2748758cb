package types

import "encoding/binary"

// InodeSector0 is the header written to sector 0 of every inode block:
// its allocation age and the FS clock value at the time the block was
// linked into the chain.
//
// Reference: spec.md §3 "Block age", §4.3 Pass 1.
type InodeSector0 struct {
	Age       BlockAge
	Timestamp Timestamp
}

// InodeSector0Spare is the spare region of sector 0 of an inode block.
// InodeIndex is 0 for the head block (inode0) and increases by one for
// each subsequent block in the chain. TypeID is encoded first so that
// a block's role can be read without knowing which of
// InodeSector0Spare/FileSectorSpare applies.
//
// Reference: spec.md §2.2 "Block typing and tagging".
type InodeSector0Spare struct {
	TypeID     BlockRole
	InodeIndex uint32
}

// InodeTailRecord holds the link to the next inode block in the chain.
// Written once, when the next block is allocated.
//
// Reference: spec.md §3 "Inode tail sector".
type InodeTailRecord struct {
	NextBlock BlockIdx
}

// InodeAllocationRecord is the even-sector ("2k") half of an inode
// entry: everything needed to locate and identify a file.
//
// Reference: spec.md §3 "Inode entry".
type InodeAllocationRecord struct {
	FileID        FileID
	FirstBlock    BlockIdx
	FirstBlockAge BlockAge
	Timestamp     Timestamp
	Filename      [FLOGMaxFnameLen]byte
}

// InodeInvalidationRecord is the odd-sector ("2k+1") half of an inode
// entry. All-ones (Timestamp == FLOGTimestampInvalid) while the file
// still exists.
//
// Reference: spec.md §3 "Inode entry".
type InodeInvalidationRecord struct {
	LastBlock BlockIdx
	Timestamp Timestamp
}

// Live reports whether the file this entry describes has not been
// deleted.
func (r InodeInvalidationRecord) Live() bool {
	return r.Timestamp == FLOGTimestampInvalid
}

// FileSector0Header is the header occupying the start of sector 0 of
// every file data block.
//
// Reference: spec.md §3 "File data block".
type FileSector0Header struct {
	FileID FileID
	Age    BlockAge
}

// FileSectorSpare is the per-sector spare metadata attached to every
// sector of a file data block. TypeID is encoded first, matching
// InodeSector0Spare, so role detection never needs to guess which
// spare shape a sector holds.
//
// Reference: spec.md §3 "File data block".
type FileSectorSpare struct {
	TypeID BlockRole
	NBytes uint16
}

// FileTailRecord is the tail sector of a file data block: the link to
// its successor, the successor's intended age, and the allocation
// timestamp used by crash recovery. All-ones until the block is full
// and its successor has been chosen.
//
// Reference: spec.md §3 "File data block", §4.5.
type FileTailRecord struct {
	NextBlock BlockIdx
	NextAge   BlockAge
	Timestamp Timestamp
}

// Pending reports whether this tail record has never been programmed.
func (r FileTailRecord) Pending() bool {
	return r.Timestamp == FLOGTimestampInvalid
}

// sizes, in bytes, of each fixed-width on-disk record. Kept explicit
// (rather than derived via unsafe.Sizeof) because the wire layout is
// part of the ABI and must not silently shift under struct reordering.
const (
	SizeInodeSector0             = 4 + 8
	SizeInodeSector0Spare        = 4 + 1
	SizeInodeTailRecord          = 4
	SizeInodeAllocationRecord    = 8 + 4 + 4 + 8 + FLOGMaxFnameLen
	SizeInodeInvalidationRecord  = 4 + 8
	SizeFileSector0Header        = 8 + 4
	SizeFileSectorSpare          = 2 + 1
	SizeFileTailRecord           = 4 + 4 + 8
)

// EncodeInodeSector0 serializes an inode block's sector-0 header.
func EncodeInodeSector0(v InodeSector0) []byte {
	b := make([]byte, SizeInodeSector0)
	binary.LittleEndian.PutUint32(b[0:4], uint32(v.Age))
	binary.LittleEndian.PutUint64(b[4:12], uint64(v.Timestamp))
	return b
}

// DecodeInodeSector0 parses an inode block's sector-0 header.
func DecodeInodeSector0(b []byte) InodeSector0 {
	return InodeSector0{
		Age:       BlockAge(binary.LittleEndian.Uint32(b[0:4])),
		Timestamp: Timestamp(binary.LittleEndian.Uint64(b[4:12])),
	}
}

// EncodeInodeSector0Spare serializes the sector-0 spare of an inode block.
func EncodeInodeSector0Spare(v InodeSector0Spare) []byte {
	b := make([]byte, SizeInodeSector0Spare)
	b[0] = byte(v.TypeID)
	binary.LittleEndian.PutUint32(b[1:5], v.InodeIndex)
	return b
}

// DecodeInodeSector0Spare parses the sector-0 spare of an inode block.
func DecodeInodeSector0Spare(b []byte) InodeSector0Spare {
	return InodeSector0Spare{
		TypeID:     BlockRole(b[0]),
		InodeIndex: binary.LittleEndian.Uint32(b[1:5]),
	}
}

// EncodeInodeTailRecord serializes an inode block's tail-sector link.
func EncodeInodeTailRecord(v InodeTailRecord) []byte {
	b := make([]byte, SizeInodeTailRecord)
	binary.LittleEndian.PutUint32(b[0:4], uint32(v.NextBlock))
	return b
}

// DecodeInodeTailRecord parses an inode block's tail-sector link.
func DecodeInodeTailRecord(b []byte) InodeTailRecord {
	return InodeTailRecord{NextBlock: BlockIdx(binary.LittleEndian.Uint32(b[0:4]))}
}

// EncodeInodeAllocationRecord serializes an inode allocation record.
func EncodeInodeAllocationRecord(v InodeAllocationRecord) []byte {
	b := make([]byte, SizeInodeAllocationRecord)
	binary.LittleEndian.PutUint64(b[0:8], uint64(v.FileID))
	binary.LittleEndian.PutUint32(b[8:12], uint32(v.FirstBlock))
	binary.LittleEndian.PutUint32(b[12:16], uint32(v.FirstBlockAge))
	binary.LittleEndian.PutUint64(b[16:24], uint64(v.Timestamp))
	copy(b[24:24+FLOGMaxFnameLen], v.Filename[:])
	return b
}

// DecodeInodeAllocationRecord parses an inode allocation record.
func DecodeInodeAllocationRecord(b []byte) InodeAllocationRecord {
	var v InodeAllocationRecord
	v.FileID = FileID(binary.LittleEndian.Uint64(b[0:8]))
	v.FirstBlock = BlockIdx(binary.LittleEndian.Uint32(b[8:12]))
	v.FirstBlockAge = BlockAge(binary.LittleEndian.Uint32(b[12:16]))
	v.Timestamp = Timestamp(binary.LittleEndian.Uint64(b[16:24]))
	copy(v.Filename[:], b[24:24+FLOGMaxFnameLen])
	return v
}

// EncodeInodeInvalidationRecord serializes an inode invalidation record.
func EncodeInodeInvalidationRecord(v InodeInvalidationRecord) []byte {
	b := make([]byte, SizeInodeInvalidationRecord)
	binary.LittleEndian.PutUint32(b[0:4], uint32(v.LastBlock))
	binary.LittleEndian.PutUint64(b[4:12], uint64(v.Timestamp))
	return b
}

// DecodeInodeInvalidationRecord parses an inode invalidation record.
func DecodeInodeInvalidationRecord(b []byte) InodeInvalidationRecord {
	return InodeInvalidationRecord{
		LastBlock: BlockIdx(binary.LittleEndian.Uint32(b[0:4])),
		Timestamp: Timestamp(binary.LittleEndian.Uint64(b[4:12])),
	}
}

// EncodeFileSector0Header serializes a file data block's sector-0 header.
func EncodeFileSector0Header(v FileSector0Header) []byte {
	b := make([]byte, SizeFileSector0Header)
	binary.LittleEndian.PutUint64(b[0:8], uint64(v.FileID))
	binary.LittleEndian.PutUint32(b[8:12], uint32(v.Age))
	return b
}

// DecodeFileSector0Header parses a file data block's sector-0 header.
func DecodeFileSector0Header(b []byte) FileSector0Header {
	return FileSector0Header{
		FileID: FileID(binary.LittleEndian.Uint64(b[0:8])),
		Age:    BlockAge(binary.LittleEndian.Uint32(b[8:12])),
	}
}

// EncodeFileSectorSpare serializes a file sector's spare metadata.
func EncodeFileSectorSpare(v FileSectorSpare) []byte {
	b := make([]byte, SizeFileSectorSpare)
	b[0] = byte(v.TypeID)
	binary.LittleEndian.PutUint16(b[1:3], v.NBytes)
	return b
}

// DecodeFileSectorSpare parses a file sector's spare metadata.
func DecodeFileSectorSpare(b []byte) FileSectorSpare {
	return FileSectorSpare{
		TypeID: BlockRole(b[0]),
		NBytes: binary.LittleEndian.Uint16(b[1:3]),
	}
}

// EncodeFileTailRecord serializes a file data block's tail record.
func EncodeFileTailRecord(v FileTailRecord) []byte {
	b := make([]byte, SizeFileTailRecord)
	binary.LittleEndian.PutUint32(b[0:4], uint32(v.NextBlock))
	binary.LittleEndian.PutUint32(b[4:8], uint32(v.NextAge))
	binary.LittleEndian.PutUint64(b[8:16], uint64(v.Timestamp))
	return b
}

// DecodeFileTailRecord parses a file data block's tail record.
func DecodeFileTailRecord(b []byte) FileTailRecord {
	return FileTailRecord{
		NextBlock: BlockIdx(binary.LittleEndian.Uint32(b[0:4])),
		NextAge:   BlockAge(binary.LittleEndian.Uint32(b[4:8])),
		Timestamp: Timestamp(binary.LittleEndian.Uint64(b[8:16])),
	}
}
