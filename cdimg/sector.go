package cdimg

// Mode is the closed set of nine sector modes a sector source can carry.
// Each implies a fixed block size and a default read-field mask.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeCDDA
	ModeMode1
	ModeMode2Formless
	ModeMode2Form1
	ModeMode2Form2
	ModeSemirawMode2
	ModeRawXA
	ModeRawNonXA
)

// blockSizes mirrors the original driver's cdrom_sector_size[] table.
var blockSizes = [...]int{
	ModeUnknown:        0,
	ModeCDDA:           2352,
	ModeMode1:          2048,
	ModeMode2Formless:  2336,
	ModeMode2Form1:     2048,
	ModeMode2Form2:     2324,
	ModeSemirawMode2:   2336,
	ModeRawXA:          2352,
	ModeRawNonXA:       2352,
}

// BlockSize returns the fixed native block size for the given sector mode.
func (m Mode) BlockSize() int { return blockSizes[m] }

func (m Mode) String() string {
	switch m {
	case ModeCDDA:
		return "CDDA"
	case ModeMode1:
		return "Mode1"
	case ModeMode2Formless:
		return "Mode2Formless"
	case ModeMode2Form1:
		return "Mode2Form1"
	case ModeMode2Form2:
		return "Mode2Form2"
	case ModeSemirawMode2:
		return "SemirawMode2"
	case ModeRawXA:
		return "RawXA"
	case ModeRawNonXA:
		return "RawNonXA"
	default:
		return "Unknown"
	}
}

// SectorType is the MMC-style requested-sector-type word used by
// read_sectors (§4.1.1): the part of the read mode that says what kind
// of sector the caller expects to find.
type SectorType int

const (
	SectorAny SectorType = iota
	SectorCDDA
	SectorMode1
	SectorMode2
	SectorMode2Form1
	SectorMode2Form2
)

// Field is a bit in the MMC-style field mask - which byte ranges of the
// raw 2352-byte frame the caller wants extracted.
type Field uint8

const (
	FieldSync Field = 1 << iota
	FieldHeader
	FieldSubheader
	FieldData
	FieldECC
)

const FieldRaw = FieldSync | FieldHeader | FieldSubheader | FieldData | FieldECC

// ReadMode is the decoded form of the MMC READ CD mode word: a requested
// sector type plus a field mask.
type ReadMode struct {
	Type   SectorType
	Fields Field
}

// LBA is a logical block address: a 0-based sector index on the disc.
type LBA uint32

// Source is the abstract, reference-counted producer of fixed-size
// sectors described in spec §3.1/§4.1.1. Implementations are one of
// {Null, File, Memory, Disc, Track}; all share the refcount bookkeeping
// in sourceBase and the contract methods below.
//
// A source's own ref-count starts at zero; callers own incrementing it.
// The ref count is a plain int, not atomic - per spec §5 these cores are
// single-threaded and callers must not share a source across goroutines.
type Source interface {
	// Mode returns the sector mode this source produces.
	Mode() Mode
	// Size returns the block count, or 0 if unknown/unbounded.
	Size() uint32

	// ReadBlocks performs a raw native-mode read of count contiguous
	// blocks starting at lba into buf, which must be at least
	// count*Mode().BlockSize() bytes.
	ReadBlocks(lba LBA, count uint32, buf []byte) error

	// ReadSectors performs an MMC-style read honoring mode's requested
	// sector type and field mask, returning the number of bytes written.
	ReadSectors(lba LBA, count uint32, mode ReadMode, buf []byte) (int, error)

	// Ref increments the reference count.
	Ref()
	// Unref decrements the reference count, releasing the source's
	// resources once it reaches zero.
	Unref()
	refCount() int32
}

// sourceBase implements the common refcount bookkeeping shared by every
// concrete Source variant. Concrete sources embed it and supply Mode,
// Size, ReadBlocks, ReadSectors and an optional release hook.
type sourceBase struct {
	mode     Mode
	size     uint32
	refcount int32
	release  func()
}

func newSourceBase(mode Mode, size uint32, release func()) sourceBase {
	return sourceBase{mode: mode, size: size, release: release}
}

func (s *sourceBase) Mode() Mode   { return s.mode }
func (s *sourceBase) Size() uint32 { return s.size }

func (s *sourceBase) Ref() { s.refcount++ }

func (s *sourceBase) Unref() {
	s.refcount--
	if s.refcount <= 0 && s.release != nil {
		s.release()
		s.release = nil
	}
}

func (s *sourceBase) refCount() int32 { return s.refcount }

// checkRange validates that [lba, lba+count) lies within size, following
// the universal invariant of spec §8: ReadBlocks fails with ErrBadRead
// iff lba >= size or lba+count > size (when size > 0).
func checkRange(size uint32, lba LBA, count uint32) error {
	if size == 0 {
		return nil
	}
	if uint32(lba) >= size || uint32(lba)+count > size {
		return ErrBadRead
	}
	return nil
}
