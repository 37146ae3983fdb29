package cdimg

// memSource is a sector source backed by an in-memory byte slice, for
// image data held in memory rather than read from a file (the ISO-9660
// tests build their synthetic images on it; no format loader in this
// package uses it). Shares the read/extract
// logic of fileSource via defaultReadSectors; grounded on the same
// sector_source_t contract as file_sector_source, with memory in place of
// a FILE*.
type memSource struct {
	sourceBase
	data   []byte
	offset uint32
}

// NewMemorySource wraps data as a Source of the given mode, reading
// sectorCount blocks starting at the given byte offset into data.
func NewMemorySource(data []byte, mode Mode, offset uint32, sectorCount uint32) (Source, error) {
	if sectorCount == FullFile {
		sectorSize := mode.BlockSize()
		if sectorSize == 0 {
			sectorSize = 2048
		}
		avail := len(data) - int(offset)
		if avail < 0 {
			avail = 0
		}
		sectorCount = uint32((avail + sectorSize - 1) / sectorSize)
	}
	s := &memSource{data: data, offset: offset}
	s.sourceBase = newSourceBase(mode, sectorCount, nil)
	return s, nil
}

func (s *memSource) ReadBlocks(lba LBA, count uint32, buf []byte) error {
	if err := checkRange(s.size, lba, count); err != nil {
		return err
	}
	blockSize := s.mode.BlockSize()
	start := int(s.offset) + int(lba)*blockSize
	size := int(count) * blockSize
	if start < 0 || start > len(s.data) {
		return ErrReadError
	}
	end := start + size
	if end > len(s.data) {
		end = len(s.data)
	}
	n := copy(buf[:size], s.data[start:end])
	for i := n; i < size; i++ {
		buf[i] = 0
	}
	return nil
}

func (s *memSource) ReadSectors(lba LBA, count uint32, mode ReadMode, buf []byte) (int, error) {
	return defaultReadSectors(s, lba, count, mode, buf)
}
