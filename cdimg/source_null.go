package cdimg

// nullSource is a sector source that reads as all zero bytes, mirroring
// null_sector_source_read/new in sector.c. Used as a placeholder track
// filler and in tests.
type nullSource struct {
	sourceBase
}

// NewNullSource returns a Source of the given mode and size that always
// reads as zero-filled blocks.
func NewNullSource(mode Mode, size uint32) Source {
	return &nullSource{sourceBase: newSourceBase(mode, size, nil)}
}

func (s *nullSource) ReadBlocks(lba LBA, count uint32, buf []byte) error {
	if err := checkRange(s.size, lba, count); err != nil {
		return err
	}
	n := int(count) * s.mode.BlockSize()
	for i := 0; i < n; i++ {
		buf[i] = 0
	}
	return nil
}

func (s *nullSource) ReadSectors(lba LBA, count uint32, mode ReadMode, buf []byte) (int, error) {
	return defaultReadSectors(s, lba, count, mode, buf)
}
