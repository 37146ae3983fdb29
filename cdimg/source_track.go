package cdimg

// trackSource is a Source that reads through to a single track's window
// of a parent Disc, used to expose one track of a multi-track image (or
// physical disc) as a standalone source - e.g. for handing an ISO-9660
// track to the iso9660 reader in isolation. Grounded on
// track_sector_source_t in sector.c.
type trackSource struct {
	sourceBase
	disc     *Disc
	startLBA LBA
}

// NewTrackSource wraps count sectors of disc starting at lba as a
// standalone Source of the given mode, taking a reference on disc.
func NewTrackSource(disc *Disc, mode Mode, lba LBA, count uint32) Source {
	if disc == nil {
		return nil
	}
	s := &trackSource{disc: disc, startLBA: lba}
	s.sourceBase = newSourceBase(mode, count, s.destroy)
	disc.Ref()
	return s
}

func (s *trackSource) destroy() {
	s.disc.Unref()
}

func (s *trackSource) ReadBlocks(lba LBA, count uint32, buf []byte) error {
	_, err := s.disc.ReadSectors(lba+s.startLBA, count, DefaultReadMode(s.mode), buf)
	return err
}

func (s *trackSource) ReadSectors(lba LBA, count uint32, mode ReadMode, buf []byte) (int, error) {
	return s.disc.ReadSectors(lba+s.startLBA, count, mode, buf)
}
