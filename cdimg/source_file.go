package cdimg

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// FullFile is the sector-count sentinel that tells NewFileSource to infer
// the block count from the file size (mirrors FILE_SECTOR_FULL_FILE).
const FullFile = ^uint32(0)

// fileSource is a sector source backed by a plain file, optionally sharing
// its underlying *os.File with a sibling source (for the GDI/NRG loaders'
// multi-track-per-image layout). Grounded on file_sector_source_t in
// sector.c.
type fileSource struct {
	sourceBase
	r              io.ReaderAt
	closer         io.Closer
	offset         uint32
	closeOnDestroy bool
	parent         Source
}

// NewFileSource wraps an already-open file as a Source starting at offset,
// reading sectorCount blocks of mode (or FullFile to size from the file).
func NewFileSource(f *os.File, mode Mode, offset uint32, sectorCount uint32, closeOnDestroy bool) (Source, error) {
	if sectorCount == FullFile {
		sectorSize := mode.BlockSize()
		if sectorSize == 0 {
			sectorSize = 2048
		}
		info, err := f.Stat()
		if err != nil {
			return nil, errors.Wrap(err, "cdimg: stat file source")
		}
		sectorCount = uint32((info.Size() + int64(sectorSize) - 1) / int64(sectorSize))
	}

	s := &fileSource{r: f, closer: f, offset: offset, closeOnDestroy: closeOnDestroy}
	s.sourceBase = newSourceBase(mode, sectorCount, s.destroy)
	return s, nil
}

// NewFileSourceFromPath opens filename and wraps it as a Source; the file
// is closed when the source's ref count reaches zero.
func NewFileSourceFromPath(filename string, mode Mode, offset uint32, sectorCount uint32) (Source, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "cdimg: open %s", filename)
	}
	return NewFileSource(f, mode, offset, sectorCount, true)
}

// NewFileSourceFromSource creates a sibling file source sharing ref's
// underlying file descriptor, taking a reference on ref exactly as
// file_sector_source_new_source does.
func NewFileSourceFromSource(ref Source, mode Mode, offset uint32, sectorCount uint32) (Source, error) {
	fref, ok := ref.(*fileSource)
	if !ok {
		return nil, errors.New("cdimg: NewFileSourceFromSource requires a file-backed source")
	}
	s := &fileSource{r: fref.r, offset: offset, closeOnDestroy: false, parent: ref}
	s.sourceBase = newSourceBase(mode, sectorCount, s.destroy)
	ref.Ref()
	return s, nil
}

func (s *fileSource) destroy() {
	if s.closeOnDestroy && s.closer != nil {
		s.closer.Close()
	}
	if s.parent != nil {
		s.parent.Unref()
	}
}

func (s *fileSource) ReadBlocks(lba LBA, count uint32, buf []byte) error {
	if err := checkRange(s.size, lba, count); err != nil {
		return err
	}
	blockSize := s.mode.BlockSize()
	off := int64(s.offset) + int64(lba)*int64(blockSize)
	size := int(count) * blockSize

	n, err := s.r.ReadAt(buf[:size], off)
	if err != nil && err != io.EOF {
		return errors.Wrap(err, "cdimg: file source read")
	}
	for i := n; i < size; i++ {
		buf[i] = 0
	}
	return nil
}

func (s *fileSource) ReadSectors(lba LBA, count uint32, mode ReadMode, buf []byte) (int, error) {
	return defaultReadSectors(s, lba, count, mode, buf)
}

// baseFile returns the *os.File backing src, if src is a directly-opened
// fileSource (not a sibling sharing another source's descriptor). GDI and
// NRG TOC parsing need random-access Seek/Read on the raw image file.
func baseFile(src Source) (*os.File, bool) {
	fs, ok := src.(*fileSource)
	if !ok {
		return nil, false
	}
	f, ok := fs.closer.(*os.File)
	return f, ok
}
