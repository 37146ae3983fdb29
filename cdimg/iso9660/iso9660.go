// Package iso9660 implements a minimal read-only ISO-9660 filesystem
// reader layered over a cdimg.Source, per spec §4.1.8. It scans the
// descriptor chain at fs_start+16 for the primary volume descriptor,
// loads directories lazily, and supports the standard ";version"
// case-insensitive path lookup rules.
package iso9660

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/lxdream/dreamxir/cdimg"
)

const (
	sectorSize       = 2048
	superblockOffset = cdimg.LBA(16)
	direntMinSize    = 34

	descTypePrimary  = 1
	descTypeTerminal = 0xFF
)

var isoMagic = [5]byte{'C', 'D', '0', '0', '1'}

// readMode requests the Mode 2 Form 1 (or Mode 1) data payload only,
// matching isofs_reader_read_sectors's fixed CDROM_READ_MODE2_FORM1 |
// CDROM_READ_DATA request.
var readMode = cdimg.ReadMode{Type: cdimg.SectorMode2Form1, Fields: cdimg.FieldData}

// Dirent is one directory entry: a file or a subdirectory.
type Dirent struct {
	Name           string
	Size           uint32
	IsDir          bool
	StartLBA       cdimg.LBA
	XASize         uint32
	InterleaveGap  uint8
	InterleaveSize uint8

	subdir *Dir
}

// Dir is an in-memory directory listing, loaded in full on first access.
type Dir struct {
	Entries []*Dirent
}

// Reader is an ISO-9660 filesystem opened over a cdimg.Source.
type Reader struct {
	source       cdimg.Source
	sourceOffset cdimg.LBA
	fsStart      cdimg.LBA

	VolumeLabel string
	VolumeSeqNo uint16
	Root        *Dir
}

// NewReader opens the ISO-9660 filesystem beginning at LBA start of
// source (relative to offset, which is subtracted from every sector
// address the reader issues), mirroring isofs_reader_new. source must
// support Mode 1 or Mode 2 Form 1 reads. The caller's ref on source is
// not consumed; NewReader takes its own.
func NewReader(source cdimg.Source, offset, start cdimg.LBA) (*Reader, error) {
	r := &Reader{source: source, sourceOffset: offset, fsStart: start}

	buf := make([]byte, sectorSize)
	var i cdimg.LBA
	for {
		if err := r.readSectors(r.fsStart+superblockOffset+i, 1, buf); err != nil {
			return nil, errors.Wrap(err, "iso9660: unable to read volume descriptor")
		}
		if string(buf[1:6]) != string(isoMagic[:]) {
			return nil, errors.New("iso9660: not an ISO9660 filesystem")
		}
		descType := buf[0]
		if descType == descTypeTerminal {
			return nil, errors.New("iso9660: no primary volume descriptor found")
		}
		i++
		if descType == descTypePrimary {
			break
		}
	}

	if buf[6] != 1 {
		return nil, errors.New("iso9660: incompatible ISO9660 filesystem version")
	}

	r.VolumeSeqNo = leUint16(buf[124:126])
	r.VolumeLabel = strings.TrimRight(string(buf[40:72]), " ")

	rootLBA := cdimg.LBA(leUint32(buf[158:162]))
	rootSize := leUint32(buf[166:170])

	root, err := r.readDir(rootLBA, rootSize)
	if err != nil {
		return nil, errors.Wrap(err, "iso9660: unable to read root directory")
	}
	r.Root = root

	source.Ref()
	r.source = source
	return r, nil
}

func (r *Reader) readSectors(lba cdimg.LBA, count uint32, buf []byte) error {
	if lba < r.sourceOffset {
		return cdimg.ErrBadRead
	}
	_, err := r.source.ReadSectors(lba-r.sourceOffset, count, readMode, buf)
	return err
}

// Close releases the reader's reference on its underlying source,
// mirroring isofs_reader_destroy (the directory tree itself needs no
// explicit teardown; it is ordinary garbage-collected memory).
func (r *Reader) Close() {
	if r.source != nil {
		r.source.Unref()
		r.source = nil
	}
}

// readDir loads the directory record list starting at lba spanning size
// bytes, mirroring isofs_reader_read_dir: two passes over the raw
// records, the first to size the entry/string tables, the second to
// populate them (collapsed here into simple appends since Go has no
// need for the original's single flat allocation).
func (r *Reader) readDir(lba cdimg.LBA, size uint32) (*Dir, error) {
	count := (size + sectorSize - 1) / sectorSize
	buf := make([]byte, count*sectorSize)
	if err := r.readSectors(lba, count, buf); err != nil {
		return nil, err
	}

	dir := &Dir{}
	var offset uint32
	for offset < size {
		recLen := uint32(buf[offset])
		if offset+recLen > size || recLen < direntMinSize {
			break
		}
		fileIDLen := uint32(buf[offset+32])
		if fileIDLen+direntMinSize-1 > recLen {
			break
		}
		rec := buf[offset : offset+recLen]
		offset += recLen

		if fileIDLen == 1 && (rec[33] == 0 || rec[33] == 1) {
			continue // self and parent-directory references
		}

		name := string(rec[33 : 33+fileIDLen])
		dir.Entries = append(dir.Entries, &Dirent{
			Name:           name,
			Size:           leUint32(rec[10:14]),
			IsDir:          rec[25]&0x02 != 0,
			StartLBA:       cdimg.LBA(leUint32(rec[2:6])),
			InterleaveSize: rec[26],
			InterleaveGap:  rec[27],
			XASize:         0,
		})
	}
	return dir, nil
}

// Get searches the filesystem for the fully-qualified pathname (slash
// separated), loading intervening directories on demand, mirroring
// isofs_reader_get_file.
func (r *Reader) Get(pathname string) (*Dirent, error) {
	dir := r.Root
	parts := strings.Split(strings.Trim(pathname, "/"), "/")
	for i, part := range parts {
		last := i == len(parts)-1
		ent := findComponent(dir, part)
		if ent == nil {
			return nil, errors.Errorf("iso9660: %q not found", pathname)
		}
		if last {
			return ent, nil
		}
		if !ent.IsDir {
			return nil, errors.Errorf("iso9660: %q is not a directory", part)
		}
		if ent.subdir == nil {
			sub, err := r.readDir(ent.StartLBA, ent.Size)
			if err != nil {
				return nil, err
			}
			ent.subdir = sub
		}
		dir = ent.subdir
	}
	return nil, errors.Errorf("iso9660: %q not found", pathname)
}

// findComponent searches dir for component, case-insensitively. A
// component naming an explicit ";version" is matched exactly; otherwise
// the version suffix on each candidate is ignored, per spec §4.1.8.
func findComponent(dir *Dir, component string) *Dirent {
	if strings.Contains(component, ";") {
		for _, e := range dir.Entries {
			if strings.EqualFold(e.Name, component) {
				return e
			}
		}
		return nil
	}
	for _, e := range dir.Entries {
		name := e.Name
		if semi := strings.IndexByte(name, ';'); semi >= 0 {
			name = name[:semi]
		}
		if strings.EqualFold(name, component) {
			return e
		}
	}
	return nil
}

// ReadFile reads byteCount bytes of file starting at offset into buf,
// mirroring isofs_reader_read_file's unaligned-head/bulk/unaligned-tail
// sector assembly. Interleaved files (InterleaveGap != 0) are rejected,
// matching the original's unimplemented case.
func (r *Reader) ReadFile(file *Dirent, offset uint32, buf []byte) error {
	byteCount := uint32(len(buf))
	if offset+byteCount > file.Size {
		return cdimg.ErrBadRead
	}
	if file.InterleaveGap != 0 {
		return cdimg.ErrBadRead
	}

	lba := file.StartLBA + cdimg.LBA(offset>>11)
	lba += cdimg.LBA((file.XASize + 2047) >> 11)

	var tmp [sectorSize]byte
	if align := offset & 2047; align != 0 {
		if err := r.readSectors(lba, 1, tmp[:]); err != nil {
			return err
		}
		length := uint32(sectorSize) - align
		if length >= byteCount {
			copy(buf, tmp[align:align+byteCount])
			return nil
		}
		copy(buf, tmp[align:sectorSize])
		buf = buf[length:]
		byteCount -= length
		lba++
	}

	if sectorCount := byteCount >> 11; sectorCount > 0 {
		if err := r.readSectors(lba, sectorCount, buf); err != nil {
			return err
		}
		buf = buf[sectorCount<<11:]
		lba += cdimg.LBA(sectorCount)
	}

	if tail := byteCount & 2047; tail != 0 {
		if err := r.readSectors(lba, 1, tmp[:]); err != nil {
			return err
		}
		copy(buf, tmp[:tail])
	}
	return nil
}

func leUint16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
