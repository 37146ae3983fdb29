package iso9660

import (
	"testing"

	"github.com/lxdream/dreamxir/cdimg"
)

func putLE32(b []byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}

func putLE16(b []byte, off int, v uint16) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
}

// putDirent writes one iso_dirent record of the given name at b[off:],
// returning the record length used: direntMinSize plus the name length,
// with no padding to an even length.
func putDirent(b []byte, off int, name string, lba cdimg.LBA, size uint32, isDir bool) int {
	recLen := direntMinSize + len(name)
	b[off] = byte(recLen)
	putLE32(b, off+2, uint32(lba))
	putLE32(b, off+10, size)
	if isDir {
		b[off+25] = 0x02
	}
	b[off+32] = byte(len(name))
	copy(b[off+33:], name)
	return recLen
}

// buildImage assembles a tiny in-memory disc image: a PVD at LBA 16 and a
// root directory at LBA 17 containing one file ("README.TXT;1") and one
// subdirectory ("SUBDIR") whose own directory sector is at LBA 18. The
// subdirectory contains a single file "NESTED.TXT;1" at LBA 20; README's
// data is at LBA 19 and the terminal descriptor at LBA 21.
func buildImage(t *testing.T) []byte {
	t.Helper()
	const sectors = 22
	data := make([]byte, sectors*sectorSize)

	// PVD at LBA 16.
	pvd := data[16*sectorSize : 17*sectorSize]
	pvd[0] = descTypePrimary
	copy(pvd[1:6], isoMagic[:])
	pvd[6] = 1
	copy(pvd[40:72], "TEST VOLUME                     ")
	putLE32(pvd, 158, 17) // root dirent lba
	putLE32(pvd, 166, sectorSize) // root dirent size

	// Terminal descriptor at LBA 21 (the root directory occupies 17).
	term := data[21*sectorSize : 22*sectorSize]
	term[0] = descTypeTerminal
	copy(term[1:6], isoMagic[:])

	// Root directory at LBA 17: self/parent entries then two real entries.
	root := data[17*sectorSize : 18*sectorSize]
	off := 0
	off += putDirent(root, off, "\x00", 17, sectorSize, true) // self
	off += putDirent(root, off, "\x01", 0, sectorSize, true)  // parent
	off += putDirent(root, off, "README.TXT;1", 19, 5, false)
	off += putDirent(root, off, "SUBDIR", 18, sectorSize, true)

	// SUBDIR directory at LBA 18.
	sub := data[18*sectorSize : 19*sectorSize]
	off = 0
	off += putDirent(sub, off, "\x00", 18, sectorSize, true)
	off += putDirent(sub, off, "\x01", 17, sectorSize, true)
	off += putDirent(sub, off, "NESTED.TXT;1", 20, 11, false)

	// File contents.
	copy(data[19*sectorSize:], "HELLO")
	copy(data[20*sectorSize:], "NESTED DATA")

	return data
}

func openTestReader(t *testing.T) *Reader {
	t.Helper()
	data := buildImage(t)
	src, err := cdimg.NewMemorySource(data, cdimg.ModeMode1, 0, uint32(len(data)/sectorSize))
	if err != nil {
		t.Fatalf("NewMemorySource: %v", err)
	}
	r, err := NewReader(src, 0, 0)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	return r
}

func TestNewReaderParsesVolumeLabel(t *testing.T) {
	r := openTestReader(t)
	defer r.Close()
	if r.VolumeLabel != "TEST VOLUME" {
		t.Errorf("VolumeLabel = %q, want %q", r.VolumeLabel, "TEST VOLUME")
	}
	if len(r.Root.Entries) != 2 {
		t.Fatalf("root entries = %d, want 2", len(r.Root.Entries))
	}
}

func TestGetTopLevelFileVersionInsensitive(t *testing.T) {
	r := openTestReader(t)
	defer r.Close()

	ent, err := r.Get("readme.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ent.Size != 5 {
		t.Errorf("size = %d, want 5", ent.Size)
	}

	buf := make([]byte, ent.Size)
	if err := r.ReadFile(ent, 0, buf); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(buf) != "HELLO" {
		t.Errorf("contents = %q, want %q", buf, "HELLO")
	}
}

func TestGetNestedFile(t *testing.T) {
	r := openTestReader(t)
	defer r.Close()

	ent, err := r.Get("SUBDIR/NESTED.TXT")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	buf := make([]byte, ent.Size)
	if err := r.ReadFile(ent, 0, buf); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(buf) != "NESTED DATA" {
		t.Errorf("contents = %q, want %q", buf, "NESTED DATA")
	}
}

func TestGetMissingFile(t *testing.T) {
	r := openTestReader(t)
	defer r.Close()
	if _, err := r.Get("NOSUCH.TXT"); err == nil {
		t.Errorf("expected error for missing file")
	}
}
