package cdimg

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Factory recognizes and reads the table of contents of one disc image
// format. Grounded on cdrom_disc_factory in cdimpl.h: a format registers
// itself by extension and a validity sniff, then supplies a TOC reader
// that Disc.ReadTOC invokes.
type Factory struct {
	Name      string
	Extension string
	IsValid   func(f *os.File) bool
	ReadTOC   func(disc *Disc) error
}

// factories is the format registry, populated by each loader's init().
var factories []*Factory

// RegisterFactory adds a disc image format to the registry consulted by
// Open. Loaders call this from an init() function.
func RegisterFactory(f *Factory) {
	factories = append(factories, f)
}

// Open identifies and opens filename as a disc image, first trying the
// factory matching the file extension, then falling back to probing
// every registered factory's IsValid sniff - mirroring cdrom_disc_open.
func Open(filename string) (*Disc, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "cdimg: open %s", filename)
	}

	base, err := NewFileSource(f, ModeUnknown, 0, FullFile, true)
	if err != nil {
		f.Close()
		return nil, err
	}

	disc := NewDisc(filename)
	disc.BaseSource = base
	base.Ref()

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")

	var matched *Factory
	for _, fac := range factories {
		if fac.Extension == ext {
			if _, err := f.Seek(0, 0); err == nil && fac.IsValid(f) {
				matched = fac
				disc.ReadTOCFunc = fac.ReadTOC
			}
			break
		}
	}

	if disc.ReadTOCFunc == nil {
		for _, fac := range factories {
			if fac == matched {
				continue
			}
			if _, err := f.Seek(0, 0); err != nil {
				continue
			}
			if fac.IsValid(f) {
				disc.ReadTOCFunc = fac.ReadTOC
				break
			}
		}
	}

	if disc.ReadTOCFunc == nil {
		disc.Unref()
		return nil, newGenericError(GenericFileUnknown, "cdimg: file %q could not be recognized as any known image file or device type", filename)
	}

	if err := disc.ReadTOC(); err != nil {
		disc.Unref()
		return nil, err
	}
	return disc, nil
}
