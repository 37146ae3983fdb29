package cdimg

// loader_gdi.go implements the NullDC GDI image format factory of spec
// §4.1.6/§6.2, grounded on cd_gdi.c's gdi_image_is_valid/gdi_image_read_toc.
// GDI is a plain text TOC: a track count on the first line, then one line
// per track giving {track_no, start_lba, flags_nibble, sector_size,
// filename, offset}.

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

func init() {
	RegisterFactory(&Factory{
		Name:      "NullDC GD-Rom Image",
		Extension: "gdi",
		IsValid:   gdiIsValid,
		ReadTOC:   gdiReadTOC,
	})
}

// gdiTrackCount reads and validates the first line of f as a track count
// in 1..99. Its scanner reads ahead, so f is left positioned somewhere
// past the count line, not just after it.
func gdiTrackCount(f *os.File) (int, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return 0, err
	}
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, errors.New("cdimg: gdi: empty file")
	}
	n, err := strconv.ParseUint(strings.TrimSpace(scanner.Text()), 10, 32)
	if err != nil || n == 0 || n > MaxTracks {
		return 0, errors.New("cdimg: gdi: invalid track count")
	}
	return int(n), nil
}

func gdiIsValid(f *os.File) bool {
	_, err := gdiTrackCount(f)
	return err == nil
}

func gdiReadTOC(disc *Disc) error {
	base, ok := baseFile(disc.BaseSource)
	if !ok {
		return errors.New("cdimg: gdi: disc has no backing file")
	}
	trackCount, err := gdiTrackCount(base)
	if err != nil {
		return errors.Wrap(err, "cdimg: gdi")
	}
	if _, err := base.Seek(0, 0); err != nil {
		return errors.Wrap(err, "cdimg: gdi")
	}

	dir := filepath.Dir(disc.Name)
	disc.Type = DiscTypeGDROM
	disc.TrackCount = trackCount
	disc.SessionCount = 2

	scanner := bufio.NewScanner(base)
	scanner.Scan() // the track count line, validated above
	session := 1
	for i := 0; i < trackCount; i++ {
		if !scanner.Scan() {
			return errors.New("cdimg: gdi: unexpected end of file")
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 6 {
			return errors.Errorf("cdimg: gdi: malformed track line %q", scanner.Text())
		}
		startLBA, err := strconv.Atoi(fields[1])
		if err != nil {
			return errors.Wrapf(err, "cdimg: gdi: track line %q", scanner.Text())
		}
		flagsNibble, err := strconv.Atoi(fields[2])
		if err != nil {
			return errors.Wrapf(err, "cdimg: gdi: track line %q", scanner.Text())
		}
		size, err := strconv.Atoi(fields[3])
		if err != nil {
			return errors.Wrapf(err, "cdimg: gdi: track line %q", scanner.Text())
		}
		filename := fields[4]
		offset, err := strconv.Atoi(fields[5])
		if err != nil {
			return errors.Wrapf(err, "cdimg: gdi: track line %q", scanner.Text())
		}

		if startLBA >= 45000 {
			session = 2
		}
		track := &disc.Tracks[i]
		track.SessionNo = session
		track.LBA = LBA(startLBA)
		track.Flags = TrackFlag((flagsNibble & 0x0F) << 4)

		var mode Mode
		if track.Flags&TrackFlagData != 0 {
			switch size {
			case 0, 2048:
				mode = ModeMode2Form1
			case 2324:
				mode = ModeMode2Form2
			case 2336:
				mode = ModeSemirawMode2
			case 2352:
				mode = ModeRawXA
			default:
				return errors.Errorf("cdimg: gdi: invalid sector size %d in track %d", size, i+1)
			}
		} else {
			mode = ModeCDDA
			if size != 0 && size != 2352 {
				return errors.Errorf("cdimg: gdi: invalid sector size %d for audio track %d", size, i+1)
			}
		}

		if strings.EqualFold(filename, "none") {
			track.Source = NewNullSource(mode, 0)
			track.Source.Ref()
			continue
		}
		path := filepath.Join(dir, filename)
		src, err := NewFileSourceFromPath(path, mode, uint32(offset), FullFile)
		if err != nil {
			return errors.Wrapf(err, "cdimg: gdi: track %d file %q", i+1, filename)
		}
		src.Ref()
		track.Source = src
	}
	return nil
}
