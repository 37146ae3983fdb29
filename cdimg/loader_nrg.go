package cdimg

// loader_nrg.go implements the Nero (NRG) disc image format factory of
// spec §4.1.6/§6.2, grounded on cd_nrg.c's nrg_image_is_valid /
// nrg_image_read_toc. The footer at EOF-12 points at a big-endian
// chunk stream; chunks are processed until END! is seen.

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

func init() {
	RegisterFactory(&Factory{
		Name:      "Nero",
		Extension: "nrg",
		IsValid:   nrgIsValid,
		ReadTOC:   nrgReadTOC,
	})
}

const (
	nrgIDv50 = 0x4e45524f // "NERO"
	nrgIDv55 = 0x4e455235 // "NER5"

	nrgChunkCUES = 0x43554553
	nrgChunkCUEX = 0x43554558
	nrgChunkDAOI = 0x44414f49
	nrgChunkDAOX = 0x44414f58
	nrgChunkSINF = 0x53494e46
	nrgChunkETNF = 0x45544e46
	nrgChunkETN2 = 0x45544e32
	nrgChunkEND  = 0x454e4421
)

// nrgFooterStart reads the 12-byte footer at EOF-12 and returns the file
// offset of the chunk list, mirroring the v5.0/v5.5 id dispatch of
// nrg_image_is_valid.
func nrgFooterStart(f *os.File) (int64, error) {
	var footer [12]byte
	if _, err := f.Seek(-12, io.SeekEnd); err != nil {
		return 0, err
	}
	if _, err := io.ReadFull(f, footer[:]); err != nil {
		return 0, err
	}
	// v5.0 layout: dummy(4) id(4) offset(4); v5.5 layout: id(4) offset(8).
	if binary.BigEndian.Uint32(footer[4:8]) == nrgIDv50 {
		return int64(binary.BigEndian.Uint32(footer[8:12])), nil
	}
	if binary.BigEndian.Uint32(footer[0:4]) == nrgIDv55 {
		return int64(binary.BigEndian.Uint64(footer[4:12])), nil
	}
	return 0, errors.New("cdimg: nrg: not a Nero image")
}

func nrgIsValid(f *os.File) bool {
	_, err := nrgFooterStart(f)
	return err == nil
}

func nrgTrackMode(mode uint8) (Mode, bool) {
	switch mode {
	case 0:
		return ModeMode1, true
	case 2:
		return ModeMode2Form1, true
	case 3:
		return ModeSemirawMode2, true
	case 7, 16:
		return ModeCDDA, true
	default:
		return ModeUnknown, false
	}
}

func nrgReadTOC(disc *Disc) error {
	base, ok := baseFile(disc.BaseSource)
	if !ok {
		return errors.New("cdimg: nrg: disc has no backing file")
	}
	start, err := nrgFooterStart(base)
	if err != nil {
		return errors.Wrap(err, "cdimg: nrg")
	}
	if _, err := base.Seek(start, io.SeekStart); err != nil {
		return errors.Wrap(err, "cdimg: nrg: seek chunk list")
	}

	sessionID := 1
	sessionTrackID := 0
	trackID := 0
	cueTrackID := 0

	var header [8]byte
	for {
		if _, err := io.ReadFull(base, header[:]); err != nil {
			return errors.Wrap(err, "cdimg: nrg: read chunk header")
		}
		chunkID := binary.BigEndian.Uint32(header[0:4])
		length := binary.BigEndian.Uint32(header[4:8])
		data := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(base, data); err != nil {
				return errors.Wrap(err, "cdimg: nrg: read chunk body")
			}
		}

		switch chunkID {
		case nrgChunkCUES, nrgChunkCUEX:
			const cueSize = 8
			cueTrackID = trackID
			// cue_track_count = ((length/8) >> 1) - 1, per cd_nrg.c; it is
			// computed only for parity with the source and isn't otherwise
			// consulted here since the loop below walks every cue entry.
			_ = (int(length/cueSize) >> 1) - 1
			for off := uint32(0); off+cueSize <= length; off += cueSize {
				cueType := data[off]
				cueTrack := data[off+1]
				control := data[off+2]
				var lba LBA
				if chunkID == nrgChunkCUEX {
					lba = LBA(binary.BigEndian.Uint32(data[off+4 : off+8]))
				} else {
					// BCD-MSF case: unlike the chunk's other multi-byte
					// fields, Nero lays this one down as raw {frame,
					// second, minute} BCD bytes rather than a big-endian
					// integer (matching lxdream's BCD_MSFTOLBA, which reads
					// the field as a native (little-endian) uint32 so its
					// lowest byte comes out as the frame).
					lba = BCDMSFToLBA(data[off+6], data[off+5], data[off+4])
				}
				if cueTrack == 0 {
					continue
				}
				if cueTrack == 0xAA {
					disc.Leadout = lba
					continue
				}
				track := int(bcdToU8(cueTrack)) - 1
				if track < 0 || track >= MaxTracks {
					return errors.Errorf("cdimg: nrg: cue track %d out of range", track+1)
				}
				if control&0x01 != 0 {
					disc.Tracks[track].LBA = lba
					disc.Tracks[track].Flags = TrackFlag(cueType)
				}
			}

		case nrgChunkDAOI:
			n, err := nrgParseDAO(disc, data, cueTrackID, trackID, false)
			if err != nil {
				return err
			}
			cueTrackID += n

		case nrgChunkDAOX:
			n, err := nrgParseDAO(disc, data, cueTrackID, trackID, true)
			if err != nil {
				return err
			}
			cueTrackID += n

		case nrgChunkSINF:
			if len(data) < 4 {
				return errors.New("cdimg: nrg: truncated SINF chunk")
			}
			n := int(binary.BigEndian.Uint32(data[0:4]))
			for ; n > 0; n-- {
				if sessionTrackID >= MaxTracks {
					return errors.New("cdimg: nrg: SINF session track overflow")
				}
				disc.Tracks[sessionTrackID].SessionNo = sessionID
				sessionTrackID++
			}
			sessionID++

		case nrgChunkETNF:
			const entSize = 20
			count := int(length) / entSize
			for i := 0; i < count; i++ {
				off := i * entSize
				offset := binary.BigEndian.Uint32(data[off : off+4])
				length := binary.BigEndian.Uint32(data[off+4 : off+8])
				modeVal := binary.BigEndian.Uint32(data[off+8 : off+12])
				lba := binary.BigEndian.Uint32(data[off+12 : off+16])
				mode, ok := nrgTrackMode(uint8(modeVal))
				if !ok {
					return errors.Errorf("cdimg: nrg: unknown track mode %d", modeVal)
				}
				if err := nrgAddEntryTrack(disc, &trackID, mode, offset, length, lba, i); err != nil {
					return err
				}
			}

		case nrgChunkETN2:
			const entSize = 32
			count := int(length) / entSize
			for i := 0; i < count; i++ {
				off := i * entSize
				offset := uint32(binary.BigEndian.Uint64(data[off : off+8]))
				entLen := binary.BigEndian.Uint64(data[off+8 : off+16])
				modeVal := binary.BigEndian.Uint32(data[off+16 : off+20])
				lba := binary.BigEndian.Uint32(data[off+20 : off+24])
				mode, ok := nrgTrackMode(uint8(modeVal))
				if !ok {
					return errors.Errorf("cdimg: nrg: unknown track mode %d", modeVal)
				}
				if err := nrgAddEntryTrack(disc, &trackID, mode, offset, uint32(entLen), lba, i); err != nil {
					return err
				}
			}

		case nrgChunkEND:
			disc.TrackCount = trackID
			disc.SessionCount = sessionID - 1
			return nil
		}
	}
}

// nrgParseDAO parses a DAOI (wide=false) or DAOX (wide=true) chunk body,
// wrapping a sibling file source over disc.BaseSource for each track
// described, per cd_nrg.c's DAOI_ID/DAOX_ID cases. Chunk layout: a 22-byte
// header (4-byte internal length, 14-byte MCN, disc_mode, 2 unknown bytes,
// track_count) followed by one fixed-size record per track. Returns the
// number of tracks the chunk described.
func nrgParseDAO(disc *Disc, data []byte, cueTrackID, trackID int, wide bool) (int, error) {
	const headerSize = 22
	if len(data) < headerSize {
		return 0, errors.New("cdimg: nrg: truncated DAO chunk")
	}
	disc.MCN = string(data[4:17])
	discTrackCount := int(data[21])
	count := discTrackCount - cueTrackID
	if discTrackCount != trackID {
		return 0, errors.New("cdimg: nrg: bad DAO block (track count mismatch)")
	}

	recSize := 30
	if wide {
		recSize = 42
	}
	expected := count*recSize + headerSize
	if expected != len(data) {
		return 0, errors.New("cdimg: nrg: bad DAO block (length mismatch)")
	}

	for i := 0; i < count; i++ {
		rec := data[headerSize+i*recSize:]
		modeByte := rec[14]
		mode, ok := nrgTrackMode(modeByte)
		if !ok {
			return 0, errors.Errorf("cdimg: nrg: unknown track mode %d in DAO block", modeByte)
		}
		sectorSize := binary.BigEndian.Uint32(rec[10:14])
		if int(sectorSize) != mode.BlockSize() {
			return 0, errors.New("cdimg: nrg: bad sector size in DAO block")
		}
		var offset, end uint32
		if wide {
			offset = uint32(binary.BigEndian.Uint64(rec[26:34]))
			end = uint32(binary.BigEndian.Uint64(rec[34:42]))
		} else {
			offset = binary.BigEndian.Uint32(rec[22:26])
			end = binary.BigEndian.Uint32(rec[26:30])
		}
		if mode.BlockSize() == 0 {
			return 0, errors.New("cdimg: nrg: zero block size for track mode")
		}
		sectorCount := (end - offset) / uint32(mode.BlockSize())

		src, err := NewFileSourceFromSource(disc.BaseSource, mode, offset, sectorCount)
		if err != nil {
			return 0, errors.Wrap(err, "cdimg: nrg: DAO track source")
		}
		idx := cueTrackID + i
		if idx < 0 || idx >= MaxTracks {
			return 0, errors.New("cdimg: nrg: DAO track index out of range")
		}
		src.Ref()
		disc.Tracks[idx].Source = src
	}
	return count, nil
}

// nrgAddEntryTrack appends one ETNF/ETN2 track entry, mirroring the
// shared tail of the ETNF_ID/ETN2_ID cases in cd_nrg.c.
func nrgAddEntryTrack(disc *Disc, trackID *int, mode Mode, offset, length, lba uint32, i int) error {
	if *trackID >= MaxTracks {
		return errors.New("cdimg: nrg: too many tracks")
	}
	if mode.BlockSize() == 0 {
		return errors.New("cdimg: nrg: zero block size for track mode")
	}
	sectorCount := length / uint32(mode.BlockSize())
	const pregap = 150
	t := &disc.Tracks[*trackID]
	t.LBA = LBA(lba + uint32(i)*pregap)
	if mode == ModeCDDA {
		t.Flags = 0x01
	} else {
		t.Flags = 0x01 | TrackFlagData
	}
	src, err := NewFileSourceFromSource(disc.BaseSource, mode, offset, sectorCount)
	if err != nil {
		return errors.Wrap(err, "cdimg: nrg: ETNF/ETN2 track source")
	}
	src.Ref()
	t.Source = src
	*trackID++
	return nil
}
