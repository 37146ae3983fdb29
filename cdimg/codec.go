package cdimg

// codec.go implements the raw<->cooked sector conversion described in
// spec §4.1.2-4: read-mode resolution, field extraction, ECC/EDC
// synthesis and raw-frame sector-mode identification.

const maxSectorSize = 2352

var syncPattern = [12]byte{0, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 0}

// fieldPositions gives, for each of the first six sector modes, the byte
// offset of {sync, header, subheader, data, ecc, end} - a fixed table of
// five field boundaries per mode (spec §4.1.3).
var fieldPositions = [6][6]int{
	ModeUnknown:       {0, 0, 0, 0, 0, 0},
	ModeCDDA:          {0, 0, 0, 0, 2352, 2352},
	ModeMode1:         {0, 12, 16, 16, 2064, 2352},
	ModeMode2Formless: {0, 12, 16, 16, 2352, 2352},
	ModeMode2Form1:    {0, 12, 16, 24, 2072, 2352},
	ModeMode2Form2:    {0, 12, 16, 24, 2352, 2352},
}

// legalNonXAFields/legalXAFields are the two 32-entry tables of spec
// §4.1.2, indexed directly by the 5-bit field mask (Fields), identifying which
// (sector_mode, field-mask) combinations are permitted.
var legalNonXAFields = [32]bool{
	true, true, true, true, true, false, true, true,
	true, false, true, true, true, false, true, true,
	true, false, false, false, true, false, true, true,
	false, false, false, false, true, false, true, true,
}

var legalXAFields = [32]bool{
	true, true, true, true, true, false, false, false,
	true, false, true, true, true, false, true, true,
	true, false, false, false, true, false, false, false,
	false, false, false, false, true, false, true, true,
}

// DefaultReadMode returns the default read mode for a given sector mode,
// mirroring cdrom_sector_read_mode[].
func DefaultReadMode(mode Mode) ReadMode {
	switch mode {
	case ModeCDDA:
		return ReadMode{SectorCDDA, FieldData}
	case ModeMode1:
		return ReadMode{SectorMode1, FieldData}
	case ModeMode2Formless:
		return ReadMode{SectorMode2, FieldData}
	case ModeMode2Form1:
		return ReadMode{SectorMode2Form1, FieldData}
	case ModeMode2Form2:
		return ReadMode{SectorMode2Form1, FieldData}
	case ModeSemirawMode2:
		return ReadMode{SectorMode2, FieldData | FieldSubheader | FieldECC}
	case ModeRawXA, ModeRawNonXA:
		return ReadMode{SectorAny, FieldRaw}
	default:
		return ReadMode{}
	}
}

// isLegalRead validates a (sectorMode, read mode) pair per spec §4.1.2.
func isLegalRead(sectorMode Mode, mode ReadMode) error {
	switch mode.Type {
	case SectorAny:
		// always matches
	case SectorCDDA:
		if sectorMode != ModeCDDA {
			return ErrBadReadMode
		}
	case SectorMode1, SectorMode2Form1:
		if sectorMode != ModeMode1 && sectorMode != ModeMode2Form1 {
			return ErrBadReadMode
		}
	case SectorMode2Form2:
		if sectorMode != ModeMode2Form2 {
			return ErrBadReadMode
		}
	case SectorMode2:
		if sectorMode != ModeMode2Formless {
			return ErrBadReadMode
		}
	default:
		return ErrBadField
	}

	fieldIndex := int(mode.Fields)
	switch sectorMode {
	case ModeCDDA:
		return nil
	case ModeMode2Form1, ModeMode2Form2:
		if !legalXAFields[fieldIndex] {
			return ErrBadField
		}
		return nil
	case ModeMode1, ModeMode2Formless:
		if !legalNonXAFields[fieldIndex] {
			return ErrBadField
		}
		return nil
	default:
		return ErrBadField
	}
}

// identifySector resolves the true sector mode of a raw frame by
// inspecting bytes 12..15 (mode byte at 15, XA subheader at 16..23),
// per spec §4.1.2.
func identifySector(rawMode Mode, buf []byte) Mode {
	if len(buf) < 24 {
		return ModeUnknown
	}
	modeByte := buf[15]
	switch rawMode {
	case ModeSemirawMode2, ModeRawXA:
		switch modeByte {
		case 1:
			return ModeMode1
		case 2:
			if buf[18]&0x20 == 0 {
				return ModeMode2Form1
			}
			return ModeMode2Form2
		default:
			return ModeUnknown
		}
	case ModeRawNonXA:
		switch modeByte {
		case 1:
			return ModeMode1
		case 2:
			return ModeMode2Formless
		default:
			return ModeUnknown
		}
	default:
		return rawMode
	}
}

// extractFields copies the contiguous byte range implied by fields out of
// rawSector for the given mode, per spec §4.1.3. Non-contiguous field
// requests fail with ErrBadField.
func extractFields(rawSector []byte, mode Mode, fields Field, buf []byte) (int, error) {
	start, end := -1, 0
	positions := fieldPositions[mode]
	bits := []Field{FieldSync, FieldHeader, FieldSubheader, FieldData, FieldECC}
	for i, bit := range bits {
		if fields&bit != 0 {
			if start == -1 {
				start = positions[i]
			} else if end != positions[i] {
				return 0, ErrBadField
			}
			end = positions[i+1]
		}
	}
	if start == -1 {
		return 0, nil
	}
	n := copy(buf, rawSector[start:end])
	return n, nil
}

// lbaToMSF converts an LBA to (minute, second, frame), accounting for the
// 150-frame pregap (spec §4.1.4, Glossary MSF).
func lbaToMSF(lba LBA) (m, s, f uint8) {
	total := uint32(lba) + 150
	f = uint8(total % 75)
	total /= 75
	s = uint8(total % 60)
	total /= 60
	m = uint8(total)
	return
}

func u8ToBCD(v uint8) uint8 {
	return (v/10)<<4 | (v % 10)
}

func bcdToU8(bcd uint8) uint8 {
	return (bcd & 0x0F) + (bcd>>4)*10
}

// BCDMSFToLBA converts a BCD-encoded (m,s,f) triplet to an LBA.
func BCDMSFToLBA(m, s, f uint8) LBA {
	return MSFToLBA(bcdToU8(m), bcdToU8(s), bcdToU8(f))
}

// MSFToLBA converts minute/second/frame to an LBA per spec's MSFTOLBA.
func MSFToLBA(m, s, f uint8) LBA {
	return LBA(int(f) + int(s)*75 + int(m)*75*60 - 150)
}

// LBAToBCDMSF is the inverse of BCDMSFToLBA, used by the round-trip
// property of spec §8.
func LBAToBCDMSF(lba LBA) (m, s, f uint8) {
	mm, ss, ff := lbaToMSF(lba)
	return u8ToBCD(mm), u8ToBCD(ss), u8ToBCD(ff)
}

// buildAddress writes the sync pattern, MSF header and mode byte into the
// start of buf for the given mode and lba, per spec §4.1.4.
func buildAddress(buf []byte, mode Mode, lba LBA) {
	copy(buf[0:12], syncPattern[:])
	m, s, f := lbaToMSF(lba)
	buf[12] = u8ToBCD(m)
	buf[13] = u8ToBCD(s)
	buf[14] = u8ToBCD(f)
	switch mode {
	case ModeMode1:
		buf[15] = 1
	default:
		buf[15] = 2
	}
}

// encodeL2 synthesizes the EDC and ECC fields over the appropriate byte
// range for Mode-1 and Mode-2 Form 1/2 sectors, per spec §4.1.4. This is
// the standard CD-ROM Reed-Solomon Product Code (ECMA-130).
func encodeL2(buf []byte, mode Mode) {
	switch mode {
	case ModeMode1:
		edc := edcCompute(buf[0:2064])
		putLE32(buf[2064:2068], edc)
		for i := 2068; i < 2076; i++ {
			buf[i] = 0
		}
		eccGenerate(buf)
	case ModeMode2Form1:
		edc := edcCompute(buf[16:2072])
		putLE32(buf[2072:2076], edc)
		eccGenerate(buf)
	case ModeMode2Form2:
		edc := edcCompute(buf[16:2348])
		putLE32(buf[2348:2352], edc)
	}
}

func putLE32(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

// readRawSector synthesizes (or passes through) one raw 2352-byte sector
// from src at lba into buf, per spec §4.1.4/sector.c's read_raw_sector.
func readRawSector(src Source, lba LBA, buf []byte) error {
	switch src.Mode() {
	case ModeRawXA, ModeRawNonXA:
		return src.ReadBlocks(lba, 1, buf)
	case ModeSemirawMode2:
		copy(buf[0:12], syncPattern[:])
		buildAddress(buf, ModeMode2Formless, lba)
		return src.ReadBlocks(lba, 1, buf[16:])
	case ModeMode1, ModeMode2Formless:
		if err := src.ReadBlocks(lba, 1, buf[16:]); err != nil {
			return err
		}
		buildAddress(buf, src.Mode(), lba)
		encodeL2(buf, src.Mode())
		return nil
	case ModeMode2Form1:
		buf[16], buf[17], buf[18], buf[19] = 0, 0, 0, 0
		buf[20], buf[21], buf[22], buf[23] = 0, 0, 0, 0
		if err := src.ReadBlocks(lba, 1, buf[24:]); err != nil {
			return err
		}
		buildAddress(buf, ModeMode2Form1, lba)
		encodeL2(buf, ModeMode2Form1)
		return nil
	case ModeMode2Form2:
		buf[16], buf[17], buf[18], buf[19] = 0, 0, 0x20, 0
		buf[20], buf[21], buf[22], buf[23] = 0, 0, 0x20, 0
		if err := src.ReadBlocks(lba, 1, buf[24:]); err != nil {
			return err
		}
		buildAddress(buf, ModeMode2Form1, lba)
		encodeL2(buf, ModeMode2Form2)
		return nil
	default:
		return ErrBadRead
	}
}

// extractFromRaw identifies the sector mode of a raw 2352-byte frame and
// extracts the requested fields from it, per spec §4.1.2-3.
func extractFromRaw(rawSector []byte, mode ReadMode, buf []byte) (int, error) {
	sectorMode := identifySector(ModeRawXA, rawSector)
	if sectorMode == ModeUnknown {
		return 0, ErrBadRead
	}
	if err := isLegalRead(sectorMode, mode); err != nil {
		return 0, err
	}
	return extractFields(rawSector, sectorMode, mode.Fields, buf)
}

// defaultReadSectors implements the generic MMC-aware read_sectors
// shared by null/file/memory sources (sector.c's
// default_sector_source_read_sectors).
func defaultReadSectors(src Source, lba LBA, count uint32, mode ReadMode, buf []byte) (int, error) {
	if err := checkRange(src.Size(), lba, count); err != nil {
		return 0, err
	}

	switch src.Mode() {
	case ModeCDDA:
		if mode.Type != SectorAny && mode.Type != SectorCDDA {
			return 0, ErrBadReadMode
		}
		if mode.Fields == 0 {
			return 0, nil
		}
		n := int(count) * maxSectorSize
		if err := src.ReadBlocks(lba, count, buf[:n]); err != nil {
			return 0, err
		}
		return n, nil

	case ModeRawXA, ModeRawNonXA, ModeSemirawMode2:
		tmp := make([]byte, maxSectorSize)
		total := 0
		for i := uint32(0); i < count; i++ {
			if err := readRawSector(src, lba+LBA(i), tmp); err != nil {
				return 0, err
			}
			n, err := extractFromRaw(tmp, mode, buf[total:])
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil

	default:
		if err := isLegalRead(src.Mode(), mode); err != nil {
			return 0, err
		}
		switch mode.Fields {
		case 0:
			return 0, nil
		case FieldData:
			n := int(count) * src.Mode().BlockSize()
			if err := src.ReadBlocks(lba, count, buf[:n]); err != nil {
				return 0, err
			}
			return n, nil
		case FieldRaw:
			total := 0
			for i := uint32(0); i < count; i++ {
				if err := readRawSector(src, lba+LBA(i), buf[total:total+maxSectorSize]); err != nil {
					return 0, err
				}
				total += maxSectorSize
			}
			return total, nil
		default:
			tmp := make([]byte, maxSectorSize)
			total := 0
			for i := uint32(0); i < count; i++ {
				if err := readRawSector(src, lba+LBA(i), tmp); err != nil {
					return 0, err
				}
				n, err := extractFields(tmp, src.Mode(), mode.Fields, buf[total:])
				if err != nil {
					return 0, err
				}
				total += n
			}
			return total, nil
		}
	}
}
