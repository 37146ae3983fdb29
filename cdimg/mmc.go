package cdimg

// mmc.go implements the SCSI/MMC disc of spec §4.1.7/§6.3, grounded on
// cd_mmc.c's packet builders for READ TOC (0x43)/READ CD (0xBE)/PLAY
// AUDIO (0xA5)/STOP (0x4E). The OS-specific ioctl transport itself is out
// of scope per spec §1; only PacketTransport's command-byte construction
// and TOC/response parsing are implemented here, against whatever
// transport the caller supplies.

import "github.com/pkg/errors"

// PacketTransport is the 12-byte-packet transport a PhysicalDisc reads
// and writes through (spec §4.1.1's "12-byte packet transport"). OS-
// specific SCSI ioctl plumbing (Linux SG_IO, OS X IOKit) implements this
// interface outside this package.
type PacketTransport interface {
	// PacketRead issues cmd (a 12-byte MMC command) and reads up to
	// len(buf) bytes of response data, returning the number of bytes
	// actually returned.
	PacketRead(cmd [12]byte, buf []byte) (int, error)
	// PacketCmd issues cmd with no data phase.
	PacketCmd(cmd [12]byte) error
	// MediaChanged reports whether the drive has signalled a media
	// change since the last call.
	MediaChanged() bool
}

const maxTOCEntries = 600
const maxTOCSize = 4 + maxTOCEntries*11

// PhysicalDisc is a Disc whose reads, TOC, and transport commands go
// through a PacketTransport rather than a host file, grounded on
// cdrom_disc_scsi_new/cdrom_disc_scsi_init.
type PhysicalDisc struct {
	*Disc
	Transport PacketTransport
}

// NewPhysicalDisc wraps transport as a Disc, reading its TOC immediately
// (a failed initial TOC read just leaves the disc in the empty state, per
// cdrom_disc_scsi_new).
func NewPhysicalDisc(name string, transport PacketTransport) *PhysicalDisc {
	d := &PhysicalDisc{Disc: NewDisc(name), Transport: transport}
	d.ReadTOCFunc = func(*Disc) error { return d.scsiReadTOC() }
	d.CheckMediaFunc = func(*Disc) bool { return d.scsiCheckMedia() }
	d.PlayAudioFunc = func(_ *Disc, lba LBA, length uint32) error { return d.scsiPlayAudio(lba, length) }
	d.StopAudioFunc = func(*Disc) error { return d.scsiStopAudio() }
	d.ReadTOC()
	return d
}

// ReadSectors overrides Disc.ReadSectors: a physical disc issues one READ
// CD command per request rather than delegating to per-track sources.
func (d *PhysicalDisc) ReadSectors(lba LBA, count uint32, mode ReadMode, buf []byte) (int, error) {
	cmd := [12]byte{0xBE}
	cmd[1] = byte(mode.Type) << 2
	cmd[2] = byte(lba >> 24)
	cmd[3] = byte(lba >> 16)
	cmd[4] = byte(lba >> 8)
	cmd[5] = byte(lba)
	cmd[6] = byte(count >> 16)
	cmd[7] = byte(count >> 8)
	cmd[8] = byte(count)
	cmd[9] = byte(mode.Fields) << 3

	n, err := d.Transport.PacketRead(cmd, buf)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// scsiReadTOC issues READ TOC (format 2) and parses the response,
// mirroring cdrom_disc_scsi_read_toc. A non-ready device (sense key 2) is
// treated as "no media" rather than an error, per spec §7.
func (d *PhysicalDisc) scsiReadTOC() error {
	buf := make([]byte, maxTOCSize)
	cmd := [12]byte{0x43, 0, 2}
	cmd[7] = byte(len(buf) >> 8)
	cmd[8] = byte(len(buf))

	_, err := d.Transport.PacketRead(cmd, buf)
	if err != nil {
		if senseKey(err) == 0x02 {
			return nil
		}
		return errors.Wrap(err, "cdimg: mmc: read toc")
	}
	parseTOC2(d.Disc, buf)
	return nil
}

// senseKey extracts the MMC sense key from err if it wraps a cdimg.Error,
// else returns 0xFF.
func senseKey(err error) uint8 {
	if e, ok := errors.Cause(err).(Error); ok {
		return e.SenseKey()
	}
	return 0xFF
}

// parseTOC2 decodes an MMC READ TOC format-2 response into disc's track
// table, mirroring mmc_parse_toc2: fixed 11-byte entries starting at
// offset 4, keyed by (ADR, POINT).
func parseTOC2(disc *Disc, buf []byte) {
	if len(buf) < 2 {
		return
	}
	length := int(buf[0])<<8 | int(buf[1])
	maxTrack, maxSession := 0, 0

	for i := 4; i+11 <= len(buf) && i < length; i += 11 {
		session := int(buf[i])
		adr := buf[i+1] >> 4
		point := int(buf[i+3])

		if adr == 0x01 && point > 0 && point < 100 {
			trackno := point - 1
			if point > maxTrack {
				maxTrack = point
			}
			if session > maxSession {
				maxSession = session
			}
			disc.Tracks[trackno].TrackNo = point
			disc.Tracks[trackno].Flags = TrackFlag((buf[i+1] & 0x0F) << 4)
			disc.Tracks[trackno].SessionNo = session
			disc.Tracks[trackno].LBA = MSFToLBA(buf[i+8], buf[i+9], buf[i+10])
		} else {
			switch (int(adr) << 8) | point {
			case 0x1A0:
				if buf[i+9] == 0x20 {
					disc.Type = DiscTypeXA
				} else {
					disc.Type = DiscTypeNonXA
				}
			case 0x1A2:
				disc.Leadout = MSFToLBA(buf[i+8], buf[i+9], buf[i+10])
			}
		}
	}
	disc.TrackCount = maxTrack
	disc.SessionCount = maxSession
}

func (d *PhysicalDisc) scsiCheckMedia() bool {
	if d.Transport.MediaChanged() {
		d.scsiReadTOC()
		return true
	}
	return false
}

func (d *PhysicalDisc) scsiPlayAudio(lba LBA, length uint32) error {
	cmd := [12]byte{0xA5}
	cmd[2] = byte(lba >> 24)
	cmd[3] = byte(lba >> 16)
	cmd[4] = byte(lba >> 8)
	cmd[5] = byte(lba)
	cmd[6] = byte(length >> 24)
	cmd[7] = byte(length >> 16)
	cmd[8] = byte(length >> 8)
	cmd[9] = byte(length)
	return d.Transport.PacketCmd(cmd)
}

func (d *PhysicalDisc) scsiStopAudio() error {
	cmd := [12]byte{0x4E}
	return d.Transport.PacketCmd(cmd)
}

// Inquiry issues an INQUIRY (0x12) command and returns the
// "vendor product revision" identification string, mirroring
// mmc_parse_inquiry/cdrom_disc_scsi_identify_drive.
func (d *PhysicalDisc) Inquiry() (string, error) {
	cmd := [12]byte{0x12, 0, 0, 0, 0xFF}
	buf := make([]byte, 256)
	n, err := d.Transport.PacketRead(cmd, buf)
	if err != nil {
		return "", errors.Wrap(err, "cdimg: mmc: inquiry")
	}
	if n < 36 {
		return "", errors.New("cdimg: mmc: inquiry response too short")
	}
	vendor := trimField(buf[8:16])
	product := trimField(buf[16:32])
	rev := trimField(buf[32:36])
	return vendor + " " + product + " " + rev, nil
}

func trimField(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == ' ' || b[end-1] == 0) {
		end--
	}
	start := 0
	for start < end && b[start] == ' ' {
		start++
	}
	return string(b[start:end])
}
