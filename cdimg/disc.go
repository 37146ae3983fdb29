package cdimg

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// DiscType classifies the overall content of a disc, used to pick the
// correct default sector mode for untagged tracks.
type DiscType int

const (
	DiscTypeAudio DiscType = 0x00
	DiscTypeNone  DiscType = 0x06
	DiscTypeNonXA DiscType = 0x10
	DiscTypeXA    DiscType = 0x20
	DiscTypeGDROM DiscType = 0x80
)

// TrackFlag is a bit in a track's Q-subchannel control nibble.
type TrackFlag uint8

const (
	TrackFlagPreemph  TrackFlag = 0x10
	TrackFlagCopyPerm TrackFlag = 0x20
	TrackFlagData     TrackFlag = 0x40
	TrackFlagFourChan TrackFlag = 0x80
)

// MaxTracks is the largest track number a TOC can hold (Red Book caps a
// disc at 99 tracks).
const MaxTracks = 99

// Track describes one entry of a disc's table of contents.
type Track struct {
	TrackNo   int
	SessionNo int
	LBA       LBA
	Flags     TrackFlag
	Source    Source
}

// Disc is a sector source assembled from a table of contents of one or
// more underlying Track sources - an image file's tracks, or a physical
// drive's sessions. Disc itself implements Source: ReadBlocks always
// fails (a disc has no single native block layout), and ReadSectors
// dispatches each request to the track(s) it spans.
type Disc struct {
	sourceBase

	Name         string
	Type         DiscType
	MCN          string
	TrackCount   int
	SessionCount int
	Leadout      LBA
	Tracks       [MaxTracks]Track

	// BaseSource is the underlying file or device the TOC was read from,
	// held for the lifetime of the disc.
	BaseSource Source

	CheckMediaFunc func(*Disc) bool
	ReadTOCFunc    func(*Disc) error
	PlayAudioFunc  func(*Disc, LBA, uint32) error
	ScanAudioFunc  func(*Disc, LBA, bool) error
	StopAudioFunc  func(*Disc) error
}

// NewDisc allocates an empty disc with the given name (typically the
// image filename); tracks are numbered but otherwise unpopulated until a
// loader's ReadTOCFunc runs.
func NewDisc(name string) *Disc {
	d := &Disc{Name: name, Type: DiscTypeNone}
	d.sourceBase = newSourceBase(ModeUnknown, 0, d.destroy)
	for i := range d.Tracks {
		d.Tracks[i].TrackNo = i + 1
	}
	return d
}

func (d *Disc) destroy() {
	for i := 0; i < d.TrackCount; i++ {
		if d.Tracks[i].Source != nil {
			d.Tracks[i].Source.Unref()
		}
	}
	if d.BaseSource != nil {
		d.BaseSource.Unref()
	}
}

// ReadBlocks is not meaningful on a Disc - a disc has no single native
// block layout, only per-track ones.
func (d *Disc) ReadBlocks(lba LBA, count uint32, buf []byte) error {
	return ErrBadRead
}

// ReadSectors splits [lba, lba+count) across the track(s) it spans and
// reads from each in turn, mirroring default_image_read_sectors.
func (d *Disc) ReadSectors(lba LBA, count uint32, mode ReadMode, buf []byte) (int, error) {
	total := 0
	current := uint32(0)
	for current < count {
		track := d.GetTrackByLBA(lba + LBA(current))
		if track == nil {
			return total, ErrBadRead
		}
		trackSize := d.GetTrackSize(track)
		trackOffset := uint32(lba) + current - uint32(track.LBA)
		subCount := count - current
		if trackSize-trackOffset < subCount {
			subCount = trackSize - trackOffset
		}
		n, err := track.Source.ReadSectors(LBA(trackOffset), subCount, mode, buf[total:])
		if err != nil {
			return total, err
		}
		total += n
		current += subCount
	}
	return total, nil
}

// GetTrack returns the track with the given 1-based track number, or nil
// if out of range. The reference implementation compares with >=, an
// off-by-one that rejects the disc's own last track; this uses > (the
// corrected bound) instead.
func (d *Disc) GetTrack(track int) *Track {
	if track < 1 || track > d.TrackCount {
		return nil
	}
	return &d.Tracks[track-1]
}

// GetSession returns the first track of the given session number.
func (d *Disc) GetSession(session int) *Track {
	for i := 0; i < d.TrackCount; i++ {
		if d.Tracks[i].SessionNo == session {
			return &d.Tracks[i]
		}
	}
	return nil
}

func (d *Disc) GetLastTrack() *Track {
	if d.TrackCount == 0 {
		return nil
	}
	return &d.Tracks[d.TrackCount-1]
}

func (d *Disc) GetLastDataTrack() *Track {
	for i := d.TrackCount; i > 0; i-- {
		if d.Tracks[i-1].Flags&TrackFlagData != 0 {
			return &d.Tracks[i-1]
		}
	}
	return nil
}

func (d *Disc) PrevTrack(t *Track) *Track {
	if t.TrackNo <= 1 {
		return nil
	}
	return d.GetTrack(t.TrackNo - 1)
}

func (d *Disc) NextTrack(t *Track) *Track {
	if t.TrackNo >= d.TrackCount {
		return nil
	}
	return d.GetTrack(t.TrackNo + 1)
}

// GetTrackSize returns the size of the track in sectors, including the
// inter-track gap up to the start of the next track (or leadout, for the
// last track).
func (d *Disc) GetTrackSize(t *Track) uint32 {
	if t.TrackNo == d.TrackCount {
		return uint32(d.Leadout) - uint32(t.LBA)
	}
	return uint32(d.Tracks[t.TrackNo].LBA) - uint32(t.LBA)
}

// GetTrackByLBA finds the track containing the given sector address, or
// nil if lba lies outside the disc (before the first track or at/after
// leadout).
func (d *Disc) GetTrackByLBA(lba LBA) *Track {
	if d.TrackCount == 0 || d.Tracks[0].LBA > lba || lba >= d.Leadout {
		return nil
	}
	for i := 1; i < d.TrackCount; i++ {
		if lba < d.Tracks[i].LBA {
			return &d.Tracks[i-1]
		}
	}
	return &d.Tracks[d.TrackCount-1]
}

// ComputeLeadout recalculates the disc's leadout LBA from the last
// track's extent, if larger than the current value.
func (d *Disc) ComputeLeadout() LBA {
	if d.TrackCount == 0 {
		d.Leadout = 0
	} else {
		last := &d.Tracks[d.TrackCount-1]
		if last.Source != nil {
			leadout := last.LBA + LBA(last.Source.Size())
			if leadout > d.Leadout {
				d.Leadout = leadout
			}
		}
	}
	return d.Leadout
}

// SetDefaultDiscType infers a disc type from its tracks when a loader
// didn't set one explicitly.
func (d *Disc) SetDefaultDiscType() {
	discType := DiscTypeNone
	for i := 0; i < d.TrackCount; i++ {
		t := &d.Tracks[i]
		if t.Flags&TrackFlagData == 0 {
			if discType == DiscTypeNone {
				discType = DiscTypeAudio
			}
		} else if t.Source != nil && (t.Source.Mode() == ModeMode1 || t.Source.Mode() == ModeRawNonXA) {
			if discType != DiscTypeXA {
				discType = DiscTypeNonXA
			}
		} else {
			discType = DiscTypeXA
			break
		}
	}
	d.Type = discType
}

// ClearTOC resets the disc to the empty state, releasing all tracks.
func (d *Disc) ClearTOC() {
	d.Type = DiscTypeNone
	d.Leadout = 0
	d.TrackCount = 0
	d.SessionCount = 0
	for i := range d.Tracks {
		if d.Tracks[i].Source != nil {
			d.Tracks[i].Source.Unref()
			d.Tracks[i].Source = nil
		}
	}
}

// ReadTOC runs the disc's loader-supplied TOC reader, if any, resetting
// to an empty TOC first and filling in the disc type/leadout afterward
// when the loader didn't set them.
func (d *Disc) ReadTOC() error {
	if d.ReadTOCFunc == nil {
		return nil
	}
	d.ClearTOC()
	if err := d.ReadTOCFunc(d); err != nil {
		d.ClearTOC()
		return err
	}
	if d.Type == DiscTypeNone {
		d.SetDefaultDiscType()
	}
	d.ComputeLeadout()
	return nil
}

// CheckMedia reports whether a disc is present, invoking the
// loader-supplied change check first if there is one.
func (d *Disc) CheckMedia() error {
	if d.CheckMediaFunc != nil {
		d.CheckMediaFunc(d)
	}
	if d.Type == DiscTypeNone {
		return ErrNoDisc
	}
	return nil
}

// PrintTOC writes a human-readable session/track listing, mirroring
// cdrom_disc_print_toc.
func (d *Disc) PrintTOC(w io.Writer) {
	if d.TrackCount == 0 {
		fmt.Fprintln(w, "No disc")
		return
	}
	session := 0
	for i := 0; i < d.TrackCount; i++ {
		t := &d.Tracks[i]
		if t.SessionNo != session {
			session = t.SessionNo
			fmt.Fprintf(w, "Session %d:\n", session)
		}
		fmt.Fprintf(w, "  %02d. %6d %02x\n", t.TrackNo, t.LBA, t.Flags)
	}
}

// NewDiscFromTrack builds a single-track synthetic disc around an
// already-open source, optionally padding it with a leading filler track
// when lba is nonzero (placing the real track in its own second
// session), per cdrom_disc_new_from_track.
func NewDiscFromTrack(discType DiscType, track Source, lba LBA) (*Disc, error) {
	if track == nil {
		return nil, errors.New("cdimg: NewDiscFromTrack requires a non-nil track source")
	}
	d := NewDisc("")
	d.Type = discType

	trackno := 0
	if lba != 0 {
		size := uint32(lba) - 150
		if lba < 150 {
			size = uint32(lba)
		}
		d.Tracks[0].TrackNo = 1
		d.Tracks[0].SessionNo = 1
		d.Tracks[0].LBA = 0
		d.Tracks[0].Flags = 0
		filler := NewNullSource(ModeCDDA, size)
		filler.Ref()
		d.Tracks[0].Source = filler
		trackno++
	}

	d.Tracks[trackno].TrackNo = trackno + 1
	d.Tracks[trackno].SessionNo = trackno + 1
	d.Tracks[trackno].LBA = lba
	if track.Mode() != ModeCDDA {
		d.Tracks[trackno].Flags = TrackFlagData
	}
	d.Tracks[trackno].Source = track
	track.Ref()

	d.TrackCount = trackno + 1
	d.SessionCount = trackno + 1
	d.ComputeLeadout()
	return d, nil
}
