package cdimg

import "testing"

// fakeTransport is a PacketTransport test double that returns a canned
// TOC buffer for any READ TOC command and records the commands it saw.
type fakeTransport struct {
	tocResponse []byte
	readErr     error
	lastCmd     [12]byte
	playCmds    [][12]byte
	changed     bool
}

func (f *fakeTransport) PacketRead(cmd [12]byte, buf []byte) (int, error) {
	f.lastCmd = cmd
	if f.readErr != nil {
		return 0, f.readErr
	}
	n := copy(buf, f.tocResponse)
	return n, nil
}

func (f *fakeTransport) PacketCmd(cmd [12]byte) error {
	f.playCmds = append(f.playCmds, cmd)
	return nil
}

func (f *fakeTransport) MediaChanged() bool { return f.changed }

// buildTOC2 assembles a minimal READ TOC format-2 response with one data
// track, a session-info record, and a leadout record.
func buildTOC2() []byte {
	buf := make([]byte, 4+3*11)
	total := len(buf) - 2
	buf[0] = byte(total >> 8)
	buf[1] = byte(total)

	rec := func(i int, session int, adr, control uint8, point int, m, s, fr uint8) {
		off := 4 + i*11
		buf[off] = byte(session)
		buf[off+1] = adr<<4 | control
		buf[off+3] = byte(point)
		buf[off+8] = m
		buf[off+9] = s
		buf[off+10] = fr
	}
	rec(0, 1, 0x01, 0x04, 1, 0, 2, 0)   // track 1, data, LBA via MSF 00:02:00 = 0
	rec(1, 1, 0x01, 0x00, 0xA0, 0, 0, 0x00) // session info, non-XA
	rec(2, 1, 0x01, 0x00, 0xA2, 0, 4, 0) // leadout at 00:04:00

	return buf
}

func TestParseTOC2(t *testing.T) {
	disc := NewDisc("physical")
	parseTOC2(disc, buildTOC2())

	if disc.TrackCount != 1 {
		t.Fatalf("TrackCount = %d, want 1", disc.TrackCount)
	}
	if disc.Tracks[0].TrackNo != 1 {
		t.Errorf("track 0 TrackNo = %d, want 1", disc.Tracks[0].TrackNo)
	}
	if disc.Tracks[0].Flags&TrackFlagData == 0 {
		t.Errorf("track 0 flags = %#x, want data bit set", disc.Tracks[0].Flags)
	}
	if disc.Leadout == 0 {
		t.Errorf("leadout not parsed")
	}
	if disc.Type != DiscTypeNonXA {
		t.Errorf("disc type = %v, want DiscTypeNonXA", disc.Type)
	}
}

func TestPhysicalDiscReadTOCIgnoresNotReady(t *testing.T) {
	transport := &fakeTransport{readErr: Error(ErrNoDisc)}
	d := NewPhysicalDisc("drive", transport)
	if err := d.ReadTOC(); err != nil {
		t.Fatalf("ReadTOC with not-ready sense returned error: %v", err)
	}
}

func TestPhysicalDiscReadTOC(t *testing.T) {
	transport := &fakeTransport{tocResponse: buildTOC2()}
	d := NewPhysicalDisc("drive", transport)
	if d.TrackCount != 1 {
		t.Fatalf("TrackCount = %d, want 1", d.TrackCount)
	}
	if transport.lastCmd[0] != 0x43 {
		t.Errorf("last command opcode = %#x, want 0x43 (READ TOC)", transport.lastCmd[0])
	}
}

func TestPhysicalDiscPlayAudio(t *testing.T) {
	transport := &fakeTransport{tocResponse: buildTOC2()}
	d := NewPhysicalDisc("drive", transport)
	if err := d.scsiPlayAudio(150, 75); err != nil {
		t.Fatalf("scsiPlayAudio: %v", err)
	}
	if len(transport.playCmds) == 0 || transport.playCmds[len(transport.playCmds)-1][0] != 0xA5 {
		t.Errorf("play audio command not issued as opcode 0xA5")
	}
	if err := d.scsiStopAudio(); err != nil {
		t.Fatalf("scsiStopAudio: %v", err)
	}
	if transport.playCmds[len(transport.playCmds)-1][0] != 0x4E {
		t.Errorf("stop audio command not issued as opcode 0x4E")
	}
}

func TestTrimField(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"SONY    ", "SONY"},
		{"  PADDED  ", "PADDED"},
		{"EXACT", "EXACT"},
	}
	for _, c := range cases {
		if got := trimField([]byte(c.in)); got != c.want {
			t.Errorf("trimField(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
