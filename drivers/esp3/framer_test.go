package esp3

import (
	"bytes"
	"testing"
)

// 4BS telegram from 0180A3F1, A5-02-05 DB1=0x80, LRN=1, dBm -74.
var frame4BS = []byte{
	0x55, 0x00, 0x0A, 0x07, 0x01, 0xEB,
	0xA5, 0x00, 0x00, 0x80, 0x08, 0x01, 0x80, 0xA3, 0xF1, 0x00,
	0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0x4A, 0x00,
	0xD3,
}

// Line noise containing several spurious sync bytes, none of which starts
// a frame with a valid header checksum.
var noise = []byte{
	0xA5, 0x4D, 0xCA, 0x55, 0x25, 0x30, 0xBB, 0x1D, 0x6D, 0x13, 0x55, 0x55,
	0xD6, 0x23, 0x7B, 0x2E, 0xD9, 0x1E, 0x3F, 0x72, 0x1F, 0xCB, 0x19, 0x71,
	0x17, 0x44, 0x94, 0xD6, 0x49, 0x3C, 0x55, 0x5C, 0x34, 0x60, 0xBE, 0x31,
	0x20, 0x1E, 0x69, 0xFE, 0xDA, 0xA0, 0xEE, 0xE8, 0xB9, 0x99, 0x7F, 0x5C,
}

type captured struct {
	typ  PacketType
	data []byte
	opt  []byte
}

// feed pushes stream in chunks of size n (n<=0 means all at once).
func feed(f *Framer, stream []byte, n int, now int64) []captured {
	var out []captured
	emit := func(t Telegram) {
		out = append(out, captured{
			typ:  t.Type,
			data: append([]byte(nil), t.Data...),
			opt:  append([]byte(nil), t.Optional...),
		})
	}
	if n <= 0 {
		n = len(stream)
	}
	for len(stream) > 0 {
		k := n
		if k > len(stream) {
			k = len(stream)
		}
		f.Write(stream[:k], now, emit)
		stream = stream[k:]
	}
	return out
}

func TestFramer_SingleFrame(t *testing.T) {
	f := NewFramer(FramerConfig{})
	got := feed(f, frame4BS, 0, 1)
	if len(got) != 1 {
		t.Fatalf("frames = %d, want 1", len(got))
	}
	if got[0].typ != PacketRadioERP1 || len(got[0].data) != 10 || len(got[0].opt) != 7 {
		t.Fatalf("unexpected telegram %+v", got[0])
	}
	if !bytes.Equal(got[0].data, frame4BS[6:16]) || !bytes.Equal(got[0].opt, frame4BS[16:23]) {
		t.Fatalf("payload mismatch")
	}
	if st := f.Stats(); st.Frames != 1 || st.Malformed != 0 {
		t.Fatalf("stats %+v", st)
	}
}

func TestFramer_ValidFrameThenGarbage_ChunkingInvariant(t *testing.T) {
	stream := append(append([]byte(nil), frame4BS...), noise...)

	var ref []captured
	for _, chunk := range []int{0, 1, 2, 3, 5, 7, 11, 64} {
		f := NewFramer(FramerConfig{})
		got := feed(f, stream, chunk, 1)
		if len(got) != 1 {
			t.Fatalf("chunk=%d: frames = %d, want 1", chunk, len(got))
		}
		if f.InFrame() {
			t.Fatalf("chunk=%d: framer left mid-frame by noise", chunk)
		}
		if ref == nil {
			ref = got
			continue
		}
		if got[0].typ != ref[0].typ || !bytes.Equal(got[0].data, ref[0].data) || !bytes.Equal(got[0].opt, ref[0].opt) {
			t.Fatalf("chunk=%d: output differs from all-at-once", chunk)
		}
	}
}

func TestFramer_LeadingGarbageAndBackToBack(t *testing.T) {
	second, _ := Radio{RORG: RORG4BS, Payload: []byte{0, 0, 0x40, 0x08}, Sender: 0x01020304}.Append(nil)
	stream := append([]byte{0x00, 0x13, 0xFF}, frame4BS...)
	stream = append(stream, second...)

	f := NewFramer(FramerConfig{})
	got := feed(f, stream, 1, 1)
	if len(got) != 2 {
		t.Fatalf("frames = %d, want 2", len(got))
	}
	if got[1].data[4] != 0x08 || len(got[1].opt) != 0 {
		t.Fatalf("second frame wrong: %+v", got[1])
	}
	if f.Stats().Dropped != 3 {
		t.Fatalf("dropped = %d, want 3", f.Stats().Dropped)
	}
}

func TestFramer_SingleBitFlipIsMalformed(t *testing.T) {
	for i := 1; i < len(frame4BS); i++ {
		for bit := 0; bit < 8; bit++ {
			bad := append([]byte(nil), frame4BS...)
			bad[i] ^= 1 << bit
			f := NewFramer(FramerConfig{})
			got := feed(f, bad, 1, 1)
			if len(got) != 0 {
				t.Fatalf("byte %d bit %d: corrupted frame emitted", i, bit)
			}
			if f.Stats().Malformed == 0 {
				t.Fatalf("byte %d bit %d: not counted as malformed", i, bit)
			}
		}
	}
}

func TestFramer_HeaderResyncOnEmbeddedSync(t *testing.T) {
	// A stray 0x55 followed by the real frame: the stray byte's "header"
	// contains the real sync byte and must not swallow it.
	stream := append([]byte{0x55, 0x00}, frame4BS...)
	f := NewFramer(FramerConfig{})
	got := feed(f, stream, 1, 1)
	if len(got) != 1 {
		t.Fatalf("frames = %d, want 1", len(got))
	}
	if f.Stats().Malformed != 1 {
		t.Fatalf("malformed = %d, want 1", f.Stats().Malformed)
	}
}

func TestFramer_TruncatedFrameDoesNotHideNext(t *testing.T) {
	// Header plus six body bytes, then the module restarts and sends two
	// whole frames. The first whole frame lands inside the truncated one.
	stream := append([]byte(nil), frame4BS[:12]...)
	stream = append(stream, frame4BS...)
	stream = append(stream, frame4BS...)

	for _, chunk := range []int{0, 1, 3, 7} {
		f := NewFramer(FramerConfig{})
		got := feed(f, stream, chunk, 1)
		if len(got) != 2 {
			t.Fatalf("chunk=%d: frames = %d, want 2", chunk, len(got))
		}
		for i := range got {
			if !bytes.Equal(got[i].data, frame4BS[6:16]) {
				t.Fatalf("chunk=%d: frame %d payload % X", chunk, i, got[i].data)
			}
		}
		if st := f.Stats(); st.Malformed != 1 || st.Dropped != 11 {
			t.Fatalf("chunk=%d: stats %+v", chunk, st)
		}
	}
}

func TestFramer_FrameRecoveredWhollyFromRejectedBody(t *testing.T) {
	// A truncated 4BS frame swallows a complete short command frame and the
	// zero padding after it; the command must still come out, in order,
	// ahead of the frame that follows.
	cmd := TransparentModeCommand(nil, true)
	stream := append([]byte(nil), frame4BS[:8]...)
	stream = append(stream, cmd...)
	stream = append(stream, make([]byte, 7)...)
	stream = append(stream, frame4BS...)

	for _, chunk := range []int{0, 1, 5} {
		f := NewFramer(FramerConfig{})
		got := feed(f, stream, chunk, 1)
		if len(got) != 2 {
			t.Fatalf("chunk=%d: frames = %d, want 2", chunk, len(got))
		}
		if got[0].typ != PacketCommonCommand || !bytes.Equal(got[0].data, cmd[6:8]) {
			t.Fatalf("chunk=%d: first frame %+v", chunk, got[0])
		}
		if got[1].typ != PacketRadioERP1 {
			t.Fatalf("chunk=%d: second frame %+v", chunk, got[1])
		}
		if f.InFrame() {
			t.Fatalf("chunk=%d: left mid-frame", chunk)
		}
	}
}

func TestFramer_LengthLimits(t *testing.T) {
	big := make([]byte, 20)
	big[0] = RORGVLD
	frame, err := AppendFrame(nil, PacketRadioERP1, big, nil)
	if err != nil {
		t.Fatal(err)
	}
	f := NewFramer(FramerConfig{MaxDataLen: 16})
	if got := feed(f, frame, 0, 1); len(got) != 0 {
		t.Fatalf("oversized frame accepted")
	}
	if f.Stats().Malformed != 1 || f.InFrame() {
		t.Fatalf("stats %+v inFrame=%v", f.Stats(), f.InFrame())
	}

	// Zero-length data is never valid.
	hdr := []byte{0x00, 0x00, 0x00, 0x01}
	zero := append([]byte{SyncByte}, hdr...)
	zero = append(zero, CRC8(hdr))
	f = NewFramer(FramerConfig{})
	feed(f, zero, 0, 1)
	if f.Stats().Malformed != 1 {
		t.Fatalf("zero-length frame not rejected")
	}
}

func TestFramer_InterByteTimeout(t *testing.T) {
	f := NewFramer(FramerConfig{InterByteTimeoutMs: 100})

	// Half a frame, then silence.
	f.Write(frame4BS[:10], 1000, nil)
	if !f.InFrame() {
		t.Fatal("expected frame in progress")
	}
	if f.Expire(1050) {
		t.Fatal("expired too early")
	}
	if !f.Expire(1200) {
		t.Fatal("did not expire")
	}
	if f.InFrame() || f.Stats().Timeouts != 1 {
		t.Fatalf("state after expire: inFrame=%v stats=%+v", f.InFrame(), f.Stats())
	}

	// A late byte aborts the stale frame and is itself considered for sync.
	f.Write(frame4BS[:10], 2000, nil)
	var n int
	n += f.Write(frame4BS, 2500, nil)
	if n != 1 {
		t.Fatalf("frames after late resync = %d, want 1", n)
	}
	if f.Stats().Timeouts != 2 {
		t.Fatalf("timeouts = %d, want 2", f.Stats().Timeouts)
	}
}

func TestAppendFrame_KnownCommands(t *testing.T) {
	got, err := AppendFrame(nil, PacketCommonCommand, []byte{CmdReadVersion}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x55, 0x00, 0x01, 0x00, 0x05, 0x70, 0x03, 0x09}
	if !bytes.Equal(got, want) {
		t.Fatalf("CO_RD_VERSION = % X want % X", got, want)
	}

	got = TransparentModeCommand(nil, true)
	want = []byte{0x55, 0x00, 0x02, 0x00, 0x05, 0xCD, 0x3E, 0x01, 0x28}
	if !bytes.Equal(got, want) {
		t.Fatalf("transparent mode = % X want % X", got, want)
	}

	if _, err := AppendFrame(nil, PacketCommonCommand, nil, nil); err == nil {
		t.Fatal("empty data accepted")
	}
}

func TestRadioAppend_RoundTrip(t *testing.T) {
	r := Radio{RORG: RORG4BS, Payload: []byte{0x00, 0x00, 0x80, 0x08}, Sender: 0x0180A3F1, DBm: -74}
	got, err := r.Append(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, frame4BS) {
		t.Fatalf("encoded % X\nwant    % X", got, frame4BS)
	}
}
