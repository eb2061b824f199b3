package esp3

// DefaultInterByteTimeoutMs is the ESP3 inter-character timeout: a frame
// whose next byte does not arrive within this window is abandoned.
const DefaultInterByteTimeoutMs = 100

// FramerConfig controls buffering limits. Zero fields take defaults.
type FramerConfig struct {
	MaxDataLen         int
	MaxOptionalLen     int
	InterByteTimeoutMs int64 // <0 disables the timeout
}

// FramerStats are monotonically increasing counters.
type FramerStats struct {
	Frames    uint32 // CRC-valid frames emitted
	Malformed uint32 // header CRC, payload CRC or length violations
	Timeouts  uint32 // in-progress frames abandoned for inactivity
	Dropped   uint32 // bytes skipped while hunting for sync
}

type framerState uint8

const (
	stateSync framerState = iota
	stateHeader
	stateData
	stateCRC
)

// Framer is an incremental ESP3 frame extractor. It holds at most one frame
// in flight and never blocks; feed it bytes as they arrive.
//
// A rejected frame is not discarded wholesale: the bytes after its sync byte
// are scanned again, so a good frame that started inside a truncated one is
// still found.
type Framer struct {
	cfg FramerConfig

	st  framerState
	hdr [headerLen + 1]byte // header + CRC8H
	hn  int

	buf     []byte // data ‖ optional ‖ CRC8D, reused for every frame
	n       int
	dataLen int
	need    int

	// Bytes handed back by a rejected frame, replayed before new input.
	pend   []byte
	pi, pn int

	lastMs int64
	stats  FramerStats
}

// NewFramer allocates the frame buffers once.
func NewFramer(cfg FramerConfig) *Framer {
	if cfg.MaxDataLen <= 0 {
		cfg.MaxDataLen = DefaultMaxDataLen
	}
	if cfg.MaxDataLen > 0xFFFF {
		cfg.MaxDataLen = 0xFFFF
	}
	if cfg.MaxOptionalLen <= 0 {
		cfg.MaxOptionalLen = DefaultMaxOptionalLen
	}
	if cfg.MaxOptionalLen > 0xFF {
		cfg.MaxOptionalLen = 0xFF
	}
	if cfg.InterByteTimeoutMs == 0 {
		cfg.InterByteTimeoutMs = DefaultInterByteTimeoutMs
	}
	body := cfg.MaxDataLen + cfg.MaxOptionalLen + 1
	return &Framer{
		cfg:  cfg,
		buf:  make([]byte, body),
		pend: make([]byte, 2*(headerLen+1+body)),
	}
}

// Stats returns a copy of the counters.
func (f *Framer) Stats() FramerStats { return f.stats }

// InFrame reports whether a frame is partially accumulated.
func (f *Framer) InFrame() bool { return f.st != stateSync }

func (f *Framer) reset() {
	f.st = stateSync
	f.hn = 0
	f.n = 0
	f.need = 0
	f.dataLen = 0
}

func (f *Framer) timedOut(nowMs int64) bool {
	return f.st != stateSync && f.cfg.InterByteTimeoutMs > 0 &&
		nowMs-f.lastMs > f.cfg.InterByteTimeoutMs
}

// Expire abandons an in-progress frame whose last byte is older than the
// inter-byte timeout. Call it from the periodic tick.
func (f *Framer) Expire(nowMs int64) bool {
	if !f.timedOut(nowMs) {
		return false
	}
	f.stats.Timeouts++
	f.reset()
	return true
}

// Push consumes one byte. When it completes a CRC-valid frame the Telegram is
// returned with ok=true. A rejected frame can leave further frames to be
// recovered from bytes already pushed: after ok=true, call Next until it
// returns false before pushing more. Write does this itself.
func (f *Framer) Push(b byte, nowMs int64) (t Telegram, ok bool) {
	if f.timedOut(nowMs) {
		f.stats.Timeouts++
		f.reset()
	}
	f.lastMs = nowMs
	if f.pi == f.pn {
		if t, ok = f.step(b); ok || f.pi == f.pn {
			return t, ok
		}
		return f.Next()
	}
	f.queue(b)
	return f.Next()
}

// Next replays bytes handed back by a rejected frame and returns the next
// Telegram they complete, if any.
func (f *Framer) Next() (t Telegram, ok bool) {
	for f.pi < f.pn {
		b := f.pend[f.pi]
		f.pi++
		if t, ok = f.step(b); ok {
			return t, true
		}
	}
	f.pi, f.pn = 0, 0
	return Telegram{}, false
}

func (f *Framer) queue(b byte) {
	if f.pi > 0 {
		f.pn = copy(f.pend, f.pend[f.pi:f.pn])
		f.pi = 0
	}
	if f.pn == len(f.pend) {
		f.stats.Dropped++
		return
	}
	f.pend[f.pn] = b
	f.pn++
}

func (f *Framer) step(b byte) (t Telegram, ok bool) {
	switch f.st {
	case stateSync:
		if b == SyncByte {
			f.st = stateHeader
			f.hn = 0
		} else {
			f.stats.Dropped++
		}

	case stateHeader:
		f.hdr[f.hn] = b
		f.hn++
		if f.hn < len(f.hdr) {
			return
		}
		if CRC8(f.hdr[:headerLen]) != f.hdr[headerLen] {
			f.stats.Malformed++
			f.rescan(0)
			return
		}
		dataLen := int(f.hdr[0])<<8 | int(f.hdr[1])
		optLen := int(f.hdr[2])
		if dataLen == 0 || dataLen > f.cfg.MaxDataLen || optLen > f.cfg.MaxOptionalLen {
			f.stats.Malformed++
			f.rescan(0)
			return
		}
		f.dataLen = dataLen
		f.need = dataLen + optLen
		f.n = 0
		f.st = stateData

	case stateData:
		f.buf[f.n] = b
		f.n++
		if f.n == f.need {
			f.st = stateCRC
		}

	case stateCRC:
		need, dataLen := f.need, f.dataLen
		if CRC8(f.buf[:need]) != b {
			f.stats.Malformed++
			f.buf[need] = b
			f.rescan(need + 1)
			return
		}
		typ := PacketType(f.hdr[3])
		f.reset()
		f.stats.Frames++
		return Telegram{
			Type:     typ,
			Data:     f.buf[:dataLen:dataLen],
			Optional: f.buf[dataLen:need:need],
		}, true
	}
	return
}

// rescan drops the rejected frame's sync byte and queues everything after
// it (header plus the first body bytes of buf) for replay, starting at the
// next sync byte. Bytes before that sync byte are dropped.
func (f *Framer) rescan(body int) {
	hn := f.hn
	f.reset()

	skip := 0
	for skip < hn && f.hdr[skip] != SyncByte {
		skip++
	}
	bodySkip := 0
	if skip == hn {
		for bodySkip < body && f.buf[bodySkip] != SyncByte {
			bodySkip++
		}
	}
	f.stats.Dropped += uint32(skip + bodySkip)

	tail := hn - skip + body - bodySkip
	if tail == 0 {
		return
	}
	rest := f.pn - f.pi
	if tail+rest > len(f.pend) {
		// Only reachable when Next is skipped after Push; drop the oldest
		// queued input.
		f.stats.Dropped += uint32(tail + rest - len(f.pend))
		rest = max(len(f.pend)-tail, 0)
	}
	copy(f.pend[tail:], f.pend[f.pn-rest:f.pn])
	k := copy(f.pend, f.hdr[skip:hn])
	copy(f.pend[k:tail], f.buf[bodySkip:body])
	f.pi, f.pn = 0, tail+rest
}

// Write feeds a chunk, calling emit for each completed Telegram in order.
// It returns the number of Telegrams emitted. Chunk boundaries never change
// the output.
func (f *Framer) Write(p []byte, nowMs int64, emit func(Telegram)) int {
	count := 0
	for _, b := range p {
		t, ok := f.Push(b, nowMs)
		for ok {
			count++
			if emit != nil {
				emit(t)
			}
			t, ok = f.Next()
		}
	}
	return count
}
