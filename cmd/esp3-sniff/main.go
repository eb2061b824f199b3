// Command esp3-sniff decodes the ESP3 stream of a USB300/TCM310 gateway on a
// host and runs the receiver core against it: the same framer, pairing
// machine and address store the firmware uses. A session can be recorded to
// a capture file and replayed later.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"temppair-go/bus"
	"temppair-go/drivers/esp3"
	"temppair-go/host/capture"
	"temppair-go/host/fileflash"
	"temppair-go/host/serialport"
	"temppair-go/services/addrstore"
	"temppair-go/services/hal"
	"temppair-go/services/pairing"
	"temppair-go/services/thermo"
	"temppair-go/x/conv"
	"temppair-go/x/shmring"
	"temppair-go/x/timex"
)

type options struct {
	Port        string
	Baud        int
	Record      string
	Replay      string
	Profile     string
	Store       string
	Capacity    int
	Pair        bool
	Window      time.Duration
	TeachIn     bool
	MaxDBm      int
	Stale       time.Duration
	Transparent bool
	Verbose     bool
}

func (o *options) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Port, "port", "p", "/dev/ttyUSB0", "serial device of the ESP3 gateway")
	fs.IntVar(&o.Baud, "baud", serialport.DefaultBaud, "line rate")
	fs.StringVar(&o.Record, "record", "", "write a capture of the link to this file")
	fs.StringVar(&o.Replay, "replay", "", "replay a capture file instead of opening a port")
	fs.StringVar(&o.Profile, "profile", esp3.DefaultProfile.String(), "temperature EEP (A5-02-05, A5-04-03, A5-09-04)")
	fs.StringVar(&o.Store, "store", "", "file backing the address store (default: in memory)")
	fs.IntVar(&o.Capacity, "capacity", addrstore.DefaultCapacity, "number of pairable sensors")
	fs.BoolVar(&o.Pair, "pair", false, "open a pairing session at start")
	fs.DurationVar(&o.Window, "window", 30*time.Second, "pairing session length")
	fs.BoolVar(&o.TeachIn, "teach-in", false, "only learn from teach-in telegrams")
	fs.IntVar(&o.MaxDBm, "max-dbm", 0, "ignore weaker telegrams while pairing, e.g. -70 (0 disables)")
	fs.DurationVar(&o.Stale, "stale", 30*time.Minute, "reading age after which a sensor is stale")
	fs.BoolVar(&o.Transparent, "transparent", true, "enable transparent mode on the gateway at start")
	fs.BoolVarP(&o.Verbose, "verbose", "v", false, "log every telegram and state change")
}

func main() {
	var o options
	fs := pflag.NewFlagSet("esp3-sniff", pflag.ExitOnError)
	o.bind(fs)
	_ = fs.Parse(os.Args[1:])

	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	if o.Replay != "" {
		var st thermo.Stats
		st, err = replay(ctx, o, log)
		logStats(log, st)
	} else {
		err = live(ctx, o, log)
	}
	if err != nil {
		log.Error("esp3-sniff failed", "err", err)
		os.Exit(1)
	}
}

// session is one receiver core plus a decode-everything tap.
type session struct {
	log   *slog.Logger
	ring  *shmring.Ring
	conn  *bus.Connection
	watch *bus.Connection
	core  *thermo.Core
	tap   *esp3.Framer
	prof  esp3.Profile
	close func() error
	done  chan struct{}
}

func newSession(o options, log *slog.Logger, now func() int64) (*session, error) {
	prof, ok := esp3.ParseProfile(o.Profile)
	if !ok || !prof.Supported() {
		return nil, fmt.Errorf("unsupported profile %q", o.Profile)
	}
	if o.Capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive")
	}

	size := addrstore.ImageSize(o.Capacity)
	var medium addrstore.Medium
	closeStore := func() error { return nil }
	if o.Store != "" {
		f, err := fileflash.Open(o.Store, size)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		medium, closeStore = f, f.Close
	} else {
		medium = addrstore.NewRAM(size)
	}
	store, rec, err := addrstore.Open(medium, addrstore.Options{Capacity: o.Capacity})
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("open store: %w", err)
	}
	log.Info("address store", "recovery", rec.String(), "paired", store.Len(), "capacity", store.Capacity())
	for _, e := range store.All() {
		log.Info("paired sensor", "slot", e.Slot, "id", idString(e.ID), "paired_at", e.PairedAt)
	}

	b := bus.NewBus(64)
	s := &session{
		log:   log,
		ring:  shmring.New(4096),
		conn:  b.NewConnection("esp3-sniff"),
		watch: b.NewConnection("esp3-sniff-log"),
		tap:   esp3.NewFramer(esp3.FramerConfig{}),
		prof:  prof,
		close: closeStore,
		done:  make(chan struct{}),
	}
	s.core = thermo.New(s.ring, store, rec, s.conn, thermo.Config{
		Profile: prof,
		Pairing: pairing.Config{
			WindowMs:       o.Window.Milliseconds(),
			RequireTeachIn: o.TeachIn,
			MaxDBm:         int8(o.MaxDBm),
		},
		StaleMs: o.Stale.Milliseconds(),
		Now:     now,
	})
	go s.logLoop(s.watch.Subscribe(bus.T("#")))
	return s, nil
}

// tapWrite decodes p independently of the core, so unpaired sensors show up
// in the log too.
func (s *session) tapWrite(p []byte, nowMs int64) {
	s.tap.Write(p, nowMs, func(t esp3.Telegram) {
		ev, err := esp3.Interpret(t, s.prof)
		if err != nil {
			s.log.Debug("frame", "type", t.Type.String(), "len", len(t.Data), "err", err)
			return
		}
		s.log.Debug("telegram", "id", idString(ev.ID), "rorg", fmt.Sprintf("%02X", ev.RORG),
			"teach_in", ev.TeachIn, "dbm", ev.DBm)
	})
}

// feed hands received bytes to the core, draining it when the ring is full.
// Only for callers on the core's goroutine.
func (s *session) feed(p []byte, nowMs int64) {
	s.tapWrite(p, nowMs)
	for len(p) > 0 {
		n := s.ring.TryWriteFrom(p)
		p = p[n:]
		if len(p) > 0 {
			s.core.Poll(nowMs)
		}
	}
}

// logLoop logs what the core publishes until the connection is closed.
func (s *session) logLoop(sub *bus.Subscription) {
	defer close(s.done)
	for m := range sub.Channel() {
		switch v := m.Payload.(type) {
		case esp3.SensorEvent:
			s.log.Info("reading", "id", idString(v.ID), "temp_c", float64(v.TempDeciC)/10, "dbm", v.DBm)
		case pairing.Result:
			attrs := []any{"outcome", v.Outcome.String()}
			if v.ID != 0 {
				attrs = append(attrs, "id", idString(v.ID))
			}
			if v.Err != nil {
				attrs = append(attrs, "err", v.Err)
			}
			s.log.Info("pairing", attrs...)
		case thermo.PairingState:
			s.log.Debug("pairing state", "state", v.State, "paired", v.Paired, "capacity", v.Capacity)
		case []byte:
			s.log.Debug("tx", "bytes", fmt.Sprintf("% X", v))
		}
	}
}

func (s *session) shutdown() error {
	s.conn.Disconnect()
	s.watch.Disconnect()
	<-s.done
	return s.close()
}

func live(ctx context.Context, o options, log *slog.Logger) error {
	cfg := serialport.DefaultConfig(o.Port)
	cfg.Baud = o.Baud
	port, err := serialport.Open(cfg)
	if err != nil {
		return err
	}
	defer port.Close()

	var rec *capture.Writer
	if o.Record != "" {
		if rec, err = capture.Create(o.Record); err != nil {
			return err
		}
		defer rec.Close()
	}

	s, err := newSession(o, log, timex.NowMs)
	if err != nil {
		return err
	}
	defer s.shutdown()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Frames the core wants sent go straight to the port.
	tx := s.conn.Subscribe(hal.TopicRadioTX)
	go func() {
		for m := range tx.Channel() {
			p, _ := m.Payload.([]byte)
			if len(p) == 0 {
				continue
			}
			if _, err := port.Write(p); err != nil {
				log.Warn("radio tx", "err", err)
				continue
			}
			if rec != nil {
				_ = rec.Write(capture.Record{TSms: timex.NowMs(), Dir: capture.TX, Data: p})
			}
		}
	}()

	// The reader is the ring's only producer.
	go func() {
		defer cancel()
		buf := make([]byte, 256)
		for ctx.Err() == nil {
			n, err := port.Read(buf)
			if n > 0 {
				now := timex.NowMs()
				if rec != nil {
					_ = rec.Write(capture.Record{TSms: now, Dir: capture.RX, Data: append([]byte(nil), buf[:n]...)})
				}
				s.tapWrite(buf[:n], now)
				if w := s.ring.TryWriteFrom(buf[:n]); w < n {
					log.Warn("ring overflow", "lost", n-w)
				}
			}
			if err != nil && !errors.Is(err, io.EOF) {
				log.Error("serial read", "err", err)
				return
			}
		}
	}()

	if o.Transparent {
		s.conn.Publish(s.conn.NewMessage(hal.TopicRadioTX, esp3.TransparentModeCommand(nil, true), false))
	}
	if o.Pair {
		s.core.StartPairing(timex.NowMs())
	}
	log.Info("listening", "port", o.Port, "baud", cfg.Baud, "profile", o.Profile)

	err = s.core.Run(ctx)
	logStats(log, s.core.Stats())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// replay runs a capture through a fresh core on the capture's own clock.
func replay(ctx context.Context, o options, log *slog.Logger) (thermo.Stats, error) {
	r, err := capture.Open(o.Replay)
	if err != nil {
		return thermo.Stats{}, err
	}
	defer r.Close()

	var now int64
	s, err := newSession(o, log, func() int64 { return now })
	if err != nil {
		return thermo.Stats{}, err
	}
	defer s.shutdown()

	first := true
	for ctx.Err() == nil {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s.core.Stats(), err
		}
		if rec.Dir != capture.RX {
			continue
		}
		now = rec.TSms
		if first && o.Pair {
			s.core.StartPairing(now)
		}
		first = false
		s.core.Tick(now)
		s.feed(rec.Data, now)
		s.core.Poll(now)
	}
	return s.core.Stats(), ctx.Err()
}

func logStats(log *slog.Logger, st thermo.Stats) {
	log.Info("stats",
		"frames", st.Framer.Frames,
		"malformed", st.Framer.Malformed+st.Malformed,
		"timeouts", st.Framer.Timeouts,
		"dropped", st.Framer.Dropped,
		"events", st.Events,
		"readings", st.Readings,
		"unknown", st.Unknown,
		"learned", st.Learned,
	)
}

func idString(id esp3.SensorID) string { return conv.Hex32(uint32(id)) }
