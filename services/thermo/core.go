// Package thermo is the receiver's main loop. It drains radio bytes from the
// HAL ring, turns them into sensor events, drives the pairing machine and
// publishes readings and pairing feedback on the bus.
package thermo

import (
	"context"
	"errors"
	"time"

	"temppair-go/bus"
	"temppair-go/drivers/esp3"
	"temppair-go/services/addrstore"
	"temppair-go/services/config"
	"temppair-go/services/hal"
	"temppair-go/services/pairing"
	"temppair-go/services/sensors"
	"temppair-go/x/conv"
	"temppair-go/x/shmring"
	"temppair-go/x/timex"
)

// Defaults used when Config fields are zero.
const (
	DefaultTickMs      = 50
	DefaultLongPressMs = 5000
	DefaultStatsMs     = 60_000
)

// Config tunes the core. Zero fields take defaults.
type Config struct {
	Profile     esp3.Profile
	Framer      esp3.FramerConfig
	Pairing     pairing.Config
	StaleMs     int64
	TickMs      int64
	LongPressMs int64
	StatsMs     int64 // <0 disables periodic core/stats

	// Now is the millisecond clock; tests replace it.
	Now func() int64
}

// FromSection converts the retained config/thermo section.
func FromSection(s config.Thermo) Config {
	p, ok := esp3.ParseProfile(s.Profile)
	if !ok || !p.Supported() {
		p = esp3.DefaultProfile
	}
	statsMs := int64(s.StatsS) * 1000
	if s.StatsS == 0 {
		statsMs = -1
	}
	return Config{
		Profile: p,
		Pairing: pairing.Config{
			WindowMs:       int64(s.WindowS) * 1000,
			RequireTeachIn: s.RequireTeachIn,
			MaxDBm:         int8(s.MaxDBm),
		},
		StaleMs:     int64(s.StaleS) * 1000,
		TickMs:      int64(s.TickMs),
		LongPressMs: int64(s.LongPressMs),
		StatsMs:     statsMs,
	}
}

func (c *Config) defaults() {
	if c.Profile == 0 {
		c.Profile = esp3.DefaultProfile
	}
	if c.StaleMs <= 0 {
		c.StaleMs = sensors.DefaultStaleMs
	}
	if c.TickMs <= 0 {
		c.TickMs = DefaultTickMs
	}
	if c.LongPressMs <= 0 {
		c.LongPressMs = DefaultLongPressMs
	}
	if c.StatsMs == 0 {
		c.StatsMs = DefaultStatsMs
	}
	if c.Now == nil {
		c.Now = timex.NowMs
	}
}

// Stats are cumulative counters of the telegram path.
type Stats struct {
	Framer      esp3.FramerStats
	RingDropped uint32 // bytes lost before the loop drained them
	Events      uint32 // ERP1 telegrams decoded
	Readings    uint32 // events from paired sensors
	Unknown     uint32 // events from sensors not paired
	Malformed   uint32 // CRC-valid frames that failed ERP1 checks
	Unsupported uint32 // packet types or RORGs ignored
	ModuleReady uint32
	Learned     uint32
	StoreErrors uint32
}

// Core owns every piece of receiver state. All methods run on the loop
// goroutine.
type Core struct {
	cfg      Config
	ring     *shmring.Ring
	conn     *bus.Connection
	framer   *esp3.Framer
	store    *addrstore.Store
	machine  *pairing.Machine
	reg      *sensors.Registry
	recovery addrstore.Recovery

	stats     Stats
	lastState pairing.State
	lastStats int64
	chunk     [64]byte
	ids       []esp3.SensorID
	snap      []sensors.Entry
	published []sensors.Entry // last sensor/snapshot, nil before the first
}

// New assembles a core around an opened store. rec is the store's boot
// result and is published once Run starts.
func New(ring *shmring.Ring, store *addrstore.Store, rec addrstore.Recovery, conn *bus.Connection, cfg Config) *Core {
	cfg.defaults()
	return &Core{
		cfg:      cfg,
		ring:     ring,
		conn:     conn,
		framer:   esp3.NewFramer(cfg.Framer),
		store:    store,
		machine:  pairing.New(store, cfg.Pairing),
		reg:      sensors.New(store.Capacity()),
		recovery: rec,
		ids:      make([]esp3.SensorID, 0, store.Capacity()),
		snap:     make([]sensors.Entry, 0, store.Capacity()),
	}
}

// Stats returns a copy of the counters.
func (c *Core) Stats() Stats {
	s := c.stats
	s.Framer = c.framer.Stats()
	s.RingDropped = c.ring.Dropped()
	return s
}

// State is the pairing machine's state.
func (c *Core) State() pairing.State { return c.machine.State() }

// Configure applies a new config section. A running pairing session keeps
// its deadline; framer limits are fixed at construction.
func (c *Core) Configure(cfg Config) {
	cfg.Framer = c.cfg.Framer
	if cfg.Now == nil {
		cfg.Now = c.cfg.Now
	}
	cfg.defaults()
	c.cfg = cfg
	c.machine.Configure(cfg.Pairing)
}

// Poll drains the ring through the framer and handles every telegram. It
// returns the number of telegrams seen.
func (c *Core) Poll(nowMs int64) int {
	total := 0
	for {
		n := c.ring.TryReadInto(c.chunk[:])
		if n == 0 {
			return total
		}
		total += c.framer.Write(c.chunk[:n], nowMs, func(t esp3.Telegram) {
			c.handleTelegram(t, nowMs)
		})
	}
}

func (c *Core) handleTelegram(t esp3.Telegram, nowMs int64) {
	ev, err := esp3.Interpret(t, c.cfg.Profile)
	switch {
	case err == nil:
	case errors.Is(err, esp3.ErrModuleReady):
		c.stats.ModuleReady++
		println("[thermo] radio module ready, enabling transparent mode")
		// The HAL writes the slice after we return; it must not be reused.
		cmd := esp3.TransparentModeCommand(nil, true)
		c.conn.Publish(c.conn.NewMessage(hal.TopicRadioTX, cmd, false))
		return
	case errors.Is(err, esp3.ErrMalformed):
		c.stats.Malformed++
		return
	default:
		c.stats.Unsupported++
		return
	}

	ev.TSms = nowMs
	c.stats.Events++
	c.publishResult(c.machine.Handle(ev, nowMs))

	if _, ok := c.store.Lookup(ev.ID); !ok {
		c.stats.Unknown++
		return
	}
	c.stats.Readings++
	// A teach-in carries no measurement; keep the last real reading.
	if ev.TeachIn {
		return
	}
	c.reg.Record(ev)
	if ev.HasTemp {
		var tb [8]byte
		println("[thermo]", conv.Hex32(uint32(ev.ID)),
			string(conv.AppendDeci(tb[:0], int64(ev.TempDeciC))), "C", ev.DBm, "dBm")
	}
	c.conn.Publish(c.conn.NewMessage(ReadingTopic(ev.ID), ev, true))
}

// Tick expires a stalled frame, ends a timed-out session and publishes
// periodic stats. sensor/snapshot goes out with the stats, and also as soon
// as a sensor turns stale or fresh or the paired set changes.
func (c *Core) Tick(nowMs int64) {
	if c.framer.Expire(nowMs) {
		println("[thermo] Warn: partial frame timed out")
	}
	c.publishResult(c.machine.Tick(nowMs))

	periodic := c.cfg.StatsMs > 0 && timex.Elapsed(nowMs, c.lastStats, c.cfg.StatsMs)
	if periodic {
		c.lastStats = nowMs
		c.conn.Publish(c.conn.NewMessage(TopicStats, c.Stats(), false))
	}
	snap := c.Snapshot(nowMs)
	if periodic || c.published == nil || staleChanged(c.published, snap) {
		out := make([]sensors.Entry, len(snap))
		copy(out, snap)
		c.published = out
		c.conn.Publish(c.conn.NewMessage(TopicSnapshot, out, true))
	}
}

func staleChanged(prev, cur []sensors.Entry) bool {
	if len(prev) != len(cur) {
		return true
	}
	for i := range cur {
		if prev[i].ID != cur[i].ID || prev[i].Stale != cur[i].Stale {
			return true
		}
	}
	return false
}

// StartPairing opens (or re-opens) a pairing session.
func (c *Core) StartPairing(nowMs int64) {
	c.publishResult(c.machine.Trigger(nowMs))
}

// CancelPairing ends a running session.
func (c *Core) CancelPairing(nowMs int64) {
	c.publishResult(c.machine.Cancel(nowMs))
}

// Button maps a debounced button edge: a short press starts a session, or
// cancels a running one; a long press forgets every sensor.
func (c *Core) Button(ev hal.ButtonEvent, nowMs int64) {
	if ev.Pressed {
		return
	}
	if ev.HeldMs >= c.cfg.LongPressMs {
		if err := c.ForgetAll(nowMs); err != nil {
			println("[thermo] Warn: forget all:", err.Error())
		}
		return
	}
	if c.machine.State() == pairing.Pairing {
		c.CancelPairing(nowMs)
		return
	}
	c.StartPairing(nowMs)
}

// Unpair removes one sensor from the store and the registry.
func (c *Core) Unpair(id esp3.SensorID, nowMs int64) error {
	ok, err := c.store.Remove(id)
	if err != nil {
		c.stats.StoreErrors++
		return err
	}
	if !ok {
		return nil
	}
	c.reg.Forget(id)
	// Clear the retained reading.
	c.conn.Publish(c.conn.NewMessage(ReadingTopic(id), nil, true))
	c.publishState(nowMs, true)
	return nil
}

// ForgetAll erases the store and the registry and ends any session.
func (c *Core) ForgetAll(nowMs int64) error {
	paired := c.store.All()
	if err := c.store.EraseAll(); err != nil {
		c.stats.StoreErrors++
		return err
	}
	for _, e := range paired {
		c.conn.Publish(c.conn.NewMessage(ReadingTopic(e.ID), nil, true))
	}
	c.reg.Reset()
	println("[thermo] Info: forgot", len(paired), "sensors")
	c.CancelPairing(nowMs)
	c.publishState(nowMs, true)
	return nil
}

// Snapshot reports every paired sensor in slot order. The slice is reused
// by the next call.
func (c *Core) Snapshot(nowMs int64) []sensors.Entry {
	c.ids = c.store.AppendIDs(c.ids[:0])
	c.snap = c.reg.SnapshotFor(c.snap[:0], c.ids, nowMs, c.cfg.StaleMs)
	return c.snap
}

func (c *Core) publishResult(r pairing.Result) {
	if r.Outcome == pairing.OutcomeNone {
		return
	}
	switch r.Outcome {
	case pairing.OutcomeLearned:
		c.stats.Learned++
		println("[thermo] Info: paired", conv.Hex32(uint32(r.ID)), "in slot", r.Slot)
	case pairing.OutcomeStorageError:
		c.stats.StoreErrors++
		println("[thermo] Warn: pairing store:", r.Err.Error())
	default:
		println("[thermo] pairing", r.Outcome.String())
	}
	c.conn.Publish(c.conn.NewMessage(TopicPairingResult, r, false))
	c.publishState(r.AtMs, false)
}

// publishState publishes the retained pairing/state document when the
// machine state changed, or unconditionally when force is set.
func (c *Core) publishState(nowMs int64, force bool) {
	st := c.machine.State()
	if st == c.lastState && !force && st != pairing.Pairing {
		return
	}
	c.lastState = st
	c.conn.Publish(c.conn.NewMessage(TopicPairingState, PairingState{
		State:      st.String(),
		DeadlineMs: c.machine.DeadlineMs(),
		Paired:     c.store.Len(),
		Capacity:   c.store.Capacity(),
	}, true))
}

// Run is the main loop. It returns when ctx is cancelled.
func (c *Core) Run(ctx context.Context) error {
	start := c.conn.Subscribe(TopicStart)
	cancel := c.conn.Subscribe(TopicCancel)
	unpair := c.conn.Subscribe(TopicUnpair)
	forget := c.conn.Subscribe(TopicForgetAll)
	button := c.conn.Subscribe(hal.TopicButton)
	cfgSub := c.conn.Subscribe(config.TopicThermo)
	defer func() {
		for _, s := range []*bus.Subscription{start, cancel, unpair, forget, button, cfgSub} {
			c.conn.Unsubscribe(s)
		}
	}()

	println("[thermo] store", c.recovery.String(), "paired", c.store.Len(), "of", c.store.Capacity())
	c.conn.Publish(c.conn.NewMessage(TopicRecovery, c.recovery, true))
	c.publishState(c.cfg.Now(), true)

	tick := time.NewTicker(time.Duration(c.cfg.TickMs) * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ring.Readable():
			c.Poll(c.cfg.Now())
		case <-tick.C:
			now := c.cfg.Now()
			c.Poll(now)
			c.Tick(now)
		case <-start.Channel():
			c.StartPairing(c.cfg.Now())
		case <-cancel.Channel():
			c.CancelPairing(c.cfg.Now())
		case m := <-unpair.Channel():
			if id, ok := m.Payload.(esp3.SensorID); ok {
				if err := c.Unpair(id, c.cfg.Now()); err != nil {
					println("[thermo] Warn: unpair:", err.Error())
				}
			}
		case <-forget.Channel():
			if err := c.ForgetAll(c.cfg.Now()); err != nil {
				println("[thermo] Warn: forget all:", err.Error())
			}
		case m := <-button.Channel():
			if ev, ok := m.Payload.(hal.ButtonEvent); ok {
				c.Button(ev, c.cfg.Now())
			}
		case m := <-cfgSub.Channel():
			if s, ok := m.Payload.(config.Thermo); ok {
				prev := c.cfg.TickMs
				c.Configure(FromSection(s))
				if c.cfg.TickMs != prev {
					tick.Reset(time.Duration(c.cfg.TickMs) * time.Millisecond)
				}
			}
		}
	}
}
