// Package pairing decides when an unknown sensor may be learned.
//
// The machine is Idle until triggered. While Pairing, the first new sensor
// heard is inserted into the store and the machine returns to Idle, so at
// most one sensor is learned per session. A session also ends on Cancel,
// on timeout, and when the store is full.
package pairing

import (
	"errors"

	"temppair-go/drivers/esp3"
	"temppair-go/services/addrstore"
)

// DefaultWindowMs is how long a pairing session waits for a new sensor.
const DefaultWindowMs = 30_000

type State uint8

const (
	Idle State = iota
	Pairing
)

func (s State) String() string {
	if s == Pairing {
		return "pairing"
	}
	return "idle"
}

// Outcome is what a transition produced, for user feedback.
type Outcome uint8

const (
	OutcomeNone Outcome = iota
	OutcomeStarted
	OutcomeLearned
	OutcomeAlreadyPaired
	OutcomeCapacityExceeded
	OutcomeTimedOut
	OutcomeCancelled
	OutcomeStorageBusy  // a commit was already running; still pairing
	OutcomeStorageError // commit failed; session ended
)

var outcomeNames = [...]string{
	OutcomeNone:             "none",
	OutcomeStarted:          "started",
	OutcomeLearned:          "learned",
	OutcomeAlreadyPaired:    "already_paired",
	OutcomeCapacityExceeded: "capacity_exceeded",
	OutcomeTimedOut:         "timed_out",
	OutcomeCancelled:        "cancelled",
	OutcomeStorageBusy:      "storage_busy",
	OutcomeStorageError:     "storage_error",
}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// Result is published for every outcome other than OutcomeNone.
type Result struct {
	Outcome Outcome
	ID      esp3.SensorID // zero for session-level outcomes
	Slot    int           // valid for Learned and AlreadyPaired
	Err     error         // set for OutcomeStorageError
	AtMs    int64
}

// Store is the part of the address store the machine needs.
type Store interface {
	Insert(id esp3.SensorID, pairedAt uint32) (int, error)
	Lookup(id esp3.SensorID) (addrstore.Entry, bool)
}

// Config tunes a session. Zero fields take defaults.
type Config struct {
	WindowMs int64

	// RequireTeachIn restricts learning to teach-in telegrams. Ordinary
	// telegrams are then ignored while pairing, including those of sensors
	// that are already paired.
	RequireTeachIn bool

	// MaxDBm ignores telegrams received weaker than this level (e.g. -70)
	// while pairing. Zero disables the filter; telegrams without a signal
	// report always pass.
	MaxDBm int8
}

// Machine is the pairing workflow. It is driven from a single loop and holds
// no locks.
type Machine struct {
	cfg      Config
	store    Store
	state    State
	deadline int64
}

func New(store Store, cfg Config) *Machine {
	if cfg.WindowMs <= 0 {
		cfg.WindowMs = DefaultWindowMs
	}
	return &Machine{cfg: cfg, store: store}
}

func (m *Machine) State() State { return m.state }

// DeadlineMs is when the current session times out; 0 when Idle.
func (m *Machine) DeadlineMs() int64 {
	if m.state != Pairing {
		return 0
	}
	return m.deadline
}

// Configure replaces the session settings. A running session keeps its
// deadline.
func (m *Machine) Configure(cfg Config) {
	if cfg.WindowMs <= 0 {
		cfg.WindowMs = DefaultWindowMs
	}
	m.cfg = cfg
}

// Trigger starts a session, or restarts the window of a running one.
func (m *Machine) Trigger(nowMs int64) Result {
	m.state = Pairing
	m.deadline = nowMs + m.cfg.WindowMs
	return Result{Outcome: OutcomeStarted, AtMs: nowMs}
}

// Cancel ends a running session.
func (m *Machine) Cancel(nowMs int64) Result {
	if m.state != Pairing {
		return Result{}
	}
	m.idle()
	return Result{Outcome: OutcomeCancelled, AtMs: nowMs}
}

// Tick ends the session once its window has elapsed.
func (m *Machine) Tick(nowMs int64) Result {
	if m.state != Pairing || nowMs < m.deadline {
		return Result{}
	}
	m.idle()
	return Result{Outcome: OutcomeTimedOut, AtMs: nowMs}
}

// Handle offers a decoded telegram to the machine. Idle never learns.
func (m *Machine) Handle(ev esp3.SensorEvent, nowMs int64) Result {
	if m.state != Pairing || !ev.ID.Valid() {
		return Result{}
	}
	if m.cfg.RequireTeachIn && !ev.TeachIn {
		return Result{}
	}
	if m.cfg.MaxDBm != 0 && ev.DBm != 0 && ev.DBm < m.cfg.MaxDBm {
		return Result{}
	}

	if e, ok := m.store.Lookup(ev.ID); ok {
		return Result{Outcome: OutcomeAlreadyPaired, ID: ev.ID, Slot: e.Slot, AtMs: nowMs}
	}

	slot, err := m.store.Insert(ev.ID, uint32(nowMs/1000))
	switch {
	case err == nil:
		m.idle()
		return Result{Outcome: OutcomeLearned, ID: ev.ID, Slot: slot, AtMs: nowMs}
	case errors.Is(err, addrstore.ErrFull):
		m.idle()
		return Result{Outcome: OutcomeCapacityExceeded, ID: ev.ID, AtMs: nowMs}
	case errors.Is(err, addrstore.ErrWriteInProgress):
		return Result{Outcome: OutcomeStorageBusy, ID: ev.ID, AtMs: nowMs}
	default:
		m.idle()
		return Result{Outcome: OutcomeStorageError, ID: ev.ID, Err: err, AtMs: nowMs}
	}
}

func (m *Machine) idle() {
	m.state = Idle
	m.deadline = 0
}
