// Package addrstore keeps the table of paired sensor IDs on flash so that it
// survives power loss at any instant.
//
// Two regions each hold a complete, checksummed copy of the table tagged with
// a generation number. A commit always rewrites the region that is not
// currently active: erase, program the body, then program the CRC. Until the
// CRC lands the new copy does not validate, so a cut at any byte leaves the
// previous table in force. On boot the valid copy with the newest generation
// wins.
package addrstore

import (
	"sync/atomic"

	"temppair-go/drivers/esp3"
	"temppair-go/errcode"
)

// DefaultCapacity is the number of sensors a thermostat can be paired with.
const DefaultCapacity = 8

// Medium is two equally sized, independently erasable regions of non-volatile
// memory. Erase leaves bytes at 0xFF; program may only clear bits.
type Medium interface {
	RegionSize() int
	ReadRegion(region, off int, p []byte) error
	EraseRegion(region int) error
	ProgramRegion(region, off int, p []byte) error
}

// Errors returned by the store. They carry errcode values so callers can
// switch on errcode.Of.
var (
	ErrFull            error = errcode.StorageFull
	ErrWriteInProgress error = errcode.StorageWriteInProgress
	ErrCorrupt         error = errcode.StorageCorrupt
	ErrInvalidID       error = errcode.InvalidParams
)

// Recovery describes what Open found on the medium.
type Recovery uint8

const (
	RecoveryOK      Recovery = iota // a valid table was loaded
	RecoveryBlank                   // both regions erased; first boot
	RecoveryCorrupt                 // no valid copy; started with an empty table
)

func (r Recovery) String() string {
	switch r {
	case RecoveryOK:
		return "ok"
	case RecoveryBlank:
		return "blank"
	case RecoveryCorrupt:
		return "corrupt"
	}
	return "unknown"
}

// Err returns ErrCorrupt for RecoveryCorrupt and nil otherwise.
func (r Recovery) Err() error {
	if r == RecoveryCorrupt {
		return ErrCorrupt
	}
	return nil
}

// Entry is one paired sensor.
type Entry struct {
	ID       esp3.SensorID
	PairedAt uint32 // caller's clock, seconds
	Slot     int
}

// Options configure Open. Zero fields take defaults.
type Options struct {
	// Capacity defaults to DefaultCapacity and is capped by what fits in a
	// region.
	Capacity int
}

// Store is the in-RAM view of the persisted table. Reads are served from RAM;
// every mutation is a full commit to the inactive region. It is not safe for
// concurrent mutation from several goroutines; the busy flag only rejects
// re-entry while a commit is running.
type Store struct {
	m      Medium
	slots  []slot
	next   []slot // staging copy for the commit in flight
	img    []byte // scratch image, reused
	active int    // region holding the current table, -1 if none
	gen    uint32
	busy   atomic.Bool
}

// Open loads the newest valid table from m. The returned error is non-nil
// only when the medium cannot hold a table of the requested capacity; a
// medium without a valid table yields an empty store and RecoveryBlank or
// RecoveryCorrupt.
func Open(m Medium, opts Options) (*Store, Recovery, error) {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if fit := CapacityFor(m.RegionSize()); capacity > fit {
		if fit == 0 {
			return nil, RecoveryCorrupt, &errcode.E{C: errcode.InvalidParams, Op: "addrstore.open", Msg: "region too small"}
		}
		capacity = fit
	}
	s := &Store{
		m:      m,
		slots:  make([]slot, capacity),
		next:   make([]slot, capacity),
		img:    make([]byte, ImageSize(capacity)),
		active: -1,
	}
	rec := s.load()
	return s, rec, nil
}

func (s *Store) load() Recovery {
	var (
		valid [2]bool
		gens  [2]uint32
		blank = 0
	)
	tmp := make([]slot, len(s.slots))
	for r := 0; r < 2; r++ {
		if err := s.m.ReadRegion(r, 0, s.img); err != nil {
			continue
		}
		if isBlank(s.img) {
			blank++
			continue
		}
		gens[r], valid[r] = decodeImage(s.img, tmp)
	}

	pick := -1
	switch {
	case valid[0] && valid[1]:
		pick = 0
		if newer(gens[1], gens[0]) {
			pick = 1
		}
	case valid[0]:
		pick = 0
	case valid[1]:
		pick = 1
	}
	if pick < 0 {
		if blank == 2 {
			return RecoveryBlank
		}
		return RecoveryCorrupt
	}
	// Re-read the winner; tmp may hold the other region.
	if err := s.m.ReadRegion(pick, 0, s.img); err != nil {
		return RecoveryCorrupt
	}
	if _, ok := decodeImage(s.img, s.slots); !ok {
		return RecoveryCorrupt
	}
	s.active = pick
	s.gen = gens[pick]
	return RecoveryOK
}

// Capacity is the number of slots.
func (s *Store) Capacity() int { return len(s.slots) }

// Generation of the active copy; 0 before the first commit.
func (s *Store) Generation() uint32 { return s.gen }

// Len counts occupied slots.
func (s *Store) Len() int {
	n := 0
	for _, e := range s.slots {
		if e.id != 0 {
			n++
		}
	}
	return n
}

// Lookup finds id.
func (s *Store) Lookup(id esp3.SensorID) (Entry, bool) {
	if id == 0 {
		return Entry{}, false
	}
	for i, e := range s.slots {
		if e.id == id {
			return Entry{ID: e.id, PairedAt: e.pairedAt, Slot: i}, true
		}
	}
	return Entry{}, false
}

// All returns the occupied slots in slot order.
func (s *Store) All() []Entry {
	out := make([]Entry, 0, len(s.slots))
	for i, e := range s.slots {
		if e.id != 0 {
			out = append(out, Entry{ID: e.id, PairedAt: e.pairedAt, Slot: i})
		}
	}
	return out
}

// AppendIDs appends the occupied slots' IDs in slot order.
func (s *Store) AppendIDs(dst []esp3.SensorID) []esp3.SensorID {
	for _, e := range s.slots {
		if e.id != 0 {
			dst = append(dst, e.id)
		}
	}
	return dst
}

// Insert pairs id into the lowest free slot and commits. An id that is
// already present returns its slot without writing.
func (s *Store) Insert(id esp3.SensorID, pairedAt uint32) (int, error) {
	if !id.Valid() {
		return -1, ErrInvalidID
	}
	if !s.busy.CompareAndSwap(false, true) {
		return -1, ErrWriteInProgress
	}
	defer s.busy.Store(false)

	if e, ok := s.Lookup(id); ok {
		return e.Slot, nil
	}
	free := -1
	for i, e := range s.slots {
		if e.id == 0 {
			free = i
			break
		}
	}
	if free < 0 {
		return -1, ErrFull
	}
	copy(s.next, s.slots)
	s.next[free] = slot{id: id, pairedAt: pairedAt}
	if err := s.commit("addrstore.insert"); err != nil {
		return -1, err
	}
	return free, nil
}

// Remove frees id's slot and commits. Other entries keep their slots.
// It reports false, without writing, when id is not paired.
func (s *Store) Remove(id esp3.SensorID) (bool, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return false, ErrWriteInProgress
	}
	defer s.busy.Store(false)

	e, ok := s.Lookup(id)
	if !ok {
		return false, nil
	}
	copy(s.next, s.slots)
	s.next[e.Slot] = slot{}
	if err := s.commit("addrstore.remove"); err != nil {
		return false, err
	}
	return true, nil
}

// EraseAll commits an empty table. The generation still advances so the
// empty copy supersedes the old one.
func (s *Store) EraseAll() error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrWriteInProgress
	}
	defer s.busy.Store(false)

	for i := range s.next {
		s.next[i] = slot{}
	}
	return s.commit("addrstore.erase_all")
}

// commit writes s.next to the inactive region and, on success, makes it the
// active table. On failure RAM and the active region are untouched.
func (s *Store) commit(op string) error {
	target := 0
	if s.active == 0 {
		target = 1
	}
	gen := s.gen + 1
	img := encodeImage(s.img, gen, s.next)
	body := len(img) - crcSize

	if err := s.m.EraseRegion(target); err != nil {
		return errcode.Wrap(errcode.StorageIO, op, err)
	}
	if err := s.m.ProgramRegion(target, 0, img[:body]); err != nil {
		return errcode.Wrap(errcode.StorageIO, op, err)
	}
	if err := s.m.ProgramRegion(target, body, img[body:]); err != nil {
		return errcode.Wrap(errcode.StorageIO, op, err)
	}
	s.slots, s.next = s.next, s.slots
	s.active = target
	s.gen = gen
	return nil
}
