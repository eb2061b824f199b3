// Package sensors caches the last reading of each paired sensor. Nothing is
// persisted; the registry starts empty on every boot.
package sensors

import "temppair-go/drivers/esp3"

// DefaultStaleMs marks a sensor stale after 30 minutes of silence. Stock
// sensors transmit every 100 s to 15 min depending on temperature change.
const DefaultStaleMs = 30 * 60 * 1000

type Reading struct {
	TempDeciC int16
	HasTemp   bool
	DBm       int8
	TSms      int64
}

// Entry is one row of a snapshot.
type Entry struct {
	ID         esp3.SensorID
	Reading    Reading
	HasReading bool
	Stale      bool
}

type row struct {
	id esp3.SensorID
	r  Reading
}

// Registry is bounded by the number of pairable sensors. It is owned by the
// main loop and is not safe for concurrent use.
type Registry struct {
	rows []row
	max  int
}

func New(capacity int) *Registry {
	if capacity <= 0 {
		capacity = 1
	}
	return &Registry{rows: make([]row, 0, capacity), max: capacity}
}

// Record stores ev as the latest reading of its sensor. When the registry is
// full the entry with the oldest reading is replaced.
func (g *Registry) Record(ev esp3.SensorEvent) {
	r := Reading{TempDeciC: ev.TempDeciC, HasTemp: ev.HasTemp, DBm: ev.DBm, TSms: ev.TSms}
	for i := range g.rows {
		if g.rows[i].id == ev.ID {
			g.rows[i].r = r
			return
		}
	}
	if len(g.rows) < g.max {
		g.rows = append(g.rows, row{id: ev.ID, r: r})
		return
	}
	oldest := 0
	for i := range g.rows {
		if g.rows[i].r.TSms < g.rows[oldest].r.TSms {
			oldest = i
		}
	}
	g.rows[oldest] = row{id: ev.ID, r: r}
}

// Lookup returns the latest reading of id.
func (g *Registry) Lookup(id esp3.SensorID) (Reading, bool) {
	for _, x := range g.rows {
		if x.id == id {
			return x.r, true
		}
	}
	return Reading{}, false
}

// Forget drops id, e.g. after it was unpaired.
func (g *Registry) Forget(id esp3.SensorID) {
	for i := range g.rows {
		if g.rows[i].id == id {
			g.rows = append(g.rows[:i], g.rows[i+1:]...)
			return
		}
	}
}

// Reset empties the registry.
func (g *Registry) Reset() { g.rows = g.rows[:0] }

func (g *Registry) Len() int { return len(g.rows) }

// Snapshot appends one entry per recorded sensor to dst. A reading is stale
// when nowMs-TSms > staleMs.
func (g *Registry) Snapshot(dst []Entry, nowMs, staleMs int64) []Entry {
	for _, x := range g.rows {
		dst = append(dst, Entry{
			ID:         x.id,
			Reading:    x.r,
			HasReading: true,
			Stale:      nowMs-x.r.TSms > staleMs,
		})
	}
	return dst
}

// SnapshotFor reports every id in ids, in order, including those with no
// reading yet (HasReading false, Stale true).
func (g *Registry) SnapshotFor(dst []Entry, ids []esp3.SensorID, nowMs, staleMs int64) []Entry {
	for _, id := range ids {
		r, ok := g.Lookup(id)
		dst = append(dst, Entry{
			ID:         id,
			Reading:    r,
			HasReading: ok,
			Stale:      !ok || nowMs-r.TSms > staleMs,
		})
	}
	return dst
}
