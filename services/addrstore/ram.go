package addrstore

import (
	"errors"

	"temppair-go/errcode"
)

// ErrPowerLost is returned by RAM once its write budget is exhausted.
var ErrPowerLost = errors.New("addrstore: power lost")

// RAM is a Medium held in memory with NOR semantics. It can simulate a power
// cut after a given number of byte writes, which makes torn commits
// reproducible in tests and on the bench.
type RAM struct {
	region [2][]byte
	budget int // remaining byte writes; <0 means unlimited
	writes int
}

// NewRAM returns two erased regions of size bytes.
func NewRAM(size int) *RAM {
	m := &RAM{budget: -1}
	for r := range m.region {
		m.region[r] = make([]byte, size)
		for i := range m.region[r] {
			m.region[r][i] = 0xFF
		}
	}
	return m
}

// CutAfter lets n more bytes be erased or programmed, then fails every write.
// A negative n removes the limit.
func (m *RAM) CutAfter(n int) { m.budget = n }

// Writes is the number of bytes erased or programmed so far.
func (m *RAM) Writes() int { return m.writes }

// Clone copies the contents, without the cut state.
func (m *RAM) Clone() *RAM {
	c := &RAM{budget: -1}
	for r := range m.region {
		c.region[r] = append([]byte(nil), m.region[r]...)
	}
	return c
}

// Region exposes a region's bytes for inspection and fault injection.
func (m *RAM) Region(r int) []byte { return m.region[r] }

func (m *RAM) RegionSize() int { return len(m.region[0]) }

func (m *RAM) ReadRegion(r, off int, p []byte) error {
	if err := m.check(r, off, len(p)); err != nil {
		return err
	}
	copy(p, m.region[r][off:])
	return nil
}

func (m *RAM) EraseRegion(r int) error {
	if err := m.check(r, 0, 0); err != nil {
		return err
	}
	for i := range m.region[r] {
		if !m.spend() {
			return ErrPowerLost
		}
		m.region[r][i] = 0xFF
	}
	return nil
}

func (m *RAM) ProgramRegion(r, off int, p []byte) error {
	if err := m.check(r, off, len(p)); err != nil {
		return err
	}
	for i, b := range p {
		if !m.spend() {
			return ErrPowerLost
		}
		m.region[r][off+i] &= b
	}
	return nil
}

func (m *RAM) spend() bool {
	if m.budget == 0 {
		return false
	}
	if m.budget > 0 {
		m.budget--
	}
	m.writes++
	return true
}

func (m *RAM) check(r, off, n int) error {
	if r < 0 || r > 1 || off < 0 || off+n > len(m.region[0]) {
		return errcode.InvalidParams
	}
	return nil
}
