// Package fileflash backs the address store with a plain file on the host,
// with NOR semantics, so bench tools keep their pairings across runs.
package fileflash

import (
	"errors"
	"fmt"
	"os"
)

var ErrRange = errors.New("fileflash: access out of range")

// File is two regions of size bytes laid out back to back.
type File struct {
	f    *os.File
	size int
}

// Open opens or creates path. A new or short file is extended with erased
// (0xFF) bytes; an existing longer file is an error.
func Open(path string, size int) (*File, error) {
	if size <= 0 {
		return nil, fmt.Errorf("fileflash: bad region size %d", size)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	total := int64(2 * size)
	switch {
	case st.Size() > total:
		f.Close()
		return nil, fmt.Errorf("fileflash: %s is %d bytes, want at most %d", path, st.Size(), total)
	case st.Size() < total:
		if _, err := f.WriteAt(erased(int(total-st.Size())), st.Size()); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &File{f: f, size: size}, nil
}

func erased(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = 0xFF
	}
	return p
}

func (m *File) Close() error { return m.f.Close() }

func (m *File) RegionSize() int { return m.size }

func (m *File) check(r, off, n int) error {
	if r < 0 || r > 1 || off < 0 || off+n > m.size {
		return ErrRange
	}
	return nil
}

func (m *File) ReadRegion(r, off int, p []byte) error {
	if err := m.check(r, off, len(p)); err != nil {
		return err
	}
	_, err := m.f.ReadAt(p, int64(r*m.size+off))
	return err
}

func (m *File) EraseRegion(r int) error {
	if err := m.check(r, 0, 0); err != nil {
		return err
	}
	if _, err := m.f.WriteAt(erased(m.size), int64(r*m.size)); err != nil {
		return err
	}
	return m.f.Sync()
}

// ProgramRegion can only clear bits, as on NOR flash.
func (m *File) ProgramRegion(r, off int, p []byte) error {
	if err := m.check(r, off, len(p)); err != nil {
		return err
	}
	cur := make([]byte, len(p))
	at := int64(r*m.size + off)
	if _, err := m.f.ReadAt(cur, at); err != nil {
		return err
	}
	for i := range cur {
		cur[i] &= p[i]
	}
	if _, err := m.f.WriteAt(cur, at); err != nil {
		return err
	}
	return m.f.Sync()
}
