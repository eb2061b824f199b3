package at25ff

import "temppair-go/x/mathx"

// Regions exposes two equal, sector-aligned, non-overlapping areas of the
// flash as independently erasable copies of a double-buffered table.
type Regions struct {
	dev  *Device
	base [2]uint32
	size int
}

// NewRegions checks the layout and returns the adapter. size is rounded up
// to whole sectors.
func NewRegions(dev *Device, base0, base1 uint32, size int) (*Regions, error) {
	if size <= 0 {
		return nil, ErrOutOfRange
	}
	size = int(mathx.CeilDiv(uint32(size), SectorSize)) * SectorSize
	for _, b := range [2]uint32{base0, base1} {
		if b%SectorSize != 0 {
			return nil, ErrAlignment
		}
		if err := checkRange(b, size); err != nil {
			return nil, err
		}
	}
	lo, hi := base0, base1
	if lo > hi {
		lo, hi = hi, lo
	}
	if uint64(lo)+uint64(size) > uint64(hi) {
		return nil, ErrOutOfRange
	}
	return &Regions{dev: dev, base: [2]uint32{base0, base1}, size: size}, nil
}

func (r *Regions) RegionSize() int { return r.size }

func (r *Regions) ReadRegion(region, off int, p []byte) error {
	addr, err := r.addr(region, off, len(p))
	if err != nil {
		return err
	}
	return r.dev.Read(addr, p)
}

func (r *Regions) EraseRegion(region int) error {
	addr, err := r.addr(region, 0, r.size)
	if err != nil {
		return err
	}
	for a := addr; a < addr+uint32(r.size); a += SectorSize {
		if err := r.dev.EraseSector(a); err != nil {
			return err
		}
	}
	return nil
}

func (r *Regions) ProgramRegion(region, off int, p []byte) error {
	addr, err := r.addr(region, off, len(p))
	if err != nil {
		return err
	}
	return r.dev.Program(addr, p)
}

func (r *Regions) addr(region, off, n int) (uint32, error) {
	if region < 0 || region > 1 || off < 0 || n < 0 || off+n > r.size {
		return 0, ErrOutOfRange
	}
	return r.base[region] + uint32(off), nil
}
