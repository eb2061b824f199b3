// Package at25ff drives the Renesas/Adesto AT25FF321A 32 Mbit SPI NOR flash.
//
// Only the subset needed for a small persistent table is implemented:
//
//	d.Read(addr, p)         // 0x0B fast read
//	d.EraseSector(addr)     // 0x20 4 KiB erase
//	d.Program(addr, p)      // 0x02 page program, split on 256-byte pages
//
// Erase sets bits to 1; program can only clear them. Callers own the
// erase-before-program discipline.
//
// The bus passed in must already be configured (mode 0, <= 50 MHz for fast
// read). Chip select is driven by the driver around every command.
package at25ff

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

// Geometry.
const (
	PageSize   = 256
	SectorSize = 4096
	Capacity   = 4 << 20 // bytes
)

// JEDEC identity reported by 0x9F.
const (
	ManufacturerID = 0x1F
	DeviceID       = 0x4708
)

const (
	cmdWriteEnable = 0x06
	cmdReadStatus1 = 0x05
	cmdErase4K     = 0x20
	cmdPageProgram = 0x02
	cmdFastRead    = 0x0B
	cmdReadJEDEC   = 0x9F
	cmdResume      = 0xAB // release from deep power-down

	statusBusy = 0x01
	statusWEL  = 0x02
)

// Errors returned by the driver.
var (
	ErrTimeout    = errors.New("at25ff: timeout")
	ErrNoDevice   = errors.New("at25ff: unexpected JEDEC id")
	ErrAlignment  = errors.New("at25ff: address not sector aligned")
	ErrOutOfRange = errors.New("at25ff: address out of range")
	ErrWriteLatch = errors.New("at25ff: write enable not latched")
)

// Pin is a chip-select or write-protect output. machine.Pin satisfies it.
type Pin interface {
	High()
	Low()
}

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// EraseTimeout bounds a 4 KiB sector erase. Default 400 ms
	// (datasheet max 300 ms).
	EraseTimeout time.Duration
	// ProgramTimeout bounds one page program. Default 10 ms.
	ProgramTimeout time.Duration
	// PollInterval is the sleep between status reads. Zero busy-polls.
	PollInterval time.Duration
	// SkipIDCheck disables the JEDEC check in Configure.
	SkipIDCheck bool
}

// Device is an AT25FF321A on a shared SPI bus.
type Device struct {
	bus drivers.SPI
	cs  Pin
	wp  Pin // optional, held high (unprotected) while writing

	cfg Config
	cmd [5]byte
}

// New creates a device handle. It does not touch the bus.
func New(bus drivers.SPI, cs Pin) *Device {
	cs.High()
	return &Device{bus: bus, cs: cs}
}

// WithWriteProtect attaches the WP# pin. It is driven low (protected)
// except while an erase or program is in progress.
func (d *Device) WithWriteProtect(wp Pin) *Device {
	d.wp = wp
	wp.Low()
	return d
}

// Configure wakes the part and verifies its identity.
func (d *Device) Configure(cfg Config) error {
	if cfg.EraseTimeout <= 0 {
		cfg.EraseTimeout = 400 * time.Millisecond
	}
	if cfg.ProgramTimeout <= 0 {
		cfg.ProgramTimeout = 10 * time.Millisecond
	}
	d.cfg = cfg

	d.cmd[0] = cmdResume
	if err := d.command(d.cmd[:1], nil); err != nil {
		return err
	}
	if cfg.SkipIDCheck {
		return nil
	}
	id, err := d.ReadJEDEC()
	if err != nil {
		return err
	}
	if id != uint32(ManufacturerID)<<16|DeviceID {
		return ErrNoDevice
	}
	return nil
}

// ReadJEDEC returns manufacturer<<16 | device id.
func (d *Device) ReadJEDEC() (uint32, error) {
	var r [3]byte
	d.cmd[0] = cmdReadJEDEC
	if err := d.command(d.cmd[:1], r[:]); err != nil {
		return 0, err
	}
	return uint32(r[0])<<16 | uint32(r[1])<<8 | uint32(r[2]), nil
}

// Status returns status register 1.
func (d *Device) Status() (byte, error) {
	var r [1]byte
	d.cmd[0] = cmdReadStatus1
	if err := d.command(d.cmd[:1], r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}

// Read fills p starting at addr.
func (d *Device) Read(addr uint32, p []byte) error {
	if err := checkRange(addr, len(p)); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	d.setAddr(cmdFastRead, addr)
	d.cmd[4] = 0 // dummy
	return d.command(d.cmd[:5], p)
}

// EraseSector erases the 4 KiB sector at addr, which must be aligned.
func (d *Device) EraseSector(addr uint32) error {
	if addr%SectorSize != 0 {
		return ErrAlignment
	}
	if err := checkRange(addr, SectorSize); err != nil {
		return err
	}
	d.unprotect()
	defer d.protect()
	if err := d.writeEnable(); err != nil {
		return err
	}
	d.setAddr(cmdErase4K, addr)
	if err := d.command(d.cmd[:4], nil); err != nil {
		return err
	}
	return d.waitReady(d.cfg.EraseTimeout)
}

// Program writes p at addr, splitting at page boundaries. The target range
// must have been erased.
func (d *Device) Program(addr uint32, p []byte) error {
	if err := checkRange(addr, len(p)); err != nil {
		return err
	}
	d.unprotect()
	defer d.protect()
	for len(p) > 0 {
		n := min(PageSize-int(addr%PageSize), len(p))
		if err := d.writeEnable(); err != nil {
			return err
		}
		d.setAddr(cmdPageProgram, addr)
		d.cs.Low()
		err := d.bus.Tx(d.cmd[:4], nil)
		if err == nil {
			err = d.bus.Tx(p[:n], nil)
		}
		d.cs.High()
		if err != nil {
			return err
		}
		if err := d.waitReady(d.cfg.ProgramTimeout); err != nil {
			return err
		}
		addr += uint32(n)
		p = p[n:]
	}
	return nil
}

func (d *Device) writeEnable() error {
	d.cmd[0] = cmdWriteEnable
	if err := d.command(d.cmd[:1], nil); err != nil {
		return err
	}
	st, err := d.Status()
	if err != nil {
		return err
	}
	if st&statusWEL == 0 {
		return ErrWriteLatch
	}
	return nil
}

func (d *Device) waitReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		st, err := d.Status()
		if err != nil {
			return err
		}
		if st&statusBusy == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		if d.cfg.PollInterval > 0 {
			time.Sleep(d.cfg.PollInterval)
		}
	}
}

// command runs one CS-framed transaction: write w, then read into r.
// The two phases are separate Tx calls since not every SPI implementation
// accepts unequal w/r lengths.
func (d *Device) command(w, r []byte) error {
	d.cs.Low()
	err := d.bus.Tx(w, nil)
	if err == nil && len(r) > 0 {
		err = d.bus.Tx(nil, r)
	}
	d.cs.High()
	return err
}

func (d *Device) setAddr(op byte, addr uint32) {
	d.cmd[0] = op
	d.cmd[1] = byte(addr >> 16)
	d.cmd[2] = byte(addr >> 8)
	d.cmd[3] = byte(addr)
}

func (d *Device) unprotect() {
	if d.wp != nil {
		d.wp.High()
	}
}

func (d *Device) protect() {
	if d.wp != nil {
		d.wp.Low()
	}
}

func checkRange(addr uint32, n int) error {
	if n < 0 || uint64(addr)+uint64(n) > Capacity {
		return ErrOutOfRange
	}
	return nil
}
