//go:build rp2040 || rp2350

package platform

import (
	"machine"

	"temppair-go/drivers/at25ff"
	"temppair-go/errcode"
	"temppair-go/services/hal/internal/platform/boards"
)

// OpenFlash configures the SPI controller and the AT25FF of b and returns
// its two address-table regions.
func OpenFlash(b boards.Board) (*at25ff.Regions, error) {
	var spi *machine.SPI
	switch b.FlashSPI {
	case "spi0":
		spi = machine.SPI0
	case "spi1":
		spi = machine.SPI1
	default:
		return nil, errcode.InvalidParams
	}
	if err := spi.Configure(machine.SPIConfig{
		Frequency: b.FlashHz,
		SCK:       machine.Pin(b.FlashSCK),
		SDO:       machine.Pin(b.FlashSDO),
		SDI:       machine.Pin(b.FlashSDI),
		Mode:      0,
	}); err != nil {
		return nil, err
	}

	cs := machine.Pin(b.FlashCS)
	cs.Configure(machine.PinConfig{Mode: machine.PinOutput})
	dev := at25ff.New(spi, cs)
	if b.FlashWP >= 0 {
		wp := machine.Pin(b.FlashWP)
		wp.Configure(machine.PinConfig{Mode: machine.PinOutput})
		dev.WithWriteProtect(wp)
	}
	if err := dev.Configure(at25ff.Config{}); err != nil {
		return nil, err
	}
	return at25ff.NewRegions(dev, b.FlashRegion0, b.FlashRegion1, b.FlashRegionSize)
}
