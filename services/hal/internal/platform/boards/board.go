package boards

// Board is the wiring of one thermostat PCB. Pins are plain GPIO numbers;
// mapping to machine.Pin happens in the platform layer.
type Board struct {
	Name string

	// Radio module (TCM310 or similar) on a UART.
	RadioUART        string // "uart0" | "uart1"
	RadioTX, RadioRX int
	RadioBaud        uint32
	RadioReset       int // active-low module reset; <0: not wired

	// Pairing button, wired to ground with the internal pull-up.
	Button          int
	ButtonActiveLow bool

	// Address-table flash on an SPI controller.
	FlashSPI                     string // "spi0" | "spi1"
	FlashSCK, FlashSDO, FlashSDI int
	FlashCS, FlashWP             int // FlashWP < 0: not wired
	FlashHz                      uint32
	FlashRegion0, FlashRegion1   uint32 // sector-aligned offsets
	FlashRegionSize              int
}
