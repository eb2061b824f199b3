package boards

// PicoThermo is the Pico-based room thermostat carrier: EnOcean module on
// UART0 (ESP3 fixes 57600 8N1) with its reset on GP2, button on GP14,
// AT25FF321A on SPI0.
var PicoThermo = Board{
	Name: "pico_thermo",

	RadioUART:  "uart0",
	RadioTX:    0,
	RadioRX:    1,
	RadioBaud:  57600,
	RadioReset: 2,

	Button:          14,
	ButtonActiveLow: true,

	FlashSPI:        "spi0",
	FlashSCK:        18,
	FlashSDO:        19,
	FlashSDI:        16,
	FlashCS:         17,
	FlashWP:         20,
	FlashHz:         8_000_000,
	FlashRegion0:    0x000000,
	FlashRegion1:    0x001000,
	FlashRegionSize: 4096,
}
