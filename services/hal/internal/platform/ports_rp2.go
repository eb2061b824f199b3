//go:build rp2040 || rp2350

package platform

import (
	"context"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"temppair-go/errcode"
	"temppair-go/services/hal/internal/halcore"
	"temppair-go/services/hal/internal/platform/boards"
)

// OpenRadio configures the radio UART of b.
func OpenRadio(b boards.Board) (halcore.UARTPort, error) {
	var hw *uartx.UART
	switch b.RadioUART {
	case "uart0":
		hw = uartx.UART0
	case "uart1":
		hw = uartx.UART1
	default:
		return nil, errcode.InvalidParams
	}
	if err := hw.Configure(uartx.UARTConfig{
		BaudRate: b.RadioBaud,
		TX:       machine.Pin(b.RadioTX),
		RX:       machine.Pin(b.RadioRX),
	}); err != nil {
		return nil, err
	}
	return &rp2SerialPort{u: hw}, nil
}

// ButtonPin returns b's button as an interrupt-capable input.
func ButtonPin(b boards.Board) (halcore.IRQPin, error) {
	if b.Button < 0 || b.Button > 28 {
		return nil, errcode.InvalidParams
	}
	return &rp2Pin{p: machine.Pin(b.Button), n: b.Button}, nil
}

// RadioResetPin returns b's radio reset line, or nil when it is not wired.
func RadioResetPin(b boards.Board) (halcore.OutputPin, error) {
	if b.RadioReset < 0 {
		return nil, nil
	}
	if b.RadioReset > 28 {
		return nil, errcode.InvalidParams
	}
	return &rp2Pin{p: machine.Pin(b.RadioReset), n: b.RadioReset}, nil
}

// ---- rp2SerialPort: adapts uartx to halcore.UARTPort ----

type rp2SerialPort struct{ u *uartx.UART }

func (p *rp2SerialPort) Write(b []byte) (int, error) { return p.u.Write(b) }
func (p *rp2SerialPort) Readable() <-chan struct{}   { return p.u.Readable() }
func (p *rp2SerialPort) RecvSomeContext(ctx context.Context, buf []byte) (int, error) {
	return p.u.RecvSomeContext(ctx, buf)
}

// ---- GPIO (includes IRQ support) ----

type rp2Pin struct {
	p machine.Pin
	n int
}

func (r *rp2Pin) ConfigureInput(pull halcore.Pull) error {
	var mode machine.PinMode
	switch pull {
	case halcore.PullUp:
		mode = machine.PinInputPullup
	case halcore.PullDown:
		mode = machine.PinInputPulldown
	default:
		mode = machine.PinInput
	}
	r.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (r *rp2Pin) ConfigureOutput() error {
	r.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return nil
}

func (r *rp2Pin) Set(high bool) { r.p.Set(high) }
func (r *rp2Pin) Get() bool     { return r.p.Get() }
func (r *rp2Pin) Number() int   { return r.n }

func (r *rp2Pin) SetIRQ(edge halcore.Edge, handler func()) error {
	var change machine.PinChange
	switch edge {
	case halcore.EdgeRising:
		change = machine.PinRising
	case halcore.EdgeFalling:
		change = machine.PinFalling
	case halcore.EdgeBoth:
		change = machine.PinToggle
	}
	return r.p.SetInterrupt(change, func(machine.Pin) { handler() })
}

func (r *rp2Pin) ClearIRQ() error {
	var zero machine.PinChange
	return r.p.SetInterrupt(zero, nil)
}
