// Package halcore holds the port contracts shared by the HAL workers and the
// platform layer.
package halcore

import "context"

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Edge selection for IRQ.
type Edge uint8

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

var edgeNames = [...]string{
	EdgeNone:    "none",
	EdgeRising:  "rising",
	EdgeFalling: "falling",
	EdgeBoth:    "both",
}

func (e Edge) String() string {
	if int(e) < len(edgeNames) {
		return edgeNames[e]
	}
	return "none"
}

// IRQPin is a digital input that can raise an interrupt. The handler runs
// in interrupt context and must not block.
type IRQPin interface {
	ConfigureInput(pull Pull) error
	Get() bool
	Number() int
	SetIRQ(edge Edge, handler func()) error
	ClearIRQ() error
}

// OutputPin drives a digital line, such as the radio module's reset.
type OutputPin interface {
	ConfigureOutput() error
	Set(high bool)
}

// UARTPort is the radio module link. Readable fires when RX goes from empty
// to non-empty; RecvSomeContext returns whatever is buffered, waiting until
// ctx ends if nothing is.
type UARTPort interface {
	Write(p []byte) (int, error)
	Readable() <-chan struct{}
	RecvSomeContext(ctx context.Context, p []byte) (int, error)
}
