// Package hal owns the board I/O of the thermostat: the radio UART and the
// pairing button.
//
// Received radio bytes go straight into a shmring drained by the main loop.
// Everything else travels over the bus:
//
//	hal/button        ButtonEvent      published on debounced edges
//	hal/radio/tx      []byte           subscribed; written to the radio UART
//	hal/state         State            retained
//
// When the board wires the radio's reset line, Start pulses it once the
// UART reader is running.
package hal

import (
	"context"
	"sync/atomic"
	"time"

	"temppair-go/bus"
	"temppair-go/drivers/at25ff"
	"temppair-go/services/hal/internal/gpioirq"
	"temppair-go/services/hal/internal/halcore"
	"temppair-go/services/hal/internal/platform"
	"temppair-go/services/hal/internal/platform/boards"
	"temppair-go/services/hal/internal/uartio"
	"temppair-go/x/shmring"
)

// Public contracts for ports supplied by the platform or by tests.
type (
	UARTPort  = halcore.UARTPort
	IRQPin    = halcore.IRQPin
	OutputPin = halcore.OutputPin
	Board     = boards.Board
)

// PicoThermo is the default board wiring.
var PicoThermo = boards.PicoThermo

var (
	TopicButton  = bus.T("hal", "button")
	TopicRadioTX = bus.T("hal", "radio", "tx")
	TopicState   = bus.T("hal", "state")
)

// ButtonEvent is a debounced button edge. HeldMs is set on release.
type ButtonEvent struct {
	Pressed bool
	HeldMs  int64
	TSms    int64
}

// State is the retained HAL status document.
type State struct {
	Level  string // "up" | "degraded"
	Radio  bool
	Button bool
	Err    string `json:",omitempty"`
}

// Stats are cumulative I/O counters.
type Stats struct {
	RxChunks  uint32
	RxBytes   uint32
	TxFrames  uint32
	TxErrors  uint32
	IRQDrops  uint32
	EventDrop uint32
}

// Ports are the concrete devices the service drives. Button and
// RadioReset are optional.
type Ports struct {
	Radio      UARTPort
	Button     IRQPin
	RadioReset OutputPin
}

// OpenPorts configures the ports of b on the current target.
func OpenPorts(b Board) (Ports, error) {
	radio, err := platform.OpenRadio(b)
	if err != nil {
		return Ports{}, err
	}
	btn, err := platform.ButtonPin(b)
	if err != nil {
		return Ports{}, err
	}
	rst, err := platform.RadioResetPin(b)
	if err != nil {
		return Ports{}, err
	}
	return Ports{Radio: radio, Button: btn, RadioReset: rst}, nil
}

// OpenFlash configures the address-table flash of b on the current target.
func OpenFlash(b Board) (*at25ff.Regions, error) { return platform.OpenFlash(b) }

type Config struct {
	ButtonActiveLow bool
	DebounceMs      int // default 30
	MaxChunk        int // UART read size, default 64
	RadioResetMs    int // reset pulse width, default 100
}

type Service struct {
	cfg   Config
	ports Ports
	ring  *shmring.Ring

	uart *uartio.Worker
	irq  *gpioirq.Worker

	txFrames atomic.Uint32
	txErrors atomic.Uint32
}

// New binds the ports to ring, the queue the main loop drains.
func New(ports Ports, ring *shmring.Ring, cfg Config) *Service {
	if cfg.DebounceMs <= 0 {
		cfg.DebounceMs = 30
	}
	if cfg.MaxChunk <= 0 {
		cfg.MaxChunk = 64
	}
	if cfg.RadioResetMs <= 0 {
		cfg.RadioResetMs = 100
	}
	return &Service{
		cfg:   cfg,
		ports: ports,
		ring:  ring,
		uart:  uartio.New(),
		irq:   gpioirq.New(8, 8),
	}
}

// Start launches the workers and the service loop.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if _, err := s.uart.Register(ctx, uartio.ReaderCfg{
		DevID:    "radio",
		Port:     s.ports.Radio,
		Ring:     s.ring,
		MaxChunk: s.cfg.MaxChunk,
	}); err != nil {
		conn.Publish(conn.NewMessage(TopicState, State{Level: "degraded", Err: err.Error()}, true))
		return err
	}

	st := State{Level: "up", Radio: true}

	// Reset the module once the reader is running so its READY event is
	// seen after every MCU boot.
	if s.ports.RadioReset != nil {
		if err := s.resetRadio(); err != nil {
			println("[hal] Warn: radio reset:", err.Error())
			st.Level = "degraded"
			st.Err = err.Error()
		}
	}
	if s.ports.Button != nil {
		pull := halcore.PullDown
		if s.cfg.ButtonActiveLow {
			pull = halcore.PullUp
		}
		if err := s.ports.Button.ConfigureInput(pull); err != nil {
			println("[hal] Warn: button pin:", err.Error())
			st.Level = "degraded"
			st.Err = err.Error()
		} else {
			s.irq.Start(ctx)
			if _, err := s.irq.RegisterInput("button", s.ports.Button, s.cfg.DebounceMs, s.cfg.ButtonActiveLow); err != nil {
				println("[hal] Warn: button IRQ:", err.Error())
				st.Level = "degraded"
				st.Err = err.Error()
			} else {
				st.Button = true
			}
		}
	}
	conn.Publish(conn.NewMessage(TopicState, st, true))

	tx := conn.Subscribe(TopicRadioTX)
	go s.loop(ctx, conn, tx)
	return nil
}

func (s *Service) resetRadio() error {
	p := s.ports.RadioReset
	if err := p.ConfigureOutput(); err != nil {
		return err
	}
	p.Set(false)
	time.Sleep(time.Duration(s.cfg.RadioResetMs) * time.Millisecond)
	p.Set(true)
	return nil
}

func (s *Service) loop(ctx context.Context, conn *bus.Connection, tx *bus.Subscription) {
	defer conn.Unsubscribe(tx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.irq.Events():
			println("[hal] button", ev.Edge.String(), "held", ev.HeldMs, "ms")
			conn.Publish(conn.NewMessage(TopicButton, ButtonEvent{
				Pressed: ev.Active,
				HeldMs:  ev.HeldMs,
				TSms:    ev.TS.UnixMilli(),
			}, false))
		case m, ok := <-tx.Channel():
			if !ok {
				return
			}
			p, _ := m.Payload.([]byte)
			if len(p) == 0 {
				continue
			}
			if err := uartio.Send(s.ports.Radio, p); err != nil {
				s.txErrors.Add(1)
				println("[hal] Warn: radio tx:", err.Error())
				continue
			}
			s.txFrames.Add(1)
		}
	}
}

// Stats snapshots the counters.
func (s *Service) Stats() Stats {
	u := s.uart.Stats()
	isr, out := s.irq.Drops()
	return Stats{
		RxChunks:  u.Chunks,
		RxBytes:   u.Bytes,
		TxFrames:  s.txFrames.Load(),
		TxErrors:  s.txErrors.Load(),
		IRQDrops:  isr,
		EventDrop: out,
	}
}
