package hal

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"temppair-go/bus"
	"temppair-go/services/hal/internal/halcore"
	"temppair-go/x/shmring"
)

type fakeUART struct {
	mu sync.Mutex
	rx []byte
	tx []byte
	rd chan struct{}
}

func newFakeUART() *fakeUART { return &fakeUART{rd: make(chan struct{}, 1)} }

func (f *fakeUART) inject(b []byte) {
	f.mu.Lock()
	f.rx = append(f.rx, b...)
	f.mu.Unlock()
	select {
	case f.rd <- struct{}{}:
	default:
	}
}

func (f *fakeUART) written() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.tx...)
}

func (f *fakeUART) Write(p []byte) (int, error) {
	f.mu.Lock()
	f.tx = append(f.tx, p...)
	f.mu.Unlock()
	return len(p), nil
}

func (f *fakeUART) Readable() <-chan struct{} { return f.rd }

func (f *fakeUART) RecvSomeContext(ctx context.Context, p []byte) (int, error) {
	for {
		f.mu.Lock()
		n := copy(p, f.rx)
		f.rx = f.rx[n:]
		f.mu.Unlock()
		if n > 0 {
			return n, nil
		}
		select {
		case <-f.rd:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

type fakePin struct {
	mu      sync.Mutex
	level   bool
	pull    halcore.Pull
	handler func()
	cfgErr  error
}

func (p *fakePin) ConfigureInput(pull halcore.Pull) error { p.pull = pull; return p.cfgErr }
func (p *fakePin) Get() bool                              { p.mu.Lock(); defer p.mu.Unlock(); return p.level }
func (p *fakePin) Number() int                            { return 14 }
func (p *fakePin) SetIRQ(_ halcore.Edge, h func()) error  { p.handler = h; return nil }
func (p *fakePin) ClearIRQ() error                        { p.handler = nil; return nil }

func (p *fakePin) fire(level bool) {
	p.mu.Lock()
	p.level = level
	p.mu.Unlock()
	if p.handler != nil {
		p.handler()
	}
}

// fakeReset records the levels driven on the radio reset line.
type fakeReset struct {
	cfgErr error
	levels []bool
}

func (r *fakeReset) ConfigureOutput() error { return r.cfgErr }
func (r *fakeReset) Set(high bool)          { r.levels = append(r.levels, high) }

func TestServiceWiring(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewBus(8)
	conn := b.NewConnection("hal")
	ui := b.NewConnection("ui")
	btnSub := ui.Subscribe(TopicButton)

	u := newFakeUART()
	pin := &fakePin{level: true}
	ring := shmring.New(64)
	s := New(Ports{Radio: u, Button: pin}, ring, Config{ButtonActiveLow: true, DebounceMs: 1})
	if err := s.Start(ctx, conn); err != nil {
		t.Fatal(err)
	}
	if pin.pull != halcore.PullUp {
		t.Fatal("active-low button not pulled up")
	}

	stSub := ui.Subscribe(TopicState)
	select {
	case m := <-stSub.Channel():
		st := m.Payload.(State)
		if st.Level != "up" || !st.Radio || !st.Button {
			t.Fatalf("state %+v", st)
		}
	case <-time.After(time.Second):
		t.Fatal("no retained state")
	}

	// RX into the ring.
	u.inject([]byte{0x55, 0x00, 0x01})
	got := make([]byte, 0, 3)
	buf := make([]byte, 8)
	deadline := time.Now().Add(time.Second)
	for len(got) < 3 && time.Now().Before(deadline) {
		n := ring.TryReadInto(buf)
		got = append(got, buf[:n]...)
		if n == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	if !bytes.Equal(got, []byte{0x55, 0x00, 0x01}) {
		t.Fatalf("ring got % X", got)
	}

	// Button press reaches the bus.
	pin.fire(false)
	select {
	case m := <-btnSub.Channel():
		ev := m.Payload.(ButtonEvent)
		if !ev.Pressed {
			t.Fatalf("event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no button event")
	}

	// TX requests are written to the UART.
	frame := []byte{0x55, 0x00, 0x02, 0x00, 0x05, 0xCD, 0x3E, 0x01, 0x28}
	ui.Publish(ui.NewMessage(TopicRadioTX, frame, false))
	deadline = time.Now().Add(time.Second)
	for !bytes.Equal(u.written(), frame) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !bytes.Equal(u.written(), frame) {
		t.Fatalf("tx % X", u.written())
	}
	for s.Stats().TxFrames != 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if st := s.Stats(); st.TxFrames != 1 || st.RxBytes != 3 {
		t.Fatalf("stats %+v", st)
	}
}

func TestStartWithoutRadioDegrades(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("hal")
	s := New(Ports{}, shmring.New(16), Config{})
	if err := s.Start(context.Background(), conn); err == nil {
		t.Fatal("expected error without a radio port")
	}
	sub := conn.Subscribe(TopicState)
	select {
	case m := <-sub.Channel():
		if m.Payload.(State).Level != "degraded" {
			t.Fatalf("state %+v", m.Payload)
		}
	default:
		t.Fatal("no retained state")
	}
}

func TestButtonPinFailureDegrades(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := bus.NewBus(4).NewConnection("hal")
	pin := &fakePin{cfgErr: errors.New("pin busy")}
	s := New(Ports{Radio: newFakeUART(), Button: pin}, shmring.New(16), Config{})
	if err := s.Start(ctx, conn); err != nil {
		t.Fatalf("radio is fine, Start = %v", err)
	}
	if pin.handler != nil {
		t.Fatal("IRQ armed on a pin that failed to configure")
	}
	sub := conn.Subscribe(TopicState)
	select {
	case m := <-sub.Channel():
		st := m.Payload.(State)
		if st.Level != "degraded" || !st.Radio || st.Button || st.Err != "pin busy" {
			t.Fatalf("state %+v", st)
		}
	default:
		t.Fatal("no retained state")
	}
}

func TestStartPulsesRadioReset(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rst := &fakeReset{}
	s := New(Ports{Radio: newFakeUART(), RadioReset: rst}, shmring.New(16), Config{RadioResetMs: 1})
	conn := bus.NewBus(4).NewConnection("hal")
	if err := s.Start(ctx, conn); err != nil {
		t.Fatal(err)
	}
	if len(rst.levels) != 2 || rst.levels[0] || !rst.levels[1] {
		t.Fatalf("reset levels %v, want [false true]", rst.levels)
	}

	// A reset line that cannot be driven leaves the radio usable.
	bad := &fakeReset{cfgErr: errors.New("no pin")}
	conn = bus.NewBus(4).NewConnection("hal")
	s = New(Ports{Radio: newFakeUART(), RadioReset: bad}, shmring.New(16), Config{})
	if err := s.Start(ctx, conn); err != nil {
		t.Fatal(err)
	}
	sub := conn.Subscribe(TopicState)
	m := <-sub.Channel()
	if st := m.Payload.(State); st.Level != "degraded" || !st.Radio || len(bad.levels) != 0 {
		t.Fatalf("state %+v levels %v", st, bad.levels)
	}
}

func TestOpenPortsOnHost(t *testing.T) {
	if _, err := OpenPorts(PicoThermo); err == nil {
		t.Fatal("host build opened board ports")
	}
}

func TestOpenFlashOnHost(t *testing.T) {
	if _, err := OpenFlash(PicoThermo); err == nil {
		t.Fatal("host build opened board flash")
	}
}
