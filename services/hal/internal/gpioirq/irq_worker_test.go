// services/hal/internal/gpioirq/irq_worker_test.go

package gpioirq

import (
	"context"
	"sync"
	"testing"
	"time"

	"temppair-go/services/hal/internal/halcore"
)

// fakeIRQPin implements halcore.IRQPin with minimal behaviour for tests.
type fakeIRQPin struct {
	mu      sync.Mutex
	level   bool
	handler func()
	number  int
}

func (p *fakeIRQPin) ConfigureInput(_ halcore.Pull) error   { return nil }
func (p *fakeIRQPin) Get() bool                             { p.mu.Lock(); defer p.mu.Unlock(); return p.level }
func (p *fakeIRQPin) Number() int                           { return p.number }
func (p *fakeIRQPin) SetIRQ(_ halcore.Edge, h func()) error { p.handler = h; return nil }
func (p *fakeIRQPin) ClearIRQ() error                       { p.handler = nil; return nil }

func (p *fakeIRQPin) fire(level bool) {
	p.mu.Lock()
	p.level = level
	p.mu.Unlock()
	if p.handler != nil {
		p.handler()
	}
}

func next(t *testing.T, w *Worker) Event {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func TestButtonPressAndHold(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := New(8, 8)
	w.Start(ctx)

	// Active-low button with pull-up: idle level high.
	pin := &fakeIRQPin{number: 14, level: true}
	stop, err := w.RegisterInput("button", pin, 10, true)
	if err != nil {
		t.Fatalf("RegisterInput: %v", err)
	}
	defer stop()

	pin.fire(false) // pressed
	ev := next(t, w)
	if ev.Name != "button" || !ev.Active || ev.Edge != halcore.EdgeRising {
		t.Fatalf("press: %+v", ev)
	}

	// Bounce within the debounce window is suppressed.
	pin.fire(true)
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event during debounce: %+v", ev)
	case <-time.After(5 * time.Millisecond):
	}

	time.Sleep(40 * time.Millisecond)
	pin.fire(true) // released
	ev = next(t, w)
	if ev.Active || ev.Edge != halcore.EdgeFalling {
		t.Fatalf("release: %+v", ev)
	}
	if ev.HeldMs < 40 {
		t.Fatalf("held %d ms, want >= 40", ev.HeldMs)
	}
}

func TestRepeatedLevelIsIgnored(t *testing.T) {
	w := New(8, 8)
	pin := &fakeIRQPin{}
	if _, err := w.RegisterInput("in", pin, 0, false); err != nil {
		t.Fatal(err)
	}
	now := time.Unix(100, 0)
	w.handleISR(isrEvent{name: "in", level: true}, now)
	w.handleISR(isrEvent{name: "in", level: true}, now.Add(time.Second))
	if n := len(w.Events()); n != 1 {
		t.Fatalf("events = %d, want 1", n)
	}
	w.handleISR(isrEvent{name: "unknown", level: false}, now)
	if n := len(w.Events()); n != 1 {
		t.Fatal("event for unregistered input")
	}
}

func TestISRQueueOverflowIsCounted(t *testing.T) {
	w := New(1, 1) // not started: the ISR queue never drains
	pin := &fakeIRQPin{}
	if _, err := w.RegisterInput("in", pin, 0, false); err != nil {
		t.Fatal(err)
	}
	pin.fire(true)
	pin.fire(false)
	pin.fire(true)
	if isr, _ := w.Drops(); isr != 2 {
		t.Fatalf("isr drops = %d, want 2", isr)
	}
}

func TestCancelClearsIRQ(t *testing.T) {
	w := New(8, 8)
	pin := &fakeIRQPin{}
	stop, err := w.RegisterInput("in", pin, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	stop()
	if pin.handler != nil {
		t.Fatal("IRQ still armed")
	}
}
