// services/hal/internal/gpioirq/irq_worker.go
package gpioirq

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"temppair-go/services/hal/internal/halcore"
)

// Event is a debounced logical edge. Active is the level after inversion,
// so for a button wired active-low with invert set, Active means pressed.
type Event struct {
	Name   string
	Active bool
	Edge   halcore.Edge
	HeldMs int64 // on deactivation: how long the input was active
	TS     time.Time
}

type Worker struct {
	// Written by ISR; MUST NOT block the ISR:
	isrQ chan isrEvent
	// Consumed by the main loop:
	outQ    chan Event
	stopped chan struct{}

	mu     sync.RWMutex
	inputs map[string]*watch

	drops    atomic.Uint32 // ISR queue full
	outDrops atomic.Uint32 // consumer slow
}

type isrEvent struct {
	name  string
	level bool // captured in ISR
}

type watch struct {
	pin       halcore.IRQPin
	debounce  time.Duration
	invert    bool
	lastLevel bool
	lastEvent time.Time
	activeAt  time.Time
}

func New(isrBuf, outBuf int) *Worker {
	if isrBuf <= 0 {
		isrBuf = 16
	}
	if outBuf <= 0 {
		outBuf = 8
	}
	return &Worker{
		isrQ:    make(chan isrEvent, isrBuf),
		outQ:    make(chan Event, outBuf),
		stopped: make(chan struct{}),
		inputs:  map[string]*watch{},
	}
}

func (w *Worker) Start(ctx context.Context) {
	go func() {
		defer close(w.stopped)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-w.isrQ:
				w.handleISR(ev, time.Now())
			}
		}
	}()
}

func (w *Worker) Events() <-chan Event { return w.outQ }

// RegisterInput arms an interrupt on both edges of pin. Returns cancel.
func (w *Worker) RegisterInput(name string, pin halcore.IRQPin, debounceMS int, invert bool) (func(), error) {
	init := pin.Get()
	if invert {
		init = !init
	}
	wh := &watch{
		pin:       pin,
		debounce:  time.Duration(debounceMS) * time.Millisecond,
		invert:    invert,
		lastLevel: init,
	}

	// ISR handler: fast register read + non-blocking channel send.
	handler := func() {
		l := pin.Get()
		select {
		case w.isrQ <- isrEvent{name: name, level: l}:
		default:
			w.drops.Add(1)
		}
	}
	if err := pin.SetIRQ(halcore.EdgeBoth, handler); err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.inputs[name] = wh
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		if cur, ok := w.inputs[name]; ok {
			_ = cur.pin.ClearIRQ()
			delete(w.inputs, name)
		}
		w.mu.Unlock()
	}, nil
}

func (w *Worker) handleISR(ev isrEvent, now time.Time) {
	w.mu.RLock()
	wh := w.inputs[ev.name]
	w.mu.RUnlock()
	if wh == nil {
		return
	}
	level := ev.level
	if wh.invert {
		level = !level
	}

	if !wh.lastEvent.IsZero() && now.Sub(wh.lastEvent) < wh.debounce {
		return
	}
	if level == wh.lastLevel {
		// Bounce that settled back before we looked.
		return
	}

	out := Event{Name: ev.name, Active: level, TS: now}
	if level {
		out.Edge = halcore.EdgeRising
		wh.activeAt = now
	} else {
		out.Edge = halcore.EdgeFalling
		if !wh.activeAt.IsZero() {
			out.HeldMs = now.Sub(wh.activeAt).Milliseconds()
		}
	}
	wh.lastLevel = level
	wh.lastEvent = now

	select {
	case w.outQ <- out:
	default:
		w.outDrops.Add(1)
	}
}

// Drops reports events lost at the ISR queue and at the output queue.
func (w *Worker) Drops() (isr, out uint32) { return w.drops.Load(), w.outDrops.Load() }
