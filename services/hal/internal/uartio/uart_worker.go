// services/hal/internal/uartio/uart_worker.go
package uartio

import (
	"context"
	"sync/atomic"
	"time"

	"temppair-go/services/hal/internal/halcore"
	"temppair-go/x/mathx"
	"temppair-go/x/shmring"
)

// ReaderCfg binds one UART to the ring the main loop drains.
type ReaderCfg struct {
	DevID    string
	Port     halcore.UARTPort
	Ring     *shmring.Ring
	MaxChunk int // clamp 16..256
}

// quietGap ends a drain burst; well under one ESP3 inter-byte timeout.
const quietGap = 5 * time.Millisecond

// Stats are cumulative and safe to read from any goroutine.
type Stats struct {
	Chunks uint32
	Bytes  uint32
}

// Worker copies received bytes into a single-producer ring. The reader
// goroutine is the only producer; it never blocks on the consumer, and bytes
// that do not fit are counted by the ring.
type Worker struct {
	chunks atomic.Uint32
	bytes  atomic.Uint32
}

func New() *Worker { return &Worker{} }

func (w *Worker) Stats() Stats {
	return Stats{Chunks: w.chunks.Load(), Bytes: w.bytes.Load()}
}

// Register starts the reader goroutine for a UART port. Returns cancel.
func (w *Worker) Register(ctx context.Context, cfg ReaderCfg) (func(), error) {
	if cfg.Port == nil || cfg.Ring == nil {
		return nil, errNoPort
	}
	max := mathx.Clamp(cfg.MaxChunk, 16, 256)
	cctx, cancel := context.WithCancel(ctx)

	go func() {
		buf := make([]byte, max)
		for {
			select {
			case <-cctx.Done():
				return
			case <-cfg.Port.Readable():
				// Drain until the line has been quiet for a moment, so a
				// burst costs one wakeup.
				for {
					rctx, rcancel := context.WithTimeout(cctx, quietGap)
					n, _ := cfg.Port.RecvSomeContext(rctx, buf)
					rcancel()
					if n <= 0 {
						break
					}
					w.chunks.Add(1)
					w.bytes.Add(uint32(n))
					cfg.Ring.TryWriteFrom(buf[:n])
				}
			}
		}
	}()

	return cancel, nil
}

// Send writes p in full to the port.
func Send(port halcore.UARTPort, p []byte) error {
	for len(p) > 0 {
		n, err := port.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
