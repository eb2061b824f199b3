package heartbeat

import (
	"context"
	"time"

	"temppair-go/bus"
	"temppair-go/services/config"
	"temppair-go/services/hal"
	"temppair-go/services/thermo"
)

var TopicBeat = bus.T("core", "heartbeat")

// Beat is the retained core/heartbeat document.
type Beat struct {
	Seq     uint32
	UptimeS int64
	Core    thermo.Stats // last core/stats seen
	HAL     hal.Stats
}

type Service struct {
	// HAL, when set, is polled for I/O counters on each beat.
	HAL func() hal.Stats
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(config.TopicHeartbeat)
	defer conn.Unsubscribe(cfgSub)
	statsSub := conn.Subscribe(thermo.TopicStats)
	defer conn.Unsubscribe(statsSub)

	start := time.Now()
	tick := time.NewTicker(10 * time.Second)
	defer tick.Stop()

	var beat Beat
	// loop until context is cancelled, respond to tick and config changes
	for {
		select {
		case <-ctx.Done():
			println("Info: heartbeat service stopping")
			return
		case t := <-tick.C:
			beat.Seq++
			beat.UptimeS = int64(t.Sub(start) / time.Second)
			if s.HAL != nil {
				beat.HAL = s.HAL()
			}
			println("Info:", t.Format("15:04:05"), "Heartbeat",
				"frames", beat.Core.Framer.Frames,
				"bad", beat.Core.Framer.Malformed+beat.Core.Malformed,
				"readings", beat.Core.Readings,
				"rx", beat.HAL.RxBytes)
			conn.Publish(conn.NewMessage(TopicBeat, beat, true))
		case msg := <-statsSub.Channel():
			if st, ok := msg.Payload.(thermo.Stats); ok {
				beat.Core = st
			}
		case msg := <-cfgSub.Channel():
			// Change tick interval if needed
			if c, ok := msg.Payload.(config.Heartbeat); ok && c.Interval > 0 {
				tick.Reset(time.Duration(c.Interval) * time.Second)
				println("Info:", "Heartbeat interval set to", c.Interval, "seconds")
			}
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
