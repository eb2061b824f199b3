package thermo

import (
	"temppair-go/bus"
	"temppair-go/drivers/esp3"
	"temppair-go/x/conv"
)

var (
	TopicPairingState  = bus.T("pairing", "state")
	TopicPairingResult = bus.T("pairing", "outcome")
	TopicStart         = bus.T("pairing", "control", "start")
	TopicCancel        = bus.T("pairing", "control", "cancel")
	TopicUnpair        = bus.T("pairing", "control", "unpair")
	TopicForgetAll     = bus.T("pairing", "control", "forget_all")
	TopicRecovery      = bus.T("store", "recovery")
	TopicStats         = bus.T("core", "stats")
	TopicSnapshot      = bus.T("sensor", "snapshot")
)

// ReadingTopic is sensor/<8 hex digits>/reading.
func ReadingTopic(id esp3.SensorID) bus.Topic {
	return bus.T("sensor", conv.Hex32(uint32(id)), "reading")
}

// PairingState is the retained pairing/state document.
type PairingState struct {
	State      string // "idle" | "pairing"
	DeadlineMs int64  // 0 when idle
	Paired     int
	Capacity   int
}
