// Package esp3 decodes the EnOcean Serial Protocol 3 spoken by TCM3xx/USB300
// radio modules over their UART link.
//
// A frame on the wire is:
//
//	0x55 | data len (2, BE) | optional len (1) | packet type (1) | CRC8H |
//	data ... | optional ... | CRC8D
//
// CRC8H covers the four header bytes after the sync byte; CRC8D covers data
// and optional data together. The Framer turns a byte stream into Telegrams;
// Interpret turns a RADIO_ERP1 Telegram into a SensorEvent.
//
// The package allocates nothing per frame: the Framer reuses one buffer and
// temperature conversion is integer-only (deci-degrees Celsius).
package esp3

import (
	"errors"

	"temppair-go/errcode"
)

// SyncByte starts every ESP3 frame.
const SyncByte = 0x55

// Header geometry.
const (
	headerLen = 4 // data len (2) + optional len (1) + packet type (1)

	// DefaultMaxDataLen bounds the data section. ERP1 telegrams carry at most
	// a few dozen bytes; anything larger is treated as noise.
	DefaultMaxDataLen = 64
	// DefaultMaxOptionalLen bounds the optional section (ERP1 uses 7).
	DefaultMaxOptionalLen = 16
)

// PacketType is the ESP3 packet type byte.
type PacketType uint8

const (
	PacketRadioERP1        PacketType = 0x01
	PacketResponse         PacketType = 0x02
	PacketRadioSubTelegram PacketType = 0x03
	PacketEvent            PacketType = 0x04
	PacketCommonCommand    PacketType = 0x05
	PacketSmartAckCommand  PacketType = 0x06
	PacketRemoteManCommand PacketType = 0x07
	PacketRadioMessage     PacketType = 0x09
	PacketRadioERP2        PacketType = 0x0A
	PacketConfigCommand    PacketType = 0x0B
	PacketCommandAccepted  PacketType = 0x0C
	PacketRaw802154        PacketType = 0x10
	PacketRaw24            PacketType = 0x11
)

func (p PacketType) String() string {
	switch p {
	case PacketRadioERP1:
		return "radio_erp1"
	case PacketResponse:
		return "response"
	case PacketEvent:
		return "event"
	case PacketCommonCommand:
		return "common_command"
	case PacketRadioERP2:
		return "radio_erp2"
	default:
		return "other"
	}
}

// Event codes carried in the first data byte of a PacketEvent.
const (
	EventReady           = 0x04
	EventDutyCycleLimit  = 0x06
	EventTransmitFailed  = 0x07
	EventLearnModeClosed = 0x09
)

// Common command codes used by this firmware.
const (
	CmdReadVersion          = 0x03
	CmdWriteTransparentMode = 0x3E
)

// RORG values (radio telegram choice byte, first data byte of ERP1).
const (
	RORGRPS = 0xF6 // repeated switch, 1 data byte
	RORG1BS = 0xD5 // 1 byte sensor
	RORG4BS = 0xA5 // 4 byte sensor
	RORGVLD = 0xD2 // variable length
)

// SensorID is the 32-bit EnOcean device address, big-endian on the wire.
type SensorID uint32

// Valid reports whether id can identify a real sensor. Zero is unset and
// all-ones is the broadcast address.
func (id SensorID) Valid() bool { return id != 0 && id != 0xFFFFFFFF }

// Telegram is one CRC-valid ESP3 frame. Data and Optional alias the Framer's
// buffer and are only valid until the next byte is pushed.
type Telegram struct {
	Type     PacketType
	Data     []byte
	Optional []byte
}

// Errors returned by the decoder. They are errcode values so the core can
// count them by code.
var (
	ErrMalformed         error = errcode.MalformedFrame
	ErrUnsupportedPacket error = errcode.UnsupportedPacket
)

// ErrModuleReady is returned by Interpret for the radio module's READY event.
// It is not a failure: the caller should (re)send its start-up commands.
var ErrModuleReady = errors.New("esp3: module ready")
