package esp3

// SensorEvent is a decoded radio telegram from one sensor.
type SensorEvent struct {
	ID      SensorID
	RORG    byte
	Raw     [4]byte // telemetry bytes (DB3..DB0 for 4BS), left-aligned
	RawLen  uint8
	Status  byte
	TeachIn bool // 1BS/4BS telegram with the LRN bit cleared

	// DBm is the received signal strength in dBm (negative), 0 if the
	// module did not report one.
	DBm int8

	// TempDeciC is valid when HasTemp is set.
	TempDeciC int16
	HasTemp   bool

	// TSms is stamped by the caller at receipt.
	TSms int64
}

// Interpret decodes a validated Telegram. RADIO_ERP1 telegrams yield a
// SensorEvent; the module's READY event yields ErrModuleReady; every other
// packet type yields ErrUnsupportedPacket.
//
// Temperature is decoded with the fixed scale of profile p, only for
// telegrams whose RORG matches the profile and that are not teach-ins.
func Interpret(t Telegram, p Profile) (SensorEvent, error) {
	switch t.Type {
	case PacketRadioERP1:
		return interpretERP1(t, p)
	case PacketEvent:
		if len(t.Data) >= 1 && t.Data[0] == EventReady {
			return SensorEvent{}, ErrModuleReady
		}
	}
	return SensorEvent{}, ErrUnsupportedPacket
}

func interpretERP1(t Telegram, p Profile) (SensorEvent, error) {
	d := t.Data
	if len(d) < 1 {
		return SensorEvent{}, ErrMalformed
	}
	var ev SensorEvent
	ev.RORG = d[0]

	var payload []byte
	switch d[0] {
	case RORGRPS, RORG1BS:
		// choice, 1 data byte, sender (4), status
		if len(d) != 7 {
			return SensorEvent{}, ErrMalformed
		}
		payload = d[1:2]
	case RORG4BS:
		// choice, 4 data bytes, sender (4), status
		if len(d) != 10 {
			return SensorEvent{}, ErrMalformed
		}
		payload = d[1:5]
	case RORGVLD:
		// choice, 1..n data bytes, sender (4), status
		if len(d) < 6 {
			return SensorEvent{}, ErrMalformed
		}
		payload = d[1 : len(d)-5]
	default:
		return SensorEvent{}, ErrUnsupportedPacket
	}

	s := d[len(d)-5 : len(d)-1]
	ev.ID = SensorID(uint32(s[0])<<24 | uint32(s[1])<<16 | uint32(s[2])<<8 | uint32(s[3]))
	if !ev.ID.Valid() {
		return SensorEvent{}, ErrMalformed
	}
	ev.Status = d[len(d)-1]
	ev.RawLen = uint8(copy(ev.Raw[:], payload))

	switch ev.RORG {
	case RORG4BS:
		ev.TeachIn = ev.Raw[3]&0x08 == 0
	case RORG1BS:
		ev.TeachIn = ev.Raw[0]&0x08 == 0
	}

	// Optional data: SubTelNum, destination (4), dBm, security level.
	if len(t.Optional) >= 6 {
		mag := int16(t.Optional[5])
		if mag > 128 {
			mag = 128
		}
		ev.DBm = int8(-mag)
	}

	if !ev.TeachIn && ev.RORG == p.RORG() && ev.RawLen == 4 {
		ev.TempDeciC, ev.HasTemp = p.Decode(ev.Raw)
	}
	return ev, nil
}
