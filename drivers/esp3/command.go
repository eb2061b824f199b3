package esp3

import "temppair-go/errcode"

// AppendFrame appends a complete, checksummed ESP3 frame to dst.
func AppendFrame(dst []byte, typ PacketType, data, optional []byte) ([]byte, error) {
	if len(data) == 0 || len(data) > 0xFFFF || len(optional) > 0xFF {
		return dst, errcode.InvalidParams
	}
	hdr := [headerLen]byte{
		byte(len(data) >> 8),
		byte(len(data)),
		byte(len(optional)),
		byte(typ),
	}
	dst = append(dst, SyncByte)
	dst = append(dst, hdr[:]...)
	dst = append(dst, CRC8(hdr[:]))
	start := len(dst)
	dst = append(dst, data...)
	dst = append(dst, optional...)
	dst = append(dst, CRC8(dst[start:]))
	return dst, nil
}

// TransparentModeCommand appends CO_WR_TRANSPARENT_MODE. With transparent
// mode enabled the module forwards every received telegram, including those
// of sensors it has not been taught.
func TransparentModeCommand(dst []byte, enable bool) []byte {
	var on byte
	if enable {
		on = 1
	}
	out, _ := AppendFrame(dst, PacketCommonCommand, []byte{CmdWriteTransparentMode, on}, nil)
	return out
}

// Radio describes an ERP1 radio telegram for encoding. It is what a sensor
// transmission looks like after the module has demodulated it; used by the
// bench tools and tests.
type Radio struct {
	RORG    byte
	Payload []byte // 1 byte for RPS/1BS, 4 for 4BS, any for VLD
	Sender  SensorID
	Status  byte
	DBm     int8 // received signal strength, negative; 0 omits optional data
}

// Append appends the ERP1 frame for r to dst.
func (r Radio) Append(dst []byte) ([]byte, error) {
	var data [64]byte
	n := 0
	data[n] = r.RORG
	n++
	if len(r.Payload) > len(data)-6 {
		return dst, errcode.InvalidParams
	}
	n += copy(data[n:], r.Payload)
	data[n] = byte(r.Sender >> 24)
	data[n+1] = byte(r.Sender >> 16)
	data[n+2] = byte(r.Sender >> 8)
	data[n+3] = byte(r.Sender)
	data[n+4] = r.Status
	n += 5
	if r.DBm == 0 {
		return AppendFrame(dst, PacketRadioERP1, data[:n], nil)
	}
	// SubTelNum, destination (broadcast), dBm magnitude, security level.
	opt := [7]byte{0x01, 0xFF, 0xFF, 0xFF, 0xFF, byte(-int16(r.DBm)), 0x00}
	return AppendFrame(dst, PacketRadioERP1, data[:n], opt[:])
}
