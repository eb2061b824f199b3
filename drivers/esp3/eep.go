package esp3

import "temppair-go/x/mathx"

// Profile is an EnOcean Equipment Profile packed as 0xRRFFTT
// (RORG, function, type), e.g. A5-02-05 is 0xA50205.
type Profile uint32

// Temperature profiles with a fixed linear scale.
const (
	ProfileA50205 Profile = 0xA50205 // 0..40 °C, DB1 inverted, 8 bit
	ProfileA50403 Profile = 0xA50403 // -20..+60 °C, DB2[1:0]+DB1, 10 bit
	ProfileA50904 Profile = 0xA50904 // 0..51 °C, DB1, 0.2 °C steps
)

// DefaultProfile is what the stock room sensors transmit.
const DefaultProfile = ProfileA50205

// RORG returns the telegram type byte the profile is carried in.
func (p Profile) RORG() byte { return byte(p >> 16) }

// Supported reports whether Decode knows the profile's scale.
func (p Profile) Supported() bool {
	switch p {
	case ProfileA50205, ProfileA50403, ProfileA50904:
		return true
	}
	return false
}

func (p Profile) String() string {
	const hexd = "0123456789ABCDEF"
	var b [8]byte
	for i, sh := range [3]uint{16, 8, 0} {
		v := byte(p >> sh)
		b[i*3] = hexd[v>>4]
		b[i*3+1] = hexd[v&0x0F]
		if i < 2 {
			b[i*3+2] = '-'
		}
	}
	return string(b[:])
}

// ParseProfile accepts "A5-02-05" or "a50205".
func ParseProfile(s string) (Profile, bool) {
	var v uint32
	digits := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		var d byte
		switch {
		case c >= '0' && c <= '9':
			d = c - '0'
		case c >= 'a' && c <= 'f':
			d = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			d = c - 'A' + 10
		case c == '-':
			continue
		default:
			return 0, false
		}
		v = v<<4 | uint32(d)
		digits++
	}
	if digits != 6 {
		return 0, false
	}
	return Profile(v), true
}

// Decode converts 4BS data bytes (DB3..DB0) to deci-degrees Celsius.
func (p Profile) Decode(db [4]byte) (int16, bool) {
	switch p {
	case ProfileA50205:
		return int16(mathx.MapI32(int32(db[2]), 255, 0, 0, 400)), true
	case ProfileA50403:
		raw := int32(db[1]&0x03)<<8 | int32(db[2])
		return int16(mathx.MapI32(raw, 0, 1023, -200, 600)), true
	case ProfileA50904:
		return int16(mathx.MapI32(int32(db[2]), 0, 255, 0, 510)), true
	}
	return 0, false
}
