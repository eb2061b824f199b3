// Package conv formats numbers for println logging and bus topics without
// pulling fmt or strconv into the firmware image.
package conv

const hexDigits = "0123456789ABCDEF"

// AppendHex32 appends v as eight upper-case hex digits, the way EnOcean IDs
// are printed on sensor labels.
func AppendHex32(dst []byte, v uint32) []byte {
	for sh := 28; sh >= 0; sh -= 4 {
		dst = append(dst, hexDigits[(v>>uint(sh))&0xF])
	}
	return dst
}

// Hex32 is AppendHex32 into a fresh string.
func Hex32(v uint32) string {
	var b [8]byte
	return string(AppendHex32(b[:0], v))
}

func appendUint(dst []byte, u uint64) []byte {
	var b [20]byte
	i := len(b)
	for {
		i--
		b[i] = byte('0' + u%10)
		u /= 10
		if u == 0 {
			break
		}
	}
	return append(dst, b[i:]...)
}

// AppendDeci appends a tenths value with one decimal place: 215 -> "21.5",
// -5 -> "-0.5".
func AppendDeci(dst []byte, tenths int64) []byte {
	u := uint64(tenths)
	if tenths < 0 {
		dst = append(dst, '-')
		u = uint64(-tenths)
	}
	dst = appendUint(dst, u/10)
	return append(dst, '.', byte('0'+u%10))
}
