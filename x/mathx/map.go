package mathx

// MapI32 maps x in [inMin,inMax] to [outMin,outMax] with 64-bit intermediates,
// rounding to nearest. inMin may be greater than inMax (inverted scales).
// Clamps to the out range if input is outside.
func MapI32(x, inMin, inMax, outMin, outMax int32) int32 {
	if inMax == inMin {
		return outMin
	}
	if !Between(x, inMin, inMax) {
		if Abs(x-inMin) < Abs(x-inMax) {
			return outMin
		}
		return outMax
	}
	num := int64(x-inMin) * int64(outMax-outMin)
	den := int64(inMax - inMin)
	// Round half away from zero.
	q := num / den
	r := num % den
	if Abs(r)*2 >= Abs(den) {
		if (num < 0) != (den < 0) {
			q--
		} else {
			q++
		}
	}
	return outMin + int32(q)
}
