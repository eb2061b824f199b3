// Package mathx holds the small generic integer helpers the firmware uses
// for scaling and bounds.
package mathx

import "golang.org/x/exp/constraints"

func ordered[T constraints.Ordered](lo, hi T) (T, T) {
	if hi < lo {
		return hi, lo
	}
	return lo, hi
}

// Clamp limits v to the range spanned by lo and hi, in either order.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	lo, hi = ordered(lo, hi)
	return min(max(v, lo), hi)
}

// Between reports whether v lies in the closed range spanned by lo and hi.
func Between[T constraints.Ordered](v, lo, hi T) bool {
	lo, hi = ordered(lo, hi)
	return lo <= v && v <= hi
}

func Abs[T constraints.Signed](x T) T {
	if x < 0 {
		return -x
	}
	return x
}

// CeilDiv returns ceil(a/b); zero when b is zero.
func CeilDiv[T constraints.Unsigned](a, b T) T {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
