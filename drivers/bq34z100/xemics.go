package bq34z100

import "math"

// Xemics float layout: [exponent+128 : 8][sign : 1][mantissa : 23].
// The mantissa carries an implicit leading 0x800000.
const (
	xemicsSign     = 0x800000
	xemicsMantissa = 0x7fffff
)

// XemicsToFloat decodes a packed calibration constant.
//
// The implicit bit is OR-ed into the 24-bit field that still holds the sign
// bit, and the result is taken as a signed 32-bit mantissa. This matches the
// gauge tooling bit for bit; do not simplify.
func XemicsToFloat(word uint32) float64 {
	neg := word&xemicsSign != 0
	exp := int(word>>24) - 128 - 24
	mantissa := float64(int32((word & 0xffffff) | xemicsSign))
	v := mantissa * math.Pow(2, float64(exp))
	if neg {
		return -v
	}
	return v
}

// FloatToXemics encodes v. The exponent is trunc(log2|v|), plus one when
// |v| > 1; the mantissa is |v| scaled to 24 bits and truncated.
// Zero and non-finite values encode to 0.
//
// Relative round-trip error is below 2^-23 except for exact powers of two
// at or below 1, whose mantissa overflows 24 bits in this format.
func FloatToXemics(v float64) uint32 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	neg := v < 0
	if neg {
		v = -v
	}
	exp := int(math.Trunc(math.Log2(v)))
	if v > 1 {
		exp++
	}
	if exp < -128 {
		exp = -128
	}
	if exp > 127 {
		exp = 127
	}
	mantissa := uint32(v / math.Pow(2, float64(exp-24)))
	word := uint32(exp+128)<<24 | mantissa&xemicsMantissa
	if neg {
		word |= xemicsSign
	}
	return word
}
