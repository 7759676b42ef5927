package crypto

import "errors"

var errLEB128Overflow = errors.New("leb128: value overflows uint64")

// EncodeULEB128 returns the unsigned LEB128 encoding of v.
func EncodeULEB128(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

// DecodeULEB128 decodes an unsigned LEB128 value and reports the number of
// bytes consumed.
func DecodeULEB128(b []byte) (uint64, int, error) {
	var v uint64
	var shift uint
	for i, c := range b {
		if shift >= 64 || (shift == 63 && c&0x7f > 1) {
			return 0, 0, errLEB128Overflow
		}
		v |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, errors.New("leb128: truncated input")
}
