// Package varbyte encodes and decodes non-negative integers as sequences of
// 7-bits-per-byte continuation-bit bytes, least-significant group first.
package varbyte

import (
	"fmt"

	bdxerrors "github.com/blockdex/blockdex/pkg/errors"
)

// Encode appends the varbyte encoding of n to dst and returns the extended
// slice. n = 0 encodes as the single byte 0x00.
func Encode(dst []byte, n uint32) []byte {
	for {
		b := byte(n & 0x7F)
		n >>= 7
		if n != 0 {
			dst = append(dst, b|0x80)
			continue
		}
		dst = append(dst, b)
		return dst
	}
}

// EncodeAll encodes every value in ns in order and returns the concatenated
// bytes.
func EncodeAll(ns []uint32) []byte {
	buf := make([]byte, 0, len(ns)*2)
	for _, n := range ns {
		buf = Encode(buf, n)
	}
	return buf
}

// Decode reads a single varbyte-encoded integer starting at src[0]. It
// returns the decoded value and the number of bytes consumed. It returns a
// ParseError-wrapped error if src is exhausted before a terminating byte
// (high bit clear) is found.
func Decode(src []byte) (uint32, int, error) {
	var n uint32
	for i := 0; i < len(src); i++ {
		b := src[i]
		n |= uint32(b&0x7F) << (7 * uint(i))
		if b&0x80 == 0 {
			return n, i + 1, nil
		}
		if i == 4 {
			return 0, 0, fmt.Errorf("%w: varbyte sequence exceeds 5 bytes", bdxerrors.ErrParseError)
		}
	}
	return 0, 0, fmt.Errorf("%w: varbyte sequence exhausted without terminator", bdxerrors.ErrParseError)
}

// DecodeN decodes exactly count consecutive varbyte integers from src and
// returns them along with the total number of bytes consumed.
func DecodeN(src []byte, count int) ([]uint32, int, error) {
	out := make([]uint32, count)
	pos := 0
	for i := 0; i < count; i++ {
		n, consumed, err := Decode(src[pos:])
		if err != nil {
			return nil, 0, fmt.Errorf("decoding value %d of %d: %w", i, count, err)
		}
		out[i] = n
		pos += consumed
	}
	return out, pos, nil
}
