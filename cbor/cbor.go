// Package cbor implements the deterministic CBOR subset (RFC 8949) that the
// EDHOC and OSCORE wire formats need: byte strings, text strings, small
// unsigned integers and arrays, encoded in shortest form only.
//
// Every Encode* function writes into a caller-supplied buffer and returns the
// number of bytes written, or ErrBufferTooSmall. Every Decode* function reads
// from a caller-supplied slice and returns the decoded value plus the number
// of bytes consumed. Decoding a non-shortest-form header fails with
// ErrFormat: this package never round-trips indeterminate-length or
// over-long encodings.
package cbor

import (
	"encoding/binary"
	"errors"
)

// Errors returned by this package. They are the concrete values behind the
// parsing-kind variants of edhoc.Error / oscore.Error: callers type-assert
// or use errors.Is against these, never this package's own type.
var (
	ErrFormat         = errors.New("cbor: non-shortest-form or malformed item")
	ErrBufferTooSmall = errors.New("cbor: output buffer too small")
	ErrUnexpectedType = errors.New("cbor: unexpected major type")
	ErrTruncated      = errors.New("cbor: input truncated")
)

const (
	majorUint  = 0
	majorBstr  = 2
	majorTstr  = 3
	majorArray = 4
)

// Optional distinguishes "Empty" (present, zero length) from "Absent" (no
// value at all): a zero-value Optional[T] is Absent.
type Optional[T any] struct {
	Present bool
	Val     T
}

// Some wraps a present value.
func Some[T any](v T) Optional[T] { return Optional[T]{Present: true, Val: v} }

// None is the absent value for T, spelled out at call sites for clarity.
func None[T any]() Optional[T] { return Optional[T]{} }

// headerLen returns the number of bytes a shortest-form header needs for
// argument n (major type folded in by the caller).
func headerLen(n uint64) int {
	switch {
	case n < 24:
		return 1
	case n <= 0xff:
		return 2
	case n <= 0xffff:
		return 3
	case n <= 0xffffffff:
		return 5
	default:
		return 9
	}
}

func putHeader(buf []byte, major byte, n uint64) int {
	switch {
	case n < 24:
		buf[0] = major<<5 | byte(n)
		return 1
	case n <= 0xff:
		buf[0] = major<<5 | 24
		buf[1] = byte(n)
		return 2
	case n <= 0xffff:
		buf[0] = major<<5 | 25
		binary.BigEndian.PutUint16(buf[1:3], uint16(n))
		return 3
	case n <= 0xffffffff:
		buf[0] = major<<5 | 26
		binary.BigEndian.PutUint32(buf[1:5], uint32(n))
		return 5
	default:
		buf[0] = major<<5 | 27
		binary.BigEndian.PutUint64(buf[1:9], n)
		return 9
	}
}

// getHeader decodes a header, enforcing shortest form, and returns
// (major type, argument, bytes consumed).
func getHeader(in []byte) (byte, uint64, int, error) {
	if len(in) == 0 {
		return 0, 0, 0, ErrTruncated
	}
	major := in[0] >> 5
	arg := in[0] & 0x1f
	switch {
	case arg < 24:
		return major, uint64(arg), 1, nil
	case arg == 24:
		if len(in) < 2 {
			return 0, 0, 0, ErrTruncated
		}
		if in[1] < 24 {
			return 0, 0, 0, ErrFormat
		}
		return major, uint64(in[1]), 2, nil
	case arg == 25:
		if len(in) < 3 {
			return 0, 0, 0, ErrTruncated
		}
		v := binary.BigEndian.Uint16(in[1:3])
		if v <= 0xff {
			return 0, 0, 0, ErrFormat
		}
		return major, uint64(v), 3, nil
	case arg == 26:
		if len(in) < 5 {
			return 0, 0, 0, ErrTruncated
		}
		v := binary.BigEndian.Uint32(in[1:5])
		if v <= 0xffff {
			return 0, 0, 0, ErrFormat
		}
		return major, uint64(v), 5, nil
	case arg == 27:
		if len(in) < 9 {
			return 0, 0, 0, ErrTruncated
		}
		v := binary.BigEndian.Uint64(in[1:9])
		if v <= 0xffffffff {
			return 0, 0, 0, ErrFormat
		}
		return major, v, 9, nil
	default:
		return 0, 0, 0, ErrFormat
	}
}

// EncodeUint writes an unsigned integer (major type 0).
func EncodeUint(buf []byte, v uint64) (int, error) {
	n := headerLen(v)
	if len(buf) < n {
		return 0, ErrBufferTooSmall
	}
	return putHeader(buf, majorUint, v), nil
}

// SizeUint returns the encoded length of v without writing anything.
func SizeUint(v uint64) int { return headerLen(v) }

// DecodeUint reads an unsigned integer.
func DecodeUint(in []byte) (uint64, int, error) {
	major, v, n, err := getHeader(in)
	if err != nil {
		return 0, 0, err
	}
	if major != majorUint {
		return 0, 0, ErrUnexpectedType
	}
	return v, n, nil
}

// EncodeBstr writes a definite-length byte string (major type 2). A nil
// slice and an empty non-nil slice both encode as the zero-length byte
// string 0x40; the Empty/Absent split belongs at the Optional[T] level, not
// here.
func EncodeBstr(buf []byte, v []byte) (int, error) {
	n := headerLen(uint64(len(v)))
	total := n + len(v)
	if len(buf) < total {
		return 0, ErrBufferTooSmall
	}
	putHeader(buf, majorBstr, uint64(len(v)))
	copy(buf[n:total], v)
	return total, nil
}

// SizeBstr returns the encoded length of a byte string of length n.
func SizeBstr(n int) int { return headerLen(uint64(n)) + n }

// DecodeBstr reads a definite-length byte string and returns a subslice of
// in (no copy): the caller borrows it for as long as in remains valid.
func DecodeBstr(in []byte) ([]byte, int, error) {
	major, length, n, err := getHeader(in)
	if err != nil {
		return nil, 0, err
	}
	if major != majorBstr {
		return nil, 0, ErrUnexpectedType
	}
	total := n + int(length)
	if len(in) < total {
		return nil, 0, ErrTruncated
	}
	return in[n:total], total, nil
}

// EncodeTstr writes a definite-length UTF-8 text string (major type 3).
// EDHOC labels are plain ASCII and are written as raw bytes after the
// header.
func EncodeTstr(buf []byte, s string) (int, error) {
	n := headerLen(uint64(len(s)))
	total := n + len(s)
	if len(buf) < total {
		return 0, ErrBufferTooSmall
	}
	putHeader(buf, majorTstr, uint64(len(s)))
	copy(buf[n:total], s)
	return total, nil
}

// SizeTstr returns the encoded length of a text string of length n.
func SizeTstr(n int) int { return headerLen(uint64(n)) + n }

// DecodeTstr reads a definite-length text string.
func DecodeTstr(in []byte) (string, int, error) {
	major, length, n, err := getHeader(in)
	if err != nil {
		return "", 0, err
	}
	if major != majorTstr {
		return "", 0, ErrUnexpectedType
	}
	total := n + int(length)
	if len(in) < total {
		return "", 0, ErrTruncated
	}
	return string(in[n:total]), total, nil
}

// EncodeNil writes the CBOR null simple value (0xF6). RFC 8613's
// security-context info structure encodes an absent ID context as null,
// not as a zero-length byte string: the Empty/Absent split on the wire.
func EncodeNil(buf []byte) (int, error) {
	if len(buf) < 1 {
		return 0, ErrBufferTooSmall
	}
	buf[0] = 0xf6
	return 1, nil
}

// SizeNil returns the encoded length of the null simple value.
func SizeNil() int { return 1 }

// EncodeArrayHeader writes a definite-length array header (major type 4) for
// an array of n items; the items themselves are encoded by the caller.
func EncodeArrayHeader(buf []byte, n int) (int, error) {
	sz := headerLen(uint64(n))
	if len(buf) < sz {
		return 0, ErrBufferTooSmall
	}
	return putHeader(buf, majorArray, uint64(n)), nil
}

// SizeArrayHeader returns the encoded length of an array header for n items.
func SizeArrayHeader(n int) int { return headerLen(uint64(n)) }

// DecodeArrayHeader reads a definite-length array header and returns the
// element count.
func DecodeArrayHeader(in []byte) (int, int, error) {
	major, n, consumed, err := getHeader(in)
	if err != nil {
		return 0, 0, err
	}
	if major != majorArray {
		return 0, 0, ErrUnexpectedType
	}
	return int(n), consumed, nil
}
