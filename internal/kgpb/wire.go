package kgpb

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

var ErrTruncated = errors.New("kgpb: truncated message")

// fieldFunc consumes the value of one field from b and reports how many bytes
// it used. Unknown fields should be handed to skipField.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func walkFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("consume tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if m < 0 || m > len(b) {
			return fmt.Errorf("field %d: %w", num, ErrTruncated)
		}
		b = b[m:]
	}
	return nil
}

func skipField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}

func wireTypeError(want, got protowire.Type) error {
	return fmt.Errorf("wire type %d, want %d", got, want)
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, wireTypeError(protowire.BytesType, typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeString(typ protowire.Type, b []byte) (string, int, error) {
	v, n, err := consumeBytes(typ, b)
	return string(v), n, err
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, wireTypeError(protowire.VarintType, typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeBool(typ protowire.Type, b []byte) (bool, int, error) {
	v, n, err := consumeVarint(typ, b)
	return protowire.DecodeBool(v), n, err
}

func consumeInt32(typ protowire.Type, b []byte) (int32, int, error) {
	v, n, err := consumeVarint(typ, b)
	return int32(v), n, err
}

func consumeDouble(typ protowire.Type, b []byte) (float64, int, error) {
	if typ != protowire.Fixed64Type {
		return 0, 0, wireTypeError(protowire.Fixed64Type, typ)
	}
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return math.Float64frombits(v), n, nil
}

func consumeFloat(typ protowire.Type, b []byte) (float64, int, error) {
	if typ != protowire.Fixed32Type {
		return 0, 0, wireTypeError(protowire.Fixed32Type, typ)
	}
	v, n := protowire.ConsumeFixed32(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return float64(math.Float32frombits(v)), n, nil
}

// consumePackedVarints accepts both packed and unpacked encodings of a
// repeated varint field.
func consumePackedVarints(typ protowire.Type, b []byte, fn func(uint64)) (int, error) {
	switch typ {
	case protowire.VarintType:
		v, n, err := consumeVarint(typ, b)
		if err != nil {
			return 0, err
		}
		fn(v)
		return n, nil
	case protowire.BytesType:
		buf, n, err := consumeBytes(typ, b)
		if err != nil {
			return 0, err
		}
		for len(buf) > 0 {
			v, m := protowire.ConsumeVarint(buf)
			if m < 0 {
				return 0, protowire.ParseError(m)
			}
			fn(v)
			buf = buf[m:]
		}
		return n, nil
	default:
		return 0, wireTypeError(protowire.BytesType, typ)
	}
}

// appendMessage appends a length-prefixed sub-message built by enc.
func appendMessage(b []byte, num protowire.Number, enc func([]byte) []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, enc(nil))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendVarint(b, num, protowire.EncodeBool(v))
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

// AppendDelimited appends msg prefixed with its varint length.
func AppendDelimited(b, msg []byte) []byte {
	return protowire.AppendBytes(b, msg)
}

// ConsumeDelimited reads one varint-length-prefixed message from b.
func ConsumeDelimited(b []byte) ([]byte, int, error) {
	if len(b) == 0 {
		return nil, 0, ErrTruncated
	}
	msg, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, fmt.Errorf("delimited message: %w", protowire.ParseError(n))
	}
	return msg, n, nil
}

func float32bits(f float64) uint32 {
	return math.Float32bits(float32(f))
}
