package bsatn

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/cuemby/spacetimedb-core/pkg/sats"
)

// Encode appends the BSATN encoding of val (of type ty, in the context of
// ts) to dst and returns the extended slice. This is the recursive slow
// path: it works for any AlgebraicType, including ones with var-len
// members, at the cost of a full tree walk per call.
func Encode(ts *sats.Typespace, ty sats.AlgebraicType, val Value, dst []byte) ([]byte, error) {
	switch ty.Kind {
	case sats.KindBool:
		b, ok := val.(bool)
		if !ok {
			return nil, fmt.Errorf("bsatn: expected bool, got %T", val)
		}
		if b {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil

	case sats.KindI8:
		return append(dst, byte(val.(int8))), nil
	case sats.KindU8:
		return append(dst, val.(uint8)), nil
	case sats.KindI16:
		return appendUint16(dst, uint16(val.(int16))), nil
	case sats.KindU16:
		return appendUint16(dst, val.(uint16)), nil
	case sats.KindI32:
		return appendUint32(dst, uint32(val.(int32))), nil
	case sats.KindU32:
		return appendUint32(dst, val.(uint32)), nil
	case sats.KindI64:
		return appendUint64(dst, uint64(val.(int64))), nil
	case sats.KindU64:
		return appendUint64(dst, val.(uint64)), nil
	case sats.KindF32:
		return appendUint32(dst, math.Float32bits(val.(float32))), nil
	case sats.KindF64:
		return appendUint64(dst, math.Float64bits(val.(float64))), nil

	case sats.KindI128, sats.KindU128:
		return encodeBigInt(dst, requireBigInt(val), 16), nil
	case sats.KindI256, sats.KindU256:
		return encodeBigInt(dst, requireBigInt(val), 32), nil

	case sats.KindString:
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("bsatn: expected string, got %T", val)
		}
		dst = appendUint32(dst, uint32(len(s)))
		return append(dst, s...), nil

	case sats.KindArray:
		elems, ok := val.([]Value)
		if !ok {
			return nil, fmt.Errorf("bsatn: expected array, got %T", val)
		}
		dst = appendUint32(dst, uint32(len(elems)))
		var err error
		for _, e := range elems {
			dst, err = Encode(ts, *ty.Array.Elem, e, dst)
			if err != nil {
				return nil, err
			}
		}
		return dst, nil

	case sats.KindProduct:
		pv, ok := val.(ProductValue)
		if !ok {
			return nil, fmt.Errorf("bsatn: expected product, got %T", val)
		}
		if len(pv.Elements) != len(ty.Product.Elements) {
			return nil, fmt.Errorf("bsatn: product arity mismatch: type has %d elements, value has %d",
				len(ty.Product.Elements), len(pv.Elements))
		}
		var err error
		for i, el := range ty.Product.Elements {
			dst, err = Encode(ts, el.Type, pv.Elements[i], dst)
			if err != nil {
				return nil, err
			}
		}
		return dst, nil

	case sats.KindSum:
		sv, ok := val.(SumValue)
		if !ok {
			return nil, fmt.Errorf("bsatn: expected sum, got %T", val)
		}
		if int(sv.Tag) >= len(ty.Sum.Variants) {
			return nil, &InvalidTagError{Tag: sv.Tag, NumVariants: uint8(len(ty.Sum.Variants))}
		}
		dst = append(dst, sv.Tag)
		return Encode(ts, ty.Sum.Variants[sv.Tag].Type, sv.Payload, dst)

	case sats.KindRef:
		resolved, ok := ts.Get(ty.Ref)
		if !ok {
			return nil, &sats.InvalidTypeRefError{Ref: ty.Ref}
		}
		return Encode(ts, resolved, val, dst)

	default:
		return nil, fmt.Errorf("bsatn: encode: unknown type kind %v", ty.Kind)
	}
}

// Decode reads a BSATN-encoded value of type ty (in the context of ts) from
// the front of src, returning the decoded Value and the number of bytes
// consumed.
func Decode(ts *sats.Typespace, ty sats.AlgebraicType, src []byte) (Value, int, error) {
	switch ty.Kind {
	case sats.KindBool:
		b, err := takeByte(src)
		if err != nil {
			return nil, 0, err
		}
		if b > 1 {
			return nil, 0, &InvalidBoolError{Byte: b}
		}
		return b == 1, 1, nil

	case sats.KindI8:
		b, err := takeByte(src)
		if err != nil {
			return nil, 0, err
		}
		return int8(b), 1, nil
	case sats.KindU8:
		b, err := takeByte(src)
		if err != nil {
			return nil, 0, err
		}
		return b, 1, nil
	case sats.KindI16:
		v, err := takeUint16(src)
		if err != nil {
			return nil, 0, err
		}
		return int16(v), 2, nil
	case sats.KindU16:
		v, err := takeUint16(src)
		if err != nil {
			return nil, 0, err
		}
		return v, 2, nil
	case sats.KindI32:
		v, err := takeUint32(src)
		if err != nil {
			return nil, 0, err
		}
		return int32(v), 4, nil
	case sats.KindU32:
		v, err := takeUint32(src)
		if err != nil {
			return nil, 0, err
		}
		return v, 4, nil
	case sats.KindI64:
		v, err := takeUint64(src)
		if err != nil {
			return nil, 0, err
		}
		return int64(v), 8, nil
	case sats.KindU64:
		v, err := takeUint64(src)
		if err != nil {
			return nil, 0, err
		}
		return v, 8, nil
	case sats.KindF32:
		v, err := takeUint32(src)
		if err != nil {
			return nil, 0, err
		}
		return math.Float32frombits(v), 4, nil
	case sats.KindF64:
		v, err := takeUint64(src)
		if err != nil {
			return nil, 0, err
		}
		return math.Float64frombits(v), 8, nil

	case sats.KindI128, sats.KindU128:
		if len(src) < 16 {
			return nil, 0, &BufferTooShortError{Needed: 16, Remaining: len(src)}
		}
		return decodeBigInt(src[:16], ty.Kind == sats.KindI128), 16, nil
	case sats.KindI256, sats.KindU256:
		if len(src) < 32 {
			return nil, 0, &BufferTooShortError{Needed: 32, Remaining: len(src)}
		}
		return decodeBigInt(src[:32], ty.Kind == sats.KindI256), 32, nil

	case sats.KindString:
		n, err := takeUint32(src)
		if err != nil {
			return nil, 0, err
		}
		rest := src[4:]
		if uint32(len(rest)) < n {
			return nil, 0, &BufferTooShortError{Needed: int(n), Remaining: len(rest)}
		}
		return string(rest[:n]), 4 + int(n), nil

	case sats.KindArray:
		n, err := takeUint32(src)
		if err != nil {
			return nil, 0, err
		}
		consumed := 4
		rest := src[4:]
		elems := make([]Value, 0, n)
		for i := uint32(0); i < n; i++ {
			v, c, err := Decode(ts, *ty.Array.Elem, rest)
			if err != nil {
				return nil, 0, err
			}
			elems = append(elems, v)
			rest = rest[c:]
			consumed += c
		}
		return elems, consumed, nil

	case sats.KindProduct:
		consumed := 0
		rest := src
		elems := make([]Value, len(ty.Product.Elements))
		for i, el := range ty.Product.Elements {
			v, c, err := Decode(ts, el.Type, rest)
			if err != nil {
				return nil, 0, err
			}
			elems[i] = v
			rest = rest[c:]
			consumed += c
		}
		return ProductValue{Elements: elems}, consumed, nil

	case sats.KindSum:
		tag, err := takeByte(src)
		if err != nil {
			return nil, 0, err
		}
		if int(tag) >= len(ty.Sum.Variants) {
			return nil, 0, &InvalidTagError{Tag: tag, NumVariants: uint8(len(ty.Sum.Variants))}
		}
		payload, c, err := Decode(ts, ty.Sum.Variants[tag].Type, src[1:])
		if err != nil {
			return nil, 0, err
		}
		return SumValue{Tag: tag, Payload: payload}, 1 + c, nil

	case sats.KindRef:
		resolved, ok := ts.Get(ty.Ref)
		if !ok {
			return nil, 0, &sats.InvalidTypeRefError{Ref: ty.Ref}
		}
		return Decode(ts, resolved, src)

	default:
		return nil, 0, fmt.Errorf("bsatn: decode: unknown type kind %v", ty.Kind)
	}
}

func requireBigInt(val Value) *big.Int {
	switch v := val.(type) {
	case *big.Int:
		return v
	case big.Int:
		return &v
	default:
		panic(fmt.Sprintf("bsatn: expected *big.Int, got %T", val))
	}
}

func appendUint16(dst []byte, v uint16) []byte {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return append(dst, buf[:]...)
}

func appendUint32(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

func appendUint64(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// encodeBigInt appends v to dst as width bytes, little-endian two's
// complement.
func encodeBigInt(dst []byte, v *big.Int, width int) []byte {
	buf := make([]byte, width)
	bigIntToLE(v, buf)
	return append(dst, buf...)
}

func bigIntToLE(v *big.Int, buf []byte) {
	neg := v.Sign() < 0
	mag := new(big.Int).Abs(v)
	be := mag.Bytes()
	// Place big-endian magnitude at the tail, then reverse into buf (LE).
	for i := 0; i < len(be) && i < len(buf); i++ {
		buf[len(buf)-1-i] = be[len(be)-1-i]
	}
	if neg {
		twosComplementInPlace(buf)
	}
}

func twosComplementInPlace(buf []byte) {
	carry := byte(1)
	for i := 0; i < len(buf); i++ {
		buf[i] = ^buf[i]
		sum := uint16(buf[i]) + uint16(carry)
		buf[i] = byte(sum)
		carry = byte(sum >> 8)
	}
}

func decodeBigInt(le []byte, signed bool) *big.Int {
	be := make([]byte, len(le))
	for i, b := range le {
		be[len(le)-1-i] = b
	}
	v := new(big.Int).SetBytes(be)
	if signed && len(le) > 0 && le[len(le)-1]&0x80 != 0 {
		// Negative: v currently holds the unsigned magnitude of the
		// two's-complement bit pattern; subtract 2^(8*len).
		mod := new(big.Int).Lsh(big.NewInt(1), uint(8*len(le)))
		v.Sub(v, mod)
	}
	return v
}

func takeByte(src []byte) (byte, error) {
	if len(src) < 1 {
		return 0, &BufferTooShortError{Needed: 1, Remaining: len(src)}
	}
	return src[0], nil
}

func takeUint16(src []byte) (uint16, error) {
	if len(src) < 2 {
		return 0, &BufferTooShortError{Needed: 2, Remaining: len(src)}
	}
	return binary.LittleEndian.Uint16(src), nil
}

func takeUint32(src []byte) (uint32, error) {
	if len(src) < 4 {
		return 0, &BufferTooShortError{Needed: 4, Remaining: len(src)}
	}
	return binary.LittleEndian.Uint32(src), nil
}

func takeUint64(src []byte) (uint64, error) {
	if len(src) < 8 {
		return 0, &BufferTooShortError{Needed: 8, Remaining: len(src)}
	}
	return binary.LittleEndian.Uint64(src), nil
}
