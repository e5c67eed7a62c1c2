package bsatn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/spacetimedb-core/pkg/sats"
)

func TestEncodeDecodeRoundTripPrimitives(t *testing.T) {
	ts := sats.NewTypespace(nil)

	cases := []struct {
		name string
		ty   sats.AlgebraicType
		val  Value
	}{
		{"bool-true", sats.Bool(), true},
		{"bool-false", sats.Bool(), false},
		{"u8", sats.U8(), uint8(200)},
		{"i32", sats.I32(), int32(-12345)},
		{"u64", sats.U64(), uint64(18446744073709551615)},
		{"f64", sats.F64(), float64(3.14159)},
		{"string", sats.StringT(), "hello, spacetimedb"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf, err := Encode(ts, tc.ty, tc.val, nil)
			require.NoError(t, err)

			got, n, err := Decode(ts, tc.ty, buf)
			require.NoError(t, err)
			assert.Equal(t, len(buf), n)
			assert.Equal(t, tc.val, got)
		})
	}
}

func TestEncodeDecodeProduct(t *testing.T) {
	ts := sats.NewTypespace(nil)
	ty := sats.Product(
		sats.ProductElement{Name: "id", Type: sats.U64()},
		sats.ProductElement{Name: "name", Type: sats.StringT()},
		sats.ProductElement{Name: "active", Type: sats.Bool()},
	)
	val := ProductValue{Elements: []Value{uint64(42), "widget", true}}

	buf, err := Encode(ts, ty, val, nil)
	require.NoError(t, err)

	got, n, err := Decode(ts, ty, buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, val, got)
}

func TestEncodeDecodeSum(t *testing.T) {
	ts := sats.NewTypespace(nil)
	ty := sats.Sum(
		sats.SumVariant{Name: "ok", Type: sats.U32()},
		sats.SumVariant{Name: "err", Type: sats.StringT()},
	)

	okVal := SumValue{Tag: 0, Payload: uint32(7)}
	buf, err := Encode(ts, ty, okVal, nil)
	require.NoError(t, err)
	got, _, err := Decode(ts, ty, buf)
	require.NoError(t, err)
	assert.Equal(t, okVal, got)

	errVal := SumValue{Tag: 1, Payload: "boom"}
	buf, err = Encode(ts, ty, errVal, nil)
	require.NoError(t, err)
	got, _, err = Decode(ts, ty, buf)
	require.NoError(t, err)
	assert.Equal(t, errVal, got)
}

func TestDecodeInvalidBool(t *testing.T) {
	ts := sats.NewTypespace(nil)
	_, _, err := Decode(ts, sats.Bool(), []byte{2})
	require.Error(t, err)
	var boolErr *InvalidBoolError
	assert.ErrorAs(t, err, &boolErr)
}

func TestDecodeInvalidTag(t *testing.T) {
	ts := sats.NewTypespace(nil)
	ty := sats.Sum(sats.SumVariant{Name: "only", Type: sats.U8()})
	_, _, err := Decode(ts, ty, []byte{5, 0})
	require.Error(t, err)
	var tagErr *InvalidTagError
	assert.ErrorAs(t, err, &tagErr)
}

func TestEncodeDecodeArray(t *testing.T) {
	ts := sats.NewTypespace(nil)
	ty := sats.Array(sats.U16())
	val := []Value{uint16(1), uint16(2), uint16(3)}

	buf, err := Encode(ts, ty, val, nil)
	require.NoError(t, err)
	got, _, err := Decode(ts, ty, buf)
	require.NoError(t, err)
	assert.Equal(t, val, got)
}
