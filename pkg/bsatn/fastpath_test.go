package bsatn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/spacetimedb-core/pkg/bflatn"
	"github.com/cuemby/spacetimedb-core/pkg/sats"
)

func TestForRowTypeRejectsVarLen(t *testing.T) {
	ts := sats.NewTypespace(nil)
	ty := sats.Product(sats.ProductElement{Name: "name", Type: sats.StringT()})
	layout, err := bflatn.Compute(ts, ty)
	require.NoError(t, err)

	_, _, _, ok := ForRowType(layout)
	assert.False(t, ok)
}

func TestForRowTypeFixedProductMatchesSlowPath(t *testing.T) {
	ts := sats.NewTypespace(nil)
	ty := sats.Product(
		sats.ProductElement{Name: "flag", Type: sats.Bool()},
		sats.ProductElement{Name: "count", Type: sats.U32()},
	)
	layout, err := bflatn.Compute(ts, ty)
	require.NoError(t, err)

	static, known, validator, ok := ForRowType(layout)
	require.True(t, ok)

	val := ProductValue{Elements: []Value{true, uint32(99)}}
	slow, err := Encode(ts, ty, val, nil)
	require.NoError(t, err)

	require.Equal(t, static.BsatnLength, len(slow))
	require.NoError(t, Validate(validator, static, slow))

	// Build a BFLATN row buffer matching layout.Fields offsets and
	// verify the fast encoder produces byte-identical output to Encode.
	row := make([]byte, layout.Size)
	row[layout.Fields[0].Offset] = 1 // flag = true
	row[layout.Fields[1].Offset] = 99
	fast := make([]byte, known.BsatnLength)
	known.SerializeRowInto(fast, row)

	assert.Equal(t, slow, fast)
}

func TestValidateRejectsBadBool(t *testing.T) {
	ts := sats.NewTypespace(nil)
	ty := sats.Product(sats.ProductElement{Name: "flag", Type: sats.Bool()})
	layout, err := bflatn.Compute(ts, ty)
	require.NoError(t, err)

	static, _, validator, ok := ForRowType(layout)
	require.True(t, ok)

	err = Validate(validator, static, []byte{2})
	require.Error(t, err)
	var boolErr *InvalidBoolError
	assert.ErrorAs(t, err, &boolErr)
}

func TestValidateRejectsWrongLength(t *testing.T) {
	ts := sats.NewTypespace(nil)
	ty := sats.Product(sats.ProductElement{Name: "flag", Type: sats.Bool()})
	layout, err := bflatn.Compute(ts, ty)
	require.NoError(t, err)

	static, _, validator, ok := ForRowType(layout)
	require.True(t, ok)

	err = Validate(validator, static, []byte{1, 2})
	require.Error(t, err)
	var lenErr *InvalidLenError
	assert.ErrorAs(t, err, &lenErr)
}

func TestCStyleEnumFastPath(t *testing.T) {
	ts := sats.NewTypespace(nil)
	ty := sats.Sum(
		sats.SumVariant{Name: "red", Type: sats.Product()},
		sats.SumVariant{Name: "green", Type: sats.Product()},
		sats.SumVariant{Name: "blue", Type: sats.Product()},
	)
	rowTy := sats.Product(sats.ProductElement{Name: "color", Type: ty})
	layout, err := bflatn.Compute(ts, rowTy)
	require.NoError(t, err)

	static, known, validator, ok := ForRowType(layout)
	require.True(t, ok)
	assert.Equal(t, 1, static.BsatnLength)

	val := ProductValue{Elements: []Value{SumValue{Tag: 1, Payload: ProductValue{}}}}
	slow, err := Encode(ts, rowTy, val, nil)
	require.NoError(t, err)
	require.NoError(t, Validate(validator, static, slow))

	row := make([]byte, layout.Size)
	row[layout.Fields[0].Offset] = 1
	fast := make([]byte, known.BsatnLength)
	known.SerializeRowInto(fast, row)
	assert.Equal(t, slow, fast)
}

func TestValidateNonFirstBoolFieldUsesBsatnOffset(t *testing.T) {
	ts := sats.NewTypespace(nil)
	// U8, U16, Bool: BFLATN pads the U16 up to its own alignment and the
	// Bool lands at BFLATN offset 4, but the packed BSATN buffer is only
	// 4 bytes long with the bool at offset 3.
	ty := sats.Product(
		sats.ProductElement{Name: "a", Type: sats.U8()},
		sats.ProductElement{Name: "b", Type: sats.U16()},
		sats.ProductElement{Name: "c", Type: sats.Bool()},
	)
	layout, err := bflatn.Compute(ts, ty)
	require.NoError(t, err)

	static, _, validator, ok := ForRowType(layout)
	require.True(t, ok)
	require.Equal(t, 4, static.BsatnLength)

	val := ProductValue{Elements: []Value{uint8(1), uint16(2), true}}
	slow, err := Encode(ts, ty, val, nil)
	require.NoError(t, err)
	require.NoError(t, Validate(validator, static, slow))

	bad := append([]byte(nil), slow...)
	bad[3] = 2 // the bool byte, at its real BSATN offset
	err = Validate(validator, static, bad)
	require.Error(t, err)
	var boolErr *InvalidBoolError
	assert.ErrorAs(t, err, &boolErr)
}

func TestValidateNonFirstSumWithPayloadUsesBsatnOffset(t *testing.T) {
	ts := sats.NewTypespace(nil)
	sumTy := sats.Sum(
		sats.SumVariant{Name: "small", Type: sats.U8()},
		sats.SumVariant{Name: "big", Type: sats.U8()},
	)
	// BFLATN lays the sum out as payload-then-tag, so its tag sits after
	// the leading U16 field plus the payload byte; BSATN writes the tag
	// immediately after the U16 field instead, before the payload.
	ty := sats.Product(
		sats.ProductElement{Name: "a", Type: sats.U16()},
		sats.ProductElement{Name: "b", Type: sumTy},
	)
	layout, err := bflatn.Compute(ts, ty)
	require.NoError(t, err)

	static, _, validator, ok := ForRowType(layout)
	require.True(t, ok)
	require.Equal(t, 4, static.BsatnLength)

	val := ProductValue{Elements: []Value{uint16(7), SumValue{Tag: 1, Payload: uint8(42)}}}
	slow, err := Encode(ts, ty, val, nil)
	require.NoError(t, err)
	// Reading the tag at its BFLATN offset (after the payload) would land
	// on the payload byte 42 here and spuriously reject a valid row.
	require.NoError(t, Validate(validator, static, slow))

	bad := append([]byte(nil), slow...)
	bad[2] = 5 // the tag byte, at its real BSATN offset
	err = Validate(validator, static, bad)
	require.Error(t, err)
	var tagErr *InvalidTagError
	assert.ErrorAs(t, err, &tagErr)
}

func TestMixedSumFastPathRejectedWhenVariantsDiffer(t *testing.T) {
	ts := sats.NewTypespace(nil)
	ty := sats.Product(sats.ProductElement{Name: "v", Type: sats.Sum(
		sats.SumVariant{Name: "small", Type: sats.U8()},
		sats.SumVariant{Name: "big", Type: sats.U64()},
	)})
	layout, err := bflatn.Compute(ts, ty)
	require.NoError(t, err)

	_, _, _, ok := ForRowType(layout)
	assert.False(t, ok)
}
