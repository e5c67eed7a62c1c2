package bflatn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/spacetimedb-core/pkg/sats"
)

func TestComputeProductPadding(t *testing.T) {
	ts := sats.NewTypespace(nil)
	// bool (1 byte) then u32 (4 bytes, align 4) should insert 3 bytes of
	// padding before the u32 so it lands at offset 4.
	ty := sats.Product(
		sats.ProductElement{Name: "flag", Type: sats.Bool()},
		sats.ProductElement{Name: "count", Type: sats.U32()},
	)

	layout, err := Compute(ts, ty)
	require.NoError(t, err)

	assert.Equal(t, uint32(0), layout.Fields[0].Offset)
	assert.Equal(t, uint32(4), layout.Fields[1].Offset)
	assert.Equal(t, uint32(8), layout.Size)
	assert.Equal(t, uint32(4), layout.Align)
}

func TestComputeProductNoPaddingNeeded(t *testing.T) {
	ts := sats.NewTypespace(nil)
	ty := sats.Product(
		sats.ProductElement{Name: "a", Type: sats.U8()},
		sats.ProductElement{Name: "b", Type: sats.U8()},
	)

	layout, err := Compute(ts, ty)
	require.NoError(t, err)

	assert.Equal(t, uint32(0), layout.Fields[0].Offset)
	assert.Equal(t, uint32(1), layout.Fields[1].Offset)
	assert.Equal(t, uint32(2), layout.Size)
}

func TestComputeSumPayloadThenTag(t *testing.T) {
	ts := sats.NewTypespace(nil)
	ty := sats.Sum(
		sats.SumVariant{Name: "ok", Type: sats.U32()},
		sats.SumVariant{Name: "err", Type: sats.StringT()},
	)

	layout, err := Compute(ts, ty)
	require.NoError(t, err)

	// Largest variant is the string handle (8 bytes), so the tag sits
	// at offset 8, and the 9 bytes round up to the 4-byte alignment.
	assert.Equal(t, uint32(8), layout.TagOffset)
	assert.Equal(t, uint32(12), layout.Size)
}

func TestComputeSimpleEnumTagOnly(t *testing.T) {
	ts := sats.NewTypespace(nil)
	ty := sats.Sum(
		sats.SumVariant{Name: "red", Type: sats.Product()},
		sats.SumVariant{Name: "green", Type: sats.Product()},
		sats.SumVariant{Name: "blue", Type: sats.Product()},
	)

	layout, err := Compute(ts, ty)
	require.NoError(t, err)

	assert.Equal(t, uint32(0), layout.TagOffset)
	assert.Equal(t, uint32(1), layout.Size)
}

func TestComputeResolvesRef(t *testing.T) {
	ts := sats.NewTypespace(nil)
	inner := ts.Add(sats.U64())
	require.NoError(t, ts.InlineAllTyperefs())

	layout, err := Compute(ts, sats.Ref(inner))
	require.NoError(t, err)
	assert.Equal(t, uint32(8), layout.Size)
}

func TestComputeUnresolvedRef(t *testing.T) {
	ts := sats.NewTypespace(nil)
	_, err := Compute(ts, sats.Ref(sats.TypeRef(42)))
	require.Error(t, err)
}

func TestComputeArrayIsInlineHandle(t *testing.T) {
	ts := sats.NewTypespace(nil)
	layout, err := Compute(ts, sats.Array(sats.U64()))
	require.NoError(t, err)

	assert.Equal(t, uint32(VarLenHandleSize), layout.Size)
	require.NotNil(t, layout.Elem)
	assert.Equal(t, uint32(8), layout.Elem.Size)
}
