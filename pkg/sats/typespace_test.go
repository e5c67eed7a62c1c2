package sats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypespaceAddGet(t *testing.T) {
	ts := NewTypespace(nil)
	r := ts.Add(U32())

	got, ok := ts.Get(r)
	require.True(t, ok)
	assert.Equal(t, KindU32, got.Kind)

	_, ok = ts.Get(TypeRef(7))
	assert.False(t, ok)
}

func TestInlineAllTyperefsResolvesNested(t *testing.T) {
	ts := NewTypespace(nil)
	inner := ts.Add(U32())
	outer := ts.Add(Product(ProductElement{Name: "x", Type: Ref(inner)}))

	require.NoError(t, ts.InlineAllTyperefs())

	resolved := ts.Resolve(outer)
	require.Equal(t, KindProduct, resolved.Kind)
	assert.Equal(t, KindU32, resolved.Product.Elements[0].Type.Kind)
}

func TestInlineAllTyperefsDetectsSelfCycle(t *testing.T) {
	ts := NewTypespace(nil)
	// Reserve a slot, then make it point to itself via a Product field.
	r := ts.Add(AlgebraicType{})
	ts.Types[r] = Product(ProductElement{Name: "self", Type: Ref(r)})

	err := ts.InlineAllTyperefs()
	require.Error(t, err)
	var recErr *RecursiveTypeRefError
	assert.ErrorAs(t, err, &recErr)
	assert.Equal(t, r, recErr.Ref)
}

func TestInlineAllTyperefsDetectsIndirectCycle(t *testing.T) {
	ts := NewTypespace(nil)
	a := ts.Add(AlgebraicType{})
	b := ts.Add(AlgebraicType{})
	ts.Types[a] = Product(ProductElement{Name: "to_b", Type: Ref(b)})
	ts.Types[b] = Product(ProductElement{Name: "to_a", Type: Ref(a)})

	err := ts.InlineAllTyperefs()
	require.Error(t, err)
	var recErr *RecursiveTypeRefError
	assert.ErrorAs(t, err, &recErr)
}

func TestInlineAllTyperefsInvalidRef(t *testing.T) {
	ts := NewTypespace(nil)
	ts.Add(Product(ProductElement{Name: "bad", Type: Ref(TypeRef(99))}))

	err := ts.InlineAllTyperefs()
	require.Error(t, err)
	var invErr *InvalidTypeRefError
	assert.ErrorAs(t, err, &invErr)
}

func TestIsValidForClientCodeGeneration(t *testing.T) {
	ts := NewTypespace([]AlgebraicType{
		Product(ProductElement{Name: "a", Type: U32()}),
		U64(),
	})
	assert.True(t, ts.IsValidForClientCodeGeneration())
}
