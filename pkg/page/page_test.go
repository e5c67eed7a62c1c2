package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageAllocateFreeRoundTrip(t *testing.T) {
	p := NewPage(32)
	assert.Equal(t, uint16(Size/32), p.NumSlots())

	s1, row1, err := p.Allocate()
	require.NoError(t, err)
	row1[0] = 0xAB
	assert.Equal(t, uint16(1), p.LiveCount())

	s2, _, err := p.Allocate()
	require.NoError(t, err)
	assert.NotEqual(t, s1, s2)

	p.Free(s1)
	assert.Equal(t, uint16(1), p.LiveCount())

	// Re-allocating should zero the slot and may reuse s1.
	s3, row3, err := p.Allocate()
	require.NoError(t, err)
	assert.Equal(t, s1, s3, "free list is LIFO, most recently freed slot is reused first")
	assert.Equal(t, byte(0), row3[0])
}

func TestPageAllocateExhaustion(t *testing.T) {
	p := NewPage(Size / 4)
	for i := 0; i < 4; i++ {
		_, _, err := p.Allocate()
		require.NoError(t, err)
	}
	_, _, err := p.Allocate()
	assert.ErrorIs(t, err, ErrPageFull)
}

func TestPageGranuleAllocation(t *testing.T) {
	p := NewPage(64)
	off1, err := p.AllocateGranule()
	require.NoError(t, err)
	off2, err := p.AllocateGranule()
	require.NoError(t, err)
	assert.NotEqual(t, off1, off2)

	g := p.Granule(off1)
	assert.Len(t, g, GranuleSize)
}

func TestBlobStoreInsertLookupDecref(t *testing.T) {
	bs := NewBlobStore()
	data := []byte("a large column value that doesn't fit inline")

	hash, refcount := bs.Insert(data)
	assert.Equal(t, uint32(1), refcount)

	got, err := bs.Lookup(hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	hash2, refcount2 := bs.Insert(data)
	assert.Equal(t, hash, hash2)
	assert.Equal(t, uint32(2), refcount2)

	rc, err := bs.Decref(hash)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), rc)
	assert.Equal(t, 1, bs.Len())

	rc, err = bs.Decref(hash)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), rc)
	assert.Equal(t, 0, bs.Len())

	_, err = bs.Lookup(hash)
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestBlobStoreDistinctDataDistinctHashes(t *testing.T) {
	bs := NewBlobStore()
	h1, _ := bs.Insert([]byte("one"))
	h2, _ := bs.Insert([]byte("two"))
	assert.NotEqual(t, h1, h2)
}
