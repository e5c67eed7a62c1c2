package commitlog

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitWriteDecodeRoundtrip(t *testing.T) {
	c := Commit{MinTxOffset: 5}
	require.True(t, c.AppendRecord([]byte("alpha"), 10))
	require.True(t, c.AppendRecord([]byte("beta"), 10))

	var buf bytes.Buffer
	n, err := c.WriteTo(&buf)
	require.NoError(t, err)
	assert.EqualValues(t, c.EncodedLen(), n)

	stored, err := DecodeCommit(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), stored.MinTxOffset)
	assert.Equal(t, uint16(2), stored.N)

	records, err := SplitRecords(stored.N, stored.Records)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("alpha"), []byte("beta")}, records)
}

func TestDecodeCommitDetectsChecksumMismatch(t *testing.T) {
	c := Commit{MinTxOffset: 0}
	require.True(t, c.AppendRecord([]byte("x"), 10))

	var buf bytes.Buffer
	_, err := c.WriteTo(&buf)
	require.NoError(t, err)

	corrupt := buf.Bytes()
	corrupt[len(corrupt)-1] ^= 0xFF

	_, err = DecodeCommit(bytes.NewReader(corrupt))
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestDecodeCommitEOF(t *testing.T) {
	_, err := DecodeCommit(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}
