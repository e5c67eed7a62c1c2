package commitlog

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamWriterMirrorsSourceLog(t *testing.T) {
	srcDir := t.TempDir()
	src, err := Open(srcDir, testOptions())
	require.NoError(t, err)
	require.NoError(t, src.Append([]byte("one"), []byte("two")))
	_, err = src.Commit()
	require.NoError(t, err)
	require.NoError(t, src.Close())

	raw, err := os.ReadFile(srcDir + "/" + segmentFileName(0))
	require.NoError(t, err)

	dstDir := t.TempDir()
	sw, err := CreateStreamWriter(dstDir, testOptions(), TrailingError)
	require.NoError(t, err)

	require.NoError(t, sw.AppendAll(bytes.NewReader(raw)))
	require.NoError(t, sw.SyncAll())
	require.NoError(t, sw.Close())

	mirrored, err := Open(dstDir, testOptions())
	require.NoError(t, err)
	defer mirrored.Close()
	assert.Equal(t, uint64(2), mirrored.NextTxOffset())

	reader, err := mirrored.OpenReader(0)
	require.NoError(t, err)
	commit, err := reader.Commits().Next()
	require.NoError(t, err)
	records, err := SplitRecords(commit.N, commit.Records)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, records)
}

func TestStreamWriterRejectsNonContiguousOffset(t *testing.T) {
	dstDir := t.TempDir()
	sw, err := CreateStreamWriter(dstDir, testOptions(), TrailingError)
	require.NoError(t, err)

	var buf bytes.Buffer
	hdr := DefaultHeader()
	_, err = hdr.WriteTo(&buf)
	require.NoError(t, err)

	bogus := Commit{MinTxOffset: 5}
	require.True(t, bogus.AppendRecord([]byte("x"), 10))
	_, err = bogus.WriteTo(&buf)
	require.NoError(t, err)

	err = sw.AppendAll(bytes.NewReader(buf.Bytes()))
	assert.Error(t, err)
}
