package commitlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{MaxSegmentSize: 1 << 20, MaxRecordsInCommit: 8, OffsetIndexLen: 64}
}

func TestLogAppendAndCommit(t *testing.T) {
	l, err := Open(t.TempDir(), testOptions())
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Append([]byte("a"), []byte("bb"), []byte("ccc")))
	txRange, err := l.Commit()
	require.NoError(t, err)
	assert.Equal(t, TxRange{Start: 0, End: 3}, txRange)
	assert.Equal(t, uint64(3), l.NextTxOffset())
}

func TestLogReopenContinuesOffsets(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions()

	l, err := Open(dir, opts)
	require.NoError(t, err)
	require.NoError(t, l.Append([]byte("x"), []byte("y")))
	_, err = l.Commit()
	require.NoError(t, err)
	require.NoError(t, l.Close())

	reopened, err := Open(dir, opts)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, uint64(2), reopened.NextTxOffset())

	require.NoError(t, reopened.Append([]byte("z")))
	txRange, err := reopened.Commit()
	require.NoError(t, err)
	assert.Equal(t, TxRange{Start: 2, End: 3}, txRange)
}

func TestLogRotatesOnSegmentSizeLimit(t *testing.T) {
	dir := t.TempDir()
	opts := Options{MaxSegmentSize: uint64(HeaderLen) + 1, MaxRecordsInCommit: 8, OffsetIndexLen: 0}

	l, err := Open(dir, opts)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Append([]byte("first")))
	_, err = l.Commit()
	require.NoError(t, err)

	require.NoError(t, l.Append([]byte("second")))
	_, err = l.Commit()
	require.NoError(t, err)

	segments := l.Segments()
	assert.GreaterOrEqual(t, len(segments), 2, "exceeding MaxSegmentSize after the first commit should roll a new segment")
}

func TestLogOpenReaderReadsBackCommittedRecords(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, testOptions())
	require.NoError(t, err)

	require.NoError(t, l.Append([]byte("hello"), []byte("world")))
	_, err = l.Commit()
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l2, err := Open(dir, testOptions())
	require.NoError(t, err)
	defer l2.Close()

	reader, err := l2.OpenReader(0)
	require.NoError(t, err)
	commit, err := reader.Commits().Next()
	require.NoError(t, err)

	records, err := SplitRecords(commit.N, commit.Records)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("hello"), []byte("world")}, records)
}

func TestSegmentFileNaming(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, testOptions())
	require.NoError(t, err)
	defer l.Close()

	assert.FileExists(t, filepath.Join(dir, segmentFileName(0)))
}
