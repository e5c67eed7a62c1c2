package commitlog

import (
	"bufio"
	"fmt"
	"io"
)

// Writer buffers records for one open segment and frames them into
// Commits on demand. A Writer never rolls over to a new segment file
// itself; callers (Log) decide when Len has grown past a configured
// maximum and open a new Writer over a new file.
type Writer struct {
	bw   *bufio.Writer
	sync func() error

	commit Commit

	minTxOffset  uint64
	bytesWritten uint64

	maxRecordsInCommit uint16
}

// NewWriter wraps w (freshly positioned at the end of a segment whose
// on-disk length so far is bytesWritten, including its header) as a
// segment Writer. minTxOffset is the transaction offset the next
// uncommitted record will receive.
func NewWriter(w io.Writer, bytesWritten, minTxOffset uint64, maxRecordsInCommit uint16, sync func() error) *Writer {
	return &Writer{
		bw:                 bufio.NewWriter(w),
		sync:               sync,
		commit:             Commit{MinTxOffset: minTxOffset},
		minTxOffset:        minTxOffset,
		bytesWritten:       bytesWritten,
		maxRecordsInCommit: maxRecordsInCommit,
	}
}

// Append buffers record into the writer's current (uncommitted) commit.
// If doing so would exceed maxRecordsInCommit, Append returns false and
// leaves the buffer untouched; the caller should call Commit to flush
// the buffered records first and then retry.
func (w *Writer) Append(record []byte) bool {
	return w.commit.AppendRecord(record, w.maxRecordsInCommit)
}

// Commit flushes the currently buffered commit to the underlying
// writer and advances NextTxOffset/Len. It is a no-op if no records are
// buffered.
func (w *Writer) Commit() error {
	if w.commit.N == 0 {
		return nil
	}
	n, err := w.commit.WriteTo(w.bw)
	if err != nil {
		return fmt.Errorf("commitlog: writing commit: %w", err)
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("commitlog: flushing commit: %w", err)
	}

	w.bytesWritten += uint64(n)
	w.commit.MinTxOffset += uint64(w.commit.N)
	w.commit.N = 0
	w.commit.Records = w.commit.Records[:0]
	return nil
}

// MinTxOffset is the smallest transaction offset written to this
// segment.
func (w *Writer) MinTxOffset() uint64 { return w.minTxOffset }

// NextTxOffset is the transaction offset the next committed record
// will receive.
func (w *Writer) NextTxOffset() uint64 { return w.commit.MinTxOffset }

// IsEmpty reports whether this segment holds no committed commits (it
// may still hold a header).
func (w *Writer) IsEmpty() bool { return w.bytesWritten <= HeaderLen }

// Len is the number of bytes written to this segment so far, including
// its header.
func (w *Writer) Len() uint64 { return w.bytesWritten }

// Sync flushes the segment to stable storage, if the Writer was
// constructed with a sync function.
func (w *Writer) Sync() error {
	if w.sync == nil {
		return nil
	}
	return w.sync()
}

// Reader decodes the Commits stored in one segment.
type Reader struct {
	Header      Header
	MinTxOffset uint64
	r           io.Reader
}

// NewReader decodes and validates a segment Header from r, then
// returns a Reader positioned to decode the segment's Commits.
func NewReader(maxLogFormatVersion uint8, minTxOffset uint64, r io.Reader) (*Reader, error) {
	header, err := DecodeHeader(r)
	if err != nil {
		return nil, err
	}
	if err := header.EnsureCompatible(maxLogFormatVersion, DefaultChecksumAlgorithm); err != nil {
		return nil, err
	}
	return &Reader{Header: header, MinTxOffset: minTxOffset, r: r}, nil
}

// Commits returns an iterator over the segment's StoredCommits.
func (rd *Reader) Commits() *CommitIterator {
	return &CommitIterator{header: rd.Header, r: bufio.NewReader(rd.r)}
}

// CommitIterator yields the StoredCommits of a segment in order. Next
// returns io.EOF once the segment is exhausted.
type CommitIterator struct {
	header Header
	r      *bufio.Reader
}

// Next decodes and returns the next StoredCommit, or io.EOF when the
// segment has no more commits.
func (it *CommitIterator) Next() (*StoredCommit, error) {
	return DecodeCommit(it.r)
}

// TxRange is a half-open range of transaction offsets, [Start, End).
type TxRange struct {
	Start, End uint64
}

// Metadata summarizes a segment without retaining its contents: the
// header, the transaction offsets it covers, and its total encoded
// size.
type Metadata struct {
	Header      Header
	TxRange     TxRange
	SizeInBytes uint64
}

// InvalidCommitError is returned by ExtractMetadata when it encounters
// a commit it cannot decode (e.g. a torn trailing write). Sofar holds
// the metadata accumulated up to, but not including, the bad commit,
// letting a caller (e.g. a stream writer resuming a log) trim the
// segment back to the last known-good commit.
type InvalidCommitError struct {
	Sofar  Metadata
	Source error
}

func (e *InvalidCommitError) Error() string {
	return fmt.Sprintf("commitlog: invalid commit after offset %d: %v", e.Sofar.TxRange.End, e.Source)
}

func (e *InvalidCommitError) Unwrap() error { return e.Source }

// ExtractMetadata reads and validates a segment's Header and then
// walks every commit in it to compute its Metadata. This reads the
// entire segment, since the transaction range and byte size are only
// known once every commit has been seen.
func ExtractMetadata(minTxOffset uint64, r io.Reader) (Metadata, error) {
	header, err := DecodeHeader(r)
	if err != nil {
		return Metadata{}, err
	}
	return metadataWithHeader(minTxOffset, header, r)
}

func metadataWithHeader(minTxOffset uint64, header Header, r io.Reader) (Metadata, error) {
	sofar := Metadata{
		Header:      header,
		TxRange:     TxRange{Start: minTxOffset, End: minTxOffset},
		SizeInBytes: uint64(HeaderLen),
	}

	for {
		cm, err := peekCommitMetadata(r)
		if err == io.EOF {
			return sofar, nil
		}
		if err != nil {
			return Metadata{}, &InvalidCommitError{Sofar: sofar, Source: err}
		}
		if cm.txRangeStart != sofar.TxRange.End {
			err := fmt.Errorf("commitlog: out-of-order offset: expected=%d actual=%d", sofar.TxRange.End, cm.txRangeStart)
			return Metadata{}, &InvalidCommitError{Sofar: sofar, Source: err}
		}
		sofar.TxRange.End = cm.txRangeEnd
		sofar.SizeInBytes += cm.sizeInBytes
	}
}
