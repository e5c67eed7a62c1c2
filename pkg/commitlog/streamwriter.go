package commitlog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	clindex "github.com/cuemby/spacetimedb-core/pkg/commitlog/index"
	"github.com/cuemby/spacetimedb-core/pkg/log"
)

// OnTrailingData controls how CreateStreamWriter handles a segment
// whose tail holds a torn (partially written) commit.
type OnTrailingData uint8

const (
	// TrailingError fails Create with the decode error. The default.
	TrailingError OnTrailingData = iota
	// TrailingTrim discards the invalid suffix, truncating the segment
	// (and its offset index) back to the last known-good commit.
	TrailingTrim
)

// StreamWriter mirrors a remote commit log into a local Log by
// replaying a raw byte stream of segment headers and Commits, without
// inspecting record payloads. It is intended for cold-starting or
// resyncing a follower from a leader's log.
//
// Grounded on original_source/crates/commitlog/src/stream/writer.rs,
// ported from its async/tokio implementation to blocking io.Reader
// calls since this package has no other async I/O to justify pulling
// in an async runtime for.
type StreamWriter struct {
	dir  string
	opts Options

	lastWrittenEnd uint64 // exclusive end of the last tx range written; 0 if nothing written yet

	currentFile *os.File
	header      Header
	offsetIndex *clindex.OffsetIndex
}

// CreateStreamWriter opens a StreamWriter over the log stored in dir, validating
// (and, per onTrailing, repairing) its most recent segment.
func CreateStreamWriter(dir string, opts Options, onTrailing OnTrailingData) (*StreamWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("commitlog: creating log directory: %w", err)
	}
	segments, err := discoverSegments(dir)
	if err != nil {
		return nil, err
	}
	sw := &StreamWriter{dir: dir, opts: opts}
	if len(segments) == 0 {
		return sw, nil
	}

	last := segments[len(segments)-1]
	path := filepath.Join(dir, segmentFileName(last))
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("commitlog: opening segment %d: %w", last, err)
	}

	meta, err := ExtractMetadata(last, f)
	if err != nil {
		var invalid *InvalidCommitError
		if !asInvalidCommit(err, &invalid) {
			f.Close()
			return nil, err
		}
		switch onTrailing {
		case TrailingError:
			f.Close()
			return nil, invalid.Source
		case TrailingTrim:
			if err := f.Truncate(int64(invalid.Sofar.SizeInBytes)); err != nil {
				f.Close()
				return nil, fmt.Errorf("commitlog: truncating trailing segment data: %w", err)
			}
			if idx, idxErr := clindex.Open(filepath.Join(dir, indexFileName(last)), opts.OffsetIndexLen); idxErr == nil {
				if err := idx.Truncate(invalid.Sofar.TxRange.End); err != nil {
					log.Errorf("commitlog: failed to truncate offset index for trailing segment", err)
				}
				sw.offsetIndex = idx
			}
			if _, err := f.Seek(0, io.SeekEnd); err != nil {
				f.Close()
				return nil, err
			}
			meta = invalid.Sofar
		}
	}
	if err := meta.Header.EnsureCompatible(DefaultLogFormatVersion, DefaultChecksumAlgorithm); err != nil {
		f.Close()
		return nil, err
	}

	sw.currentFile = f
	sw.header = meta.Header
	sw.lastWrittenEnd = meta.TxRange.End
	if sw.offsetIndex == nil && opts.OffsetIndexLen > 0 {
		if idx, err := clindex.Open(filepath.Join(dir, indexFileName(last)), opts.OffsetIndexLen); err == nil {
			sw.offsetIndex = idx
		}
	}
	return sw, nil
}

func asInvalidCommit(err error, target **InvalidCommitError) bool {
	ic, ok := err.(*InvalidCommitError)
	if ok {
		*target = ic
	}
	return ok
}

// AppendAll consumes a raw commitlog byte stream (segment headers
// interleaved with framed Commits) and mirrors it into the local log,
// verifying each commit's checksum and that transaction offsets are
// contiguous with what has already been written. It does not interpret
// record payloads.
func (sw *StreamWriter) AppendAll(stream io.Reader) error {
	br := bufio.NewReaderSize(stream, 64*1024)

	for {
		peek, err := br.Peek(len(Magic))
		if err == io.EOF || (err == nil && len(peek) == 0) {
			return nil
		}

		if err == nil && string(peek) == string(Magic[:]) {
			if err := sw.closeCurrentSegment(); err != nil {
				return err
			}
			if err := sw.openNewSegmentFromStream(br); err != nil {
				return err
			}
			continue
		}

		eof, err := sw.appendCommitsUntilBoundary(br)
		if err != nil {
			return err
		}
		if eof {
			return nil
		}
	}
}

func (sw *StreamWriter) openNewSegmentFromStream(br *bufio.Reader) error {
	var hdrBuf [HeaderLen]byte
	if _, err := io.ReadFull(br, hdrBuf[:]); err != nil {
		return fmt.Errorf("commitlog: reading segment header from stream: %w", err)
	}
	header, err := DecodeHeader(bytes.NewReader(hdrBuf[:]))
	if err != nil {
		return err
	}

	offset := sw.lastWrittenEnd
	path := filepath.Join(sw.dir, segmentFileName(offset))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("commitlog: creating segment %d: %w", offset, err)
	}
	if fi, statErr := f.Stat(); statErr == nil && fi.Size() <= int64(HeaderLen) {
		if err := f.Truncate(0); err != nil {
			f.Close()
			return err
		}
	}
	if _, err := f.Write(hdrBuf[:]); err != nil {
		f.Close()
		return fmt.Errorf("commitlog: writing segment header: %w", err)
	}

	sw.currentFile = f
	sw.header = header

	if sw.opts.OffsetIndexLen > 0 {
		idx, err := clindex.Create(filepath.Join(sw.dir, indexFileName(offset)), sw.opts.OffsetIndexLen)
		if err != nil {
			log.Errorf("commitlog: failed to create offset index for mirrored segment", err)
		} else {
			sw.offsetIndex = idx
		}
	}
	return nil
}

// appendCommitsUntilBoundary reads commits from br into the current
// segment until the stream hits EOF or the start of the next segment
// header, returning whether the stream was exhausted.
func (sw *StreamWriter) appendCommitsUntilBoundary(br *bufio.Reader) (eof bool, err error) {
	if sw.currentFile == nil {
		return false, fmt.Errorf("commitlog: no current segment, expected a segment header")
	}

	for {
		peek, perr := br.Peek(len(Magic))
		if perr == io.EOF && len(peek) == 0 {
			return true, nil
		}
		if perr == nil && string(peek) == string(Magic[:]) {
			return false, nil
		}

		bytesBefore, err := sw.currentFile.Seek(0, io.SeekCurrent)
		if err != nil {
			return false, err
		}

		commit, err := DecodeCommit(br)
		if err == io.EOF {
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("commitlog: decoding mirrored commit: %w", err)
		}

		if expected := sw.lastWrittenEnd; commit.MinTxOffset != expected {
			return false, fmt.Errorf("commitlog: expected commit offset %d but encountered %d", expected, commit.MinTxOffset)
		}

		if _, err := commit.WriteTo(sw.currentFile); err != nil {
			return false, fmt.Errorf("commitlog: writing mirrored commit: %w", err)
		}

		sw.lastWrittenEnd = commit.MinTxOffset + uint64(commit.N)

		if sw.offsetIndex != nil {
			if err := sw.offsetIndex.Append(commit.MinTxOffset, uint64(bytesBefore)); err != nil {
				log.Errorf("commitlog: failed to append to mirrored offset index", err)
			}
		}
	}
}

func (sw *StreamWriter) closeCurrentSegment() error {
	if sw.currentFile == nil {
		return nil
	}
	if err := sw.currentFile.Sync(); err != nil {
		log.Errorf("commitlog: fsync failed closing mirrored segment", err)
	}
	if sw.offsetIndex != nil {
		sw.offsetIndex.Sync()
		sw.offsetIndex.Close()
		sw.offsetIndex = nil
	}
	err := sw.currentFile.Close()
	sw.currentFile = nil
	return err
}

// SyncAll flushes and syncs the currently open segment, if any.
func (sw *StreamWriter) SyncAll() error {
	if sw.currentFile == nil {
		return nil
	}
	if err := sw.currentFile.Sync(); err != nil {
		return err
	}
	if sw.offsetIndex != nil {
		return sw.offsetIndex.Sync()
	}
	return nil
}

// Close closes the currently open segment, syncing it first.
func (sw *StreamWriter) Close() error {
	return sw.closeCurrentSegment()
}
