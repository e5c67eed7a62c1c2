package commitlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	clindex "github.com/cuemby/spacetimedb-core/pkg/commitlog/index"
	"github.com/cuemby/spacetimedb-core/pkg/log"
)

const (
	segmentExt = ".segment"
	indexExt   = ".index"
)

// Options configures a Log.
type Options struct {
	// MaxSegmentSize is the byte size (including the header) at which a
	// segment is rolled over to a new file.
	MaxSegmentSize uint64
	// MaxRecordsInCommit caps how many records a single Commit may
	// buffer before the writer refuses further Appends until Commit is
	// called.
	MaxRecordsInCommit uint16
	// OffsetIndexLen is the number of entries to reserve in each
	// segment's offset index file. Zero disables offset indexing.
	OffsetIndexLen uint64
}

// DefaultOptions returns the Options new logs are opened with absent
// an explicit override.
func DefaultOptions() Options {
	return Options{
		MaxSegmentSize:     1 << 24, // 16 MiB
		MaxRecordsInCommit: 1024,
		OffsetIndexLen:     4096,
	}
}

func segmentFileName(minTxOffset uint64) string {
	return fmt.Sprintf("%020d%s", minTxOffset, segmentExt)
}

func indexFileName(minTxOffset uint64) string {
	return fmt.Sprintf("%020d%s", minTxOffset, indexExt)
}

// Log is a directory of segment files holding an append-only sequence
// of Commits, grouped into segments that roll over once they exceed
// Options.MaxSegmentSize.
type Log struct {
	mu   sync.Mutex
	dir  string
	opts Options

	segments []uint64 // minTxOffset of each known segment, ascending

	currentFile *os.File
	writer      *Writer
	offsetIndex *clindex.OffsetIndex
}

// Open opens (creating if necessary) the log stored in dir.
func Open(dir string, opts Options) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("commitlog: creating log directory: %w", err)
	}

	l := &Log{dir: dir, opts: opts}
	segments, err := discoverSegments(dir)
	if err != nil {
		return nil, err
	}
	l.segments = segments

	if len(segments) == 0 {
		if err := l.createSegment(0); err != nil {
			return nil, err
		}
		return l, nil
	}

	last := segments[len(segments)-1]
	if err := l.openSegmentForAppend(last); err != nil {
		return nil, err
	}
	return l, nil
}

func discoverSegments(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("commitlog: reading log directory: %w", err)
	}
	var out []uint64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), segmentExt) {
			continue
		}
		base := strings.TrimSuffix(e.Name(), segmentExt)
		offset, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, offset)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (l *Log) createSegment(minTxOffset uint64) error {
	path := filepath.Join(l.dir, segmentFileName(minTxOffset))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("commitlog: creating segment %d: %w", minTxOffset, err)
	}
	header := DefaultHeader()
	if _, err := header.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("commitlog: writing segment header: %w", err)
	}

	l.currentFile = f
	l.writer = NewWriter(f, uint64(HeaderLen), minTxOffset, l.opts.MaxRecordsInCommit, f.Sync)
	l.segments = append(l.segments, minTxOffset)

	if l.opts.OffsetIndexLen > 0 {
		idx, err := clindex.Create(filepath.Join(l.dir, indexFileName(minTxOffset)), l.opts.OffsetIndexLen)
		if err != nil {
			log.Errorf("commitlog: failed to create offset index for new segment", err)
		} else {
			l.offsetIndex = idx
		}
	}
	return nil
}

func (l *Log) openSegmentForAppend(minTxOffset uint64) error {
	path := filepath.Join(l.dir, segmentFileName(minTxOffset))
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("commitlog: opening segment %d: %w", minTxOffset, err)
	}

	meta, err := ExtractMetadata(minTxOffset, f)
	if err != nil {
		f.Close()
		return fmt.Errorf("commitlog: extracting metadata for segment %d: %w", minTxOffset, err)
	}
	if err := meta.Header.EnsureCompatible(DefaultLogFormatVersion, DefaultChecksumAlgorithm); err != nil {
		f.Close()
		return err
	}
	if _, err := f.Seek(int64(meta.SizeInBytes), 0); err != nil {
		f.Close()
		return fmt.Errorf("commitlog: seeking to end of segment %d: %w", minTxOffset, err)
	}

	l.currentFile = f
	l.writer = NewWriter(f, meta.SizeInBytes, meta.TxRange.End, l.opts.MaxRecordsInCommit, f.Sync)

	if l.opts.OffsetIndexLen > 0 {
		idx, err := clindex.Open(filepath.Join(l.dir, indexFileName(minTxOffset)), l.opts.OffsetIndexLen)
		if err != nil {
			idx, err = clindex.Create(filepath.Join(l.dir, indexFileName(minTxOffset)), l.opts.OffsetIndexLen)
		}
		if err != nil {
			log.Errorf("commitlog: failed to open offset index for segment", err)
		} else {
			l.offsetIndex = idx
		}
	}
	return nil
}

// Append buffers records onto the currently open segment's commit,
// flushing (and rotating to a new segment, if oversized) whenever the
// configured MaxRecordsInCommit would otherwise be exceeded.
func (l *Log) Append(records ...[]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, rec := range records {
		for !l.writer.Append(rec) {
			if err := l.commitLocked(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Commit flushes any records buffered by Append into a framed Commit,
// updates the segment's offset index, and rotates to a new segment if
// the current one has grown past MaxSegmentSize. It returns the
// transaction range the flushed commit covered (empty if nothing was
// buffered).
func (l *Log) Commit() (TxRange, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	before := l.writer.NextTxOffset()
	if err := l.commitLocked(); err != nil {
		return TxRange{}, err
	}
	return TxRange{Start: before, End: l.writer.NextTxOffset()}, nil
}

func (l *Log) commitLocked() error {
	commitMinOffset := l.writer.NextTxOffset()
	bytesBefore := l.writer.Len()

	if err := l.writer.Commit(); err != nil {
		return err
	}
	if l.writer.NextTxOffset() == commitMinOffset {
		return nil // nothing was buffered
	}

	if l.offsetIndex != nil {
		if err := l.offsetIndex.Append(commitMinOffset, bytesBefore); err != nil {
			log.Errorf("commitlog: failed to append to offset index", err)
		}
	}

	if l.writer.Len() >= l.opts.MaxSegmentSize {
		return l.rotate()
	}
	return nil
}

func (l *Log) rotate() error {
	if err := l.writer.Sync(); err != nil {
		log.Errorf("commitlog: segment fsync failed during rotation", err)
	}
	if l.offsetIndex != nil {
		if err := l.offsetIndex.Sync(); err != nil {
			log.Errorf("commitlog: offset index sync failed during rotation", err)
		}
		l.offsetIndex.Close()
		l.offsetIndex = nil
	}
	if err := l.currentFile.Close(); err != nil {
		return fmt.Errorf("commitlog: closing segment on rotation: %w", err)
	}

	next := l.writer.NextTxOffset()
	return l.createSegment(next)
}

// Segments returns the minTxOffset of every segment on disk, ascending.
func (l *Log) Segments() []uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]uint64, len(l.segments))
	copy(out, l.segments)
	return out
}

// NextTxOffset is the transaction offset the next appended-and-committed
// record will receive.
func (l *Log) NextTxOffset() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writer.NextTxOffset()
}

// OpenReader opens a Reader over the segment containing minTxOffset.
func (l *Log) OpenReader(minTxOffset uint64) (*Reader, error) {
	l.mu.Lock()
	segments := l.segments
	l.mu.Unlock()

	segment := segmentContaining(segments, minTxOffset)
	f, err := os.Open(filepath.Join(l.dir, segmentFileName(segment)))
	if err != nil {
		return nil, fmt.Errorf("commitlog: opening segment %d for read: %w", segment, err)
	}
	return NewReader(DefaultLogFormatVersion, segment, f)
}

func segmentContaining(segments []uint64, offset uint64) uint64 {
	best := segments[0]
	for _, s := range segments {
		if s <= offset {
			best = s
		} else {
			break
		}
	}
	return best
}

// Close flushes and closes the currently open segment and its offset
// index.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.commitLocked(); err != nil {
		return err
	}
	if err := l.writer.Sync(); err != nil {
		log.Errorf("commitlog: segment fsync failed on close", err)
	}
	if l.offsetIndex != nil {
		l.offsetIndex.Sync()
		l.offsetIndex.Close()
		l.offsetIndex = nil
	}
	return l.currentFile.Close()
}
