// Package commitlog implements a segmented, append-only transaction log.
//
// A log is a directory of fixed-upper-bound segment files, each prefixed
// by a Header and holding a sequence of framed Commits. Every Commit
// covers a contiguous range of transaction offsets; segments roll over
// once they reach a configured byte size, and each segment's filename
// encodes the transaction offset of its first commit so segments can be
// listed and opened in order without reading their contents.
//
// Alongside each segment, pkg/commitlog/index maintains a sparse,
// memory-mapped offset index mapping transaction offsets to byte
// positions within the segment, so a reader can seek close to a given
// offset instead of scanning a segment from the start.
package commitlog
