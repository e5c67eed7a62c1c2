package commitlog

import (
	"fmt"
	"io"
)

// Magic is the fixed byte sequence every segment file starts with.
var Magic = [6]byte{'(', 'd', 's', ')', '^', '2'}

// HeaderLen is the fixed byte length of a segment Header: the 6-byte
// Magic plus log format version, checksum algorithm, and two reserved
// bytes.
const HeaderLen = len(Magic) + 4

const (
	// DefaultLogFormatVersion is the log format version this package
	// writes and the newest version it knows how to read.
	DefaultLogFormatVersion uint8 = 0

	// ChecksumAlgorithmCRC32C is the only checksum algorithm this
	// package implements: CRC-32 with the Castagnoli polynomial.
	ChecksumAlgorithmCRC32C uint8 = 0

	// DefaultChecksumAlgorithm is the checksum algorithm newly created
	// segments use.
	DefaultChecksumAlgorithm uint8 = ChecksumAlgorithmCRC32C
)

// Header is the fixed-size preamble written at the start of every
// segment file.
type Header struct {
	LogFormatVersion  uint8
	ChecksumAlgorithm uint8
}

// DefaultHeader is the header written for newly created segments.
func DefaultHeader() Header {
	return Header{LogFormatVersion: DefaultLogFormatVersion, ChecksumAlgorithm: DefaultChecksumAlgorithm}
}

// WriteTo encodes h as HeaderLen bytes to w.
func (h Header) WriteTo(w io.Writer) (int64, error) {
	var buf [HeaderLen]byte
	copy(buf[:len(Magic)], Magic[:])
	buf[len(Magic)] = h.LogFormatVersion
	buf[len(Magic)+1] = h.ChecksumAlgorithm
	n, err := w.Write(buf[:])
	return int64(n), err
}

// DecodeHeader reads and validates a Header from r.
func DecodeHeader(r io.Reader) (Header, error) {
	var buf [HeaderLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	if string(buf[:len(Magic)]) != string(Magic[:]) {
		return Header{}, fmt.Errorf("commitlog: segment header does not start with magic")
	}
	return Header{
		LogFormatVersion:  buf[len(Magic)],
		ChecksumAlgorithm: buf[len(Magic)+1],
	}, nil
}

// EnsureCompatible returns an error if h cannot be read by a reader that
// only understands log formats up to maxLogFormatVersion and the given
// checksum algorithm.
func (h Header) EnsureCompatible(maxLogFormatVersion, checksumAlgorithm uint8) error {
	if h.LogFormatVersion > maxLogFormatVersion {
		return fmt.Errorf("commitlog: unsupported log format version: %d", h.LogFormatVersion)
	}
	if h.ChecksumAlgorithm != checksumAlgorithm {
		return fmt.Errorf("commitlog: unsupported checksum algorithm: %d", h.ChecksumAlgorithm)
	}
	return nil
}
