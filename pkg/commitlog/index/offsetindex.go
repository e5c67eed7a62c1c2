// Package index implements a sparse, memory-mapped offset index for a
// commit log segment: a flat file of ascending (transaction offset,
// byte offset) pairs letting a reader jump close to a given transaction
// offset instead of scanning a segment from its start.
//
// Grounded on original_source/crates/commitlog/src/index/indexfile.rs,
// ported from its mmap2-backed design to golang.org/x/sys/unix, the
// library this pack's go.mod already carries for raw syscall access.
package index

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// KeySize is the encoded size of one entry's key.
const KeySize = 8

// EntrySize is the encoded size of one (key, value) entry.
const EntrySize = KeySize + 8

// ErrKeyNotFound is returned when a lookup key is smaller than every
// key stored in the index.
var ErrKeyNotFound = fmt.Errorf("index: key not found")

// ErrOutOfRange is returned when an operation would read or write past
// the index file's capacity.
var ErrOutOfRange = fmt.Errorf("index: out of range")

// InvalidInputError is returned by Append when key does not strictly
// exceed the last key already stored.
type InvalidInputError struct {
	LastKey, Key uint64
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("index: append key %d must be greater than last key %d", e.Key, e.LastKey)
}

// OffsetIndex is a memory-mapped, append-only, binary-searchable index
// file. Keys (transaction offsets) must be appended in strictly
// ascending order; 0 is not a valid key and marks the first unused
// entry slot.
type OffsetIndex struct {
	file       *os.File
	data       []byte
	numEntries int
}

// Create creates a new index file at path with capacity for cap
// entries. If the file already exists, it is opened instead (matching
// the original's create-or-open semantics, useful when resuming a
// crashed writer).
func Create(path string, cap uint64) (*OffsetIndex, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return Open(path, cap)
		}
		return nil, err
	}
	if err := f.Truncate(int64(cap * EntrySize)); err != nil {
		f.Close()
		return nil, err
	}
	return mapFile(f)
}

// Open memory-maps an existing index file at path, ensuring it is
// sized for at least cap entries.
func Open(path string, cap uint64) (*OffsetIndex, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if want := int64(cap * EntrySize); fi.Size() < want {
		if err := f.Truncate(want); err != nil {
			f.Close()
			return nil, err
		}
	}
	return mapFile(f)
}

func mapFile(f *os.File) (*OffsetIndex, error) {
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	ix := &OffsetIndex{file: f, data: data}
	n, err := ix.countEntries()
	if err != nil {
		ix.Close()
		return nil, err
	}
	ix.numEntries = n
	return ix, nil
}

// countEntries scans from the start for the first zero key, mirroring
// the original's linear num_entries() probe.
func (ix *OffsetIndex) countEntries() (int, error) {
	max := len(ix.data) / EntrySize
	for i := 0; i < max; i++ {
		key, _, err := ix.entryAt(i)
		if err != nil {
			return i, nil
		}
		if key == 0 {
			return i, nil
		}
	}
	return max, nil
}

func (ix *OffsetIndex) entryAt(i int) (key, value uint64, err error) {
	start := i * EntrySize
	if start+EntrySize > len(ix.data) {
		return 0, 0, ErrOutOfRange
	}
	key = binary.LittleEndian.Uint64(ix.data[start : start+KeySize])
	value = binary.LittleEndian.Uint64(ix.data[start+KeySize : start+EntrySize])
	return key, value, nil
}

// FindIndex returns the key and slot index of the greatest stored key
// less than or equal to key, or ErrKeyNotFound if key is smaller than
// every stored key.
func (ix *OffsetIndex) FindIndex(key uint64) (foundKey uint64, idx uint64, err error) {
	low, high := 0, ix.numEntries
	for low < high {
		mid := low + (high-low)/2
		midKey, _, err := ix.entryAt(mid)
		if err != nil {
			return 0, 0, err
		}
		if midKey > key {
			high = mid
		} else {
			low = mid
		}
		if high-low == 1 {
			break
		}
	}

	lowKey, _, err := ix.entryAt(low)
	if err != nil {
		return 0, 0, ErrKeyNotFound
	}
	if low == 0 && key < lowKey {
		return 0, 0, ErrKeyNotFound
	}
	if lowKey == 0 {
		return 0, 0, ErrKeyNotFound
	}
	return lowKey, uint64(low), nil
}

// lastKey returns the last stored key, or 0 if the index is empty.
func (ix *OffsetIndex) lastKey() uint64 {
	if ix.numEntries == 0 {
		return 0
	}
	key, _, err := ix.entryAt(ix.numEntries - 1)
	if err != nil {
		return 0
	}
	return key
}

// KeyLookup returns the (key, value) pair whose key is the greatest
// stored key less than or equal to key.
func (ix *OffsetIndex) KeyLookup(key uint64) (foundKey, value uint64, err error) {
	_, idx, err := ix.FindIndex(key)
	if err != nil {
		return 0, 0, err
	}
	return ix.entryAt(int(idx))
}

// Append adds a (key, value) pair. Successive calls must supply keys in
// strictly ascending order.
func (ix *OffsetIndex) Append(key, value uint64) error {
	if last := ix.lastKey(); last >= key {
		return &InvalidInputError{LastKey: last, Key: key}
	}
	start := ix.numEntries * EntrySize
	if start+EntrySize > len(ix.data) {
		return ErrOutOfRange
	}
	binary.LittleEndian.PutUint64(ix.data[start:start+KeySize], key)
	binary.LittleEndian.PutUint64(ix.data[start+KeySize:start+EntrySize], value)
	ix.numEntries++
	return nil
}

// Truncate discards every entry with a key greater than or equal to
// key.
func (ix *OffsetIndex) Truncate(key uint64) error {
	foundKey, idx, err := ix.FindIndex(key)
	if err != nil {
		if err == ErrKeyNotFound {
			ix.numEntries = 0
		} else {
			return err
		}
	} else if foundKey == key {
		ix.numEntries = int(idx)
	} else {
		ix.numEntries = int(idx) + 1
	}

	start := ix.numEntries * EntrySize
	if start < len(ix.data) {
		for i := start; i < len(ix.data); i++ {
			ix.data[i] = 0
		}
	}
	return ix.Sync()
}

// Entry is one decoded (key, value) pair.
type Entry struct {
	Key, Value uint64
}

// Entries returns every stored entry, in ascending key order.
func (ix *OffsetIndex) Entries() ([]Entry, error) {
	out := make([]Entry, 0, ix.numEntries)
	for i := 0; i < ix.numEntries; i++ {
		key, value, err := ix.entryAt(i)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Key: key, Value: value})
	}
	return out, nil
}

// AsyncSync requests the mapped pages be flushed to disk without
// blocking for completion.
func (ix *OffsetIndex) AsyncSync() error {
	return unix.Msync(ix.data, unix.MS_ASYNC)
}

// Sync flushes the mapped pages to disk and waits for completion.
func (ix *OffsetIndex) Sync() error {
	return unix.Msync(ix.data, unix.MS_SYNC)
}

// Close unmaps and closes the underlying file.
func (ix *OffsetIndex) Close() error {
	if ix.data != nil {
		if err := unix.Munmap(ix.data); err != nil {
			return err
		}
		ix.data = nil
	}
	return ix.file.Close()
}
