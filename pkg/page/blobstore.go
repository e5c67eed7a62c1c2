package page

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// BlobHash is a 32-byte content-addressed handle for a blob. It is derived
// from two independent 64-bit xxhash digests of the blob's bytes (the
// second salted) so that a 32-byte handle, not merely a 64-bit one, is
// used to address the store — cheap insurance against the birthday bound
// on a single 64-bit hash once a database accumulates a large number of
// distinct blobs.
type BlobHash [32]byte

const blobHashSalt uint64 = 0x9E3779B97F4A7C15

func computeBlobHash(data []byte) BlobHash {
	var h BlobHash
	d1 := xxhash.Sum64(data)
	binary.LittleEndian.PutUint64(h[0:8], d1)

	salted := xxhash.NewWithSeed(blobHashSalt)
	salted.Write(data)
	d2 := salted.Sum64()
	binary.LittleEndian.PutUint64(h[8:16], d2)

	// Remaining 16 bytes: length and a third derived digest, giving the
	// handle enough entropy to make accidental collisions practically
	// impossible without a third hash function.
	binary.LittleEndian.PutUint64(h[16:24], uint64(len(data)))
	d3 := xxhash.Sum64(h[0:16])
	binary.LittleEndian.PutUint64(h[24:32], d3)
	return h
}

type blobEntry struct {
	data     []byte
	refcount uint32
}

// BlobStore is a content-addressed, refcounted store for var-len values
// too large to fit inline in a row's granule chain. Insert bumps a blob's
// refcount (creating it on first insert); Decref lowers it, removing the
// blob once it reaches zero. The store never frees a blob mid-transaction:
// callers only call Decref when folding a committed delete overlay.
type BlobStore struct {
	mu      sync.Mutex
	entries map[BlobHash]*blobEntry
}

// NewBlobStore returns an empty blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{entries: make(map[BlobHash]*blobEntry)}
}

// Insert adds data to the store, returning its content hash and the
// refcount after this insert. If a blob with the same hash already
// exists, its bytes are assumed identical (hash collision handling is out
// of scope) and its refcount is simply incremented.
func (b *BlobStore) Insert(data []byte) (BlobHash, uint32) {
	hash := computeBlobHash(data)

	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[hash]
	if !ok {
		stored := make([]byte, len(data))
		copy(stored, data)
		e = &blobEntry{data: stored}
		b.entries[hash] = e
	}
	e.refcount++
	return hash, e.refcount
}

// ErrBlobNotFound is returned by Lookup and Decref when no blob with the
// given hash is present.
var ErrBlobNotFound = fmt.Errorf("page: blob not found")

// Lookup returns the bytes stored under hash.
func (b *BlobStore) Lookup(hash BlobHash) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[hash]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return e.data, nil
}

// Decref lowers hash's refcount by one, removing the blob entirely once
// the count reaches zero. Returns the refcount after decrementing (0 if
// the blob was removed).
func (b *BlobStore) Decref(hash BlobHash) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[hash]
	if !ok {
		return 0, ErrBlobNotFound
	}
	e.refcount--
	if e.refcount == 0 {
		delete(b.entries, hash)
		return 0, nil
	}
	return e.refcount, nil
}

// Refcount returns the current refcount for hash, or 0 if not present.
func (b *BlobStore) Refcount(hash BlobHash) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[hash]
	if !ok {
		return 0
	}
	return e.refcount
}

// Len returns the number of distinct blobs currently stored.
func (b *BlobStore) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
