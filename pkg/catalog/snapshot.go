package catalog

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var sequenceBucket = []byte("sequence_allocated")

// SnapshotStore persists system-table rows and sequence allocation
// watermarks across restarts, one bbolt bucket per system table (named
// after SystemSchema.Names) plus a dedicated bucket for sequence
// watermarks, mirroring the bucket-per-entity/byte-blob-value shape the
// rest of this codebase uses for on-disk state.
type SnapshotStore struct {
	db *bolt.DB
}

// OpenSnapshotStore opens (creating if absent) a bbolt database under
// dataDir, with one bucket pre-created per system table plus the
// sequence watermark bucket.
func OpenSnapshotStore(dataDir string) (*SnapshotStore, error) {
	dbPath := filepath.Join(dataDir, "catalog.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to open snapshot store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range Schema().Names {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("catalog: failed to create bucket %s: %w", name, err)
			}
		}
		_, err := tx.CreateBucketIfNotExists(sequenceBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SnapshotStore{db: db}, nil
}

// Close closes the underlying bbolt database.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

func (s *SnapshotStore) tableBucketName(tableID uint32) ([]byte, error) {
	name, ok := Schema().Names[tableID]
	if !ok {
		return nil, fmt.Errorf("catalog: no system table named for id %d", tableID)
	}
	return []byte(name), nil
}

func rowKey(rowID uint32) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, rowID)
	return k
}

// PutRow stores encoded (a pre-BSATN-encoded row) under rowID in
// tableID's bucket, overwriting any previous value.
func (s *SnapshotStore) PutRow(tableID uint32, rowID uint32, encoded []byte) error {
	bucket, err := s.tableBucketName(tableID)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(rowKey(rowID), encoded)
	})
}

// DeleteRow removes rowID from tableID's bucket, if present.
func (s *SnapshotStore) DeleteRow(tableID uint32, rowID uint32) error {
	bucket, err := s.tableBucketName(tableID)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete(rowKey(rowID))
	})
}

// LoadTable returns every persisted row for tableID, keyed by row ID.
func (s *SnapshotStore) LoadTable(tableID uint32) (map[uint32][]byte, error) {
	bucket, err := s.tableBucketName(tableID)
	if err != nil {
		return nil, err
	}
	out := make(map[uint32][]byte)
	err = s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			if len(k) != 4 {
				return fmt.Errorf("catalog: malformed row key in bucket %s", bucket)
			}
			cp := make([]byte, len(v))
			copy(cp, v)
			out[binary.BigEndian.Uint32(k)] = cp
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PutAllocated records sequenceID's allocated watermark.
func (s *SnapshotStore) PutAllocated(sequenceID uint32, allocated int64) error {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, uint64(allocated))
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sequenceBucket).Put(rowKey(sequenceID), v)
	})
}

// LoadAllocated returns sequenceID's last-persisted watermark, or
// found=false if none was ever recorded.
func (s *SnapshotStore) LoadAllocated(sequenceID uint32) (allocated int64, found bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sequenceBucket).Get(rowKey(sequenceID))
		if v == nil {
			return nil
		}
		if len(v) != 8 {
			return fmt.Errorf("catalog: malformed allocated watermark for sequence %d", sequenceID)
		}
		allocated = int64(binary.BigEndian.Uint64(v))
		found = true
		return nil
	})
	return allocated, found, err
}

// LoadAllAllocated returns every persisted sequence watermark, keyed by
// sequence ID, for restoring pkg/sequence.State at startup.
func (s *SnapshotStore) LoadAllAllocated() (map[uint32]int64, error) {
	out := make(map[uint32]int64)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(sequenceBucket).ForEach(func(k, v []byte) error {
			if len(k) != 4 || len(v) != 8 {
				return fmt.Errorf("catalog: malformed sequence watermark entry")
			}
			out[binary.BigEndian.Uint32(k)] = int64(binary.BigEndian.Uint64(v))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
