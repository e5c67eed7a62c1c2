package tx

import (
	"fmt"
	"sync"

	"github.com/cuemby/spacetimedb-core/pkg/page"
	"github.com/cuemby/spacetimedb-core/pkg/sats"
	"github.com/cuemby/spacetimedb-core/pkg/sequence"
	"github.com/cuemby/spacetimedb-core/pkg/table"
)

// AutoIncColumn marks one table column as backed by a sequence: inserts
// that leave it at its zero value have that value materialized from the
// sequence at commit time instead.
type AutoIncColumn struct {
	TableID uint32
	ColPos  int
	SeqID   uint32
}

// Database is the committed state shared by every transaction: the live
// tables, the blob store they all spill var-len values into, the
// typespace resolving their row types, and the sequence allocators
// backing auto-inc columns. A single MutTx may be open against it at a
// time, per the engine's single-writer concurrency model.
type Database struct {
	mu sync.RWMutex

	Typespace *sats.Typespace
	BlobStore *page.BlobStore
	Sequences *sequence.State

	tables     map[uint32]*table.Table
	autoInc    []AutoIncColumn
	nextCommit uint64 // a coarse version counter, bumped once per MutTx.Commit
}

// NewDatabase returns an empty database sharing ts and a fresh blob store
// and sequence state across every table added to it.
func NewDatabase(ts *sats.Typespace) *Database {
	return &Database{
		Typespace: ts,
		BlobStore: page.NewBlobStore(),
		Sequences: sequence.NewState(),
		tables:    make(map[uint32]*table.Table),
	}
}

// AddTable registers a new table under tableID, backed by rowType.
func (db *Database) AddTable(tableID uint32, rowType sats.AlgebraicType) (*table.Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.tables[tableID]; exists {
		return nil, fmt.Errorf("tx: table %d already exists", tableID)
	}
	tbl, err := table.New(tableID, rowType, db.Typespace, db.BlobStore)
	if err != nil {
		return nil, err
	}
	db.tables[tableID] = tbl
	return tbl, nil
}

// Table returns the committed table for tableID, or nil if it doesn't
// exist.
func (db *Database) Table(tableID uint32) *table.Table {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.tables[tableID]
}

// ReplaceTable swaps in newTbl as the committed table for tableID, used by
// schema migration steps that rebuild a table under a new row type
// (ChangeColumns, AddColumns). The caller is responsible for having
// already copied every surviving row into newTbl.
func (db *Database) ReplaceTable(tableID uint32, newTbl *table.Table) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.tables[tableID]; !exists {
		return fmt.Errorf("tx: table %d does not exist", tableID)
	}
	db.tables[tableID] = newTbl
	return nil
}

// TableIDs returns the IDs of every table currently registered, in no
// particular order. Used by metrics collection to enumerate tables
// without needing its own bookkeeping.
func (db *Database) TableIDs() []uint32 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	ids := make([]uint32, 0, len(db.tables))
	for id := range db.tables {
		ids = append(ids, id)
	}
	return ids
}

// RegisterAutoInc declares that col is backed by seqID.
func (db *Database) RegisterAutoInc(col AutoIncColumn) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.autoInc = append(db.autoInc, col)
}

func (db *Database) autoIncColumnsFor(tableID uint32) []AutoIncColumn {
	var out []AutoIncColumn
	for _, c := range db.autoInc {
		if c.TableID == tableID {
			out = append(out, c)
		}
	}
	return out
}

// Version returns the database's current commit version, used by Tx to
// record the snapshot point it was opened at.
func (db *Database) Version() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.nextCommit
}
