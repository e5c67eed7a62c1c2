package tx

import (
	"fmt"

	"github.com/cuemby/spacetimedb-core/pkg/bsatn"
	"github.com/cuemby/spacetimedb-core/pkg/table"
)

// RefSource discriminates whether a Ref addresses a row already folded
// into the committed table or one still living in a MutTx's insert
// overlay.
type RefSource uint8

const (
	SourceCommitted RefSource = iota
	SourceOverlay
)

// Ref addresses one row as seen through a transaction: either a row of
// the committed table (possibly shadowed by this transaction's delete
// overlay) or a row freshly written into this transaction's insert
// overlay and not yet folded into the committed table.
type Ref struct {
	TableID uint32
	Source  RefSource
	Row     table.RowRef
}

// WriteConflictError is returned by Commit when a row this transaction
// inserted has the same unique-index key as a committed row that the
// transaction has not deleted. Reads are not tracked, so an overlap
// between this transaction's reads and another's committed writes is not
// detected. Modeled for completeness against a concurrent-writer
// design; the engine's single-writer configuration (one MutTx open at a
// time) never produces one, since no second writer can ever commit
// between this transaction's start and its own commit.
type WriteConflictError struct {
	TableID uint32
}

func (e *WriteConflictError) Error() string {
	return fmt.Sprintf("tx: write conflict on table %d", e.TableID)
}

// SchemaChangeKind discriminates the shape of a PendingSchemaChange.
type SchemaChangeKind uint8

const (
	SchemaIndexAdded SchemaChangeKind = iota
	SchemaIndexRemoved
	SchemaSequenceAdded
	SchemaSequenceRemoved
	SchemaTableCreated
	SchemaColumnsAltered
	SchemaAccessAltered
)

// PendingSchemaChange records one DDL-shaped effect staged within a
// MutTx, applied to the system catalog atomically alongside the
// transaction's row-level commit. The tx package itself only carries
// these; pkg/catalog is what interprets and applies them.
type PendingSchemaChange struct {
	Kind    SchemaChangeKind
	TableID uint32
	Detail  interface{}
}

// cellKey identifies one unique-index cell a transaction has read or
// written, for conflict detection.
type cellKey struct {
	tableID uint32
	indexID uint32
	key     string // a canonical string form of the index key
}

// Tx is a read-only snapshot of the committed database, taken by
// recording the database's current version; it holds no other resources.
type Tx struct {
	db      *Database
	version uint64
}

// Begin opens a read-only snapshot of db.
func Begin(db *Database) *Tx {
	return &Tx{db: db, version: db.Version()}
}

// Version returns the commit version this snapshot was taken at.
func (tx *Tx) Version() uint64 { return tx.version }

// Scan visits every row of tableID as of this snapshot.
func (tx *Tx) Scan(tableID uint32, visit func(ref Ref, val bsatn.Value) bool) error {
	tbl := tx.db.Table(tableID)
	if tbl == nil {
		return fmt.Errorf("tx: no such table %d", tableID)
	}
	tbl.Scan(func(rr table.RowRef, val bsatn.Value) bool {
		return visit(Ref{TableID: tableID, Source: SourceCommitted, Row: rr}, val)
	})
	return nil
}

// Get reads back the row at ref.
func (tx *Tx) Get(ref Ref) (bsatn.Value, error) {
	tbl := tx.db.Table(ref.TableID)
	if tbl == nil {
		return nil, fmt.Errorf("tx: no such table %d", ref.TableID)
	}
	return tbl.Get(ref.Row)
}

// MutTx is a read-write transaction: an insert overlay and delete overlay
// per table, a blob-store delta, pending schema changes, and read/write
// set fields that no operation fills (conflicts are checked at commit
// against unique indexes instead), following spec.md §4.G.
type MutTx struct {
	db      *Database
	version uint64

	insertOverlay map[uint32]*table.Table          // tx-local tables, lazily created
	deleteOverlay map[uint32]map[table.RowRef]bool // committed refs staged for deletion
	blobDelta     []blobDeltaEntry                 // blob-store increments made by this tx's inserts, for rollback

	pendingAutoInc       []pendingAutoIncFill
	pendingSchemaChanges []PendingSchemaChange

	readSet  map[cellKey]bool
	writeSet map[cellKey]bool

	done bool
}

type blobDeltaEntry struct {
	tableID uint32
	ref     table.RowRef
}

type pendingAutoIncFill struct {
	tableID uint32
	ref     table.RowRef
	colPos  int
	seqID   uint32
}

// BeginMut opens a read-write transaction against db.
func BeginMut(db *Database) *MutTx {
	return &MutTx{
		db:            db,
		version:       db.Version(),
		insertOverlay: make(map[uint32]*table.Table),
		deleteOverlay: make(map[uint32]map[table.RowRef]bool),
		readSet:       make(map[cellKey]bool),
		writeSet:      make(map[cellKey]bool),
	}
}

func (mtx *MutTx) overlayTableFor(tableID uint32) (*table.Table, error) {
	if ov, ok := mtx.insertOverlay[tableID]; ok {
		return ov, nil
	}
	committed := mtx.db.Table(tableID)
	if committed == nil {
		return nil, fmt.Errorf("tx: no such table %d", tableID)
	}
	ov, err := table.New(tableID, committed.RowType, mtx.db.Typespace, mtx.db.BlobStore)
	if err != nil {
		return nil, err
	}
	for _, def := range committed.IndexDefs() {
		// The overlay only needs to detect conflicts among rows inserted
		// within this same transaction; cross-overlay/committed
		// uniqueness is checked separately in Insert against the
		// committed table's own index.
		if err := ov.AddIndex(def); err != nil {
			return nil, err
		}
	}
	mtx.insertOverlay[tableID] = ov
	return ov, nil
}

func (mtx *MutTx) isDeleted(tableID uint32, ref table.RowRef) bool {
	return mtx.deleteOverlay[tableID][ref]
}

// Insert stages val as a new row in tableID, unique-constraint-checking
// it against the effective state (committed minus this tx's deletes,
// plus this tx's other inserts) before staging it in the insert overlay.
func (mtx *MutTx) Insert(tableID uint32, val bsatn.Value) (Ref, error) {
	committed := mtx.db.Table(tableID)
	if committed == nil {
		return Ref{}, fmt.Errorf("tx: no such table %d", tableID)
	}
	pv, ok := val.(bsatn.ProductValue)
	if !ok {
		return Ref{}, fmt.Errorf("tx: expected ProductValue row, got %T", val)
	}

	for _, def := range committed.IndexDefs() {
		if !def.IsUnique {
			continue
		}
		key, err := committed.ProjectKey(pv, def.Cols)
		if err != nil {
			return Ref{}, err
		}
		for _, crr := range committed.IterByColEq(def.Cols, key) {
			if !mtx.isDeleted(tableID, crr) {
				return Ref{}, &table.UniqueConstraintViolationError{
					IndexID:        def.ID,
					ConflictingRow: crr,
				}
			}
		}
	}

	ov, err := mtx.overlayTableFor(tableID)
	if err != nil {
		return Ref{}, err
	}
	rr, err := ov.Insert(pv)
	if err != nil {
		return Ref{}, err
	}

	if hashes, _ := ov.BlobHashesForRow(rr); len(hashes) > 0 {
		mtx.blobDelta = append(mtx.blobDelta, blobDeltaEntry{tableID: tableID, ref: rr})
	}

	for _, col := range mtx.db.autoIncColumnsFor(tableID) {
		if col.ColPos < len(pv.Elements) && isZeroValue(pv.Elements[col.ColPos]) {
			mtx.pendingAutoInc = append(mtx.pendingAutoInc, pendingAutoIncFill{
				tableID: tableID, ref: rr, colPos: col.ColPos, seqID: col.SeqID,
			})
		}
	}

	return Ref{TableID: tableID, Source: SourceOverlay, Row: rr}, nil
}

// Delete stages the removal of the row at ref. Deleting a committed row
// records it in the delete overlay; deleting an overlay row removes it
// from the overlay outright, since nothing has been committed for it
// yet.
func (mtx *MutTx) Delete(ref Ref) (bool, error) {
	switch ref.Source {
	case SourceCommitted:
		if mtx.isDeleted(ref.TableID, ref.Row) {
			return false, nil
		}
		if mtx.deleteOverlay[ref.TableID] == nil {
			mtx.deleteOverlay[ref.TableID] = make(map[table.RowRef]bool)
		}
		mtx.deleteOverlay[ref.TableID][ref.Row] = true
		return true, nil
	case SourceOverlay:
		ov, ok := mtx.insertOverlay[ref.TableID]
		if !ok {
			return false, nil
		}
		return ov.Delete(ref.Row), nil
	default:
		return false, fmt.Errorf("tx: unknown ref source %d", ref.Source)
	}
}

// Get reads back the row at ref, whichever overlay (or the committed
// table) it lives in.
func (mtx *MutTx) Get(ref Ref) (bsatn.Value, error) {
	switch ref.Source {
	case SourceCommitted:
		tbl := mtx.db.Table(ref.TableID)
		if tbl == nil {
			return nil, fmt.Errorf("tx: no such table %d", ref.TableID)
		}
		return tbl.Get(ref.Row)
	case SourceOverlay:
		ov, ok := mtx.insertOverlay[ref.TableID]
		if !ok {
			return nil, fmt.Errorf("tx: no overlay for table %d", ref.TableID)
		}
		return ov.Get(ref.Row)
	default:
		return nil, fmt.Errorf("tx: unknown ref source %d", ref.Source)
	}
}

// Scan visits, in order, committed rows not staged for deletion
// (CommittedNoTxDeletes -> CommittedWithTxDeletes), then every row
// staged in this transaction's insert overlay (CurrentTx). Stop early by
// returning false from visit.
func (mtx *MutTx) Scan(tableID uint32, visit func(ref Ref, val bsatn.Value) bool) error {
	committed := mtx.db.Table(tableID)
	if committed == nil {
		return fmt.Errorf("tx: no such table %d", tableID)
	}
	deletes := mtx.deleteOverlay[tableID]
	stop := false
	committed.Scan(func(rr table.RowRef, val bsatn.Value) bool {
		if deletes[rr] {
			return true
		}
		if !visit(Ref{TableID: tableID, Source: SourceCommitted, Row: rr}, val) {
			stop = true
			return false
		}
		return true
	})
	if stop {
		return nil
	}
	if ov, ok := mtx.insertOverlay[tableID]; ok {
		ov.Scan(func(rr table.RowRef, val bsatn.Value) bool {
			return visit(Ref{TableID: tableID, Source: SourceOverlay, Row: rr}, val)
		})
	}
	return nil
}

// IterByColEq seeks by unique or secondary key: the insert overlay is
// checked first, then the committed index filtered by the delete
// overlay, matching the seek order spec.md §4.G documents.
func (mtx *MutTx) IterByColEq(tableID uint32, cols []int, key table.Key) ([]Ref, error) {
	committed := mtx.db.Table(tableID)
	if committed == nil {
		return nil, fmt.Errorf("tx: no such table %d", tableID)
	}
	var out []Ref
	if ov, ok := mtx.insertOverlay[tableID]; ok {
		for _, rr := range ov.IterByColEq(cols, key) {
			out = append(out, Ref{TableID: tableID, Source: SourceOverlay, Row: rr})
		}
	}
	deletes := mtx.deleteOverlay[tableID]
	for _, rr := range committed.IterByColEq(cols, key) {
		if !deletes[rr] {
			out = append(out, Ref{TableID: tableID, Source: SourceCommitted, Row: rr})
		}
	}
	return out, nil
}

// AddPendingSchemaChange stages a schema-level effect to be applied to
// the system catalog atomically with this transaction's commit.
func (mtx *MutTx) AddPendingSchemaChange(c PendingSchemaChange) {
	mtx.pendingSchemaChanges = append(mtx.pendingSchemaChanges, c)
}

// PendingSchemaChanges returns the schema changes staged so far.
func (mtx *MutTx) PendingSchemaChanges() []PendingSchemaChange {
	return mtx.pendingSchemaChanges
}

// PendingDeletes returns, for every table touched by this transaction's
// delete overlay, the committed row refs staged for deletion. A caller
// that needs the deleted rows' values (e.g. to publish them in a
// TransactionUpdate) must read them before Commit, since Commit removes
// them from the committed table.
func (mtx *MutTx) PendingDeletes() map[uint32][]table.RowRef {
	out := make(map[uint32][]table.RowRef, len(mtx.deleteOverlay))
	for tableID, refs := range mtx.deleteOverlay {
		list := make([]table.RowRef, 0, len(refs))
		for rr := range refs {
			list = append(list, rr)
		}
		out[tableID] = list
	}
	return out
}

// CommitResult summarizes what a successful Commit changed, for the
// caller (pkg/engine) to serialize into a commit-log record and publish
// to subscribers.
type CommitResult struct {
	Version       uint64
	Inserted      map[uint32][]table.RowRef
	Deleted       map[uint32][]table.RowRef
	SchemaChanges []PendingSchemaChange
}

// Commit re-verifies unique constraints across the effective state,
// materializes auto-inc column values, folds the insert and delete
// overlays into the committed tables, and returns a summary of what
// changed. The system catalog / commit log / subscriber publish steps
// spec.md §4.G lists after that are the caller's responsibility: they
// need resources (on-disk writer, broker) this package has no business
// owning.
func (mtx *MutTx) Commit() (*CommitResult, error) {
	if mtx.done {
		return nil, fmt.Errorf("tx: transaction already finished")
	}
	mtx.done = true

	if err := mtx.verifyNoConflict(); err != nil {
		return nil, err
	}
	if err := mtx.materializeAutoInc(); err != nil {
		return nil, err
	}

	result := &CommitResult{
		Version:       mtx.db.Version() + 1,
		Inserted:      make(map[uint32][]table.RowRef),
		Deleted:       make(map[uint32][]table.RowRef),
		SchemaChanges: mtx.pendingSchemaChanges,
	}

	for tableID, deletes := range mtx.deleteOverlay {
		committed := mtx.db.Table(tableID)
		if committed == nil {
			continue
		}
		for rr := range deletes {
			if committed.Delete(rr) {
				result.Deleted[tableID] = append(result.Deleted[tableID], rr)
			}
		}
	}

	for tableID, ov := range mtx.insertOverlay {
		committed := mtx.db.Table(tableID)
		if committed == nil {
			continue
		}
		var inserted []table.RowRef
		var foldErr error
		ov.Scan(func(_ table.RowRef, val bsatn.Value) bool {
			newRef, err := committed.Insert(val)
			if err != nil {
				foldErr = err
				return false
			}
			inserted = append(inserted, newRef)
			return true
		})
		if foldErr != nil {
			return nil, foldErr
		}
		result.Inserted[tableID] = inserted
	}

	mtx.db.mu.Lock()
	mtx.db.nextCommit++
	mtx.db.mu.Unlock()

	return result, nil
}

// verifyNoConflict re-checks every unique index touched by this
// transaction's inserts against the current committed state. In the
// engine's single-writer configuration this can never fail (nothing else
// could have committed between BeginMut and Commit), so it never
// surfaces WriteConflictError in practice; it exists so the check is in
// place the day a second concurrent writer is introduced.
func (mtx *MutTx) verifyNoConflict() error {
	for tableID, ov := range mtx.insertOverlay {
		committed := mtx.db.Table(tableID)
		if committed == nil {
			continue
		}
		deletes := mtx.deleteOverlay[tableID]
		var err error
		ov.Scan(func(_ table.RowRef, val bsatn.Value) bool {
			pv := val.(bsatn.ProductValue)
			for _, def := range committed.IndexDefs() {
				if !def.IsUnique {
					continue
				}
				key, kerr := committed.ProjectKey(pv, def.Cols)
				if kerr != nil {
					err = kerr
					return false
				}
				for _, crr := range committed.IterByColEq(def.Cols, key) {
					if !deletes[crr] {
						err = &WriteConflictError{TableID: tableID}
						return false
					}
				}
			}
			return true
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// materializeAutoInc fills every pending auto-inc column with a freshly
// generated sequence value, allocating a new watermark batch first if
// the sequence has caught up to it.
func (mtx *MutTx) materializeAutoInc() error {
	for _, fill := range mtx.pendingAutoInc {
		seq := mtx.db.Sequences.Get(fill.seqID)
		if seq == nil {
			return fmt.Errorf("tx: no such sequence %d", fill.seqID)
		}
		if seq.NeedsAllocation() {
			seq.AllocateSteps(32)
		}
		v, ok := seq.GenNextValue()
		if !ok {
			return fmt.Errorf("tx: sequence %d exhausted its allocation window", fill.seqID)
		}

		ov := mtx.insertOverlay[fill.tableID]
		val, err := ov.Get(fill.ref)
		if err != nil {
			return err
		}
		pv := val.(bsatn.ProductValue)
		pv.Elements[fill.colPos] = autoIncTypedValue(pv.Elements[fill.colPos], v)

		ov.Delete(fill.ref)
		if _, err := ov.Insert(pv); err != nil {
			return err
		}
	}
	return nil
}

// Rollback discards every overlay and pending schema change in O(overlay
// size), undoing any blob-store increments this transaction's inserts
// made. No commit-log write ever happens for a rolled-back transaction.
func (mtx *MutTx) Rollback() {
	if mtx.done {
		return
	}
	mtx.done = true
	for _, entry := range mtx.blobDelta {
		ov := mtx.insertOverlay[entry.tableID]
		if ov == nil {
			continue
		}
		if hashes, err := ov.BlobHashesForRow(entry.ref); err == nil {
			for _, h := range hashes {
				mtx.db.BlobStore.Decref(h)
			}
		}
	}
	mtx.insertOverlay = nil
	mtx.deleteOverlay = nil
	mtx.pendingAutoInc = nil
	mtx.pendingSchemaChanges = nil
}

func isZeroValue(v bsatn.Value) bool {
	switch x := v.(type) {
	case int8:
		return x == 0
	case int16:
		return x == 0
	case int32:
		return x == 0
	case int64:
		return x == 0
	case uint8:
		return x == 0
	case uint16:
		return x == 0
	case uint32:
		return x == 0
	case uint64:
		return x == 0
	default:
		return false
	}
}

func autoIncTypedValue(original bsatn.Value, v int64) bsatn.Value {
	switch original.(type) {
	case int8:
		return int8(v)
	case int16:
		return int16(v)
	case int32:
		return int32(v)
	case int64:
		return v
	case uint8:
		return uint8(v)
	case uint16:
		return uint16(v)
	case uint32:
		return uint32(v)
	case uint64:
		return uint64(v)
	default:
		return original
	}
}
