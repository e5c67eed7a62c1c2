package table

import (
	"fmt"

	"github.com/cuemby/spacetimedb-core/pkg/bflatn"
	"github.com/cuemby/spacetimedb-core/pkg/bsatn"
	"github.com/cuemby/spacetimedb-core/pkg/page"
	"github.com/cuemby/spacetimedb-core/pkg/sats"
)

// RowRef addresses one row in a Table: the page it lives on and its slot
// within that page.
type RowRef struct {
	PageIdx int
	Slot    page.SlotIndex
}

// UniqueConstraintViolationError is returned by Insert when the row's
// projected key for a unique index already exists in the table.
type UniqueConstraintViolationError struct {
	IndexID        uint32
	ConflictingRow RowRef
}

func (e *UniqueConstraintViolationError) Error() string {
	return fmt.Sprintf("table: unique constraint violation on index %d, conflicting row %+v", e.IndexID, e.ConflictingRow)
}

// AutoIncOverflowError is returned by Insert when an auto-inc sequence
// backing one of the row's columns has exhausted its range.
type AutoIncOverflowError struct {
	SequenceID uint32
}

func (e *AutoIncOverflowError) Error() string {
	return fmt.Sprintf("table: auto-increment sequence %d overflowed its range", e.SequenceID)
}

// IndexKind discriminates how an Index projects and stores row keys.
type IndexKind uint8

const (
	// IndexKindBTree stores keys in a sorted slice and binary searches
	// it; supports equality and range scans over multicolumn keys
	// compared lexicographically. Only amortized-log scans are required,
	// not a literal pointer-based B-tree, so a sorted slice with binary
	// search meets the contract at a fraction of the complexity.
	IndexKindBTree IndexKind = iota
	// IndexKindDirect is stored and searched exactly like IndexKindBTree
	// (sorted slice, binary search). There is no dense array keyed by
	// value: point lookups are logarithmic, not O(1), and the key is not
	// checked to be a single integer column.
	IndexKindDirect
)

// IndexDef describes one index declared on a table.
type IndexDef struct {
	ID       uint32
	Name     string
	Cols     []int // column positions making up the key, in order
	Kind     IndexKind
	IsUnique bool
}

// Table is one table's live state: its row type, physical page storage,
// declared indexes, and the blob-store side table backing var-len
// columns.
type Table struct {
	TableID  uint32
	RowType  sats.AlgebraicType
	Layout   bflatn.Layout
	ts       *sats.Typespace
	pages    []*page.Page
	rowSize  uint32
	rowCount int

	blobStore *page.BlobStore
	blobRefs  []page.BlobHash

	indexes map[uint32]*index
	order   []uint32 // index IDs in declaration order, for stable iteration

	live      map[RowRef]struct{}
	liveOrder []RowRef // insertion order, for a stable Scan

	// static, known and validator are non-nil only when the row type has
	// no var-len members and every sum's variants share one BSATN
	// length, the precondition bsatn.ForRowType checks. InsertBytes uses
	// them to skip both the recursive wire decoder and the recursive
	// BFLATN encoder; Insert (decoded-value path) never touches them.
	static    *bsatn.StaticLayout
	known     *bsatn.KnownBsatnLayout
	validator *bsatn.StaticBsatnValidator
}

// New constructs an empty table for rowType, using ts to resolve any Refs
// within it, sharing blobStore with the rest of the database (blobs are
// refcounted across all tables, since any row anywhere can reference one).
func New(tableID uint32, rowType sats.AlgebraicType, ts *sats.Typespace, blobStore *page.BlobStore) (*Table, error) {
	layout, err := bflatn.Compute(ts, rowType)
	if err != nil {
		return nil, err
	}
	if layout.Kind != sats.KindProduct {
		return nil, fmt.Errorf("table: row type must be a Product, got %v", layout.Kind)
	}

	static, known, validator, ok := bsatn.ForRowType(layout)
	if !ok {
		static, known, validator = nil, nil, nil
	}

	return &Table{
		TableID:   tableID,
		RowType:   rowType,
		Layout:    layout,
		ts:        ts,
		rowSize:   layout.Size,
		blobStore: blobStore,
		indexes:   make(map[uint32]*index),
		live:      make(map[RowRef]struct{}),
		static:    static,
		known:     known,
		validator: validator,
	}, nil
}

// AddIndex declares a new index over the table. Existing rows are
// back-filled into it immediately.
func (t *Table) AddIndex(def IndexDef) error {
	idx := newIndex(def)
	t.indexes[def.ID] = idx
	t.order = append(t.order, def.ID)

	var rebuildErr error
	t.Scan(func(ref RowRef, val bsatn.Value) bool {
		key, err := projectKey(val, def.Cols)
		if err != nil {
			rebuildErr = err
			return false
		}
		if def.IsUnique {
			if _, exists := idx.find(key); exists {
				rebuildErr = &UniqueConstraintViolationError{IndexID: def.ID}
				return false
			}
		}
		idx.insert(key, ref)
		return true
	})
	if rebuildErr != nil {
		delete(t.indexes, def.ID)
		t.order = t.order[:len(t.order)-1]
		return rebuildErr
	}
	return nil
}

// IndexDefs returns the declared index definitions, in declaration order.
func (t *Table) IndexDefs() []IndexDef {
	defs := make([]IndexDef, len(t.order))
	for i, id := range t.order {
		defs[i] = t.indexes[id].def
	}
	return defs
}

// BlobStore returns the blob store shared by this table.
func (t *Table) BlobStore() *page.BlobStore { return t.blobStore }

// ProjectKey computes the index key for cols from a decoded row value,
// the same projection Insert/Delete use internally, exposed for callers
// that need to compute a key without going through an index (e.g. a
// transaction overlay checking cross-overlay uniqueness).
func (t *Table) ProjectKey(val bsatn.ProductValue, cols []int) (Key, error) {
	return projectKey(val, cols)
}

// RemoveIndex drops a previously declared index.
func (t *Table) RemoveIndex(indexID uint32) {
	delete(t.indexes, indexID)
	for i, id := range t.order {
		if id == indexID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Insert writes val as a new row, enforcing every unique index declared
// on the table before committing the write to any page or index.
func (t *Table) Insert(val bsatn.Value) (RowRef, error) {
	pv, ok := val.(bsatn.ProductValue)
	if !ok {
		return RowRef{}, fmt.Errorf("table: expected ProductValue row, got %T", val)
	}

	// Check every unique index before mutating any state, so a
	// conflict never leaves a partial write behind.
	keys := make(map[uint32]Key, len(t.indexes))
	for _, id := range t.order {
		idx := t.indexes[id]
		key, err := projectKey(pv, idx.def.Cols)
		if err != nil {
			return RowRef{}, err
		}
		keys[id] = key
		if idx.def.IsUnique {
			if existing, exists := idx.find(key); exists {
				return RowRef{}, &UniqueConstraintViolationError{IndexID: id, ConflictingRow: existing}
			}
		}
	}

	ref, err := t.allocateRow(pv)
	if err != nil {
		return RowRef{}, err
	}

	for _, id := range t.order {
		t.indexes[id].insert(keys[id], ref)
	}
	t.live[ref] = struct{}{}
	t.liveOrder = append(t.liveOrder, ref)
	t.rowCount++
	return ref, nil
}

// InsertBytes inserts a row from its raw BSATN wire encoding. When the
// row type qualifies for the fast path (no var-len columns, every sum's
// variants share one BSATN length), Validate gates a single
// memcpy-sequence write into the page slot, skipping both the recursive
// wire decoder and the recursive BFLATN encoder that Insert uses; a
// failed Validate is returned as-is rather than falling back, since it
// means raw is not a valid encoding of the row type. Tables outside the
// fast path's preconditions fall back to Decode followed by Insert.
func (t *Table) InsertBytes(raw []byte) (RowRef, error) {
	if t.validator == nil {
		val, _, err := bsatn.Decode(t.ts, t.RowType, raw)
		if err != nil {
			return RowRef{}, err
		}
		return t.Insert(val)
	}

	if err := bsatn.Validate(t.validator, t.static, raw); err != nil {
		return RowRef{}, err
	}

	ref, err := t.allocateRowFast(raw)
	if err != nil {
		return RowRef{}, err
	}

	val, err := t.Get(ref)
	if err != nil {
		t.pages[ref.PageIdx].Free(ref.Slot)
		return RowRef{}, err
	}
	pv := val.(bsatn.ProductValue)

	keys := make(map[uint32]Key, len(t.indexes))
	for _, id := range t.order {
		idx := t.indexes[id]
		key, err := projectKey(pv, idx.def.Cols)
		if err != nil {
			t.pages[ref.PageIdx].Free(ref.Slot)
			return RowRef{}, err
		}
		keys[id] = key
		if idx.def.IsUnique {
			if existing, exists := idx.find(key); exists {
				t.pages[ref.PageIdx].Free(ref.Slot)
				return RowRef{}, &UniqueConstraintViolationError{IndexID: id, ConflictingRow: existing}
			}
		}
	}

	for _, id := range t.order {
		t.indexes[id].insert(keys[id], ref)
	}
	t.live[ref] = struct{}{}
	t.liveOrder = append(t.liveOrder, ref)
	t.rowCount++
	return ref, nil
}

func (t *Table) allocateRowFast(raw []byte) (RowRef, error) {
	for pi, pg := range t.pages {
		if slot, row, err := pg.Allocate(); err == nil {
			t.known.DeserializeRowFrom(row, raw)
			return RowRef{PageIdx: pi, Slot: slot}, nil
		}
	}

	pg := page.NewPage(t.rowSize)
	t.pages = append(t.pages, pg)
	slot, row, err := pg.Allocate()
	if err != nil {
		return RowRef{}, err
	}
	t.known.DeserializeRowFrom(row, raw)
	return RowRef{PageIdx: len(t.pages) - 1, Slot: slot}, nil
}

func (t *Table) allocateRow(pv bsatn.ProductValue) (RowRef, error) {
	for pi, pg := range t.pages {
		if slot, row, err := pg.Allocate(); err == nil {
			if err := writeRowBytes(t.Layout, pv, row, pg, t.blobStore, &t.blobRefs); err != nil {
				pg.Free(slot)
				return RowRef{}, err
			}
			return RowRef{PageIdx: pi, Slot: slot}, nil
		}
	}

	pg := page.NewPage(t.rowSize)
	t.pages = append(t.pages, pg)
	slot, row, err := pg.Allocate()
	if err != nil {
		return RowRef{}, err
	}
	if err := writeRowBytes(t.Layout, pv, row, pg, t.blobStore, &t.blobRefs); err != nil {
		pg.Free(slot)
		return RowRef{}, err
	}
	return RowRef{PageIdx: len(t.pages) - 1, Slot: slot}, nil
}

// Get reads back the row at ref.
func (t *Table) Get(ref RowRef) (bsatn.Value, error) {
	if ref.PageIdx < 0 || ref.PageIdx >= len(t.pages) {
		return nil, fmt.Errorf("table: row ref %+v out of range", ref)
	}
	pg := t.pages[ref.PageIdx]
	return readRowBytes(t.Layout, pg.Row(ref.Slot), pg, t.blobStore, t.blobRefs)
}

// Delete removes the row at ref from every index and its page slot,
// returning whether a row was actually present.
func (t *Table) Delete(ref RowRef) bool {
	if ref.PageIdx < 0 || ref.PageIdx >= len(t.pages) {
		return false
	}
	pg := t.pages[ref.PageIdx]
	val, err := readRowBytes(t.Layout, pg.Row(ref.Slot), pg, t.blobStore, t.blobRefs)
	if err != nil {
		return false
	}
	pv := val.(bsatn.ProductValue)

	for _, id := range t.order {
		idx := t.indexes[id]
		key, err := projectKey(pv, idx.def.Cols)
		if err != nil {
			continue
		}
		idx.remove(key, ref)
	}
	decrefRowBlobs(t.Layout, pg.Row(ref.Slot), t.blobStore, t.blobRefs)
	pg.Free(ref.Slot)
	delete(t.live, ref)
	kept := make([]RowRef, 0, len(t.liveOrder))
	for _, r := range t.liveOrder {
		if r != ref {
			kept = append(kept, r)
		}
	}
	t.liveOrder = kept
	t.rowCount--
	return true
}

// RowCount returns the number of live rows in the table.
func (t *Table) RowCount() int { return t.rowCount }

// BlobHashesForRow returns the blob-store hash of every var-len column in
// the row at ref that spilled out of the page, for callers that need to
// track (or later reverse) the blob-store refcount increments an insert
// performed.
func (t *Table) BlobHashesForRow(ref RowRef) ([]page.BlobHash, error) {
	if ref.PageIdx < 0 || ref.PageIdx >= len(t.pages) {
		return nil, fmt.Errorf("table: row ref %+v out of range", ref)
	}
	pg := t.pages[ref.PageIdx]
	var out []page.BlobHash
	blobHashesInRow(t.Layout, pg.Row(ref.Slot), t.blobRefs, &out)
	return out, nil
}

// Scan visits every live row in insertion order. Stop early by returning
// false from visit. Rows deleted mid-scan are skipped.
func (t *Table) Scan(visit func(ref RowRef, val bsatn.Value) bool) {
	for _, ref := range t.liveOrder {
		if _, ok := t.live[ref]; !ok {
			continue
		}
		val, err := t.Get(ref)
		if err != nil {
			continue
		}
		if !visit(ref, val) {
			return
		}
	}
}

// IterByColEq returns every RowRef whose projected key over cols equals
// value, using a matching declared index when one exists and otherwise
// degrading to a filtered full scan.
func (t *Table) IterByColEq(cols []int, value Key) []RowRef {
	if idx := t.findIndexForCols(cols); idx != nil {
		return idx.findAll(value)
	}
	var out []RowRef
	t.Scan(func(ref RowRef, val bsatn.Value) bool {
		key, err := projectKey(val.(bsatn.ProductValue), cols)
		if err == nil && keysEqual(key, value) {
			out = append(out, ref)
		}
		return true
	})
	return out
}

// IterByColRange returns every RowRef whose projected key over cols falls
// within [lo, hi] inclusive, ascending by key, ties breaking by insertion
// order, using a matching declared B-tree index when one exists.
func (t *Table) IterByColRange(cols []int, lo, hi Key) []RowRef {
	if idx := t.findIndexForCols(cols); idx != nil && idx.def.Kind == IndexKindBTree {
		return idx.rangeScan(lo, hi)
	}
	if idx := t.findIndexForCols(cols); idx != nil && idx.def.Kind == IndexKindDirect {
		return idx.rangeScan(lo, hi)
	}
	var out []RowRef
	t.Scan(func(ref RowRef, val bsatn.Value) bool {
		key, err := projectKey(val.(bsatn.ProductValue), cols)
		if err == nil && compareKeys(key, lo) >= 0 && compareKeys(key, hi) <= 0 {
			out = append(out, ref)
		}
		return true
	})
	return out
}

func (t *Table) findIndexForCols(cols []int) *index {
	for _, id := range t.order {
		idx := t.indexes[id]
		if colsEqual(idx.def.Cols, cols) {
			return idx
		}
	}
	return nil
}

func colsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
