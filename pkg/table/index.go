package table

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/cuemby/spacetimedb-core/pkg/bsatn"
)

// Key is a projected index key: one comparable value per indexed column,
// in column order. Composite keys compare lexicographically, column by
// column.
type Key struct {
	parts []keyPart
}

// keyPart holds one column's contribution to a Key. Only the comparable
// primitive kinds a table row can carry are supported; strings compare
// lexicographically and integers compare numerically. Two parts are
// compared by the first part's kind only, so a signed and an unsigned
// part are not compared meaningfully (which never happens within one
// index, since every row shares the same column types).
type keyPart struct {
	i    int64
	u    uint64
	f    float64
	s    string
	big  *big.Int
	kind byte // 'i', 'u', 'f', 's', 'b'
}

func keyPartFor(v bsatn.Value) (keyPart, error) {
	switch x := v.(type) {
	case bool:
		if x {
			return keyPart{kind: 'u', u: 1}, nil
		}
		return keyPart{kind: 'u', u: 0}, nil
	case int8:
		return keyPart{kind: 'i', i: int64(x)}, nil
	case int16:
		return keyPart{kind: 'i', i: int64(x)}, nil
	case int32:
		return keyPart{kind: 'i', i: int64(x)}, nil
	case int64:
		return keyPart{kind: 'i', i: x}, nil
	case uint8:
		return keyPart{kind: 'u', u: uint64(x)}, nil
	case uint16:
		return keyPart{kind: 'u', u: uint64(x)}, nil
	case uint32:
		return keyPart{kind: 'u', u: uint64(x)}, nil
	case uint64:
		return keyPart{kind: 'u', u: x}, nil
	case float32:
		return keyPart{kind: 'f', f: float64(x)}, nil
	case float64:
		return keyPart{kind: 'f', f: x}, nil
	case string:
		return keyPart{kind: 's', s: x}, nil
	case *big.Int:
		return keyPart{kind: 'b', big: x}, nil
	default:
		return keyPart{}, fmt.Errorf("table: column value of type %T cannot be used as an index key", v)
	}
}

func comparePart(a, b keyPart) int {
	switch a.kind {
	case 'i':
		switch {
		case a.i < b.i:
			return -1
		case a.i > b.i:
			return 1
		default:
			return 0
		}
	case 'u':
		switch {
		case a.u < b.u:
			return -1
		case a.u > b.u:
			return 1
		default:
			return 0
		}
	case 'f':
		switch {
		case a.f < b.f:
			return -1
		case a.f > b.f:
			return 1
		default:
			return 0
		}
	case 's':
		switch {
		case a.s < b.s:
			return -1
		case a.s > b.s:
			return 1
		default:
			return 0
		}
	case 'b':
		return a.big.Cmp(b.big)
	default:
		return 0
	}
}

// ProjectKey extracts the key for an index over the given column
// positions from a decoded row value (exported so callers above this
// package, like a transaction overlay, can compute keys the same way the
// table itself does when checking cross-overlay uniqueness).
func ProjectKey(val bsatn.ProductValue, cols []int) (Key, error) {
	return projectKey(val, cols)
}

// projectKey extracts the key for an index over the given column
// positions from a decoded row value.
func projectKey(val bsatn.Value, cols []int) (Key, error) {
	pv, ok := val.(bsatn.ProductValue)
	if !ok {
		return Key{}, fmt.Errorf("table: cannot project index key from non-row value %T", val)
	}
	parts := make([]keyPart, len(cols))
	for i, c := range cols {
		if c < 0 || c >= len(pv.Elements) {
			return Key{}, fmt.Errorf("table: index column %d out of range for row with %d columns", c, len(pv.Elements))
		}
		kp, err := keyPartFor(pv.Elements[c])
		if err != nil {
			return Key{}, err
		}
		parts[i] = kp
	}
	return Key{parts: parts}, nil
}

func compareKeys(a, b Key) int {
	for i := range a.parts {
		if i >= len(b.parts) {
			return 1
		}
		if c := comparePart(a.parts[i], b.parts[i]); c != 0 {
			return c
		}
	}
	if len(b.parts) > len(a.parts) {
		return -1
	}
	return 0
}

func keysEqual(a, b Key) bool {
	return compareKeys(a, b) == 0
}

// entry is one key/RowRef pair held by an index. A non-unique index can
// hold multiple entries with the same key.
type entry struct {
	key Key
	ref RowRef
}

// index is the shared implementation behind both declared IndexKinds.
// IndexKindDirect and IndexKindBTree use the same sorted-entries
// representation and the same binary search; there is no dense bucket,
// and nothing checks that a Direct index's key is a single integer
// column. The kind is only carried in def.
type index struct {
	def     IndexDef
	entries []entry // kept sorted by key for binary search and range scans
}

func newIndex(def IndexDef) *index {
	return &index{def: def}
}

func (ix *index) sortIdx(key Key) int {
	return sort.Search(len(ix.entries), func(i int) bool {
		return compareKeys(ix.entries[i].key, key) >= 0
	})
}

// find returns the first matching RowRef for key, if any.
func (ix *index) find(key Key) (RowRef, bool) {
	i := ix.sortIdx(key)
	if i < len(ix.entries) && keysEqual(ix.entries[i].key, key) {
		return ix.entries[i].ref, true
	}
	return RowRef{}, false
}

// findAll returns every RowRef matching key, in insertion order among
// themselves.
func (ix *index) findAll(key Key) []RowRef {
	i := ix.sortIdx(key)
	var out []RowRef
	for i < len(ix.entries) && keysEqual(ix.entries[i].key, key) {
		out = append(out, ix.entries[i].ref)
		i++
	}
	return out
}

func (ix *index) insert(key Key, ref RowRef) {
	i := ix.sortIdx(key)
	// Insert after any existing equal keys, preserving their relative
	// order and appending this one last.
	for i < len(ix.entries) && keysEqual(ix.entries[i].key, key) {
		i++
	}
	ix.entries = append(ix.entries, entry{})
	copy(ix.entries[i+1:], ix.entries[i:])
	ix.entries[i] = entry{key: key, ref: ref}
}

func (ix *index) remove(key Key, ref RowRef) {
	i := ix.sortIdx(key)
	for i < len(ix.entries) && keysEqual(ix.entries[i].key, key) {
		if ix.entries[i].ref == ref {
			ix.entries = append(ix.entries[:i], ix.entries[i+1:]...)
			return
		}
		i++
	}
}

// rangeScan returns every RowRef whose key falls within [lo, hi]
// inclusive, in ascending key order (ties in insertion order).
func (ix *index) rangeScan(lo, hi Key) []RowRef {
	start := ix.sortIdx(lo)
	var out []RowRef
	for i := start; i < len(ix.entries); i++ {
		if compareKeys(ix.entries[i].key, hi) > 0 {
			break
		}
		out = append(out, ix.entries[i].ref)
	}
	return out
}

// scanAll visits every entry in ascending key order. Stop early by
// returning false.
func (ix *index) scanAll(visit func(ref RowRef) bool) {
	for _, e := range ix.entries {
		if !visit(e.ref) {
			return
		}
	}
}
