package catalog

import (
	"fmt"

	"github.com/cuemby/spacetimedb-core/pkg/bsatn"
	"github.com/cuemby/spacetimedb-core/pkg/metrics"
	"github.com/cuemby/spacetimedb-core/pkg/sats"
	"github.com/cuemby/spacetimedb-core/pkg/sequence"
	"github.com/cuemby/spacetimedb-core/pkg/table"
	"github.com/cuemby/spacetimedb-core/pkg/tx"
)

// PlanKind discriminates a MigratePlan.
type PlanKind uint8

const (
	// PlanManual is accepted but never executed; Apply returns
	// NotImplementedError for it.
	PlanManual PlanKind = iota
	// PlanAuto is a precomputed, ordered list of Steps, applied in order
	// within one MutTx.
	PlanAuto
)

// MigratePlan is the result of planning a schema change: either Manual
// (unsupported at runtime) or Auto, an ordered Step list.
type MigratePlan struct {
	Kind  PlanKind
	Steps []Step
}

// StepKind discriminates the shape of a Step's Detail, exactly the list
// spec.md §4.I names. Apply runs a plan's Steps in the order they appear
// in MigratePlan.Steps, whatever their kinds.
type StepKind uint8

const (
	StepAddTable StepKind = iota
	StepAddView
	StepRemoveView
	StepUpdateView
	StepAddIndex
	StepRemoveIndex
	StepRemoveConstraint
	StepAddSequence
	StepRemoveSequence
	StepChangeColumns
	StepChangeAccess
	StepAddRowLevelSecurity
	StepRemoveRowLevelSecurity
	StepAddColumns
	StepDisconnectAllUsers
)

// Step is one migration action, applied in sequence by Apply. Detail holds
// one of the *Detail structs below, matching Kind.
type Step struct {
	Kind   StepKind
	Detail interface{}
}

type AddTableDetail struct {
	TableID uint32
	Name    string
	RowType sats.AlgebraicType
	Access  string // "public" or "private"
	Columns []ColumnRow
}

type AddViewDetail struct {
	ViewID uint32
	Name   string
	Access string
	Query  string
	Params []ViewParamRow
}

type RemoveViewDetail struct {
	ViewID uint32
}

// UpdateViewDetail rebuilds a view in place: the old st_view_param rows
// for ViewID are dropped and replaced with NewParams, and view_query is
// overwritten, matching the "rebuild-and-replace" semantics spec.md
// prescribes rather than an in-place column-level patch.
type UpdateViewDetail struct {
	ViewID    uint32
	NewQuery  string
	NewParams []ViewParamRow
}

type AddIndexDetail struct {
	IndexID uint32
	TableID uint32
	Name    string
	Cols    []uint16
	Unique  bool
}

type RemoveIndexDetail struct {
	IndexID uint32
	TableID uint32
}

type RemoveConstraintDetail struct {
	ConstraintID uint32
	TableID      uint32
}

type AddSequenceDetail struct {
	SequenceID uint32
	Schema     sequence.Schema
}

type RemoveSequenceDetail struct {
	SequenceID uint32
}

// ChangeColumnsDetail alters a table's row type. The step rebuilds the
// table under NewRowType and reinserts every existing row through Convert;
// it does not itself compare the old and new row types. Computing a
// value-level row conversion for existing data is the caller's
// responsibility via Convert, which may be nil when the table is empty.
type ChangeColumnsDetail struct {
	TableID    uint32
	NewRowType sats.AlgebraicType
	NewColumns []ColumnRow
	Convert    func(old bsatn.ProductValue) (bsatn.ProductValue, error)
}

type ChangeAccessDetail struct {
	TableID   uint32
	NewAccess string
}

type AddRowLevelSecurityDetail struct {
	TableID uint32
	Expr    string
}

type RemoveRowLevelSecurityDetail struct {
	TableID uint32
	Expr    string
}

// AddColumnsDetail appends new columns to a table's end, backfilling every
// existing row with Defaults (one bsatn.Value per new column, in the same
// order as NewColumns).
type AddColumnsDetail struct {
	TableID    uint32
	NewColumns []ColumnRow
	// NewColumnTypes is the sats.AlgebraicType of each entry in
	// NewColumns, in the same order; NewColumns.ColType only carries the
	// column's type pre-encoded as opaque bytes for st_column, which
	// (without the AlgebraicType-of-AlgebraicType decoder, out of scope
	// here) can't be reconstructed back into a type the new table can be
	// built from.
	NewColumnTypes []sats.AlgebraicType
	Defaults       []bsatn.Value
}

type DisconnectAllUsersDetail struct{}

// CheckAddSequenceRangeValid is the AddSequence precheck: it asserts that
// tableID has no existing row whose value at colPos already falls inside
// schema's proposed [MinValue, MaxValue] range, since handing out a value
// from that range later could collide with a value a pre-existing row
// already holds.
func CheckAddSequenceRangeValid(mtx *tx.MutTx, tableID uint32, colPos int, schema sequence.Schema) error {
	var rangeErr error
	scanErr := mtx.Scan(tableID, func(_ tx.Ref, val bsatn.Value) bool {
		pv, ok := val.(bsatn.ProductValue)
		if !ok || colPos >= len(pv.Elements) {
			return true
		}
		v, ok := numericValue(pv.Elements[colPos])
		if !ok {
			return true
		}
		if v >= schema.MinValue && v <= schema.MaxValue {
			rangeErr = &InvalidSequenceRangeError{TableID: tableID, SequenceID: schema.SequenceID, Value: v}
			return false
		}
		return true
	})
	if scanErr != nil {
		return scanErr
	}
	return rangeErr
}

func numericValue(v bsatn.Value) (int64, bool) {
	switch x := v.(type) {
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	default:
		return 0, false
	}
}

// Apply runs plan's steps, in order, against db and mtx. A Manual plan
// returns NotImplementedError and does nothing else. A DisconnectAllUsers
// step does not itself disconnect anyone (that is the caller's
// responsibility, over resources this package has no business owning); it
// makes Apply return requiresDisconnect=true (with a nil error when every
// other step succeeds), signaling the caller to do so once mtx commits.
func Apply(db *tx.Database, mtx *tx.MutTx, plan MigratePlan) (requiresDisconnect bool, err error) {
	if plan.Kind == PlanManual {
		metrics.MigrationsAppliedTotal.WithLabelValues("error").Inc()
		return false, &NotImplementedError{Operation: "MigratePlan.Manual"}
	}
	for _, step := range plan.Steps {
		if step.Kind == StepDisconnectAllUsers {
			requiresDisconnect = true
			continue
		}
		if err := applyStep(db, mtx, step); err != nil {
			metrics.MigrationsAppliedTotal.WithLabelValues("error").Inc()
			return requiresDisconnect, err
		}
	}
	metrics.MigrationsAppliedTotal.WithLabelValues("ok").Inc()
	return requiresDisconnect, nil
}

func applyStep(db *tx.Database, mtx *tx.MutTx, step Step) error {
	switch step.Kind {
	case StepAddTable:
		return applyAddTable(db, mtx, step.Detail.(AddTableDetail))
	case StepAddView:
		return applyAddView(mtx, step.Detail.(AddViewDetail))
	case StepRemoveView:
		return applyRemoveView(mtx, step.Detail.(RemoveViewDetail))
	case StepUpdateView:
		return applyUpdateView(mtx, step.Detail.(UpdateViewDetail))
	case StepAddIndex:
		return applyAddIndex(db, mtx, step.Detail.(AddIndexDetail))
	case StepRemoveIndex:
		return applyRemoveIndex(db, mtx, step.Detail.(RemoveIndexDetail))
	case StepRemoveConstraint:
		return applyRemoveConstraint(mtx, step.Detail.(RemoveConstraintDetail))
	case StepAddSequence:
		return applyAddSequence(db, mtx, step.Detail.(AddSequenceDetail))
	case StepRemoveSequence:
		return applyRemoveSequence(db, mtx, step.Detail.(RemoveSequenceDetail))
	case StepChangeColumns:
		return applyChangeColumns(db, mtx, step.Detail.(ChangeColumnsDetail))
	case StepChangeAccess:
		return applyChangeAccess(mtx, step.Detail.(ChangeAccessDetail))
	case StepAddRowLevelSecurity, StepRemoveRowLevelSecurity:
		// Row-level security steps are accepted and have no effect: no
		// system-table row is written for the expression, and nothing in
		// this package enforces it.
		return nil
	case StepAddColumns:
		return applyAddColumns(db, mtx, step.Detail.(AddColumnsDetail))
	default:
		return fmt.Errorf("catalog: unknown migration step kind %d", step.Kind)
	}
}

func applyAddTable(db *tx.Database, mtx *tx.MutTx, d AddTableDetail) error {
	if _, err := db.AddTable(d.TableID, d.RowType); err != nil {
		return err
	}
	if _, err := mtx.Insert(TableIDStTable, TableRow{
		TableID: d.TableID, TableName: d.Name, TableType: "user", TableAccess: d.Access,
	}.ToProductValue()); err != nil {
		return err
	}
	for _, col := range d.Columns {
		col.TableID = d.TableID
		if _, err := mtx.Insert(TableIDStColumn, col.ToProductValue()); err != nil {
			return err
		}
	}
	return nil
}

func applyAddView(mtx *tx.MutTx, d AddViewDetail) error {
	if _, err := mtx.Insert(TableIDStView, ViewRow{
		ViewID: d.ViewID, ViewName: d.Name, ViewAccess: d.Access, ViewQuery: d.Query,
	}.ToProductValue()); err != nil {
		return err
	}
	for _, p := range d.Params {
		p.ViewID = d.ViewID
		if _, err := mtx.Insert(TableIDStViewParam, p.ToProductValue()); err != nil {
			return err
		}
	}
	return nil
}

func applyRemoveView(mtx *tx.MutTx, d RemoveViewDetail) error {
	if err := deleteRowsMatching(mtx, TableIDStViewParam, func(pv bsatn.ProductValue) bool {
		p, err := ViewParamRowFromProductValue(pv)
		return err == nil && p.ViewID == d.ViewID
	}); err != nil {
		return err
	}
	return deleteRowsMatching(mtx, TableIDStView, func(pv bsatn.ProductValue) bool {
		v, err := ViewRowFromProductValue(pv)
		return err == nil && v.ViewID == d.ViewID
	})
}

func applyUpdateView(mtx *tx.MutTx, d UpdateViewDetail) error {
	var found bool
	if err := updateRowsMatching(mtx, TableIDStView, func(pv bsatn.ProductValue) (bsatn.ProductValue, bool, error) {
		v, err := ViewRowFromProductValue(pv)
		if err != nil {
			return pv, false, err
		}
		if v.ViewID != d.ViewID {
			return pv, false, nil
		}
		found = true
		v.ViewQuery = d.NewQuery
		return v.ToProductValue(), true, nil
	}); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("catalog: no such view %d", d.ViewID)
	}
	if err := deleteRowsMatching(mtx, TableIDStViewParam, func(pv bsatn.ProductValue) bool {
		p, err := ViewParamRowFromProductValue(pv)
		return err == nil && p.ViewID == d.ViewID
	}); err != nil {
		return err
	}
	for _, p := range d.NewParams {
		p.ViewID = d.ViewID
		if _, err := mtx.Insert(TableIDStViewParam, p.ToProductValue()); err != nil {
			return err
		}
	}
	return nil
}

func applyAddIndex(db *tx.Database, mtx *tx.MutTx, d AddIndexDetail) error {
	tbl := db.Table(d.TableID)
	if tbl == nil {
		return fmt.Errorf("catalog: no such table %d", d.TableID)
	}
	cols := make([]int, len(d.Cols))
	for i, c := range d.Cols {
		cols[i] = int(c)
	}
	if err := tbl.AddIndex(table.IndexDef{
		ID: d.IndexID, Name: d.Name, Cols: cols, Kind: table.IndexKindBTree, IsUnique: d.Unique,
	}); err != nil {
		return err
	}
	_, err := mtx.Insert(TableIDStIndex, IndexRow{
		IndexID: d.IndexID, TableID: d.TableID, IndexName: d.Name, Cols: d.Cols,
	}.ToProductValue())
	return err
}

func applyRemoveIndex(db *tx.Database, mtx *tx.MutTx, d RemoveIndexDetail) error {
	if tbl := db.Table(d.TableID); tbl != nil {
		tbl.RemoveIndex(d.IndexID)
	}
	return deleteRowsMatching(mtx, TableIDStIndex, func(pv bsatn.ProductValue) bool {
		r, err := IndexRowFromProductValue(pv)
		return err == nil && r.IndexID == d.IndexID
	})
}

func applyRemoveConstraint(mtx *tx.MutTx, d RemoveConstraintDetail) error {
	return deleteRowsMatching(mtx, TableIDStConstraint, func(pv bsatn.ProductValue) bool {
		r, err := ConstraintRowFromProductValue(pv)
		return err == nil && r.ConstraintID == d.ConstraintID
	})
}

func applyAddSequence(db *tx.Database, mtx *tx.MutTx, d AddSequenceDetail) error {
	if err := CheckAddSequenceRangeValid(mtx, d.Schema.TableID, int(d.Schema.ColPos), d.Schema); err != nil {
		return err
	}
	db.Sequences.Insert(sequence.New(d.Schema, nil))
	db.RegisterAutoInc(tx.AutoIncColumn{TableID: d.Schema.TableID, ColPos: int(d.Schema.ColPos), SeqID: d.Schema.SequenceID})
	_, err := mtx.Insert(TableIDStSequence, SequenceRow{
		SequenceID: d.SequenceID, SequenceName: d.Schema.Name, TableID: d.Schema.TableID, ColPos: d.Schema.ColPos,
		Increment: d.Schema.Increment, Start: d.Schema.Start, MinValue: d.Schema.MinValue, MaxValue: d.Schema.MaxValue,
		Allocated: d.Schema.Start,
	}.ToProductValue())
	return err
}

func applyRemoveSequence(db *tx.Database, mtx *tx.MutTx, d RemoveSequenceDetail) error {
	db.Sequences.Remove(d.SequenceID)
	return deleteRowsMatching(mtx, TableIDStSequence, func(pv bsatn.ProductValue) bool {
		r, err := SequenceRowFromProductValue(pv)
		return err == nil && r.SequenceID == d.SequenceID
	})
}

// applyChangeColumns alters a table's row type. Per spec.md, the step
// requires either no existing rows or a compatible conversion; Convert
// nil with existing rows is treated as incompatible.
func applyChangeColumns(db *tx.Database, mtx *tx.MutTx, d ChangeColumnsDetail) error {
	tbl := db.Table(d.TableID)
	if tbl == nil {
		return fmt.Errorf("catalog: no such table %d", d.TableID)
	}
	if tbl.RowCount() > 0 && d.Convert == nil {
		return &IncompatibleColumnChangeError{TableID: d.TableID, Reason: "table has existing rows and no conversion was supplied"}
	}

	type converted struct {
		ref table.RowRef
		val bsatn.ProductValue
	}
	var rows []converted
	var convertErr error
	tbl.Scan(func(ref table.RowRef, val bsatn.Value) bool {
		pv := val.(bsatn.ProductValue)
		newPV, err := d.Convert(pv)
		if err != nil {
			convertErr = err
			return false
		}
		rows = append(rows, converted{ref: ref, val: newPV})
		return true
	})
	if convertErr != nil {
		return convertErr
	}

	newTbl, err := table.New(d.TableID, d.NewRowType, db.Typespace, db.BlobStore)
	if err != nil {
		return err
	}
	for _, def := range tbl.IndexDefs() {
		if err := newTbl.AddIndex(def); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if _, err := newTbl.Insert(r.val); err != nil {
			return err
		}
	}
	if err := db.ReplaceTable(d.TableID, newTbl); err != nil {
		return err
	}

	if err := deleteRowsMatching(mtx, TableIDStColumn, func(pv bsatn.ProductValue) bool {
		r, err := ColumnRowFromProductValue(pv)
		return err == nil && r.TableID == d.TableID
	}); err != nil {
		return err
	}
	for _, col := range d.NewColumns {
		col.TableID = d.TableID
		if _, err := mtx.Insert(TableIDStColumn, col.ToProductValue()); err != nil {
			return err
		}
	}
	return nil
}

func applyChangeAccess(mtx *tx.MutTx, d ChangeAccessDetail) error {
	return updateRowsMatching(mtx, TableIDStTable, func(pv bsatn.ProductValue) (bsatn.ProductValue, bool, error) {
		r, err := TableRowFromProductValue(pv)
		if err != nil {
			return pv, false, err
		}
		if r.TableID != d.TableID {
			return pv, false, nil
		}
		r.TableAccess = d.NewAccess
		return r.ToProductValue(), true, nil
	})
}

func applyAddColumns(db *tx.Database, mtx *tx.MutTx, d AddColumnsDetail) error {
	tbl := db.Table(d.TableID)
	if tbl == nil {
		return fmt.Errorf("catalog: no such table %d", d.TableID)
	}
	oldRowType := tbl.RowType
	newElements := append([]sats.ProductElement{}, oldRowType.Product.Elements...)
	for i, col := range d.NewColumns {
		newElements = append(newElements, sats.ProductElement{Name: col.ColName, Type: d.NewColumnTypes[i]})
	}
	newRowType := sats.Product(newElements...)

	newTbl, err := table.New(d.TableID, newRowType, db.Typespace, db.BlobStore)
	if err != nil {
		return err
	}
	for _, def := range tbl.IndexDefs() {
		if err := newTbl.AddIndex(def); err != nil {
			return err
		}
	}
	var rowErr error
	tbl.Scan(func(_ table.RowRef, val bsatn.Value) bool {
		pv := val.(bsatn.ProductValue)
		newElems := append(append([]bsatn.Value{}, pv.Elements...), d.Defaults...)
		if _, err := newTbl.Insert(bsatn.ProductValue{Elements: newElems}); err != nil {
			rowErr = err
			return false
		}
		return true
	})
	if rowErr != nil {
		return rowErr
	}
	if err := db.ReplaceTable(d.TableID, newTbl); err != nil {
		return err
	}

	startPos := len(oldRowType.Product.Elements)
	for i, col := range d.NewColumns {
		col.TableID = d.TableID
		col.ColPos = uint16(startPos + i)
		if _, err := mtx.Insert(TableIDStColumn, col.ToProductValue()); err != nil {
			return err
		}
	}
	return nil
}

func deleteRowsMatching(mtx *tx.MutTx, tableID uint32, match func(bsatn.ProductValue) bool) error {
	var toDelete []tx.Ref
	var scanErr error
	scanErr = mtx.Scan(tableID, func(ref tx.Ref, val bsatn.Value) bool {
		pv, ok := val.(bsatn.ProductValue)
		if ok && match(pv) {
			toDelete = append(toDelete, ref)
		}
		return true
	})
	if scanErr != nil {
		return scanErr
	}
	for _, ref := range toDelete {
		if _, err := mtx.Delete(ref); err != nil {
			return err
		}
	}
	return nil
}

// updateRowsMatching scans tableID, replacing (delete + reinsert) each row
// for which update returns matched=true, per update's rewritten value.
func updateRowsMatching(mtx *tx.MutTx, tableID uint32, update func(bsatn.ProductValue) (bsatn.ProductValue, bool, error)) error {
	type pending struct {
		ref    tx.Ref
		newVal bsatn.ProductValue
	}
	var updates []pending
	var scanErr error
	scanErr = mtx.Scan(tableID, func(ref tx.Ref, val bsatn.Value) bool {
		pv, ok := val.(bsatn.ProductValue)
		if !ok {
			return true
		}
		newPV, matched, err := update(pv)
		if err != nil {
			scanErr = err
			return false
		}
		if matched {
			updates = append(updates, pending{ref: ref, newVal: newPV})
		}
		return true
	})
	if scanErr != nil {
		return scanErr
	}
	for _, u := range updates {
		if _, err := mtx.Delete(u.ref); err != nil {
			return err
		}
		if _, err := mtx.Insert(tableID, u.newVal); err != nil {
			return err
		}
	}
	return nil
}
