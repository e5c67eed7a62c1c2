package catalog

import (
	"github.com/cuemby/spacetimedb-core/pkg/bflatn"
	"github.com/cuemby/spacetimedb-core/pkg/sats"
)

// System table IDs are stable across schema versions and reserved below
// FirstUserTableID; user tables (and the views/sequences/indexes/
// constraints they own) are allocated starting there.
const (
	TableIDStTable                 uint32 = 0
	TableIDStColumn                uint32 = 1
	TableIDStIndex                 uint32 = 2
	TableIDStConstraint            uint32 = 3
	TableIDStSequence              uint32 = 4
	TableIDStScheduled             uint32 = 5
	TableIDStView                  uint32 = 6
	TableIDStViewParam             uint32 = 7
	TableIDStConnectionCredentials uint32 = 8
	TableIDStVar                   uint32 = 9

	// FirstUserTableID is the smallest table ID a migration may assign to
	// a user-defined table.
	FirstUserTableID uint32 = 4096
)

// colListType is the BFLATN shape of a ColList: a var-length array of column
// positions, used wherever a system table row needs to name an ordered set
// of a table's columns (a primary key, an index's or constraint's key).
func colListType() sats.AlgebraicType {
	return sats.Array(sats.U16())
}

// bytesType is the BFLATN shape used for an opaque byte blob embedded in a
// row (a pre-encoded AlgebraicType, an identity, a program hash).
func bytesType() sats.AlgebraicType {
	return sats.Array(sats.U8())
}

// StTableRowType is the row type of st_table, recording every table's
// identity, kind, visibility and (optional) primary key.
//
// Grounded on test_one_point_oh_layouts.rs's HasOnePointOhLayout impl for
// StTableRow: 24 bytes, align 4 (table_id u32, table_name string,
// table_type string, table_access string, table_primary_key
// Option<ColList>).
func StTableRowType() sats.AlgebraicType {
	return sats.Product(
		sats.ProductElement{Name: "table_id", Type: sats.U32()},
		sats.ProductElement{Name: "table_name", Type: sats.StringT()},
		sats.ProductElement{Name: "table_type", Type: sats.StringT()},
		sats.ProductElement{Name: "table_access", Type: sats.StringT()},
		sats.ProductElement{Name: "table_primary_key", Type: sats.Option(colListType())},
	)
}

// StColumnRowType is the row type of st_column: one row per column of
// every table, naming its position, name and pre-encoded AlgebraicType.
//
// Grounded on test_one_point_oh_layouts.rs: 16 bytes, align 4 (table_id
// u32, col_pos u16, col_name string, col_type bytes).
func StColumnRowType() sats.AlgebraicType {
	return sats.Product(
		sats.ProductElement{Name: "table_id", Type: sats.U32()},
		sats.ProductElement{Name: "col_pos", Type: sats.U16()},
		sats.ProductElement{Name: "col_name", Type: sats.StringT()},
		sats.ProductElement{Name: "col_type", Type: bytesType()},
	)
}

// indexAlgorithmType is the sum describing how an index projects its key:
// Unused (a reserved tag kept for layout parity with the original, whose
// payload is never written) or BTree(ColList).
func indexAlgorithmType() sats.AlgebraicType {
	return sats.Sum(
		sats.SumVariant{Name: "Unused", Type: sats.U128()},
		sats.SumVariant{Name: "BTree", Type: colListType()},
	)
}

// StIndexRowType is the row type of st_index.
//
// Grounded on test_one_point_oh_layouts.rs: 48 bytes, align 16 (index_id
// u32, table_id u32, index_name string, index_algorithm sum).
func StIndexRowType() sats.AlgebraicType {
	return sats.Product(
		sats.ProductElement{Name: "index_id", Type: sats.U32()},
		sats.ProductElement{Name: "table_id", Type: sats.U32()},
		sats.ProductElement{Name: "index_name", Type: sats.StringT()},
		sats.ProductElement{Name: "index_algorithm", Type: indexAlgorithmType()},
	)
}

// constraintDataType is the sum describing what a constraint enforces:
// Unused (reserved) or Unique(ColList).
func constraintDataType() sats.AlgebraicType {
	return sats.Sum(
		sats.SumVariant{Name: "Unused", Type: sats.U128()},
		sats.SumVariant{Name: "Unique", Type: colListType()},
	)
}

// StConstraintRowType is the row type of st_constraint.
//
// Grounded on test_one_point_oh_layouts.rs: 48 bytes, align 16
// (constraint_id u32, constraint_name string, table_id u32,
// constraint_data sum).
func StConstraintRowType() sats.AlgebraicType {
	return sats.Product(
		sats.ProductElement{Name: "constraint_id", Type: sats.U32()},
		sats.ProductElement{Name: "constraint_name", Type: sats.StringT()},
		sats.ProductElement{Name: "table_id", Type: sats.U32()},
		sats.ProductElement{Name: "constraint_data", Type: constraintDataType()},
	)
}

// StSequenceRowType is the row type of st_sequence, the persisted form of
// pkg/sequence.Schema plus its allocated watermark.
//
// Grounded on test_one_point_oh_layouts.rs: 96 bytes, align 16
// (sequence_id u32, sequence_name string, table_id u32, col_pos u16,
// increment/start/min_value/max_value/allocated each i128).
func StSequenceRowType() sats.AlgebraicType {
	return sats.Product(
		sats.ProductElement{Name: "sequence_id", Type: sats.U32()},
		sats.ProductElement{Name: "sequence_name", Type: sats.StringT()},
		sats.ProductElement{Name: "table_id", Type: sats.U32()},
		sats.ProductElement{Name: "col_pos", Type: sats.U16()},
		sats.ProductElement{Name: "increment", Type: sats.I128()},
		sats.ProductElement{Name: "start", Type: sats.I128()},
		sats.ProductElement{Name: "min_value", Type: sats.I128()},
		sats.ProductElement{Name: "max_value", Type: sats.I128()},
		sats.ProductElement{Name: "allocated", Type: sats.I128()},
	)
}

// StScheduledRowType is the row type of st_scheduled, marking a table as
// reducer-scheduled by naming the reducer (reducer_name) its rows are for.
// Nothing in this module dispatches those rows to the reducer.
//
// Grounded on test_one_point_oh_layouts.rs: 16 bytes, align 4
// (schedule_id u32, table_id u32, reducer_name string, schedule_name
// string).
func StScheduledRowType() sats.AlgebraicType {
	return sats.Product(
		sats.ProductElement{Name: "schedule_id", Type: sats.U32()},
		sats.ProductElement{Name: "table_id", Type: sats.U32()},
		sats.ProductElement{Name: "reducer_name", Type: sats.StringT()},
		sats.ProductElement{Name: "schedule_name", Type: sats.StringT()},
	)
}

// StViewRowType is the row type of st_view. Unlike a base table, a view
// has no page storage of its own: only its definition (view_query and its
// parameters) is stored, and nothing in this module executes view_query.
// The definition is replaced wholesale by UpdateView.
//
// No original_source file survived pack filtering for views (the system-
// tables module predates the view feature in the filtered snapshot); this
// layout is modeled in the same field-naming and sizing style as
// StTableRow/StIndexRow above rather than ported from a specific source.
func StViewRowType() sats.AlgebraicType {
	return sats.Product(
		sats.ProductElement{Name: "view_id", Type: sats.U32()},
		sats.ProductElement{Name: "view_name", Type: sats.StringT()},
		sats.ProductElement{Name: "view_access", Type: sats.StringT()},
		sats.ProductElement{Name: "view_query", Type: sats.StringT()},
	)
}

// StViewParamRowType is the row type of st_view_param: one row per bound
// parameter of a view's query, in position order.
func StViewParamRowType() sats.AlgebraicType {
	return sats.Product(
		sats.ProductElement{Name: "view_id", Type: sats.U32()},
		sats.ProductElement{Name: "param_pos", Type: sats.U16()},
		sats.ProductElement{Name: "param_name", Type: sats.StringT()},
		sats.ProductElement{Name: "param_type", Type: bytesType()},
	)
}

// StConnectionCredentialsRowType is the row type of
// st_connection_credentials: one row per connected caller identity,
// analogous to the original's st_client but named for this spec's scope
// (credential bookkeeping, not live client dispatch — the guest runtime
// and its connection table are out of scope per spec.md's Non-goals).
func StConnectionCredentialsRowType() sats.AlgebraicType {
	return sats.Product(
		sats.ProductElement{Name: "identity", Type: bytesType()},
		sats.ProductElement{Name: "address", Type: bytesType()},
		sats.ProductElement{Name: "token_hash", Type: bytesType()},
		sats.ProductElement{Name: "connected_at", Type: sats.I64()},
	)
}

// stVarValueType is the sum st_var.value holds: one variant per primitive
// scalar kind, matching the original's StVarRow exactly.
func stVarValueType() sats.AlgebraicType {
	return sats.Sum(
		sats.SumVariant{Name: "Bool", Type: sats.Bool()},
		sats.SumVariant{Name: "I8", Type: sats.I8()},
		sats.SumVariant{Name: "U8", Type: sats.U8()},
		sats.SumVariant{Name: "I16", Type: sats.I16()},
		sats.SumVariant{Name: "U16", Type: sats.U16()},
		sats.SumVariant{Name: "I32", Type: sats.I32()},
		sats.SumVariant{Name: "U32", Type: sats.U32()},
		sats.SumVariant{Name: "I64", Type: sats.I64()},
		sats.SumVariant{Name: "U64", Type: sats.U64()},
		sats.SumVariant{Name: "I128", Type: sats.I128()},
		sats.SumVariant{Name: "U128", Type: sats.U128()},
		sats.SumVariant{Name: "F32", Type: sats.F32()},
		sats.SumVariant{Name: "F64", Type: sats.F64()},
		sats.SumVariant{Name: "String", Type: sats.StringT()},
	)
}

// StVarRowType is the row type of st_var: a named slot in the global
// configuration table (e.g. row/byte budgets), holding one of
// stVarValueType's scalar kinds.
//
// Grounded on test_one_point_oh_layouts.rs: 48 bytes, align 16 (name
// string, value sum).
func StVarRowType() sats.AlgebraicType {
	return sats.Product(
		sats.ProductElement{Name: "name", Type: sats.StringT()},
		sats.ProductElement{Name: "value", Type: stVarValueType()},
	)
}

// SystemSchema holds every system table's row type and its BFLATN layout,
// computed once and shared read-only by every Database: the layouts are
// frozen at v1.0 by spec and must never be recomputed or allowed to drift
// as the row types above evolve.
type SystemSchema struct {
	Typespace *sats.Typespace

	RowTypes map[uint32]sats.AlgebraicType
	Layouts  map[uint32]bflatn.Layout
	Names    map[uint32]string
}

var systemSchema *SystemSchema

func init() {
	ts := sats.NewTypespace(nil)
	rowTypes := map[uint32]sats.AlgebraicType{
		TableIDStTable:                 StTableRowType(),
		TableIDStColumn:                StColumnRowType(),
		TableIDStIndex:                 StIndexRowType(),
		TableIDStConstraint:            StConstraintRowType(),
		TableIDStSequence:              StSequenceRowType(),
		TableIDStScheduled:             StScheduledRowType(),
		TableIDStView:                  StViewRowType(),
		TableIDStViewParam:             StViewParamRowType(),
		TableIDStConnectionCredentials: StConnectionCredentialsRowType(),
		TableIDStVar:                   StVarRowType(),
	}
	names := map[uint32]string{
		TableIDStTable:                 "st_table",
		TableIDStColumn:                "st_column",
		TableIDStIndex:                 "st_index",
		TableIDStConstraint:            "st_constraint",
		TableIDStSequence:              "st_sequence",
		TableIDStScheduled:             "st_scheduled",
		TableIDStView:                  "st_view",
		TableIDStViewParam:             "st_view_param",
		TableIDStConnectionCredentials: "st_connection_credentials",
		TableIDStVar:                   "st_var",
	}
	layouts := make(map[uint32]bflatn.Layout, len(rowTypes))
	for id, rowType := range rowTypes {
		layout, err := bflatn.Compute(ts, rowType)
		if err != nil {
			panic("catalog: failed to compute frozen system table layout for " + names[id] + ": " + err.Error())
		}
		layouts[id] = layout
	}
	systemSchema = &SystemSchema{Typespace: ts, RowTypes: rowTypes, Layouts: layouts, Names: names}
}

// Schema returns the process-wide frozen system schema.
func Schema() *SystemSchema { return systemSchema }
