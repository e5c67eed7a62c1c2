package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/spacetimedb-core/pkg/bsatn"
	"github.com/cuemby/spacetimedb-core/pkg/sats"
	"github.com/cuemby/spacetimedb-core/pkg/sequence"
	"github.com/cuemby/spacetimedb-core/pkg/table"
	"github.com/cuemby/spacetimedb-core/pkg/tx"
)

func newCatalogDB(t *testing.T) *tx.Database {
	t.Helper()
	db := tx.NewDatabase(Schema().Typespace)
	for id, rt := range Schema().RowTypes {
		_, err := db.AddTable(id, rt)
		require.NoError(t, err)
	}
	return db
}

func playerRowType() sats.AlgebraicType {
	return sats.Product(
		sats.ProductElement{Name: "id", Type: sats.U64()},
		sats.ProductElement{Name: "name", Type: sats.StringT()},
	)
}

func TestApplyManualPlanReturnsNotImplemented(t *testing.T) {
	db := newCatalogDB(t)
	mtx := tx.BeginMut(db)
	_, err := Apply(db, mtx, MigratePlan{Kind: PlanManual})
	require.Error(t, err)
	var niErr *NotImplementedError
	assert.ErrorAs(t, err, &niErr)
}

func TestApplyAddTableInsertsSystemRows(t *testing.T) {
	db := newCatalogDB(t)
	mtx := tx.BeginMut(db)

	plan := MigratePlan{Kind: PlanAuto, Steps: []Step{
		{Kind: StepAddTable, Detail: AddTableDetail{
			TableID: FirstUserTableID, Name: "players", RowType: playerRowType(), Access: "public",
			Columns: []ColumnRow{
				{ColPos: 0, ColName: "id", ColType: []byte{0x01}},
				{ColPos: 1, ColName: "name", ColType: []byte{0x02}},
			},
		}},
	}}
	disconnect, err := Apply(db, mtx, plan)
	require.NoError(t, err)
	assert.False(t, disconnect)

	require.NotNil(t, db.Table(FirstUserTableID))

	var tableRows int
	require.NoError(t, mtx.Scan(TableIDStTable, func(_ tx.Ref, val bsatn.Value) bool {
		tableRows++
		return true
	}))
	assert.Equal(t, 1, tableRows)

	var columnRows int
	require.NoError(t, mtx.Scan(TableIDStColumn, func(_ tx.Ref, val bsatn.Value) bool {
		columnRows++
		return true
	}))
	assert.Equal(t, 2, columnRows)
}

func TestApplyAddSequenceRejectsConflictingRange(t *testing.T) {
	db := newCatalogDB(t)
	_, err := db.AddTable(FirstUserTableID, playerRowType())
	require.NoError(t, err)

	mtx := tx.BeginMut(db)
	_, err = mtx.Insert(FirstUserTableID, bsatn.ProductValue{Elements: []bsatn.Value{uint64(5), "ada"}})
	require.NoError(t, err)

	schema := sequence.Schema{SequenceID: 1, TableID: FirstUserTableID, ColPos: 0, Name: "id_seq", Start: 1, MinValue: 0, MaxValue: 100, Increment: 1}
	err = CheckAddSequenceRangeValid(mtx, FirstUserTableID, 0, schema)
	assert.Error(t, err)
	var rangeErr *InvalidSequenceRangeError
	assert.ErrorAs(t, err, &rangeErr)
}

func TestApplyAddSequenceAcceptsNonConflictingRange(t *testing.T) {
	db := newCatalogDB(t)
	_, err := db.AddTable(FirstUserTableID, playerRowType())
	require.NoError(t, err)

	mtx := tx.BeginMut(db)
	_, err = mtx.Insert(FirstUserTableID, bsatn.ProductValue{Elements: []bsatn.Value{uint64(5), "ada"}})
	require.NoError(t, err)

	schema := sequence.Schema{SequenceID: 1, TableID: FirstUserTableID, ColPos: 0, Name: "id_seq", Start: 200, MinValue: 200, MaxValue: 300, Increment: 1}
	err = CheckAddSequenceRangeValid(mtx, FirstUserTableID, 0, schema)
	assert.NoError(t, err)
}

func TestApplyAddColumnsBackfillsDefaults(t *testing.T) {
	db := newCatalogDB(t)
	_, err := db.AddTable(FirstUserTableID, playerRowType())
	require.NoError(t, err)
	mtx := tx.BeginMut(db)
	_, err = mtx.Insert(FirstUserTableID, bsatn.ProductValue{Elements: []bsatn.Value{uint64(5), "ada"}})
	require.NoError(t, err)
	_, err = mtx.Commit()
	require.NoError(t, err)

	mtx2 := tx.BeginMut(db)
	plan := MigratePlan{Kind: PlanAuto, Steps: []Step{
		{Kind: StepAddColumns, Detail: AddColumnsDetail{
			TableID:        FirstUserTableID,
			NewColumns:     []ColumnRow{{ColName: "level", ColType: []byte{0x03}}},
			NewColumnTypes: []sats.AlgebraicType{sats.U32()},
			Defaults:       []bsatn.Value{uint32(1)},
		}},
	}}
	_, err = Apply(db, mtx2, plan)
	require.NoError(t, err)

	tbl := db.Table(FirstUserTableID)
	require.NotNil(t, tbl)
	var rows []bsatn.ProductValue
	tbl.Scan(func(_ table.RowRef, val bsatn.Value) bool {
		rows = append(rows, val.(bsatn.ProductValue))
		return true
	})
	require.Len(t, rows, 1)
	assert.Len(t, rows[0].Elements, 3)
	assert.Equal(t, uint32(1), rows[0].Elements[2])
}

func TestApplyChangeColumnsRejectsIncompatibleWithoutConvert(t *testing.T) {
	db := newCatalogDB(t)
	_, err := db.AddTable(FirstUserTableID, playerRowType())
	require.NoError(t, err)
	mtx := tx.BeginMut(db)
	_, err = mtx.Insert(FirstUserTableID, bsatn.ProductValue{Elements: []bsatn.Value{uint64(5), "ada"}})
	require.NoError(t, err)
	_, err = mtx.Commit()
	require.NoError(t, err)

	mtx2 := tx.BeginMut(db)
	newType := sats.Product(
		sats.ProductElement{Name: "id", Type: sats.U64()},
	)
	plan := MigratePlan{Kind: PlanAuto, Steps: []Step{
		{Kind: StepChangeColumns, Detail: ChangeColumnsDetail{TableID: FirstUserTableID, NewRowType: newType}},
	}}
	_, err = Apply(db, mtx2, plan)
	require.Error(t, err)
	var incompatErr *IncompatibleColumnChangeError
	assert.ErrorAs(t, err, &incompatErr)
}

func TestApplyDisconnectAllUsersSignalsCaller(t *testing.T) {
	db := newCatalogDB(t)
	mtx := tx.BeginMut(db)
	plan := MigratePlan{Kind: PlanAuto, Steps: []Step{{Kind: StepDisconnectAllUsers}}}
	disconnect, err := Apply(db, mtx, plan)
	require.NoError(t, err)
	assert.True(t, disconnect)
}
