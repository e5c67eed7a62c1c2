package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/spacetimedb-core/pkg/bsatn"
	"github.com/cuemby/spacetimedb-core/pkg/sats"
	"github.com/cuemby/spacetimedb-core/pkg/table"
	"github.com/cuemby/spacetimedb-core/pkg/tx"
)

const playersTable uint32 = 1

func playerRowType() sats.AlgebraicType {
	return sats.Product(
		sats.ProductElement{Name: "id", Type: sats.U64()},
		sats.ProductElement{Name: "name", Type: sats.StringT()},
	)
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	db := tx.NewDatabase(sats.NewTypespace(nil))
	_, err := db.AddTable(playersTable, playerRowType())
	require.NoError(t, err)
	require.NoError(t, db.Table(playersTable).AddIndex(table.IndexDef{
		ID: 1, Name: "id_unique", Cols: []int{0}, Kind: table.IndexKindBTree, IsUnique: true,
	}))
	e := New(db, map[uint32]string{playersTable: "players"})
	t.Cleanup(e.Close)
	return e
}

func addPlayerArgsType() sats.AlgebraicType {
	return sats.Product(
		sats.ProductElement{Name: "id", Type: sats.U64()},
		sats.ProductElement{Name: "name", Type: sats.StringT()},
	)
}

func addPlayerReducer() ReducerDef {
	return ReducerDef{
		ID: 1, Name: "add_player", ArgsType: addPlayerArgsType(),
		Func: func(mtx *tx.MutTx, args bsatn.Value, caller Identity, ts time.Time, budget *Budget) (bsatn.Value, error) {
			pv := args.(bsatn.ProductValue)
			_, err := mtx.Insert(playersTable, pv)
			return nil, err
		},
	}
}

func encodeArgs(t *testing.T, ts *sats.Typespace, argType sats.AlgebraicType, val bsatn.Value) []byte {
	t.Helper()
	encoded, err := bsatn.Encode(ts, argType, val, nil)
	require.NoError(t, err)
	return encoded
}

func TestCallReducerCommitsAndPublishesUpdate(t *testing.T) {
	e := newTestEngine(t)
	e.RegisterReducer(addPlayerReducer())

	sub := e.Subscribe()
	defer e.Unsubscribe(sub)

	args := encodeArgs(t, e.db.Typespace, addPlayerArgsType(), bsatn.ProductValue{Elements: []bsatn.Value{uint64(1), "ada"}})
	outcome, err := e.CallReducer(1, args, Identity{}, time.Now(), 1000)
	require.NoError(t, err)
	require.NotNil(t, outcome.Update)
	require.Len(t, outcome.Update.QuerySets, 1)
	require.Len(t, outcome.Update.QuerySets[0].Tables, 1)
	assert.Equal(t, "players", outcome.Update.QuerySets[0].Tables[0].TableName)
	assert.Len(t, outcome.Update.QuerySets[0].Tables[0].Inserts, 1)

	select {
	case got := <-sub:
		assert.Equal(t, outcome.Update, got)
	case <-time.After(time.Second):
		t.Fatal("expected update to be published to subscriber")
	}

	assert.Equal(t, 1, e.db.Table(playersTable).RowCount())
}

func TestCallReducerRollsBackOnReducerError(t *testing.T) {
	e := newTestEngine(t)
	boom := errors.New("boom")
	e.RegisterReducer(ReducerDef{
		ID: 2, Name: "always_fails", ArgsType: addPlayerArgsType(),
		Func: func(mtx *tx.MutTx, args bsatn.Value, caller Identity, ts time.Time, budget *Budget) (bsatn.Value, error) {
			pv := args.(bsatn.ProductValue)
			_, _ = mtx.Insert(playersTable, pv)
			return nil, boom
		},
	})

	args := encodeArgs(t, e.db.Typespace, addPlayerArgsType(), bsatn.ProductValue{Elements: []bsatn.Value{uint64(1), "ada"}})
	_, err := e.CallReducer(2, args, Identity{}, time.Now(), 1000)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, e.db.Table(playersTable).RowCount())
}

func TestCallReducerUnknownReducerID(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CallReducer(999, nil, Identity{}, time.Now(), 1000)
	require.Error(t, err)
	var unknownErr *UnknownReducerError
	assert.ErrorAs(t, err, &unknownErr)
}

func TestCallReducerDeleteProducesDeleteRowChange(t *testing.T) {
	e := newTestEngine(t)
	e.RegisterReducer(addPlayerReducer())
	e.RegisterReducer(ReducerDef{
		ID: 3, Name: "remove_player", ArgsType: addPlayerArgsType(),
		Func: func(mtx *tx.MutTx, args bsatn.Value, caller Identity, ts time.Time, budget *Budget) (bsatn.Value, error) {
			var delErr error
			require.NoError(t, mtx.Scan(playersTable, func(ref tx.Ref, val bsatn.Value) bool {
				_, delErr = mtx.Delete(ref)
				return false
			}))
			return nil, delErr
		},
	})

	args := encodeArgs(t, e.db.Typespace, addPlayerArgsType(), bsatn.ProductValue{Elements: []bsatn.Value{uint64(1), "ada"}})
	_, err := e.CallReducer(1, args, Identity{}, time.Now(), 1000)
	require.NoError(t, err)

	outcome, err := e.CallReducer(3, args, Identity{}, time.Now(), 1000)
	require.NoError(t, err)
	require.Len(t, outcome.Update.QuerySets[0].Tables, 1)
	assert.Len(t, outcome.Update.QuerySets[0].Tables[0].Deletes, 1)
	assert.Equal(t, 0, e.db.Table(playersTable).RowCount())
}
