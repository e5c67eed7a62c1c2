package reducerapi

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cuemby/spacetimedb-core/pkg/bsatn"
	"github.com/cuemby/spacetimedb-core/pkg/engine"
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

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db := tx.NewDatabase(sats.NewTypespace(nil))
	_, err := db.AddTable(playersTable, playerRowType())
	require.NoError(t, err)
	require.NoError(t, db.Table(playersTable).AddIndex(table.IndexDef{
		ID: 1, Name: "id_unique", Cols: []int{0}, Kind: table.IndexKindBTree, IsUnique: true,
	}))

	eng := engine.New(db, map[uint32]string{playersTable: "players"})
	eng.RegisterReducer(engine.ReducerDef{
		ID: 1, Name: "add_player", ArgsType: playerRowType(),
		Func: func(mtx *tx.MutTx, args bsatn.Value, caller engine.Identity, ts time.Time, budget *engine.Budget) (bsatn.Value, error) {
			_, err := mtx.Insert(playersTable, args)
			return nil, err
		},
	})

	srv := NewServer(eng, 1000)
	t.Cleanup(func() {
		srv.Stop()
		eng.Close()
	})
	return srv
}

// startTestServer brings a Server up on a loopback listener and returns a
// dialed client talking to it over this package's JSON codec.
func startTestServer(t *testing.T) (*Server, ReducerServiceClient) {
	t.Helper()
	srv := newTestServer(t)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv.grpc = grpc.NewServer()
	RegisterReducerServiceServer(srv.grpc, srv)
	go srv.grpc.Serve(lis)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return srv, NewReducerServiceClient(conn)
}

func TestCallReducerOverGRPCRoundTrips(t *testing.T) {
	_, client := startTestServer(t)

	args, err := bsatn.Encode(sats.NewTypespace(nil), playerRowType(), bsatn.ProductValue{Elements: []bsatn.Value{uint64(7), "grace"}}, nil)
	require.NoError(t, err)

	result, err := client.CallReducer(context.Background(), &CallReducerRequest{
		RequestID: 42, Reducer: "add_player", Args: args,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(42), result.RequestID)
	assert.Equal(t, OutcomeOkEmpty, result.Outcome)
	require.NotNil(t, result.Update)
	require.Len(t, result.Update.QuerySets, 1)
	require.Len(t, result.Update.QuerySets[0].Tables, 1)
	assert.Equal(t, "players", result.Update.QuerySets[0].Tables[0].TableName)
	require.Len(t, result.Update.QuerySets[0].Tables[0].Inserts, 1)
}

func TestCallReducerOverGRPCUnknownReducerReturnsInternalError(t *testing.T) {
	_, client := startTestServer(t)

	result, err := client.CallReducer(context.Background(), &CallReducerRequest{
		RequestID: 1, Reducer: "does_not_exist",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeInternalError, result.Outcome)
	assert.Contains(t, result.InternalError, "does_not_exist")
}

func TestServerCallReducerDirectSuccessReturnsOkEmpty(t *testing.T) {
	srv := newTestServer(t)
	args, err := bsatn.Encode(sats.NewTypespace(nil), playerRowType(), bsatn.ProductValue{Elements: []bsatn.Value{uint64(1), "ada"}}, nil)
	require.NoError(t, err)

	result, err := srv.CallReducer(context.Background(), &CallReducerRequest{RequestID: 2, Reducer: "add_player", Args: args})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOkEmpty, result.Outcome)
	require.NotNil(t, result.Update)
	require.Len(t, result.Update.QuerySets, 1)
	assert.Equal(t, "players", result.Update.QuerySets[0].Tables[0].TableName)
}

func TestServerCallReducerDirectUnknownNameReturnsInternalError(t *testing.T) {
	srv := newTestServer(t)
	result, err := srv.CallReducer(context.Background(), &CallReducerRequest{RequestID: 1, Reducer: "does_not_exist"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeInternalError, result.Outcome)
	assert.Contains(t, result.InternalError, "does_not_exist")
}
