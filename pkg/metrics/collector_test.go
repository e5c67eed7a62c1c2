package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cuemby/spacetimedb-core/pkg/bsatn"
	"github.com/cuemby/spacetimedb-core/pkg/engine/subscription"
	"github.com/cuemby/spacetimedb-core/pkg/sats"
	"github.com/cuemby/spacetimedb-core/pkg/table"
	"github.com/cuemby/spacetimedb-core/pkg/tx"
)

func newTestDatabase(t *testing.T) (*tx.Database, uint32) {
	t.Helper()
	const tableID uint32 = 1
	rowType := sats.Product(
		sats.ProductElement{Name: "id", Type: sats.U64()},
		sats.ProductElement{Name: "name", Type: sats.StringT()},
	)
	db := tx.NewDatabase(sats.NewTypespace(nil))
	if _, err := db.AddTable(tableID, rowType); err != nil {
		t.Fatalf("AddTable: %v", err)
	}
	if err := db.Table(tableID).AddIndex(table.IndexDef{
		ID: 1, Name: "id_unique", Cols: []int{0}, Kind: table.IndexKindBTree, IsUnique: true,
	}); err != nil {
		t.Fatalf("AddIndex: %v", err)
	}
	return db, tableID
}

func TestCollectorSamplesTableRowCount(t *testing.T) {
	db, tableID := newTestDatabase(t)
	mtx := tx.BeginMut(db)
	pv := bsatn.ProductValue{Elements: []bsatn.Value{uint64(1), "ada"}}
	if _, err := mtx.Insert(tableID, pv); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := mtx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	c := NewCollector(db, map[uint32]string{tableID: "players"}, nil, nil)
	c.collectTableMetrics()

	got := testutil.ToFloat64(RowsTotal.WithLabelValues("players"))
	if got != 1 {
		t.Errorf("RowsTotal[players] = %v, want 1", got)
	}
}

func TestCollectorSamplesSubscriberCount(t *testing.T) {
	db, _ := newTestDatabase(t)
	broker := subscription.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	c := NewCollector(db, nil, nil, broker)
	c.collectSubscriptionMetrics()

	got := testutil.ToFloat64(SubscribersTotal)
	if got != 1 {
		t.Errorf("SubscribersTotal = %v, want 1", got)
	}
}
