package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribePublishDelivers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)
	assert.Equal(t, 1, b.SubscriberCount())

	update := &TransactionUpdate{QuerySets: []QuerySetUpdate{
		{QuerySetID: 0, Tables: []TableUpdate{{TableName: "players", Inserts: []RowChange{{Row: []byte{1, 2, 3}}}}}},
	}}
	b.Publish(update)

	select {
	case got := <-sub:
		require.NotNil(t, got)
		assert.Equal(t, update, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, ok := <-sub
	assert.False(t, ok, "channel should be closed after Unsubscribe")
}

func TestPublishSkipsFullSubscriberBuffer(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for i := 0; i < 60; i++ {
		b.Publish(&TransactionUpdate{})
	}
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, len(sub), 50)
}
