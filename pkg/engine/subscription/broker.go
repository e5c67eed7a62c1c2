package subscription

import "sync"

// RowChange is one row's BSATN-encoded bytes, reported as either an
// insert or a delete within a TableUpdate.
type RowChange struct {
	Row []byte
}

// TableUpdate carries one table's row-level changes from a single commit.
type TableUpdate struct {
	TableName string
	Inserts   []RowChange
	Deletes   []RowChange
}

// QuerySetUpdate groups TableUpdates under a query set. This engine
// implements a single default query set per subscriber (query_set_id
// 0); multi-query-set/multi-tenant scoping is out of scope (see
// Engine's package doc).
type QuerySetUpdate struct {
	QuerySetID uint32
	Tables     []TableUpdate
}

// TransactionUpdate is published to every subscriber once per successful
// reducer transaction.
type TransactionUpdate struct {
	QuerySets []QuerySetUpdate
}

// Subscriber is a channel that receives TransactionUpdates.
type Subscriber chan *TransactionUpdate

// Broker distributes TransactionUpdates to every currently-subscribed
// client. Publish never blocks on a stalled subscriber: a full
// subscriber buffer simply drops the update for that subscriber, same as
// the cluster event broker this is adapted from.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	updateCh    chan *TransactionUpdate
	stopCh      chan struct{}
}

// NewBroker returns a broker with no subscribers, not yet started.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		updateCh:    make(chan *TransactionUpdate, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop in its own goroutine.
func (b *Broker) Start() {
	go b.run()
}

// Stop halts the distribution loop. Subscribers are not closed; callers
// that want a clean shutdown should Unsubscribe each one first.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe registers a new subscriber with a 50-update buffer.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes sub.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, sub)
	close(sub)
}

// Publish enqueues update for distribution, waiting while the update
// queue is full. Once the broker has been stopped it returns at once
// without enqueuing.
func (b *Broker) Publish(update *TransactionUpdate) {
	select {
	case b.updateCh <- update:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case update := <-b.updateCh:
			b.broadcast(update)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(update *TransactionUpdate) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- update:
		default:
		}
	}
}

// SubscriberCount returns the number of currently-attached subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
