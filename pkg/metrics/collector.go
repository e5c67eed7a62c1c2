package metrics

import (
	"fmt"
	"time"

	"github.com/cuemby/spacetimedb-core/pkg/commitlog"
	"github.com/cuemby/spacetimedb-core/pkg/engine/subscription"
	"github.com/cuemby/spacetimedb-core/pkg/tx"
)

// Collector periodically samples a running database's gauges: row counts
// per table, commit log segment/offset progress, sequence allocation
// watermarks, and subscriber count. Counter/histogram metrics (commits,
// reducer calls) are updated inline by their callers instead, since those
// are per-event rather than point-in-time samples.
type Collector struct {
	db         *tx.Database
	tableNames map[uint32]string
	commitLog  *commitlog.Log
	broker     *subscription.Broker

	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector returns a Collector sampling db's tables (named via
// tableNames, falling back to "table_<id>"), commitLog's segment/offset
// counters, and broker's subscriber count. commitLog and broker may be
// nil if not wired up by the caller.
func NewCollector(db *tx.Database, tableNames map[uint32]string, commitLog *commitlog.Log, broker *subscription.Broker) *Collector {
	return &Collector{
		db:         db,
		tableNames: tableNames,
		commitLog:  commitLog,
		broker:     broker,
		interval:   15 * time.Second,
		stopCh:     make(chan struct{}),
	}
}

// Start begins periodic collection in a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectTableMetrics()
	c.collectSequenceMetrics()
	c.collectCommitLogMetrics()
	c.collectSubscriptionMetrics()
}

func (c *Collector) tableLabel(tableID uint32) string {
	if name, ok := c.tableNames[tableID]; ok {
		return name
	}
	return fmt.Sprintf("table_%d", tableID)
}

func (c *Collector) collectTableMetrics() {
	for _, tableID := range c.db.TableIDs() {
		tbl := c.db.Table(tableID)
		if tbl == nil {
			continue
		}
		RowsTotal.WithLabelValues(c.tableLabel(tableID)).Set(float64(tbl.RowCount()))
	}
}

func (c *Collector) collectSequenceMetrics() {
	for _, seq := range c.db.Sequences.All() {
		SequenceAllocatedWatermark.WithLabelValues(fmt.Sprintf("%d", seq.ID())).Set(float64(seq.Allocated()))
	}
}

func (c *Collector) collectCommitLogMetrics() {
	if c.commitLog == nil {
		return
	}
	CommitLogSegmentsTotal.Set(float64(len(c.commitLog.Segments())))
	CommitLogNextTxOffset.Set(float64(c.commitLog.NextTxOffset()))
}

func (c *Collector) collectSubscriptionMetrics() {
	if c.broker == nil {
		return
	}
	SubscribersTotal.Set(float64(c.broker.SubscriberCount()))
}
