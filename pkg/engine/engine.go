package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/spacetimedb-core/pkg/bsatn"
	"github.com/cuemby/spacetimedb-core/pkg/engine/subscription"
	applog "github.com/cuemby/spacetimedb-core/pkg/log"
	"github.com/cuemby/spacetimedb-core/pkg/metrics"
	"github.com/cuemby/spacetimedb-core/pkg/sats"
	"github.com/cuemby/spacetimedb-core/pkg/table"
	"github.com/cuemby/spacetimedb-core/pkg/tx"
)

// ReducerAppError marks a reducer-level failure: the reducer's own logic
// rejected the call (e.g. a failed precondition). It is reported back to
// the caller as Outcome's Err variant, distinct from an internal engine
// failure.
type ReducerAppError struct {
	Bytes []byte
}

func (e *ReducerAppError) Error() string {
	return fmt.Sprintf("engine: reducer rejected the call (%d bytes)", len(e.Bytes))
}

// ReducerFunc is the caller-supplied body of a registered reducer. It
// runs inside an open MutTx: any mutation it makes through mtx is folded
// into the committed database when CallReducer commits, or discarded on
// any returned error. Returning a *ReducerAppError signals an
// application-level rejection (Outcome's Err case); any other error is
// treated as an internal engine failure (Outcome's InternalError case).
type ReducerFunc func(mtx *tx.MutTx, args bsatn.Value, caller Identity, ts time.Time, budget *Budget) (bsatn.Value, error)

// ReducerDef registers one reducer's identity, argument type, optional
// return type, and body. ReturnType is nil for a reducer that never
// returns a value (Outcome's OkEmpty case at the wire boundary).
type ReducerDef struct {
	ID         uint32
	Name       string
	ArgsType   sats.AlgebraicType
	ReturnType *sats.AlgebraicType
	Func       ReducerFunc
}

// Outcome is the successful-call result of CallReducer: the reducer's
// return value (already BSATN-encoded, if any) and the
// TransactionUpdate published to subscribers as a result of its commit.
type Outcome struct {
	HasReturnValue   bool
	ReturnValueBytes []byte
	Update           *subscription.TransactionUpdate
}

// Engine is the reducer call boundary over one Database: it serializes
// reducer invocations (only one MutTx is ever live at a time, matching
// spec's single-writer concurrency model), decodes arguments, invokes
// the registered ReducerFunc, commits or rolls back, and publishes the
// resulting TransactionUpdate.
type Engine struct {
	mu sync.Mutex

	db             *tx.Database
	reducers       map[uint32]ReducerDef
	reducersByName map[string]uint32
	tableNames     map[uint32]string
	broker         *subscription.Broker
}

// New returns an Engine over db, with its own subscription broker
// started and ready to accept subscribers. tableNames maps table IDs to
// the names reported in published TableUpdates (typically the system
// catalog's st_table.table_name column); a table with no entry falls
// back to a numeric placeholder.
func New(db *tx.Database, tableNames map[uint32]string) *Engine {
	broker := subscription.NewBroker()
	broker.Start()
	names := make(map[uint32]string, len(tableNames))
	for id, name := range tableNames {
		names[id] = name
	}
	return &Engine{
		db:             db,
		reducers:       make(map[uint32]ReducerDef),
		reducersByName: make(map[string]uint32),
		tableNames:     names,
		broker:         broker,
	}
}

// RegisterReducer adds or replaces a reducer definition.
func (e *Engine) RegisterReducer(def ReducerDef) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reducers[def.ID] = def
	e.reducersByName[def.Name] = def.ID
}

// ReducerIDByName looks up a reducer's ID from its registered name, used
// by the wire-level call boundary (reducerapi), whose CallReducer
// request names a reducer rather than its numeric ID.
func (e *Engine) ReducerIDByName(name string) (uint32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.reducersByName[name]
	return id, ok
}

// RegisterTableName records the display name for tableID, used in
// published TableUpdates. Typically called once per user table as part
// of processing an AddTable migration step.
func (e *Engine) RegisterTableName(tableID uint32, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tableNames[tableID] = name
}

// Subscribe returns a new subscriber channel, fed a TransactionUpdate
// after every successful reducer call.
func (e *Engine) Subscribe() subscription.Subscriber {
	return e.broker.Subscribe()
}

// Unsubscribe detaches sub.
func (e *Engine) Unsubscribe(sub subscription.Subscriber) {
	e.broker.Unsubscribe(sub)
}

// Close stops the subscription broker. The Engine must not be used
// afterward.
func (e *Engine) Close() {
	e.broker.Stop()
}

// Broker returns the Engine's subscription broker, for callers (e.g.
// metrics collection) that need to report on it without going through
// the Subscribe/Unsubscribe pair.
func (e *Engine) Broker() *subscription.Broker {
	return e.broker
}

// CallReducer opens a MutTx, decodes argsBSATN against the registered
// reducer's ArgsType, invokes its ReducerFunc, and on success commits
// and publishes a TransactionUpdate. On any error the MutTx is rolled
// back and nothing is published.
func (e *Engine) CallReducer(
	reducerID uint32,
	argsBSATN []byte,
	caller Identity,
	ts time.Time,
	budgetLimit int64,
) (*Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	def, ok := e.reducers[reducerID]
	if !ok {
		return nil, &UnknownReducerError{ReducerID: reducerID}
	}

	rlog := applog.WithReducerID(reducerID)
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReducerCallDuration, def.Name)

	argsVal, _, err := bsatn.Decode(e.db.Typespace, def.ArgsType, argsBSATN)
	if err != nil {
		rlog.Error().Err(err).Msg("failed to decode reducer arguments")
		metrics.ReducerCallsTotal.WithLabelValues(def.Name, "internal_error").Inc()
		return nil, fmt.Errorf("engine: decoding args for reducer %q: %w", def.Name, err)
	}

	mtx := tx.BeginMut(e.db)
	budget := NewBudget(budgetLimit)

	retVal, err := def.Func(mtx, argsVal, caller, ts, budget)
	if err != nil {
		mtx.Rollback()
		rlog.Warn().Err(err).Str("reducer", def.Name).Msg("reducer call rolled back")
		metrics.ReducerCallsTotal.WithLabelValues(def.Name, "err").Inc()
		return nil, err
	}
	if budget.Remaining() <= 0 && budgetLimit > 0 {
		mtx.Rollback()
		metrics.ReducerBudgetExceededTotal.WithLabelValues(def.Name).Inc()
		metrics.ReducerCallsTotal.WithLabelValues(def.Name, "err").Inc()
		return nil, &BudgetExceededError{ReducerID: reducerID}
	}

	deletedBytes, err := captureDeletedRowBytes(e.db, mtx)
	if err != nil {
		mtx.Rollback()
		metrics.ReducerCallsTotal.WithLabelValues(def.Name, "internal_error").Inc()
		return nil, fmt.Errorf("engine: capturing deleted row bytes: %w", err)
	}

	commitTimer := metrics.NewTimer()
	result, err := mtx.Commit()
	commitTimer.ObserveDuration(metrics.CommitDuration)
	if err != nil {
		rlog.Error().Err(err).Str("reducer", def.Name).Msg("commit failed")
		metrics.ReducerCallsTotal.WithLabelValues(def.Name, "internal_error").Inc()
		return nil, fmt.Errorf("engine: committing reducer %q: %w", def.Name, err)
	}
	metrics.CommitsTotal.Inc()

	update, err := buildTransactionUpdate(e.db, result, deletedBytes, e.tableNames)
	if err != nil {
		metrics.ReducerCallsTotal.WithLabelValues(def.Name, "internal_error").Inc()
		return nil, fmt.Errorf("engine: building transaction update: %w", err)
	}
	e.broker.Publish(update)
	metrics.TransactionUpdatesPublishedTotal.Inc()

	outcome := &Outcome{Update: update}
	if def.ReturnType != nil {
		encoded, err := bsatn.Encode(e.db.Typespace, *def.ReturnType, retVal, nil)
		if err != nil {
			metrics.ReducerCallsTotal.WithLabelValues(def.Name, "internal_error").Inc()
			return nil, fmt.Errorf("engine: encoding return value for reducer %q: %w", def.Name, err)
		}
		outcome.HasReturnValue = true
		outcome.ReturnValueBytes = encoded
		metrics.ReducerCallsTotal.WithLabelValues(def.Name, "ok").Inc()
		return outcome, nil
	}
	metrics.ReducerCallsTotal.WithLabelValues(def.Name, "ok_empty").Inc()
	return outcome, nil
}

// captureDeletedRowBytes reads every row mtx has staged for deletion
// before Commit folds the overlays, since a committed table's Delete
// makes the row's value unrecoverable.
func captureDeletedRowBytes(db *tx.Database, mtx *tx.MutTx) (map[uint32]map[table.RowRef]bsatn.Value, error) {
	out := make(map[uint32]map[table.RowRef]bsatn.Value)
	for tableID, refs := range mtx.PendingDeletes() {
		tbl := db.Table(tableID)
		if tbl == nil {
			continue
		}
		vals := make(map[table.RowRef]bsatn.Value, len(refs))
		for _, ref := range refs {
			val, err := tbl.Get(ref)
			if err != nil {
				return nil, err
			}
			vals[ref] = val
		}
		out[tableID] = vals
	}
	return out, nil
}

func buildTransactionUpdate(db *tx.Database, result *tx.CommitResult, deletedBytes map[uint32]map[table.RowRef]bsatn.Value, tableNames map[uint32]string) (*subscription.TransactionUpdate, error) {
	tableIDs := make(map[uint32]bool)
	for id := range result.Inserted {
		tableIDs[id] = true
	}
	for id := range result.Deleted {
		tableIDs[id] = true
	}

	var tables []subscription.TableUpdate
	for tableID := range tableIDs {
		tbl := db.Table(tableID)
		if tbl == nil {
			continue
		}
		name, ok := tableNames[tableID]
		if !ok {
			name = fmt.Sprintf("table_%d", tableID)
		}
		upd := subscription.TableUpdate{TableName: name}

		for _, ref := range result.Inserted[tableID] {
			val, err := tbl.Get(ref)
			if err != nil {
				return nil, err
			}
			encoded, err := bsatn.Encode(db.Typespace, tbl.RowType, val, nil)
			if err != nil {
				return nil, err
			}
			upd.Inserts = append(upd.Inserts, subscription.RowChange{Row: encoded})
		}
		for _, ref := range result.Deleted[tableID] {
			val, ok := deletedBytes[tableID][ref]
			if !ok {
				continue
			}
			encoded, err := bsatn.Encode(db.Typespace, tbl.RowType, val, nil)
			if err != nil {
				return nil, err
			}
			upd.Deletes = append(upd.Deletes, subscription.RowChange{Row: encoded})
		}
		tables = append(tables, upd)
	}

	return &subscription.TransactionUpdate{
		QuerySets: []subscription.QuerySetUpdate{{QuerySetID: 0, Tables: tables}},
	}, nil
}
