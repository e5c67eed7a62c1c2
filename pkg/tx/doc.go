// Package tx implements the MVCC transaction overlay: MutTx's per-table
// insert/delete overlays over a committed database state, the
// CommittedNoTxDeletes -> CommittedWithTxDeletes -> CurrentTx scan order,
// and commit/rollback.
package tx
