// Package engine is the reducer call boundary: it opens a MutTx, decodes
// a reducer's arguments, invokes the caller-registered reducer function,
// commits or rolls back, and publishes the resulting TransactionUpdate to
// subscribers.
//
// The guest runtime that would actually execute untrusted reducer
// bytecode is out of scope (see SPEC_FULL.md's Non-goals); callers
// register a ReducerFunc directly, the same contract a host embedding
// this engine would hand down to a WASM guest after resolving one call.
//
// query_set_id / multi-tenant subscription scoping is out of scope: every
// TransactionUpdate this package publishes carries a single query set
// (ID 0) covering every table touched by the commit.
package engine
