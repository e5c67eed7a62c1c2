// Package subscription is an in-memory broker that fans TransactionUpdates
// out to subscribed clients after each committed reducer call.
//
// It is the same non-blocking publish / buffered-subscriber-channel shape
// as a general-purpose pub/sub broker: one shared publish channel feeding a
// broadcast loop, which pushes to each subscriber's own buffered channel
// without blocking on a slow or stalled consumer. The one deliberate
// narrowing from that general shape is the payload type: this broker only
// ever carries TransactionUpdate, and there is no topic filtering — every
// subscriber currently attached receives every update, matching the
// single-query-set scope this engine implements (see Engine's package doc
// for the query_set_id scoping this leaves out).
package subscription
