// Package table implements the row store: physical row storage on top of
// pkg/page, B-tree and direct secondary indexes, and unique constraint
// enforcement at insert time.
package table
