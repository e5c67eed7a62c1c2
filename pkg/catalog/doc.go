// Package catalog implements the system catalog: the frozen row types and
// BFLATN layouts of the st_* system tables, schema migration planning and
// application, and a bbolt-backed snapshot store that lets the sequence
// allocator and system-table rows survive a process restart without
// replaying the commit log.
//
// Grounded on original_source/crates/core/src/db/datastore/system_tables
// (specifically test_one_point_oh_layouts.rs, which records the frozen 1.0
// BFLATN layout of every system table byte-for-byte) and spec.md's
// description of st_view/st_view_param/st_connection_credentials, which
// have no surviving original_source file and are modeled in the same style
// as the tables that do.
package catalog
