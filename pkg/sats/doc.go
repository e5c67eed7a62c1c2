// Package sats implements the SpacetimeDB Algebraic Type System: the closed
// set of structural types (AlgebraicType) used to describe table rows,
// reducer arguments and every other value that crosses the BSATN wire
// format, plus the Typespace that gives meaning to type references within
// a single module.
package sats
