// Package bsatn implements the BSATN wire format: the byte-level encoding
// of sats.AlgebraicType values exchanged with clients and persisted to the
// commit log.
//
// Two code paths exist, mirroring the original engine:
//
//   - The recursive slow path (Encode/Decode) walks an sats.AlgebraicType
//     and a matching Value tree directly; it always works, for any type.
//   - The fast path (StaticBsatnValidator for decode, KnownBsatnLayout for
//     encode) applies only to row types with a statically known, padding-
//     free BSATN length: no var-len members, and every sum's variants
//     share one live length. It compiles, once per row type, a flat
//     bytecode validator and a list of memcpy fields, so that converting
//     a row to or from BSATN degenerates into a handful of bounds-checked
//     memcpy calls instead of a recursive walk.
package bsatn
