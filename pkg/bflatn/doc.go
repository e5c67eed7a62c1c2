// Package bflatn computes the in-memory row layout (BFLATN) for an
// sats.AlgebraicType: field offsets, alignment and total size for products,
// and the payload-then-tag arrangement for sums. The layout computed here
// is consumed by pkg/page to size row slots and by pkg/bsatn to build the
// StaticBsatnValidator and KnownBsatnLayout fast paths.
package bflatn
