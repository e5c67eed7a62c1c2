package bsatn

import (
	"github.com/cuemby/spacetimedb-core/pkg/bflatn"
	"github.com/cuemby/spacetimedb-core/pkg/sats"
)

// MemcpyField identifies a contiguous run of bytes within a BFLATN row
// that can be copied directly into a BSATN buffer, because the source
// range contains no padding.
type MemcpyField struct {
	BflatnOffset int
	BsatnOffset  int
	Length       int
}

// KnownBsatnLayout is a precomputed plan for converting a BFLATN row into
// its BSATN encoding via a sequence of memcpys, used when the row type has
// a constant BSATN length. Contract: for every value of the row type,
// emitting via this fast path is byte-identical to emitting via the
// recursive Encode.
type KnownBsatnLayout struct {
	BsatnLength int
	Fields      []MemcpyField
}

// SerializeRowInto writes row's BSATN encoding into buf using this
// layout's memcpy plan. buf must be at least BsatnLength bytes, and row
// must be a fully initialized BFLATN row of the type this layout was
// built for.
func (k *KnownBsatnLayout) SerializeRowInto(buf []byte, row []byte) {
	for _, f := range k.Fields {
		copy(buf[f.BsatnOffset:f.BsatnOffset+f.Length], row[f.BflatnOffset:f.BflatnOffset+f.Length])
	}
}

// DeserializeRowFrom writes buf's BSATN-encoded fields into row using this
// layout's memcpy plan run in reverse, the fast-path counterpart to
// SerializeRowInto. Callers must confirm buf satisfies the row type's
// BFLATN invariants (e.g. via StaticBsatnValidator.Validate) before
// calling this, since it performs no validation of its own.
func (k *KnownBsatnLayout) DeserializeRowFrom(row []byte, buf []byte) {
	for _, f := range k.Fields {
		copy(row[f.BflatnOffset:f.BflatnOffset+f.Length], buf[f.BsatnOffset:f.BsatnOffset+f.Length])
	}
}

// BuildKnownBsatnLayout computes the fast encode plan for a row's BFLATN
// layout, or ok=false if the row contains a var-len member (String,
// Array) or a Sum whose variants don't all reduce to the same
// KnownBsatnLayout — in both cases the row's BSATN length isn't a
// constant and the recursive Encode must be used instead.
func BuildKnownBsatnLayout(product bflatn.Layout) (*KnownBsatnLayout, bool) {
	b := newLayoutBuilder()
	if !b.visitProduct(product) {
		return nil, false
	}
	return b.build(), true
}

type layoutBuilder struct {
	fields []MemcpyField
}

func newLayoutBuilder() *layoutBuilder {
	return &layoutBuilder{fields: []MemcpyField{{}}}
}

func (b *layoutBuilder) build() *KnownBsatnLayout {
	fields := make([]MemcpyField, 0, len(b.fields))
	for _, f := range b.fields {
		if f.Length != 0 {
			fields = append(fields, f)
		}
	}
	bsatnLength := 0
	if len(fields) > 0 {
		last := fields[len(fields)-1]
		bsatnLength = last.BsatnOffset + last.Length
	}
	return &KnownBsatnLayout{BsatnLength: bsatnLength, Fields: fields}
}

func (b *layoutBuilder) currentField() *MemcpyField {
	return &b.fields[len(b.fields)-1]
}

func (b *layoutBuilder) nextBflatnOffset() int {
	f := b.currentField()
	return f.BflatnOffset + f.Length
}

func (b *layoutBuilder) nextBsatnOffset() int {
	f := b.currentField()
	return f.BsatnOffset + f.Length
}

func (b *layoutBuilder) visitProduct(product bflatn.Layout) bool {
	productBase := b.nextBflatnOffset()
	for _, elt := range product.Fields {
		if !b.visitProductElement(elt, productBase) {
			return false
		}
	}
	return true
}

func (b *layoutBuilder) visitProductElement(elt bflatn.FieldLayout, productBase int) bool {
	eltOffset := productBase + int(elt.Offset)
	next := b.nextBflatnOffset()
	if next != eltOffset {
		b.fields = append(b.fields, MemcpyField{
			BsatnOffset:  b.nextBsatnOffset(),
			BflatnOffset: eltOffset,
			Length:       0,
		})
	}
	return b.visitValue(elt.Layout)
}

func (b *layoutBuilder) visitValue(l bflatn.Layout) bool {
	switch l.Kind {
	case sats.KindSum:
		return b.visitSum(l)
	case sats.KindProduct:
		return b.visitProduct(l)
	case sats.KindArray, sats.KindString:
		// Var-len members have no fixed BSATN length.
		return false
	default:
		b.visitPrimitive(l)
		return true
	}
}

func (b *layoutBuilder) visitSum(sum bflatn.Layout) bool {
	if len(sum.Variants) == 0 {
		return true
	}

	variantLayout := func(v bflatn.Layout) (*KnownBsatnLayout, bool) {
		vb := newLayoutBuilder()
		if !vb.visitValue(v) {
			return nil, false
		}
		return vb.build(), true
	}

	first, ok := variantLayout(sum.Variants[0])
	if !ok {
		return false
	}
	for _, v := range sum.Variants[1:] {
		later, ok := variantLayout(v)
		if !ok || !knownLayoutsEqual(first, later) {
			return false
		}
	}

	if first.BsatnLength == 0 {
		// C-style enum: just the tag byte.
		b.currentField().Length++
		return true
	}

	payloadBflatnOffset := b.nextBflatnOffset()
	tagBflatnOffset := payloadBflatnOffset + int(sum.TagOffset)

	tagBsatnOffset := b.nextBsatnOffset()
	payloadBsatnOffset := tagBsatnOffset + 1

	b.fields = append(b.fields, MemcpyField{
		BflatnOffset: tagBflatnOffset,
		BsatnOffset:  tagBsatnOffset,
		Length:       1,
	})

	for _, pf := range first.Fields {
		b.fields = append(b.fields, MemcpyField{
			BflatnOffset: payloadBflatnOffset + pf.BflatnOffset,
			BsatnOffset:  payloadBsatnOffset + pf.BsatnOffset,
			Length:       pf.Length,
		})
	}

	nextBsatnOffset := b.nextBsatnOffset()
	b.fields = append(b.fields, MemcpyField{
		BflatnOffset: tagBflatnOffset + 1,
		BsatnOffset:  nextBsatnOffset,
		Length:       0,
	})

	return true
}

func (b *layoutBuilder) visitPrimitive(l bflatn.Layout) {
	b.currentField().Length += int(l.Size)
}

func knownLayoutsEqual(a, b *KnownBsatnLayout) bool {
	if a.BsatnLength != b.BsatnLength || len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		if a.Fields[i] != b.Fields[i] {
			return false
		}
	}
	return true
}
