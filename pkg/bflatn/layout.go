package bflatn

import (
	"fmt"

	"github.com/cuemby/spacetimedb-core/pkg/sats"
)

// VarLenHandleSize is the width in bytes of the inline handle stored in a
// row for a String or Array field: a u32 length followed by a u32 granule-
// chain head pointing into the page's var-len region (or, for values too
// large for in-page granules, a blob store hash).
const VarLenHandleSize = 8

// VarLenHandleAlign is the alignment of a var-len handle.
const VarLenHandleAlign = 4

// FieldLayout is one element of a ProductType's layout: its byte offset
// within the row and its own Layout.
type FieldLayout struct {
	Offset uint32
	Layout Layout
}

// Layout is the computed BFLATN layout of an AlgebraicType: enough
// information to allocate, zero, read and write a value of that type
// in-place in a row buffer.
type Layout struct {
	Kind  sats.Kind
	Size  uint32
	Align uint32

	// Fields holds one entry per ProductType element, in declaration
	// order, when Kind == KindProduct.
	Fields []FieldLayout

	// Variants holds the *payload* layout of each SumType variant, in
	// declaration order, when Kind == KindSum. TagOffset is the shared
	// byte offset of the one-byte tag, which sits after the payload
	// region per the BFLATN sum layout.
	Variants  []Layout
	TagOffset uint32

	// Elem is the layout of the element type when Kind == KindArray.
	// Arrays themselves occupy only a VarLenHandleSize-byte inline
	// handle; Elem describes what each granule/out-of-row element
	// looks like.
	Elem *Layout
}

// IsVarLen reports whether values of this layout are stored out-of-row
// (String and Array), i.e. the row itself only holds a fixed-size handle.
func (l Layout) IsVarLen() bool {
	return l.Kind == sats.KindString || l.Kind == sats.KindArray
}

func alignOf(size int) uint32 {
	switch {
	case size <= 1:
		return 1
	case size == 2:
		return 2
	case size <= 4:
		return 4
	default:
		// Cap alignment at 8 bytes even for 128/256-bit integers; only
		// the first 8 bytes need natural alignment for the page
		// allocator's purposes, matching how the original engine
		// treats wide integers as opaque byte blobs.
		return 8
	}
}

// Compute resolves ty (following Refs through ts) and returns its BFLATN
// layout.
func Compute(ts *sats.Typespace, ty sats.AlgebraicType) (Layout, error) {
	switch ty.Kind {
	case sats.KindBool, sats.KindI8, sats.KindU8,
		sats.KindI16, sats.KindU16,
		sats.KindI32, sats.KindU32, sats.KindF32,
		sats.KindI64, sats.KindU64, sats.KindF64,
		sats.KindI128, sats.KindU128,
		sats.KindI256, sats.KindU256:
		size, _ := ty.FixedSize()
		return Layout{Kind: ty.Kind, Size: uint32(size), Align: alignOf(size)}, nil

	case sats.KindString:
		return Layout{Kind: sats.KindString, Size: VarLenHandleSize, Align: VarLenHandleAlign}, nil

	case sats.KindArray:
		elemLayout, err := Compute(ts, *ty.Array.Elem)
		if err != nil {
			return Layout{}, err
		}
		return Layout{
			Kind:  sats.KindArray,
			Size:  VarLenHandleSize,
			Align: VarLenHandleAlign,
			Elem:  &elemLayout,
		}, nil

	case sats.KindProduct:
		return computeProduct(ts, ty.Product)

	case sats.KindSum:
		return computeSum(ts, ty.Sum)

	case sats.KindRef:
		resolved, ok := ts.Get(ty.Ref)
		if !ok {
			return Layout{}, &UnresolvedRefError{Ref: ty.Ref}
		}
		return Compute(ts, resolved)

	default:
		return Layout{}, fmt.Errorf("bflatn: unknown type kind %v", ty.Kind)
	}
}

// UnresolvedRefError is returned when Compute encounters a TypeRef that is
// out of bounds for the given Typespace. Callers should run
// Typespace.InlineAllTyperefs before computing layouts to avoid this.
type UnresolvedRefError struct {
	Ref sats.TypeRef
}

func (e *UnresolvedRefError) Error() string {
	return fmt.Sprintf("bflatn: unresolved type reference %s", e.Ref)
}

// computeProduct lays out elements in declaration order, inserting padding
// before each field so that it falls at an offset matching its own
// alignment, and rounds the final size up to the product's overall
// alignment (the max alignment of any field).
func computeProduct(ts *sats.Typespace, p *sats.ProductType) (Layout, error) {
	fields := make([]FieldLayout, len(p.Elements))
	var offset uint32
	var maxAlign uint32 = 1

	for i, el := range p.Elements {
		fl, err := Compute(ts, el.Type)
		if err != nil {
			return Layout{}, err
		}
		offset = alignUp(offset, fl.Align)
		fields[i] = FieldLayout{Offset: offset, Layout: fl}
		offset += fl.Size
		if fl.Align > maxAlign {
			maxAlign = fl.Align
		}
	}

	size := alignUp(offset, maxAlign)
	return Layout{Kind: sats.KindProduct, Size: size, Align: maxAlign, Fields: fields}, nil
}

// computeSum lays out a tagged union as payload-then-tag: all variants
// overlay the same payload region (sized to the largest variant), followed
// by a single tag byte at the aligned offset just past that region. This
// is the inverse of BSATN's tag-then-payload wire order; reconciling the
// two is the core job of the fast-path codec in pkg/bsatn.
func computeSum(ts *sats.Typespace, s *sats.SumType) (Layout, error) {
	variants := make([]Layout, len(s.Variants))
	var payloadSize uint32
	var payloadAlign uint32 = 1

	for i, v := range s.Variants {
		vl, err := Compute(ts, v.Type)
		if err != nil {
			return Layout{}, err
		}
		variants[i] = vl
		if vl.Size > payloadSize {
			payloadSize = vl.Size
		}
		if vl.Align > payloadAlign {
			payloadAlign = vl.Align
		}
	}

	tagOffset := alignUp(payloadSize, 1)
	size := alignUp(tagOffset+1, payloadAlign)

	return Layout{
		Kind:      sats.KindSum,
		Size:      size,
		Align:     payloadAlign,
		Variants:  variants,
		TagOffset: tagOffset,
	}, nil
}

func alignUp(offset, align uint32) uint32 {
	if align <= 1 {
		return offset
	}
	return (offset + align - 1) / align * align
}
