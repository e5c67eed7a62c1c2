package sats

import "fmt"

// Kind discriminates the variant of an AlgebraicType.
type Kind uint8

const (
	KindBool Kind = iota
	KindI8
	KindU8
	KindI16
	KindU16
	KindI32
	KindU32
	KindI64
	KindU64
	KindI128
	KindU128
	KindI256
	KindU256
	KindF32
	KindF64
	KindString
	KindArray
	KindProduct
	KindSum
	KindRef
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "Bool"
	case KindI8:
		return "I8"
	case KindU8:
		return "U8"
	case KindI16:
		return "I16"
	case KindU16:
		return "U16"
	case KindI32:
		return "I32"
	case KindU32:
		return "U32"
	case KindI64:
		return "I64"
	case KindU64:
		return "U64"
	case KindI128:
		return "I128"
	case KindU128:
		return "U128"
	case KindI256:
		return "I256"
	case KindU256:
		return "U256"
	case KindF32:
		return "F32"
	case KindF64:
		return "F64"
	case KindString:
		return "String"
	case KindArray:
		return "Array"
	case KindProduct:
		return "Product"
	case KindSum:
		return "Sum"
	case KindRef:
		return "Ref"
	default:
		return "Unknown"
	}
}

// TypeRef is a deBruijn-style index into a Typespace. Index zero is a valid
// reference; there is no sentinel "no ref" value, mirroring
// AlgebraicTypeRef in the original implementation.
type TypeRef uint32

func (r TypeRef) String() string {
	return fmt.Sprintf("&%d", uint32(r))
}

// ProductElement is a single named, typed field of a Product type. Name is
// optional: positional tuples leave it empty.
type ProductElement struct {
	Name string
	Type AlgebraicType
}

// ProductType is the "record"/"struct"/tuple member of the algebra: an
// ordered list of named fields. A table row is always a ProductType.
type ProductType struct {
	Elements []ProductElement
}

// SumVariant is a single named, typed arm of a Sum type.
type SumVariant struct {
	Name string
	Type AlgebraicType
}

// SumType is the "enum"/tagged-union member of the algebra: exactly one of
// its variants holds at runtime, selected by a tag byte.
type SumType struct {
	Variants []SumVariant
}

// IsSimpleEnum reports whether every variant carries no payload (the
// "C-style enum" case), which collapses to a single tag byte in BFLATN/
// BSATN.
func (s *SumType) IsSimpleEnum() bool {
	for _, v := range s.Variants {
		if v.Type.Kind != KindProduct || len(v.Type.Product.Elements) != 0 {
			return false
		}
	}
	return true
}

// ArrayType describes a variable-length homogeneous sequence.
type ArrayType struct {
	Elem *AlgebraicType
}

// AlgebraicType is the single closed sum type spanning every value shape
// SpacetimeDB can store or transmit: primitives, strings, arrays, products
// (structs) and sums (tagged unions), plus references into a Typespace for
// recursive or shared definitions. Only one of the pointer/struct fields
// below is meaningful, selected by Kind; this mirrors the Rust `enum
// AlgebraicType` exactly, translated to Go's lack of sum types.
type AlgebraicType struct {
	Kind    Kind
	Array   *ArrayType
	Product *ProductType
	Sum     *SumType
	Ref     TypeRef
}

func Bool() AlgebraicType    { return AlgebraicType{Kind: KindBool} }
func I8() AlgebraicType      { return AlgebraicType{Kind: KindI8} }
func U8() AlgebraicType      { return AlgebraicType{Kind: KindU8} }
func I16() AlgebraicType     { return AlgebraicType{Kind: KindI16} }
func U16() AlgebraicType     { return AlgebraicType{Kind: KindU16} }
func I32() AlgebraicType     { return AlgebraicType{Kind: KindI32} }
func U32() AlgebraicType     { return AlgebraicType{Kind: KindU32} }
func I64() AlgebraicType     { return AlgebraicType{Kind: KindI64} }
func U64() AlgebraicType     { return AlgebraicType{Kind: KindU64} }
func I128() AlgebraicType    { return AlgebraicType{Kind: KindI128} }
func U128() AlgebraicType    { return AlgebraicType{Kind: KindU128} }
func I256() AlgebraicType    { return AlgebraicType{Kind: KindI256} }
func U256() AlgebraicType    { return AlgebraicType{Kind: KindU256} }
func F32() AlgebraicType     { return AlgebraicType{Kind: KindF32} }
func F64() AlgebraicType     { return AlgebraicType{Kind: KindF64} }
func StringT() AlgebraicType { return AlgebraicType{Kind: KindString} }

func Array(elem AlgebraicType) AlgebraicType {
	return AlgebraicType{Kind: KindArray, Array: &ArrayType{Elem: &elem}}
}

func Product(elements ...ProductElement) AlgebraicType {
	return AlgebraicType{Kind: KindProduct, Product: &ProductType{Elements: elements}}
}

func Sum(variants ...SumVariant) AlgebraicType {
	return AlgebraicType{Kind: KindSum, Sum: &SumType{Variants: variants}}
}

// Option builds the standard `Option<T>` encoding used throughout
// SpacetimeDB: a two-variant sum, `some(T)` then `none(())`, with the tag
// ordering fixed so that `none` is tag 1.
func Option(inner AlgebraicType) AlgebraicType {
	return Sum(
		SumVariant{Name: "some", Type: inner},
		SumVariant{Name: "none", Type: Product()},
	)
}

func Ref(r TypeRef) AlgebraicType {
	return AlgebraicType{Kind: KindRef, Ref: r}
}

// IsPrimitive reports whether the type has a fixed, non-recursive size
// known without consulting a Typespace (everything except Array, Product,
// Sum and Ref).
func (t AlgebraicType) IsPrimitive() bool {
	switch t.Kind {
	case KindArray, KindProduct, KindSum, KindRef:
		return false
	default:
		return true
	}
}

// FixedSize returns the encoded width in bytes of a primitive type, or
// (0, false) for variable-length or composite kinds.
func (t AlgebraicType) FixedSize() (int, bool) {
	switch t.Kind {
	case KindBool, KindI8, KindU8:
		return 1, true
	case KindI16, KindU16:
		return 2, true
	case KindI32, KindU32, KindF32:
		return 4, true
	case KindI64, KindU64, KindF64:
		return 8, true
	case KindI128, KindU128:
		return 16, true
	case KindI256, KindU256:
		return 32, true
	default:
		return 0, false
	}
}

// IsValidForClientTypeDefinition reports whether this type could be the
// top-level definition of a table row or reducer struct/enum: a Product
// with named elements, or a Sum with named variants where every variant is
// itself a valid product/sum use.
func (t AlgebraicType) IsValidForClientTypeDefinition() bool {
	switch t.Kind {
	case KindProduct:
		for _, el := range t.Product.Elements {
			if el.Name == "" {
				return false
			}
		}
		return true
	case KindSum:
		for _, v := range t.Sum.Variants {
			if v.Name == "" {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// IsValidForClientTypeUse reports whether this type can appear nested
// inside another type's definition (any type is valid as a use, so long as
// nested products/sums don't require names at this level).
func (t AlgebraicType) IsValidForClientTypeUse() bool {
	switch t.Kind {
	case KindArray:
		return t.Array.Elem.IsValidForClientTypeUse()
	case KindProduct, KindSum, KindRef:
		return true
	default:
		return true
	}
}
