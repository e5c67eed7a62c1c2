package bsatn

// Value is the slow-path in-memory representation of a decoded or
// to-be-encoded algebraic value. Concrete dynamic types, matching the
// sats.Kind that produced them:
//
//	Bool            bool
//	I8..I64         int8, int16, int32, int64
//	U8..U64         uint8, uint16, uint32, uint64
//	I128, I256      *big.Int (signed, two's complement on the wire)
//	U128, U256      *big.Int (unsigned)
//	F32, F64        float32, float64
//	String          string
//	Array           []Value
//	Product         ProductValue
//	Sum             SumValue
type Value interface{}

// ProductValue is the decoded form of an sats.ProductType: its elements, in
// declaration order.
type ProductValue struct {
	Elements []Value
}

// SumValue is the decoded form of an sats.SumType: the tag selecting which
// variant is active, and that variant's payload.
type SumValue struct {
	Tag     uint8
	Payload Value
}
