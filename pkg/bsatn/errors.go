package bsatn

import "fmt"

// InvalidLenError is returned when a buffer being decoded or validated does
// not match the expected static BSATN length for its row type.
type InvalidLenError struct {
	Expected int
	Given    int
}

func (e *InvalidLenError) Error() string {
	return fmt.Sprintf("bsatn: invalid length: expected %d bytes, given %d", e.Expected, e.Given)
}

// InvalidBoolError is returned when a byte that must encode a bool is
// neither 0 nor 1.
type InvalidBoolError struct {
	Byte byte
}

func (e *InvalidBoolError) Error() string {
	return fmt.Sprintf("bsatn: invalid bool byte %d", e.Byte)
}

// InvalidTagError is returned when a sum's tag byte is out of range for the
// number of variants the sum type declares.
type InvalidTagError struct {
	Tag         byte
	SumName     string
	NumVariants uint8
}

func (e *InvalidTagError) Error() string {
	if e.SumName != "" {
		return fmt.Sprintf("bsatn: invalid tag %d for sum %q (%d variants)", e.Tag, e.SumName, e.NumVariants)
	}
	return fmt.Sprintf("bsatn: invalid tag %d (%d variants)", e.Tag, e.NumVariants)
}

// BufferTooShortError is returned by the slow-path decoder when the input
// buffer ends before a value of the expected type has been fully read.
type BufferTooShortError struct {
	Needed    int
	Remaining int
}

func (e *BufferTooShortError) Error() string {
	return fmt.Sprintf("bsatn: buffer too short: need %d bytes, have %d", e.Needed, e.Remaining)
}
