package table

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cuemby/spacetimedb-core/pkg/bflatn"
	"github.com/cuemby/spacetimedb-core/pkg/bsatn"
	"github.com/cuemby/spacetimedb-core/pkg/page"
	"github.com/cuemby/spacetimedb-core/pkg/sats"
)

// Each row's var-len handle is 8 bytes: a length, and a ref that is
// either an in-page granule offset (when the value fit in one granule) or
// an index into the table's blobRefs side table (when it didn't and was
// handed to the blob store instead). Keeping that side table out of the
// row itself is what lets the inline handle stay a fixed 8 bytes
// regardless of which case applies.
func encodeVarLenHandle(row []byte, offset uint32, length uint32, ref uint32) {
	binary.LittleEndian.PutUint32(row[offset:offset+4], length)
	binary.LittleEndian.PutUint32(row[offset+4:offset+8], ref)
}

func decodeVarLenHandle(row []byte, offset uint32) (length uint32, ref uint32) {
	length = binary.LittleEndian.Uint32(row[offset : offset+4])
	ref = binary.LittleEndian.Uint32(row[offset+4 : offset+8])
	return
}

// writeRowBytes writes val into row (sized for layout) following the
// BFLATN layout, spilling string/array payloads into page granules (small
// values) or the blob store (values too large for one granule).
func writeRowBytes(layout bflatn.Layout, val bsatn.Value, row []byte, pg *page.Page, blobStore *page.BlobStore, blobRefs *[]page.BlobHash) error {
	switch layout.Kind {
	case sats.KindProduct:
		pv, ok := val.(bsatn.ProductValue)
		if !ok {
			return fmt.Errorf("table: expected ProductValue, got %T", val)
		}
		for i, f := range layout.Fields {
			if err := writeRowBytes(f.Layout, pv.Elements[i], row[f.Offset:], pg, blobStore, blobRefs); err != nil {
				return err
			}
		}
		return nil

	case sats.KindSum:
		sv, ok := val.(bsatn.SumValue)
		if !ok {
			return fmt.Errorf("table: expected SumValue, got %T", val)
		}
		if int(sv.Tag) >= len(layout.Variants) {
			return fmt.Errorf("table: sum tag %d out of range (%d variants)", sv.Tag, len(layout.Variants))
		}
		if err := writeRowBytes(layout.Variants[sv.Tag], sv.Payload, row, pg, blobStore, blobRefs); err != nil {
			return err
		}
		row[layout.TagOffset] = sv.Tag
		return nil

	case sats.KindString:
		s, ok := val.(string)
		if !ok {
			return fmt.Errorf("table: expected string, got %T", val)
		}
		return writeVarLen(row, []byte(s), pg, blobStore, blobRefs)

	case sats.KindArray:
		return fmt.Errorf("table: array columns are not yet supported by the row codec")

	default:
		return writePrimitive(layout, val, row)
	}
}

func writeVarLen(row []byte, data []byte, pg *page.Page, blobStore *page.BlobStore, blobRefs *[]page.BlobHash) error {
	if len(data) <= page.GranuleSize {
		offset, err := pg.AllocateGranule()
		if err != nil {
			// Fall through to the blob store when the page's
			// granule tail is exhausted, even for small values.
			return writeVarLenToBlobStore(row, data, blobStore, blobRefs)
		}
		copy(pg.Granule(offset), data)
		encodeVarLenHandle(row, 0, uint32(len(data)), offset)
		return nil
	}
	return writeVarLenToBlobStore(row, data, blobStore, blobRefs)
}

func writeVarLenToBlobStore(row []byte, data []byte, blobStore *page.BlobStore, blobRefs *[]page.BlobHash) error {
	hash, _ := blobStore.Insert(data)
	idx := uint32(len(*blobRefs))
	*blobRefs = append(*blobRefs, hash)
	// Set the high bit of length to distinguish "blob index" handles
	// from "granule offset" handles on read, since lengths this large
	// can't plausibly fit the 31-bit remainder in practice but we mark
	// it explicitly anyway to avoid relying on that assumption.
	encodeVarLenHandle(row, 0, uint32(len(data))|varLenBlobFlag, idx)
	return nil
}

const varLenBlobFlag = uint32(1) << 31

func readVarLen(row []byte, pg *page.Page, blobStore *page.BlobStore, blobRefs []page.BlobHash) (string, error) {
	rawLength, ref := decodeVarLenHandle(row, 0)
	if rawLength&varLenBlobFlag != 0 {
		data, err := blobStore.Lookup(blobRefs[ref])
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data := pg.Granule(ref)[:rawLength]
	return string(data), nil
}

// decrefRowBlobs walks row looking for var-len handles that spilled to the
// blob store and decrements their refcount, called when a row is deleted so
// a blob backing no remaining row is eventually freed.
func decrefRowBlobs(layout bflatn.Layout, row []byte, blobStore *page.BlobStore, blobRefs []page.BlobHash) {
	switch layout.Kind {
	case sats.KindProduct:
		for _, f := range layout.Fields {
			decrefRowBlobs(f.Layout, row[f.Offset:], blobStore, blobRefs)
		}
	case sats.KindSum:
		tag := row[layout.TagOffset]
		if int(tag) < len(layout.Variants) {
			decrefRowBlobs(layout.Variants[tag], row, blobStore, blobRefs)
		}
	case sats.KindString, sats.KindArray:
		rawLength, ref := decodeVarLenHandle(row, 0)
		if rawLength&varLenBlobFlag != 0 && int(ref) < len(blobRefs) {
			blobStore.Decref(blobRefs[ref])
		}
	}
}

// blobHashesInRow walks row collecting the blob-store hash of every var-len
// field that spilled out of the page, used by callers that need to track or
// later reverse a blob-store increment (e.g. a transaction overlay rolling
// back an insert).
func blobHashesInRow(layout bflatn.Layout, row []byte, blobRefs []page.BlobHash, out *[]page.BlobHash) {
	switch layout.Kind {
	case sats.KindProduct:
		for _, f := range layout.Fields {
			blobHashesInRow(f.Layout, row[f.Offset:], blobRefs, out)
		}
	case sats.KindSum:
		tag := row[layout.TagOffset]
		if int(tag) < len(layout.Variants) {
			blobHashesInRow(layout.Variants[tag], row, blobRefs, out)
		}
	case sats.KindString, sats.KindArray:
		rawLength, ref := decodeVarLenHandle(row, 0)
		if rawLength&varLenBlobFlag != 0 && int(ref) < len(blobRefs) {
			*out = append(*out, blobRefs[ref])
		}
	}
}

func readRowBytes(layout bflatn.Layout, row []byte, pg *page.Page, blobStore *page.BlobStore, blobRefs []page.BlobHash) (bsatn.Value, error) {
	switch layout.Kind {
	case sats.KindProduct:
		elems := make([]bsatn.Value, len(layout.Fields))
		for i, f := range layout.Fields {
			v, err := readRowBytes(f.Layout, row[f.Offset:], pg, blobStore, blobRefs)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return bsatn.ProductValue{Elements: elems}, nil

	case sats.KindSum:
		tag := row[layout.TagOffset]
		if int(tag) >= len(layout.Variants) {
			return nil, fmt.Errorf("table: corrupt row: sum tag %d out of range", tag)
		}
		payload, err := readRowBytes(layout.Variants[tag], row, pg, blobStore, blobRefs)
		if err != nil {
			return nil, err
		}
		return bsatn.SumValue{Tag: tag, Payload: payload}, nil

	case sats.KindString:
		s, err := readVarLen(row, pg, blobStore, blobRefs)
		if err != nil {
			return nil, err
		}
		return s, nil

	case sats.KindArray:
		return nil, fmt.Errorf("table: array columns are not yet supported by the row codec")

	default:
		return readPrimitive(layout, row)
	}
}

func writePrimitive(layout bflatn.Layout, val bsatn.Value, row []byte) error {
	switch layout.Kind {
	case sats.KindBool:
		b, ok := val.(bool)
		if !ok {
			return fmt.Errorf("table: expected bool, got %T", val)
		}
		if b {
			row[0] = 1
		} else {
			row[0] = 0
		}
	case sats.KindI8:
		row[0] = byte(val.(int8))
	case sats.KindU8:
		row[0] = val.(uint8)
	case sats.KindI16:
		binary.LittleEndian.PutUint16(row, uint16(val.(int16)))
	case sats.KindU16:
		binary.LittleEndian.PutUint16(row, val.(uint16))
	case sats.KindI32:
		binary.LittleEndian.PutUint32(row, uint32(val.(int32)))
	case sats.KindU32:
		binary.LittleEndian.PutUint32(row, val.(uint32))
	case sats.KindI64:
		binary.LittleEndian.PutUint64(row, uint64(val.(int64)))
	case sats.KindU64:
		binary.LittleEndian.PutUint64(row, val.(uint64))
	case sats.KindF32:
		binary.LittleEndian.PutUint32(row, math.Float32bits(val.(float32)))
	case sats.KindF64:
		binary.LittleEndian.PutUint64(row, math.Float64bits(val.(float64)))
	default:
		return fmt.Errorf("table: row codec does not support %v columns (128/256-bit integers are encoded only over BSATN, not in physical row storage)", layout.Kind)
	}
	return nil
}

func readPrimitive(layout bflatn.Layout, row []byte) (bsatn.Value, error) {
	switch layout.Kind {
	case sats.KindBool:
		return row[0] == 1, nil
	case sats.KindI8:
		return int8(row[0]), nil
	case sats.KindU8:
		return row[0], nil
	case sats.KindI16:
		return int16(binary.LittleEndian.Uint16(row)), nil
	case sats.KindU16:
		return binary.LittleEndian.Uint16(row), nil
	case sats.KindI32:
		return int32(binary.LittleEndian.Uint32(row)), nil
	case sats.KindU32:
		return binary.LittleEndian.Uint32(row), nil
	case sats.KindI64:
		return int64(binary.LittleEndian.Uint64(row)), nil
	case sats.KindU64:
		return binary.LittleEndian.Uint64(row), nil
	case sats.KindF32:
		return math.Float32frombits(binary.LittleEndian.Uint32(row)), nil
	case sats.KindF64:
		return math.Float64frombits(binary.LittleEndian.Uint64(row)), nil
	default:
		return nil, fmt.Errorf("table: row codec does not support %v columns", layout.Kind)
	}
}
