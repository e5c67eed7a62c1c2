package catalog

import (
	"fmt"
	"math/big"

	"github.com/cuemby/spacetimedb-core/pkg/bsatn"
)

// colListToValue encodes a column-position list as a bsatn array of u16.
func colListToValue(cols []uint16) bsatn.Value {
	elems := make([]bsatn.Value, len(cols))
	for i, c := range cols {
		elems[i] = c
	}
	return elems
}

func colListFromValue(v bsatn.Value) ([]uint16, error) {
	elems, ok := v.([]bsatn.Value)
	if !ok {
		return nil, fmt.Errorf("catalog: expected column list array, got %T", v)
	}
	out := make([]uint16, len(elems))
	for i, e := range elems {
		u, ok := e.(uint16)
		if !ok {
			return nil, fmt.Errorf("catalog: expected u16 column position, got %T", e)
		}
		out[i] = u
	}
	return out, nil
}

func bytesToValue(b []byte) bsatn.Value {
	elems := make([]bsatn.Value, len(b))
	for i, c := range b {
		elems[i] = c
	}
	return elems
}

func bytesFromValue(v bsatn.Value) ([]byte, error) {
	elems, ok := v.([]bsatn.Value)
	if !ok {
		return nil, fmt.Errorf("catalog: expected byte array, got %T", v)
	}
	out := make([]byte, len(elems))
	for i, e := range elems {
		u, ok := e.(uint8)
		if !ok {
			return nil, fmt.Errorf("catalog: expected u8, got %T", e)
		}
		out[i] = u
	}
	return out, nil
}

func unitValue() bsatn.Value { return bsatn.ProductValue{} }

// TableRow is the decoded form of an st_table row.
type TableRow struct {
	TableID       uint32
	TableName     string
	TableType     string // "system" or "user"
	TableAccess   string // "public" or "private"
	PrimaryKey    []uint16
	HasPrimaryKey bool
}

func (r TableRow) ToProductValue() bsatn.ProductValue {
	var pk bsatn.Value
	if r.HasPrimaryKey {
		pk = bsatn.SumValue{Tag: 0, Payload: colListToValue(r.PrimaryKey)}
	} else {
		pk = bsatn.SumValue{Tag: 1, Payload: unitValue()}
	}
	return bsatn.ProductValue{Elements: []bsatn.Value{
		r.TableID, r.TableName, r.TableType, r.TableAccess, pk,
	}}
}

func TableRowFromProductValue(pv bsatn.ProductValue) (TableRow, error) {
	if len(pv.Elements) != 5 {
		return TableRow{}, fmt.Errorf("catalog: st_table row arity mismatch: got %d elements", len(pv.Elements))
	}
	sv, ok := pv.Elements[4].(bsatn.SumValue)
	if !ok {
		return TableRow{}, fmt.Errorf("catalog: expected SumValue for table_primary_key, got %T", pv.Elements[4])
	}
	r := TableRow{
		TableID:     pv.Elements[0].(uint32),
		TableName:   pv.Elements[1].(string),
		TableType:   pv.Elements[2].(string),
		TableAccess: pv.Elements[3].(string),
	}
	if sv.Tag == 0 {
		cols, err := colListFromValue(sv.Payload)
		if err != nil {
			return TableRow{}, err
		}
		r.PrimaryKey = cols
		r.HasPrimaryKey = true
	}
	return r, nil
}

// ColumnRow is the decoded form of an st_column row. ColType holds the
// column's AlgebraicType pre-encoded by the caller (typically via a BSATN
// encoding of spacetimedb-lib's own AlgebraicType-of-AlgebraicType
// representation, out of scope here); the catalog treats it as opaque
// bytes.
type ColumnRow struct {
	TableID uint32
	ColPos  uint16
	ColName string
	ColType []byte
}

func (r ColumnRow) ToProductValue() bsatn.ProductValue {
	return bsatn.ProductValue{Elements: []bsatn.Value{
		r.TableID, r.ColPos, r.ColName, bytesToValue(r.ColType),
	}}
}

func ColumnRowFromProductValue(pv bsatn.ProductValue) (ColumnRow, error) {
	if len(pv.Elements) != 4 {
		return ColumnRow{}, fmt.Errorf("catalog: st_column row arity mismatch: got %d elements", len(pv.Elements))
	}
	colType, err := bytesFromValue(pv.Elements[3])
	if err != nil {
		return ColumnRow{}, err
	}
	return ColumnRow{
		TableID: pv.Elements[0].(uint32),
		ColPos:  pv.Elements[1].(uint16),
		ColName: pv.Elements[2].(string),
		ColType: colType,
	}, nil
}

// IndexRow is the decoded form of an st_index row. Only the BTree
// index_algorithm variant (tag 1) is ever written or accepted by this
// codec; the Unused variant at tag 0 is kept for layout parity with the
// original (whose payload, a u128, is never populated).
type IndexRow struct {
	IndexID   uint32
	TableID   uint32
	IndexName string
	Cols      []uint16
}

func (r IndexRow) ToProductValue() bsatn.ProductValue {
	algo := bsatn.SumValue{Tag: 1, Payload: colListToValue(r.Cols)}
	return bsatn.ProductValue{Elements: []bsatn.Value{
		r.IndexID, r.TableID, r.IndexName, algo,
	}}
}

func IndexRowFromProductValue(pv bsatn.ProductValue) (IndexRow, error) {
	if len(pv.Elements) != 4 {
		return IndexRow{}, fmt.Errorf("catalog: st_index row arity mismatch: got %d elements", len(pv.Elements))
	}
	sv, ok := pv.Elements[3].(bsatn.SumValue)
	if !ok || sv.Tag != 1 {
		return IndexRow{}, fmt.Errorf("catalog: st_index row has no BTree index_algorithm")
	}
	cols, err := colListFromValue(sv.Payload)
	if err != nil {
		return IndexRow{}, err
	}
	return IndexRow{
		IndexID:   pv.Elements[0].(uint32),
		TableID:   pv.Elements[1].(uint32),
		IndexName: pv.Elements[2].(string),
		Cols:      cols,
	}, nil
}

// ConstraintRow is the decoded form of an st_constraint row. Only
// IsUnique constraints are modeled, matching pkg/table.IndexDef's own
// unique/non-unique split.
type ConstraintRow struct {
	ConstraintID   uint32
	ConstraintName string
	TableID        uint32
	Cols           []uint16
}

func (r ConstraintRow) ToProductValue() bsatn.ProductValue {
	data := bsatn.SumValue{Tag: 1, Payload: colListToValue(r.Cols)}
	return bsatn.ProductValue{Elements: []bsatn.Value{
		r.ConstraintID, r.ConstraintName, r.TableID, data,
	}}
}

func ConstraintRowFromProductValue(pv bsatn.ProductValue) (ConstraintRow, error) {
	if len(pv.Elements) != 4 {
		return ConstraintRow{}, fmt.Errorf("catalog: st_constraint row arity mismatch: got %d elements", len(pv.Elements))
	}
	sv, ok := pv.Elements[3].(bsatn.SumValue)
	if !ok || sv.Tag != 1 {
		return ConstraintRow{}, fmt.Errorf("catalog: st_constraint row has no Unique constraint_data")
	}
	cols, err := colListFromValue(sv.Payload)
	if err != nil {
		return ConstraintRow{}, err
	}
	return ConstraintRow{
		ConstraintID:   pv.Elements[0].(uint32),
		ConstraintName: pv.Elements[1].(string),
		TableID:        pv.Elements[2].(uint32),
		Cols:           cols,
	}, nil
}

// SequenceRow is the decoded, persisted form of a pkg/sequence.Schema plus
// its allocated watermark.
type SequenceRow struct {
	SequenceID   uint32
	SequenceName string
	TableID      uint32
	ColPos       uint16
	Increment    int64
	Start        int64
	MinValue     int64
	MaxValue     int64
	Allocated    int64
}

func (r SequenceRow) ToProductValue() bsatn.ProductValue {
	return bsatn.ProductValue{Elements: []bsatn.Value{
		r.SequenceID, r.SequenceName, r.TableID, r.ColPos,
		big.NewInt(r.Increment), big.NewInt(r.Start),
		big.NewInt(r.MinValue), big.NewInt(r.MaxValue), big.NewInt(r.Allocated),
	}}
}

func SequenceRowFromProductValue(pv bsatn.ProductValue) (SequenceRow, error) {
	if len(pv.Elements) != 9 {
		return SequenceRow{}, fmt.Errorf("catalog: st_sequence row arity mismatch: got %d elements", len(pv.Elements))
	}
	asInt64 := func(v bsatn.Value) (int64, error) {
		bi, ok := v.(*big.Int)
		if !ok {
			return 0, fmt.Errorf("catalog: expected *big.Int, got %T", v)
		}
		return bi.Int64(), nil
	}
	increment, err := asInt64(pv.Elements[4])
	if err != nil {
		return SequenceRow{}, err
	}
	start, err := asInt64(pv.Elements[5])
	if err != nil {
		return SequenceRow{}, err
	}
	minValue, err := asInt64(pv.Elements[6])
	if err != nil {
		return SequenceRow{}, err
	}
	maxValue, err := asInt64(pv.Elements[7])
	if err != nil {
		return SequenceRow{}, err
	}
	allocated, err := asInt64(pv.Elements[8])
	if err != nil {
		return SequenceRow{}, err
	}
	return SequenceRow{
		SequenceID:   pv.Elements[0].(uint32),
		SequenceName: pv.Elements[1].(string),
		TableID:      pv.Elements[2].(uint32),
		ColPos:       pv.Elements[3].(uint16),
		Increment:    increment,
		Start:        start,
		MinValue:     minValue,
		MaxValue:     maxValue,
		Allocated:    allocated,
	}, nil
}

// ScheduledRow is the decoded form of an st_scheduled row.
type ScheduledRow struct {
	ScheduleID   uint32
	TableID      uint32
	ReducerName  string
	ScheduleName string
}

func (r ScheduledRow) ToProductValue() bsatn.ProductValue {
	return bsatn.ProductValue{Elements: []bsatn.Value{
		r.ScheduleID, r.TableID, r.ReducerName, r.ScheduleName,
	}}
}

func ScheduledRowFromProductValue(pv bsatn.ProductValue) (ScheduledRow, error) {
	if len(pv.Elements) != 4 {
		return ScheduledRow{}, fmt.Errorf("catalog: st_scheduled row arity mismatch: got %d elements", len(pv.Elements))
	}
	return ScheduledRow{
		ScheduleID:   pv.Elements[0].(uint32),
		TableID:      pv.Elements[1].(uint32),
		ReducerName:  pv.Elements[2].(string),
		ScheduleName: pv.Elements[3].(string),
	}, nil
}

// ViewRow is the decoded form of an st_view row.
type ViewRow struct {
	ViewID     uint32
	ViewName   string
	ViewAccess string
	ViewQuery  string
}

func (r ViewRow) ToProductValue() bsatn.ProductValue {
	return bsatn.ProductValue{Elements: []bsatn.Value{
		r.ViewID, r.ViewName, r.ViewAccess, r.ViewQuery,
	}}
}

func ViewRowFromProductValue(pv bsatn.ProductValue) (ViewRow, error) {
	if len(pv.Elements) != 4 {
		return ViewRow{}, fmt.Errorf("catalog: st_view row arity mismatch: got %d elements", len(pv.Elements))
	}
	return ViewRow{
		ViewID:     pv.Elements[0].(uint32),
		ViewName:   pv.Elements[1].(string),
		ViewAccess: pv.Elements[2].(string),
		ViewQuery:  pv.Elements[3].(string),
	}, nil
}

// ViewParamRow is the decoded form of an st_view_param row.
type ViewParamRow struct {
	ViewID    uint32
	ParamPos  uint16
	ParamName string
	ParamType []byte
}

func (r ViewParamRow) ToProductValue() bsatn.ProductValue {
	return bsatn.ProductValue{Elements: []bsatn.Value{
		r.ViewID, r.ParamPos, r.ParamName, bytesToValue(r.ParamType),
	}}
}

func ViewParamRowFromProductValue(pv bsatn.ProductValue) (ViewParamRow, error) {
	if len(pv.Elements) != 4 {
		return ViewParamRow{}, fmt.Errorf("catalog: st_view_param row arity mismatch: got %d elements", len(pv.Elements))
	}
	paramType, err := bytesFromValue(pv.Elements[3])
	if err != nil {
		return ViewParamRow{}, err
	}
	return ViewParamRow{
		ViewID:    pv.Elements[0].(uint32),
		ParamPos:  pv.Elements[1].(uint16),
		ParamName: pv.Elements[2].(string),
		ParamType: paramType,
	}, nil
}

// ConnectionCredentialsRow is the decoded form of an
// st_connection_credentials row.
type ConnectionCredentialsRow struct {
	Identity    []byte
	Address     []byte
	TokenHash   []byte
	ConnectedAt int64
}

func (r ConnectionCredentialsRow) ToProductValue() bsatn.ProductValue {
	return bsatn.ProductValue{Elements: []bsatn.Value{
		bytesToValue(r.Identity), bytesToValue(r.Address), bytesToValue(r.TokenHash), r.ConnectedAt,
	}}
}

func ConnectionCredentialsRowFromProductValue(pv bsatn.ProductValue) (ConnectionCredentialsRow, error) {
	if len(pv.Elements) != 4 {
		return ConnectionCredentialsRow{}, fmt.Errorf("catalog: st_connection_credentials row arity mismatch: got %d elements", len(pv.Elements))
	}
	identity, err := bytesFromValue(pv.Elements[0])
	if err != nil {
		return ConnectionCredentialsRow{}, err
	}
	address, err := bytesFromValue(pv.Elements[1])
	if err != nil {
		return ConnectionCredentialsRow{}, err
	}
	tokenHash, err := bytesFromValue(pv.Elements[2])
	if err != nil {
		return ConnectionCredentialsRow{}, err
	}
	return ConnectionCredentialsRow{
		Identity:    identity,
		Address:     address,
		TokenHash:   tokenHash,
		ConnectedAt: pv.Elements[3].(int64),
	}, nil
}
