package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableRowRoundTripWithPrimaryKey(t *testing.T) {
	r := TableRow{
		TableID:       42,
		TableName:     "players",
		TableType:     "user",
		TableAccess:   "public",
		PrimaryKey:    []uint16{0},
		HasPrimaryKey: true,
	}
	pv := r.ToProductValue()
	got, err := TableRowFromProductValue(pv)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestTableRowRoundTripWithoutPrimaryKey(t *testing.T) {
	r := TableRow{
		TableID:     7,
		TableName:   "logs",
		TableType:   "user",
		TableAccess: "private",
	}
	pv := r.ToProductValue()
	got, err := TableRowFromProductValue(pv)
	require.NoError(t, err)
	assert.Equal(t, r, got)
	assert.False(t, got.HasPrimaryKey)
	assert.Nil(t, got.PrimaryKey)
}

func TestColumnRowRoundTrip(t *testing.T) {
	r := ColumnRow{
		TableID: 1,
		ColPos:  2,
		ColName: "age",
		ColType: []byte{0x01, 0x02, 0x03},
	}
	pv := r.ToProductValue()
	got, err := ColumnRowFromProductValue(pv)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestIndexRowRoundTrip(t *testing.T) {
	r := IndexRow{
		IndexID:   3,
		TableID:   1,
		IndexName: "idx_age",
		Cols:      []uint16{1, 2},
	}
	pv := r.ToProductValue()
	got, err := IndexRowFromProductValue(pv)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestConstraintRowRoundTrip(t *testing.T) {
	r := ConstraintRow{
		ConstraintID:   9,
		ConstraintName: "unique_email",
		TableID:        1,
		Cols:           []uint16{0},
	}
	pv := r.ToProductValue()
	got, err := ConstraintRowFromProductValue(pv)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestSequenceRowRoundTrip(t *testing.T) {
	r := SequenceRow{
		SequenceID:   5,
		SequenceName: "id_seq",
		TableID:      1,
		ColPos:       0,
		Increment:    1,
		Start:        1,
		MinValue:     1,
		MaxValue:     1000,
		Allocated:    100,
	}
	pv := r.ToProductValue()
	got, err := SequenceRowFromProductValue(pv)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestScheduledRowRoundTrip(t *testing.T) {
	r := ScheduledRow{
		ScheduleID:   1,
		TableID:      10,
		ReducerName:  "tick",
		ScheduleName: "every_second",
	}
	pv := r.ToProductValue()
	got, err := ScheduledRowFromProductValue(pv)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestViewRowRoundTrip(t *testing.T) {
	r := ViewRow{
		ViewID:     1,
		ViewName:   "active_players",
		ViewAccess: "public",
		ViewQuery:  "select * from players where active",
	}
	pv := r.ToProductValue()
	got, err := ViewRowFromProductValue(pv)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestViewParamRowRoundTrip(t *testing.T) {
	r := ViewParamRow{
		ViewID:    1,
		ParamPos:  0,
		ParamName: "min_level",
		ParamType: []byte{0x04},
	}
	pv := r.ToProductValue()
	got, err := ViewParamRowFromProductValue(pv)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestConnectionCredentialsRowRoundTrip(t *testing.T) {
	r := ConnectionCredentialsRow{
		Identity:    []byte{0xaa, 0xbb},
		Address:     []byte{0x01},
		TokenHash:   []byte{0xff, 0xee, 0xdd},
		ConnectedAt: 1706630400,
	}
	pv := r.ToProductValue()
	got, err := ConnectionCredentialsRowFromProductValue(pv)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}
