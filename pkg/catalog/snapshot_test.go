package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSnapshotStore(t *testing.T) *SnapshotStore {
	t.Helper()
	store, err := OpenSnapshotStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSnapshotStorePutAndLoadRow(t *testing.T) {
	store := openTestSnapshotStore(t)

	require.NoError(t, store.PutRow(TableIDStTable, 1, []byte{0x01, 0x02}))
	require.NoError(t, store.PutRow(TableIDStTable, 2, []byte{0x03}))

	rows, err := store.LoadTable(TableIDStTable)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, rows[1])
	assert.Equal(t, []byte{0x03}, rows[2])
}

func TestSnapshotStoreDeleteRow(t *testing.T) {
	store := openTestSnapshotStore(t)

	require.NoError(t, store.PutRow(TableIDStColumn, 1, []byte{0xaa}))
	require.NoError(t, store.DeleteRow(TableIDStColumn, 1))

	rows, err := store.LoadTable(TableIDStColumn)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSnapshotStoreUnknownTableErrors(t *testing.T) {
	store := openTestSnapshotStore(t)
	_, err := store.LoadTable(9999)
	assert.Error(t, err)
}

func TestSnapshotStoreAllocatedWatermark(t *testing.T) {
	store := openTestSnapshotStore(t)

	_, found, err := store.LoadAllocated(7)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.PutAllocated(7, 42))
	allocated, found, err := store.LoadAllocated(7)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(42), allocated)

	require.NoError(t, store.PutAllocated(8, -5))
	all, err := store.LoadAllAllocated()
	require.NoError(t, err)
	assert.Equal(t, int64(42), all[7])
	assert.Equal(t, int64(-5), all[8])
}
