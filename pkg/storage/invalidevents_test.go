package storage

import (
	"testing"

	"github.com/cuemby/igniteclient/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestInvalidEventAdapterInsertCountDrain(t *testing.T) {
	store := newTestBoltStore(t)
	adapter := NewInvalidEventAdapter(store, 10)

	count, err := adapter.CountEvents()
	require.NoError(t, err)
	require.Equal(t, 0, count)

	events := []*types.Event{
		{EventID: "Ignition", Timestamp: 100},
		{EventID: "VinUpdate", Timestamp: 200},
	}
	require.NoError(t, adapter.InsertEvents(events))

	count, err = adapter.CountEvents()
	require.NoError(t, err)
	require.Equal(t, 2, count)

	drained, err := adapter.DrainEvents(1)
	require.NoError(t, err)
	require.Len(t, drained, 2)
	require.Equal(t, "Ignition", drained[0].EventID)
	require.Equal(t, "VinUpdate", drained[1].EventID)

	count, err = adapter.CountEvents()
	require.NoError(t, err)
	require.Equal(t, 0, count)

	drained, err = adapter.DrainEvents(1)
	require.NoError(t, err)
	require.Empty(t, drained)
}

func TestInvalidEventAdapterPurgesOldestFirst(t *testing.T) {
	store := newTestBoltStore(t)
	adapter := NewInvalidEventAdapter(store, 2)

	for i := 0; i < 3; i++ {
		require.NoError(t, adapter.InsertEvents([]*types.Event{{EventID: "E", Timestamp: float64(i)}}))
	}

	count, err := adapter.CountEvents()
	require.NoError(t, err)
	require.Equal(t, 2, count)

	drained, err := adapter.DrainEvents(10)
	require.NoError(t, err)
	require.Len(t, drained, 2)
	require.Equal(t, float64(1), drained[0].Timestamp)
	require.Equal(t, float64(2), drained[1].Timestamp)
}
