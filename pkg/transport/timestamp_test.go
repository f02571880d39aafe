package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/igniteclient/pkg/event"
	"github.com/cuemby/igniteclient/pkg/types"
)

func TestTimestampValidator_BackfillsQueuedEvents(t *testing.T) {
	v := NewTimestampValidator(nil, nil, false)

	out1 := v.Handle(&event.Event{EventID: "E1", Timestamp: 1000})
	assert.True(t, out1.Dropped)

	out2 := v.Handle(&event.Event{EventID: "E2", Timestamp: 2000})
	assert.True(t, out2.Dropped)

	// First valid timestamp: cutoff-level event arrives.
	out3 := v.Handle(&event.Event{EventID: "E3", Timestamp: 1704067200000})
	require.True(t, out3.Forward)
	assert.Equal(t, 1704067200000.0, out3.Event.Timestamp)
	require.Len(t, out3.Extra, 2)

	// delta = lastInvalid(2000) - original; newTs = firstValid - delta
	assert.Equal(t, 1704067200000.0-(2000-1000), out3.Extra[0].Timestamp)
	require.NotNil(t, out3.Extra[0].OriginalTimestamp)
	assert.Equal(t, 1000.0, *out3.Extra[0].OriginalTimestamp)

	assert.Equal(t, 1704067200000.0-(2000-2000), out3.Extra[1].Timestamp)
	assert.Equal(t, 2000.0, *out3.Extra[1].OriginalTimestamp)
}

func TestTimestampValidator_ExceptionEventBypassesValidation(t *testing.T) {
	v := NewTimestampValidator([]string{"AppRegistration"}, nil, false)
	out := v.Handle(&event.Event{EventID: "AppRegistration", Timestamp: 1})
	assert.True(t, out.Forward)
	assert.Equal(t, 1.0, out.Event.Timestamp)
}

func TestTimestampValidator_AfterFirstValid_InvalidGetsFixedInline(t *testing.T) {
	v := NewTimestampValidator(nil, nil, false)
	v.Handle(&event.Event{EventID: "E1", Timestamp: 1000})
	v.Handle(&event.Event{EventID: "E2", Timestamp: 1704067200000})

	out := v.Handle(&event.Event{EventID: "E3", Timestamp: 1500})
	require.True(t, out.Forward)
	assert.Equal(t, 1704067200000.0-(1000-1500), out.Event.Timestamp)
}

type fakeStore struct {
	inserted []*types.Event
	drained  bool
}

func (f *fakeStore) InsertEvents(events []*types.Event) error {
	f.inserted = append(f.inserted, events...)
	return nil
}

func (f *fakeStore) CountEvents() (int, error) { return len(f.inserted), nil }

func (f *fakeStore) DrainEvents(batchSize int) ([]*types.Event, error) {
	if f.drained || len(f.inserted) == 0 {
		return nil, nil
	}
	out := f.inserted
	f.inserted = nil
	f.drained = true
	return out, nil
}

func TestTimestampValidator_OverflowPersistsToStore(t *testing.T) {
	store := &fakeStore{}
	v := NewTimestampValidator(nil, store, true)

	for i := 0; i < InitialEventQueueLimit+1; i++ {
		out := v.Handle(&event.Event{EventID: "E", Timestamp: float64(i + 1)})
		assert.True(t, out.Dropped)
	}

	require.Len(t, store.inserted, InitialEventQueueLimit+1)
	assert.Empty(t, v.queue)

	out := v.Handle(&event.Event{EventID: "Final", Timestamp: 1704067200000})
	require.True(t, out.Forward)
	require.Len(t, out.Extra, InitialEventQueueLimit+1)
}

func TestTimestampValidator_OverflowWithoutStoreFlushesUnfixed(t *testing.T) {
	v := NewTimestampValidator(nil, nil, false)

	var last event.Outcome
	for i := 0; i < InitialEventQueueLimit+1; i++ {
		last = v.Handle(&event.Event{EventID: "E", Timestamp: float64(i + 1)})
	}
	assert.Empty(t, v.queue)

	// Persistence is off, so the overflowing queue is flushed through
	// unfixed: every event keeps its pre-cutoff timestamp and carries no
	// OriginalTimestamp marker.
	require.Len(t, last.Extra, InitialEventQueueLimit+1)
	for i, ev := range last.Extra {
		assert.Equal(t, float64(i+1), ev.Timestamp)
		assert.Nil(t, ev.OriginalTimestamp)
	}
}
