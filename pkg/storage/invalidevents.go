package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/igniteclient/pkg/types"
)

// InvalidEventAdapter adapts a Store's (eventJSON string, maxRows)-shaped
// InvalidTimestampEvent methods to the []*types.Event-shaped
// InsertEvents/CountEvents/DrainEvents surface
// pkg/transport.TimestampValidator depends on. The two packages model the
// same bounded overflow table at different altitudes — Store persists the
// serialized envelope, TimestampValidator wants
// decoded events back — so this adapter is the seam between them rather
// than either package importing the other.
type InvalidEventAdapter struct {
	store   Store
	maxRows int
}

// NewInvalidEventAdapter builds an adapter over store, purging down to
// maxRows rows on every insert (DAM.Database's bounded-table limit).
func NewInvalidEventAdapter(store Store, maxRows int) *InvalidEventAdapter {
	return &InvalidEventAdapter{store: store, maxRows: maxRows}
}

// InsertEvents persists each event as its own row, serialized to JSON as
// an InvalidTimestampEvent envelope.
func (a *InvalidEventAdapter) InsertEvents(events []*types.Event) error {
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal invalid-timestamp event: %w", err)
		}
		if _, err := a.store.PutInvalidTimestampEvent(string(data), a.maxRows); err != nil {
			return err
		}
	}
	return nil
}

// CountEvents reports how many rows the overflow table currently holds.
func (a *InvalidEventAdapter) CountEvents() (int, error) {
	return a.store.CountInvalidTimestampEvents()
}

// DrainEvents removes every row from the overflow table and returns them
// decoded, in arrival order. batchSize is accepted for interface
// compatibility with callers that page through a store incrementally, but
// since the underlying Store drains (and deletes) its whole table in one
// transaction, truncating the result here would silently lose the
// untruncated remainder rather than leave it for a follow-up call — so
// the first call returns everything, and any further call in the same
// drain loop correctly sees an empty batch.
func (a *InvalidEventAdapter) DrainEvents(batchSize int) ([]*types.Event, error) {
	rows, err := a.store.DrainInvalidTimestampEvents()
	if err != nil {
		return nil, err
	}
	out := make([]*types.Event, 0, len(rows))
	for _, row := range rows {
		var e types.Event
		if err := json.Unmarshal([]byte(row.EventJSON), &e); err != nil {
			return nil, fmt.Errorf("unmarshal invalid-timestamp event row %d: %w", row.RowID, err)
		}
		out = append(out, &e)
	}
	return out, nil
}
