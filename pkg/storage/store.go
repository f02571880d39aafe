package storage

import "github.com/cuemby/igniteclient/pkg/types"

// Store defines the interface for the ignite client's on-device persisted
// state: the flat key-value document (login, VIN, ignition count,
// activation/running status, ...) plus the bounded InvalidTimestampEvent
// overflow table the timestamp validator writes to. Implemented by
// BoltStore.
type Store interface {
	// GetString/SetString cover every plain string key:
	// login, VIN, lastLocation, lastDeviceId, lastConfigTS,
	// dataEncryRndNo, ICP.ActivationStatus, ICP.ICRunningStatus,
	// UploaderService.LastSuccessfulUpload.
	GetString(key string) (string, error)
	SetString(key, value string) error

	// GetBool/SetBool covers deviceDisassociated.
	GetBool(key string) (bool, error)
	SetBool(key string, value bool) error

	// GetFloat/SetFloat covers lastOdometer.
	GetFloat(key string) (float64, error)
	SetFloat(key string, value float64) error

	// GetIgnitionCount/SetIgnitionCount is the IGNITION_COUNT key, broken
	// out of the generic string/bool/float accessors because
	// pkg/backoff.Store depends on it directly by name.
	GetIgnitionCount() (int64, error)
	SetIgnitionCount(n int64) error

	// InvalidTimestampEvent overflow table: bounded, oldest-first purge
	// when the table exceeds maxRows.
	PutInvalidTimestampEvent(eventJSON string, maxRows int) (*types.InvalidTimestampEvent, error)
	DrainInvalidTimestampEvents() ([]types.InvalidTimestampEvent, error)
	CountInvalidTimestampEvents() (int, error)

	// DBSize reports the on-disk database size in bytes, the value the
	// IPC DBSizeQuery command surfaces.
	DBSize() (int64, error)

	Close() error
}
