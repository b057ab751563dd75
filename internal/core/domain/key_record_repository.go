package domain

import "context"

// KeyRecordRepository is the abstraction for the persistent store holding
// the single Key Record of the device.
type KeyRecordRepository interface {
	// GetKeyRecord returns ErrKeyRecordNotFound on first boot.
	GetKeyRecord(ctx context.Context) (*KeyRecord, error)
	AddKeyRecord(ctx context.Context, record *KeyRecord) error
	UpdateKeyRecord(
		ctx context.Context,
		updateFn func(r *KeyRecord) (*KeyRecord, error),
	) error
	DeleteKeyRecord(ctx context.Context) error
	Close() error
}
