package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cyphereco/openturnkey/internal/core/domain"
	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
)

const (
	keyRecordKey = "key_record"
	storeDir     = "keystore"
	gcInterval   = 30 * time.Minute
)

// Store is a badgerhold store whose value log is garbage collected in
// background until closed.
type Store struct {
	*badgerhold.Store
	stopGC chan struct{}
}

// OpenStore opens (or creates if not exists) the badger store in the given
// dir. An empty dir opens an in-memory store.
func OpenStore(dbDir string, logger badger.Logger) (*Store, error) {
	stopGC := make(chan struct{})
	store, err := createDb(dbDir, logger, stopGC)
	if err != nil {
		return nil, err
	}
	return &Store{store, stopGC}, nil
}

func (s *Store) Close() error {
	close(s.stopGC)
	return s.Store.Close()
}

type keyRecordStore struct {
	store *Store
}

// NewKeyRecordStore opens (or creates if not exists) the badger store in the
// given base dir. An empty dir opens an in-memory store.
func NewKeyRecordStore(
	baseDbDir string, logger badger.Logger,
) (domain.KeyRecordRepository, error) {
	var dbDir string
	if len(baseDbDir) > 0 {
		dbDir = filepath.Join(baseDbDir, storeDir)
	}

	store, err := OpenStore(dbDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening key store: %w", err)
	}
	return &keyRecordStore{store}, nil
}

func (s *keyRecordStore) GetKeyRecord(
	_ context.Context,
) (*domain.KeyRecord, error) {
	var record domain.KeyRecord
	if err := s.store.Get(keyRecordKey, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrKeyRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (s *keyRecordStore) AddKeyRecord(
	_ context.Context, record *domain.KeyRecord,
) error {
	if record == nil {
		return domain.ErrInvalidKeyRecord
	}
	if err := s.store.Insert(keyRecordKey, record); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return domain.ErrKeyRecordAlreadyExists
		}
		return err
	}
	return nil
}

func (s *keyRecordStore) UpdateKeyRecord(
	ctx context.Context,
	updateFn func(r *domain.KeyRecord) (*domain.KeyRecord, error),
) error {
	record, err := s.GetKeyRecord(ctx)
	if err != nil {
		return err
	}

	updatedRecord, err := updateFn(record)
	if err != nil {
		return err
	}
	if updatedRecord == nil {
		return domain.ErrInvalidKeyRecord
	}

	return s.store.Update(keyRecordKey, updatedRecord)
}

func (s *keyRecordStore) DeleteKeyRecord(_ context.Context) error {
	if err := s.store.Delete(keyRecordKey, domain.KeyRecord{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func (s *keyRecordStore) Close() error {
	return s.store.Close()
}

func createDb(
	dbDir string, logger badger.Logger, stopGC <-chan struct{},
) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	if !isInMemory {
		ticker := time.NewTicker(gcInterval)

		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-stopGC:
					return
				case <-ticker.C:
					if err := db.Badger().RunValueLogGC(0.5); err != nil &&
						err != badger.ErrNoRewrite {
						log.Error(err)
					}
				}
			}
		}()
	}

	return db, nil
}
