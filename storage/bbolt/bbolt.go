// Package bbolt provides a BBolt-backed issuance ledger.
package bbolt

import (
	"encoding/json"
	"fmt"

	"github.com/imovelprime/primegate/storage"
	"go.etcd.io/bbolt"
)

// Store implements storage.Ledger backed by a BBolt database. Each
// authority gets its own bucket keyed by serial.
type Store struct {
	db *bbolt.DB
}

var _ storage.Ledger = (*Store)(nil)

// NewLedger returns a Ledger backed by the given BBolt database.
func NewLedger(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewLedgerFromFile opens a BBolt database at the given path and returns a new Ledger.
func NewLedgerFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewLedger(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Reserve(authority string, rec *storage.IssuanceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(authority))
		if err != nil {
			return err
		}
		if b.Get([]byte(rec.Serial)) != nil {
			return fmt.Errorf("%s/%s: %w", authority, rec.Serial, storage.ErrSerialExists)
		}
		return b.Put([]byte(rec.Serial), data)
	})
}

func (s *Store) Get(authority, serial string) (*storage.IssuanceRecord, error) {
	var rec storage.IssuanceRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(authority))
		if b == nil {
			return fmt.Errorf("%s/%s: %w", authority, serial, storage.ErrNotFound)
		}
		data := b.Get([]byte(serial))
		if data == nil {
			return fmt.Errorf("%s/%s: %w", authority, serial, storage.ErrNotFound)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns the authority's records in key (serial) order.
func (s *Store) List(authority string) ([]*storage.IssuanceRecord, error) {
	var recs []*storage.IssuanceRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(authority))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var rec storage.IssuanceRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			recs = append(recs, &rec)
			return nil
		})
	})
	return recs, err
}
