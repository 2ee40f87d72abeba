// Package memory provides a thread-safe in-memory implementation of storage.Ledger.
package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/imovelprime/primegate/storage"
)

// Ledger is a thread-safe in-memory implementation of storage.Ledger.
// Suitable for testing, demos, and runs where no ledger file is configured.
type Ledger struct {
	mu   sync.RWMutex
	data map[string]map[string]*storage.IssuanceRecord
}

var _ storage.Ledger = (*Ledger)(nil)

// NewLedger creates a new empty in-memory Ledger.
func NewLedger() *Ledger {
	return &Ledger{data: make(map[string]map[string]*storage.IssuanceRecord)}
}

func cloneRecord(rec *storage.IssuanceRecord) *storage.IssuanceRecord {
	if rec == nil {
		return nil
	}
	c := *rec
	return &c
}

func (l *Ledger) Reserve(authority string, rec *storage.IssuanceRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.data[authority]; !ok {
		l.data[authority] = make(map[string]*storage.IssuanceRecord)
	}
	if _, ok := l.data[authority][rec.Serial]; ok {
		return fmt.Errorf("%s/%s: %w", authority, rec.Serial, storage.ErrSerialExists)
	}
	l.data[authority][rec.Serial] = cloneRecord(rec)
	return nil
}

func (l *Ledger) Get(authority, serial string) (*storage.IssuanceRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.data[authority][serial]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", authority, serial, storage.ErrNotFound)
	}
	return cloneRecord(rec), nil
}

// List returns the authority's records ordered by serial.
func (l *Ledger) List(authority string) ([]*storage.IssuanceRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	recs := make([]*storage.IssuanceRecord, 0, len(l.data[authority]))
	for _, rec := range l.data[authority] {
		recs = append(recs, cloneRecord(rec))
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Serial < recs[j].Serial })
	return recs, nil
}
