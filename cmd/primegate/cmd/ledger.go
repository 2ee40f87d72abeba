package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/imovelprime/primegate/storage"
	bboltstorage "github.com/imovelprime/primegate/storage/bbolt"
	"github.com/imovelprime/primegate/storage/memory"
)

// openLedger opens the bbolt ledger at path, or an in-memory ledger when
// path is empty. The returned function releases it.
func openLedger(path string) (storage.Ledger, func() error, error) {
	if path == "" {
		return memory.NewLedger(), func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	l, err := bboltstorage.NewLedgerFromFile(path, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open issuance ledger %s: %w", path, err)
	}
	return l, l.Close, nil
}
