package store

import (
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/veritclaim/triage/internal/model"
)

// Open opens the embedded BadgerDB backing the audit ledger and run store.
// Synchronous writes are enabled for persistent databases: the ledger's
// durability guarantee depends on it.
func Open(cfg model.StorageConfig) (*badger.DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, fmt.Errorf("storage dir is required for persistent database")
		}
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Dir).WithSyncWrites(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}
