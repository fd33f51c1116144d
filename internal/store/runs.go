package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/veritclaim/triage/internal/model"
)

const runPrefix = "run/"

// ErrRunNotFound is returned when no run exists for a claim id.
var ErrRunNotFound = errors.New("workflow run not found")

// RunStore persists workflow runs keyed by claim id. The orchestrator
// writes the run after every stage transition so a suspended or crashed
// run can be resumed from its last audited state.
type RunStore struct {
	db *badger.DB
}

// NewRunStore creates a run store over the given database.
func NewRunStore(db *badger.DB) *RunStore {
	return &RunStore{db: db}
}

// Save persists the run state.
func (s *RunStore) Save(run *model.WorkflowRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(run.ClaimID), data)
	})
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ClaimID, err)
	}
	return nil
}

// Get loads the run for a claim id.
func (s *RunStore) Get(claimID uuid.UUID) (*model.WorkflowRun, error) {
	var run model.WorkflowRun
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(claimID))
		if err == badger.ErrKeyNotFound {
			return ErrRunNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &run)
		})
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns all stored runs.
func (s *RunStore) List() ([]*model.WorkflowRun, error) {
	var runs []*model.WorkflowRun
	prefix := []byte(runPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var run model.WorkflowRun
				if err := json.Unmarshal(val, &run); err != nil {
					return err
				}
				runs = append(runs, &run)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func runKey(claimID uuid.UUID) []byte {
	return []byte(runPrefix + claimID.String())
}
