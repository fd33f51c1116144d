package audit

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/veritclaim/triage/internal/model"
)

const keyPrefix = "audit/"

// Ledger is the append-only, per-claim ordered audit trail. Appends for the
// same claim are serialized to keep sequence numbers gap-free; appends for
// different claims proceed independently. Events are write-once: nothing in
// this package updates or deletes a stored event.
type Ledger struct {
	db  *badger.DB
	now func() time.Time // injectable for tests

	mu     sync.Mutex
	claims map[uuid.UUID]*claimState
}

type claimState struct {
	mu   sync.Mutex
	next uint64 // next sequence number; 0 means not yet loaded
	init bool
}

// Entry carries the caller-supplied fields of one audit event. Sequence,
// id, and timestamp are assigned by the ledger.
type Entry struct {
	Stage         string
	EventType     string
	Actor         model.Actor
	PHIAccessed   bool
	Success       bool
	Description   string
	PayloadDigest string
	ErrorMessage  string
}

// NewLedger creates a ledger over the given database.
func NewLedger(db *badger.DB) *Ledger {
	return &Ledger{
		db:     db,
		now:    time.Now,
		claims: make(map[uuid.UUID]*claimState),
	}
}

// Append durably writes one event for the claim and returns it with its
// assigned sequence number. The write completes before Append returns; a
// failure here wraps ErrAuditWriteFailure and must halt the claim's run.
func (l *Ledger) Append(claimID uuid.UUID, entry Entry) (model.AuditEvent, error) {
	state := l.state(claimID)
	state.mu.Lock()
	defer state.mu.Unlock()

	if !state.init {
		next, err := l.loadNextSequence(claimID)
		if err != nil {
			return model.AuditEvent{}, fmt.Errorf("%w: load sequence: %v", model.ErrAuditWriteFailure, err)
		}
		state.next = next
		state.init = true
	}

	event := model.AuditEvent{
		EventID:       uuid.New(),
		ClaimID:       claimID,
		Sequence:      state.next,
		Timestamp:     l.now().UTC(),
		Stage:         entry.Stage,
		EventType:     entry.EventType,
		Actor:         entry.Actor,
		PHIAccessed:   entry.PHIAccessed,
		Success:       entry.Success,
		Description:   entry.Description,
		PayloadDigest: entry.PayloadDigest,
		ErrorMessage:  entry.ErrorMessage,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return model.AuditEvent{}, fmt.Errorf("%w: marshal event: %v", model.ErrAuditWriteFailure, err)
	}

	err = l.db.Update(func(txn *badger.Txn) error {
		key := eventKey(claimID, event.Sequence)
		// Write-once: refuse to overwrite an existing sequence slot.
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("sequence %d already written", event.Sequence)
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return model.AuditEvent{}, fmt.Errorf("%w: %v", model.ErrAuditWriteFailure, err)
	}

	state.next++
	return event, nil
}

// List returns the claim's events ordered by sequence number.
func (l *Ledger) List(claimID uuid.UUID) ([]model.AuditEvent, error) {
	var events []model.AuditEvent
	prefix := claimPrefix(claimID)

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var ev model.AuditEvent
				if err := json.Unmarshal(val, &ev); err != nil {
					return fmt.Errorf("unmarshal event: %w", err)
				}
				events = append(events, ev)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// Metrics aggregates ledger counts over an arbitrary set of claims.
type Metrics struct {
	TotalEvents         int `json:"total_events"`
	ErrorEvents         int `json:"error_events"`
	HallucinationEvents int `json:"hallucination_events"`
	PHIAccessEvents     int `json:"phi_access_events"`
	HumanEvents         int `json:"human_events"`
}

// ComputeMetrics aggregates over the given claim ids.
func (l *Ledger) ComputeMetrics(claimIDs []uuid.UUID) (Metrics, error) {
	var m Metrics
	for _, id := range claimIDs {
		events, err := l.List(id)
		if err != nil {
			return Metrics{}, err
		}
		for _, ev := range events {
			m.TotalEvents++
			if !ev.Success {
				m.ErrorEvents++
			}
			if ev.EventType == model.EventHallucinationDetected {
				m.HallucinationEvents++
			}
			if ev.PHIAccessed {
				m.PHIAccessEvents++
			}
			if ev.Actor == model.ActorHuman {
				m.HumanEvents++
			}
		}
	}
	return m, nil
}

func (l *Ledger) state(claimID uuid.UUID) *claimState {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.claims[claimID]
	if !ok {
		s = &claimState{}
		l.claims[claimID] = s
	}
	return s
}

// loadNextSequence scans the claim's existing events so a restarted process
// resumes the gap-free sequence instead of restarting at zero.
func (l *Ledger) loadNextSequence(claimID uuid.UUID) (uint64, error) {
	var next uint64
	prefix := claimPrefix(claimID)

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			seq := binary.BigEndian.Uint64(key[len(key)-8:])
			if seq+1 > next {
				next = seq + 1
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func claimPrefix(claimID uuid.UUID) []byte {
	return []byte(keyPrefix + claimID.String() + "/")
}

func eventKey(claimID uuid.UUID, seq uint64) []byte {
	prefix := claimPrefix(claimID)
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], seq)
	return key
}
