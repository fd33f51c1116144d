package store

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/veritclaim/triage/internal/model"
)

func testRunStore(t *testing.T) *RunStore {
	t.Helper()
	db, err := Open(model.StorageConfig{InMemory: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewRunStore(db)
}

func TestRunStore_SaveAndGet(t *testing.T) {
	s := testRunStore(t)

	run := &model.WorkflowRun{
		ClaimID:         uuid.New(),
		Stage:           model.StageVerified,
		Status:          model.StatusWaiting,
		SnapshotVersion: "snap-1",
		Redrafts:        1,
		StartedAt:       time.Now().UTC(),
	}
	if err := s.Save(run); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Get(run.ClaimID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Stage != model.StageVerified || got.Status != model.StatusWaiting {
		t.Errorf("loaded run differs: stage=%s status=%s", got.Stage, got.Status)
	}
	if got.Redrafts != 1 || got.SnapshotVersion != "snap-1" {
		t.Errorf("loaded run lost fields: %+v", got)
	}
}

func TestRunStore_GetNotFound(t *testing.T) {
	s := testRunStore(t)
	_, err := s.Get(uuid.New())
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRunStore_SaveOverwrites(t *testing.T) {
	s := testRunStore(t)
	run := &model.WorkflowRun{ClaimID: uuid.New(), Status: model.StatusRunning}

	if err := s.Save(run); err != nil {
		t.Fatalf("save: %v", err)
	}
	run.Status = model.StatusExecuted
	if err := s.Save(run); err != nil {
		t.Fatalf("resave: %v", err)
	}

	got, err := s.Get(run.ClaimID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusExecuted {
		t.Errorf("expected updated status, got %s", got.Status)
	}
}

func TestRunStore_List(t *testing.T) {
	s := testRunStore(t)

	for i := 0; i < 3; i++ {
		if err := s.Save(&model.WorkflowRun{ClaimID: uuid.New(), Status: model.StatusExecuted}); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	runs, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("expected 3 runs, got %d", len(runs))
	}
}

func TestOpen_PersistentRequiresDir(t *testing.T) {
	if _, err := Open(model.StorageConfig{}); err == nil {
		t.Error("expected error when dir is empty and not in-memory")
	}
}

func TestOpen_PersistentSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(model.StorageConfig{Dir: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s := NewRunStore(db)
	run := &model.WorkflowRun{ClaimID: uuid.New(), Status: model.StatusWaiting}
	if err := s.Save(run); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err = Open(model.StorageConfig{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	got, err := NewRunStore(db).Get(run.ClaimID)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Status != model.StatusWaiting {
		t.Errorf("run not durable across reopen: %s", got.Status)
	}
}
