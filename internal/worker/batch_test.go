package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/veritclaim/triage/internal/model"
)

// stubRunner records what it was asked to triage; failOn marks document
// contents that should error.
type stubRunner struct {
	mu     sync.Mutex
	seen   []string
	failOn string
}

func (r *stubRunner) Triage(ctx context.Context, documentBytes []byte) (*model.WorkflowRun, error) {
	r.mu.Lock()
	r.seen = append(r.seen, string(documentBytes))
	r.mu.Unlock()

	if r.failOn != "" && strings.Contains(string(documentBytes), r.failOn) {
		return nil, fmt.Errorf("triage rejected document")
	}
	return &model.WorkflowRun{ClaimID: uuid.New(), Status: model.StatusExecuted}, nil
}

func writeBundleDir(t *testing.T, names map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestListBundles(t *testing.T) {
	dir := writeBundleDir(t, map[string]string{
		"b-claim.yaml":  "claim: b",
		"a-claim.yml":   "claim: a",
		"c-letter.txt":  "Dear provider",
		"manifest.yaml": "snapshot_version: v1",
		"notes.md":      "not a bundle",
		"scores.json":   "{}",
	})
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0755); err != nil {
		t.Fatal(err)
	}

	paths, err := ListBundles(dir)
	if err != nil {
		t.Fatalf("ListBundles failed: %v", err)
	}

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	want := []string{"a-claim.yml", "b-claim.yaml", "c-letter.txt"}
	if len(names) != len(want) {
		t.Fatalf("bundles = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("bundles[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestListBundles_MissingDir(t *testing.T) {
	if _, err := ListBundles("/nonexistent/bundles"); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestBatchProcessor_ProcessDir(t *testing.T) {
	dir := writeBundleDir(t, map[string]string{
		"one.yaml":   "claim: one",
		"two.yaml":   "claim: two",
		"three.yaml": "claim: three",
	})

	runner := &stubRunner{}
	b := NewBatchProcessor(runner, 2)

	results, err := b.ProcessDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ProcessDir failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for _, r := range results {
		if r.GetError() != nil {
			t.Errorf("%s: unexpected error: %v", r.Path, r.Err)
		}
		if r.Run == nil {
			t.Errorf("%s: missing run", r.Path)
		}
	}
	if len(runner.seen) != 3 {
		t.Errorf("runner saw %d documents, want 3", len(runner.seen))
	}
}

func TestBatchProcessor_PartialFailure(t *testing.T) {
	dir := writeBundleDir(t, map[string]string{
		"good.yaml": "claim: good",
		"bad.yaml":  "claim: poison",
	})

	b := NewBatchProcessor(&stubRunner{failOn: "poison"}, 2)
	results, err := b.ProcessDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ProcessDir failed: %v", err)
	}

	var failed int
	for _, r := range results {
		if r.GetError() != nil {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("got %d failures, want 1: one bad bundle must not sink the batch", failed)
	}
}

func TestBatchProcessor_UnreadableFile(t *testing.T) {
	b := NewBatchProcessor(&stubRunner{}, 1)
	results := b.ProcessFiles(context.Background(), []string{"/nonexistent/claim.yaml"})

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].GetError() == nil {
		t.Error("expected read error in result")
	}
}

func TestBatchProcessor_LargeBatch(t *testing.T) {
	files := map[string]string{}
	for i := 0; i < 60; i++ {
		files[fmt.Sprintf("claim-%03d.yaml", i)] = fmt.Sprintf("claim: %d", i)
	}
	dir := writeBundleDir(t, files)

	b := NewBatchProcessor(&stubRunner{}, 2)
	results, err := b.ProcessDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ProcessDir failed: %v", err)
	}
	if len(results) != 60 {
		t.Errorf("got %d results, want 60", len(results))
	}
}

// deadlineRunner fails fast when its context is already dead, the way
// the orchestrator does at stage boundaries.
type deadlineRunner struct{}

func (r *deadlineRunner) Triage(ctx context.Context, documentBytes []byte) (*model.WorkflowRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &model.WorkflowRun{ClaimID: uuid.New(), Status: model.StatusExecuted}, nil
}

func TestBatchProcessor_CancelledContextReachesRuns(t *testing.T) {
	dir := writeBundleDir(t, map[string]string{
		"one.yaml":   "claim: one",
		"two.yaml":   "claim: two",
		"three.yaml": "claim: three",
		"four.yaml":  "claim: four",
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewBatchProcessor(&deadlineRunner{}, 2)
	results, err := b.ProcessDir(ctx, dir)
	if err != nil {
		t.Fatalf("ProcessDir failed: %v", err)
	}

	if len(results) != 4 {
		t.Fatalf("got %d results, want 4: cancellation must not shrink the batch", len(results))
	}
	for _, r := range results {
		if !errors.Is(r.GetError(), context.Canceled) {
			t.Errorf("%s: run executed with a live context, want context.Canceled, got %v", r.Path, r.GetError())
		}
	}
}

func TestBatchProcessor_EmptyInput(t *testing.T) {
	b := NewBatchProcessor(&stubRunner{}, 4)
	results := b.ProcessFiles(context.Background(), nil)
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}
