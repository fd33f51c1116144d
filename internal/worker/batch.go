package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/veritclaim/triage/internal/model"
)

// Runner triages one denial document to a terminal workflow run.
type Runner interface {
	Triage(ctx context.Context, documentBytes []byte) (*model.WorkflowRun, error)
}

// TriageJob processes one denial bundle file
type TriageJob struct {
	Path   string
	Runner Runner
}

// Execute executes the triage job
func (j *TriageJob) Execute(ctx context.Context) Result {
	data, err := os.ReadFile(j.Path)
	if err != nil {
		return &TriageResult{Path: j.Path, Err: fmt.Errorf("read bundle: %w", err)}
	}
	run, err := j.Runner.Triage(ctx, data)
	return &TriageResult{Path: j.Path, Run: run, Err: err}
}

// TriageResult is the result of one triage job
type TriageResult struct {
	Path string
	Run  *model.WorkflowRun
	Err  error
}

// GetError returns the error from the triage result
func (r *TriageResult) GetError() error {
	return r.Err
}

// BatchProcessor triages multiple denial bundles concurrently, one unit of
// work per claim.
type BatchProcessor struct {
	runner      Runner
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(runner Runner, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		runner:      runner,
		concurrency: concurrency,
	}
}

// ProcessFiles triages the given bundle files concurrently.
func (b *BatchProcessor) ProcessFiles(ctx context.Context, paths []string) []*TriageResult {
	if len(paths) == 0 {
		return []*TriageResult{}
	}

	// The pool inherits ctx, so a --timeout deadline or interrupt reaches
	// every in-flight run.
	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	// Submit concurrently with the drain below so a batch larger than the
	// pool's channel buffers cannot stall.
	go func() {
		for _, path := range paths {
			pool.Submit(&TriageJob{Path: path, Runner: b.runner})
		}
		pool.Done()
	}()

	results := pool.Wait()

	out := make([]*TriageResult, len(results))
	for i, result := range results {
		out[i] = result.(*TriageResult)
	}
	return out
}

// ProcessDir triages every bundle in a directory.
func (b *BatchProcessor) ProcessDir(ctx context.Context, dir string) ([]*TriageResult, error) {
	paths, err := ListBundles(dir)
	if err != nil {
		return nil, err
	}
	return b.ProcessFiles(ctx, paths), nil
}

// ListBundles returns the denial documents in a directory, sorted by name
// so batch ordering is stable. YAML files are bundles; txt files are
// free-text denial letters.
func ListBundles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read bundle dir: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".txt" {
			continue
		}
		if strings.HasPrefix(entry.Name(), "manifest.") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
