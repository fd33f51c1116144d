package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/veritclaim/triage/internal/model"
	"github.com/veritclaim/triage/internal/report"
	"github.com/veritclaim/triage/internal/score"
	"github.com/veritclaim/triage/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	// noFooter is defined in run.go and shared here
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Triage a directory of denial bundles in parallel",
	Long: `Batch triages multiple denial bundles concurrently:
- Read bundle files from the input directory (one claim per file)
- Process claims in parallel, each as an independent unit of work
- Claims share only the read-only policy snapshot and the audit ledger
- Generate individual reports for each claim

Example:
  triage batch ./denials
  triage batch ./denials --concurrency 10 --output-dir ./reports
  triage batch ./denials --concurrency 5 --timeout 5m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	// Concurrency flags
	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent claim workers")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./triage-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	addPipelineFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	dir := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Output.IncludeFooter = !noFooter
	if concurrency > 0 {
		cfg.Concurrency.ClaimWorkers = concurrency
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Triage Batch Processing\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input dir:    %s\n", dir)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.ClaimWorkers)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	// Create output directory
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	processor := worker.NewBatchProcessor(a.triager(nil), cfg.Concurrency.ClaimWorkers)

	fmt.Fprintf(os.Stderr, "⚙️  Processing bundles with %d workers...\n", cfg.Concurrency.ClaimWorkers)
	fmt.Fprintf(os.Stderr, "\n")

	results, err := processor.ProcessDir(ctx, dir)
	if err != nil {
		return fmt.Errorf("process bundles: %w", err)
	}

	// Process results
	executedCount := 0
	otherCount := 0
	failureCount := 0
	renderer := report.NewRenderer(cfg.Output.IncludeFooter)

	for _, result := range results {
		if result.Run == nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Path, result.Err)
			continue
		}

		run := result.Run
		switch run.Status {
		case model.StatusExecuted:
			executedCount++
		case model.StatusFailed:
			failureCount++
		default:
			otherCount++
		}

		events, err := a.ledger.List(run.ClaimID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: load audit trail: %v\n", result.Path, err)
			continue
		}
		rep := &report.RunReport{Run: run, Events: events, GeneratedAt: time.Now().UTC()}
		if run.Draft != nil {
			strength := score.NewScorer().Calculate(run, a.snapshot)
			rep.Strength = &strength
		}

		slug := bundleSlug(result.Path)
		if err := renderer.RenderJSON(rep, filepath.Join(outputDir, slug+".json")); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", result.Path, err)
			continue
		}
		if err := renderer.RenderMarkdown(rep, filepath.Join(outputDir, slug+".md")); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write Markdown: %v\n", result.Path, err)
			continue
		}

		fmt.Fprintf(os.Stderr, "✓ %s: %s (%s)\n", slug, run.Status, run.Rationale)
	}

	// Summary
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:      %d claims\n", len(results))
	fmt.Fprintf(os.Stderr, "  Executed:   %d\n", executedCount)
	fmt.Fprintf(os.Stderr, "  Other:      %d (rejected / escalated / waiting)\n", otherCount)
	fmt.Fprintf(os.Stderr, "  Failures:   %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Output:     %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

// bundleSlug derives a report filename from the bundle path.
func bundleSlug(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
