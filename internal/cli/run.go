package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/veritclaim/triage/internal/agent"
	"github.com/veritclaim/triage/internal/model"
	"github.com/veritclaim/triage/internal/report"
	"github.com/veritclaim/triage/internal/score"
	"github.com/veritclaim/triage/internal/workflow"
)

var (
	outJSON     string
	outMD       string
	runTimeout  time.Duration
	noFooter    bool
	interactive bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <bundle.yaml>",
	Short: "Triage a single denial bundle and generate a report",
	Long: `Run drives one denied claim through the full triage pipeline:
- Extract the structured denial from the bundle
- Retrieve applicable policy text from the read-only snapshot
- Decide appeal / no-appeal / escalate
- Draft the appeal and verify every citation against policy text
- Suspend at the human gate (scripted verdict, or --interactive)
- Submit on approval and record the full audit trail

Example:
  triage run denial.yaml
  triage run denial.yaml --json report.json --md report.md
  triage run denial.yaml --provider openai --model text-embedding-3-small
  triage run denial.yaml --interactive`,
	Args: cobra.ExactArgs(1),
	RunE: runTriage,
}

func init() {
	rootCmd.AddCommand(runCmd)

	// Output flags
	runCmd.Flags().StringVar(&outJSON, "json", "report.json", "output JSON path")
	runCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	runCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")

	// Pipeline flags
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "overall run timeout (0 = none; the human gate never times out on its own)")
	runCmd.Flags().BoolVar(&interactive, "interactive", false, "leave the run suspended at the human gate for 'triage review'")
	addPipelineFlags(runCmd)
}

func runTriage(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx := context.Background()
	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Output.IncludeFooter = !noFooter

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read bundle: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Bundle:    %s\n", path)
		fmt.Fprintf(os.Stderr, "Snapshot:  %s (%d documents)\n", a.snapshot.Version(), a.snapshot.Len())
		fmt.Fprintf(os.Stderr, "Provider:  %s\n", cfg.Similarity.Provider)
		fmt.Fprintln(os.Stderr)
	}

	t := a.triager(func(format string, v ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", v...)
	})

	var reviews agent.ReviewQueue
	if interactive {
		reviews = detachQueue{}
	}
	orch, err := t.orchestratorFor(data, reviews)
	if err != nil {
		return err
	}

	run, runErr := orch.Run(ctx, data)
	if run != nil && run.Status == model.StatusWaiting {
		fmt.Fprintf(os.Stderr, "Claim %s suspended at human review.\n", run.ClaimID)
		fmt.Fprintf(os.Stderr, "Resume with: triage review %s --verdict approve\n", run.ClaimID)
		return nil
	}
	return renderRun(a, run, runErr, cfg.Output.IncludeFooter)
}

// renderRun writes the report artifacts for a terminal run. Escalated and
// rejected runs still render: they are outcomes, not rendering errors.
func renderRun(a *app, run *model.WorkflowRun, runErr error, footer bool) error {
	if run == nil {
		return runErr
	}

	events, err := a.ledger.List(run.ClaimID)
	if err != nil {
		return fmt.Errorf("load audit trail: %w", err)
	}

	rep := &report.RunReport{
		Run:         run,
		Events:      events,
		GeneratedAt: time.Now().UTC(),
	}
	if run.Draft != nil {
		strength := score.NewScorer().Calculate(run, a.snapshot)
		rep.Strength = &strength
	}

	renderer := report.NewRenderer(footer)
	if outJSON != "" {
		if err := renderer.RenderJSON(rep, outJSON); err != nil {
			return err
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", outJSON)
		}
	}
	if outMD != "" {
		if err := renderer.RenderMarkdown(rep, outMD); err != nil {
			return err
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", outMD)
		}
	}
	renderer.RenderSummary(rep, os.Stdout)

	if runErr != nil && run.Status == model.StatusFailed {
		return runErr
	}
	return nil
}

// detachQueue never blocks: reaching the human gate detaches the run,
// leaving it persisted in waiting status for 'triage review'.
type detachQueue struct{}

func (detachQueue) Await(ctx context.Context, claimID uuid.UUID) (model.ReviewSignal, error) {
	return model.ReviewSignal{}, workflow.ErrDetached
}
