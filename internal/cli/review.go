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
	"github.com/veritclaim/triage/internal/workflow"
)

var (
	reviewVerdict string
	reviewer      string
	reviewNotes   string
	modifyBody    string
)

// reviewCmd represents the review command
var reviewCmd = &cobra.Command{
	Use:   "review <claim-id>",
	Short: "Deliver a human verdict to a claim suspended at review",
	Long: `Review resumes a run suspended at the human gate and applies a verdict:
- approve: submit the drafted appeal
- reject:  terminate the run, denial stands
- modify:  replace the appeal body, re-verify citations, and return to review

The verdict is recorded in the audit trail attributed to the human actor.

Example:
  triage review 4f7c…-a1 --verdict approve --reviewer jdoe
  triage review 4f7c…-a1 --verdict reject --reviewer jdoe --notes "wrong policy"
  triage review 4f7c…-a1 --verdict modify --modify-body "$(cat appeal.txt)"`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [claim-id]",
	Short: "Show stored workflow runs",
	Long: `Status lists all stored runs, or with a claim id shows one run with
its full audit trail.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(statusCmd)

	reviewCmd.Flags().StringVar(&reviewVerdict, "verdict", "", "review verdict: approve, reject, modify (required)")
	reviewCmd.Flags().StringVar(&reviewer, "reviewer", "", "reviewer identity recorded in the audit trail (required)")
	reviewCmd.Flags().StringVar(&reviewNotes, "notes", "", "reviewer notes")
	reviewCmd.Flags().StringVar(&modifyBody, "modify-body", "", "replacement appeal body for the modify verdict")
	_ = reviewCmd.MarkFlagRequired("verdict")
	_ = reviewCmd.MarkFlagRequired("reviewer")
	addPipelineFlags(reviewCmd)

	statusCmd.Flags().StringVar(&dataDir, "data-dir", "", "durable storage directory (default from config)")
}

func runReview(cmd *cobra.Command, args []string) error {
	claimID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("claim id: %w", err)
	}

	verdict := model.ReviewVerdict(reviewVerdict)
	switch verdict {
	case model.ReviewApprove, model.ReviewReject, model.ReviewModify:
	default:
		return fmt.Errorf("unknown verdict %q (approve, reject, modify)", reviewVerdict)
	}
	if verdict == model.ReviewModify && modifyBody == "" {
		return fmt.Errorf("the modify verdict requires --modify-body")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Resume never re-extracts or re-retrieves: the stored decision and
	// draft carry forward, so the simulated collaborator set only needs
	// the snapshot for execution and re-verification.
	sim := agent.NewSim(a.snapshot)
	reviews := &onceQueue{signal: model.ReviewSignal{
		ClaimID:     claimID,
		Verdict:     verdict,
		Reviewer:    reviewer,
		Notes:       reviewNotes,
		ModifyBody:  modifyBody,
		SignalledAt: time.Now().UTC(),
	}}

	orch := workflow.New(workflow.Collaborators{
		Extractor: sim,
		Retriever: sim,
		Reasoner:  sim,
		Drafter:   sim,
		Executor:  sim,
		Reviews:   reviews,
	}, a.verifier, a.snapshot, a.ledger, a.runs, cfg.Workflow)

	run, runErr := orch.Resume(context.Background(), claimID)
	if run != nil && run.Status == model.StatusWaiting {
		// A modify verdict re-verified clean and returned to the gate
		// for the next verdict.
		fmt.Fprintf(os.Stderr, "Claim %s modified and re-verified; awaiting next verdict.\n", claimID)
		return nil
	}
	return renderRun(a, run, runErr, cfg.Output.IncludeFooter)
}

// onceQueue delivers a single verdict, then detaches so a modify verdict
// leaves the run suspended for the next 'triage review'.
type onceQueue struct {
	signal model.ReviewSignal
	used   bool
}

func (q *onceQueue) Await(ctx context.Context, claimID uuid.UUID) (model.ReviewSignal, error) {
	if q.used {
		return model.ReviewSignal{}, workflow.ErrDetached
	}
	q.used = true
	return q.signal, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	renderer := report.NewRenderer(false)

	if len(args) == 1 {
		claimID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("claim id: %w", err)
		}
		run, err := a.runs.Get(claimID)
		if err != nil {
			return err
		}
		events, err := a.ledger.List(claimID)
		if err != nil {
			return err
		}
		renderer.RenderSummary(&report.RunReport{Run: run, Events: events}, os.Stdout)
		for _, ev := range events {
			marker := "ok"
			if !ev.Success {
				marker = "FAIL"
			}
			fmt.Printf("%4d. [%s] %-24s %-6s %s\n",
				ev.Sequence, ev.Timestamp.Format(time.RFC3339), ev.EventType, marker, ev.Description)
		}
		return nil
	}

	runs, err := a.runs.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No stored runs.")
		return nil
	}
	for _, run := range runs {
		fmt.Printf("%s  %-16s %-12s %s\n", run.ClaimID, run.Status, run.Stage, run.Rationale)
	}
	return nil
}
