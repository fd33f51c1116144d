package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/veritclaim/triage/internal/agent"
	"github.com/veritclaim/triage/internal/audit"
	"github.com/veritclaim/triage/internal/index"
	"github.com/veritclaim/triage/internal/llm"
	"github.com/veritclaim/triage/internal/model"
	"github.com/veritclaim/triage/internal/similarity"
	"github.com/veritclaim/triage/internal/store"
	"github.com/veritclaim/triage/internal/verify"
	"github.com/veritclaim/triage/internal/workflow"
)

// Flags shared by the pipeline commands.
var (
	policiesDir   string
	dataDir       string
	inMemory      bool
	providerName  string
	providerModel string
	draftProvider string
	draftModel    string
)

// loadConfig merges the config file and environment over the defaults.
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if policiesDir != "" {
		cfg.Index.Dir = policiesDir
	}
	if dataDir != "" {
		cfg.Storage.Dir = dataDir
	}
	if inMemory {
		cfg.Storage.InMemory = true
	}
	if providerName != "" {
		cfg.Similarity.Provider = providerName
	}
	if providerModel != "" {
		cfg.Similarity.Model = providerModel
	}
	if draftProvider != "" {
		cfg.Drafting.Provider = draftProvider
	}
	if draftModel != "" {
		cfg.Drafting.Model = draftModel
	}
	cfg.Output.Verbose = verbose

	if cfg.Similarity.Provider == "openai" {
		cfg.Similarity.APIKey = os.Getenv("OPENAI_API_KEY")
		if cfg.Similarity.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}

	// Drafting keys come from the environment only.
	switch cfg.Drafting.Provider {
	case "openai":
		cfg.Drafting.APIKey = os.Getenv("OPENAI_API_KEY")
		if cfg.Drafting.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	case "anthropic", "claude":
		cfg.Drafting.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		if cfg.Drafting.APIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
	case "ollama":
		if base := os.Getenv("OLLAMA_BASE_URL"); base != "" && cfg.Drafting.BaseURL == "" {
			cfg.Drafting.BaseURL = base
		}
	}
	return cfg, nil
}

// app wires the shared components every pipeline command needs: the policy
// snapshot, the database behind the audit ledger and run store, and the
// verification engine.
type app struct {
	cfg      *model.Config
	db       *badger.DB
	snapshot *index.Snapshot
	ledger   *audit.Ledger
	runs     *store.RunStore
	verifier *verify.Verifier
}

func newApp(cfg *model.Config) (*app, error) {
	snapshot, err := index.Load(cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("load policy snapshot: %w", err)
	}

	db, err := store.Open(cfg.Storage)
	if err != nil {
		return nil, err
	}

	provider, err := similarity.NewProvider(cfg.Similarity)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		db:       db,
		snapshot: snapshot,
		ledger:   audit.NewLedger(db),
		runs:     store.NewRunStore(db),
		verifier: verify.NewVerifier(provider, cfg.Verification),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// triager builds the workflow runner used by run, batch, and regress. Each
// denial document gets its own collaborator set so scripted citations and
// review verdicts never leak between claims.
func (a *app) triager(progress func(string, ...any)) *triager {
	return &triager{app: a, progress: progress}
}

type triager struct {
	app      *app
	progress func(string, ...any)
}

// Triage drives one denial bundle to a terminal run.
func (t *triager) Triage(ctx context.Context, documentBytes []byte) (*model.WorkflowRun, error) {
	orch, err := t.orchestratorFor(documentBytes, nil)
	if err != nil {
		return nil, err
	}
	return orch.Run(ctx, documentBytes)
}

// orchestratorFor builds the per-document orchestrator. When reviews is
// nil the bundle's scripted verdict drives the human gate; free-text
// letters carry no script and default to approval.
func (t *triager) orchestratorFor(documentBytes []byte, reviews agent.ReviewQueue) (*workflow.Orchestrator, error) {
	sim := agent.NewSim(t.app.snapshot)

	// Letters are not bundles; they go through heuristic extraction
	// inside the collaborator set instead.
	bundle, parseErr := agent.ParseBundle(documentBytes)
	if parseErr == nil {
		proposed, err := bundle.ProposedCitations()
		if err != nil {
			return nil, err
		}
		if proposed != nil {
			sim = sim.WithProposed(proposed)
		}
	}

	if reviews == nil {
		signal := model.ReviewSignal{Verdict: model.ReviewApprove, Reviewer: "scripted-reviewer"}
		if parseErr == nil {
			signal = bundle.ReviewSignal(uuid.Nil)
		}
		reviews = &agent.ScriptedReviews{Signal: signal}
	}

	var drafter agent.Drafter = sim
	if t.app.cfg.Drafting.Provider != "" {
		provider, err := llm.NewProvider(llm.ConfigFromModel(t.app.cfg.Drafting))
		if err != nil {
			return nil, fmt.Errorf("llm drafting provider: %w", err)
		}
		if provider != nil {
			drafter = agent.NewLLMDrafter(provider)
		}
	}

	orch := workflow.New(workflow.Collaborators{
		Extractor: sim,
		Retriever: sim,
		Reasoner:  sim,
		Drafter:   drafter,
		Executor:  sim,
		Reviews:   reviews,
	}, t.app.verifier, t.app.snapshot, t.app.ledger, t.app.runs, t.app.cfg.Workflow)
	if t.progress != nil {
		orch.SetProgressFunc(t.progress)
	}
	return orch, nil
}

func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&policiesDir, "policies", "", "policy document directory (default from config)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "durable storage directory (default from config)")
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "run against in-memory storage (loses durability)")
	cmd.Flags().StringVar(&providerName, "provider", "", "similarity provider (openai, lexical)")
	cmd.Flags().StringVar(&providerModel, "model", "", "embedding model for the openai provider")
	cmd.Flags().StringVar(&draftProvider, "draft-provider", "", "LLM appeal drafter (openai, anthropic, ollama; default template drafter)")
	cmd.Flags().StringVar(&draftModel, "draft-model", "", "model for the LLM appeal drafter")
}
