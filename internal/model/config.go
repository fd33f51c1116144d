package model

import "time"

// Config is the complete triage configuration
type Config struct {
	Index        IndexConfig        `yaml:"index" mapstructure:"index"`
	Similarity   SimilarityConfig   `yaml:"similarity" mapstructure:"similarity"`
	Verification VerificationConfig `yaml:"verification" mapstructure:"verification"`
	Workflow     WorkflowConfig     `yaml:"workflow" mapstructure:"workflow"`
	Gate         GateConfig         `yaml:"gate" mapstructure:"gate"`
	Drafting     DraftingConfig     `yaml:"drafting" mapstructure:"drafting"`
	Storage      StorageConfig      `yaml:"storage" mapstructure:"storage"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
}

// IndexConfig configures the read-only policy index snapshot
type IndexConfig struct {
	Dir             string        `yaml:"dir" mapstructure:"dir"`                           // directory of policy documents
	SnapshotVersion string        `yaml:"snapshot_version" mapstructure:"snapshot_version"` // defaults to corpus manifest version
	CacheTTL        time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// SimilarityConfig configures the external similarity provider
type SimilarityConfig struct {
	Provider  string        `yaml:"provider" mapstructure:"provider"` // openai, lexical
	Model     string        `yaml:"model" mapstructure:"model"`
	APIKey    string        `yaml:"-" mapstructure:"-"` // env only, never written to config files
	BaseURL   string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RateLimit float64       `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second
	Burst     int           `yaml:"burst" mapstructure:"burst"`
	CacheTTL  time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	CacheDir  string        `yaml:"cache_dir,omitempty" mapstructure:"cache_dir"` // persistent score cache, optional
}

// VerificationConfig configures the citation verification engine
type VerificationConfig struct {
	// SimilarityThreshold is a policy constant, configurable until
	// empirically recalibrated.
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	MinSpanLength       int     `yaml:"min_span_length" mapstructure:"min_span_length"`
}

// WorkflowConfig configures the orchestrator
type WorkflowConfig struct {
	ConfidenceFloor   float64       `yaml:"confidence_floor" mapstructure:"confidence_floor"`
	HallucinationGate float64       `yaml:"hallucination_gate" mapstructure:"hallucination_gate"`
	MaxRedrafts       int           `yaml:"max_redrafts" mapstructure:"max_redrafts"`
	StageTimeout      time.Duration `yaml:"stage_timeout" mapstructure:"stage_timeout"`
	RetrieveTopK      int           `yaml:"retrieve_top_k" mapstructure:"retrieve_top_k"`

	Retry RetryConfig `yaml:"retry" mapstructure:"retry"`

	// StaleReviewSLA is observational only; it never auto-terminates a
	// run waiting at the human gate.
	StaleReviewSLA time.Duration `yaml:"stale_review_sla" mapstructure:"stale_review_sla"`
}

// RetryConfig is the retry-policy value object injected into the
// orchestrator. Budgets are count-based so behavior stays testable.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	JitterBound time.Duration `yaml:"jitter_bound" mapstructure:"jitter_bound"`
}

// DraftingConfig configures the LLM appeal drafter. When Provider is
// empty, drafting falls back to the deterministic template drafter.
type DraftingConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"-" mapstructure:"-"` // env only, never written to config files
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GateConfig holds the CI gate thresholds. Policy constants taken as given.
type GateConfig struct {
	HallucinationRateMax    float64 `yaml:"hallucination_rate_max" mapstructure:"hallucination_rate_max"`
	EvidenceCoverageMin     float64 `yaml:"evidence_coverage_min" mapstructure:"evidence_coverage_min"`
	NormalPassRateMin       float64 `yaml:"normal_pass_rate_min" mapstructure:"normal_pass_rate_min"`
	AdversarialDetectionMin float64 `yaml:"adversarial_detection_min" mapstructure:"adversarial_detection_min"`
}

// StorageConfig configures the durable audit ledger and run store
type StorageConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	InMemory bool   `yaml:"in_memory" mapstructure:"in_memory"` // testing only, loses durability
}

// ConcurrencyConfig bounds parallel units of work
type ConcurrencyConfig struct {
	ClaimWorkers int `yaml:"claim_workers" mapstructure:"claim_workers"`
}

// OutputConfig controls report rendering
type OutputConfig struct {
	Verbose       bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool `yaml:"include_footer" mapstructure:"include_footer"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			Dir:      "policies",
			CacheTTL: 10 * time.Minute,
		},
		Similarity: SimilarityConfig{
			Provider:  "lexical",
			Timeout:   30 * time.Second,
			RateLimit: 5,
			Burst:     5,
			CacheTTL:  10 * time.Minute,
		},
		Verification: VerificationConfig{
			SimilarityThreshold: 0.85,
			MinSpanLength:       10,
		},
		Workflow: WorkflowConfig{
			ConfidenceFloor:   0.7,
			HallucinationGate: 0.02,
			MaxRedrafts:       2,
			StageTimeout:      60 * time.Second,
			RetrieveTopK:      10,
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   time.Second,
				JitterBound: 500 * time.Millisecond,
			},
			StaleReviewSLA: 24 * time.Hour,
		},
		Drafting: DraftingConfig{
			Timeout:   30,
			MaxTokens: 1500,
		},
		Gate: GateConfig{
			HallucinationRateMax:    0.02,
			EvidenceCoverageMin:     0.85,
			NormalPassRateMin:       0.95,
			AdversarialDetectionMin: 1.0,
		},
		Storage: StorageConfig{
			Dir: "triage-data",
		},
		Concurrency: ConcurrencyConfig{
			ClaimWorkers: 8,
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
	}
}
