package similarity

import (
	"context"
	"fmt"
	"strings"

	"github.com/veritclaim/triage/internal/model"
)

// Provider scores the semantic similarity of two texts. Implementations
// must behave as a pure function for a fixed pair of strings and snapshot
// version; the verification engine relies on that for reproducibility.
type Provider interface {
	// Name returns the provider name
	Name() string

	// Score returns a similarity score in [0,1] for the two texts.
	Score(ctx context.Context, a, b, snapshotVersion string) (float64, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// NewProvider creates a similarity provider based on configuration
func NewProvider(cfg model.SimilarityConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIProvider(cfg)

	case "lexical", "":
		return NewLexicalProvider(), nil

	default:
		return nil, fmt.Errorf("unknown similarity provider: %s (supported: openai, lexical)", cfg.Provider)
	}
}

// clamp01 maps a raw provider score into [0,1]. Cosine similarities may
// come back in [-1,1]; anything below zero carries no grounding signal.
func clamp01(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
