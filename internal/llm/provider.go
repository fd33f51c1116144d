// Package llm generates appeal letter prose from a decision and its
// verified citations. Generation runs under strict grounding: the model may
// reference citations only by bracket marker, and any marker outside the
// verified set rejects the whole draft. Prompts carry policy text and the
// decision rationale, never patient identifiers.
package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/veritclaim/triage/internal/model"
)

// Provider defines the interface for LLM drafting providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Draft generates the appeal letter body under strict grounding
	Draft(ctx context.Context, req DraftRequest) (*DraftResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// DraftRequest contains the input for appeal drafting
type DraftRequest struct {
	// Decision is the appeal decision being argued
	Decision model.Decision

	// Citations is the STRICT allowlist the draft may reference by
	// bracket marker [1]..[n]. The model cannot introduce evidence
	// outside this set.
	Citations []model.Citation

	// Prompt is an optional custom prompt (if empty, use default)
	Prompt string

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// DraftResponse contains the LLM's drafted appeal
type DraftResponse struct {
	// Body is the generated appeal letter text
	Body string

	// CitedMarkers are the citation markers the draft actually used
	CitedMarkers []int

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// StrictGrounding rejects drafts citing outside the allowlist
	// (should always be true)
	StrictGrounding bool

	// MaxTokens for response generation
	MaxTokens int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:        "", // Disabled by default
		Timeout:         30,
		StrictGrounding: true,
		MaxTokens:       1500,
	}
}

const systemPrompt = "You draft healthcare claim appeal letters that argue strictly from the provided policy citations."

// BuildPrompt constructs the default drafting prompt under strict grounding
func BuildPrompt(decision model.Decision, citations []model.Citation) string {
	prompt := fmt.Sprintf(`Draft a professional appeal letter for a denied healthcare claim.

CRITICAL RULES:
1. You may reference ONLY the numbered citations below, using their bracket markers like [1].
2. DO NOT invent, paraphrase as quotation, or cite any policy text outside this list.
3. Every substantive argument must carry at least one citation marker.
4. Argue from policy text, never from medical judgment of your own.
5. Do not include patient names, member identifiers, or dates of birth.

Decision rationale:
%s

Verified policy citations:
`, decision.Rationale)

	for i, c := range citations {
		prompt += fmt.Sprintf("[%d] (%s) %q\n", i+1, c.Category, c.ClaimText)
	}

	prompt += "\nWrite the letter body only, 3-6 paragraphs, formal register."
	return prompt
}

// resolveMaxTokens applies the request > config > built-in default chain.
func (c Config) resolveMaxTokens(req DraftRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 1500
}

// resolvePrompt uses the request's custom prompt or builds the default.
func resolvePrompt(req DraftRequest) string {
	if req.Prompt != "" {
		return req.Prompt
	}
	return BuildPrompt(req.Decision, req.Citations)
}

// groundedMarkers post-processes a drafted body: under strict grounding a
// draft citing outside the verified set, or citing nothing, is rejected.
func groundedMarkers(body string, citationCount int, strict bool) ([]int, error) {
	if strict {
		return checkGrounding(body, citationCount)
	}
	return extractMarkers(body), nil
}

// markerPattern matches bracket citation markers like [3]
var markerPattern = regexp.MustCompile(`\[(\d+)\]`)

// extractMarkers returns the distinct citation markers used in a draft
func extractMarkers(text string) []int {
	seen := make(map[int]bool)
	var markers []int
	for _, m := range markerPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		markers = append(markers, n)
	}
	return markers
}

// checkGrounding rejects drafts whose markers fall outside [1, n]. A draft
// with no markers at all is also rejected: an ungrounded appeal must never
// reach verification looking clean.
func checkGrounding(body string, citationCount int) ([]int, error) {
	markers := extractMarkers(body)
	if len(markers) == 0 {
		return nil, fmt.Errorf("draft cites no verified policy text")
	}
	for _, m := range markers {
		if m < 1 || m > citationCount {
			return nil, fmt.Errorf("GROUNDING LEAK: draft cites marker [%d] outside the verified set of %d", m, citationCount)
		}
	}
	return markers, nil
}
