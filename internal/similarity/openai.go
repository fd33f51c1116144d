package similarity

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/veritclaim/triage/internal/cache"
	"github.com/veritclaim/triage/internal/model"
)

// OpenAIProvider computes semantic similarity as the cosine of embedding
// vectors from OpenAI's embeddings API. Scores for a given (a, b, snapshot)
// triple are cached so a verification pass stays reproducible even when the
// remote model drifts mid-run.
type OpenAIProvider struct {
	client  *openai.Client
	model   openai.EmbeddingModel
	limiter *rate.Limiter
	scores  cache.Cache
	ttl     time.Duration
	timeout time.Duration
}

// NewOpenAIProvider creates a new OpenAI-backed provider
func NewOpenAIProvider(cfg model.SimilarityConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	embModel := openai.SmallEmbedding3
	if cfg.Model != "" {
		embModel = openai.EmbeddingModel(cfg.Model)
	}

	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	// Memory-only by default; a cache dir adds a disk layer so scores
	// survive restarts for an unchanged snapshot.
	var scores cache.Cache = cache.NewMemoryCache(ttl, 2*ttl)
	if cfg.CacheDir != "" {
		scores = cache.NewLayeredCache(ttl, cfg.CacheDir, 24*time.Hour)
	}

	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   embModel,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		scores:  scores,
		ttl:     ttl,
		timeout: cfg.Timeout,
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// IsAvailable checks if the provider is properly configured
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	_, err := p.client.ListModels(ctx)
	return err == nil
}

// Score embeds both texts and returns their cosine similarity in [0,1].
func (p *OpenAIProvider) Score(ctx context.Context, a, b, snapshotVersion string) (float64, error) {
	key := cache.ScoreKey(a, b, snapshotVersion)
	if score, ok := cache.GetScore(p.scores, key); ok {
		return score, nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{a, b},
		Model: p.model,
	})
	if err != nil {
		return 0, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != 2 {
		return 0, fmt.Errorf("expected 2 embeddings, got %d", len(resp.Data))
	}

	score := clamp01(cosine(resp.Data[0].Embedding, resp.Data[1].Embedding))
	_ = cache.SetScore(p.scores, key, score, p.ttl)
	return score, nil
}

// cosine computes cosine similarity of two vectors
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
