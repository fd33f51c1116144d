package similarity

import (
	"context"
	"strings"
	"unicode"
)

// LexicalProvider scores similarity by normalized token overlap. It is fully
// deterministic and needs no network access, which makes it the default for
// offline runs and the regression corpus.
type LexicalProvider struct{}

// NewLexicalProvider creates a new lexical provider
func NewLexicalProvider() *LexicalProvider {
	return &LexicalProvider{}
}

// Name returns the provider name
func (p *LexicalProvider) Name() string {
	return "lexical"
}

// IsAvailable always reports true; there is nothing to configure.
func (p *LexicalProvider) IsAvailable(ctx context.Context) bool {
	return true
}

// Score returns the Dice coefficient over normalized token sets. Verbatim
// text scores 1.0; disjoint text scores 0.0.
func (p *LexicalProvider) Score(ctx context.Context, a, b, snapshotVersion string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0, nil
	}

	overlap := 0
	for tok := range ta {
		if tb[tok] {
			overlap++
		}
	}

	return clamp01(2 * float64(overlap) / float64(len(ta)+len(tb))), nil
}

// tokenSet lowercases, strips punctuation, and drops single-character tokens
func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len(tok) > 1 {
			set[tok] = true
		}
	}
	return set
}
