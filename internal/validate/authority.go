package validate

import "strings"

// AuthorityTier ranks how much weight a cited document carries in an
// appeal. Clinical guidelines outrank payor policy text, which outranks
// material quoted from the denial itself.
type AuthorityTier string

const (
	TierPrimary   AuthorityTier = "primary"
	TierSecondary AuthorityTier = "secondary"
	TierTertiary  AuthorityTier = "tertiary"
)

// AuthorityClassifier classifies cited documents into authority tiers
type AuthorityClassifier struct {
	tiers map[string]AuthorityTier
}

// NewAuthorityClassifier creates a classifier over the document types the
// policy index actually carries.
func NewAuthorityClassifier() *AuthorityClassifier {
	return &AuthorityClassifier{
		tiers: map[string]AuthorityTier{
			"clinical": TierPrimary,
			"policy":   TierSecondary,
			"denial":   TierTertiary,
		},
	}
}

// Classify maps a document type to its authority tier
func (a *AuthorityClassifier) Classify(documentType string) AuthorityTier {
	if tier, ok := a.tiers[strings.ToLower(strings.TrimSpace(documentType))]; ok {
		return tier
	}
	return TierTertiary
}

// Weight returns the scoring weight for a tier
func (a *AuthorityClassifier) Weight(tier AuthorityTier) float64 {
	switch tier {
	case TierPrimary:
		return 1.0
	case TierSecondary:
		return 0.8
	default:
		return 0.5
	}
}
