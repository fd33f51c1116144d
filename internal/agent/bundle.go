package agent

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/veritclaim/triage/internal/model"
	"github.com/veritclaim/triage/internal/phi"
)

// Bundle is the on-disk form of one denial case: the denial fields an
// extractor would pull from a PDF, optional scripted citations, an optional
// scripted review verdict, and regression labels. The simulated agents are
// driven from it so a full pipeline run is deterministic and offline.
type Bundle struct {
	Claim struct {
		ClaimID        string  `yaml:"claim_id"`
		ClaimNumber    string  `yaml:"claim_number"`
		DenialReason   string  `yaml:"denial_reason"`
		DenialText     string  `yaml:"denial_reason_text"`
		PatientName    string  `yaml:"patient_name"`
		MemberID       string  `yaml:"member_id"`
		MemberIDOnFile string  `yaml:"member_id_on_file"` // roster cross-reference
		DateOfBirth    string  `yaml:"date_of_birth"`
		ServiceDate    string  `yaml:"service_date"` // 2006-01-02
		BilledAmount   string  `yaml:"billed_amount"`
		PayorName      string  `yaml:"payor_name"`
		Confidence     float64 `yaml:"extraction_confidence"`
	} `yaml:"claim"`

	// Citations, when present, are the reasoner's proposed citation set.
	// Without them the reasoner cites the retrieved spans verbatim.
	Citations []BundleCitation `yaml:"citations,omitempty"`

	// Review scripts the human gate for non-interactive runs.
	Review struct {
		Verdict    string `yaml:"verdict"` // approve, reject, modify
		Reviewer   string `yaml:"reviewer"`
		Notes      string `yaml:"notes"`
		ModifyBody string `yaml:"modify_body"`
	} `yaml:"review"`

	// Regression labels (regress command only)
	Category string `yaml:"category,omitempty"` // normal, edge_case, adversarial
	Expected struct {
		Outcome             string `yaml:"outcome"`
		HallucinatedFlagged int    `yaml:"hallucinated_flagged"`
	} `yaml:"expected"`
}

// BundleCitation is a scripted citation in a bundle file.
type BundleCitation struct {
	ClaimText  string  `yaml:"claim_text"`
	DocumentID string  `yaml:"document_id"`
	StartByte  int     `yaml:"start_byte"`
	EndByte    int     `yaml:"end_byte"`
	Page       int     `yaml:"page,omitempty"`
	Category   string  `yaml:"category,omitempty"`
	Confidence float64 `yaml:"confidence,omitempty"`
}

// ParseBundle parses a denial bundle from YAML bytes.
func ParseBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse denial bundle: %w", err)
	}
	if b.Claim.DenialReason == "" {
		return nil, fmt.Errorf("denial bundle missing claim.denial_reason")
	}
	return &b, nil
}

// Denial converts the bundle's claim section into a ClaimDenial.
func (b *Bundle) Denial() (*model.ClaimDenial, error) {
	claimID := uuid.New()
	if b.Claim.ClaimID != "" {
		parsed, err := uuid.Parse(b.Claim.ClaimID)
		if err != nil {
			return nil, fmt.Errorf("claim_id: %w", err)
		}
		claimID = parsed
	}

	var serviceDate time.Time
	if b.Claim.ServiceDate != "" {
		parsed, err := time.Parse("2006-01-02", b.Claim.ServiceDate)
		if err != nil {
			return nil, fmt.Errorf("service_date: %w", err)
		}
		serviceDate = parsed
	}

	return &model.ClaimDenial{
		ClaimID:        claimID,
		DenialID:       uuid.New(),
		ClaimNumber:    b.Claim.ClaimNumber,
		Reason:         model.DenialReason(b.Claim.DenialReason),
		ReasonText:     b.Claim.DenialText,
		PatientName:    phi.Sensitive(b.Claim.PatientName),
		MemberID:       phi.Sensitive(b.Claim.MemberID),
		DateOfBirth:    phi.Sensitive(b.Claim.DateOfBirth),
		MemberIDOnFile: phi.Sensitive(b.Claim.MemberIDOnFile),
		ServiceDate:    serviceDate,
		BilledAmount:   b.Claim.BilledAmount,
		PayorName:      b.Claim.PayorName,
		Confidence:     b.Claim.Confidence,
		ExtractedAt:    time.Now().UTC(),
	}, nil
}

// MemberOnFile returns the roster member id cross-reference, if the source
// document carried one.
func (b *Bundle) MemberOnFile() (phi.Sensitive, bool) {
	if b.Claim.MemberIDOnFile == "" {
		return "", false
	}
	return phi.Sensitive(b.Claim.MemberIDOnFile), true
}

// ProposedCitations converts the scripted citations, if any.
func (b *Bundle) ProposedCitations() ([]model.Citation, error) {
	if len(b.Citations) == 0 {
		return nil, nil
	}
	out := make([]model.Citation, 0, len(b.Citations))
	for i, c := range b.Citations {
		docID, err := uuid.Parse(c.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("citation %d document_id: %w", i, err)
		}
		category := model.CitationCategory(c.Category)
		if category == "" {
			category = model.CategoryPolicy
		}
		out = append(out, model.Citation{
			CitationID: uuid.New(),
			ClaimText:  c.ClaimText,
			Span: model.SourceSpan{
				DocumentID: docID,
				StartByte:  c.StartByte,
				EndByte:    c.EndByte,
				PageNumber: c.Page,
			},
			Category:   category,
			Confidence: c.Confidence,
		})
	}
	return out, nil
}

// ReviewSignal returns the scripted review verdict, defaulting to approve.
func (b *Bundle) ReviewSignal(claimID uuid.UUID) model.ReviewSignal {
	verdict := model.ReviewVerdict(b.Review.Verdict)
	if verdict == "" {
		verdict = model.ReviewApprove
	}
	reviewer := b.Review.Reviewer
	if reviewer == "" {
		reviewer = "scripted-reviewer"
	}
	return model.ReviewSignal{
		ClaimID:     claimID,
		Verdict:     verdict,
		Reviewer:    reviewer,
		Notes:       b.Review.Notes,
		ModifyBody:  b.Review.ModifyBody,
		SignalledAt: time.Now().UTC(),
	}
}
