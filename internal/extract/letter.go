// Package extract parses structured denial data out of free-text denial
// letters. Payors format letters inconsistently, so extraction is heuristic
// and every result carries a confidence the workflow gates on before
// allowing automatic progression.
package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veritclaim/triage/internal/model"
	"github.com/veritclaim/triage/internal/phi"
)

// LetterExtractor extracts a ClaimDenial from denial letter text
type LetterExtractor struct {
	fields  map[string]*regexp.Regexp
	reasons []reasonRule
}

// reasonRule maps letter phrasing to a denial reason category.
type reasonRule struct {
	reason   model.DenialReason
	keywords []string
}

// NewLetterExtractor creates a new letter extractor
func NewLetterExtractor() *LetterExtractor {
	return &LetterExtractor{
		fields: map[string]*regexp.Regexp{
			"claim_number": labeledField(`claim\s*(?:number|no\.?|#)`),
			"member_id":    labeledField(`member\s*(?:id|number|no\.?)`),
			"patient":      labeledField(`patient(?:\s*name)?`),
			"dob":          labeledField(`(?:date\s*of\s*birth|dob)`),
			"service_date": labeledField(`(?:date\s*of\s*service|service\s*date)`),
			"amount":       labeledField(`(?:billed|claim)\s*amount`),
			"payor":        labeledField(`(?:payor|payer|insurer|plan)(?:\s*name)?`),
		},
		reasons: []reasonRule{
			{model.DenialDuplicateSubmission, []string{"duplicate", "previously submitted", "already processed"}},
			{model.DenialPriorAuthMissing, []string{"prior authorization", "pre-authorization", "preauthorization", "authorization was not obtained"}},
			{model.DenialNotMedicallyNecessary, []string{"medical necessity", "not medically necessary", "medically unnecessary"}},
			{model.DenialEligibilityCutoff, []string{"eligibility", "coverage terminated", "not eligible", "coverage period"}},
			{model.DenialCPTMismatch, []string{"cpt", "procedure code does not match"}},
			{model.DenialDocumentationMismatch, []string{"documentation does not support", "records do not support"}},
			{model.DenialInsufficientDocs, []string{"insufficient documentation", "additional documentation", "records were not received"}},
			{model.DenialCodingError, []string{"coding", "diagnosis code", "modifier"}},
			{model.DenialTimelyFilingLimit, []string{"timely filing", "filing limit", "filing deadline", "submitted late"}},
			{model.DenialOutOfNetwork, []string{"out-of-network", "out of network", "non-participating provider"}},
		},
	}
}

// Extract parses a denial letter into a ClaimDenial. Missing fields lower
// the confidence rather than failing: the workflow's confidence floor
// decides whether a human takes over.
func (e *LetterExtractor) Extract(letter string) (*model.ClaimDenial, error) {
	denial := &model.ClaimDenial{
		ClaimID:     uuid.New(),
		DenialID:    uuid.New(),
		ExtractedAt: time.Now().UTC(),
	}

	found := 0
	if v, ok := e.field("claim_number", letter); ok {
		denial.ClaimNumber = v
		found++
	}
	if v, ok := e.field("member_id", letter); ok {
		denial.MemberID = phi.Sensitive(v)
		found++
	}
	if v, ok := e.field("patient", letter); ok {
		denial.PatientName = phi.Sensitive(v)
		found++
	}
	if v, ok := e.field("dob", letter); ok {
		denial.DateOfBirth = phi.Sensitive(v)
		found++
	}
	if v, ok := e.field("service_date", letter); ok {
		if parsed, ok := parseDate(v); ok {
			denial.ServiceDate = parsed
			found++
		}
	}
	if v, ok := e.field("amount", letter); ok {
		denial.BilledAmount = v
		found++
	}
	if v, ok := e.field("payor", letter); ok {
		denial.PayorName = v
		found++
	}

	reason, text := e.classifyReason(letter)
	denial.Reason = reason
	denial.ReasonText = text
	if reason != model.DenialOther {
		found++
	}

	// Confidence reflects field completeness; the reason category
	// weighs the same as one labeled field.
	denial.Confidence = float64(found) / 8.0
	return denial, nil
}

// field applies the labeled-field pattern and returns the trimmed value
func (e *LetterExtractor) field(name, letter string) (string, bool) {
	re, ok := e.fields[name]
	if !ok {
		return "", false
	}
	m := re.FindStringSubmatch(letter)
	if m == nil {
		return "", false
	}
	value := strings.TrimSpace(m[1])
	return value, value != ""
}

// classifyReason maps the letter body to a denial reason category and
// returns the sentence that triggered the match as the reason text.
func (e *LetterExtractor) classifyReason(letter string) (model.DenialReason, string) {
	lower := strings.ToLower(letter)
	for _, rule := range e.reasons {
		for _, keyword := range rule.keywords {
			idx := strings.Index(lower, keyword)
			if idx < 0 {
				continue
			}
			return rule.reason, sentenceAround(letter, idx)
		}
	}
	return model.DenialOther, firstSentence(letter)
}

// labeledField builds a pattern for "Label: value" lines
func labeledField(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^\s*` + label + `\s*[:\-]\s*(.+)$`)
}

// parseDate tries the date layouts payors actually use
func parseDate(value string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", "01/02/2006", "January 2, 2006", "Jan 2, 2006"} {
		if parsed, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// sentenceAround returns the sentence containing the byte offset
func sentenceAround(text string, offset int) string {
	start := strings.LastIndexByte(text[:offset], '.') + 1
	end := strings.IndexByte(text[offset:], '.')
	if end < 0 {
		end = len(text)
	} else {
		end += offset + 1
	}
	return strings.TrimSpace(strings.ReplaceAll(text[start:end], "\n", " "))
}

// firstSentence returns the letter's first sentence, capped for audit
// descriptions.
func firstSentence(text string) string {
	s := sentenceAround(text, 0)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
