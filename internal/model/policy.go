package model

import (
	"time"

	"github.com/google/uuid"
)

// PolicyDocument is a versioned policy text owned by the external index.
// The core references documents and never mutates them.
type PolicyDocument struct {
	DocumentID    uuid.UUID `json:"document_id"`
	Name          string    `json:"document_name"`
	Type          string    `json:"document_type"` // policy, denial, clinical
	Text          string    `json:"text"`
	Version       string    `json:"version"`
	EffectiveDate time.Time `json:"effective_date"`
}

// SourceSpan addresses a contiguous byte range [StartByte, EndByte) of a
// specific document version. Spans are the sole unit of evidence.
type SourceSpan struct {
	DocumentID    uuid.UUID `json:"document_id"`
	StartByte     int       `json:"start_byte"`
	EndByte       int       `json:"end_byte"` // exclusive
	ExtractedText string    `json:"extracted_text"`
	PageNumber    int       `json:"page_number,omitempty"` // 1-indexed
}

// Length returns the span's byte length, or 0 for degenerate ranges.
func (s SourceSpan) Length() int {
	if s.EndByte <= s.StartByte {
		return 0
	}
	return s.EndByte - s.StartByte
}
