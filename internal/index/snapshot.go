package index

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/veritclaim/triage/internal/model"
)

// Span resolution failures. Each one counts as a hallucination: evidence
// that cannot be located is evidence that does not exist.
var (
	ErrDocumentNotFound = errors.New("document not in index snapshot")
	ErrRangeOutOfBounds = errors.New("span range out of document bounds")
	ErrDegenerateRange  = errors.New("span start_byte >= end_byte")
)

// Snapshot is a read-only view of the policy index at a fixed version.
// Reindexing is an out-of-band operation that produces a new Snapshot;
// an open Snapshot never changes.
type Snapshot struct {
	version   string
	documents map[uuid.UUID]model.PolicyDocument
	resolved  *gocache.Cache // span text memoization
}

// NewSnapshot builds a snapshot over the given documents.
func NewSnapshot(version string, docs []model.PolicyDocument, cacheTTL time.Duration) *Snapshot {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	m := make(map[uuid.UUID]model.PolicyDocument, len(docs))
	for _, d := range docs {
		m[d.DocumentID] = d
	}
	return &Snapshot{
		version:   version,
		documents: m,
		resolved:  gocache.New(cacheTTL, 2*cacheTTL),
	}
}

// Version returns the snapshot version string.
func (s *Snapshot) Version() string {
	return s.version
}

// Len returns the number of indexed documents.
func (s *Snapshot) Len() int {
	return len(s.documents)
}

// Document returns the document by id.
func (s *Snapshot) Document(id uuid.UUID) (model.PolicyDocument, bool) {
	d, ok := s.documents[id]
	return d, ok
}

// Documents returns all documents ordered by id.
func (s *Snapshot) Documents() []model.PolicyDocument {
	out := make([]model.PolicyDocument, 0, len(s.documents))
	for _, d := range s.documents {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DocumentID.String() < out[j].DocumentID.String()
	})
	return out
}

// Resolve fetches the byte range [start_byte, end_byte) of the span's
// document. It never panics on out-of-range offsets; a bad span yields a
// typed resolution error.
func (s *Snapshot) Resolve(span model.SourceSpan) (string, error) {
	if span.StartByte >= span.EndByte {
		return "", fmt.Errorf("resolve span %s[%d:%d): %w",
			span.DocumentID, span.StartByte, span.EndByte, ErrDegenerateRange)
	}

	key := spanKey(span)
	if text, found := s.resolved.Get(key); found {
		return text.(string), nil
	}

	doc, ok := s.documents[span.DocumentID]
	if !ok {
		return "", fmt.Errorf("resolve span %s[%d:%d): %w",
			span.DocumentID, span.StartByte, span.EndByte, ErrDocumentNotFound)
	}

	if span.StartByte < 0 || span.EndByte > len(doc.Text) {
		return "", fmt.Errorf("resolve span %s[%d:%d) in %d-byte document: %w",
			span.DocumentID, span.StartByte, span.EndByte, len(doc.Text), ErrRangeOutOfBounds)
	}

	text := doc.Text[span.StartByte:span.EndByte]
	s.resolved.SetDefault(key, text)
	return text, nil
}

func spanKey(span model.SourceSpan) string {
	return fmt.Sprintf("%s:%d:%d", span.DocumentID, span.StartByte, span.EndByte)
}
