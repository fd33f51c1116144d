// Test program to demonstrate citation verification against a policy
// snapshot. This shows span resolution and hallucination detection working
// without the full pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/veritclaim/triage/internal/index"
	"github.com/veritclaim/triage/internal/model"
	"github.com/veritclaim/triage/internal/similarity"
	"github.com/veritclaim/triage/internal/verify"

	"github.com/google/uuid"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: verify-snapshot <policy-dir>")
		os.Exit(1)
	}

	fmt.Println("=== Citation Verification Test ===")
	fmt.Println()

	snapshot, err := index.Load(model.IndexConfig{Dir: os.Args[1], CacheTTL: time.Minute})
	if err != nil {
		fmt.Fprintf(os.Stderr, "load snapshot: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Snapshot %s: %d documents\n", snapshot.Version(), snapshot.Len())
	fmt.Println(strings.Repeat("-", 60))

	verifier := verify.NewVerifier(similarity.NewLexicalProvider(), model.VerificationConfig{
		SimilarityThreshold: 0.85,
		MinSpanLength:       10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, doc := range snapshot.Documents() {
		fmt.Printf("Document: %s\n", doc.Name)

		// A verbatim citation over the document head, and a fabricated
		// one pointing past the document's end.
		end := 120
		if end > len(doc.Text) {
			end = len(doc.Text)
		}
		citations := []model.Citation{
			{
				CitationID: uuid.New(),
				ClaimText:  strings.TrimSpace(doc.Text[:end]),
				Span:       model.SourceSpan{DocumentID: doc.DocumentID, StartByte: 0, EndByte: end},
				Category:   model.CategoryPolicy,
			},
			{
				CitationID: uuid.New(),
				ClaimText:  "Coverage is unconditional for all services.",
				Span:       model.SourceSpan{DocumentID: doc.DocumentID, StartByte: len(doc.Text) + 100, EndByte: len(doc.Text) + 200},
				Category:   model.CategoryPolicy,
			},
		}

		verified, metrics, err := verifier.Verify(ctx, citations, snapshot)
		if err != nil {
			fmt.Printf("  Verification error: %v\n", err)
			continue
		}

		for _, c := range verified {
			if c.Result == nil {
				continue
			}
			if c.Result.HallucinationDetected {
				fmt.Printf("  ⚠️  HALLUCINATION: %s\n", c.Result.FailureReason)
			} else {
				fmt.Printf("  ✓ Grounded (similarity %.2f)\n", c.Result.SimilarityScore)
			}
		}
		fmt.Printf("  Rate: %.1f%%, coverage: %.1f%%\n\n",
			metrics.HallucinationRate*100, metrics.EvidenceCoverage*100)
	}
}
