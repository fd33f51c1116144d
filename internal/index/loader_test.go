package index

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/veritclaim/triage/internal/model"
)

func writeCorpus(t *testing.T, dir string, withManifest bool) uuid.UUID {
	t.Helper()

	docID := uuid.New()
	doc := fmt.Sprintf(`document_id: %s
document_name: Timely Filing Policy
document_type: policy
version: "2024.2"
effective_date: "2024-01-01"
text: |
  Claims must be submitted within 180 days of the date of service.
`, docID)
	if err := os.WriteFile(filepath.Join(dir, "timely-filing.yaml"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write document: %v", err)
	}

	if withManifest {
		manifest := "snapshot_version: corpus-2024-q3\n"
		if err := os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(manifest), 0o644); err != nil {
			t.Fatalf("write manifest: %v", err)
		}
	}
	return docID
}

func TestLoad_WithManifest(t *testing.T) {
	dir := t.TempDir()
	docID := writeCorpus(t, dir, true)

	snap, err := Load(model.IndexConfig{Dir: dir})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if snap.Version() != "corpus-2024-q3" {
		t.Errorf("expected manifest version, got %q", snap.Version())
	}
	if snap.Len() != 1 {
		t.Errorf("expected 1 document, got %d", snap.Len())
	}

	doc, ok := snap.Document(docID)
	if !ok {
		t.Fatal("document not found by id")
	}
	if doc.Name != "Timely Filing Policy" {
		t.Errorf("unexpected name %q", doc.Name)
	}
	if doc.Version != "2024.2" {
		t.Errorf("unexpected version %q", doc.Version)
	}
}

func TestLoad_ContentVersionStable(t *testing.T) {
	dir := t.TempDir()
	writeCorpus(t, dir, false)

	snap1, err := Load(model.IndexConfig{Dir: dir})
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	snap2, err := Load(model.IndexConfig{Dir: dir})
	if err != nil {
		t.Fatalf("second load: %v", err)
	}

	if snap1.Version() == "" {
		t.Fatal("derived version is empty")
	}
	if snap1.Version() != snap2.Version() {
		t.Errorf("identical corpora derived different versions: %q vs %q", snap1.Version(), snap2.Version())
	}
}

func TestLoad_ConfigVersionOverridesManifest(t *testing.T) {
	dir := t.TempDir()
	writeCorpus(t, dir, true)

	snap, err := Load(model.IndexConfig{Dir: dir, SnapshotVersion: "pinned"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Version() != "pinned" {
		t.Errorf("expected pinned version, got %q", snap.Version())
	}
}

func TestLoad_RejectsDocumentWithoutText(t *testing.T) {
	dir := t.TempDir()
	doc := fmt.Sprintf("document_id: %s\ndocument_name: Empty\n", uuid.New())
	if err := os.WriteFile(filepath.Join(dir, "empty.yaml"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write document: %v", err)
	}

	if _, err := Load(model.IndexConfig{Dir: dir}); err == nil {
		t.Error("expected error for document without text")
	}
}

func TestLoad_MissingDir(t *testing.T) {
	if _, err := Load(model.IndexConfig{Dir: "/nonexistent/policies"}); err == nil {
		t.Error("expected error for missing directory")
	}
}
