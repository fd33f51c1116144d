package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/veritclaim/triage/internal/model"
	"github.com/veritclaim/triage/internal/phi"
)

// manifest describes a policy corpus directory
type manifest struct {
	SnapshotVersion string `yaml:"snapshot_version"`
}

// documentFile is the on-disk form of one policy document
type documentFile struct {
	DocumentID    string `yaml:"document_id"`
	Name          string `yaml:"document_name"`
	Type          string `yaml:"document_type"`
	Version       string `yaml:"version"`
	EffectiveDate string `yaml:"effective_date"` // RFC 3339 date
	Text          string `yaml:"text"`
}

// Load reads a policy corpus directory into a snapshot. The directory
// holds one YAML file per document plus an optional manifest.yaml carrying
// the snapshot version; without a manifest the version is derived from the
// corpus content so identical corpora compare equal.
func Load(cfg model.IndexConfig) (*Snapshot, error) {
	entries, err := os.ReadDir(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("read index dir: %w", err)
	}

	var docs []model.PolicyDocument
	version := cfg.SnapshotVersion

	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		path := filepath.Join(cfg.Dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		if entry.Name() == "manifest.yaml" || entry.Name() == "manifest.yml" {
			var m manifest
			if err := yaml.Unmarshal(data, &m); err != nil {
				return nil, fmt.Errorf("parse manifest: %w", err)
			}
			if version == "" {
				version = m.SnapshotVersion
			}
			continue
		}

		doc, err := parseDocument(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		docs = append(docs, doc)
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].DocumentID.String() < docs[j].DocumentID.String()
	})

	if version == "" {
		version = contentVersion(docs)
	}

	return NewSnapshot(version, docs, cfg.CacheTTL), nil
}

func parseDocument(data []byte) (model.PolicyDocument, error) {
	var f documentFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return model.PolicyDocument{}, err
	}
	if f.Text == "" {
		return model.PolicyDocument{}, fmt.Errorf("document has no text")
	}

	id, err := uuid.Parse(f.DocumentID)
	if err != nil {
		return model.PolicyDocument{}, fmt.Errorf("document_id: %w", err)
	}

	var effective time.Time
	if f.EffectiveDate != "" {
		effective, err = time.Parse("2006-01-02", f.EffectiveDate)
		if err != nil {
			return model.PolicyDocument{}, fmt.Errorf("effective_date: %w", err)
		}
	}

	return model.PolicyDocument{
		DocumentID:    id,
		Name:          f.Name,
		Type:          f.Type,
		Text:          f.Text,
		Version:       f.Version,
		EffectiveDate: effective,
	}, nil
}

// contentVersion derives a stable version string from the corpus content.
func contentVersion(docs []model.PolicyDocument) string {
	var b strings.Builder
	for _, d := range docs {
		b.WriteString(d.DocumentID.String())
		b.WriteString(d.Version)
		b.WriteString(phi.DigestPayload([]byte(d.Text)))
	}
	return "sha256:" + phi.DigestPayload([]byte(b.String()))[:16]
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
