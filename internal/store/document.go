package store

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/modindex/modindex/internal/core"
)

const (
	// APIVersion is the schema version written to every index document.
	APIVersion = "modindex.dev/v1alpha1"

	// Kind identifies an index document.
	Kind = "RepositoryIndex"
)

// Document is the persisted form of a core.RepositoryIndex.
type Document struct {
	APIVersion   string             `json:"apiVersion" yaml:"apiVersion"`
	Kind         string             `json:"kind" yaml:"kind"`
	Directory    string             `json:"directory" yaml:"directory"`
	LastModified time.Time          `json:"lastModified" yaml:"lastModified"`
	TotalSize    int64              `json:"totalSize" yaml:"totalSize"`
	Resources    []*core.Resource   `json:"resources" yaml:"resources"`
	Skipped      []core.SkippedFile `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// NewDocument converts idx. Resources and skipped files are sorted and all
// timestamps are normalized to UTC so equal indexes serialize identically.
func NewDocument(idx *core.RepositoryIndex) *Document {
	doc := &Document{
		APIVersion:   APIVersion,
		Kind:         Kind,
		Directory:    idx.Directory,
		LastModified: idx.LastModified.UTC(),
		TotalSize:    idx.TotalSize,
		Resources:    make([]*core.Resource, 0, idx.Len()),
	}
	for _, r := range idx.Resources() {
		c := r.Clone()
		c.LastModified = c.LastModified.UTC()
		doc.Resources = append(doc.Resources, c)
	}
	for _, s := range idx.Skipped() {
		s.Modified = s.Modified.UTC()
		doc.Skipped = append(doc.Skipped, s)
	}
	return doc
}

// Index rebuilds the repository index described by the document.
func (d *Document) Index() (*core.RepositoryIndex, error) {
	idx := core.NewRepositoryIndex(d.Directory)
	idx.LastModified = d.LastModified
	idx.TotalSize = d.TotalSize
	for _, r := range d.Resources {
		if r == nil || r.Name == "" || r.URI == "" {
			return nil, fmt.Errorf("resource entry missing name or uri")
		}
		if displaced := idx.Put(r); len(displaced) > 0 {
			return nil, fmt.Errorf("duplicate resource %s", r.Identity())
		}
	}
	for _, s := range d.Skipped {
		idx.Skip(s)
	}
	return idx, nil
}

// Marshal renders idx as a YAML index document.
func Marshal(idx *core.RepositoryIndex) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(NewDocument(idx)); err != nil {
		return nil, fmt.Errorf("encoding index document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding index document: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal parses an index document and checks its apiVersion and kind.
func Unmarshal(data []byte) (*core.RepositoryIndex, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding index document: %w", err)
	}
	if doc.Kind != Kind {
		return nil, fmt.Errorf("unexpected kind %q, want %q", doc.Kind, Kind)
	}
	if doc.APIVersion != APIVersion {
		return nil, fmt.Errorf("unsupported apiVersion %q", doc.APIVersion)
	}
	return doc.Index()
}
