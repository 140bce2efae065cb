package store

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gonvenience/ytbx"
	"github.com/homeport/dyff/pkg/dyff"
	"gopkg.in/yaml.v3"

	"github.com/modindex/modindex/internal/core"
)

// ResourceChange is a resource present in both indexes with differing content.
type ResourceChange struct {
	Identity core.ModuleIdentity
	Diff     string
}

// IndexDiff is the difference between two indexes of the same directory.
type IndexDiff struct {
	Added    []core.ModuleIdentity
	Removed  []core.ModuleIdentity
	Modified []ResourceChange
}

// IsEmpty reports whether the indexes hold the same resources.
func (d *IndexDiff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Diff compares the resources of from and to. A nil from is an empty index.
// Modified resources carry a dyff report of their YAML documents.
func Diff(from, to *core.RepositoryIndex, useColor bool) (*IndexDiff, error) {
	if from == nil {
		from = core.NewRepositoryIndex(to.Directory)
	}

	result := &IndexDiff{}
	for _, r := range to.Resources() {
		prev, ok := from.Get(r.Identity())
		if !ok {
			result.Added = append(result.Added, r.Identity())
			continue
		}
		diff, err := compareResources(prev, r, useColor)
		if err != nil {
			return nil, fmt.Errorf("comparing %s: %w", r.Identity(), err)
		}
		if diff != "" {
			result.Modified = append(result.Modified, ResourceChange{Identity: r.Identity(), Diff: diff})
		}
	}
	for _, r := range from.Resources() {
		if _, ok := to.Get(r.Identity()); !ok {
			result.Removed = append(result.Removed, r.Identity())
		}
	}
	return result, nil
}

// compareResources returns the rendered dyff between two resources, empty
// when they are equal.
func compareResources(from, to *core.Resource, useColor bool) (string, error) {
	fromYAML, err := yaml.Marshal(normalized(from))
	if err != nil {
		return "", fmt.Errorf("marshaling previous resource: %w", err)
	}
	toYAML, err := yaml.Marshal(normalized(to))
	if err != nil {
		return "", fmt.Errorf("marshaling current resource: %w", err)
	}
	if bytes.Equal(fromYAML, toYAML) {
		return "", nil
	}

	fromInput, err := parseYAMLInput("persisted", fromYAML)
	if err != nil {
		return "", fmt.Errorf("parsing persisted YAML: %w", err)
	}
	toInput, err := parseYAMLInput("preview", toYAML)
	if err != nil {
		return "", fmt.Errorf("parsing preview YAML: %w", err)
	}

	report, err := dyff.CompareInputFiles(fromInput, toInput)
	if err != nil {
		return "", fmt.Errorf("comparing YAML: %w", err)
	}
	if len(report.Diffs) == 0 {
		return "", nil
	}
	return renderDyffReport(report, useColor)
}

func normalized(r *core.Resource) *core.Resource {
	c := r.Clone()
	c.LastModified = c.LastModified.UTC()
	return c
}

// parseYAMLInput parses YAML bytes into a dyff input file.
func parseYAMLInput(name string, data []byte) (ytbx.InputFile, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ytbx.InputFile{Location: name}, nil
	}

	docs, err := ytbx.LoadYAMLDocuments(data)
	if err != nil {
		return ytbx.InputFile{}, err
	}
	return ytbx.InputFile{Location: name, Documents: docs}, nil
}

func renderDyffReport(report dyff.Report, useColor bool) (string, error) {
	var buf bytes.Buffer

	w := &dyff.HumanReport{
		Report:            report,
		DoNotInspectCerts: true,
		NoTableStyle:      !useColor,
		OmitHeader:        true,
	}
	if err := w.WriteReport(io.Writer(&buf)); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}

	lines := strings.Split(buf.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
