// Package augment derives service capabilities and requirements from the
// compiled types inside module packages.
package augment

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	oerrors "github.com/modindex/modindex/internal/errors"
	"github.com/modindex/modindex/internal/probe"
)

// Structured tags recognized on types and fields.
const (
	// TagService marks a type that publishes a service.
	TagService = "service"

	// TagInject marks a field that consumes a service.
	TagInject = "inject"

	// TagOptional marks an injected field whose service may be absent.
	TagOptional = "optional"
)

// typesPrefix is the archive directory holding compiled type entries.
const typesPrefix = "types/"

// Field is a member of a compiled type.
type Field struct {
	Name string   `yaml:"name"`
	Type string   `yaml:"type"`
	Tags []string `yaml:"tags,omitempty"`
}

// HasTag reports whether the field carries tag.
func (f Field) HasTag(tag string) bool {
	return slices.Contains(f.Tags, tag)
}

// Type is a loaded compiled type.
type Type struct {
	Name    string   `yaml:"name"`
	Tags    []string `yaml:"tags,omitempty"`
	Extends string   `yaml:"extends,omitempty"`
	Fields  []Field  `yaml:"fields,omitempty"`
}

// HasTag reports whether the type carries tag.
func (t *Type) HasTag(tag string) bool {
	return slices.Contains(t.Tags, tag)
}

// TaggedFields returns the fields carrying tag, in declaration order.
func (t *Type) TaggedFields(tag string) []Field {
	var out []Field
	for _, f := range t.Fields {
		if f.HasTag(tag) {
			out = append(out, f)
		}
	}
	return out
}

// TypeInspector lists and loads the compiled types of an open module package.
type TypeInspector interface {
	// ListTypes returns the fully qualified names of the types in the archive.
	ListTypes(a *probe.Archive) []string

	// LoadType loads one type. Failures wrap ErrTypeLoad and affect only that type.
	LoadType(a *probe.Archive, name string) (*Type, error)
}

// ArchiveInspector reads YAML type documents stored under types/ in the archive.
type ArchiveInspector struct{}

// ListTypes implements TypeInspector.
func (ArchiveInspector) ListTypes(a *probe.Archive) []string {
	var names []string
	for _, entry := range a.EntryNames(typesPrefix) {
		if !strings.HasSuffix(entry, ".yaml") {
			continue
		}
		names = append(names, typeName(entry))
	}
	return names
}

// LoadType implements TypeInspector. A type whose extends chain names a type
// missing from the archive is a broken reference and fails to load.
func (i ArchiveInspector) LoadType(a *probe.Archive, name string) (*Type, error) {
	t, err := i.decode(a, name)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{name: true}
	for parent := t.Extends; parent != ""; {
		if seen[parent] {
			return nil, fmt.Errorf("%w: %s: inheritance cycle through %s", oerrors.ErrTypeLoad, name, parent)
		}
		seen[parent] = true
		if !a.Has(typeEntry(parent)) {
			return nil, fmt.Errorf("%w: %s: broken reference to %s", oerrors.ErrTypeLoad, name, parent)
		}
		p, err := i.decode(a, parent)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: loading supertype: %w", oerrors.ErrTypeLoad, name, err)
		}
		parent = p.Extends
	}
	return t, nil
}

func (ArchiveInspector) decode(a *probe.Archive, name string) (*Type, error) {
	data, err := a.ReadEntry(typeEntry(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", oerrors.ErrTypeLoad, name, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var t Type
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("%w: %s: decoding: %w", oerrors.ErrTypeLoad, name, err)
	}
	if t.Name != name {
		return nil, fmt.Errorf("%w: entry for %s declares %q", oerrors.ErrTypeLoad, name, t.Name)
	}
	return &t, nil
}

func typeEntry(name string) string {
	return typesPrefix + strings.ReplaceAll(name, ".", "/") + ".yaml"
}

func typeName(entry string) string {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(entry, typesPrefix), ".yaml")
	return strings.ReplaceAll(trimmed, "/", ".")
}
