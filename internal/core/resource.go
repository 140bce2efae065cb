package core

import (
	"maps"
	"slices"
	"time"
)

// Capability kinds produced by the indexer.
const (
	// KindPackage is an exported or imported package.
	KindPackage = "package"

	// KindService is a service type published or consumed by a module.
	KindService = "service"
)

// Capability is something a resource provides. Properties are matched by filters.
type Capability struct {
	Kind       string            `json:"kind" yaml:"kind"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Equal reports whether two capabilities have the same kind and properties.
func (c Capability) Equal(other Capability) bool {
	return c.Kind == other.Kind && maps.Equal(c.Properties, other.Properties)
}

// Requirement is something a resource needs, expressed as a filter over capabilities.
type Requirement struct {
	Kind        string `json:"kind" yaml:"kind"`
	Filter      string `json:"filter" yaml:"filter"`
	Optional    bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
	Multiple    bool   `json:"multiple,omitempty" yaml:"multiple,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// SatisfiedBy reports whether the capability has the requirement's kind and
// matches its filter. A malformed filter satisfies nothing.
func (r Requirement) SatisfiedBy(c Capability) bool {
	if r.Kind != c.Kind {
		return false
	}
	f, err := ParseFilter(r.Filter)
	if err != nil {
		return false
	}
	return f.Matches(c.Properties)
}

// Resource is one indexed module package.
type Resource struct {
	Name         string        `json:"name" yaml:"name"`
	Version      string        `json:"version" yaml:"version"`
	URI          string        `json:"uri" yaml:"uri"`
	Size         int64         `json:"size" yaml:"size"`
	LastModified time.Time     `json:"lastModified" yaml:"lastModified"`
	Capabilities []Capability  `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Requirements []Requirement `json:"requirements,omitempty" yaml:"requirements,omitempty"`
}

// Identity returns the resource's (name, version) slot.
func (r *Resource) Identity() ModuleIdentity {
	return ModuleIdentity{Name: r.Name, Version: r.Version}
}

// AddCapability appends c unless an equal capability is already present.
// Returns true when the capability was added.
func (r *Resource) AddCapability(c Capability) bool {
	for _, existing := range r.Capabilities {
		if existing.Equal(c) {
			return false
		}
	}
	r.Capabilities = append(r.Capabilities, c)
	return true
}

// AddRequirement appends q unless an identical requirement is already present.
// Returns true when the requirement was added.
func (r *Resource) AddRequirement(q Requirement) bool {
	if slices.Contains(r.Requirements, q) {
		return false
	}
	r.Requirements = append(r.Requirements, q)
	return true
}

// Properties returns the resource's own filterable properties.
func (r *Resource) Properties() map[string]string {
	return map[string]string{
		"name":    r.Name,
		"version": r.Version,
		"uri":     r.URI,
	}
}

// Matches reports whether the filter matches the resource's own properties or
// those of any of its capabilities.
func (r *Resource) Matches(f Filter) bool {
	if f.Matches(r.Properties()) {
		return true
	}
	for _, c := range r.Capabilities {
		if f.Matches(c.Properties) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the resource.
func (r *Resource) Clone() *Resource {
	out := *r
	if r.Capabilities != nil {
		out.Capabilities = make([]Capability, len(r.Capabilities))
		for i, c := range r.Capabilities {
			out.Capabilities[i] = Capability{Kind: c.Kind, Properties: maps.Clone(c.Properties)}
		}
	}
	out.Requirements = slices.Clone(r.Requirements)
	return &out
}
