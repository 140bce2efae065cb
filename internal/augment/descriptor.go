package augment

import (
	"github.com/modindex/modindex/internal/core"
)

// Dependency is a service consumed through an injected field.
type Dependency struct {
	Type     string
	Optional bool
}

// Descriptor is the service metadata extracted from one module package.
type Descriptor struct {
	Identity     core.ModuleIdentity
	Path         string
	Services     []string
	Dependencies []Dependency
}

// Capabilities returns one service capability per published service type.
func (d Descriptor) Capabilities() []core.Capability {
	out := make([]core.Capability, 0, len(d.Services))
	for _, s := range d.Services {
		out = append(out, core.Capability{
			Kind:       core.KindService,
			Properties: map[string]string{core.KindService: s},
		})
	}
	return out
}

// Requirements returns one service requirement per consumed service type.
func (d Descriptor) Requirements() []core.Requirement {
	out := make([]core.Requirement, 0, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		out = append(out, core.Requirement{
			Kind:        core.KindService,
			Filter:      core.EqualityFilter([2]string{core.KindService, dep.Type}),
			Optional:    dep.Optional,
			Description: "requires service " + dep.Type,
		})
	}
	return out
}

// Apply attaches the descriptor's capabilities and requirements to r.
// Returns the number of entries added.
func (d Descriptor) Apply(r *core.Resource) int {
	added := 0
	for _, c := range d.Capabilities() {
		if r.AddCapability(c) {
			added++
		}
	}
	for _, q := range d.Requirements() {
		if r.AddRequirement(q) {
			added++
		}
	}
	return added
}
