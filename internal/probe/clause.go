package probe

import (
	"fmt"
	"slices"
	"strings"

	"github.com/modindex/modindex/internal/core"
)

// clause is one parsed export or import entry: value;attr=x;directive:=y.
type clause struct {
	value      string
	attributes map[string]string
	directives map[string]string
}

func parseClause(entry string) (clause, error) {
	parts := strings.Split(entry, ";")
	c := clause{
		value:      strings.TrimSpace(parts[0]),
		attributes: map[string]string{},
		directives: map[string]string{},
	}
	if c.value == "" {
		return clause{}, fmt.Errorf("entry %q has no value", entry)
	}
	if strings.ContainsAny(c.value, "()&=") {
		return clause{}, fmt.Errorf("entry %q has reserved characters in its value", entry)
	}

	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if key, val, ok := strings.Cut(p, ":="); ok {
			c.directives[strings.TrimSpace(key)] = unquote(val)
			continue
		}
		key, val, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		val = unquote(val)
		if !ok || key == "" || val == "" || strings.ContainsAny(key+val, "()&") {
			return clause{}, fmt.Errorf("entry %q has malformed attribute %q", entry, p)
		}
		c.attributes[key] = val
	}
	return c, nil
}

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}

// exportCapability turns an export entry into a package capability.
func exportCapability(entry string) (core.Capability, error) {
	c, err := parseClause(entry)
	if err != nil {
		return core.Capability{}, err
	}
	props := map[string]string{core.KindPackage: c.value}
	for k, v := range c.attributes {
		props[k] = v
	}
	return core.Capability{Kind: core.KindPackage, Properties: props}, nil
}

// importRequirement turns an import entry into a package requirement.
// Attributes become additional equality terms, resolution:=optional marks
// the requirement optional and cardinality:=multiple lets it bind several
// providers.
func importRequirement(entry string) (core.Requirement, error) {
	c, err := parseClause(entry)
	if err != nil {
		return core.Requirement{}, err
	}

	pairs := [][2]string{{core.KindPackage, c.value}}
	keys := make([]string, 0, len(c.attributes))
	for k := range c.attributes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		pairs = append(pairs, [2]string{k, c.attributes[k]})
	}

	return core.Requirement{
		Kind:        core.KindPackage,
		Filter:      core.EqualityFilter(pairs...),
		Optional:    c.directives["resolution"] == "optional",
		Multiple:    c.directives["cardinality"] == "multiple",
		Description: "requires package " + c.value,
	}, nil
}
