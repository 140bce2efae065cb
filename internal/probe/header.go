package probe

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/modindex/modindex/internal/core"
)

//go:embed header_schema.cue
var headerSchema string

// Header is the validated module header of a package.
type Header struct {
	Name    string
	Version string
	Exports []string
	Imports []string

	// declared counts the recognized keys present in the header.
	declared int
}

// Empty reports whether the header declares none of the recognized keys.
func (h *Header) Empty() bool {
	return h.declared == 0
}

// HasIdentity reports whether both name and version are declared.
func (h *Header) HasIdentity() bool {
	return h.Name != "" && h.Version != ""
}

// Identity returns the module identity, defaulting the name to fallbackName
// and the version to core.DefaultVersion.
func (h *Header) Identity(fallbackName string) core.ModuleIdentity {
	id := core.ModuleIdentity{Name: h.Name, Version: h.Version}
	if id.Name == "" {
		id.Name = fallbackName
	}
	if id.Version == "" {
		id.Version = core.DefaultVersion
	}
	return id
}

// ParseHeader compiles a module.cue body and validates it against #Header.
// Each call uses its own CUE context so headers can be parsed concurrently.
func ParseHeader(data []byte, filename string) (*Header, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(headerSchema, cue.Filename("header_schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compiling header schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Header"))

	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compiling header: %w", err)
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validating header: %w", err)
	}

	h := &Header{}
	if err := extractHeader(unified, h); err != nil {
		return nil, err
	}
	return h, nil
}

// extractHeader copies the recognized keys out of the validated value.
func extractHeader(v cue.Value, h *Header) error {
	for _, key := range []string{"name", "version"} {
		f := v.LookupPath(cue.ParsePath(key))
		if !f.Exists() {
			continue
		}
		str, err := f.String()
		if err != nil {
			return fmt.Errorf("reading %s: %w", key, err)
		}
		if key == "name" {
			h.Name = str
		} else {
			h.Version = str
		}
		h.declared++
	}

	for _, key := range []string{"exports", "imports"} {
		f := v.LookupPath(cue.ParsePath(key))
		if !f.Exists() {
			continue
		}
		list, err := stringList(f)
		if err != nil {
			return fmt.Errorf("reading %s: %w", key, err)
		}
		if key == "exports" {
			h.Exports = list
		} else {
			h.Imports = list
		}
		h.declared++
	}
	return nil
}

func stringList(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, err
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
