package config

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/bmatcuk/doublestar/v4"

	oerrors "github.com/modindex/modindex/internal/errors"
)

//go:embed schema.cue
var schemaCUE []byte

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString("config validation failed:\n")
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  %s: %s\n", err.Field, err.Message))
	}
	return sb.String()
}

// Unwrap makes validation failures match ErrInvalidConfig.
func (e ValidationErrors) Unwrap() error {
	return oerrors.ErrInvalidConfig
}

// Validator validates configuration against the embedded CUE schema.
type Validator struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewValidator creates a new configuration validator.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if schema.Err() != nil {
		return nil, fmt.Errorf("compiling schema: %w", schema.Err())
	}

	return &Validator{
		ctx:    ctx,
		schema: schema.LookupPath(cue.ParsePath("#Config")),
	}, nil
}

// ValidateSettings validates raw config file settings, as decoded by viper.
// Keys arrive lowercased and are matched case-insensitively.
func (v *Validator) ValidateSettings(settings map[string]any) error {
	doc := canonicalKeys(settings)

	var errs ValidationErrors
	value := v.schema.Unify(v.ctx.Encode(doc))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		for _, e := range cueerrors.Errors(err) {
			path := e.Path()
			for len(path) > 0 && strings.HasPrefix(path[0], "#") {
				path = path[1:]
			}
			field := strings.Join(path, ".")
			if field == "" {
				field = "config"
			}
			format, args := e.Msg()
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
		}
		return errs
	}

	if p, ok := doc[KeyPattern].(string); ok && !doublestar.ValidatePattern(p) {
		errs = append(errs, ValidationError{Field: KeyPattern, Message: "not a valid glob pattern"})
	}
	if d, ok := doc[KeyWatchDebounce].(string); ok {
		if parsed, err := time.ParseDuration(d); err != nil || parsed <= 0 {
			errs = append(errs, ValidationError{Field: KeyWatchDebounce, Message: "must be a positive duration such as 500ms"})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Validate checks a resolved setting set.
func (v *Validator) Validate(cfg *Config) error {
	settings := map[string]any{
		KeyBuildPolicy: cfg.BuildPolicy,
		KeyPattern:     cfg.Pattern,
		KeyCacheDir:    cfg.CacheDir,
	}
	if cfg.WatchDebounce != 0 {
		settings[KeyWatchDebounce] = cfg.WatchDebounce.String()
	}
	for k, val := range settings {
		if val == "" {
			delete(settings, k)
		}
	}
	return v.ValidateSettings(settings)
}

// canonicalKeys restores the camelCase spelling of known keys; viper
// lowercases everything it reads.
func canonicalKeys(settings map[string]any) map[string]any {
	known := []string{KeyBuildPolicy, KeyCacheDir, KeyPattern, KeyWatchDebounce, "log"}
	out := make(map[string]any, len(settings))
	for k, val := range settings {
		name := k
		for _, key := range known {
			if strings.EqualFold(k, key) {
				name = key
				break
			}
		}
		if sub, ok := val.(map[string]any); ok {
			val = canonicalKeys(sub)
		}
		out[name] = val
	}
	return out
}
