package core

import (
	"fmt"
	"strings"

	oerrors "github.com/modindex/modindex/internal/errors"
)

// presence is the filter value that matches any value for a key.
const presence = "*"

// Filter is a parsed conjunction of key=value terms.
//
// Grammar:
//
//	filter := '(' '&' term+ ')' | term
//	term   := '(' key '=' value ')'
//
// Keys are case-insensitive, values are case-sensitive, and the value "*"
// tests for the key's presence.
type Filter struct {
	terms []filterTerm
}

type filterTerm struct {
	key   string
	value string
}

// ParseFilter parses a filter expression. Errors wrap ErrInvalidFilter.
func ParseFilter(expr string) (Filter, error) {
	p := &filterParser{src: expr}
	f, err := p.parse()
	if err != nil {
		return Filter{}, fmt.Errorf("%w: %q: %s", oerrors.ErrInvalidFilter, expr, err.Error())
	}
	return f, nil
}

// MustParseFilter is like ParseFilter but panics on error.
func MustParseFilter(expr string) Filter {
	f, err := ParseFilter(expr)
	if err != nil {
		panic(err)
	}
	return f
}

// EqualityFilter builds the canonical conjunction for the given key/value pairs.
func EqualityFilter(pairs ...[2]string) string {
	var b strings.Builder
	b.WriteString("(&")
	for _, p := range pairs {
		b.WriteString("(")
		b.WriteString(p[0])
		b.WriteString("=")
		b.WriteString(p[1])
		b.WriteString(")")
	}
	b.WriteString(")")
	return b.String()
}

// Matches reports whether every term holds for props.
func (f Filter) Matches(props map[string]string) bool {
	if len(f.terms) == 0 {
		return false
	}
	for _, t := range f.terms {
		v, ok := lookupFold(props, t.key)
		if !ok {
			return false
		}
		if t.value != presence && v != t.value {
			return false
		}
	}
	return true
}

// String renders the filter in canonical form.
func (f Filter) String() string {
	pairs := make([][2]string, len(f.terms))
	for i, t := range f.terms {
		pairs[i] = [2]string{t.key, t.value}
	}
	return EqualityFilter(pairs...)
}

func lookupFold(props map[string]string, key string) (string, bool) {
	if v, ok := props[key]; ok {
		return v, true
	}
	for k, v := range props {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

type filterParser struct {
	src string
	pos int
}

func (p *filterParser) parse() (Filter, error) {
	p.skipSpace()
	if err := p.expect('('); err != nil {
		return Filter{}, err
	}
	p.skipSpace()

	var f Filter
	if p.peek() == '&' {
		p.pos++
		for {
			p.skipSpace()
			if p.peek() != '(' {
				break
			}
			p.pos++
			t, err := p.term()
			if err != nil {
				return Filter{}, err
			}
			f.terms = append(f.terms, t)
		}
		if len(f.terms) == 0 {
			return Filter{}, fmt.Errorf("conjunction at offset %d has no terms", p.pos)
		}
		p.skipSpace()
		if err := p.expect(')'); err != nil {
			return Filter{}, err
		}
	} else {
		t, err := p.term()
		if err != nil {
			return Filter{}, err
		}
		f.terms = append(f.terms, t)
	}

	p.skipSpace()
	if p.pos != len(p.src) {
		return Filter{}, fmt.Errorf("unexpected trailing input at offset %d", p.pos)
	}
	return f, nil
}

// term parses key=value) with the opening parenthesis already consumed.
func (p *filterParser) term() (filterTerm, error) {
	end := strings.IndexByte(p.src[p.pos:], ')')
	if end < 0 {
		return filterTerm{}, fmt.Errorf("unterminated term at offset %d", p.pos)
	}
	body := p.src[p.pos : p.pos+end]
	if strings.ContainsAny(body, "(&") {
		return filterTerm{}, fmt.Errorf("nested expression at offset %d", p.pos)
	}
	key, value, ok := strings.Cut(body, "=")
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)
	if !ok || key == "" || value == "" {
		return filterTerm{}, fmt.Errorf("malformed term %q", body)
	}
	p.pos += end + 1
	return filterTerm{key: key, value: value}, nil
}

func (p *filterParser) expect(c byte) error {
	if p.peek() != c {
		return fmt.Errorf("expected %q at offset %d", c, p.pos)
	}
	p.pos++
	return nil
}

func (p *filterParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *filterParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}
