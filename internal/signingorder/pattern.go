package signingorder

import (
	"errors"
	"fmt"
)

// ErrInvalidPattern is returned when a signing order is declared incorrectly.
var ErrInvalidPattern = errors.New("invalid signing order pattern")

// Pattern is one element of a signing order. Terms name a signoff type;
// the combinators group and repeat other patterns.
type Pattern interface {
	build() (*node, error)
	walk(fn func(id string))
}

// Term matches exactly one signet of the named signoff type.
type Term string

func (t Term) build() (*node, error) {
	if t == "" {
		return nil, fmt.Errorf("%w: empty signoff id", ErrInvalidPattern)
	}
	return &node{kind: kindTerm, id: string(t)}, nil
}

func (t Term) walk(fn func(id string)) { fn(string(t)) }

// Terms converts signoff ids to patterns.
func Terms(ids ...string) []Pattern {
	out := make([]Pattern, 0, len(ids))
	for _, id := range ids {
		out = append(out, Term(id))
	}
	return out
}

type group struct {
	name    string
	combine func(a, b *node) *node
	parts   []Pattern
}

func (g *group) build() (*node, error) {
	if len(g.parts) == 0 {
		return nil, fmt.Errorf("%w: %s requires at least one pattern", ErrInvalidPattern, g.name)
	}
	var out *node
	for _, p := range g.parts {
		if p == nil {
			return nil, fmt.Errorf("%w: nil pattern in %s", ErrInvalidPattern, g.name)
		}
		n, err := p.build()
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = n
			continue
		}
		out = g.combine(out, n)
	}
	return out, nil
}

func (g *group) walk(fn func(id string)) {
	for _, p := range g.parts {
		if p != nil {
			p.walk(fn)
		}
	}
}

type bounded struct {
	name     string
	inner    Pattern
	min, max int
}

func (b *bounded) build() (*node, error) {
	if b.inner == nil {
		return nil, fmt.Errorf("%w: %s requires a pattern", ErrInvalidPattern, b.name)
	}
	if b.min < 0 || (b.max >= 0 && b.max < b.min) || b.max == 0 {
		return nil, fmt.Errorf("%w: %s bounds [%d, %d]", ErrInvalidPattern, b.name, b.min, b.max)
	}
	n, err := b.inner.build()
	if err != nil {
		return nil, err
	}
	return repeat(n, b.min, b.max), nil
}

func (b *bounded) walk(fn func(id string)) {
	if b.inner != nil {
		b.inner.walk(fn)
	}
}

// InSeries requires every pattern to be satisfied, one after the other.
func InSeries(parts ...Pattern) Pattern {
	return &group{name: "InSeries", combine: series, parts: parts}
}

// InParallel requires every pattern to be satisfied, in any interleaving.
func InParallel(parts ...Pattern) Pattern {
	return &group{name: "InParallel", combine: parallel, parts: parts}
}

// AnyOneOf is satisfied by exactly one of the given patterns.
func AnyOneOf(parts ...Pattern) Pattern {
	return &group{name: "AnyOneOf", combine: alt, parts: parts}
}

// Optional matches p zero or one time.
func Optional(p Pattern) Pattern {
	return &bounded{name: "Optional", inner: p, min: 0, max: 1}
}

// OneOrMore matches p one or more times.
func OneOrMore(p Pattern) Pattern {
	return &bounded{name: "OneOrMore", inner: p, min: 1, max: -1}
}

// ExactlyN matches p exactly n times.
func ExactlyN(p Pattern, n int) Pattern {
	return &bounded{name: "ExactlyN", inner: p, min: n, max: n}
}

// AtLeastN matches p n or more times.
func AtLeastN(p Pattern, n int) Pattern {
	return &bounded{name: "AtLeastN", inner: p, min: n, max: -1}
}

// AtMostN matches p between zero and n times.
func AtMostN(p Pattern, n int) Pattern {
	return &bounded{name: "AtMostN", inner: p, min: 0, max: n}
}
