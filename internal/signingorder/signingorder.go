// Package signingorder matches the signoffs collected on an approval against
// a declared signing order.
//
// A signing order is built from Terms (signoff type ids) combined with
// InSeries, InParallel, AnyOneOf and the repetition helpers (Optional,
// OneOrMore, ExactlyN, AtLeastN, AtMostN). Matching a chronological list of
// signed signoff ids answers two questions: is the order complete, and which
// signoff types may be signed next.
package signingorder

import "slices"

// SigningOrder is a compiled, immutable signing order.
type SigningOrder struct {
	root  *node
	terms []string
}

// MatchResult is the outcome of matching signed signoffs against an order.
type MatchResult struct {
	// Complete is true when the signed signoffs satisfy the order.
	Complete bool
	// Valid is false when the signed signoffs can never satisfy the order.
	Valid bool
	// Next lists the signoff ids that may be signed next, in declaration order.
	Next []string
}

// New compiles the given patterns. Multiple patterns are matched in series.
func New(patterns ...Pattern) (*SigningOrder, error) {
	var p Pattern = InSeries(patterns...)
	if len(patterns) == 1 && patterns[0] != nil {
		p = patterns[0]
	}
	root, err := p.build()
	if err != nil {
		return nil, err
	}
	so := &SigningOrder{root: root}
	p.walk(func(id string) {
		if !slices.Contains(so.terms, id) {
			so.terms = append(so.terms, id)
		}
	})
	return so, nil
}

// MustNew is like New but panics on an invalid pattern. Intended for
// package-level declarations.
func MustNew(patterns ...Pattern) *SigningOrder {
	so, err := New(patterns...)
	if err != nil {
		panic(err)
	}
	return so
}

// Terms returns every signoff id referenced by the order, in declaration order.
func (so *SigningOrder) Terms() []string {
	return slices.Clone(so.terms)
}

// Match matches the signed signoff ids, oldest first.
func (so *SigningOrder) Match(signed []string) MatchResult {
	cur := so.root
	for _, id := range signed {
		cur = cur.derive(id)
		if cur == fail {
			return MatchResult{}
		}
	}
	res := MatchResult{Complete: cur.nullable(), Valid: true}
	for _, id := range so.terms {
		if cur.derive(id) != fail {
			res.Next = append(res.Next, id)
		}
	}
	return res
}

// IsComplete is shorthand for Match(signed).Complete.
func (so *SigningOrder) IsComplete(signed []string) bool {
	return so.Match(signed).Complete
}
