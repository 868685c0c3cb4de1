package signingorder

// node is a compiled pattern. Matching works on derivatives: deriving a node
// by a signoff id yields the node that matches whatever may still follow.
// Nodes are immutable and shared between derivatives.
type node struct {
	kind        kind
	id          string
	left, right *node
	min, max    int // repeat bounds; max < 0 means unbounded
}

type kind uint8

const (
	kindEmpty kind = iota // matches only the empty sequence
	kindFail              // matches nothing
	kindTerm
	kindSeries
	kindParallel
	kindAlt
	kindRepeat
)

var (
	empty = &node{kind: kindEmpty}
	fail  = &node{kind: kindFail}
)

func series(a, b *node) *node {
	switch {
	case a == fail || b == fail:
		return fail
	case a == empty:
		return b
	case b == empty:
		return a
	}
	return &node{kind: kindSeries, left: a, right: b}
}

func parallel(a, b *node) *node {
	switch {
	case a == fail || b == fail:
		return fail
	case a == empty:
		return b
	case b == empty:
		return a
	}
	return &node{kind: kindParallel, left: a, right: b}
}

func alt(a, b *node) *node {
	switch {
	case a == fail:
		return b
	case b == fail:
		return a
	case a.equal(b):
		return a
	}
	return &node{kind: kindAlt, left: a, right: b}
}

func repeat(p *node, min, max int) *node {
	switch {
	case max == 0 || p == empty:
		return empty
	case p == fail:
		if min == 0 {
			return empty
		}
		return fail
	}
	return &node{kind: kindRepeat, left: p, min: min, max: max}
}

// nullable reports whether n accepts the empty sequence, i.e. the signing
// order is complete at this point.
func (n *node) nullable() bool {
	switch n.kind {
	case kindEmpty:
		return true
	case kindSeries, kindParallel:
		return n.left.nullable() && n.right.nullable()
	case kindAlt:
		return n.left.nullable() || n.right.nullable()
	case kindRepeat:
		return n.min == 0 || n.left.nullable()
	}
	return false
}

func (n *node) derive(id string) *node {
	switch n.kind {
	case kindTerm:
		if n.id == id {
			return empty
		}
		return fail
	case kindSeries:
		d := series(n.left.derive(id), n.right)
		if n.left.nullable() {
			d = alt(d, n.right.derive(id))
		}
		return d
	case kindParallel:
		return alt(
			parallel(n.left.derive(id), n.right),
			parallel(n.left, n.right.derive(id)),
		)
	case kindAlt:
		return alt(n.left.derive(id), n.right.derive(id))
	case kindRepeat:
		min := n.min - 1
		if min < 0 || n.left.nullable() {
			min = 0
		}
		max := n.max
		if max > 0 {
			max--
		}
		return series(n.left.derive(id), repeat(n.left, min, max))
	}
	return fail
}

func (n *node) equal(o *node) bool {
	if n == o {
		return true
	}
	if n == nil || o == nil || n.kind != o.kind {
		return false
	}
	switch n.kind {
	case kindTerm:
		return n.id == o.id
	case kindRepeat:
		return n.min == o.min && n.max == o.max && n.left.equal(o.left)
	case kindSeries, kindParallel, kindAlt:
		return n.left.equal(o.left) && n.right.equal(o.right)
	}
	return true
}
