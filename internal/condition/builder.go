package condition

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ghalamif/AegisWatch/internal/domain"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

// ErrInvalidGraph wraps every structural problem found while building a registry.
var ErrInvalidGraph = errors.New("invalid condition graph")

type refKind uint8

const (
	refLeaf refKind = iota + 1
	refNode
)

// Ref is a stable index into the registry arena. The zero Ref is invalid.
type Ref struct {
	kind refKind
	idx  int
}

func (r Ref) IsLeaf() bool { return r.kind == refLeaf }
func (r Ref) IsNode() bool { return r.kind == refNode }
func (r Ref) IsValid() bool {
	return (r.kind == refLeaf || r.kind == refNode) && r.idx >= 0
}

func (r Ref) String() string {
	switch r.kind {
	case refLeaf:
		return fmt.Sprintf("leaf#%d", r.idx)
	case refNode:
		return fmt.Sprintf("node#%d", r.idx)
	default:
		return "invalid"
	}
}

type leaf struct {
	field     string
	op        Operator
	threshold domain.Value
	status    bool
	parents   []int
}

type node struct {
	rule      Rule
	children  []Ref
	trueCount int
	status    bool
	parents   []int
	roots     []int
}

// Root is a node designated as a monitoring target.
type Root struct {
	ID      int
	Name    string
	Actions []ports.Action

	node int
}

// Builder assembles the arena. Nodes may only reference refs created before
// them, so the graph it produces is acyclic by construction.
type Builder struct {
	leaves []leaf
	nodes  []node
	roots  map[int]*Root
	errs   []error
}

func NewBuilder() *Builder {
	return &Builder{roots: make(map[int]*Root)}
}

// Leaf adds a predicate "field op threshold".
func (b *Builder) Leaf(field string, op Operator, threshold domain.Value) Ref {
	if field == "" {
		b.fail("leaf %d: empty field name", len(b.leaves))
	}
	if op < OpEqual || op > OpGreaterEqual {
		b.fail("leaf %d (%s): invalid operator", len(b.leaves), field)
	}
	if !threshold.IsValid() {
		b.fail("leaf %d (%s): threshold has no kind", len(b.leaves), field)
	}
	b.leaves = append(b.leaves, leaf{field: field, op: op, threshold: threshold})
	return Ref{kind: refLeaf, idx: len(b.leaves) - 1}
}

// Node adds an aggregation node. Repeated children are counted once.
func (b *Builder) Node(rule Rule, children ...Ref) Ref {
	idx := len(b.nodes)
	seen := make(map[Ref]struct{}, len(children))
	uniq := make([]Ref, 0, len(children))
	for _, c := range children {
		if !b.exists(c) {
			b.fail("node %d: dangling child %s", idx, c)
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		uniq = append(uniq, c)
	}

	switch rule.kind {
	case ruleNot:
		if len(uniq) != 1 {
			b.fail("node %d: not requires exactly one child, got %d", idx, len(uniq))
		}
	case ruleAtLeast:
		if rule.n < 1 || rule.n > len(uniq) {
			b.fail("node %d: at_least(%d) with %d children", idx, rule.n, len(uniq))
		}
	case ruleAnd, ruleOr:
	default:
		b.fail("node %d: invalid rule", idx)
	}

	for _, c := range uniq {
		if c.kind == refLeaf {
			b.leaves[c.idx].parents = append(b.leaves[c.idx].parents, idx)
		} else {
			b.nodes[c.idx].parents = append(b.nodes[c.idx].parents, idx)
		}
	}
	b.nodes = append(b.nodes, node{rule: rule, children: uniq})
	return Ref{kind: refNode, idx: idx}
}

// Root designates a node as monitored condition id with ordered actions.
func (b *Builder) Root(id int, name string, target Ref, actions ...ports.Action) {
	if _, dup := b.roots[id]; dup {
		b.fail("root %d: duplicate id", id)
		return
	}
	if target.kind != refNode || !b.exists(target) {
		b.fail("root %d: target %s is not a node", id, target)
		return
	}
	for i, a := range actions {
		if a == nil {
			b.fail("root %d: action %d is nil", id, i)
			return
		}
	}
	b.roots[id] = &Root{ID: id, Name: name, Actions: actions, node: target.idx}
	b.nodes[target.idx].roots = append(b.nodes[target.idx].roots, id)
}

// Build validates the graph and computes initial statuses bottom-up from all
// leaves being false. Roots that are already true are recorded as active
// without firing their actions.
func (b *Builder) Build(opts ...Option) (*Registry, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGraph, errors.Join(b.errs...))
	}

	r := &Registry{
		leaves:  b.leaves,
		nodes:   b.nodes,
		roots:   b.roots,
		trueIDs: make(map[int]time.Time),
		obs:     ports.NopObservability{},
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	for id := range r.roots {
		r.order = append(r.order, id)
	}
	sort.Ints(r.order)

	// Creation order is a topological order.
	for i := range r.nodes {
		n := &r.nodes[i]
		n.trueCount = 0
		for _, c := range n.children {
			if r.statusOf(c) {
				n.trueCount++
			}
		}
		n.status = n.rule.holds(n.trueCount, len(n.children))
	}
	at := r.now()
	for _, id := range r.order {
		if r.nodes[r.roots[id].node].status {
			r.trueIDs[id] = at
		}
	}
	r.obs.SetGauge(ports.GaugeActiveConditions, float64(len(r.trueIDs)))

	b.leaves, b.nodes, b.roots = nil, nil, make(map[int]*Root)
	return r, nil
}

func (b *Builder) exists(r Ref) bool {
	switch r.kind {
	case refLeaf:
		return r.idx >= 0 && r.idx < len(b.leaves)
	case refNode:
		return r.idx >= 0 && r.idx < len(b.nodes)
	default:
		return false
	}
}

func (b *Builder) fail(format string, args ...any) {
	b.errs = append(b.errs, fmt.Errorf(format, args...))
}
