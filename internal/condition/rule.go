package condition

import (
	"fmt"
	"strings"
)

type ruleKind uint8

const (
	ruleAnd ruleKind = iota + 1
	ruleOr
	ruleAtLeast
	ruleNot
)

// Rule aggregates the number of true children of a node into its status.
type Rule struct {
	kind ruleKind
	n    int
}

func And() Rule { return Rule{kind: ruleAnd} }
func Or() Rule  { return Rule{kind: ruleOr} }
func Not() Rule { return Rule{kind: ruleNot} }

// AtLeast is the N-of-M rule.
func AtLeast(n int) Rule { return Rule{kind: ruleAtLeast, n: n} }

// ParseRule maps a configuration name to a Rule. n is only used by "at_least".
func ParseRule(name string, n int) (Rule, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "and", "all":
		return And(), nil
	case "or", "any":
		return Or(), nil
	case "not":
		return Not(), nil
	case "at_least", "n_of_m":
		if n < 1 {
			return Rule{}, fmt.Errorf("rule %s requires n >= 1, got %d", name, n)
		}
		return AtLeast(n), nil
	default:
		return Rule{}, fmt.Errorf("unknown rule %q", name)
	}
}

// holds computes a node status. A node without children is always false.
func (r Rule) holds(trueCount, total int) bool {
	if total == 0 {
		return false
	}
	switch r.kind {
	case ruleAnd:
		return trueCount == total
	case ruleOr:
		return trueCount >= 1
	case ruleAtLeast:
		return trueCount >= r.n
	case ruleNot:
		return trueCount == 0
	default:
		return false
	}
}

func (r Rule) String() string {
	switch r.kind {
	case ruleAnd:
		return "and"
	case ruleOr:
		return "or"
	case ruleNot:
		return "not"
	case ruleAtLeast:
		return fmt.Sprintf("at_least(%d)", r.n)
	default:
		return "invalid"
	}
}
