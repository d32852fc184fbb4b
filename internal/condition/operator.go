package condition

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ghalamif/AegisWatch/internal/domain"
)

// Operator is the relational operator of a leaf predicate.
type Operator uint8

const (
	OpEqual Operator = iota + 1
	OpNotEqual
	OpLess
	OpGreater
	OpLessEqual
	OpGreaterEqual
)

// ParseOperator accepts both symbolic ("<=") and mnemonic ("lte") spellings.
func ParseOperator(s string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "=", "==", "eq":
		return OpEqual, nil
	case "!=", "<>", "ne":
		return OpNotEqual, nil
	case "<", "lt":
		return OpLess, nil
	case ">", "gt":
		return OpGreater, nil
	case "<=", "le", "lte":
		return OpLessEqual, nil
	case ">=", "ge", "gte":
		return OpGreaterEqual, nil
	default:
		return 0, fmt.Errorf("unknown operator %q", s)
	}
}

func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "=="
	case OpNotEqual:
		return "!="
	case OpLess:
		return "<"
	case OpGreater:
		return ">"
	case OpLessEqual:
		return "<="
	case OpGreaterEqual:
		return ">="
	default:
		return "?"
	}
}

// Apply reports whether "value op threshold" holds. Values of different kinds
// yield domain.ErrKindMismatch. A NaN operand satisfies only OpNotEqual.
func (o Operator) Apply(value, threshold domain.Value) (bool, error) {
	c, err := value.Compare(threshold)
	if errors.Is(err, domain.ErrUnordered) {
		return o == OpNotEqual, nil
	}
	if err != nil {
		return false, err
	}
	switch o {
	case OpEqual:
		return c == 0, nil
	case OpNotEqual:
		return c != 0, nil
	case OpLess:
		return c < 0, nil
	case OpGreater:
		return c > 0, nil
	case OpLessEqual:
		return c <= 0, nil
	case OpGreaterEqual:
		return c >= 0, nil
	default:
		return false, fmt.Errorf("invalid operator %d", o)
	}
}
