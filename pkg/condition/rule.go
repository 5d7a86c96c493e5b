// Package condition compiles declarative AND/OR rule trees into boolean
// predicates evaluated against the current value store. Compiled predicates
// are cached per owning field, section, or route; malformed rule documents
// degrade to "condition absent" (always true) instead of raising, so a bad
// definition can never hide the whole form.
package condition

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Combinator joins the results of a node's child rules.
type Combinator string

const (
	CombinatorAnd Combinator = "and"
	CombinatorOr  Combinator = "or"
)

// Operator is the fixed comparator set usable inside visibility rules.
type Operator string

const (
	OpEqual     Operator = "equal"
	OpIn        Operator = "in"
	OpNotIn     Operator = "not_in"
	OpIsNull    Operator = "is_null"
	OpIsNotNull Operator = "is_not_null"
)

// Rule is one node of a rule tree: either a branch (Condition + Rules) or a
// leaf comparison (Field + Operator + Value). A node may be both, in which
// case the leaf comparison joins the nested results under the node's
// combinator, matching how the authoring tool emits mixed nodes.
type Rule struct {
	Condition Combinator `json:"condition,omitempty"`
	Rules     []Rule     `json:"rules,omitempty"`
	Field     string     `json:"field,omitempty"`
	Operator  Operator   `json:"operator,omitempty"`
	Value     any        `json:"value,omitempty"`
}

// Leaf reports whether the node carries a field comparison.
func (r Rule) Leaf() bool { return r.Field != "" }

// Branch reports whether the node has nested rules.
func (r Rule) Branch() bool { return len(r.Rules) > 0 }

// decodeRule parses a raw rule document. An empty document is not an error;
// it decodes to nil, meaning "condition absent".
func decodeRule(raw json.RawMessage) (*Rule, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || trimmed == `""` {
		return nil, nil
	}
	var rule Rule
	if err := json.Unmarshal([]byte(trimmed), &rule); err != nil {
		return nil, fmt.Errorf("condition: decode rule: %w", err)
	}
	if err := checkRule(rule, 0); err != nil {
		return nil, err
	}
	return &rule, nil
}

const maxRuleDepth = 32

func checkRule(r Rule, depth int) error {
	if depth > maxRuleDepth {
		return errors.New("condition: rule tree too deep")
	}
	switch r.Condition {
	case "", CombinatorAnd, CombinatorOr:
	default:
		// Tolerate upper-cased combinators from older definitions.
		switch Combinator(strings.ToLower(string(r.Condition))) {
		case CombinatorAnd, CombinatorOr:
		default:
			return fmt.Errorf("condition: unknown combinator %q", r.Condition)
		}
	}
	if r.Leaf() {
		switch r.Operator {
		case OpEqual, OpIn, OpNotIn, OpIsNull, OpIsNotNull:
		default:
			return fmt.Errorf("condition: unknown operator %q", r.Operator)
		}
	}
	if r.Branch() {
		for _, child := range r.Rules {
			if err := checkRule(child, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r Rule) combinator() Combinator {
	if Combinator(strings.ToLower(string(r.Condition))) == CombinatorOr {
		return CombinatorOr
	}
	// Default combinator is AND when unspecified.
	return CombinatorAnd
}
