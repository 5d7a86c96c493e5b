package condition

// node is a compiled rule-tree node, in the style of an expression AST:
// each node knows how to evaluate itself against the evaluator's snapshot.
type node interface {
	eval(e *Evaluator, g guard) bool
}

type andNode struct{ children []node }

func (n andNode) eval(e *Evaluator, g guard) bool {
	for _, child := range n.children {
		if !child.eval(e, g) {
			return false
		}
	}
	// An empty rule list evaluates true.
	return true
}

type orNode struct{ children []node }

func (n orNode) eval(e *Evaluator, g guard) bool {
	if len(n.children) == 0 {
		return true
	}
	for _, child := range n.children {
		if child.eval(e, g) {
			return true
		}
	}
	return false
}

type equalLeaf struct {
	field string
	want  any
}

func (n equalLeaf) eval(e *Evaluator, g guard) bool {
	value, ok := e.values.Lookup(n.field)
	if !ok {
		return false
	}
	return looseEqual(decodeJSONValue(value), decodeJSONValue(n.want))
}

type inLeaf struct {
	field  string
	list   []any
	negate bool
}

func (n inLeaf) eval(e *Evaluator, g guard) bool {
	return n.contains(e, g) != n.negate
}

// contains implements the `in` comparison. A hidden referenced field always
// fails the membership test so stale values of invisible fields cannot
// produce false positives; `not_in` inherits the inverse.
func (n inLeaf) contains(e *Evaluator, g guard) bool {
	if !e.fieldVisible(n.field, g) {
		return false
	}
	value, ok := e.values.Lookup(n.field)
	if !ok {
		return false
	}
	decoded := decodeJSONValue(value)

	if members, ok := asList(decoded); ok {
		// A list-typed value must be fully contained in the comparison set.
		if len(members) == 0 {
			return false
		}
		for _, member := range members {
			if !listContains(n.list, member) {
				return false
			}
		}
		return true
	}
	return listContains(n.list, decoded)
}

type nullLeaf struct {
	field  string
	negate bool
}

// eval tests recorded presence, not falsiness: an empty string counts as a
// value.
func (n nullLeaf) eval(e *Evaluator, g guard) bool {
	_, ok := e.values.Lookup(n.field)
	return ok == n.negate
}

type trueNode struct{}

func (trueNode) eval(*Evaluator, guard) bool { return true }

func compileRule(r Rule) node {
	children := make([]node, 0, len(r.Rules)+1)
	if r.Leaf() {
		children = append(children, compileLeaf(r))
	}
	if r.Branch() {
		for _, child := range r.Rules {
			children = append(children, compileRule(child))
		}
	}
	if r.combinator() == CombinatorOr {
		return orNode{children: children}
	}
	return andNode{children: children}
}

func compileLeaf(r Rule) node {
	switch r.Operator {
	case OpEqual:
		return equalLeaf{field: r.Field, want: r.Value}
	case OpIn:
		return inLeaf{field: r.Field, list: comparisonList(r.Value)}
	case OpNotIn:
		return inLeaf{field: r.Field, list: comparisonList(r.Value), negate: true}
	case OpIsNull:
		return nullLeaf{field: r.Field}
	case OpIsNotNull:
		return nullLeaf{field: r.Field, negate: true}
	default:
		// checkRule rejects anything else before compilation.
		return trueNode{}
	}
}

// comparisonList normalises the rule literal for membership tests. String
// literals holding JSON arrays are decoded; a scalar becomes a single-entry
// set.
func comparisonList(value any) []any {
	decoded := decodeJSONValue(value)
	if list, ok := asList(decoded); ok {
		return list
	}
	if decoded == nil {
		return nil
	}
	return []any{decoded}
}

func listContains(list []any, candidate any) bool {
	for _, entry := range list {
		if looseEqual(entry, candidate) {
			return true
		}
	}
	return false
}
