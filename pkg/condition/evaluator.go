package condition

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/goliatone/go-formflow/pkg/schema"
)

// Snapshot provides read-only access to the current value store. Lookup
// reports whether any value has been recorded for the field, so evaluators
// can distinguish "unset" from falsy values.
type Snapshot interface {
	Lookup(fieldID string) (any, bool)
}

// Option customises an Evaluator.
type Option func(*Evaluator)

// WithLogger injects the logger used for malformed-rule warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Evaluator compiles and caches rule trees for a single form session. It is
// a pure function of the value snapshot: identical store contents always
// produce identical answers, keeping re-evaluation idempotent.
type Evaluator struct {
	index  *schema.Index
	values Snapshot
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]*compiled
}

// compiled is a cache slot. A nil node means "condition absent": the owner
// is unconditionally visible.
type compiled struct {
	node node
}

// New constructs an evaluator over the given schema index and value
// snapshot.
func New(index *schema.Index, values Snapshot, opts ...Option) *Evaluator {
	e := &Evaluator{
		index:  index,
		values: values,
		logger: slog.Default(),
		cache:  map[string]*compiled{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Eval evaluates a raw rule document cached under the owner key. Owner keys
// are namespaced by the caller ("field:x", "route:p:q") so distinct owners
// never share slots.
func (e *Evaluator) Eval(ownerKey string, raw json.RawMessage) bool {
	return e.eval(ownerKey, raw, newGuard())
}

// IsFieldVisible evaluates the field's own visibility rule. Unknown fields
// and absent or malformed rules are visible.
func (e *Evaluator) IsFieldVisible(fieldID string) bool {
	return e.fieldVisible(fieldID, newGuard())
}

// IsSectionVisible evaluates the section's visibility rule. Unknown
// sections and absent rules are visible.
func (e *Evaluator) IsSectionVisible(sectionID string) bool {
	section, ok := e.index.Section(sectionID)
	if !ok {
		return true
	}
	return e.eval("section:"+sectionID, section.Visibility, newGuard())
}

// Invalidate drops a cached predicate. The schema is immutable, so this is
// only needed when a registered owner's rule is replaced wholesale (tests,
// imported sub-forms).
func (e *Evaluator) Invalidate(ownerKey string) {
	e.mu.Lock()
	delete(e.cache, ownerKey)
	e.mu.Unlock()
}

// guard tracks fields whose visibility is mid-evaluation so mutually
// referencing rules cannot recurse forever. A re-entered field evaluates as
// visible, matching the engine's permissive posture for degenerate rules.
type guard map[string]struct{}

func newGuard() guard { return guard{} }

func (e *Evaluator) fieldVisible(fieldID string, g guard) bool {
	if _, busy := g[fieldID]; busy {
		return true
	}
	field, ok := e.index.Field(fieldID)
	if !ok {
		return true
	}
	// A field inherits invisibility from its owning section.
	if sectionID, ok := e.index.SectionOfField(fieldID); ok {
		section, found := e.index.Section(sectionID)
		if found && len(section.Visibility) > 0 {
			if !e.eval("section:"+sectionID, section.Visibility, g) {
				return false
			}
		}
	}
	if len(field.Config.Visibility) == 0 {
		return true
	}
	g[fieldID] = struct{}{}
	defer delete(g, fieldID)
	return e.eval("field:"+fieldID, field.Config.Visibility, g)
}

func (e *Evaluator) eval(ownerKey string, raw json.RawMessage, g guard) bool {
	slot := e.compile(ownerKey, raw)
	if slot.node == nil {
		return true
	}
	return slot.node.eval(e, g)
}

func (e *Evaluator) compile(ownerKey string, raw json.RawMessage) *compiled {
	e.mu.Lock()
	defer e.mu.Unlock()
	if slot, ok := e.cache[ownerKey]; ok {
		return slot
	}

	slot := &compiled{}
	rule, err := decodeRule(raw)
	switch {
	case err != nil:
		e.logger.Warn("condition: malformed rule, treating as absent",
			"owner", ownerKey, "error", err)
	case rule != nil:
		slot.node = compileRule(*rule)
	}
	e.cache[ownerKey] = slot
	return slot
}
