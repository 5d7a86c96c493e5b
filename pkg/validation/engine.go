// Package validation decides whether field values satisfy their
// definitions: required-ness gated by visibility, bespoke checks for
// verification and payment types, recursive grouplet validation, repeatable
// row counts, and the ordered custom-validator pass.
package validation

import (
	"log/slog"
	"sync"

	"github.com/goliatone/go-formflow/pkg/condition"
	"github.com/goliatone/go-formflow/pkg/fieldpath"
	"github.com/goliatone/go-formflow/pkg/schema"
	"github.com/goliatone/go-formflow/pkg/values"
)

// Messages surfaced to respondents. Hosts can override them wholesale via
// WithMessages.
type Messages struct {
	EmptyField       string
	CustomValidation string
	MustBeVerified   string
	PaymentRequired  string
	ValidABNRequired string
}

// DefaultMessages returns the stock English messages.
func DefaultMessages() Messages {
	return Messages{
		EmptyField:       "This field cannot be empty",
		CustomValidation: "This field failed custom validation",
		MustBeVerified:   "You must first complete verification",
		PaymentRequired:  "Payment is required before proceeding.",
		ValidABNRequired: "You must enter and validate a valid ABN.",
	}
}

// VerifiedMarker is the value recorded against a verification field once
// the server confirms the code.
const VerifiedMarker = "1"

// Option customises an Engine.
type Option func(*Engine)

// WithMessages overrides the user-facing message set.
func WithMessages(m Messages) Option {
	return func(e *Engine) { e.messages = m }
}

// WithLogger injects the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine evaluates field validity for one form session.
type Engine struct {
	index      *schema.Index
	store      *values.Store
	conditions *condition.Evaluator
	messages   Messages
	logger     *slog.Logger

	mu           sync.Mutex
	custom       map[string]ValidatorFunc
	verifiedABNs map[string]struct{}
	paidFields   map[string]struct{}
}

// New constructs a validation engine.
func New(index *schema.Index, store *values.Store, conditions *condition.Evaluator, opts ...Option) *Engine {
	e := &Engine{
		index:        index,
		store:        store,
		conditions:   conditions,
		messages:     DefaultMessages(),
		logger:       slog.Default(),
		custom:       map[string]ValidatorFunc{},
		verifiedABNs: map[string]struct{}{},
		paidFields:   map[string]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// MarkABNVerified records a server-confirmed ABN.
func (e *Engine) MarkABNVerified(abn string) {
	if abn == "" {
		return
	}
	e.mu.Lock()
	e.verifiedABNs[abn] = struct{}{}
	e.mu.Unlock()
}

// ABNVerified reports whether the value has been confirmed server-side.
func (e *Engine) ABNVerified(abn string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.verifiedABNs[abn]
	return ok
}

// MarkPaymentComplete records a completed payment for a credit-card field.
func (e *Engine) MarkPaymentComplete(fieldID string) {
	if fieldID == "" {
		return
	}
	e.mu.Lock()
	e.paidFields[fieldID] = struct{}{}
	e.mu.Unlock()
}

func (e *Engine) paymentComplete(fieldID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.paidFields[fieldID]
	return ok
}

// IsValid reports whether the candidate value would satisfy the field. The
// field is addressed by bare id; grouplet children are checked against
// their own qualified paths.
func (e *Engine) IsValid(fieldID string, candidate any) bool {
	field, ok := e.index.Field(fieldID)
	if !ok {
		// Unknown fields do not participate in validation.
		return true
	}
	return e.fieldValid(field, fieldpath.New(fieldID), candidate)
}

// fieldValid mirrors the short-circuit order the form tool defined:
// invisible fields pass outright, the required/empty test beats custom
// validators, non-repeatable grouplets recurse, everything else runs the
// validator list.
func (e *Engine) fieldValid(field schema.Field, path fieldpath.Path, candidate any) bool {
	if !e.conditions.IsFieldVisible(field.ID) {
		return true
	}

	if field.Config.Required && isEmpty(candidate) && !field.Repeatable() {
		// A non-empty default is an implicitly satisfied value.
		return field.Config.Default != ""
	}

	if field.Type == schema.FieldTypeGrouplet && !field.Config.Repeatable {
		for _, child := range field.Children() {
			childPath := path.Child(child.ID)
			childValue, _ := e.store.Lookup(childPath.String())
			if childValue == nil {
				childValue = ""
			}
			if !e.fieldValid(child, childPath, childValue) {
				return false
			}
		}
		return true
	}

	if field.Repeatable() {
		if field.Config.Required && len(rowsOf(candidate)) == 0 {
			return false
		}
		return true
	}

	return len(e.customErrors(field, candidate)) == 0
}

// FieldErrors returns the user-visible error messages for the field's
// current stored value.
func (e *Engine) FieldErrors(fieldID string) []string {
	field, ok := e.index.Field(fieldID)
	if !ok {
		return nil
	}
	value, _ := e.store.Lookup(fieldID)
	if value == nil {
		value = ""
	}
	return e.errorsFor(field, value)
}

// errorsFor materialises messages in display order. Hidden fields and
// fields inside hidden sections or grouplets never surface errors. The ABN
// check and the required/empty check each short-circuit the custom
// validator pass.
func (e *Engine) errorsFor(field schema.Field, value any) []string {
	if !e.fieldRendered(field.ID) {
		return nil
	}

	if field.Type == schema.FieldTypeABNVerification {
		str, _ := value.(string)
		if !e.ABNVerified(str) {
			return []string{e.messages.ValidABNRequired}
		}
	} else if field.Config.Required && isEmpty(value) && field.Config.Default == "" {
		return []string{e.messages.EmptyField}
	}

	return e.customErrors(field, value)
}

// fieldRendered reports whether the field, its section, and every ancestor
// grouplet are currently visible.
func (e *Engine) fieldRendered(fieldID string) bool {
	if !e.conditions.IsFieldVisible(fieldID) {
		return false
	}
	if sectionID, ok := e.index.SectionOfField(fieldID); ok {
		if !e.conditions.IsSectionVisible(sectionID) {
			return false
		}
	}
	for id := fieldID; ; {
		parent, ok := e.index.ParentOfField(id)
		if !ok {
			return true
		}
		if !e.conditions.IsFieldVisible(parent) {
			return false
		}
		id = parent
	}
}

// PageErrors aggregates per-field error lists for every required, visible,
// editable field rendered on the page, keyed by field id. Grouplet children
// are checked under their grouplet-qualified paths; repeatable templates
// are checked as row collections, not per template field.
func (e *Engine) PageErrors(pageID string) map[string][]string {
	out := map[string][]string{}
	page, ok := e.index.Page(pageID)
	if !ok {
		return out
	}
	for _, section := range page.Sections {
		if !e.conditions.IsSectionVisible(section.ID) {
			continue
		}
		for _, field := range section.Fields {
			e.collectPageErrors(field, fieldpath.New(field.ID), out)
		}
	}
	return out
}

// PageValid reports whether the aggregate error map for the page is empty.
func (e *Engine) PageValid(pageID string) bool {
	return len(e.PageErrors(pageID)) == 0
}

func (e *Engine) collectPageErrors(field schema.Field, path fieldpath.Path, out map[string][]string) {
	if !e.conditions.IsFieldVisible(field.ID) {
		return
	}

	if field.Type == schema.FieldTypeGrouplet && !field.Repeatable() {
		for _, child := range field.Children() {
			e.collectPageErrors(child, path.Child(child.ID), out)
		}
		return
	}

	// Content-only and read-only fields never require values.
	if exemptFromPageValidation(field) {
		return
	}
	if !field.Config.Required {
		return
	}

	value, _ := e.store.Lookup(path.String())
	if value == nil {
		value = ""
	}

	var errs []string
	switch {
	case field.Type == schema.FieldTypeCreditCard:
		if !e.paymentComplete(field.ID) {
			errs = append(errs, e.messages.PaymentRequired)
		}
	case field.Type.Verification():
		if marker, _ := value.(string); marker != VerifiedMarker {
			errs = append(errs, e.messages.MustBeVerified)
		}
	case field.Type == schema.FieldTypeSignature:
		if isEmpty(value) {
			errs = append(errs, e.messages.EmptyField)
		}
	case field.Repeatable():
		if len(rowsOf(value)) == 0 {
			errs = append(errs, e.messages.EmptyField)
		}
	default:
		errs = e.errorsFor(field, value)
	}

	if len(errs) > 0 {
		out[path.String()] = errs
	}
}

func exemptFromPageValidation(field schema.Field) bool {
	if field.Config.ReadOnly {
		return true
	}
	switch field.Type {
	case schema.FieldTypeRichTextArea, schema.FieldTypeReviewTable,
		schema.FieldTypeHidden:
		return true
	default:
		return false
	}
}
