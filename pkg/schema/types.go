package schema

import "encoding/json"

// FieldType is the closed enumeration of widget kinds a definition may use.
// The engine never dispatches on free-form strings; unknown types parse but
// behave as plain text inputs.
type FieldType string

const (
	FieldTypeText               FieldType = "text"
	FieldTypeDropdown           FieldType = "dropdown"
	FieldTypeTextarea           FieldType = "textarea"
	FieldTypeRadioList          FieldType = "radioList"
	FieldTypeCheckboxList       FieldType = "checkboxList"
	FieldTypeHidden             FieldType = "hidden"
	FieldTypeRichTextArea       FieldType = "richTextArea"
	FieldTypeGrouplet           FieldType = "grouplet"
	FieldTypeCreditCard         FieldType = "creditCard"
	FieldTypeEmailVerification  FieldType = "emailVerification"
	FieldTypeSMSVerification    FieldType = "smsVerification"
	FieldTypeReviewTable        FieldType = "reviewTable"
	FieldTypeSignature          FieldType = "signature"
	FieldTypeContentRadioList   FieldType = "contentRadioList"
	FieldTypeOptionTable        FieldType = "optionTable"
	FieldTypeABNVerification    FieldType = "abnVerification"
	FieldTypeRepeatableIterator FieldType = "repeatableIterator"
	FieldTypeAPILookup          FieldType = "apiLookup"
)

// Verification reports whether the field type is confirmed server-side
// rather than by inspecting its stored value.
func (t FieldType) Verification() bool {
	return t == FieldTypeEmailVerification || t == FieldTypeSMSVerification
}

// ValidatorSpec is one entry in a field's ordered custom-validator list.
// Params carry positional arguments (range bounds, a pattern, etc.) and
// Error overrides the generic failure message when present.
type ValidatorSpec struct {
	Type   string `json:"type" yaml:"type"`
	Params []any  `json:"params,omitempty" yaml:"params,omitempty"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Config is the per-field configuration bag. Visibility holds the raw rule
// document; it is compiled lazily by the condition evaluator so malformed
// rules degrade to "always visible" instead of failing the parse.
type Config struct {
	Label        string          `json:"label,omitempty"`
	Required     bool            `json:"required,omitempty"`
	ReadOnly     bool            `json:"readOnly,omitempty"`
	Default      string          `json:"defaultValue,omitempty"`
	Placeholder  string          `json:"placeholder,omitempty"`
	Visibility   json.RawMessage `json:"visibility,omitempty"`
	Validators   []ValidatorSpec `json:"validators,omitempty"`
	Repeatable   bool            `json:"repeatable,omitempty"`
	Tag          string          `json:"tag,omitempty"`
	Options      []string        `json:"options,omitempty"`
	Content      string          `json:"content,omitempty"`
	PrePopulate  []string        `json:"prePopulate,omitempty"`
	Grouplet     *Grouplet       `json:"grouplet,omitempty"`
	SourceField  string          `json:"sourceField,omitempty"`
	TargetSchema *Grouplet       `json:"targetSchema,omitempty"`
}

// Grouplet is a reusable sub-tree of field definitions embedded inside a
// parent field, optionally repeated per row.
type Grouplet struct {
	Fields []Field `json:"field"`
}

// Field is a single definition inside a section or grouplet.
type Field struct {
	ID     string    `json:"id"`
	Type   FieldType `json:"type"`
	Config Config    `json:"config"`
}

// Children returns the grouplet or iterator sub-fields, if any.
func (f Field) Children() []Field {
	switch {
	case f.Config.Grouplet != nil:
		return f.Config.Grouplet.Fields
	case f.Config.TargetSchema != nil:
		return f.Config.TargetSchema.Fields
	default:
		return nil
	}
}

// Repeatable reports whether the field's value is an ordered list of rows.
func (f Field) Repeatable() bool {
	return f.Config.Repeatable || f.Type == FieldTypeRepeatableIterator
}

// Section is an ordered list of fields with an optional visibility rule.
type Section struct {
	ID         string          `json:"id"`
	Label      string          `json:"label,omitempty"`
	Visibility json.RawMessage `json:"visibility,omitempty"`
	Fields     []Field         `json:"field"`
}

// Route is one named conditional route on a page. Routes are evaluated in
// declared order; the first whose rule holds wins.
type Route struct {
	Target string          `json:"target"`
	Rule   json.RawMessage `json:"rule"`
}

// Page is an ordered list of sections plus the page's route table.
// Completion marks the page terminal: reaching it ends the form session.
type Page struct {
	ID          string    `json:"id"`
	Label       string    `json:"label,omitempty"`
	Sections    []Section `json:"section"`
	ToCondition []Route   `json:"toCondition,omitempty"`
	Completion  bool      `json:"completion,omitempty"`
}

// Stage is an ordered list of pages. Stages are ordered within the schema
// and default navigation advances to the first page of the next stage.
type Stage struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
	Pages []Page `json:"page"`
}

// Channel names an alternate starting page for a named entry channel.
type Channel struct {
	Name    string `json:"name"`
	Default string `json:"default"`
}

// Schema is the immutable static definition tree for one form. It is loaded
// once per session; all mutation happens in the value store.
type Schema struct {
	Stages   []Stage   `json:"stage"`
	Channels []Channel `json:"channel,omitempty"`
}

// FirstPageID returns the id of the first page of the first stage, or the
// channel default when the named channel is declared. An empty schema
// returns "".
func (s *Schema) FirstPageID(channel string) string {
	if channel != "" {
		for _, c := range s.Channels {
			if c.Name == channel && c.Default != "" {
				return c.Default
			}
		}
	}
	for _, stage := range s.Stages {
		if len(stage.Pages) > 0 {
			return stage.Pages[0].ID
		}
	}
	return ""
}
