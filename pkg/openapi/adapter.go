// Package openapi converts OpenAPI request bodies into form schemas.
//
// The adapter takes a single operation's JSON request body and produces a
// one-stage, one-page form whose fields mirror the body's properties. It is
// intended for bootstrapping a form definition from an existing API contract;
// the generated schema can then be edited by hand like any other.
package openapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-formflow/pkg/schema"
)

// Options controls how a document is converted.
type Options struct {
	// OperationID selects the operation whose request body becomes the
	// form. When empty the adapter uses the first operation that carries a
	// JSON request body, in path order.
	OperationID string

	// ResolveReferences validates the document and resolves $ref entries
	// before conversion.
	ResolveReferences bool
}

// Option mutates Options.
type Option func(*Options)

// WithOperationID selects a specific operation by its operationId.
func WithOperationID(id string) Option {
	return func(o *Options) { o.OperationID = id }
}

// WithResolvedReferences enables $ref resolution and document validation.
func WithResolvedReferences() Option {
	return func(o *Options) { o.ResolveReferences = true }
}

// FromDocument converts an OpenAPI document into a form schema.
func FromDocument(ctx context.Context, raw []byte, opts ...Option) (schema.Schema, error) {
	if err := ctx.Err(); err != nil {
		return schema.Schema{}, err
	}
	if len(raw) == 0 {
		return schema.Schema{}, errors.New("openapi adapter: document payload is empty")
	}

	options := Options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	loader := &openapi3.Loader{
		Context:               ctx,
		IsExternalRefsAllowed: options.ResolveReferences,
	}
	spec, err := loader.LoadFromData(raw)
	if err != nil {
		return schema.Schema{}, fmt.Errorf("openapi adapter: load document: %w", err)
	}
	if options.ResolveReferences {
		if err := spec.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
			return schema.Schema{}, fmt.Errorf("openapi adapter: validate: %w", err)
		}
	}

	operation, opID, err := selectOperation(spec, options.OperationID)
	if err != nil {
		return schema.Schema{}, err
	}

	body := requestBodySchema(operation)
	if body == nil {
		return schema.Schema{}, fmt.Errorf("openapi adapter: operation %q has no JSON request body", opID)
	}

	fields, err := convertObject(body)
	if err != nil {
		return schema.Schema{}, fmt.Errorf("openapi adapter: operation %q: %w", opID, err)
	}
	if len(fields) == 0 {
		return schema.Schema{}, fmt.Errorf("openapi adapter: operation %q produced no fields", opID)
	}

	title := operation.Summary
	if title == "" {
		title = opID
	}

	return schema.Schema{
		Stages: []schema.Stage{{
			ID:    "stage-" + opID,
			Label: title,
			Pages: []schema.Page{{
				ID:    "page-" + opID,
				Label: title,
				Sections: []schema.Section{{
					ID:     "section-" + opID,
					Fields: fields,
				}},
			}},
		}},
	}, nil
}

func selectOperation(spec *openapi3.T, wanted string) (*openapi3.Operation, string, error) {
	if spec.Paths == nil || spec.Paths.Len() == 0 {
		return nil, "", errors.New("openapi adapter: document does not contain any paths")
	}

	paths := make([]string, 0, spec.Paths.Len())
	for path := range spec.Paths.Map() {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var fallback *openapi3.Operation
	var fallbackID string
	for _, path := range paths {
		item := spec.Paths.Map()[path]
		if item == nil {
			continue
		}
		for _, candidate := range []struct {
			method string
			op     *openapi3.Operation
		}{
			{"post", item.Post},
			{"put", item.Put},
			{"patch", item.Patch},
		} {
			if candidate.op == nil {
				continue
			}
			opID := candidate.op.OperationID
			if opID == "" {
				opID = candidate.method + ":" + path
			}
			if wanted != "" {
				if opID == wanted {
					return candidate.op, opID, nil
				}
				continue
			}
			if fallback == nil && requestBodySchema(candidate.op) != nil {
				fallback = candidate.op
				fallbackID = opID
			}
		}
	}

	if wanted != "" {
		return nil, "", fmt.Errorf("openapi adapter: operation %q not found", wanted)
	}
	if fallback == nil {
		return nil, "", errors.New("openapi adapter: no operation carries a JSON request body")
	}
	return fallback, fallbackID, nil
}

func requestBodySchema(op *openapi3.Operation) *openapi3.Schema {
	if op == nil || op.RequestBody == nil || op.RequestBody.Value == nil {
		return nil
	}
	for contentType, media := range op.RequestBody.Value.Content {
		if !strings.Contains(contentType, "json") {
			continue
		}
		if media == nil || media.Schema == nil || media.Schema.Value == nil {
			continue
		}
		return media.Schema.Value
	}
	return nil
}

// convertObject maps an object schema's properties to form fields, honouring
// the required list and sorting properties for a stable output order.
func convertObject(obj *openapi3.Schema) ([]schema.Field, error) {
	if obj.Type == nil || !obj.Type.Is(openapi3.TypeObject) {
		return nil, errors.New("request body is not an object")
	}

	required := make(map[string]bool, len(obj.Required))
	for _, name := range obj.Required {
		required[name] = true
	}

	names := make([]string, 0, len(obj.Properties))
	for name := range obj.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]schema.Field, 0, len(names))
	for _, name := range names {
		ref := obj.Properties[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		field, err := convertProperty(name, ref.Value, required[name])
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		fields = append(fields, field)
	}
	return fields, nil
}

func convertProperty(name string, prop *openapi3.Schema, required bool) (schema.Field, error) {
	field := schema.Field{
		ID: name,
		Config: schema.Config{
			Label:    labelFromName(name, prop.Title),
			Required: required,
		},
	}

	if len(prop.Enum) > 0 {
		field.Type = schema.FieldTypeDropdown
		field.Config.Options = enumOptions(prop.Enum)
		return field, nil
	}

	switch {
	case prop.Type == nil, prop.Type.Is(openapi3.TypeString):
		field.Type = schema.FieldTypeText
		if prop.Format == "textarea" || prop.MaxLength != nil && *prop.MaxLength > 255 {
			field.Type = schema.FieldTypeTextarea
		}
	case prop.Type.Is(openapi3.TypeBoolean):
		field.Type = schema.FieldTypeRadioList
		field.Config.Options = []string{"Yes", "No"}
	case prop.Type.Is(openapi3.TypeInteger), prop.Type.Is(openapi3.TypeNumber):
		field.Type = schema.FieldTypeText
		field.Config.Validators = numberValidators(prop)
	case prop.Type.Is(openapi3.TypeObject):
		children, err := convertObject(prop)
		if err != nil {
			return schema.Field{}, err
		}
		field.Type = schema.FieldTypeGrouplet
		field.Config.Grouplet = &schema.Grouplet{Fields: children}
	case prop.Type.Is(openapi3.TypeArray):
		if prop.Items == nil || prop.Items.Value == nil {
			return schema.Field{}, errors.New("array property has no item schema")
		}
		item := prop.Items.Value
		if item.Type != nil && item.Type.Is(openapi3.TypeObject) {
			children, err := convertObject(item)
			if err != nil {
				return schema.Field{}, err
			}
			field.Type = schema.FieldTypeGrouplet
			field.Config.Repeatable = true
			field.Config.Grouplet = &schema.Grouplet{Fields: children}
			return field, nil
		}
		if len(item.Enum) > 0 {
			field.Type = schema.FieldTypeCheckboxList
			field.Config.Options = enumOptions(item.Enum)
			return field, nil
		}
		return schema.Field{}, fmt.Errorf("unsupported array item type %v", item.Type)
	default:
		return schema.Field{}, fmt.Errorf("unsupported property type %v", prop.Type)
	}

	return field, nil
}

func numberValidators(prop *openapi3.Schema) []schema.ValidatorSpec {
	if prop.Min == nil && prop.Max == nil {
		return nil
	}
	var specs []schema.ValidatorSpec
	switch {
	case prop.Min != nil && prop.Max != nil:
		specs = append(specs, schema.ValidatorSpec{
			Type:   "range",
			Params: []any{*prop.Min, *prop.Max},
		})
	case prop.Min != nil:
		specs = append(specs, schema.ValidatorSpec{
			Type:   "min",
			Params: []any{*prop.Min},
		})
	default:
		specs = append(specs, schema.ValidatorSpec{
			Type:   "max",
			Params: []any{*prop.Max},
		})
	}
	return specs
}

func enumOptions(values []any) []string {
	options := make([]string, 0, len(values))
	for _, value := range values {
		options = append(options, fmt.Sprintf("%v", value))
	}
	return options
}

// labelFromName derives a display label from a property name when the schema
// does not provide a title. snake_case and camelCase names both split into
// capitalised words.
func labelFromName(name, title string) string {
	if title != "" {
		return title
	}
	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	for _, r := range name {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
		case r >= 'A' && r <= 'Z':
			flush()
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	flush()
	if len(words) == 0 {
		return name
	}
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
