package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Parse decodes a definition document into a Schema. JSON and YAML payloads
// are both accepted; YAML is normalised through an intermediate tree so the
// same struct tags serve both formats.
//
// Condition and validator configuration frequently arrives as JSON embedded
// inside string values (the authoring tool stores rules that way). Parse
// unwraps those strings so downstream consumers always see structured
// documents. Rich content is sanitised before it is exposed.
func Parse(doc Document) (*Schema, error) {
	raw := doc.Raw()
	if looksLikeJSON(raw) {
		return parseJSON(raw)
	}

	var tree any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("schema: decode yaml document %q: %w", doc.Location(), err)
	}
	converted, err := json.Marshal(normaliseYAML(tree))
	if err != nil {
		return nil, fmt.Errorf("schema: convert yaml document %q: %w", doc.Location(), err)
	}
	return parseJSON(converted)
}

func parseJSON(raw []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("schema: decode document: %w", err)
	}
	for si := range s.Stages {
		stage := &s.Stages[si]
		for pi := range stage.Pages {
			page := &stage.Pages[pi]
			for ri := range page.ToCondition {
				page.ToCondition[ri].Rule = unwrapJSONString(page.ToCondition[ri].Rule)
			}
			for ci := range page.Sections {
				section := &page.Sections[ci]
				section.Visibility = unwrapJSONString(section.Visibility)
				normaliseFields(section.Fields)
			}
		}
	}
	return &s, nil
}

func normaliseFields(fields []Field) {
	for i := range fields {
		cfg := &fields[i].Config
		cfg.Visibility = unwrapJSONString(cfg.Visibility)
		if cfg.Content != "" {
			cfg.Content = sanitizeContent(cfg.Content)
		}
		if cfg.Grouplet != nil {
			normaliseFields(cfg.Grouplet.Fields)
		}
		if cfg.TargetSchema != nil {
			normaliseFields(cfg.TargetSchema.Fields)
		}
	}
}

// unwrapJSONString peels string-encoded JSON: `"{\"condition\":...}"`
// becomes `{"condition":...}`. Anything else passes through untouched.
func unwrapJSONString(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return raw
	}
	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return raw
	}
	innerBytes := bytes.TrimSpace([]byte(inner))
	if !looksLikeJSON(innerBytes) {
		return raw
	}
	if !json.Valid(innerBytes) {
		return raw
	}
	return unwrapJSONString(innerBytes)
}

func looksLikeJSON(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// normaliseYAML rewrites map[any]any trees into map[string]any so they can
// round-trip through encoding/json.
func normaliseYAML(node any) any {
	switch typed := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = normaliseYAML(v)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[fmt.Sprint(k)] = normaliseYAML(v)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = normaliseYAML(v)
		}
		return out
	default:
		return node
	}
}
