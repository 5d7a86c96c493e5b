package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goliatone/go-formflow/pkg/schema"
)

// ValidatorFunc implements one custom validator: params come from the field
// definition, value is the current candidate. A false return contributes
// one error message.
type ValidatorFunc func(params []any, value any) bool

// RegisterValidator installs an externally supplied comparator under the
// given type name, overriding any builtin of the same name.
func (e *Engine) RegisterValidator(name string, fn ValidatorFunc) {
	if name == "" || fn == nil {
		return
	}
	e.mu.Lock()
	e.custom[normalizeValidatorName(name)] = fn
	e.mu.Unlock()
}

// customErrors runs the field's ordered validator list in full: every
// failing validator contributes its message (or the generic fallback), no
// first-failure short-circuit.
func (e *Engine) customErrors(field schema.Field, value any) []string {
	var errs []string
	for _, spec := range field.Config.Validators {
		fn := e.lookupValidator(spec.Type)
		if fn == nil {
			e.logger.Warn("validation: unknown validator type, skipping",
				"type", spec.Type)
			continue
		}
		if fn(spec.Params, value) {
			continue
		}
		if spec.Error != "" {
			errs = append(errs, spec.Error)
		} else {
			errs = append(errs, e.messages.CustomValidation)
		}
	}
	return errs
}

func (e *Engine) lookupValidator(name string) ValidatorFunc {
	normalized := normalizeValidatorName(name)
	e.mu.Lock()
	fn, ok := e.custom[normalized]
	e.mu.Unlock()
	if ok {
		return fn
	}
	return builtinValidators[normalized]
}

// normalizeValidatorName folds snake_case definition names into the
// camelCase registry keys ("regular_expression" and "regularExpression"
// address the same validator).
func normalizeValidatorName(name string) string {
	name = strings.TrimSpace(name)
	if !strings.Contains(name, "_") {
		return name
	}
	parts := strings.Split(name, "_")
	var b strings.Builder
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i == 0 {
			b.WriteString(strings.ToLower(part[:1]) + part[1:])
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	return b.String()
}

var builtinValidators = map[string]ValidatorFunc{
	"range":             validateRange,
	"min":               validateMin,
	"max":               validateMax,
	"regularExpression": validateRegularExpression,
}

func validateRange(params []any, value any) bool {
	val, ok := numeric(value)
	if !ok || len(params) < 2 {
		return false
	}
	min, okMin := numeric(params[0])
	max, okMax := numeric(params[1])
	return okMin && okMax && val >= min && val <= max
}

func validateMin(params []any, value any) bool {
	val, ok := numeric(value)
	if !ok || len(params) < 1 {
		return false
	}
	min, okMin := numeric(params[0])
	return okMin && val >= min
}

func validateMax(params []any, value any) bool {
	val, ok := numeric(value)
	if !ok || len(params) < 1 {
		return false
	}
	max, okMax := numeric(params[0])
	return okMax && val <= max
}

func validateRegularExpression(params []any, value any) bool {
	if len(params) < 1 {
		return false
	}
	pattern := fmt.Sprint(params[0])
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(fmt.Sprint(value))
}

func numeric(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// isEmpty implements the generic emptiness test: nil, blank strings, and
// zero-length collections are empty. Numbers and booleans never are.
func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case []map[string]any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

// rowsOf normalises a repeatable field's stored value into its row list.
func rowsOf(value any) []map[string]any {
	switch rows := value.(type) {
	case []map[string]any:
		return rows
	case []any:
		out := make([]map[string]any, 0, len(rows))
		for _, entry := range rows {
			if m, ok := entry.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}
