package condition

import (
	"encoding/json"
	"testing"

	"github.com/goliatone/go-formflow/pkg/schema"
)

type mapSnapshot map[string]any

func (m mapSnapshot) Lookup(fieldID string) (any, bool) {
	v, ok := m[fieldID]
	return v, ok
}

func ruleSchema() *schema.Schema {
	return &schema.Schema{
		Stages: []schema.Stage{{
			ID: "stage-1",
			Pages: []schema.Page{{
				ID: "page-1",
				Sections: []schema.Section{
					{
						ID: "section-1",
						Fields: []schema.Field{
							{ID: "channel", Type: schema.FieldTypeDropdown},
							{
								ID:   "brokerCode",
								Type: schema.FieldTypeText,
								Config: schema.Config{
									Visibility: json.RawMessage(`{"field":"channel","operator":"equal","value":"broker"}`),
								},
							},
							{
								ID:   "extras",
								Type: schema.FieldTypeCheckboxList,
								Config: schema.Config{
									Visibility: json.RawMessage(`{"field":"brokerCode","operator":"is_not_null"}`),
								},
							},
						},
					},
					{
						ID:         "section-2",
						Visibility: json.RawMessage(`{"field":"channel","operator":"equal","value":"direct"}`),
						Fields: []schema.Field{
							{ID: "directOnly", Type: schema.FieldTypeText},
						},
					},
				},
			}},
		}},
	}
}

func newEvaluator(snapshot Snapshot) *Evaluator {
	return New(schema.NewIndex(ruleSchema()), snapshot)
}

func TestEvalAbsentRuleIsTrue(t *testing.T) {
	e := newEvaluator(mapSnapshot{})
	for _, raw := range []string{"", "null", `""`} {
		if !e.Eval("owner:"+raw, json.RawMessage(raw)) {
			t.Fatalf("expected absent rule %q to evaluate true", raw)
		}
	}
}

func TestEvalEmptyRuleListIsTrue(t *testing.T) {
	e := newEvaluator(mapSnapshot{})
	if !e.Eval("owner:and", json.RawMessage(`{"condition":"and","rules":[]}`)) {
		t.Fatalf("expected empty and to be true")
	}
	if !e.Eval("owner:or", json.RawMessage(`{"condition":"or","rules":[]}`)) {
		t.Fatalf("expected empty or to be true")
	}
}

func TestEvalMalformedRuleDegradesToTrue(t *testing.T) {
	e := newEvaluator(mapSnapshot{})
	if !e.Eval("owner:bad", json.RawMessage(`{"operator":"wat","field":"x"}`)) {
		t.Fatalf("expected malformed rule to degrade to visible")
	}
	if !e.Eval("owner:syntax", json.RawMessage(`{"condition":`)) {
		t.Fatalf("expected unparseable rule to degrade to visible")
	}
}

func TestEvalEqual(t *testing.T) {
	e := newEvaluator(mapSnapshot{"channel": "broker"})
	rule := json.RawMessage(`{"field":"channel","operator":"equal","value":"broker"}`)
	if !e.Eval("owner:eq", rule) {
		t.Fatalf("expected equal match")
	}

	e2 := newEvaluator(mapSnapshot{"channel": "direct"})
	if e2.Eval("owner:eq", rule) {
		t.Fatalf("expected equal mismatch")
	}

	// Unset operands always compare false.
	e3 := newEvaluator(mapSnapshot{})
	if e3.Eval("owner:eq", rule) {
		t.Fatalf("expected unset field to fail equal")
	}
}

func TestEvalEqualIsStrictAcrossTypes(t *testing.T) {
	e := newEvaluator(mapSnapshot{"channel": "5"})
	if e.Eval("owner:strict", json.RawMessage(`{"field":"channel","operator":"equal","value":5}`)) {
		t.Fatalf(`expected string "5" to differ from number 5`)
	}
}

func TestEvalEqualNormalisesNumericTypes(t *testing.T) {
	e := newEvaluator(mapSnapshot{"channel": 5})
	if !e.Eval("owner:num", json.RawMessage(`{"field":"channel","operator":"equal","value":5}`)) {
		t.Fatalf("expected int 5 to equal JSON number 5")
	}
}

func TestEvalCombinators(t *testing.T) {
	snapshot := mapSnapshot{"channel": "broker", "brokerCode": "B-1"}
	e := newEvaluator(snapshot)

	and := json.RawMessage(`{"condition":"and","rules":[
		{"field":"channel","operator":"equal","value":"broker"},
		{"field":"brokerCode","operator":"is_not_null"}
	]}`)
	if !e.Eval("owner:and2", and) {
		t.Fatalf("expected and to hold")
	}

	or := json.RawMessage(`{"condition":"OR","rules":[
		{"field":"channel","operator":"equal","value":"direct"},
		{"field":"brokerCode","operator":"is_not_null"}
	]}`)
	if !e.Eval("owner:or2", or) {
		t.Fatalf("expected or to hold with upper-cased combinator")
	}
}

func TestEvalIn(t *testing.T) {
	e := newEvaluator(mapSnapshot{"channel": "broker"})
	rule := json.RawMessage(`{"field":"channel","operator":"in","value":["broker","adviser"]}`)
	if !e.Eval("owner:in", rule) {
		t.Fatalf("expected membership")
	}

	e2 := newEvaluator(mapSnapshot{"channel": "direct"})
	if e2.Eval("owner:in", rule) {
		t.Fatalf("expected non-membership")
	}
}

func TestEvalInWithListValueRequiresFullContainment(t *testing.T) {
	rule := json.RawMessage(`{"field":"channel","operator":"in","value":["a","b","c"]}`)

	e := newEvaluator(mapSnapshot{"channel": []any{"a", "b"}})
	if !e.Eval("owner:in-list", rule) {
		t.Fatalf("expected contained list to match")
	}

	e2 := newEvaluator(mapSnapshot{"channel": []any{"a", "z"}})
	if e2.Eval("owner:in-list", rule) {
		t.Fatalf("expected partially contained list to fail")
	}

	e3 := newEvaluator(mapSnapshot{"channel": []any{}})
	if e3.Eval("owner:in-list", rule) {
		t.Fatalf("expected empty list to fail membership")
	}
}

func TestEvalInDecodesSerialisedListValues(t *testing.T) {
	rule := json.RawMessage(`{"field":"channel","operator":"in","value":["a","b"]}`)
	e := newEvaluator(mapSnapshot{"channel": `["a","b"]`})
	if !e.Eval("owner:in-json", rule) {
		t.Fatalf("expected serialised array value to decode before the membership test")
	}
}

func TestEvalInAgainstInvisibleFieldFails(t *testing.T) {
	// brokerCode is only visible when channel is broker; with channel
	// direct its stale value must not satisfy membership.
	snapshot := mapSnapshot{"channel": "direct", "brokerCode": "B-1"}
	e := newEvaluator(snapshot)

	in := json.RawMessage(`{"field":"brokerCode","operator":"in","value":["B-1"]}`)
	if e.Eval("owner:in-hidden", in) {
		t.Fatalf("expected in against hidden field to fail")
	}

	notIn := json.RawMessage(`{"field":"brokerCode","operator":"not_in","value":["B-1"]}`)
	if !e.Eval("owner:notin-hidden", notIn) {
		t.Fatalf("expected not_in against hidden field to hold")
	}
}

func TestEvalIsNullTestsPresenceNotFalsiness(t *testing.T) {
	e := newEvaluator(mapSnapshot{"channel": ""})
	if e.Eval("owner:null", json.RawMessage(`{"field":"channel","operator":"is_null"}`)) {
		t.Fatalf("expected recorded empty string to count as present")
	}
	if !e.Eval("owner:notnull", json.RawMessage(`{"field":"channel","operator":"is_not_null"}`)) {
		t.Fatalf("expected recorded empty string to satisfy is_not_null")
	}

	e2 := newEvaluator(mapSnapshot{})
	if !e2.Eval("owner:null", json.RawMessage(`{"field":"channel","operator":"is_null"}`)) {
		t.Fatalf("expected unset field to satisfy is_null")
	}
}

func TestIsFieldVisible(t *testing.T) {
	e := newEvaluator(mapSnapshot{"channel": "broker"})
	if !e.IsFieldVisible("brokerCode") {
		t.Fatalf("expected brokerCode visible for broker channel")
	}
	if !e.IsFieldVisible("channel") {
		t.Fatalf("expected rule-less field visible")
	}
	if !e.IsFieldVisible("unknown") {
		t.Fatalf("expected unknown field visible")
	}

	e2 := newEvaluator(mapSnapshot{"channel": "direct"})
	if e2.IsFieldVisible("brokerCode") {
		t.Fatalf("expected brokerCode hidden for direct channel")
	}
}

func TestFieldInheritsSectionInvisibility(t *testing.T) {
	e := newEvaluator(mapSnapshot{"channel": "broker"})
	if e.IsFieldVisible("directOnly") {
		t.Fatalf("expected field inside hidden section to be hidden")
	}
	if e.IsSectionVisible("section-2") {
		t.Fatalf("expected section-2 hidden for broker channel")
	}
	if !e.IsSectionVisible("section-1") {
		t.Fatalf("expected rule-less section visible")
	}
}

func TestCyclicVisibilityTerminates(t *testing.T) {
	s := &schema.Schema{
		Stages: []schema.Stage{{
			ID: "s",
			Pages: []schema.Page{{
				ID: "p",
				Sections: []schema.Section{{
					ID: "c",
					Fields: []schema.Field{
						{
							ID: "a",
							Config: schema.Config{
								Visibility: json.RawMessage(`{"field":"b","operator":"in","value":["x"]}`),
							},
						},
						{
							ID: "b",
							Config: schema.Config{
								Visibility: json.RawMessage(`{"field":"a","operator":"in","value":["x"]}`),
							},
						},
					},
				}},
			}},
		}},
	}
	e := New(schema.NewIndex(s), mapSnapshot{"a": "x", "b": "x"})

	// A re-entered field counts as visible, so the mutual references
	// resolve instead of recursing.
	if !e.IsFieldVisible("a") {
		t.Fatalf("expected cyclic rule to resolve visible")
	}
	if !e.IsFieldVisible("b") {
		t.Fatalf("expected cyclic rule to resolve visible")
	}
}

func TestInvalidate(t *testing.T) {
	e := newEvaluator(mapSnapshot{"channel": "broker"})
	rule := json.RawMessage(`{"field":"channel","operator":"equal","value":"broker"}`)
	if !e.Eval("owner:x", rule) {
		t.Fatalf("expected rule to hold")
	}
	e.Invalidate("owner:x")
	replacement := json.RawMessage(`{"field":"channel","operator":"equal","value":"direct"}`)
	if e.Eval("owner:x", replacement) {
		t.Fatalf("expected replaced rule to be recompiled after invalidation")
	}
}
