package prompt

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/goliatone/go-formflow/pkg/schema"
	"github.com/goliatone/go-formflow/pkg/session"
)

// scriptedDriver feeds canned answers to the walker and records output.
type scriptedDriver struct {
	inputs   []string
	selects  []int
	confirms []bool
	infos    []string
}

func (d *scriptedDriver) Input(_ context.Context, _ InputConfig) (string, error) {
	return d.popInput(), nil
}

func (d *scriptedDriver) TextArea(_ context.Context, _ InputConfig) (string, error) {
	return d.popInput(), nil
}

func (d *scriptedDriver) popInput() string {
	if len(d.inputs) == 0 {
		return ""
	}
	out := d.inputs[0]
	d.inputs = d.inputs[1:]
	return out
}

func (d *scriptedDriver) Confirm(_ context.Context, _ ConfirmConfig) (bool, error) {
	if len(d.confirms) == 0 {
		return false, nil
	}
	out := d.confirms[0]
	d.confirms = d.confirms[1:]
	return out, nil
}

func (d *scriptedDriver) Select(_ context.Context, _ SelectConfig) (int, error) {
	if len(d.selects) == 0 {
		return 0, nil
	}
	out := d.selects[0]
	d.selects = d.selects[1:]
	return out, nil
}

func (d *scriptedDriver) MultiSelect(_ context.Context, cfg SelectConfig) ([]int, error) {
	idx, err := d.Select(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	return []int{idx}, nil
}

func (d *scriptedDriver) Info(_ context.Context, msg string) error {
	d.infos = append(d.infos, msg)
	return nil
}

func walkerSchema() *schema.Schema {
	return &schema.Schema{
		Stages: []schema.Stage{
			{
				ID: "stage-1",
				Pages: []schema.Page{{
					ID:    "page-1",
					Label: "About you",
					Sections: []schema.Section{{
						ID: "section-1",
						Fields: []schema.Field{
							{ID: "name", Type: schema.FieldTypeText, Config: schema.Config{Label: "Name", Required: true}},
							{ID: "channel", Type: schema.FieldTypeDropdown, Config: schema.Config{Options: []string{"direct", "broker"}}},
							{
								ID:   "brokerCode",
								Type: schema.FieldTypeText,
								Config: schema.Config{
									Visibility: json.RawMessage(`{"field":"channel","operator":"equal","value":"broker"}`),
								},
							},
							{ID: "notice", Type: schema.FieldTypeRichTextArea, Config: schema.Config{Content: "<p>note</p>"}},
						},
					}},
				}},
			},
			{
				ID: "stage-done",
				Pages: []schema.Page{{
					ID:         "page-done",
					Label:      "Thanks!",
					Completion: true,
				}},
			},
		},
	}
}

func TestWalkerRunsToCompletion(t *testing.T) {
	sess := session.New("form-1", walkerSchema())
	driver := &scriptedDriver{
		inputs:  []string{"Ada"},
		selects: []int{0},
	}

	if err := NewWalker(sess, driver).Run(context.Background()); err != nil {
		t.Fatalf("walk: %v", err)
	}

	if v, _ := sess.Values().Lookup("name"); v != "Ada" {
		t.Fatalf("expected name Ada, got %v", v)
	}
	if v, _ := sess.Values().Lookup("channel"); v != "direct" {
		t.Fatalf("expected channel direct, got %v", v)
	}
	// brokerCode stayed hidden, so no input was consumed for it.
	if _, ok := sess.Values().Lookup("brokerCode"); ok {
		t.Fatalf("hidden field must not be prompted")
	}
	if last := driver.infos[len(driver.infos)-1]; last != "Thanks!" {
		t.Fatalf("expected terminal page label, got %q", last)
	}
}

func TestWalkerShowsContent(t *testing.T) {
	sess := session.New("form-1", walkerSchema())
	driver := &scriptedDriver{inputs: []string{"Ada"}, selects: []int{0}}

	if err := NewWalker(sess, driver).Run(context.Background()); err != nil {
		t.Fatalf("walk: %v", err)
	}
	var sawContent bool
	for _, msg := range driver.infos {
		if msg == "<p>note</p>" {
			sawContent = true
		}
	}
	if !sawContent {
		t.Fatalf("expected rich content announced, got %v", driver.infos)
	}
}

func TestWalkerRepromptsInvalidPage(t *testing.T) {
	sess := session.New("form-1", walkerSchema())
	// First pass leaves the required name empty; the second provides it.
	driver := &scriptedDriver{
		inputs:  []string{"", "Ada"},
		selects: []int{0, 0},
	}

	if err := NewWalker(sess, driver).Run(context.Background()); err != nil {
		t.Fatalf("walk: %v", err)
	}
	if v, _ := sess.Values().Lookup("name"); v != "Ada" {
		t.Fatalf("expected second answer accepted, got %v", v)
	}

	var sawError bool
	for _, msg := range driver.infos {
		if msg == "Name: This field cannot be empty" {
			sawError = true
		}
	}
	if !sawError {
		t.Fatalf("expected validation message reported, got %v", driver.infos)
	}
}

func TestWalkerVisibilityFollowsAnswers(t *testing.T) {
	sess := session.New("form-1", walkerSchema())
	driver := &scriptedDriver{
		inputs:  []string{"Ada", "B-42"},
		selects: []int{1}, // broker
	}

	if err := NewWalker(sess, driver).Run(context.Background()); err != nil {
		t.Fatalf("walk: %v", err)
	}
	if v, _ := sess.Values().Lookup("brokerCode"); v != "B-42" {
		t.Fatalf("expected brokerCode prompted once visible, got %v", v)
	}
}
