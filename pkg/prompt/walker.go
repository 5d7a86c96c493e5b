package prompt

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-formflow/pkg/fieldpath"
	"github.com/goliatone/go-formflow/pkg/schema"
	"github.com/goliatone/go-formflow/pkg/session"
)

// Walker drives a session page by page, asking for every visible field and
// submitting when the page passes validation.
type Walker struct {
	sess   *session.Session
	driver Driver
}

// NewWalker pairs a session with a prompt driver.
func NewWalker(sess *session.Session, driver Driver) *Walker {
	return &Walker{sess: sess, driver: driver}
}

// Run walks the form until the final page is submitted, the session expires,
// or the user aborts.
func (w *Walker) Run(ctx context.Context) error {
	nav := w.sess.Navigation()
	for {
		pageID := nav.Current()
		page, ok := w.sess.Index().Page(pageID)
		if !ok {
			return fmt.Errorf("prompt: page %q not found", pageID)
		}

		if err := w.announcePage(ctx, page); err != nil {
			return err
		}
		if err := w.askPage(ctx, page); err != nil {
			return err
		}

		next, err := w.sess.SubmitPage(ctx)
		if err != nil {
			var invalid *session.PageInvalidError
			if errors.As(err, &invalid) {
				if err := w.reportErrors(ctx, invalid); err != nil {
					return err
				}
				continue
			}
			return err
		}

		if next == "" || next == pageID {
			return w.driver.Info(ctx, "Form complete.")
		}
		if w.sess.Complete() {
			terminal, ok := w.sess.Index().Page(next)
			if ok && terminal.Label != "" {
				return w.driver.Info(ctx, terminal.Label)
			}
			return w.driver.Info(ctx, "Form complete.")
		}
	}
}

func (w *Walker) announcePage(ctx context.Context, page schema.Page) error {
	label := page.Label
	if label == "" {
		label = page.ID
	}
	return w.driver.Info(ctx, "== "+label+" ==")
}

func (w *Walker) askPage(ctx context.Context, page schema.Page) error {
	for _, section := range page.Sections {
		if !w.sess.IsVisible(section.ID) {
			continue
		}
		if section.Label != "" {
			if err := w.driver.Info(ctx, section.Label); err != nil {
				return err
			}
		}
		for _, field := range section.Fields {
			if err := w.askField(ctx, fieldpath.New(field.ID), field); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Walker) askField(ctx context.Context, path fieldpath.Path, field schema.Field) error {
	if !w.sess.IsVisible(field.ID) {
		return nil
	}
	if field.Config.ReadOnly {
		return nil
	}

	switch field.Type {
	case schema.FieldTypeHidden, schema.FieldTypeReviewTable, schema.FieldTypeAPILookup:
		return nil
	case schema.FieldTypeRichTextArea:
		if field.Config.Content != "" {
			return w.driver.Info(ctx, field.Config.Content)
		}
		return nil
	case schema.FieldTypeGrouplet, schema.FieldTypeRepeatableIterator:
		if field.Repeatable() {
			return w.askRepeatable(ctx, field)
		}
		for _, child := range field.Children() {
			if err := w.askField(ctx, path.Child(child.ID), child); err != nil {
				return err
			}
		}
		return nil
	case schema.FieldTypeDropdown, schema.FieldTypeRadioList,
		schema.FieldTypeContentRadioList, schema.FieldTypeOptionTable:
		return w.askSelect(ctx, path, field)
	case schema.FieldTypeCheckboxList:
		return w.askMultiSelect(ctx, path, field)
	case schema.FieldTypeTextarea:
		return w.askTextArea(ctx, path, field)
	case schema.FieldTypeEmailVerification, schema.FieldTypeSMSVerification,
		schema.FieldTypeABNVerification:
		return w.askVerification(ctx, path, field)
	default:
		return w.askInput(ctx, path, field)
	}
}

func (w *Walker) askRepeatable(ctx context.Context, field schema.Field) error {
	for {
		more, err := w.driver.Confirm(ctx, ConfirmConfig{
			Message: "Add " + labelOf(field) + " entry?",
			Default: len(w.sess.Values().Rows(field.ID)) == 0 && field.Config.Required,
		})
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
		index, err := w.sess.AddRow(field.ID, map[string]any{})
		if err != nil {
			return err
		}
		rowPath := fieldpath.New(field.ID).Row(index)
		for _, child := range field.Children() {
			if err := w.askField(ctx, rowPath.Child(child.ID), child); err != nil {
				return err
			}
		}
	}
}

func (w *Walker) askSelect(ctx context.Context, path fieldpath.Path, field schema.Field) error {
	if len(field.Config.Options) == 0 {
		return w.askInput(ctx, path, field)
	}
	choice, err := w.driver.Select(ctx, SelectConfig{
		Message:      labelOf(field),
		Options:      field.Config.Options,
		DefaultIndex: indexOf(field.Config.Options, field.Config.Default),
	})
	if err != nil {
		return err
	}
	if choice < 0 {
		return nil
	}
	return w.sess.SetValue(path, field.Config.Options[choice])
}

func (w *Walker) askMultiSelect(ctx context.Context, path fieldpath.Path, field schema.Field) error {
	choices, err := w.driver.MultiSelect(ctx, SelectConfig{
		Message: labelOf(field),
		Options: field.Config.Options,
	})
	if err != nil {
		return err
	}
	values := make([]any, 0, len(choices))
	for _, i := range choices {
		values = append(values, field.Config.Options[i])
	}
	return w.sess.SetValue(path, values)
}

func (w *Walker) askTextArea(ctx context.Context, path fieldpath.Path, field schema.Field) error {
	out, err := w.driver.TextArea(ctx, InputConfig{
		Message: labelOf(field),
		Default: field.Config.Default,
	})
	if err != nil {
		return err
	}
	return w.sess.SetValue(path, out)
}

func (w *Walker) askInput(ctx context.Context, path fieldpath.Path, field schema.Field) error {
	cfg := InputConfig{
		Message: labelOf(field),
		Default: field.Config.Default,
		Help:    field.Config.Placeholder,
	}
	if path.Len() == 1 {
		validation := w.sess.Validation()
		fieldID := field.ID
		cfg.Validator = func(answer string) error {
			if !validation.IsValid(fieldID, answer) {
				return errors.New("invalid value")
			}
			return nil
		}
	}
	out, err := w.driver.Input(ctx, cfg)
	if err != nil {
		return err
	}
	return w.sess.SetValue(path, out)
}

// askVerification collects the value, then the verification code, and hands
// both to the backend through the session.
func (w *Walker) askVerification(ctx context.Context, path fieldpath.Path, field schema.Field) error {
	out, err := w.driver.Input(ctx, InputConfig{Message: labelOf(field)})
	if err != nil {
		return err
	}
	if err := w.sess.SetValue(path, out); err != nil {
		return err
	}
	code, err := w.driver.Input(ctx, InputConfig{Message: "Verification code for " + labelOf(field)})
	if err != nil {
		return err
	}
	result, err := w.sess.Verify(ctx, field.ID, code)
	if err != nil {
		return err
	}
	if !result.Success {
		msg := result.Message
		if msg == "" {
			msg = "verification failed"
		}
		return w.driver.Info(ctx, msg)
	}
	return nil
}

func (w *Walker) reportErrors(ctx context.Context, invalid *session.PageInvalidError) error {
	for fieldID, messages := range invalid.Errors {
		field, _ := w.sess.Index().Field(fieldID)
		for _, msg := range messages {
			if err := w.driver.Info(ctx, labelOf(field)+": "+msg); err != nil {
				return err
			}
		}
	}
	return nil
}

func labelOf(field schema.Field) string {
	if field.Config.Label != "" {
		return field.Config.Label
	}
	return field.ID
}
