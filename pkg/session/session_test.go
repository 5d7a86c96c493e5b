package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goliatone/go-formflow/pkg/api"
	"github.com/goliatone/go-formflow/pkg/fieldpath"
	"github.com/goliatone/go-formflow/pkg/schema"
	"github.com/goliatone/go-formflow/pkg/validation"
)

type fakeClient struct {
	submits      []api.SubmitRequest
	submitResult api.SubmitResult
	submitErr    error
	verifyResult api.VerifyResult
	pingErr      error
}

func (c *fakeClient) SubmitPage(_ context.Context, req api.SubmitRequest) (api.SubmitResult, error) {
	c.submits = append(c.submits, req)
	if c.submitErr != nil {
		return api.SubmitResult{}, c.submitErr
	}
	if !c.submitResult.Success && len(c.submitResult.CriticalErrors) == 0 {
		return api.SubmitResult{Success: true}, nil
	}
	return c.submitResult, nil
}

func (c *fakeClient) FetchSchema(context.Context, string) (api.SchemaResult, error) {
	return api.SchemaResult{}, errors.New("not implemented")
}

func (c *fakeClient) Verify(context.Context, string, string) (api.VerifyResult, error) {
	return c.verifyResult, nil
}

func (c *fakeClient) Ping(context.Context) error { return c.pingErr }

func sessionSchema() *schema.Schema {
	return &schema.Schema{
		Stages: []schema.Stage{
			{
				ID: "stage-1",
				Pages: []schema.Page{{
					ID: "page-1",
					Sections: []schema.Section{{
						ID: "section-1",
						Fields: []schema.Field{
							{ID: "toggle", Type: schema.FieldTypeRadioList},
							{
								ID:   "gated",
								Type: schema.FieldTypeText,
								Config: schema.Config{
									Required:   true,
									Visibility: json.RawMessage(`{"field":"toggle","operator":"equal","value":"on"}`),
								},
							},
							{ID: "name", Type: schema.FieldTypeText, Config: schema.Config{Required: true}},
							{ID: "emailCheck", Type: schema.FieldTypeEmailVerification},
							{ID: "abn", Type: schema.FieldTypeABNVerification},
						},
					}},
				}},
			},
			{
				ID: "stage-2",
				Pages: []schema.Page{{
					ID: "page-2",
					Sections: []schema.Section{{
						ID: "section-2",
						Fields: []schema.Field{
							{ID: "comments", Type: schema.FieldTypeTextarea},
						},
					}},
				}},
			},
			{
				ID:    "stage-done",
				Pages: []schema.Page{{ID: "page-done", Completion: true}},
			},
		},
	}
}

func TestTokenShape(t *testing.T) {
	sess := New("form-1", sessionSchema())
	if len(sess.Token()) != 32 {
		t.Fatalf("expected 32-character token, got %q", sess.Token())
	}
	other := New("form-1", sessionSchema())
	if sess.Token() == other.Token() {
		t.Fatalf("expected distinct tokens per session")
	}
}

func TestNewPushesTokenToClient(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Session-Id")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	sess := New("form-1", sessionSchema(), WithClient(api.NewHTTPClient(srv.URL, "pk_test")))
	if err := sess.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if got != sess.Token() {
		t.Fatalf("expected session token %q on the request, got %q", sess.Token(), got)
	}
}

func TestSubmitPageRejectsInvalidPage(t *testing.T) {
	sess := New("form-1", sessionSchema())

	_, err := sess.SubmitPage(context.Background())
	var invalid *PageInvalidError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected PageInvalidError, got %v", err)
	}
	if _, ok := invalid.Errors["name"]; !ok {
		t.Fatalf("expected name in page errors, got %v", invalid.Errors)
	}
	// Hidden required fields do not gate submission.
	if _, ok := invalid.Errors["gated"]; ok {
		t.Fatalf("did not expect gated in page errors")
	}
}

func TestSubmitPageAdvances(t *testing.T) {
	client := &fakeClient{}
	sess := New("form-1", sessionSchema(), WithClient(client))
	if err := sess.SetValue(fieldpath.New("name"), "Ada"); err != nil {
		t.Fatalf("set value: %v", err)
	}

	next, err := sess.SubmitPage(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if next != "page-2" {
		t.Fatalf("expected page-2, got %q", next)
	}
	if got := sess.Navigation().Current(); got != "page-2" {
		t.Fatalf("expected navigation on page-2, got %q", got)
	}

	// The flush batch plus the page submission both reached the client.
	last := client.submits[len(client.submits)-1]
	if last.PageID != "page-1" || last.FormID != "form-1" {
		t.Fatalf("unexpected submit request: %+v", last)
	}
	if last.Values["name"] != "Ada" {
		t.Fatalf("expected submitted values to carry name, got %v", last.Values)
	}
	if last.Complete {
		t.Fatalf("page-1 submission must not be marked complete")
	}
}

func TestSubmitPageMarksCompleteBeforeTerminalPage(t *testing.T) {
	client := &fakeClient{}
	sess := New("form-1", sessionSchema(), WithClient(client))
	sess.SetValue(fieldpath.New("name"), "Ada")

	if _, err := sess.SubmitPage(context.Background()); err != nil {
		t.Fatalf("submit page-1: %v", err)
	}
	next, err := sess.SubmitPage(context.Background())
	if err != nil {
		t.Fatalf("submit page-2: %v", err)
	}
	if next != "page-done" {
		t.Fatalf("expected page-done, got %q", next)
	}
	last := client.submits[len(client.submits)-1]
	if !last.Complete {
		t.Fatalf("submission before a completion page must be marked complete")
	}
	if !sess.Complete() {
		t.Fatalf("expected session complete on the terminal page")
	}
}

func TestSubmitPageExcludesInvisibleValues(t *testing.T) {
	client := &fakeClient{}
	sess := New("form-1", sessionSchema(), WithClient(client))
	sess.SetValue(fieldpath.New("toggle"), "on")
	sess.SetValue(fieldpath.New("gated"), "secret")
	sess.SetValue(fieldpath.New("name"), "Ada")
	// Hiding the field again leaves its stale value out of the submission.
	sess.SetValue(fieldpath.New("toggle"), "off")

	if _, err := sess.SubmitPage(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	last := client.submits[len(client.submits)-1]
	if _, ok := last.Values["gated"]; ok {
		t.Fatalf("hidden field value must not be submitted, got %v", last.Values)
	}
}

func TestSubmitPageBlocksOnVisibleCriticalErrors(t *testing.T) {
	client := &fakeClient{submitResult: api.SubmitResult{Success: true, CriticalErrors: []string{"name", "gated", "unknownField"}}}
	sess := New("form-1", sessionSchema(), WithClient(client))
	sess.SetValue(fieldpath.New("name"), "Ada")

	_, err := sess.SubmitPage(context.Background())
	var critical *CriticalError
	if !errors.As(err, &critical) {
		t.Fatalf("expected CriticalError, got %v", err)
	}
	// Only the visible known field blocks; the hidden and unknown ones are
	// dropped.
	if len(critical.Fields) != 1 || critical.Fields[0] != "name" {
		t.Fatalf("unexpected blocking fields: %v", critical.Fields)
	}
	if got := sess.Navigation().Current(); got != "page-1" {
		t.Fatalf("critical errors must withhold navigation, still expected page-1, got %q", got)
	}
}

func TestSubmitPageClientError(t *testing.T) {
	client := &fakeClient{submitErr: errors.New("network down")}
	sess := New("form-1", sessionSchema(), WithClient(client))
	sess.SetValue(fieldpath.New("name"), "Ada")

	if _, err := sess.SubmitPage(context.Background()); err == nil {
		t.Fatalf("expected submit error")
	}
	if got := sess.Navigation().Current(); got != "page-1" {
		t.Fatalf("failed submit must not advance, got %q", got)
	}
}

func TestValueChangeRepositionsNavigation(t *testing.T) {
	sess := New("form-1", sessionSchema())
	sess.SetValue(fieldpath.New("name"), "Ada")
	if _, err := sess.SubmitPage(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := sess.Navigation().Current(); got != "page-2" {
		t.Fatalf("expected page-2, got %q", got)
	}

	// Editing a page-1 field returns navigation to page-1.
	sess.SetValue(fieldpath.New("name"), "Grace")
	if got := sess.Navigation().Current(); got != "page-1" {
		t.Fatalf("expected navigation back on page-1, got %q", got)
	}
}

func TestVerifyStoresMarker(t *testing.T) {
	client := &fakeClient{verifyResult: api.VerifyResult{Success: true}}
	sess := New("form-1", sessionSchema(), WithClient(client))

	result, err := sess.Verify(context.Background(), "emailCheck", "1234")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected verification success")
	}
	v, ok := sess.Values().Lookup("emailCheck")
	if !ok || v != validation.VerifiedMarker {
		t.Fatalf("expected verified marker, got %v (%v)", v, ok)
	}
}

func TestVerifyFailureLeavesNoMarker(t *testing.T) {
	client := &fakeClient{verifyResult: api.VerifyResult{Success: false, Message: "wrong code"}}
	sess := New("form-1", sessionSchema(), WithClient(client))

	result, err := sess.Verify(context.Background(), "emailCheck", "0000")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Success {
		t.Fatalf("expected verification failure")
	}
	if _, ok := sess.Values().Lookup("emailCheck"); ok {
		t.Fatalf("failed verification must not store a marker")
	}
}

func TestVerifyABNRegistersNumber(t *testing.T) {
	client := &fakeClient{verifyResult: api.VerifyResult{Success: true}}
	sess := New("form-1", sessionSchema(), WithClient(client))
	sess.SetValue(fieldpath.New("abn"), "51824753556")

	if _, err := sess.Verify(context.Background(), "abn", ""); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !sess.Validation().ABNVerified("51824753556") {
		t.Fatalf("expected ABN registered as verified")
	}
	// ABN fields keep the entered number; no marker overwrite.
	v, _ := sess.Values().Lookup("abn")
	if v != "51824753556" {
		t.Fatalf("expected stored ABN preserved, got %v", v)
	}
}

func TestExpiredSessionRefusesMutation(t *testing.T) {
	sess := New("form-1", sessionSchema())
	sess.Expire()

	if err := sess.SetValue(fieldpath.New("name"), "Ada"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if _, err := sess.AddRow("applicants", nil); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if _, err := sess.SubmitPage(context.Background()); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if err := sess.Ping(context.Background()); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestExpireIsIdempotent(t *testing.T) {
	sess := New("form-1", sessionSchema())
	sess.Expire()
	sess.Expire()
	if !sess.Expired() {
		t.Fatalf("expected expired session")
	}
}

func TestHydrateResumesFurthestValidPage(t *testing.T) {
	sess := New("form-1", sessionSchema())
	resumed := sess.Hydrate(map[string]any{"name": "Ada"})
	if resumed != "page-2" {
		t.Fatalf("expected resume on page-2, got %q", resumed)
	}
	v, ok := sess.Values().Lookup("name")
	if !ok || v != "Ada" {
		t.Fatalf("expected hydrated value, got %v (%v)", v, ok)
	}
	if !sess.Values().Queue().Empty() {
		t.Fatalf("hydration must not enqueue synchronisation")
	}
}

func TestIsVisibleAnswersFieldsAndSections(t *testing.T) {
	sess := New("form-1", sessionSchema())
	if sess.IsVisible("gated") {
		t.Fatalf("expected gated hidden while toggle unset")
	}
	sess.SetValue(fieldpath.New("toggle"), "on")
	if !sess.IsVisible("gated") {
		t.Fatalf("expected gated visible with toggle on")
	}
	if !sess.IsVisible("section-1") {
		t.Fatalf("expected rule-less section visible")
	}
}
