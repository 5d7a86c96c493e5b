// Package api defines the backend contract the engine synchronises
// against, plus the HTTP implementation of it. Every semantic operation
// supports at most one outstanding call; a second concurrent invocation
// fails fast instead of queueing.
package api

import (
	"context"
	"encoding/json"
	"errors"
)

// SubmitRequest carries one page's values to the persistence endpoint.
type SubmitRequest struct {
	FormID string         `json:"form_id"`
	PageID string         `json:"page_id"`
	Values map[string]any `json:"form_values"`
	// Complete marks the submission as final; set when the next page is a
	// completion page or no next page exists.
	Complete bool `json:"complete,omitempty"`
}

// SubmitResult is the backend's answer to a page submission.
// CriticalErrors lists field ids the server rejected despite client-side
// validation having passed.
type SubmitResult struct {
	Success        bool     `json:"success"`
	CriticalErrors []string `json:"criticalErrors,omitempty"`
}

// SchemaResult bundles the form definition document with the hydration
// values of a prior session.
type SchemaResult struct {
	Schema json.RawMessage `json:"schema"`
	Values map[string]any  `json:"values,omitempty"`
}

// VerifyResult is the backend's answer to a verification code check.
type VerifyResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Client is the network collaborator the engine drives. Implementations
// must be safe for concurrent use; the engine guarantees it never issues
// two concurrent calls to the same operation.
type Client interface {
	// SubmitPage persists one page's values.
	SubmitPage(ctx context.Context, req SubmitRequest) (SubmitResult, error)
	// FetchSchema loads the definition document and hydration values.
	FetchSchema(ctx context.Context, formID string) (SchemaResult, error)
	// Verify checks a verification code for a field.
	Verify(ctx context.Context, fieldID, code string) (VerifyResult, error)
	// Ping extends the server-side session.
	Ping(ctx context.Context) error
}

// ErrCallInFlight is returned when an operation is invoked while an earlier
// call to the same operation is still outstanding.
var ErrCallInFlight = errors.New("api: call already in flight")

// NopClient acknowledges everything without network access. Useful for dry
// runs and tests.
type NopClient struct{}

func (NopClient) SubmitPage(context.Context, SubmitRequest) (SubmitResult, error) {
	return SubmitResult{Success: true}, nil
}

func (NopClient) FetchSchema(context.Context, string) (SchemaResult, error) {
	return SchemaResult{}, errors.New("api: nop client has no schema")
}

func (NopClient) Verify(context.Context, string, string) (VerifyResult, error) {
	return VerifyResult{Success: true}, nil
}

func (NopClient) Ping(context.Context) error { return nil }
