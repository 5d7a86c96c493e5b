// Package formflow wires the loader, parser, and session engine into a small
// top-level API while keeping the internal loader implementation hidden from
// consumers.
package formflow

import (
	"context"
	"io/fs"
	"net/http"
	"time"

	"github.com/goliatone/go-formflow/internal/schemaloader"
	"github.com/goliatone/go-formflow/pkg/schema"
	"github.com/goliatone/go-formflow/pkg/session"
)

// LoadOption adjusts how form definitions are fetched.
type LoadOption func(*schemaloader.Options)

// WithFileSystem backs fs sources with the given filesystem.
func WithFileSystem(fsys fs.FS) LoadOption {
	return func(o *schemaloader.Options) { o.FileSystem = fsys }
}

// WithHTTPClient enables URL sources using the provided client.
func WithHTTPClient(client *http.Client) LoadOption {
	return func(o *schemaloader.Options) {
		o.HTTPClient = client
		o.AllowHTTP = true
	}
}

// WithRemoteSources enables URL sources with a default HTTP client.
func WithRemoteSources(timeout time.Duration) LoadOption {
	return func(o *schemaloader.Options) {
		o.AllowHTTP = true
		o.RequestTimeout = timeout
	}
}

// Load fetches and parses a form definition from the given source.
func Load(ctx context.Context, src schema.Source, opts ...LoadOption) (*schema.Schema, error) {
	options := schemaloader.Options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	doc, err := schemaloader.New(options).Load(ctx, src)
	if err != nil {
		return nil, err
	}
	return schema.Parse(doc)
}

// NewSession builds a live session over a parsed form definition.
func NewSession(formID string, s *schema.Schema, opts ...session.Option) *session.Session {
	return session.New(formID, s, opts...)
}
