// Package session owns one respondent's walk through a form: it constructs
// and wires the schema index, value store, condition evaluator, validation
// engine, navigation machine, and flusher into a single context object.
// Nothing in the engine is process-global; two sessions never share state.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-formflow/pkg/api"
	"github.com/goliatone/go-formflow/pkg/condition"
	"github.com/goliatone/go-formflow/pkg/fieldpath"
	"github.com/goliatone/go-formflow/pkg/navigation"
	"github.com/goliatone/go-formflow/pkg/schema"
	"github.com/goliatone/go-formflow/pkg/validation"
	"github.com/goliatone/go-formflow/pkg/values"
)

// ErrExpired is returned by every mutating operation once the session has
// timed out. Expiry is terminal; a fresh session is required to proceed.
var ErrExpired = errors.New("session: expired")

// CriticalError reports server-side validation failures that block
// navigation: the backend rejected values the client considered valid.
type CriticalError struct {
	Fields []string
}

func (e *CriticalError) Error() string {
	return fmt.Sprintf("session: server rejected fields: %s", strings.Join(e.Fields, ", "))
}

// PageInvalidError reports client-side validation failures that stop a
// page submission before it reaches the network.
type PageInvalidError struct {
	Errors map[string][]string
}

func (e *PageInvalidError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for id := range e.Errors {
		fields = append(fields, id)
	}
	return fmt.Sprintf("session: page has invalid fields: %s", strings.Join(fields, ", "))
}

const defaultFlushInterval = 5 * time.Second

// Session is the explicit context object owning all engine components for
// one respondent.
type Session struct {
	formID  string
	token   string
	channel string
	mode    navigation.Mode

	client        api.Client
	logger        *slog.Logger
	flushInterval time.Duration
	timeout       time.Duration
	now           func() time.Time

	index     *schema.Index
	store     *values.Store
	evaluator *condition.Evaluator
	validator *validation.Engine
	nav       *navigation.Machine
	flusher   *values.Flusher

	mu           sync.Mutex
	expired      bool
	lastActivity time.Time
	cancel       context.CancelFunc
}

// New wires a session over a parsed schema. The zero configuration runs
// fully offline: NopClient backend, default flush interval, no inactivity
// timeout.
func New(formID string, s *schema.Schema, opts ...Option) *Session {
	sess := &Session{
		formID:        formID,
		token:         newToken(),
		mode:          navigation.ModePaged,
		client:        api.NopClient{},
		logger:        slog.Default(),
		flushInterval: defaultFlushInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(sess)
		}
	}

	// The session owns token generation; a client that can carry it gets
	// it pushed so every request identifies this session.
	if carrier, ok := sess.client.(interface{ SetSessionToken(string) }); ok {
		carrier.SetSessionToken(sess.token)
	}

	sess.index = schema.NewIndex(s)
	sess.store = values.NewStore(sess.index)
	sess.evaluator = condition.New(sess.index, sess.store,
		condition.WithLogger(sess.logger))
	sess.validator = validation.New(sess.index, sess.store, sess.evaluator,
		validation.WithLogger(sess.logger))
	sess.nav = navigation.New(sess.index, sess.evaluator,
		navigation.WithLogger(sess.logger),
		navigation.WithMode(sess.mode),
		navigation.WithChannel(sess.channel))
	sess.flusher = values.NewFlusher(sess.store.Queue(), values.SaverFunc(sess.save),
		values.WithInterval(sess.flushInterval),
		values.WithFlushLogger(sess.logger))

	// Mutating a field repositions navigation on the field's declaring
	// page and invalidates everything after it.
	sess.store.OnChange(func(path fieldpath.Path, _ any) {
		if pageID, ok := sess.index.PageOfField(path.Head()); ok {
			sess.nav.ReturnTo(pageID)
		}
	})

	sess.lastActivity = sess.now()
	return sess
}

// newToken mints the fixed-length client-side session identifier.
func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Token returns the session identifier for the host to persist.
func (s *Session) Token() string { return s.token }

// Index exposes the schema index for the rendering layer.
func (s *Session) Index() *schema.Index { return s.index }

// Values exposes the value store.
func (s *Session) Values() *values.Store { return s.store }

// Validation exposes the validation engine.
func (s *Session) Validation() *validation.Engine { return s.validator }

// Navigation exposes the navigation machine.
func (s *Session) Navigation() *navigation.Machine { return s.nav }

// Start launches the flush scheduler and, when a timeout is configured,
// the inactivity watchdog. Close releases both.
func (s *Session) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.flusher.Run(runCtx)
	if s.timeout > 0 {
		go s.watch(runCtx)
	}
}

// Close stops the schedulers without expiring the session.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.flusher.Stop()
}

// Expired reports whether the session has been terminated by timeout.
func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// Hydrate seeds restored values and repositions navigation on the furthest
// page whose required fields are already satisfied.
func (s *Session) Hydrate(restored map[string]any) string {
	s.store.Hydrate(restored)
	return s.nav.Resume(s.validator)
}

// SetValue writes a field value through the store. Unchanged writes are
// no-ops; changed writes queue for synchronisation and refresh visibility
// and validation state.
func (s *Session) SetValue(path fieldpath.Path, value any) error {
	if s.Expired() {
		return ErrExpired
	}
	s.store.Set(path, value)
	s.touch()
	return nil
}

// AddRow appends a row to a repeatable field and returns its index.
func (s *Session) AddRow(fieldID string, row map[string]any) (int, error) {
	if s.Expired() {
		return 0, ErrExpired
	}
	index := s.store.AddRow(fieldID, row)
	s.touch()
	return index, nil
}

// RemoveRow deletes a repeatable row.
func (s *Session) RemoveRow(fieldID string, index int) error {
	if s.Expired() {
		return ErrExpired
	}
	s.store.RemoveRow(fieldID, index)
	s.touch()
	return nil
}

// IsVisible answers for both fields and sections, the way the rendering
// layer asks.
func (s *Session) IsVisible(id string) bool {
	if _, ok := s.index.Field(id); ok {
		return s.evaluator.IsFieldVisible(id)
	}
	return s.evaluator.IsSectionVisible(id)
}

// FieldErrors returns the user-visible messages for a field's current
// value.
func (s *Session) FieldErrors(fieldID string) []string {
	return s.validator.FieldErrors(fieldID)
}

// Complete reports whether the current page is terminal.
func (s *Session) Complete() bool {
	return s.nav.IsTerminal(s.nav.Current())
}

// SubmitPage validates and persists the current page, then advances. The
// pending queue is flushed first so the backend sees one consistent state.
// Critical errors on visible fields withhold navigation; an unresolved
// owning section blocks rather than passing silently.
func (s *Session) SubmitPage(ctx context.Context) (string, error) {
	if s.Expired() {
		return "", ErrExpired
	}

	pageID := s.nav.Current()
	if errs := s.validator.PageErrors(pageID); len(errs) > 0 {
		return "", &PageInvalidError{Errors: errs}
	}

	s.flusher.Flush(ctx)

	next, hasNext := s.nav.Next()
	req := api.SubmitRequest{
		FormID:   s.formID,
		PageID:   pageID,
		Values:   s.pageValues(pageID),
		Complete: !hasNext || s.nav.IsTerminal(next),
	}
	result, err := s.client.SubmitPage(ctx, req)
	if err != nil {
		return "", fmt.Errorf("session: submit page %s: %w", pageID, err)
	}
	if !result.Success {
		return "", fmt.Errorf("session: submit page %s rejected", pageID)
	}
	s.touch()

	if blocking := s.blockingCriticalErrors(result.CriticalErrors); len(blocking) > 0 {
		return "", &CriticalError{Fields: blocking}
	}

	advanced, ok := s.nav.Advance()
	if !ok {
		return pageID, nil
	}
	return advanced, nil
}

// blockingCriticalErrors filters the server's rejects down to the ones
// that withhold navigation: fields that are currently visible inside a
// visible section. A field whose owning section cannot be resolved blocks.
func (s *Session) blockingCriticalErrors(fieldIDs []string) []string {
	var blocking []string
	for _, id := range fieldIDs {
		if _, ok := s.index.Field(id); !ok {
			continue
		}
		if !s.evaluator.IsFieldVisible(id) {
			continue
		}
		sectionID, ok := s.index.SectionOfField(id)
		if !ok {
			s.logger.Warn("session: critical error on field with unresolved section, blocking",
				"field", id)
			blocking = append(blocking, id)
			continue
		}
		if s.evaluator.IsSectionVisible(sectionID) {
			blocking = append(blocking, id)
		}
	}
	return blocking
}

// pageValues collects the currently rendered values belonging to a page:
// every stored path whose head field is declared on the page and visible.
func (s *Session) pageValues(pageID string) map[string]any {
	out := map[string]any{}
	for key, value := range s.store.Snapshot() {
		head := fieldpath.Parse(key).Head()
		if head == "" {
			continue
		}
		owner, ok := s.index.PageOfField(head)
		if !ok || owner != pageID {
			continue
		}
		if !s.evaluator.IsFieldVisible(head) {
			continue
		}
		if sectionID, ok := s.index.SectionOfField(head); ok {
			if !s.evaluator.IsSectionVisible(sectionID) {
				continue
			}
		}
		out[key] = value
	}
	return out
}

// Verify submits a verification code. On success the verified marker is
// recorded: ABN fields register the confirmed number, verification fields
// store the marker value the validator checks for.
func (s *Session) Verify(ctx context.Context, fieldID, code string) (api.VerifyResult, error) {
	if s.Expired() {
		return api.VerifyResult{}, ErrExpired
	}
	result, err := s.client.Verify(ctx, fieldID, code)
	if err != nil {
		return result, fmt.Errorf("session: verify %s: %w", fieldID, err)
	}
	if !result.Success {
		return result, nil
	}
	s.touch()

	field, ok := s.index.Field(fieldID)
	if ok && field.Type == schema.FieldTypeABNVerification {
		if abn, _ := s.store.Lookup(fieldID); abn != nil {
			if str, isStr := abn.(string); isStr {
				s.validator.MarkABNVerified(str)
			}
		}
		return result, nil
	}
	s.store.Set(fieldpath.New(fieldID), validation.VerifiedMarker)
	return result, nil
}

// Ping extends the server session and refreshes the activity clock.
func (s *Session) Ping(ctx context.Context) error {
	if s.Expired() {
		return ErrExpired
	}
	if err := s.client.Ping(ctx); err != nil {
		return err
	}
	s.touch()
	return nil
}

// save is the flusher's Saver: one queued batch becomes one page/submit
// request. A nil return means the backend acknowledged the batch.
func (s *Session) save(ctx context.Context, pending map[string]any) error {
	result, err := s.client.SubmitPage(ctx, api.SubmitRequest{
		FormID: s.formID,
		PageID: s.nav.Current(),
		Values: pending,
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return errors.New("session: save batch rejected")
	}
	s.touch()
	return nil
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = s.now()
	s.mu.Unlock()
}

// watch expires the session after the configured inactivity window. Expiry
// stops the flusher permanently; an in-flight batch completes but no new
// one is scheduled.
func (s *Session) watch(ctx context.Context) {
	interval := s.timeout / 10
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			idle := s.now().Sub(s.lastActivity)
			s.mu.Unlock()
			if idle > s.timeout {
				s.Expire()
				return
			}
		}
	}
}

// Expire terminates the session: mutations and flushes are refused from
// here on, and the schedulers stop.
func (s *Session) Expire() {
	s.mu.Lock()
	if s.expired {
		s.mu.Unlock()
		return
	}
	s.expired = true
	cancel := s.cancel
	s.mu.Unlock()

	s.logger.Info("session: expired", "form", s.formID)
	s.flusher.Stop()
	if cancel != nil {
		cancel()
	}
}
