// Package navigation owns the page state machine: conditional route tables
// evaluated in declared order, sequential stage advance, terminal
// completion pages, entry channels, session resume, and the visited-page
// history backing back-navigation and continuous rendering.
package navigation

import (
	"log/slog"
	"sync"

	"github.com/goliatone/go-formflow/pkg/condition"
	"github.com/goliatone/go-formflow/pkg/schema"
)

// Mode selects how the host renders pages; the machine only records it.
type Mode string

const (
	// ModePaged renders one page at a time.
	ModePaged Mode = "paged"
	// ModeContinuous renders visited pages in one scroll-linked column.
	ModeContinuous Mode = "continuous"
)

// PageValidator reports whether a page's required fields are currently all
// valid. The navigation machine consults it only during session resume.
type PageValidator interface {
	PageValid(pageID string) bool
}

// Option customises a Machine.
type Option func(*Machine)

// WithLogger injects the logger used for malformed-route warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMode sets the rendering mode switch.
func WithMode(mode Mode) Option {
	return func(m *Machine) { m.mode = mode }
}

// WithChannel selects a named entry channel for the starting page.
func WithChannel(channel string) Option {
	return func(m *Machine) { m.channel = channel }
}

// Machine decides which page comes next. It owns NavigationState.current
// exclusively; every other component treats the current page as read-only.
type Machine struct {
	index      *schema.Index
	conditions *condition.Evaluator
	logger     *slog.Logger
	channel    string

	mu      sync.Mutex
	mode    Mode
	current string
	history []string
}

// New constructs a machine positioned on the schema's starting page: the
// entry channel's designated page when one matches, otherwise the first
// page of the first stage.
func New(index *schema.Index, conditions *condition.Evaluator, opts ...Option) *Machine {
	m := &Machine{
		index:      index,
		conditions: conditions,
		logger:     slog.Default(),
		mode:       ModePaged,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	start := index.Schema().FirstPageID(m.channel)
	m.current = start
	if start != "" {
		m.history = []string{start}
	}
	return m
}

// Current returns the current page id.
func (m *Machine) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Mode returns the rendering mode switch.
func (m *Machine) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// History returns the ordered visited-page ids.
func (m *Machine) History() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.history...)
}

// IsTerminal reports whether the page is flagged as a completion page.
// Reaching one ends the form session.
func (m *Machine) IsTerminal(pageID string) bool {
	page, ok := m.index.Page(pageID)
	return ok && page.Completion
}

// HasNext reports whether a next page exists from the current page.
func (m *Machine) HasNext() bool {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()
	_, ok := m.NextFrom(current)
	return ok
}

// Next returns the page that would follow the current page without
// transitioning to it.
func (m *Machine) Next() (string, bool) {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()
	return m.NextFrom(current)
}

// NextFrom decides the page following pageID: the first route in the
// page's declared route table whose condition holds wins; otherwise the
// first page of the next stage. A completion page has no next page.
func (m *Machine) NextFrom(pageID string) (string, bool) {
	page, ok := m.index.Page(pageID)
	if !ok {
		return "", false
	}
	if page.Completion {
		return "", false
	}

	for _, route := range page.ToCondition {
		if _, exists := m.index.Page(route.Target); !exists {
			m.logger.Warn("navigation: route target not in schema, using sequential advance",
				"page", pageID, "target", route.Target)
			continue
		}
		if m.conditions.Eval("route:"+pageID+":"+route.Target, route.Rule) {
			return route.Target, true
		}
	}

	return m.index.NextPageInStageOrder(pageID)
}

// Advance transitions to the next page and appends it to the history. It
// reports the new page id, or false when no next page exists (the current
// page is terminal or last).
func (m *Machine) Advance() (string, bool) {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	next, ok := m.NextFrom(current)
	if !ok {
		return "", false
	}

	m.mu.Lock()
	m.current = next
	m.history = append(m.history, next)
	m.mu.Unlock()
	return next, true
}

// Back returns to the previously visited page using the retained history.
// It never re-runs forward validation. On the first page it reports false.
func (m *Machine) Back() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) < 2 {
		return "", false
	}
	m.history = m.history[:len(m.history)-1]
	m.current = m.history[len(m.history)-1]
	return m.current, true
}

// ReturnTo repositions the machine on an already-visited page and truncates
// the later history. Mutating a value on an earlier page invalidates the
// pages after it.
func (m *Machine) ReturnTo(pageID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, visited := range m.history {
		if visited == pageID {
			m.history = m.history[:i+1]
			m.current = pageID
			return true
		}
	}
	return false
}

// Resume walks forward from the starting page while each page's required
// fields are already valid, stopping at the first page that still needs
// input; that page becomes the resumed position. The walk never lands on a
// completion page.
func (m *Machine) Resume(validator PageValidator) string {
	m.mu.Lock()
	current := m.index.Schema().FirstPageID(m.channel)
	m.mu.Unlock()
	if current == "" {
		return ""
	}

	history := []string{current}
	for {
		if m.IsTerminal(current) {
			break
		}
		if validator != nil && !validator.PageValid(current) {
			break
		}
		next, ok := m.NextFrom(current)
		if !ok || m.IsTerminal(next) {
			break
		}
		current = next
		history = append(history, next)
	}

	m.mu.Lock()
	m.current = current
	m.history = history
	m.mu.Unlock()
	return current
}
