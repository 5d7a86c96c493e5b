// Package values holds the single source of truth for field values and the
// machinery that synchronises them to the persistence service: a mutation
// queue cleared entry-by-entry on acknowledgement, and a flusher that owns
// the "exactly one in-flight batch" state.
package values

import (
	"reflect"

	"sync"

	"github.com/goliatone/go-formflow/pkg/fieldpath"
	"github.com/goliatone/go-formflow/pkg/schema"
)

// ChangeListener observes committed mutations. Listeners run synchronously
// in mutation order; they must treat the store as read-only for the
// duration of the callback.
type ChangeListener func(path fieldpath.Path, value any)

// Store maps qualified field paths to their current values. Every leaf
// value is reachable by exactly one qualified path; repeatable-field values
// are ordered lists of row objects keyed by un-prefixed child ids.
type Store struct {
	index *schema.Index

	mu        sync.RWMutex
	values    map[string]any
	queue     *Queue
	listeners []ChangeListener
}

// NewStore constructs an empty store over the given schema index.
func NewStore(index *schema.Index) *Store {
	return &Store{
		index:  index,
		values: map[string]any{},
		queue:  NewQueue(),
	}
}

// Queue exposes the store's sync queue for the flusher.
func (s *Store) Queue() *Queue { return s.queue }

// OnChange registers a mutation listener.
func (s *Store) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Lookup implements the evaluator snapshot contract: it reports the current
// value for a bare field id or rendered qualified path, and whether any
// value has been recorded at all.
func (s *Store) Lookup(fieldID string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[fieldID]
	return v, ok
}

// Get returns the value at a qualified path.
func (s *Store) Get(path fieldpath.Path) (any, bool) {
	return s.Lookup(path.String())
}

// Snapshot returns a copy of all current values keyed by rendered path.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Hydrate seeds values restored from the backend. Hydration neither
// enqueues synchronisation nor notifies listeners; the values are already
// persisted and the host repaints from scratch afterwards.
func (s *Store) Hydrate(values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		if k == "" {
			continue
		}
		s.values[k] = v
	}
}

// Set writes a value at a qualified path. Unchanged writes are a no-op:
// nothing is stored, queued, or notified. Changed writes are queued for
// synchronisation and propagated to repeatable parents before listeners
// fire.
func (s *Store) Set(path fieldpath.Path, value any) {
	if path.IsZero() {
		return
	}
	key := path.String()

	s.mu.Lock()
	current, exists := s.values[key]
	if exists && reflect.DeepEqual(current, value) {
		s.mu.Unlock()
		return
	}
	s.values[key] = value

	if path.Nested() && s.headRepeatable(path) {
		s.propagateRowLocked(path, value)
	} else {
		s.queue.Put(key, value)
	}
	s.prePopulateLocked(path, value)
	listeners := append([]ChangeListener(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(path, value)
	}
}

// AddRow appends a row to a repeatable field and queues the full row array.
// It returns the new row's index.
func (s *Store) AddRow(fieldID string, row map[string]any) int {
	path := fieldpath.New(fieldID)

	s.mu.Lock()
	rows := s.rowsLocked(fieldID)
	rows = append(rows, cloneRow(row))
	s.values[fieldID] = rows
	s.queue.Put(fieldID, cloneRows(rows))
	index := len(rows) - 1
	listeners := append([]ChangeListener(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(path, rows)
	}
	return index
}

// RemoveRow deletes a row by index; this is the only implicit value
// removal the store performs. Row-qualified leaf entries past the removed
// index shift down with the array.
func (s *Store) RemoveRow(fieldID string, index int) {
	path := fieldpath.New(fieldID)

	s.mu.Lock()
	rows := s.rowsLocked(fieldID)
	if index < 0 || index >= len(rows) {
		s.mu.Unlock()
		return
	}
	rows = append(rows[:index:index], rows[index+1:]...)
	s.values[fieldID] = rows
	s.reindexRowPathsLocked(fieldID, rows)
	s.queue.Put(fieldID, cloneRows(rows))
	listeners := append([]ChangeListener(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(path, rows)
	}
}

// Rows returns the row array for a repeatable field.
func (s *Store) Rows(fieldID string) []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rowsLocked(fieldID)
}

func (s *Store) rowsLocked(fieldID string) []map[string]any {
	switch rows := s.values[fieldID].(type) {
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

func (s *Store) headRepeatable(path fieldpath.Path) bool {
	field, ok := s.index.Field(path.Head())
	return ok && field.Repeatable()
}

// propagateRowLocked folds a row-qualified leaf write into the parent's
// array value and queues the parent whole, so the backend always receives
// complete rows.
func (s *Store) propagateRowLocked(path fieldpath.Path, value any) {
	head := path.Head()
	segments := path.Segments()
	rows := s.rowsLocked(head)

	rowIndex := -1
	leaf := ""
	for _, seg := range segments[1:] {
		if seg.IsRow() {
			rowIndex = seg.Row()
			continue
		}
		leaf = seg.FieldID()
	}
	if rowIndex < 0 || leaf == "" {
		s.queue.Put(path.String(), value)
		return
	}
	for len(rows) <= rowIndex {
		rows = append(rows, map[string]any{})
	}
	if rows[rowIndex] == nil {
		rows[rowIndex] = map[string]any{}
	}
	rows[rowIndex][leaf] = value
	s.values[head] = rows
	// Queued batches must not alias the live row maps, or a leaf write
	// during a flush would mutate the in-flight batch and the
	// acknowledgement would clear the newer value.
	s.queue.Put(head, cloneRows(rows))
}

// reindexRowPathsLocked rewrites row-qualified leaf entries after a row
// removal so qualified paths keep addressing the surviving rows.
func (s *Store) reindexRowPathsLocked(fieldID string, rows []map[string]any) {
	prefix := fieldID + fieldpath.Separator
	for key := range s.values {
		if key != fieldID && len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(s.values, key)
		}
	}
	for i, row := range rows {
		base := fieldpath.New(fieldID).Row(i)
		for childID, v := range row {
			s.values[base.Child(childID).String()] = v
		}
	}
}

// prePopulateLocked seeds configured target fields when they are still
// empty. Only scalar string writes propagate, mirroring the authoring
// tool's contract.
func (s *Store) prePopulateLocked(path fieldpath.Path, value any) {
	str, ok := value.(string)
	if !ok || str == "" || path.Nested() {
		return
	}
	field, ok := s.index.Field(path.Head())
	if !ok {
		return
	}
	for _, target := range field.Config.PrePopulate {
		if target == "" || target == path.Head() {
			continue
		}
		if existing, exists := s.values[target]; exists {
			if s, isStr := existing.(string); !isStr || s != "" {
				continue
			}
		}
		s.values[target] = str
		s.queue.Put(target, str)
	}
}

func cloneRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func cloneRows(rows []map[string]any) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = cloneRow(row)
	}
	return out
}
