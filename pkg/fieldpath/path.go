// Package fieldpath provides the structured qualified-path type used to
// locate values inside nested grouplet and repeatable-row structures. A path
// is an ordered list of segments: field ids, interleaved with row indices
// under repeatable fields. Paths compare structurally; the rendered string
// form ("group/0/child") exists only for wire payloads and logs.
package fieldpath

import (
	"strconv"
	"strings"
)

// Separator joins segments in the rendered string form. It matches the
// prefix separator the persistence service expects in value payloads.
const Separator = "/"

// Segment is one step in a qualified path: either a field id or a row index.
type Segment struct {
	id  string
	row int
}

// FieldSegment returns a segment addressing a field id.
func FieldSegment(id string) Segment { return Segment{id: id, row: -1} }

// RowSegment returns a segment addressing a repeatable row by index.
func RowSegment(index int) Segment { return Segment{row: index} }

// IsRow reports whether the segment is a row index.
func (s Segment) IsRow() bool { return s.id == "" && s.row >= 0 }

// FieldID returns the field id for field segments, "" for rows.
func (s Segment) FieldID() string { return s.id }

// Row returns the row index for row segments, -1 otherwise.
func (s Segment) Row() int {
	if s.IsRow() {
		return s.row
	}
	return -1
}

func (s Segment) String() string {
	if s.IsRow() {
		return strconv.Itoa(s.row)
	}
	return s.id
}

// Path locates a value in the store. The zero value is the empty path.
type Path struct {
	segments []Segment
}

// New builds a path from a top-level field id.
func New(fieldID string) Path {
	if fieldID == "" {
		return Path{}
	}
	return Path{segments: []Segment{FieldSegment(fieldID)}}
}

// Parse decodes the string form. Numeric segments become row indices;
// everything else is treated as a field id.
func Parse(raw string) Path {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Path{}
	}
	parts := strings.Split(raw, Separator)
	segments := make([]Segment, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		if n, err := strconv.Atoi(part); err == nil && n >= 0 {
			segments = append(segments, RowSegment(n))
			continue
		}
		segments = append(segments, FieldSegment(part))
	}
	return Path{segments: segments}
}

// Child extends the path with a nested field id.
func (p Path) Child(fieldID string) Path {
	return p.append(FieldSegment(fieldID))
}

// Row extends the path with a repeatable row index.
func (p Path) Row(index int) Path {
	return p.append(RowSegment(index))
}

func (p Path) append(seg Segment) Path {
	segments := make([]Segment, 0, len(p.segments)+1)
	segments = append(segments, p.segments...)
	segments = append(segments, seg)
	return Path{segments: segments}
}

// IsZero reports whether the path has no segments.
func (p Path) IsZero() bool { return len(p.segments) == 0 }

// Len returns the number of segments.
func (p Path) Len() int { return len(p.segments) }

// Segments returns a copy of the segment list.
func (p Path) Segments() []Segment {
	return append([]Segment(nil), p.segments...)
}

// Head returns the first segment's field id, or "" for an empty path. The
// head identifies the top-level field the value hangs off.
func (p Path) Head() string {
	if len(p.segments) == 0 {
		return ""
	}
	return p.segments[0].FieldID()
}

// Leaf returns the field id of the last field segment, or "".
func (p Path) Leaf() string {
	for i := len(p.segments) - 1; i >= 0; i-- {
		if !p.segments[i].IsRow() {
			return p.segments[i].FieldID()
		}
	}
	return ""
}

// Nested reports whether the path descends below a top-level field.
func (p Path) Nested() bool { return len(p.segments) > 1 }

// Equal compares two paths structurally.
func (p Path) Equal(other Path) bool {
	if len(p.segments) != len(other.segments) {
		return false
	}
	for i := range p.segments {
		if p.segments[i] != other.segments[i] {
			return false
		}
	}
	return true
}

// String renders the wire form. Field ids are assumed non-numeric; a bare
// integer segment always denotes a row index.
func (p Path) String() string {
	if len(p.segments) == 0 {
		return ""
	}
	parts := make([]string, len(p.segments))
	for i, seg := range p.segments {
		parts[i] = seg.String()
	}
	return strings.Join(parts, Separator)
}
