package schema

// Index holds the flattened lookup tables derived from a schema tree. Every
// nested field, however deeply embedded in grouplets or repeatable-iterator
// target schemas, is reachable by its id. Lookups report found/not-found
// rather than failing; a missing id means the field does not participate in
// navigation.
type Index struct {
	schema *Schema

	fields   map[string]Field
	tags     map[string]string
	pages    map[string]Page
	pageOf   map[string]string // field id -> declaring page id
	stageOf  map[string]string // page id -> stage id
	section  map[string]string // field id -> section id
	sections map[string]Section
	parent   map[string]string // child field id -> owning grouplet id
	order    []string          // page ids in schema order
}

// NewIndex flattens the schema into its lookup tables. The schema is treated
// as immutable from this point on.
func NewIndex(s *Schema) *Index {
	idx := &Index{
		schema:   s,
		fields:   map[string]Field{},
		tags:     map[string]string{},
		pages:    map[string]Page{},
		pageOf:   map[string]string{},
		stageOf:  map[string]string{},
		section:  map[string]string{},
		sections: map[string]Section{},
		parent:   map[string]string{},
	}
	if s == nil {
		return idx
	}
	for _, stage := range s.Stages {
		for _, page := range stage.Pages {
			idx.pages[page.ID] = page
			idx.stageOf[page.ID] = stage.ID
			idx.order = append(idx.order, page.ID)
			for _, section := range page.Sections {
				idx.sections[section.ID] = section
				idx.addFields(section.Fields, page.ID, section.ID, "")
			}
		}
	}
	return idx
}

// addFields records fields recursively. Nested fields keep the canonical
// page id of the page their template is declared on, even when rendered
// once per repeatable row.
func (idx *Index) addFields(fields []Field, pageID, sectionID, parentID string) {
	for _, f := range fields {
		idx.fields[f.ID] = f
		idx.pageOf[f.ID] = pageID
		idx.section[f.ID] = sectionID
		if parentID != "" {
			idx.parent[f.ID] = parentID
		}
		if tag := f.Config.Tag; tag != "" {
			idx.tags[f.ID] = tag
		}
		if children := f.Children(); len(children) > 0 {
			idx.addFields(children, pageID, sectionID, f.ID)
		}
	}
}

// Schema returns the indexed schema.
func (idx *Index) Schema() *Schema { return idx.schema }

// Field looks up a field definition by id.
func (idx *Index) Field(id string) (Field, bool) {
	f, ok := idx.fields[id]
	return f, ok
}

// Tag returns the declared tag name for a field id, if any.
func (idx *Index) Tag(id string) (string, bool) {
	t, ok := idx.tags[id]
	return t, ok
}

// Page looks up a page definition by id.
func (idx *Index) Page(id string) (Page, bool) {
	p, ok := idx.pages[id]
	return p, ok
}

// Section looks up a section definition by id.
func (idx *Index) Section(id string) (Section, bool) {
	s, ok := idx.sections[id]
	return s, ok
}

// PageOfField returns the id of the page the field's template is declared
// on.
func (idx *Index) PageOfField(fieldID string) (string, bool) {
	p, ok := idx.pageOf[fieldID]
	return p, ok
}

// SectionOfField returns the id of the section owning the field.
func (idx *Index) SectionOfField(fieldID string) (string, bool) {
	s, ok := idx.section[fieldID]
	return s, ok
}

// ParentOfField returns the owning grouplet's field id for nested fields.
func (idx *Index) ParentOfField(fieldID string) (string, bool) {
	p, ok := idx.parent[fieldID]
	return p, ok
}

// PageOrder returns page ids in schema declaration order.
func (idx *Index) PageOrder() []string {
	return append([]string(nil), idx.order...)
}

// NextPageInStageOrder returns the first page of the stage following the
// stage the given page belongs to. ok is false when the page is unknown or
// no later stage has pages.
func (idx *Index) NextPageInStageOrder(pageID string) (string, bool) {
	stageID, ok := idx.stageOf[pageID]
	if !ok || idx.schema == nil {
		return "", false
	}
	found := false
	for _, stage := range idx.schema.Stages {
		if found && len(stage.Pages) > 0 {
			return stage.Pages[0].ID, true
		}
		if stage.ID == stageID {
			found = true
		}
	}
	return "", false
}
