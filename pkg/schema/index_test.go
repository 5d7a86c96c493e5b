package schema

import "testing"

func indexedSchema() *Schema {
	return &Schema{
		Stages: []Stage{
			{
				ID: "stage-1",
				Pages: []Page{
					{
						ID: "page-1",
						Sections: []Section{
							{
								ID: "section-1",
								Fields: []Field{
									{ID: "name", Type: FieldTypeText, Config: Config{Tag: "applicant_name"}},
									{
										ID:   "address",
										Type: FieldTypeGrouplet,
										Config: Config{Grouplet: &Grouplet{Fields: []Field{
											{ID: "street", Type: FieldTypeText},
											{ID: "postcode", Type: FieldTypeText},
										}}},
									},
								},
							},
						},
					},
				},
			},
			{
				ID: "stage-2",
				Pages: []Page{
					{ID: "page-2", Sections: []Section{{ID: "section-2"}}},
				},
			},
		},
	}
}

func TestIndexNestedFields(t *testing.T) {
	idx := NewIndex(indexedSchema())

	if _, ok := idx.Field("street"); !ok {
		t.Fatalf("expected nested grouplet field to be indexed")
	}
	if parent, ok := idx.ParentOfField("street"); !ok || parent != "address" {
		t.Fatalf("expected parent address, got %q (%v)", parent, ok)
	}
	if _, ok := idx.ParentOfField("name"); ok {
		t.Fatalf("expected no parent for a top-level field")
	}
}

func TestIndexPageAndSectionOfField(t *testing.T) {
	idx := NewIndex(indexedSchema())

	if page, ok := idx.PageOfField("postcode"); !ok || page != "page-1" {
		t.Fatalf("expected declaring page page-1, got %q (%v)", page, ok)
	}
	if section, ok := idx.SectionOfField("postcode"); !ok || section != "section-1" {
		t.Fatalf("expected section-1, got %q (%v)", section, ok)
	}
	if _, ok := idx.PageOfField("missing"); ok {
		t.Fatalf("expected not-found for unknown field")
	}
}

func TestIndexTags(t *testing.T) {
	idx := NewIndex(indexedSchema())
	if tag, ok := idx.Tag("name"); !ok || tag != "applicant_name" {
		t.Fatalf("expected tag applicant_name, got %q (%v)", tag, ok)
	}
	if _, ok := idx.Tag("street"); ok {
		t.Fatalf("expected no tag for street")
	}
}

func TestNextPageInStageOrder(t *testing.T) {
	idx := NewIndex(indexedSchema())
	next, ok := idx.NextPageInStageOrder("page-1")
	if !ok || next != "page-2" {
		t.Fatalf("expected page-2, got %q (%v)", next, ok)
	}
	if _, ok := idx.NextPageInStageOrder("page-2"); ok {
		t.Fatalf("expected no page after the last stage")
	}
}

func TestPageOrder(t *testing.T) {
	idx := NewIndex(indexedSchema())
	order := idx.PageOrder()
	if len(order) != 2 || order[0] != "page-1" || order[1] != "page-2" {
		t.Fatalf("unexpected page order: %v", order)
	}
}

func TestNilSchemaIndex(t *testing.T) {
	idx := NewIndex(nil)
	if _, ok := idx.Field("anything"); ok {
		t.Fatalf("expected empty index")
	}
	if got := idx.PageOrder(); len(got) != 0 {
		t.Fatalf("expected empty page order, got %v", got)
	}
}
