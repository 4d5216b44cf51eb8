package document

import "testing"

func TestChecksum(t *testing.T) {
	tests := []struct {
		name   string
		doc    Document
		want   string
		wantOK bool
	}{
		{"string", Document{"sha": "abc"}, "abc", true},
		{"empty string", Document{"sha": ""}, "", false},
		{"missing", Document{"id": "1"}, "", false},
		{"single-valued any list", Document{"sha": []any{"abc"}}, "abc", true},
		{"single-valued string list", Document{"sha": []string{"abc"}}, "abc", true},
		{"multi-valued list", Document{"sha": []any{"a", "b"}}, "", false},
		{"number", Document{"sha": 42.0}, "", false},
		{"list of numbers", Document{"sha": []any{1.0}}, "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.doc.Checksum("sha")
			if got != tc.want || ok != tc.wantOK {
				t.Errorf("Checksum() = (%q, %v), want (%q, %v)", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestClone_Independent(t *testing.T) {
	orig := Document{"id": "1"}
	c := orig.Clone()
	c["id"] = "2"

	if orig["id"] != "1" {
		t.Errorf("original mutated: %v", orig)
	}
}

func TestEnriched_FieldsDoNotMutateSource(t *testing.T) {
	src := Document{"id": "doc-1", "sha": "abc"}
	e := NewEnriched(src, "abc", 0.75)

	fields := e.Fields("confidence")
	if fields["confidence"] != 0.75 {
		t.Errorf("confidence = %v, want 0.75", fields["confidence"])
	}
	if fields["id"] != "doc-1" {
		t.Errorf("id = %v", fields["id"])
	}
	if _, ok := src["confidence"]; ok {
		t.Error("source document was mutated")
	}
	if e.Checksum() != "abc" || e.Confidence() != 0.75 {
		t.Errorf("getters = (%q, %v)", e.Checksum(), e.Confidence())
	}
}

func TestEnriched_CustomConfidenceField(t *testing.T) {
	e := NewEnriched(Document{"sha": "abc"}, "abc", 0.5)

	fields := e.Fields("smqtk_iqr_confidence")
	if fields["smqtk_iqr_confidence"] != 0.5 {
		t.Errorf("fields = %v", fields)
	}
	if _, ok := fields["confidence"]; ok {
		t.Error("unexpected default confidence field")
	}
}
