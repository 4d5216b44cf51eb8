package bleve

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/imagespace/iqrproxy/internal/domain"
	"github.com/imagespace/iqrproxy/internal/domain/document"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open("", "", 100)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func put(t *testing.T, idx *Index, id string, doc document.Document) {
	t.Helper()
	if err := idx.index.Index(id, map[string]any(doc)); err != nil {
		t.Fatalf("index %s: %v", id, err)
	}
}

func ids(docs []document.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		s, _ := d["id"].(string)
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func TestFindByField_ExactChecksums(t *testing.T) {
	idx := newTestIndex(t)
	seed := map[string]document.Document{
		"1": {"id": "1", "sha1sum_s_md": "aaa", "title": "cat"},
		"2": {"id": "2", "sha1sum_s_md": "aaa", "title": "cat copy"},
		"3": {"id": "3", "sha1sum_s_md": "bbb", "title": "dog"},
		"4": {"id": "4", "sha1sum_s_md": "ccc", "title": "bird"},
	}
	for id, d := range seed {
		put(t, idx, id, d)
	}

	docs, err := idx.FindByField(context.Background(), "sha1sum_s_md", []string{"aaa", "bbb", "zzz"})
	if err != nil {
		t.Fatalf("FindByField: %v", err)
	}

	got := ids(docs)
	if strings.Join(got, ",") != "1,2,3" {
		t.Errorf("ids = %v, want [1 2 3]", got)
	}
	for _, d := range docs {
		if _, ok := d.Checksum("sha1sum_s_md"); !ok {
			t.Errorf("document %v lost its checksum field", d)
		}
	}
}

func TestFindByField_ReadsPastMaxRows(t *testing.T) {
	idx, err := Open("", "", 7)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })

	var lines []string
	for n := range 30 {
		lines = append(lines, fmt.Sprintf(`{"id":"%02d","sha1sum_s_md":"s%d"}`, n, n%3))
	}
	if _, err := idx.LoadJSONL(strings.NewReader(strings.Join(lines, "\n")), "id"); err != nil {
		t.Fatalf("LoadJSONL: %v", err)
	}

	docs, err := idx.FindByField(context.Background(), "sha1sum_s_md", []string{"s0", "s1", "s2"})
	if err != nil {
		t.Fatalf("FindByField: %v", err)
	}
	got := ids(docs)
	if len(got) != 30 {
		t.Fatalf("found %d documents, want 30", len(got))
	}
	for n, id := range got {
		if want := fmt.Sprintf("%02d", n); id != want {
			t.Fatalf("ids[%d] = %s, want %s", n, id, want)
		}
	}
}

func TestFindByField_EmptyValues(t *testing.T) {
	docs, err := newTestIndex(t).FindByField(context.Background(), "sha1sum_s_md", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if docs == nil || len(docs) != 0 {
		t.Errorf("expected empty non-nil result, got %v", docs)
	}
}

func TestLoadJSONL(t *testing.T) {
	idx := newTestIndex(t)
	input := `{"id":"a","sha1sum_s_md":"aaa"}

{"id":"b","sha1sum_s_md":"bbb"}
{"sha1sum_s_md":"ccc"}
`
	n, err := idx.LoadJSONL(strings.NewReader(input), "id")
	if err != nil {
		t.Fatalf("LoadJSONL: %v", err)
	}
	if n != 3 {
		t.Errorf("loaded %d documents, want 3", n)
	}

	docs, err := idx.FindByField(context.Background(), "sha1sum_s_md", []string{"aaa", "bbb", "ccc"})
	if err != nil {
		t.Fatalf("FindByField: %v", err)
	}
	if len(docs) != 3 {
		t.Errorf("found %d documents, want 3", len(docs))
	}
}

func TestLoadJSONL_BadLine(t *testing.T) {
	_, err := newTestIndex(t).LoadJSONL(strings.NewReader("{\"id\":\"a\"}\nnot json\n"), "id")
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected error on line 2, got %v", err)
	}
}

func TestOpen_OnDiskReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.bleve")

	idx, err := Open(path, "", 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	put(t, idx, "1", document.Document{"id": "1", "sha1sum_s_md": "aaa"})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx, err = Open(path, "", 10)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()

	docs, err := idx.FindByField(context.Background(), "sha1sum_s_md", []string{"aaa"})
	if err != nil {
		t.Fatalf("FindByField: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("found %d documents after reopen, want 1", len(docs))
	}
}

func TestPing(t *testing.T) {
	idx := newTestIndex(t)
	if err := idx.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestFindByField_Closed(t *testing.T) {
	idx, err := Open("", "", 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = idx.Close()

	_, err = idx.FindByField(context.Background(), "sha1sum_s_md", []string{"aaa"})
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}
