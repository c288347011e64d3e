package storage

import (
	"testing"

	"github.com/hammamikhairi/ottochat/internal/domain"
	"github.com/hammamikhairi/ottochat/internal/logger"
)

func ids(sessions []domain.Session) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMemoryCatalogCRUD(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	cat := NewMemoryCatalog(log)

	cat.Replace([]domain.Session{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}})

	// Prepend.
	cat.Prepend(domain.Session{ID: "c", Title: "C"})
	if got := ids(cat.List()); !equal(got, []string{"c", "a", "b"}) {
		t.Fatalf("after prepend: got %v", got)
	}

	// Prepend existing moves it.
	cat.Prepend(domain.Session{ID: "b", Title: "B2"})
	if got := ids(cat.List()); !equal(got, []string{"b", "c", "a"}) {
		t.Fatalf("after re-prepend: got %v", got)
	}

	// Get.
	s, err := cat.Get("b")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Title != "B2" {
		t.Fatalf("expected title B2, got %s", s.Title)
	}

	// Get nonexistent.
	if _, err := cat.Get("nope"); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Delete.
	if err := cat.Delete("c"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := ids(cat.List()); !equal(got, []string{"b", "a"}) {
		t.Fatalf("after delete: got %v", got)
	}

	// Delete nonexistent.
	if err := cat.Delete("c"); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	cat.Clear()
	if cat.Len() != 0 {
		t.Fatalf("expected empty catalog, got %d", cat.Len())
	}
}

func TestMemoryCatalogPatch(t *testing.T) {
	cat := NewMemoryCatalog(logger.New(logger.LevelOff, nil))
	cat.Replace([]domain.Session{{ID: "a", Title: "old"}})

	if !cat.Patch("a", func(s *domain.Session) { s.Title = "new" }) {
		t.Fatal("expected patch to apply")
	}
	s, _ := cat.Get("a")
	if s.Title != "new" {
		t.Fatalf("expected patched title, got %s", s.Title)
	}

	if cat.Patch("missing", func(s *domain.Session) { s.Title = "x" }) {
		t.Fatal("patch of unknown id must report false")
	}
}

func TestMemoryCatalogListIsCopy(t *testing.T) {
	cat := NewMemoryCatalog(logger.New(logger.LevelOff, nil))
	in := []domain.Session{{ID: "a", Title: "A"}}
	cat.Replace(in)

	in[0].Title = "mutated"
	out := cat.List()
	out[0].Title = "mutated too"

	s, _ := cat.Get("a")
	if s.Title != "A" {
		t.Fatalf("catalog shares memory with callers: %s", s.Title)
	}
}
