package catalog

import "testing"

func mustLoad(t *testing.T) *Catalog {
	t.Helper()
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return c
}

func TestBooksFiltering(t *testing.T) {
	t.Parallel()

	c := mustLoad(t)

	all := c.Books("", "")
	if len(all) == 0 {
		t.Fatal("embedded catalog is empty")
	}

	physics := c.Books("", "Physics")
	if len(physics) == 0 {
		t.Fatal("no physics books")
	}
	for _, b := range physics {
		if b.Category != "Physics" {
			t.Errorf("category filter leaked %+v", b)
		}
	}

	byAuthor := c.Books("kernighan", "")
	if len(byAuthor) != 1 || byAuthor[0].ID != "bk-010" {
		t.Errorf("author search = %+v", byAuthor)
	}

	scoped := c.Books("physics", "Computer Science")
	if len(scoped) != 0 {
		t.Errorf("query and category must both apply: %+v", scoped)
	}
}

func TestBookLookup(t *testing.T) {
	t.Parallel()

	c := mustLoad(t)
	if b, ok := c.Book("bk-001"); !ok || b.Title == "" {
		t.Errorf("Book(bk-001) = %+v, %v", b, ok)
	}
	if _, ok := c.Book("bk-999"); ok {
		t.Error("unknown id must not resolve")
	}
}

func TestCategoriesSortedDistinct(t *testing.T) {
	t.Parallel()

	cats := mustLoad(t).Categories()
	if len(cats) < 2 {
		t.Fatalf("categories = %v", cats)
	}
	seen := map[string]bool{}
	for i, cat := range cats {
		if seen[cat] {
			t.Errorf("duplicate category %q", cat)
		}
		seen[cat] = true
		if i > 0 && cats[i-1] > cat {
			t.Errorf("categories not sorted: %v", cats)
		}
	}
}

func TestNotesFiltering(t *testing.T) {
	t.Parallel()

	c := mustLoad(t)
	physics := c.Notes("", "Physics")
	for _, n := range physics {
		if n.Subject != "Physics" {
			t.Errorf("subject filter leaked %+v", n)
		}
	}
	if got := c.Notes("database", ""); len(got) != 1 || got[0].ID != "nt-004" {
		t.Errorf("title search = %+v", got)
	}
	if subjects := c.Subjects(); len(subjects) == 0 {
		t.Error("no note subjects")
	}
}
