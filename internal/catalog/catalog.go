// Package catalog serves the static book and study-note listings. The data
// ships with the binary; search and category filtering happen in memory.
package catalog

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/books.yaml data/notes.yaml
var dataFS embed.FS

// Book is one catalog entry.
type Book struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Author      string `yaml:"author" json:"author"`
	Category    string `yaml:"category" json:"category"`
	Description string `yaml:"description" json:"description,omitempty"`
	Available   bool   `yaml:"available" json:"available"`
}

// Note is one downloadable study note.
type Note struct {
	ID      string `yaml:"id" json:"id"`
	Title   string `yaml:"title" json:"title"`
	Subject string `yaml:"subject" json:"subject"`
	Class   string `yaml:"class" json:"class"`
	Pages   int    `yaml:"pages" json:"pages,omitempty"`
}

// Catalog holds the parsed listings.
type Catalog struct {
	books []Book
	notes []Note
}

// Load parses the embedded listings. It fails only on a malformed data
// file, which is a build defect rather than a runtime condition.
func Load() (*Catalog, error) {
	var c Catalog
	if err := loadYAML("data/books.yaml", &c.books); err != nil {
		return nil, err
	}
	if err := loadYAML("data/notes.yaml", &c.notes); err != nil {
		return nil, err
	}
	return &c, nil
}

func loadYAML(name string, dest any) error {
	raw, err := dataFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// Books returns entries matching the query and category. An empty query or
// category matches everything; matching is case-insensitive over title and
// author.
func (c *Catalog) Books(query, category string) []Book {
	query = strings.ToLower(strings.TrimSpace(query))
	var out []Book
	for _, b := range c.books {
		if category != "" && !strings.EqualFold(b.Category, category) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(b.Title), query) &&
			!strings.Contains(strings.ToLower(b.Author), query) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Book looks an entry up by id.
func (c *Catalog) Book(id string) (Book, bool) {
	for _, b := range c.books {
		if b.ID == id {
			return b, true
		}
	}
	return Book{}, false
}

// Categories returns the distinct book categories, sorted.
func (c *Catalog) Categories() []string {
	return distinct(c.books, func(b Book) string { return b.Category })
}

// Notes returns study notes matching the query and subject.
func (c *Catalog) Notes(query, subject string) []Note {
	query = strings.ToLower(strings.TrimSpace(query))
	var out []Note
	for _, n := range c.notes {
		if subject != "" && !strings.EqualFold(n.Subject, subject) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(n.Title), query) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Subjects returns the distinct note subjects, sorted.
func (c *Catalog) Subjects() []string {
	return distinct(c.notes, func(n Note) string { return n.Subject })
}

func distinct[T any](items []T, key func(T) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, item := range items {
		k := key(item)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
