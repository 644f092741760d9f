// Package websearch is an offline stand-in for web search: keyword-scored
// lookup over a secondary corpus of markdown pages.
package websearch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/dshills/incidentreasoner/internal/schema"
)

const (
	maxQueryTokens = 25
	minTokenLen    = 3
	snippetLines   = 12
	snippetChars   = 800
)

type page struct {
	title  string
	source string
	text   string
	lower  string
}

// Source is an immutable, preloaded corpus. Safe for concurrent use.
type Source struct {
	pages []page
}

// NewSource loads every *.md file at the root of fsys, in lexical order.
func NewSource(fsys fs.FS) (*Source, error) {
	return load(fsys, "")
}

// OpenDir loads the *.md files in dir. A missing directory yields an empty
// Source, which never returns hits.
func OpenDir(dir string) (*Source, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return &Source{}, nil
	}
	return load(os.DirFS(dir), dir)
}

func load(fsys fs.FS, prefix string) (*Source, error) {
	names, err := fs.Glob(fsys, "*.md")
	if err != nil {
		return nil, fmt.Errorf("websearch: glob: %w", err)
	}
	sort.Strings(names)

	s := &Source{pages: make([]page, 0, len(names))}
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("websearch: read %s: %w", name, err)
		}
		src := name
		if prefix != "" {
			src = filepath.Join(prefix, name)
		}
		text := string(data)
		s.pages = append(s.pages, page{
			title:  strings.ReplaceAll(strings.TrimSuffix(name, path.Ext(name)), "_", " "),
			source: src,
			text:   text,
			lower:  strings.ToLower(text),
		})
	}
	return s, nil
}

// Len returns the number of pages in the corpus.
func (s *Source) Len() int { return len(s.pages) }

// Search scores every page by the total number of occurrences of the query's
// tokens and returns the topK best, highest score first. Ties keep corpus
// order. Pages scoring zero are never returned.
func (s *Source) Search(query string, topK int) []schema.FallbackHit {
	tokens := tokenize(query)
	if len(tokens) == 0 || topK <= 0 {
		return []schema.FallbackHit{}
	}

	hits := []schema.FallbackHit{}
	for _, p := range s.pages {
		score := 0
		for _, tok := range tokens {
			score += strings.Count(p.lower, tok)
		}
		if score <= 0 {
			continue
		}
		hits = append(hits, schema.FallbackHit{
			Title:   p.title,
			Snippet: snippet(p.text),
			Source:  p.source,
			Score:   score,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

func keepRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '/', r == '_', r == '.', r == ':':
		return true
	}
	return unicode.IsSpace(r)
}

func tokenize(q string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if keepRune(r) {
			return r
		}
		return ' '
	}, strings.ToLower(q))

	var toks []string
	for _, f := range strings.Fields(cleaned) {
		if len(f) < minTokenLen {
			continue
		}
		toks = append(toks, f)
		if len(toks) == maxQueryTokens {
			break
		}
	}
	return toks
}

func snippet(text string) string {
	text = strings.ReplaceAll(strings.TrimSpace(text), "\r\n", "\n")
	lines := strings.Split(text, "\n")
	if len(lines) > snippetLines {
		lines = lines[:snippetLines]
	}
	r := []rune(strings.Join(lines, "\n"))
	if len(r) > snippetChars {
		r = r[:snippetChars]
	}
	return string(r)
}
