package fts

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/starford/zotindex/internal/apperr"
)

// Query is a user search request.
type Query struct {
	Text   string
	Column string
	Limit  int
}

// BuildMatch turns free text into an FTS MATCH expression. Every word
// becomes a prefix term; all terms must match. A non-empty column
// restricts each term to that column.
func BuildMatch(text, column string) (string, error) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(words) == 0 {
		return "", fmt.Errorf("fts: empty query: %w", apperr.ErrInvalidQuery)
	}
	terms := make([]string, len(words))
	for i, w := range words {
		if column != "" {
			terms[i] = column + ":" + w + "*"
		} else {
			terms[i] = w + "*"
		}
	}
	return strings.Join(terms, " "), nil
}

// Searcher queries the plain index, or the folded one when the query is
// pure ASCII so that "muller" also finds "Müller".
type Searcher struct {
	Plain  *Index
	Folded *Index
}

// Pick returns the index a query with the given text will run against.
func (s Searcher) Pick(text string) *Index {
	if s.Folded != nil && IsASCII(text) {
		return s.Folded
	}
	return s.Plain
}

// Search runs q and returns ranked hits.
func (s Searcher) Search(q Query) ([]Hit, error) {
	ix := s.Pick(q.Text)
	if ix == nil {
		return nil, fmt.Errorf("fts: no index open")
	}
	if q.Column != "" && !ix.schema.Has(q.Column) {
		return nil, fmt.Errorf("fts: unknown column %q: %w", q.Column, apperr.ErrInvalidQuery)
	}
	expr, err := BuildMatch(q.Text, q.Column)
	if err != nil {
		return nil, err
	}
	return ix.Match(expr, q.Limit)
}
