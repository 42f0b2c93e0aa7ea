// Package search filters and orders notes and marks query matches in note headers.
//
// Nothing here returns an error or mutates its input; every function is safe
// to call on every keystroke.
package search

import (
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/starford/notes/internal/models"
)

// FilterAndOrder returns the notes whose text contains query case-insensitively,
// most recent first. Notes with equal dates keep their collection order.
// An empty query matches every note.
func FilterAndOrder(notes models.Collection, query string) []models.Note {
	all := notes.Notes()
	if query != "" {
		q := strings.ToLower(query)
		all = lo.Filter(all, func(n models.Note, _ int) bool {
			return strings.Contains(strings.ToLower(n.Text), q)
		})
	}
	slices.SortStableFunc(all, func(a, b models.Note) int {
		return b.Date.Compare(a.Date)
	})
	return all
}

// Header returns the first non-blank line of text, trimmed.
func Header(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	for line := range strings.SplitSeq(text, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			return l
		}
	}
	return ""
}
