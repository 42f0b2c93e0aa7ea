package search

import (
	"github.com/samber/lo"

	"github.com/starford/notes/internal/models"
	"github.com/starford/notes/internal/render"
)

// InlineRenderer renders a single markup line to HTML.
type InlineRenderer interface {
	RenderInline(markup string) (string, error)
}

// Result is one visible note with its highlighted header.
type Result struct {
	Note   models.Note
	Header string
	// Markup is the header with carrier-wrapped matches.
	Markup string
	// HeaderHTML is the header rendered with each match as a <mark> span, or
	// empty without a renderer or on render failure.
	HeaderHTML string
}

// Results filters and orders notes, then highlights each header.
// r may be nil.
func Results(notes models.Collection, query string, r InlineRenderer, opts ...HighlightOption) []Result {
	return lo.Map(FilterAndOrder(notes, query), func(n models.Note, _ int) Result {
		header := Header(n.Text)
		res := Result{Note: n, Header: header, Markup: Highlight(header, query, opts...)}
		if r != nil {
			// Matches go to the renderer in sentinels, not the carrier.
			marked := wrap(render.StripMatches(header), query, render.MatchOpen, render.MatchClose)
			if html, err := r.RenderInline(marked); err == nil {
				res.HeaderHTML = html
			}
		}
		return res
	})
}
