package search

import (
	"regexp"
	"strings"
)

// matcher matches query literally with simple case folding. Segments and
// Highlight share it so they always agree on what a match is.
func matcher(query string) *regexp.Regexp {
	return regexp.MustCompile("(?i)" + regexp.QuoteMeta(query))
}

// Carrier is the markup delimiter wrapped around each match.
type Carrier string

const (
	// CarrierMark renders as a genuine highlight span.
	CarrierMark Carrier = "=="
	// CarrierStrikethrough reuses strikethrough markup. The renderer must be
	// configured to draw strikethrough as a highlight.
	CarrierStrikethrough Carrier = "~~"
)

// Segment is a run of header text. Match marks an occurrence of the query.
type Segment struct {
	Text  string
	Match bool
}

type highlightOptions struct {
	carrier Carrier
}

// HighlightOption configures Highlight.
type HighlightOption func(*highlightOptions)

// WithCarrier selects the match delimiter.
func WithCarrier(c Carrier) HighlightOption {
	return func(o *highlightOptions) { o.carrier = c }
}

// Segments splits header into alternating non-match and match runs, matching
// query literally and case-insensitively. Original casing is kept and empty
// runs are omitted, so joining every Text yields header.
func Segments(header, query string) []Segment {
	if header == "" {
		return nil
	}
	if query == "" {
		return []Segment{{Text: header}}
	}
	var out []Segment
	last := 0
	for _, loc := range matcher(query).FindAllStringIndex(header, -1) {
		if loc[0] > last {
			out = append(out, Segment{Text: header[last:loc[0]]})
		}
		out = append(out, Segment{Text: header[loc[0]:loc[1]], Match: true})
		last = loc[1]
	}
	if last < len(header) {
		out = append(out, Segment{Text: header[last:]})
	}
	return out
}

// Highlight wraps every case-insensitive occurrence of query in header with
// the carrier delimiter. The header is returned unchanged when query is empty
// or absent.
//
// Carrier syntax already present in the header renders highlighted as well.
func Highlight(header, query string, opts ...HighlightOption) string {
	o := highlightOptions{carrier: CarrierMark}
	for _, opt := range opts {
		opt(&o)
	}
	return wrap(header, query, string(o.carrier), string(o.carrier))
}

func wrap(header, query, open, close string) string {
	segs := Segments(header, query)
	if !hasMatch(segs) {
		return header
	}

	var b strings.Builder
	for _, seg := range segs {
		if seg.Match {
			b.WriteString(open)
			b.WriteString(seg.Text)
			b.WriteString(close)
			continue
		}
		b.WriteString(seg.Text)
	}
	return b.String()
}

func hasMatch(segs []Segment) bool {
	for _, seg := range segs {
		if seg.Match {
			return true
		}
	}
	return false
}
