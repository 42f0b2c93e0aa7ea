// Package render turns note markup into HTML with goldmark.
package render

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// Renderer converts note text to HTML. It is safe for concurrent use.
type Renderer struct {
	block  goldmark.Markdown
	inline goldmark.Markdown
}

type options struct {
	strikethroughAsHighlight bool
}

// Option configures a Renderer.
type Option func(*options)

// WithStrikethroughAsHighlight renders ~~text~~ as <mark> instead of <del>.
// Use it when headers are highlighted with the strikethrough carrier.
func WithStrikethroughAsHighlight() Option {
	return func(o *options) { o.strikethroughAsHighlight = true }
}

// New creates a Renderer with GFM and the highlight span enabled.
func New(opts ...Option) *Renderer {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// Lower priority values win when several renderers claim the same kind.
	var overrides []util.PrioritizedValue
	if o.strikethroughAsHighlight {
		overrides = append(overrides, util.Prioritized(&markRenderer{kind: east.KindStrikethrough}, 100))
	}

	block := goldmark.New(
		goldmark.WithExtensions(extension.GFM, Highlight),
		goldmark.WithRendererOptions(renderer.WithNodeRenderers(overrides...)),
	)

	inlineOverrides := append([]util.PrioritizedValue{util.Prioritized(unwrapRenderer{}, 100)}, overrides...)
	inline := goldmark.New(
		goldmark.WithExtensions(extension.GFM, Highlight),
		goldmark.WithRendererOptions(renderer.WithNodeRenderers(inlineOverrides...)),
	)

	return &Renderer{block: block, inline: inline}
}

// Render converts a whole note to HTML.
func (r *Renderer) Render(text string) (string, error) {
	var buf bytes.Buffer
	if err := r.block.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return StripMatches(buf.String()), nil
}

// RenderInline converts a single header line to HTML without the enclosing
// paragraph or heading element, so it can sit inside a button or list row.
// Text between MatchOpen and MatchClose becomes a <mark> span. Sentinels that
// end up inside code spans or links are dropped from the output.
func (r *Renderer) RenderInline(markup string) (string, error) {
	var buf bytes.Buffer
	if err := r.inline.Convert([]byte(markup), &buf); err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return StripMatches(string(bytes.TrimRight(buf.Bytes(), "\n"))), nil
}

// unwrapRenderer drops paragraph and heading tags but keeps their children.
type unwrapRenderer struct{}

func (unwrapRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(gast.KindParagraph, unwrap)
	reg.Register(gast.KindHeading, unwrap)
}

func unwrap(w util.BufWriter, _ []byte, n gast.Node, entering bool) (gast.WalkStatus, error) {
	if !entering && n.NextSibling() != nil {
		_ = w.WriteByte('\n')
	}
	return gast.WalkContinue, nil
}
