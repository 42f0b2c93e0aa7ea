package render

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// HighlightNode is an inline span marked as a search match: ==text==.
type HighlightNode struct {
	gast.BaseInline
}

// Dump implements ast.Node.
func (n *HighlightNode) Dump(source []byte, level int) {
	gast.DumpHelper(n, source, level, nil, nil)
}

// KindHighlight is the NodeKind of HighlightNode.
var KindHighlight = gast.NewNodeKind("Highlight")

// Kind implements ast.Node.
func (n *HighlightNode) Kind() gast.NodeKind { return KindHighlight }

type highlightDelimiterProcessor struct{}

func (p *highlightDelimiterProcessor) IsDelimiter(b byte) bool { return b == '=' }

func (p *highlightDelimiterProcessor) CanOpenCloser(opener, closer *parser.Delimiter) bool {
	return opener.Char == closer.Char
}

func (p *highlightDelimiterProcessor) OnMatch(consumes int) gast.Node {
	return &HighlightNode{}
}

var defaultHighlightDelimiterProcessor = &highlightDelimiterProcessor{}

type highlightParser struct{}

func (s *highlightParser) Trigger() []byte { return []byte{'='} }

// Parse accepts exactly two '=' so "a == b" style text and setext-like runs stay literal.
func (s *highlightParser) Parse(parent gast.Node, block text.Reader, pc parser.Context) gast.Node {
	before := block.PrecendingCharacter()
	line, segment := block.PeekLine()
	node := parser.ScanDelimiter(line, before, 2, defaultHighlightDelimiterProcessor)
	if node == nil || node.OriginalLength != 2 || before == '=' {
		return nil
	}
	node.Segment = segment.WithStop(segment.Start + node.OriginalLength)
	block.Advance(node.OriginalLength)
	pc.PushDelimiter(node)
	return node
}

func (s *highlightParser) CloseBlock(parent gast.Node, pc parser.Context) {}

// Match sentinels are private-use runes wrapped around search matches before
// rendering. Unlike ==, they have no flanking rules, so adjacent matches and
// matches with whitespace edges still render as one <mark> each.
const (
	MatchOpen  = "\uE000"
	MatchClose = "\uE001"
)

var stripMatches = strings.NewReplacer(MatchOpen, "", MatchClose, "")

// StripMatches removes match sentinels from s.
func StripMatches(s string) string {
	return stripMatches.Replace(s)
}

type matchParser struct{}

func (matchParser) Trigger() []byte { return []byte{MatchOpen[0]} }

// Parse takes the text up to the closing sentinel verbatim, so markup inside
// a match is shown as typed.
func (matchParser) Parse(parent gast.Node, block text.Reader, pc parser.Context) gast.Node {
	line, segment := block.PeekLine()
	if !bytes.HasPrefix(line, []byte(MatchOpen)) {
		return nil
	}
	end := bytes.Index(line[len(MatchOpen):], []byte(MatchClose))
	if end < 0 {
		return nil
	}
	start := segment.Start + len(MatchOpen)
	node := &HighlightNode{}
	if end > 0 {
		node.AppendChild(node, gast.NewTextSegment(text.NewSegment(start, start+end)))
	}
	block.Advance(len(MatchOpen) + end + len(MatchClose))
	return node
}

type markRenderer struct {
	kind gast.NodeKind
}

func (r *markRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(r.kind, r.render)
}

func (r *markRenderer) render(w util.BufWriter, source []byte, n gast.Node, entering bool) (gast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString("<mark")
		if n.Attributes() != nil {
			html.RenderAttributes(w, n, html.GlobalAttributeFilter)
		}
		_ = w.WriteByte('>')
	} else {
		_, _ = w.WriteString("</mark>")
	}
	return gast.WalkContinue, nil
}

type highlight struct{}

// Highlight adds the ==text== span and the match sentinel span, both rendered as <mark>.
var Highlight goldmark.Extender = &highlight{}

func (e *highlight) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithInlineParsers(
		util.Prioritized(&highlightParser{}, 500),
		util.Prioritized(matchParser{}, 100),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(&markRenderer{kind: KindHighlight}, 500),
	))
}
