// Package parser turns article Markdown into the rendered fields stored for
// each article: title, excerpt and body.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	gmparser "github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/starford/mdblog/internal/apperr"
	"github.com/starford/mdblog/internal/checksum"
	"github.com/starford/mdblog/internal/models"
)

// DefaultAssetPrefix is prepended to "category/slug/" when rewriting
// relative resource references.
const DefaultAssetPrefix = "api/article/"

var (
	titleRe     = regexp.MustCompile(`^# (.+?)\r?(?:\n|$)`)
	subheadRe   = regexp.MustCompile(`(?m)^## .+$`)
	codeClassRe = regexp.MustCompile(`<code class="language-([A-Za-z0-9_+#-]+)">`)
	htmlRefRe   = regexp.MustCompile(`(?i)(\s(?:src|href)\s*=\s*)("[^"]*"|'[^']*')`)
)

var assetBaseKey = gmparser.NewContextKey()

// assetBaseAttr carries the resource base from the parse context to the
// raw HTML renderer on the document node.
const assetBaseAttr = "asset-base"

// Result holds the rendered fields of one article.
type Result struct {
	Title    string
	Excerpt  string
	Body     string
	Checksum string
}

// Parser renders articles. It is safe for concurrent use.
type Parser struct {
	md          goldmark.Markdown
	assetPrefix string
}

// New creates a Parser. An empty assetPrefix selects DefaultAssetPrefix.
func New(assetPrefix string) *Parser {
	if assetPrefix == "" {
		assetPrefix = DefaultAssetPrefix
	}
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Footnote),
		goldmark.WithParserOptions(
			gmparser.WithASTTransformers(util.Prioritized(assetRewriter{}, 100)),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
			renderer.WithNodeRenderers(util.Prioritized(rawHTMLRenderer{}, 100)),
		),
	)
	return &Parser{md: md, assetPrefix: assetPrefix}
}

// Parse extracts and renders the fields of the article id from its raw
// Markdown. The first line must be a "# Title" heading.
func (p *Parser) Parse(id models.Identity, data []byte) (*Result, error) {
	src := string(data)

	m := titleRe.FindStringSubmatchIndex(src)
	if m == nil {
		return nil, &apperr.MissingTitleError{Category: id.Category, Slug: id.Slug}
	}
	title := strings.TrimSpace(src[m[2]:m[3]])
	if title == "" {
		return nil, &apperr.MissingTitleError{Category: id.Category, Slug: id.Slug}
	}
	rest := src[m[1]:]

	base := p.assetPrefix + id.Category + "/" + id.Slug + "/"

	var excerpt string
	if loc := subheadRe.FindStringIndex(rest); loc != nil {
		lead := strings.TrimSpace(rest[:loc[0]])
		if lead != "" {
			out, err := p.render(lead, base)
			if err != nil {
				return nil, fmt.Errorf("parser: render excerpt of %s: %w", id, err)
			}
			excerpt = out
		}
	}

	body, err := p.render(rest, base)
	if err != nil {
		return nil, fmt.Errorf("parser: render body of %s: %w", id, err)
	}

	return &Result{
		Title:    title,
		Excerpt:  excerpt,
		Body:     body,
		Checksum: checksum.Sum(data),
	}, nil
}

func (p *Parser) render(src, base string) (string, error) {
	pc := gmparser.NewContext()
	pc.Set(assetBaseKey, base)

	var buf bytes.Buffer
	if err := p.md.Convert([]byte(src), &buf, gmparser.WithContext(pc)); err != nil {
		return "", err
	}
	return highlighterClasses(buf.String()), nil
}

// highlighterClasses maps goldmark's "language-go" code classes to the
// "brush: go" form SyntaxHighlighter expects.
func highlighterClasses(s string) string {
	return codeClassRe.ReplaceAllString(s, `<code class="brush: $1">`)
}

// assetRewriter points relative image and link destinations at the
// article's resource path so rendered bodies work wherever they are served.
type assetRewriter struct{}

func (assetRewriter) Transform(doc *ast.Document, _ text.Reader, pc gmparser.Context) {
	base, _ := pc.Get(assetBaseKey).(string)
	if base == "" {
		return
	}
	doc.SetAttributeString(assetBaseAttr, base)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.Image:
			v.Destination = rewriteRef(v.Destination, base)
		case *ast.Link:
			v.Destination = rewriteRef(v.Destination, base)
		}
		return ast.WalkContinue, nil
	})
}

// rawHTMLRenderer writes inline and block HTML with relative src and href
// values rewritten the same way as Markdown destinations.
type rawHTMLRenderer struct{}

func (r rawHTMLRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindRawHTML, r.renderRawHTML)
	reg.Register(ast.KindHTMLBlock, r.renderHTMLBlock)
}

func (rawHTMLRenderer) renderRawHTML(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	n := node.(*ast.RawHTML)
	var raw bytes.Buffer
	for i := 0; i < n.Segments.Len(); i++ {
		seg := n.Segments.At(i)
		raw.Write(seg.Value(source))
	}
	_, _ = w.WriteString(rewriteHTMLRefs(raw.String(), documentBase(node)))
	return ast.WalkSkipChildren, nil
}

func (rawHTMLRenderer) renderHTMLBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.HTMLBlock)
	var raw bytes.Buffer
	for i := 0; i < n.Lines().Len(); i++ {
		line := n.Lines().At(i)
		raw.Write(line.Value(source))
	}
	if n.HasClosure() {
		raw.Write(n.ClosureLine.Value(source))
	}
	_, _ = w.WriteString(rewriteHTMLRefs(raw.String(), documentBase(node)))
	return ast.WalkContinue, nil
}

func documentBase(n ast.Node) string {
	doc := n.OwnerDocument()
	if doc == nil {
		return ""
	}
	v, _ := doc.AttributeString(assetBaseAttr)
	base, _ := v.(string)
	return base
}

// rewriteHTMLRefs rewrites quoted src and href attribute values in s.
func rewriteHTMLRefs(s, base string) string {
	if base == "" {
		return s
	}
	return htmlRefRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := htmlRefRe.FindStringSubmatch(m)
		quoted := sub[2]
		q, ref := quoted[:1], quoted[1:len(quoted)-1]
		return sub[1] + q + string(rewriteRef([]byte(ref), base)) + q
	})
}

func rewriteRef(dest []byte, base string) []byte {
	ref := string(dest)
	if !isRelative(ref) {
		return dest
	}
	return []byte(base + strings.TrimPrefix(ref, "./"))
}

func isRelative(ref string) bool {
	if ref == "" || strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "?") {
		return false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}
