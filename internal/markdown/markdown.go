// Package markdown renders Markdown chapter sources to HTML.
package markdown

import (
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// ToHTML renders md without embedded raw HTML or images. Quotes and dashes
// are left as written.
func ToHTML(md []byte) []byte {
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.SkipHTML | html.SkipImages,
	})
	p := parser.NewWithExtensions(parser.CommonExtensions &^ parser.MathJax)
	return markdown.Render(p.Parse(md), renderer)
}
