package report

import (
	"bytes"
	"fmt"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const reportCSS = `body{font-family:-apple-system,Segoe UI,Helvetica,Arial,sans-serif;max-width:60rem;margin:2rem auto;padding:0 1rem;color:#222}
table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:.25rem .75rem}
h4{margin-bottom:.25rem}`

var markdownRenderer = goldmark.New(goldmark.WithExtensions(extension.Table))

// WriteHTML converts the Markdown report to a standalone HTML document.
// Raw HTML in the Markdown source is not rendered.
func WriteHTML(w io.Writer, r *AnalysisResult) error {
	var body bytes.Buffer
	if err := markdownRenderer.Convert([]byte(Markdown(r)), &body); err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}

	bodyNode := element(atom.Body)
	fragment, err := html.ParseFragment(&body, bodyNode)
	if err != nil {
		return fmt.Errorf("parse report body: %w", err)
	}
	for _, n := range fragment {
		bodyNode.AppendChild(n)
	}

	title := element(atom.Title)
	title.AppendChild(&html.Node{Type: html.TextNode, Data: "Consistency report: " + r.Presentation.Source})
	meta := element(atom.Meta)
	meta.Attr = []html.Attribute{{Key: "charset", Val: "utf-8"}}
	style := element(atom.Style)
	style.AppendChild(&html.Node{Type: html.TextNode, Data: reportCSS})

	head := element(atom.Head)
	head.AppendChild(meta)
	head.AppendChild(title)
	head.AppendChild(style)

	root := element(atom.Html)
	root.Attr = []html.Attribute{{Key: "lang", Val: "en"}}
	root.AppendChild(head)
	root.AppendChild(bodyNode)

	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	doc.AppendChild(root)
	return html.Render(w, doc)
}

func element(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}
