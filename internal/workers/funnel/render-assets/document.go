package renderassets

import (
	"bytes"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const tailwindCDN = "https://cdn.tailwindcss.com"

// el builds an element node. attrs are key/value pairs; nil children are skipped.
func el(a atom.Atom, attrs []string, children ...*html.Node) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	for _, c := range children {
		if c != nil {
			n.AppendChild(c)
		}
	}
	return n
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func attrs(kv ...string) []string { return kv }

func class(c string) []string { return []string{"class", c} }

func div(c string, children ...*html.Node) *html.Node {
	return el(atom.Div, class(c), children...)
}

func p(c, s string) *html.Node {
	return el(atom.P, class(c), text(s))
}

// document wraps body content in a complete page and serializes it.
func document(title string, body ...*html.Node) (string, error) {
	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	doc.AppendChild(el(atom.Html, attrs("lang", "en"),
		el(atom.Head, nil,
			el(atom.Meta, attrs("charset", "utf-8")),
			el(atom.Meta, attrs("name", "viewport", "content", "width=device-width, initial-scale=1")),
			el(atom.Title, nil, text(title)),
			el(atom.Script, attrs("src", tailwindCDN)),
		),
		el(atom.Body, class("antialiased"), body...),
	))

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}
