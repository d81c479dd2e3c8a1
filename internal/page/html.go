package page

import (
	"fmt"
	"io"

	"golang.org/x/net/html"
)

// ParseHTML builds a document from markup. The root is the <html> element;
// the title comes from the first <title>. Layout is not derived from markup
// and must be supplied with SetBox.
func ParseHTML(r io.Reader, url string) (*Document, error) {
	tree, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var root *Element
	for n := tree.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode {
			root = convert(n)
			break
		}
	}
	if root == nil {
		return nil, fmt.Errorf("parse html: no root element")
	}

	doc := NewDocument(root, url)
	if title := root.QueryFirst(func(e *Element) bool { return e.Tag == "title" }); title != nil {
		doc.SetTitle(title.TextContent())
	}
	return doc, nil
}

func convert(n *html.Node) *Element {
	attrs := make(Attrs, len(n.Attr))
	for _, a := range n.Attr {
		if a.Namespace == "" {
			attrs[a.Key] = a.Val
		}
	}
	el := NewElement(n.Data, attrs)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			el.appendChild(convert(c))
		case html.TextNode:
			el.appendText(c.Data)
		}
	}
	return el
}
