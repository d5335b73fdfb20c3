package dom

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DOM node type codes.
const (
	ElementNode      = 1
	AttributeNode    = 2
	TextNode         = 3
	CommentNode      = 8
	DocumentNode     = 9
	DocumentTypeNode = 10
)

// attrNamespace marks the detached nodes standing for XPath attribute results.
const attrNamespace = "#attr"

// NewAttr returns a detached attribute node. Its value is held as a single
// text child, so TextContent reports it.
func NewAttr(name, value string) *html.Node {
	n := &html.Node{Type: html.RawNode, Namespace: attrNamespace, Data: name}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: value})
	return n
}

func IsAttr(n *html.Node) bool {
	return n != nil && n.Type == html.RawNode && n.Namespace == attrNamespace
}

func NodeType(n *html.Node) int {
	if IsAttr(n) {
		return AttributeNode
	}
	switch n.Type {
	case html.ElementNode:
		return ElementNode
	case html.TextNode:
		return TextNode
	case html.CommentNode:
		return CommentNode
	case html.DocumentNode:
		return DocumentNode
	case html.DoctypeNode:
		return DocumentTypeNode
	}
	return 0
}

func NodeName(n *html.Node) string {
	switch n.Type {
	case html.ElementNode:
		if n.Namespace == "" {
			return strings.ToUpper(n.Data)
		}
		return n.Data
	case html.TextNode:
		return "#text"
	case html.CommentNode:
		return "#comment"
	case html.DocumentNode:
		return "#document"
	}
	return n.Data
}

// TextContent follows the DOM textContent property: documents and doctypes
// have none, character data returns itself, elements concatenate their
// descendant text.
func TextContent(n *html.Node) (string, bool) {
	switch n.Type {
	case html.DocumentNode, html.DoctypeNode:
		return "", false
	case html.TextNode, html.CommentNode:
		return n.Data, true
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		for ; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
			walk(c.FirstChild)
		}
	}
	walk(n.FirstChild)
	return b.String(), true
}

func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func ID(n *html.Node) string {
	v, _ := Attr(n, "id")
	return v
}

func ClassName(n *html.Node) string {
	v, _ := Attr(n, "class")
	return v
}

// Href returns the resolved href of link-like elements, "" otherwise.
func Href(base *url.URL, n *html.Node) string {
	if n.Type != html.ElementNode {
		return ""
	}
	switch n.DataAtom {
	case atom.A, atom.Area, atom.Link, atom.Base:
	default:
		return ""
	}
	raw, ok := Attr(n, "href")
	if !ok {
		return ""
	}
	if base == nil {
		return raw
	}
	u, err := base.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	return u.String()
}

// Value reports the scalar value field of form-like elements.
func Value(n *html.Node) (string, bool) {
	if n.Type != html.ElementNode {
		return "", false
	}
	switch n.DataAtom {
	case atom.Input:
		if v, ok := Attr(n, "value"); ok {
			return v, true
		}
		if t, _ := Attr(n, "type"); strings.EqualFold(t, "checkbox") || strings.EqualFold(t, "radio") {
			return "on", true
		}
		return "", true
	case atom.Button, atom.Param, atom.Data:
		v, _ := Attr(n, "value")
		return v, true
	case atom.Textarea, atom.Output:
		v, _ := TextContent(n)
		return v, true
	case atom.Option:
		if v, ok := Attr(n, "value"); ok {
			return v, true
		}
		v, _ := TextContent(n)
		return strings.Join(strings.Fields(v), " "), true
	case atom.Select:
		var first, selected *html.Node
		walkElements(n, func(c *html.Node) bool {
			if c.DataAtom != atom.Option {
				return true
			}
			if first == nil {
				first = c
			}
			if _, ok := Attr(c, "selected"); ok && selected == nil {
				selected = c
			}
			return true
		})
		if selected == nil {
			selected = first
		}
		if selected == nil {
			return "", true
		}
		return Value(selected)
	}
	return "", false
}

// walkElements visits element descendants of n in document order until fn
// returns false.
func walkElements(n *html.Node, fn func(*html.Node) bool) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && !fn(c) {
			return false
		}
		if !walkElements(c, fn) {
			return false
		}
	}
	return true
}

// Elements returns the element descendants of n matching keep, in document
// order.
func Elements(n *html.Node, keep func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	walkElements(n, func(c *html.Node) bool {
		if keep(c) {
			out = append(out, c)
		}
		return true
	})
	return out
}

// Sandboxed reports whether a frame element gives its content an opaque
// origin.
func Sandboxed(el *html.Node) bool {
	v, ok := Attr(el, "sandbox")
	if !ok {
		return false
	}
	for _, token := range strings.Fields(strings.ToLower(v)) {
		if token == "allow-same-origin" {
			return false
		}
	}
	return true
}
