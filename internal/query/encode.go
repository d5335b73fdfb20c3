package query

import (
	"bytes"
	"fmt"
	"net/url"

	"golang.org/x/net/html"

	"github.com/patrickjm/domq/internal/dom"
	"github.com/patrickjm/domq/internal/layout"
)

const measureTag = "domq-measure"

// Encoder turns query results into JSON-ready values for one window.
type Encoder struct {
	base   *url.URL
	layout layout.Layout
}

func NewEncoder(win *dom.Window) *Encoder {
	return &Encoder{base: win.URL(), layout: win.Layout()}
}

// SerializeNode describes a single node. The rect is present only when the
// layout can measure the node.
func (e *Encoder) SerializeNode(n *html.Node, fullDump bool) *NodeRecord {
	code := dom.NodeType(n)
	rec := &NodeRecord{
		NodeType: nodeTypeLabel(code),
		NodeName: strptr(dom.NodeName(n)),
		ID:       strptr(dom.ID(n)),
		Class:    strptr(dom.ClassName(n)),
		Href:     dom.Href(e.base, n),
	}
	if r, ok := e.layout.Box(n); ok {
		rec.Rect = &r
	}
	if v, ok := dom.Value(n); ok {
		rec.Value = &v
	}
	if fullDump || code == dom.TextNode || code == dom.AttributeNode {
		if text, ok := dom.TextContent(n); ok {
			rec.TextContent = &text
		}
	}
	if fullDump && n.Type == html.ElementNode {
		var buf bytes.Buffer
		if err := html.Render(&buf, n); err == nil {
			rec.HTML = buf.String()
		}
	}
	return rec
}

// Coerce normalises a query result. Nodes become records, node lists and
// arrays are mapped element-wise, everything else is returned as is.
func (e *Encoder) Coerce(v any, fullDump bool) (any, error) {
	switch x := v.(type) {
	case UndefinedValue:
		return nil, fmt.Errorf("%w: cannot serialize undefined", ErrInvalidArgument)
	case *html.Node:
		if x == nil {
			return nil, nil
		}
		if x.Type == html.TextNode {
			return e.textRecord(x), nil
		}
		return e.SerializeNode(x, fullDump), nil
	case []*html.Node:
		out := make([]any, len(x))
		for i, n := range x {
			c, err := e.Coerce(n, fullDump)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case []any:
		if len(x) == 0 {
			return x, nil
		}
		if _, undefined := x[0].(UndefinedValue); undefined {
			return x, nil
		}
		out := make([]any, len(x))
		for i, item := range x {
			c, err := e.Coerce(item, fullDump)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	}
	return v, nil
}

// textRecord measures a text node. Without a text measurer the node is
// wrapped in an inline marker element while the marker is measured; the
// node is back in its place before textRecord returns.
func (e *Encoder) textRecord(n *html.Node) *NodeRecord {
	text := n.Data
	if tm, ok := e.layout.(layout.TextMeasurer); ok {
		rec := &NodeRecord{NodeType: nodeTypeLabel(dom.TextNode), TextContent: &text}
		if r, ok := tm.TextBox(n); ok {
			rec.Rect = &r
		}
		return rec
	}
	parent := n.Parent
	if parent == nil {
		return &NodeRecord{NodeType: nodeTypeLabel(dom.TextNode), TextContent: &text}
	}

	marker := &html.Node{
		Type: html.ElementNode,
		Data: measureTag,
		Attr: []html.Attribute{{Key: "style", Val: "display:inline"}},
	}
	parent.InsertBefore(marker, n)
	parent.RemoveChild(n)
	marker.AppendChild(n)
	rec := e.SerializeNode(marker, false)
	marker.RemoveChild(n)
	parent.InsertBefore(n, marker)
	parent.RemoveChild(marker)

	rec.NodeType = nodeTypeLabel(dom.TextNode)
	rec.NodeName = nil
	rec.ID = nil
	rec.Class = nil
	rec.Value = nil
	rec.TextContent = &text
	return rec
}

// DumpTree attaches the coerced children of n to base, recursing into
// element and document children.
func (e *Encoder) DumpTree(n *html.Node, base any) (any, error) {
	rec, ok := base.(*NodeRecord)
	if !ok {
		return base, nil
	}
	children := make([]any, 0)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		v, err := e.Coerce(c, false)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		if child, ok := v.(*NodeRecord); ok && (c.Type == html.ElementNode || c.Type == html.DocumentNode) {
			if _, err := e.DumpTree(c, child); err != nil {
				return nil, err
			}
		}
		children = append(children, v)
	}
	rec.Children = children
	return rec, nil
}
