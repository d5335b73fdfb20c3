package browser

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/patrickjm/domq/internal/dom"
	"github.com/patrickjm/domq/internal/layout"
)

// CapturedFrame is one document as reported by the capture script.
type CapturedFrame struct {
	URL  string        `json:"url"`
	Root *CapturedNode `json:"root"`
}

// CapturedNode is a compact node: t is the DOM node type, n the local name,
// s a namespace shorthand, a the attributes, d character data, r the client
// rect as [left, top, width, height] and c the children.
type CapturedNode struct {
	Type     int             `json:"t"`
	Name     string          `json:"n,omitempty"`
	NS       string          `json:"s,omitempty"`
	Attrs    [][2]string     `json:"a,omitempty"`
	Data     string          `json:"d,omitempty"`
	Rect     []float64       `json:"r,omitempty"`
	Children []*CapturedNode `json:"c,omitempty"`
}

// frameSource is a live frame that can be captured and walked.
type frameSource interface {
	Capture() (CapturedFrame, error)
	// Children returns the content frames of the frame's iframe and frame
	// elements in document order, nil where an element has none.
	Children() ([]frameSource, error)
}

func snapshotTree(src frameSource, parent *dom.Window, el *html.Node, depth int) (*dom.Window, error) {
	captured, err := src.Capture()
	if err != nil {
		return nil, fmt.Errorf("capture frame: %w", err)
	}
	win, err := buildWindow(captured, parent, el)
	if err != nil {
		return nil, err
	}
	if depth <= 1 {
		return win, nil
	}
	children, err := src.Children()
	if err != nil {
		win.Close()
		return nil, fmt.Errorf("list frames of %s: %w", captured.URL, err)
	}
	elements := dom.FrameElements(win.Document())
	for i, child := range children {
		if child == nil || i >= len(elements) {
			continue
		}
		if _, err := snapshotTree(child, win, elements[i], depth-1); err != nil {
			win.Close()
			return nil, err
		}
	}
	return win, nil
}

func buildWindow(captured CapturedFrame, parent *dom.Window, el *html.Node) (*dom.Window, error) {
	if captured.Root == nil {
		return nil, errors.New("capture has no document element")
	}
	u, err := url.Parse(captured.URL)
	if err != nil {
		return nil, fmt.Errorf("frame url: %w", err)
	}
	fixed := layout.NewFixed()
	doc := &html.Node{Type: html.DocumentNode}
	if root := buildNode(captured.Root, fixed); root != nil {
		doc.AppendChild(root)
	}
	cfg := dom.Config{URL: u, Layout: fixed, Parent: parent, FrameElement: el}
	if el != nil && dom.Sandboxed(el) {
		o := dom.OpaqueOrigin()
		cfg.Origin = &o
	}
	return dom.NewWindow(doc, cfg), nil
}

func buildNode(c *CapturedNode, fixed *layout.Fixed) *html.Node {
	var n *html.Node
	switch c.Type {
	case dom.ElementNode:
		name := strings.ToLower(c.Name)
		n = &html.Node{Type: html.ElementNode, Data: name, Namespace: c.NS}
		if c.NS == "" {
			n.DataAtom = atom.Lookup([]byte(name))
		}
		for _, a := range c.Attrs {
			n.Attr = append(n.Attr, html.Attribute{Key: a[0], Val: a[1]})
		}
		for _, child := range c.Children {
			if cn := buildNode(child, fixed); cn != nil {
				n.AppendChild(cn)
			}
		}
	case dom.TextNode:
		n = &html.Node{Type: html.TextNode, Data: c.Data}
	case dom.CommentNode:
		return &html.Node{Type: html.CommentNode, Data: c.Data}
	default:
		return nil
	}
	if len(c.Rect) == 4 {
		fixed.Set(n, layout.NewRect(c.Rect[0], c.Rect[1], c.Rect[2], c.Rect[3]))
	}
	return n
}
