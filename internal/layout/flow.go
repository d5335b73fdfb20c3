package layout

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type FlowOptions struct {
	ViewportWidth float64
	CharWidth     float64
	LineHeight    float64
}

// Flow is a deterministic block/inline layout. Blocks stack vertically at
// full container width; inline content is laid out on a single line per run
// with a fixed advance per character. There is no wrapping and no box model.
//
// The layout of a document is computed once and cached until Invalidate is
// called, so callers that change a measured tree must invalidate it.
type Flow struct {
	opts FlowOptions

	mu    sync.Mutex
	cache map[*html.Node]*flowState
}

func NewFlow(opts FlowOptions) *Flow {
	if opts.ViewportWidth <= 0 {
		opts.ViewportWidth = 1280
	}
	if opts.CharWidth <= 0 {
		opts.CharWidth = 8
	}
	if opts.LineHeight <= 0 {
		opts.LineHeight = 18
	}
	return &Flow{opts: opts, cache: make(map[*html.Node]*flowState)}
}

// Invalidate drops every cached layout.
func (f *Flow) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.cache)
}

func (f *Flow) Options() FlowOptions {
	return f.opts
}

var notRendered = cascadia.MustCompile("head, script, style, title, meta, link, base, template, noscript, [hidden], input[type=hidden]")

var blockTags = map[atom.Atom]bool{
	atom.Html: true, atom.Body: true, atom.Address: true, atom.Article: true,
	atom.Aside: true, atom.Blockquote: true, atom.Dd: true, atom.Details: true,
	atom.Dialog: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Fieldset: true, atom.Figcaption: true, atom.Figure: true, atom.Footer: true,
	atom.Form: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Header: true, atom.Hr: true, atom.Li: true,
	atom.Main: true, atom.Nav: true, atom.Ol: true, atom.P: true, atom.Pre: true,
	atom.Section: true, atom.Summary: true, atom.Table: true, atom.Tbody: true,
	atom.Thead: true, atom.Tfoot: true, atom.Tr: true, atom.Td: true, atom.Th: true,
	atom.Ul: true, atom.Caption: true, atom.Legend: true, atom.Menu: true,
}

// Box returns the element's box. Elements outside a document measure as a
// zero rectangle, as detached nodes do in a browser.
func (f *Flow) Box(n *html.Node) (Rect, bool) {
	if n == nil || n.Type != html.ElementNode {
		return Rect{}, false
	}
	root := n
	for root.Parent != nil {
		root = root.Parent
	}
	if root.Type != html.DocumentNode {
		return Rect{}, true
	}
	s := f.layoutOf(root)
	if r, ok := s.boxes[n]; ok {
		return r, true
	}
	return s.wrapped(n), true
}

func (f *Flow) layoutOf(doc *html.Node) *flowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.cache[doc]; ok {
		return s
	}
	s := &flowState{
		opts:  f.opts,
		boxes: make(map[*html.Node]Rect),
		texts: make(map[*html.Node]Rect),
	}
	s.block(doc, 0, 0, f.opts.ViewportWidth)
	f.cache[doc] = s
	return s
}

type flowState struct {
	opts  FlowOptions
	boxes map[*html.Node]Rect
	texts map[*html.Node]Rect
}

// wrapped measures an inline element that was inserted around laid out
// content after the layout was computed. It spans its content; elements
// that are not rendered, or whose content was never laid out, measure zero.
func (s *flowState) wrapped(n *html.Node) Rect {
	if !rendered(n) || isBlock(n) {
		return Rect{}
	}
	var (
		box           Rect
		width, height float64
		found         bool
	)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		var (
			r  Rect
			ok bool
		)
		switch c.Type {
		case html.TextNode:
			r, ok = s.texts[c]
		case html.ElementNode:
			if !rendered(c) {
				continue
			}
			r, ok = s.boxes[c]
		default:
			continue
		}
		if !ok {
			return Rect{}
		}
		if !found {
			box, found = r, true
		}
		width += r.Width
		height = math.Max(height, r.Height)
	}
	if !found {
		return Rect{}
	}
	return NewRect(box.Left, box.Top, width, math.Max(height, s.opts.LineHeight))
}

// block lays out the children of container at (x, y) within width and
// returns the height they consume.
func (s *flowState) block(container *html.Node, x, y, width float64) float64 {
	cursor := y
	lineX := x
	lineHeight := 0.0
	flush := func() {
		cursor += lineHeight
		lineX = x
		lineHeight = 0
	}
	for c := container.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && !rendered(c) {
			continue
		}
		if c.Type == html.ElementNode && isBlock(c) {
			flush()
			h := s.block(c, x, cursor, width)
			s.boxes[c] = NewRect(x, cursor, width, h)
			cursor += h
			continue
		}
		w, h := s.inline(c, lineX, cursor)
		if w > 0 && h < s.opts.LineHeight {
			h = s.opts.LineHeight
		}
		if h > lineHeight {
			lineHeight = h
		}
		lineX += w
	}
	flush()
	return cursor - y
}

func (s *flowState) inline(n *html.Node, x, y float64) (float64, float64) {
	switch n.Type {
	case html.TextNode:
		w, h := s.textWidth(n.Data), 0.0
		if w > 0 {
			h = s.opts.LineHeight
		}
		s.texts[n] = NewRect(x, y, w, h)
		return w, h
	case html.ElementNode:
		if !rendered(n) {
			return 0, 0
		}
		if w, h, ok := s.replaced(n); ok {
			s.boxes[n] = NewRect(x, y, w, h)
			return w, h
		}
		width, height := 0.0, 0.0
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w, h := s.inline(c, x+width, y)
			width += w
			if h > height {
				height = h
			}
		}
		if height < s.opts.LineHeight {
			height = s.opts.LineHeight
		}
		s.boxes[n] = NewRect(x, y, width, height)
		return width, height
	}
	return 0, 0
}

// replaced sizes elements whose content is not laid out inline.
func (s *flowState) replaced(n *html.Node) (float64, float64, bool) {
	switch n.DataAtom {
	case atom.Iframe, atom.Frame, atom.Canvas, atom.Video, atom.Embed, atom.Object:
		return dimension(n, "width", 300), dimension(n, "height", 150), true
	case atom.Img:
		return dimension(n, "width", 0), dimension(n, "height", 0), true
	case atom.Input:
		return 20 * s.opts.CharWidth, s.opts.LineHeight, true
	case atom.Select:
		return 10 * s.opts.CharWidth, s.opts.LineHeight, true
	case atom.Textarea:
		return 20 * s.opts.CharWidth, 2 * s.opts.LineHeight, true
	case atom.Br:
		return 0, s.opts.LineHeight, true
	}
	return 0, 0, false
}

func (s *flowState) textWidth(text string) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	return float64(utf8.RuneCountInString(strings.Join(fields, " "))) * s.opts.CharWidth
}

func rendered(n *html.Node) bool {
	if notRendered.Match(n) {
		return false
	}
	return display(n) != "none"
}

func isBlock(n *html.Node) bool {
	switch display(n) {
	case "":
		return blockTags[n.DataAtom]
	case "inline", "inline-block", "inline-flex", "inline-grid", "contents":
		return false
	default:
		return true
	}
}

// display reads the display property from an inline style attribute.
func display(n *html.Node) string {
	for _, a := range n.Attr {
		if a.Key != "style" {
			continue
		}
		for _, decl := range strings.Split(a.Val, ";") {
			name, value, ok := strings.Cut(decl, ":")
			if !ok || strings.TrimSpace(strings.ToLower(name)) != "display" {
				continue
			}
			value = strings.TrimSpace(strings.ToLower(value))
			value = strings.TrimSpace(strings.TrimSuffix(value, "!important"))
			return value
		}
	}
	return ""
}

func dimension(n *html.Node, key string, def float64) float64 {
	for _, a := range n.Attr {
		if a.Key != key {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(a.Val), "px"), 64)
		if err != nil || v < 0 {
			return def
		}
		return v
	}
	return def
}
