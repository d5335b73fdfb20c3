package layout

import "golang.org/x/net/html"

// Fixed replays boxes captured elsewhere, typically from a live browser.
// Text boxes are recorded too, so Fixed measures text nodes directly.
type Fixed struct {
	boxes map[*html.Node]Rect
}

func NewFixed() *Fixed {
	return &Fixed{boxes: make(map[*html.Node]Rect)}
}

func (f *Fixed) Set(n *html.Node, r Rect) {
	f.boxes[n] = r
}

func (f *Fixed) Box(n *html.Node) (Rect, bool) {
	if n == nil || n.Type != html.ElementNode {
		return Rect{}, false
	}
	return f.boxes[n], true
}

func (f *Fixed) TextBox(n *html.Node) (Rect, bool) {
	if n == nil || n.Type != html.TextNode {
		return Rect{}, false
	}
	r, ok := f.boxes[n]
	return r, ok
}
