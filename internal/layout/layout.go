// Package layout provides the geometry backends used to measure DOM nodes.
//
// A backend either computes boxes from the live tree (Flow) or replays boxes
// captured from a real browser (Fixed). Only backends that can measure text
// nodes directly implement TextMeasurer; callers fall back to measuring an
// inline stand-in element otherwise.
package layout

import (
	"math"

	"golang.org/x/net/html"
)

// Rect is a client rectangle. X and Y are the floored centre of the box.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	X      int     `json:"x"`
	Y      int     `json:"y"`
}

func NewRect(left, top, width, height float64) Rect {
	return Rect{
		Left:   left,
		Top:    top,
		Width:  width,
		Height: height,
		X:      int(math.Floor(left + width/2)),
		Y:      int(math.Floor(top + height/2)),
	}
}

// Layout measures nodes. ok is false when the node has no bounding box
// capability at all (documents, text, comments), which is different from a
// measurable node that currently occupies no space.
type Layout interface {
	Box(n *html.Node) (r Rect, ok bool)
}

// TextMeasurer is implemented by backends that can measure text nodes
// without touching the tree.
type TextMeasurer interface {
	TextBox(n *html.Node) (r Rect, ok bool)
}
