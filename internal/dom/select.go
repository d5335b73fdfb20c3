package dom

import (
	"fmt"
	"math"
	"sort"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

var frameSelector = cascadia.MustCompile("iframe, frame")

// CompileSelector compiles a CSS selector group.
func CompileSelector(sel string) (cascadia.Selector, error) {
	m, err := cascadia.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("'%s' is not a valid selector: %w", sel, err)
	}
	return m, nil
}

// QuerySelectorAll returns the descendants of root matching sel in document
// order. root itself is never included.
func QuerySelectorAll(root *html.Node, sel string) ([]*html.Node, error) {
	m, err := CompileSelector(sel)
	if err != nil {
		return nil, err
	}
	matches := m.MatchAll(root)
	out := make([]*html.Node, 0, len(matches))
	for _, n := range matches {
		if n != root {
			out = append(out, n)
		}
	}
	return out, nil
}

// EvaluateXPath evaluates expr against root and returns an ordered snapshot:
// nodes of the tree in document order, without duplicates. Attribute results
// are returned as attribute nodes placed right after their owner element.
// Expressions that do not produce a node-set are rejected.
func EvaluateXPath(root *html.Node, expr string) ([]*html.Node, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("'%s' is not a valid XPath expression: %w", expr, err)
	}
	iter, ok := compiled.Evaluate(htmlquery.CreateXPathNavigator(root)).(*xpath.NodeIterator)
	if !ok {
		return nil, fmt.Errorf("'%s' does not evaluate to a node-set", expr)
	}

	type hit struct {
		node *html.Node
		rank float64
	}
	order := documentOrder(root)
	rank := func(n *html.Node) float64 {
		if i, ok := order[n]; ok {
			return float64(i)
		}
		return math.Inf(1)
	}
	type attrKey struct {
		owner *html.Node
		name  string
	}
	seen := make(map[*html.Node]bool)
	seenAttr := make(map[attrKey]bool)
	var hits []hit
	for iter.MoveNext() {
		nav, ok := iter.Current().(*htmlquery.NodeNavigator)
		if !ok {
			continue
		}
		owner := nav.Current()
		if nav.NodeType() == xpath.AttributeNode {
			key := attrKey{owner, nav.LocalName()}
			if seenAttr[key] {
				continue
			}
			seenAttr[key] = true
			hits = append(hits, hit{NewAttr(nav.LocalName(), nav.Value()), rank(owner) + 0.5})
			continue
		}
		if seen[owner] {
			continue
		}
		seen[owner] = true
		hits = append(hits, hit{owner, rank(owner)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].rank < hits[j].rank })
	out := make([]*html.Node, len(hits))
	for i, h := range hits {
		out[i] = h.node
	}
	return out, nil
}

// FrameElements returns the iframe and frame elements of doc in document order.
func FrameElements(doc *html.Node) []*html.Node {
	return frameSelector.MatchAll(doc)
}

func documentOrder(root *html.Node) map[*html.Node]int {
	order := make(map[*html.Node]int)
	i := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		order[n] = i
		i++
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return order
}
