package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/patrickjm/domq/internal/dom"
)

// Kind classifies method receivers.
type Kind int

const (
	KindNull Kind = iota
	KindUndefined
	KindElement
	KindText
	KindComment
	KindDocument
	KindAttribute
	KindNodeList
	KindString
	KindNumber
	KindBoolean
	KindArray
	KindObject
)

var kindNames = map[Kind]string{
	KindNull:      "Null",
	KindUndefined: "Undefined",
	KindElement:   "Element",
	KindText:      "Text",
	KindComment:   "Comment",
	KindDocument:  "Document",
	KindAttribute: "Attr",
	KindNodeList:  "NodeList",
	KindString:    "String",
	KindNumber:    "Number",
	KindBoolean:   "Boolean",
	KindArray:     "Array",
	KindObject:    "Object",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

func KindOf(v any) Kind {
	switch x := v.(type) {
	case nil:
		return KindNull
	case UndefinedValue:
		return KindUndefined
	case *html.Node:
		if x == nil {
			return KindNull
		}
		switch x.Type {
		case html.ElementNode:
			return KindElement
		case html.TextNode:
			return KindText
		case html.DocumentNode:
			return KindDocument
		}
		if dom.IsAttr(x) {
			return KindAttribute
		}
		return KindComment
	case []*html.Node:
		return KindNodeList
	case string:
		return KindString
	case float64, int:
		return KindNumber
	case bool:
		return KindBoolean
	case []any:
		return KindArray
	}
	return KindObject
}

// Env is what a method can see besides its receiver.
type Env struct {
	Window *dom.Window
}

type Method func(env Env, recv any, args []any) (any, error)

// Registry is a closed table of methods per receiver kind.
type Registry struct {
	methods map[Kind]map[string]Method
}

func NewRegistry() *Registry {
	return &Registry{methods: make(map[Kind]map[string]Method)}
}

func (r *Registry) Register(name string, m Method, kinds ...Kind) {
	for _, k := range kinds {
		if r.methods[k] == nil {
			r.methods[k] = make(map[string]Method)
		}
		r.methods[k][name] = m
	}
}

func (r *Registry) Lookup(k Kind, name string) (Method, bool) {
	m, ok := r.methods[k][name]
	return m, ok
}

// Names lists the methods registered for k, sorted.
func (r *Registry) Names(k Kind) []string {
	names := make([]string, 0, len(r.methods[k]))
	for name := range r.methods[k] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply runs chain against v from left to right. A name the current
// receiver does not have ends the chain with a MethodError value; an error
// returned by a method aborts it.
func (r *Registry) Apply(env Env, v any, chain Chain) (any, error) {
	cur := v
	for _, call := range chain {
		m, ok := r.Lookup(KindOf(cur), call.Name)
		if !ok {
			return NewMethodError(call.Name, cur), nil
		}
		next, err := m(env, cur, call.Args)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", call.Name, err)
		}
		cur = next
	}
	return cur, nil
}

var (
	parentKinds = []Kind{KindElement, KindDocument}
	nodeKinds   = []Kind{KindElement, KindText, KindComment, KindDocument, KindAttribute}
	childKinds  = []Kind{KindElement, KindText, KindComment}
)

// DefaultRegistry returns a registry with the built-in DOM, string, number
// and array methods.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register("querySelector", querySelector, parentKinds...)
	r.Register("querySelectorAll", querySelectorAll, parentKinds...)
	r.Register("getElementById", getElementByID, KindDocument)
	r.Register("getElementsByTagName", getElementsByTagName, parentKinds...)
	r.Register("getElementsByClassName", getElementsByClassName, parentKinds...)
	r.Register("closest", closest, KindElement)
	r.Register("matches", matches, KindElement)
	r.Register("getAttribute", getAttribute, KindElement)
	r.Register("hasAttribute", hasAttribute, KindElement)
	r.Register("getAttributeNames", getAttributeNames, KindElement)
	r.Register("tagName", nodeProp(func(n *html.Node) any { return dom.NodeName(n) }), KindElement)
	r.Register("nodeName", nodeProp(func(n *html.Node) any { return dom.NodeName(n) }), nodeKinds...)
	r.Register("innerHTML", innerHTML, parentKinds...)
	r.Register("outerHTML", outerHTML, KindElement)
	r.Register("getBoundingClientRect", boundingClientRect, KindElement)
	r.Register("documentElement", nodeProp(func(n *html.Node) any {
		return nodeOrNull(firstElement(n.FirstChild, nextNode))
	}), KindDocument)

	r.Register("textContent", nodeProp(func(n *html.Node) any {
		if text, ok := dom.TextContent(n); ok {
			return text
		}
		return nil
	}), nodeKinds...)
	r.Register("name", nodeProp(func(n *html.Node) any { return n.Data }), KindAttribute)
	r.Register("value", nodeProp(func(n *html.Node) any {
		v, _ := dom.TextContent(n)
		return v
	}), KindAttribute)
	r.Register("innerText", nodeProp(func(n *html.Node) any {
		text, _ := dom.TextContent(n)
		return strings.Join(strings.Fields(text), " ")
	}), KindElement)

	r.Register("parentNode", nodeProp(func(n *html.Node) any { return nodeOrNull(n.Parent) }), childKinds...)
	r.Register("parentElement", nodeProp(func(n *html.Node) any {
		if n.Parent != nil && n.Parent.Type == html.ElementNode {
			return n.Parent
		}
		return nil
	}), childKinds...)
	r.Register("nextSibling", nodeProp(func(n *html.Node) any { return nodeOrNull(n.NextSibling) }), childKinds...)
	r.Register("previousSibling", nodeProp(func(n *html.Node) any { return nodeOrNull(n.PrevSibling) }), childKinds...)
	r.Register("nextElementSibling", nodeProp(func(n *html.Node) any {
		return nodeOrNull(firstElement(n.NextSibling, nextNode))
	}), childKinds...)
	r.Register("previousElementSibling", nodeProp(func(n *html.Node) any {
		return nodeOrNull(firstElement(n.PrevSibling, prevNode))
	}), childKinds...)
	r.Register("firstChild", nodeProp(func(n *html.Node) any { return nodeOrNull(n.FirstChild) }), parentKinds...)
	r.Register("lastChild", nodeProp(func(n *html.Node) any { return nodeOrNull(n.LastChild) }), parentKinds...)
	r.Register("firstElementChild", nodeProp(func(n *html.Node) any {
		return nodeOrNull(firstElement(n.FirstChild, nextNode))
	}), parentKinds...)
	r.Register("lastElementChild", nodeProp(func(n *html.Node) any {
		return nodeOrNull(firstElement(n.LastChild, prevNode))
	}), parentKinds...)
	r.Register("childNodes", nodeProp(func(n *html.Node) any {
		out := []*html.Node{}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			out = append(out, c)
		}
		return out
	}), parentKinds...)
	r.Register("children", nodeProp(func(n *html.Node) any {
		out := []*html.Node{}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				out = append(out, c)
			}
		}
		return out
	}), parentKinds...)

	r.Register("length", listLength, KindNodeList, KindArray)
	r.Register("item", listItem, KindNodeList, KindArray)
	r.Register("join", arrayJoin, KindArray)

	registerStringMethods(r)

	r.Register("toFixed", toFixed, KindNumber)
	r.Register("toString", func(_ Env, recv any, _ []any) (any, error) {
		return jsString(recv), nil
	}, KindNumber, KindBoolean)
	return r
}
