package query

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/patrickjm/domq/internal/dom"
)

var errArgument = errors.New("bad method argument")

func selection(n *html.Node) *goquery.Selection {
	return goquery.NewDocumentFromNode(n).Selection
}

func nodeProp(fn func(*html.Node) any) Method {
	return func(_ Env, recv any, _ []any) (any, error) {
		return fn(recv.(*html.Node)), nil
	}
}

// nodeOrNull keeps a nil node from turning into a typed nil interface.
func nodeOrNull(n *html.Node) any {
	if n == nil {
		return nil
	}
	return n
}

func nextNode(n *html.Node) *html.Node { return n.NextSibling }
func prevNode(n *html.Node) *html.Node { return n.PrevSibling }

func firstElement(n *html.Node, step func(*html.Node) *html.Node) *html.Node {
	for ; n != nil; n = step(n) {
		if n.Type == html.ElementNode {
			return n
		}
	}
	return nil
}

func querySelector(_ Env, recv any, args []any) (any, error) {
	sel, err := argString(args, 0, "selector")
	if err != nil {
		return nil, err
	}
	m, err := dom.CompileSelector(sel)
	if err != nil {
		return nil, err
	}
	found := selection(recv.(*html.Node)).FindMatcher(m)
	if found.Length() == 0 {
		return nil, nil
	}
	return found.Get(0), nil
}

func querySelectorAll(_ Env, recv any, args []any) (any, error) {
	sel, err := argString(args, 0, "selector")
	if err != nil {
		return nil, err
	}
	m, err := dom.CompileSelector(sel)
	if err != nil {
		return nil, err
	}
	nodes := selection(recv.(*html.Node)).FindMatcher(m).Nodes
	if nodes == nil {
		nodes = []*html.Node{}
	}
	return nodes, nil
}

func getElementByID(_ Env, recv any, args []any) (any, error) {
	id, err := argString(args, 0, "id")
	if err != nil {
		return nil, err
	}
	found := dom.Elements(recv.(*html.Node), func(n *html.Node) bool { return dom.ID(n) == id })
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func getElementsByTagName(_ Env, recv any, args []any) (any, error) {
	name, err := argString(args, 0, "name")
	if err != nil {
		return nil, err
	}
	found := dom.Elements(recv.(*html.Node), func(n *html.Node) bool {
		return name == "*" || strings.EqualFold(n.Data, name)
	})
	if found == nil {
		found = []*html.Node{}
	}
	return found, nil
}

func getElementsByClassName(_ Env, recv any, args []any) (any, error) {
	names, err := argString(args, 0, "names")
	if err != nil {
		return nil, err
	}
	want := strings.Fields(names)
	found := dom.Elements(recv.(*html.Node), func(n *html.Node) bool {
		if len(want) == 0 {
			return false
		}
		have := strings.Fields(dom.ClassName(n))
		for _, w := range want {
			if !contains(have, w) {
				return false
			}
		}
		return true
	})
	if found == nil {
		found = []*html.Node{}
	}
	return found, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func closest(_ Env, recv any, args []any) (any, error) {
	sel, err := argString(args, 0, "selector")
	if err != nil {
		return nil, err
	}
	m, err := dom.CompileSelector(sel)
	if err != nil {
		return nil, err
	}
	found := selection(recv.(*html.Node)).ClosestMatcher(m)
	if found.Length() == 0 {
		return nil, nil
	}
	return found.Get(0), nil
}

func matches(_ Env, recv any, args []any) (any, error) {
	sel, err := argString(args, 0, "selector")
	if err != nil {
		return nil, err
	}
	m, err := dom.CompileSelector(sel)
	if err != nil {
		return nil, err
	}
	return selection(recv.(*html.Node)).IsMatcher(m), nil
}

func getAttribute(_ Env, recv any, args []any) (any, error) {
	name, err := argString(args, 0, "name")
	if err != nil {
		return nil, err
	}
	if v, ok := dom.Attr(recv.(*html.Node), strings.ToLower(name)); ok {
		return v, nil
	}
	return nil, nil
}

func hasAttribute(_ Env, recv any, args []any) (any, error) {
	name, err := argString(args, 0, "name")
	if err != nil {
		return nil, err
	}
	_, ok := dom.Attr(recv.(*html.Node), strings.ToLower(name))
	return ok, nil
}

func getAttributeNames(_ Env, recv any, _ []any) (any, error) {
	n := recv.(*html.Node)
	names := make([]any, 0, len(n.Attr))
	for _, a := range n.Attr {
		names = append(names, a.Key)
	}
	return names, nil
}

func innerHTML(_ Env, recv any, _ []any) (any, error) {
	return selection(recv.(*html.Node)).Html()
}

func outerHTML(_ Env, recv any, _ []any) (any, error) {
	return goquery.OuterHtml(selection(recv.(*html.Node)))
}

func boundingClientRect(env Env, recv any, _ []any) (any, error) {
	if env.Window == nil {
		return nil, errors.New("no window to measure in")
	}
	r, _ := env.Window.Layout().Box(recv.(*html.Node))
	return r, nil
}

func listLength(_ Env, recv any, _ []any) (any, error) {
	switch x := recv.(type) {
	case []*html.Node:
		return len(x), nil
	case []any:
		return len(x), nil
	}
	return nil, fmt.Errorf("%w: length of %s", errArgument, KindOf(recv))
}

func listItem(_ Env, recv any, args []any) (any, error) {
	i, err := argInt(args, 0, "index", 0)
	if err != nil {
		return nil, err
	}
	switch x := recv.(type) {
	case []*html.Node:
		if i < 0 || i >= len(x) {
			return nil, nil
		}
		return x[i], nil
	case []any:
		if i < 0 || i >= len(x) {
			return nil, nil
		}
		return x[i], nil
	}
	return nil, fmt.Errorf("%w: item of %s", errArgument, KindOf(recv))
}

func arrayJoin(_ Env, recv any, args []any) (any, error) {
	sep := ","
	if len(args) > 0 {
		sep = jsString(args[0])
	}
	items := recv.([]any)
	parts := make([]string, len(items))
	for i, item := range items {
		switch item.(type) {
		case nil, UndefinedValue:
		default:
			parts[i] = jsString(item)
		}
	}
	return strings.Join(parts, sep), nil
}

func registerStringMethods(r *Registry) {
	str := func(fn func(s string, args []any) (any, error)) Method {
		return func(_ Env, recv any, args []any) (any, error) {
			return fn(recv.(string), args)
		}
	}
	r.Register("toUpperCase", str(func(s string, _ []any) (any, error) { return strings.ToUpper(s), nil }), KindString)
	r.Register("toLowerCase", str(func(s string, _ []any) (any, error) { return strings.ToLower(s), nil }), KindString)
	r.Register("trim", str(func(s string, _ []any) (any, error) { return strings.TrimSpace(s), nil }), KindString)
	r.Register("length", str(func(s string, _ []any) (any, error) { return utf8.RuneCountInString(s), nil }), KindString)
	r.Register("includes", str(stringTest(strings.Contains)), KindString)
	r.Register("startsWith", str(stringTest(strings.HasPrefix)), KindString)
	r.Register("endsWith", str(stringTest(strings.HasSuffix)), KindString)
	r.Register("substring", str(substring), KindString)
	r.Register("charAt", str(func(s string, args []any) (any, error) {
		i, err := argInt(args, 0, "index", 0)
		if err != nil {
			return nil, err
		}
		runes := []rune(s)
		if i < 0 || i >= len(runes) {
			return "", nil
		}
		return string(runes[i]), nil
	}), KindString)
	r.Register("split", str(func(s string, args []any) (any, error) {
		if len(args) == 0 {
			return []any{s}, nil
		}
		parts := strings.Split(s, jsString(args[0]))
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	}), KindString)
	r.Register("replace", str(func(s string, args []any) (any, error) {
		old, err := argString(args, 0, "pattern")
		if err != nil {
			return nil, err
		}
		repl, err := argString(args, 1, "replacement")
		if err != nil {
			return nil, err
		}
		return strings.Replace(s, old, repl, 1), nil
	}), KindString)
}

func stringTest(fn func(s, sub string) bool) func(string, []any) (any, error) {
	return func(s string, args []any) (any, error) {
		sub, err := argString(args, 0, "search")
		if err != nil {
			return nil, err
		}
		return fn(s, sub), nil
	}
}

// substring clamps both bounds to the string and swaps them when reversed.
func substring(s string, args []any) (any, error) {
	runes := []rune(s)
	start, err := argInt(args, 0, "start", 0)
	if err != nil {
		return nil, err
	}
	end, err := argInt(args, 1, "end", len(runes))
	if err != nil {
		return nil, err
	}
	clamp := func(i int) int { return max(0, min(i, len(runes))) }
	start, end = clamp(start), clamp(end)
	if start > end {
		start, end = end, start
	}
	return string(runes[start:end]), nil
}

func toFixed(_ Env, recv any, args []any) (any, error) {
	digits, err := argInt(args, 0, "digits", 0)
	if err != nil {
		return nil, err
	}
	if digits < 0 || digits > 100 {
		return nil, fmt.Errorf("%w: toFixed digits must be between 0 and 100", errArgument)
	}
	return strconv.FormatFloat(number(recv), 'f', digits, 64), nil
}

func number(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	}
	return math.NaN()
}

func argString(args []any, i int, name string) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%w: missing %s", errArgument, name)
	}
	return jsString(args[i]), nil
}

func argInt(args []any, i int, name string, def int) (int, error) {
	if i >= len(args) {
		return def, nil
	}
	switch x := args[i].(type) {
	case float64:
		return int(math.Trunc(x)), nil
	case int:
		return x, nil
	case string:
		v, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("%w: %s is not an integer: %q", errArgument, name, x)
		}
		return v, nil
	}
	return 0, fmt.Errorf("%w: %s is not an integer", errArgument, name)
}

// jsString renders a value the way String(value) would.
func jsString(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case UndefinedValue:
		return "undefined"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		if math.IsNaN(x) {
			return "NaN"
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case []any:
		s, _ := arrayJoin(Env{}, x, nil)
		return s.(string)
	}
	return "[object " + KindOf(v).String() + "]"
}
