package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const methodsPage = `<ul id="list" class="menu main">
<li class="item"><a href="/one" title=" First ">one</a></li>
<li class="item active"><a href="/two">two</a></li>
</ul>
<p id="price">12.5</p>`

func TestBuiltinMethods(t *testing.T) {
	win := load(t, methodsPage)
	d := NewDispatcher(win)

	cases := []struct {
		name  string
		query string
		chain string
		want  string
	}{
		{name: "attribute", query: "a", chain: `[{"method_name":"getAttribute","args":["href"]}]`, want: `["/one","/two"]`},
		{name: "missing attribute", query: "a", chain: `[{"method_name":"getAttribute","args":["title"]},"trim"]`, want: `["First",{"error":"No such method: trim","methodName":"trim","receiverString":"null","receiverClass":"Null"}]`},
		{name: "text chain", query: "li", chain: `["textContent","toUpperCase"]`, want: `["ONE","TWO"]`},
		{name: "closest", query: "a", chain: `[{"method_name":"closest","args":["ul"]},{"method_name":"getAttribute","args":["id"]}]`, want: `["list","list"]`},
		{name: "matches", query: "li", chain: `[{"method_name":"matches","args":[".active"]}]`, want: `[false,true]`},
		{name: "scoped query", query: "#list", chain: `[{"method_name":"querySelectorAll","args":["a"]},"length"]`, want: `[2]`},
		{name: "query item", query: "#list", chain: `[{"method_name":"querySelectorAll","args":["a"]},{"method_name":"item","args":[1]},"textContent"]`, want: `["two"]`},
		{name: "class lookup", query: "#list", chain: `[{"method_name":"getElementsByClassName","args":["active item"]},"length"]`, want: `[1]`},
		{name: "tag lookup", query: "#list", chain: `[{"method_name":"getElementsByTagName","args":["A"]},"length"]`, want: `[2]`},
		{name: "siblings", query: "li.active", chain: `["previousElementSibling","innerText"]`, want: `["one"]`},
		{name: "parent", query: "a", chain: `["parentElement","tagName"]`, want: `["LI","LI"]`},
		{name: "outer html", query: "li.active", chain: `["outerHTML"]`, want: `["<li class=\"item active\"><a href=\"/two\">two</a></li>"]`},
		{name: "inner html", query: "li.active", chain: `["innerHTML"]`, want: `["<a href=\"/two\">two</a>"]`},
		{name: "substring", query: "#price", chain: `["textContent",{"method_name":"substring","args":[3,0]}]`, want: `["12."]`},
		{name: "split and join", query: "#list", chain: `[{"method_name":"getAttribute","args":["class"]},{"method_name":"split","args":[" "]},{"method_name":"join","args":["+"]}]`, want: `["menu+main"]`},
		{name: "string tests", query: "#price", chain: `["textContent",{"method_name":"startsWith","args":["12"]}]`, want: `[true]`},
		{name: "char at", query: "#price", chain: `["textContent",{"method_name":"charAt","args":[9]}]`, want: `[""]`},
		{name: "attribute names", query: "#list", chain: `["getAttributeNames"]`, want: `[["id","class"]]`},
		{name: "number", query: "#list", chain: `["children","length",{"method_name":"toFixed","args":[2]}]`, want: `["2.00"]`},
		{name: "no such method on list", query: "#list", chain: `["children","toUpperCase"]`, want: `[{"error":"No such method: toUpperCase","methodName":"toUpperCase","receiverString":"[object NodeList]","receiverClass":"NodeList"}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chain, err := ParseChain(tc.chain)
			if !assert.NoError(t, err) {
				return
			}
			out := dispatch(t, d, win, Request{Expression: tc.query, Methods: chain})
			assert.JSONEq(t, tc.want, out)
		})
	}
}

func TestBoundingClientRectMethod(t *testing.T) {
	win := load(t, `<div id="a">x</div>`)
	out := dispatch(t, NewDispatcher(win), win, Request{Expression: "#a", Methods: Chain{{Name: "getBoundingClientRect"}}})
	assert.JSONEq(t, `[{"left":0,"top":0,"width":1280,"height":18,"x":640,"y":9}]`, out)
}

func TestNodeResultsAreSerialized(t *testing.T) {
	win := load(t, methodsPage)
	out := dispatch(t, NewDispatcher(win), win, Request{Expression: "li.active", Methods: Chain{{Name: "firstElementChild"}}})
	got := decode[[]map[string]any](t, out)
	if assert.Len(t, got, 1) {
		assert.Equal(t, "A", got[0]["nodeName"])
		assert.Equal(t, "https://app.example/two", got[0]["href"])
	}
}

func TestRegistryNames(t *testing.T) {
	names := DefaultRegistry().Names(KindNodeList)
	assert.Equal(t, []string{"item", "length"}, names)
	assert.Equal(t, "Undefined", KindUndefined.String())
}
