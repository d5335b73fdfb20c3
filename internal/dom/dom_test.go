package dom

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/net/html"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const framedPage = `<html><body>
<div id="top">top</div>
<iframe id="same" srcdoc="<p id='inner'>same origin</p>"></iframe>
<iframe id="boxed" sandbox="allow-scripts" srcdoc="<p id='inner'>sandboxed</p>"></iframe>
<iframe id="remote" src="https://other.example/child.html"></iframe>
</body></html>`

func loadFramed(t *testing.T) *Window {
	t.Helper()
	win, err := Load([]byte(framedPage), LoadOptions{
		URL:     "https://app.example/index.html",
		Fetcher: MapFetcher{"https://other.example/child.html": `<p id="inner">remote</p>`},
	})
	require.NoError(t, err)
	t.Cleanup(win.Close)
	return win
}

func frameByID(t *testing.T, win *Window, id string) *Window {
	t.Helper()
	els, err := QuerySelectorAll(win.Document(), "#"+id)
	require.NoError(t, err)
	require.Len(t, els, 1)
	child, ok := win.ContentWindow(els[0])
	require.True(t, ok)
	return child
}

func TestOrigins(t *testing.T) {
	a, _ := url.Parse("https://Example.com:443/a")
	b, _ := url.Parse("https://example.com/b")
	c, _ := url.Parse("http://example.com/")
	assert.True(t, OriginOf(a).SameOrigin(OriginOf(b)))
	assert.False(t, OriginOf(a).SameOrigin(OriginOf(c)))
	assert.Equal(t, "https://example.com", OriginOf(a).String())

	o1, o2 := OpaqueOrigin(), OpaqueOrigin()
	assert.True(t, o1.SameOrigin(o1))
	assert.False(t, o1.SameOrigin(o2))
	assert.Equal(t, "null", o1.String())
}

func TestLoadFrames(t *testing.T) {
	win := loadFramed(t)
	require.Len(t, win.Frames(), 3)

	same := frameByID(t, win, "same")
	doc, err := same.DocumentFor(win)
	require.NoError(t, err)
	inner, err := QuerySelectorAll(doc, "#inner")
	require.NoError(t, err)
	require.Len(t, inner, 1)
	assert.Equal(t, win.loop, same.loop, "same-origin frames share the event loop")

	boxed := frameByID(t, win, "boxed")
	assert.True(t, boxed.Origin().IsOpaque())
	_, err = boxed.DocumentFor(win)
	assert.ErrorIs(t, err, ErrCrossOrigin)
	assert.NotEqual(t, win.loop, boxed.loop)

	remote := frameByID(t, win, "remote")
	assert.Equal(t, "https://other.example", remote.Origin().String())
	_, err = remote.DocumentFor(win)
	assert.ErrorIs(t, err, ErrCrossOrigin)
	doc, err = remote.DocumentFor(remote)
	require.NoError(t, err)
	text, ok := TextContent(doc.LastChild)
	require.True(t, ok)
	assert.Equal(t, "remote", text)
}

func TestLoadMissingFrameDocument(t *testing.T) {
	_, err := Load([]byte(`<iframe src="/missing.html"></iframe>`), LoadOptions{
		URL:     "https://app.example/",
		Fetcher: MapFetcher{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "https://app.example/missing.html")
}

func TestPostMessageRunsOnTargetLoop(t *testing.T) {
	win := loadFramed(t)
	boxed := frameByID(t, win, "boxed")

	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan struct{})
	boxed.AddMessageListener(func(ev MessageEvent) {
		mu.Lock()
		got = append(got, string(ev.Data)+"@"+ev.Origin)
		n := len(got)
		mu.Unlock()
		if n == 2 {
			close(done)
		}
	})
	payload := []byte("one")
	require.NoError(t, boxed.PostMessage(payload, win))
	payload[0] = 'X'
	require.NoError(t, boxed.PostMessage([]byte("two"), nil))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("messages not delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"one@https://app.example", "two@null"}, got)
}

func TestDoAfterClose(t *testing.T) {
	win, err := Load([]byte(`<p>x</p>`), LoadOptions{})
	require.NoError(t, err)

	ran := false
	require.NoError(t, win.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)

	win.Close()
	assert.ErrorIs(t, win.Do(context.Background(), func() {}), ErrWindowClosed)
	assert.ErrorIs(t, win.PostMessage([]byte("x"), nil), ErrWindowClosed)
}

func TestEvaluateXPathDocumentOrder(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<p id="a">1</p><div id="b"><p id="c">2</p></div>`))
	require.NoError(t, err)

	nodes, err := EvaluateXPath(doc, "//div | //p | //p")
	require.NoError(t, err)
	var ids []string
	for _, n := range nodes {
		ids = append(ids, ID(n))
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	_, err = EvaluateXPath(doc, "//p[")
	assert.Error(t, err)
}

func TestEvaluateXPathAttributes(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<a id="a" href="/x">x</a><p id="p">y</p>`))
	require.NoError(t, err)

	nodes, err := EvaluateXPath(doc, "//p | //a/@href | //a/@href")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.True(t, IsAttr(nodes[0]))
	assert.Equal(t, AttributeNode, NodeType(nodes[0]))
	assert.Equal(t, "href", NodeName(nodes[0]))
	text, ok := TextContent(nodes[0])
	assert.True(t, ok)
	assert.Equal(t, "/x", text)
	assert.Empty(t, ID(nodes[0]))
	assert.Equal(t, "p", ID(nodes[1]))
}

func TestEvaluateXPathRejectsScalars(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<p>a</p><p>b</p>`))
	require.NoError(t, err)

	for _, expr := range []string{"//p/text() = 'a'", "count(//p)", "string(//p)", "1+1"} {
		_, err := EvaluateXPath(doc, expr)
		assert.ErrorContains(t, err, "node-set", expr)
	}
}

func TestQuerySelectorAllInvalid(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<p>x</p>`))
	require.NoError(t, err)
	_, err = QuerySelectorAll(doc, "p[")
	assert.Error(t, err)
}

func TestNodeHelpers(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`
<a id="l" class="x y" href="/next">go</a>
<input id="i"><input id="c" type="checkbox"><textarea id="t">note</textarea>
<select id="s"><option value="1">one</option><option selected>two</option></select>
<!-- c -->`))
	require.NoError(t, err)
	base, _ := url.Parse("https://app.example/dir/page")

	get := func(id string) *html.Node {
		els, err := QuerySelectorAll(doc, "#"+id)
		require.NoError(t, err)
		require.Len(t, els, 1)
		return els[0]
	}

	link := get("l")
	assert.Equal(t, "A", NodeName(link))
	assert.Equal(t, "x y", ClassName(link))
	assert.Equal(t, "https://app.example/next", Href(base, link))
	_, ok := Value(link)
	assert.False(t, ok)

	for id, want := range map[string]string{"i": "", "c": "on", "t": "note", "s": "two"} {
		v, ok := Value(get(id))
		assert.True(t, ok, id)
		assert.Equal(t, want, v, id)
	}

	_, ok = TextContent(doc)
	assert.False(t, ok)
	assert.Equal(t, DocumentNode, NodeType(doc))
	assert.Equal(t, "#document", NodeName(doc))
}
