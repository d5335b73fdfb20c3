package browser

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/net/html"

	"github.com/patrickjm/domq/internal/dom"
	"github.com/patrickjm/domq/internal/layout"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeFrame struct {
	captured CapturedFrame
	children []frameSource
	err      error
}

func (f fakeFrame) Capture() (CapturedFrame, error) { return f.captured, f.err }

func (f fakeFrame) Children() ([]frameSource, error) { return f.children, nil }

func capture(t *testing.T, raw string) CapturedFrame {
	t.Helper()
	var c CapturedFrame
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	return c
}

const topCapture = `{"url":"https://app.example/","root":{"t":1,"n":"html","r":[0,0,800,600],"c":[
  {"t":1,"n":"body","r":[0,0,800,600],"c":[
    {"t":1,"n":"p","a":[["id","greeting"]],"r":[10,20,100,18],"c":[{"t":3,"d":"hello","r":[10,20,40,18]}]},
    {"t":8,"d":"note"},
    {"t":1,"n":"iframe","a":[["id","ads"],["sandbox",""]],"r":[0,100,300,150]},
    {"t":1,"n":"iframe","a":[["id","docs"]],"r":[0,300,300,150]},
    {"t":1,"n":"svg","s":"svg","r":[0,0,10,10]}
  ]}
]}}`

func TestSnapshotTree(t *testing.T) {
	ads := fakeFrame{captured: capture(t, `{"url":"https://ads.example/x","root":{"t":1,"n":"html","c":[{"t":1,"n":"body"}]}}`)}
	docs := fakeFrame{captured: capture(t, `{"url":"https://app.example/docs","root":{"t":1,"n":"html"}}`)}
	top := fakeFrame{captured: capture(t, topCapture), children: []frameSource{ads, docs}}

	win, err := snapshotTree(top, nil, nil, 2)
	require.NoError(t, err)
	defer win.Close()

	els, err := dom.QuerySelectorAll(win.Document(), "#greeting")
	require.NoError(t, err)
	require.Len(t, els, 1)
	p := els[0]

	box, ok := win.Layout().Box(p)
	require.True(t, ok)
	assert.Equal(t, layout.NewRect(10, 20, 100, 18), box)

	tm, ok := win.Layout().(layout.TextMeasurer)
	require.True(t, ok)
	textBox, ok := tm.TextBox(p.FirstChild)
	require.True(t, ok)
	assert.Equal(t, 30, textBox.X)

	svg, err := dom.QuerySelectorAll(win.Document(), "svg")
	require.NoError(t, err)
	require.Len(t, svg, 1)
	assert.Equal(t, "svg", svg[0].Namespace)
	assert.Equal(t, html.CommentNode, p.NextSibling.Type)

	frames := win.Frames()
	require.Len(t, frames, 2)
	assert.True(t, frames[0].Origin().IsOpaque(), "sandboxed frame")
	assert.Equal(t, "https://app.example", frames[1].Origin().String())
	assert.Equal(t, "ads", dom.ID(frames[0].FrameElement()))
}

func TestSnapshotDepth(t *testing.T) {
	child := fakeFrame{captured: capture(t, `{"url":"https://app.example/docs","root":{"t":1,"n":"html"}}`)}
	top := fakeFrame{captured: capture(t, topCapture), children: []frameSource{nil, child}}

	win, err := snapshotTree(top, nil, nil, 1)
	require.NoError(t, err)
	assert.Empty(t, win.Frames())
	win.Close()

	win, err = snapshotTree(top, nil, nil, 3)
	require.NoError(t, err)
	assert.Len(t, win.Frames(), 1)
	win.Close()
}

func TestSnapshotErrors(t *testing.T) {
	_, err := snapshotTree(fakeFrame{err: errors.New("target closed")}, nil, nil, 1)
	assert.ErrorContains(t, err, "target closed")

	_, err = snapshotTree(fakeFrame{captured: CapturedFrame{URL: "https://app.example/"}}, nil, nil, 1)
	assert.Error(t, err)
}

func TestFakePageSnapshot(t *testing.T) {
	engine := &FakeEngine{Sites: map[string]string{
		"https://app.example/":      `<title> Home </title><iframe src="/frame"></iframe>`,
		"https://app.example/frame": `<p>inside</p>`,
	}}
	session, err := engine.Start(StartOptions{ViewportWidth: 800})
	require.NoError(t, err)
	page, err := session.NewPage()
	require.NoError(t, err)

	require.NoError(t, page.Goto("https://app.example/"))
	title, err := page.Title()
	require.NoError(t, err)
	assert.Equal(t, "Home", title)
	assert.Error(t, page.Goto("https://nowhere.example/"))

	win, err := page.Snapshot(SnapshotOptions{})
	require.NoError(t, err)
	defer win.Close()
	require.Len(t, win.Frames(), 1)
	assert.Equal(t, 800, engine.Session.Options.ViewportWidth)
}

type fakeContent struct {
	playwright.Frame
	name string
}

type fakeElement struct {
	inDocument any
	err        error
	content    playwright.Frame
	disposed   bool
}

func (e *fakeElement) Evaluate(string, ...interface{}) (interface{}, error) {
	return e.inDocument, e.err
}

func (e *fakeElement) ContentFrame() (playwright.Frame, error) { return e.content, nil }

func (e *fakeElement) Dispose() error {
	e.disposed = true
	return nil
}

func TestLightFramesSkipShadowRoots(t *testing.T) {
	ads := &fakeContent{name: "ads"}
	shadowed := &fakeContent{name: "shadowed"}
	docs := &fakeContent{name: "docs"}
	elements := []*fakeElement{
		{inDocument: true, content: ads},
		{inDocument: false, content: shadowed},
		{inDocument: true},
		{err: errors.New("detached"), content: docs},
	}
	in := make([]frameElement, len(elements))
	for i, el := range elements {
		in[i] = el
	}

	children := lightFrames(in)
	require.Len(t, children, 3)
	assert.Equal(t, playwrightFrame{frame: ads}, children[0])
	assert.Nil(t, children[1])
	assert.Equal(t, playwrightFrame{frame: docs}, children[2])
	for _, el := range elements {
		assert.True(t, el.disposed)
	}
}
