package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/playwright-community/playwright-go"

	"github.com/patrickjm/domq/internal/dom"
)

type PlaywrightEngine struct{}

func (p PlaywrightEngine) Start(opts StartOptions) (Session, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, err
	}
	bt, err := browserType(pw, opts.Browser)
	if err != nil {
		pw.Stop()
		return nil, err
	}
	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.Channel != "" {
		launchOpts.Channel = playwright.String(opts.Channel)
	}
	browser, err := bt.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, err
	}
	ctxOpts := playwright.BrowserNewContextOptions{}
	if opts.StorageIn != "" {
		if _, err := os.Stat(opts.StorageIn); err == nil {
			ctxOpts.StorageStatePath = playwright.String(opts.StorageIn)
		}
	}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		ctxOpts.Viewport = &playwright.Size{Width: opts.ViewportWidth, Height: opts.ViewportHeight}
	}
	ctx, err := browser.NewContext(ctxOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, err
	}
	return &playwrightSession{pw: pw, browser: browser, ctx: ctx}, nil
}

type playwrightSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	ctx     playwright.BrowserContext
}

func (s *playwrightSession) NewPage() (Page, error) {
	page, err := s.ctx.NewPage()
	if err != nil {
		return nil, err
	}
	return &playwrightPage{page: page}, nil
}

func (s *playwrightSession) StorageState(path string) error {
	_, err := s.ctx.StorageState(path)
	return err
}

func (s *playwrightSession) Close() error {
	if s.ctx != nil {
		_ = s.ctx.Close()
	}
	if s.browser != nil {
		_ = s.browser.Close()
	}
	if s.pw != nil {
		s.pw.Stop()
	}
	return nil
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Goto(url string) error {
	_, err := p.page.Goto(url)
	return err
}

func (p *playwrightPage) Snapshot(opts SnapshotOptions) (*dom.Window, error) {
	return snapshotTree(playwrightFrame{frame: p.page.MainFrame()}, nil, nil, opts.depth())
}

func (p *playwrightPage) SetTimeout(ms int) error {
	if ms <= 0 {
		return nil
	}
	p.page.SetDefaultTimeout(float64(ms))
	return nil
}

func (p *playwrightPage) URL() (string, error) {
	return p.page.URL(), nil
}

func (p *playwrightPage) Title() (string, error) {
	return p.page.Title()
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}

// captureScript serialises the frame's document element with element rects
// from getBoundingClientRect and text rects from a Range over the text.
const captureScript = `() => {
  const rectOf = (r) => [r.left, r.top, r.width, r.height];
  const walk = (node) => {
    switch (node.nodeType) {
    case Node.ELEMENT_NODE: {
      const out = { t: 1, n: node.localName, r: rectOf(node.getBoundingClientRect()) };
      if (node.namespaceURI === "http://www.w3.org/2000/svg") out.s = "svg";
      else if (node.namespaceURI === "http://www.w3.org/1998/Math/MathML") out.s = "math";
      if (node.attributes.length) out.a = Array.from(node.attributes, (a) => [a.name, a.value]);
      const children = [];
      for (const child of node.childNodes) {
        const c = walk(child);
        if (c) children.push(c);
      }
      if (children.length) out.c = children;
      return out;
    }
    case Node.TEXT_NODE: {
      const range = document.createRange();
      range.selectNodeContents(node);
      return { t: 3, d: node.data, r: rectOf(range.getBoundingClientRect()) };
    }
    case Node.COMMENT_NODE:
      return { t: 8, d: node.data };
    }
    return null;
  };
  return { url: location.href, root: document.documentElement ? walk(document.documentElement) : null };
}`

type playwrightFrame struct {
	frame playwright.Frame
}

func (f playwrightFrame) Capture() (CapturedFrame, error) {
	var captured CapturedFrame
	v, err := f.frame.Evaluate(captureScript)
	if err != nil {
		return captured, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return captured, err
	}
	if err := json.Unmarshal(b, &captured); err != nil {
		return captured, fmt.Errorf("decode capture: %w", err)
	}
	return captured, nil
}

func (f playwrightFrame) Children() ([]frameSource, error) {
	handles, err := f.frame.QuerySelectorAll("iframe, frame")
	if err != nil {
		return nil, err
	}
	elements := make([]frameElement, len(handles))
	for i, h := range handles {
		elements[i] = h
	}
	return lightFrames(elements), nil
}

// inDocumentScript reports whether a frame element sits in its document's
// own tree rather than inside a shadow root, which the capture never walks.
const inDocumentScript = `(el) => el.getRootNode() === el.ownerDocument`

// frameElement is the part of an element handle lightFrames uses.
type frameElement interface {
	Evaluate(expression string, arg ...interface{}) (interface{}, error)
	ContentFrame() (playwright.Frame, error)
	Dispose() error
}

// lightFrames keeps the elements outside shadow roots, in order, and
// disposes of every handle. An element whose placement cannot be checked is
// kept so the result stays aligned with the captured tree.
func lightFrames(elements []frameElement) []frameSource {
	var children []frameSource
	for _, el := range elements {
		inDocument := true
		if v, err := el.Evaluate(inDocumentScript); err == nil {
			inDocument, _ = v.(bool)
		}
		if inDocument {
			var child frameSource
			if content, err := el.ContentFrame(); err == nil && content != nil {
				child = playwrightFrame{frame: content}
			}
			children = append(children, child)
		}
		_ = el.Dispose()
	}
	return children
}

func browserType(pw *playwright.Playwright, name string) (playwright.BrowserType, error) {
	switch name {
	case "chromium", "":
		return pw.Chromium, nil
	case "firefox":
		return pw.Firefox, nil
	case "webkit":
		return pw.WebKit, nil
	default:
		return nil, errors.New("unknown browser: " + name)
	}
}
