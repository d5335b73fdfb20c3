package dom

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"golang.org/x/net/html"

	"github.com/patrickjm/domq/internal/layout"
)

// Fetcher retrieves the source of a frame document.
type Fetcher interface {
	Fetch(u *url.URL) ([]byte, error)
}

// FileFetcher serves file: URLs from disk and leaves every other document
// empty.
type FileFetcher struct{}

func (FileFetcher) Fetch(u *url.URL) ([]byte, error) {
	if u.Scheme != "file" {
		return nil, nil
	}
	return os.ReadFile(u.Path)
}

// MapFetcher serves documents from memory, keyed by absolute URL.
type MapFetcher map[string]string

func (m MapFetcher) Fetch(u *url.URL) ([]byte, error) {
	src, ok := m[u.String()]
	if !ok {
		return nil, fmt.Errorf("no document for %s", u)
	}
	return []byte(src), nil
}

type LoadOptions struct {
	URL     string
	Fetcher Fetcher
	// MaxDepth bounds the number of document levels loaded, counting the
	// top document as 1. Defaults to 4.
	MaxDepth int
	// Layout builds the geometry backend of a window given its viewport
	// width. Defaults to a Flow layout.
	Layout        func(viewportWidth float64) layout.Layout
	ViewportWidth float64
}

func (o LoadOptions) layoutFor(width float64) layout.Layout {
	if o.Layout != nil {
		return o.Layout(width)
	}
	return layout.NewFlow(layout.FlowOptions{ViewportWidth: width})
}

// Load parses src as the top-level document and builds windows for its
// frames.
func Load(src []byte, opts LoadOptions) (*Window, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 4
	}
	if opts.ViewportWidth <= 0 {
		opts.ViewportWidth = 1280
	}
	u, err := documentURL(opts.URL)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	win := NewWindow(doc, Config{URL: u, Layout: opts.layoutFor(opts.ViewportWidth)})
	if err := loadFrames(win, opts, 2); err != nil {
		win.Close()
		return nil, err
	}
	return win, nil
}

func loadFrames(parent *Window, opts LoadOptions, depth int) error {
	if depth > opts.MaxDepth {
		return nil
	}
	for _, el := range FrameElements(parent.doc) {
		child, err := loadFrame(parent, el, opts)
		if err != nil {
			return err
		}
		if err := loadFrames(child, opts, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func loadFrame(parent *Window, el *html.Node, opts LoadOptions) (*Window, error) {
	var src []byte
	u := &url.URL{Scheme: "about", Opaque: "blank"}
	if srcdoc, ok := Attr(el, "srcdoc"); ok {
		src = []byte(srcdoc)
		u = &url.URL{Scheme: "about", Opaque: "srcdoc"}
	} else if ref, ok := Attr(el, "src"); ok && strings.TrimSpace(ref) != "" {
		resolved, err := parent.url.Parse(strings.TrimSpace(ref))
		if err != nil {
			return nil, fmt.Errorf("frame src %q: %w", ref, err)
		}
		u = resolved
		if opts.Fetcher != nil {
			src, err = opts.Fetcher.Fetch(u)
			if err != nil {
				return nil, fmt.Errorf("fetch frame %s: %w", u, err)
			}
		}
	}
	doc, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse frame %s: %w", u, err)
	}
	cfg := Config{
		URL:          u,
		Parent:       parent,
		FrameElement: el,
		Layout:       opts.layoutFor(dimension(el, "width", 300)),
	}
	if Sandboxed(el) {
		o := OpaqueOrigin()
		cfg.Origin = &o
	}
	return NewWindow(doc, cfg), nil
}

func documentURL(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return &url.URL{Scheme: "about", Opaque: "blank"}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("document url: %w", err)
	}
	if u.Scheme == "" {
		return nil, errors.New("document url must be absolute: " + raw)
	}
	return u, nil
}

func dimension(el *html.Node, key string, def float64) float64 {
	v, ok := Attr(el, key)
	if !ok {
		return def
	}
	var f float64
	if _, err := fmt.Sscanf(strings.TrimSuffix(strings.TrimSpace(v), "px"), "%g", &f); err != nil || f <= 0 {
		return def
	}
	return f
}
