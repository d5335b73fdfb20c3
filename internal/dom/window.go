// Package dom models browsing contexts over golang.org/x/net/html documents.
//
// A Window owns a document, a geometry backend and an event loop. Child
// windows are created for frame elements; a child that is same-origin with
// its parent shares the parent's loop, any other child runs its own. All
// reads and writes of a document happen on its window's loop, which gives
// the same one-task-at-a-time guarantee a browser gives injected scripts.
package dom

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/net/html"

	"github.com/patrickjm/domq/internal/layout"
)

var (
	ErrCrossOrigin  = errors.New("cross-origin frame access")
	ErrWindowClosed = errors.New("window closed")
)

// MessageEvent is delivered to message listeners. Data is a private copy of
// what the sender posted.
type MessageEvent struct {
	Data   []byte
	Origin string
	Source *Window
}

type MessageListener func(MessageEvent)

type Config struct {
	URL *url.URL
	// Origin overrides the origin derived from URL, e.g. for sandboxed frames.
	Origin       *Origin
	Layout       layout.Layout
	Parent       *Window
	FrameElement *html.Node
}

type Window struct {
	url      *url.URL
	origin   Origin
	doc      *html.Node
	layout   layout.Layout
	parent   *Window
	element  *html.Node
	loop     *eventLoop
	ownsLoop bool

	mu        sync.Mutex
	frames    []*Window
	listeners []MessageListener
	closeOnce sync.Once
}

func NewWindow(doc *html.Node, cfg Config) *Window {
	w := &Window{
		url:     cfg.URL,
		doc:     doc,
		layout:  cfg.Layout,
		parent:  cfg.Parent,
		element: cfg.FrameElement,
	}
	if w.url == nil {
		w.url = &url.URL{Scheme: "about", Opaque: "blank"}
	}
	switch {
	case cfg.Origin != nil:
		w.origin = *cfg.Origin
	case cfg.Parent != nil && w.url.Scheme == "about":
		w.origin = cfg.Parent.origin
	default:
		w.origin = OriginOf(w.url)
	}
	if w.layout == nil {
		w.layout = layout.NewFlow(layout.FlowOptions{})
	}
	if cfg.Parent != nil && cfg.Parent.origin.SameOrigin(w.origin) {
		w.loop = cfg.Parent.loop
	} else {
		w.loop = newEventLoop()
		w.ownsLoop = true
	}
	if cfg.Parent != nil {
		cfg.Parent.mu.Lock()
		cfg.Parent.frames = append(cfg.Parent.frames, w)
		cfg.Parent.mu.Unlock()
	}
	return w
}

func (w *Window) URL() *url.URL {
	u := *w.url
	return &u
}

func (w *Window) Origin() Origin {
	return w.origin
}

func (w *Window) Layout() layout.Layout {
	return w.layout
}

func (w *Window) Parent() *Window {
	return w.parent
}

// FrameElement is the element in the parent document hosting this window.
func (w *Window) FrameElement() *html.Node {
	return w.element
}

// Document returns the window's own document. Callers must be running on
// the window's loop.
func (w *Window) Document() *html.Node {
	return w.doc
}

// DocumentFor returns the document if accessor may script it.
func (w *Window) DocumentFor(accessor *Window) (*html.Node, error) {
	if accessor == nil || accessor == w || accessor.origin.SameOrigin(w.origin) {
		return w.doc, nil
	}
	return nil, fmt.Errorf("%w: blocked a frame with origin %q from accessing a frame with origin %q",
		ErrCrossOrigin, accessor.origin.String(), w.origin.String())
}

func (w *Window) Frames() []*Window {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*Window, len(w.frames))
	copy(out, w.frames)
	return out
}

// ContentWindow returns the child window hosted by el.
func (w *Window) ContentWindow(el *html.Node) (*Window, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, f := range w.frames {
		if f.element == el {
			return f, true
		}
	}
	return nil, false
}

func (w *Window) AddMessageListener(fn MessageListener) {
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

// PostMessage queues a message event on the window's loop and returns
// immediately. source is the sending window and may be nil.
func (w *Window) PostMessage(data []byte, source *Window) error {
	ev := MessageEvent{Data: append([]byte(nil), data...), Source: source, Origin: "null"}
	if source != nil {
		ev.Origin = source.origin.String()
	}
	if !w.loop.post(func() { w.dispatchMessage(ev) }) {
		return ErrWindowClosed
	}
	return nil
}

func (w *Window) dispatchMessage(ev MessageEvent) {
	w.mu.Lock()
	listeners := make([]MessageListener, len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// Do runs fn on the window's loop and waits for it to finish. If ctx ends
// first Do returns ctx.Err() and fn may still run later.
func (w *Window) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !w.loop.post(func() {
		defer close(done)
		fn()
	}) {
		return ErrWindowClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loops of the window and all of its frames. Pending tasks
// are dropped. Close must not be called from a task on one of those loops.
func (w *Window) Close() {
	w.closeOnce.Do(func() {
		for _, f := range w.Frames() {
			f.Close()
		}
		if w.ownsLoop {
			w.loop.close()
		}
	})
}
