// Package relay delegates queries to frames the caller cannot read
// directly. Every window of a page gets an Agent; an agent forwards a query
// for a cross-origin frame as a message, hands back a job index at once, and
// stores the frame's answer under that index when its response arrives.
package relay

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/patrickjm/domq/internal/dom"
	"github.com/patrickjm/domq/internal/jobs"
	"github.com/patrickjm/domq/internal/query"
)

type RequestMessage struct {
	ID            int         `json:"__domq_request__"`
	Expression    string      `json:"exp"`
	QueryType     string      `json:"queryType"`
	Args          query.Chain `json:"args"`
	FrameSelector string      `json:"frameSelector"`
}

type ResponseMessage struct {
	ID     int    `json:"__domq_response__"`
	Result string `json:"result"`
}

type envelope struct {
	Request  *int `json:"__domq_request__"`
	Response *int `json:"__domq_response__"`
}

type options struct {
	log      *zap.Logger
	registry *query.Registry
}

type Option func(*options)

func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

func WithRegistry(r *query.Registry) Option {
	return func(o *options) { o.registry = r }
}

type Agent struct {
	win        *dom.Window
	jobs       *jobs.Store
	dispatcher *query.Dispatcher
	log        *zap.Logger

	mu      sync.Mutex
	pending map[int]*dom.Window
}

// Attach creates the agent of a single window and subscribes it to the
// window's messages. A nil store gets a fresh one.
func Attach(win *dom.Window, store *jobs.Store, opts ...Option) *Agent {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if store == nil {
		store = jobs.NewStore()
	}
	a := &Agent{
		win:     win,
		jobs:    store,
		log:     o.log.Named("relay").With(zap.String("origin", win.Origin().String())),
		pending: make(map[int]*dom.Window),
	}
	dopts := []query.Option{query.WithJobs(store), query.WithDelegator(a)}
	if o.registry != nil {
		dopts = append(dopts, query.WithRegistry(o.registry))
	}
	a.dispatcher = query.NewDispatcher(win, dopts...)
	win.AddMessageListener(a.handleMessage)
	return a
}

// Install attaches agents to root and every frame below it and returns the
// root agent, which uses store. Frame agents keep their own stores.
func Install(root *dom.Window, store *jobs.Store, opts ...Option) *Agent {
	a := Attach(root, store, opts...)
	var walk func(*dom.Window)
	walk = func(w *dom.Window) {
		for _, f := range w.Frames() {
			Attach(f, nil, opts...)
			walk(f)
		}
	}
	walk(root)
	return a
}

func (a *Agent) Window() *dom.Window {
	return a.win
}

func (a *Agent) Jobs() *jobs.Store {
	return a.jobs
}

// Dispatch runs req on the caller's goroutine, which must be the window's
// event loop.
func (a *Agent) Dispatch(req query.Request) (string, error) {
	return a.dispatcher.Dispatch(req)
}

// Query runs req on the window's event loop and waits for the result.
func (a *Agent) Query(ctx context.Context, req query.Request) (string, error) {
	type result struct {
		out string
		err error
	}
	ch := make(chan result, 1)
	if err := a.win.Do(ctx, func() {
		out, err := a.dispatcher.Dispatch(req)
		ch <- result{out, err}
	}); err != nil {
		return "", err
	}
	r := <-ch
	return r.out, r.err
}

// Delegate posts req to target and returns the job index reserved for the
// answer. It does not wait for target to respond.
func (a *Agent) Delegate(target *dom.Window, req query.Request) (int, error) {
	id := a.jobs.Allocate()
	b, err := json.Marshal(RequestMessage{
		ID:         id,
		Expression: req.Expression,
		QueryType:  string(req.Type),
		Args:       req.Methods,
	})
	if err != nil {
		return 0, err
	}
	a.mu.Lock()
	a.pending[id] = target
	a.mu.Unlock()
	if err := target.PostMessage(b, a.win); err != nil {
		a.mu.Lock()
		delete(a.pending, id)
		a.mu.Unlock()
		a.abandon(id, req, err)
		return 0, err
	}
	a.log.Debug("delegated query", zap.Int("job", id), zap.String("exp", req.Expression), zap.String("target", target.Origin().String()))
	return id, nil
}

func (a *Agent) handleMessage(ev dom.MessageEvent) {
	var env envelope
	if err := json.Unmarshal(ev.Data, &env); err != nil {
		return
	}
	switch {
	case env.Request != nil:
		a.serve(ev)
	case env.Response != nil:
		a.resolve(ev)
	}
}

func (a *Agent) serve(ev dom.MessageEvent) {
	var msg RequestMessage
	if err := json.Unmarshal(ev.Data, &msg); err != nil {
		a.log.Warn("malformed request", zap.Error(err))
		return
	}
	// Delegation is one level deep: a relayed request always runs here.
	out, err := a.dispatcher.Dispatch(query.Request{
		Expression: msg.Expression,
		Type:       query.ParseType(msg.QueryType),
		Methods:    msg.Args,
	})
	if err != nil {
		b, _ := json.Marshal(query.Failure(msg.Expression, err))
		out = string(b)
	}
	if ev.Source == nil {
		a.log.Warn("request without a source window", zap.Int("job", msg.ID))
		return
	}
	b, err := json.Marshal(ResponseMessage{ID: msg.ID, Result: out})
	if err != nil {
		a.log.Error("encode response", zap.Error(err))
		return
	}
	if err := ev.Source.PostMessage(b, a.win); err != nil {
		a.log.Debug("response dropped", zap.Int("job", msg.ID), zap.Error(err))
	}
}

func (a *Agent) resolve(ev dom.MessageEvent) {
	var msg ResponseMessage
	if err := json.Unmarshal(ev.Data, &msg); err != nil {
		a.log.Warn("malformed response", zap.Error(err))
		return
	}
	a.mu.Lock()
	target, ok := a.pending[msg.ID]
	if ok && target == ev.Source {
		delete(a.pending, msg.ID)
	}
	a.mu.Unlock()
	if !ok || target != ev.Source {
		a.log.Debug("ignoring response", zap.Int("job", msg.ID), zap.String("from", ev.Origin))
		return
	}
	if !json.Valid([]byte(msg.Result)) {
		a.log.Warn("response is not JSON", zap.Int("job", msg.ID))
		return
	}
	if err := a.jobs.Resolve(msg.ID, json.RawMessage(msg.Result)); err != nil {
		a.log.Warn("resolve job", zap.Int("job", msg.ID), zap.Error(err))
	}
}

// abandon settles a job whose request never reached its frame, so the
// handle does not stay pending forever.
func (a *Agent) abandon(id int, req query.Request, cause error) {
	a.log.Warn("delegation failed", zap.Int("job", id), zap.String("exp", req.Expression), zap.Error(cause))
	b, err := json.Marshal(query.Failure(req.Expression, cause))
	if err != nil {
		return
	}
	if err := a.jobs.Resolve(id, b); err != nil {
		a.log.Debug("abandon job", zap.Int("job", id), zap.Error(err))
	}
}
