// Package query runs css, xpath, dump and job queries against a window and
// renders the results as JSON.
package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/patrickjm/domq/internal/dom"
	"github.com/patrickjm/domq/internal/jobs"
)

// Delegator forwards a request to a window the dispatcher cannot read and
// returns the job index its result will be stored under.
type Delegator interface {
	Delegate(target *dom.Window, req Request) (int, error)
}

type Dispatcher struct {
	win       *dom.Window
	jobs      *jobs.Store
	delegator Delegator
	registry  *Registry
}

type Option func(*Dispatcher)

func WithJobs(store *jobs.Store) Option {
	return func(d *Dispatcher) { d.jobs = store }
}

func WithDelegator(del Delegator) Option {
	return func(d *Dispatcher) { d.delegator = del }
}

func WithRegistry(r *Registry) Option {
	return func(d *Dispatcher) { d.registry = r }
}

var builtins = DefaultRegistry()

// NewDispatcher returns a dispatcher for win. win may be nil for a
// dispatcher that only answers job queries.
func NewDispatcher(win *dom.Window, opts ...Option) *Dispatcher {
	d := &Dispatcher{win: win, registry: builtins}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs req and returns its JSON result. Query failures are
// reported inside the JSON; the only error returned is ErrInvalidArgument.
// Dispatch must run on the window's event loop.
func (d *Dispatcher) Dispatch(req Request) (string, error) {
	v, err := d.run(req)
	if err != nil {
		if errors.Is(err, ErrInvalidArgument) {
			return "", err
		}
		return encode(Failure(req.Expression, err)), nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return string(raw), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return encode(Failure(req.Expression, err)), nil
	}
	return string(b), nil
}

func encode(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func (d *Dispatcher) run(req Request) (any, error) {
	if req.Type == TypeJob {
		return d.lookupJob(req.Expression)
	}
	target, err := d.resolveFrame(req.FrameSelector)
	if err != nil {
		return nil, err
	}
	doc, err := target.DocumentFor(d.win)
	if err != nil {
		if errors.Is(err, dom.ErrCrossOrigin) && req.FrameSelector != "" && d.delegator != nil {
			fwd := req
			fwd.FrameSelector = ""
			id, err := d.delegator.Delegate(target, fwd)
			if err != nil {
				return nil, err
			}
			return JobHandle{Job: id}, nil
		}
		return nil, err
	}

	enc := NewEncoder(target)
	switch req.Type {
	case TypeDump:
		root, err := enc.Coerce(doc, true)
		if err != nil {
			return nil, err
		}
		return enc.DumpTree(doc, root)
	case TypeXPath:
		nodes, err := dom.EvaluateXPath(doc, req.Expression)
		if err != nil {
			return nil, err
		}
		return d.finish(enc, target, nodes, req.Methods)
	default:
		nodes, err := dom.QuerySelectorAll(doc, req.Expression)
		if err != nil {
			return nil, err
		}
		return d.finish(enc, target, nodes, req.Methods)
	}
}

// finish applies the method chain to every match, then coerces.
func (d *Dispatcher) finish(enc *Encoder, target *dom.Window, nodes []*html.Node, chain Chain) (any, error) {
	if len(chain) == 0 {
		return enc.Coerce(nodes, false)
	}
	env := Env{Window: target}
	results := make([]any, len(nodes))
	for i, n := range nodes {
		v, err := d.registry.Apply(env, n, chain)
		if err != nil {
			return nil, err
		}
		results[i] = v
	}
	return enc.Coerce(results, false)
}

func (d *Dispatcher) resolveFrame(sel string) (*dom.Window, error) {
	if d.win == nil {
		return nil, errors.New("no window to query")
	}
	if strings.TrimSpace(sel) == "" {
		return d.win, nil
	}
	els, err := dom.QuerySelectorAll(d.win.Document(), sel)
	if err != nil {
		return nil, err
	}
	switch len(els) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrFrameNotFound, sel)
	case 1:
	default:
		return nil, fmt.Errorf("%w: %s (%d matches)", ErrAmbiguousFrame, sel, len(els))
	}
	child, ok := d.win.ContentWindow(els[0])
	if !ok {
		return nil, fmt.Errorf("%w: %s matched <%s>", ErrNotAFrame, sel, els[0].Data)
	}
	return child, nil
}

func (d *Dispatcher) lookupJob(expr string) (any, error) {
	if d.jobs == nil {
		return nil, ErrNoJobStore
	}
	id, err := strconv.Atoi(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("job index %q is not a number", expr)
	}
	job := d.jobs.Lookup(id)
	switch job.State {
	case jobs.Resolved:
		return job.Result, nil
	case jobs.Pending:
		return JobHandle{Job: id, Pending: true}, nil
	}
	return nil, fmt.Errorf("%w: %d", jobs.ErrUnknownJob, id)
}
