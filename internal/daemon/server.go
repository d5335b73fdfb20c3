package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/patrickjm/domq/internal/browser"
	"github.com/patrickjm/domq/internal/dom"
	"github.com/patrickjm/domq/internal/jobs"
	"github.com/patrickjm/domq/internal/query"
	"github.com/patrickjm/domq/internal/relay"
)

var ErrTabNotFound = errors.New("tab not found")

const defaultQueryTimeout = 30 * time.Second

type ServerOptions struct {
	StoragePath string
	Snapshot    browser.SnapshotOptions
	// Keep is how many snapshots per tab stay alive to receive late frame
	// responses.
	Keep   int
	Logger *zap.Logger
}

// tab is a page plus the job store of its current document. Snapshots are
// retained so relay agents inside them can still resolve jobs.
type tab struct {
	page    browser.Page
	jobs    *jobs.Store
	windows []*dom.Window
}

func (t *tab) retain(win *dom.Window, keep int) {
	t.windows = append(t.windows, win)
	for len(t.windows) > keep {
		t.windows[0].Close()
		t.windows = t.windows[1:]
	}
}

// reset drops the snapshots and jobs of the previous document.
func (t *tab) reset() {
	for _, w := range t.windows {
		w.Close()
	}
	t.windows = nil
	t.jobs = jobs.NewStore()
}

type Server struct {
	profile   string
	engine    browser.Engine
	opts      ServerOptions
	log       *zap.Logger
	mu        sync.Mutex
	session   browser.Session
	tabs      map[int]*tab
	activeTab int
	nextTabID int
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewServer(profile string, engine browser.Engine, opts ServerOptions) *Server {
	if opts.Keep <= 0 {
		opts.Keep = 8
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Server{
		profile:   profile,
		engine:    engine,
		opts:      opts,
		log:       opts.Logger.Named("daemon").With(zap.String("profile", profile)),
		tabs:      make(map[int]*tab),
		nextTabID: 1,
		stop:      make(chan struct{}),
	}
}

func (s *Server) Init(opts browser.StartOptions) error {
	session, err := s.engine.Start(opts)
	if err != nil {
		return err
	}
	s.session = session
	page, err := session.NewPage()
	if err != nil {
		return err
	}
	s.tabs[1] = &tab{page: page, jobs: jobs.NewStore()}
	s.activeTab = 1
	s.nextTabID = 2
	s.log.Info("session started", zap.String("browser", opts.Browser), zap.Bool("headless", opts.Headless))
	return nil
}

func (s *Server) Serve(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return nil
			default:
			}
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		resp := s.handleRequest(req)
		_ = enc.Encode(resp)
		if req.Method == "Stop" {
			return
		}
	}
}

func (s *Server) handleRequest(req Request) Response {
	start := time.Now()
	result, err := s.dispatch(req)
	if err != nil {
		s.log.Debug("request failed", zap.String("method", req.Method), zap.Error(err))
		return Response{ID: req.ID, Error: &RespError{Message: err.Error()}}
	}
	s.log.Debug("request", zap.String("method", req.Method), zap.Duration("took", time.Since(start)))
	if result == nil {
		return Response{ID: req.ID}
	}
	b, err := json.Marshal(result)
	if err != nil {
		return Response{ID: req.ID, Error: &RespError{Message: err.Error()}}
	}
	return Response{ID: req.ID, Result: b}
}

func (s *Server) dispatch(req Request) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Method {
	case "Status":
		return s.statusLocked()
	case "TabList":
		return s.statusLockedTabs()
	case "TabNew":
		var params TabNewParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		return s.tabNewLocked(params.URL)
	case "TabSwitch":
		var params TabSwitchParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		return nil, s.tabSwitchLocked(params.Tab)
	case "TabClose":
		var params TabCloseParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		return nil, s.tabCloseLocked(params.Tab)
	case "Goto":
		var params GotoParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		return nil, s.withTabLockedTimeout(params.Tab, params.TimeoutMs, func(t *tab) error {
			t.reset()
			return t.page.Goto(params.URL)
		})
	case "URL":
		var params URLParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		var value string
		if err := s.withTabLocked(params.Tab, func(t *tab) error {
			var err error
			value, err = t.page.URL()
			return err
		}); err != nil {
			return nil, err
		}
		return value, nil
	case "Query":
		var params QueryParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		var out json.RawMessage
		if err := s.withTabLockedTimeout(params.Tab, params.TimeoutMs, func(t *tab) error {
			var err error
			out, err = s.queryLocked(t, params)
			return err
		}); err != nil {
			return nil, err
		}
		return out, nil
	case "Job":
		var params JobParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		var out json.RawMessage
		if err := s.withTabLocked(params.Tab, func(t *tab) error {
			res, err := query.NewDispatcher(nil, query.WithJobs(t.jobs)).Dispatch(query.Request{
				Expression: strconv.Itoa(params.ID),
				Type:       query.TypeJob,
			})
			out = json.RawMessage(res)
			return err
		}); err != nil {
			return nil, err
		}
		return out, nil
	case "Stop":
		_ = s.persistStorageLocked()
		_ = s.shutdownLocked()
		s.stopOnce.Do(func() { close(s.stop) })
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown method %q", req.Method)
	}
}

// queryLocked snapshots the tab, installs relay agents bound to the tab's
// job store and runs the query on the snapshot's event loop.
func (s *Server) queryLocked(t *tab, params QueryParams) (json.RawMessage, error) {
	chain, err := query.ParseChain(params.Methods)
	if err != nil {
		return nil, err
	}
	win, err := t.page.Snapshot(s.opts.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	agent := relay.Install(win, t.jobs, relay.WithLogger(s.log))
	t.retain(win, s.opts.Keep)

	timeout := defaultQueryTimeout
	if params.TimeoutMs > 0 {
		timeout = time.Duration(params.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	out, err := agent.Query(ctx, query.Request{
		Expression:    params.Expression,
		Type:          query.ParseType(params.QueryType),
		Methods:       chain,
		FrameSelector: params.Frame,
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("query", zap.String("exp", params.Expression), zap.String("type", params.QueryType), zap.Strings("methods", chain.Names()), zap.Int("bytes", len(out)))
	return json.RawMessage(out), nil
}

func (s *Server) statusLocked() (StatusResult, error) {
	tabs, err := s.statusLockedTabs()
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{Profile: s.profile, Tabs: tabs}, nil
}

func (s *Server) statusLockedTabs() ([]TabInfo, error) {
	infos := make([]TabInfo, 0, len(s.tabs))
	for id, t := range s.tabs {
		url, _ := t.page.URL()
		title, _ := t.page.Title()
		infos = append(infos, TabInfo{ID: id, URL: url, Title: title, Active: id == s.activeTab, Jobs: t.jobs.Len()})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID < infos[j].ID
	})
	return infos, nil
}

func (s *Server) tabNewLocked(url string) (TabInfo, error) {
	page, err := s.session.NewPage()
	if err != nil {
		return TabInfo{}, err
	}
	id := s.nextTabID
	s.nextTabID++
	s.tabs[id] = &tab{page: page, jobs: jobs.NewStore()}
	s.activeTab = id
	if url != "" {
		if err := page.Goto(url); err != nil {
			return TabInfo{}, err
		}
	}
	_ = s.persistStorageLocked()
	s.log.Info("tab opened", zap.Int("tab", id), zap.String("url", url))
	return TabInfo{ID: id, URL: url, Active: true}, nil
}

func (s *Server) tabSwitchLocked(id int) error {
	if _, ok := s.tabs[id]; !ok {
		return fmt.Errorf("%w: %d", ErrTabNotFound, id)
	}
	s.activeTab = id
	return nil
}

func (s *Server) tabCloseLocked(id int) error {
	t, ok := s.tabs[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrTabNotFound, id)
	}
	t.reset()
	_ = t.page.Close()
	delete(s.tabs, id)
	if s.activeTab == id {
		s.activeTab = 0
		for other := range s.tabs {
			s.activeTab = other
			break
		}
	}
	_ = s.persistStorageLocked()
	s.log.Info("tab closed", zap.Int("tab", id))
	return nil
}

func (s *Server) withTabLocked(id int, fn func(*tab) error) error {
	if id == 0 {
		id = s.activeTab
	}
	t, ok := s.tabs[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrTabNotFound, id)
	}
	if err := fn(t); err != nil {
		return err
	}
	return s.persistStorageLocked()
}

func (s *Server) withTabLockedTimeout(id int, timeoutMs int, fn func(*tab) error) error {
	return s.withTabLocked(id, func(t *tab) error {
		if timeoutMs > 0 {
			_ = t.page.SetTimeout(timeoutMs)
		}
		return fn(t)
	})
}

func (s *Server) persistStorageLocked() error {
	if s.opts.StoragePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.opts.StoragePath), 0o755); err != nil {
		return err
	}
	return s.session.StorageState(s.opts.StoragePath)
}

func (s *Server) shutdownLocked() error {
	for _, t := range s.tabs {
		t.reset()
	}
	if s.session != nil {
		return s.session.Close()
	}
	return nil
}

func ServeProfile(socketPath string, profile string, engine browser.Engine, opts browser.StartOptions, sopts ServerOptions) error {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return err
	}
	if sopts.StoragePath == "" {
		sopts.StoragePath = opts.StorageIn
	}
	server := NewServer(profile, engine, sopts)
	if err := server.Init(opts); err != nil {
		return err
	}
	if err := os.RemoveAll(socketPath); err != nil {
		_ = server.shutdownLocked()
		return err
	}
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		_ = server.shutdownLocked()
		return err
	}
	defer l.Close()
	go func() {
		<-server.stop
		_ = l.Close()
	}()
	server.log.Info("listening", zap.String("socket", socketPath))
	return server.Serve(l)
}

func WriteInfo(path string, info Info) error {
	b, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func NowUTC() time.Time {
	return time.Now().UTC()
}
