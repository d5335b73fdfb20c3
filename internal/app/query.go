package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/patrickjm/domq/internal/config"
	"github.com/patrickjm/domq/internal/daemon"
	"github.com/patrickjm/domq/internal/dom"
	"github.com/patrickjm/domq/internal/jobs"
	"github.com/patrickjm/domq/internal/layout"
	"github.com/patrickjm/domq/internal/query"
	"github.com/patrickjm/domq/internal/relay"
)

type QueryFlags struct {
	Type    string
	Methods string
	Frame   string
	// File runs the query offline against a local HTML document.
	File    string
	BaseURL string
	Wait    bool
}

func (a App) runQuery(e env, flags GlobalFlags, qf QueryFlags, exp string) int {
	timeoutMs, err := actionTimeoutMs(flags)
	if err != nil {
		return a.fail(err, exitUsage)
	}
	if _, err := query.ParseChain(qf.Methods); err != nil {
		return a.fail(err, exitUsage)
	}
	timeout := time.Duration(timeoutMs) * time.Millisecond

	var out []byte
	if qf.File != "" {
		out, err = runLocalQuery(e.cfg, e.log, qf, exp, timeout)
		if err != nil {
			return a.fail(err, exitFailure)
		}
		return a.printResult(out, flags)
	}

	client, tabID, err := a.prepareClient(e, flags)
	if err != nil {
		return a.fail(err, exitFailure)
	}
	defer client.Close()
	out, err = client.Query(daemon.QueryParams{
		Tab:        tabID,
		Expression: exp,
		QueryType:  qf.Type,
		Methods:    qf.Methods,
		Frame:      qf.Frame,
		TimeoutMs:  timeoutMs,
	})
	if err != nil {
		return a.fail(err, exitFailure)
	}
	if id, ok := daemon.JobID(out); ok && qf.Wait {
		e.log.Debug("waiting for job", zap.Int("job", id))
		out, err = client.AwaitJob(tabID, id, timeout)
		if err != nil {
			return a.fail(err, exitFailure)
		}
	}
	_, _ = e.store.Touch(flags.Profile)
	return a.printResult(out, flags)
}

func (a App) runJob(e env, flags GlobalFlags, arg string, wait bool) int {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return a.fail(fmt.Errorf("job id %q must be a positive integer", arg), exitUsage)
	}
	timeoutMs, err := actionTimeoutMs(flags)
	if err != nil {
		return a.fail(err, exitUsage)
	}
	client, tabID, err := a.prepareClient(e, flags)
	if err != nil {
		return a.fail(err, exitFailure)
	}
	defer client.Close()
	var out json.RawMessage
	if wait {
		out, err = client.AwaitJob(tabID, id, time.Duration(timeoutMs)*time.Millisecond)
	} else {
		out, err = client.Job(tabID, id)
	}
	if err != nil {
		return a.fail(err, exitFailure)
	}
	return a.printResult(out, flags)
}

// printResult writes a query result. Failure payloads are printed like any
// other result but exit non-zero.
func (a App) printResult(out []byte, flags GlobalFlags) int {
	code := exitSuccess
	if isFailure(out) {
		code = exitFailure
	}
	if flags.Quiet {
		return code
	}
	switch {
	case flags.Plain:
		a.printPlain(out)
	case flags.JSON:
		fmt.Fprintln(a.Out, string(out))
	default:
		var buf bytes.Buffer
		if err := json.Indent(&buf, out, "", "  "); err != nil {
			fmt.Fprintln(a.Out, string(out))
			return code
		}
		fmt.Fprintln(a.Out, buf.String())
	}
	return code
}

// printPlain writes one line per array element, strings unquoted.
func (a App) printPlain(out []byte) {
	var items []json.RawMessage
	if err := json.Unmarshal(out, &items); err != nil {
		items = []json.RawMessage{out}
	}
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			fmt.Fprintln(a.Out, s)
			continue
		}
		fmt.Fprintln(a.Out, string(item))
	}
}

func isFailure(out []byte) bool {
	var res query.ErrorResult
	if err := json.Unmarshal(out, &res); err != nil {
		return false
	}
	return res.Error != ""
}

// runLocalQuery loads a document from disk and runs exp through the same
// relay and dispatcher the daemon uses, with the offline flow layout.
func runLocalQuery(cfg config.Config, log *zap.Logger, qf QueryFlags, exp string, timeout time.Duration) ([]byte, error) {
	src, err := os.ReadFile(qf.File)
	if err != nil {
		return nil, err
	}
	base := qf.BaseURL
	if base == "" {
		abs, err := filepath.Abs(qf.File)
		if err != nil {
			return nil, err
		}
		base = "file://" + filepath.ToSlash(abs)
	}
	win, err := dom.Load(src, dom.LoadOptions{
		URL:           base,
		Fetcher:       dom.FileFetcher{},
		MaxDepth:      cfg.Snapshot.FrameDepth,
		ViewportWidth: cfg.Layout.ViewportWidth,
		Layout: func(width float64) layout.Layout {
			return layout.NewFlow(layout.FlowOptions{
				ViewportWidth: width,
				CharWidth:     cfg.Layout.CharWidth,
				LineHeight:    cfg.Layout.LineHeight,
			})
		},
	})
	if err != nil {
		return nil, err
	}
	defer win.Close()

	chain, err := query.ParseChain(qf.Methods)
	if err != nil {
		return nil, err
	}
	agent := relay.Install(win, jobs.NewStore(), relay.WithLogger(log))
	ctx, cancel := queryContext(timeout)
	defer cancel()
	out, err := agent.Query(ctx, query.Request{
		Expression:    exp,
		Type:          query.ParseType(qf.Type),
		Methods:       chain,
		FrameSelector: qf.Frame,
	})
	if err != nil {
		return nil, err
	}
	id, ok := daemon.JobID(json.RawMessage(out))
	if !ok || !qf.Wait {
		return []byte(out), nil
	}
	return awaitLocalJob(ctx, agent, id)
}

func awaitLocalJob(ctx context.Context, agent *relay.Agent, id int) ([]byte, error) {
	poll := query.Request{Expression: strconv.Itoa(id), Type: query.TypeJob}
	for {
		out, err := agent.Query(ctx, poll)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("job %d still pending", id)
			}
			return nil, err
		}
		if !daemon.IsPending(json.RawMessage(out)) {
			return []byte(out), nil
		}
		select {
		case <-ctx.Done():
			return []byte(out), nil
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// queryContext bounds a local query. A timeout of zero or less means none.
func queryContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(context.Background(), timeout)
	}
	return context.WithCancel(context.Background())
}
