package daemon

import (
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"sync/atomic"
	"time"
)

type Client struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

var reqCounter uint64

func NewClient(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, enc: json.NewEncoder(conn), dec: json.NewDecoder(conn)}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Call(method string, params any, out any) error {
	id := strconv.FormatUint(atomic.AddUint64(&reqCounter, 1), 10)
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		raw = b
	}
	if err := c.enc.Encode(Request{ID: id, Method: method, Params: raw}); err != nil {
		return err
	}
	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return errors.New(resp.Error.Message)
	}
	if out != nil {
		return json.Unmarshal(resp.Result, out)
	}
	return nil
}

func (c *Client) Status() (StatusResult, error) {
	var result StatusResult
	return result, c.Call("Status", nil, &result)
}

func (c *Client) TabList() ([]TabInfo, error) {
	var result []TabInfo
	return result, c.Call("TabList", nil, &result)
}

func (c *Client) TabNew(url string) (TabInfo, error) {
	var result TabInfo
	return result, c.Call("TabNew", TabNewParams{URL: url}, &result)
}

func (c *Client) TabSwitch(tab int) error {
	return c.Call("TabSwitch", TabSwitchParams{Tab: tab}, nil)
}

func (c *Client) TabClose(tab int) error {
	return c.Call("TabClose", TabCloseParams{Tab: tab}, nil)
}

func (c *Client) Goto(tab int, url string, timeoutMs int) error {
	return c.Call("Goto", GotoParams{Tab: tab, URL: url, TimeoutMs: timeoutMs}, nil)
}

func (c *Client) URL(tab int) (string, error) {
	var result string
	return result, c.Call("URL", URLParams{Tab: tab}, &result)
}

// Query returns the query's JSON result text.
func (c *Client) Query(params QueryParams) (json.RawMessage, error) {
	var result json.RawMessage
	return result, c.Call("Query", params, &result)
}

func (c *Client) Job(tab int, id int) (json.RawMessage, error) {
	var result json.RawMessage
	return result, c.Call("Job", JobParams{Tab: tab, ID: id}, &result)
}

// AwaitJob polls a job until it is no longer pending or timeout elapses, and
// returns the last payload seen.
func (c *Client) AwaitJob(tab int, id int, timeout time.Duration) (json.RawMessage, error) {
	deadline := time.Now().Add(timeout)
	for {
		out, err := c.Job(tab, id)
		if err != nil {
			return nil, err
		}
		if !IsPending(out) || !time.Now().Before(deadline) {
			return out, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (c *Client) Stop() error {
	return c.Call("Stop", nil, nil)
}

// JobID extracts the id from a {"job":k} handle. Pending handles and
// anything else report false.
func JobID(raw json.RawMessage) (int, bool) {
	var h struct {
		Job     *int `json:"job"`
		Pending bool `json:"pending"`
	}
	if err := json.Unmarshal(raw, &h); err != nil || h.Job == nil || h.Pending {
		return 0, false
	}
	return *h.Job, true
}

func IsPending(raw json.RawMessage) bool {
	var h struct {
		Pending bool `json:"pending"`
	}
	if err := json.Unmarshal(raw, &h); err != nil {
		return false
	}
	return h.Pending
}
