package daemon

import "encoding/json"

type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RespError      `json:"error,omitempty"`
}

type RespError struct {
	Message string `json:"message"`
}

type TabInfo struct {
	ID     int    `json:"id"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
	// Jobs counts delegated queries issued against the tab's document.
	Jobs int `json:"jobs"`
}

type StatusResult struct {
	Profile string    `json:"profile"`
	Tabs    []TabInfo `json:"tabs"`
}

type TabNewParams struct {
	URL string `json:"url,omitempty"`
}

type TabSwitchParams struct {
	Tab int `json:"tab"`
}

type TabCloseParams struct {
	Tab int `json:"tab"`
}

type GotoParams struct {
	Tab       int    `json:"tab"`
	URL       string `json:"url"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

type URLParams struct {
	Tab int `json:"tab"`
}

// QueryParams carry one query. Methods is the method chain in any form the
// chain parser accepts.
type QueryParams struct {
	Tab        int    `json:"tab"`
	Expression string `json:"exp"`
	QueryType  string `json:"query_type,omitempty"`
	Methods    string `json:"methods,omitempty"`
	Frame      string `json:"frame,omitempty"`
	TimeoutMs  int    `json:"timeout_ms,omitempty"`
}

type JobParams struct {
	Tab int `json:"tab"`
	ID  int `json:"id"`
}
