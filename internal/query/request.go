package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Type string

const (
	TypeCSS   Type = "css"
	TypeXPath Type = "xpath"
	TypeDump  Type = "dump"
	TypeJob   Type = "job"
)

// ParseType maps a harness query type onto a Type. Anything unrecognised is
// a css query.
func ParseType(s string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeXPath:
		return TypeXPath
	case TypeDump:
		return TypeDump
	case TypeJob:
		return TypeJob
	}
	return TypeCSS
}

type Request struct {
	Expression string
	Type       Type
	Methods    Chain
	// FrameSelector picks the frame to query. Empty means the current window.
	FrameSelector string
}

// Call is one method invocation of a chain. It decodes from either a bare
// method name or {"method_name": ..., "args": [...]}.
type Call struct {
	Name string `json:"method_name"`
	Args []any  `json:"args,omitempty"`
}

func (c *Call) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		if name == "" {
			return errors.New("empty method name")
		}
		*c = Call{Name: name}
		return nil
	}
	var raw struct {
		Name string          `json:"method_name"`
		Args json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("method call must be a name or an object: %w", err)
	}
	if raw.Name == "" {
		return errors.New("method call without method_name")
	}
	call := Call{Name: raw.Name}
	if len(raw.Args) > 0 && string(raw.Args) != "null" {
		if err := json.Unmarshal(raw.Args, &call.Args); err != nil {
			return fmt.Errorf("args of %s must be an array: %w", raw.Name, err)
		}
	}
	*c = call
	return nil
}

type Chain []Call

// ParseChain decodes a method chain parameter. The empty string and the
// unsubstituted placeholder %@ mean no chain.
func ParseChain(raw string) (Chain, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "%@" {
		return nil, nil
	}
	switch s[0] {
	case '[':
		var chain Chain
		if err := json.Unmarshal([]byte(s), &chain); err != nil {
			return nil, fmt.Errorf("method chain: %w", err)
		}
		return chain, nil
	case '{':
		var call Call
		if err := json.Unmarshal([]byte(s), &call); err != nil {
			return nil, fmt.Errorf("method chain: %w", err)
		}
		return Chain{call}, nil
	case '"':
		var inner string
		if err := json.Unmarshal([]byte(s), &inner); err != nil {
			return nil, fmt.Errorf("method chain: %w", err)
		}
		return ParseChain(inner)
	}
	return Chain{{Name: s}}, nil
}

// Names lists the method names of the chain in order.
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, call := range c {
		names[i] = call.Name
	}
	return names
}
