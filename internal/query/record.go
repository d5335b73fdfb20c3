package query

import (
	"errors"
	"fmt"

	"github.com/patrickjm/domq/internal/layout"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrFrameNotFound   = errors.New("no element matches the frame selector")
	ErrAmbiguousFrame  = errors.New("frame selector matches more than one element")
	ErrNotAFrame       = errors.New("frame selector does not match a frame")
	ErrNoJobStore      = errors.New("no job store")
)

// NodeRecord is the serialized form of one node.
type NodeRecord struct {
	Rect        *layout.Rect `json:"rect,omitempty"`
	NodeType    string       `json:"nodeType"`
	NodeName    *string      `json:"nodeName,omitempty"`
	ID          *string      `json:"id,omitempty"`
	Class       *string      `json:"class,omitempty"`
	Href        string       `json:"href,omitempty"`
	Value       *string      `json:"value,omitempty"`
	TextContent *string      `json:"textContent,omitempty"`
	HTML        string       `json:"html,omitempty"`
	Children    []any        `json:"children,omitempty"`
}

// UndefinedValue is the result of a method with nothing to return. It is
// distinct from nil, which stands for null.
type UndefinedValue struct{}

var Undefined = UndefinedValue{}

func (UndefinedValue) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// MethodError replaces the result of a chain that named a method its
// receiver does not have.
type MethodError struct {
	Error          string `json:"error"`
	MethodName     string `json:"methodName"`
	ReceiverString string `json:"receiverString"`
	ReceiverClass  string `json:"receiverClass"`
}

func NewMethodError(name string, recv any) MethodError {
	return MethodError{
		Error:          "No such method: " + name,
		MethodName:     name,
		ReceiverString: jsString(recv),
		ReceiverClass:  KindOf(recv).String(),
	}
}

type ErrorResult struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// Failure is the payload reported for a query that could not be run.
func Failure(expression string, err error) ErrorResult {
	return ErrorResult{
		Error:   "Exception while running query: " + expression,
		Details: err.Error(),
	}
}

// JobHandle refers to the result of a delegated query.
type JobHandle struct {
	Job     int  `json:"job"`
	Pending bool `json:"pending,omitempty"`
}

func strptr(s string) *string {
	return &s
}

func nodeTypeLabel(code int) string {
	switch code {
	case 1:
		return "ELEMENT_NODE"
	case 2:
		return "ATTRIBUTE_NODE"
	case 3:
		return "TEXT_NODE"
	case 9:
		return "DOCUMENT_NODE"
	}
	return fmt.Sprintf("%d (Unexpected)", code)
}
