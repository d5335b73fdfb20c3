// Package browser drives the engine that loads pages and turns them into
// dom windows the query engine can read.
package browser

import "github.com/patrickjm/domq/internal/dom"

type StartOptions struct {
	Browser        string
	Channel        string
	Headless       bool
	StorageIn      string
	ViewportWidth  int
	ViewportHeight int
}

type Engine interface {
	Start(opts StartOptions) (Session, error)
}

type Session interface {
	NewPage() (Page, error)
	Close() error
	StorageState(path string) error
}

type Page interface {
	Goto(url string) error
	// Snapshot materialises the current document and its frames. The
	// returned window owns event loops and must be closed.
	Snapshot(opts SnapshotOptions) (*dom.Window, error)
	SetTimeout(ms int) error
	URL() (string, error)
	Title() (string, error)
	Close() error
}

type SnapshotOptions struct {
	// FrameDepth bounds how many levels of frames are captured. The top
	// document is level 1.
	FrameDepth int
}

func (o SnapshotOptions) depth() int {
	if o.FrameDepth <= 0 {
		return 4
	}
	return o.FrameDepth
}
