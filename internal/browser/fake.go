package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/patrickjm/domq/internal/dom"
)

// FakeEngine serves pages from Sites, keyed by absolute URL, and lays them
// out with the offline flow layout.
type FakeEngine struct {
	Session *FakeSession
	Sites   map[string]string
}

func (f *FakeEngine) Start(opts StartOptions) (Session, error) {
	if f.Session == nil {
		f.Session = &FakeSession{}
	}
	if f.Session.Sites == nil {
		f.Session.Sites = f.Sites
	}
	f.Session.Options = opts
	return f.Session, nil
}

type FakeSession struct {
	Sites       map[string]string
	Options     StartOptions
	Pages       []*FakePage
	Closed      bool
	StoragePath string
}

func (s *FakeSession) NewPage() (Page, error) {
	page := &FakePage{Sites: s.Sites, ViewportWidth: s.Options.ViewportWidth}
	s.Pages = append(s.Pages, page)
	return page, nil
}

func (s *FakeSession) Close() error {
	s.Closed = true
	return nil
}

func (s *FakeSession) StorageState(path string) error {
	s.StoragePath = path
	return nil
}

type FakePage struct {
	Sites         map[string]string
	ViewportWidth int
	URLValue      string
	TitleValue    string
	TimeoutMs     int
	Snapshots     int
	Closed        bool
}

func (p *FakePage) Goto(url string) error {
	src, ok := p.Sites[url]
	if !ok && url != "about:blank" {
		return fmt.Errorf("net::ERR_NAME_NOT_RESOLVED at %s", url)
	}
	p.URLValue = url
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return err
	}
	p.TitleValue = strings.TrimSpace(doc.Find("title").First().Text())
	return nil
}

func (p *FakePage) Snapshot(opts SnapshotOptions) (*dom.Window, error) {
	src := p.Sites[p.URLValue]
	p.Snapshots++
	return dom.Load([]byte(src), dom.LoadOptions{
		URL:           p.URLValue,
		Fetcher:       dom.MapFetcher(p.Sites),
		MaxDepth:      opts.depth(),
		ViewportWidth: float64(p.ViewportWidth),
	})
}

func (p *FakePage) SetTimeout(ms int) error {
	p.TimeoutMs = ms
	return nil
}

func (p *FakePage) URL() (string, error) {
	return p.URLValue, nil
}

func (p *FakePage) Title() (string, error) {
	return p.TitleValue, nil
}

func (p *FakePage) Close() error {
	p.Closed = true
	return nil
}
