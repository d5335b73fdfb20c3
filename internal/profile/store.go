// Package profile keeps named browser profiles on disk. A profile records
// the engine to launch, the viewport snapshots are measured in, and how long
// it may sit unused before prune removes it.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("profile not found")
	ErrNameRequired = errors.New("profile name required")
)

const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 800
)

type Profile struct {
	Name      string    `json:"name"`
	Browser   string    `json:"browser"`
	Channel   string    `json:"channel"`
	Headless  bool      `json:"headless"`
	Viewport  Viewport  `json:"viewport"`
	TTL       int64     `json:"ttl_seconds"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
}

type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (v Viewport) String() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// ParseViewport reads WIDTHxHEIGHT.
func ParseViewport(s string) (Viewport, error) {
	var v Viewport
	if _, err := fmt.Sscanf(strings.ToLower(strings.TrimSpace(s)), "%dx%d", &v.Width, &v.Height); err != nil {
		return Viewport{}, fmt.Errorf("viewport %q: want WIDTHxHEIGHT", s)
	}
	if v.Width <= 0 || v.Height <= 0 {
		return Viewport{}, fmt.Errorf("viewport %q: dimensions must be positive", s)
	}
	return v, nil
}

type Store struct {
	Root       string
	DefaultTTL time.Duration
}

func (s Store) EnsureDir() error {
	return os.MkdirAll(s.Root, 0o755)
}

func (s Store) ProfileDir(name string) string {
	return filepath.Join(s.Root, sanitizeName(name))
}

func (s Store) ProfilePath(name string) string {
	return filepath.Join(s.ProfileDir(name), "profile.json")
}

func (s Store) StorageStatePath(name string) string {
	return filepath.Join(s.ProfileDir(name), "storage.json")
}

func (s Store) LogPath(name string) string {
	return filepath.Join(s.ProfileDir(name), "daemon.log")
}

func (s Store) Load(name string) (Profile, error) {
	b, err := os.ReadFile(s.ProfilePath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, sanitizeName(name))
		}
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal(b, &p); err != nil {
		return Profile{}, fmt.Errorf("profile %s: %w", name, err)
	}
	if p.Viewport.Width <= 0 || p.Viewport.Height <= 0 {
		p.Viewport = Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	return p, nil
}

func (s Store) Save(p Profile) error {
	if err := s.EnsureDir(); err != nil {
		return err
	}
	p.Name = sanitizeName(p.Name)
	if p.Name == "" {
		return ErrNameRequired
	}
	if err := os.MkdirAll(s.ProfileDir(p.Name), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.ProfilePath(p.Name), b, 0o644)
}

func (s Store) List() ([]Profile, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	profiles := make([]Profile, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		p, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Name < profiles[j].Name
	})
	return profiles, nil
}

func (s Store) Remove(name string) error {
	if sanitizeName(name) == "" {
		return ErrNameRequired
	}
	return os.RemoveAll(s.ProfileDir(name))
}

// Upsert loads the named profile, creating it when missing, and applies
// overrides. created reports whether the profile was new.
func (s Store) Upsert(name string, overrides Overrides) (p Profile, created bool, err error) {
	name = sanitizeName(name)
	if name == "" {
		return Profile{}, false, ErrNameRequired
	}
	p, err = s.Load(name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return Profile{}, false, err
		}
		now := time.Now().UTC()
		p = Profile{
			Name:      name,
			Browser:   "chromium",
			Channel:   "chrome",
			Headless:  true,
			Viewport:  Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight},
			TTL:       int64(s.DefaultTTL.Seconds()),
			CreatedAt: now,
			LastUsed:  now,
		}
		overrides.apply(&p)
		if err := s.Save(p); err != nil {
			return Profile{}, false, err
		}
		return p, true, nil
	}
	if overrides.apply(&p) {
		if err := s.Save(p); err != nil {
			return Profile{}, false, err
		}
	}
	return p, false, nil
}

func (s Store) Touch(name string) (Profile, error) {
	p, err := s.Load(name)
	if err != nil {
		return Profile{}, err
	}
	p.LastUsed = time.Now().UTC()
	return p, s.Save(p)
}

func (s Store) IsExpired(p Profile) bool {
	if p.TTL <= 0 {
		return false
	}
	deadline := p.LastUsed.Add(time.Duration(p.TTL) * time.Second)
	return time.Now().UTC().After(deadline)
}

// Expired lists the profiles whose TTL has run out.
func (s Store) Expired() ([]Profile, error) {
	profiles, err := s.List()
	if err != nil {
		return nil, err
	}
	expired := make([]Profile, 0)
	for _, p := range profiles {
		if s.IsExpired(p) {
			expired = append(expired, p)
		}
	}
	return expired, nil
}

func (s Store) Prune() ([]Profile, error) {
	expired, err := s.Expired()
	if err != nil {
		return nil, err
	}
	removed := make([]Profile, 0, len(expired))
	for _, p := range expired {
		if err := s.Remove(p.Name); err != nil {
			return removed, err
		}
		removed = append(removed, p)
	}
	return removed, nil
}

type Overrides struct {
	Browser  string
	Channel  string
	Headless *bool
	TTL      *time.Duration
	Viewport *Viewport
}

func (o Overrides) apply(p *Profile) bool {
	updated := false
	if o.Browser != "" {
		p.Browser = o.Browser
		updated = true
	}
	if o.Channel != "" {
		p.Channel = o.Channel
		updated = true
	}
	if o.Headless != nil {
		p.Headless = *o.Headless
		updated = true
	}
	if o.TTL != nil {
		p.TTL = int64(o.TTL.Seconds())
		updated = true
	}
	if o.Viewport != nil {
		p.Viewport = *o.Viewport
		updated = true
	}
	return updated
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "-")
	return name
}

func SafeName(name string) string {
	return sanitizeName(name)
}

func FormatTTL(seconds int64) string {
	if seconds <= 0 {
		return "never"
	}
	return time.Duration(seconds * int64(time.Second)).String()
}

func (p Profile) String() string {
	return fmt.Sprintf("%s (browser=%s channel=%s headless=%t viewport=%s)", p.Name, p.Browser, p.Channel, p.Headless, p.Viewport)
}
