package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/patrickjm/domq/internal/browser"
	"github.com/patrickjm/domq/internal/config"
	"github.com/patrickjm/domq/internal/daemon"
	"github.com/patrickjm/domq/internal/logging"
	"github.com/patrickjm/domq/internal/profile"
)

type GlobalFlags struct {
	Profile    string
	ProfileDir string
	JSON       bool
	Plain      bool
	Quiet      bool
	Verbose    bool
	NoStart    bool
	Browser    string
	Channel    string
	Headless   bool
	Headed     bool
	Viewport   string
	Tab        int
	TTL        string
	Timeout    string
	LogLevel   string
}

type App struct {
	Out io.Writer
	Err io.Writer
}

// env is everything a command needs besides its own arguments.
type env struct {
	cfg   config.Config
	store profile.Store
	mgr   daemon.Manager
	log   *zap.Logger
}

func (a App) prepare(flags GlobalFlags) (env, error) {
	cfg, err := config.Load(flags.ProfileDir, "")
	if err != nil {
		return env{}, err
	}
	if flags.LogLevel != "" {
		cfg.LogLevel = flags.LogLevel
	}
	log, err := logging.New(logging.Options{Level: cfg.LogLevel, Verbose: flags.Verbose})
	if err != nil {
		return env{}, err
	}
	if err := daemon.EnsureProfileDir(cfg.ProfileDir); err != nil {
		return env{}, err
	}
	mgr := daemon.Manager{ProfileDir: cfg.ProfileDir, Logger: log}
	if flags.LogLevel != "" {
		mgr.ServeArgs = []string{"--log-level", flags.LogLevel}
	}
	return env{
		cfg:   cfg,
		store: profile.Store{Root: cfg.ProfileDir, DefaultTTL: cfg.DefaultTTL},
		mgr:   mgr,
		log:   log,
	}, nil
}

const (
	exitSuccess  = 0
	exitFailure  = 1
	exitUsage    = 2
	exitNotFound = 3
)

func (a App) fail(err error, code int) int {
	fmt.Fprintln(a.Err, err)
	return code
}

func (a App) printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(a.Out, string(b))
}

func (a App) runInstall(flags GlobalFlags) int {
	browsers := []string{}
	if flags.Browser != "" {
		browsers = append(browsers, flags.Browser)
	}
	opts := &playwright.RunOptions{}
	if len(browsers) > 0 {
		opts.Browsers = browsers
	}
	if err := playwright.Install(opts); err != nil {
		return a.fail(err, exitFailure)
	}
	if !flags.Quiet {
		if len(browsers) == 0 {
			fmt.Fprintln(a.Out, "Playwright installed")
		} else {
			fmt.Fprintf(a.Out, "Playwright installed: %s\n", strings.Join(browsers, ", "))
		}
	}
	return exitSuccess
}

func (a App) runDoctor(e env, flags GlobalFlags) int {
	type result struct {
		ProfileDirWritable bool   `json:"profile_dir_writable"`
		ProfileDir         string `json:"profile_dir"`
		PlaywrightOK       bool   `json:"playwright_ok"`
		BrowsersPath       string `json:"browsers_path"`
		LogLevel           string `json:"log_level"`
		FrameDepth         int    `json:"frame_depth"`
	}
	res := result{
		ProfileDir:   e.cfg.ProfileDir,
		BrowsersPath: os.Getenv("PLAYWRIGHT_BROWSERS_PATH"),
		LogLevel:     e.cfg.LogLevel,
		FrameDepth:   e.cfg.Snapshot.FrameDepth,
	}
	if err := os.MkdirAll(e.cfg.ProfileDir, 0o755); err == nil {
		res.ProfileDirWritable = true
	}
	if pw, err := playwright.Run(); err == nil {
		res.PlaywrightOK = true
		_ = pw.Stop()
	} else {
		e.log.Debug("playwright unavailable", zap.Error(err))
	}
	if flags.JSON {
		a.printJSON(res)
		return exitSuccess
	}
	fmt.Fprintf(a.Out, "profile_dir=%s\n", res.ProfileDir)
	fmt.Fprintf(a.Out, "profile_dir_writable=%t\n", res.ProfileDirWritable)
	fmt.Fprintf(a.Out, "playwright_ok=%t\n", res.PlaywrightOK)
	fmt.Fprintf(a.Out, "log_level=%s frame_depth=%d\n", res.LogLevel, res.FrameDepth)
	if res.BrowsersPath != "" {
		fmt.Fprintf(a.Out, "browsers_path=%s\n", res.BrowsersPath)
	}
	return exitSuccess
}

func (a App) runStart(e env, flags GlobalFlags) int {
	if flags.Profile == "" {
		return a.fail(errProfileRequired, exitUsage)
	}
	overrides, err := overridesFromFlags(flags)
	if err != nil {
		return a.fail(err, exitUsage)
	}
	p, created, err := e.store.Upsert(flags.Profile, overrides)
	if err != nil {
		return a.fail(err, exitFailure)
	}
	if created {
		e.log.Info("profile created", zap.String("profile", p.Name))
	}
	if err := e.mgr.Start(p.Name); err != nil {
		return a.fail(err, exitFailure)
	}
	_, _ = e.store.Touch(p.Name)
	if !flags.Quiet {
		fmt.Fprintf(a.Out, "started %s\n", p.Name)
	}
	return exitSuccess
}

func (a App) runStop(e env, flags GlobalFlags) int {
	if flags.Profile == "" {
		return a.fail(errProfileRequired, exitUsage)
	}
	if err := e.mgr.Stop(profile.SafeName(flags.Profile)); err != nil {
		return a.fail(err, exitFailure)
	}
	if !flags.Quiet {
		fmt.Fprintf(a.Out, "stopped %s\n", flags.Profile)
	}
	return exitSuccess
}

func (a App) runPs(e env, flags GlobalFlags) int {
	infos, err := e.mgr.RunningProfiles()
	if err != nil {
		return a.fail(err, exitFailure)
	}
	if flags.JSON {
		a.printJSON(infos)
		return exitSuccess
	}
	for _, info := range infos {
		fmt.Fprintf(a.Out, "pid=%d socket=%s started_at=%s\n", info.PID, info.Socket, info.StartedAt.Format(time.RFC3339))
	}
	return exitSuccess
}

func (a App) runList(e env, flags GlobalFlags) int {
	profiles, err := e.store.List()
	if err != nil {
		return a.fail(err, exitFailure)
	}
	if flags.JSON {
		a.printJSON(profiles)
		return exitSuccess
	}
	for _, p := range profiles {
		fmt.Fprintf(a.Out, "%s last_used=%s ttl=%s viewport=%s\n", p.Name, p.LastUsed.Format(time.RFC3339), profile.FormatTTL(p.TTL), p.Viewport)
	}
	return exitSuccess
}

func (a App) runShow(e env, flags GlobalFlags, name string) int {
	p, err := e.store.Load(name)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return a.fail(err, exitNotFound)
		}
		return a.fail(err, exitFailure)
	}
	if flags.JSON {
		a.printJSON(p)
		return exitSuccess
	}
	fmt.Fprintf(a.Out, "name=%s\n", p.Name)
	fmt.Fprintf(a.Out, "browser=%s channel=%s\n", p.Browser, p.Channel)
	fmt.Fprintf(a.Out, "headless=%t viewport=%s\n", p.Headless, p.Viewport)
	fmt.Fprintf(a.Out, "created_at=%s\n", p.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(a.Out, "last_used=%s\n", p.LastUsed.Format(time.RFC3339))
	fmt.Fprintf(a.Out, "ttl=%s\n", profile.FormatTTL(p.TTL))
	return exitSuccess
}

func (a App) runRemove(e env, flags GlobalFlags, names []string) int {
	for _, name := range names {
		running, _, err := e.mgr.IsRunning(profile.SafeName(name))
		if err != nil {
			return a.fail(err, exitFailure)
		}
		if running {
			return a.fail(fmt.Errorf("%s is running; stop first", name), exitFailure)
		}
		if err := e.store.Remove(name); err != nil {
			return a.fail(err, exitFailure)
		}
		if !flags.Quiet {
			fmt.Fprintf(a.Out, "removed %s\n", name)
		}
	}
	return exitSuccess
}

func (a App) runPrune(e env, flags GlobalFlags, dryRun bool, force bool) int {
	expired, err := e.store.Expired()
	if err != nil {
		return a.fail(err, exitFailure)
	}
	removed := []profile.Profile{}
	for _, p := range expired {
		running, _, err := e.mgr.IsRunning(p.Name)
		if err != nil {
			return a.fail(err, exitFailure)
		}
		if running {
			if !force {
				continue
			}
			if err := e.mgr.Stop(p.Name); err != nil {
				e.log.Warn("stop before prune", zap.String("profile", p.Name), zap.Error(err))
			}
		}
		if !dryRun {
			if err := e.store.Remove(p.Name); err != nil {
				return a.fail(err, exitFailure)
			}
		}
		removed = append(removed, p)
	}
	if flags.JSON {
		a.printJSON(removed)
		return exitSuccess
	}
	for _, p := range removed {
		fmt.Fprintf(a.Out, "pruned %s\n", p.Name)
	}
	return exitSuccess
}

func (a App) runTabNew(e env, flags GlobalFlags, url string) int {
	client, err := a.prepareClientNoTab(e, flags)
	if err != nil {
		return a.fail(err, exitFailure)
	}
	defer client.Close()
	tab, err := client.TabNew(url)
	if err != nil {
		return a.fail(err, exitFailure)
	}
	fmt.Fprintf(a.Out, "%d\n", tab.ID)
	return exitSuccess
}

func (a App) runTabList(e env, flags GlobalFlags) int {
	client, err := a.prepareClientNoTab(e, flags)
	if err != nil {
		return a.fail(err, exitFailure)
	}
	defer client.Close()
	tabs, err := client.TabList()
	if err != nil {
		return a.fail(err, exitFailure)
	}
	if flags.JSON {
		a.printJSON(tabs)
		return exitSuccess
	}
	for _, tab := range tabs {
		marker := ""
		if tab.Active {
			marker = "*"
		}
		fmt.Fprintf(a.Out, "%d%s %s jobs=%d\n", tab.ID, marker, tab.URL, tab.Jobs)
	}
	return exitSuccess
}

func (a App) runTabClose(e env, flags GlobalFlags, tab int) int {
	client, err := a.prepareClientNoTab(e, flags)
	if err != nil {
		return a.fail(err, exitFailure)
	}
	defer client.Close()
	if err := client.TabClose(tab); err != nil {
		return a.fail(err, exitFailure)
	}
	return exitSuccess
}

func (a App) runTabSwitch(e env, flags GlobalFlags, tab int) int {
	client, err := a.prepareClientNoTab(e, flags)
	if err != nil {
		return a.fail(err, exitFailure)
	}
	defer client.Close()
	if err := client.TabSwitch(tab); err != nil {
		return a.fail(err, exitFailure)
	}
	return exitSuccess
}

func (a App) runGoto(e env, flags GlobalFlags, url string) int {
	timeoutMs, err := actionTimeoutMs(flags)
	if err != nil {
		return a.fail(err, exitUsage)
	}
	client, tabID, err := a.prepareClient(e, flags)
	if err != nil {
		return a.fail(err, exitFailure)
	}
	defer client.Close()
	if err := client.Goto(tabID, url, timeoutMs); err != nil {
		return a.fail(err, exitFailure)
	}
	_, _ = e.store.Touch(flags.Profile)
	return exitSuccess
}

func (a App) runURL(e env, flags GlobalFlags) int {
	client, tabID, err := a.prepareClient(e, flags)
	if err != nil {
		return a.fail(err, exitFailure)
	}
	defer client.Close()
	value, err := client.URL(tabID)
	if err != nil {
		return a.fail(err, exitFailure)
	}
	fmt.Fprintln(a.Out, value)
	return exitSuccess
}

var errProfileRequired = errors.New("-p/--profile is required")

func (a App) prepareClient(e env, flags GlobalFlags) (*daemon.Client, int, error) {
	client, err := a.prepareClientNoTab(e, flags)
	if err != nil {
		return nil, 0, err
	}
	tabID, err := resolveTabID(client, flags.Tab)
	if err != nil {
		_ = client.Close()
		return nil, 0, err
	}
	return client, tabID, nil
}

func (a App) prepareClientNoTab(e env, flags GlobalFlags) (*daemon.Client, error) {
	name := flags.Profile
	if name == "" {
		return nil, errProfileRequired
	}
	if _, _, err := e.store.Upsert(name, profile.Overrides{}); err != nil {
		return nil, err
	}
	if err := ensureRunning(e.mgr, profile.SafeName(name), flags.NoStart); err != nil {
		return nil, err
	}
	return daemon.NewClient(e.mgr.SocketPath(profile.SafeName(name)))
}

func actionTimeoutMs(flags GlobalFlags) (int, error) {
	if strings.TrimSpace(flags.Timeout) == "" {
		return int((20 * time.Second).Milliseconds()), nil
	}
	d, err := time.ParseDuration(flags.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout: %w", err)
	}
	if d <= 0 {
		return 0, nil
	}
	return int(d.Milliseconds()), nil
}

func (a App) runServe(e env, flags GlobalFlags) int {
	if flags.Profile == "" {
		return a.fail(errProfileRequired, exitUsage)
	}
	p, err := e.store.Load(flags.Profile)
	if err != nil {
		return a.fail(err, exitFailure)
	}
	socket := e.mgr.SocketPath(p.Name)
	info := daemon.Info{PID: os.Getpid(), Socket: socket, StartedAt: daemon.NowUTC()}
	if path, modTime, err := daemon.CurrentBinaryInfo(); err == nil {
		info.BinaryPath = path
		info.BinaryModTime = modTime
	}
	if err := e.mgr.SaveInfo(p.Name, info); err != nil {
		return a.fail(err, exitFailure)
	}
	opts := browser.StartOptions{
		Browser:        p.Browser,
		Channel:        p.Channel,
		Headless:       p.Headless,
		StorageIn:      e.store.StorageStatePath(p.Name),
		ViewportWidth:  p.Viewport.Width,
		ViewportHeight: p.Viewport.Height,
	}
	sopts := daemon.ServerOptions{
		Snapshot: browser.SnapshotOptions{FrameDepth: e.cfg.Snapshot.FrameDepth},
		Keep:     e.cfg.Snapshot.Keep,
		Logger:   e.log,
	}
	defer func() { _ = e.log.Sync() }()
	if err := daemon.ServeProfile(socket, p.Name, browser.PlaywrightEngine{}, opts, sopts); err != nil {
		e.log.Error("daemon exited", zap.Error(err))
		return a.fail(err, exitFailure)
	}
	return exitSuccess
}

func ensureRunning(mgr daemon.Manager, name string, noStart bool) error {
	running, _, err := mgr.IsRunning(name)
	if err != nil {
		return err
	}
	if running {
		return nil
	}
	if noStart {
		return errors.New("profile is not running")
	}
	return mgr.Start(name)
}

func resolveTabID(client *daemon.Client, requested int) (int, error) {
	if requested != 0 {
		return requested, nil
	}
	status, err := client.Status()
	if err != nil {
		return 0, err
	}
	return resolveTabIDFromStatus(status)
}

// resolveTabIDFromStatus picks the active tab, or the only tab.
func resolveTabIDFromStatus(status daemon.StatusResult) (int, error) {
	if len(status.Tabs) == 0 {
		return 0, errors.New("no tabs available")
	}
	if len(status.Tabs) == 1 {
		return status.Tabs[0].ID, nil
	}
	for _, tab := range status.Tabs {
		if tab.Active {
			return tab.ID, nil
		}
	}
	return 0, errors.New("multiple tabs; use --tab")
}

func overridesFromFlags(flags GlobalFlags) (profile.Overrides, error) {
	var overrides profile.Overrides
	if flags.Browser != "" {
		overrides.Browser = flags.Browser
	}
	if flags.Channel != "" {
		overrides.Channel = flags.Channel
	}
	if flags.Headless && flags.Headed {
		return overrides, errors.New("cannot set both --headless and --headed")
	}
	if flags.Headless {
		headless := true
		overrides.Headless = &headless
	}
	if flags.Headed {
		headless := false
		overrides.Headless = &headless
	}
	if flags.TTL != "" {
		d, err := time.ParseDuration(flags.TTL)
		if err != nil {
			return overrides, fmt.Errorf("invalid ttl: %w", err)
		}
		overrides.TTL = &d
	}
	if flags.Viewport != "" {
		v, err := profile.ParseViewport(flags.Viewport)
		if err != nil {
			return overrides, err
		}
		overrides.Viewport = &v
	}
	return overrides, nil
}
