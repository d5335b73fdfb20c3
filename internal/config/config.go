package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ProfileDir string
	DefaultTTL time.Duration
	LogLevel   string
	Layout     Layout
	Snapshot   Snapshot
}

// Layout configures the offline geometry backend.
type Layout struct {
	ViewportWidth float64 `toml:"viewport_width"`
	CharWidth     float64 `toml:"char_width"`
	LineHeight    float64 `toml:"line_height"`
}

// Snapshot bounds how much of a live page the daemon materialises.
type Snapshot struct {
	FrameDepth int `toml:"frame_depth"`
	Keep       int `toml:"keep"`
}

type rawConfig struct {
	ProfileDir string   `toml:"profile_dir"`
	DefaultTTL string   `toml:"default_ttl"`
	LogLevel   string   `toml:"log_level"`
	Layout     Layout   `toml:"layout"`
	Snapshot   Snapshot `toml:"snapshot"`
}

var systemPaths = []string{
	"/opt/homebrew/etc/domq/config.toml",
	"/usr/local/etc/domq/config.toml",
}

func Default() Config {
	return Config{
		ProfileDir: defaultProfileDir(),
		DefaultTTL: 14 * 24 * time.Hour,
		LogLevel:   "info",
		Layout:     Layout{ViewportWidth: 1280, CharWidth: 8, LineHeight: 18},
		Snapshot:   Snapshot{FrameDepth: 4, Keep: 8},
	}
}

func Load(profileDirOverride string, defaultTTLOverride string) (Config, error) {
	cfg := Default()

	if err := loadSystemConfig(&cfg); err != nil {
		return Config{}, err
	}
	if path := strings.TrimSpace(os.Getenv("DOMQ_CONFIG")); path != "" {
		if err := loadFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if v := strings.TrimSpace(os.Getenv("DOMQ_PROFILE_DIR")); v != "" {
		cfg.ProfileDir = v
	}
	if v := strings.TrimSpace(os.Getenv("DOMQ_DEFAULT_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DefaultTTL = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("DOMQ_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if strings.TrimSpace(defaultTTLOverride) != "" {
		if d, err := time.ParseDuration(defaultTTLOverride); err == nil {
			cfg.DefaultTTL = d
		}
	}
	if strings.TrimSpace(profileDirOverride) != "" {
		cfg.ProfileDir = profileDirOverride
	}

	return cfg, nil
}

func loadSystemConfig(cfg *Config) error {
	for _, path := range systemPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return loadFile(cfg, path)
	}
	return nil
}

func loadFile(cfg *Config, path string) error {
	var raw rawConfig
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	if raw.ProfileDir != "" {
		cfg.ProfileDir = raw.ProfileDir
	}
	if raw.DefaultTTL != "" {
		if d, err := time.ParseDuration(raw.DefaultTTL); err == nil {
			cfg.DefaultTTL = d
		}
	}
	if raw.LogLevel != "" {
		cfg.LogLevel = raw.LogLevel
	}
	if raw.Layout.ViewportWidth > 0 {
		cfg.Layout.ViewportWidth = raw.Layout.ViewportWidth
	}
	if raw.Layout.CharWidth > 0 {
		cfg.Layout.CharWidth = raw.Layout.CharWidth
	}
	if raw.Layout.LineHeight > 0 {
		cfg.Layout.LineHeight = raw.Layout.LineHeight
	}
	if raw.Snapshot.FrameDepth > 0 {
		cfg.Snapshot.FrameDepth = raw.Snapshot.FrameDepth
	}
	if raw.Snapshot.Keep > 0 {
		cfg.Snapshot.Keep = raw.Snapshot.Keep
	}
	return nil
}

func defaultProfileDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/domq"
	}
	userDefault := ""
	if runtime.GOOS == "darwin" {
		userDefault = filepath.Join(home, "Library", "Application Support", "domq")
	} else {
		if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
			userDefault = filepath.Join(xdg, "domq")
		} else {
			userDefault = filepath.Join(home, ".local", "share", "domq")
		}
	}
	if isWritableDir("/opt/homebrew/var") {
		return "/opt/homebrew/var/domq"
	}
	if isWritableDir("/usr/local/var") {
		return "/usr/local/var/domq"
	}
	return userDefault
}

func isWritableDir(path string) bool {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return false
	}
	testFile := filepath.Join(path, ".domq-writetest")
	if err := os.WriteFile(testFile, []byte("ok"), 0o644); err != nil {
		return false
	}
	_ = os.Remove(testFile)
	return true
}
