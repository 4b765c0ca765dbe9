package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultMinImageSize = 100
	defaultRevertDelay  = 2000 * time.Millisecond
	defaultPollInterval = 500 * time.Millisecond
	defaultHistoryLimit = 100
	defaultAPIAddr      = "127.0.0.1:7777"
	defaultWorkers      = 4
)

// defaultSitesSpec uses the "name|url,..." form accepted by SNAPSEEK_SITES.
const defaultSitesSpec = "pinterest|https://ru.pinterest.com/,safebooru|https://safebooru.org/,pixiv|https://www.pixiv.net/"

// Browser configures the Chrome instance.
type Browser struct {
	Headless    bool   `yaml:"headless"`
	ExecPath    string `yaml:"exec_path"`
	RemoteURL   string `yaml:"remote_url"`
	UserDataDir string `yaml:"user_data_dir"`
	UserAgent   string `yaml:"user_agent"`
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
}

// Config is the runtime configuration.
type Config struct {
	DownloadDir  string            `yaml:"download_dir"`
	Formats      []string          `yaml:"formats"`
	MinImageSize int               `yaml:"min_image_size"`
	PollInterval time.Duration     `yaml:"poll_interval"`
	SuccessDelay time.Duration     `yaml:"success_delay"`
	ErrorDelay   time.Duration     `yaml:"error_delay"`
	HistoryPath  string            `yaml:"history_path"`
	HistoryLimit int               `yaml:"history_limit"`
	APIAddr      string            `yaml:"api_addr"`
	Workers      int               `yaml:"workers"`
	Sites        map[string]string `yaml:"sites"`
	SitesDir     string            `yaml:"sites_dir"`
	Browser      Browser           `yaml:"browser"`
	Debug        bool              `yaml:"debug"`
}

// Default returns the built-in configuration. The download directory is
// left empty and resolved at download time.
func Default() *Config {
	return &Config{
		Formats:      []string{"png"},
		MinImageSize: defaultMinImageSize,
		PollInterval: defaultPollInterval,
		SuccessDelay: defaultRevertDelay,
		ErrorDelay:   defaultRevertDelay,
		HistoryPath:  filepath.Join(DataRoot(), "history.db"),
		HistoryLimit: defaultHistoryLimit,
		APIAddr:      defaultAPIAddr,
		Workers:      defaultWorkers,
		Sites:        ParseSites(defaultSitesSpec),
		SitesDir:     filepath.Join(Root(), "sites"),
		Browser:      Browser{Width: 1280, Height: 900},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error; the returned
// string names the file actually used.
func Load(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := Default()
	used := path
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		used = "(defaults)"
	case err != nil:
		return nil, "", fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, "", fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	normalize(cfg)
	return cfg, used, nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func applyEnv(c *Config) {
	if v := strings.TrimSpace(os.Getenv("SNAPSEEK_DOWNLOAD_DIR")); v != "" {
		c.DownloadDir = v
	}
	if v := strings.TrimSpace(os.Getenv("SNAPSEEK_HISTORY_DB")); v != "" {
		c.HistoryPath = v
	}
	if v := strings.TrimSpace(os.Getenv("SNAPSEEK_API_ADDR")); v != "" {
		c.APIAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("SNAPSEEK_CDP_URL")); v != "" {
		c.Browser.RemoteURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SNAPSEEK_SITES_DIR")); v != "" {
		c.SitesDir = v
	}
	if raw := strings.TrimSpace(os.Getenv("SNAPSEEK_SITES")); raw != "" {
		if sites := ParseSites(raw); len(sites) > 0 {
			c.Sites = sites
		}
	}
}

func normalize(c *Config) {
	d := Default()
	if len(c.Formats) == 0 {
		c.Formats = d.Formats
	}
	if c.MinImageSize <= 0 {
		c.MinImageSize = d.MinImageSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.SuccessDelay <= 0 {
		c.SuccessDelay = d.SuccessDelay
	}
	if c.ErrorDelay <= 0 {
		c.ErrorDelay = d.ErrorDelay
	}
	if c.HistoryPath == "" {
		c.HistoryPath = d.HistoryPath
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.APIAddr == "" {
		c.APIAddr = d.APIAddr
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.Sites == nil {
		c.Sites = d.Sites
	}
	if c.SitesDir == "" {
		c.SitesDir = d.SitesDir
	}
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		c.Browser.Width, c.Browser.Height = d.Browser.Width, d.Browser.Height
	}
}

// ParseSites parses "name|url,name|url". Malformed items are skipped.
func ParseSites(raw string) map[string]string {
	items := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "|", 2)
		if len(kv) != 2 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(kv[0]))
		u := strings.TrimSpace(kv[1])
		if name == "" || u == "" {
			continue
		}
		items[name] = u
	}
	return items
}

// SiteURL maps a site shortcut or a URL to the URL to open. Bare hosts get
// an https scheme.
func (c *Config) SiteURL(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", errors.New("empty site")
	}
	if u, ok := c.Sites[strings.ToLower(target)]; ok {
		return u, nil
	}
	if !strings.Contains(target, "://") {
		if !strings.Contains(target, ".") {
			return "", fmt.Errorf("unknown site %q", target)
		}
		target = "https://" + target
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid url %q", target)
	}
	return u.String(), nil
}

// ResolveDownloadDir returns the configured directory or the platform
// default.
func (c *Config) ResolveDownloadDir() string {
	if c.DownloadDir != "" {
		return expandHome(c.DownloadDir)
	}
	return DefaultDownloadDir()
}

// Print writes a readable summary.
func (c *Config) Print(w io.Writer) {
	fmt.Fprintf(w, " -download_dir: %s\n", c.ResolveDownloadDir())
	fmt.Fprintf(w, " -formats: %s\n", strings.Join(c.Formats, ", "))
	fmt.Fprintf(w, " -min_image_size: %d\n", c.MinImageSize)
	fmt.Fprintf(w, " -poll_interval: %s\n", c.PollInterval)
	fmt.Fprintf(w, " -history_path: %s (limit %d)\n", c.HistoryPath, c.HistoryLimit)
	fmt.Fprintf(w, " -api_addr: %s\n", c.APIAddr)
	if c.Browser.RemoteURL != "" {
		fmt.Fprintf(w, " -browser.remote_url: %s\n", c.Browser.RemoteURL)
	}
	if c.Browser.Headless {
		fmt.Fprintf(w, " -browser.headless: %t\n", c.Browser.Headless)
	}
	names := make([]string, 0, len(c.Sites))
	for name := range c.Sites {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, " -site %s: %s\n", name, c.Sites[name])
	}
	if c.Debug {
		fmt.Fprintf(w, " -debug: %t\n", c.Debug)
	}
}
