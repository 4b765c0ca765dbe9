// Package pipeline is the privileged side of a download: fetch, convert,
// collision-free write and history append.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"snapseek/internal/bridge"
	"snapseek/internal/convert"
	"snapseek/internal/history"
)

const (
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0 Safari/537.36 SnapSeek/1.0"
	defaultMaxBytes  = 64 << 20
	defaultTimeout   = 60 * time.Second
)

// Appender records completed downloads.
type Appender interface {
	Append(ctx context.Context, e history.Entry) error
}

// CookieSource supplies cookies the browser holds for a URL so hot-link
// protected images fetch the same way the page did.
type CookieSource interface {
	CookiesFor(ctx context.Context, u *url.URL) ([]*http.Cookie, error)
}

// Config wires a Pipeline.
type Config struct {
	// Dir returns the download directory; called per request so a changed
	// setting applies to the next download.
	Dir       func() string
	History   Appender
	Client    *http.Client
	Cookies   CookieSource
	SitesDir  string
	UserAgent string
	MaxBytes  int64
	Logger    *log.Logger
	Clock     func() time.Time
	// Token overrides the random base name; tests only.
	Token func() (string, error)
}

// Pipeline implements bridge.Downloader.
type Pipeline struct {
	cfg    Config
	client *http.Client
	sites  *siteConfigStore
	logger *log.Logger
	// mu covers collision probing and the final rename.
	mu sync.Mutex
}

// New returns a Pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Token == nil {
		cfg.Token = NewToken
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Pipeline{
		cfg:    cfg,
		client: client,
		sites:  newSiteConfigStore(cfg.SitesDir),
		logger: cfg.Logger,
	}
}

// Download implements bridge.Downloader. Every failure is returned as a
// Failure result; no partial file is left behind.
func (p *Pipeline) Download(ctx context.Context, req bridge.Request) bridge.Result {
	dir := ""
	if p.cfg.Dir != nil {
		dir = p.cfg.Dir()
	}
	if dir == "" {
		return bridge.Failure("No download directory configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return bridge.Failuref("Failed to create download directory: %v", err)
	}
	token, err := p.cfg.Token()
	if err != nil {
		return bridge.Failuref("Failed to name file: %v", err)
	}
	format, err := bridge.ParseFormat(req.Format)
	if err != nil {
		return bridge.Failure(err.Error())
	}

	raw, err := p.fetch(ctx, req)
	if err != nil {
		return bridge.Failure(err.Error())
	}
	data, err := convert.Convert(raw, format)
	if err != nil {
		return bridge.Failuref("Failed to convert image: %v", err)
	}
	path, err := p.save(dir, token, format, data)
	if err != nil {
		return bridge.Failuref("Failed to save image: %v", err)
	}

	if p.cfg.History != nil {
		entry := history.NewEntry(path, req.SourceURL, p.cfg.Clock())
		if err := p.cfg.History.Append(ctx, entry); err != nil {
			p.logger.Printf("DL history append %s: %v", path, err)
		}
	}
	return bridge.Success(path)
}

// save picks a free name and moves the encoded bytes there atomically.
func (p *Pipeline) save(dir, token string, format bridge.Format, data []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, ".snapseek-*.part")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	path := NextFreePath(dir, token, format.Ext(), fileExists)
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return "", err
	}
	return path, nil
}

// fetch returns the raw bytes for req.SourceURL. Error texts are user facing.
func (p *Pipeline) fetch(ctx context.Context, req bridge.Request) ([]byte, error) {
	if strings.HasPrefix(req.SourceURL, "data:") {
		raw, _, err := convert.DecodeDataURI(req.SourceURL)
		if err != nil {
			return nil, fmt.Errorf("Failed to download image: %v", err)
		}
		reportProgress(ctx, int64(len(raw)), int64(len(raw)))
		return raw, nil
	}
	u, err := url.Parse(req.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("Failed to download image: %v", err)
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("Failed to download image: %v", err)
	}
	hreq.Header.Set("Accept", "image/avif,image/webp,image/png,image/*;q=0.8,*/*;q=0.5")
	hreq.Header.Set("User-Agent", p.cfg.UserAgent)
	if req.Referer != "" {
		hreq.Header.Set("Referer", req.Referer)
	}
	p.sites.Find(u).Apply(hreq.Header, u, req.Referer)
	if p.cfg.Cookies != nil {
		cookies, err := p.cfg.Cookies.CookiesFor(ctx, u)
		if err != nil {
			p.logger.Printf("DL cookies for %s: %v", u.Host, err)
		}
		for _, c := range cookies {
			hreq.AddCookie(c)
		}
	}

	resp, err := p.client.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("Failed to download image: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("Failed to download image: %s", resp.Status)
	}
	raw, err := readBody(ctx, resp, p.cfg.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("Failed to download image: %v", err)
	}
	return raw, nil
}

// Exists reports whether path is a regular file; used by callers that show
// history entries whose files may have been moved.
func Exists(path string) bool {
	fi, err := os.Stat(filepath.Clean(path))
	return err == nil && fi.Mode().IsRegular()
}
