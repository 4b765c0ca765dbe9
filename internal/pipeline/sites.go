package pipeline

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SiteConfig holds per-host request tweaks read from <dir>/<host>.json.
// Referer "page" forwards the page URL; "origin" sends the image origin;
// any other non-empty value is sent verbatim.
type SiteConfig struct {
	Referer string            `json:"referer,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Apply sets the site headers on h. page is the page the image came from.
func (c *SiteConfig) Apply(h http.Header, target *url.URL, page string) {
	if c == nil {
		return
	}
	for k, v := range c.Headers {
		h.Set(k, v)
	}
	switch c.Referer {
	case "":
	case "page":
		if page != "" {
			h.Set("Referer", page)
		}
	case "origin":
		h.Set("Referer", target.Scheme+"://"+target.Host+"/")
	default:
		h.Set("Referer", c.Referer)
	}
}

type siteConfigStore struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]*SiteConfig
}

func newSiteConfigStore(dir string) *siteConfigStore {
	return &siteConfigStore{
		dir:   dir,
		cache: make(map[string]*SiteConfig),
	}
}

// Find returns the config for u's host, trying parent domains in turn
// (img.cdn.example.com, cdn.example.com, example.com, com).
func (s *siteConfigStore) Find(u *url.URL) *SiteConfig {
	if u == nil || u.Host == "" {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	s.mu.RLock()
	if cfg, ok := s.cache[host]; ok {
		s.mu.RUnlock()
		return cfg
	}
	s.mu.RUnlock()

	var found *SiteConfig
	labels := strings.Split(host, ".")
	for i := 0; i < len(labels) && found == nil; i++ {
		found = s.load(strings.Join(labels[i:], "."))
	}
	s.mu.Lock()
	s.cache[host] = found
	s.mu.Unlock()
	return found
}

func (s *siteConfigStore) load(host string) *SiteConfig {
	if s.dir == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(s.dir, host+".json"))
	if err != nil {
		return nil
	}
	var cfg SiteConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil
	}
	cfg.Referer = strings.TrimSpace(cfg.Referer)
	return &cfg
}
