// Package browser drives a Chrome tab over the DevTools protocol and exposes
// it as the document the hydrator, watcher and overlay work against.
package browser

import (
	"context"
	"log"

	"github.com/chromedp/chromedp"

	"snapseek/internal/config"
)

// Allocator owns the Chrome process, or the connection to a remote one.
type Allocator struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *log.Logger
}

// NewAllocator starts nothing yet; Chrome is launched by the first tab.
// A configured RemoteURL attaches to a running browser instead.
func NewAllocator(cfg config.Browser, logger *log.Logger) *Allocator {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.RemoteURL != "" {
		ctx, cancel := chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
		logger.Printf("CDP attach %s", cfg.RemoteURL)
		return &Allocator{ctx: ctx, cancel: cancel, logger: logger}
	}
	ctx, cancel := chromedp.NewExecAllocator(context.Background(), execOptions(cfg)...)
	return &Allocator{ctx: ctx, cancel: cancel, logger: logger}
}

func execOptions(cfg config.Browser) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("hide-scrollbars", cfg.Headless),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-client-side-phishing-detection", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("metrics-recording-only", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("disable-extensions", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Width, cfg.Height))
	}
	return opts
}

// Close shuts the browser down.
func (a *Allocator) Close() {
	if a.cancel != nil {
		a.cancel()
	}
}
