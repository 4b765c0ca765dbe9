package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"snapseek/internal/bridge"
	"snapseek/internal/dom"
	"snapseek/internal/hydrate"
	"snapseek/internal/overlay"
	"snapseek/internal/surveil"
)

// Options configures Browse.
type Options struct {
	Interval time.Duration
	Overlay  overlay.Config
}

const (
	eventBuffer = 256
	clickBuffer = 16
)

// Browse opens target in the tab and keeps its images hydrated and
// downloadable until ctx is done or the tab is closed.
func (s *Session) Browse(ctx context.Context, target string, req bridge.Requester, opts Options) error {
	guard := bridge.NewGuard()
	events := make(chan surveil.Event, eventBuffer)
	clicks := make(chan click, clickBuffer)
	s.listen(events, clicks, guard.Forget)

	if opts.Overlay.Logger == nil {
		opts.Overlay.Logger = s.logger
	}
	in, err := overlay.New(s, req, opts.Overlay)
	if err != nil {
		return err
	}

	if err := chromedp.Run(s.tab,
		network.Enable(),
		installShim(guard.Nonce()),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("open %s: %w", target, err)
	}
	s.invalidate()
	s.logger.Printf("CDP opened %s", target)

	engine := hydrate.New(s, hydrate.Config{Logger: s.logger, Debug: s.debug})
	watcher := surveil.New(engine, surveil.Config{
		Interval: opts.Interval,
		OnImage: func(ctx context.Context, k dom.Key) {
			if _, err := in.Attach(ctx, k); err != nil && !errors.Is(err, dom.ErrNodeGone) {
				s.logger.Printf("IMG attach node %d: %v", k, err)
			}
		},
		OnReset: in.Reset,
		Logger:  s.logger,
		Debug:   s.debug,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.tab.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case c := <-clicks:
				s.handleClick(runCtx, guard, in, c)
			}
		}
	}()

	err = watcher.Run(runCtx, events)
	cancel()
	wg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Session) handleClick(ctx context.Context, guard *bridge.Guard, in *overlay.Injector, c click) {
	env, err := guard.Open(c.ctxID, c.payload)
	if err != nil {
		s.logger.Printf("CDP rejected click from context %d: %v", c.ctxID, err)
		return
	}
	if _, err := in.Click(ctx, env.Button); err != nil {
		switch {
		case errors.Is(err, overlay.ErrBusy):
			if s.debug {
				s.logger.Printf("IMG button %s busy", env.Button)
			}
		default:
			s.logger.Printf("IMG click %s: %v", env.Button, err)
		}
	}
}
