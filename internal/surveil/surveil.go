// Package surveil keeps hydrated images hydrated. It combines change events
// delivered by the page adapter with a fixed-interval sweep, all driven from
// a single goroutine.
package surveil

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"snapseek/internal/dom"
	"snapseek/internal/hydrate"
	"snapseek/internal/resolve"
)

// DefaultInterval bounds how stale an image may get when events are missed.
const DefaultInterval = 500 * time.Millisecond

// Kind classifies an Event.
type Kind int

const (
	// AttrChanged: attribute Name of Key was set or removed.
	AttrChanged Kind = iota
	// Inserted: Key was inserted; its subtree may hold images.
	Inserted
	// Removed: Key left the document.
	Removed
	// Reset: the whole document was replaced. Keys are void.
	Reset
)

func (k Kind) String() string {
	switch k {
	case AttrChanged:
		return "attr"
	case Inserted:
		return "inserted"
	case Removed:
		return "removed"
	case Reset:
		return "reset"
	}
	return "unknown"
}

// Event is a DOM change reported by the page adapter.
type Event struct {
	Kind Kind
	Key  dom.Key
	Name string
}

// Config wires a Watcher.
type Config struct {
	Interval time.Duration
	// OnImage is called for every live image after it is hydrated, from the
	// watcher goroutine. The overlay attaches its buttons here.
	OnImage func(ctx context.Context, k dom.Key)
	// OnReset is called after a document reset, before the resync sweep.
	OnReset func()
	Logger  *log.Logger
	Debug   bool
}

// Watcher owns the membership set of observed images.
type Watcher struct {
	engine   *hydrate.Engine
	doc      dom.Document
	interval time.Duration
	onImage  func(context.Context, dom.Key)
	onReset  func()
	logger   *log.Logger
	debug    bool

	// observed holds keys only; entries are dropped as soon as the node is
	// gone so the set never outlives the elements.
	observed map[dom.Key]struct{}
	running  atomic.Bool
}

// New returns a Watcher driving engine.
func New(engine *hydrate.Engine, cfg Config) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Watcher{
		engine:   engine,
		doc:      engine.Document(),
		interval: cfg.Interval,
		onImage:  cfg.OnImage,
		onReset:  cfg.OnReset,
		logger:   cfg.Logger,
		debug:    cfg.Debug,
		observed: map[dom.Key]struct{}{},
	}
}

// ErrRunning is returned by Run when the watcher is already running.
var ErrRunning = errors.New("surveil: watcher already running")

// Run sweeps once, then serves events and the ticker until ctx is done or
// events is closed. Corrections are applied only after the triggering event
// was received.
func (w *Watcher) Run(ctx context.Context, events <-chan Event) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer w.running.Store(false)

	w.Sweep(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			w.Handle(ctx, ev)
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Observed reports the number of images currently watched. Like
// IsObserved it must not race with Run.
func (w *Watcher) Observed() int { return len(w.observed) }

// IsObserved reports whether k is in the membership set.
func (w *Watcher) IsObserved(k dom.Key) bool {
	_, ok := w.observed[k]
	return ok
}

// Sweep hydrates every image in the document, prunes keys of removed
// images, and offers each image to OnImage.
func (w *Watcher) Sweep(ctx context.Context) {
	keys, err := dom.Images(ctx, w.doc)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Printf("HYD sweep: %v", err)
		}
		return
	}
	live := make(map[dom.Key]struct{}, len(keys))
	for _, k := range keys {
		live[k] = struct{}{}
		w.adopt(ctx, k)
	}
	for k := range w.observed {
		if _, ok := live[k]; !ok {
			delete(w.observed, k)
		}
	}
}

// Handle applies one event.
func (w *Watcher) Handle(ctx context.Context, ev Event) {
	switch ev.Kind {
	case AttrChanged:
		if _, ok := w.observed[ev.Key]; !ok {
			return
		}
		w.onAttr(ctx, ev.Key, ev.Name)
	case Inserted:
		keys, err := dom.ImagesWithin(ctx, w.doc, ev.Key)
		if err != nil {
			w.drop(ev.Key, err)
			return
		}
		for _, k := range keys {
			w.adopt(ctx, k)
		}
	case Removed:
		delete(w.observed, ev.Key)
	case Reset:
		clear(w.observed)
		if w.onReset != nil {
			w.onReset()
		}
		w.Sweep(ctx)
	}
}

func (w *Watcher) onAttr(ctx context.Context, k dom.Key, name string) {
	var err error
	switch name {
	case dom.AttrStyle, dom.AttrClass:
		_, err = w.engine.ForceVisible(ctx, k)
	case resolve.AttrSrc, resolve.AttrSrcset:
		var out hydrate.Outcome
		out, err = w.engine.Guard(ctx, k)
		if w.debug && out != hydrate.Untouched {
			w.logger.Printf("HYD node=%d %s after %s change", k, out, name)
		}
	case dom.AttrLoading:
		_, err = w.engine.Hydrate(ctx, k)
	default:
		return
	}
	if err != nil {
		w.drop(k, err)
	}
}

// adopt hydrates k and records it in the membership set.
func (w *Watcher) adopt(ctx context.Context, k dom.Key) {
	if _, err := w.engine.Hydrate(ctx, k); err != nil {
		w.drop(k, err)
		return
	}
	w.observed[k] = struct{}{}
	if w.onImage != nil {
		w.onImage(ctx, k)
	}
}

func (w *Watcher) drop(k dom.Key, err error) {
	delete(w.observed, k)
	if errors.Is(err, dom.ErrNodeGone) || errors.Is(err, context.Canceled) {
		return
	}
	w.logger.Printf("HYD node=%d: %v", k, err)
}
