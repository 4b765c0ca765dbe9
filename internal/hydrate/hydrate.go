// Package hydrate forces <img> elements onto their best source and keeps
// them visible.
package hydrate

import (
	"context"
	"errors"
	"fmt"
	"log"

	"snapseek/internal/dom"
	"snapseek/internal/resolve"
	"snapseek/internal/style"
)

// Config wires an Engine.
type Config struct {
	Logger *log.Logger
	Debug  bool
}

// Engine applies resolver decisions to a document.
type Engine struct {
	doc    dom.Document
	logger *log.Logger
	debug  bool
}

// New returns an Engine writing to doc.
func New(doc dom.Document, cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Engine{doc: doc, logger: cfg.Logger, debug: cfg.Debug}
}

// Document returns the document the engine writes to.
func (e *Engine) Document() dom.Document { return e.doc }

// Hydrate promotes k to eager loading, commits the resolved source, records
// the committed URL in data-forced-src and forces visibility. It reports
// whether anything was written; a second call on an unchanged element
// writes nothing. An element without any source is only made visible.
func (e *Engine) Hydrate(ctx context.Context, k dom.Key) (bool, error) {
	attrs, err := e.doc.Attributes(ctx, k)
	if err != nil {
		return false, err
	}
	wrote := false
	track := func(ok bool, err error) error {
		wrote = wrote || ok
		return err
	}

	if attrs.Get(dom.AttrLoading) == "lazy" {
		if err := track(dom.SetIfChanged(ctx, e.doc, k, attrs, dom.AttrLoading, "eager")); err != nil {
			return wrote, err
		}
		if err := track(dom.SetIfChanged(ctx, e.doc, k, attrs, dom.AttrDecoding, "sync")); err != nil {
			return wrote, err
		}
	}

	d, err := resolve.Resolve(attrs, e.doc.BaseURL(ctx))
	switch {
	case errors.Is(err, resolve.ErrNoSource):
	case err != nil:
		return wrote, err
	default:
		if err := track(e.commit(ctx, k, attrs, d)); err != nil {
			return wrote, err
		}
	}

	if err := track(e.forceVisible(ctx, k, attrs)); err != nil {
		return wrote, err
	}
	if wrote && e.debug {
		e.logger.Printf("HYD node=%d src=%s via=%s", k, attrs.Get(resolve.AttrSrc), d.Source)
	}
	return wrote, nil
}

func (e *Engine) commit(ctx context.Context, k dom.Key, attrs resolve.Attrs, d resolve.Decision) (bool, error) {
	if !d.Changed && d.Source == resolve.FromForced {
		return false, nil
	}
	var steps []func() (bool, error)
	if d.Changed {
		steps = append(steps, func() (bool, error) { return dom.SetIfChanged(ctx, e.doc, k, attrs, resolve.AttrSrc, d.URL) })
	}
	steps = append(steps,
		func() (bool, error) { return dom.SetIfChanged(ctx, e.doc, k, attrs, resolve.AttrForcedSrc, d.URL) },
		func() (bool, error) { return e.recordHint(ctx, k, attrs) },
	)
	if d.Changed {
		steps = append(steps, func() (bool, error) { return dom.RemoveIfPresent(ctx, e.doc, k, attrs, resolve.AttrSrcset) })
	}
	wrote := false
	for _, step := range steps {
		ok, err := step()
		wrote = wrote || ok
		if err != nil {
			return wrote, fmt.Errorf("commit node %d: %w", k, err)
		}
	}
	return wrote, nil
}

// recordHint stores the deferred hint the commit saw, so only a later change
// to it counts as a new resolution.
func (e *Engine) recordHint(ctx context.Context, k dom.Key, attrs resolve.Attrs) (bool, error) {
	if hint := resolve.Deferred(attrs); hint != "" {
		return dom.SetIfChanged(ctx, e.doc, k, attrs, resolve.AttrForcedHint, hint)
	}
	return dom.RemoveIfPresent(ctx, e.doc, k, attrs, resolve.AttrForcedHint)
}

// ForceVisible rewrites the inline style so opacity and visibility win over
// page styles. Other declarations are kept.
func (e *Engine) ForceVisible(ctx context.Context, k dom.Key) (bool, error) {
	attrs, err := e.doc.Attributes(ctx, k)
	if err != nil {
		return false, err
	}
	return e.forceVisible(ctx, k, attrs)
}

func (e *Engine) forceVisible(ctx context.Context, k dom.Key, attrs resolve.Attrs) (bool, error) {
	cur := attrs[dom.AttrStyle]
	if style.Satisfies(cur, style.Visible) {
		return false, nil
	}
	return dom.SetIfChanged(ctx, e.doc, k, attrs, dom.AttrStyle, style.Force(cur, style.Visible))
}

// Outcome describes what Guard did to an element.
type Outcome int

const (
	Untouched Outcome = iota
	Rehydrated
	Restored
)

func (o Outcome) String() string {
	switch o {
	case Rehydrated:
		return "rehydrated"
	case Restored:
		return "restored"
	default:
		return "untouched"
	}
}

// Guard reacts to a source change on k. A fresh srcset or a swapped deferred
// hint resolving to a new URL is an explicit new resolution and is
// committed; any other drift of src away from the committed marker is
// reverted and srcset stripped.
// Elements never hydrated are hydrated.
func (e *Engine) Guard(ctx context.Context, k dom.Key) (Outcome, error) {
	attrs, err := e.doc.Attributes(ctx, k)
	if err != nil {
		return Untouched, err
	}
	forced := attrs.Get(resolve.AttrForcedSrc)
	if forced == "" {
		ok, err := e.Hydrate(ctx, k)
		if ok {
			return Rehydrated, err
		}
		return Untouched, err
	}
	d, err := resolve.Resolve(attrs, e.doc.BaseURL(ctx))
	if err != nil {
		return Untouched, err
	}
	if d.Source != resolve.FromForced && d.URL != forced {
		d.Changed = true
		if _, err := e.commit(ctx, k, attrs, d); err != nil {
			return Untouched, err
		}
		return Rehydrated, nil
	}
	wrote := false
	ok, err := dom.SetIfChanged(ctx, e.doc, k, attrs, resolve.AttrSrc, forced)
	if err != nil {
		return Untouched, err
	}
	wrote = wrote || ok
	ok, err = dom.RemoveIfPresent(ctx, e.doc, k, attrs, resolve.AttrSrcset)
	if err != nil {
		return Untouched, err
	}
	wrote = wrote || ok
	if wrote {
		return Restored, nil
	}
	return Untouched, nil
}
