// Package overlay attaches per-image download buttons and drives their
// state from bridge results.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"snapseek/internal/bridge"
	"snapseek/internal/dom"
	"snapseek/internal/resolve"
)

// Surface is a document that can host buttons.
type Surface interface {
	dom.Document
	// NaturalSize is the intrinsic size of the image; zero until loaded.
	NaturalSize(ctx context.Context, k dom.Key) (int, int, error)
	// ParentPositioned reports whether the image's parent already
	// establishes a containing block for absolute positioning.
	ParentPositioned(ctx context.Context, k dom.Key) (bool, error)
	Mount(ctx context.Context, k dom.Key, m dom.Mount) error
	RenderButton(ctx context.Context, id string, v dom.ButtonView) error
}

// Config wires an Injector.
type Config struct {
	Formats      []string
	MinWidth     int
	MinHeight    int
	SuccessDelay time.Duration
	ErrorDelay   time.Duration
	Scheduler    Scheduler
	Logger       *log.Logger
	// OnResult observes every settled request.
	OnResult func(bridge.Request, bridge.Result)
	NewID    func() string
}

const (
	defaultMinSize     = 100
	defaultRevertDelay = 2000 * time.Millisecond
)

// Injector owns the buttons of one document.
type Injector struct {
	surface Surface
	req     bridge.Requester
	cfg     Config
	formats []bridge.Format
	logger  *log.Logger

	mu      sync.Mutex
	buttons map[string]*Button
}

// New returns an Injector whose buttons call req.
func New(surface Surface, req bridge.Requester, cfg Config) (*Injector, error) {
	if cfg.MinWidth <= 0 {
		cfg.MinWidth = defaultMinSize
	}
	if cfg.MinHeight <= 0 {
		cfg.MinHeight = defaultMinSize
	}
	if cfg.SuccessDelay <= 0 {
		cfg.SuccessDelay = defaultRevertDelay
	}
	if cfg.ErrorDelay <= 0 {
		cfg.ErrorDelay = defaultRevertDelay
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = realScheduler{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = []string{string(bridge.PNG)}
	}
	in := &Injector{
		surface: surface,
		req:     req,
		cfg:     cfg,
		logger:  cfg.Logger,
		buttons: map[string]*Button{},
	}
	seen := map[bridge.Format]bool{}
	for _, f := range cfg.Formats {
		pf, err := bridge.ParseFormat(f)
		if err != nil {
			return nil, err
		}
		if !seen[pf] {
			seen[pf] = true
			in.formats = append(in.formats, pf)
		}
	}
	return in, nil
}

// Attach gives a qualifying image its buttons. It is idempotent: an image
// carrying the processed marker is skipped. Images without any source or
// below the size threshold are skipped silently. It reports whether
// buttons were attached.
func (in *Injector) Attach(ctx context.Context, k dom.Key) (bool, error) {
	attrs, err := in.surface.Attributes(ctx, k)
	if err != nil {
		return false, err
	}
	if attrs.Has(dom.AttrProcessed) {
		return false, nil
	}
	if _, err := resolve.ClickTarget(attrs, ""); err != nil {
		return false, nil
	}
	w, h, err := in.surface.NaturalSize(ctx, k)
	if err != nil {
		return false, err
	}
	if w < in.cfg.MinWidth || h < in.cfg.MinHeight {
		return false, nil
	}
	positioned, err := in.surface.ParentPositioned(ctx, k)
	if err != nil {
		return false, err
	}

	m := dom.Mount{Token: in.cfg.NewID(), Wrap: !positioned}
	btns := make([]*Button, 0, len(in.formats))
	for _, f := range in.formats {
		b := newButton(in.cfg.NewID(), string(f), m.Token)
		btns = append(btns, b)
		m.Buttons = append(m.Buttons, dom.ButtonSpec{ID: b.ID, Format: b.Format, Label: strings.ToUpper(b.Format)})
	}
	if err := in.surface.Mount(ctx, k, m); err != nil {
		return false, fmt.Errorf("mount node %d: %w", k, err)
	}
	in.mu.Lock()
	for _, b := range btns {
		in.buttons[b.ID] = b
	}
	in.mu.Unlock()
	return true, nil
}

// Button returns the button with id.
func (in *Injector) Button(id string) (*Button, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	b, ok := in.buttons[id]
	return b, ok
}

// ErrUnknownButton is returned by Click for ids this injector never issued.
var ErrUnknownButton = errors.New("overlay: unknown button")

// Click starts a download for the button. The URL is resolved now from the
// image's current attributes. The request runs on its own goroutine and
// settles the button when the bridge answers; the returned channel delivers
// that result. A busy button returns ErrBusy.
func (in *Injector) Click(ctx context.Context, id string) (<-chan bridge.Result, error) {
	b, ok := in.Button(id)
	if !ok {
		return nil, ErrUnknownButton
	}
	src, err := in.clickTarget(ctx, b.Token)
	if err != nil {
		return nil, err
	}
	if err := b.begin(); err != nil {
		return nil, err
	}
	req := bridge.Request{SourceURL: src, Format: b.Format, Referer: in.surface.BaseURL(ctx)}
	in.render(ctx, b.ID, Downloading)

	// A settled download must still be rendered after the click context ends.
	bg := context.WithoutCancel(ctx)
	done := make(chan bridge.Result, 1)
	go func() {
		res := in.req.RequestDownload(bg, req)
		b.settle(res, in.cfg.Scheduler, in.cfg.SuccessDelay, in.cfg.ErrorDelay, func(s State) {
			in.render(bg, b.ID, s)
		})
		if in.cfg.OnResult != nil {
			in.cfg.OnResult(req, res)
		}
		done <- res
	}()
	return done, nil
}

func (in *Injector) clickTarget(ctx context.Context, token string) (string, error) {
	keys, err := in.surface.Query(ctx, "img["+dom.AttrProcessed+"="+strconv.Quote(token)+"]")
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("image for %s: %w", token, dom.ErrNodeGone)
	}
	attrs, err := in.surface.Attributes(ctx, keys[0])
	if err != nil {
		return "", err
	}
	return resolve.ClickTarget(attrs, in.surface.BaseURL(ctx))
}

func (in *Injector) render(ctx context.Context, id string, s State) {
	if err := in.surface.RenderButton(ctx, id, s.View()); err != nil && !errors.Is(err, dom.ErrNodeGone) {
		in.logger.Printf("IMG button %s render %s: %v", id, s, err)
	}
}

// Reset forgets every button, for a replaced document.
func (in *Injector) Reset() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for id, b := range in.buttons {
		b.stop()
		delete(in.buttons, id)
	}
}

// Len is the number of live buttons.
func (in *Injector) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.buttons)
}
