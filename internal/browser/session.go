package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"snapseek/internal/dom"
	"snapseek/internal/resolve"
)

// Session is one Chrome tab. Node keys are CDP node ids; they are void after
// a document reset, which Session reports as dom.ErrNodeGone.
type Session struct {
	tab    context.Context
	cancel context.CancelFunc
	logger *log.Logger
	debug  bool

	// fetchMu serializes document fetches; each DOM.getDocument discards
	// the node ids handed out by the previous one.
	fetchMu  sync.Mutex
	fetchDoc func(ctx context.Context) (*cdp.Node, error)

	mu   sync.Mutex
	gen  uint64
	root cdp.NodeID
	base string
}

// NewSession opens a tab on a.
func NewSession(a *Allocator, debug bool) *Session {
	tab, cancel := chromedp.NewContext(a.ctx,
		chromedp.WithLogf(a.logger.Printf),
		chromedp.WithErrorf(a.logger.Printf),
	)
	return &Session{tab: tab, cancel: cancel, logger: a.logger, debug: debug, fetchDoc: getDocument}
}

func getDocument(ctx context.Context) (*cdp.Node, error) {
	return cdpdom.GetDocument().WithDepth(-1).Do(ctx)
}

// Close closes the tab.
func (s *Session) Close() { s.cancel() }

// Context is the tab context; actions run on it target this tab.
func (s *Session) Context() context.Context { return s.tab }

// exec binds ctx to the tab's target while keeping ctx's cancellation.
func (s *Session) exec(ctx context.Context) (context.Context, error) {
	c := chromedp.FromContext(s.tab)
	if c == nil || c.Target == nil {
		return nil, errors.New("browser: tab not started")
	}
	return cdp.WithExecutor(ctx, c.Target), nil
}

// invalidate drops the cached document root. The next query refetches it.
func (s *Session) invalidate() {
	s.mu.Lock()
	s.gen++
	s.root = 0
	s.mu.Unlock()
}

func (s *Session) cachedRoot() (cdp.NodeID, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root, s.gen
}

// rootNode returns the cached document root, fetching it at most once per
// reset however many goroutines ask.
func (s *Session) rootNode(ctx context.Context) (cdp.NodeID, error) {
	if root, _ := s.cachedRoot(); root != 0 {
		return root, nil
	}
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()
	root, gen := s.cachedRoot()
	if root != 0 {
		return root, nil
	}
	n, err := s.fetchDoc(ctx)
	if err != nil {
		return 0, fmt.Errorf("get document: %w", err)
	}
	base := n.BaseURL
	if base == "" {
		base = n.DocumentURL
	}
	s.mu.Lock()
	if s.gen == gen {
		s.root, s.base = n.NodeID, base
	}
	s.mu.Unlock()
	return n.NodeID, nil
}

// Query implements dom.Document.
func (s *Session) Query(ctx context.Context, selector string) ([]dom.Key, error) {
	ectx, err := s.exec(ctx)
	if err != nil {
		return nil, err
	}
	root, err := s.rootNode(ectx)
	if err != nil {
		return nil, err
	}
	ids, err := cdpdom.QuerySelectorAll(root, selector).Do(ectx)
	if err != nil {
		if isNodeGone(err) {
			s.invalidate()
		}
		return nil, nodeErr(dom.Key(root), err)
	}
	return toKeys(ids), nil
}

// QueryWithin implements dom.Document.
func (s *Session) QueryWithin(ctx context.Context, k dom.Key, selector string) ([]dom.Key, error) {
	ectx, err := s.exec(ctx)
	if err != nil {
		return nil, err
	}
	var self bool
	if err := s.call(ectx, k, matchesJS, &self, selector); err != nil {
		return nil, err
	}
	ids, err := cdpdom.QuerySelectorAll(cdp.NodeID(k), selector).Do(ectx)
	if err != nil {
		return nil, nodeErr(k, err)
	}
	keys := toKeys(ids)
	if self {
		keys = append([]dom.Key{k}, keys...)
	}
	return keys, nil
}

// Attributes implements dom.Document.
func (s *Session) Attributes(ctx context.Context, k dom.Key) (resolve.Attrs, error) {
	ectx, err := s.exec(ctx)
	if err != nil {
		return nil, err
	}
	flat, err := cdpdom.GetAttributes(cdp.NodeID(k)).Do(ectx)
	if err != nil {
		return nil, nodeErr(k, err)
	}
	return pairs(flat), nil
}

// SetAttribute implements dom.Document.
func (s *Session) SetAttribute(ctx context.Context, k dom.Key, name, value string) error {
	ectx, err := s.exec(ctx)
	if err != nil {
		return err
	}
	return nodeErr(k, cdpdom.SetAttributeValue(cdp.NodeID(k), name, value).Do(ectx))
}

// RemoveAttribute implements dom.Document.
func (s *Session) RemoveAttribute(ctx context.Context, k dom.Key, name string) error {
	ectx, err := s.exec(ctx)
	if err != nil {
		return err
	}
	return nodeErr(k, cdpdom.RemoveAttribute(cdp.NodeID(k), name).Do(ectx))
}

// BaseURL implements dom.Document.
func (s *Session) BaseURL(context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

// NaturalSize reports the decoded size of the image; zero until loaded.
func (s *Session) NaturalSize(ctx context.Context, k dom.Key) (int, int, error) {
	ectx, err := s.exec(ctx)
	if err != nil {
		return 0, 0, err
	}
	var wh [2]int
	if err := s.call(ectx, k, naturalSizeJS, &wh); err != nil {
		return 0, 0, err
	}
	return wh[0], wh[1], nil
}

// ParentPositioned reports whether the computed position of the parent is
// anything but static.
func (s *Session) ParentPositioned(ctx context.Context, k dom.Key) (bool, error) {
	ectx, err := s.exec(ctx)
	if err != nil {
		return false, err
	}
	var ok bool
	err = s.call(ectx, k, parentPositionedJS, &ok)
	return ok, err
}

// Mount inserts the wrapper and buttons in one page-side call and marks the
// image processed.
func (s *Session) Mount(ctx context.Context, k dom.Key, m dom.Mount) error {
	ectx, err := s.exec(ctx)
	if err != nil {
		return err
	}
	spec, err := json.Marshal(mountSpec(m))
	if err != nil {
		return err
	}
	var ok bool
	if err := s.call(ectx, k, mountJS, &ok, string(spec)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("node %d: %w", k, dom.ErrNodeGone)
	}
	return nil
}

// RenderButton writes the state attributes of a button.
func (s *Session) RenderButton(ctx context.Context, id string, v dom.ButtonView) error {
	keys, err := s.Query(ctx, "button["+dom.AttrButton+"="+strconv.Quote(id)+"]")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("button %s: %w", id, dom.ErrNodeGone)
	}
	k := keys[0]
	if err := s.SetAttribute(ctx, k, dom.AttrState, v.State); err != nil {
		return err
	}
	if v.Disabled {
		return s.SetAttribute(ctx, k, dom.AttrDisabled, "")
	}
	return s.RemoveAttribute(ctx, k, dom.AttrDisabled)
}

// call runs fn with this bound to node k.
func (s *Session) call(ctx context.Context, k dom.Key, fn string, res any, args ...any) error {
	obj, err := cdpdom.ResolveNode().WithNodeID(cdp.NodeID(k)).Do(ctx)
	if err != nil {
		return nodeErr(k, err)
	}
	defer func() {
		_ = runtime.ReleaseObject(obj.ObjectID).Do(ctx)
	}()
	err = chromedp.CallFunctionOn(fn, res, func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
		return p.WithObjectID(obj.ObjectID)
	}, args...).Do(ctx)
	return nodeErr(k, err)
}

type mountButton struct {
	ID     string `json:"id"`
	Format string `json:"format"`
	Label  string `json:"label"`
}

type mountPayload struct {
	Token   string        `json:"token"`
	Wrap    bool          `json:"wrap"`
	Buttons []mountButton `json:"buttons"`
}

func mountSpec(m dom.Mount) mountPayload {
	p := mountPayload{Token: m.Token, Wrap: m.Wrap, Buttons: make([]mountButton, 0, len(m.Buttons))}
	for _, b := range m.Buttons {
		p.Buttons = append(p.Buttons, mountButton{ID: b.ID, Format: b.Format, Label: b.Label})
	}
	return p
}

func toKeys(ids []cdp.NodeID) []dom.Key {
	keys := make([]dom.Key, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, dom.Key(id))
	}
	return keys
}

// pairs folds the flat name, value list CDP returns.
func pairs(flat []string) resolve.Attrs {
	attrs := make(resolve.Attrs, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		attrs[flat[i]] = flat[i+1]
	}
	return attrs
}

func isNodeGone(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "node with given id") ||
		strings.Contains(msg, "could not find node") ||
		strings.Contains(msg, "cannot find context with specified id")
}

func nodeErr(k dom.Key, err error) error {
	if err == nil {
		return nil
	}
	if isNodeGone(err) {
		return fmt.Errorf("node %d: %w", k, dom.ErrNodeGone)
	}
	return err
}
