// Package htmldom implements dom.Document over a parsed HTML tree. It backs
// the offline hydrate command and the page-side unit tests.
package htmldom

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"snapseek/internal/dom"
	"snapseek/internal/resolve"
	"snapseek/internal/style"
)

// Document is a mutable HTML tree with stable integer keys per node.
// It is safe for concurrent use.
type Document struct {
	mu     sync.Mutex
	root   *html.Node
	base   string
	keys   map[*html.Node]dom.Key
	nodes  map[dom.Key]*html.Node
	next   dom.Key
	writes int
}

// Parse reads an HTML document. base is the document URL; a <base href>
// in the document takes precedence.
func Parse(r io.Reader, base string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldom: parse: %w", err)
	}
	d := &Document{
		root:  root,
		base:  base,
		keys:  map[*html.Node]dom.Key{},
		nodes: map[dom.Key]*html.Node{},
	}
	if href := findBaseHref(root); href != "" {
		d.base = resolve.Absolute(base, href)
	}
	return d, nil
}

// ParseString is Parse over a string.
func ParseString(s, base string) (*Document, error) {
	return Parse(strings.NewReader(s), base)
}

func findBaseHref(root *html.Node) string {
	sel, err := cascadia.Parse("base[href]")
	if err != nil {
		return ""
	}
	if n := cascadia.Query(root, sel); n != nil {
		return getAttr(n, "href")
	}
	return ""
}

// Writes counts attribute mutations, including wrapper and button
// insertions. Tests use it to check idempotence.
func (d *Document) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

// Render serializes the current tree.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// String returns the rendered document.
func (d *Document) String() string {
	var buf bytes.Buffer
	_ = d.Render(&buf)
	return buf.String()
}

func (d *Document) keyOf(n *html.Node) dom.Key {
	if k, ok := d.keys[n]; ok {
		return k
	}
	d.next++
	d.keys[n] = d.next
	d.nodes[d.next] = n
	return d.next
}

// node returns the live node for k. Nodes detached from the tree are
// forgotten so the maps never keep them reachable.
func (d *Document) node(k dom.Key) (*html.Node, error) {
	n, ok := d.nodes[k]
	if !ok {
		return nil, fmt.Errorf("node %d: %w", k, dom.ErrNodeGone)
	}
	if !d.attached(n) {
		delete(d.nodes, k)
		delete(d.keys, n)
		return nil, fmt.Errorf("node %d: %w", k, dom.ErrNodeGone)
	}
	return n, nil
}

func (d *Document) attached(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

func (d *Document) query(root *html.Node, selector string, self bool) ([]dom.Key, error) {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return nil, fmt.Errorf("htmldom: selector %q: %w", selector, err)
	}
	var out []dom.Key
	if self && root.Type == html.ElementNode && sel.Match(root) {
		out = append(out, d.keyOf(root))
	}
	for _, n := range cascadia.QueryAll(root, sel) {
		if n == root {
			continue
		}
		out = append(out, d.keyOf(n))
	}
	return out, nil
}

// Query implements dom.Document.
func (d *Document) Query(_ context.Context, selector string) ([]dom.Key, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.query(d.root, selector, false)
}

// QueryWithin implements dom.Document.
func (d *Document) QueryWithin(_ context.Context, root dom.Key, selector string) ([]dom.Key, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(root)
	if err != nil {
		return nil, err
	}
	return d.query(n, selector, true)
}

// Attributes implements dom.Document.
func (d *Document) Attributes(_ context.Context, k dom.Key) (resolve.Attrs, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(k)
	if err != nil {
		return nil, err
	}
	attrs := make(resolve.Attrs, len(n.Attr))
	for _, a := range n.Attr {
		attrs[a.Key] = a.Val
	}
	return attrs, nil
}

// SetAttribute implements dom.Document.
func (d *Document) SetAttribute(_ context.Context, k dom.Key, name, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(k)
	if err != nil {
		return err
	}
	setAttr(n, name, value)
	d.writes++
	return nil
}

// RemoveAttribute implements dom.Document.
func (d *Document) RemoveAttribute(_ context.Context, k dom.Key, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(k)
	if err != nil {
		return err
	}
	if removeAttr(n, name) {
		d.writes++
	}
	return nil
}

// BaseURL implements dom.Document.
func (d *Document) BaseURL(context.Context) string {
	return d.base
}

// NaturalSize reports the declared width and height attributes. A parsed
// document has no decoded pixels, so undeclared sizes read as zero.
func (d *Document) NaturalSize(_ context.Context, k dom.Key) (int, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(k)
	if err != nil {
		return 0, 0, err
	}
	return atoiPx(getAttr(n, "width")), atoiPx(getAttr(n, "height")), nil
}

// ParentPositioned reports whether the parent's inline style establishes a
// containing block for absolute positioning.
func (d *Document) ParentPositioned(_ context.Context, k dom.Key) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(k)
	if err != nil {
		return false, err
	}
	if n.Parent == nil || n.Parent.Type != html.ElementNode {
		return false, nil
	}
	switch style.Property(getAttr(n.Parent, "style"), "position") {
	case "relative", "absolute", "fixed", "sticky":
		return true, nil
	}
	return false, nil
}

// Mount marks the image processed, optionally wraps it, and appends the
// buttons to the wrapper or the existing parent.
func (d *Document) Mount(_ context.Context, k dom.Key, m dom.Mount) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, err := d.node(k)
	if err != nil {
		return err
	}
	host := img.Parent
	if host == nil {
		return fmt.Errorf("node %d: %w", k, dom.ErrNodeGone)
	}
	if m.Wrap {
		display := "inline-block"
		if style.Property(getAttr(img, "style"), "display") == "block" {
			display = "block"
		}
		css := "position: relative; display: " + display + ";"
		if w := style.Property(getAttr(img, "style"), "width"); strings.HasSuffix(w, "%") {
			css += " width: " + w + ";"
		}
		wrap := &html.Node{
			Type:     html.ElementNode,
			DataAtom: atom.Span,
			Data:     "span",
			Attr: []html.Attribute{
				{Key: "class", Val: dom.WrapClass},
				{Key: dom.AttrWrap, Val: m.Token},
				{Key: "style", Val: css},
			},
		}
		host.InsertBefore(wrap, img)
		host.RemoveChild(img)
		wrap.AppendChild(img)
		host = wrap
	}
	for _, b := range m.Buttons {
		btn := &html.Node{
			Type:     html.ElementNode,
			DataAtom: atom.Button,
			Data:     "button",
			Attr: []html.Attribute{
				{Key: "type", Val: "button"},
				{Key: "class", Val: dom.ButtonClass},
				{Key: dom.AttrButton, Val: b.ID},
				{Key: dom.AttrButtonFor, Val: m.Token},
				{Key: dom.AttrFormat, Val: b.Format},
				{Key: dom.AttrState, Val: "idle"},
			},
		}
		btn.AppendChild(&html.Node{Type: html.TextNode, Data: b.Label})
		host.AppendChild(btn)
	}
	setAttr(img, dom.AttrProcessed, m.Token)
	d.writes++
	return nil
}

// RenderButton updates a button's state attributes.
func (d *Document) RenderButton(_ context.Context, id string, v dom.ButtonView) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	sel, err := cascadia.Parse("button[" + dom.AttrButton + "=" + strconv.Quote(id) + "]")
	if err != nil {
		return fmt.Errorf("htmldom: button %q: %w", id, err)
	}
	btn := cascadia.Query(d.root, sel)
	if btn == nil {
		return fmt.Errorf("button %s: %w", id, dom.ErrNodeGone)
	}
	setAttr(btn, dom.AttrState, v.State)
	if v.Disabled {
		setAttr(btn, dom.AttrDisabled, "")
	} else {
		removeAttr(btn, dom.AttrDisabled)
	}
	d.writes++
	return nil
}

// Remove detaches k from the tree.
func (d *Document) Remove(k dom.Key) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(k)
	if err != nil {
		return err
	}
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
	return nil
}

// AppendHTML parses fragment in the context of parent and appends the
// resulting nodes, returning the key of the first inserted element.
func (d *Document) AppendHTML(parent dom.Key, fragment string) (dom.Key, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.node(parent)
	if err != nil {
		return 0, err
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), p)
	if err != nil {
		return 0, fmt.Errorf("htmldom: fragment: %w", err)
	}
	var first dom.Key
	for _, n := range nodes {
		p.AppendChild(n)
		if first == 0 && n.Type == html.ElementNode {
			first = d.keyOf(n)
		}
	}
	return first, nil
}

func getAttr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, name, value string) {
	for i := range n.Attr {
		if n.Attr[i].Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(n *html.Node, name string) bool {
	for i := range n.Attr {
		if n.Attr[i].Key == name {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return true
		}
	}
	return false
}

func atoiPx(v string) int {
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
