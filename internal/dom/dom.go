// Package dom defines the small view of a page that hydration, surveillance
// and the overlay work against. Two implementations exist: a live Chrome tab
// (package browser) and a parsed HTML document (package htmldom).
package dom

import (
	"context"
	"errors"

	"snapseek/internal/resolve"
)

// Key identifies a node for the lifetime of a document. Holders keep only the
// integer, never a handle to the node itself.
type Key int64

// ErrNodeGone reports that a key no longer refers to a node in the document.
var ErrNodeGone = errors.New("dom: node is gone")

// ImageSelector matches the elements hydration applies to.
const ImageSelector = "img"

// Attributes written by hydration and the overlay.
const (
	AttrLoading   = "loading"
	AttrDecoding  = "decoding"
	AttrStyle     = "style"
	AttrClass     = "class"
	AttrProcessed = "data-snapseek-processed"
)

// Document is the mutable page surface.
type Document interface {
	// Query returns every node in the document matching selector, in
	// document order.
	Query(ctx context.Context, selector string) ([]Key, error)
	// QueryWithin is Query scoped to root's subtree, root included.
	QueryWithin(ctx context.Context, root Key, selector string) ([]Key, error)
	Attributes(ctx context.Context, k Key) (resolve.Attrs, error)
	SetAttribute(ctx context.Context, k Key, name, value string) error
	RemoveAttribute(ctx context.Context, k Key, name string) error
	// BaseURL is the URL relative sources resolve against; may be empty.
	BaseURL(ctx context.Context) string
}

// Images lists every <img> in the document.
func Images(ctx context.Context, d Document) ([]Key, error) {
	return d.Query(ctx, ImageSelector)
}

// ImagesWithin lists the <img> elements in root's subtree, root included.
func ImagesWithin(ctx context.Context, d Document, root Key) ([]Key, error) {
	return d.QueryWithin(ctx, root, ImageSelector)
}

// SetIfChanged writes name=value only when the current value differs, and
// reports whether a write happened.
func SetIfChanged(ctx context.Context, d Document, k Key, attrs resolve.Attrs, name, value string) (bool, error) {
	if cur, ok := attrs[name]; ok && cur == value {
		return false, nil
	}
	if err := d.SetAttribute(ctx, k, name, value); err != nil {
		return false, err
	}
	if attrs != nil {
		attrs[name] = value
	}
	return true, nil
}

// RemoveIfPresent removes name when it exists and reports whether it did.
func RemoveIfPresent(ctx context.Context, d Document, k Key, attrs resolve.Attrs, name string) (bool, error) {
	if !attrs.Has(name) {
		return false, nil
	}
	if err := d.RemoveAttribute(ctx, k, name); err != nil {
		return false, err
	}
	delete(attrs, name)
	return true, nil
}
