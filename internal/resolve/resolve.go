// Package resolve picks the authoritative source URL for an <img> element
// from a snapshot of its attributes. It has no side effects.
package resolve

import (
	"errors"
	"net/url"
	"strings"
)

// Attribute names read by the resolver.
const (
	AttrSrc         = "src"
	AttrSrcset      = "srcset"
	AttrDataSrc     = "data-src"
	AttrDataLazySrc = "data-lazy-src"
	AttrDataOrig    = "data-original"
	AttrForcedSrc   = "data-forced-src"
	// AttrForcedHint records the deferred hint present when the forced
	// source was committed, so a page swapping in a new hint is noticed.
	AttrForcedHint = "data-forced-hint"
)

// deferredAttrs lists lazy-load source hints in priority order.
var deferredAttrs = []string{AttrDataSrc, AttrDataLazySrc, AttrDataOrig}

// ErrNoSource is returned when an element carries no usable source at all.
var ErrNoSource = errors.New("resolve: no usable image source")

// Source names the attribute a decision came from.
type Source string

const (
	FromSrcset   Source = "srcset"
	FromForced   Source = "forced"
	FromDeferred Source = "deferred"
	FromSrc      Source = "src"
)

// Attrs is a read-only view of an element's attributes.
type Attrs map[string]string

// Get returns the trimmed attribute value.
func (a Attrs) Get(name string) string {
	if a == nil {
		return ""
	}
	return strings.TrimSpace(a[name])
}

// Has reports whether the attribute is present, even if empty.
func (a Attrs) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Decision is the outcome of Resolve.
type Decision struct {
	URL     string
	Source  Source
	Changed bool
}

// Candidate is one entry of a srcset list.
type Candidate struct {
	URL        string
	Descriptor string
}

// ParseSrcset splits a srcset value into candidates. Entries with an empty
// URL token are dropped; descriptors are kept verbatim.
func ParseSrcset(srcset string) []Candidate {
	s := strings.TrimSpace(srcset)
	if s == "" {
		return nil
	}
	var out []Candidate
	for _, part := range strings.Split(s, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		c := Candidate{URL: fields[0]}
		if len(fields) > 1 {
			c.Descriptor = strings.Join(fields[1:], " ")
		}
		out = append(out, c)
	}
	return out
}

// BestCandidate returns the URL of the last listed srcset candidate.
// Sites conventionally list candidates in ascending resolution.
func BestCandidate(srcset string) string {
	cands := ParseSrcset(srcset)
	if len(cands) == 0 {
		return ""
	}
	return cands[len(cands)-1].URL
}

// Deferred returns the highest priority lazy-load hint, or "".
func Deferred(attrs Attrs) string {
	for _, name := range deferredAttrs {
		if v := attrs.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// Resolve maps attributes to the single URL that should be displayed.
// base is the document URL used to absolutize relative candidates; it may be
// empty. The order is srcset, deferred hints, then src. Once a source is
// committed, the marker stands in for an unchanged deferred hint and for src;
// a hint that differs from the one recorded at commit time wins.
func Resolve(attrs Attrs, base string) (Decision, error) {
	cur := attrs.Get(AttrSrc)
	pick := func(raw string, from Source) Decision {
		abs := Absolute(base, raw)
		return Decision{URL: abs, Source: from, Changed: abs != Absolute(base, cur)}
	}
	if best := BestCandidate(attrs.Get(AttrSrcset)); best != "" {
		return pick(best, FromSrcset), nil
	}
	forced := attrs.Get(AttrForcedSrc)
	if hint := Deferred(attrs); hint != "" && (forced == "" || hint != attrs.Get(AttrForcedHint)) {
		return pick(hint, FromDeferred), nil
	}
	if forced != "" {
		return pick(forced, FromForced), nil
	}
	if cur != "" {
		return Decision{URL: cur, Source: FromSrc}, nil
	}
	return Decision{}, ErrNoSource
}

// ClickTarget resolves the URL to download at click time: the best srcset
// candidate when one is still present, otherwise the current src.
func ClickTarget(attrs Attrs, base string) (string, error) {
	if best := BestCandidate(attrs.Get(AttrSrcset)); best != "" {
		return Absolute(base, best), nil
	}
	if src := attrs.Get(AttrSrc); src != "" {
		return Absolute(base, src), nil
	}
	return "", ErrNoSource
}

// Absolute resolves ref against base. Unparseable input is returned as is.
func Absolute(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || base == "" || strings.HasPrefix(ref, "data:") {
		return ref
	}
	bu, err := url.Parse(base)
	if err != nil {
		return ref
	}
	ru, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if ru.IsAbs() {
		return ru.String()
	}
	return bu.ResolveReference(ru).String()
}
