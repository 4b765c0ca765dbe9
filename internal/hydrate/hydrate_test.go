package hydrate

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapseek/internal/dom"
	"snapseek/internal/dom/htmldom"
)

func newEngine(t *testing.T, body string) (*Engine, *htmldom.Document, dom.Key) {
	t.Helper()
	doc, err := htmldom.ParseString("<html><body>"+body+"</body></html>", "https://example.com/gallery/")
	require.NoError(t, err)
	imgs, err := dom.Images(context.Background(), doc)
	require.NoError(t, err)
	require.NotEmpty(t, imgs)
	return New(doc, Config{Logger: log.New(io.Discard, "", 0)}), doc, imgs[0]
}

func attrs(t *testing.T, doc *htmldom.Document, k dom.Key) map[string]string {
	t.Helper()
	a, err := doc.Attributes(context.Background(), k)
	require.NoError(t, err)
	return a
}

func TestHydrateCommitsLastSrcsetCandidate(t *testing.T) {
	ctx := context.Background()
	e, doc, k := newEngine(t, `<img src="a.jpg" srcset="a.jpg 1x, b.jpg 2x, c.jpg 3x" loading="lazy" style="opacity:0">`)

	wrote, err := e.Hydrate(ctx, k)
	require.NoError(t, err)
	assert.True(t, wrote)

	got := attrs(t, doc, k)
	assert.Equal(t, "https://example.com/gallery/c.jpg", got["src"])
	assert.Equal(t, "https://example.com/gallery/c.jpg", got["data-forced-src"])
	assert.NotContains(t, got, "srcset")
	assert.Equal(t, "eager", got["loading"])
	assert.Equal(t, "sync", got["decoding"])
	assert.Equal(t, "opacity: 1 !important; visibility: visible !important;", got["style"])
}

func TestHydrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	bodies := []string{
		`<img src="a.jpg" srcset="a.jpg 1x, b.jpg 2x">`,
		`<img data-src="x.png" loading="lazy">`,
		`<img src="plain.png" style="width: 10px; visibility: hidden">`,
		`<img alt="no source">`,
		`<img srcset="https://example.com/gallery/same.png 2x" src="https://example.com/gallery/same.png">`,
	}
	for _, body := range bodies {
		e, doc, k := newEngine(t, body)
		_, err := e.Hydrate(ctx, k)
		require.NoError(t, err)
		once := attrs(t, doc, k)
		writes := doc.Writes()

		wrote, err := e.Hydrate(ctx, k)
		require.NoError(t, err)
		assert.False(t, wrote, body)
		assert.Equal(t, writes, doc.Writes(), body)
		assert.Equal(t, once, attrs(t, doc, k), body)
	}
}

func TestHydrateRecordsUnchangedSource(t *testing.T) {
	e, doc, k := newEngine(t, `<img src="z.png">`)
	_, err := e.Hydrate(context.Background(), k)
	require.NoError(t, err)
	got := attrs(t, doc, k)
	assert.Equal(t, "z.png", got["src"])
	assert.Equal(t, "z.png", got["data-forced-src"])
}

func TestGuardRevertsTampering(t *testing.T) {
	ctx := context.Background()
	e, doc, k := newEngine(t, `<img data-src="full.png" src="thumb.png">`)
	_, err := e.Hydrate(ctx, k)
	require.NoError(t, err)
	forced := attrs(t, doc, k)["data-forced-src"]

	require.NoError(t, doc.SetAttribute(ctx, k, "src", "thumb.png"))
	require.NoError(t, doc.SetAttribute(ctx, k, "srcset", "https://example.com/gallery/full.png 1x"))
	out, err := e.Guard(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, Restored, out)
	got := attrs(t, doc, k)
	assert.Equal(t, forced, got["src"])
	assert.NotContains(t, got, "srcset")

	out, err = e.Guard(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, Untouched, out)
}

func TestGuardAcceptsFreshSrcset(t *testing.T) {
	ctx := context.Background()
	e, doc, k := newEngine(t, `<img src="a.png">`)
	_, err := e.Hydrate(ctx, k)
	require.NoError(t, err)

	require.NoError(t, doc.SetAttribute(ctx, k, "srcset", "a.png 1x, huge.png 4x"))
	out, err := e.Guard(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, Rehydrated, out)
	got := attrs(t, doc, k)
	assert.Equal(t, "https://example.com/gallery/huge.png", got["src"])
	assert.Equal(t, "https://example.com/gallery/huge.png", got["data-forced-src"])
	assert.NotContains(t, got, "srcset")
}

func TestHydrateOnPollRestoresForcedSource(t *testing.T) {
	ctx := context.Background()
	e, doc, k := newEngine(t, `<img data-lazy-src="real.jpg" src="blank.gif">`)
	_, err := e.Hydrate(ctx, k)
	require.NoError(t, err)

	require.NoError(t, doc.SetAttribute(ctx, k, "src", "blank.gif"))
	wrote, err := e.Hydrate(ctx, k)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, "https://example.com/gallery/real.jpg", attrs(t, doc, k)["src"])
}

func TestGuardFollowsSwappedDeferredSource(t *testing.T) {
	ctx := context.Background()
	e, doc, k := newEngine(t, `<img data-src="one-full.jpg" src="one-thumb.jpg">`)
	_, err := e.Hydrate(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/gallery/one-full.jpg", attrs(t, doc, k)["src"])

	// The page reuses the element for another item.
	require.NoError(t, doc.SetAttribute(ctx, k, "data-src", "two-full.jpg"))
	require.NoError(t, doc.SetAttribute(ctx, k, "src", "two-thumb.jpg"))
	out, err := e.Guard(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, Rehydrated, out)
	got := attrs(t, doc, k)
	assert.Equal(t, "https://example.com/gallery/two-full.jpg", got["src"])
	assert.Equal(t, "https://example.com/gallery/two-full.jpg", got["data-forced-src"])
	assert.Equal(t, "two-full.jpg", got["data-forced-hint"])

	wrote, err := e.Hydrate(ctx, k)
	require.NoError(t, err)
	assert.False(t, wrote)
}

func TestHydrateFollowsSwapWhenSrcAlreadyMatches(t *testing.T) {
	ctx := context.Background()
	e, doc, k := newEngine(t, `<img data-src="one.jpg">`)
	_, err := e.Hydrate(ctx, k)
	require.NoError(t, err)

	require.NoError(t, doc.SetAttribute(ctx, k, "data-src", "two.jpg"))
	require.NoError(t, doc.SetAttribute(ctx, k, "src", "https://example.com/gallery/two.jpg"))
	_, err = e.Hydrate(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/gallery/two.jpg", attrs(t, doc, k)["data-forced-src"])

	out, err := e.Guard(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, Untouched, out)
	assert.Equal(t, "https://example.com/gallery/two.jpg", attrs(t, doc, k)["src"])
}

func TestHydrateKeepsSrcsetWinnerOverStaleHint(t *testing.T) {
	ctx := context.Background()
	e, doc, k := newEngine(t, `<img data-src="low.jpg" srcset="low.jpg 1x, high.jpg 2x">`)
	_, err := e.Hydrate(ctx, k)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/gallery/high.jpg", attrs(t, doc, k)["src"])

	for i := 0; i < 3; i++ {
		wrote, err := e.Hydrate(ctx, k)
		require.NoError(t, err)
		assert.False(t, wrote)
	}
	out, err := e.Guard(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, Untouched, out)
	assert.Equal(t, "https://example.com/gallery/high.jpg", attrs(t, doc, k)["src"])
}

func TestHydrateGoneNode(t *testing.T) {
	e, doc, k := newEngine(t, `<img src="a.png">`)
	require.NoError(t, doc.Remove(k))
	_, err := e.Hydrate(context.Background(), k)
	assert.ErrorIs(t, err, dom.ErrNodeGone)
}
