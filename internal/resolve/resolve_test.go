package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		attrs   Attrs
		base    string
		want    string
		from    Source
		changed bool
	}{
		{"srcset last wins", Attrs{"src": "a.jpg", "srcset": "a.jpg 1x, b.jpg 2x, c.jpg 3x"}, "", "c.jpg", FromSrcset, true},
		{"data-src", Attrs{"data-src": "x.png"}, "", "x.png", FromDeferred, true},
		{"data-lazy-src", Attrs{"src": "blank.gif", "data-lazy-src": "y.png"}, "", "y.png", FromDeferred, true},
		{"existing src", Attrs{"src": "z.png"}, "", "z.png", FromSrc, false},
		{"forced marker beats recorded hint", Attrs{"src": "f.png", "data-forced-src": "f.png", "data-src": "low.png", "data-forced-hint": "low.png"}, "", "f.png", FromForced, false},
		{"swapped hint beats forced marker", Attrs{"src": "old.png", "data-forced-src": "old.png", "data-src": "x.png", "data-forced-hint": "old.png"}, "", "x.png", FromDeferred, true},
		{"hint added after commit", Attrs{"src": "old.png", "data-forced-src": "old.png", "data-src": "x.png"}, "", "x.png", FromDeferred, true},
		{"forced marker beats src", Attrs{"src": "g.png", "data-forced-src": "f.png"}, "", "f.png", FromForced, true},
		{"srcset beats forced", Attrs{"src": "f.png", "data-forced-src": "f.png", "srcset": "g.png 2x"}, "", "g.png", FromSrcset, true},
		{"relative against base", Attrs{"src": "https://e.com/img/a.jpg", "srcset": "a.jpg 1x, big/a.jpg 2x"}, "https://e.com/img/page", "https://e.com/img/big/a.jpg", FromSrcset, true},
		{"same after absolutize", Attrs{"src": "https://e.com/a.jpg", "data-src": "/a.jpg"}, "https://e.com/p", "https://e.com/a.jpg", FromDeferred, false},
		{"malformed srcset tail", Attrs{"srcset": "a.jpg 1x, b.jpg 2x, ,"}, "", "b.jpg", FromSrcset, true},
		{"empty srcset falls through", Attrs{"srcset": " , ", "data-src": "d.png"}, "", "d.png", FromDeferred, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d, err := Resolve(tc.attrs, tc.base)
			require.NoError(t, err)
			assert.Equal(t, tc.want, d.URL)
			assert.Equal(t, tc.from, d.Source)
			assert.Equal(t, tc.changed, d.Changed)
		})
	}
}

func TestResolveNoSource(t *testing.T) {
	_, err := Resolve(Attrs{"alt": "nothing"}, "")
	require.ErrorIs(t, err, ErrNoSource)

	_, err = Resolve(nil, "https://e.com/")
	require.ErrorIs(t, err, ErrNoSource)
}

func TestResolveIsPure(t *testing.T) {
	attrs := Attrs{"src": "a.jpg", "srcset": "a.jpg 1x, b.jpg 2x"}
	first, err := Resolve(attrs, "")
	require.NoError(t, err)
	second, err := Resolve(attrs, "")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, Attrs{"src": "a.jpg", "srcset": "a.jpg 1x, b.jpg 2x"}, attrs)
}

func TestParseSrcset(t *testing.T) {
	got := ParseSrcset("small.jpg 480w,  medium.jpg 800w ,large.jpg")
	require.Len(t, got, 3)
	assert.Equal(t, Candidate{URL: "small.jpg", Descriptor: "480w"}, got[0])
	assert.Equal(t, Candidate{URL: "medium.jpg", Descriptor: "800w"}, got[1])
	assert.Equal(t, Candidate{URL: "large.jpg"}, got[2])
	assert.Nil(t, ParseSrcset("   "))
}

func TestClickTarget(t *testing.T) {
	u, err := ClickTarget(Attrs{"src": "a.jpg", "srcset": "a.jpg 1x, b.jpg 2x"}, "https://h.org/x/")
	require.NoError(t, err)
	assert.Equal(t, "https://h.org/x/b.jpg", u)

	u, err = ClickTarget(Attrs{"src": "a.jpg", "data-src": "ignored.jpg"}, "")
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", u)

	_, err = ClickTarget(Attrs{"data-src": "lazy.jpg"}, "")
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestAbsolute(t *testing.T) {
	assert.Equal(t, "data:image/png;base64,AA", Absolute("https://e.com", "data:image/png;base64,AA"))
	assert.Equal(t, "https://cdn.e.com/x.png", Absolute("https://e.com", "//cdn.e.com/x.png"))
	assert.Equal(t, "rel.png", Absolute("", "rel.png"))
}
