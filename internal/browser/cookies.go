package browser

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/network"
)

// CookiesFor returns the tab's cookies that apply to u, so image requests
// made outside the browser carry the user's session.
func (s *Session) CookiesFor(ctx context.Context, u *url.URL) ([]*http.Cookie, error) {
	ectx, err := s.exec(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := network.GetCookies().WithURLs([]string{u.String()}).Do(ectx)
	if err != nil {
		return nil, err
	}
	out := make([]*http.Cookie, 0, len(raw))
	for _, c := range raw {
		if hc := cookieFromNetwork(c); hc != nil {
			out = append(out, hc)
		}
	}
	return out, nil
}

func cookieFromNetwork(c *network.Cookie) *http.Cookie {
	if c == nil {
		return nil
	}
	hc := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
	}
	if !c.Session && c.Expires > 0 {
		sec, frac := math.Modf(c.Expires)
		hc.Expires = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	switch c.SameSite {
	case network.CookieSameSiteLax:
		hc.SameSite = http.SameSiteLaxMode
	case network.CookieSameSiteStrict:
		hc.SameSite = http.SameSiteStrictMode
	case network.CookieSameSiteNone:
		hc.SameSite = http.SameSiteNoneMode
	}
	return hc
}
