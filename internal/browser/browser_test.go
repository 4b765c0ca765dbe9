package browser

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapseek/internal/config"
	"snapseek/internal/dom"
	"snapseek/internal/surveil"
)

func TestTranslate(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want surveil.Event
		ok   bool
	}{
		{"modified", &cdpdom.EventAttributeModified{NodeID: 7, Name: "src", Value: "a.png"}, surveil.Event{Kind: surveil.AttrChanged, Key: 7, Name: "src"}, true},
		{"removed attr", &cdpdom.EventAttributeRemoved{NodeID: 7, Name: "srcset"}, surveil.Event{Kind: surveil.AttrChanged, Key: 7, Name: "srcset"}, true},
		{"inserted", &cdpdom.EventChildNodeInserted{ParentNodeID: 1, Node: &cdp.Node{NodeID: 9, NodeType: cdp.NodeTypeElement}}, surveil.Event{Kind: surveil.Inserted, Key: 9}, true},
		{"inserted text", &cdpdom.EventChildNodeInserted{ParentNodeID: 1, Node: &cdp.Node{NodeID: 10, NodeType: cdp.NodeTypeText}}, surveil.Event{}, false},
		{"inserted comment", &cdpdom.EventChildNodeInserted{ParentNodeID: 1, Node: &cdp.Node{NodeID: 11, NodeType: cdp.NodeTypeComment}}, surveil.Event{}, false},
		{"inserted without node", &cdpdom.EventChildNodeInserted{ParentNodeID: 1}, surveil.Event{}, false},
		{"removed node", &cdpdom.EventChildNodeRemoved{ParentNodeID: 1, NodeID: 9}, surveil.Event{Kind: surveil.Removed, Key: 9}, true},
		{"document", &cdpdom.EventDocumentUpdated{}, surveil.Event{Kind: surveil.Reset}, true},
		{"unrelated", &runtime.EventBindingCalled{Name: BindingName}, surveil.Event{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := translate(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBindingCall(t *testing.T) {
	c, ok := bindingCall(&runtime.EventBindingCalled{Name: BindingName, Payload: `{"seq":1}`, ExecutionContextID: 3})
	require.True(t, ok)
	assert.Equal(t, click{ctxID: 3, payload: `{"seq":1}`}, c)

	_, ok = bindingCall(&runtime.EventBindingCalled{Name: "other", Payload: "x"})
	assert.False(t, ok)
	_, ok = bindingCall(&runtime.EventBindingCalled{Name: BindingName})
	assert.False(t, ok)
}

func TestPairs(t *testing.T) {
	attrs := pairs([]string{"src", "a.png", "data-src", "b.png", "dangling"})
	assert.Equal(t, "a.png", attrs["src"])
	assert.Equal(t, "b.png", attrs["data-src"])
	assert.Len(t, attrs, 2)
}

func TestNodeErr(t *testing.T) {
	assert.NoError(t, nodeErr(1, nil))
	err := nodeErr(4, errors.New("Could not find node with given id (-32000)"))
	assert.ErrorIs(t, err, dom.ErrNodeGone)
	other := errors.New("websocket closed")
	assert.Equal(t, other, nodeErr(4, other))
}

func TestCookieFromNetwork(t *testing.T) {
	assert.Nil(t, cookieFromNetwork(nil))
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	hc := cookieFromNetwork(&network.Cookie{
		Name:     "sid",
		Value:    "abc",
		Domain:   ".pics.example",
		Path:     "/",
		Expires:  float64(exp.Unix()),
		HTTPOnly: true,
		Secure:   true,
		SameSite: network.CookieSameSiteLax,
	})
	require.NotNil(t, hc)
	assert.Equal(t, "sid", hc.Name)
	assert.Equal(t, exp, hc.Expires)
	assert.Equal(t, http.SameSiteLaxMode, hc.SameSite)
	assert.True(t, hc.HttpOnly)

	session := cookieFromNetwork(&network.Cookie{Name: "s", Session: true, Expires: -1})
	assert.True(t, session.Expires.IsZero())
}

func TestShimCarriesSessionConfig(t *testing.T) {
	js := Shim("nonce-1")
	assert.NotContains(t, js, "__SNAPSEEK_CONFIG__")
	assert.Contains(t, js, `"binding":"`+BindingName+`"`)
	assert.Contains(t, js, `"nonce":"nonce-1"`)
	assert.Contains(t, js, "button[data-snapseek-button]")
	assert.Contains(t, js, "visibility: visible !important")
}

func TestMountScriptUsesOverlayAttributes(t *testing.T) {
	for _, attr := range []string{dom.AttrButton, dom.AttrButtonFor, dom.AttrFormat, dom.AttrState, dom.AttrWrap, dom.AttrProcessed, dom.ButtonClass, dom.WrapClass} {
		assert.True(t, strings.Contains(mountJS, attr), attr)
	}
	p := mountSpec(dom.Mount{Token: "t", Wrap: true, Buttons: []dom.ButtonSpec{{ID: "b", Format: "png", Label: "PNG"}}})
	assert.Equal(t, mountPayload{Token: "t", Wrap: true, Buttons: []mountButton{{ID: "b", Format: "png", Label: "PNG"}}}, p)
}

func TestExecOptions(t *testing.T) {
	base := len(execOptions(config.Browser{}))
	full := execOptions(config.Browser{ExecPath: "/usr/bin/chromium", UserDataDir: "/tmp/p", UserAgent: "ua", Width: 800, Height: 600})
	assert.Equal(t, base+4, len(full))
}

func TestRootNodeFetchesOncePerReset(t *testing.T) {
	var calls atomic.Int32
	s := &Session{fetchDoc: func(context.Context) (*cdp.Node, error) {
		n := calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return &cdp.Node{NodeID: cdp.NodeID(n), DocumentURL: "https://pins.example/"}, nil
	}}
	ctx := context.Background()

	var wg sync.WaitGroup
	roots := make([]cdp.NodeID, 8)
	for i := range roots {
		wg.Add(1)
		go func() {
			defer wg.Done()
			root, err := s.rootNode(ctx)
			assert.NoError(t, err)
			roots[i] = root
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, calls.Load())
	for _, r := range roots {
		assert.Equal(t, cdp.NodeID(1), r)
	}
	assert.Equal(t, "https://pins.example/", s.BaseURL(ctx))

	s.invalidate()
	root, err := s.rootNode(ctx)
	require.NoError(t, err)
	assert.Equal(t, cdp.NodeID(2), root)
	assert.EqualValues(t, 2, calls.Load())
}

func TestRootNodeDropsFetchRacingReset(t *testing.T) {
	var s *Session
	s = &Session{fetchDoc: func(context.Context) (*cdp.Node, error) {
		s.invalidate()
		return &cdp.Node{NodeID: 5}, nil
	}}
	root, err := s.rootNode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cdp.NodeID(5), root)
	cached, _ := s.cachedRoot()
	assert.Zero(t, cached)
}
