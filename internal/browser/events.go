package browser

import (
	"github.com/chromedp/cdproto/cdp"
	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"snapseek/internal/dom"
	"snapseek/internal/surveil"
)

// translate maps a CDP DOM event to a watcher event.
func translate(ev any) (surveil.Event, bool) {
	switch e := ev.(type) {
	case *cdpdom.EventAttributeModified:
		return surveil.Event{Kind: surveil.AttrChanged, Key: dom.Key(e.NodeID), Name: e.Name}, true
	case *cdpdom.EventAttributeRemoved:
		return surveil.Event{Kind: surveil.AttrChanged, Key: dom.Key(e.NodeID), Name: e.Name}, true
	case *cdpdom.EventChildNodeInserted:
		if e.Node == nil || e.Node.NodeType != cdp.NodeTypeElement {
			return surveil.Event{}, false
		}
		return surveil.Event{Kind: surveil.Inserted, Key: dom.Key(e.Node.NodeID)}, true
	case *cdpdom.EventChildNodeRemoved:
		return surveil.Event{Kind: surveil.Removed, Key: dom.Key(e.NodeID)}, true
	case *cdpdom.EventDocumentUpdated:
		return surveil.Event{Kind: surveil.Reset}, true
	}
	return surveil.Event{}, false
}

// click is a binding call from the shim.
type click struct {
	ctxID   int64
	payload string
}

// bindingCall extracts a shim click from a CDP runtime event.
func bindingCall(ev any) (click, bool) {
	e, ok := ev.(*runtime.EventBindingCalled)
	if !ok || e.Name != BindingName || e.Payload == "" {
		return click{}, false
	}
	return click{ctxID: int64(e.ExecutionContextID), payload: e.Payload}, true
}

// listen forwards tab events to the channels. The CDP listener must never
// block, so ordinary events are dropped when the watcher lags; the sweep
// repairs anything missed. Resets are always delivered.
func (s *Session) listen(events chan<- surveil.Event, clicks chan<- click, destroyed func(int64)) {
	listen := func(ev any) {
		if e, ok := translate(ev); ok {
			if e.Kind == surveil.Reset {
				s.invalidate()
				go func() {
					select {
					case events <- e:
					case <-s.tab.Done():
					}
				}()
				return
			}
			select {
			case events <- e:
			default:
				if s.debug {
					s.logger.Printf("CDP dropped %s event for node %d", e.Kind, e.Key)
				}
			}
			return
		}
		if c, ok := bindingCall(ev); ok {
			select {
			case clicks <- c:
			default:
				s.logger.Printf("CDP click queue full, dropped")
			}
			return
		}
		if e, ok := ev.(*runtime.EventExecutionContextDestroyed); ok && destroyed != nil {
			destroyed(int64(e.ExecutionContextID))
		}
	}
	chromedp.ListenTarget(s.tab, listen)
}
