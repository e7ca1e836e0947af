package mainthread

import (
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/dshills/extbridge/internal/event"
	"github.com/dshills/extbridge/internal/protocol"
	"github.com/dshills/extbridge/internal/rpc"
)

// Webview is the content state of one webview.
type Webview struct {
	Handle           protocol.WebviewHandle
	Extension        protocol.WebviewExtension
	HTML             string
	Options          protocol.WebviewContentOptions
	SerializeBuffers bool
}

type webviewRecord struct {
	mu          sync.Mutex
	view        Webview
	disposed    bool
	cspReported bool
}

// Webviews tracks the content of every live webview, whether it belongs to a
// panel or to a custom editor. Webviews are added and removed by their owner.
type Webviews struct {
	log    hclog.Logger
	events *event.Bus
	peer   WebviewPeer

	mu    sync.RWMutex
	views map[protocol.WebviewHandle]*webviewRecord
}

// NewWebviews creates an empty webview table.
func NewWebviews(peer WebviewPeer, bus *event.Bus, log hclog.Logger) *Webviews {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if bus == nil {
		bus = event.NewBus(log)
	}
	return &Webviews{
		log:    log.Named("webviews"),
		events: bus,
		peer:   peer,
		views:  make(map[protocol.WebviewHandle]*webviewRecord),
	}
}

func (w *Webviews) add(v Webview) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.views[v.Handle]; ok {
		return handleErr("create", "webview", string(v.Handle), ErrDuplicateHandle)
	}
	w.views[v.Handle] = &webviewRecord{view: v}
	return nil
}

func (w *Webviews) remove(handle protocol.WebviewHandle) {
	w.mu.Lock()
	rec, ok := w.views[handle]
	delete(w.views, handle)
	w.mu.Unlock()
	if ok {
		rec.mu.Lock()
		rec.disposed = true
		rec.mu.Unlock()
	}
}

// with runs fn on the live record for handle under its lock.
func (w *Webviews) with(op string, handle protocol.WebviewHandle, fn func(*webviewRecord)) error {
	w.mu.RLock()
	rec, ok := w.views[handle]
	w.mu.RUnlock()
	if ok {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		if !rec.disposed {
			fn(rec)
			return nil
		}
	}
	w.log.Warn("ignoring operation on unknown webview", "op", op, "handle", handle)
	return handleErr(op, "webview", string(handle), ErrUnknownHandle)
}

// SetHTML replaces the content of a webview. Content without a content
// security policy is reported to the extension once per webview.
func (w *Webviews) SetHTML(handle protocol.WebviewHandle, html string) error {
	var (
		opts      protocol.WebviewContentOptions
		reportCsp bool
		extID     string
	)
	err := w.with("setHtml", handle, func(rec *webviewRecord) {
		rec.view.HTML = html
		opts = rec.view.Options
		extID = rec.view.Extension.ID
		if !rec.cspReported && !hasCSP(html) {
			rec.cspReported = true
			reportCsp = true
		}
	})
	if err != nil {
		return err
	}
	w.events.WebviewContentChanged.Publish(event.WebviewContentChanged{Handle: handle, HTML: html, Options: opts})
	if reportCsp && w.peer != nil {
		if err := w.peer.OnMissingCsp(handle, extID); err != nil {
			w.log.Debug("missing csp not reported", "handle", handle, "error", err)
		}
	}
	return nil
}

func hasCSP(html string) bool {
	return strings.Contains(strings.ToLower(html), "content-security-policy")
}

// SetOptions replaces the content options of a webview.
func (w *Webviews) SetOptions(handle protocol.WebviewHandle, opts protocol.WebviewContentOptions) error {
	var html string
	err := w.with("setOptions", handle, func(rec *webviewRecord) {
		rec.view.Options = opts
		html = rec.view.HTML
	})
	if err != nil {
		return err
	}
	w.events.WebviewContentChanged.Publish(event.WebviewContentChanged{Handle: handle, HTML: html, Options: opts})
	return nil
}

// PostMessage delivers a message from the extension to webview content. It
// reports whether anything in the host received it.
func (w *Webviews) PostMessage(handle protocol.WebviewHandle, message string, buffers []rpc.Buffer) (bool, error) {
	if err := w.with("postMessage", handle, func(*webviewRecord) {}); err != nil {
		return false, err
	}
	raw := make([][]byte, len(buffers))
	for i, b := range buffers {
		raw[i] = b
	}
	n := w.events.WebviewMessage.Publish(event.WebviewMessage{Handle: handle, Message: message, Buffers: raw})
	return n > 0, nil
}

// DeliverMessage forwards a message posted by webview content to the
// extension.
func (w *Webviews) DeliverMessage(handle protocol.WebviewHandle, message string, buffers ...rpc.Buffer) error {
	if err := w.with("deliverMessage", handle, func(*webviewRecord) {}); err != nil {
		return err
	}
	if buffers == nil {
		buffers = []rpc.Buffer{}
	}
	return w.peer.OnMessage(handle, message, buffers)
}

// Get returns a copy of the webview state.
func (w *Webviews) Get(handle protocol.WebviewHandle) (Webview, bool) {
	w.mu.RLock()
	rec, ok := w.views[handle]
	w.mu.RUnlock()
	if !ok {
		return Webview{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.view, !rec.disposed
}

// Count returns the number of live webviews.
func (w *Webviews) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.views)
}
