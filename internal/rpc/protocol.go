package rpc

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"

	"github.com/dshills/extbridge/internal/promise"
)

// Protocol is one side of the bridge. It owns the connection, the table of
// locally served capabilities and the calls awaiting a reply from the peer.
type Protocol struct {
	conn                Conn
	log                 hclog.Logger
	workers             int
	corruptionThreshold int

	nextID atomic.Int64

	mu        sync.Mutex
	handlers  map[Capability]*registration
	pending   map[int64]*pendingCall
	inflight  map[int64]context.CancelFunc
	started   bool
	closed    bool
	closeErr  error
	stopAfter func() bool

	out  *outbox
	pool *executor
	ui   *executor

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	corrupt        atomic.Uint64
	droppedReplies atomic.Uint64
}

type registration struct {
	handler Handler
	ui      bool
}

type pendingCall struct {
	capability Capability
	method     string
	resolver   *promise.Resolver[Value]
}

// New creates a protocol over conn. Start must be called to begin exchanging
// messages; calls made before that are queued.
func New(conn Conn, opts ...Option) *Protocol {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Protocol{
		conn:                conn,
		log:                 hclog.NewNullLogger(),
		workers:             DefaultWorkers,
		corruptionThreshold: DefaultCorruptionThreshold,
		handlers:            make(map[Capability]*registration),
		pending:             make(map[int64]*pendingCall),
		inflight:            make(map[int64]context.CancelFunc),
		out:                 newOutbox(),
		ctx:                 ctx,
		cancel:              cancel,
		done:                make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	onPanic := func(key string, r any, stack []byte) {
		p.log.Error("task panicked", "capability", key, "panic", r, "stack", string(stack))
	}
	p.pool = newExecutor(p.workers, onPanic)
	p.ui = newExecutor(1, onPanic)
	return p
}

// Start begins reading and writing. The protocol closes when ctx ends.
func (p *Protocol) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.closed {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.stopAfter = context.AfterFunc(ctx, func() {
		p.shutdown(ctx.Err())
	})
	p.mu.Unlock()

	p.pool.start()
	p.ui.start()

	p.wg.Add(2)
	go p.readLoop()
	go p.writeLoop()
}

// Register serves a capability on this side of the connection.
func (p *Protocol) Register(name Capability, h Handler, opts ...RegisterOption) error {
	reg := &registration{handler: h}
	for _, opt := range opts {
		opt(reg)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.handlers[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCapability, name)
	}
	p.handlers[name] = reg
	return nil
}

// Unregister stops serving a capability. Invocations already queued still run.
func (p *Protocol) Unregister(name Capability) {
	p.mu.Lock()
	delete(p.handlers, name)
	p.mu.Unlock()
}

// Registered reports whether a capability is served locally.
func (p *Protocol) Registered(name Capability) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.handlers[name]
	return ok
}

// Remote returns a stub for a capability served by the peer.
func (p *Protocol) Remote(name Capability) *RemoteProxy {
	return &RemoteProxy{p: p, name: name}
}

// Done is closed once the protocol has shut down.
func (p *Protocol) Done() <-chan struct{} {
	return p.done
}

// Err returns the reason the protocol closed, or nil while it is open.
func (p *Protocol) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeErr
}

// Close shuts the protocol down. Pending calls are rejected with ErrClosed.
func (p *Protocol) Close() error {
	p.shutdown(nil)
	p.wg.Wait()
	return nil
}

// Stats is a snapshot of protocol counters.
type Stats struct {
	Pending        int
	Inflight       int
	Corrupt        uint64
	DroppedReplies uint64
	Panicked       uint64
}

// Stats returns current counters.
func (p *Protocol) Stats() Stats {
	p.mu.Lock()
	s := Stats{
		Pending:  len(p.pending),
		Inflight: len(p.inflight),
	}
	p.mu.Unlock()
	s.Corrupt = p.corrupt.Load()
	s.DroppedReplies = p.droppedReplies.Load()
	s.Panicked = p.pool.stats().Panicked + p.ui.stats().Panicked
	return s
}

// request sends an invocation and returns its pending result.
func (p *Protocol) request(name Capability, method string, args []any) *promise.Future[Value] {
	label := string(name) + "." + method
	f, r := promise.New[Value](promise.WithLogger(p.log), promise.WithName(label))

	env, err := wrapArgs(args)
	if err != nil {
		r.Reject(fmt.Errorf("%s: %w", label, err))
		return f
	}

	id := p.nextID.Add(1)
	p.mu.Lock()
	if p.closed {
		err := p.closeErr
		p.mu.Unlock()
		r.Reject(err)
		return f
	}
	p.pending[id] = &pendingCall{capability: name, method: method, resolver: r}
	p.mu.Unlock()

	f.OnSettle(func() {
		if f.State() != promise.StateCancelled {
			return
		}
		if p.forget(id) {
			p.send(&Message{Kind: KindCancel, ID: id})
		}
	})

	p.send(&Message{
		Kind:       KindRequest,
		ID:         id,
		Capability: name,
		Method:     method,
		Payload:    env.Data,
		Buffers:    env.Buffers,
	})
	return f
}

// notify sends an invocation that expects no reply.
func (p *Protocol) notify(name Capability, method string, args []any) error {
	env, err := wrapArgs(args)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", name, method, err)
	}
	if err := p.Err(); err != nil {
		return err
	}
	p.send(&Message{
		Kind:       KindNotify,
		Capability: name,
		Method:     method,
		Payload:    env.Data,
		Buffers:    env.Buffers,
	})
	return nil
}

func wrapArgs(args []any) (*Envelope, error) {
	if args == nil {
		args = []any{}
	}
	return Wrap(args)
}

// forget removes a pending call, reporting whether it was still pending.
func (p *Protocol) forget(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pending[id]; !ok {
		return false
	}
	delete(p.pending, id)
	return true
}

func (p *Protocol) send(m *Message) {
	if !p.out.push(m) {
		p.log.Debug("dropping outgoing message on closed connection", "kind", m.Kind, "id", m.ID)
	}
}

func (p *Protocol) readLoop() {
	defer p.wg.Done()

	for {
		m, err := p.conn.ReadMessage()
		if err != nil {
			var ce *CorruptMessageError
			if errors.As(err, &ce) {
				p.corrupted(ce)
				if ce.Kind == KindRequest && ce.ID != 0 {
					p.replyError(ce.ID, ce)
				}
				continue
			}
			p.shutdown(fmt.Errorf("read: %w", err))
			return
		}
		p.dispatch(m)
	}
}

func (p *Protocol) writeLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.out.wake:
		case <-p.done:
			return
		}
		for _, m := range p.out.take() {
			if err := p.conn.WriteMessage(m); err != nil {
				p.shutdown(fmt.Errorf("write: %w", err))
				return
			}
		}
	}
}

func (p *Protocol) dispatch(m *Message) {
	if !m.valid() {
		p.corrupted(&CorruptMessageError{Kind: m.Kind, ID: m.ID, Err: fmt.Errorf("incomplete %q record", m.Kind)})
		return
	}
	switch m.Kind {
	case KindRequest, KindNotify:
		p.handleInvocation(m)
	case KindReply, KindError:
		p.handleReply(m)
	case KindCancel:
		p.handleCancel(m)
	}
}

// checkBufferRefs rejects a payload holding a placeholder that does not
// resolve. Payloads are otherwise decoded lazily by their consumer.
func checkBufferRefs(m *Message) error {
	if !mayHoldMarkers(m.Payload) {
		return nil
	}
	var probe any
	return Unwrap(m.envelope(), &probe)
}

func (p *Protocol) handleInvocation(m *Message) {
	if err := checkBufferRefs(m); err != nil {
		ce := &CorruptMessageError{Kind: m.Kind, ID: m.ID, Err: err}
		p.corrupted(ce)
		if m.Kind == KindRequest {
			p.replyError(m.ID, ce)
		}
		return
	}

	p.mu.Lock()
	reg, ok := p.handlers[m.Capability]
	ctx := p.ctx
	if ok && m.Kind == KindRequest {
		if _, live := p.inflight[m.ID]; live {
			p.mu.Unlock()
			// The first request still owns the id, so no reply is sent.
			p.corrupted(&CorruptMessageError{Kind: m.Kind, ID: m.ID, Err: ErrDuplicateRequest})
			return
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(p.ctx)
		p.inflight[m.ID] = cancel
	}
	p.mu.Unlock()

	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownCapability, m.Capability)
		p.corrupted(&CorruptMessageError{Kind: m.Kind, ID: m.ID, Err: err})
		if m.Kind == KindRequest {
			p.replyError(m.ID, err)
		}
		return
	}

	ex := p.pool
	if reg.ui {
		ex = p.ui
	}
	if err := ex.submit(string(m.Capability), func() { p.invoke(ctx, reg, m) }); err != nil {
		p.finish(m.ID)
	}
}

func (p *Protocol) invoke(ctx context.Context, reg *registration, m *Message) {
	if m.Kind == KindNotify {
		if _, err := p.call(ctx, reg.handler, m); err != nil {
			p.log.Warn("notification failed", "capability", m.Capability, "method", m.Method, "error", err)
		}
		return
	}

	if ctx.Err() != nil {
		p.finish(m.ID)
		p.replyError(m.ID, ErrRequestCancelled)
		return
	}

	result, err := p.call(ctx, reg.handler, m)
	if err != nil {
		p.finish(m.ID)
		p.replyError(m.ID, cancelAware(ctx, err))
		return
	}

	if aw, ok := result.(Awaitable); ok {
		go p.awaitResult(ctx, m, aw)
		return
	}
	p.finish(m.ID)
	p.replyResult(m.ID, result)
}

// awaitResult replies once a deferred handler result settles. The lane of
// the capability is released before the wait starts.
func (p *Protocol) awaitResult(ctx context.Context, m *Message, aw Awaitable) {
	v, err := aw.AwaitAny(ctx)
	if err != nil && ctx.Err() != nil {
		if c, ok := aw.(interface{ Cancel() bool }); ok {
			c.Cancel()
		}
	}
	p.finish(m.ID)
	if err != nil {
		p.replyError(m.ID, cancelAware(ctx, err))
		return
	}
	p.replyResult(m.ID, v)
}

func cancelAware(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrRequestCancelled, err)
	}
	return err
}

func (p *Protocol) call(ctx context.Context, h Handler, m *Message) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("handler panicked",
				"capability", m.Capability, "method", m.Method, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%s.%s panicked: %v", m.Capability, m.Method, r)
		}
	}()

	args, err := NewArgs(m.envelope())
	if err != nil {
		return nil, err
	}
	return h.Invoke(ctx, m.Method, args)
}

// finish releases the context of an inbound request.
func (p *Protocol) finish(id int64) {
	p.mu.Lock()
	cancel, ok := p.inflight[id]
	delete(p.inflight, id)
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

func (p *Protocol) replyResult(id int64, v any) {
	var env *Envelope
	switch r := v.(type) {
	case Value:
		env = &r.Envelope
	case *Envelope:
		env = r
	default:
		var err error
		env, err = Wrap(v)
		if err != nil {
			p.replyError(id, fmt.Errorf("marshal result: %w", err))
			return
		}
	}
	p.send(&Message{Kind: KindReply, ID: id, Payload: env.Data, Buffers: env.Buffers})
}

func (p *Protocol) replyError(id int64, err error) {
	p.send(&Message{Kind: KindError, ID: id, Error: toRemoteError(err)})
}

func (p *Protocol) handleReply(m *Message) {
	p.mu.Lock()
	pc, ok := p.pending[m.ID]
	delete(p.pending, m.ID)
	p.mu.Unlock()

	if !ok {
		p.droppedReplies.Add(1)
		p.log.Warn("dropping reply without a pending call", "id", m.ID, "kind", m.Kind)
		return
	}

	if m.Kind == KindError {
		pc.resolver.Reject(m.Error)
		return
	}
	if err := checkBufferRefs(m); err != nil {
		p.corrupted(&CorruptMessageError{Kind: m.Kind, ID: m.ID, Err: err})
		pc.resolver.Reject(fmt.Errorf("%s.%s: %w", pc.capability, pc.method, err))
		return
	}
	pc.resolver.Resolve(Value{Envelope: *m.envelope()})
}

func (p *Protocol) handleCancel(m *Message) {
	p.mu.Lock()
	cancel, ok := p.inflight[m.ID]
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

func (p *Protocol) corrupted(ce *CorruptMessageError) {
	n := p.corrupt.Add(1)
	p.log.Warn("dropping corrupt message", "error", ce, "count", n)
	if p.corruptionThreshold > 0 && n > uint64(p.corruptionThreshold) {
		p.log.Error("corrupt message threshold exceeded", "count", n, "threshold", p.corruptionThreshold)
		p.shutdown(ErrTooManyCorruptMessages)
	}
}

// shutdown closes the protocol once. A nil err means a local Close.
func (p *Protocol) shutdown(err error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if err == nil {
		p.closeErr = ErrClosed
	} else {
		p.closeErr = fmt.Errorf("%w: %w", ErrClosed, err)
	}
	pending := p.pending
	p.pending = make(map[int64]*pendingCall)
	inflight := p.inflight
	p.inflight = make(map[int64]context.CancelFunc)
	stop := p.stopAfter
	closeErr := p.closeErr
	p.mu.Unlock()

	if err != nil {
		p.log.Warn("rpc connection closed", "error", err, "pending", len(pending))
	} else {
		p.log.Debug("rpc connection closed", "pending", len(pending))
	}

	if stop != nil {
		stop()
	}
	p.cancel()
	close(p.done)
	p.out.close()
	p.pool.halt()
	p.ui.halt()
	for _, cancel := range inflight {
		cancel()
	}
	for _, pc := range pending {
		pc.resolver.Reject(closeErr)
	}
	if cerr := p.conn.Close(); cerr != nil {
		p.log.Debug("close connection", "error", cerr)
	}
}

// outbox is the unbounded queue drained by the write loop. Callers never
// block on a slow peer.
type outbox struct {
	mu     sync.Mutex
	queue  []*Message
	closed bool
	wake   chan struct{}
}

func newOutbox() *outbox {
	return &outbox{wake: make(chan struct{}, 1)}
}

func (o *outbox) push(m *Message) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	o.queue = append(o.queue, m)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return true
}

func (o *outbox) take() []*Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	q := o.queue
	o.queue = nil
	return q
}

func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.queue = nil
	o.mu.Unlock()
}
