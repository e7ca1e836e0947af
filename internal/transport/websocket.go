package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/dshills/extbridge/internal/rpc"
)

// closeGrace bounds how long Close waits to deliver the close frame.
const closeGrace = time.Second

// ErrServerClosed is returned by Accept after the server was closed.
var ErrServerClosed = errors.New("websocket server closed")

// Conn is an rpc.Conn over a WebSocket connection.
type Conn struct {
	ws *websocket.Conn

	wmu    sync.Mutex
	closed atomic.Bool
}

var _ rpc.Conn = (*Conn)(nil)

// NewConn wraps an established WebSocket. Messages larger than maxSize are
// refused; zero selects rpc.DefaultMaxFrameSize.
func NewConn(ws *websocket.Conn, maxSize int) *Conn {
	if maxSize <= 0 {
		maxSize = rpc.DefaultMaxFrameSize
	}
	ws.SetReadLimit(int64(maxSize))
	return &Conn{ws: ws}
}

// ReadMessage reads the next message. A text message is reported as a
// corrupt record so the protocol can skip it.
func (c *Conn) ReadMessage() (*rpc.Message, error) {
	typ, data, err := c.ws.ReadMessage()
	if err != nil {
		if c.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, rpc.ErrClosed
		}
		return nil, fmt.Errorf("read websocket: %w", err)
	}
	if typ != websocket.BinaryMessage {
		return nil, &rpc.CorruptMessageError{Err: fmt.Errorf("unexpected websocket message type %d", typ)}
	}
	return rpc.DecodeFrame(data)
}

// WriteMessage sends m as one binary message.
func (c *Conn) WriteMessage(m *rpc.Message) error {
	frame, err := rpc.EncodeFrame(m)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.closed.Load() {
		return rpc.ErrClosed
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("write websocket: %w", err)
	}
	return nil
}

// Close sends a normal close frame and closes the socket.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.wmu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bridge closed"),
		time.Now().Add(closeGrace))
	c.wmu.Unlock()
	return c.ws.Close()
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

// Server accepts bridge connections on one HTTP path.
type Server struct {
	log      hclog.Logger
	upgrader websocket.Upgrader
	maxSize  int

	ln    net.Listener
	srv   *http.Server
	conns chan *Conn
	done  chan struct{}
	once  sync.Once
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(l hclog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMaxMessageSize bounds incoming messages.
func WithMaxMessageSize(n int) ServerOption {
	return func(s *Server) {
		s.maxSize = n
	}
}

// Listen starts serving WebSocket upgrades for path on addr.
func Listen(addr, path string, opts ...ServerOption) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	s := &Server{
		log:   hclog.NewNullLogger(),
		ln:    ln,
		conns: make(chan *Conn),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, s.handleUpgrade)
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("websocket server stopped", "error", err)
		}
	}()
	s.log.Info("listening", "addr", ln.Addr().String(), "path", path)
	return s, nil
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn := NewConn(ws, s.maxSize)

	select {
	case s.conns <- conn:
		s.log.Debug("connection accepted", "remote", r.RemoteAddr)
	case <-s.done:
		conn.Close()
	}
}

// Accept waits for the next connection.
func (s *Server) Accept(ctx context.Context) (*Conn, error) {
	select {
	case c := <-s.conns:
		return c, nil
	case <-s.done:
		return nil, ErrServerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Close stops accepting connections. Connections already handed out by
// Accept stay open.
func (s *Server) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.srv.Close()
	})
	return err
}

// Dial connects to a bridge server at url (ws://host:port/path).
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewConn(ws, 0), nil
}
