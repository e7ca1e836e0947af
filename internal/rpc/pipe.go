package rpc

import (
	"io"
	"sync"
)

// pipeConn is one end of an in-memory Conn pair.
type pipeConn struct {
	in  <-chan *Message
	out chan<- *Message

	// shared by both ends; closing either end closes the pair.
	done *pipeDone
}

type pipeDone struct {
	once sync.Once
	ch   chan struct{}
}

func (d *pipeDone) close() {
	d.once.Do(func() { close(d.ch) })
}

// Pipe returns two connected in-memory Conns. Messages written to one are
// read from the other in order. It is used for an in-process extension host
// and in tests.
func Pipe() (Conn, Conn) {
	ab := make(chan *Message, 256)
	ba := make(chan *Message, 256)
	done := &pipeDone{ch: make(chan struct{})}
	return &pipeConn{in: ba, out: ab, done: done}, &pipeConn{in: ab, out: ba, done: done}
}

// ReadMessage returns the next message or io.EOF once the pair is closed and
// drained.
func (c *pipeConn) ReadMessage() (*Message, error) {
	select {
	case m := <-c.in:
		return m, nil
	case <-c.done.ch:
		select {
		case m := <-c.in:
			return m, nil
		default:
			return nil, io.EOF
		}
	}
}

// WriteMessage delivers a copy of m to the peer.
func (c *pipeConn) WriteMessage(m *Message) error {
	cp := *m
	select {
	case <-c.done.ch:
		return ErrClosed
	default:
	}
	select {
	case c.out <- &cp:
		return nil
	case <-c.done.ch:
		return ErrClosed
	}
}

// Close closes both ends.
func (c *pipeConn) Close() error {
	c.done.close()
	return nil
}
