package rpc

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-json-experiment/json"
)

// Frame headers. Content-Length covers the JSON record plus all buffers.
// Buffer-Lengths lists each buffer size in order and is omitted when the
// message carries no buffers.
const (
	headerContentLength = "Content-Length"
	headerBufferLengths = "Buffer-Lengths"
)

// DefaultMaxFrameSize bounds a single frame.
const DefaultMaxFrameSize = 64 << 20

// EncodeFrame serializes m into a complete frame.
func EncodeFrame(m *Message) ([]byte, error) {
	body, err := json.Marshal(m, json.Deterministic(true))
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	total := len(body)
	lengths := make([]string, len(m.Buffers))
	for i, b := range m.Buffers {
		lengths[i] = strconv.Itoa(len(b))
		total += len(b)
	}

	var buf bytes.Buffer
	buf.Grow(total + 64)
	fmt.Fprintf(&buf, "%s: %d\r\n", headerContentLength, total)
	if len(m.Buffers) > 0 {
		fmt.Fprintf(&buf, "%s: %s\r\n", headerBufferLengths, strings.Join(lengths, ","))
	}
	buf.WriteString("\r\n")
	buf.Write(body)
	for _, b := range m.Buffers {
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

// ReadFrame reads one frame from r. Frames whose headers or record are
// malformed are consumed and reported as *CorruptMessageError so the caller
// can continue with the next frame.
func ReadFrame(r *bufio.Reader, maxSize int) (*Message, error) {
	var (
		contentLength = -1
		bufferLengths []int
		headerErr     error
	)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && line == "" {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read header: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			headerErr = fmt.Errorf("malformed header %q", line)
			continue
		}
		value = strings.TrimSpace(value)
		switch {
		case strings.EqualFold(name, headerContentLength):
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				headerErr = fmt.Errorf("invalid %s %q", headerContentLength, value)
				continue
			}
			contentLength = n
		case strings.EqualFold(name, headerBufferLengths):
			for _, part := range strings.Split(value, ",") {
				n, err := strconv.Atoi(strings.TrimSpace(part))
				if err != nil || n < 0 {
					headerErr = fmt.Errorf("invalid %s %q", headerBufferLengths, value)
					break
				}
				bufferLengths = append(bufferLengths, n)
			}
		}
	}

	if contentLength < 0 {
		if headerErr == nil {
			headerErr = fmt.Errorf("missing %s header", headerContentLength)
		}
		return nil, &CorruptMessageError{Err: headerErr}
	}
	if maxSize > 0 && contentLength > maxSize {
		if _, err := io.CopyN(io.Discard, r, int64(contentLength)); err != nil {
			return nil, fmt.Errorf("skip oversized frame: %w", err)
		}
		return nil, &CorruptMessageError{Err: fmt.Errorf("frame of %d bytes exceeds limit %d", contentLength, maxSize)}
	}

	payload := make([]byte, contentLength)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if headerErr != nil {
		return nil, &CorruptMessageError{Err: headerErr}
	}
	return decodeFrameBody(payload, bufferLengths)
}

// DecodeFrame decodes a complete frame held in memory, as produced by
// EncodeFrame.
func DecodeFrame(frame []byte) (*Message, error) {
	m, err := ReadFrame(bufio.NewReader(bytes.NewReader(frame)), 0)
	if errors.Is(err, io.EOF) {
		return nil, &CorruptMessageError{Err: io.ErrUnexpectedEOF}
	}
	return m, err
}

func decodeFrameBody(payload []byte, bufferLengths []int) (*Message, error) {
	bufTotal := 0
	for _, n := range bufferLengths {
		bufTotal += n
	}
	if bufTotal > len(payload) {
		return nil, &CorruptMessageError{Err: fmt.Errorf("buffers need %d bytes, frame has %d", bufTotal, len(payload))}
	}
	body := payload[:len(payload)-bufTotal]

	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, corruptFromBody(body, err)
	}
	if !m.valid() {
		return nil, &CorruptMessageError{Kind: m.Kind, ID: m.ID, Err: fmt.Errorf("incomplete %q record", m.Kind)}
	}

	if len(bufferLengths) > 0 {
		m.Buffers = make([][]byte, len(bufferLengths))
		off := len(body)
		for i, n := range bufferLengths {
			m.Buffers[i] = payload[off : off+n : off+n]
			off += n
		}
	}
	return &m, nil
}

// corruptFromBody salvages kind and id from a record that failed to decode
// so that the peer can be told which request was dropped.
func corruptFromBody(body []byte, err error) *CorruptMessageError {
	var probe struct {
		Kind Kind  `json:"kind"`
		ID   int64 `json:"id"`
	}
	_ = json.Unmarshal(body, &probe)
	return &CorruptMessageError{Kind: probe.Kind, ID: probe.ID, Err: err}
}

// StreamConn frames messages over a byte stream such as a pipe, a socket or
// a multiplexed plugin connection.
type StreamConn struct {
	reader  *bufio.Reader
	writer  io.Writer
	closer  io.Closer
	maxSize int

	wmu    sync.Mutex
	closed atomic.Bool
}

// NewStreamConn creates a StreamConn over rwc.
func NewStreamConn(rwc io.ReadWriteCloser) *StreamConn {
	return NewStreamConnSize(rwc, DefaultMaxFrameSize)
}

// NewStreamConnSize creates a StreamConn that rejects frames above maxSize.
func NewStreamConnSize(rwc io.ReadWriteCloser, maxSize int) *StreamConn {
	return &StreamConn{
		reader:  bufio.NewReaderSize(rwc, 64*1024),
		writer:  rwc,
		closer:  rwc,
		maxSize: maxSize,
	}
}

// ReadMessage reads the next message.
func (c *StreamConn) ReadMessage() (*Message, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	m, err := ReadFrame(c.reader, c.maxSize)
	if err != nil && c.closed.Load() {
		return nil, ErrClosed
	}
	return m, err
}

// WriteMessage writes m as a single frame.
func (c *StreamConn) WriteMessage(m *Message) error {
	frame, err := EncodeFrame(m)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}
	if _, err := c.writer.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close closes the underlying stream.
func (c *StreamConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.closer.Close()
}
