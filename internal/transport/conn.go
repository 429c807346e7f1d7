// Package transport implements the framed byte-stream connection used between
// host and clients: one 4-byte big-endian length prefix per frame, followed by
// exactly that many bytes of encoded message.
package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

var (
	// ErrClosed signals end of stream: the peer closed the connection or the
	// local side shut it down. Blocked operations unblock with this error.
	ErrClosed = errors.New("transport: connection closed")
	// ErrTimeout signals that no frame arrived within the read timeout. It is
	// retryable; callers loop and check their shutdown flag.
	ErrTimeout = errors.New("transport: receive timed out")
)

const defaultMaxFrameBytes = 1 << 20

// Options tunes a connection. Zero values fall back to blocking reads with the
// default frame cap.
type Options struct {
	// ReadTimeout bounds how long Receive waits for the start of a frame.
	// Zero blocks indefinitely.
	ReadTimeout time.Duration
	// WriteTimeout bounds each Send. Zero blocks indefinitely.
	WriteTimeout time.Duration
	// MaxFrameBytes caps the announced frame length; larger prefixes poison
	// the stream and close the connection.
	MaxFrameBytes int64
}

// Conn wraps a reliable ordered byte stream with message framing. Send and
// Receive are each safe for one concurrent caller; Close may race with both.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader
	opts   Options

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConn wraps an established network connection.
func NewConn(conn net.Conn, opts Options) *Conn {
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = defaultMaxFrameBytes
	}
	return &Conn{
		conn:   conn,
		reader: bufio.NewReader(conn),
		opts:   opts,
		closed: make(chan struct{}),
	}
}

// Dial connects to a host and wraps the resulting stream.
func Dial(addr string, timeout time.Duration, opts Options) (*Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return NewConn(conn, opts), nil
}

// RemoteAddr reports the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// LocalAddr reports the local address.
func (c *Conn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// Closed reports whether Close has been called locally.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Close shuts the connection down and unblocks any parked Send or Receive.
// Idempotent.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

// SendBytes writes one complete pre-encoded frame or fails. The payload must
// already be a full encoded message.
func (c *Conn) SendBytes(encoded []byte) error {
	if int64(len(encoded)) > c.opts.MaxFrameBytes {
		return fmt.Errorf("transport: frame of %d bytes exceeds cap %d", len(encoded), c.opts.MaxFrameBytes)
	}
	frame := make([]byte, 4+len(encoded))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(encoded)))
	copy(frame[4:], encoded)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.Closed() {
		return ErrClosed
	}
	if c.opts.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	if _, err := c.conn.Write(frame); err != nil {
		return c.classify(err)
	}
	return nil
}

// ReceiveBytes blocks until one full frame is available and returns its
// payload. ErrTimeout means no frame started within the read timeout and the
// caller should retry; ErrClosed means the stream ended. A short read partway
// through a frame is never surfaced as a message.
func (c *Conn) ReceiveBytes() ([]byte, error) {
	if c.Closed() {
		return nil, ErrClosed
	}
	if c.opts.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	} else {
		_ = c.conn.SetReadDeadline(time.Time{})
	}

	// The idle timeout applies only to the first byte of the prefix: a single
	// byte read cannot leave the stream mid-frame, so a timeout here is safe
	// to retry. Once a frame has started, a stall is a broken peer.
	first, err := c.reader.ReadByte()
	if err != nil {
		return nil, c.classify(err)
	}

	if c.opts.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	}
	var header [4]byte
	header[0] = first
	if _, err := io.ReadFull(c.reader, header[1:]); err != nil {
		return nil, c.classifyMidFrame(err)
	}
	size := int64(binary.BigEndian.Uint32(header[:]))
	if size > c.opts.MaxFrameBytes {
		return nil, fmt.Errorf("transport: announced frame of %d bytes exceeds cap %d", size, c.opts.MaxFrameBytes)
	}

	payload := make([]byte, size)
	if c.opts.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	}
	if _, err := io.ReadFull(c.reader, payload); err != nil {
		return nil, c.classifyMidFrame(err)
	}
	return payload, nil
}

func (c *Conn) classify(err error) error {
	if c.Closed() || errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrClosed
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return fmt.Errorf("transport: %w", err)
}

// classifyMidFrame never reports ErrTimeout: a peer that stalls after starting
// a frame has desynchronized the stream and the connection must come down.
func (c *Conn) classifyMidFrame(err error) error {
	if mapped := c.classify(err); mapped != ErrTimeout {
		return mapped
	}
	return fmt.Errorf("transport: peer stalled mid-frame: %w", err)
}
