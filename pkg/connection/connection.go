// Package connection implements the per-peer TCP session: a frame-level
// read/write wrapper (Connection) and the demand-driven dial cache that
// hands them out keyed by peer identity (Manager).
package connection

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/cuemby/ringkv/pkg/frame"
)

// Connection is bound to a single peer. The read half is owned exclusively
// by whichever goroutine calls ReadFrame in a loop; the write half is
// serialized behind writeMu so concurrent writers never interleave frames.
type Connection struct {
	conn     net.Conn
	peerAddr string

	writeMu sync.Mutex
	closed  bool

	readBuf bytes.Buffer

	// OnFrameError, if set, is called with the mismatch reason whenever
	// parseFrame rejects bytes on the wire. Left nil by default so callers
	// that don't care about frame-level telemetry pay nothing for it.
	OnFrameError func(reason string)
}

// New wraps an already-established net.Conn.
func New(conn net.Conn) *Connection {
	return &Connection{
		conn:     conn,
		peerAddr: conn.RemoteAddr().String(),
	}
}

// PeerAddr returns the remote address this connection is bound to.
func (c *Connection) PeerAddr() string { return c.peerAddr }

// Close closes the underlying stream and marks it not open for IsOpen.
func (c *Connection) Close() error {
	c.writeMu.Lock()
	c.closed = true
	c.writeMu.Unlock()
	return c.conn.Close()
}

// IsOpen reports whether this connection is still usable. It turns false
// once Close has been called or a write has failed; Manager.Get uses it to
// decide whether a cached handle can be reused or must be redialed.
func (c *Connection) IsOpen() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return !c.closed
}

// WriteFrames writes frames in order, serialized against any concurrent
// writer, and flushes once at the end so a logical multi-frame message is
// never interleaved with another writer's frames. A write failure marks the
// connection closed so the next Manager.Get redials instead of reusing it.
func (c *Connection) WriteFrames(frames []*frame.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return fmt.Errorf("connection: write on closed connection")
	}

	for _, f := range frames {
		if _, err := c.conn.Write(f.Encode()); err != nil {
			c.closed = true
			_ = c.conn.Close()
			return fmt.Errorf("connection: write frame: %w", err)
		}
	}
	return nil
}

// ReadFrame blocks until a complete frame is available, reading more bytes
// from the stream as needed. It returns io.EOF when the peer has closed the
// connection cleanly with no partial frame pending.
func (c *Connection) ReadFrame() (*frame.Frame, error) {
	for {
		if f, ok, err := c.parseFrame(); err != nil {
			return nil, err
		} else if ok {
			return f, nil
		}

		buf := make([]byte, 4096)
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.readBuf.Write(buf[:n])
		}
		if err != nil {
			if err == io.EOF {
				if c.readBuf.Len() == 0 {
					return nil, io.EOF
				}
				return nil, fmt.Errorf("connection: reset by peer with partial frame pending")
			}
			return nil, err
		}
	}
}

// parseFrame attempts to extract one complete frame from readBuf without
// blocking on the network. A NoMagic mismatch clears the buffer entirely to
// resynchronize; an InvalidVersion or InvalidKind mismatch skips past that
// one frame using its length byte; an InvalidPayload mismatch (payload not
// fully arrived yet) leaves the buffer untouched so the next read can
// complete the frame.
func (c *Connection) parseFrame() (*frame.Frame, bool, error) {
	raw := c.readBuf.Bytes()
	check := frame.Check(raw, true)

	switch check.Result {
	case frame.ResultComplete:
		f, n, err := frame.Parse(raw)
		if err != nil {
			return nil, false, fmt.Errorf("connection: parse frame: %w", err)
		}
		c.readBuf.Next(n)
		return f, true, nil
	case frame.ResultIncomplete:
		return nil, false, nil
	default: // ResultMismatch
		if c.OnFrameError != nil {
			c.OnFrameError(check.Mismatch.String())
		}
		switch check.Mismatch {
		case frame.ReasonNoMagic:
			c.readBuf.Reset()
		case frame.ReasonInvalidVersion, frame.ReasonInvalidKind:
			// The header bits are malformed but the frame's length byte
			// still marks where it ends; skip past it so a bad version or
			// kind doesn't wedge the reader on the same bytes forever. If
			// the length byte hasn't arrived yet, wait for it instead.
			if raw := c.readBuf.Bytes(); len(raw) >= 3 {
				c.readBuf.Next(3 + int(raw[2]))
			}
		}
		return nil, false, nil
	}
}
