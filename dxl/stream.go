package dxl

import (
	"io"
	"time"
)

// Conn performs one half-duplex transaction: it sends an instruction
// packet and collects the given number of raw status packets.
type Conn interface {
	Transact(req []byte, responses int) ([][]byte, error)
}

// StreamConn implements Conn over a byte stream such as a serial port.
// Reads on the stream are expected to return after a short timeout when no
// data is available.
type StreamConn struct {
	rw      io.ReadWriter
	timeout time.Duration
	buf     []byte
	scratch []byte
}

func NewStreamConn(rw io.ReadWriter, timeout time.Duration) *StreamConn {
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	return &StreamConn{rw: rw, timeout: timeout, scratch: make([]byte, 1024)}
}

// Transact writes req and waits up to the configured timeout for each of
// the expected responses.
func (c *StreamConn) Transact(req []byte, responses int) ([][]byte, error) {
	// Anything left over belongs to an earlier, failed transaction.
	c.buf = c.buf[:0]
	if _, err := c.rw.Write(req); err != nil {
		return nil, err
	}
	out := make([][]byte, 0, responses)
	for len(out) < responses {
		pkt, err := c.readPacket(time.Now().Add(c.timeout))
		if err != nil {
			return out, err
		}
		out = append(out, pkt)
	}
	return out, nil
}

func (c *StreamConn) readPacket(deadline time.Time) ([]byte, error) {
	for {
		skip, n, err := Frame(c.buf)
		if err != nil {
			// Resync past the bad header.
			c.buf = c.buf[skip+1:]
			continue
		}
		c.buf = c.buf[skip:]
		if n > 0 {
			pkt := append([]byte(nil), c.buf[:n]...)
			c.buf = c.buf[n:]
			return pkt, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		m, err := c.rw.Read(c.scratch)
		c.buf = append(c.buf, c.scratch[:m]...)
		if err != nil && err != io.EOF {
			return nil, err
		}
	}
}
