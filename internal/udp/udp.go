// Package udp carries controller commands and telemetry as one text
// message per datagram.
package udp

import (
	"errors"
	"fmt"
	"io"
	"net"
)

// maxDatagram bounds inbound messages. Commands are a few dozen bytes.
const maxDatagram = 1024

// Channel receives commands on a local address and sends telemetry to the
// controller's address.
type Channel struct {
	in     *net.UDPConn
	target *net.UDPAddr
	buf    []byte
}

func Open(listen, target string) (*Channel, error) {
	laddr, err := net.ResolveUDPAddr("udp", listen)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", listen, err)
	}
	taddr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", target, err)
	}
	in, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	return &Channel{in: in, target: taddr, buf: make([]byte, maxDatagram)}, nil
}

// LocalAddr is the bound command address.
func (c *Channel) LocalAddr() net.Addr {
	return c.in.LocalAddr()
}

// Receive blocks for the next datagram. It returns io.EOF after Close.
func (c *Channel) Receive() (string, error) {
	n, _, err := c.in.ReadFromUDP(c.buf)
	if errors.Is(err, net.ErrClosed) {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	return string(c.buf[:n]), nil
}

// Send writes msg to the target address from the command socket.
func (c *Channel) Send(msg string) error {
	_, err := c.in.WriteToUDP([]byte(msg), c.target)
	return err
}

func (c *Channel) Close() error {
	return c.in.Close()
}
