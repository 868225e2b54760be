package router

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"

	"github.com/w1xm/servo_bridge/actuator"
)

// Console reply codes.
const (
	rprtOK      = 0
	rprtIO      = -5
	rprtInvalid = -22
)

type statser interface {
	Stats() actuator.Stats
}

// ListenConsole accepts console sessions on addr until ctx is canceled.
func (r *Router) ListenConsole(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		log.Print("shutdown; closing console socket")
		ln.Close()
	}()
	go func() {
		for ctx.Err() == nil {
			conn, err := ln.Accept()
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if err != nil {
				log.Printf("failed to accept: %v", err)
				continue
			}
			go func() {
				defer conn.Close()
				log.Printf("accepted connection from %v", conn.RemoteAddr())
				r.ServeConsole(conn, conn.RemoteAddr().String())
			}()
		}
	}()
	return nil
}

// ServeConsole reads one command per line from rw and answers each with
// an RPRT line. "stats" prints the scheduler counters; "q" or "quit" ends
// the session.
func (r *Router) ServeConsole(rw io.ReadWriter, name string) {
	scanner := bufio.NewScanner(rw)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		log.Printf("%v command: %q", name, line)
		rprt := rprtOK
		switch line {
		case "q", "quit":
			return
		case "stats":
			st, ok := r.dst.(statser)
			if !ok {
				rprt = rprtInvalid
				break
			}
			s := st.Stats()
			fmt.Fprintf(rw, "Cycles: %d\nWrite errors: %d\nRead errors: %d\nDropped: %d\n",
				s.Cycles, s.WriteErrors, s.ReadErrors, s.Dropped)
		default:
			if err := r.Handle(line); err != nil {
				log.Printf("%v: %v", name, err)
				rprt = rprtInvalid
				if errors.Is(err, actuator.ErrQueueFull) {
					rprt = rprtIO
				}
			}
		}
		fmt.Fprintf(rw, "RPRT %d\n", rprt)
	}
	if err := scanner.Err(); err != nil {
		log.Printf("reading from %v: %v", name, err)
	}
}
