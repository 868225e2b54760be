package router

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/w1xm/servo_bridge/actuator"
)

// Source delivers one inbound message per call. It returns io.EOF once it
// has been closed.
type Source interface {
	Receive() (string, error)
}

// Submitter accepts decoded commands. *actuator.Scheduler implements it.
type Submitter interface {
	Submit(cmd actuator.Command) error
}

type Router struct {
	src Source
	dst Submitter
}

func New(src Source, dst Submitter) *Router {
	return &Router{src: src, dst: dst}
}

// Handle parses msg and submits the command.
func (r *Router) Handle(msg string) error {
	cmd, err := Parse(msg)
	if err != nil {
		return err
	}
	return r.dst.Submit(cmd)
}

// Run handles messages from the source until it is closed. Bad messages
// are logged and dropped.
func (r *Router) Run(ctx context.Context) error {
	for {
		msg, err := r.src.Receive()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("receiving command: %v", err)
			continue
		}
		if err := r.Handle(msg); err != nil {
			log.Printf("dropping %q: %v", msg, err)
		}
	}
}
