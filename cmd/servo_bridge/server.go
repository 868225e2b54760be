package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/w1xm/servo_bridge/actuator"
	"github.com/w1xm/servo_bridge/router"
	"github.com/w1xm/servo_bridge/telemetry"
)

type Server struct {
	ctx context.Context
	dst router.Submitter
	pub *telemetry.Publisher
}

// NewServer serves status from pub and submits websocket commands to dst.
// Websocket sessions end when ctx is canceled.
func NewServer(ctx context.Context, dst router.Submitter, pub *telemetry.Publisher) *Server {
	return &Server{ctx: ctx, dst: dst, pub: pub}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(s.pub.Latest())
	if err != nil {
		log.Print(err)
		return
	}
	w.Write(data)
}

type Command struct {
	Command  string  `json:"command"`
	Index    int     `json:"index"`
	ID       uint8   `json:"id"`
	Position float64 `json:"position"`
	Torque   float64 `json:"torque"`
	Value    uint8   `json:"value"`
}

func (c Command) decode() (actuator.Command, error) {
	switch c.Command {
	case "position":
		return actuator.Command{Kind: actuator.KindPosition, Index: c.Index, Position: c.Position, Torque: c.Torque}, nil
	case "current":
		return actuator.Command{Kind: actuator.KindCurrent, Index: c.Index, Torque: c.Torque}, nil
	case "torque_enable":
		return actuator.Command{Kind: actuator.KindTorqueEnable, ID: c.ID, Value: c.Value}, nil
	case "mode":
		return actuator.Command{Kind: actuator.KindMode, ID: c.ID, Value: c.Value}, nil
	}
	return actuator.Command{}, fmt.Errorf("%w: %q", router.ErrInvalidCommand, c.Command)
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	defer conn.Close()

	// Read and process incoming messages
	go func() {
		defer cancel()
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			cmd, err := msg.decode()
			if err == nil {
				err = s.dst.Submit(cmd)
			}
			if err != nil {
				log.Printf("%v: dropping %+v: %v", conn.RemoteAddr(), msg, err)
			}
		}
	}()

	send := func(status telemetry.Status) error {
		data, err := json.Marshal(status)
		if err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	updates, unsubscribe := s.pub.Subscribe()
	defer unsubscribe()
	if err := send(s.pub.Latest()); err != nil {
		log.Print(err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		case status := <-updates:
			if err := send(status); err != nil {
				log.Print(err)
				return
			}
		}
	}
}
