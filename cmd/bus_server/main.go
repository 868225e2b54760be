// Command bus_server exposes a local Dynamixel serial bus over HTTP so that
// servo_bridge can run on another host.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/w1xm/servo_bridge/dxl"
	"github.com/w1xm/servo_bridge/dxl/bushttp"
	"github.com/w1xm/servo_bridge/dxl/serialconn"
)

var (
	addr       = flag.String("addr", "127.0.0.1:8503", "address to listen on")
	password   = flag.String("password", "", "password to require on remote connections")
	serialPort = flag.String("serial", "", "serial port name")
	baud       = flag.Int("baud", 1000000, "serial baud rate")
	timeout    = flag.Duration("timeout", 100*time.Millisecond, "per-packet response timeout")
)

type Server struct {
	mu       sync.Mutex
	conn     dxl.Conn
	password string
}

func NewServer(conn dxl.Conn, password string) *Server {
	return &Server{
		conn:     conn,
		password: password,
	}
}

func (s *Server) TransactHandler(w http.ResponseWriter, r *http.Request) {
	if s.password != "" {
		_, pass, ok := r.BasicAuth()
		if !ok || pass != s.password {
			http.Error(w, "wrong password", http.StatusUnauthorized)
			return
		}
	}
	responses, err := strconv.Atoi(r.Header.Get(bushttp.ResponsesHeader))
	if err != nil || responses < 0 {
		http.Error(w, "bad "+bushttp.ResponsesHeader+" header", http.StatusBadRequest)
		return
	}
	err = func() error {
		req, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		s.mu.Lock()
		resp, err := s.conn.Transact(req, responses)
		s.mu.Unlock()
		var errString string
		if err != nil {
			errString = err.Error()
		}
		body, err := json.Marshal(&bushttp.TransactResponse{
			Responses: resp,
			Error:     errString,
		})
		if err != nil {
			return err
		}
		_, err = w.Write(body)
		return err
	}()
	if err != nil {
		log.Printf("TransactHandler: %v", err)
		http.Error(w, err.Error(), 500)
		return
	}
}

func main() {
	flag.Parse()
	port, err := serialconn.Open(*serialPort, *baud, *timeout)
	if err != nil {
		log.Fatal(err)
	}
	defer port.Close()
	server := NewServer(port, *password)
	r := mux.NewRouter()
	r.Handle("/api/transact", http.HandlerFunc(server.TransactHandler)).Methods(http.MethodPost)
	srv := &http.Server{
		Handler:      r,
		Addr:         *addr,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	log.Printf("Listening on %v", srv.Addr)
	log.Fatal(srv.ListenAndServe())
}
