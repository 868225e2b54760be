package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/w1xm/servo_bridge/actuator"
	"github.com/w1xm/servo_bridge/telemetry"
)

type submitter chan actuator.Command

func (s submitter) Submit(cmd actuator.Command) error {
	s <- cmd
	return nil
}

func TestCommandDecode(t *testing.T) {
	for _, test := range []struct {
		json string
		want actuator.Command
	}{
		{`{"command":"position","index":2,"position":10,"torque":0.2}`, actuator.Command{Kind: actuator.KindPosition, Index: 2, Position: 10, Torque: 0.2}},
		{`{"command":"current","index":1,"torque":-0.1}`, actuator.Command{Kind: actuator.KindCurrent, Index: 1, Torque: -0.1}},
		{`{"command":"torque_enable","id":7,"value":1}`, actuator.Command{Kind: actuator.KindTorqueEnable, ID: 7, Value: 1}},
		{`{"command":"mode","id":3,"value":16}`, actuator.Command{Kind: actuator.KindMode, ID: 3, Value: 16}},
	} {
		var c Command
		if err := json.Unmarshal([]byte(test.json), &c); err != nil {
			t.Fatal(err)
		}
		got, err := c.decode()
		if err != nil {
			t.Errorf("decode(%s): %v", test.json, err)
			continue
		}
		if diff := cmp.Diff(got, test.want); diff != "" {
			t.Errorf("decode(%s): got(-)/want(+):\n%s", test.json, diff)
		}
	}
	if _, err := (Command{Command: "stop"}).decode(); err == nil {
		t.Error("decode accepted an unknown command")
	}
}

func testServer(t *testing.T, ctx context.Context) (*httptest.Server, submitter, *telemetry.Publisher) {
	t.Helper()
	sub := make(submitter, 1)
	pub := telemetry.NewPublisher()
	s := NewServer(ctx, sub, pub)
	r := mux.NewRouter()
	r.Handle("/api/status", http.HandlerFunc(s.StatusHandler))
	r.Handle("/api/ws", http.HandlerFunc(s.StatusSocketHandler))
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, sub, pub
}

func frame(cycles uint64) actuator.Frame {
	return actuator.Frame{
		Devices: []actuator.DeviceState{{Index: 0, ID: 1, Present: actuator.Present{Position: 1.5}}},
		Stats:   actuator.Stats{Cycles: cycles},
	}
}

func TestStatusHandler(t *testing.T) {
	ts, _, pub := testServer(t, context.Background())
	pub.Publish(frame(9))

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got telemetry.Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got, pub.Latest()); diff != "" {
		t.Errorf("status: got(-)/want(+):\n%s", diff)
	}
}

func TestStatusSocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ts, sub, pub := testServer(t, ctx)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var status telemetry.Status
	if err := conn.ReadJSON(&status); err != nil {
		t.Fatalf("reading initial status: %v", err)
	}

	if err := conn.WriteJSON(Command{Command: "torque_enable", ID: 4, Value: 1}); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-sub:
		want := actuator.Command{Kind: actuator.KindTorqueEnable, ID: 4, Value: 1}
		if diff := cmp.Diff(got, want); diff != "" {
			t.Errorf("submitted: got(-)/want(+):\n%s", diff)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("command not submitted")
	}

	// The handler subscribed before sending the initial status, so this
	// frame is delivered.
	pub.Publish(frame(5))
	if err := conn.ReadJSON(&status); err != nil {
		t.Fatalf("reading status: %v", err)
	}
	if status.Stats.Cycles != 5 || len(status.Devices) != 1 {
		t.Errorf("status = %+v, want 1 device after 5 cycles", status)
	}
}
