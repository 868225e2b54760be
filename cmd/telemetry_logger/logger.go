// Command telemetry_logger records servo_bridge status frames in InfluxDB.
package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/influxdata/influxdb-client-go/api/write"
	"github.com/w1xm/servo_bridge/telemetry"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	// Create client
	client := influxdb2.NewClient(getenv("INFLUX_SERVER", "http://localhost:9999"), os.Getenv("INFLUX_TOKEN"))
	defer client.Close()
	// Get non-blocking write client
	writeApi := client.WriteApi(getenv("INFLUX_ORG", "w1xm"), getenv("INFLUX_BUCKET", "servo.raw"))
	defer writeApi.Close()
	// Get errors channel
	errorsCh := writeApi.Errors()
	go func() {
		for err := range errorsCh {
			log.Printf("write error: %v", err)
		}
	}()
	url := getenv("BRIDGE_ADDRESS", "ws://localhost:8502/api/ws")
	for {
		if err := logData(writeApi, url); err != nil {
			log.Print(err)
		}
		time.Sleep(1 * time.Second)
	}
}

// points converts one status frame into one point per device and one for
// the scheduler counters.
func points(status telemetry.Status) []*write.Point {
	at := status.Time
	if at.IsZero() {
		at = time.Now()
	}
	out := make([]*write.Point, 0, len(status.Devices)+1)
	for _, d := range status.Devices {
		out = append(out, influxdb2.NewPoint("servo.device",
			map[string]string{
				"index": strconv.Itoa(d.Index),
				"id":    strconv.Itoa(int(d.ID)),
			},
			map[string]interface{}{
				"position": d.Position,
				"current":  d.Current,
				"torque":   d.Torque,
			},
			at,
		))
	}
	out = append(out, influxdb2.NewPoint("servo.bus",
		nil,
		map[string]interface{}{
			"cycles":       int64(status.Stats.Cycles),
			"write_errors": int64(status.Stats.WriteErrors),
			"read_errors":  int64(status.Stats.ReadErrors),
			"dropped":      int64(status.Stats.Dropped),
		},
		at,
	))
	return out
}

func logData(writeApi api.WriteApi, url string) error {
	defer writeApi.Flush()
	var dialer websocket.Dialer
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("connected to %s", url)
	for {
		var status telemetry.Status
		if err := conn.ReadJSON(&status); err != nil {
			return err
		}
		// The bridge sends an empty status before its first frame.
		if len(status.Devices) == 0 {
			continue
		}
		// write asynchronously
		for _, p := range points(status) {
			writeApi.WritePoint(p)
		}
	}
}
