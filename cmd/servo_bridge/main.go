// Command servo_bridge relays controller commands to a bank of Dynamixel
// actuators and streams their telemetry back.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/w1xm/servo_bridge/actuator"
	"github.com/w1xm/servo_bridge/dxl"
	"github.com/w1xm/servo_bridge/dxl/bushttp"
	"github.com/w1xm/servo_bridge/dxl/serialconn"
	"github.com/w1xm/servo_bridge/dxl/sim"
	"github.com/w1xm/servo_bridge/internal/config"
	"github.com/w1xm/servo_bridge/internal/udp"
	"github.com/w1xm/servo_bridge/router"
	"github.com/w1xm/servo_bridge/telemetry"
	"golang.org/x/sync/errgroup"
)

var (
	serialPort  = flag.String("serial", "", "serial port name")
	baud        = flag.Int("baud", 1000000, "serial baud rate")
	busURL      = flag.String("bus_url", "", "URL of a remote bus_server transact endpoint, used instead of -serial")
	busPassword = flag.String("bus_password", "", "password for the remote bus server")
	busTimeout  = flag.Duration("bus_timeout", 2*time.Second, "HTTP timeout for one remote bus transaction")
	configPath  = flag.String("config", "", "YAML device configuration; twelve XC330s with ids 0-11 if empty")
	listenAddr  = flag.String("listen", "127.0.0.1:9001", "UDP address to receive commands on")
	targetAddr  = flag.String("target", "127.0.0.1:9002", "UDP address to send telemetry to")
	httpAddr    = flag.String("http", "127.0.0.1:8502", "address to serve status on")
	consoleAddr = flag.String("console", "", "TCP address for the command console")
	interactive = flag.Bool("interactive", false, "read commands from stdin")
	timeout     = flag.Duration("timeout", 100*time.Millisecond, "bus transaction timeout")
	queueSize   = flag.Int("queue", 256, "maximum commands waiting for the next bus cycle")
	logEvery    = flag.Int("log_every", 100, "log a repeated bus error once per this many cycles")
	simulate    = flag.Bool("simulate", false, "drive simulated actuators instead of a real bus")
)

func loadConfig() (*config.Config, error) {
	if *configPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	config.Normalize(cfg)
	return cfg, nil
}

// simulatedStart is the raw position simulated actuators power on at.
const simulatedStart = 2048

func openConn(ctx context.Context, cfg *config.Config) (dxl.Conn, func() error, error) {
	if *simulate {
		log.Print("using simulated bus")
		s := sim.New(sim.Bank(cfg.Resolve(), simulatedStart)...)
		go s.Run(ctx)
		return s, func() error { return nil }, nil
	}
	if *busURL != "" {
		log.Printf("using remote bus %q", *busURL)
		return bushttp.NewClient(*busURL, *busPassword, *busTimeout), func() error { return nil }, nil
	}
	if *serialPort == "" {
		return nil, nil, errors.New("one of -serial or -bus_url is required")
	}
	p, err := serialconn.Open(*serialPort, *baud, *timeout)
	if err != nil {
		return nil, nil, err
	}
	return p, p.Close, nil
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, closeConn, err := openConn(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeConn()
	bus := dxl.NewBus(conn)
	defer bus.Close()

	reg, err := actuator.NewRegistry(bus, cfg.Resolve())
	if err != nil {
		log.Fatalf("initializing actuators: %v", err)
	}
	log.Printf("initialized %d actuators", reg.Len())

	ch, err := udp.Open(*listenAddr, *targetAddr)
	if err != nil {
		log.Fatalf("opening command channel: %v", err)
	}
	pub := telemetry.NewPublisher(ch)
	sched := actuator.NewScheduler(bus, reg, pub.Publish, actuator.Options{
		QueueSize: *queueSize,
		LogEvery:  *logEvery,
	})
	pub.PublishInitial(reg.InitialPositions())

	g, ctx := errgroup.WithContext(ctx)

	rt := router.New(ch, sched)
	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error { return rt.Run(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		log.Print("shutdown; closing command channel")
		return ch.Close()
	})

	if *consoleAddr != "" {
		if err := rt.ListenConsole(ctx, *consoleAddr); err != nil {
			log.Fatalf("listening on %q: %v", *consoleAddr, err)
		}
	}
	if *interactive {
		// Reads from stdin cannot be interrupted, so this stays out of the
		// group.
		go rt.ServeConsole(struct {
			io.Reader
			io.Writer
		}{os.Stdin, os.Stdout}, "stdin")
	}

	server := NewServer(ctx, sched, pub)
	r := mux.NewRouter()
	r.Handle("/api/status", http.HandlerFunc(server.StatusHandler))
	r.Handle("/api/ws", http.HandlerFunc(server.StatusSocketHandler))
	srv := &http.Server{
		Handler:      r,
		Addr:         *httpAddr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	g.Go(func() error {
		log.Printf("Listening on %v", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Print("shutdown; closing http server")
		return srv.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		log.Print(err)
	}
	st := sched.Stats()
	log.Printf("exiting after %d cycles (%d write errors, %d read errors, %d dropped commands)",
		st.Cycles, st.WriteErrors, st.ReadErrors, st.Dropped)
}
