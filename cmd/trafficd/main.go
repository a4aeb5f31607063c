// Command trafficd runs the traffic analysis pipeline as a daemon. It
// ingests NDJSON observation frames from stdin or UDP, serves the latest
// analysis over HTTP, and optionally persists reports to SQLite.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/traffic.report/internal/config"
	"github.com/banshee-data/traffic.report/internal/traffic"
	"github.com/banshee-data/traffic.report/internal/traffic/monitor"
	sqlite "github.com/banshee-data/traffic.report/internal/traffic/storage/sqlite"
)

var (
	listen      = flag.String("listen", ":8081", "HTTP listen address")
	source      = flag.String("source", "stdin", "Observation source: stdin or udp")
	udpPort     = flag.Int("udp-port", 2370, "UDP port to listen for observation frames")
	udpAddress  = flag.String("udp-addr", "", "UDP bind address (default: listen on all interfaces)")
	rcvBuf      = flag.Int("rcvbuf", 4<<20, "UDP receive buffer size in bytes (default 4MB)")
	dbFile      = flag.String("db", "", "Path to SQLite database for report persistence (empty: disabled)")
	configPath  = flag.String("config", "", "Path to tuning config JSON (empty: built-in defaults)")
	unitsFlag   = flag.String("units", "mps", "Default speed units for API output: mps, mph, kmph, kph")
	logInterval = flag.Int("log-interval", 60, "Statistics logging interval in seconds")
	sampleLimit = flag.Int("monitor-samples", 1800, "Frame samples retained for debug charts")
)

// ingestFrames feeds decoded frames into the pipeline until the reader is
// exhausted or ctx is cancelled.
func ingestFrames(ctx context.Context, fr *traffic.FrameReader, pipe *traffic.Pipeline, mon *monitor.Monitor, store *sqlite.Store) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frame, err := fr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			log.Printf("Skipping malformed frame: %v", err)
			continue
		}

		rep, err := pipe.ProcessFrame(frame.ToObservations(), frame.TSUnixNanos)
		if err != nil {
			log.Printf("Frame rejected: %v", err)
			continue
		}
		for _, w := range rep.Warnings {
			log.Printf("Frame %d: %s", rep.FrameIndex, w)
		}

		mon.Record(rep)
		if store != nil {
			if err := store.InsertReport(rep); err != nil {
				log.Printf("Failed to persist report %d: %v", rep.FrameIndex, err)
			}
		}
	}
}

// listenUDP receives one NDJSON frame per datagram and feeds the pipeline.
func listenUDP(ctx context.Context, address string, pipe *traffic.Pipeline, mon *monitor.Monitor, store *sqlite.Store) error {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %v", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %v", err)
	}
	defer conn.Close()

	if err := conn.SetReadBuffer(*rcvBuf); err != nil {
		log.Printf("Warning: failed to set UDP receive buffer to %d bytes: %v (some OSes clamp buffer sizes)", *rcvBuf, err)
	}

	log.Printf("Listening for observation frames on %s", address)

	buffer := make([]byte, 256*1024)
	for {
		select {
		case <-ctx.Done():
			log.Println("UDP listener shutting down")
			return ctx.Err()
		default:
			if err := conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
				log.Printf("Error setting read deadline: %v", err)
				continue
			}

			n, _, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				log.Printf("Error reading UDP packet: %v", err)
				continue
			}

			frame, err := traffic.DecodeFrame(buffer[:n])
			if err != nil {
				log.Printf("Skipping malformed frame: %v", err)
				continue
			}

			rep, err := pipe.ProcessFrame(frame.ToObservations(), frame.TSUnixNanos)
			if err != nil {
				log.Printf("Frame rejected: %v", err)
				continue
			}
			for _, w := range rep.Warnings {
				log.Printf("Frame %d: %s", rep.FrameIndex, w)
			}

			mon.Record(rep)
			if store != nil {
				if err := store.InsertReport(rep); err != nil {
					log.Printf("Failed to persist report %d: %v", rep.FrameIndex, err)
				}
			}
		}
	}
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		tuning = loaded
		log.Printf("Loaded tuning config from %s", *configPath)
	}

	pipe, err := traffic.NewPipeline(traffic.PipelineConfigFromTuning(tuning))
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	var store *sqlite.Store
	if *dbFile != "" {
		store, err = sqlite.Open(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open report database: %v", err)
		}
		defer store.Close()
		log.Printf("Persisting reports to %s", *dbFile)
	}

	mon := monitor.NewMonitor(*sampleLimit)
	debug := monitor.NewDebugHandlers(mon, pipe)

	ws := traffic.NewWebServer(traffic.WebServerConfig{
		Address:  *listen,
		Units:    *unitsFlag,
		Pipeline: pipe,
		ExtraRoutes: func(mux *http.ServeMux) {
			debug.Register(mux)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Periodic stats logging.
	go func() {
		ticker := time.NewTicker(time.Duration(*logInterval) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pipe.Stats().LogStats()
			}
		}
	}()

	// Ingest loop.
	go func() {
		defer stop()
		switch *source {
		case "stdin":
			if err := ingestFrames(ctx, traffic.NewFrameReader(os.Stdin), pipe, mon, store); err != nil && err != context.Canceled {
				log.Printf("Ingest loop error: %v", err)
			} else {
				log.Println("Observation stream ended")
			}
		case "udp":
			udpListenAddr := fmt.Sprintf("%s:%d", *udpAddress, *udpPort)
			if err := listenUDP(ctx, udpListenAddr, pipe, mon, store); err != nil && err != context.Canceled {
				log.Printf("UDP listener error: %v", err)
			}
		default:
			log.Printf("Unknown source %q, expected stdin or udp", *source)
		}
	}()

	if err := ws.Start(ctx); err != nil {
		log.Fatalf("Web server error: %v", err)
	}
}
