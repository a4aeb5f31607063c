// Package main replays a recorded NDJSON observation log through the
// analysis pipeline at full speed, persisting every frame report and
// closed incident to SQLite and optionally rendering trend plots.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/banshee-data/traffic.report/internal/config"
	"github.com/banshee-data/traffic.report/internal/traffic"
	"github.com/banshee-data/traffic.report/internal/traffic/monitor"
	sqlite "github.com/banshee-data/traffic.report/internal/traffic/storage/sqlite"
)

var (
	inputFile  = flag.String("input", "", "NDJSON observation log to replay (required)")
	dbFile     = flag.String("db", "traffic_replay.db", "Path to the SQLite output database")
	configPath = flag.String("config", "", "Path to tuning config JSON (empty: built-in defaults)")
	plotsDir   = flag.String("plots", "", "Directory for PNG trend plots (empty: disabled)")
	verbose    = flag.Bool("verbose", false, "Log every processed frame")
)

func run() error {
	if *inputFile == "" {
		return fmt.Errorf("-input is required")
	}

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			return fmt.Errorf("load tuning config: %w", err)
		}
		tuning = loaded
	}

	pipe, err := traffic.NewPipeline(traffic.PipelineConfigFromTuning(tuning))
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	store, err := sqlite.Open(*dbFile)
	if err != nil {
		return fmt.Errorf("open output database: %w", err)
	}
	defer store.Close()

	f, err := os.Open(*inputFile)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	mon := monitor.NewMonitor(1 << 20)
	fr := traffic.NewFrameReader(f)

	start := time.Now()
	frames, rejected := 0, 0
	persistedIncidents := make(map[string]bool)

	for {
		frame, err := fr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			rejected++
			log.Printf("Skipping malformed frame: %v", err)
			continue
		}

		rep, err := pipe.ProcessFrame(frame.ToObservations(), frame.TSUnixNanos)
		if err != nil {
			rejected++
			log.Printf("Frame rejected: %v", err)
			continue
		}
		frames++

		mon.Record(rep)
		if err := store.InsertReport(rep); err != nil {
			return fmt.Errorf("persist report %d: %w", rep.FrameIndex, err)
		}

		// Closed incidents accumulate in the classifier history; persist
		// each one once.
		for _, inc := range pipe.Incidents().GetHistory() {
			if persistedIncidents[inc.IncidentID] {
				continue
			}
			if err := store.InsertIncident(inc); err != nil {
				return fmt.Errorf("persist incident %s: %w", inc.IncidentID, err)
			}
			persistedIncidents[inc.IncidentID] = true
		}

		if *verbose {
			log.Printf("frame %d: %d vehicles, risk %.1f, %d open incidents",
				rep.FrameIndex, rep.VehicleCount, rep.RiskIndex, len(rep.OpenIncidents))
		}
	}

	// Flush incidents still open at end of stream.
	for _, inc := range pipe.Incidents().GetIncidents() {
		if !persistedIncidents[inc.IncidentID] {
			if err := store.InsertIncident(inc); err != nil {
				return fmt.Errorf("persist incident %s: %w", inc.IncidentID, err)
			}
		}
	}

	elapsed := time.Since(start)
	log.Printf("Replayed %d frames (%d rejected) in %s (%.0f fps)",
		frames, rejected, elapsed.Round(time.Millisecond), float64(frames)/elapsed.Seconds())
	pipe.Stats().LogStats()

	if *plotsDir != "" {
		files, err := monitor.NewTrendPlotter(*plotsDir).Save(mon.Samples())
		if err != nil {
			return fmt.Errorf("render trend plots: %w", err)
		}
		for _, f := range files {
			log.Printf("Wrote %s", f)
		}
	}

	return nil
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
