// Command genmock records a deterministic wildfire scenario from a seeded
// edge simulation: the station registry, every packed frame and a final
// satellite view. The stations can also be uploaded to a MinIO bucket so a
// fog process can resolve them.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -seed 42 -steps 20 \
//	  -out data/mock/scenario_seed42.json \
//	  -stations-out data/mock/stations.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/wildfire-watch/internal/adapter/stations"
	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/couchcryptid/wildfire-watch/internal/simulation"
	"github.com/jonboulle/clockwork"
)

var baseDate = time.Date(2025, time.August, 1, 12, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	seed := flag.Uint64("seed", 42, "simulation seed")
	steps := flag.Int("steps", 20, "number of simulation steps to record")
	size := flag.Int("grid-size", 50, "environment grid size")
	sensors := flag.Int("sensors", 10, "number of sensors")
	out := flag.String("out", "", "output path for the scenario fixture")
	stationsOut := flag.String("stations-out", "", "optional output path for the station registry file")
	minioEndpoint := flag.String("minio-endpoint", "", "optional MinIO endpoint to upload stations to")
	minioBucket := flag.String("minio-bucket", "stations", "MinIO bucket for station objects")
	flag.Parse()

	if *out == "" || *steps <= 0 {
		flag.Usage()
		return fmt.Errorf("missing required flags: -out, -steps > 0")
	}

	// Freeze the package clock so any stamped times are reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(baseDate))
	defer domain.SetClock(nil)

	cfg := simulation.DefaultConfig()
	cfg.Environment.Size = *size
	cfg.Network.Count = *sensors

	fx, err := simulation.GenerateFixture(cfg, *seed, *steps, baseDate)
	if err != nil {
		return err
	}
	log.Printf("seed %d: %d steps, %d stations, %d frames", fx.Seed, fx.Steps, len(fx.Stations), len(fx.Frames))

	if err := writeJSON(*out, fx); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote fixture: %s", *out)

	if *stationsOut != "" {
		if err := os.MkdirAll(filepath.Dir(*stationsOut), 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
		if err := stations.WriteFile(*stationsOut, fx.Stations); err != nil {
			return err
		}
		log.Printf("wrote stations: %s", *stationsOut)
	}

	if *minioEndpoint != "" {
		store, err := stations.NewStore(stations.MinIOConfig{
			Endpoint:  *minioEndpoint,
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    *minioBucket,
		}, slog.Default())
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := store.Upload(ctx, fx.Stations); err != nil {
			return fmt.Errorf("uploading stations: %w", err)
		}
		log.Printf("uploaded %d stations to %s/%s", len(fx.Stations), *minioEndpoint, *minioBucket)
	}

	printStats(fx)
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func printStats(fx simulation.Fixture) {
	fmt.Printf("\n=== Scenario Statistics ===\n")
	fmt.Printf("Grid: %dx%d\n", fx.GridSize, fx.GridSize)
	fmt.Printf("Cells: vegetation=%d burning=%d burnt=%d\n", fx.Counts.Vegetation, fx.Counts.Burning, fx.Counts.Burnt)

	var hottest domain.Reading
	for i, r := range fx.Readings {
		if i == 0 || r.Temperature > hottest.Temperature {
			hottest = r
		}
	}
	if len(fx.Readings) > 0 {
		fmt.Printf("Hottest station: device %d at %.1f°C\n", hottest.DeviceID, hottest.Temperature)
	}
	fmt.Printf("Satellite view: %d bytes (base64)\n", len(fx.Satellite.Image))
}
