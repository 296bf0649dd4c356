package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coastwatch-io/coastwatch/internal/aggregator"
	"github.com/coastwatch-io/coastwatch/internal/app"
	"github.com/coastwatch-io/coastwatch/internal/archive"
	"github.com/coastwatch-io/coastwatch/internal/config"
	"github.com/coastwatch-io/coastwatch/internal/logging"
	"github.com/coastwatch-io/coastwatch/internal/observability"
	"github.com/coastwatch-io/coastwatch/internal/publish"
	"github.com/coastwatch-io/coastwatch/internal/source"
	"github.com/coastwatch-io/coastwatch/internal/source/dart"
	"github.com/coastwatch-io/coastwatch/internal/source/emsc"
	"github.com/coastwatch-io/coastwatch/internal/source/jma"
	"github.com/coastwatch-io/coastwatch/internal/source/ptwc"
	"github.com/coastwatch-io/coastwatch/internal/source/usgs"
	"github.com/coastwatch-io/coastwatch/internal/storage"
	"github.com/coastwatch-io/coastwatch/internal/tsunami"
	"github.com/coastwatch-io/coastwatch/internal/version"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("coastwatch %s\n", version.CommitHash)
		return
	}

	// Load .env.localdev if it exists (for local development).
	// Silently ignore if the file doesn't exist.
	_ = godotenv.Load(".env.localdev")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	metrics := observability.New(prometheus.DefaultRegisterer)

	// Setup context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hazardAdapters []source.HazardAdapter
	var tsunamiAdapters []source.TsunamiAdapter

	if cfg.Sources.USGS.Enabled {
		hazardAdapters = append(hazardAdapters, usgs.New(cfg.Sources.USGS.Endpoint, logger))
	}
	if cfg.Sources.EMSC.Enabled {
		hazardAdapters = append(hazardAdapters, emsc.New(cfg.Sources.EMSC.Endpoint, logger))
	}
	if cfg.Sources.JMA.Enabled {
		// The tsunami feed endpoint stays on the adapter default.
		j := jma.New(cfg.Sources.JMA.Endpoint, "", logger)
		hazardAdapters = append(hazardAdapters, j)
		tsunamiAdapters = append(tsunamiAdapters, j)
	}
	if cfg.Sources.PTWC.Enabled {
		tsunamiAdapters = append(tsunamiAdapters, ptwc.New(cfg.Sources.PTWC.Endpoint, logger))
	}
	if cfg.Sources.DART.Enabled {
		stations := make([]dart.Station, len(cfg.Sources.DART.Stations))
		for i, s := range cfg.Sources.DART.Stations {
			stations[i] = dart.Station{ID: s.ID, Name: s.Name, Lat: s.Lat, Lon: s.Lon, Region: s.Region}
		}
		tsunamiAdapters = append(tsunamiAdapters, dart.New(cfg.Sources.DART.Endpoint, stations, logger))
	}

	if len(hazardAdapters) == 0 && len(tsunamiAdapters) == 0 {
		log.Fatal("No sources enabled; nothing to ingest")
	}

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()
	logger.Info("storage ready", "driver", cfg.Storage.Driver)

	opts := []app.Option{}

	if cfg.Archive.Enabled {
		logger.Info("initializing archive",
			"project", cfg.Archive.ProjectID, "database", cfg.Archive.Database)
		arch, err := archive.NewFirestore(ctx, archive.Config{
			ProjectID:   cfg.Archive.ProjectID,
			Database:    cfg.Archive.Database,
			Credentials: cfg.Archive.Credentials,
		}, logger)
		if err != nil {
			log.Fatalf("Failed to create archive client: %v", err)
		}
		defer arch.Close()
		opts = append(opts, app.WithArchive(arch))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		logger.Info("initializing kafka publisher", "brokers", cfg.Kafka.Brokers)
		pub := publish.NewKafka(publish.Config{
			Brokers:     cfg.Kafka.Brokers,
			HazardTopic: cfg.Kafka.HazardTopic,
			AlertTopic:  cfg.Kafka.AlertTopic,
		}, logger)
		defer pub.Close()
		opts = append(opts, app.WithPublisher(pub))
	}

	agg := aggregator.New(hazardAdapters, logger, metrics)
	fusion := tsunami.New(tsunamiAdapters, logger, metrics)
	application := app.New(cfg, logger, metrics, agg, fusion, store, opts...)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received signal", "signal", sig.String())
		cancel()
	}()

	logger.Info("coastwatch - coastal hazard ingestion core", "commit", version.CommitHash)
	if err := application.Run(ctx); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}
