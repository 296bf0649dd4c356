// Package app wires the ingestion components together and runs them.
package app

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coastwatch-io/coastwatch/internal/aggregator"
	"github.com/coastwatch-io/coastwatch/internal/api"
	"github.com/coastwatch-io/coastwatch/internal/archive"
	"github.com/coastwatch-io/coastwatch/internal/config"
	"github.com/coastwatch-io/coastwatch/internal/geo"
	"github.com/coastwatch-io/coastwatch/internal/observability"
	"github.com/coastwatch-io/coastwatch/internal/publish"
	"github.com/coastwatch-io/coastwatch/internal/source"
	"github.com/coastwatch-io/coastwatch/internal/storage"
	"github.com/coastwatch-io/coastwatch/internal/tsunami"
	"github.com/coastwatch-io/coastwatch/internal/vessel/ais"
	"github.com/coastwatch-io/coastwatch/internal/vessel/enrich"
)

// App is the main application orchestrator. It runs the earthquake
// aggregation and tsunami fusion cycles on their configured intervals,
// keeps the AIS stream alive, schedules the enrichment job, and serves
// the ops HTTP listener.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics

	aggregator *aggregator.Aggregator
	fusion     *tsunami.Fusion
	store      storage.Store
	opsHandler http.Handler

	aisService *ais.Service // nil when the stream is disabled
	enrichJob  *enrich.Job  // nil when enrichment is disabled

	archive   archive.Archive   // optional, can be nil
	publisher publish.Publisher // optional, can be nil

	healthy atomic.Bool
}

// Option is a functional option for configuring the App.
type Option func(*App)

// WithArchive sets the archive for persisting fused output.
// If not provided, events and alerts are not archived.
func WithArchive(a archive.Archive) Option {
	return func(app *App) {
		app.archive = a
	}
}

// WithPublisher sets the publisher for emitting fused output
// downstream. If not provided, nothing is published.
func WithPublisher(p publish.Publisher) Option {
	return func(app *App) {
		app.publisher = p
	}
}

// New creates a new application instance. The aggregator and fusion
// carry the source adapters; the AIS stream service and enrichment job
// are constructed here from configuration so the App owns their
// lifecycle.
//
// Parameters:
//   - cfg: Application configuration
//   - agg: Earthquake aggregator with its hazard adapters
//   - fusion: Tsunami alert fusion with its tsunami adapters
//   - store: Vessel storage backend
//
// Returns:
//
//	Configured App instance ready to run
func New(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics,
	agg *aggregator.Aggregator, fusion *tsunami.Fusion, store storage.Store,
	opts ...Option) *App {

	app := &App{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		aggregator: agg,
		fusion:     fusion,
		store:      store,
	}
	app.healthy.Store(true)

	for _, opt := range opts {
		opt(app)
	}

	if cfg.AIS.Enabled {
		app.aisService = ais.NewService(ais.Config{
			Endpoint:       cfg.AIS.Endpoint,
			APIKey:         cfg.AIS.APIKey,
			BoundingBoxes:  cfg.AIS.BoundingBoxes,
			TrackPositions: cfg.AIS.TrackPositions,
			SampleRate:     cfg.AIS.SampleRate,
			MaxReconnects:  cfg.AIS.MaxReconnects,
			StatsInterval:  time.Duration(cfg.AIS.StatsIntervalSeconds) * time.Second,
		}, store, logger, metrics,
			ais.OnFatal(func(error) { app.healthy.Store(false) }))
	}

	if cfg.Enrichment.Enabled {
		client := enrich.NewClient(cfg.Enrichment.Endpoint, cfg.Enrichment.APIKey)
		app.enrichJob = enrich.NewJob(enrich.Config{
			PageSize:       cfg.Enrichment.PageSize,
			BatchSize:      cfg.Enrichment.BatchSize,
			BatchPause:     time.Duration(cfg.Enrichment.BatchPauseSeconds) * time.Second,
			RateLimitPause: time.Duration(cfg.Enrichment.RateLimitPauseSeconds) * time.Second,
		}, store, client, logger, metrics)
	}

	app.opsHandler = api.NewRouter(api.RouterConfig{
		Handler: api.NewHandler(app.opsAdapters(), app.statsProvider(), store, app.Ready),
		Logger:  logger,
	})

	return app
}

// Ready reports whether the application is healthy. It flips to false
// when the AIS reconnect budget is exhausted.
func (a *App) Ready() bool {
	return a.healthy.Load()
}

// opsAdapters collects every adapter for the sources snapshot,
// deduplicated by name since one adapter can serve both the hazard and
// tsunami feeds.
func (a *App) opsAdapters() []source.Adapter {
	seen := make(map[string]bool)
	var out []source.Adapter
	for _, ad := range a.aggregator.Adapters() {
		if !seen[ad.Name()] {
			seen[ad.Name()] = true
			out = append(out, ad)
		}
	}
	for _, ad := range a.fusion.Adapters() {
		if !seen[ad.Name()] {
			seen[ad.Name()] = true
			out = append(out, ad)
		}
	}
	return out
}

func (a *App) statsProvider() api.StatsProvider {
	if a.aisService == nil {
		return nil
	}
	return a.aisService
}

// Run starts every component and blocks until ctx is cancelled.
// Shutdown is graceful: the ops listener drains, the AIS stream
// closes, and in-flight cycles finish before Run returns.
func (a *App) Run(ctx context.Context) error {
	server := api.NewServer(a.cfg.Ops.Listen, a.opsHandler)
	a.logger.Info("starting ingestion core", "ops_listen", server.Addr())

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil {
			a.logger.Error("ops server failed", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.hazardLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.tsunamiLoop(ctx)
	}()

	if a.aisService != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.aisService.Run(ctx); err != nil {
				a.logger.Error("AIS stream stopped", "error", err)
			}
		}()
	}

	if a.enrichJob != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.enrichLoop(ctx)
		}()
	}

	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("ops server shutdown failed", "error", err)
	}

	wg.Wait()
	return nil
}

// hazardLoop runs earthquake aggregation cycles on the configured
// interval, starting with an immediate cycle.
func (a *App) hazardLoop(ctx context.Context) {
	interval := time.Duration(a.cfg.Aggregator.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.runHazardCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runHazardCycle(ctx)
		}
	}
}

func (a *App) runHazardCycle(ctx context.Context) {
	opts := source.FetchOptions{
		MinMagnitude: a.cfg.Aggregator.MinMagnitude,
		WindowHours:  a.cfg.Aggregator.WindowHours,
		Limit:        a.cfg.Aggregator.Limit,
	}
	if b := a.cfg.Aggregator.Bounds; b != nil {
		opts.Bounds = &geo.BoundingBox{
			MinLat: b.MinLat,
			MinLon: b.MinLon,
			MaxLat: b.MaxLat,
			MaxLon: b.MaxLon,
		}
	}

	events, err := a.aggregator.FetchAggregated(ctx, opts)
	if err != nil {
		a.logger.Error("hazard cycle failed", "error", err)
		return
	}
	if len(events) == 0 {
		return
	}

	if a.archive != nil {
		if err := a.archive.SaveHazardEvents(ctx, events); err != nil {
			a.logger.Warn("hazard archive incomplete", "error", err)
		}
	}
	if a.publisher != nil {
		if err := a.publisher.PublishHazardEvents(ctx, events); err != nil {
			a.logger.Warn("hazard publish failed", "error", err)
		}
	}
}

// tsunamiLoop runs tsunami fusion cycles on the configured interval,
// starting with an immediate cycle.
func (a *App) tsunamiLoop(ctx context.Context) {
	interval := time.Duration(a.cfg.Tsunami.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.runTsunamiCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runTsunamiCycle(ctx)
		}
	}
}

func (a *App) runTsunamiCycle(ctx context.Context) {
	alerts, err := a.fusion.FetchAlerts(ctx)
	if err != nil {
		a.logger.Error("tsunami cycle failed", "error", err)
		return
	}
	if len(alerts) == 0 {
		return
	}

	if a.archive != nil {
		if err := a.archive.SaveTsunamiAlerts(ctx, alerts); err != nil {
			a.logger.Warn("tsunami archive incomplete", "error", err)
		}
	}
	if a.publisher != nil {
		if err := a.publisher.PublishTsunamiAlerts(ctx, alerts); err != nil {
			a.logger.Warn("tsunami publish failed", "error", err)
		}
	}
}

// enrichLoop runs the enrichment job on the configured interval. The
// first run waits one full interval so the stream has time to populate
// candidates.
func (a *App) enrichLoop(ctx context.Context) {
	interval := time.Duration(a.cfg.Enrichment.IntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := a.enrichJob.Run(ctx)
			if err != nil {
				a.logger.Error("enrichment run failed", "error", err)
				continue
			}
			a.logger.Info("enrichment run complete",
				"processed", res.Processed,
				"enriched", res.Enriched,
				"skipped", res.Skipped,
				"failed", res.Failed)
		}
	}
}
