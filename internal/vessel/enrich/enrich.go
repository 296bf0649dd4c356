// Package enrich fills in missing vessel static attributes from an
// on-demand profile lookup source. The job runs over a bounded page of
// vessels in fixed-size batches with a pause between batches to stay
// inside the provider's rate limits.
package enrich

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/coastwatch-io/coastwatch/internal/observability"
	"github.com/coastwatch-io/coastwatch/internal/storage"
	"github.com/coastwatch-io/coastwatch/internal/vessel"
)

const (
	defaultPageSize       = 500
	defaultBatchSize      = 50
	defaultBatchPause     = 1 * time.Second
	defaultRateLimitPause = 30 * time.Second
	defaultSourceTag      = "profile-api"
)

// Config controls one enrichment run.
type Config struct {
	// PageSize bounds how many vessels a single run considers.
	PageSize int

	// BatchSize vessels are looked up back to back, then the job
	// pauses for BatchPause.
	BatchSize  int
	BatchPause time.Duration

	// RateLimitPause is the extended backoff after the provider
	// signals too many requests.
	RateLimitPause time.Duration

	// SourceTag is recorded as the enrichment provenance.
	SourceTag string
}

func (c *Config) applyDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.BatchPause <= 0 {
		c.BatchPause = defaultBatchPause
	}
	if c.RateLimitPause <= 0 {
		c.RateLimitPause = defaultRateLimitPause
	}
	if c.SourceTag == "" {
		c.SourceTag = defaultSourceTag
	}
}

// Result summarizes one run.
type Result struct {
	Processed int `json:"processed"`
	Enriched  int `json:"enriched"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Job enriches vessels missing static data. A single vessel's failure
// never aborts the batch; cancellation is only honored between
// batches, so an in-flight batch always completes.
type Job struct {
	cfg     Config
	store   storage.Store
	client  ProfileClient
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
}

func NewJob(cfg Config, store storage.Store, client ProfileClient, logger *slog.Logger, metrics *observability.Metrics) *Job {
	cfg.applyDefaults()
	return &Job{
		cfg:     cfg,
		store:   store,
		client:  client,
		logger:  logger.With("component", "enrich"),
		metrics: metrics,
		clock:   clockwork.NewRealClock(),
	}
}

// SetClock injects a fake clock for tests.
func (j *Job) SetClock(c clockwork.Clock) { j.clock = c }

// Run executes one enrichment pass and reports what it did.
func (j *Job) Run(ctx context.Context) (Result, error) {
	var res Result

	vessels, err := j.store.ListMissingStatic(ctx, j.cfg.PageSize)
	if err != nil {
		return res, err
	}
	if len(vessels) == 0 {
		return res, nil
	}
	j.logger.Info("enrichment run starting", "candidates", len(vessels))

	for start := 0; start < len(vessels); start += j.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			j.logger.Info("enrichment run stopped between batches",
				"processed", res.Processed)
			return res, err
		}
		if start > 0 {
			j.clock.Sleep(j.cfg.BatchPause)
		}

		end := min(start+j.cfg.BatchSize, len(vessels))
		for _, v := range vessels[start:end] {
			res.Processed++
			j.enrichOne(ctx, v, &res)
		}
	}

	j.logger.Info("enrichment run finished",
		"processed", res.Processed,
		"enriched", res.Enriched,
		"skipped", res.Skipped,
		"failed", res.Failed)
	return res, nil
}

func (j *Job) enrichOne(ctx context.Context, v vessel.Vessel, res *Result) {
	profile, err := j.client.Lookup(ctx, v.MMSI)
	if errors.Is(err, ErrRateLimited) {
		j.logger.Warn("provider rate limit hit, backing off",
			"pause", j.cfg.RateLimitPause)
		j.clock.Sleep(j.cfg.RateLimitPause)
		profile, err = j.client.Lookup(ctx, v.MMSI)
	}
	switch {
	case errors.Is(err, ErrNoProfile):
		res.Skipped++
		j.metrics.EnrichmentOutcomes.WithLabelValues("skipped").Inc()
		return
	case err != nil:
		res.Failed++
		j.metrics.EnrichmentOutcomes.WithLabelValues("failed").Inc()
		j.logger.Warn("profile lookup failed", "mmsi", v.MMSI, "error", err)
		return
	}

	patch, changed := j.patchFor(v, profile)
	if !changed {
		res.Skipped++
		j.metrics.EnrichmentOutcomes.WithLabelValues("skipped").Inc()
		return
	}
	if err := j.store.UpsertVessel(ctx, patch); err != nil {
		res.Failed++
		j.metrics.EnrichmentOutcomes.WithLabelValues("failed").Inc()
		j.logger.Error("enriched vessel save failed", "mmsi", v.MMSI, "error", err)
		return
	}
	res.Enriched++
	j.metrics.EnrichmentOutcomes.WithLabelValues("enriched").Inc()
}

// patchFor builds an upsert carrying only the attributes the stored
// record is missing. Existing non-empty data is never overwritten.
func (j *Job) patchFor(v vessel.Vessel, p *Profile) (vessel.Vessel, bool) {
	patch := vessel.Vessel{
		MMSI:     v.MMSI,
		LastSeen: v.LastSeen,
		Active:   v.Active,
	}
	changed := false
	if v.IMO == 0 && p.IMO > 0 {
		patch.IMO = p.IMO
		changed = true
	}
	if v.Callsign == "" && p.Callsign != "" {
		patch.Callsign = p.Callsign
		changed = true
	}
	if missingName(v.Name) && p.Name != "" {
		patch.Name = p.Name
		changed = true
	}
	if missingType(v.Type) && p.Type != "" {
		patch.Type = p.Type
		changed = true
	}
	if v.LengthM == 0 && p.LengthM > 0 {
		patch.LengthM = p.LengthM
		changed = true
	}
	if v.WidthM == 0 && p.WidthM > 0 {
		patch.WidthM = p.WidthM
		changed = true
	}
	if v.DraughtM == 0 && p.DraughtM > 0 {
		patch.DraughtM = p.DraughtM
		changed = true
	}
	if v.Flag == "" && p.Flag != "" {
		patch.Flag = p.Flag
		changed = true
	}
	if changed {
		patch.EnrichedBy = j.cfg.SourceTag
		patch.EnrichedAt = j.clock.Now().UTC()
	}
	return patch, changed
}

// A placeholder name counts as missing.
func missingName(name string) bool {
	return name == "" || strings.HasPrefix(name, "Vessel ")
}

// A nav-status guess or unmapped code counts as missing.
func missingType(t string) bool {
	return t == "" || t == "Unknown" || strings.HasPrefix(t, "Unknown (")
}
