// Package aggregator fans out to every registered earthquake adapter,
// clusters reports that describe the same physical event, and merges
// each cluster into one confidence-scored record with provenance.
package aggregator

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/coastwatch-io/coastwatch/internal/geo"
	"github.com/coastwatch-io/coastwatch/internal/hazard"
	"github.com/coastwatch-io/coastwatch/internal/observability"
	"github.com/coastwatch-io/coastwatch/internal/source"
)

// Clustering gates: two reports join the same group only when all
// three deltas are within these bounds of the group's representative.
const (
	maxTimeDelta  = 5 * time.Minute
	maxDistanceKm = 50.0
	maxMagDelta   = 0.3
)

// sourcePriority decides the primary source of a merged group. Unknown
// sources rank 0; ties keep the earlier contributor.
var sourcePriority = map[string]int{
	"JMA":  3,
	"USGS": 2,
	"EMSC": 1,
}

// Aggregator holds an injected set of adapters. Construct one at
// process start; there is no package-level registry.
type Aggregator struct {
	adapters []source.HazardAdapter
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates an aggregator over the given adapters.
func New(adapters []source.HazardAdapter, logger *slog.Logger, metrics *observability.Metrics) *Aggregator {
	return &Aggregator{
		adapters: adapters,
		logger:   logger,
		metrics:  metrics,
	}
}

// Adapters returns the injected adapters, for health reporting.
func (a *Aggregator) Adapters() []source.HazardAdapter {
	return a.adapters
}

// FetchAggregated runs one full cycle: probe availability, fetch from
// every available adapter concurrently, then cluster and merge.
//
// A failing or unavailable source degrades to an empty contribution;
// the caller always receives whatever subset succeeded. The only error
// returned is the context's own, when the caller abandons the cycle.
func (a *Aggregator) FetchAggregated(ctx context.Context, opts source.FetchOptions) ([]hazard.AggregatedEvent, error) {
	start := time.Now()

	events := a.fanOut(ctx, opts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fused := merge(cluster(sortByPriority(events)))

	a.metrics.FetchCycles.Inc()
	a.metrics.EventsFused.Add(float64(len(fused)))
	a.metrics.CycleSeconds.Observe(time.Since(start).Seconds())
	a.logger.Info("aggregation cycle complete",
		"raw_events", len(events),
		"fused_events", len(fused),
		"duration", time.Since(start),
	)
	return fused, nil
}

// fanOut probes and fetches from all adapters concurrently and
// flattens the results. Failures are isolated per adapter.
func (a *Aggregator) fanOut(ctx context.Context, opts source.FetchOptions) []hazard.Event {
	results := make([][]hazard.Event, len(a.adapters))
	var wg sync.WaitGroup

	for i, adapter := range a.adapters {
		wg.Add(1)
		go func(index int, ad source.HazardAdapter) {
			defer wg.Done()
			results[index] = a.fetchOne(ctx, ad, opts)
		}(i, adapter)
	}
	wg.Wait()

	var flat []hazard.Event
	for _, r := range results {
		flat = append(flat, r...)
	}
	return flat
}

func (a *Aggregator) fetchOne(ctx context.Context, ad source.HazardAdapter, opts source.FetchOptions) []hazard.Event {
	name := ad.Name()

	if !ad.IsAvailable(ctx) {
		a.logger.Warn("source unavailable, skipping this cycle", "source", name)
		a.setHealthGauge(ad)
		return nil
	}

	start := time.Now()
	events, err := ad.FetchHazardEvents(ctx, opts)
	a.metrics.SourceFetchSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())
	a.setHealthGauge(ad)

	if err != nil {
		a.metrics.SourceFetchErrors.WithLabelValues(name).Inc()
		a.logger.Warn("source fetch failed", "source", name, "error", err)
		return nil
	}

	a.metrics.EventsFetched.WithLabelValues(name).Add(float64(len(events)))
	return events
}

func (a *Aggregator) setHealthGauge(ad source.Adapter) {
	v := 0.0
	if ad.Health().Healthy {
		v = 1.0
	}
	a.metrics.SourceHealthy.WithLabelValues(ad.Name()).Set(v)
}

// sortByPriority stably orders events by source priority (highest
// first). Clustering is single-link and first-match, so the input
// order decides group representatives; sorting makes the outcome
// deterministic regardless of which fetch finished first.
func sortByPriority(events []hazard.Event) []hazard.Event {
	sorted := make([]hazard.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sourcePriority[sorted[i].Source] > sourcePriority[sorted[j].Source]
	})
	return sorted
}

// cluster groups events by scanning in order: each event joins the
// first existing group whose representative (the group's first member)
// is within all three gates, otherwise it starts a new group.
func cluster(events []hazard.Event) [][]hazard.Event {
	var groups [][]hazard.Event

	for _, e := range events {
		placed := false
		for gi, group := range groups {
			if sameEvent(group[0], e) {
				groups[gi] = append(group, e)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []hazard.Event{e})
		}
	}
	return groups
}

// sameEvent reports whether two reports plausibly describe one
// physical earthquake.
func sameEvent(a, b hazard.Event) bool {
	dt := a.OccurredAt.Sub(b.OccurredAt)
	if dt < 0 {
		dt = -dt
	}
	if dt > maxTimeDelta {
		return false
	}
	if geo.HaversineKm(a.Latitude, a.Longitude, b.Latitude, b.Longitude) > maxDistanceKm {
		return false
	}
	dm := a.Magnitude - b.Magnitude
	if dm < 0 {
		dm = -dm
	}
	return dm <= maxMagDelta
}

// merge fuses each group into one record: arithmetic-mean hypocenter
// and magnitude at fixed precision, primary source by priority, and
// confidence scaled by contributor count.
func merge(groups [][]hazard.Event) []hazard.AggregatedEvent {
	fused := make([]hazard.AggregatedEvent, 0, len(groups))

	for _, group := range groups {
		var magSum, latSum, lonSum, depthSum float64
		sources := make([]string, 0, len(group))
		primary := group[0].Source

		for _, e := range group {
			magSum += e.Magnitude
			latSum += e.Latitude
			lonSum += e.Longitude
			depthSum += e.DepthKm
			sources = appendUnique(sources, e.Source)
			if sourcePriority[e.Source] > sourcePriority[primary] {
				primary = e.Source
			}
		}

		n := float64(len(group))
		confidence := float64(len(sources)) / 2
		if confidence > 1 {
			confidence = 1
		}

		fused = append(fused, hazard.AggregatedEvent{
			Event: hazard.Event{
				Magnitude:  geo.Round(magSum/n, 2),
				Latitude:   geo.Round(latSum/n, 4),
				Longitude:  geo.Round(lonSum/n, 4),
				DepthKm:    geo.Round(depthSum/n, 1),
				OccurredAt: group[0].OccurredAt,
				Place:      group[0].Place,
				Source:     primary,
			},
			Sources:       sources,
			PrimarySource: primary,
			Confidence:    confidence,
		})
	}
	return fused
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
