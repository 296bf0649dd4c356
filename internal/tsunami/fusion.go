// Package tsunami fans out to every tsunami-capable adapter and
// collects their alerts into one list.
//
// Alerts from different sources are deliberately NOT merged by
// identity: a buoy detection, a CAP government alert, and a
// magnitude-derived inference are independently valid observations,
// so each record keeps its own source tag and any confidence its
// adapter asserted.
package tsunami

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/coastwatch-io/coastwatch/internal/hazard"
	"github.com/coastwatch-io/coastwatch/internal/observability"
	"github.com/coastwatch-io/coastwatch/internal/source"
)

// Fusion holds an injected set of tsunami adapters.
type Fusion struct {
	adapters []source.TsunamiAdapter
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a fusion over the given adapters.
func New(adapters []source.TsunamiAdapter, logger *slog.Logger, metrics *observability.Metrics) *Fusion {
	return &Fusion{
		adapters: adapters,
		logger:   logger,
		metrics:  metrics,
	}
}

// Adapters returns the injected adapters, for health reporting.
func (f *Fusion) Adapters() []source.TsunamiAdapter {
	return f.adapters
}

// FetchAlerts runs one fan-out cycle with the same partial-failure
// isolation as earthquake aggregation: an unavailable or failing
// source contributes nothing, and the cycle never fails because of
// it. Results are ordered most severe first, then most recent.
func (f *Fusion) FetchAlerts(ctx context.Context) ([]hazard.TsunamiAlert, error) {
	start := time.Now()

	results := make([][]hazard.TsunamiAlert, len(f.adapters))
	var wg sync.WaitGroup

	for i, adapter := range f.adapters {
		wg.Add(1)
		go func(index int, ad source.TsunamiAdapter) {
			defer wg.Done()
			results[index] = f.fetchOne(ctx, ad)
		}(i, adapter)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var alerts []hazard.TsunamiAlert
	for _, r := range results {
		alerts = append(alerts, r...)
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Severity != alerts[j].Severity {
			return alerts[i].Severity > alerts[j].Severity
		}
		return alerts[i].IssuedAt.After(alerts[j].IssuedAt)
	})

	f.logger.Info("tsunami fusion cycle complete",
		"alerts", len(alerts),
		"sources", len(f.adapters),
		"duration", time.Since(start),
	)
	return alerts, nil
}

func (f *Fusion) fetchOne(ctx context.Context, ad source.TsunamiAdapter) []hazard.TsunamiAlert {
	name := ad.Name()

	if !ad.IsAvailable(ctx) {
		f.logger.Warn("tsunami source unavailable, skipping this cycle", "source", name)
		return nil
	}

	alerts, err := ad.FetchTsunamiAlerts(ctx)
	if err != nil {
		f.metrics.SourceFetchErrors.WithLabelValues(name).Inc()
		f.logger.Warn("tsunami source fetch failed", "source", name, "error", err)
		return nil
	}

	f.metrics.TsunamiAlertsFetched.WithLabelValues(name).Add(float64(len(alerts)))
	return alerts
}
