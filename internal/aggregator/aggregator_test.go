package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/coastwatch-io/coastwatch/internal/hazard"
	"github.com/coastwatch-io/coastwatch/internal/observability"
	"github.com/coastwatch-io/coastwatch/internal/source"
)

// fakeAdapter is an in-memory HazardAdapter for aggregator tests.
type fakeAdapter struct {
	name      string
	available bool
	events    []hazard.Event
	err       error
	health    *source.HealthTracker
}

func newFakeAdapter(name string, events ...hazard.Event) *fakeAdapter {
	return &fakeAdapter{name: name, available: true, events: events, health: source.NewHealthTracker(name)}
}

func (f *fakeAdapter) Name() string                       { return f.name }
func (f *fakeAdapter) IsAvailable(_ context.Context) bool { return f.available }
func (f *fakeAdapter) Health() source.HealthStatus        { return f.health.Status() }

func (f *fakeAdapter) FetchHazardEvents(_ context.Context, _ source.FetchOptions) ([]hazard.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func newTestAggregator(adapters ...source.HazardAdapter) *Aggregator {
	m := observability.New(prometheus.NewRegistry())
	return New(adapters, slog.New(slog.DiscardHandler), m)
}

func at(t time.Time, offset time.Duration) time.Time { return t.Add(offset) }

var base = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestFetchAggregated_MergesNearbyReports(t *testing.T) {
	a := newFakeAdapter("A", hazard.Event{
		Magnitude: 6.1, Latitude: 34.00, Longitude: -118.00, DepthKm: 8,
		OccurredAt: base, Place: "Greater Los Angeles area", Source: "A",
	})
	b := newFakeAdapter("B", hazard.Event{
		Magnitude: 6.3, Latitude: 34.02, Longitude: -118.01, DepthKm: 9,
		OccurredAt: at(base, 2*time.Minute), Source: "B",
	})

	agg := newTestAggregator(a, b)
	fused, err := agg.FetchAggregated(context.Background(), source.FetchOptions{})
	if err != nil {
		t.Fatalf("FetchAggregated() error = %v", err)
	}

	if len(fused) != 1 {
		t.Fatalf("got %d fused events, want 1", len(fused))
	}
	e := fused[0]
	if e.Magnitude != 6.20 {
		t.Errorf("Magnitude = %v, want 6.20", e.Magnitude)
	}
	if len(e.Sources) != 2 {
		t.Errorf("Sources = %v, want both A and B", e.Sources)
	}
	if e.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", e.Confidence)
	}
	if e.Latitude != 34.01 {
		t.Errorf("Latitude = %v, want 34.01", e.Latitude)
	}
	if e.DepthKm != 8.5 {
		t.Errorf("DepthKm = %v, want 8.5", e.DepthKm)
	}
}

func TestFetchAggregated_BoundaryPairsStaySeparate(t *testing.T) {
	ref := hazard.Event{Magnitude: 6.0, Latitude: 34.0, Longitude: -118.0, OccurredAt: base, Source: "A"}

	tests := []struct {
		name  string
		other hazard.Event
	}{
		{
			// 50.01 km is just over the distance gate (0.4501 deg lat ≈ 50.05 km).
			name:  "distance just over 50km",
			other: hazard.Event{Magnitude: 6.0, Latitude: 34.4520, Longitude: -118.0, OccurredAt: base, Source: "B"},
		},
		{
			name:  "time just over 5 minutes",
			other: hazard.Event{Magnitude: 6.0, Latitude: 34.0, Longitude: -118.0, OccurredAt: at(base, 5*time.Minute+time.Millisecond), Source: "B"},
		},
		{
			name:  "magnitude delta 0.31",
			other: hazard.Event{Magnitude: 6.31, Latitude: 34.0, Longitude: -118.0, OccurredAt: base, Source: "B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := newTestAggregator(newFakeAdapter("A", ref), newFakeAdapter("B", tt.other))
			fused, err := agg.FetchAggregated(context.Background(), source.FetchOptions{})
			if err != nil {
				t.Fatalf("FetchAggregated() error = %v", err)
			}
			if len(fused) != 2 {
				t.Errorf("got %d fused events, want 2 separate groups", len(fused))
			}
		})
	}
}

func TestFetchAggregated_BoundaryPairsInsideGatesMerge(t *testing.T) {
	a := hazard.Event{Magnitude: 6.0, Latitude: 34.0, Longitude: -118.0, OccurredAt: base, Source: "A"}
	// Exactly at the gates: 5 minutes, 0.3 magnitude, well under 50 km.
	b := hazard.Event{Magnitude: 6.3, Latitude: 34.1, Longitude: -118.0, OccurredAt: at(base, 5*time.Minute), Source: "B"}

	agg := newTestAggregator(newFakeAdapter("A", a), newFakeAdapter("B", b))
	fused, err := agg.FetchAggregated(context.Background(), source.FetchOptions{})
	if err != nil {
		t.Fatalf("FetchAggregated() error = %v", err)
	}
	if len(fused) != 1 {
		t.Errorf("got %d fused events, want 1 (gates are inclusive)", len(fused))
	}
}

func TestFetchAggregated_PrimarySourcePriority(t *testing.T) {
	emsc := newFakeAdapter("EMSC", hazard.Event{Magnitude: 6.0, Latitude: 34.0, Longitude: -118.0, OccurredAt: base, Source: "EMSC"})
	usgs := newFakeAdapter("USGS", hazard.Event{Magnitude: 6.1, Latitude: 34.01, Longitude: -118.0, OccurredAt: base, Source: "USGS"})

	agg := newTestAggregator(emsc, usgs)
	fused, err := agg.FetchAggregated(context.Background(), source.FetchOptions{})
	if err != nil {
		t.Fatalf("FetchAggregated() error = %v", err)
	}
	if len(fused) != 1 {
		t.Fatalf("got %d fused events, want 1", len(fused))
	}
	if fused[0].PrimarySource != "USGS" {
		t.Errorf("PrimarySource = %q, want USGS", fused[0].PrimarySource)
	}
}

func TestFetchAggregated_SingleSourceConfidence(t *testing.T) {
	agg := newTestAggregator(newFakeAdapter("USGS",
		hazard.Event{Magnitude: 5.0, Latitude: 10, Longitude: 10, OccurredAt: base, Source: "USGS"}))

	fused, err := agg.FetchAggregated(context.Background(), source.FetchOptions{})
	if err != nil {
		t.Fatalf("FetchAggregated() error = %v", err)
	}
	if fused[0].Confidence != 0.5 {
		t.Errorf("Confidence = %v, want 0.5 for one source", fused[0].Confidence)
	}
}

func TestFetchAggregated_ConfidenceCappedAtOne(t *testing.T) {
	mk := func(name string) *fakeAdapter {
		return newFakeAdapter(name, hazard.Event{Magnitude: 6.0, Latitude: 34.0, Longitude: -118.0, OccurredAt: base, Source: name})
	}
	agg := newTestAggregator(mk("JMA"), mk("USGS"), mk("EMSC"))
	fused, err := agg.FetchAggregated(context.Background(), source.FetchOptions{})
	if err != nil {
		t.Fatalf("FetchAggregated() error = %v", err)
	}
	if len(fused) != 1 {
		t.Fatalf("got %d fused events, want 1", len(fused))
	}
	if fused[0].Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0 for three sources", fused[0].Confidence)
	}
	if fused[0].PrimarySource != "JMA" {
		t.Errorf("PrimarySource = %q, want JMA", fused[0].PrimarySource)
	}
}

func TestFetchAggregated_FailingAdapterIsIsolated(t *testing.T) {
	healthy := newFakeAdapter("USGS", hazard.Event{Magnitude: 5.5, Latitude: 10, Longitude: 10, OccurredAt: base, Source: "USGS"})
	broken := newFakeAdapter("EMSC")
	broken.err = errors.New("boom")

	agg := newTestAggregator(healthy, broken)
	fused, err := agg.FetchAggregated(context.Background(), source.FetchOptions{})
	if err != nil {
		t.Fatalf("partial failure must not surface an error, got %v", err)
	}
	if len(fused) != 1 {
		t.Errorf("got %d fused events, want 1 from the healthy source", len(fused))
	}
}

func TestFetchAggregated_UnavailableAdapterSkipped(t *testing.T) {
	down := newFakeAdapter("JMA", hazard.Event{Magnitude: 7.0, Latitude: 38, Longitude: 142, OccurredAt: base, Source: "JMA"})
	down.available = false

	agg := newTestAggregator(down)
	fused, err := agg.FetchAggregated(context.Background(), source.FetchOptions{})
	if err != nil {
		t.Fatalf("FetchAggregated() error = %v", err)
	}
	if len(fused) != 0 {
		t.Errorf("got %d fused events, want 0 when the only source is unavailable", len(fused))
	}
}

func TestSortByPriority_Deterministic(t *testing.T) {
	jma := hazard.Event{Magnitude: 6.0, Latitude: 38, Longitude: 142, OccurredAt: base, Source: "JMA"}
	emsc := hazard.Event{Magnitude: 6.1, Latitude: 38.01, Longitude: 142.01, OccurredAt: base, Source: "EMSC"}

	// Whatever arrival order the concurrent fetches produce, JMA leads
	// after sorting, so it is always the cluster representative.
	forward := sortByPriority([]hazard.Event{jma, emsc})
	backward := sortByPriority([]hazard.Event{emsc, jma})

	if forward[0].Source != "JMA" || backward[0].Source != "JMA" {
		t.Errorf("JMA should sort first in both orders, got %q and %q", forward[0].Source, backward[0].Source)
	}
}
