// Package observability holds the Prometheus instrumentation for the
// ingestion core. All metrics live under the "coastwatch" namespace.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every counter, gauge, and histogram the core emits.
type Metrics struct {
	// Hazard aggregation.
	FetchCycles        prometheus.Counter
	SourceFetchErrors  *prometheus.CounterVec // labels: source
	EventsFetched      *prometheus.CounterVec // labels: source
	EventsFused        prometheus.Counter
	SourceHealthy      *prometheus.GaugeVec     // labels: source
	SourceFetchSeconds *prometheus.HistogramVec // labels: source
	CycleSeconds       prometheus.Histogram

	// Tsunami fusion.
	TsunamiAlertsFetched *prometheus.CounterVec // labels: source

	// Vessel telemetry.
	AISMessages       *prometheus.CounterVec // labels: kind
	AISErrors         prometheus.Counter
	AISReconnects     prometheus.Counter
	StreamConnected   prometheus.Gauge
	VesselsCreated    prometheus.Counter
	VesselsUpdated    prometheus.Counter
	PositionsRecorded prometheus.Counter

	// Enrichment batch job.
	EnrichmentOutcomes *prometheus.CounterVec // labels: outcome={enriched,skipped,failed}
}

// New creates metrics and registers them with the given registerer.
// Pass prometheus.DefaultRegisterer in production; tests use a fresh
// prometheus.NewRegistry to avoid duplicate-registration panics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coastwatch",
			Name:      "fetch_cycles_total",
			Help:      "Completed earthquake aggregation cycles.",
		}),
		SourceFetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coastwatch",
			Name:      "source_fetch_errors_total",
			Help:      "Fetch failures by source.",
		}, []string{"source"}),
		EventsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coastwatch",
			Name:      "events_fetched_total",
			Help:      "Hazard events returned by each source.",
		}, []string{"source"}),
		EventsFused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coastwatch",
			Name:      "events_fused_total",
			Help:      "Aggregated hazard events produced by the merge step.",
		}),
		SourceHealthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "coastwatch",
			Name:      "source_healthy",
			Help:      "1 when the source's health tracker reports healthy.",
		}, []string{"source"}),
		SourceFetchSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "coastwatch",
			Name:      "source_fetch_duration_seconds",
			Help:      "Per-source fetch duration.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"source"}),
		CycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "coastwatch",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a full fan-out, cluster, and merge cycle.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),
		TsunamiAlertsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coastwatch",
			Name:      "tsunami_alerts_fetched_total",
			Help:      "Tsunami alerts returned by each source.",
		}, []string{"source"}),
		AISMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coastwatch",
			Name:      "ais_messages_total",
			Help:      "AIS stream messages by kind.",
		}, []string{"kind"}),
		AISErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coastwatch",
			Name:      "ais_errors_total",
			Help:      "AIS message handling failures.",
		}),
		AISReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coastwatch",
			Name:      "ais_reconnects_total",
			Help:      "Reconnection attempts to the AIS stream.",
		}),
		StreamConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coastwatch",
			Name:      "ais_stream_connected",
			Help:      "1 while the AIS stream is in the streaming state.",
		}),
		VesselsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coastwatch",
			Name:      "vessels_created_total",
			Help:      "Vessels created on first sighting.",
		}),
		VesselsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coastwatch",
			Name:      "vessels_updated_total",
			Help:      "Vessel records refreshed by subsequent reports.",
		}),
		PositionsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coastwatch",
			Name:      "positions_recorded_total",
			Help:      "Vessel position rows appended.",
		}),
		EnrichmentOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coastwatch",
			Name:      "enrichment_outcomes_total",
			Help:      "Enrichment lookups by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.FetchCycles,
		m.SourceFetchErrors,
		m.EventsFetched,
		m.EventsFused,
		m.SourceHealthy,
		m.SourceFetchSeconds,
		m.CycleSeconds,
		m.TsunamiAlertsFetched,
		m.AISMessages,
		m.AISErrors,
		m.AISReconnects,
		m.StreamConnected,
		m.VesselsCreated,
		m.VesselsUpdated,
		m.PositionsRecorded,
		m.EnrichmentOutcomes,
	)

	return m
}
