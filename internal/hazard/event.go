// Package hazard defines the canonical records the ingestion core
// produces: single-source seismic events, their fused aggregates, and
// tsunami alerts with optional buoy confirmation.
package hazard

import "time"

// Event is a single report of a seismic event from one source.
// It is immutable once parsed from a feed.
type Event struct {
	Magnitude  float64   `json:"magnitude"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	DepthKm    float64   `json:"depthKm"`
	OccurredAt time.Time `json:"occurredAt"`
	Place      string    `json:"place"`
	Source     string    `json:"source"`
}

// AggregatedEvent is a fused event produced by the aggregator's merge
// step. It is never mutated after creation; the next poll cycle
// re-fuses from scratch instead of updating in place.
type AggregatedEvent struct {
	Event

	// Sources lists every source that contributed a report, in cluster
	// order. PrimarySource is the highest-priority contributor.
	Sources       []string `json:"sources"`
	PrimarySource string   `json:"primarySource"`

	// Confidence is min(1.0, len(Sources)/2): a single uncorroborated
	// report scores 0.5, two or more independent sources score 1.0.
	Confidence float64 `json:"confidence"`
}

// AlertCategory is the alert class of a tsunami alert, ordered from
// least to most urgent.
type AlertCategory string

const (
	CategoryInformation AlertCategory = "INFORMATION"
	CategoryWatch       AlertCategory = "WATCH"
	CategoryAdvisory    AlertCategory = "ADVISORY"
	CategoryWarning     AlertCategory = "WARNING"
)

// DartConfirmation records a direct bottom-pressure detection by a
// DART buoy backing a tsunami alert.
type DartConfirmation struct {
	StationID        string    `json:"stationId"`
	StationName      string    `json:"stationName"`
	WaveHeightMeters float64   `json:"waveHeightMeters"`
	DetectedAt       time.Time `json:"detectedAt"`
	Region           string    `json:"region"`
}

// WaveTrain describes one expected wave arrival within an alert.
// Tsunamis arrive as a series; the first wave is often not the largest.
type WaveTrain struct {
	Number       int       `json:"number"`
	HeightMeters float64   `json:"heightMeters"`
	ETA          time.Time `json:"eta"`
	Strongest    bool      `json:"strongest"`
}

// TsunamiAlert is one alert from one source. Alerts from different
// sources describing the same physical event are kept as independent
// records with source tagging rather than merged by identity.
type TsunamiAlert struct {
	ID           string        `json:"id"`
	Source       string        `json:"source"`
	Category     AlertCategory `json:"category"`
	Severity     int           `json:"severity"` // 1 (lowest) to 5 (highest)
	Latitude     float64       `json:"latitude"`
	Longitude    float64       `json:"longitude"`
	Regions      []string      `json:"regions"`
	IssuedAt     time.Time     `json:"issuedAt"`
	ExpiresAt    time.Time     `json:"expiresAt,omitzero"`
	Description  string        `json:"description"`
	Instructions string        `json:"instructions"`

	Dart *DartConfirmation `json:"dartConfirmation,omitempty"`

	// Confidence and Sources are set when an adapter asserts
	// multi-source corroboration for its own alert.
	Confidence float64     `json:"confidence,omitempty"`
	Sources    []string    `json:"sources,omitempty"`
	WaveTrains []WaveTrain `json:"waveTrains,omitempty"`
}

// Active reports whether the alert has been issued and not yet expired
// at the given instant. Alerts without an expiry never expire on their own.
func (a *TsunamiAlert) Active(now time.Time) bool {
	if now.Before(a.IssuedAt) {
		return false
	}
	return a.ExpiresAt.IsZero() || now.Before(a.ExpiresAt)
}
