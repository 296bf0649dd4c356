// Package vessel defines the maritime entity model shared by the AIS
// ingestion service and the enrichment batch job.
package vessel

import (
	"fmt"
	"time"
)

// Vessel is the canonical vessel record, keyed by MMSI. It is created
// on first sighting and updated by every subsequent report; the
// ingestion path never deletes it.
type Vessel struct {
	MMSI     int64   `json:"mmsi"`
	IMO      int64   `json:"imo,omitempty"`
	Callsign string  `json:"callsign,omitempty"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	LengthM  float64 `json:"lengthM,omitempty"`
	WidthM   float64 `json:"widthM,omitempty"`
	DraughtM float64 `json:"draughtM,omitempty"`
	Flag     string  `json:"flag,omitempty"`

	LastSeen time.Time `json:"lastSeen"`
	Active   bool      `json:"active"`

	// Enrichment provenance: which source last filled in static
	// attributes, and when.
	EnrichedBy string    `json:"enrichedBy,omitempty"`
	EnrichedAt time.Time `json:"enrichedAt,omitzero"`
}

// FallbackName is the display name used for a vessel sighted before
// any name metadata arrived.
func FallbackName(mmsi int64) string {
	return fmt.Sprintf("Vessel %d", mmsi)
}

// Position is one append-only position observation. Rows are never
// updated or deleted by the ingestion core.
type Position struct {
	MMSI       int64     `json:"mmsi"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	SpeedKnots float64   `json:"speedKnots"`
	CourseDeg  float64   `json:"courseDeg"`
	HeadingDeg int       `json:"headingDeg"`
	NavStatus  int       `json:"navStatus"`
	ObservedAt time.Time `json:"observedAt"`
}
