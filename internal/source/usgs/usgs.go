// Package usgs adapts the USGS FDSN event service (GeoJSON) to the
// canonical hazard event shape.
package usgs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/coastwatch-io/coastwatch/internal/hazard"
	"github.com/coastwatch-io/coastwatch/internal/source"
)

// DefaultEndpoint is the USGS earthquake catalog query endpoint.
const DefaultEndpoint = "https://earthquake.usgs.gov/fdsnws/event/1/query"

// SourceName is the provenance tag recorded on every event.
const SourceName = "USGS"

// Adapter fetches earthquakes from the USGS feed. All fetch options
// are pushed into the query natively.
type Adapter struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
	health   *source.HealthTracker
}

var _ source.HazardAdapter = (*Adapter)(nil)

// New creates a USGS adapter. An empty endpoint uses DefaultEndpoint.
func New(endpoint string, logger *slog.Logger) *Adapter {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Adapter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: source.FetchTimeout},
		logger:   logger,
		health:   source.NewHealthTracker(SourceName),
	}
}

// Name returns the source name.
func (a *Adapter) Name() string { return SourceName }

// Health returns the adapter's health snapshot.
func (a *Adapter) Health() source.HealthStatus { return a.health.Status() }

// IsAvailable probes the feed with a minimal one-event query.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, source.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"?format=geojson&limit=1", nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// FetchHazardEvents queries the catalog for the requested window.
// Malformed features are skipped; the rest of the response is kept.
func (a *Adapter) FetchHazardEvents(ctx context.Context, opts source.FetchOptions) ([]hazard.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, source.FetchTimeout)
	defer cancel()

	start := time.Now()
	events, err := a.fetch(ctx, opts)
	if err != nil {
		a.health.RecordFailure(err)
		return nil, &source.Error{Source: SourceName, Err: err}
	}
	a.health.RecordSuccess(time.Since(start))
	return events, nil
}

func (a *Adapter) fetch(ctx context.Context, opts source.FetchOptions) ([]hazard.Event, error) {
	params := url.Values{
		"format":    {"geojson"},
		"orderby":   {"time"},
		"starttime": {time.Now().UTC().Add(-opts.Window()).Format(time.RFC3339)},
	}
	if opts.MinMagnitude > 0 {
		params.Set("minmagnitude", strconv.FormatFloat(opts.MinMagnitude, 'f', -1, 64))
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if b := opts.Bounds; b != nil {
		params.Set("minlatitude", strconv.FormatFloat(b.MinLat, 'f', -1, 64))
		params.Set("maxlatitude", strconv.FormatFloat(b.MaxLat, 'f', -1, 64))
		params.Set("minlongitude", strconv.FormatFloat(b.MinLon, 'f', -1, 64))
		params.Set("maxlongitude", strconv.FormatFloat(b.MaxLon, 'f', -1, 64))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", source.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", source.ErrUnavailable, resp.StatusCode)
	}

	var body geojson
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	events := make([]hazard.Event, 0, len(body.Features))
	for _, f := range body.Features {
		e, err := f.toEvent()
		if err != nil {
			a.logger.Warn("skipping malformed feature", "source", SourceName, "id", f.ID, "error", err)
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// USGS GeoJSON response types.

type geojson struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID         string `json:"id"`
	Properties struct {
		Mag   *float64 `json:"mag"`
		Place string   `json:"place"`
		Time  int64    `json:"time"` // epoch milliseconds
	} `json:"properties"`
	Geometry struct {
		Coordinates []float64 `json:"coordinates"` // [lon, lat, depth]
	} `json:"geometry"`
}

func (f feature) toEvent() (hazard.Event, error) {
	if f.Properties.Mag == nil {
		return hazard.Event{}, fmt.Errorf("missing magnitude")
	}
	if len(f.Geometry.Coordinates) < 3 {
		return hazard.Event{}, fmt.Errorf("unparseable coordinates: %v", f.Geometry.Coordinates)
	}
	return hazard.Event{
		Magnitude:  *f.Properties.Mag,
		Longitude:  f.Geometry.Coordinates[0],
		Latitude:   f.Geometry.Coordinates[1],
		DepthKm:    f.Geometry.Coordinates[2],
		OccurredAt: time.UnixMilli(f.Properties.Time).UTC(),
		Place:      f.Properties.Place,
		Source:     SourceName,
	}, nil
}
