// Package emsc adapts the EMSC seismic portal FDSN event service to
// the canonical hazard event shape.
//
// The portal accepts time, magnitude, and limit filters natively but
// not the bounding-box shape the core uses, so geographic filtering is
// applied client-side after fetching.
package emsc

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

// DefaultEndpoint is the EMSC seismic portal query endpoint.
const DefaultEndpoint = "https://www.seismicportal.eu/fdsnws/event/1/query"

// SourceName is the provenance tag recorded on every event.
const SourceName = "EMSC"

// Adapter fetches earthquakes from the EMSC seismic portal.
type Adapter struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
	health   *source.HealthTracker
}

var _ source.HazardAdapter = (*Adapter)(nil)

// New creates an EMSC adapter. An empty endpoint uses DefaultEndpoint.
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

// IsAvailable probes the portal with a minimal one-event query.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, source.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"?format=json&limit=1", nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	// The portal answers 204 when the window holds no events.
	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent
}

// FetchHazardEvents queries the portal, then applies the bounding box
// client-side.
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

	if opts.Bounds != nil {
		events = source.Filter(events, source.FetchOptions{Bounds: opts.Bounds, WindowHours: opts.WindowHours}, time.Now().UTC())
	}
	return events, nil
}

func (a *Adapter) fetch(ctx context.Context, opts source.FetchOptions) ([]hazard.Event, error) {
	params := url.Values{
		"format":    {"json"},
		"orderby":   {"time"},
		"starttime": {time.Now().UTC().Add(-opts.Window()).Format(time.RFC3339)},
	}
	if opts.MinMagnitude > 0 {
		params.Set("minmag", strconv.FormatFloat(opts.MinMagnitude, 'f', -1, 64))
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
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

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", source.ErrUnavailable, resp.StatusCode)
	}

	var body response
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

// EMSC portal response types. Unlike USGS, coordinates live in the
// feature properties and the event time is an ISO-8601 string.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID         string `json:"id"`
	Properties struct {
		Mag    *float64 `json:"mag"`
		Lat    *float64 `json:"lat"`
		Lon    *float64 `json:"lon"`
		Depth  float64  `json:"depth"`
		Time   string   `json:"time"`
		Region string   `json:"flynn_region"`
	} `json:"properties"`
}

func (f feature) toEvent() (hazard.Event, error) {
	p := f.Properties
	if p.Mag == nil {
		return hazard.Event{}, fmt.Errorf("missing magnitude")
	}
	if p.Lat == nil || p.Lon == nil {
		return hazard.Event{}, fmt.Errorf("unparseable coordinates")
	}
	at, err := time.Parse(time.RFC3339, p.Time)
	if err != nil {
		return hazard.Event{}, fmt.Errorf("parse time %q: %w", p.Time, err)
	}
	return hazard.Event{
		Magnitude:  *p.Mag,
		Latitude:   *p.Lat,
		Longitude:  *p.Lon,
		DepthKm:    p.Depth,
		OccurredAt: at.UTC(),
		Place:      p.Region,
		Source:     SourceName,
	}, nil
}
