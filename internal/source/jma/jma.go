// Package jma adapts the JMA bosai quake and tsunami list feeds to the
// canonical shapes.
//
// The feeds are plain lists with no query parameters, so every fetch
// option is applied client-side. Hypocenter coordinates arrive as a
// packed ISO-6709 string ("+38.4+141.6-60000/") and magnitudes as
// strings, both of which need careful parsing; records that do not
// parse are skipped one by one.
package jma

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/coastwatch-io/coastwatch/internal/hazard"
	"github.com/coastwatch-io/coastwatch/internal/source"
)

// Default feed endpoints.
const (
	DefaultQuakeEndpoint   = "https://www.jma.go.jp/bosai/quake/data/list.json"
	DefaultTsunamiEndpoint = "https://www.jma.go.jp/bosai/tsunami/data/list.json"
)

// SourceName is the provenance tag recorded on every event.
const SourceName = "JMA"

// coordPattern matches the packed hypocenter string: signed latitude,
// signed longitude, optional signed depth in meters, trailing slash.
var coordPattern = regexp.MustCompile(`^([+-][0-9.]+)([+-][0-9.]+)(?:([+-][0-9]+))?/?$`)

// Adapter fetches earthquakes and tsunami advisories from JMA.
type Adapter struct {
	quakeEndpoint   string
	tsunamiEndpoint string
	client          *http.Client
	logger          *slog.Logger
	health          *source.HealthTracker
}

var (
	_ source.HazardAdapter  = (*Adapter)(nil)
	_ source.TsunamiAdapter = (*Adapter)(nil)
)

// New creates a JMA adapter. Empty endpoints use the defaults.
func New(quakeEndpoint, tsunamiEndpoint string, logger *slog.Logger) *Adapter {
	if quakeEndpoint == "" {
		quakeEndpoint = DefaultQuakeEndpoint
	}
	if tsunamiEndpoint == "" {
		tsunamiEndpoint = DefaultTsunamiEndpoint
	}
	return &Adapter{
		quakeEndpoint:   quakeEndpoint,
		tsunamiEndpoint: tsunamiEndpoint,
		client:          &http.Client{Timeout: source.FetchTimeout},
		logger:          logger,
		health:          source.NewHealthTracker(SourceName),
	}
}

// Name returns the source name.
func (a *Adapter) Name() string { return SourceName }

// Health returns the adapter's health snapshot.
func (a *Adapter) Health() source.HealthStatus { return a.health.Status() }

// IsAvailable probes the quake feed.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, source.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, a.quakeEndpoint, nil)
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

// FetchHazardEvents fetches the quake list and filters it client-side.
func (a *Adapter) FetchHazardEvents(ctx context.Context, opts source.FetchOptions) ([]hazard.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, source.FetchTimeout)
	defer cancel()

	start := time.Now()
	entries, err := a.fetchList(ctx, a.quakeEndpoint)
	if err != nil {
		a.health.RecordFailure(err)
		return nil, &source.Error{Source: SourceName, Err: err}
	}
	a.health.RecordSuccess(time.Since(start))

	events := make([]hazard.Event, 0, len(entries))
	for _, entry := range entries {
		e, err := entry.toEvent()
		if err != nil {
			a.logger.Warn("skipping malformed entry", "source", SourceName, "eid", entry.EID, "error", err)
			continue
		}
		events = append(events, e)
	}
	return source.Filter(events, opts, time.Now().UTC()), nil
}

// FetchTsunamiAlerts fetches the tsunami advisory list. Cancelled and
// superseded advisories are dropped.
func (a *Adapter) FetchTsunamiAlerts(ctx context.Context) ([]hazard.TsunamiAlert, error) {
	ctx, cancel := context.WithTimeout(ctx, source.FetchTimeout)
	defer cancel()

	start := time.Now()
	entries, err := a.fetchList(ctx, a.tsunamiEndpoint)
	if err != nil {
		a.health.RecordFailure(err)
		return nil, &source.Error{Source: SourceName, Err: err}
	}
	a.health.RecordSuccess(time.Since(start))

	alerts := make([]hazard.TsunamiAlert, 0, len(entries))
	for _, entry := range entries {
		alert, ok, err := entry.toAlert()
		if err != nil {
			a.logger.Warn("skipping malformed entry", "source", SourceName, "eid", entry.EID, "error", err)
			continue
		}
		if ok {
			alerts = append(alerts, alert)
		}
	}
	return alerts, nil
}

func (a *Adapter) fetchList(ctx context.Context, endpoint string) ([]entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
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

	var entries []entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return entries, nil
}

// entry is one element of a bosai list feed. Quake and tsunami entries
// share the same envelope; the title distinguishes them.
type entry struct {
	EID   string   `json:"eid"`
	At    string   `json:"at"`  // RFC3339 with zone offset
	Title string   `json:"ttl"` // e.g. 震源・震度情報, 津波警報・注意報・予報
	Place string   `json:"anm"` // hypocenter name
	Mag   string   `json:"mag"` // decimal string, may be empty or "--"
	Coord string   `json:"cod"` // packed ISO-6709
	Areas []string `json:"areas,omitempty"`
}

func (e entry) toEvent() (hazard.Event, error) {
	mag, err := parseMagnitude(e.Mag)
	if err != nil {
		return hazard.Event{}, err
	}
	lat, lon, depthKm, err := parseCoord(e.Coord)
	if err != nil {
		return hazard.Event{}, err
	}
	at, err := time.Parse(time.RFC3339, e.At)
	if err != nil {
		return hazard.Event{}, fmt.Errorf("parse time %q: %w", e.At, err)
	}
	return hazard.Event{
		Magnitude:  mag,
		Latitude:   lat,
		Longitude:  lon,
		DepthKm:    depthKm,
		OccurredAt: at.UTC(),
		Place:      e.Place,
		Source:     SourceName,
	}, nil
}

// Advisory titles in the tsunami feed, most severe first.
var advisoryGrades = []struct {
	keyword  string
	category hazard.AlertCategory
	severity int
}{
	{"大津波警報", hazard.CategoryWarning, 5},
	{"津波警報", hazard.CategoryWarning, 4},
	{"津波注意報", hazard.CategoryAdvisory, 3},
	{"津波予報", hazard.CategoryInformation, 1},
}

func (e entry) toAlert() (hazard.TsunamiAlert, bool, error) {
	if strings.Contains(e.Title, "解除") {
		// Cancellation bulletin.
		return hazard.TsunamiAlert{}, false, nil
	}

	var category hazard.AlertCategory
	severity := 0
	for _, g := range advisoryGrades {
		if strings.Contains(e.Title, g.keyword) {
			category = g.category
			severity = g.severity
			break
		}
	}
	if severity == 0 {
		// Cancellation or unrelated bulletin.
		return hazard.TsunamiAlert{}, false, nil
	}

	at, err := time.Parse(time.RFC3339, e.At)
	if err != nil {
		return hazard.TsunamiAlert{}, false, fmt.Errorf("parse time %q: %w", e.At, err)
	}

	alert := hazard.TsunamiAlert{
		ID:           "jma-" + e.EID,
		Source:       SourceName,
		Category:     category,
		Severity:     severity,
		Regions:      e.Areas,
		IssuedAt:     at.UTC(),
		Description:  e.Title,
		Instructions: instructionsFor(severity),
		Sources:      []string{SourceName},
	}
	if len(alert.Regions) == 0 && e.Place != "" {
		alert.Regions = []string{e.Place}
	}
	if lat, lon, _, err := parseCoord(e.Coord); err == nil {
		alert.Latitude = lat
		alert.Longitude = lon
	}
	return alert, true, nil
}

func instructionsFor(severity int) string {
	switch {
	case severity >= 5:
		return "Major tsunami warning. Evacuate immediately to high ground and stay away from the coast."
	case severity == 4:
		return "Tsunami warning. Evacuate coastal areas and river mouths without delay."
	case severity == 3:
		return "Tsunami advisory. Leave the water and move away from beaches and harbors."
	default:
		return "Tsunami forecast. No evacuation needed; monitor official updates."
	}
}

func parseMagnitude(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "--" || s == "-" {
		return 0, fmt.Errorf("missing magnitude")
	}
	mag, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse magnitude %q: %w", s, err)
	}
	return mag, nil
}

// parseCoord unpacks "+38.4+141.6-60000/" into latitude, longitude,
// and depth in kilometers (the packed depth is meters, negative down).
func parseCoord(s string) (lat, lon, depthKm float64, err error) {
	m := coordPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, 0, fmt.Errorf("unparseable coordinates %q", s)
	}
	lat, err = strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("parse latitude %q: %w", m[1], err)
	}
	lon, err = strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("parse longitude %q: %w", m[2], err)
	}
	if m[3] != "" {
		meters, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("parse depth %q: %w", m[3], err)
		}
		depthKm = -meters / 1000
	}
	return lat, lon, depthKm, nil
}
