// Package dart adapts the NOAA DART buoy network to the canonical
// tsunami alert shape.
//
// Unlike the other tsunami sources, DART stations do not publish
// pre-formed alerts: the adapter fetches each station's recent
// bottom-pressure series and runs its own anomaly detection over it.
package dart

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/coastwatch-io/coastwatch/internal/hazard"
	"github.com/coastwatch-io/coastwatch/internal/source"
)

// DefaultEndpoint is the NDBC realtime data root; station files live
// at <endpoint>/<station>.dart.
const DefaultEndpoint = "https://www.ndbc.noaa.gov/data/realtime2"

// SourceName is the provenance tag recorded on every alert.
const SourceName = "DART"

// seriesLength is how many of the newest readings are kept per station.
const seriesLength = 10

// Station describes one monitored DART buoy.
type Station struct {
	ID     string  `yaml:"id"`
	Name   string  `yaml:"name"`
	Lat    float64 `yaml:"lat"`
	Lon    float64 `yaml:"lon"`
	Region string  `yaml:"region"`
}

// Adapter polls a set of DART stations and emits an alert for every
// station whose pressure series crosses a detection tier.
type Adapter struct {
	endpoint string
	stations []Station
	client   *http.Client
	logger   *slog.Logger
	health   *source.HealthTracker
	detector *Detector
}

var _ source.TsunamiAdapter = (*Adapter)(nil)

// New creates a DART adapter for the given stations. An empty endpoint
// uses DefaultEndpoint.
func New(endpoint string, stations []Station, logger *slog.Logger) *Adapter {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Adapter{
		endpoint: endpoint,
		stations: stations,
		client:   &http.Client{Timeout: source.FetchTimeout},
		logger:   logger,
		health:   source.NewHealthTracker(SourceName),
		detector: NewDetector(),
	}
}

// Name returns the source name.
func (a *Adapter) Name() string { return SourceName }

// Health returns the adapter's health snapshot.
func (a *Adapter) Health() source.HealthStatus { return a.health.Status() }

// Detector exposes the embedded detector, mainly so tests can swap
// its clock.
func (a *Adapter) Detector() *Detector { return a.detector }

// IsAvailable probes the first configured station's data file.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	if len(a.stations) == 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, source.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, a.stationURL(a.stations[0].ID), nil)
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

// FetchTsunamiAlerts evaluates every configured station. A station
// whose fetch fails is skipped; the fetch as a whole fails only when
// no station could be read.
func (a *Adapter) FetchTsunamiAlerts(ctx context.Context) ([]hazard.TsunamiAlert, error) {
	ctx, cancel := context.WithTimeout(ctx, source.FetchTimeout)
	defer cancel()

	start := time.Now()
	var alerts []hazard.TsunamiAlert
	fetched := 0
	var lastErr error

	for _, st := range a.stations {
		readings, err := a.fetchStation(ctx, st.ID)
		if err != nil {
			lastErr = err
			a.logger.Warn("station fetch failed", "source", SourceName, "station", st.ID, "error", err)
			continue
		}
		fetched++

		detection, ok := a.detector.Detect(readings)
		if !ok {
			continue
		}
		alerts = append(alerts, a.toAlert(st, detection))
	}

	if fetched == 0 && len(a.stations) > 0 {
		err := fmt.Errorf("all %d stations unreachable: %w", len(a.stations), lastErr)
		a.health.RecordFailure(err)
		return nil, &source.Error{Source: SourceName, Err: err}
	}

	a.health.RecordSuccess(time.Since(start))
	return alerts, nil
}

func (a *Adapter) toAlert(st Station, d Detection) hazard.TsunamiAlert {
	return hazard.TsunamiAlert{
		ID:           fmt.Sprintf("dart-%s-%d", st.ID, d.LatestAt.Unix()),
		Source:       SourceName,
		Category:     d.Category,
		Severity:     d.Severity,
		Latitude:     st.Lat,
		Longitude:    st.Lon,
		Regions:      []string{st.Region},
		IssuedAt:     d.LatestAt,
		Description:  fmt.Sprintf("Water column anomaly of %.2f over %.0f minutes at station %s (%s)", d.Change, d.SpanMinutes, st.ID, st.Name),
		Instructions: d.Instructions,
		Dart: &hazard.DartConfirmation{
			StationID:        st.ID,
			StationName:      st.Name,
			WaveHeightMeters: d.Change,
			DetectedAt:       d.LatestAt,
			Region:           st.Region,
		},
		Sources: []string{SourceName},
	}
}

func (a *Adapter) stationURL(id string) string {
	return fmt.Sprintf("%s/%s.dart", a.endpoint, id)
}

// fetchStation downloads a station's realtime file and returns its
// newest readings in chronological order.
func (a *Adapter) fetchStation(ctx context.Context, id string) ([]Reading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.stationURL(id), nil)
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

	readings, err := parseStationFile(resp.Body, seriesLength)
	if err != nil {
		return nil, err
	}
	return readings, nil
}

// parseStationFile reads the whitespace-delimited NDBC .dart format:
//
//	#YY  MM DD hh mm ss T   HEIGHT
//	#yr  mo dy hr mn  s -   m
//	2026 03 10 11 55 00 1 5821.335
//
// Rows are newest-first; the returned slice is oldest-first and capped
// at limit entries. Unparseable rows are skipped.
func parseStationFile(r io.Reader, limit int) ([]Reading, error) {
	var readings []Reading

	scanner := bufio.NewScanner(r)
	for scanner.Scan() && len(readings) < limit {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 8 {
			continue
		}

		nums := make([]int, 6)
		ok := true
		for i := 0; i < 6; i++ {
			n, err := strconv.Atoi(fields[i])
			if err != nil {
				ok = false
				break
			}
			nums[i] = n
		}
		if !ok {
			continue
		}
		height, err := strconv.ParseFloat(fields[7], 64)
		if err != nil {
			continue
		}

		readings = append(readings, Reading{
			At:     time.Date(nums[0], time.Month(nums[1]), nums[2], nums[3], nums[4], nums[5], 0, time.UTC),
			Height: height,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read station file: %w", err)
	}

	sort.Slice(readings, func(i, j int) bool { return readings[i].At.Before(readings[j].At) })
	return readings, nil
}
