// Package ptwc adapts the Pacific Tsunami Warning Center's CAP
// (Common Alerting Protocol) feed to the canonical tsunami alert shape.
package ptwc

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coastwatch-io/coastwatch/internal/hazard"
	"github.com/coastwatch-io/coastwatch/internal/source"
)

// DefaultEndpoint is the PTWC active-alerts CAP feed.
const DefaultEndpoint = "https://www.tsunami.gov/events/xml/PHEBCAP.xml"

// SourceName is the provenance tag recorded on every alert.
const SourceName = "PTWC"

// Adapter fetches tsunami alerts from the PTWC CAP feed.
type Adapter struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
	health   *source.HealthTracker
}

var _ source.TsunamiAdapter = (*Adapter)(nil)

// New creates a PTWC adapter. An empty endpoint uses DefaultEndpoint.
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

// IsAvailable probes the feed with a HEAD request.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, source.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, a.endpoint, nil)
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

// FetchTsunamiAlerts fetches and parses the CAP feed. One alert is
// produced per CAP <alert> element; <info> blocks beyond the first
// contribute affected areas only.
func (a *Adapter) FetchTsunamiAlerts(ctx context.Context) ([]hazard.TsunamiAlert, error) {
	ctx, cancel := context.WithTimeout(ctx, source.FetchTimeout)
	defer cancel()

	start := time.Now()
	alerts, err := a.fetch(ctx)
	if err != nil {
		a.health.RecordFailure(err)
		return nil, &source.Error{Source: SourceName, Err: err}
	}
	a.health.RecordSuccess(time.Since(start))
	return alerts, nil
}

func (a *Adapter) fetch(ctx context.Context) ([]hazard.TsunamiAlert, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint, nil)
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

	var feed capFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode CAP feed: %w", err)
	}

	alerts := make([]hazard.TsunamiAlert, 0, len(feed.Alerts))
	for _, ca := range feed.Alerts {
		// A Cancel bulletin retracts an earlier alert; emitting it
		// would resurface the cancelled warning as live.
		if strings.EqualFold(ca.MsgType, "Cancel") {
			a.logger.Debug("dropping cancelled CAP alert", "source", SourceName, "identifier", ca.Identifier)
			continue
		}
		alert, err := ca.toAlert()
		if err != nil {
			a.logger.Warn("skipping malformed CAP alert", "source", SourceName, "identifier", ca.Identifier, "error", err)
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// CAP feed types. The feed wraps one or more CAP alert documents.

type capFeed struct {
	XMLName xml.Name   `xml:"alerts"`
	Alerts  []capAlert `xml:"alert"`
}

type capAlert struct {
	Identifier string    `xml:"identifier"`
	Sent       string    `xml:"sent"`
	MsgType    string    `xml:"msgType"`
	Infos      []capInfo `xml:"info"`
}

type capInfo struct {
	Event       string    `xml:"event"`
	Severity    string    `xml:"severity"`
	Onset       string    `xml:"onset"`
	Expires     string    `xml:"expires"`
	Headline    string    `xml:"headline"`
	Description string    `xml:"description"`
	Instruction string    `xml:"instruction"`
	Areas       []capArea `xml:"area"`
}

type capArea struct {
	AreaDesc string `xml:"areaDesc"`
	Circle   string `xml:"circle"` // "lat,lon radius"
}

// severityScale maps CAP severity values onto the 1-5 scale.
var severityScale = map[string]int{
	"Extreme":  5,
	"Severe":   4,
	"Moderate": 3,
	"Minor":    2,
	"Unknown":  1,
}

func (ca capAlert) toAlert() (hazard.TsunamiAlert, error) {
	if len(ca.Infos) == 0 {
		return hazard.TsunamiAlert{}, fmt.Errorf("no info block")
	}
	info := ca.Infos[0]

	issued, err := parseCAPTime(firstNonEmpty(info.Onset, ca.Sent))
	if err != nil {
		return hazard.TsunamiAlert{}, fmt.Errorf("parse issued time: %w", err)
	}

	alert := hazard.TsunamiAlert{
		ID:           "ptwc-" + ca.Identifier,
		Source:       SourceName,
		Category:     categoryFromEvent(info.Event),
		Severity:     severityScale[info.Severity],
		IssuedAt:     issued,
		Description:  firstNonEmpty(info.Headline, info.Description),
		Instructions: info.Instruction,
		Sources:      []string{SourceName},
	}
	if alert.Severity == 0 {
		alert.Severity = 1
	}

	if info.Expires != "" {
		if expires, err := parseCAPTime(info.Expires); err == nil {
			alert.ExpiresAt = expires
		}
	}

	for _, ci := range ca.Infos {
		for _, area := range ci.Areas {
			for _, desc := range strings.Split(area.AreaDesc, ";") {
				if desc = strings.TrimSpace(desc); desc != "" {
					alert.Regions = append(alert.Regions, desc)
				}
			}
		}
	}

	if len(info.Areas) > 0 && info.Areas[0].Circle != "" {
		if lat, lon, ok := parseCircle(info.Areas[0].Circle); ok {
			alert.Latitude = lat
			alert.Longitude = lon
		}
	}

	return alert, nil
}

// categoryFromEvent maps the CAP event phrase to an alert category.
func categoryFromEvent(event string) hazard.AlertCategory {
	e := strings.ToLower(event)
	switch {
	case strings.Contains(e, "warning"):
		return hazard.CategoryWarning
	case strings.Contains(e, "advisory"):
		return hazard.CategoryAdvisory
	case strings.Contains(e, "watch"):
		return hazard.CategoryWatch
	default:
		return hazard.CategoryInformation
	}
}

// parseCAPTime accepts the RFC3339 profile CAP uses.
func parseCAPTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// parseCircle extracts the center of a CAP circle ("lat,lon radius").
func parseCircle(s string) (lat, lon float64, ok bool) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return 0, 0, false
	}
	parts := strings.Split(fields[0], ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(parts[0], 64)
	lon, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
