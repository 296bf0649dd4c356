package dart

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// stationFile renders an NDBC-style .dart file, newest reading first.
func stationFile(end time.Time, stepMinutes int, heights []float64) string {
	var b strings.Builder
	b.WriteString("#YY  MM DD hh mm ss T   HEIGHT\n")
	b.WriteString("#yr  mo dy hr mn  s -   m\n")
	for i := len(heights) - 1; i >= 0; i-- {
		at := end.Add(-time.Duration(len(heights)-1-i) * time.Duration(stepMinutes) * time.Minute)
		fmt.Fprintf(&b, "%04d %02d %02d %02d %02d %02d 1 %.3f\n",
			at.Year(), at.Month(), at.Day(), at.Hour(), at.Minute(), at.Second(), heights[len(heights)-1-i])
	}
	return b.String()
}

func TestParseStationFile(t *testing.T) {
	end := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	raw := stationFile(end, 15, []float64{5821.3, 5821.2, 5821.1})

	readings, err := parseStationFile(strings.NewReader(raw), 10)
	if err != nil {
		t.Fatalf("parseStationFile() error = %v", err)
	}
	if len(readings) != 3 {
		t.Fatalf("got %d readings, want 3", len(readings))
	}
	if !readings[0].At.Before(readings[1].At) {
		t.Error("readings should be sorted oldest first")
	}
	if !readings[2].At.Equal(end) {
		t.Errorf("newest reading at %v, want %v", readings[2].At, end)
	}
	if readings[2].Height != 5821.3 {
		t.Errorf("newest height = %v, want 5821.3", readings[2].Height)
	}
}

func TestParseStationFile_SkipsGarbageRows(t *testing.T) {
	raw := "#header\n2026 03 10 12 00 00 1 5821.3\nnot a data row\n2026 03 10 11 45 00 1 bad-height\n"
	readings, err := parseStationFile(strings.NewReader(raw), 10)
	if err != nil {
		t.Fatalf("parseStationFile() error = %v", err)
	}
	if len(readings) != 1 {
		t.Errorf("got %d readings, want 1", len(readings))
	}
}

func TestFetchTsunamiAlerts_DetectionCarriesConfirmation(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	// Station 46403 shows a 60-unit swing in 8 minutes; 46404 is flat.
	files := map[string]string{
		"/46403.dart": stationFile(now, 2, []float64{5860, 5820, 5810, 5800, 5800}),
		"/46404.dart": stationFile(now, 2, []float64{5800, 5800, 5800, 5800, 5800}),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	stations := []Station{
		{ID: "46403", Name: "SE Aleutians", Lat: 52.65, Lon: -156.94, Region: "Aleutian Trench"},
		{ID: "46404", Name: "Cascadia", Lat: 45.85, Lon: -128.77, Region: "Cascadia"},
	}
	a := New(srv.URL, stations, discard())
	a.Detector().SetClock(clockwork.NewFakeClockAt(now))

	alerts, err := a.FetchTsunamiAlerts(context.Background())
	if err != nil {
		t.Fatalf("FetchTsunamiAlerts() error = %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}

	alert := alerts[0]
	if alert.Severity != 5 {
		t.Errorf("Severity = %d, want 5", alert.Severity)
	}
	if alert.Dart == nil {
		t.Fatal("alert missing DART confirmation")
	}
	if alert.Dart.StationID != "46403" {
		t.Errorf("StationID = %q, want 46403", alert.Dart.StationID)
	}
	if alert.Dart.WaveHeightMeters != 60 {
		t.Errorf("WaveHeightMeters = %v, want 60", alert.Dart.WaveHeightMeters)
	}
	if alert.Regions[0] != "Aleutian Trench" {
		t.Errorf("Regions = %v", alert.Regions)
	}
}

func TestFetchTsunamiAlerts_PartialStationFailure(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/down.dart" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(stationFile(now, 2, []float64{5800, 5800, 5800, 5800, 5800})))
	}))
	defer srv.Close()

	a := New(srv.URL, []Station{{ID: "down"}, {ID: "up"}}, discard())
	a.Detector().SetClock(clockwork.NewFakeClockAt(now))

	if _, err := a.FetchTsunamiAlerts(context.Background()); err != nil {
		t.Fatalf("one dead station must not fail the fetch: %v", err)
	}
	if !a.Health().Healthy {
		t.Error("adapter should stay healthy when at least one station responds")
	}
}

func TestFetchTsunamiAlerts_AllStationsDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := New(srv.URL, []Station{{ID: "a"}, {ID: "b"}}, discard())
	if _, err := a.FetchTsunamiAlerts(context.Background()); err == nil {
		t.Fatal("expected error when every station is unreachable")
	}
	if a.Health().ConsecutiveFailures != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", a.Health().ConsecutiveFailures)
	}
}
