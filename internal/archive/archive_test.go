package archive

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/coastwatch-io/coastwatch/internal/hazard"
)

func TestNewFirestore_EmptyProjectID(t *testing.T) {
	_, err := NewFirestore(context.Background(), Config{}, slog.New(slog.DiscardHandler))
	if err == nil {
		t.Fatal("NewFirestore() should return error for empty projectID")
	}
	if err.Error() != "projectID is required" {
		t.Errorf("error = %q, want %q", err.Error(), "projectID is required")
	}
}

func TestSave_NilClient(t *testing.T) {
	a := &FirestoreArchive{logger: slog.New(slog.DiscardHandler)}
	if err := a.SaveHazardEvents(context.Background(), nil); err == nil {
		t.Error("SaveHazardEvents() with nil client should error")
	}
	if err := a.SaveTsunamiAlerts(context.Background(), nil); err == nil {
		t.Error("SaveTsunamiAlerts() with nil client should error")
	}
}

func TestClose_NilClient(t *testing.T) {
	a := &FirestoreArchive{logger: slog.New(slog.DiscardHandler)}
	if err := a.Close(); err != nil {
		t.Errorf("Close() with nil client should not error, got: %v", err)
	}
}

func TestHazardDocID_Deterministic(t *testing.T) {
	e := hazard.AggregatedEvent{
		Event: hazard.Event{
			Latitude:   34.0522,
			Longitude:  -118.2437,
			OccurredAt: time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC),
		},
		PrimarySource: "USGS",
	}
	first := hazardDocID(e)
	second := hazardDocID(e)
	if first != second {
		t.Errorf("hazardDocID not deterministic: %q vs %q", first, second)
	}
	if first != "usgs-1770112800-34.0522--118.2437" {
		t.Errorf("hazardDocID = %q", first)
	}
}

func TestAlertDocID(t *testing.T) {
	tests := []struct {
		name  string
		alert hazard.TsunamiAlert
		want  string
	}{
		{
			name:  "uses source-provided id",
			alert: hazard.TsunamiAlert{ID: "PTWC-2026-001", Source: "PTWC"},
			want:  "PTWC-2026-001",
		},
		{
			name:  "slashes sanitized",
			alert: hazard.TsunamiAlert{ID: "jma/tsunami/2026", Source: "JMA"},
			want:  "jma_tsunami_2026",
		},
		{
			name: "falls back to source and time",
			alert: hazard.TsunamiAlert{
				Source:   "DART",
				IssuedAt: time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC),
			},
			want: "dart-1770112800",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := alertDocID(tt.alert); got != tt.want {
				t.Errorf("alertDocID() = %q, want %q", got, tt.want)
			}
		})
	}
}
