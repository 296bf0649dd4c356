// Package archive persists fused hazard events and tsunami alerts to
// Firestore for later review. Archiving is best-effort: a write
// failure is reported to the caller for logging but never stops an
// ingestion cycle.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"

	"github.com/coastwatch-io/coastwatch/internal/hazard"
)

const (
	hazardCollection = "hazard_events"
	alertCollection  = "tsunami_alerts"
)

// Archive stores fused ingestion output.
type Archive interface {
	SaveHazardEvents(ctx context.Context, events []hazard.AggregatedEvent) error
	SaveTsunamiAlerts(ctx context.Context, alerts []hazard.TsunamiAlert) error
	Close() error
}

// Config holds Firestore connection settings.
type Config struct {
	ProjectID   string // GCP project ID (required)
	Database    string // database name, defaults to "(default)"
	Credentials string // path to a service account JSON file (optional)
}

// FirestoreArchive implements Archive on Firestore collections.
type FirestoreArchive struct {
	client *firestore.Client
	logger *slog.Logger
}

var _ Archive = (*FirestoreArchive)(nil)

// NewFirestore creates a Firestore-backed archive. When
// FIRESTORE_EMULATOR_HOST is set the client connects to the emulator
// and the credentials file is ignored.
func NewFirestore(ctx context.Context, cfg Config, logger *slog.Logger) (*FirestoreArchive, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}

	emulatorHost := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if emulatorHost != "" {
		logger.Info("using Firestore emulator", "host", emulatorHost)
	}

	var opts []option.ClientOption
	if cfg.Credentials != "" && emulatorHost == "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
	}

	database := cfg.Database
	if database == "" {
		database = "(default)"
	}

	client, err := firestore.NewClientWithDatabase(ctx, cfg.ProjectID, database, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return &FirestoreArchive{
		client: client,
		logger: logger.With("component", "archive"),
	}, nil
}

func (a *FirestoreArchive) Close() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

// hazardRecord is the stored shape of a fused hazard event.
type hazardRecord struct {
	Magnitude     float64   `firestore:"magnitude"`
	Latitude      float64   `firestore:"latitude"`
	Longitude     float64   `firestore:"longitude"`
	DepthKm       float64   `firestore:"depthKm"`
	OccurredAt    time.Time `firestore:"occurredAt"`
	Place         string    `firestore:"place"`
	PrimarySource string    `firestore:"primarySource"`
	Sources       []string  `firestore:"sources"`
	Confidence    float64   `firestore:"confidence"`
	CreatedAt     time.Time `firestore:"createdAt"`
}

// alertRecord is the stored shape of a tsunami alert.
type alertRecord struct {
	Source       string    `firestore:"source"`
	Category     string    `firestore:"category"`
	Severity     int       `firestore:"severity"`
	Latitude     float64   `firestore:"latitude"`
	Longitude    float64   `firestore:"longitude"`
	Regions      []string  `firestore:"regions"`
	IssuedAt     time.Time `firestore:"issuedAt"`
	ExpiresAt    time.Time `firestore:"expiresAt"`
	Description  string    `firestore:"description"`
	Instructions string    `firestore:"instructions"`
	DartStation  string    `firestore:"dartStation,omitempty"`
	Confidence   float64   `firestore:"confidence"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

// SaveHazardEvents writes each fused event under a deterministic
// document ID, so re-archiving the same event across polling cycles
// overwrites instead of duplicating.
func (a *FirestoreArchive) SaveHazardEvents(ctx context.Context, events []hazard.AggregatedEvent) error {
	if a.client == nil {
		return fmt.Errorf("firestore client is nil")
	}
	var firstErr error
	for _, e := range events {
		record := hazardRecord{
			Magnitude:     e.Magnitude,
			Latitude:      e.Latitude,
			Longitude:     e.Longitude,
			DepthKm:       e.DepthKm,
			OccurredAt:    e.OccurredAt,
			Place:         e.Place,
			PrimarySource: e.PrimarySource,
			Sources:       append([]string(nil), e.Sources...),
			Confidence:    e.Confidence,
			CreatedAt:     time.Now().UTC(),
		}
		id := hazardDocID(e)
		if _, err := a.client.Collection(hazardCollection).Doc(id).Set(ctx, record); err != nil {
			a.logger.Warn("hazard event archive failed", "id", id, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("archive hazard event %s: %w", id, err)
			}
		}
	}
	return firstErr
}

// SaveTsunamiAlerts writes each alert, keyed by the alert's own ID
// when the source supplied one.
func (a *FirestoreArchive) SaveTsunamiAlerts(ctx context.Context, alerts []hazard.TsunamiAlert) error {
	if a.client == nil {
		return fmt.Errorf("firestore client is nil")
	}
	var firstErr error
	for _, alert := range alerts {
		record := alertRecord{
			Source:       alert.Source,
			Category:     string(alert.Category),
			Severity:     alert.Severity,
			Latitude:     alert.Latitude,
			Longitude:    alert.Longitude,
			Regions:      append([]string(nil), alert.Regions...),
			IssuedAt:     alert.IssuedAt,
			ExpiresAt:    alert.ExpiresAt,
			Description:  alert.Description,
			Instructions: alert.Instructions,
			Confidence:   alert.Confidence,
			CreatedAt:    time.Now().UTC(),
		}
		if alert.Dart != nil {
			record.DartStation = alert.Dart.StationID
		}
		id := alertDocID(alert)
		if _, err := a.client.Collection(alertCollection).Doc(id).Set(ctx, record); err != nil {
			a.logger.Warn("tsunami alert archive failed", "id", id, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("archive tsunami alert %s: %w", id, err)
			}
		}
	}
	return firstErr
}

func hazardDocID(e hazard.AggregatedEvent) string {
	return fmt.Sprintf("%s-%d-%.4f-%.4f",
		strings.ToLower(e.PrimarySource), e.OccurredAt.Unix(), e.Latitude, e.Longitude)
}

func alertDocID(alert hazard.TsunamiAlert) string {
	if alert.ID != "" {
		return sanitizeDocID(alert.ID)
	}
	return fmt.Sprintf("%s-%d", strings.ToLower(alert.Source), alert.IssuedAt.Unix())
}

// Firestore document IDs must not contain forward slashes.
func sanitizeDocID(id string) string {
	return strings.ReplaceAll(id, "/", "_")
}
