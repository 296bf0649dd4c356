// Package storage persists vessel records and position observations.
// Two SQL drivers are supported (sqlite for single-node deployments,
// postgres for shared ones) plus an in-memory store for tests and for
// running the AIS stream without persistence.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/coastwatch-io/coastwatch/internal/config"
	"github.com/coastwatch-io/coastwatch/internal/vessel"
)

// ErrNotFound is returned when a vessel lookup matches no row.
var ErrNotFound = errors.New("storage: vessel not found")

// Stats is a snapshot of the persisted population.
type Stats struct {
	Vessels       int64 `json:"vessels"`
	ActiveVessels int64 `json:"activeVessels"`
	Positions     int64 `json:"positions"`
}

type Store interface {
	Init(ctx context.Context) error
	Close() error

	// FindVesselByMMSI returns ErrNotFound when no record exists.
	FindVesselByMMSI(ctx context.Context, mmsi int64) (*vessel.Vessel, error)

	// UpsertVessel inserts or updates the record keyed by MMSI in a
	// single statement. On update, incoming non-empty fields win and
	// empty ones leave the stored value untouched, so a partial
	// static report never erases previously known attributes.
	UpsertVessel(ctx context.Context, v vessel.Vessel) error

	// TouchVessel advances last_seen and re-activates the record
	// without touching static attributes.
	TouchVessel(ctx context.Context, mmsi int64, seenAt time.Time) error

	// AppendPosition records one observation. Positions are
	// append-only.
	AppendPosition(ctx context.Context, p vessel.Position) error

	// ListMissingStatic returns up to limit vessels that still lack
	// static attributes, most recently seen first.
	ListMissingStatic(ctx context.Context, limit int) ([]vessel.Vessel, error)

	Stats(ctx context.Context) (Stats, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver: " + cfg.Driver)
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func scanVessel(row interface{ Scan(...any) error }) (*vessel.Vessel, error) {
	var v vessel.Vessel
	var enrichedAt sql.NullTime
	err := row.Scan(
		&v.MMSI, &v.IMO, &v.Callsign, &v.Name, &v.Type,
		&v.LengthM, &v.WidthM, &v.DraughtM, &v.Flag,
		&v.LastSeen, &v.Active, &v.EnrichedBy, &enrichedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if enrichedAt.Valid {
		v.EnrichedAt = enrichedAt.Time
	}
	v.LastSeen = v.LastSeen.UTC()
	return &v, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}

const vesselColumns = `mmsi, imo, callsign, name, type,
	length_m, width_m, draught_m, flag,
	last_seen, active, enriched_by, enriched_at`
