package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/coastwatch-io/coastwatch/internal/vessel"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/coastwatch?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vessels (
			mmsi BIGINT PRIMARY KEY,
			imo BIGINT NOT NULL DEFAULT 0,
			callsign TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT '',
			length_m DOUBLE PRECISION NOT NULL DEFAULT 0,
			width_m DOUBLE PRECISION NOT NULL DEFAULT 0,
			draught_m DOUBLE PRECISION NOT NULL DEFAULT 0,
			flag TEXT NOT NULL DEFAULT '',
			last_seen TIMESTAMPTZ NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			enriched_by TEXT NOT NULL DEFAULT '',
			enriched_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vessels_last_seen ON vessels(last_seen)`,
		`CREATE TABLE IF NOT EXISTS positions (
			id BIGSERIAL PRIMARY KEY,
			mmsi BIGINT NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			speed_knots DOUBLE PRECISION NOT NULL,
			course_deg DOUBLE PRECISION NOT NULL,
			heading_deg INTEGER NOT NULL,
			nav_status INTEGER NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_mmsi_observed ON positions(mmsi, observed_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) FindVesselByMMSI(ctx context.Context, mmsi int64) (*vessel.Vessel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+vesselColumns+` FROM vessels WHERE mmsi = $1`, mmsi)
	return scanVessel(row)
}

func (s *postgresStore) UpsertVessel(ctx context.Context, v vessel.Vessel) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vessels (`+vesselColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (mmsi) DO UPDATE SET
			imo = CASE WHEN excluded.imo > 0 THEN excluded.imo ELSE vessels.imo END,
			callsign = CASE WHEN excluded.callsign <> '' THEN excluded.callsign ELSE vessels.callsign END,
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE vessels.name END,
			type = CASE WHEN excluded.type <> '' THEN excluded.type ELSE vessels.type END,
			length_m = CASE WHEN excluded.length_m > 0 THEN excluded.length_m ELSE vessels.length_m END,
			width_m = CASE WHEN excluded.width_m > 0 THEN excluded.width_m ELSE vessels.width_m END,
			draught_m = CASE WHEN excluded.draught_m > 0 THEN excluded.draught_m ELSE vessels.draught_m END,
			flag = CASE WHEN excluded.flag <> '' THEN excluded.flag ELSE vessels.flag END,
			last_seen = GREATEST(excluded.last_seen, vessels.last_seen),
			active = excluded.active,
			enriched_by = CASE WHEN excluded.enriched_by <> '' THEN excluded.enriched_by ELSE vessels.enriched_by END,
			enriched_at = CASE WHEN excluded.enriched_by <> '' THEN excluded.enriched_at ELSE vessels.enriched_at END`,
		v.MMSI, v.IMO, v.Callsign, v.Name, v.Type,
		v.LengthM, v.WidthM, v.DraughtM, v.Flag,
		v.LastSeen.UTC(), v.Active, v.EnrichedBy, nullTime(v.EnrichedAt),
	)
	return err
}

func (s *postgresStore) TouchVessel(ctx context.Context, mmsi int64, seenAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE vessels SET last_seen = $1, active = TRUE
		WHERE mmsi = $2 AND last_seen < $1`,
		seenAt.UTC(), mmsi)
	return err
}

func (s *postgresStore) AppendPosition(ctx context.Context, p vessel.Position) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO positions (mmsi, latitude, longitude, speed_knots, course_deg, heading_deg, nav_status, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.MMSI, p.Latitude, p.Longitude, p.SpeedKnots,
		p.CourseDeg, p.HeadingDeg, p.NavStatus, p.ObservedAt.UTC(),
	)
	return err
}

func (s *postgresStore) ListMissingStatic(ctx context.Context, limit int) ([]vessel.Vessel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+vesselColumns+` FROM vessels
		WHERE imo = 0 OR callsign = '' OR flag = '' OR name LIKE 'Vessel %'
		ORDER BY last_seen DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []vessel.Vessel
	for rows.Next() {
		v, err := scanVessel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (s *postgresStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM vessels),
			(SELECT COUNT(*) FROM vessels WHERE active),
			(SELECT COUNT(*) FROM positions)`,
	).Scan(&st.Vessels, &st.ActiveVessels, &st.Positions)
	return st, err
}
