package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/coastwatch-io/coastwatch/internal/vessel"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:coastwatch.db?_pragma=busy_timeout(5000)&_time_format=sqlite"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// The sqlite driver serializes writers; a single connection avoids
	// SQLITE_BUSY churn under the append-heavy position workload.
	db.SetMaxOpenConns(1)
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vessels (
			mmsi INTEGER PRIMARY KEY,
			imo INTEGER NOT NULL DEFAULT 0,
			callsign TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT '',
			length_m REAL NOT NULL DEFAULT 0,
			width_m REAL NOT NULL DEFAULT 0,
			draught_m REAL NOT NULL DEFAULT 0,
			flag TEXT NOT NULL DEFAULT '',
			last_seen TIMESTAMP NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			enriched_by TEXT NOT NULL DEFAULT '',
			enriched_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vessels_last_seen ON vessels(last_seen)`,
		`CREATE TABLE IF NOT EXISTS positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mmsi INTEGER NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			speed_knots REAL NOT NULL,
			course_deg REAL NOT NULL,
			heading_deg INTEGER NOT NULL,
			nav_status INTEGER NOT NULL,
			observed_at TIMESTAMP NOT NULL
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

func (s *sqliteStore) FindVesselByMMSI(ctx context.Context, mmsi int64) (*vessel.Vessel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+vesselColumns+` FROM vessels WHERE mmsi = ?`, mmsi)
	return scanVessel(row)
}

func (s *sqliteStore) UpsertVessel(ctx context.Context, v vessel.Vessel) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vessels (`+vesselColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mmsi) DO UPDATE SET
			imo = CASE WHEN excluded.imo > 0 THEN excluded.imo ELSE vessels.imo END,
			callsign = CASE WHEN excluded.callsign <> '' THEN excluded.callsign ELSE vessels.callsign END,
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE vessels.name END,
			type = CASE WHEN excluded.type <> '' THEN excluded.type ELSE vessels.type END,
			length_m = CASE WHEN excluded.length_m > 0 THEN excluded.length_m ELSE vessels.length_m END,
			width_m = CASE WHEN excluded.width_m > 0 THEN excluded.width_m ELSE vessels.width_m END,
			draught_m = CASE WHEN excluded.draught_m > 0 THEN excluded.draught_m ELSE vessels.draught_m END,
			flag = CASE WHEN excluded.flag <> '' THEN excluded.flag ELSE vessels.flag END,
			last_seen = CASE WHEN excluded.last_seen > vessels.last_seen THEN excluded.last_seen ELSE vessels.last_seen END,
			active = excluded.active,
			enriched_by = CASE WHEN excluded.enriched_by <> '' THEN excluded.enriched_by ELSE vessels.enriched_by END,
			enriched_at = CASE WHEN excluded.enriched_by <> '' THEN excluded.enriched_at ELSE vessels.enriched_at END`,
		v.MMSI, v.IMO, v.Callsign, v.Name, v.Type,
		v.LengthM, v.WidthM, v.DraughtM, v.Flag,
		v.LastSeen.UTC(), v.Active, v.EnrichedBy, nullTime(v.EnrichedAt),
	)
	return err
}

func (s *sqliteStore) TouchVessel(ctx context.Context, mmsi int64, seenAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE vessels SET last_seen = ?, active = 1
		WHERE mmsi = ? AND last_seen < ?`,
		seenAt.UTC(), mmsi, seenAt.UTC())
	return err
}

func (s *sqliteStore) AppendPosition(ctx context.Context, p vessel.Position) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO positions (mmsi, latitude, longitude, speed_knots, course_deg, heading_deg, nav_status, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.MMSI, p.Latitude, p.Longitude, p.SpeedKnots,
		p.CourseDeg, p.HeadingDeg, p.NavStatus, p.ObservedAt.UTC(),
	)
	return err
}

func (s *sqliteStore) ListMissingStatic(ctx context.Context, limit int) ([]vessel.Vessel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+vesselColumns+` FROM vessels
		WHERE imo = 0 OR callsign = '' OR flag = '' OR name LIKE 'Vessel %'
		ORDER BY last_seen DESC LIMIT ?`, limit)
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

func (s *sqliteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM vessels),
			(SELECT COUNT(*) FROM vessels WHERE active = 1),
			(SELECT COUNT(*) FROM positions)`,
	).Scan(&st.Vessels, &st.ActiveVessels, &st.Positions)
	return st, err
}
