// Package sqlite persists frame reports and closed incidents for offline
// review. Persistence is a side channel: the pipeline never reads back
// from the database.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/traffic.report/internal/traffic"
)

// ReportRow is a persisted frame report: headline figures as columns for
// querying, the full report as JSON for replay.
type ReportRow struct {
	FrameIndex      int64   `json:"frame_index"`
	TSUnixNanos     int64   `json:"ts_unix_nanos"`
	VehicleCount    int     `json:"vehicle_count"`
	RiskIndex       float64 `json:"risk_index"`
	CongestionRatio float64 `json:"congestion_ratio"`
	MeanSpeedMps    float64 `json:"mean_speed_mps"`
	OpenIncidents   int     `json:"open_incidents"`
	ReportJSON      string  `json:"report_json,omitempty"`
}

// Store wraps a SQLite database holding traffic analysis output.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) a store at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS traffic_reports (
			frame_index       BIGINT PRIMARY KEY,
			ts_unix_nanos     BIGINT NOT NULL,
			vehicle_count     BIGINT NOT NULL,
			risk_index        DOUBLE NOT NULL,
			congestion_ratio  DOUBLE NOT NULL,
			mean_speed_mps    DOUBLE NOT NULL,
			open_incidents    BIGINT NOT NULL,
			report_json       TEXT
		);
		CREATE TABLE IF NOT EXISTS traffic_incidents (
			incident_id       TEXT PRIMARY KEY,
			track_id          BIGINT NOT NULL,
			other_id          BIGINT,
			incident_type     TEXT NOT NULL,
			severity          TEXT NOT NULL,
			duration_frames   BIGINT NOT NULL,
			value             DOUBLE,
			opened_unix_nanos BIGINT NOT NULL,
			closed_unix_nanos BIGINT
		);
		CREATE INDEX IF NOT EXISTS idx_traffic_reports_ts ON traffic_reports(ts_unix_nanos);
		CREATE INDEX IF NOT EXISTS idx_traffic_incidents_opened ON traffic_incidents(opened_unix_nanos);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle. The schema must already exist.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// retryOnBusy retries fn a few times when SQLite reports a locked database.
func retryOnBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		msg := err.Error()
		if !strings.Contains(msg, "database is locked") && !strings.Contains(msg, "SQLITE_BUSY") {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return err
}

// InsertReport persists one frame report. The full report is stored as
// JSON alongside the headline columns.
func (s *Store) InsertReport(rep *traffic.Report) error {
	blob, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT OR REPLACE INTO traffic_reports (
				frame_index, ts_unix_nanos, vehicle_count, risk_index,
				congestion_ratio, mean_speed_mps, open_incidents, report_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rep.FrameIndex, rep.TSUnixNanos, rep.VehicleCount, rep.RiskIndex,
			rep.CongestionRatio, rep.SpeedSummary.MeanMps, len(rep.OpenIncidents), string(blob),
		)
		return err
	})
}

// InsertIncident persists a closed incident.
func (s *Store) InsertIncident(inc traffic.Incident) error {
	var otherID interface{}
	if inc.OtherID != 0 {
		otherID = inc.OtherID
	}
	var closed interface{}
	if inc.ClosedUnixNanos != 0 {
		closed = inc.ClosedUnixNanos
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT OR REPLACE INTO traffic_incidents (
				incident_id, track_id, other_id, incident_type, severity,
				duration_frames, value, opened_unix_nanos, closed_unix_nanos
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inc.IncidentID, inc.TrackID, otherID, string(inc.Type), string(inc.Severity),
			inc.DurationFrames, inc.Value, inc.OpenedUnixNanos, closed,
		)
		return err
	})
}

// ListReports returns headline report rows in [fromNanos, toNanos),
// newest first, capped at limit. Pass limit <= 0 for no cap.
func (s *Store) ListReports(fromNanos, toNanos int64, limit int) ([]ReportRow, error) {
	q := `
		SELECT frame_index, ts_unix_nanos, vehicle_count, risk_index,
		       congestion_ratio, mean_speed_mps, open_incidents
		FROM traffic_reports
		WHERE ts_unix_nanos >= ? AND ts_unix_nanos < ?
		ORDER BY ts_unix_nanos DESC`
	args := []interface{}{fromNanos, toNanos}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []ReportRow
	for rows.Next() {
		var r ReportRow
		if err := rows.Scan(&r.FrameIndex, &r.TSUnixNanos, &r.VehicleCount, &r.RiskIndex,
			&r.CongestionRatio, &r.MeanSpeedMps, &r.OpenIncidents); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetReport returns the full persisted report for a frame.
func (s *Store) GetReport(frameIndex int64) (*traffic.Report, error) {
	var blob sql.NullString
	err := s.db.QueryRow(`SELECT report_json FROM traffic_reports WHERE frame_index = ?`, frameIndex).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("report %d not found", frameIndex)
	}
	if err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}
	if !blob.Valid {
		return nil, fmt.Errorf("report %d has no stored body", frameIndex)
	}

	var rep traffic.Report
	if err := json.Unmarshal([]byte(blob.String), &rep); err != nil {
		return nil, fmt.Errorf("unmarshal report %d: %w", frameIndex, err)
	}
	return &rep, nil
}

// ListIncidents returns incidents opened in [fromNanos, toNanos), newest
// first.
func (s *Store) ListIncidents(fromNanos, toNanos int64) ([]traffic.Incident, error) {
	rows, err := s.db.Query(`
		SELECT incident_id, track_id, other_id, incident_type, severity,
		       duration_frames, value, opened_unix_nanos, closed_unix_nanos
		FROM traffic_incidents
		WHERE opened_unix_nanos >= ? AND opened_unix_nanos < ?
		ORDER BY opened_unix_nanos DESC`, fromNanos, toNanos)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var out []traffic.Incident
	for rows.Next() {
		var (
			inc     traffic.Incident
			typ     string
			sev     string
			otherID sql.NullInt64
			closed  sql.NullInt64
		)
		if err := rows.Scan(&inc.IncidentID, &inc.TrackID, &otherID, &typ, &sev,
			&inc.DurationFrames, &inc.Value, &inc.OpenedUnixNanos, &closed); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		inc.Type = traffic.IncidentType(typ)
		inc.Severity = traffic.Severity(sev)
		if otherID.Valid {
			inc.OtherID = otherID.Int64
		}
		if closed.Valid {
			inc.ClosedUnixNanos = closed.Int64
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}
