// Package store persists alignment decisions and their focus curves in
// SQLite. The schema is owned by the embedded migrations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/activealign/internal/chart"
	"github.com/banshee-data/activealign/internal/monitoring"
	"github.com/banshee-data/activealign/internal/scan"
)

// ErrNotFound is returned when a scan id is unknown.
var ErrNotFound = errors.New("store: scan not found")

// Store wraps the station database.
type Store struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies the
// embedded migrations.
func Open(path string) (*Store, error) {
	s, err := OpenRaw(path)
	if err != nil {
		return nil, err
	}
	if err := s.MigrateUp(""); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// OpenRaw opens the database without touching the schema. The migrate
// subcommands use it.
func OpenRaw(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; the HTTP handlers only read.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return &Store{DB: db, path: path}, nil
}

// ScanRecord is one stored decision.
type ScanRecord struct {
	ID         string             `json:"id"`
	Mode       string             `json:"mode"`
	State      string             `json:"state"`
	Passed     bool               `json:"passed"`
	Reason     string             `json:"reason"`
	Violation  string             `json:"violation,omitempty"`
	StartPos   float64            `json:"start_pos"`
	CenterPeak float64            `json:"center_peak"`
	TargetZ    float64            `json:"target_z"`
	XPeak      float64            `json:"x_peak"`
	TiltLayer  int                `json:"tilt_layer"`
	TiltX      float64            `json:"tilt_x"`
	TiltY      float64            `json:"tilt_y"`
	TiltA      float64            `json:"tilt_a"`
	TiltB      float64            `json:"tilt_b"`
	PeakDev    float64            `json:"peak_dev_um"`
	Metrics    map[string]float64 `json:"metrics"`
	Layers     []scan.LayerResult `json:"layers"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// CurveRecord is the stored focus curve of one ROI.
type CurveRecord struct {
	ScanID    string     `json:"scan_id"`
	ROI       int        `json:"roi"`
	Layer     int        `json:"layer"`
	Quadrant  string     `json:"quadrant"`
	Positions []float64  `json:"positions"`
	Scores    []float64  `json:"scores"`
	Fitted    []float64  `json:"fitted"`
	EdgePeaks [4]float64 `json:"edge_peaks"`
	Peak      float64    `json:"peak"`
	PeakScore float64    `json:"peak_score"`
	CornerDev float64    `json:"corner_dev_um"`
}

// Name returns the chart label of the curve, "CC" or "L1_UL" style.
func (c CurveRecord) Name() string {
	if c.Layer == 0 {
		return "CC"
	}
	return fmt.Sprintf("L%d_%s", c.Layer, c.Quadrant)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(v float64) time.Time {
	return time.Unix(0, int64(v*1e9)).UTC()
}

func mustJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// RecordScan stores a decision and its curves in one transaction.
func (s *Store) RecordScan(ctx context.Context, d *scan.Decision) error {
	metrics, err := mustJSON(d.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}
	layers, err := mustJSON(d.Layers)
	if err != nil {
		return fmt.Errorf("failed to encode layers: %w", err)
	}
	var violation sql.NullString
	if d.Violation != nil {
		violation = sql.NullString{String: d.Violation.Metric, Valid: true}
	}

	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO scans (
			scan_id, mode, state, passed, reason, violation, start_pos, center_peak,
			target_z, x_peak, tilt_layer, tilt_x, tilt_y, tilt_a, tilt_b, peak_dev_um,
			metrics_json, layers_json, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Mode, string(d.State), d.Passed, d.Reason, violation, d.Start, d.CenterPeak,
		d.TargetZ, d.XPeak, d.TiltLayer, d.TiltX, d.TiltY, d.TiltA, d.TiltB, d.PeakDev,
		metrics, layers, unixSeconds(d.StartedAt), unixSeconds(d.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert scan %s: %w", d.ID, err)
	}

	for _, c := range d.Curves {
		if err := insertCurve(ctx, tx, d.ID, c); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scan %s: %w", d.ID, err)
	}
	monitoring.Debugf("[store] recorded scan %s (%s, %d curves)", d.ID, d.State, len(d.Curves))
	return nil
}

func insertCurve(ctx context.Context, tx *sql.Tx, id string, c scan.ROIResult) error {
	var enc [4]string
	for i, v := range []any{c.Positions, c.Scores, c.Fitted, c.EdgePeaks} {
		s, err := mustJSON(v)
		if err != nil {
			return fmt.Errorf("failed to encode curve %s: %w", c.Name, err)
		}
		enc[i] = s
	}
	quadrant := chart.CC.String()
	if c.Label.Layer > 0 {
		quadrant = c.Label.Quadrant.String()
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO scan_curves (
			scan_id, roi, layer, quadrant, positions_json, scores_json, fitted_json,
			edge_peaks_json, peak, peak_score, corner_dev_um
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, c.ROI, c.Label.Layer, quadrant, enc[0], enc[1], enc[2], enc[3],
		c.Peak, c.PeakScore, c.CornerDev,
	)
	if err != nil {
		return fmt.Errorf("failed to insert curve %s: %w", c.Name, err)
	}
	return nil
}

const scanColumns = `scan_id, mode, state, passed, reason, violation, start_pos, center_peak,
	target_z, x_peak, tilt_layer, tilt_x, tilt_y, tilt_a, tilt_b, peak_dev_um,
	metrics_json, layers_json, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*ScanRecord, error) {
	var (
		r                 ScanRecord
		violation         sql.NullString
		metrics, layers   string
		started, finished float64
	)
	err := row.Scan(&r.ID, &r.Mode, &r.State, &r.Passed, &r.Reason, &violation, &r.StartPos, &r.CenterPeak,
		&r.TargetZ, &r.XPeak, &r.TiltLayer, &r.TiltX, &r.TiltY, &r.TiltA, &r.TiltB, &r.PeakDev,
		&metrics, &layers, &started, &finished)
	if err != nil {
		return nil, err
	}
	r.Violation = violation.String
	if err := json.Unmarshal([]byte(metrics), &r.Metrics); err != nil {
		return nil, fmt.Errorf("failed to decode metrics of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(layers), &r.Layers); err != nil {
		return nil, fmt.Errorf("failed to decode layers of %s: %w", r.ID, err)
	}
	r.StartedAt, r.FinishedAt = fromUnixSeconds(started), fromUnixSeconds(finished)
	return &r, nil
}

// GetScan returns one scan by id.
func (s *Store) GetScan(ctx context.Context, id string) (*ScanRecord, error) {
	row := s.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scans WHERE scan_id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// RecentScans returns up to limit scans, newest first.
func (s *Store) RecentScans(ctx context.Context, limit int) ([]ScanRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.QueryContext(ctx, `SELECT `+scanColumns+` FROM scans ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScanRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ScanCurves returns the stored curves of a scan in ROI order.
func (s *Store) ScanCurves(ctx context.Context, id string) ([]CurveRecord, error) {
	rows, err := s.QueryContext(ctx, `SELECT roi, layer, quadrant, positions_json, scores_json,
			fitted_json, edge_peaks_json, peak, peak_score, corner_dev_um
		FROM scan_curves WHERE scan_id = ? ORDER BY roi`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CurveRecord
	for rows.Next() {
		c := CurveRecord{ScanID: id}
		var positions, scores, fitted, edges string
		if err := rows.Scan(&c.ROI, &c.Layer, &c.Quadrant, &positions, &scores, &fitted, &edges,
			&c.Peak, &c.PeakScore, &c.CornerDev); err != nil {
			return nil, err
		}
		for _, f := range []struct {
			src string
			dst any
		}{{positions, &c.Positions}, {scores, &c.Scores}, {fitted, &c.Fitted}, {edges, &c.EdgePeaks}} {
			if err := json.Unmarshal([]byte(f.src), f.dst); err != nil {
				return nil, fmt.Errorf("failed to decode curve %d of %s: %w", c.ROI, id, err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
